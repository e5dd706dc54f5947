package main

/**
 * SPDX-License-Identifier: Apache-2.0
 * Copyright 2020 vorteil.io Pty Ltd
 */

import (
	"fmt"

	"code.cloudfoundry.org/bytefmt"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/vorteil/vhdkit/pkg/vhd"
	"github.com/vorteil/vhdkit/pkg/vio"
)

var (
	flagSize       string
	flagUUID       string
	flagSavedState bool
	flagTemporary  bool
	flagBlockShift uint
)

func createOptions() (*vhd.CreateOptions, error) {

	opts := &vhd.CreateOptions{
		SavedState:            flagSavedState,
		BlockSizeSectorsShift: flagBlockShift,
	}
	if opts.BlockSizeSectorsShift == 0 {
		opts.BlockSizeSectorsShift = conf.BlockSizeSectorsShift
	}
	if flagTemporary {
		opts.Features |= vhd.FeatureTemporary
	}
	if flagUUID != "" {
		uid, err := uuid.Parse(flagUUID)
		if err != nil {
			return nil, fmt.Errorf("bad --uuid: %w", err)
		}
		opts.UID = uid
	}
	return opts, nil
}

var createCmd = &cobra.Command{
	Use:   "create DEST",
	Short: "Create an empty dynamic VHD",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {

		size, err := bytefmt.ToBytes(flagSize)
		if err != nil {
			return fmt.Errorf("bad --size: %w", err)
		}

		opts, err := createOptions()
		if err != nil {
			return err
		}

		v, err := vhd.CreateDynamic(vio.OSFS{}, args[0], size, opts)
		if err != nil {
			return err
		}
		defer v.Close()

		log.Printf("created %s: %s dynamic vhd (uuid %s)", args[0],
			bytefmt.ByteSize(v.Footer.CurrentSize), v.Footer.UID)
		return nil
	},
}

var snapshotCmd = &cobra.Command{
	Use:   "snapshot PARENT DEST",
	Short: "Create a differencing VHD over an existing image",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {

		opts, err := createOptions()
		if err != nil {
			return err
		}
		opts.BlockSizeSectorsShift = 0 // inherited from the parent

		fs := vio.OSFS{}
		parent, err := vhd.Open(fs, args[0], conf.SearchPath...)
		if err != nil {
			return err
		}
		defer parent.Close()

		v, err := vhd.CreateDifference(fs, args[1], parent, opts)
		if err != nil {
			return err
		}
		defer v.Close()

		log.Printf("created %s: differencing vhd over %s (uuid %s)",
			args[1], args[0], v.Footer.UID)
		return nil
	},
}

// addCreateFlags attaches the flags shared by every image-creating command.
func addCreateFlags(flags *pflag.FlagSet) {
	flags.StringVar(&flagUUID, "uuid", "", "unique id for the new image (random if unset)")
	flags.BoolVar(&flagSavedState, "saved-state", false, "mark the image as being in a saved state")
	flags.BoolVar(&flagTemporary, "temporary", false, "mark the image as temporary")
}

func init() {
	createCmd.Flags().StringVarP(&flagSize, "size", "s", "", "virtual disk size, e.g. 2G")
	_ = createCmd.MarkFlagRequired("size")

	addCreateFlags(createCmd.Flags())
	addCreateFlags(snapshotCmd.Flags())
	createCmd.Flags().UintVar(&flagBlockShift, "block-shift", 0, "log2 of sectors per block (default 12: 2 MiB blocks)")
}
