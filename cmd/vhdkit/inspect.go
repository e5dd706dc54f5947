package main

/**
 * SPDX-License-Identifier: Apache-2.0
 * Copyright 2020 vorteil.io Pty Ltd
 */

import (
	"encoding/hex"
	"fmt"
	"io/ioutil"
	"os"
	"strconv"

	"code.cloudfoundry.org/bytefmt"
	"github.com/sisatech/tablewriter"
	"github.com/spf13/cobra"

	"github.com/vorteil/vhdkit/pkg/vhd"
	"github.com/vorteil/vhdkit/pkg/vio"
)

var infoCmd = &cobra.Command{
	Use:   "info IMAGE",
	Short: "Print footer and header metadata",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {

		v, err := vhd.Open(vio.OSFS{}, args[0], conf.SearchPath...)
		if err != nil {
			return err
		}
		defer v.Close()

		for _, layer := range v.Chain() {
			f := layer.Footer
			log.Printf("%s:", layer.Filename)
			log.Printf("  type:         \t%s", f.DiskType)
			log.Printf("  uuid:         \t%s", f.UID)
			log.Printf("  current size: \t%s", bytefmt.ByteSize(f.CurrentSize))
			log.Printf("  geometry:     \t%s", f.Geometry)
			log.Printf("  created:      \t%s", f.Time())
			log.Printf("  creator:      \t%s %#08x (%s)", f.CreatorApplication, f.CreatorVersion, f.CreatorHostOS)
			if f.SavedState {
				log.Printf("  saved state:  \tyes")
			}
			if layer.Header == nil {
				continue
			}
			h := layer.Header
			log.Printf("  block size:   \t%s", bytefmt.ByteSize(uint64(h.BlockSize)))
			log.Printf("  table entries:\t%d (%d allocated)", h.MaxTableEntries, layer.BAT.Allocated())
			if layer.BATmap != nil {
				log.Printf("  batmap:       \tpresent (%d sectors)", layer.BATmap.SizeSectors)
			}
			if f.DiskType == vhd.DiskTypeDifferencing {
				log.Printf("  parent:       \t%s (uuid %s)", h.ParentName, h.ParentUID)
			}
		}
		return nil
	},
}

var batCmd = &cobra.Command{
	Use:   "bat IMAGE",
	Short: "List allocated block table entries",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {

		v, err := vhd.Open(vio.OSFS{}, args[0], conf.SearchPath...)
		if err != nil {
			return err
		}
		defer v.Close()

		if v.BAT == nil {
			return fmt.Errorf("%s is a fixed vhd and has no block allocation table", args[0])
		}

		table := tablewriter.NewWriter(os.Stdout)
		table.SetAlignment(tablewriter.ALIGN_LEFT)
		table.SetBorder(false)
		table.SetHeader([]string{"BLOCK", "SECTOR", "OFFSET"})
		for i := 0; i < v.BAT.Len(); i++ {
			s := v.BAT.Get(i)
			if s == vhd.BATUnused {
				continue
			}
			table.Append([]string{
				strconv.Itoa(i),
				strconv.FormatUint(uint64(s), 10),
				fmt.Sprintf("%#x", int64(s)*vhd.SectorSize),
			})
		}
		table.Render()
		return nil
	},
}

var checkCmd = &cobra.Command{
	Use:   "check IMAGE",
	Short: "Validate image structure for overlapping regions",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {

		v, err := vhd.Open(vio.OSFS{}, args[0], conf.SearchPath...)
		if err != nil {
			return err
		}
		defer v.Close()

		for _, layer := range v.Chain() {
			err = layer.Check()
			if err != nil {
				return fmt.Errorf("%s: %w", layer.Filename, err)
			}
			log.Printf("%s: ok (%d extents)", layer.Filename, len(layer.Extents()))
		}
		return nil
	},
}

var readCmd = &cobra.Command{
	Use:   "read IMAGE SECTOR",
	Short: "Read one virtual sector and hex-dump it",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {

		sector, err := strconv.ParseInt(args[1], 10, 64)
		if err != nil {
			return fmt.Errorf("bad sector number %q: %w", args[1], err)
		}

		v, err := vhd.Open(vio.OSFS{}, args[0], conf.SearchPath...)
		if err != nil {
			return err
		}
		defer v.Close()

		data, err := v.ReadSector(sector)
		if err != nil {
			return err
		}
		if data == nil {
			log.Printf("sector %d is unallocated", sector)
			return nil
		}
		fmt.Print(hex.Dump(data))
		return nil
	},
}

var writeCmd = &cobra.Command{
	Use:   "write IMAGE SECTOR FILE",
	Short: "Write 512 bytes from a file to one virtual sector",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {

		sector, err := strconv.ParseInt(args[1], 10, 64)
		if err != nil {
			return fmt.Errorf("bad sector number %q: %w", args[1], err)
		}

		data, err := ioutil.ReadFile(args[2])
		if err != nil {
			return err
		}
		if len(data) > vhd.SectorSize {
			return fmt.Errorf("%s holds %d bytes, more than one sector", args[2], len(data))
		}
		buf := make([]byte, vhd.SectorSize)
		copy(buf, data)

		v, err := vhd.Open(vio.OSFS{}, args[0], conf.SearchPath...)
		if err != nil {
			return err
		}
		defer v.Close()

		err = v.WriteSector(sector, buf)
		if err != nil {
			return err
		}
		log.Printf("wrote sector %d of %s", sector, args[0])
		return nil
	},
}
