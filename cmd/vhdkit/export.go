package main

/**
 * SPDX-License-Identifier: Apache-2.0
 * Copyright 2020 vorteil.io Pty Ltd
 */

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/vorteil/vhdkit/pkg/vhd"
	"github.com/vorteil/vhdkit/pkg/vio"
	"github.com/vorteil/vhdkit/pkg/vstream"
)

var (
	flagFormat     string
	flagFrom       string
	flagEmitBATmap bool
	flagRawSource  string
	flagSparse     bool
)

var exportCmd = &cobra.Command{
	Use:   "export IMAGE DEST",
	Short: "Export an image (or a delta) as a raw or repacked VHD file",
	Long: `Export walks the image's parent chain and streams its logical
contents to DEST. The vhd format repacks allocated blocks contiguously,
which also compacts images whose blocks have scattered over time. With
--from, only changes made since that ancestor are emitted; replaying the
result over an image of the ancestor reproduces IMAGE.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {

		fs := vio.OSFS{}
		v, err := vhd.Open(fs, args[0], conf.SearchPath...)
		if err != nil {
			return err
		}
		defer v.Close()

		var from *vhd.VHD
		if flagFrom != "" {
			for _, layer := range v.Chain() {
				if layer.Filename == flagFrom || filepath.Base(layer.Filename) == flagFrom {
					from = layer
					break
				}
			}
			if from == nil {
				return fmt.Errorf("--from %q is not in the parent chain of %s", flagFrom, args[0])
			}
		}

		var s vstream.Stream
		switch flagFormat {
		case "raw":
			s, err = vstream.Raw(v, from)
		case "vhd":
			s, err = vstream.VHD(v, &vstream.Options{From: from, EmitBATmap: flagEmitBATmap})
		case "hybrid":
			if flagRawSource == "" {
				return fmt.Errorf("hybrid export needs --raw-source")
			}
			var raw vio.File
			raw, err = fs.Open(flagRawSource)
			if err != nil {
				return err
			}
			defer raw.Close()
			s, err = vstream.Hybrid(raw, v, &vstream.Options{From: from, EmitBATmap: flagEmitBATmap})
		default:
			return fmt.Errorf("unrecognized export format %q", flagFormat)
		}
		if err != nil {
			return err
		}
		s = vstream.Coalesce(s)

		size := s.Size()
		log.Debugf("stream size: total %d, metadata %d, empty %d, copy %d",
			size.Total, size.Metadata, size.Empty, size.Copy)

		f, err := os.Create(args[1])
		if err != nil {
			return err
		}
		defer f.Close()

		progress := log.NewProgress("exporting", "KiB", size.Metadata+size.Empty+size.Copy)
		defer progress.Finish(false)

		var w io.Writer = f
		if !flagSparse {
			// Count every byte through the bar. Sparse output skips the
			// zero runs instead, so it bypasses the counter.
			w = io.MultiWriter(f, progress)
		}

		err = vstream.Serialize(w, s)
		if err != nil {
			return err
		}
		progress.Finish(true)

		log.Printf("exported %s to %s (%s)", args[0], args[1], flagFormat)
		return nil
	},
}

func init() {
	exportCmd.Flags().StringVarP(&flagFormat, "format", "f", "vhd", "output format: raw, vhd, or hybrid")
	exportCmd.Flags().StringVar(&flagFrom, "from", "", "emit only changes since this ancestor in the chain")
	exportCmd.Flags().BoolVar(&flagEmitBATmap, "emit-batmap", false, "include a batmap in vhd output")
	exportCmd.Flags().StringVar(&flagRawSource, "raw-source", "", "pre-expanded raw image backing hybrid output")
	exportCmd.Flags().BoolVar(&flagSparse, "sparse", false, "seek over holes instead of writing zeroes")
}
