package main

/**
 * SPDX-License-Identifier: Apache-2.0
 * Copyright 2020 vorteil.io Pty Ltd
 */

import (
	"io/ioutil"
	"os"
	"path/filepath"

	homedir "github.com/mitchellh/go-homedir"
	"github.com/sisatech/toml"
)

// Config is the optional on-disk configuration, usually ~/.vhdkit.toml.
type Config struct {
	// SearchPath lists directories tried when resolving the parents of
	// differencing disks, after the child's own directory.
	SearchPath []string `toml:"search_path"`

	// BlockSizeSectorsShift overrides the default block size for new
	// images (e.g. 12 for 2 MiB blocks).
	BlockSizeSectorsShift uint `toml:"block_size_sectors_shift"`
}

var conf Config

func loadConfig(path string) error {

	if path == "" {
		home, err := homedir.Dir()
		if err != nil {
			return err
		}
		path = filepath.Join(home, ".vhdkit.toml")
		if _, err = os.Stat(path); err != nil {
			return nil // no config is fine
		}
	}

	data, err := ioutil.ReadFile(path)
	if err != nil {
		return err
	}
	return toml.Unmarshal(data, &conf)
}
