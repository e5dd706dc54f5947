package vstream

/**
 * SPDX-License-Identifier: Apache-2.0
 * Copyright 2020 vorteil.io Pty Ltd
 */

import (
	"fmt"

	"github.com/vorteil/vhdkit/pkg/vhd"
)

// includedBlocks decides which blocks a stream must carry.
//
// Without a delta base every block allocated anywhere in the chain is
// included. With one, only blocks allocated in a layer that is not common to
// both chains are included: that replays changes made on the disk's branch
// and reverts changes specific to the base's branch.
func includedBlocks(v *vhd.VHD, from *vhd.VHD) ([]bool, error) {

	include := make([]bool, v.BAT.Len())

	if from == nil {
		for _, layer := range v.Chain() {
			if layer.BAT == nil {
				continue
			}
			markAllocated(include, layer.BAT)
		}
		return include, nil
	}

	tb := map[string]*vhd.BAT{}
	for _, layer := range v.Chain() {
		tb[layer.Filename] = layer.BAT
	}
	fb := map[string]*vhd.BAT{}
	for _, layer := range from.Chain() {
		fb[layer.Filename] = layer.BAT
	}

	difference := 0
	for name, bat := range tb {
		if _, ok := fb[name]; !ok {
			markAllocated(include, bat)
			difference++
		}
	}
	for name, bat := range fb {
		if _, ok := tb[name]; !ok {
			markAllocated(include, bat)
			difference++
		}
	}

	if difference == len(tb)+len(fb) {
		return nil, fmt.Errorf("%s and %s share no common ancestry", v.Filename, from.Filename)
	}

	return include, nil
}

func markAllocated(include []bool, bat *vhd.BAT) {
	n := bat.Len()
	if n > len(include) {
		n = len(include)
	}
	for i := 0; i < n; i++ {
		if bat.Get(i) != vhd.BATUnused {
			include[i] = true
		}
	}
}
