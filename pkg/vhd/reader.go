package vhd

/**
 * SPDX-License-Identifier: Apache-2.0
 * Copyright 2020 vorteil.io Pty Ltd
 */

import (
	"github.com/vorteil/vhdkit/pkg/vio"
)

// Location names the layer and physical sector that serve a virtual sector.
type Location struct {
	VHD    *VHD
	Sector int64
}

// MaxSector returns the number of virtual sectors in the disk.
func (v *VHD) MaxSector() int64 {
	return int64(v.Footer.CurrentSize) / SectorSize
}

// Locate resolves a virtual sector to the layer and physical sector that
// hold its data, walking the parent chain of differencing disks. A nil
// location means the sector is a hole: zeroes on a dynamic disk.
func (v *VHD) Locate(sector int64) (*Location, error) {
	if sector < 0 || sector >= v.MaxSector() {
		return nil, &InvalidSectorError{Sector: sector, Max: v.MaxSector()}
	}
	return v.locate(sector)
}

func (v *VHD) locate(sector int64) (*Location, error) {

	// Layers in a chain may have different sizes. A sector past this
	// layer's end can still live in a bigger parent; on a dynamic disk it
	// is simply absent.
	if sector >= v.MaxSector() {
		if v.Footer.DiskType == DiskTypeDifferencing {
			return v.Parent.locate(sector)
		}
		return nil, nil
	}

	if v.Footer.DiskType == DiskTypeFixed {
		return nil, &UnsupportedDiskTypeError{Type: DiskTypeFixed, Op: "locate"}
	}

	shift := v.Header.BlockSizeSectorsShift()
	block := sector >> shift
	inBlock := sector - block<<shift

	if int(block) >= v.BAT.Len() || v.BAT.Get(int(block)) == BATUnused {
		if v.Footer.DiskType == DiskTypeDifferencing {
			return v.Parent.locate(sector)
		}
		return nil, nil
	}

	bitmap, err := v.blockBitmap(block)
	if err != nil {
		return nil, err
	}

	if bitmap.Get(inBlock) {
		phys := int64(v.BAT.Get(int(block))) + v.Header.BitmapSizeSectors() + inBlock
		return &Location{VHD: v, Sector: phys}, nil
	}

	if v.Footer.DiskType == DiskTypeDifferencing {
		return v.Parent.locate(sector)
	}
	return nil, nil
}

// ReadSector returns the 512 bytes of a virtual sector, or nil for a hole.
func (v *VHD) ReadSector(sector int64) ([]byte, error) {

	loc, err := v.Locate(sector)
	if err != nil || loc == nil {
		return nil, err
	}
	return vio.ReallyRead(loc.VHD.file, loc.Sector*SectorSize, SectorSize)
}

// blockBitmap reads a block's sector bitmap through the one-entry cache.
func (v *VHD) blockBitmap(block int64) (Bitmap, error) {

	if v.cachedBlock == block && v.cachedBitmap != nil {
		return v.cachedBitmap, nil
	}

	off := int64(v.BAT.Get(int(block))) * SectorSize
	buf, err := vio.ReallyRead(v.file, off, v.Header.BitmapSizeBytes())
	if err != nil {
		return nil, err
	}

	v.cachedBlock = block
	v.cachedBitmap = Bitmap(buf)
	return v.cachedBitmap, nil
}
