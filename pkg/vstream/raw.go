package vstream

/**
 * SPDX-License-Identifier: Apache-2.0
 * Copyright 2020 vorteil.io Pty Ltd
 */

import (
	"io"

	"github.com/vorteil/vhdkit/pkg/vhd"
)

// rawStream produces the logical disk image: for every sector of an included
// block a Copy of its physical location or a single Empty, and for excluded
// blocks one Empty run each.
type rawStream struct {
	vhd     *vhd.VHD
	include []bool
	size    Size

	sector int64
	max    int64
	shift  uint
}

// Raw streams the logical contents of a disk. With a non-nil from, only
// blocks touched since that ancestor are emitted; everything else becomes
// holes, so the output can be laid over an image of the ancestor to
// reproduce the disk.
func Raw(v *vhd.VHD, from *vhd.VHD) (Stream, error) {

	if v.Header == nil {
		return nil, &vhd.UnsupportedDiskTypeError{Type: v.Footer.DiskType, Op: "stream"}
	}

	include, err := includedBlocks(v, from)
	if err != nil {
		return nil, err
	}

	s := &rawStream{
		vhd:     v,
		include: include,
		max:     v.MaxSector(),
		shift:   v.Header.BlockSizeSectorsShift(),
	}

	s.size, err = accountBlocks(v, include, s.max, true)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// accountBlocks computes exact empty/copy byte counts for the data part of
// a stream by resolving every sector of every included block. Excluded
// blocks only occupy output in the raw format, so only the raw generator
// counts them. The one-entry bitmap caches along the chain make this a
// metadata-only pass.
func accountBlocks(v *vhd.VHD, include []bool, max int64, countExcluded bool) (Size, error) {

	size := Size{Total: int64(v.Footer.CurrentSize)}
	blockSectors := v.Header.BlockSizeSectors()

	for block, in := range include {
		start := int64(block) * blockSectors
		if start >= max {
			break
		}
		n := blockSectors
		if start+n > max {
			n = max - start
		}
		if !in {
			if countExcluded {
				size.Empty += n * SectorSize
			}
			continue
		}
		for i := int64(0); i < n; i++ {
			loc, err := v.Locate(start + i)
			if err != nil {
				return size, err
			}
			if loc == nil {
				size.Empty += SectorSize
			} else {
				size.Copy += SectorSize
			}
		}
	}
	return size, nil
}

func (s *rawStream) Size() Size {
	return s.size
}

func (s *rawStream) Next() (Element, error) {

	if s.sector >= s.max {
		return nil, io.EOF
	}

	block := s.sector >> s.shift
	blockStart := block << s.shift
	blockEnd := blockStart + s.vhd.Header.BlockSizeSectors()
	if blockEnd > s.max {
		blockEnd = s.max
	}

	if !s.include[block] {
		n := blockEnd - s.sector
		s.sector = blockEnd
		return Empty{Count: n}, nil
	}

	loc, err := s.vhd.Locate(s.sector)
	if err != nil {
		return nil, err
	}
	s.sector++

	if loc == nil {
		return Empty{Count: 1}, nil
	}
	return Copy{File: loc.VHD.File(), Sector: loc.Sector, Count: 1}, nil
}
