package vhd

/**
 * SPDX-License-Identifier: Apache-2.0
 * Copyright 2020 vorteil.io Pty Ltd
 */

import (
	"fmt"
	"sort"
)

// Extent is a named half-open byte range [Start, End) inside a VHD file.
type Extent struct {
	Name  string
	Start int64
	End   int64
}

// Extents lists every structure the metadata claims space for, sorted by
// start offset: head footer, header, BAT, batmap, parent locator payloads,
// and each allocated block.
func (v *VHD) Extents() []Extent {

	extents := []Extent{{Name: "footer", Start: 0, End: footerSize}}

	if v.Header == nil {
		return extents
	}

	extents = append(extents, Extent{
		Name:  "header",
		Start: int64(v.Footer.DataOffset),
		End:   int64(v.Footer.DataOffset) + headerSize,
	})
	extents = append(extents, Extent{
		Name:  "bat",
		Start: int64(v.Header.TableOffset),
		End:   int64(v.Header.TableOffset) + v.Header.BATPaddedBytes(),
	})

	if v.BATmap != nil {
		extents = append(extents, Extent{
			Name:  "batmap",
			Start: int64(v.BATmap.Offset),
			End:   int64(v.BATmap.Offset) + int64(v.BATmap.SizeSectors)*SectorSize,
		})
	}

	for i := range v.Header.ParentLocators {
		l := &v.Header.ParentLocators[i]
		if l.PlatformCode == PlatformCodeNone || l.PlatformDataLength == 0 {
			continue
		}
		extents = append(extents, Extent{
			Name:  fmt.Sprintf("parent locator %d", i),
			Start: int64(l.PlatformDataOffset),
			End:   int64(l.PlatformDataOffset) + int64(l.DataSpaceBytes()),
		})
	}

	span := v.Header.BitmapSizeBytes() + int64(v.Header.BlockSize)
	for i := 0; i < v.BAT.Len(); i++ {
		s := v.BAT.Get(i)
		if s == BATUnused {
			continue
		}
		start := int64(s) * SectorSize
		extents = append(extents, Extent{
			Name:  fmt.Sprintf("block %d", i),
			Start: start,
			End:   start + span,
		})
	}

	sort.Slice(extents, func(i, j int) bool {
		return extents[i].Start < extents[j].Start
	})
	return extents
}

// Check verifies that no two structures overlap on disk.
func (v *VHD) Check() error {

	extents := v.Extents()
	for i := 1; i < len(extents); i++ {
		prev, cur := extents[i-1], extents[i]
		if cur.Start < prev.End {
			return fmt.Errorf("%s [%d, %d) overlaps %s [%d, %d)",
				prev.Name, prev.Start, prev.End, cur.Name, cur.Start, cur.End)
		}
	}
	return nil
}
