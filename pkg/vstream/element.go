package vstream

/**
 * SPDX-License-Identifier: Apache-2.0
 * Copyright 2020 vorteil.io Pty Ltd
 */

import (
	"fmt"

	"github.com/vorteil/vhdkit/pkg/vio"
)

// Element is one piece of a sector stream. A stream is consumed in order;
// concatenating the bytes each element stands for reproduces the image.
type Element interface {
	// SectorCount returns how many sectors of output the element stands
	// for.
	SectorCount() int64
}

// Sectors carries literal bytes produced by the generator itself: headers,
// tables, bitmaps.
type Sectors struct {
	Data []byte
}

// SectorCount implements Element.
func (e Sectors) SectorCount() int64 {
	return int64(len(e.Data)) / SectorSize
}

func (e Sectors) String() string {
	return fmt.Sprintf("sectors[%d bytes]", len(e.Data))
}

// Empty stands for a run of zeroed sectors.
type Empty struct {
	Count int64
}

// SectorCount implements Element.
func (e Empty) SectorCount() int64 {
	return e.Count
}

func (e Empty) String() string {
	return fmt.Sprintf("empty[%d]", e.Count)
}

// Copy defers to an open handle: Count sectors starting at sector offset
// Sector, read at consumption time.
type Copy struct {
	File   vio.File
	Sector int64
	Count  int64
}

// SectorCount implements Element.
func (e Copy) SectorCount() int64 {
	return e.Count
}

func (e Copy) String() string {
	return fmt.Sprintf("copy[%s@%d+%d]", e.File.Name(), e.Sector, e.Count)
}

// Size is a stream's byte accounting. Metadata, Empty, and Copy sum to the
// serialized length of the stream; Total is the logical size of the disk the
// stream represents.
type Size struct {
	Total    int64
	Metadata int64
	Empty    int64
	Copy     int64
}

// Stream is a lazy sequence of elements. Next returns io.EOF after the last
// element. Copy elements read from their handles only when the consumer
// gets to them, so generation itself does no data I/O.
type Stream interface {
	Size() Size
	Next() (Element, error)
}

// SectorSize is the atomic unit of the stream wire format.
const SectorSize = 512

const expandChunkSectors = 0x200000 / SectorSize
