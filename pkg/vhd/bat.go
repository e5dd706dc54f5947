package vhd

/**
 * SPDX-License-Identifier: Apache-2.0
 * Copyright 2020 vorteil.io Pty Ltd
 */

// BATUnused marks a block allocation table entry with no backing block.
const BATUnused = uint32(0xFFFFFFFF)

// BAT is the block allocation table: one entry per block, each either
// BATUnused or the sector offset of the block's bitmap and data. Entries are
// append-only; freeing a block would need a free list this format doesn't
// have.
type BAT struct {
	entries []uint32 // padded to a sector boundary, unused-filled
	used    int
	highest uint32 // highest allocated sector offset, 0 while empty
}

// NewBAT returns a table of maxTableEntries unused entries. The padding up
// to a sector boundary is also filled with BATUnused so the serialized form
// re-reads cleanly.
func NewBAT(maxTableEntries int) *BAT {
	padded := int(roundUpSector(4*int64(maxTableEntries))) / 4
	b := &BAT{
		entries: make([]uint32, padded),
		used:    maxTableEntries,
	}
	for i := range b.entries {
		b.entries[i] = BATUnused
	}
	return b
}

// UnmarshalBAT parses a sector-padded big-endian table covering
// maxTableEntries entries.
func UnmarshalBAT(buf []byte, maxTableEntries int) *BAT {
	b := NewBAT(maxTableEntries)
	for i := 0; i < len(b.entries) && 4*i+4 <= len(buf); i++ {
		b.entries[i] = r32(buf, 4*i)
	}
	for i := 0; i < b.used; i++ {
		if s := b.entries[i]; s != BATUnused && s > b.highest {
			b.highest = s
		}
	}
	return b
}

// Get returns the entry for block i.
func (b *BAT) Get(i int) uint32 {
	return b.entries[i]
}

// Set records sector as the location of block i.
func (b *BAT) Set(i int, sector uint32) {
	b.entries[i] = sector
	if sector != BATUnused && sector > b.highest {
		b.highest = sector
	}
}

// Len returns the number of meaningful entries.
func (b *BAT) Len() int {
	return b.used
}

// Allocated returns the number of entries with a backing block.
func (b *BAT) Allocated() int {
	n := 0
	for i := 0; i < b.used; i++ {
		if b.entries[i] != BATUnused {
			n++
		}
	}
	return n
}

// Highest returns the largest sector offset of any allocated entry, or zero
// if the table is empty.
func (b *BAT) Highest() uint32 {
	return b.highest
}

// Equal reports whether two tables have identical meaningful entries.
func (b *BAT) Equal(o *BAT) bool {
	if b.used != o.used {
		return false
	}
	for i := 0; i < b.used; i++ {
		if b.entries[i] != o.entries[i] {
			return false
		}
	}
	return true
}

// PaddedBytes returns the serialized size, a whole number of sectors.
func (b *BAT) PaddedBytes() int64 {
	return int64(4 * len(b.entries))
}

// Marshal serializes the table, padding included.
func (b *BAT) Marshal() []byte {
	buf := make([]byte, b.PaddedBytes())
	for i, e := range b.entries {
		w32(buf, 4*i, e)
	}
	return buf
}
