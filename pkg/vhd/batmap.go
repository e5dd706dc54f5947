package vhd

/**
 * SPDX-License-Identifier: Apache-2.0
 * Copyright 2020 vorteil.io Pty Ltd
 */

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// BATmap is an optional accelerator found in some dynamic VHDs: one bit per
// BAT entry, set iff every sector bit of that block's bitmap is set. Readers
// can then skip the per-block bitmap for fully populated blocks. The header
// occupies the sector after the BAT; the payload follows it.
type BATmap struct {
	Offset      uint64 // absolute byte offset of the payload
	SizeSectors uint32
	Version     uint32
	Checksum    uint32 // over the payload
	Map         []byte
}

// NewBATmap returns an empty map sized for maxTableEntries blocks.
func NewBATmap(maxTableEntries int, offset uint64) *BATmap {
	payload := roundUpSector((int64(maxTableEntries) + 7) / 8)
	return &BATmap{
		Offset:      offset,
		SizeSectors: uint32(payload / SectorSize),
		Version:     batmapVersion,
		Map:         make([]byte, payload),
	}
}

// Get returns the bit for block i.
func (m *BATmap) Get(i int) bool {
	return m.Map[i>>3]&(0x80>>uint(i&7)) != 0
}

// Set sets the bit for block i.
func (m *BATmap) Set(i int) {
	m.Map[i>>3] |= 0x80 >> uint(i&7)
}

// MarshalHeader serializes the header into a 512-byte sector, first
// refreshing the payload checksum in m.
func (m *BATmap) MarshalHeader(buf []byte) error {

	if len(buf) < SectorSize {
		return fmt.Errorf("batmap header buffer too small: %d", len(buf))
	}

	m.Checksum = checksum(m.Map)

	blk := &batmapBlock{
		BatmapOffset:  m.Offset,
		BatmapSize:    m.SizeSectors,
		BatmapVersion: m.Version,
		Checksum:      m.Checksum,
	}
	copy(blk.Cookie[:], batmapCookie)

	for i := range buf[:SectorSize] {
		buf[i] = 0
	}
	w := bytes.NewBuffer(buf[:0])
	return binary.Write(w, binary.BigEndian, blk)
}

// UnmarshalBATmapHeader parses a batmap header sector. The payload must be
// read separately from Offset and verified with VerifyPayload.
func UnmarshalBATmapHeader(buf []byte) (*BATmap, error) {

	if len(buf) < SectorSize {
		return nil, fmt.Errorf("batmap header buffer too small: %d", len(buf))
	}

	blk := new(batmapBlock)
	err := binary.Read(bytes.NewReader(buf), binary.BigEndian, blk)
	if err != nil {
		return nil, err
	}

	if string(blk.Cookie[:]) != batmapCookie {
		return nil, &CookieError{Structure: "batmap", Expected: batmapCookie, Found: string(blk.Cookie[:])}
	}
	if blk.BatmapVersion != batmapVersion {
		return nil, &VersionError{Structure: "batmap", Found: blk.BatmapVersion}
	}

	return &BATmap{
		Offset:      blk.BatmapOffset,
		SizeSectors: blk.BatmapSize,
		Version:     blk.BatmapVersion,
		Checksum:    blk.Checksum,
	}, nil
}

// VerifyPayload installs the payload bytes after checking them against the
// header checksum.
func (m *BATmap) VerifyPayload(payload []byte) error {
	actual := checksum(payload)
	if actual != m.Checksum {
		return &ChecksumError{Structure: "batmap", Expected: m.Checksum, Actual: actual}
	}
	m.Map = payload
	return nil
}
