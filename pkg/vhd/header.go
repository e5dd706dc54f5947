package vhd

/**
 * SPDX-License-Identifier: Apache-2.0
 * Copyright 2020 vorteil.io Pty Ltd
 */

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math/bits"

	"github.com/google/uuid"
)

// PlatformCode tags the format of a parent locator's payload.
type PlatformCode uint32

// Parent locator platform codes.
const (
	PlatformCodeNone PlatformCode = 0
	PlatformCodeWi2r PlatformCode = 0x57693272 // "Wi2r"
	PlatformCodeWi2k PlatformCode = 0x5769326B // "Wi2k"
	PlatformCodeW2ru PlatformCode = 0x57327275 // "W2ru"
	PlatformCodeW2ku PlatformCode = 0x57326B75 // "W2ku"
	PlatformCodeMac  PlatformCode = 0x4D616320 // "Mac "
	PlatformCodeMacX PlatformCode = 0x4D616358 // "MacX"
)

func (c PlatformCode) String() string {
	if c == PlatformCodeNone {
		return "none"
	}
	return string([]byte{byte(c >> 24), byte(c >> 16), byte(c >> 8), byte(c)})
}

// ParentLocator is one of the eight header slots used to re-find the parent
// of a differencing disk. The payload itself lives elsewhere in the file, at
// PlatformDataOffset.
type ParentLocator struct {
	PlatformCode       PlatformCode
	PlatformDataSpace  uint32 // raw on-disk value, see DataSpaceBytes
	PlatformDataLength uint32
	PlatformDataOffset uint64
}

// DataSpaceBytes returns the payload space in bytes. The specification says
// PlatformDataSpace counts sectors but several producers write bytes; small
// values are read as sectors, anything else as bytes. The raw value is kept
// for faithful re-encoding.
func (l *ParentLocator) DataSpaceBytes() uint32 {
	if l.PlatformDataSpace < SectorSize {
		return l.PlatformDataSpace * SectorSize
	}
	return l.PlatformDataSpace
}

// Header is the 1024-byte sparse disk header of dynamic and differencing
// VHDs.
type Header struct {
	TableOffset     uint64
	MaxTableEntries uint32
	BlockSize       uint32
	Checksum        uint32
	ParentUID       uuid.UUID
	ParentTimeStamp uint32
	ParentName      string
	ParentLocators  [8]ParentLocator
}

// BlockSizeSectors returns the number of sectors per block.
func (h *Header) BlockSizeSectors() int64 {
	return int64(h.BlockSize) / SectorSize
}

// BlockSizeSectorsShift returns log2 of the sectors per block.
func (h *Header) BlockSizeSectorsShift() uint {
	return uint(bits.TrailingZeros64(uint64(h.BlockSizeSectors())))
}

// BitmapSizeBytes returns the on-disk size of one block's sector bitmap,
// padded to a sector boundary.
func (h *Header) BitmapSizeBytes() int64 {
	return roundUpSector(h.BlockSizeSectors() / 8)
}

// BitmapSizeSectors returns the sectors occupied by one block's bitmap.
func (h *Header) BitmapSizeSectors() int64 {
	return h.BitmapSizeBytes() / SectorSize
}

// BATPaddedBytes returns the size of the BAT padded to a sector boundary.
func (h *Header) BATPaddedBytes() int64 {
	return roundUpSector(4 * int64(h.MaxTableEntries))
}

// Marshal serializes the header into buf, which must hold at least 1024
// bytes, updating the checksum in both buf and h.
func (h *Header) Marshal(buf []byte) error {

	if len(buf) < headerSize {
		return fmt.Errorf("header buffer too small: %d", len(buf))
	}

	name := utf16Encode(h.ParentName)
	if len(name) > 512 {
		return fmt.Errorf("parent name %q too long for header", h.ParentName)
	}

	blk := &headerBlock{
		DataOffset:      0xFFFFFFFFFFFFFFFF,
		TableOffset:     h.TableOffset,
		HeaderVersion:   FileFormatVersion,
		MaxTableEntries: h.MaxTableEntries,
		BlockSize:       h.BlockSize,
		ParentTimeStamp: h.ParentTimeStamp,
	}
	copy(blk.Cookie[:], headerCookie)
	copy(blk.ParentUniqueID[:], h.ParentUID[:])
	copy(blk.ParentUnicodeName[:], name)
	for i, l := range h.ParentLocators {
		blk.ParentLocators[i] = locatorBlock{
			PlatformCode:       uint32(l.PlatformCode),
			PlatformDataSpace:  l.PlatformDataSpace,
			PlatformDataLength: l.PlatformDataLength,
			PlatformDataOffset: l.PlatformDataOffset,
		}
	}

	w := bytes.NewBuffer(buf[:0])
	err := binary.Write(w, binary.BigEndian, blk)
	if err != nil {
		return err
	}

	h.Checksum = checksum(buf[:headerSize])
	w32(buf, headerChecksumOffset, h.Checksum)
	return nil
}

// UnmarshalHeader validates and parses a 1024-byte sparse header.
func UnmarshalHeader(buf []byte) (*Header, error) {

	if len(buf) < headerSize {
		return nil, fmt.Errorf("header buffer too small: %d", len(buf))
	}
	buf = buf[:headerSize]

	blk := new(headerBlock)
	err := binary.Read(bytes.NewReader(buf), binary.BigEndian, blk)
	if err != nil {
		return nil, err
	}

	if string(blk.Cookie[:]) != headerCookie {
		return nil, &CookieError{Structure: "header", Expected: headerCookie, Found: string(blk.Cookie[:])}
	}
	if blk.HeaderVersion != FileFormatVersion {
		return nil, &VersionError{Structure: "header", Found: blk.HeaderVersion}
	}
	stored, err := verifyChecksum(buf, headerChecksumOffset, "header")
	if err != nil {
		return nil, err
	}

	if blk.BlockSize < SectorSize || blk.BlockSize&(blk.BlockSize-1) != 0 {
		return nil, fmt.Errorf("block size %d is not a power of two of at least %d", blk.BlockSize, SectorSize)
	}
	if blk.MaxTableEntries > maxTableEntriesCap {
		return nil, fmt.Errorf("max table entries %d exceeds the supported cap %d", blk.MaxTableEntries, maxTableEntriesCap)
	}

	name, err := utf16DecodeName(blk.ParentUnicodeName[:])
	if err != nil {
		return nil, fmt.Errorf("parent name: %w", err)
	}

	parentUID, err := uuid.FromBytes(blk.ParentUniqueID[:])
	if err != nil {
		return nil, fmt.Errorf("parent uuid: %w", err)
	}

	h := &Header{
		TableOffset:     blk.TableOffset,
		MaxTableEntries: blk.MaxTableEntries,
		BlockSize:       blk.BlockSize,
		Checksum:        stored,
		ParentUID:       parentUID,
		ParentTimeStamp: blk.ParentTimeStamp,
		ParentName:      name,
	}

	for i, l := range blk.ParentLocators {
		code := PlatformCode(l.PlatformCode)
		switch code {
		case PlatformCodeNone, PlatformCodeWi2r, PlatformCodeWi2k,
			PlatformCodeW2ru, PlatformCodeW2ku, PlatformCodeMac, PlatformCodeMacX:
		default:
			return nil, &PlatformCodeError{Code: l.PlatformCode}
		}
		h.ParentLocators[i] = ParentLocator{
			PlatformCode:       code,
			PlatformDataSpace:  l.PlatformDataSpace,
			PlatformDataLength: l.PlatformDataLength,
			PlatformDataOffset: l.PlatformDataOffset,
		}
	}

	return h, nil
}
