package vhd

/**
 * SPDX-License-Identifier: Apache-2.0
 * Copyright 2020 vorteil.io Pty Ltd
 */

import (
	"fmt"
	"io"

	"github.com/vorteil/vhdkit/pkg/vio"
)

const zeroChunkSize = 0x200000

// WriteSector writes 512 bytes to a virtual sector, allocating the
// containing block on first touch. The write order keeps the file a valid
// image at every step: zeroed block region, then BAT, then trailing footer,
// then payload, then bitmap.
func (v *VHD) WriteSector(sector int64, data []byte) error {

	if len(data) != SectorSize {
		return fmt.Errorf("sector payload must be %d bytes, got %d", SectorSize, len(data))
	}
	if sector < 0 || sector >= v.MaxSector() {
		return &InvalidSectorError{Sector: sector, Max: v.MaxSector()}
	}
	switch v.Footer.DiskType {
	case DiskTypeDynamic, DiskTypeDifferencing:
	default:
		return &UnsupportedDiskTypeError{Type: v.Footer.DiskType, Op: "write"}
	}

	shift := v.Header.BlockSizeSectorsShift()
	block := sector >> shift
	inBlock := sector - block<<shift

	if v.BAT.Get(int(block)) == BATUnused {
		err := v.allocateBlock(int(block))
		if err != nil {
			return err
		}
	}

	phys := int64(v.BAT.Get(int(block))) + v.Header.BitmapSizeSectors() + inBlock
	err := vio.ReallyWrite(v.file, phys*SectorSize, data)
	if err != nil {
		return err
	}

	return v.markSector(block, inBlock)
}

// allocateBlock claims the next free region for a block: a zeroed bitmap
// and data area, a rewritten BAT, and a trailing footer pushed past the new
// end so a truncation mid-write still leaves a self-describing file.
func (v *VHD) allocateBlock(block int) error {

	next := (v.topUnusedOffset() + SectorSize - 1) >> SectorShift

	v.BAT.Set(block, uint32(next))

	err := v.zeroFill(next*SectorSize, v.Header.BitmapSizeBytes()+int64(v.Header.BlockSize))
	if err != nil {
		return err
	}

	err = v.writeBAT()
	if err != nil {
		return err
	}

	return v.writeTrailingFooter()
}

// markSector sets a sector's bit in its block bitmap and writes back the one
// bitmap sector containing it, if the bit was not already set.
func (v *VHD) markSector(block, inBlock int64) error {

	bitmap, err := v.blockBitmap(block)
	if err != nil {
		return err
	}
	if !bitmap.Set(inBlock) {
		return nil
	}

	si := sectorOfBit(inBlock)
	off := (int64(v.BAT.Get(int(block))) + si) * SectorSize
	return vio.ReallyWrite(v.file, off, bitmap[si*SectorSize:(si+1)*SectorSize])
}

func (v *VHD) writeBAT() error {
	return vio.ReallyWrite(v.file, int64(v.Header.TableOffset), v.BAT.Marshal())
}

func (v *VHD) writeTrailingFooter() error {
	buf := make([]byte, footerSize)
	err := v.Footer.Marshal(buf)
	if err != nil {
		return err
	}
	return vio.ReallyWrite(v.file, roundUpSector(v.topUnusedOffset()), buf)
}

// zeroFill writes length zero bytes at off: whole 2 MiB chunks first, then
// the trailing sectors one at a time.
func (v *VHD) zeroFill(off int64, length int64) error {

	chunk := make([]byte, zeroChunkSize)
	for length >= zeroChunkSize {
		err := vio.ReallyWrite(v.file, off, chunk)
		if err != nil {
			return err
		}
		off += zeroChunkSize
		length -= zeroChunkSize
	}
	for length > 0 {
		n := int64(SectorSize)
		if n > length {
			n = length
		}
		err := vio.ReallyWrite(v.file, off, chunk[:n])
		if err != nil {
			return err
		}
		off += n
		length -= n
	}
	return nil
}

// writeUnaligned patches an arbitrary byte range by read-modify-writing the
// sectors it touches, so backends that insist on whole-sector transfers stay
// happy. Sectors beyond the current end of file start out zeroed.
func (v *VHD) writeUnaligned(off int64, data []byte) error {

	start := off >> SectorShift << SectorShift
	end := roundUpSector(off + int64(len(data)))

	buf := make([]byte, end-start)
	k, err := v.file.ReadAt(buf, start)
	if err != nil && err != io.EOF {
		return err
	}
	for i := k; i < len(buf); i++ {
		buf[i] = 0
	}

	copy(buf[off-start:], data)
	return vio.ReallyWrite(v.file, start, buf)
}
