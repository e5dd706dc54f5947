package vhd

/**
 * SPDX-License-Identifier: Apache-2.0
 * Copyright 2020 vorteil.io Pty Ltd
 */

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// DiskType identifies one of the three VHD variants.
type DiskType uint32

// Disk types.
const (
	DiskTypeFixed        DiskType = 2
	DiskTypeDynamic      DiskType = 3
	DiskTypeDifferencing DiskType = 4
)

func (t DiskType) String() string {
	switch t {
	case DiskTypeFixed:
		return "fixed"
	case DiskTypeDynamic:
		return "dynamic"
	case DiskTypeDifferencing:
		return "differencing"
	default:
		return fmt.Sprintf("unknown(%d)", uint32(t))
	}
}

// Features is the footer features bitmap.
type Features uint32

// Feature bits. The reserved bit is always set on disk.
const (
	FeatureTemporary Features = 1 << 0
	FeatureReserved  Features = 1 << 1
)

// HostOS identifies the operating system of the creator application.
type HostOS uint32

// Creator host operating systems.
const (
	HostOSWindows   HostOS = 0x5769326B // "Wi2k"
	HostOSMacintosh HostOS = 0x4D616320 // "Mac "
)

func (os HostOS) String() string {
	switch os {
	case HostOSWindows:
		return "windows"
	case HostOSMacintosh:
		return "macintosh"
	default:
		return "other"
	}
}

// Epoch is the zero instant of VHD timestamps.
var Epoch = time.Date(2000, time.January, 1, 0, 0, 0, 0, time.UTC)

func vhdTimestamp(t time.Time) uint32 {
	d := t.Sub(Epoch)
	if d < 0 {
		return 0
	}
	return uint32(d / time.Second)
}

// Footer is the 512-byte structure found at the end of every VHD, and also
// at the start of dynamic and differencing files.
type Footer struct {
	Features           Features
	DataOffset         uint64
	TimeStamp          uint32
	CreatorApplication string
	CreatorVersion     uint32
	CreatorHostOS      HostOS
	OriginalSize       uint64
	CurrentSize        uint64
	Geometry           Geometry
	DiskType           DiskType
	Checksum           uint32
	UID                uuid.UUID
	SavedState         bool
}

// Time converts the footer timestamp to wall-clock time.
func (f *Footer) Time() time.Time {
	return Epoch.Add(time.Duration(f.TimeStamp) * time.Second)
}

// Marshal serializes the footer into buf, which must hold at least 512
// bytes. The checksum is computed over the serialized bytes and written both
// to buf and back into f.
func (f *Footer) Marshal(buf []byte) error {

	if len(buf) < footerSize {
		return fmt.Errorf("footer buffer too small: %d", len(buf))
	}
	if len(f.CreatorApplication) > 4 {
		return fmt.Errorf("creator application %q longer than four bytes", f.CreatorApplication)
	}

	blk := &footerBlock{
		Features:          uint32(f.Features | FeatureReserved),
		FileFormatVersion: FileFormatVersion,
		DataOffset:        f.DataOffset,
		TimeStamp:         f.TimeStamp,
		CreatorVersion:    f.CreatorVersion,
		CreatorHostOS:     uint32(f.CreatorHostOS),
		OriginalSize:      f.OriginalSize,
		CurrentSize:       f.CurrentSize,
		DiskGeometry:      f.Geometry.encode(),
		DiskType:          uint32(f.DiskType),
	}
	copy(blk.UniqueID[:], f.UID[:])
	copy(blk.Cookie[:], footerCookie)
	copy(blk.CreatorApplication[:], f.CreatorApplication)
	if f.SavedState {
		blk.SavedState = 1
	}

	w := bytes.NewBuffer(buf[:0])
	err := binary.Write(w, binary.BigEndian, blk)
	if err != nil {
		return err
	}

	f.Checksum = checksum(buf[:footerSize])
	w32(buf, footerChecksumOffset, f.Checksum)
	return nil
}

// UnmarshalFooter validates and parses a 512-byte footer.
func UnmarshalFooter(buf []byte) (*Footer, error) {

	if len(buf) < footerSize {
		return nil, fmt.Errorf("footer buffer too small: %d", len(buf))
	}
	buf = buf[:footerSize]

	blk := new(footerBlock)
	err := binary.Read(bytes.NewReader(buf), binary.BigEndian, blk)
	if err != nil {
		return nil, err
	}

	if string(blk.Cookie[:]) != footerCookie {
		return nil, &CookieError{Structure: "footer", Expected: footerCookie, Found: string(blk.Cookie[:])}
	}
	if blk.FileFormatVersion != FileFormatVersion {
		return nil, &VersionError{Structure: "footer", Found: blk.FileFormatVersion}
	}
	stored, err := verifyChecksum(buf, footerChecksumOffset, "footer")
	if err != nil {
		return nil, err
	}

	t := DiskType(blk.DiskType)
	switch t {
	case DiskTypeFixed, DiskTypeDynamic, DiskTypeDifferencing:
	default:
		return nil, &UnsupportedDiskTypeError{Type: t}
	}

	uid, err := uuid.FromBytes(blk.UniqueID[:])
	if err != nil {
		return nil, fmt.Errorf("footer uuid: %w", err)
	}

	return &Footer{
		Features:           Features(blk.Features),
		DataOffset:         blk.DataOffset,
		TimeStamp:          blk.TimeStamp,
		CreatorApplication: strings.TrimRight(string(blk.CreatorApplication[:]), "\x00"),
		CreatorVersion:     blk.CreatorVersion,
		CreatorHostOS:      HostOS(blk.CreatorHostOS),
		OriginalSize:       blk.OriginalSize,
		CurrentSize:        blk.CurrentSize,
		Geometry:           decodeGeometry(blk.DiskGeometry),
		DiskType:           t,
		Checksum:           stored,
		UID:                uid,
		SavedState:         blk.SavedState != 0,
	}, nil
}
