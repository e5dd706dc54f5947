package vhd

import "encoding/binary"

// On-disk layouts. All integers are big-endian.

type footerBlock struct { // 512 bytes
	Cookie             [8]byte
	Features           uint32
	FileFormatVersion  uint32
	DataOffset         uint64
	TimeStamp          uint32
	CreatorApplication [4]byte
	CreatorVersion     uint32
	CreatorHostOS      uint32
	OriginalSize       uint64
	CurrentSize        uint64
	DiskGeometry       uint32
	DiskType           uint32
	Checksum           uint32
	UniqueID           [16]byte
	SavedState         byte
	Reserved           [427]byte
}

type locatorBlock struct { // 24 bytes
	PlatformCode       uint32
	PlatformDataSpace  uint32
	PlatformDataLength uint32
	Reserved           uint32
	PlatformDataOffset uint64
}

type headerBlock struct { // 1024 bytes
	Cookie            [8]byte
	DataOffset        uint64
	TableOffset       uint64
	HeaderVersion     uint32
	MaxTableEntries   uint32
	BlockSize         uint32
	Checksum          uint32
	ParentUniqueID    [16]byte
	ParentTimeStamp   uint32
	Reserved          [4]byte
	ParentUnicodeName [512]byte
	ParentLocators    [8]locatorBlock
	Reserved2         [256]byte
}

type batmapBlock struct { // header occupies one sector on disk
	Cookie        [8]byte
	BatmapOffset  uint64
	BatmapSize    uint32 // sectors
	BatmapVersion uint32
	Checksum      uint32
}

const (
	// SectorSize is the atomic unit of VHD I/O.
	SectorSize = 512

	// SectorShift converts between bytes and sectors.
	SectorShift = 9

	footerCookie = "conectix"
	headerCookie = "cxsparse"
	batmapCookie = "tdbatmap"

	// FileFormatVersion is the only footer/header version in the wild.
	FileFormatVersion = uint32(0x00010000)

	batmapVersion = uint32(0x00010002) // 1.2

	footerSize           = 512
	headerSize           = 1024
	footerChecksumOffset = 64
	headerChecksumOffset = 36

	// DefaultBlockSizeSectorsShift yields the canonical 2 MiB block.
	DefaultBlockSizeSectorsShift = 12

	// Entries beyond this would make a BAT slice unreasonably large long
	// before the format's 2040 GB capacity ceiling matters.
	maxTableEntriesCap = 1 << 26
)

func r32(b []byte, i int) uint32    { return binary.BigEndian.Uint32(b[i:]) }
func r64(b []byte, i int) uint64    { return binary.BigEndian.Uint64(b[i:]) }
func w32(b []byte, i int, v uint32) { binary.BigEndian.PutUint32(b[i:], v) }
func w64(b []byte, i int, v uint64) { binary.BigEndian.PutUint64(b[i:], v) }

func roundUpSector(n int64) int64 {
	return (n + SectorSize - 1) / SectorSize * SectorSize
}
