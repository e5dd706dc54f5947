package vhd

/**
 * SPDX-License-Identifier: Apache-2.0
 * Copyright 2020 vorteil.io Pty Ltd
 */

import (
	"encoding/binary"
	"fmt"
	"path/filepath"
	"strings"
	"unicode/utf16"

	"github.com/google/uuid"
	"github.com/vorteil/vhdkit/pkg/vio"
)

// CreatorApplication is the four-byte tag stamped into footers written by
// this package.
const CreatorApplication = "vkit"

// CreatorVersion is the version stamped alongside CreatorApplication.
const CreatorVersion = uint32(0x00010000)

const (
	headerOffset  = 512
	locatorOffset = 1536
	tableOffset   = 2048
)

// VHD is an open virtual disk: its metadata, its file handle, and (for a
// differencing disk) its recursively opened parent. The parent chain owns
// its own handles; closing a child closes the whole chain.
type VHD struct {
	Filename string
	Footer   *Footer
	Header   *Header
	BAT      *BAT
	BATmap   *BATmap
	Parent   *VHD

	fs   vio.FS
	file vio.File

	// one-entry bitmap memo for sequential access
	cachedBlock  int64
	cachedBitmap Bitmap
}

// File exposes the underlying handle, for stream consumers that read block
// data at positions resolved by Locate.
func (v *VHD) File() vio.File {
	return v.file
}

// Chain returns the disk and its ancestors, child first.
func (v *VHD) Chain() []*VHD {
	var chain []*VHD
	for x := v; x != nil; x = x.Parent {
		chain = append(chain, x)
	}
	return chain
}

// Close releases the disk's handle and then its parent chain.
func (v *VHD) Close() error {
	err := v.file.Close()
	if v.Parent != nil {
		perr := v.Parent.Close()
		if err == nil {
			err = perr
		}
	}
	return err
}

// CreateOptions customizes image creation. The zero value is sensible for
// all fields.
type CreateOptions struct {
	UID                   uuid.UUID // zero means generate a random one
	SavedState            bool
	Features              Features
	BlockSizeSectorsShift uint // zero means the canonical 2 MiB block
}

func (opts *CreateOptions) blockSize() (uint32, error) {
	shift := uint(DefaultBlockSizeSectorsShift)
	if opts != nil && opts.BlockSizeSectorsShift != 0 {
		shift = opts.BlockSizeSectorsShift
	}
	if shift > 22 {
		return 0, fmt.Errorf("block size shift %d out of range", shift)
	}
	return uint32(SectorSize << shift), nil
}

func (opts *CreateOptions) uid() uuid.UUID {
	if opts == nil || opts.UID == uuid.Nil {
		return uuid.New()
	}
	return opts.UID
}

func (opts *CreateOptions) features() Features {
	if opts == nil {
		return 0
	}
	return opts.Features
}

func (opts *CreateOptions) savedState() bool {
	return opts != nil && opts.SavedState
}

// CreateDynamic creates a new dynamic VHD of the given virtual size in
// bytes. The footer is written at offset zero and repeated at the current
// end of data, so the file is a valid (empty) image immediately.
func CreateDynamic(fs vio.FS, path string, size uint64, opts *CreateOptions) (*VHD, error) {

	blockSize, err := opts.blockSize()
	if err != nil {
		return nil, err
	}
	footer, header, err := sparseMetadata(fs, size, blockSize, DiskTypeDynamic, opts)
	if err != nil {
		return nil, err
	}

	file, err := fs.Create(path)
	if err != nil {
		return nil, err
	}

	v := &VHD{
		Filename:    path,
		Footer:      footer,
		Header:      header,
		BAT:         NewBAT(int(header.MaxTableEntries)),
		fs:          fs,
		file:        file,
		cachedBlock: -1,
	}

	err = v.writeMetadata()
	if err != nil {
		_ = file.Close()
		return nil, err
	}
	return v, nil
}

// CreateDifference creates a differencing VHD over parent. The parent's
// handle is not shared: the new disk re-opens the parent file for its own
// chain.
func CreateDifference(fs vio.FS, path string, parent *VHD, opts *CreateOptions) (*VHD, error) {

	if parent.Header == nil {
		return nil, &UnsupportedDiskTypeError{Type: parent.Footer.DiskType, Op: "snapshot"}
	}

	size := parent.Footer.CurrentSize
	blockSize := parent.Header.BlockSize
	footer, header, err := sparseMetadata(fs, size, blockSize, DiskTypeDifferencing, opts)
	if err != nil {
		return nil, err
	}

	modTime, err := fs.ModTime(parent.Filename)
	if err != nil {
		return nil, err
	}

	uri := "file://./" + parent.Filename
	header.ParentUID = parent.Footer.UID
	header.ParentTimeStamp = vhdTimestamp(modTime)
	header.ParentName = parent.Filename
	header.ParentLocators[0] = ParentLocator{
		PlatformCode:       PlatformCodeMacX,
		PlatformDataSpace:  1, // sectors; some producers would write 512
		PlatformDataLength: uint32(len(uri)),
		PlatformDataOffset: locatorOffset,
	}

	file, err := fs.Create(path)
	if err != nil {
		return nil, err
	}

	v := &VHD{
		Filename:    path,
		Footer:      footer,
		Header:      header,
		BAT:         NewBAT(int(header.MaxTableEntries)),
		fs:          fs,
		file:        file,
		cachedBlock: -1,
	}

	err = v.writeMetadata()
	if err == nil {
		err = v.writeUnaligned(locatorOffset, []byte(uri))
	}
	if err != nil {
		_ = file.Close()
		return nil, err
	}

	v.Parent, err = Open(fs, parent.Filename)
	if err != nil {
		_ = file.Close()
		return nil, err
	}
	return v, nil
}

func sparseMetadata(fs vio.FS, size uint64, blockSize uint32, t DiskType, opts *CreateOptions) (*Footer, *Header, error) {

	if size == 0 || size%SectorSize != 0 {
		return nil, nil, fmt.Errorf("virtual size %d is not a positive multiple of %d", size, SectorSize)
	}

	maxTableEntries := (size + uint64(blockSize) - 1) / uint64(blockSize)
	if maxTableEntries > maxTableEntriesCap {
		return nil, nil, fmt.Errorf("virtual size %d needs %d table entries, over the supported cap %d", size, maxTableEntries, maxTableEntriesCap)
	}

	footer := &Footer{
		Features:           opts.features(),
		DataOffset:         headerOffset,
		TimeStamp:          vhdTimestamp(fs.Now()),
		CreatorApplication: CreatorApplication,
		CreatorVersion:     CreatorVersion,
		CreatorHostOS:      HostOSWindows,
		OriginalSize:       size,
		CurrentSize:        size,
		Geometry:           GeometryForSectors(int64(size / SectorSize)),
		DiskType:           t,
		UID:                opts.uid(),
		SavedState:         opts.savedState(),
	}

	header := &Header{
		TableOffset:     tableOffset,
		MaxTableEntries: uint32(maxTableEntries),
		BlockSize:       blockSize,
	}

	return footer, header, nil
}

// writeMetadata lays out a fresh sparse file: head footer, header, unused
// BAT, trailing footer.
func (v *VHD) writeMetadata() error {

	buf := make([]byte, headerSize)

	err := v.Footer.Marshal(buf[:footerSize])
	if err != nil {
		return err
	}
	err = vio.ReallyWrite(v.file, 0, buf[:footerSize])
	if err != nil {
		return err
	}

	err = v.Header.Marshal(buf)
	if err != nil {
		return err
	}
	err = vio.ReallyWrite(v.file, headerOffset, buf)
	if err != nil {
		return err
	}

	err = v.writeBAT()
	if err != nil {
		return err
	}

	return v.writeTrailingFooter()
}

// topUnusedOffset returns the first byte past the end of the last allocated
// block, which is where the trailing footer belongs and where the next block
// will be allocated.
func (v *VHD) topUnusedOffset() int64 {
	if h := v.BAT.Highest(); h != 0 {
		return int64(h)*SectorSize + v.Header.BitmapSizeBytes() + int64(v.Header.BlockSize)
	}
	if v.BATmap != nil {
		return int64(v.BATmap.Offset) + int64(v.BATmap.SizeSectors)*SectorSize
	}
	return int64(v.Header.TableOffset) + 4*int64(v.Header.MaxTableEntries)
}

// Open opens a VHD file, recursively resolving and opening the parents of
// differencing disks. Relative parent paths are tried against the child's
// directory and then each entry of the search path.
func Open(fs vio.FS, path string, search ...string) (*VHD, error) {

	size, err := fs.Size(path)
	if err != nil {
		return nil, err
	}

	file, err := fs.Open(path)
	if err != nil {
		return nil, err
	}

	v, err := open(fs, file, path, size, search)
	if err != nil {
		_ = file.Close()
		return nil, err
	}
	return v, nil
}

func open(fs vio.FS, file vio.File, path string, size int64, search []string) (*VHD, error) {

	if size < footerSize {
		return nil, fmt.Errorf("%s is too small to be a vhd (%d bytes)", path, size)
	}

	buf, err := vio.ReallyRead(file, 0, footerSize)
	if err != nil {
		return nil, err
	}
	footer, ferr := UnmarshalFooter(buf)
	if ferr != nil {
		// A truncated or partially written file may still carry a good
		// trailing footer; a fixed disk has only that one.
		buf, err = vio.ReallyRead(file, size-footerSize, footerSize)
		if err != nil {
			return nil, ferr
		}
		footer, err = UnmarshalFooter(buf)
		if err != nil {
			return nil, ferr
		}
	}

	v := &VHD{
		Filename:    path,
		Footer:      footer,
		fs:          fs,
		file:        file,
		cachedBlock: -1,
	}

	if footer.DiskType == DiskTypeFixed {
		return v, nil
	}

	buf, err = vio.ReallyRead(file, int64(footer.DataOffset), headerSize)
	if err != nil {
		return nil, err
	}
	v.Header, err = UnmarshalHeader(buf)
	if err != nil {
		return nil, err
	}

	if footer.CurrentSize > uint64(v.Header.MaxTableEntries)*uint64(v.Header.BlockSize) {
		return nil, fmt.Errorf("current size %d exceeds the table's capacity %d",
			footer.CurrentSize, uint64(v.Header.MaxTableEntries)*uint64(v.Header.BlockSize))
	}

	buf, err = vio.ReallyRead(file, int64(v.Header.TableOffset), v.Header.BATPaddedBytes())
	if err != nil {
		return nil, err
	}
	v.BAT = UnmarshalBAT(buf, int(v.Header.MaxTableEntries))

	err = v.probeBATmap(size)
	if err != nil {
		return nil, err
	}

	if footer.DiskType == DiskTypeDifferencing {
		v.Parent, err = resolveParent(fs, v, search)
		if err != nil {
			return nil, err
		}
		if v.Parent.Footer.UID != v.Header.ParentUID {
			return nil, fmt.Errorf("parent uuid mismatch: %s expects %s, %s has %s",
				path, v.Header.ParentUID, v.Parent.Filename, v.Parent.Footer.UID)
		}
	}

	return v, nil
}

func (v *VHD) probeBATmap(size int64) error {

	off := int64(v.Header.TableOffset) + v.Header.BATPaddedBytes()
	if off+SectorSize > size {
		return nil
	}

	buf, err := vio.ReallyRead(v.file, off, SectorSize)
	if err != nil {
		return err
	}
	m, err := UnmarshalBATmapHeader(buf)
	if err != nil {
		if _, ok := err.(*CookieError); ok {
			return nil // no batmap
		}
		return err
	}

	payload, err := vio.ReallyRead(v.file, int64(m.Offset), int64(m.SizeSectors)*SectorSize)
	if err != nil {
		return err
	}
	err = m.VerifyPayload(payload)
	if err != nil {
		return err
	}

	v.BATmap = m
	return nil
}

func resolveParent(fs vio.FS, v *VHD, search []string) (*VHD, error) {

	var candidates []string
	for i := range v.Header.ParentLocators {
		l := &v.Header.ParentLocators[i]
		if l.PlatformCode == PlatformCodeNone || l.PlatformDataLength == 0 {
			continue
		}
		data, err := vio.ReallyRead(v.file, int64(l.PlatformDataOffset), int64(l.PlatformDataLength))
		if err != nil {
			return nil, err
		}
		name := decodeLocatorPayload(l.PlatformCode, data)
		if name != "" {
			candidates = append(candidates, name)
		}
	}
	if v.Header.ParentName != "" {
		candidates = append(candidates, v.Header.ParentName)
	}

	dirs := append([]string{filepath.Dir(v.Filename)}, search...)

	for _, name := range candidates {
		var paths []string
		if filepath.IsAbs(name) {
			paths = []string{name}
		} else {
			for _, dir := range dirs {
				paths = append(paths, filepath.Join(dir, name))
			}
		}
		for _, p := range paths {
			ok, err := fs.Exists(p)
			if err != nil {
				return nil, err
			}
			if !ok {
				continue
			}
			return Open(fs, p, search...)
		}
	}

	return nil, &ParentNotFoundError{Child: v.Filename, Candidates: candidates}
}

func decodeLocatorPayload(code PlatformCode, data []byte) string {

	var s string
	switch code {
	case PlatformCodeW2ru, PlatformCodeW2ku:
		var units []uint16
		for i := 0; i+1 < len(data); i += 2 {
			u := binary.LittleEndian.Uint16(data[i:])
			if u == 0 {
				break
			}
			units = append(units, u)
		}
		s = string(utf16.Decode(units))
	default:
		s = strings.TrimRight(string(data), "\x00")
	}

	s = strings.TrimPrefix(s, "file://./")
	return filepath.FromSlash(s)
}
