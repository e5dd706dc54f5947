package vstream

/**
 * SPDX-License-Identifier: Apache-2.0
 * Copyright 2020 vorteil.io Pty Ltd
 */

import (
	"fmt"
	"io"

	"github.com/vorteil/vhdkit/pkg/vhd"
	"github.com/vorteil/vhdkit/pkg/vio"
)

// Options customizes the VHD-format stream generators.
type Options struct {
	// From emits a delta against an ancestor in the disk's chain: the
	// resulting image is a differencing disk over that ancestor.
	From *vhd.VHD

	// EmitBATmap includes a batmap in the emitted image.
	EmitBATmap bool
}

// vhdStream produces a complete, densely packed VHD file: metadata up
// front, then every included block (full bitmap plus content), then the
// trailing footer.
type vhdStream struct {
	vhd     *vhd.VHD
	raw     vio.File // non-nil in hybrid mode
	include []bool
	blocks  []int
	meta    []Element
	bitmap  []byte
	trailer []byte
	size    Size

	metaIdx       int
	blockIdx      int
	sectorInBlock int64 // -1 while the block's bitmap is pending
	max           int64
	shift         uint
	done          bool
}

// VHD streams a disk as a valid VHD file, with allocated blocks repacked
// contiguously after the table. With Options.From the output is a
// differencing image holding only the blocks touched since that ancestor.
func VHD(v *vhd.VHD, opts *Options) (Stream, error) {
	return newVHDStream(v, nil, opts)
}

// Hybrid is VHD for callers that already hold a fully expanded raw image of
// the disk: each included block becomes a single Copy against the raw file
// instead of a sector-by-sector walk of the chain.
func Hybrid(raw vio.File, v *vhd.VHD, opts *Options) (Stream, error) {
	return newVHDStream(v, raw, opts)
}

func newVHDStream(v *vhd.VHD, raw vio.File, opts *Options) (*vhdStream, error) {

	if v.Header == nil {
		return nil, &vhd.UnsupportedDiskTypeError{Type: v.Footer.DiskType, Op: "stream"}
	}
	if opts == nil {
		opts = &Options{}
	}

	include, err := includedBlocks(v, opts.From)
	if err != nil {
		return nil, err
	}
	var blocks []int
	for i, in := range include {
		if in {
			blocks = append(blocks, i)
		}
	}

	s := &vhdStream{
		vhd:           v,
		raw:           raw,
		include:       include,
		blocks:        blocks,
		max:           v.MaxSector(),
		shift:         v.Header.BlockSizeSectorsShift(),
		sectorInBlock: -1,
	}

	footer := *v.Footer
	header := vhd.Header{
		TableOffset:     2048,
		MaxTableEntries: v.Header.MaxTableEntries,
		BlockSize:       v.Header.BlockSize,
	}
	footer.DataOffset = 512

	pad := make([]byte, SectorSize)
	if opts.From == nil {
		footer.DiskType = vhd.DiskTypeDynamic
	} else {
		footer.DiskType = vhd.DiskTypeDifferencing
		err = deltaParentFields(v, opts.From, &header, pad)
		if err != nil {
			return nil, err
		}
	}

	// Repack the allocated blocks contiguously after the metadata.
	bitmapSectors := v.Header.BitmapSizeSectors()
	blockSectors := v.Header.BlockSizeSectors()
	batPadded := header.BATPaddedBytes()

	var batmap *vhd.BATmap
	var batmapBytes int64
	if opts.EmitBATmap {
		batmap = vhd.NewBATmap(int(header.MaxTableEntries), uint64(2048+batPadded+SectorSize))
		batmapBytes = SectorSize + int64(len(batmap.Map))
	}

	bat := vhd.NewBAT(int(header.MaxTableEntries))
	cursor := (2048 + batPadded + batmapBytes) / SectorSize
	for _, i := range blocks {
		bat.Set(i, uint32(cursor))
		cursor += bitmapSectors + blockSectors
		if batmap != nil {
			batmap.Set(i)
		}
	}

	// Marshal the metadata. The head and trailing footers are identical.
	fbuf := make([]byte, 512)
	err = footer.Marshal(fbuf)
	if err != nil {
		return nil, err
	}
	hbuf := make([]byte, 1024)
	err = header.Marshal(hbuf)
	if err != nil {
		return nil, err
	}

	s.meta = []Element{
		Sectors{Data: fbuf},
		Sectors{Data: hbuf},
		Sectors{Data: pad},
		Sectors{Data: bat.Marshal()},
	}
	if batmap != nil {
		mbuf := make([]byte, SectorSize)
		err = batmap.MarshalHeader(mbuf)
		if err != nil {
			return nil, err
		}
		s.meta = append(s.meta, Sectors{Data: mbuf}, Sectors{Data: batmap.Map})
	}
	s.trailer = fbuf

	// Every emitted block claims all of its sectors.
	s.bitmap = make([]byte, v.Header.BitmapSizeBytes())
	for i := int64(0); i < blockSectors; i++ {
		vhd.Bitmap(s.bitmap).Set(i)
	}

	err = s.account()
	if err != nil {
		return nil, err
	}
	return s, nil
}

// deltaParentFields points the emitted header at the delta base, reusing
// the parent timestamp recorded by the layer that sits directly above it in
// the chain. The locator payload lands in the pad sector at offset 1536.
func deltaParentFields(v *vhd.VHD, from *vhd.VHD, header *vhd.Header, pad []byte) error {

	var layer *vhd.VHD
	for _, x := range v.Chain() {
		if x.Parent != nil && x.Parent.Filename == from.Filename {
			layer = x
			break
		}
	}
	if layer == nil {
		return fmt.Errorf("%s is not an ancestor of %s", from.Filename, v.Filename)
	}

	uri := "file://./" + from.Filename
	if len(uri) > SectorSize {
		return fmt.Errorf("parent uri %q too long for a locator sector", uri)
	}

	header.ParentUID = from.Footer.UID
	header.ParentTimeStamp = layer.Header.ParentTimeStamp
	header.ParentName = from.Filename
	header.ParentLocators[0] = vhd.ParentLocator{
		PlatformCode:       vhd.PlatformCodeMacX,
		PlatformDataSpace:  1,
		PlatformDataLength: uint32(len(uri)),
		PlatformDataOffset: 1536,
	}
	copy(pad, uri)
	return nil
}

func (s *vhdStream) account() error {

	for _, e := range s.meta {
		s.size.Metadata += int64(len(e.(Sectors).Data))
	}
	s.size.Metadata += int64(len(s.bitmap)) * int64(len(s.blocks))
	s.size.Metadata += int64(len(s.trailer))
	s.size.Total = int64(s.vhd.Footer.CurrentSize)

	if s.raw != nil {
		for _, i := range s.blocks {
			n, pad := s.blockSpan(int64(i))
			s.size.Copy += n * SectorSize
			s.size.Empty += pad * SectorSize
		}
		return nil
	}

	data, err := accountBlocks(s.vhd, s.include, s.max, false)
	if err != nil {
		return err
	}
	s.size.Copy = data.Copy
	s.size.Empty = data.Empty
	for _, i := range s.blocks {
		_, pad := s.blockSpan(int64(i))
		s.size.Empty += pad * SectorSize
	}
	return nil
}

// blockSpan returns how many of a block's sectors are inside the disk and
// how many are padding past its end.
func (s *vhdStream) blockSpan(block int64) (n, pad int64) {
	blockSectors := s.vhd.Header.BlockSizeSectors()
	start := block << s.shift
	n = blockSectors
	if start+n > s.max {
		n = s.max - start
	}
	return n, blockSectors - n
}

func (s *vhdStream) Size() Size {
	return s.size
}

func (s *vhdStream) Next() (Element, error) {

	if s.metaIdx < len(s.meta) {
		e := s.meta[s.metaIdx]
		s.metaIdx++
		return e, nil
	}

	for s.blockIdx < len(s.blocks) {
		block := int64(s.blocks[s.blockIdx])
		n, pad := s.blockSpan(block)

		if s.sectorInBlock < 0 {
			s.sectorInBlock = 0
			return Sectors{Data: s.bitmap}, nil
		}

		if s.sectorInBlock < n {
			if s.raw != nil {
				s.sectorInBlock = n
				return Copy{File: s.raw, Sector: block << s.shift, Count: n}, nil
			}
			loc, err := s.vhd.Locate(block<<s.shift + s.sectorInBlock)
			if err != nil {
				return nil, err
			}
			s.sectorInBlock++
			if loc == nil {
				return Empty{Count: 1}, nil
			}
			return Copy{File: loc.VHD.File(), Sector: loc.Sector, Count: 1}, nil
		}

		if s.sectorInBlock < n+pad {
			s.sectorInBlock = n + pad
			return Empty{Count: pad}, nil
		}

		s.blockIdx++
		s.sectorInBlock = -1
	}

	if !s.done {
		s.done = true
		return Sectors{Data: s.trailer}, nil
	}

	return nil, io.EOF
}
