package vstream

/**
 * SPDX-License-Identifier: Apache-2.0
 * Copyright 2020 vorteil.io Pty Ltd
 */

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/vorteil/vhdkit/pkg/vhd"
	"github.com/vorteil/vhdkit/pkg/vio"
)

var testFS = vio.OSFS{}

var (
	sectorAA = bytes.Repeat([]byte{0xAA}, 512)
	sector55 = bytes.Repeat([]byte{0x55}, 512)
)

// buildChain creates a 4 MiB parent holding 0xAA at sector 0 and a child
// holding 0x55 at sector 1.
func buildChain(t *testing.T) (*vhd.VHD, *vhd.VHD) {
	t.Helper()

	dir := t.TempDir()
	parent, err := vhd.CreateDynamic(testFS, filepath.Join(dir, "parent.vhd"), 4<<20, nil)
	assert.NoError(t, err)
	assert.NoError(t, parent.WriteSector(0, sectorAA))

	child, err := vhd.CreateDifference(testFS, filepath.Join(dir, "child.vhd"), parent, nil)
	assert.NoError(t, err)
	assert.NoError(t, child.WriteSector(1, sector55))

	t.Cleanup(func() {
		_ = child.Close()
		_ = parent.Close()
	})
	return parent, child
}

func collect(t *testing.T, s Stream) []Element {
	t.Helper()
	var elems []Element
	for {
		e, err := s.Next()
		if err == io.EOF {
			return elems
		}
		assert.NoError(t, err)
		elems = append(elems, e)
	}
}

func serializeToBuffer(t *testing.T, s Stream) []byte {
	t.Helper()
	buf := new(bytes.Buffer)
	assert.NoError(t, Serialize(buf, s))
	return buf.Bytes()
}

func TestRawStreamElements(t *testing.T) {

	parent, child := buildChain(t)

	s, err := Raw(child, nil)
	assert.NoError(t, err)

	size := s.Size()
	assert.Equal(t, int64(4<<20), size.Total)
	assert.Equal(t, int64(1024), size.Copy)
	assert.Equal(t, int64(4<<20)-1024, size.Empty)
	assert.Equal(t, int64(0), size.Metadata)

	elems := collect(t, Coalesce(s))
	assert.Len(t, elems, 3)

	// sector 0 is served by the parent, sector 1 by the child; the copies
	// reference different handles so they survive coalescing separately
	c0, ok := elems[0].(Copy)
	assert.True(t, ok)
	assert.Equal(t, parent.Filename, c0.File.Name())
	assert.Equal(t, int64(6), c0.Sector)
	assert.Equal(t, int64(1), c0.Count)

	c1, ok := elems[1].(Copy)
	assert.True(t, ok)
	assert.Equal(t, child.Filename, c1.File.Name())
	assert.Equal(t, int64(7), c1.Sector)
	assert.Equal(t, int64(1), c1.Count)

	e, ok := elems[2].(Empty)
	assert.True(t, ok)
	assert.Equal(t, int64(8190), e.Count)
}

func TestRawStreamContents(t *testing.T) {

	_, child := buildChain(t)

	s, err := Raw(child, nil)
	assert.NoError(t, err)
	raw := serializeToBuffer(t, Coalesce(s))
	assert.Len(t, raw, 4<<20)

	assert.Equal(t, sectorAA, raw[0:512])
	assert.Equal(t, sector55, raw[512:1024])

	// everything else agrees with sector-by-sector reads
	for _, sector := range []int64{2, 4095, 4096, 8191} {
		data, err := child.ReadSector(sector)
		assert.NoError(t, err)
		want := make([]byte, 512)
		if data != nil {
			want = data
		}
		assert.Equal(t, want, raw[sector*512:(sector+1)*512], "sector %d", sector)
	}
}

func TestVHDStreamRoundtrip(t *testing.T) {

	_, child := buildChain(t)

	s, err := VHD(child, nil)
	assert.NoError(t, err)

	size := s.Size()
	assert.Equal(t, int64(4<<20), size.Total)
	assert.Equal(t, int64(3584), size.Metadata) // footer+header+pad+bat+bitmap+footer
	assert.Equal(t, int64(1024), size.Copy)
	assert.Equal(t, int64(4094*512), size.Empty)

	out := filepath.Join(t.TempDir(), "packed.vhd")
	f, err := os.Create(out)
	assert.NoError(t, err)
	assert.NoError(t, Serialize(f, Coalesce(s)))
	assert.NoError(t, f.Close())

	fi, err := os.Stat(out)
	assert.NoError(t, err)
	assert.Equal(t, size.Metadata+size.Empty+size.Copy, fi.Size())

	// the emitted image collapses the chain into a dynamic disk
	v, err := vhd.Open(testFS, out)
	assert.NoError(t, err)
	defer v.Close()

	assert.Equal(t, vhd.DiskTypeDynamic, v.Footer.DiskType)
	assert.Equal(t, child.Footer.UID, v.Footer.UID)
	assert.Equal(t, uint32(5), v.BAT.Get(0))
	assert.Equal(t, vhd.BATUnused, v.BAT.Get(1))

	data, err := v.ReadSector(0)
	assert.NoError(t, err)
	assert.Equal(t, sectorAA, data)

	data, err = v.ReadSector(1)
	assert.NoError(t, err)
	assert.Equal(t, sector55, data)

	// the emitted bitmap claims the whole block, so in-block holes read as
	// explicit zeroes rather than absent sectors
	data, err = v.ReadSector(2)
	assert.NoError(t, err)
	assert.Equal(t, make([]byte, 512), data)

	data, err = v.ReadSector(4096)
	assert.NoError(t, err)
	assert.Nil(t, data)

	assert.NoError(t, v.Check())
}

func TestVHDStreamDelta(t *testing.T) {

	parent, child := buildChain(t)

	s, err := VHD(child, &Options{From: child.Parent})
	assert.NoError(t, err)

	out := filepath.Join(filepath.Dir(child.Filename), "delta.vhd")
	f, err := os.Create(out)
	assert.NoError(t, err)
	assert.NoError(t, Serialize(f, Coalesce(s)))
	assert.NoError(t, f.Close())

	v, err := vhd.Open(testFS, out)
	assert.NoError(t, err)
	defer v.Close()

	// only block 0 was touched since the parent
	assert.Equal(t, vhd.DiskTypeDifferencing, v.Footer.DiskType)
	assert.Equal(t, parent.Footer.UID, v.Header.ParentUID)
	assert.NotEqual(t, vhd.BATUnused, v.BAT.Get(0))
	assert.Equal(t, vhd.BATUnused, v.BAT.Get(1))

	// replaying over the parent reproduces the child's view
	for sector := int64(0); sector < 8192; sector += 512 {
		want, err := child.ReadSector(sector)
		assert.NoError(t, err)
		got, err := v.ReadSector(sector)
		assert.NoError(t, err)
		if want == nil {
			want = make([]byte, 512)
		}
		if got == nil {
			got = make([]byte, 512)
		}
		assert.Equal(t, want, got, "sector %d", sector)
	}

	data, err := v.ReadSector(1)
	assert.NoError(t, err)
	assert.Equal(t, sector55, data)
}

func TestVHDStreamNotAncestor(t *testing.T) {

	_, child := buildChain(t)
	stranger, err := vhd.CreateDynamic(testFS, filepath.Join(t.TempDir(), "other.vhd"), 4<<20, nil)
	assert.NoError(t, err)
	defer stranger.Close()

	_, err = VHD(child, &Options{From: stranger})
	assert.Error(t, err)
}

func TestHybridStream(t *testing.T) {

	_, child := buildChain(t)
	dir := t.TempDir()

	// pre-expand the raw image
	rawPath := filepath.Join(dir, "disk.raw")
	rs, err := Raw(child, nil)
	assert.NoError(t, err)
	f, err := os.Create(rawPath)
	assert.NoError(t, err)
	assert.NoError(t, Serialize(f, rs))
	assert.NoError(t, f.Close())

	rawFile, err := testFS.Open(rawPath)
	assert.NoError(t, err)
	defer rawFile.Close()

	s, err := Hybrid(rawFile, child, nil)
	assert.NoError(t, err)
	assert.Equal(t, int64(4096*512), s.Size().Copy)

	out := filepath.Join(dir, "hybrid.vhd")
	f, err = os.Create(out)
	assert.NoError(t, err)
	assert.NoError(t, Serialize(f, s))
	assert.NoError(t, f.Close())

	v, err := vhd.Open(testFS, out)
	assert.NoError(t, err)
	defer v.Close()

	data, err := v.ReadSector(0)
	assert.NoError(t, err)
	assert.Equal(t, sectorAA, data)
	data, err = v.ReadSector(1)
	assert.NoError(t, err)
	assert.Equal(t, sector55, data)
}

func TestVHDStreamBATmap(t *testing.T) {

	_, child := buildChain(t)

	s, err := VHD(child, &Options{EmitBATmap: true})
	assert.NoError(t, err)

	out := filepath.Join(t.TempDir(), "batmap.vhd")
	f, err := os.Create(out)
	assert.NoError(t, err)
	assert.NoError(t, Serialize(f, s))
	assert.NoError(t, f.Close())

	v, err := vhd.Open(testFS, out)
	assert.NoError(t, err)
	defer v.Close()

	assert.NotNil(t, v.BATmap)
	assert.True(t, v.BATmap.Get(0))
	assert.False(t, v.BATmap.Get(1))

	data, err := v.ReadSector(1)
	assert.NoError(t, err)
	assert.Equal(t, sector55, data)
	assert.NoError(t, v.Check())
}
