package vstream

/**
 * SPDX-License-Identifier: Apache-2.0
 * Copyright 2020 vorteil.io Pty Ltd
 */

import (
	"bytes"
	"io/ioutil"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExpandEmpty(t *testing.T) {

	build := func() *sliceStream {
		return &sliceStream{
			elems: []Element{Empty{Count: 5000}},
			size:  Size{Total: 5000 * 512, Empty: 5000 * 512},
		}
	}

	s := ExpandEmpty(build())

	size := s.Size()
	assert.Equal(t, int64(0), size.Empty)
	assert.Equal(t, int64(5000*512), size.Metadata)

	elems := collect(t, s)
	assert.Len(t, elems, 2) // 4096 sectors, then the remaining 904

	var total int64
	for _, e := range elems {
		sec, ok := e.(Sectors)
		assert.True(t, ok)
		assert.Equal(t, make([]byte, len(sec.Data)), sec.Data)
		total += e.SectorCount()
	}
	assert.Equal(t, int64(5000), total)

	// byte-for-byte identical serialization
	assert.Equal(t,
		serializeToBuffer(t, build()),
		serializeToBuffer(t, ExpandEmpty(build())))
}

func TestExpandCopy(t *testing.T) {

	dir := t.TempDir()
	path := filepath.Join(dir, "blob")

	content := bytes.Repeat([]byte{0xC3, 0x96}, (4097*512)/2)
	assert.NoError(t, ioutil.WriteFile(path, content, 0644))

	f, err := testFS.Open(path)
	assert.NoError(t, err)
	defer f.Close()

	build := func() *sliceStream {
		return &sliceStream{
			elems: []Element{Copy{File: f, Sector: 0, Count: 4097}},
			size:  Size{Total: 4097 * 512, Copy: 4097 * 512},
		}
	}

	s := ExpandCopy(build())

	size := s.Size()
	assert.Equal(t, int64(0), size.Copy)
	assert.Equal(t, int64(4097*512), size.Metadata)

	elems := collect(t, s)
	assert.Len(t, elems, 2) // one 2 MiB window plus one trailing sector

	var got []byte
	for _, e := range elems {
		sec, ok := e.(Sectors)
		assert.True(t, ok)
		got = append(got, sec.Data...)
	}
	assert.Equal(t, content, got)

	assert.Equal(t,
		serializeToBuffer(t, build()),
		serializeToBuffer(t, ExpandCopy(build())))
}
