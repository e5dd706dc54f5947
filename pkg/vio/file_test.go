package vio

/**
 * SPDX-License-Identifier: Apache-2.0
 * Copyright 2020 vorteil.io Pty Ltd
 */

import (
	"bytes"
	"io"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestOSFSRoundtrip(t *testing.T) {

	fs := OSFS{}
	path := filepath.Join(t.TempDir(), "blob")

	ok, err := fs.Exists(path)
	assert.NoError(t, err)
	assert.False(t, ok)

	f, err := fs.Create(path)
	assert.NoError(t, err)

	err = ReallyWrite(f, 1024, []byte("hello"))
	assert.NoError(t, err)

	buf, err := ReallyRead(f, 1024, 5)
	assert.NoError(t, err)
	assert.Equal(t, []byte("hello"), buf)

	// the gap before the write reads back as zeroes
	buf, err = ReallyRead(f, 0, 1024)
	assert.NoError(t, err)
	assert.Equal(t, make([]byte, 1024), buf)

	// reading past the end is a failure, not a short count
	err = ReallyReadInto(f, 1025, make([]byte, 5))
	assert.Error(t, err)

	assert.NoError(t, f.Close())

	ok, err = fs.Exists(path)
	assert.NoError(t, err)
	assert.True(t, ok)

	size, err := fs.Size(path)
	assert.NoError(t, err)
	assert.Equal(t, int64(1029), size)

	_, err = fs.ModTime(path)
	assert.NoError(t, err)
}

func TestWriteSeekerOverPlainWriter(t *testing.T) {

	buf := new(bytes.Buffer)
	ws, err := WriteSeeker(buf)
	assert.NoError(t, err)

	_, err = ws.Write([]byte{1, 2})
	assert.NoError(t, err)

	// forward seeks become zero-fill on a non-seekable target
	_, err = ws.Seek(3, io.SeekCurrent)
	assert.NoError(t, err)

	_, err = ws.Write([]byte{9})
	assert.NoError(t, err)

	assert.Equal(t, []byte{1, 2, 0, 0, 0, 9}, buf.Bytes())

	_, err = ws.Seek(-1, io.SeekCurrent)
	assert.Error(t, err)
}

func TestZeroes(t *testing.T) {

	buf := make([]byte, 700)
	for i := range buf {
		buf[i] = 0xFF
	}
	n, err := Zeroes.Read(buf)
	assert.NoError(t, err)
	assert.Equal(t, 700, n)
	assert.Equal(t, make([]byte, 700), buf)
}
