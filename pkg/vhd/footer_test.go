package vhd

/**
 * SPDX-License-Identifier: Apache-2.0
 * Copyright 2020 vorteil.io Pty Ltd
 */

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func testFooter() *Footer {
	return &Footer{
		Features:           FeatureReserved,
		DataOffset:         512,
		TimeStamp:          vhdTimestamp(time.Date(2020, 6, 1, 0, 0, 0, 0, time.UTC)),
		CreatorApplication: CreatorApplication,
		CreatorVersion:     CreatorVersion,
		CreatorHostOS:      HostOSWindows,
		OriginalSize:       4 << 20,
		CurrentSize:        4 << 20,
		Geometry:           GeometryForSectors(8192),
		DiskType:           DiskTypeDynamic,
		UID:                uuid.MustParse("11111111-2222-3333-4444-555555555555"),
	}
}

func TestFooterRoundtrip(t *testing.T) {

	f := testFooter()
	buf := make([]byte, 512)
	err := f.Marshal(buf)
	assert.NoError(t, err)

	g, err := UnmarshalFooter(buf)
	assert.NoError(t, err)
	assert.Equal(t, f, g)

	// re-marshalling a parsed footer reproduces the input bytes
	buf2 := make([]byte, 512)
	err = g.Marshal(buf2)
	assert.NoError(t, err)
	assert.Equal(t, buf, buf2)
}

func TestFooterChecksumTamper(t *testing.T) {

	f := testFooter()
	buf := make([]byte, 512)
	assert.NoError(t, f.Marshal(buf))

	buf[40] ^= 0x10
	_, err := UnmarshalFooter(buf)
	assert.Error(t, err)
	cerr, ok := err.(*ChecksumError)
	assert.True(t, ok)
	assert.Equal(t, "footer", cerr.Structure)
	assert.NotEqual(t, cerr.Expected, cerr.Actual)
}

func TestFooterBadCookie(t *testing.T) {

	f := testFooter()
	buf := make([]byte, 512)
	assert.NoError(t, f.Marshal(buf))

	copy(buf, "conectiy")
	_, err := UnmarshalFooter(buf)
	assert.Error(t, err)
	_, ok := err.(*CookieError)
	assert.True(t, ok)
}

func TestFooterBadVersion(t *testing.T) {

	f := testFooter()
	buf := make([]byte, 512)
	assert.NoError(t, f.Marshal(buf))

	w32(buf, 12, 0x00020000)
	_, err := UnmarshalFooter(buf)
	assert.Error(t, err)
	_, ok := err.(*VersionError)
	assert.True(t, ok)
}

func TestFooterUnknownDiskType(t *testing.T) {

	f := testFooter()
	f.DiskType = DiskType(7)
	buf := make([]byte, 512)
	assert.NoError(t, f.Marshal(buf))

	_, err := UnmarshalFooter(buf)
	assert.Error(t, err)
	_, ok := err.(*UnsupportedDiskTypeError)
	assert.True(t, ok)
}

func TestFooterTime(t *testing.T) {

	f := testFooter()
	assert.Equal(t, time.Date(2020, 6, 1, 0, 0, 0, 0, time.UTC), f.Time())
	assert.Equal(t, uint32(0), vhdTimestamp(time.Date(1999, 1, 1, 0, 0, 0, 0, time.UTC)))
}
