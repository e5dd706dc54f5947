package vhd

/**
 * SPDX-License-Identifier: Apache-2.0
 * Copyright 2020 vorteil.io Pty Ltd
 */

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestUTF16Roundtrip(t *testing.T) {

	for _, s := range []string{
		"parent.vhd",
		"übergröße.vhd",
		"漢字.vhd",
		"emoji-\U0001F600.vhd", // surrogate pair
	} {
		buf := make([]byte, 512)
		copy(buf, utf16Encode(s))
		got, err := utf16DecodeName(buf)
		assert.NoError(t, err)
		assert.Equal(t, s, got)
	}
}

func TestUTF16ByteOrderMarks(t *testing.T) {

	// big-endian with BOM
	buf := make([]byte, 512)
	buf[0] = 0xFE
	buf[1] = 0xFF
	copy(buf[2:], utf16Encode("abc"))
	got, err := utf16DecodeName(buf)
	assert.NoError(t, err)
	assert.Equal(t, "abc", got)

	// little-endian with BOM
	buf = make([]byte, 512)
	buf[0] = 0xFF
	buf[1] = 0xFE
	buf[2] = 'x'
	buf[4] = 'y'
	got, err = utf16DecodeName(buf)
	assert.NoError(t, err)
	assert.Equal(t, "xy", got)
}

func TestUTF16BrokenSurrogate(t *testing.T) {

	// a high surrogate with no partner
	buf := make([]byte, 512)
	buf[0] = 0xD8
	buf[1] = 0x00
	buf[2] = 0x00
	buf[3] = 'a'
	_, err := utf16DecodeName(buf)
	assert.Error(t, err)
	_, ok := err.(*UTF16Error)
	assert.True(t, ok)

	// a lone low surrogate
	buf = make([]byte, 512)
	buf[0] = 0xDC
	buf[1] = 0x00
	_, err = utf16DecodeName(buf)
	assert.Error(t, err)
}
