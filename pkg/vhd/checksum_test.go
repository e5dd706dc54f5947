package vhd

/**
 * SPDX-License-Identifier: Apache-2.0
 * Copyright 2020 vorteil.io Pty Ltd
 */

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestChecksum(t *testing.T) {

	assert.Equal(t, ^uint32(0), checksum(nil))
	assert.Equal(t, ^uint32(3), checksum([]byte{1, 2}))
	assert.Equal(t, ^uint32(255*4), checksum([]byte{255, 255, 255, 255}))
}

// The subtractive adjustment must agree with recomputing from scratch over
// a zeroed checksum field, whatever the surrounding bytes are.
func TestChecksumSubAgreesWithRecompute(t *testing.T) {

	rng := rand.New(rand.NewSource(1))

	for i := 0; i < 100; i++ {
		buf := make([]byte, 512)
		rng.Read(buf)

		// reference: checksum with the field zeroed
		zeroed := make([]byte, 512)
		copy(zeroed, buf)
		zeroed[footerChecksumOffset+0] = 0
		zeroed[footerChecksumOffset+1] = 0
		zeroed[footerChecksumOffset+2] = 0
		zeroed[footerChecksumOffset+3] = 0
		want := checksum(zeroed)

		stored := r32(buf, footerChecksumOffset)
		assert.Equal(t, want, checksumSub(checksum(buf), stored))
	}
}

func TestVerifyChecksum(t *testing.T) {

	buf := make([]byte, 512)
	for i := range buf {
		buf[i] = byte(i)
	}
	w32(buf, footerChecksumOffset, 0)
	w32(buf, footerChecksumOffset, checksum(buf))

	stored, err := verifyChecksum(buf, footerChecksumOffset, "footer")
	assert.NoError(t, err)
	assert.Equal(t, r32(buf, footerChecksumOffset), stored)

	buf[100] ^= 0x01
	_, err = verifyChecksum(buf, footerChecksumOffset, "footer")
	assert.Error(t, err)
	cerr, ok := err.(*ChecksumError)
	assert.True(t, ok)
	assert.NotEqual(t, cerr.Expected, cerr.Actual)
}
