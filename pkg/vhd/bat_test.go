package vhd

/**
 * SPDX-License-Identifier: Apache-2.0
 * Copyright 2020 vorteil.io Pty Ltd
 */

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewBAT(t *testing.T) {

	b := NewBAT(2)
	assert.Equal(t, 2, b.Len())
	assert.Equal(t, int64(512), b.PaddedBytes())
	assert.Equal(t, uint32(0), b.Highest())
	assert.Equal(t, 0, b.Allocated())

	// the padding must be unused-filled too
	buf := b.Marshal()
	assert.Len(t, buf, 512)
	for i := 0; i < len(buf); i += 4 {
		assert.Equal(t, BATUnused, r32(buf, i))
	}
}

func TestBATSetGet(t *testing.T) {

	b := NewBAT(10)
	assert.Equal(t, BATUnused, b.Get(3))

	b.Set(3, 5)
	b.Set(7, 4107)
	assert.Equal(t, uint32(5), b.Get(3))
	assert.Equal(t, uint32(4107), b.Get(7))
	assert.Equal(t, uint32(4107), b.Highest())
	assert.Equal(t, 2, b.Allocated())

	// a lower allocation never drags the highest value back down
	b.Set(9, 100)
	assert.Equal(t, uint32(4107), b.Highest())
}

func TestBATEqual(t *testing.T) {

	a := NewBAT(4)
	b := NewBAT(4)
	assert.True(t, a.Equal(b))

	a.Set(0, 5)
	assert.False(t, a.Equal(b))

	b.Set(0, 5)
	assert.True(t, a.Equal(b))

	assert.False(t, a.Equal(NewBAT(5)))
}

func TestBATMarshalRoundtrip(t *testing.T) {

	b := NewBAT(130) // spills into a second sector
	assert.Equal(t, int64(1024), b.PaddedBytes())
	b.Set(0, 7)
	b.Set(129, 4103)

	g := UnmarshalBAT(b.Marshal(), 130)
	assert.True(t, b.Equal(g))
	assert.Equal(t, uint32(4103), g.Highest())
}
