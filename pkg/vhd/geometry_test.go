package vhd

/**
 * SPDX-License-Identifier: Apache-2.0
 * Copyright 2020 vorteil.io Pty Ltd
 */

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGeometryForSectors(t *testing.T) {

	// 4 MiB disk: stays in the small-disk branch.
	g := GeometryForSectors(8192)
	assert.Equal(t, Geometry{Cylinders: 120, Heads: 4, SectorsPerTrack: 17}, g)

	// The largest disk expressible without the large-disk shortcut.
	g = GeometryForSectors(65535 * 63 * 16)
	assert.Equal(t, Geometry{Cylinders: 65535, Heads: 16, SectorsPerTrack: 63}, g)

	// One sector more flips to 255 sectors per track.
	g = GeometryForSectors(65535*63*16 + 1)
	assert.Equal(t, uint8(255), g.SectorsPerTrack)
	assert.Equal(t, uint8(16), g.Heads)

	// Clamped at the format's ceiling.
	g = GeometryForSectors(1 << 40)
	assert.Equal(t, Geometry{Cylinders: 65535, Heads: 16, SectorsPerTrack: 255}, g)
}

func TestGeometryCodec(t *testing.T) {

	g := Geometry{Cylinders: 65535, Heads: 16, SectorsPerTrack: 255}
	assert.Equal(t, g, decodeGeometry(g.encode()))
	assert.Equal(t, "65535/16/255", g.String())
}
