package vhd

/**
 * SPDX-License-Identifier: Apache-2.0
 * Copyright 2020 vorteil.io Pty Ltd
 */

import (
	"fmt"
	"strings"
)

// ChecksumError reports a stored checksum that disagrees with the bytes it
// covers.
type ChecksumError struct {
	Structure string
	Expected  uint32
	Actual    uint32
}

func (e *ChecksumError) Error() string {
	return fmt.Sprintf("%s checksum mismatch: stored %#08x, computed %#08x", e.Structure, e.Expected, e.Actual)
}

// CookieError reports a structure that doesn't begin with its magic string.
type CookieError struct {
	Structure string
	Expected  string
	Found     string
}

func (e *CookieError) Error() string {
	return fmt.Sprintf("%s has bad cookie %q (expected %q)", e.Structure, e.Found, e.Expected)
}

// VersionError reports an unsupported structure version.
type VersionError struct {
	Structure string
	Found     uint32
}

func (e *VersionError) Error() string {
	return fmt.Sprintf("%s has unsupported version %#08x", e.Structure, e.Found)
}

// InvalidSectorError reports a virtual sector outside the disk.
type InvalidSectorError struct {
	Sector int64
	Max    int64
}

func (e *InvalidSectorError) Error() string {
	return fmt.Sprintf("invalid sector %d (virtual disk has %d sectors)", e.Sector, e.Max)
}

// ParentNotFoundError reports a differencing disk whose parent could not be
// resolved through any of its locators or the search path.
type ParentNotFoundError struct {
	Child      string
	Candidates []string
}

func (e *ParentNotFoundError) Error() string {
	return fmt.Sprintf("parent of %s not found (tried %s)", e.Child, strings.Join(e.Candidates, ", "))
}

// UnsupportedDiskTypeError reports an operation attempted on a disk type
// that cannot serve it, or an unknown disk type altogether.
type UnsupportedDiskTypeError struct {
	Type DiskType
	Op   string
}

func (e *UnsupportedDiskTypeError) Error() string {
	if e.Op == "" {
		return fmt.Sprintf("unknown disk type %d", uint32(e.Type))
	}
	return fmt.Sprintf("%s unsupported on %s disks", e.Op, e.Type)
}

// PlatformCodeError reports an unrecognized parent locator platform code.
type PlatformCodeError struct {
	Code uint32
}

func (e *PlatformCodeError) Error() string {
	return fmt.Sprintf("unknown parent locator platform code %#08x", e.Code)
}

// UTF16Error reports a broken surrogate in a UTF-16 name field.
type UTF16Error struct {
	Index int
	Unit  uint16
}

func (e *UTF16Error) Error() string {
	return fmt.Sprintf("invalid UTF-16 surrogate %#04x at unit %d", e.Unit, e.Index)
}
