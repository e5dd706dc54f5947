package vio

/**
 * SPDX-License-Identifier: Apache-2.0
 * Copyright 2020 vorteil.io Pty Ltd
 */

import (
	"fmt"
	"io"
	"os"
	"time"
)

// File is an open handle through which all virtual disk I/O happens. Reads
// and writes transfer the full requested length or fail: a short transfer is
// reported as an error, never as a count.
type File interface {
	io.ReaderAt
	io.WriterAt
	io.Closer

	// Name returns the path the handle was opened with.
	Name() string
}

// FS is the capability set the virtual disk logic requires from its I/O
// backend. The default implementation is OSFS, but anything that can satisfy
// these operations (an in-memory store, a remote blob service) can back a
// disk.
type FS interface {
	Open(path string) (File, error)
	Create(path string) (File, error)
	Exists(path string) (bool, error)
	Size(path string) (int64, error)
	ModTime(path string) (time.Time, error)
	Now() time.Time
}

// OSFS implements FS over the operating system's filesystem.
type OSFS struct{}

type osFile struct {
	*os.File
}

// Open opens an existing file for reading and writing. Read-only files are
// reopened read-only so that parents of differencing disks on read-only
// media remain usable.
func (OSFS) Open(path string) (File, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		f, err = os.Open(path)
		if err != nil {
			return nil, err
		}
	}
	return &osFile{File: f}, nil
}

// Create creates or truncates a file for reading and writing.
func (OSFS) Create(path string) (File, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0666)
	if err != nil {
		return nil, err
	}
	return &osFile{File: f}, nil
}

// Exists reports whether a file exists at path.
func (OSFS) Exists(path string) (bool, error) {
	_, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// Size returns the length in bytes of the file at path.
func (OSFS) Size(path string) (int64, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return 0, err
	}
	return fi.Size(), nil
}

// ModTime returns the modification time of the file at path.
func (OSFS) ModTime(path string) (time.Time, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return time.Time{}, err
	}
	return fi.ModTime(), nil
}

// Now returns the current time.
func (OSFS) Now() time.Time {
	return time.Now()
}

// ReallyRead reads exactly n bytes at byte offset off.
func ReallyRead(f File, off int64, n int64) ([]byte, error) {
	buf := make([]byte, n)
	err := ReallyReadInto(f, off, buf)
	if err != nil {
		return nil, err
	}
	return buf, nil
}

// ReallyReadInto fills buf from byte offset off, failing on a short read.
func ReallyReadInto(f File, off int64, buf []byte) error {
	k, err := f.ReadAt(buf, off)
	if err != nil && !(err == io.EOF && k == len(buf)) {
		return fmt.Errorf("reading %d bytes at %d from %s: %w", len(buf), off, f.Name(), err)
	}
	if k != len(buf) {
		return fmt.Errorf("reading %d bytes at %d from %s: short read (%d)", len(buf), off, f.Name(), k)
	}
	return nil
}

// ReallyWrite writes all of buf at byte offset off, failing on a short
// write.
func ReallyWrite(f File, off int64, buf []byte) error {
	k, err := f.WriteAt(buf, off)
	if err != nil {
		return fmt.Errorf("writing %d bytes at %d to %s: %w", len(buf), off, f.Name(), err)
	}
	if k != len(buf) {
		return fmt.Errorf("writing %d bytes at %d to %s: short write (%d)", len(buf), off, f.Name(), k)
	}
	return nil
}
