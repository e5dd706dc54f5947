package elog

/**
 * SPDX-License-Identifier: Apache-2.0
 * Copyright 2020 vorteil.io Pty Ltd
 */

// Progress tracks one long-running operation. It implements io.Writer so it
// can be plumbed into an io.MultiWriter alongside the real destination of
// whatever data is being measured.
type Progress interface {
	Write(p []byte) (n int, err error)
	Increment(n int64)
	Finish(success bool)
}

// Logger is the plain logging surface.
type Logger interface {
	Debugf(format string, args ...interface{})
	Errorf(format string, args ...interface{})
	Infof(format string, args ...interface{})
	Printf(format string, args ...interface{})
	Warnf(format string, args ...interface{})
}

// View is the full logging capability handed to long-running operations: a
// Logger plus progress reporting.
type View interface {
	Logger
	IsDebug() bool
	NewProgress(label string, units string, total int64) Progress
}
