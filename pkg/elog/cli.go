package elog

/**
 * SPDX-License-Identifier: Apache-2.0
 * Copyright 2020 vorteil.io Pty Ltd
 */

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/vbauerster/mpb/v5"
	"github.com/vbauerster/mpb/v5/decor"
)

// CLI is the command-line implementation of View. It doubles as a logrus
// Formatter so that a program can route all logrus output through the same
// renderer:
//
//	log := &elog.CLI{}
//	logrus.SetFormatter(log)
//	logrus.SetLevel(logrus.TraceLevel)
//
type CLI struct {
	DisableTTY bool

	container *mpb.Progress
}

// Format implements logrus.Formatter.
func (log *CLI) Format(entry *logrus.Entry) ([]byte, error) {
	switch entry.Level {
	case logrus.ErrorLevel, logrus.FatalLevel, logrus.PanicLevel:
		return []byte(fmt.Sprintf("error: %s\n", entry.Message)), nil
	case logrus.WarnLevel:
		return []byte(fmt.Sprintf("warning: %s\n", entry.Message)), nil
	default:
		return []byte(entry.Message + "\n"), nil
	}
}

// IsDebug returns true if debug logging is enabled.
func (log *CLI) IsDebug() bool {
	return logrus.IsLevelEnabled(logrus.DebugLevel)
}

// Debugf logs at the debug level.
func (log *CLI) Debugf(format string, args ...interface{}) {
	logrus.Debugf(format, args...)
}

// Errorf logs at the error level.
func (log *CLI) Errorf(format string, args ...interface{}) {
	logrus.Errorf(format, args...)
}

// Infof logs at the info level.
func (log *CLI) Infof(format string, args ...interface{}) {
	logrus.Infof(format, args...)
}

// Printf logs unconditionally, without a level prefix.
func (log *CLI) Printf(format string, args ...interface{}) {
	logrus.Printf(format, args...)
}

// Warnf logs at the warning level.
func (log *CLI) Warnf(format string, args ...interface{}) {
	logrus.Warnf(format, args...)
}

// NewProgress returns a progress bar sized to total. With total zero, or
// with DisableTTY set, it returns a Progress that does nothing.
func (log *CLI) NewProgress(label string, units string, total int64) Progress {

	if log.DisableTTY || total == 0 {
		return &nilProgress{}
	}

	if log.container == nil {
		log.container = mpb.New(mpb.WithWidth(64), mpb.WithOutput(os.Stderr))
	}

	var decorators []decor.Decorator
	switch units {
	case "KiB", "MiB":
		decorators = append(decorators, decor.CountersKibiByte("% .1f / % .1f"))
	default:
		decorators = append(decorators, decor.CountersNoUnit("%d / %d"))
	}

	bar := log.container.AddBar(total,
		mpb.PrependDecorators(decor.Name(label)),
		mpb.AppendDecorators(decorators...),
	)

	return &cliProgress{bar: bar, total: total}
}

type cliProgress struct {
	bar      *mpb.Bar
	total    int64
	finished bool
}

func (p *cliProgress) Write(b []byte) (n int, err error) {
	n = len(b)
	p.bar.IncrBy(n)
	return
}

func (p *cliProgress) Increment(n int64) {
	p.bar.IncrInt64(n)
}

func (p *cliProgress) Finish(success bool) {
	if p.finished {
		return
	}
	p.finished = true
	if success {
		p.bar.SetTotal(p.total, true)
	} else {
		p.bar.Abort(true)
	}
}

type nilProgress struct {
}

func (p *nilProgress) Write(b []byte) (n int, err error) {
	return len(b), nil
}

func (p *nilProgress) Increment(n int64) {
}

func (p *nilProgress) Finish(success bool) {
}
