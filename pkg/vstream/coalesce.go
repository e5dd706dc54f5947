package vstream

/**
 * SPDX-License-Identifier: Apache-2.0
 * Copyright 2020 vorteil.io Pty Ltd
 */

import "io"

// Coalesce merges adjacent Empty runs and adjacent Copy runs that reference
// the same handle with contiguous sector ranges, in either direction.
// Sectors elements pass through untouched and stop any merge in progress.
// Applying Coalesce twice changes nothing.
func Coalesce(s Stream) Stream {
	return &coalescedStream{src: s}
}

type coalescedStream struct {
	src     Stream
	pending Element
	srcDone bool
}

func (s *coalescedStream) Size() Size {
	return s.src.Size()
}

func (s *coalescedStream) pull() (Element, error) {
	if s.pending != nil {
		e := s.pending
		s.pending = nil
		return e, nil
	}
	if s.srcDone {
		return nil, io.EOF
	}
	return s.src.Next()
}

func (s *coalescedStream) Next() (Element, error) {

	cur, err := s.pull()
	if err != nil {
		return nil, err
	}

	if _, ok := cur.(Sectors); ok {
		return cur, nil
	}

	for {
		next, err := s.src.Next()
		if err == io.EOF {
			s.srcDone = true
			return cur, nil
		}
		if err != nil {
			return nil, err
		}

		merged, ok := merge(cur, next)
		if !ok {
			s.pending = next
			return cur, nil
		}
		cur = merged
	}
}

func merge(cur, next Element) (Element, bool) {

	switch a := cur.(type) {
	case Empty:
		if b, ok := next.(Empty); ok {
			return Empty{Count: a.Count + b.Count}, true
		}
	case Copy:
		b, ok := next.(Copy)
		if !ok || b.File != a.File {
			break
		}
		if b.Sector == a.Sector+a.Count {
			return Copy{File: a.File, Sector: a.Sector, Count: a.Count + b.Count}, true
		}
		if b.Sector+b.Count == a.Sector {
			return Copy{File: a.File, Sector: b.Sector, Count: a.Count + b.Count}, true
		}
	}
	return nil, false
}
