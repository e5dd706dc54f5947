package vstream

/**
 * SPDX-License-Identifier: Apache-2.0
 * Copyright 2020 vorteil.io Pty Ltd
 */

import (
	"github.com/vorteil/vhdkit/pkg/vio"
)

// ExpandEmpty rewrites Empty runs into literal zeroed Sectors, in chunks of
// at most 2 MiB, for consumers that cannot seek or punch holes. The size
// accounting follows: empty bytes become metadata bytes.
func ExpandEmpty(s Stream) Stream {
	size := s.Size()
	size.Metadata += size.Empty
	size.Empty = 0
	return &expandedStream{src: s, size: size, empties: true}
}

// ExpandCopy rewrites Copy elements into literal Sectors by reading from
// their handles in windows of at most 2 MiB. Reads happen as the consumer
// reaches each chunk, so read failures surface from Next.
func ExpandCopy(s Stream) Stream {
	size := s.Size()
	size.Metadata += size.Copy
	size.Copy = 0
	return &expandedStream{src: s, size: size, copies: true}
}

type expandedStream struct {
	src     Stream
	size    Size
	empties bool
	copies  bool

	pendingZero int64
	pendingCopy Copy
}

func (s *expandedStream) Size() Size {
	return s.size
}

func (s *expandedStream) Next() (Element, error) {

	if s.pendingZero > 0 {
		n := s.pendingZero
		if n > expandChunkSectors {
			n = expandChunkSectors
		}
		s.pendingZero -= n
		return Sectors{Data: make([]byte, n*SectorSize)}, nil
	}

	if s.pendingCopy.Count > 0 {
		n := s.pendingCopy.Count
		if n > expandChunkSectors {
			n = expandChunkSectors
		}
		buf, err := vio.ReallyRead(s.pendingCopy.File, s.pendingCopy.Sector*SectorSize, n*SectorSize)
		if err != nil {
			return nil, err
		}
		s.pendingCopy.Sector += n
		s.pendingCopy.Count -= n
		return Sectors{Data: buf}, nil
	}

	e, err := s.src.Next()
	if err != nil {
		return nil, err
	}

	switch x := e.(type) {
	case Empty:
		if s.empties {
			s.pendingZero = x.Count
			return s.Next()
		}
	case Copy:
		if s.copies {
			s.pendingCopy = x
			return s.Next()
		}
	}
	return e, nil
}
