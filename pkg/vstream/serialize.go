package vstream

/**
 * SPDX-License-Identifier: Apache-2.0
 * Copyright 2020 vorteil.io Pty Ltd
 */

import (
	"io"

	"github.com/vorteil/vhdkit/pkg/vio"
)

// Serialize consumes a stream into w, producing the image the stream
// describes. Empty runs are seeked over when w can seek, which leaves real
// holes in sparse files; otherwise they are written out as zeroes. The
// number of bytes represented always matches the stream's sector length.
func Serialize(w io.Writer, s Stream) error {

	ws, err := vio.WriteSeeker(w)
	if err != nil {
		return err
	}

	var pendingEmpty int64

	flush := func() error {
		if pendingEmpty == 0 {
			return nil
		}
		_, err := ws.Seek(pendingEmpty*SectorSize, io.SeekCurrent)
		pendingEmpty = 0
		return err
	}

	for {
		e, err := s.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return err
		}

		switch x := e.(type) {
		case Sectors:
			err = flush()
			if err != nil {
				return err
			}
			_, err = ws.Write(x.Data)
			if err != nil {
				return err
			}
		case Empty:
			pendingEmpty += x.Count
		case Copy:
			err = flush()
			if err != nil {
				return err
			}
			err = copyOut(ws, x)
			if err != nil {
				return err
			}
		}
	}

	// A stream that ends in a hole still has to define the file's length:
	// seek to the final byte and write a single zero.
	if pendingEmpty > 0 {
		_, err = ws.Seek(pendingEmpty*SectorSize-1, io.SeekCurrent)
		if err != nil {
			return err
		}
		_, err = ws.Write([]byte{0})
		if err != nil {
			return err
		}
	}

	return nil
}

func copyOut(w io.Writer, c Copy) error {

	for c.Count > 0 {
		n := c.Count
		if n > expandChunkSectors {
			n = expandChunkSectors
		}
		buf, err := vio.ReallyRead(c.File, c.Sector*SectorSize, n*SectorSize)
		if err != nil {
			return err
		}
		_, err = w.Write(buf)
		if err != nil {
			return err
		}
		c.Sector += n
		c.Count -= n
	}
	return nil
}
