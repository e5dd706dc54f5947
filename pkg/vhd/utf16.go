package vhd

/**
 * SPDX-License-Identifier: Apache-2.0
 * Copyright 2020 vorteil.io Pty Ltd
 */

import (
	"encoding/binary"
	"unicode/utf16"
)

// utf16Encode encodes s as big-endian UTF-16 without a byte order mark.
// Characters outside the basic multilingual plane become surrogate pairs.
func utf16Encode(s string) []byte {
	units := utf16.Encode([]rune(s))
	buf := make([]byte, 2*len(units))
	for i, u := range units {
		binary.BigEndian.PutUint16(buf[2*i:], u)
	}
	return buf
}

// utf16DecodeName decodes a fixed-size UTF-16 name field. A leading FE FF
// selects big-endian (and is consumed), FF FE little-endian; without a byte
// order mark the data is big-endian. Decoding stops at the first U+0000.
func utf16DecodeName(buf []byte) (string, error) {

	order := binary.ByteOrder(binary.BigEndian)
	if len(buf) >= 2 {
		switch {
		case buf[0] == 0xFE && buf[1] == 0xFF:
			buf = buf[2:]
		case buf[0] == 0xFF && buf[1] == 0xFE:
			order = binary.LittleEndian
			buf = buf[2:]
		}
	}

	var units []uint16
	for i := 0; i+1 < len(buf); i += 2 {
		u := order.Uint16(buf[i:])
		if u == 0 {
			break
		}
		units = append(units, u)
	}

	// utf16.Decode silently replaces broken surrogates, so validate pairing
	// first.
	for i := 0; i < len(units); i++ {
		u := units[i]
		switch {
		case u >= 0xD800 && u <= 0xDBFF:
			if i+1 >= len(units) || units[i+1] < 0xDC00 || units[i+1] > 0xDFFF {
				return "", &UTF16Error{Index: i, Unit: u}
			}
			i++
		case u >= 0xDC00 && u <= 0xDFFF:
			return "", &UTF16Error{Index: i, Unit: u}
		}
	}

	return string(utf16.Decode(units)), nil
}
