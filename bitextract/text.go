/* Apache v2 license
 * Copyright (C) 2019 Intel Corporation
 *
 * SPDX-License-Identifier: Apache-2.0
 */

package bitextract

import (
	"strings"

	"github.com/pkg/errors"
)

// Charset maps fixed-width bit codes to characters.
type Charset struct {
	name  string
	width int
	// nil means each code is its own code point
	table []rune
}

var (
	// ASCII7 is 7-bit ISO-646, as used by SGTIN-198 serials and similar
	// packed formats: every consecutive run of 7 bits is one ASCII character.
	ASCII7 = Charset{name: "ascii7", width: 7}

	// SixBit is the 6-bit character set of ITU-R M.1371 (AIS), Annex 8.
	SixBit = Charset{name: "sixbit", width: 6, table: []rune{
		'@', 'A', 'B', 'C', 'D', 'E', 'F', 'G',
		'H', 'I', 'J', 'K', 'L', 'M', 'N', 'O',
		'P', 'Q', 'R', 'S', 'T', 'U', 'V', 'W',
		'X', 'Y', 'Z', '[', '\\', ']', '^', '_',
		' ', '!', '"', '#', '$', '%', '&', '\'',
		'(', ')', '*', '+', ',', '-', '.', '/',
		'0', '1', '2', '3', '4', '5', '6', '7',
		'8', '9', ':', ';', '<', '=', '>', '?',
	}}
)

// Name returns the Charset's name.
func (cs Charset) Name() string {
	return cs.name
}

// Width returns the number of bits per character.
func (cs Charset) Width() int {
	return cs.width
}

func (cs Charset) decode(code uint64) rune {
	if cs.table == nil {
		return rune(code)
	}
	return cs.table[code]
}

// DecodeText decodes count consecutive characters of the given Charset, the
// first of which starts at the bit offset.
//
// Nothing here treats NUL specially; formats that null-terminate text can cut
// the result at the first 0x00 (or '@' for SixBit).
func DecodeText(src []byte, offset, count int, cs Charset) (string, error) {
	if cs.width < 1 || cs.width > ByteSize {
		return "", errors.Wrapf(ErrInvalidWidth, "charset %q has %d-bit "+
			"characters", cs.name, cs.width)
	}
	if count < 0 {
		return "", errors.Wrapf(ErrInvalidWidth, "character count %d", count)
	}
	if offset < 0 {
		return "", errors.Wrapf(ErrInvalidOffset, "offset %d", offset)
	}
	if count == 0 {
		return "", nil
	}
	// bound count before multiplying so the bit width can't overflow
	if avail := len(src) * ByteSize; offset > avail || count > (avail-offset)/cs.width {
		return "", errors.Wrapf(ErrOutOfRange, "%d %d-bit characters at "+
			"offset %d exceed %d bits of data", count, cs.width, offset, avail)
	}
	if err := checkBounds(src, offset, count*cs.width, 0); err != nil {
		return "", err
	}

	b := &strings.Builder{}
	b.Grow(count)
	for i := 0; i < count; i++ {
		b.WriteRune(cs.decode(extractUnsigned(src, offset+i*cs.width, cs.width)))
	}
	return b.String(), nil
}
