/* Apache v2 license
 * Copyright (C) 2019 Intel Corporation
 *
 * SPDX-License-Identifier: Apache-2.0
 */

package bitextract

import (
	"fmt"

	"github.com/pkg/errors"
)

// Field is a fixed bit range within a byte slice.
//
// Create one with NewField(start, width) or, for package-level tables,
// MustField(start, width), then use its methods to extract that range from
// any number of byte slices. Fields are immutable and safe to share.
type Field struct {
	start, width int
}

// NewField returns a Field covering width bits starting at bit start.
//
// Bit 0 is the highest-order bit of the 0'th index of the input slice; later
// bits move "rightward" through the slice toward higher indexes.
func NewField(start, width int) (Field, error) {
	if start < 0 {
		return Field{}, errors.Wrapf(ErrInvalidOffset, "start %d", start)
	}
	if width < 1 {
		return Field{}, errors.Wrapf(ErrInvalidWidth, "width %d must be >0", width)
	}
	if start+width < 0 {
		// check for overflow
		return Field{}, errors.Wrapf(ErrInvalidWidth,
			"cannot handle such a large start (%d) and width (%d)", start, width)
	}
	return Field{start: start, width: width}, nil
}

// MustField is like NewField, but panics if the bounds are illegal.
func MustField(start, width int) Field {
	f, err := NewField(start, width)
	if err != nil {
		panic(fmt.Sprintf("illegal field bounds: %v", err))
	}
	return f
}

// Start returns the offset of the Field's first bit.
func (f Field) Start() int {
	return f.start
}

// Width returns the number of bits in the Field.
func (f Field) Width() int {
	return f.width
}

// End returns the offset of the first bit after the Field.
func (f Field) End() int {
	return f.start + f.width
}

// ByteLength returns the number of bytes Extract returns for this Field.
//
// That is, len(f.Extract(data)) == f.ByteLength().
func (f Field) ByteLength() int {
	return ByteLength(f.width)
}

// Buffer returns a buffer of the size needed by ExtractTo.
func (f Field) Buffer() []byte {
	return make([]byte, f.ByteLength())
}

// Unsigned extracts the Field from src as an unsigned integer.
func (f Field) Unsigned(src []byte) (uint64, error) {
	return ExtractUnsigned(src, f.start, f.width)
}

// Signed extracts the Field from src as a two's complement integer.
func (f Field) Signed(src []byte) (int64, error) {
	return ExtractSigned(src, f.start, f.width)
}

// Extract returns the Field's bits from src, left-justified in a new slice.
func (f Field) Extract(src []byte) ([]byte, error) {
	return ExtractBits(src, f.start, f.width)
}

// ExtractTo writes the Field's bits from src into dest, left-justified.
func (f Field) ExtractTo(dest, src []byte) error {
	return ExtractBitsTo(dest, src, f.start, f.width)
}

func (f Field) String() string {
	return fmt.Sprintf("[%d:%d]", f.start, f.End())
}
