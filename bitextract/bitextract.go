/* Apache v2 license
 * Copyright (C) 2019 Intel Corporation
 *
 * SPDX-License-Identifier: Apache-2.0
 */

// Package bitextract extracts bit fields from byte slices.
//
// Bits are numbered MSB-first: bit 0 is the most significant bit of byte 0,
// bit 7 is its least significant bit, and bit 8 is the most significant bit of
// byte 1. A field is a run of consecutive bits [offset, offset+width) and can
// be read as an unsigned integer, a two's complement signed integer, or a raw,
// left-justified byte slice.
//
// Every function here only reads its input and keeps no reference to it after
// returning, so concurrent extractions from the same slice are safe as long as
// nobody writes to that slice at the same time.
package bitextract

import (
	"io"

	"github.com/pkg/errors"
)

const (
	ByteSize = 8
	ByteMask = (1 << ByteSize) - 1

	// MaxIntWidth is the widest field that ExtractUnsigned and ExtractSigned
	// can return.
	MaxIntWidth = 64
)

var (
	// ErrOutOfRange means the requested bits extend past the end of the data.
	ErrOutOfRange = errors.New("bit range exceeds data")
	// ErrInvalidWidth means the width is < 1 or too wide for the result type.
	ErrInvalidWidth = errors.New("invalid bit width")
	// ErrInvalidOffset means the offset is negative.
	ErrInvalidOffset = errors.New("invalid bit offset")
)

// Locate returns the index of the byte holding the bit at offset and the bit's
// position within that byte, where 0 is the MSB and 7 is the LSB.
func Locate(offset int) (byteIndex, bitInByte int) {
	return offset / ByteSize, offset % ByteSize
}

// ByteLength returns the number of bytes needed to hold width bits.
func ByteLength(width int) int {
	return (width + ByteSize - 1) / ByteSize
}

// bitAt returns the value (0 or 1) of the bit at offset. It does no bounds
// checking; callers validate the range first.
func bitAt(src []byte, offset int) uint8 {
	idx, bit := Locate(offset)
	return (src[idx] >> uint(ByteSize-1-bit)) & 1
}

// Bit returns the value (0 or 1) of the bit at offset.
func Bit(src []byte, offset int) (uint8, error) {
	if err := checkBounds(src, offset, 1, 0); err != nil {
		return 0, err
	}
	return bitAt(src, offset), nil
}

// checkBounds validates an extraction of width bits starting at offset from
// src. If maxWidth > 0, width may not exceed it.
func checkBounds(src []byte, offset, width, maxWidth int) error {
	if offset < 0 {
		return errors.Wrapf(ErrInvalidOffset, "offset %d", offset)
	}
	if width < 1 {
		return errors.Wrapf(ErrInvalidWidth, "width %d must be >0", width)
	}
	if maxWidth > 0 && width > maxWidth {
		return errors.Wrapf(ErrInvalidWidth, "width %d exceeds %d bits",
			width, maxWidth)
	}
	avail := len(src) * ByteSize
	if offset > avail || width > avail-offset {
		return errors.Wrapf(ErrOutOfRange, "cannot extract bits [%d, %d) "+
			"from %d bytes (%d bits)", offset, offset+width, len(src), avail)
	}
	return nil
}

// ExtractUnsigned returns the width bits starting at offset as an unsigned
// integer, with the first bit as the most significant bit of the result.
//
// The width must be in [1, MaxIntWidth].
func ExtractUnsigned(src []byte, offset, width int) (uint64, error) {
	if err := checkBounds(src, offset, width, MaxIntWidth); err != nil {
		return 0, err
	}
	return extractUnsigned(src, offset, width), nil
}

func extractUnsigned(src []byte, offset, width int) (v uint64) {
	for i := 0; i < width; i++ {
		v |= uint64(bitAt(src, offset+i)) << uint(width-1-i)
	}
	return v
}

// ExtractSigned returns the width bits starting at offset interpreted as a
// two's complement integer, so the first bit is the sign bit.
//
// The width must be in [1, MaxIntWidth]. A 1-bit field is either 0 or -1.
func ExtractSigned(src []byte, offset, width int) (int64, error) {
	if err := checkBounds(src, offset, width, MaxIntWidth); err != nil {
		return 0, err
	}
	return signExtend(extractUnsigned(src, offset, width), width), nil
}

// signExtend interprets the low width bits of u as a two's complement value.
// With m the sign bit, (u^m)-m leaves u unchanged when the sign bit is clear
// and yields u-2^width when it's set; uint64 arithmetic keeps it exact for
// every width up to 64.
func signExtend(u uint64, width int) int64 {
	m := uint64(1) << uint(width-1)
	return int64((u ^ m) - m)
}

// ExtractBits returns a new slice of ByteLength(width) bytes holding the width
// bits starting at offset, left-justified: the first extracted bit is the MSB
// of the first byte, and unused low bits of the final byte are 0.
func ExtractBits(src []byte, offset, width int) ([]byte, error) {
	if err := checkBounds(src, offset, width, 0); err != nil {
		return nil, err
	}
	dst := make([]byte, ByteLength(width))
	extractBitsTo(dst, src, offset, width)
	return dst, nil
}

// ExtractBitsTo works like ExtractBits, but writes into dst[:ByteLength(width)]
// instead of allocating. Any bytes of dst beyond that are left untouched.
func ExtractBitsTo(dst, src []byte, offset, width int) error {
	if err := checkBounds(src, offset, width, 0); err != nil {
		return err
	}
	if len(dst) < ByteLength(width) {
		return errors.Wrapf(io.ErrShortBuffer, "destination size %d is too "+
			"small (should be at least %d)", len(dst), ByteLength(width))
	}
	extractBitsTo(dst, src, offset, width)
	return nil
}

func extractBitsTo(dst, src []byte, offset, width int) {
	n := ByteLength(width)
	for i := 0; i < n; i++ {
		dst[i] = 0
	}
	for i := 0; i < width; i++ {
		if bitAt(src, offset+i) == 1 {
			dst[i/ByteSize] |= 1 << uint(ByteSize-1-i%ByteSize)
		}
	}
}
