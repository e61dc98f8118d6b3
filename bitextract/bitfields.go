/* Apache v2 license
 * Copyright (C) 2019 Intel Corporation
 *
 * SPDX-License-Identifier: Apache-2.0
 */

package bitextract

import (
	"encoding/hex"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// Kind determines how a field's bits are interpreted.
type Kind uint8

const (
	Unsigned = Kind(iota)
	Signed
	Raw
)

var kindCodes = map[byte]Kind{
	'u': Unsigned,
	's': Signed,
	'r': Raw,
}

func (k Kind) String() string {
	switch k {
	case Unsigned:
		return "unsigned"
	case Signed:
		return "signed"
	case Raw:
		return "raw"
	}
	return "Unknown kind: " + strconv.Itoa(int(k))
}

// Spec describes a single field of a Layout.
type Spec struct {
	Kind  Kind
	Width int
}

func (s Spec) String() string {
	return fmt.Sprintf("%c%d", s.Kind.String()[0], s.Width)
}

// Value is a decoded field.
type Value struct {
	Spec
	bytes []byte
	u     uint64
	s     int64
}

// Bytes returns the field's bits, left-justified.
func (v Value) Bytes() []byte {
	return v.bytes
}

// Uint64 returns the field's bit pattern as an unsigned integer; it's 0 for Raw
// fields.
func (v Value) Uint64() uint64 {
	return v.u
}

// Int64 returns the field's value as a signed integer. Unsigned fields are
// returned as-is (a 64-bit unsigned field may wrap); it's 0 for Raw fields.
func (v Value) Int64() int64 {
	if v.Kind == Signed {
		return v.s
	}
	return int64(v.u)
}

// String formats unsigned fields in base-10, signed fields in signed base-10,
// and raw fields as upper-case hex.
func (v Value) String() string {
	switch v.Kind {
	case Unsigned:
		return strconv.FormatUint(v.u, 10)
	case Signed:
		return strconv.FormatInt(v.s, 10)
	}
	return strings.ToUpper(hex.EncodeToString(v.bytes))
}

// Layout explodes byte data into a series of consecutive, typed bit fields.
type Layout struct {
	bitLength  int // sum of all bit widths
	expByteLen int // sum of all field byte lengths
	specs      []Spec
	fields     []Field
}

// NewLayout returns a new Layout whose fields are laid end-to-end, starting at
// bit 0, in the order given.
func NewLayout(specs []Spec) (Layout, error) {
	l := Layout{}
	if err := l.SetSpecs(specs); err != nil {
		return l, err
	}
	return l, nil
}

// NewUnsignedLayout returns a Layout of unsigned fields of the given widths.
func NewUnsignedLayout(widths []int) (Layout, error) {
	specs := make([]Spec, len(widths))
	for i, w := range widths {
		specs[i] = Spec{Kind: Unsigned, Width: w}
	}
	return NewLayout(specs)
}

// SetSpecs replaces the Layout's fields. If the specs are invalid, the Layout
// is left unchanged.
func (l *Layout) SetSpecs(specs []Spec) error {
	if len(specs) == 0 {
		return errors.New("specs slice is empty")
	}

	var bitLength, expByteLen int
	fields := make([]Field, len(specs))
	for i, s := range specs {
		if s.Width <= 0 {
			return errors.Wrapf(ErrInvalidWidth,
				"widths must be >0, but width %d is %d", i, s.Width)
		}
		switch s.Kind {
		case Unsigned, Signed:
			if s.Width > MaxIntWidth {
				return errors.Wrapf(ErrInvalidWidth, "%s field %d is %d bits, "+
					"but integer fields are limited to %d", s.Kind, i, s.Width,
					MaxIntWidth)
			}
		case Raw:
		default:
			return errors.Errorf("field %d has unknown kind %d", i, s.Kind)
		}
		f, err := NewField(bitLength, s.Width)
		if err != nil {
			return errors.Wrapf(err, "field %d", i)
		}
		fields[i] = f
		bitLength += s.Width
		expByteLen += f.ByteLength()
	}

	l.specs = append([]Spec(nil), specs...)
	l.fields = fields
	l.bitLength = bitLength
	l.expByteLen = expByteLen
	return nil
}

// BitLength returns the total number of bits covered by the Layout.
func (l Layout) BitLength() int {
	return l.bitLength
}

// NumFields returns the number of fields this Layout has.
func (l Layout) NumFields() int {
	return len(l.fields)
}

// Specs returns a copy of the Layout's field specs.
func (l Layout) Specs() []Spec {
	return append([]Spec(nil), l.specs...)
}

// ExplodedByteLength returns the minimum number of bytes necessary to store the
// exploded bit fields.
//
// This number is very likely larger than the number of bytes needed to store
// the unexploded bit fields; the exception to this is the case when each bit
// field is byte aligned -- i.e., has a length equal to a multiple of 8.
func (l Layout) ExplodedByteLength() int {
	return l.expByteLen
}

// Buffer returns a slice of byte slices large enough to use with ExplodeTo.
//
// That is, the returned slice has the same number of buffers as the Layout
// has fields, and each of those slices is large enough to hold its field.
// They all share a single underlying allocation.
func (l Layout) Buffer() [][]byte {
	bigBuff := make([]byte, l.expByteLen)
	bt := make([][]byte, len(l.fields))
	for idx, f := range l.fields {
		bt[idx] = bigBuff[:f.ByteLength()]
		bigBuff = bigBuff[f.ByteLength():]
	}
	return bt
}

func (l Layout) checkLength(data []byte) error {
	if len(data)*ByteSize < l.bitLength {
		return errors.Wrapf(ErrOutOfRange, "invalid data length %d; "+
			"expected %d bits", len(data)*ByteSize, l.bitLength)
	}
	return nil
}

// Explode returns a slice of byte slices, each one holding the left-justified
// bits of a consecutive field of data.
func (l Layout) Explode(data []byte) ([][]byte, error) {
	if err := l.checkLength(data); err != nil {
		return nil, err
	}
	bt := l.Buffer()
	if err := l.ExplodeTo(bt, data); err != nil {
		return nil, err
	}
	return bt, nil
}

// ExplodeTo explodes the data into the dst byte slices.
func (l Layout) ExplodeTo(dst [][]byte, data []byte) error {
	if len(dst) < len(l.fields) {
		return errors.Wrapf(io.ErrShortBuffer, "not enough destination "+
			"slices (%d) to extract %d fields", len(dst), len(l.fields))
	}
	for idx, f := range l.fields {
		if err := f.ExtractTo(dst[idx], data); err != nil {
			return errors.Wrapf(err, "field %d", idx)
		}
	}
	return nil
}

// Decode returns the typed value of every field in data.
func (l Layout) Decode(data []byte) ([]Value, error) {
	if err := l.checkLength(data); err != nil {
		return nil, err
	}
	vals := make([]Value, len(l.fields))
	for idx := range l.fields {
		v, err := l.value(idx, data)
		if err != nil {
			return nil, err
		}
		vals[idx] = v
	}
	return vals, nil
}

func (l Layout) value(idx int, data []byte) (Value, error) {
	f := l.fields[idx]
	v := Value{Spec: l.specs[idx]}

	var err error
	if v.bytes, err = f.Extract(data); err != nil {
		return Value{}, errors.Wrapf(err, "field %d", idx)
	}
	switch v.Kind {
	case Unsigned:
		v.u, err = f.Unsigned(data)
	case Signed:
		if v.s, err = f.Signed(data); err == nil {
			v.u = uint64(v.s) & (^uint64(0) >> uint(MaxIntWidth-f.Width()))
		}
	}
	if err != nil {
		return Value{}, errors.Wrapf(err, "field %d", idx)
	}
	return v, nil
}

// Reader returns consecutive fields from an underlying data byte slice.
type Reader struct {
	layout Layout
	field  int
	data   []byte
}

// NewReader creates a new Reader around a data slice using the Layout.
func (l Layout) NewReader(data []byte) (*Reader, error) {
	r := &Reader{layout: l}
	return r, r.SetData(data)
}

// Reset resets the reader so that future reads start at field 0.
func (r *Reader) Reset() {
	r.field = 0
}

// SetData changes the reader's underlying data slice, resetting it in the process.
func (r *Reader) SetData(data []byte) error {
	if len(data)*ByteSize < r.layout.bitLength {
		return errors.Wrapf(ErrOutOfRange, "not enough bytes: this layout "+
			"needs at least %d bytes, but data has only %d",
			ByteLength(r.layout.bitLength), len(data))
	}
	r.data = data
	r.field = 0
	return nil
}

// Next returns the current field's value and advances to the next field.
// After all fields have been read, it returns io.EOF.
func (r *Reader) Next() (Value, error) {
	if r.field >= r.layout.NumFields() {
		return Value{}, io.EOF
	}
	v, err := r.layout.value(r.field, r.data)
	if err != nil {
		return Value{}, err
	}
	r.field++
	return v, nil
}

// Read extracts the reader's current field from the underlying data, puts it
// into p as a right-justified, big-endian number, and advances the field index
// so that the next read returns bits from the next field. Leading bytes of p
// are zeroed, or for negative Signed fields, filled with 1s, so that p holds
// the field as a len(p)-byte integer, suitable for use with binary.Read.
//
// This method returns len(p), nil on success, regardless of the current field
// size. If p is too small for the number of bytes needed by this field, this
// returns 0, io.ErrShortBuffer and does not advance the reader's field. After
// all fields have been read, subsequent calls to Read return 0, io.EOF. Use
// SetData or Reset to make use of this reader again.
func (r *Reader) Read(p []byte) (int, error) {
	if r.field >= r.layout.NumFields() {
		return 0, io.EOF
	}
	f := r.layout.fields[r.field]
	n := f.ByteLength()
	if n > len(p) {
		return 0, io.ErrShortBuffer
	}

	tail := p[len(p)-n:]
	if err := f.ExtractTo(tail, r.data); err != nil {
		return 0, err
	}
	pad := n*ByteSize - f.Width()
	rightJustify(tail, pad)

	fill := byte(0)
	if r.layout.specs[r.field].Kind == Signed && bitAt(r.data, f.Start()) == 1 {
		fill = ByteMask
		tail[0] |= ^(byte(ByteMask) >> uint(pad))
	}
	for i := 0; i < len(p)-n; i++ {
		p[i] = fill
	}

	r.field++
	return len(p), nil
}

// rightJustify shifts left-justified bits in b right by pad bits, moving the
// low pad bits of one byte into the high bits of the next.
func rightJustify(b []byte, pad int) {
	if pad == 0 {
		return
	}
	for i := len(b) - 1; i > 0; i-- {
		b[i] = b[i]>>uint(pad) | b[i-1]<<uint(ByteSize-pad)
	}
	b[0] >>= uint(pad)
}

// SplitWidths is a helper function for validating and converting a slice of bit
// widths from a configuration string delimited by a particular delimiter.
//
// It splits the string on the delimiter, trims spaces around entries, converts
// the elements into ints, and returns the result. The purpose of this function
// is to allow calls like:
//     w, err := SplitWidths("8.44.44", ".")
//     if err != nil {
//         return err
//     }
//     NewUnsignedLayout(w)
func SplitWidths(conf, delim string) ([]int, error) {
	var r []int
	for i, wStr := range strings.Split(conf, delim) {
		wStr = strings.TrimSpace(wStr)
		if wStr == "" {
			return nil, errors.Errorf("width %d is empty", i)
		}
		w, err := strconv.Atoi(wStr)
		if err != nil {
			return nil, errors.Wrapf(err, "unable to convert width %d", i)
		}
		r = append(r, w)
	}
	return r, nil
}

// ParseLayout builds a Layout from a configuration string such as "u8.s4.r12",
// in which each entry is a kind code ('u' unsigned, 's' signed, 'r' raw)
// followed by a bit width. Entries without a kind code are unsigned, so
// ParseLayout("8.44.44", ".") is equivalent to SplitWidths followed by
// NewUnsignedLayout.
func ParseLayout(conf, delim string) (Layout, error) {
	var specs []Spec
	for i, entry := range strings.Split(conf, delim) {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			return Layout{}, errors.Errorf("field %d is empty", i)
		}

		kind := Unsigned
		if k, ok := kindCodes[entry[0]|0x20]; ok {
			kind = k
			entry = entry[1:]
		}
		w, err := strconv.Atoi(entry)
		if err != nil {
			return Layout{}, errors.Wrapf(err, "unable to convert width %d", i)
		}
		specs = append(specs, Spec{Kind: kind, Width: w})
	}
	return NewLayout(specs)
}
