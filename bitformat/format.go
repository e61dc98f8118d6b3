/* Apache v2 license
 * Copyright (C) 2019 Intel Corporation
 *
 * SPDX-License-Identifier: Apache-2.0
 */

// Package bitformat decodes packed binary messages made of named bit fields.
//
// A Format lists a message's fields in order. Fields are laid end-to-end with no
// alignment, starting at the MSB of the first byte, but messages themselves are
// byte-aligned: a message that ends mid-byte consumes the rest of that byte, and
// the next message starts at the following one. For example, a projector
// control protocol might be described as
//
//     f, err := bitformat.NewFormat("projector",
//         bitformat.FieldDef{Name: "id1", Kind: bitformat.Unsigned, Width: 1, Unit: bitformat.Bytes},
//         bitformat.FieldDef{Name: "id2", Kind: bitformat.Unsigned, Width: 1, Unit: bitformat.Bytes},
//         bitformat.FieldDef{Name: "p_id", Kind: bitformat.Unsigned, Width: 1, Unit: bitformat.Bytes},
//         bitformat.FieldDef{Name: "m_code", Kind: bitformat.Unsigned, Width: 4},
//         bitformat.FieldDef{Name: "len", Kind: bitformat.Unsigned, Width: 12},
//         bitformat.FieldDef{Name: "data", Kind: bitformat.Variable, LengthFrom: "len", Unit: bitformat.Bytes},
//         bitformat.FieldDef{Name: "checksum", Kind: bitformat.Unsigned, Width: 1, Unit: bitformat.Bytes},
//     )
//
// in which the length of "data" is given, in bytes, by the "len" field.
//
// Only decoding is supported.
package bitformat

import (
	"encoding/hex"
	"strconv"

	"github.com/intel/rsp-sw-toolkit-im-suite-bitunpack/bitextract"
	"github.com/pkg/errors"
)

// Kind determines how a field's bits are interpreted.
type Kind uint8

const (
	// Unsigned fields are unsigned integers of up to 64 bits.
	Unsigned = Kind(iota)
	// Signed fields are two's complement integers of up to 64 bits.
	Signed
	// Variable fields are raw, left-justified bytes of any length.
	Variable
	// Text fields are packed characters of a bitextract.Charset.
	Text
)

func (k Kind) String() string {
	switch k {
	case Unsigned:
		return "unsigned"
	case Signed:
		return "signed"
	case Variable:
		return "variable"
	case Text:
		return "text"
	}
	return "Unknown kind: " + strconv.Itoa(int(k))
}

// Unit is the unit of a field's Width or of the value of its LengthFrom field.
// Text fields ignore it: their lengths always count characters.
type Unit uint8

const (
	Bits = Unit(iota)
	Bytes
)

func (u Unit) bits() int {
	if u == Bytes {
		return bitextract.ByteSize
	}
	return 1
}

var (
	// ErrNoData is returned when decoding an empty message.
	ErrNoData = errors.New("no data provided")
	// ErrChecksum is returned when a message's checksum field doesn't match
	// the checksum calculated from its data.
	ErrChecksum = errors.New("checksum mismatch")
)

// FieldDef defines a single field of a Format.
type FieldDef struct {
	Name string
	Kind Kind
	// Width is the field's fixed length in Units (or characters, for Text).
	// It's ignored if LengthFrom is set.
	Width int
	// LengthFrom names an earlier Unsigned field whose decoded value is this
	// field's length; only Variable and Text fields may use it.
	LengthFrom string
	Unit       Unit
	// Charset is required for Text fields.
	Charset bitextract.Charset
	// Description is optional, human-readable documentation of the field.
	Description string
}

// ChecksumFunc calculates a checksum from a message's bytes, in which the
// bits of the checksum field itself have been set to 0.
type ChecksumFunc func(msg []byte) uint64

// Format describes a packed binary message as a series of adjacent fields.
//
// A Format is immutable once created, so it may be shared and used for
// concurrent decoding.
type Format struct {
	name      string
	defs      []FieldDef
	index     map[string]int
	lengthIdx []int // index of each field's LengthFrom field, or -1

	checksumIdx int // -1 if there's no checksum
	checksum    ChecksumFunc
}

// NewFormat returns a Format with the given fields, in order.
func NewFormat(name string, defs ...FieldDef) (Format, error) {
	if len(defs) == 0 {
		return Format{}, errors.Errorf("format %q has no fields", name)
	}

	f := Format{
		name:        name,
		defs:        append([]FieldDef(nil), defs...),
		index:       make(map[string]int, len(defs)),
		lengthIdx:   make([]int, len(defs)),
		checksumIdx: -1,
	}
	for i, d := range f.defs {
		if err := f.addField(i, d); err != nil {
			return Format{}, errors.Wrapf(err, "format %q: field %d", name, i)
		}
	}
	return f, nil
}

func (f *Format) addField(i int, d FieldDef) error {
	if d.Name == "" {
		return errors.New("missing name")
	}
	if _, ok := f.index[d.Name]; ok {
		return errors.Errorf("duplicate name %q", d.Name)
	}
	if d.Unit != Bits && d.Unit != Bytes {
		return errors.Errorf("%q has unknown unit %d", d.Name, d.Unit)
	}
	if d.Width < 0 {
		return errors.Wrapf(bitextract.ErrInvalidWidth, "%q has width %d",
			d.Name, d.Width)
	}

	f.lengthIdx[i] = -1
	switch d.Kind {
	case Unsigned, Signed:
		if d.LengthFrom != "" {
			return errors.Errorf("%s field %q can't take its length from "+
				"another field", d.Kind, d.Name)
		}
		if bits := d.Width * d.Unit.bits(); bits < 1 || bits > bitextract.MaxIntWidth {
			return errors.Wrapf(bitextract.ErrInvalidWidth, "%s field %q "+
				"must be 1 to %d bits, but is %d bits", d.Kind, d.Name,
				bitextract.MaxIntWidth, bits)
		}
	case Text:
		if d.Charset.Width() == 0 {
			return errors.Errorf("text field %q has no charset", d.Name)
		}
		fallthrough
	case Variable:
		if d.LengthFrom == "" {
			if d.Width == 0 {
				return errors.Wrapf(bitextract.ErrInvalidWidth,
					"%s field %q needs either a width or a length field",
					d.Kind, d.Name)
			}
			break
		}
		li, ok := f.index[d.LengthFrom]
		if !ok {
			return errors.Errorf("%q takes its length from %q, which isn't "+
				"an earlier field", d.Name, d.LengthFrom)
		}
		if f.defs[li].Kind != Unsigned {
			return errors.Errorf("%q takes its length from %q, which is %s, "+
				"not unsigned", d.Name, d.LengthFrom, f.defs[li].Kind)
		}
		f.lengthIdx[i] = li
	default:
		return errors.Errorf("%q has unknown kind %d", d.Name, d.Kind)
	}

	f.index[d.Name] = i
	return nil
}

// WithChecksum returns a copy of the Format that verifies the named Unsigned
// field with fn when decoding; messages whose checksums don't match fail with
// ErrChecksum.
func (f Format) WithChecksum(field string, fn ChecksumFunc) (Format, error) {
	if fn == nil {
		return f, errors.New("checksum function is nil")
	}
	idx, ok := f.index[field]
	if !ok {
		return f, errors.Errorf("format %q has no field %q", f.name, field)
	}
	if f.defs[idx].Kind != Unsigned {
		return f, errors.Errorf("checksum field %q is %s, not unsigned",
			field, f.defs[idx].Kind)
	}
	f.checksumIdx = idx
	f.checksum = fn
	return f, nil
}

// Name returns the Format's name.
func (f Format) Name() string {
	return f.name
}

// NumFields returns the number of fields in the Format.
func (f Format) NumFields() int {
	return len(f.defs)
}

// Field returns the definition of the named field, and whether it exists.
func (f Format) Field(name string) (FieldDef, bool) {
	idx, ok := f.index[name]
	if !ok {
		return FieldDef{}, false
	}
	return f.defs[idx], true
}

// DecodeString is a convenience method that decodes hex-encoded message data.
func (f Format) DecodeString(data string) (Record, []byte, error) {
	byteData, err := hex.DecodeString(data)
	if err != nil {
		return Record{}, nil, errors.Wrapf(err, "unable to decode message data as hex")
	}
	return f.Decode(byteData)
}

// Decode decodes a single message starting at the first bit of data, and
// returns it along with the bytes following it. If the message can't be
// decoded, it returns the error and the original data.
func (f Format) Decode(data []byte) (Record, []byte, error) {
	if len(data) == 0 {
		return Record{}, data, errors.Wrapf(ErrNoData, "format %q", f.name)
	}

	rec := Record{
		format: f.name,
		index:  f.index,
		values: make([]Value, len(f.defs)),
	}
	offset := 0
	for i, d := range f.defs {
		v, err := f.decodeField(i, data, offset, rec.values)
		if err != nil {
			return Record{}, data, errors.Wrapf(err, "format %q: field %q",
				f.name, d.Name)
		}
		rec.values[i] = v
		offset += v.Width
	}

	consumed := bitextract.ByteLength(offset)
	if f.checksum != nil {
		if err := f.verify(rec, data[:consumed]); err != nil {
			return Record{}, data, err
		}
	}
	return rec, data[consumed:], nil
}

// decodeField decodes field i at offset; prev holds the fields decoded so far.
func (f Format) decodeField(i int, data []byte, offset int, prev []Value) (Value, error) {
	d := f.defs[i]
	v := Value{Name: d.Name, Kind: d.Kind, Offset: offset}

	n := uint64(d.Width)
	if li := f.lengthIdx[i]; li >= 0 {
		n = prev[li].u
	}
	unitBits := d.Unit.bits()
	if d.Kind == Text {
		unitBits = d.Charset.Width()
	}
	// rule out lengths that can't fit before they can overflow an int
	avail := uint64(len(data)*bitextract.ByteSize - offset)
	if n > avail/uint64(unitBits) {
		return Value{}, errors.Wrapf(bitextract.ErrOutOfRange, "length %d "+
			"exceeds the %d bits remaining", n, avail)
	}
	v.Width = int(n) * unitBits

	var err error
	switch d.Kind {
	case Unsigned:
		v.u, err = bitextract.ExtractUnsigned(data, offset, v.Width)
	case Signed:
		v.s, err = bitextract.ExtractSigned(data, offset, v.Width)
	case Variable:
		if v.Width == 0 {
			v.raw = []byte{}
			break
		}
		v.raw, err = bitextract.ExtractBits(data, offset, v.Width)
	case Text:
		v.text, err = bitextract.DecodeText(data, offset, int(n), d.Charset)
	}
	return v, err
}

// verify recalculates the checksum over msg with the checksum field zeroed.
func (f Format) verify(rec Record, msg []byte) error {
	cv := rec.values[f.checksumIdx]

	zeroed := append([]byte(nil), msg...)
	for i := 0; i < cv.Width; i++ {
		idx, bit := bitextract.Locate(cv.Offset + i)
		zeroed[idx] &^= 1 << uint(bitextract.ByteSize-1-bit)
	}

	if sum := f.checksum(zeroed); sum != cv.u {
		return errors.Wrapf(ErrChecksum, "format %q: calculated %#x, "+
			"but field %q is %#x", f.name, sum, cv.Name, cv.u)
	}
	return nil
}

// Parse decodes consecutive messages from data until it's empty or a message
// fails to decode, and returns the messages along with the remaining data,
// starting with the first byte that couldn't be decoded.
func (f Format) Parse(data []byte) ([]Record, []byte) {
	var msgs []Record
	for len(data) > 0 {
		rec, rest, err := f.Decode(data)
		if err != nil {
			break
		}
		msgs = append(msgs, rec)
		data = rest
	}
	return msgs, data
}
