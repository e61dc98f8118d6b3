/* Apache v2 license
 * Copyright (C) 2019 Intel Corporation
 *
 * SPDX-License-Identifier: Apache-2.0
 */

package bitformat

import (
	"bytes"
	"encoding/hex"
	"testing"

	"github.com/intel/rsp-sw-toolkit-im-suite-bitunpack/bitextract"
	"github.com/intel/rsp-sw-toolkit-im-suite-expect"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
)

// sumChecksum is the checksum of the projector protocol: the sum of all bytes
// of the message, truncated to 8 bits.
func sumChecksum(msg []byte) uint64 {
	var sum uint64
	for _, b := range msg {
		sum += uint64(b)
	}
	return sum & 0xFF
}

func projectorFormat() (Format, error) {
	f, err := NewFormat("projector",
		FieldDef{Name: "id1", Kind: Unsigned, Width: 1, Unit: Bytes},
		FieldDef{Name: "id2", Kind: Unsigned, Width: 1, Unit: Bytes},
		FieldDef{Name: "p_id", Kind: Unsigned, Width: 1, Unit: Bytes},
		FieldDef{Name: "m_code", Kind: Unsigned, Width: 4},
		FieldDef{Name: "len", Kind: Unsigned, Width: 12,
			Description: "length of data, in bytes"},
		FieldDef{Name: "data", Kind: Variable, LengthFrom: "len", Unit: Bytes},
		FieldDef{Name: "checksum", Kind: Unsigned, Width: 1, Unit: Bytes,
			Description: "sum of the other bytes, mod 256"},
	)
	if err != nil {
		return f, err
	}
	return f.WithChecksum("checksum", sumChecksum)
}

const (
	helloMsg = "4402000005" + "68656C6C6F" + "5F"
	emptyMsg = "4402000000" + "46"
)

func TestFormat_Decode_fixed(t *testing.T) {
	w := expect.WrapT(t)

	f := w.ShouldHaveResult(NewFormat("fixed",
		FieldDef{Name: "field1", Kind: Unsigned, Width: 8},
		FieldDef{Name: "field2", Kind: Unsigned, Width: 4},
		FieldDef{Name: "field3", Kind: Unsigned, Width: 4},
		FieldDef{Name: "field4", Kind: Unsigned, Width: 16},
	)).(Format)
	w.ShouldBeEqual(f.Name(), "fixed")
	w.ShouldBeEqual(f.NumFields(), 4)

	rec, rest, err := f.Decode([]byte{0x40, 4*16 + 8, 0x41, 0xBB})
	w.StopOnMismatch().ShouldSucceed(err)
	w.ShouldHaveLength(rest, 0)
	w.ShouldBeEqual(rec.Format(), "fixed")
	w.ShouldBeEqual(rec.NumFields(), 4)
	w.ShouldHaveLength(rec.Values(), 4)
	w.ShouldBeEqual(w.ShouldHaveResult(rec.Uint("field1")), uint64(0x40))
	w.ShouldBeEqual(w.ShouldHaveResult(rec.Uint("field2")), uint64(4))
	w.ShouldBeEqual(w.ShouldHaveResult(rec.Uint("field3")), uint64(8))
	w.ShouldBeEqual(w.ShouldHaveResult(rec.Uint("field4")), uint64(0x41BB))
	w.ShouldBeEqual(rec.String(), "field1=64 field2=4 field3=8 field4=16827")
	w.ShouldBeEqual(rec.FormatField("%04X", "field4"), "41BB")
}

func TestFormat_Field(t *testing.T) {
	w := expect.WrapT(t)

	f := w.ShouldHaveResult(projectorFormat()).(Format)
	d, ok := f.Field("len")
	w.ShouldBeTrue(ok)
	w.ShouldBeEqual(d.Width, 12)
	w.ShouldBeEqual(d.Description, "length of data, in bytes")

	d, ok = f.Field("data")
	w.ShouldBeTrue(ok)
	w.ShouldBeEqual(d.LengthFrom, "len")
	w.ShouldBeEqual(d.Description, "")

	_, ok = f.Field("missing")
	w.ShouldBeFalse(ok)
}

func TestFormat_Decode_checksum(t *testing.T) {
	w := expect.WrapT(t)
	f := w.ShouldHaveResult(projectorFormat()).(Format)

	rec, rest, err := f.DecodeString(helloMsg)
	w.StopOnMismatch().ShouldSucceed(err)
	w.ShouldHaveLength(rest, 0)
	w.ShouldBeEqual(w.ShouldHaveResult(rec.Uint("id1")), uint64(0x44))
	w.ShouldBeEqual(w.ShouldHaveResult(rec.Uint("id2")), uint64(0x02))
	w.ShouldBeEqual(w.ShouldHaveResult(rec.Uint("len")), uint64(5))
	w.ShouldBeEqual(w.ShouldHaveResult(rec.Bytes("data")), []byte("hello"))
	w.ShouldBeEqual(w.ShouldHaveResult(rec.Uint("checksum")), uint64(0x5F))

	data, ok := rec.Value("data")
	w.ShouldBeTrue(ok)
	w.ShouldBeEqual(data.Offset, 40)
	w.ShouldBeEqual(data.Width, 40)
	w.ShouldBeEqual(data.String(), "68656C6C6F")

	rec, _, err = f.DecodeString(emptyMsg)
	w.ShouldSucceed(err)
	w.ShouldBeEqual(w.ShouldHaveResult(rec.Bytes("data")), []byte{})

	_, rest, err = f.DecodeString(helloMsg[:len(helloMsg)-2] + "60")
	w.ShouldBeEqual(errors.Cause(err), ErrChecksum)
	w.ShouldHaveLength(rest, 11)

	// "len" claims more data than there is
	_, _, err = f.DecodeString("4402000009" + "68656C6C6F" + "5F")
	w.ShouldBeEqual(errors.Cause(err), bitextract.ErrOutOfRange)

	_, _, err = f.Decode(nil)
	w.ShouldBeEqual(errors.Cause(err), ErrNoData)

	_, _, err = f.DecodeString("not hex")
	w.ShouldFail(err)
}

func TestFormat_Decode_signedAndText(t *testing.T) {
	w := expect.WrapT(t)

	f := w.ShouldHaveResult(NewFormat("ais",
		FieldDef{Name: "type", Kind: Unsigned, Width: 6},
		FieldDef{Name: "delta", Kind: Signed, Width: 10},
		FieldDef{Name: "n", Kind: Unsigned, Width: 4},
		FieldDef{Name: "name", Kind: Text, LengthFrom: "n", Charset: bitextract.SixBit},
	)).(Format)

	// 000101 1111111101 0011 000001 000010 000011 (00)
	data := []byte{0x17, 0xFD, 0x30, 0x42, 0x0C, 0x99}
	rec, rest, err := f.Decode(data)
	w.StopOnMismatch().ShouldSucceed(err)
	w.ShouldBeEqual(rest, []byte{0x99})

	w.ShouldBeEqual(w.ShouldHaveResult(rec.Uint("type")), uint64(5))
	w.ShouldBeEqual(w.ShouldHaveResult(rec.Int("delta")), int64(-3))
	w.ShouldBeEqual(w.ShouldHaveResult(rec.Int("n")), int64(3))
	w.ShouldBeEqual(w.ShouldHaveResult(rec.Text("name")), "ABC")
	w.ShouldBeEqual(rec.String(), `type=5 delta=-3 n=3 name="ABC"`)
	w.ShouldBeEqual(rec.FormatField("%d", "delta"), "-3")

	name, _ := rec.Value("name")
	w.ShouldBeEqual(name.Offset, 20)
	w.ShouldBeEqual(name.Width, 18)

	w.ShouldHaveError(rec.Uint("delta"))
	w.ShouldHaveError(rec.Bytes("name"))
	w.ShouldHaveError(rec.Text("missing"))
	_, ok := rec.Value("missing")
	w.ShouldBeFalse(ok)
}

func TestFormat_Decode_bitLength(t *testing.T) {
	w := expect.WrapT(t)

	f := w.ShouldHaveResult(NewFormat("flags",
		FieldDef{Name: "n", Kind: Unsigned, Width: 4},
		FieldDef{Name: "flags", Kind: Variable, LengthFrom: "n"},
	)).(Format)

	rec, rest, err := f.Decode([]byte{0x3A, 0x01})
	w.StopOnMismatch().ShouldSucceed(err)
	w.ShouldBeEqual(rest, []byte{0x01})
	w.ShouldBeEqual(w.ShouldHaveResult(rec.Bytes("flags")), []byte{0xA0})

	// a zero-length variable field is allowed
	rec, rest, err = f.Decode([]byte{0x0F})
	w.ShouldSucceed(err)
	w.ShouldHaveLength(rest, 0)
	w.ShouldBeEqual(w.ShouldHaveResult(rec.Bytes("flags")), []byte{})

	_, _, err = f.Decode([]byte{0xF0})
	w.ShouldBeEqual(errors.Cause(err), bitextract.ErrOutOfRange)
}

func TestFormat_Parse(t *testing.T) {
	w := expect.WrapT(t)
	f := w.ShouldHaveResult(projectorFormat()).(Format)

	data := w.ShouldHaveResult(hex.DecodeString(helloMsg + emptyMsg + helloMsg + "FF")).([]byte)
	msgs, rest := f.Parse(data)
	w.StopOnMismatch().ShouldHaveLength(msgs, 3)
	w.ShouldBeEqual(rest, []byte{0xFF})
	w.ShouldBeEqual(w.ShouldHaveResult(msgs[0].Bytes("data")), []byte("hello"))
	w.ShouldBeEqual(w.ShouldHaveResult(msgs[1].Uint("len")), uint64(0))
	w.ShouldBeEqual(w.ShouldHaveResult(msgs[2].Bytes("data")), []byte("hello"))

	// parsing stops at the first bad message
	bad := helloMsg[:len(helloMsg)-2] + "00"
	data = w.ShouldHaveResult(hex.DecodeString(helloMsg + bad + helloMsg)).([]byte)
	msgs, rest = f.Parse(data)
	w.ShouldHaveLength(msgs, 1)
	w.ShouldHaveLength(rest, 22)

	msgs, rest = f.Parse(nil)
	w.ShouldHaveLength(msgs, 0)
	w.ShouldHaveLength(rest, 0)
}

func TestFormat_Parse_concurrent(t *testing.T) {
	w := expect.WrapT(t)
	f := w.ShouldHaveResult(projectorFormat()).(Format)
	data := w.ShouldHaveResult(hex.DecodeString(helloMsg + emptyMsg + helloMsg)).([]byte)

	var g errgroup.Group
	for i := 0; i < 8; i++ {
		g.Go(func() error {
			for rep := 0; rep < 100; rep++ {
				msgs, rest := f.Parse(data)
				if len(msgs) != 3 || len(rest) != 0 {
					return errors.Errorf("parsed %d messages with %d bytes "+
						"left over", len(msgs), len(rest))
				}
				if d, _ := msgs[2].Bytes("data"); !bytes.Equal(d, []byte("hello")) {
					return errors.Errorf("unexpected data %X", d)
				}
			}
			return nil
		})
	}
	w.ShouldSucceed(g.Wait())
}

func TestNewFormat_invalid(t *testing.T) {
	w := expect.WrapT(t)

	u8 := FieldDef{Name: "u8", Kind: Unsigned, Width: 8}
	for name, defs := range map[string][]FieldDef{
		"no fields":        nil,
		"no name":          {{Kind: Unsigned, Width: 8}},
		"duplicate":        {u8, u8},
		"zero width":       {{Name: "a", Kind: Unsigned}},
		"negative width":   {{Name: "a", Kind: Variable, Width: -1}},
		"too wide":         {{Name: "a", Kind: Signed, Width: 9, Unit: Bytes}},
		"unknown kind":     {{Name: "a", Kind: Kind(7), Width: 1}},
		"unknown unit":     {{Name: "a", Kind: Unsigned, Width: 1, Unit: Unit(3)}},
		"int length field": {u8, {Name: "a", Kind: Unsigned, LengthFrom: "u8"}},
		"no length":        {u8, {Name: "a", Kind: Variable}},
		"missing length":   {u8, {Name: "a", Kind: Variable, LengthFrom: "b"}},
		"later length":     {{Name: "a", Kind: Variable, LengthFrom: "u8"}, u8},
		"signed length": {
			{Name: "s", Kind: Signed, Width: 8},
			{Name: "a", Kind: Variable, LengthFrom: "s"},
		},
		"no charset": {u8, {Name: "a", Kind: Text, LengthFrom: "u8"}},
	} {
		_, err := NewFormat(name, defs...)
		w.As(name).ShouldFail(err)
		switch name {
		case "zero width", "negative width", "too wide", "no length":
			w.As(name).ShouldBeEqual(errors.Cause(err), bitextract.ErrInvalidWidth)
		}
	}

	f := w.ShouldHaveResult(NewFormat("f", u8,
		FieldDef{Name: "s", Kind: Signed, Width: 8})).(Format)
	for _, field := range []string{"missing", "s"} {
		_, err := f.WithChecksum(field, sumChecksum)
		w.As(field).ShouldFail(err)
	}
	_, err := f.WithChecksum("u8", nil)
	w.As("nil checksum").ShouldFail(err)
}
