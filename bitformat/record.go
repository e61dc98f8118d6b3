/* Apache v2 license
 * Copyright (C) 2019 Intel Corporation
 *
 * SPDX-License-Identifier: Apache-2.0
 */

package bitformat

import (
	"encoding/hex"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// Value is a single decoded field of a Record.
type Value struct {
	Name string
	Kind Kind
	// Offset and Width locate the field's bits within the message.
	Offset, Width int

	u    uint64
	s    int64
	raw  []byte
	text string
}

// Uint64 returns the value of an Unsigned field, and 0 otherwise.
func (v Value) Uint64() uint64 {
	return v.u
}

// Int64 returns the value of a Signed field, and 0 otherwise.
func (v Value) Int64() int64 {
	return v.s
}

// Bytes returns the left-justified bits of a Variable field, and nil otherwise.
func (v Value) Bytes() []byte {
	return v.raw
}

// Text returns the characters of a Text field, and "" otherwise.
func (v Value) Text() string {
	return v.text
}

func (v Value) interfaceValue() interface{} {
	switch v.Kind {
	case Unsigned:
		return v.u
	case Signed:
		return v.s
	case Variable:
		return v.raw
	}
	return v.text
}

// String formats integers in base-10, Variable fields as upper-case hex, and
// Text fields as quoted Go strings.
func (v Value) String() string {
	switch v.Kind {
	case Unsigned:
		return strconv.FormatUint(v.u, 10)
	case Signed:
		return strconv.FormatInt(v.s, 10)
	case Variable:
		return strings.ToUpper(hex.EncodeToString(v.raw))
	}
	return strconv.Quote(v.text)
}

// Record is a message decoded by a Format.
type Record struct {
	format string
	index  map[string]int
	values []Value
}

// Format returns the name of the Format that decoded this Record.
func (r Record) Format() string {
	return r.format
}

// NumFields returns the number of fields this Record has.
func (r Record) NumFields() int {
	return len(r.values)
}

// Values returns the Record's fields in order.
func (r Record) Values() []Value {
	return append([]Value(nil), r.values...)
}

// Value returns the named field, and whether it exists.
func (r Record) Value(name string) (Value, bool) {
	idx, ok := r.index[name]
	if !ok {
		return Value{}, false
	}
	return r.values[idx], true
}

func (r Record) valueOf(name string, kinds ...Kind) (Value, error) {
	v, ok := r.Value(name)
	if !ok {
		return Value{}, errors.Errorf("%q has no field %q", r.format, name)
	}
	for _, k := range kinds {
		if v.Kind == k {
			return v, nil
		}
	}
	return Value{}, errors.Errorf("field %q is %s, not %s", name, v.Kind, kinds[0])
}

// Uint returns the value of the named Unsigned field.
func (r Record) Uint(name string) (uint64, error) {
	v, err := r.valueOf(name, Unsigned)
	return v.u, err
}

// Int returns the value of the named Signed field. It also accepts Unsigned
// fields whose values fit in an int64.
func (r Record) Int(name string) (int64, error) {
	v, err := r.valueOf(name, Signed, Unsigned)
	if err != nil {
		return 0, err
	}
	if v.Kind == Signed {
		return v.s, nil
	}
	if v.u > math.MaxInt64 {
		return 0, errors.Errorf("field %q value %d overflows int64", name, v.u)
	}
	return int64(v.u), nil
}

// Bytes returns the bits of the named Variable field.
func (r Record) Bytes(name string) ([]byte, error) {
	v, err := r.valueOf(name, Variable)
	return v.raw, err
}

// Text returns the characters of the named Text field.
func (r Record) Text(name string) (string, error) {
	v, err := r.valueOf(name, Text)
	return v.text, err
}

// FormatField returns the named field formatted with the given format.
//
// It'll panic if the Record has no such field.
func (r Record) FormatField(format, name string) string {
	v, ok := r.Value(name)
	if !ok {
		panic(fmt.Sprintf("%q has no field %q", r.format, name))
	}
	return fmt.Sprintf(format, v.interfaceValue())
}

// String formats the Record as a series of space-separated name=value pairs.
func (r Record) String() string {
	b := &strings.Builder{}
	for i, v := range r.values {
		if i > 0 {
			b.WriteByte(' ')
		}
		fmt.Fprintf(b, "%s=%s", v.Name, v)
	}
	return b.String()
}
