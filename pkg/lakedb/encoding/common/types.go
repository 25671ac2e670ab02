/*
 * Copyright (C) 2023  Intergral GmbH
 *
 * This program is free software: you can redistribute it and/or modify
 * it under the terms of the GNU Affero General Public License as published by
 * the Free Software Foundation, either version 3 of the License, or
 * (at your option) any later version.
 *
 * This program is distributed in the hope that it will be useful,
 * but WITHOUT ANY WARRANTY; without even the implied warranty of
 * MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
 * GNU Affero General Public License for more details.
 *
 * You should have received a copy of the GNU Affero General Public License
 * along with this program.  If not, see <https://www.gnu.org/licenses/>.
 */

package common

import (
	"bytes"
	"fmt"
	"math"
	"strconv"
	"time"
)

// This file contains types that need to be referenced by both the ./encoding and
// ./encoding/vX packages. It primarily exists here to break dependency loops.

// DataType is the physical type of a column. The numeric values are written
// to file footers, preserve the order.
type DataType byte

const (
	TypeBool DataType = iota + 1
	TypeInt32
	TypeInt64
	TypeFloat32
	TypeFloat64
	TypeString
	TypeBytes
	TypeTimestamp
	TypeStruct
	TypeList
)

func (t DataType) String() string {
	switch t {
	case TypeBool:
		return "bool"
	case TypeInt32:
		return "int32"
	case TypeInt64:
		return "int64"
	case TypeFloat32:
		return "float32"
	case TypeFloat64:
		return "float64"
	case TypeString:
		return "string"
	case TypeBytes:
		return "bytes"
	case TypeTimestamp:
		return "timestamp"
	case TypeStruct:
		return "struct"
	case TypeList:
		return "list"
	default:
		return fmt.Sprintf("type(%d)", byte(t))
	}
}

// ParseDataType parses a column type by its name.
func ParseDataType(s string) (DataType, error) {
	for t := TypeBool; t <= TypeList; t++ {
		if t.String() == s {
			return t, nil
		}
	}
	return 0, fmt.Errorf("invalid column type: %s", s)
}

// IsPrimitive returns true for types that can be stored in a chunk directly,
// i.e. everything except the two container types.
func (t DataType) IsPrimitive() bool {
	return t >= TypeBool && t <= TypeTimestamp
}

// Value is a typed scalar: a statistics bound, a predicate literal, or a
// boxed cell pulled out of a record batch. Exactly the field selected by
// Type is meaningful.
type Value struct {
	Type DataType
	B    bool
	I    int64 // int32, int64 and timestamp (UTC nanos)
	F    float64
	S    string
	Raw  []byte  // bytes
	L    []Value // list elements
}

func BoolValue(v bool) Value {
	return Value{Type: TypeBool, B: v}
}

func Int32Value(v int32) Value {
	return Value{Type: TypeInt32, I: int64(v)}
}

func Int64Value(v int64) Value {
	return Value{Type: TypeInt64, I: v}
}

func Float32Value(v float32) Value {
	return Value{Type: TypeFloat32, F: float64(v)}
}

func Float64Value(v float64) Value {
	return Value{Type: TypeFloat64, F: v}
}

func StringValue(v string) Value {
	return Value{Type: TypeString, S: v}
}

func BytesValue(v []byte) Value {
	return Value{Type: TypeBytes, Raw: v}
}

// TimestampValue builds a timestamp value. Timestamps are stored as UTC
// nanoseconds since the epoch.
func TimestampValue(t time.Time) Value {
	return Value{Type: TypeTimestamp, I: t.UTC().UnixNano()}
}

func TimestampNanosValue(nanos int64) Value {
	return Value{Type: TypeTimestamp, I: nanos}
}

func ListValue(elems []Value) Value {
	return Value{Type: TypeList, L: elems}
}

// Time returns the value as a time.Time. Only meaningful for timestamps.
func (v Value) Time() time.Time {
	return time.Unix(0, v.I).UTC()
}

// IsNaN returns true for float values holding a NaN.
func (v Value) IsNaN() bool {
	return (v.Type == TypeFloat32 || v.Type == TypeFloat64) && math.IsNaN(v.F)
}

func (v Value) String() string {
	switch v.Type {
	case TypeBool:
		return strconv.FormatBool(v.B)
	case TypeInt32, TypeInt64:
		return strconv.FormatInt(v.I, 10)
	case TypeFloat32, TypeFloat64:
		return strconv.FormatFloat(v.F, 'g', -1, 64)
	case TypeString:
		return strconv.Quote(v.S)
	case TypeBytes:
		return fmt.Sprintf("0x%x", v.Raw)
	case TypeTimestamp:
		return v.Time().Format(time.RFC3339Nano)
	case TypeList:
		var buf bytes.Buffer
		buf.WriteByte('[')
		for i, e := range v.L {
			if i > 0 {
				buf.WriteString(", ")
			}
			buf.WriteString(e.String())
		}
		buf.WriteByte(']')
		return buf.String()
	default:
		return fmt.Sprintf("value(%d)", byte(v.Type))
	}
}

// Compare orders two values of the same primitive type, returning -1, 0 or 1.
// Values of different or non-primitive types are not comparable and panic,
// callers are expected to have type checked first.
func Compare(a, b Value) int {
	if a.Type != b.Type {
		panic(fmt.Sprintf("comparing values of different types: %s vs %s", a.Type, b.Type))
	}

	switch a.Type {
	case TypeBool:
		return boolCompare(a.B, b.B)
	case TypeInt32, TypeInt64, TypeTimestamp:
		return int64Compare(a.I, b.I)
	case TypeFloat32, TypeFloat64:
		return float64Compare(a.F, b.F)
	case TypeString:
		return stringCompare(a.S, b.S)
	case TypeBytes:
		return bytes.Compare(a.Raw, b.Raw)
	default:
		panic(fmt.Sprintf("values of type %s are not comparable", a.Type))
	}
}

func boolCompare(a, b bool) int {
	switch {
	case a == b:
		return 0
	case !a:
		return -1
	default:
		return 1
	}
}

func int64Compare(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func float64Compare(a, b float64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func stringCompare(a, b string) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}
