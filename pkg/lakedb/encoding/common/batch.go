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

import "fmt"

// Array is an immutable column of values. Value on a null index returns
// the zero Value, callers are expected to consult IsNull first.
type Array interface {
	DataType() DataType
	Len() int
	IsNull(i int) bool
	Value(i int) Value
}

// ArrayBuilder accumulates values for one column of a batch. Builders are
// not safe for concurrent use.
type ArrayBuilder interface {
	Append(v Value) error
	AppendNull()
	Len() int
	// NewArray returns the accumulated values and resets the builder.
	NewArray() Array
}

// NewArrayBuilder returns a builder producing arrays of the column's type.
func NewArrayBuilder(col Column) (ArrayBuilder, error) {
	if col.Type == TypeList {
		elem, err := newPrimitiveBuilder(col.Elem)
		if err != nil {
			return nil, err
		}
		return &listBuilder{elem: elem, offsets: []int32{0}}, nil
	}
	return newPrimitiveBuilder(col.Type)
}

func newPrimitiveBuilder(typ DataType) (ArrayBuilder, error) {
	switch typ {
	case TypeBool:
		return &boolBuilder{}, nil
	case TypeInt32:
		return &int32Builder{}, nil
	case TypeInt64, TypeTimestamp:
		return &int64Builder{typ: typ}, nil
	case TypeFloat32:
		return &float32Builder{}, nil
	case TypeFloat64:
		return &float64Builder{}, nil
	case TypeString, TypeBytes:
		return &binaryBuilder{typ: typ, offsets: []int32{0}}, nil
	default:
		return nil, fmt.Errorf("no array builder for type %s", typ)
	}
}

// validity tracks nulls for a builder. The bitmap is only allocated once
// the first null shows up.
type validity struct {
	valid []byte
}

func (v *validity) append(n int, null bool) {
	if null && v.valid == nil {
		v.valid = NewBitmap(n + 1)
		for i := 0; i < n; i++ {
			BitmapSet(v.valid, i)
		}
	}
	if v.valid == nil {
		return
	}
	for BitmapLen(n+1) > len(v.valid) {
		v.valid = append(v.valid, 0)
	}
	if !null {
		BitmapSet(v.valid, n)
	}
}

func (v *validity) take() []byte {
	bm := v.valid
	v.valid = nil
	return bm
}

func typeMismatch(want, got DataType) error {
	return fmt.Errorf("cannot append %s value to %s array", got, want)
}

// BoolArray stores its values as a bitmap.
type BoolArray struct {
	bits   []byte
	valid  []byte
	length int
}

func (a *BoolArray) DataType() DataType { return TypeBool }
func (a *BoolArray) Len() int           { return a.length }
func (a *BoolArray) IsNull(i int) bool  { return !BitmapGet(a.valid, i) }
func (a *BoolArray) Value(i int) Value {
	if a.IsNull(i) {
		return Value{}
	}
	return BoolValue(BitmapGet(a.bits, i))
}

// NewBoolArray wraps a value bitmap and an optional validity bitmap.
func NewBoolArray(bits, valid []byte, length int) *BoolArray {
	return &BoolArray{bits: bits, valid: valid, length: length}
}

type boolBuilder struct {
	bits   []byte
	length int
	validity
}

func (b *boolBuilder) Append(v Value) error {
	if v.Type != TypeBool {
		return typeMismatch(TypeBool, v.Type)
	}
	for BitmapLen(b.length+1) > len(b.bits) {
		b.bits = append(b.bits, 0)
	}
	if v.B {
		BitmapSet(b.bits, b.length)
	}
	b.validity.append(b.length, false)
	b.length++
	return nil
}

func (b *boolBuilder) AppendNull() {
	for BitmapLen(b.length+1) > len(b.bits) {
		b.bits = append(b.bits, 0)
	}
	b.validity.append(b.length, true)
	b.length++
}

func (b *boolBuilder) Len() int { return b.length }

func (b *boolBuilder) NewArray() Array {
	a := &BoolArray{bits: b.bits, valid: b.take(), length: b.length}
	b.bits = nil
	b.length = 0
	return a
}

// Int32Array stores int32 values.
type Int32Array struct {
	values []int32
	valid  []byte
}

func (a *Int32Array) DataType() DataType { return TypeInt32 }
func (a *Int32Array) Len() int           { return len(a.values) }
func (a *Int32Array) IsNull(i int) bool  { return !BitmapGet(a.valid, i) }
func (a *Int32Array) Value(i int) Value {
	if a.IsNull(i) {
		return Value{}
	}
	return Int32Value(a.values[i])
}

// Int32Values exposes the backing slice, null slots hold zero.
func (a *Int32Array) Int32Values() []int32 { return a.values }

func NewInt32Array(values []int32, valid []byte) *Int32Array {
	return &Int32Array{values: values, valid: valid}
}

type int32Builder struct {
	values []int32
	validity
}

func (b *int32Builder) Append(v Value) error {
	if v.Type != TypeInt32 {
		return typeMismatch(TypeInt32, v.Type)
	}
	b.validity.append(len(b.values), false)
	b.values = append(b.values, int32(v.I))
	return nil
}

func (b *int32Builder) AppendNull() {
	b.validity.append(len(b.values), true)
	b.values = append(b.values, 0)
}

func (b *int32Builder) Len() int { return len(b.values) }

func (b *int32Builder) NewArray() Array {
	a := &Int32Array{values: b.values, valid: b.take()}
	b.values = nil
	return a
}

// Int64Array stores int64 values and doubles as the timestamp array, the
// values then being UTC nanoseconds.
type Int64Array struct {
	typ    DataType
	values []int64
	valid  []byte
}

func (a *Int64Array) DataType() DataType { return a.typ }
func (a *Int64Array) Len() int           { return len(a.values) }
func (a *Int64Array) IsNull(i int) bool  { return !BitmapGet(a.valid, i) }
func (a *Int64Array) Value(i int) Value {
	if a.IsNull(i) {
		return Value{}
	}
	if a.typ == TypeTimestamp {
		return TimestampNanosValue(a.values[i])
	}
	return Int64Value(a.values[i])
}

// Int64Values exposes the backing slice, null slots hold zero.
func (a *Int64Array) Int64Values() []int64 { return a.values }

func NewInt64Array(typ DataType, values []int64, valid []byte) *Int64Array {
	return &Int64Array{typ: typ, values: values, valid: valid}
}

type int64Builder struct {
	typ    DataType
	values []int64
	validity
}

func (b *int64Builder) Append(v Value) error {
	if v.Type != b.typ {
		return typeMismatch(b.typ, v.Type)
	}
	b.validity.append(len(b.values), false)
	b.values = append(b.values, v.I)
	return nil
}

func (b *int64Builder) AppendNull() {
	b.validity.append(len(b.values), true)
	b.values = append(b.values, 0)
}

func (b *int64Builder) Len() int { return len(b.values) }

func (b *int64Builder) NewArray() Array {
	a := &Int64Array{typ: b.typ, values: b.values, valid: b.take()}
	b.values = nil
	return a
}

type Float32Array struct {
	values []float32
	valid  []byte
}

func (a *Float32Array) DataType() DataType { return TypeFloat32 }
func (a *Float32Array) Len() int           { return len(a.values) }
func (a *Float32Array) IsNull(i int) bool  { return !BitmapGet(a.valid, i) }
func (a *Float32Array) Value(i int) Value {
	if a.IsNull(i) {
		return Value{}
	}
	return Float32Value(a.values[i])
}

func NewFloat32Array(values []float32, valid []byte) *Float32Array {
	return &Float32Array{values: values, valid: valid}
}

type float32Builder struct {
	values []float32
	validity
}

func (b *float32Builder) Append(v Value) error {
	if v.Type != TypeFloat32 {
		return typeMismatch(TypeFloat32, v.Type)
	}
	b.validity.append(len(b.values), false)
	b.values = append(b.values, float32(v.F))
	return nil
}

func (b *float32Builder) AppendNull() {
	b.validity.append(len(b.values), true)
	b.values = append(b.values, 0)
}

func (b *float32Builder) Len() int { return len(b.values) }

func (b *float32Builder) NewArray() Array {
	a := &Float32Array{values: b.values, valid: b.take()}
	b.values = nil
	return a
}

type Float64Array struct {
	values []float64
	valid  []byte
}

func (a *Float64Array) DataType() DataType { return TypeFloat64 }
func (a *Float64Array) Len() int           { return len(a.values) }
func (a *Float64Array) IsNull(i int) bool  { return !BitmapGet(a.valid, i) }
func (a *Float64Array) Value(i int) Value {
	if a.IsNull(i) {
		return Value{}
	}
	return Float64Value(a.values[i])
}

func NewFloat64Array(values []float64, valid []byte) *Float64Array {
	return &Float64Array{values: values, valid: valid}
}

type float64Builder struct {
	values []float64
	validity
}

func (b *float64Builder) Append(v Value) error {
	if v.Type != TypeFloat64 {
		return typeMismatch(TypeFloat64, v.Type)
	}
	b.validity.append(len(b.values), false)
	b.values = append(b.values, v.F)
	return nil
}

func (b *float64Builder) AppendNull() {
	b.validity.append(len(b.values), true)
	b.values = append(b.values, 0)
}

func (b *float64Builder) Len() int { return len(b.values) }

func (b *float64Builder) NewArray() Array {
	a := &Float64Array{values: b.values, valid: b.take()}
	b.values = nil
	return a
}

// BinaryArray stores string or bytes values as a shared buffer sliced by
// offsets, the layout the chunks themselves use.
type BinaryArray struct {
	typ     DataType
	offsets []int32
	data    []byte
	valid   []byte
}

func (a *BinaryArray) DataType() DataType { return a.typ }
func (a *BinaryArray) Len() int           { return len(a.offsets) - 1 }
func (a *BinaryArray) IsNull(i int) bool  { return !BitmapGet(a.valid, i) }
func (a *BinaryArray) Value(i int) Value {
	if a.IsNull(i) {
		return Value{}
	}
	raw := a.data[a.offsets[i]:a.offsets[i+1]]
	if a.typ == TypeString {
		return StringValue(string(raw))
	}
	return BytesValue(raw)
}

func NewBinaryArray(typ DataType, offsets []int32, data, valid []byte) *BinaryArray {
	return &BinaryArray{typ: typ, offsets: offsets, data: data, valid: valid}
}

type binaryBuilder struct {
	typ     DataType
	offsets []int32
	data    []byte
	validity
}

func (b *binaryBuilder) Append(v Value) error {
	if v.Type != b.typ {
		return typeMismatch(b.typ, v.Type)
	}
	b.validity.append(b.Len(), false)
	if b.typ == TypeString {
		b.data = append(b.data, v.S...)
	} else {
		b.data = append(b.data, v.Raw...)
	}
	b.offsets = append(b.offsets, int32(len(b.data)))
	return nil
}

func (b *binaryBuilder) AppendNull() {
	b.validity.append(b.Len(), true)
	b.offsets = append(b.offsets, int32(len(b.data)))
}

func (b *binaryBuilder) Len() int { return len(b.offsets) - 1 }

func (b *binaryBuilder) NewArray() Array {
	a := &BinaryArray{typ: b.typ, offsets: b.offsets, data: b.data, valid: b.take()}
	b.offsets = []int32{0}
	b.data = nil
	return a
}

// ListArray stores lists of a primitive element. Element i spans
// elem[offsets[i]:offsets[i+1]].
type ListArray struct {
	offsets []int32
	elem    Array
	valid   []byte
}

func (a *ListArray) DataType() DataType { return TypeList }
func (a *ListArray) ElemType() DataType { return a.elem.DataType() }
func (a *ListArray) Len() int           { return len(a.offsets) - 1 }
func (a *ListArray) IsNull(i int) bool  { return !BitmapGet(a.valid, i) }
func (a *ListArray) Value(i int) Value {
	if a.IsNull(i) {
		return Value{}
	}
	start, end := a.offsets[i], a.offsets[i+1]
	if start == end {
		return ListValue(nil)
	}
	elems := make([]Value, 0, end-start)
	for j := start; j < end; j++ {
		elems = append(elems, a.elem.Value(int(j)))
	}
	return ListValue(elems)
}

// Elem returns the flattened element array shared by all lists.
func (a *ListArray) Elem() Array { return a.elem }

// Offsets returns the list boundaries into Elem.
func (a *ListArray) Offsets() []int32 { return a.offsets }

func NewListArray(offsets []int32, elem Array, valid []byte) *ListArray {
	return &ListArray{offsets: offsets, elem: elem, valid: valid}
}

type listBuilder struct {
	offsets []int32
	elem    ArrayBuilder
	validity
}

func (b *listBuilder) Append(v Value) error {
	if v.Type != TypeList {
		return typeMismatch(TypeList, v.Type)
	}
	for _, e := range v.L {
		if err := b.elem.Append(e); err != nil {
			return err
		}
	}
	b.validity.append(b.Len(), false)
	b.offsets = append(b.offsets, int32(b.elem.Len()))
	return nil
}

func (b *listBuilder) AppendNull() {
	b.validity.append(b.Len(), true)
	b.offsets = append(b.offsets, int32(b.elem.Len()))
}

func (b *listBuilder) Len() int { return len(b.offsets) - 1 }

func (b *listBuilder) NewArray() Array {
	a := &ListArray{offsets: b.offsets, elem: b.elem.NewArray(), valid: b.take()}
	b.offsets = []int32{0}
	return a
}

// RecordBatch is a horizontal slice of scan output. Columns holds one
// array per projected leaf, in the leaf order of Schema.
type RecordBatch struct {
	Schema  *Schema
	Columns []Array
	rows    int
}

// NewRecordBatch wires a projected schema to its column arrays. All arrays
// must have the same length and there must be one per schema leaf.
func NewRecordBatch(schema *Schema, columns []Array) (*RecordBatch, error) {
	leaves := schema.Leaves()
	if len(columns) != len(leaves) {
		return nil, fmt.Errorf("batch has %d columns, schema has %d leaves", len(columns), len(leaves))
	}
	if len(columns) == 0 {
		return nil, fmt.Errorf("batch has no columns")
	}
	rows := columns[0].Len()
	for i, col := range columns {
		if col.Len() != rows {
			return nil, fmt.Errorf("column %q has %d rows, column %q has %d", leaves[i].Path, col.Len(), leaves[0].Path, rows)
		}
	}
	return &RecordBatch{Schema: schema, Columns: columns, rows: rows}, nil
}

func (b *RecordBatch) NumRows() int { return b.rows }

// Column returns the array at leaf position i.
func (b *RecordBatch) Column(i int) Array { return b.Columns[i] }

// ColumnByPath returns the array for the leaf with the given dotted path,
// or nil.
func (b *RecordBatch) ColumnByPath(path string) Array {
	for i, leaf := range b.Schema.Leaves() {
		if leaf.Path == path {
			return b.Columns[i]
		}
	}
	return nil
}

// Row adapts one row of the batch to a RowSource so predicates can be
// evaluated against decoded data.
func (b *RecordBatch) Row(i int) RowSource {
	return batchRow{batch: b, row: i}
}

type batchRow struct {
	batch *RecordBatch
	row   int
}

func (r batchRow) ColumnValue(path string) (Value, bool) {
	col := r.batch.ColumnByPath(path)
	if col == nil || col.IsNull(r.row) {
		return Value{}, false
	}
	return col.Value(r.row), true
}
