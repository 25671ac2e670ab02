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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildArray(t *testing.T, col Column, values []*Value) Array {
	t.Helper()

	builder, err := NewArrayBuilder(col)
	require.NoError(t, err)
	for _, v := range values {
		if v == nil {
			builder.AppendNull()
			continue
		}
		require.NoError(t, builder.Append(*v))
	}
	require.Equal(t, len(values), builder.Len())
	return builder.NewArray()
}

func vp(v Value) *Value { return &v }

func TestArrayBuilders(t *testing.T) {
	ts := time.Date(2023, 4, 5, 6, 7, 8, 9, time.UTC)

	tests := []struct {
		name   string
		col    Column
		values []*Value
	}{
		{
			name:   "bool",
			col:    Column{Path: "b", Type: TypeBool, Nullable: true},
			values: []*Value{vp(BoolValue(true)), nil, vp(BoolValue(false)), vp(BoolValue(true))},
		},
		{
			name:   "int32",
			col:    Column{Path: "i32", Type: TypeInt32, Nullable: true},
			values: []*Value{vp(Int32Value(1)), vp(Int32Value(-2)), nil},
		},
		{
			name:   "int64",
			col:    Column{Path: "i64", Type: TypeInt64},
			values: []*Value{vp(Int64Value(1 << 40)), vp(Int64Value(-1))},
		},
		{
			name:   "float32",
			col:    Column{Path: "f32", Type: TypeFloat32, Nullable: true},
			values: []*Value{nil, vp(Float32Value(0.5))},
		},
		{
			name:   "float64",
			col:    Column{Path: "f64", Type: TypeFloat64},
			values: []*Value{vp(Float64Value(3.25)), vp(Float64Value(-3.25))},
		},
		{
			name:   "string",
			col:    Column{Path: "s", Type: TypeString, Nullable: true},
			values: []*Value{vp(StringValue("foo")), vp(StringValue("")), nil, vp(StringValue("barbaz"))},
		},
		{
			name:   "bytes",
			col:    Column{Path: "raw", Type: TypeBytes},
			values: []*Value{vp(BytesValue([]byte{0x01, 0x02})), vp(BytesValue([]byte{0xff}))},
		},
		{
			name:   "timestamp",
			col:    Column{Path: "at", Type: TypeTimestamp, Nullable: true},
			values: []*Value{vp(TimestampValue(ts)), nil},
		},
		{
			name: "list",
			col:  Column{Path: "tags", Type: TypeList, Nullable: true, Elem: TypeString},
			values: []*Value{
				vp(ListValue([]Value{StringValue("a"), StringValue("b")})),
				nil,
				vp(ListValue(nil)),
				vp(ListValue([]Value{StringValue("c")})),
			},
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			arr := buildArray(t, tt.col, tt.values)

			require.Equal(t, len(tt.values), arr.Len())
			assert.Equal(t, tt.col.Type, arr.DataType())

			for i, expected := range tt.values {
				if expected == nil {
					assert.True(t, arr.IsNull(i), "row %d", i)
					continue
				}
				assert.False(t, arr.IsNull(i), "row %d", i)
				assert.Equal(t, *expected, arr.Value(i), "row %d", i)
			}
		})
	}
}

func TestArrayBuilderTypeMismatch(t *testing.T) {
	builder, err := NewArrayBuilder(Column{Path: "x", Type: TypeInt64})
	require.NoError(t, err)

	assert.Error(t, builder.Append(StringValue("nope")))
	assert.Error(t, builder.Append(Int32Value(1)))
	assert.NoError(t, builder.Append(Int64Value(1)))
}

func TestBinaryArraySharesBuffer(t *testing.T) {
	builder, err := NewArrayBuilder(Column{Path: "s", Type: TypeString})
	require.NoError(t, err)
	require.NoError(t, builder.Append(StringValue("foo")))
	require.NoError(t, builder.Append(StringValue("bar")))

	arr := builder.NewArray().(*BinaryArray)
	assert.Equal(t, 2, arr.Len())
	assert.Equal(t, "foo", arr.Value(0).S)
	assert.Equal(t, "bar", arr.Value(1).S)

	// the builder is reusable after NewArray
	require.NoError(t, builder.Append(StringValue("baz")))
	next := builder.NewArray()
	assert.Equal(t, 1, next.Len())
	assert.Equal(t, "baz", next.Value(0).S)
}

func TestListArrayOffsets(t *testing.T) {
	col := Column{Path: "tags", Type: TypeList, Nullable: true, Elem: TypeInt64}
	arr := buildArray(t, col, []*Value{
		vp(ListValue([]Value{Int64Value(1), Int64Value(2), Int64Value(3)})),
		vp(ListValue(nil)),
		nil,
		vp(ListValue([]Value{Int64Value(4)})),
	}).(*ListArray)

	assert.Equal(t, []int32{0, 3, 3, 3, 4}, arr.Offsets())
	assert.Equal(t, 4, arr.Elem().Len())
	assert.Equal(t, TypeInt64, arr.ElemType())

	// a null list and an empty list are different things
	assert.False(t, arr.IsNull(1))
	assert.Len(t, arr.Value(1).L, 0)
	assert.True(t, arr.IsNull(2))
}

func TestRecordBatch(t *testing.T) {
	schema := &Schema{Fields: []Field{
		{Name: "id", Type: TypeInt64},
		{Name: "name", Type: TypeString, Nullable: true},
	}}
	require.NoError(t, schema.Validate())

	ids := buildArray(t, Column{Path: "id", Type: TypeInt64}, []*Value{
		vp(Int64Value(1)), vp(Int64Value(2)), vp(Int64Value(3)),
	})
	names := buildArray(t, Column{Path: "name", Type: TypeString, Nullable: true}, []*Value{
		vp(StringValue("a")), nil, vp(StringValue("c")),
	})

	batch, err := NewRecordBatch(schema, []Array{ids, names})
	require.NoError(t, err)
	assert.Equal(t, 3, batch.NumRows())
	assert.Equal(t, ids, batch.Column(0))
	assert.Equal(t, names, batch.ColumnByPath("name"))
	assert.Nil(t, batch.ColumnByPath("missing"))

	// row adapter feeds the predicate evaluator
	matched := Matches(NewComparison("name", OpIsNull, Value{}), batch.Row(1))
	assert.True(t, matched)
	matched = Matches(NewComparison("id", OpEqual, Int64Value(3)), batch.Row(2))
	assert.True(t, matched)
}

func TestRecordBatchValidation(t *testing.T) {
	schema := &Schema{Fields: []Field{
		{Name: "id", Type: TypeInt64},
		{Name: "name", Type: TypeString, Nullable: true},
	}}

	ids := buildArray(t, Column{Path: "id", Type: TypeInt64}, []*Value{vp(Int64Value(1))})

	// column count mismatch
	_, err := NewRecordBatch(schema, []Array{ids})
	assert.Error(t, err)

	// row count mismatch
	names := buildArray(t, Column{Path: "name", Type: TypeString, Nullable: true}, []*Value{
		vp(StringValue("a")), vp(StringValue("b")),
	})
	_, err = NewRecordBatch(schema, []Array{ids, names})
	assert.Error(t, err)
}
