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

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPredicateString(t *testing.T) {
	p := NewAnd(
		NewComparison("x", OpGreater, Int64Value(15)),
		NewOr(
			NewComparison("name", OpEqual, StringValue("foo")),
			NewComparison("name", OpIsNull, Value{}),
		),
		NewNot(NewComparison("y", OpLessEqual, Float64Value(2.5))),
	)

	assert.Equal(t, `(x > 15 && (name = "foo" || name is null) && !(y <= 2.5))`, p.String())
}

func TestNormalize(t *testing.T) {
	tests := []struct {
		name     string
		input    Predicate
		expected string
	}{
		{
			name:     "comparison unchanged",
			input:    NewComparison("x", OpGreater, Int64Value(1)),
			expected: "x > 1",
		},
		{
			name:     "negated comparison flips the operator",
			input:    NewNot(NewComparison("x", OpGreater, Int64Value(1))),
			expected: "x <= 1",
		},
		{
			name:     "double negation cancels",
			input:    NewNot(NewNot(NewComparison("x", OpEqual, Int64Value(1)))),
			expected: "x = 1",
		},
		{
			name: "de morgan over and",
			input: NewNot(NewAnd(
				NewComparison("x", OpEqual, Int64Value(1)),
				NewComparison("y", OpLess, Int64Value(2)),
			)),
			expected: "(x != 1 || y >= 2)",
		},
		{
			name: "de morgan over or",
			input: NewNot(NewOr(
				NewComparison("x", OpIsNull, Value{}),
				NewComparison("y", OpGreaterEqual, Int64Value(2)),
			)),
			expected: "(x is not null && y < 2)",
		},
		{
			name: "nested negations",
			input: NewNot(NewAnd(
				NewNot(NewComparison("x", OpEqual, Int64Value(1))),
				NewComparison("y", OpNotNull, Value{}),
			)),
			expected: "(x = 1 || y is null)",
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			normalized := Normalize(tt.input)
			assert.Equal(t, tt.expected, normalized.String())

			// no negation node survives
			assert.NotContains(t, normalized.String(), "!(")
		})
	}
}

func TestNormalizeDoesNotModifyInput(t *testing.T) {
	cmp := NewComparison("x", OpGreater, Int64Value(1))
	input := NewNot(cmp)

	_ = Normalize(input)

	assert.Equal(t, OpGreater, cmp.Op)
}

func TestBind(t *testing.T) {
	schema := testSchema()

	t.Run("valid predicate", func(t *testing.T) {
		p := NewAnd(
			NewComparison("id", OpGreater, Int64Value(10)),
			NewComparison("resource.service.name", OpEqual, StringValue("api")),
		)
		bound, err := Bind(p, schema)
		require.NoError(t, err)
		assert.Equal(t, `(id > 10 && resource.service.name = "api")`, bound.String())
	})

	t.Run("unknown column", func(t *testing.T) {
		p := NewComparison("nope", OpEqual, Int64Value(1))
		_, err := Bind(p, schema)
		assert.ErrorIs(t, err, ErrUnknownColumn)
	})

	t.Run("unknown column nested in a conjunction", func(t *testing.T) {
		p := NewAnd(
			NewComparison("id", OpGreater, Int64Value(10)),
			NewOr(
				NewComparison("name", OpIsNull, Value{}),
				NewComparison("nope", OpEqual, Int64Value(1)),
			),
		)
		_, err := Bind(p, schema)
		assert.ErrorIs(t, err, ErrUnknownColumn)
	})

	t.Run("struct path is not a column", func(t *testing.T) {
		p := NewComparison("resource", OpNotNull, Value{})
		_, err := Bind(p, schema)
		assert.ErrorIs(t, err, ErrUnknownColumn)
	})

	t.Run("list column rejects comparisons", func(t *testing.T) {
		p := NewComparison("tags", OpEqual, StringValue("a"))
		_, err := Bind(p, schema)
		assert.ErrorIs(t, err, ErrInvalidPredicate)
	})

	t.Run("type mismatch", func(t *testing.T) {
		p := NewComparison("name", OpEqual, Int64Value(1))
		_, err := Bind(p, schema)
		assert.ErrorIs(t, err, ErrInvalidPredicate)
	})

	t.Run("empty conjunction", func(t *testing.T) {
		_, err := Bind(NewAnd(), schema)
		assert.ErrorIs(t, err, ErrInvalidPredicate)
	})

	t.Run("nil predicate", func(t *testing.T) {
		bound, err := Bind(nil, schema)
		require.NoError(t, err)
		assert.Nil(t, bound)
	})
}

func TestBindCoercesLiterals(t *testing.T) {
	schema := &Schema{Fields: []Field{
		{Name: "small", Type: TypeInt32},
		{Name: "big", Type: TypeInt64},
		{Name: "at", Type: TypeTimestamp},
		{Name: "ratio", Type: TypeFloat32},
	}}
	require.NoError(t, schema.Validate())

	t.Run("int64 literal narrows to int32", func(t *testing.T) {
		bound, err := Bind(NewComparison("small", OpEqual, Int64Value(7)), schema)
		require.NoError(t, err)
		assert.Equal(t, TypeInt32, bound.(*Comparison).Literal.Type)
	})

	t.Run("out of range literal is rejected", func(t *testing.T) {
		_, err := Bind(NewComparison("small", OpEqual, Int64Value(1<<40)), schema)
		assert.ErrorIs(t, err, ErrInvalidPredicate)
	})

	t.Run("int32 literal widens to int64", func(t *testing.T) {
		bound, err := Bind(NewComparison("big", OpLess, Int32Value(7)), schema)
		require.NoError(t, err)
		assert.Equal(t, TypeInt64, bound.(*Comparison).Literal.Type)
	})

	t.Run("int64 literal works as timestamp nanos", func(t *testing.T) {
		bound, err := Bind(NewComparison("at", OpGreaterEqual, Int64Value(1e18)), schema)
		require.NoError(t, err)
		assert.Equal(t, TypeTimestamp, bound.(*Comparison).Literal.Type)
	})

	t.Run("float widths coerce", func(t *testing.T) {
		bound, err := Bind(NewComparison("ratio", OpGreater, Float64Value(0.5)), schema)
		require.NoError(t, err)
		assert.Equal(t, TypeFloat32, bound.(*Comparison).Literal.Type)
	})

	t.Run("int does not coerce to float", func(t *testing.T) {
		_, err := Bind(NewComparison("ratio", OpGreater, Int64Value(1)), schema)
		assert.ErrorIs(t, err, ErrInvalidPredicate)
	})
}

func TestRequiredEqualities(t *testing.T) {
	tests := []struct {
		name     string
		input    Predicate
		expected []string
	}{
		{
			name:     "single equality",
			input:    NewComparison("x", OpEqual, Int64Value(1)),
			expected: []string{"x"},
		},
		{
			name: "conjunctive spine",
			input: NewAnd(
				NewComparison("x", OpEqual, Int64Value(1)),
				NewComparison("y", OpGreater, Int64Value(2)),
				NewAnd(
					NewComparison("z", OpEqual, StringValue("a")),
				),
			),
			expected: []string{"x", "z"},
		},
		{
			name: "disjunction contributes nothing",
			input: NewOr(
				NewComparison("x", OpEqual, Int64Value(1)),
				NewComparison("y", OpEqual, Int64Value(2)),
			),
			expected: nil,
		},
		{
			name:     "negated inequality becomes required",
			input:    NewNot(NewComparison("x", OpNotEqual, Int64Value(1))),
			expected: []string{"x"},
		},
		{
			name:     "range predicate has none",
			input:    NewComparison("x", OpGreater, Int64Value(1)),
			expected: nil,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			eqs := RequiredEqualities(tt.input)
			var cols []string
			for _, eq := range eqs {
				cols = append(cols, eq.Column)
			}
			assert.Equal(t, tt.expected, cols)
		})
	}
}
