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

// testSchema covers all three field shapes: primitives at the root, a
// nested struct and a list.
func testSchema() *Schema {
	return &Schema{Fields: []Field{
		{Name: "id", Type: TypeInt64},
		{Name: "name", Type: TypeString, Nullable: true},
		{Name: "resource", Type: TypeStruct, Children: []Field{
			{Name: "service", Type: TypeStruct, Children: []Field{
				{Name: "name", Type: TypeString},
			}},
			{Name: "host", Type: TypeString, Nullable: true},
		}},
		{Name: "tags", Type: TypeList, Nullable: true, Elem: &Field{Name: "item", Type: TypeString}},
	}}
}

func TestSchemaLeaves(t *testing.T) {
	schema := testSchema()
	require.NoError(t, schema.Validate())

	leaves := schema.Leaves()
	expected := []Column{
		{Path: "id", Type: TypeInt64},
		{Path: "name", Type: TypeString, Nullable: true},
		{Path: "resource.service.name", Type: TypeString},
		{Path: "resource.host", Type: TypeString, Nullable: true},
		{Path: "tags", Type: TypeList, Nullable: true, Elem: TypeString},
	}
	assert.Equal(t, expected, leaves)

	col, ok := schema.Leaf("resource.host")
	assert.True(t, ok)
	assert.Equal(t, TypeString, col.Type)

	_, ok = schema.Leaf("resource")
	assert.False(t, ok)
}

func TestSchemaValidate(t *testing.T) {
	tests := []struct {
		name   string
		schema *Schema
		errMsg string
	}{
		{
			name:   "empty schema",
			schema: &Schema{},
			errMsg: "no fields",
		},
		{
			name: "unnamed field",
			schema: &Schema{Fields: []Field{
				{Type: TypeInt64},
			}},
			errMsg: "no name",
		},
		{
			name: "dotted name",
			schema: &Schema{Fields: []Field{
				{Name: "a.b", Type: TypeInt64},
			}},
			errMsg: "reserved",
		},
		{
			name: "duplicate name",
			schema: &Schema{Fields: []Field{
				{Name: "a", Type: TypeInt64},
				{Name: "a", Type: TypeString},
			}},
			errMsg: "duplicate",
		},
		{
			name: "nullable struct",
			schema: &Schema{Fields: []Field{
				{Name: "s", Type: TypeStruct, Nullable: true, Children: []Field{
					{Name: "a", Type: TypeInt64},
				}},
			}},
			errMsg: "cannot be nullable",
		},
		{
			name: "empty struct",
			schema: &Schema{Fields: []Field{
				{Name: "s", Type: TypeStruct},
			}},
			errMsg: "no children",
		},
		{
			name: "list without element",
			schema: &Schema{Fields: []Field{
				{Name: "l", Type: TypeList},
			}},
			errMsg: "no element",
		},
		{
			name: "list of struct",
			schema: &Schema{Fields: []Field{
				{Name: "l", Type: TypeList, Elem: &Field{Name: "item", Type: TypeStruct, Children: []Field{
					{Name: "a", Type: TypeInt64},
				}}},
			}},
			errMsg: "primitive elements",
		},
		{
			name: "list of list",
			schema: &Schema{Fields: []Field{
				{Name: "l", Type: TypeList, Elem: &Field{Name: "item", Type: TypeList, Elem: &Field{Name: "item", Type: TypeInt64}}},
			}},
			errMsg: "primitive elements",
		},
		{
			name: "nullable list element",
			schema: &Schema{Fields: []Field{
				{Name: "l", Type: TypeList, Elem: &Field{Name: "item", Type: TypeInt64, Nullable: true}},
			}},
			errMsg: "nullable elements",
		},
		{
			name: "primitive with children",
			schema: &Schema{Fields: []Field{
				{Name: "a", Type: TypeInt64, Children: []Field{
					{Name: "b", Type: TypeInt64},
				}},
			}},
			errMsg: "nested fields",
		},
		{
			name: "duplicate nested name",
			schema: &Schema{Fields: []Field{
				{Name: "s", Type: TypeStruct, Children: []Field{
					{Name: "a", Type: TypeInt64},
					{Name: "a", Type: TypeInt64},
				}},
			}},
			errMsg: "duplicate",
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			err := tt.schema.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestFileMetadataValidate(t *testing.T) {
	schema := testSchema()
	leaves := schema.Leaves()

	chunks := func() []ColumnChunkMeta {
		out := make([]ColumnChunkMeta, 0, len(leaves))
		for _, l := range leaves {
			out = append(out, ColumnChunkMeta{Path: l.Path, Type: l.Type, BloomOffset: -1})
		}
		return out
	}

	meta := &FileMetadata{
		Version: "vcol1",
		Schema:  schema,
		RowGroups: []RowGroupMeta{
			{NumRows: 100, Columns: chunks()},
			{NumRows: 50, Columns: chunks()},
		},
		TotalRows: 150,
	}
	require.NoError(t, meta.Validate())

	// row counts must add up
	meta.TotalRows = 151
	assert.ErrorContains(t, meta.Validate(), "row groups sum")
	meta.TotalRows = 150

	// every leaf must be covered
	dropped := meta.RowGroups[0].Columns
	meta.RowGroups[0].Columns = dropped[:len(dropped)-1]
	assert.ErrorContains(t, meta.Validate(), "column chunks")
	meta.RowGroups[0].Columns = dropped

	// chunk order must match leaf order
	meta.RowGroups[0].Columns[0], meta.RowGroups[0].Columns[1] = meta.RowGroups[0].Columns[1], meta.RowGroups[0].Columns[0]
	assert.ErrorContains(t, meta.Validate(), "schema leaf")
}
