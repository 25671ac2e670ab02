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

package vcol1

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/intergral/lakescan/pkg/lakedb/encoding/common"
)

func leafPaths(p *projection) []string {
	paths := make([]string, 0, len(p.leaves))
	for _, l := range p.leaves {
		paths = append(paths, l.Path)
	}
	return paths
}

func TestResolveProjection(t *testing.T) {
	schema := testSchema()

	tests := []struct {
		name    string
		columns []string
		want    []string
	}{
		{
			name:    "single leaf",
			columns: []string{"id"},
			want:    []string{"id"},
		},
		{
			name:    "request order is preserved",
			columns: []string{"active", "id", "name"},
			want:    []string{"active", "id", "name"},
		},
		{
			name:    "struct expands to its leaves",
			columns: []string{"attrs"},
			want:    []string{"attrs.region", "attrs.weight"},
		},
		{
			name:    "nested leaf alone",
			columns: []string{"attrs.weight"},
			want:    []string{"attrs.weight"},
		},
		{
			name:    "struct between scalars",
			columns: []string{"temps", "attrs", "id"},
			want:    []string{"temps", "attrs.region", "attrs.weight", "id"},
		},
		{
			name:    "sibling leaves of one struct",
			columns: []string{"attrs.weight", "id", "attrs.region"},
			want:    []string{"attrs.weight", "attrs.region", "id"},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			proj, err := resolveProjection(schema, tc.columns)
			require.NoError(t, err)
			require.Equal(t, tc.want, leafPaths(proj))
			require.NoError(t, proj.schema.Validate())
		})
	}
}

func TestResolveProjectionKeepsLeafShape(t *testing.T) {
	proj, err := resolveProjection(testSchema(), []string{"name", "temps"})
	require.NoError(t, err)

	require.Equal(t, common.Column{Path: "name", Type: common.TypeString, Nullable: true}, proj.leaves[0])
	require.Equal(t, common.Column{Path: "temps", Type: common.TypeList, Elem: common.TypeFloat64}, proj.leaves[1])
}

func TestResolveProjectionErrors(t *testing.T) {
	schema := testSchema()

	tests := []struct {
		name    string
		columns []string
		err     error
	}{
		{name: "no columns", columns: nil, err: common.ErrInvalidProjection},
		{name: "empty path", columns: []string{"id", ""}, err: common.ErrInvalidProjection},
		{name: "unknown column", columns: []string{"missing"}, err: common.ErrUnknownColumn},
		{name: "unknown nested column", columns: []string{"attrs.missing"}, err: common.ErrUnknownColumn},
		{name: "leaf below a leaf", columns: []string{"id.sub"}, err: common.ErrUnknownColumn},
		{name: "duplicate leaf", columns: []string{"id", "id"}, err: common.ErrInvalidProjection},
		{name: "struct then its leaf", columns: []string{"attrs", "attrs.region"}, err: common.ErrInvalidProjection},
		{name: "leaf then its struct", columns: []string{"attrs.region", "attrs"}, err: common.ErrInvalidProjection},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := resolveProjection(schema, tc.columns)
			require.Error(t, err)
			require.ErrorIs(t, err, tc.err)
		})
	}
}
