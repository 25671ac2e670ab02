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
	"fmt"
	"strings"

	"github.com/intergral/lakescan/pkg/lakedb/encoding/common"
)

// projection is a scan's view onto the file schema.
type projection struct {
	// schema is the projected schema handed to every batch. Columns appear
	// in the order they were requested, members of one struct group under
	// it at its first mention.
	schema *common.Schema
	// leaves are the projected leaf columns. Their paths double as the
	// chunk paths to fetch, projection never changes a column's path.
	leaves []common.Column
}

// resolveProjection maps requested column paths onto the file schema.
// A path naming a leaf selects that leaf, a path naming a struct selects
// every leaf below it. List columns are only ever read whole. Unknown
// paths fail with ErrUnknownColumn, empty, duplicate or overlapping
// requests (a struct and one of its own leaves) with ErrInvalidProjection.
func resolveProjection(schema *common.Schema, columns []string) (*projection, error) {
	if len(columns) == 0 {
		return nil, fmt.Errorf("no columns requested: %w", common.ErrInvalidProjection)
	}

	var nodes []*projNode
	selected := make(map[string]string)

	for _, path := range columns {
		if path == "" {
			return nil, fmt.Errorf("empty column path: %w", common.ErrInvalidProjection)
		}

		field, err := findField(schema.Fields, path)
		if err != nil {
			return nil, err
		}

		for _, lf := range subtreeLeafPaths(path, field) {
			if prev, ok := selected[lf]; ok {
				if prev == path {
					return nil, fmt.Errorf("column %q requested twice: %w", path, common.ErrInvalidProjection)
				}
				return nil, fmt.Errorf("columns %q and %q overlap: %w", prev, path, common.ErrInvalidProjection)
			}
			selected[lf] = path
		}

		nodes = insertPath(nodes, schema.Fields, strings.Split(path, "."), field)
	}

	proj := &projection{schema: &common.Schema{Fields: materialize(nodes)}}
	proj.leaves = proj.schema.Leaves()
	return proj, nil
}

// findField resolves a dotted path to its field in the schema.
func findField(fields []common.Field, path string) (common.Field, error) {
	segs := strings.Split(path, ".")
	for i, seg := range segs {
		f := fieldByName(fields, seg)
		if f == nil {
			break
		}
		if i == len(segs)-1 {
			return *f, nil
		}
		if f.Type != common.TypeStruct {
			break
		}
		fields = f.Children
	}
	return common.Field{}, fmt.Errorf("no column %q in the file schema: %w", path, common.ErrUnknownColumn)
}

func fieldByName(fields []common.Field, name string) *common.Field {
	for i := range fields {
		if fields[i].Name == name {
			return &fields[i]
		}
	}
	return nil
}

// subtreeLeafPaths lists the leaf paths a request for path selects.
func subtreeLeafPaths(path string, f common.Field) []string {
	if f.Type != common.TypeStruct {
		return []string{path}
	}
	var out []string
	for _, c := range f.Children {
		out = append(out, subtreeLeafPaths(path+"."+c.Name, c)...)
	}
	return out
}

// projNode is one field of the projected schema under construction.
// Struct shells created while descending keep their children in nodes,
// fully selected subtrees keep the original field untouched.
type projNode struct {
	field common.Field
	nodes []*projNode
}

func insertPath(nodes []*projNode, origin []common.Field, segs []string, field common.Field) []*projNode {
	name := segs[0]
	var node *projNode
	for _, n := range nodes {
		if n.field.Name == name {
			node = n
			break
		}
	}

	if node == nil {
		if len(segs) == 1 {
			return append(nodes, &projNode{field: field})
		}
		shell := *fieldByName(origin, name)
		shell.Children = nil
		node = &projNode{field: shell}
		nodes = append(nodes, node)
	}

	// overlap detection already rejected descending into a selected leaf
	node.nodes = insertPath(node.nodes, fieldByName(origin, name).Children, segs[1:], field)
	return nodes
}

func materialize(nodes []*projNode) []common.Field {
	fields := make([]common.Field, 0, len(nodes))
	for _, n := range nodes {
		f := n.field
		if len(n.nodes) > 0 {
			f.Children = materialize(n.nodes)
		}
		fields = append(fields, f)
	}
	return fields
}
