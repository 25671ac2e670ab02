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
	"fmt"
	"strings"
)

// Field is a single node in a file schema. A Field is one of three shapes:
// a primitive leaf, a struct carrying Children, or a list carrying a
// primitive Elem. Structs exist only to group leaves and are never nullable
// themselves, nullability belongs to the leaves.
type Field struct {
	Name     string   `yaml:"name" json:"name"`
	Type     DataType `yaml:"type" json:"type"`
	Nullable bool     `yaml:"nullable,omitempty" json:"nullable,omitempty"`
	Elem     *Field   `yaml:"elem,omitempty" json:"elem,omitempty"`
	Children []Field  `yaml:"children,omitempty" json:"children,omitempty"`
}

// Schema is the ordered set of top level fields in a file. Field order is
// significant, leaves are stored in depth first order and all metadata
// refers to them by that order.
type Schema struct {
	Fields []Field `yaml:"fields" json:"fields"`
}

// Column identifies one leaf column of a schema. Path is the dotted path
// from the root, e.g. "resource.service.name". For list columns Type is
// TypeList and Elem carries the element type.
type Column struct {
	Path     string
	Type     DataType
	Nullable bool
	Elem     DataType
}

// Validate checks the schema against the rules of the format: unique,
// non-empty names per level, structs must carry children and cannot be
// nullable, list elements must be non-nullable primitives.
func (s *Schema) Validate() error {
	if s == nil || len(s.Fields) == 0 {
		return fmt.Errorf("schema has no fields")
	}
	return validateFields(s.Fields, "")
}

func validateFields(fields []Field, prefix string) error {
	seen := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		path := joinPath(prefix, f.Name)
		if f.Name == "" {
			return fmt.Errorf("field below %q has no name", prefix)
		}
		if strings.Contains(f.Name, ".") {
			return fmt.Errorf("field name %q contains a reserved '.'", path)
		}
		if _, ok := seen[f.Name]; ok {
			return fmt.Errorf("duplicate field name %q", path)
		}
		seen[f.Name] = struct{}{}

		switch {
		case f.Type == TypeStruct:
			if f.Nullable {
				return fmt.Errorf("struct field %q cannot be nullable: %w", path, ErrUnsupported)
			}
			if f.Elem != nil {
				return fmt.Errorf("struct field %q carries a list element", path)
			}
			if len(f.Children) == 0 {
				return fmt.Errorf("struct field %q has no children", path)
			}
			if err := validateFields(f.Children, path); err != nil {
				return err
			}
		case f.Type == TypeList:
			if f.Elem == nil {
				return fmt.Errorf("list field %q has no element", path)
			}
			if len(f.Children) > 0 {
				return fmt.Errorf("list field %q carries struct children", path)
			}
			if !f.Elem.Type.IsPrimitive() {
				return fmt.Errorf("list field %q must hold primitive elements, got %s: %w", path, f.Elem.Type, ErrUnsupported)
			}
			if f.Elem.Nullable {
				return fmt.Errorf("list field %q cannot hold nullable elements: %w", path, ErrUnsupported)
			}
		case f.Type.IsPrimitive():
			if f.Elem != nil || len(f.Children) > 0 {
				return fmt.Errorf("primitive field %q carries nested fields", path)
			}
		default:
			return fmt.Errorf("field %q has invalid type %d", path, byte(f.Type))
		}
	}
	return nil
}

// Leaves returns the leaf columns of the schema in depth first order. This
// is the physical column order of the format, chunk metadata in each row
// group is stored in exactly this order.
func (s *Schema) Leaves() []Column {
	var cols []Column
	appendLeaves(&cols, s.Fields, "")
	return cols
}

func appendLeaves(cols *[]Column, fields []Field, prefix string) {
	for _, f := range fields {
		path := joinPath(prefix, f.Name)
		switch f.Type {
		case TypeStruct:
			appendLeaves(cols, f.Children, path)
		case TypeList:
			*cols = append(*cols, Column{
				Path:     path,
				Type:     TypeList,
				Nullable: f.Nullable,
				Elem:     f.Elem.Type,
			})
		default:
			*cols = append(*cols, Column{
				Path:     path,
				Type:     f.Type,
				Nullable: f.Nullable,
			})
		}
	}
}

// Leaf returns the leaf column with the given dotted path.
func (s *Schema) Leaf(path string) (Column, bool) {
	for _, c := range s.Leaves() {
		if c.Path == path {
			return c, true
		}
	}
	return Column{}, false
}

func joinPath(prefix, name string) string {
	if prefix == "" {
		return name
	}
	return prefix + "." + name
}
