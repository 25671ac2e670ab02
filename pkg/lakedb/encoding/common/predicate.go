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

// CompareOp is the operator of a single column comparison.
type CompareOp int

const (
	OpEqual CompareOp = iota + 1
	OpNotEqual
	OpGreater
	OpGreaterEqual
	OpLess
	OpLessEqual
	OpIsNull
	OpNotNull
)

func (op CompareOp) String() string {
	switch op {
	case OpEqual:
		return "="
	case OpNotEqual:
		return "!="
	case OpGreater:
		return ">"
	case OpGreaterEqual:
		return ">="
	case OpLess:
		return "<"
	case OpLessEqual:
		return "<="
	case OpIsNull:
		return "is null"
	case OpNotNull:
		return "is not null"
	}
	return fmt.Sprintf("op(%d)", int(op))
}

// isUnary reports whether the operator tests nullness and carries no
// literal.
func (op CompareOp) isUnary() bool {
	return op == OpIsNull || op == OpNotNull
}

// negate returns the complement operator. Complements are exact under
// three valued logic: for a null value both the operator and its
// complement evaluate to null.
func (op CompareOp) negate() CompareOp {
	switch op {
	case OpEqual:
		return OpNotEqual
	case OpNotEqual:
		return OpEqual
	case OpGreater:
		return OpLessEqual
	case OpGreaterEqual:
		return OpLess
	case OpLess:
		return OpGreaterEqual
	case OpLessEqual:
		return OpGreater
	case OpIsNull:
		return OpNotNull
	case OpNotNull:
		return OpIsNull
	}
	panic(fmt.Sprintf("no complement for operator %d", int(op)))
}

// Predicate is a boolean expression over the columns of a single row.
// Concrete nodes are Comparison, Conjunction, Disjunction and Negation.
type Predicate interface {
	String() string
}

// Comparison compares one column against a literal, or tests it for
// nullness. Literal is ignored for OpIsNull and OpNotNull.
type Comparison struct {
	Column  string
	Op      CompareOp
	Literal Value
}

// Conjunction is true when all of its children are true.
type Conjunction struct {
	Exprs []Predicate
}

// Disjunction is true when any of its children is true.
type Disjunction struct {
	Exprs []Predicate
}

// Negation inverts its child.
type Negation struct {
	Expr Predicate
}

func NewComparison(column string, op CompareOp, literal Value) *Comparison {
	return &Comparison{Column: column, Op: op, Literal: literal}
}

func NewAnd(exprs ...Predicate) *Conjunction {
	return &Conjunction{Exprs: exprs}
}

func NewOr(exprs ...Predicate) *Disjunction {
	return &Disjunction{Exprs: exprs}
}

func NewNot(expr Predicate) *Negation {
	return &Negation{Expr: expr}
}

func (c *Comparison) String() string {
	if c.Op.isUnary() {
		return fmt.Sprintf("%s %s", c.Column, c.Op)
	}
	return fmt.Sprintf("%s %s %s", c.Column, c.Op, c.Literal)
}

func (c *Conjunction) String() string {
	return joinExprs(c.Exprs, " && ")
}

func (d *Disjunction) String() string {
	return joinExprs(d.Exprs, " || ")
}

func (n *Negation) String() string {
	return "!(" + n.Expr.String() + ")"
}

func joinExprs(exprs []Predicate, sep string) string {
	parts := make([]string, 0, len(exprs))
	for _, e := range exprs {
		parts = append(parts, e.String())
	}
	return "(" + strings.Join(parts, sep) + ")"
}

// Normalize returns an equivalent predicate with all negations pushed down
// into the comparisons. The result contains no Negation nodes, which lets
// the statistics evaluator reason about every remaining node directly. The
// input is not modified.
func Normalize(p Predicate) Predicate {
	switch e := p.(type) {
	case *Negation:
		return normalizeNot(e.Expr)
	case *Conjunction:
		return &Conjunction{Exprs: normalizeAll(e.Exprs)}
	case *Disjunction:
		return &Disjunction{Exprs: normalizeAll(e.Exprs)}
	default:
		return p
	}
}

func normalizeAll(exprs []Predicate) []Predicate {
	out := make([]Predicate, len(exprs))
	for i, e := range exprs {
		out[i] = Normalize(e)
	}
	return out
}

// normalizeNot returns the normalized form of !p using De Morgan and the
// operator complements.
func normalizeNot(p Predicate) Predicate {
	switch e := p.(type) {
	case *Negation:
		return Normalize(e.Expr)
	case *Conjunction:
		out := make([]Predicate, len(e.Exprs))
		for i, sub := range e.Exprs {
			out[i] = normalizeNot(sub)
		}
		return &Disjunction{Exprs: out}
	case *Disjunction:
		out := make([]Predicate, len(e.Exprs))
		for i, sub := range e.Exprs {
			out[i] = normalizeNot(sub)
		}
		return &Conjunction{Exprs: out}
	case *Comparison:
		c := *e
		c.Op = c.Op.negate()
		return &c
	default:
		return &Negation{Expr: Normalize(p)}
	}
}

// Bind validates p against the schema and returns a copy with every
// literal coerced to the exact type of its column. Comparisons against
// columns the schema does not have fail with ErrUnknownColumn, literals
// that cannot represent a value of the column type fail with
// ErrInvalidPredicate. Binding happens before any data is read, a scan
// with an unbindable predicate never touches the object store.
func Bind(p Predicate, schema *Schema) (Predicate, error) {
	if p == nil {
		return nil, nil
	}

	leaves := schema.Leaves()
	byPath := make(map[string]Column, len(leaves))
	for _, c := range leaves {
		byPath[c.Path] = c
	}
	return bind(p, byPath)
}

func bind(p Predicate, leaves map[string]Column) (Predicate, error) {
	switch e := p.(type) {
	case *Comparison:
		col, ok := leaves[e.Column]
		if !ok {
			return nil, fmt.Errorf("column %q: %w", e.Column, ErrUnknownColumn)
		}
		if e.Op.isUnary() {
			return &Comparison{Column: e.Column, Op: e.Op}, nil
		}
		lit, err := coerceLiteral(e.Literal, col)
		if err != nil {
			return nil, err
		}
		return &Comparison{Column: e.Column, Op: e.Op, Literal: lit}, nil
	case *Conjunction:
		exprs, err := bindAll(e.Exprs, leaves)
		if err != nil {
			return nil, err
		}
		return &Conjunction{Exprs: exprs}, nil
	case *Disjunction:
		exprs, err := bindAll(e.Exprs, leaves)
		if err != nil {
			return nil, err
		}
		return &Disjunction{Exprs: exprs}, nil
	case *Negation:
		expr, err := bind(e.Expr, leaves)
		if err != nil {
			return nil, err
		}
		return &Negation{Expr: expr}, nil
	default:
		return nil, fmt.Errorf("unsupported predicate node %T: %w", p, ErrInvalidPredicate)
	}
}

func bindAll(exprs []Predicate, leaves map[string]Column) ([]Predicate, error) {
	if len(exprs) == 0 {
		return nil, fmt.Errorf("empty boolean expression: %w", ErrInvalidPredicate)
	}
	out := make([]Predicate, len(exprs))
	for i, e := range exprs {
		bound, err := bind(e, leaves)
		if err != nil {
			return nil, err
		}
		out[i] = bound
	}
	return out, nil
}

// coerceLiteral rewrites lit to the exact type of col. Integer literals
// move freely between the integer widths and timestamps as long as the
// value fits, floats move between the two float widths. Everything else
// must match exactly.
func coerceLiteral(lit Value, col Column) (Value, error) {
	if col.Type == TypeList {
		return Value{}, fmt.Errorf("column %q is a list: %w", col.Path, ErrInvalidPredicate)
	}
	if lit.Type == col.Type {
		return lit, nil
	}

	switch {
	case isIntegerType(lit.Type) && isIntegerType(col.Type):
		if col.Type == TypeInt32 && (lit.I > maxInt32 || lit.I < minInt32) {
			return Value{}, fmt.Errorf("literal %s does not fit column %q of type %s: %w", lit, col.Path, col.Type, ErrInvalidPredicate)
		}
		lit.Type = col.Type
		return lit, nil
	case isFloatType(lit.Type) && isFloatType(col.Type):
		lit.Type = col.Type
		return lit, nil
	}

	return Value{}, fmt.Errorf("cannot compare column %q of type %s with a %s literal: %w", col.Path, col.Type, lit.Type, ErrInvalidPredicate)
}

const (
	maxInt32 = int64(1<<31 - 1)
	minInt32 = int64(-1 << 31)
)

func isIntegerType(t DataType) bool {
	return t == TypeInt32 || t == TypeInt64 || t == TypeTimestamp
}

func isFloatType(t DataType) bool {
	return t == TypeFloat32 || t == TypeFloat64
}

// RequiredEqualities returns the equality comparisons that must hold for p
// to be true: the equalities found on the conjunctive spine of the
// predicate. A row group whose filters prove the absence of any one of
// them cannot contain a matching row.
func RequiredEqualities(p Predicate) []Comparison {
	var out []Comparison
	collectEqualities(Normalize(p), &out)
	return out
}

func collectEqualities(p Predicate, out *[]Comparison) {
	switch e := p.(type) {
	case *Comparison:
		if e.Op == OpEqual {
			*out = append(*out, *e)
		}
	case *Conjunction:
		for _, sub := range e.Exprs {
			collectEqualities(sub, out)
		}
	}
}
