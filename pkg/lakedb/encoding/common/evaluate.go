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

// Decision is the outcome of evaluating a predicate against column
// statistics. Only CanExclude authorizes skipping data, the other two both
// mean the data has to be read.
type Decision int

const (
	// Unknown means the statistics carry no information either way.
	Unknown Decision = iota
	// CannotExclude means rows may match.
	CannotExclude
	// CanExclude means the statistics prove that no row matches.
	CanExclude
)

func (d Decision) String() string {
	switch d {
	case CannotExclude:
		return "cannot_exclude"
	case CanExclude:
		return "can_exclude"
	default:
		return "unknown"
	}
}

// StatsSource hands the evaluator the statistics of one horizontal slice
// of data, typically a row group. ColumnStats returns nil when the slice
// has no such column.
type StatsSource interface {
	ColumnStats(path string) *ColumnStatistics
	RowCount() int64
}

// EvaluateStats decides whether the slice described by s can be excluded
// from a scan of p. The decision is conservative: CanExclude is returned
// only when the statistics prove that no row in the slice can match. A nil
// predicate excludes nothing.
func EvaluateStats(p Predicate, s StatsSource) Decision {
	if p == nil {
		return CannotExclude
	}

	switch e := p.(type) {
	case *Comparison:
		return evaluateComparison(e, s)
	case *Conjunction:
		// one excluded conjunct excludes the whole slice
		result := CannotExclude
		for _, sub := range e.Exprs {
			switch EvaluateStats(sub, s) {
			case CanExclude:
				return CanExclude
			case Unknown:
				result = Unknown
			}
		}
		return result
	case *Disjunction:
		// every disjunct has to be excluded
		result := CanExclude
		for _, sub := range e.Exprs {
			switch EvaluateStats(sub, s) {
			case CannotExclude:
				return CannotExclude
			case Unknown:
				result = Unknown
			}
		}
		return result
	case *Negation:
		// CannotExclude does not invert to CanExclude, so push the
		// negation into the leaves and evaluate those instead.
		return EvaluateStats(Normalize(e), s)
	default:
		return Unknown
	}
}

func evaluateComparison(c *Comparison, s StatsSource) Decision {
	stats := s.ColumnStats(c.Column)
	if stats == nil {
		return Unknown
	}

	switch c.Op {
	case OpIsNull:
		if stats.NullCount == 0 {
			return CanExclude
		}
		return CannotExclude
	case OpNotNull:
		if stats.NullCount == s.RowCount() {
			return CanExclude
		}
		return CannotExclude
	}

	// value operators need a range
	if stats.Min == nil || stats.Max == nil {
		return Unknown
	}
	// a NaN is outside the recorded range but still matches != and defeats
	// every bound, so the range proves nothing
	if stats.HasNaN {
		return CannotExclude
	}

	min, max := *stats.Min, *stats.Max
	switch c.Op {
	case OpEqual:
		if Compare(c.Literal, min) < 0 || Compare(c.Literal, max) > 0 {
			return CanExclude
		}
	case OpNotEqual:
		// nulls never match a value comparison, so a constant chunk equal
		// to the literal has no matching rows even when nulls are present
		if Compare(min, max) == 0 && Compare(c.Literal, min) == 0 {
			return CanExclude
		}
	case OpGreater:
		if Compare(max, c.Literal) <= 0 {
			return CanExclude
		}
	case OpGreaterEqual:
		if Compare(max, c.Literal) < 0 {
			return CanExclude
		}
	case OpLess:
		if Compare(min, c.Literal) >= 0 {
			return CanExclude
		}
	case OpLessEqual:
		if Compare(min, c.Literal) > 0 {
			return CanExclude
		}
	}
	return CannotExclude
}

// RowSource hands the evaluator the values of a single row. ok is false
// when the column is null in this row.
type RowSource interface {
	ColumnValue(path string) (v Value, ok bool)
}

// Matches evaluates p against one row under three valued logic: a
// comparison against a null value is neither true nor false, negation
// preserves that, and only rows that evaluate to true match. A nil
// predicate matches every row.
func Matches(p Predicate, row RowSource) bool {
	if p == nil {
		return true
	}
	return evaluateRow(p, row) == truthTrue
}

type truth int

const (
	truthFalse truth = iota
	truthNull
	truthTrue
)

func evaluateRow(p Predicate, row RowSource) truth {
	switch e := p.(type) {
	case *Comparison:
		return evaluateRowComparison(e, row)
	case *Conjunction:
		result := truthTrue
		for _, sub := range e.Exprs {
			if t := evaluateRow(sub, row); t < result {
				result = t
			}
		}
		return result
	case *Disjunction:
		result := truthFalse
		for _, sub := range e.Exprs {
			if t := evaluateRow(sub, row); t > result {
				result = t
			}
		}
		return result
	case *Negation:
		switch evaluateRow(e.Expr, row) {
		case truthTrue:
			return truthFalse
		case truthFalse:
			return truthTrue
		default:
			return truthNull
		}
	default:
		return truthNull
	}
}

func evaluateRowComparison(c *Comparison, row RowSource) truth {
	v, ok := row.ColumnValue(c.Column)

	switch c.Op {
	case OpIsNull:
		return toTruth(!ok)
	case OpNotNull:
		return toTruth(ok)
	}

	if !ok {
		return truthNull
	}
	// IEEE semantics: every ordered comparison against a NaN is false and
	// inequality is true
	if v.IsNaN() || c.Literal.IsNaN() {
		return toTruth(c.Op == OpNotEqual)
	}

	cmp := Compare(v, c.Literal)
	switch c.Op {
	case OpEqual:
		return toTruth(cmp == 0)
	case OpNotEqual:
		return toTruth(cmp != 0)
	case OpGreater:
		return toTruth(cmp > 0)
	case OpGreaterEqual:
		return toTruth(cmp >= 0)
	case OpLess:
		return toTruth(cmp < 0)
	case OpLessEqual:
		return toTruth(cmp <= 0)
	}
	return truthNull
}

func toTruth(b bool) truth {
	if b {
		return truthTrue
	}
	return truthFalse
}
