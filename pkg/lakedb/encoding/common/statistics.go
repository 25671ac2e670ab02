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

import "strconv"

// maxDistinctTracked caps the exact distinct tracker. Chunks with higher
// cardinality report DistinctEst -1 instead of an estimate.
const maxDistinctTracked = 1024

// StatisticsBuilder accumulates ColumnStatistics while a column chunk is
// written. Distinct values are tracked exactly up to maxDistinctTracked,
// beyond that the count is reported as unknown. NaN floats set HasNaN and
// are excluded from the min/max range.
type StatisticsBuilder struct {
	typ      DataType
	nulls    int64
	min      *Value
	max      *Value
	hasNaN   bool
	distinct map[string]struct{}
	overflow bool
}

func NewStatisticsBuilder(typ DataType) *StatisticsBuilder {
	b := &StatisticsBuilder{typ: typ}
	if typ.IsPrimitive() {
		b.distinct = make(map[string]struct{})
	} else {
		// containers carry no value range
		b.overflow = true
	}
	return b
}

// AppendNull records a null without touching the range.
func (b *StatisticsBuilder) AppendNull() {
	b.nulls++
}

// Append records one non-null value.
func (b *StatisticsBuilder) Append(v Value) {
	if !b.typ.IsPrimitive() {
		return
	}

	if v.IsNaN() {
		b.hasNaN = true
		return
	}

	if b.min == nil || Compare(v, *b.min) < 0 {
		b.min = ownedValue(v)
	}
	if b.max == nil || Compare(v, *b.max) > 0 {
		b.max = ownedValue(v)
	}

	if !b.overflow {
		b.distinct[distinctKey(v)] = struct{}{}
		if len(b.distinct) > maxDistinctTracked {
			b.overflow = true
			b.distinct = nil
		}
	}
}

// Build returns the accumulated statistics. The builder must not be used
// afterwards.
func (b *StatisticsBuilder) Build() ColumnStatistics {
	stats := ColumnStatistics{
		NullCount:   b.nulls,
		DistinctEst: -1,
		Min:         b.min,
		Max:         b.max,
		HasNaN:      b.hasNaN,
	}
	if !b.overflow {
		stats.DistinctEst = int64(len(b.distinct))
	}
	return stats
}

// ownedValue copies v so the statistics do not alias buffers the caller
// may reuse for the next row.
func ownedValue(v Value) *Value {
	if v.Raw != nil {
		v.Raw = append([]byte(nil), v.Raw...)
	}
	return &v
}

func distinctKey(v Value) string {
	switch v.Type {
	case TypeBool:
		if v.B {
			return "t"
		}
		return "f"
	case TypeInt32, TypeInt64, TypeTimestamp:
		return strconv.FormatInt(v.I, 10)
	case TypeFloat32, TypeFloat64:
		return strconv.FormatFloat(v.F, 'g', -1, 64)
	case TypeString:
		return v.S
	case TypeBytes:
		return string(v.Raw)
	}
	return ""
}
