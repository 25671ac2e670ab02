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
	"bytes"
	"encoding/binary"
	"math"

	"github.com/willf/bloom"
)

// BloomFilter is the per chunk membership filter consulted before a row
// group is fetched for an equality scan. Test answering false proves the
// key is absent from the chunk, true proves nothing.
type BloomFilter struct {
	filter *bloom.BloomFilter
}

// NewBloom sizes a filter for the expected number of distinct keys at the
// given false positive rate.
func NewBloom(fp float64, estimatedKeys uint) *BloomFilter {
	m, k := bloom.EstimateParameters(estimatedKeys, fp)
	return &BloomFilter{filter: bloom.New(m, k)}
}

func (b *BloomFilter) Add(key []byte) {
	b.filter.Add(key)
}

func (b *BloomFilter) Test(key []byte) bool {
	return b.filter.Test(key)
}

// Marshal is a wrapper around bloom.WriteTo.
func (b *BloomFilter) Marshal() ([]byte, error) {
	buf := &bytes.Buffer{}
	if _, err := b.filter.WriteTo(buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// ParseBloom is the inverse of Marshal.
func ParseBloom(buf []byte) (*BloomFilter, error) {
	filter := &bloom.BloomFilter{}
	if _, err := filter.ReadFrom(bytes.NewReader(buf)); err != nil {
		return nil, err
	}
	return &BloomFilter{filter: filter}, nil
}

// BloomKey renders a value into the canonical key bytes both the writer
// and the scanner feed the filter. Only primitive values have keys.
func BloomKey(v Value) []byte {
	switch v.Type {
	case TypeBool:
		if v.B {
			return []byte{1}
		}
		return []byte{0}
	case TypeInt32, TypeInt64, TypeTimestamp:
		var key [8]byte
		binary.LittleEndian.PutUint64(key[:], uint64(v.I))
		return key[:]
	case TypeFloat32, TypeFloat64:
		var key [8]byte
		binary.LittleEndian.PutUint64(key[:], math.Float64bits(v.F))
		return key[:]
	case TypeString:
		return []byte(v.S)
	case TypeBytes:
		return v.Raw
	}
	return nil
}
