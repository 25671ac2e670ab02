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
	crand "crypto/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBloomRoundTrip(t *testing.T) {
	// create a bunch of keys
	const numKeys = 10000
	keys := make([][]byte, 0)
	for i := 0; i < numKeys; i++ {
		key := make([]byte, 16)
		_, err := crand.Read(key)
		require.NoError(t, err)
		keys = append(keys, key)
	}

	const bloomFP = .01
	b := NewBloom(bloomFP, numKeys)
	for _, key := range keys {
		b.Add(key)
	}

	buf, err := b.Marshal()
	require.NoError(t, err)

	parsed, err := ParseBloom(buf)
	require.NoError(t, err)

	// every added key answers the same before and after the round trip
	missingCount := 0
	for _, key := range keys {
		found := b.Test(key)
		if !found {
			missingCount++
		}
		assert.Equal(t, found, parsed.Test(key))
	}
	assert.Zero(t, missingCount)
}

func TestBloomFalsePositiveRate(t *testing.T) {
	const numKeys = 10000
	const bloomFP = .01

	b := NewBloom(bloomFP, numKeys)
	for i := 0; i < numKeys; i++ {
		key := make([]byte, 16)
		_, err := crand.Read(key)
		require.NoError(t, err)
		b.Add(key)
	}

	// probe with keys that were never added
	falsePositives := 0
	for i := 0; i < numKeys; i++ {
		key := make([]byte, 16)
		_, err := crand.Read(key)
		require.NoError(t, err)
		if b.Test(key) {
			falsePositives++
		}
	}

	// allow double the target rate to keep the test stable
	assert.LessOrEqual(t, float64(falsePositives), 2*bloomFP*numKeys)
}

func TestBloomKey(t *testing.T) {
	tests := []struct {
		name string
		a    Value
		b    Value
		same bool
	}{
		{name: "equal ints", a: Int64Value(42), b: Int64Value(42), same: true},
		{name: "different ints", a: Int64Value(42), b: Int64Value(43), same: false},
		{name: "int widths share keys", a: Int32Value(7), b: Int64Value(7), same: true},
		{name: "equal strings", a: StringValue("foo"), b: StringValue("foo"), same: true},
		{name: "different strings", a: StringValue("foo"), b: StringValue("bar"), same: false},
		{name: "bools", a: BoolValue(true), b: BoolValue(false), same: false},
		{name: "floats", a: Float64Value(1.5), b: Float64Value(1.5), same: true},
	}

	for _, tt := range tests {
		tt := tt // capture range variable, needed for running test cases in parallel
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			if tt.same {
				assert.Equal(t, BloomKey(tt.a), BloomKey(tt.b))
			} else {
				assert.NotEqual(t, BloomKey(tt.a), BloomKey(tt.b))
			}
		})
	}
}
