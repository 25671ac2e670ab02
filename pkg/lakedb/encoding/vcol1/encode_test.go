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
	"math"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/intergral/lakescan/pkg/lakedb/encoding/common"
)

// buildArray turns a value slice into an array, nil entries become nulls.
func buildArray(t *testing.T, col common.Column, values []*common.Value) common.Array {
	t.Helper()
	b, err := common.NewArrayBuilder(col)
	require.NoError(t, err)
	for _, v := range values {
		if v == nil {
			b.AppendNull()
			continue
		}
		require.NoError(t, b.Append(*v))
	}
	return b.NewArray()
}

func requireSameArray(t *testing.T, want, got common.Array) {
	t.Helper()
	require.Equal(t, want.Len(), got.Len())
	for i := 0; i < want.Len(); i++ {
		require.Equal(t, want.IsNull(i), got.IsNull(i), "null mismatch at row %d", i)
		if want.IsNull(i) {
			continue
		}
		wv, gv := want.Value(i), got.Value(i)
		if wv.IsNaN() {
			require.True(t, gv.IsNaN(), "row %d should be NaN", i)
			continue
		}
		require.Equal(t, wv, gv, "value mismatch at row %d", i)
	}
}

func roundtripChunk(t *testing.T, col common.Column, enc common.ChunkEncoding, arr common.Array) common.Array {
	t.Helper()
	payload, err := encodeChunk(col, arr, enc)
	require.NoError(t, err)

	cm := &common.ColumnChunkMeta{Path: col.Path, Type: col.Type, Encoding: enc}
	out, err := decodeChunk(col, cm, int64(arr.Len()), payload)
	require.NoError(t, err)
	return out
}

func vp(v common.Value) *common.Value { return &v }

func TestChunkRoundtripPlain(t *testing.T) {
	tests := []struct {
		name   string
		col    common.Column
		values []*common.Value
	}{
		{
			name: "int64 with nulls",
			col:  common.Column{Path: "id", Type: common.TypeInt64, Nullable: true},
			values: []*common.Value{
				vp(common.Int64Value(-5)), nil, vp(common.Int64Value(math.MaxInt64)), vp(common.Int64Value(0)), nil,
			},
		},
		{
			name: "int32",
			col:  common.Column{Path: "count", Type: common.TypeInt32},
			values: []*common.Value{
				vp(common.Int32Value(math.MinInt32)), vp(common.Int32Value(7)), vp(common.Int32Value(math.MaxInt32)),
			},
		},
		{
			name: "timestamp",
			col:  common.Column{Path: "ts", Type: common.TypeTimestamp},
			values: []*common.Value{
				vp(common.TimestampNanosValue(1700000000000000000)), vp(common.TimestampNanosValue(1700000000000000001)),
			},
		},
		{
			name: "float32",
			col:  common.Column{Path: "ratio", Type: common.TypeFloat32},
			values: []*common.Value{
				vp(common.Float32Value(1.5)), vp(common.Float32Value(-0.25)),
			},
		},
		{
			name: "float64 with NaN",
			col:  common.Column{Path: "temp", Type: common.TypeFloat64, Nullable: true},
			values: []*common.Value{
				vp(common.Float64Value(math.NaN())), nil, vp(common.Float64Value(math.Inf(1))), vp(common.Float64Value(-273.15)),
			},
		},
		{
			name: "string with empties and nulls",
			col:  common.Column{Path: "name", Type: common.TypeString, Nullable: true},
			values: []*common.Value{
				vp(common.StringValue("alpha")), vp(common.StringValue("")), nil, vp(common.StringValue("Ω unicode")),
			},
		},
		{
			name: "bytes",
			col:  common.Column{Path: "blob", Type: common.TypeBytes},
			values: []*common.Value{
				vp(common.BytesValue([]byte{0, 1, 2})), vp(common.BytesValue([]byte{0xff})),
			},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			arr := buildArray(t, tc.col, tc.values)
			out := roundtripChunk(t, tc.col, common.EncPlain, arr)
			requireSameArray(t, arr, out)
		})
	}
}

func TestChunkRoundtripBitmap(t *testing.T) {
	col := common.Column{Path: "active", Type: common.TypeBool, Nullable: true}
	arr := buildArray(t, col, []*common.Value{
		vp(common.BoolValue(true)), vp(common.BoolValue(false)), nil, vp(common.BoolValue(true)),
		nil, vp(common.BoolValue(false)), vp(common.BoolValue(true)), vp(common.BoolValue(true)),
		vp(common.BoolValue(false)),
	})

	out := roundtripChunk(t, col, common.EncBitmap, arr)
	requireSameArray(t, arr, out)
}

func TestChunkRoundtripDelta(t *testing.T) {
	tests := []struct {
		name   string
		col    common.Column
		values []*common.Value
	}{
		{
			name: "sorted timestamps",
			col:  common.Column{Path: "ts", Type: common.TypeTimestamp},
			values: []*common.Value{
				vp(common.TimestampNanosValue(1700000000000000000)),
				vp(common.TimestampNanosValue(1700000000000001000)),
				vp(common.TimestampNanosValue(1700000000000001500)),
			},
		},
		{
			name: "int32 with negatives",
			col:  common.Column{Path: "delta", Type: common.TypeInt32},
			values: []*common.Value{
				vp(common.Int32Value(100)), vp(common.Int32Value(-40)), vp(common.Int32Value(0)), vp(common.Int32Value(7)),
			},
		},
		{
			name: "nullable int64",
			col:  common.Column{Path: "seq", Type: common.TypeInt64, Nullable: true},
			values: []*common.Value{
				vp(common.Int64Value(10)), nil, vp(common.Int64Value(30)), nil, vp(common.Int64Value(31)),
			},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			arr := buildArray(t, tc.col, tc.values)
			out := roundtripChunk(t, tc.col, common.EncDelta, arr)
			requireSameArray(t, arr, out)
		})
	}
}

func TestChunkRoundtripDict(t *testing.T) {
	col := common.Column{Path: "region", Type: common.TypeString, Nullable: true}
	arr := buildArray(t, col, []*common.Value{
		vp(common.StringValue("eu-west")), vp(common.StringValue("us-east")), nil,
		vp(common.StringValue("eu-west")), vp(common.StringValue("eu-west")),
		vp(common.StringValue("")), vp(common.StringValue("us-east")), nil,
	})

	out := roundtripChunk(t, col, common.EncDict, arr)
	requireSameArray(t, arr, out)

	colBytes := common.Column{Path: "key", Type: common.TypeBytes}
	arrBytes := buildArray(t, colBytes, []*common.Value{
		vp(common.BytesValue([]byte{1, 2})), vp(common.BytesValue([]byte{1, 2})), vp(common.BytesValue([]byte{3})),
	})

	outBytes := roundtripChunk(t, colBytes, common.EncDict, arrBytes)
	requireSameArray(t, arrBytes, outBytes)
}

func TestChunkRoundtripList(t *testing.T) {
	col := common.Column{Path: "temps", Type: common.TypeList, Nullable: true, Elem: common.TypeFloat64}
	arr := buildArray(t, col, []*common.Value{
		vp(common.ListValue([]common.Value{common.Float64Value(1.5), common.Float64Value(2.5)})),
		nil,
		vp(common.ListValue(nil)),
		vp(common.ListValue([]common.Value{common.Float64Value(-10)})),
	})

	out := roundtripChunk(t, col, common.EncPlain, arr)
	requireSameArray(t, arr, out)
}

func TestChunkRejectsCorruption(t *testing.T) {
	col := common.Column{Path: "name", Type: common.TypeString, Nullable: true}
	arr := buildArray(t, col, []*common.Value{
		vp(common.StringValue("aa")), nil, vp(common.StringValue("bb")),
	})
	payload, err := encodeChunk(col, arr, common.EncPlain)
	require.NoError(t, err)
	cm := &common.ColumnChunkMeta{Path: col.Path, Type: col.Type, Encoding: common.EncPlain}

	t.Run("encoding disagrees with footer", func(t *testing.T) {
		dictMeta := *cm
		dictMeta.Encoding = common.EncDict
		_, err := decodeChunk(col, &dictMeta, 3, payload)
		require.ErrorIs(t, err, common.ErrCorruptData)
		require.Contains(t, err.Error(), "header says")
	})

	t.Run("row count disagrees with footer", func(t *testing.T) {
		_, err := decodeChunk(col, cm, 4, payload)
		require.ErrorIs(t, err, common.ErrCorruptData)
		require.Contains(t, err.Error(), "holds")
	})

	t.Run("truncated values", func(t *testing.T) {
		_, err := decodeChunk(col, cm, 3, payload[:len(payload)-1])
		require.ErrorIs(t, err, common.ErrCorruptData)
	})

	t.Run("trailing bytes", func(t *testing.T) {
		_, err := decodeChunk(col, cm, 3, append(append([]byte(nil), payload...), 9))
		require.ErrorIs(t, err, common.ErrCorruptData)
		require.Contains(t, err.Error(), "beyond its values")
	})

	t.Run("decreasing offsets", func(t *testing.T) {
		bad := append([]byte(nil), payload...)
		// the second of the four offsets sits after the header and the
		// one byte validity bitmap
		copy(bad[5+1+4:], []byte{0xff, 0xff, 0xff, 0xff})
		_, err := decodeChunk(col, cm, 3, bad)
		require.ErrorIs(t, err, common.ErrCorruptData)
	})

	t.Run("dictionary index out of range", func(t *testing.T) {
		dictPayload, err := encodeChunk(col, arr, common.EncDict)
		require.NoError(t, err)
		bad := append([]byte(nil), dictPayload...)
		copy(bad[len(bad)-4:], []byte{0xff, 0xff, 0xff, 0xff})

		dictMeta := *cm
		dictMeta.Encoding = common.EncDict
		_, err = decodeChunk(col, &dictMeta, 3, bad)
		require.ErrorIs(t, err, common.ErrCorruptData)
		require.Contains(t, err.Error(), "dictionary index")
	})

	t.Run("unknown encoding byte", func(t *testing.T) {
		bad := append([]byte(nil), payload...)
		bad[0] = 200
		badMeta := *cm
		badMeta.Encoding = common.ChunkEncoding(200)
		_, err := decodeChunk(col, &badMeta, 3, bad)
		require.ErrorIs(t, err, common.ErrCorruptData)
	})
}

func TestChooseEncoding(t *testing.T) {
	opts := common.DefaultWriterOptions()

	stringCol := common.Column{Path: "region", Type: common.TypeString}
	repeats := buildArray(t, stringCol, []*common.Value{
		vp(common.StringValue("a")), vp(common.StringValue("a")), vp(common.StringValue("a")),
		vp(common.StringValue("b")), vp(common.StringValue("a")), vp(common.StringValue("a")),
		vp(common.StringValue("a")), vp(common.StringValue("b")), vp(common.StringValue("a")),
		vp(common.StringValue("a")),
	})

	t.Run("bool is always a bitmap", func(t *testing.T) {
		col := common.Column{Path: "b", Type: common.TypeBool}
		arr := buildArray(t, col, []*common.Value{vp(common.BoolValue(true))})
		stats := common.ColumnStatistics{DistinctEst: 1}
		require.Equal(t, common.EncBitmap, chooseEncoding(col, arr, &stats, opts))
	})

	t.Run("list is always plain", func(t *testing.T) {
		col := common.Column{Path: "l", Type: common.TypeList, Elem: common.TypeInt64}
		arr := buildArray(t, col, []*common.Value{vp(common.ListValue(nil))})
		stats := common.ColumnStatistics{DistinctEst: -1}
		require.Equal(t, common.EncPlain, chooseEncoding(col, arr, &stats, opts))
	})

	t.Run("delta is opt in", func(t *testing.T) {
		col := common.Column{Path: "ts", Type: common.TypeTimestamp}
		arr := buildArray(t, col, []*common.Value{vp(common.TimestampNanosValue(1))})
		stats := common.ColumnStatistics{DistinctEst: 1}
		require.Equal(t, common.EncPlain, chooseEncoding(col, arr, &stats, opts))

		deltaOpts := opts
		deltaOpts.DeltaColumns = []string{"ts"}
		require.Equal(t, common.EncDelta, chooseEncoding(col, arr, &stats, deltaOpts))
	})

	t.Run("low distinct ratio switches to dict", func(t *testing.T) {
		stats := common.ColumnStatistics{DistinctEst: 2}
		require.Equal(t, common.EncDict, chooseEncoding(stringCol, repeats, &stats, opts))
	})

	t.Run("high distinct ratio stays plain", func(t *testing.T) {
		stats := common.ColumnStatistics{DistinctEst: 9}
		require.Equal(t, common.EncPlain, chooseEncoding(stringCol, repeats, &stats, opts))
	})

	t.Run("unknown distinct count stays plain", func(t *testing.T) {
		stats := common.ColumnStatistics{DistinctEst: -1}
		require.Equal(t, common.EncPlain, chooseEncoding(stringCol, repeats, &stats, opts))
	})

	t.Run("all null chunk stays plain", func(t *testing.T) {
		col := common.Column{Path: "region", Type: common.TypeString, Nullable: true}
		arr := buildArray(t, col, []*common.Value{nil, nil})
		stats := common.ColumnStatistics{NullCount: 2, DistinctEst: 0}
		require.Equal(t, common.EncPlain, chooseEncoding(col, arr, &stats, opts))
	})

	t.Run("ratio zero disables dictionaries", func(t *testing.T) {
		noDict := opts
		noDict.DictionaryMaxRatio = 0
		stats := common.ColumnStatistics{DistinctEst: 1}
		require.Equal(t, common.EncPlain, chooseEncoding(stringCol, repeats, &stats, noDict))
	})
}
