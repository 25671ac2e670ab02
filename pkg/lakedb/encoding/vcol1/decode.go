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
	"encoding/binary"
	"fmt"
	"math"

	"github.com/intergral/lakescan/pkg/lakedb/encoding/common"
)

// decodeChunk parses one decompressed chunk payload back into an array.
// The header is cross checked against the footer metadata, any
// disagreement means the chunk and the footer describe different data.
func decodeChunk(col common.Column, cm *common.ColumnChunkMeta, numRows int64, data []byte) (common.Array, error) {
	r := newByteReader(data, common.ErrCorruptData)
	enc := common.ChunkEncoding(r.u8())
	n := int64(r.u32())
	if r.err != nil {
		return nil, r.err
	}
	if enc != cm.Encoding {
		return nil, fmt.Errorf("chunk %q header says encoding %s, footer says %s: %w", col.Path, enc, cm.Encoding, common.ErrCorruptData)
	}
	if n != numRows {
		return nil, fmt.Errorf("chunk %q holds %d rows, its row group has %d: %w", col.Path, n, numRows, common.ErrCorruptData)
	}

	rows := int(n)
	var valid []byte
	if col.Nullable {
		valid = r.take(common.BitmapLen(rows))
	}

	var arr common.Array
	switch enc {
	case common.EncBitmap:
		if col.Type != common.TypeBool {
			return nil, fmt.Errorf("bitmap encoding on %s column %q: %w", col.Type, col.Path, common.ErrCorruptData)
		}
		arr = common.NewBoolArray(r.take(common.BitmapLen(rows)), valid, rows)
	case common.EncDelta:
		arr = decodeDelta(r, col.Type, rows, valid)
	case common.EncDict:
		arr = decodeDict(r, col.Type, rows, valid)
	case common.EncPlain:
		if col.Type == common.TypeList {
			offsets := decodeOffsets(r, rows)
			if r.err != nil {
				return nil, r.err
			}
			elem := decodePlainValues(r, col.Elem, int(offsets[rows]), nil)
			arr = common.NewListArray(offsets, elem, valid)
		} else {
			arr = decodePlainValues(r, col.Type, rows, valid)
		}
	default:
		return nil, fmt.Errorf("chunk %q uses encoding %d which this build does not read: %w", col.Path, byte(enc), common.ErrCorruptData)
	}

	if r.err != nil {
		return nil, r.err
	}
	if r.remaining() != 0 {
		return nil, fmt.Errorf("chunk %q carries %d bytes beyond its values: %w", col.Path, r.remaining(), common.ErrCorruptData)
	}
	return arr, nil
}

func decodePlainValues(r *byteReader, typ common.DataType, n int, valid []byte) common.Array {
	switch typ {
	case common.TypeBool:
		return common.NewBoolArray(r.take(common.BitmapLen(n)), valid, n)
	case common.TypeInt32:
		buf := r.take(4 * n)
		if buf == nil {
			return nil
		}
		values := make([]int32, n)
		for i := range values {
			values[i] = int32(binary.LittleEndian.Uint32(buf[i*4:]))
		}
		return common.NewInt32Array(values, valid)
	case common.TypeInt64, common.TypeTimestamp:
		buf := r.take(8 * n)
		if buf == nil {
			return nil
		}
		values := make([]int64, n)
		for i := range values {
			values[i] = int64(binary.LittleEndian.Uint64(buf[i*8:]))
		}
		return common.NewInt64Array(typ, values, valid)
	case common.TypeFloat32:
		buf := r.take(4 * n)
		if buf == nil {
			return nil
		}
		values := make([]float32, n)
		for i := range values {
			values[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[i*4:]))
		}
		return common.NewFloat32Array(values, valid)
	case common.TypeFloat64:
		buf := r.take(8 * n)
		if buf == nil {
			return nil
		}
		values := make([]float64, n)
		for i := range values {
			values[i] = math.Float64frombits(binary.LittleEndian.Uint64(buf[i*8:]))
		}
		return common.NewFloat64Array(values, valid)
	case common.TypeString, common.TypeBytes:
		offsets := decodeOffsets(r, n)
		if r.err != nil {
			return nil
		}
		data := r.take(int(offsets[n]))
		if r.err != nil {
			return nil
		}
		return common.NewBinaryArray(typ, offsets, data, valid)
	default:
		r.corrupt("no plain layout for type %s", typ)
		return nil
	}
}

// decodeOffsets reads the n+1 value boundaries of a variable width section
// and rejects anything that does not start at zero or decreases.
func decodeOffsets(r *byteReader, n int) []int32 {
	buf := r.take((n + 1) * 4)
	if buf == nil {
		return nil
	}
	offsets := make([]int32, n+1)
	var prev int32
	for i := range offsets {
		o := int32(binary.LittleEndian.Uint32(buf[i*4:]))
		if o < prev {
			r.corrupt("offset %d decreases from %d to %d", i, prev, o)
			return nil
		}
		offsets[i] = o
		prev = o
	}
	if offsets[0] != 0 {
		r.corrupt("offsets start at %d, not 0", offsets[0])
		return nil
	}
	return offsets
}

func decodeDelta(r *byteReader, typ common.DataType, n int, valid []byte) common.Array {
	switch typ {
	case common.TypeInt32, common.TypeInt64, common.TypeTimestamp:
	default:
		r.corrupt("delta encoding on %s column", typ)
		return nil
	}
	if n > r.remaining() {
		r.corrupt("delta chunk of %d rows has only %d value bytes", n, r.remaining())
		return nil
	}

	values := make([]int64, n)
	var prev int64
	for i := range values {
		prev += r.varint()
		values[i] = prev
	}
	if r.err != nil {
		return nil
	}

	if typ == common.TypeInt32 {
		narrow := make([]int32, n)
		for i, v := range values {
			narrow[i] = int32(v)
		}
		return common.NewInt32Array(narrow, valid)
	}
	return common.NewInt64Array(typ, values, valid)
}

func decodeDict(r *byteReader, typ common.DataType, n int, valid []byte) common.Array {
	if typ != common.TypeString && typ != common.TypeBytes {
		r.corrupt("dictionary encoding on %s column", typ)
		return nil
	}

	dictCount := r.count(uint64(r.u32()))
	dictOffsets := decodeOffsets(r, dictCount)
	if r.err != nil {
		return nil
	}
	dictData := r.take(int(dictOffsets[dictCount]))
	idxBuf := r.take(4 * n)
	if r.err != nil {
		return nil
	}

	offsets := make([]int32, n+1)
	var data []byte
	for i := 0; i < n; i++ {
		if !common.BitmapGet(valid, i) {
			offsets[i+1] = int32(len(data))
			continue
		}
		ix := int(binary.LittleEndian.Uint32(idxBuf[i*4:]))
		if ix >= dictCount {
			r.corrupt("dictionary index %d out of %d entries", ix, dictCount)
			return nil
		}
		data = append(data, dictData[dictOffsets[ix]:dictOffsets[ix+1]]...)
		offsets[i+1] = int32(len(data))
	}
	return common.NewBinaryArray(typ, offsets, data, valid)
}
