package vcol1

import (
	"fmt"
	"math"

	"golang.org/x/exp/slices"

	"github.com/intergral/lakescan/pkg/lakedb/encoding/common"
)

// chooseEncoding picks the value encoding for one chunk. Lists always use
// the offsets layout, bools are bitmaps, delta is opt-in per column, and
// strings or bytes switch to a dictionary when the chunk's observed
// distinct ratio stays at or below the configured cap.
func chooseEncoding(col common.Column, arr common.Array, stats *common.ColumnStatistics, opts common.WriterOptions) common.ChunkEncoding {
	switch {
	case col.Type == common.TypeList:
		return common.EncPlain
	case col.Type == common.TypeBool:
		return common.EncBitmap
	case slices.Contains(opts.DeltaColumns, col.Path):
		return common.EncDelta
	case col.Type == common.TypeString || col.Type == common.TypeBytes:
		nonNull := int64(arr.Len()) - stats.NullCount
		if opts.DictionaryMaxRatio > 0 && nonNull > 0 && stats.DistinctEst >= 0 &&
			float64(stats.DistinctEst) <= opts.DictionaryMaxRatio*float64(nonNull) {
			return common.EncDict
		}
		return common.EncPlain
	default:
		return common.EncPlain
	}
}

// encodeChunk renders the uncompressed payload of one chunk: the header,
// the validity bitmap when the column is nullable, then the values. Null
// slots stay in the value section holding zero so every slot has a fixed
// position.
func encodeChunk(col common.Column, arr common.Array, enc common.ChunkEncoding) ([]byte, error) {
	w := &byteWriter{}
	w.u8(byte(enc))
	w.u32(uint32(arr.Len()))

	if col.Nullable {
		valid := common.NewBitmap(arr.Len())
		for i := 0; i < arr.Len(); i++ {
			if !arr.IsNull(i) {
				common.BitmapSet(valid, i)
			}
		}
		w.raw(valid)
	}

	switch enc {
	case common.EncBitmap:
		encodePlainValues(w, common.TypeBool, arr)
	case common.EncDelta:
		encodeDelta(w, arr)
	case common.EncDict:
		encodeDict(w, arr)
	case common.EncPlain:
		if col.Type == common.TypeList {
			la, ok := arr.(*common.ListArray)
			if !ok {
				return nil, fmt.Errorf("list column %q holds a %T array", col.Path, arr)
			}
			encodeOffsets(w, la.Offsets())
			encodePlainValues(w, col.Elem, la.Elem())
		} else {
			encodePlainValues(w, col.Type, arr)
		}
	default:
		return nil, fmt.Errorf("cannot encode chunks as %s", enc)
	}
	return w.b, nil
}

func encodePlainValues(w *byteWriter, typ common.DataType, arr common.Array) {
	n := arr.Len()
	switch typ {
	case common.TypeBool:
		bits := common.NewBitmap(n)
		for i := 0; i < n; i++ {
			if !arr.IsNull(i) && arr.Value(i).B {
				common.BitmapSet(bits, i)
			}
		}
		w.raw(bits)
	case common.TypeInt32:
		for i := 0; i < n; i++ {
			w.u32(uint32(int32(intAt(arr, i))))
		}
	case common.TypeInt64, common.TypeTimestamp:
		for i := 0; i < n; i++ {
			w.u64(uint64(intAt(arr, i)))
		}
	case common.TypeFloat32:
		for i := 0; i < n; i++ {
			w.u32(math.Float32bits(float32(floatAt(arr, i))))
		}
	case common.TypeFloat64:
		for i := 0; i < n; i++ {
			w.u64(math.Float64bits(floatAt(arr, i)))
		}
	case common.TypeString, common.TypeBytes:
		encodeBinaryValues(w, arr)
	}
}

func encodeBinaryValues(w *byteWriter, arr common.Array) {
	n := arr.Len()
	offsets := make([]int32, n+1)
	var data []byte
	for i := 0; i < n; i++ {
		if !arr.IsNull(i) {
			v := arr.Value(i)
			if v.Type == common.TypeString {
				data = append(data, v.S...)
			} else {
				data = append(data, v.Raw...)
			}
		}
		offsets[i+1] = int32(len(data))
	}
	encodeOffsets(w, offsets)
	w.raw(data)
}

func encodeOffsets(w *byteWriter, offsets []int32) {
	for _, o := range offsets {
		w.u32(uint32(o))
	}
}

// encodeDelta writes each slot as the zigzag difference to the previous
// slot, starting from zero.
func encodeDelta(w *byteWriter, arr common.Array) {
	var prev int64
	for i := 0; i < arr.Len(); i++ {
		v := intAt(arr, i)
		w.varint(v - prev)
		prev = v
	}
}

// encodeDict writes the distinct values once, in first appearance order,
// followed by one u32 dictionary index per slot.
func encodeDict(w *byteWriter, arr common.Array) {
	n := arr.Len()
	positions := make(map[string]uint32)
	dictOffsets := []int32{0}
	var dictData []byte
	indexes := make([]uint32, n)

	for i := 0; i < n; i++ {
		if arr.IsNull(i) {
			continue
		}
		v := arr.Value(i)
		key := v.S
		if v.Type == common.TypeBytes {
			key = string(v.Raw)
		}
		pos, ok := positions[key]
		if !ok {
			pos = uint32(len(dictOffsets) - 1)
			positions[key] = pos
			dictData = append(dictData, key...)
			dictOffsets = append(dictOffsets, int32(len(dictData)))
		}
		indexes[i] = pos
	}

	w.u32(uint32(len(dictOffsets) - 1))
	encodeOffsets(w, dictOffsets)
	w.raw(dictData)
	for _, ix := range indexes {
		w.u32(ix)
	}
}

func intAt(arr common.Array, i int) int64 {
	if arr.IsNull(i) {
		return 0
	}
	return arr.Value(i).I
}

func floatAt(arr common.Array, i int) float64 {
	if arr.IsNull(i) {
		return 0
	}
	return arr.Value(i).F
}
