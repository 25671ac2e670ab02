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

// byteWriter accumulates the little-endian wire form of footers and chunks.
type byteWriter struct {
	b []byte
}

func (w *byteWriter) u8(v byte) {
	w.b = append(w.b, v)
}

func (w *byteWriter) u32(v uint32) {
	w.b = binary.LittleEndian.AppendUint32(w.b, v)
}

func (w *byteWriter) u64(v uint64) {
	w.b = binary.LittleEndian.AppendUint64(w.b, v)
}

func (w *byteWriter) uvarint(v uint64) {
	w.b = binary.AppendUvarint(w.b, v)
}

func (w *byteWriter) varint(v int64) {
	w.b = binary.AppendVarint(w.b, v)
}

func (w *byteWriter) raw(b []byte) {
	w.b = append(w.b, b...)
}

func (w *byteWriter) bytes(b []byte) {
	w.uvarint(uint64(len(b)))
	w.raw(b)
}

func (w *byteWriter) str(s string) {
	w.uvarint(uint64(len(s)))
	w.b = append(w.b, s...)
}

// byteReader walks a wire buffer with a sticky error. Every accessor is a
// no-op once the first overrun or malformed varint has been hit, callers
// check err once at the end.
type byteReader struct {
	b        []byte
	off      int
	err      error
	sentinel error
}

func newByteReader(b []byte, sentinel error) *byteReader {
	return &byteReader{b: b, sentinel: sentinel}
}

func (r *byteReader) corrupt(format string, args ...interface{}) {
	if r.err == nil {
		r.err = fmt.Errorf(format+": %w", append(args, r.sentinel)...)
	}
}

func (r *byteReader) remaining() int {
	return len(r.b) - r.off
}

func (r *byteReader) take(n int) []byte {
	if r.err != nil {
		return nil
	}
	if n < 0 || n > r.remaining() {
		r.corrupt("truncated, wanted %d bytes with %d left", n, r.remaining())
		return nil
	}
	b := r.b[r.off : r.off+n]
	r.off += n
	return b
}

func (r *byteReader) u8() byte {
	b := r.take(1)
	if b == nil {
		return 0
	}
	return b[0]
}

func (r *byteReader) u32() uint32 {
	b := r.take(4)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint32(b)
}

func (r *byteReader) u64() uint64 {
	b := r.take(8)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint64(b)
}

func (r *byteReader) uvarint() uint64 {
	if r.err != nil {
		return 0
	}
	v, n := binary.Uvarint(r.b[r.off:])
	if n <= 0 {
		r.corrupt("malformed uvarint at offset %d", r.off)
		return 0
	}
	r.off += n
	return v
}

func (r *byteReader) varint() int64 {
	if r.err != nil {
		return 0
	}
	v, n := binary.Varint(r.b[r.off:])
	if n <= 0 {
		r.corrupt("malformed varint at offset %d", r.off)
		return 0
	}
	r.off += n
	return v
}

func (r *byteReader) bytes() []byte {
	n := r.uvarint()
	if r.err != nil {
		return nil
	}
	if n > uint64(r.remaining()) {
		r.corrupt("length %d exceeds the %d remaining bytes", n, r.remaining())
		return nil
	}
	return r.take(int(n))
}

func (r *byteReader) str() string {
	return string(r.bytes())
}

// count validates an element count against the remaining bytes before a
// slice of that size is allocated, so a corrupt length cannot balloon
// memory. Every counted element occupies at least one byte on the wire.
func (r *byteReader) count(n uint64) int {
	if r.err != nil {
		return 0
	}
	if n > uint64(r.remaining()) {
		r.corrupt("count %d exceeds the %d remaining bytes", n, r.remaining())
		return 0
	}
	return int(n)
}

// appendValue writes the typed wire form of a statistics bound or other
// scalar. The type itself is not written, both sides know it from the
// schema.
func appendValue(w *byteWriter, v common.Value) {
	switch v.Type {
	case common.TypeBool:
		if v.B {
			w.u8(1)
		} else {
			w.u8(0)
		}
	case common.TypeInt32, common.TypeInt64, common.TypeTimestamp:
		w.varint(v.I)
	case common.TypeFloat32, common.TypeFloat64:
		w.u64(math.Float64bits(v.F))
	case common.TypeString:
		w.str(v.S)
	case common.TypeBytes:
		w.bytes(v.Raw)
	}
}

// readValue is the inverse of appendValue.
func readValue(r *byteReader, typ common.DataType) common.Value {
	switch typ {
	case common.TypeBool:
		return common.BoolValue(r.u8() != 0)
	case common.TypeInt32:
		return common.Int32Value(int32(r.varint()))
	case common.TypeInt64:
		return common.Int64Value(r.varint())
	case common.TypeTimestamp:
		return common.TimestampNanosValue(r.varint())
	case common.TypeFloat32:
		return common.Float32Value(float32(math.Float64frombits(r.u64())))
	case common.TypeFloat64:
		return common.Float64Value(math.Float64frombits(r.u64()))
	case common.TypeString:
		return common.StringValue(r.str())
	case common.TypeBytes:
		return common.BytesValue(append([]byte(nil), r.bytes()...))
	default:
		r.corrupt("no wire form for values of type %s", typ)
		return common.Value{}
	}
}
