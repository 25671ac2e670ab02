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
	"fmt"

	"github.com/cespare/xxhash/v2"

	"github.com/intergral/lakescan/pkg/lakedb/encoding/common"
)

// The footer carries, in order: the format version byte, the version
// string, the schema, the row groups and the total row count. Chunk
// metadata inside a row group is stored in schema leaf order, paths and
// types are never written, the parser restores them from the schema.
// List element names are not part of the format.

const (
	flagNullable = 1 << 0

	statsFlagRange = 1 << 0
	statsFlagNaN   = 1 << 1

	// maxSchemaDepth bounds struct nesting when parsing. Anything deeper is
	// treated as a corrupt footer before the recursion can hurt.
	maxSchemaDepth = 64
)

// marshalFooter renders the footer bytes for meta, without the trailer.
func marshalFooter(meta *common.FileMetadata) []byte {
	w := &byteWriter{}
	w.u8(formatVersion)
	w.str(meta.Version)

	w.uvarint(uint64(len(meta.Schema.Fields)))
	for _, f := range meta.Schema.Fields {
		appendField(w, f)
	}

	w.uvarint(uint64(len(meta.RowGroups)))
	for _, rg := range meta.RowGroups {
		w.uvarint(uint64(rg.NumRows))
		for i := range rg.Columns {
			appendChunk(w, &rg.Columns[i])
		}
	}

	w.uvarint(uint64(meta.TotalRows))
	return w.b
}

func appendField(w *byteWriter, f common.Field) {
	w.str(f.Name)
	w.u8(byte(f.Type))
	var flags byte
	if f.Nullable {
		flags |= flagNullable
	}
	w.u8(flags)

	switch f.Type {
	case common.TypeStruct:
		w.uvarint(uint64(len(f.Children)))
		for _, c := range f.Children {
			appendField(w, c)
		}
	case common.TypeList:
		w.u8(byte(f.Elem.Type))
	}
}

func appendChunk(w *byteWriter, c *common.ColumnChunkMeta) {
	w.u8(byte(c.Codec))
	w.u8(byte(c.Encoding))
	w.uvarint(uint64(c.Offset))
	w.uvarint(uint64(c.CompressedSize))
	w.uvarint(uint64(c.UncompressedSize))

	w.uvarint(uint64(c.Stats.NullCount))
	w.varint(c.Stats.DistinctEst)
	var flags byte
	if c.Stats.Min != nil && c.Stats.Max != nil {
		flags |= statsFlagRange
	}
	if c.Stats.HasNaN {
		flags |= statsFlagNaN
	}
	w.u8(flags)
	if flags&statsFlagRange != 0 {
		appendValue(w, *c.Stats.Min)
		appendValue(w, *c.Stats.Max)
	}

	if c.BloomOffset >= 0 {
		w.u8(1)
		w.uvarint(uint64(c.BloomOffset))
		w.uvarint(uint64(c.BloomSize))
	} else {
		w.u8(0)
	}
}

// appendTrailer renders the fixed size trailer for the given footer bytes.
func appendTrailer(footer []byte) []byte {
	w := &byteWriter{b: make([]byte, 0, trailerLen)}
	w.u64(xxhash.Sum64(footer))
	w.u32(uint32(len(footer)))
	w.raw(magic)
	return w.b
}

// unmarshalFooter parses footer bytes back into file metadata. Size is not
// stored in the footer, the caller fills it in from the object itself. The
// returned metadata has passed Validate.
func unmarshalFooter(buf []byte) (*common.FileMetadata, error) {
	r := newByteReader(buf, common.ErrCorruptFile)

	if v := r.u8(); r.err == nil && v != formatVersion {
		return nil, fmt.Errorf("footer declares format version %d, this build reads version %d: %w", v, formatVersion, common.ErrCorruptFile)
	}

	meta := &common.FileMetadata{
		Version: r.str(),
		Schema:  &common.Schema{},
	}

	n := r.count(r.uvarint())
	for i := 0; i < n && r.err == nil; i++ {
		meta.Schema.Fields = append(meta.Schema.Fields, readField(r, 0))
	}
	if r.err != nil {
		return nil, r.err
	}

	leaves := meta.Schema.Leaves()
	groups := r.count(r.uvarint())
	for i := 0; i < groups && r.err == nil; i++ {
		rg := common.RowGroupMeta{
			NumRows: int64(r.uvarint()),
			Columns: make([]common.ColumnChunkMeta, 0, len(leaves)),
		}
		for _, leaf := range leaves {
			rg.Columns = append(rg.Columns, readChunk(r, leaf))
			if r.err != nil {
				return nil, r.err
			}
		}
		meta.RowGroups = append(meta.RowGroups, rg)
	}

	meta.TotalRows = int64(r.uvarint())

	if r.err != nil {
		return nil, r.err
	}
	if r.remaining() != 0 {
		return nil, fmt.Errorf("footer has %d trailing bytes: %w", r.remaining(), common.ErrCorruptFile)
	}
	if err := meta.Validate(); err != nil {
		return nil, fmt.Errorf("footer does not describe a valid file (%s): %w", err, common.ErrCorruptFile)
	}
	return meta, nil
}

func readField(r *byteReader, depth int) common.Field {
	if depth > maxSchemaDepth {
		r.corrupt("schema nesting exceeds depth %d", maxSchemaDepth)
		return common.Field{}
	}

	f := common.Field{Name: r.str()}
	f.Type = common.DataType(r.u8())
	f.Nullable = r.u8()&flagNullable != 0

	switch f.Type {
	case common.TypeStruct:
		n := r.count(r.uvarint())
		for i := 0; i < n && r.err == nil; i++ {
			f.Children = append(f.Children, readField(r, depth+1))
		}
	case common.TypeList:
		f.Elem = &common.Field{Type: common.DataType(r.u8())}
	}
	return f
}

func readChunk(r *byteReader, leaf common.Column) common.ColumnChunkMeta {
	c := common.ColumnChunkMeta{
		Path:             leaf.Path,
		Type:             leaf.Type,
		Codec:            common.Codec(r.u8()),
		Encoding:         common.ChunkEncoding(r.u8()),
		Offset:           int64(r.uvarint()),
		CompressedSize:   int64(r.uvarint()),
		UncompressedSize: int64(r.uvarint()),
		BloomOffset:      -1,
	}

	c.Stats.NullCount = int64(r.uvarint())
	c.Stats.DistinctEst = r.varint()
	flags := r.u8()
	c.Stats.HasNaN = flags&statsFlagNaN != 0
	if flags&statsFlagRange != 0 {
		statType := leaf.Type
		if statType == common.TypeList {
			r.corrupt("list column %q carries a value range", leaf.Path)
			return c
		}
		min := readValue(r, statType)
		max := readValue(r, statType)
		c.Stats.Min = &min
		c.Stats.Max = &max
	}

	if r.u8() != 0 {
		c.BloomOffset = int64(r.uvarint())
		c.BloomSize = int64(r.uvarint())
	}
	return c
}
