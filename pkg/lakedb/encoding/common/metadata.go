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

import "fmt"

// ColumnStatistics summarizes the values of one column chunk. Min and Max
// are nil when the chunk holds no non-null values, consumers must treat
// that as "no information" rather than an empty range. DistinctEst is -1
// when the writer could not track distinct values exactly.
type ColumnStatistics struct {
	NullCount   int64
	DistinctEst int64
	Min         *Value
	Max         *Value
	// HasNaN is set on float chunks that contain at least one NaN. NaN is
	// excluded from Min/Max so the range alone cannot be trusted to prune.
	HasNaN bool
}

// ColumnChunkMeta locates and describes the encoded bytes of one column
// within one row group. Offset is absolute within the file. BloomOffset is
// -1 when the chunk carries no bloom filter.
type ColumnChunkMeta struct {
	Path             string
	Type             DataType
	Offset           int64
	CompressedSize   int64
	UncompressedSize int64
	Codec            Codec
	Encoding         ChunkEncoding
	Stats            ColumnStatistics
	BloomOffset      int64
	BloomSize        int64
}

// RowGroupMeta describes one horizontal slice of the file. Columns is in
// schema leaf order and always covers every leaf.
type RowGroupMeta struct {
	NumRows int64
	Columns []ColumnChunkMeta
}

// Column returns the chunk metadata for the leaf with the given dotted
// path, or nil when the row group has no such column.
func (rg *RowGroupMeta) Column(path string) *ColumnChunkMeta {
	for i := range rg.Columns {
		if rg.Columns[i].Path == path {
			return &rg.Columns[i]
		}
	}
	return nil
}

// ColumnStats implements StatsSource.
func (rg *RowGroupMeta) ColumnStats(path string) *ColumnStatistics {
	if c := rg.Column(path); c != nil {
		return &c.Stats
	}
	return nil
}

// RowCount implements StatsSource.
func (rg *RowGroupMeta) RowCount() int64 {
	return rg.NumRows
}

// FileMetadata is the parsed footer of one file. It is immutable once
// parsed and safe to share between concurrent scans.
type FileMetadata struct {
	Version   string
	Schema    *Schema
	RowGroups []RowGroupMeta
	TotalRows int64
	// Size is the total size of the file in bytes as observed when the
	// footer was read.
	Size int64
}

// Validate cross checks the metadata against itself: the schema must be
// valid, every row group must cover every leaf in order, and TotalRows
// must equal the sum of the row group counts.
func (m *FileMetadata) Validate() error {
	if err := m.Schema.Validate(); err != nil {
		return err
	}

	leaves := m.Schema.Leaves()
	var rows int64
	for i, rg := range m.RowGroups {
		if rg.NumRows <= 0 {
			return fmt.Errorf("row group %d has invalid row count %d", i, rg.NumRows)
		}
		if len(rg.Columns) != len(leaves) {
			return fmt.Errorf("row group %d has %d column chunks, schema has %d leaves", i, len(rg.Columns), len(leaves))
		}
		for j, c := range rg.Columns {
			if c.Path != leaves[j].Path {
				return fmt.Errorf("row group %d column %d is %q, schema leaf is %q", i, j, c.Path, leaves[j].Path)
			}
			if c.Type != leaves[j].Type {
				return fmt.Errorf("row group %d column %q is typed %s, schema says %s", i, c.Path, c.Type, leaves[j].Type)
			}
		}
		rows += rg.NumRows
	}

	if rows != m.TotalRows {
		return fmt.Errorf("footer says %d total rows, row groups sum to %d", m.TotalRows, rows)
	}
	return nil
}
