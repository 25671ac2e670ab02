package vcol1

import (
	"context"
	"fmt"
	"io"

	"golang.org/x/exp/slices"

	lake_io "github.com/intergral/lakescan/pkg/io"
	"github.com/intergral/lakescan/pkg/lakedb/backend"
	"github.com/intergral/lakescan/pkg/lakedb/encoding/common"
)

type backendWriter struct {
	ctx     context.Context
	w       backend.RawWriter
	name    string
	tracker backend.AppendTracker
}

var _ io.WriteCloser = (*backendWriter)(nil)

func (b *backendWriter) Write(p []byte) (n int, err error) {
	b.tracker, err = b.w.Append(b.ctx, b.name, b.tracker, p)
	return len(p), err
}

func (b *backendWriter) Close() error {
	return b.w.CloseAppend(b.ctx, b.tracker)
}

// CreateFile starts writing a new file with the given schema. Chunks are
// streamed to the store through the append API as row groups fill up, the
// object becomes readable once Complete has written the footer. All
// writes run on the context CreateFile was given.
func CreateFile(ctx context.Context, to backend.RawWriter, name string, schema *common.Schema, opts common.WriterOptions) (common.FileWriter, error) {
	if err := schema.Validate(); err != nil {
		return nil, err
	}

	defaults := common.DefaultWriterOptions()
	if opts.RowGroupMaxRows <= 0 {
		opts.RowGroupMaxRows = defaults.RowGroupMaxRows
	}
	if opts.RowGroupMaxBytes <= 0 {
		opts.RowGroupMaxBytes = defaults.RowGroupMaxBytes
	}
	if opts.BloomFP <= 0 {
		opts.BloomFP = defaults.BloomFP
	}

	leaves := schema.Leaves()
	if err := checkOptionColumns(leaves, opts); err != nil {
		return nil, err
	}

	s := &streamingFile{
		schema:   schema,
		leaves:   leaves,
		opts:     opts,
		builders: make([]common.ArrayBuilder, len(leaves)),
		stats:    make([]*common.StatisticsBuilder, len(leaves)),
		keys:     make([]map[string]struct{}, len(leaves)),
	}
	for i, col := range leaves {
		b, err := common.NewArrayBuilder(col)
		if err != nil {
			return nil, err
		}
		s.builders[i] = b
		s.stats[i] = common.NewStatisticsBuilder(col.Type)
		if slices.Contains(opts.BloomColumns, col.Path) {
			s.keys[i] = make(map[string]struct{})
		}
	}

	s.w = &backendWriter{ctx: ctx, w: to, name: name}
	s.bw = lake_io.NewBufferedWriter(s.w)

	if _, err := s.bw.Write(magic); err != nil {
		return nil, err
	}
	s.offset = int64(magicLen)

	return s, nil
}

// checkOptionColumns verifies that the per column writer options name
// leaves the format can honor: blooms key string or bytes values, delta
// needs an integer or timestamp column.
func checkOptionColumns(leaves []common.Column, opts common.WriterOptions) error {
	leaf := func(path string) *common.Column {
		for i := range leaves {
			if leaves[i].Path == path {
				return &leaves[i]
			}
		}
		return nil
	}

	for _, path := range opts.BloomColumns {
		col := leaf(path)
		if col == nil {
			return fmt.Errorf("bloom column %q: %w", path, common.ErrUnknownColumn)
		}
		if col.Type != common.TypeString && col.Type != common.TypeBytes {
			return fmt.Errorf("bloom filters key string or bytes columns, %q is %s: %w", path, col.Type, common.ErrUnsupported)
		}
	}
	for _, path := range opts.DeltaColumns {
		col := leaf(path)
		if col == nil {
			return fmt.Errorf("delta column %q: %w", path, common.ErrUnknownColumn)
		}
		switch col.Type {
		case common.TypeInt32, common.TypeInt64, common.TypeTimestamp:
		default:
			return fmt.Errorf("delta encoding fits integer or timestamp columns, %q is %s: %w", path, col.Type, common.ErrUnsupported)
		}
	}
	return nil
}

type streamingFile struct {
	schema *common.Schema
	leaves []common.Column
	opts   common.WriterOptions

	w  *backendWriter
	bw lake_io.BufferedWriteFlusher

	// offset is the absolute position the next chunk lands at, everything
	// below it has been handed to the buffered writer already.
	offset int64

	builders []common.ArrayBuilder
	stats    []*common.StatisticsBuilder
	// keys collects distinct bloom keys per column while a row group
	// accumulates, nil for columns without a bloom.
	keys []map[string]struct{}

	rowsInGroup  int
	bytesInGroup int64

	groups      []common.RowGroupMeta
	groupBlooms []map[int][]byte
	totalRows   int64

	done bool
}

var _ common.FileWriter = (*streamingFile)(nil)

func (s *streamingFile) Append(ctx context.Context, batch *common.RecordBatch) error {
	if s.done {
		return fmt.Errorf("writer for %s is already closed", s.w.name)
	}
	if !sameLeaves(batch.Schema.Leaves(), s.leaves) {
		return fmt.Errorf("batch schema does not match the file schema")
	}

	for row := 0; row < batch.NumRows(); row++ {
		for ci := range s.leaves {
			arr := batch.Column(ci)
			if arr.IsNull(row) {
				s.builders[ci].AppendNull()
				s.stats[ci].AppendNull()
				s.bytesInGroup++
				continue
			}

			v := arr.Value(row)
			if err := s.builders[ci].Append(v); err != nil {
				return err
			}
			s.stats[ci].Append(v)
			if s.keys[ci] != nil {
				s.keys[ci][string(common.BloomKey(v))] = struct{}{}
			}
			s.bytesInGroup += valueBytes(v)
		}

		s.rowsInGroup++
		if s.rowsInGroup >= s.opts.RowGroupMaxRows || s.bytesInGroup >= int64(s.opts.RowGroupMaxBytes) {
			if err := s.flushRowGroup(); err != nil {
				return err
			}
		}
	}
	return nil
}

// flushRowGroup encodes and compresses one chunk per leaf, streams them
// out and records their metadata. The bloom filters stay in memory until
// Complete, their file position is not known before every chunk has been
// written.
func (s *streamingFile) flushRowGroup() error {
	if s.rowsInGroup == 0 {
		return nil
	}

	rg := common.RowGroupMeta{
		NumRows: int64(s.rowsInGroup),
		Columns: make([]common.ColumnChunkMeta, 0, len(s.leaves)),
	}
	blooms := make(map[int][]byte)

	for ci, col := range s.leaves {
		arr := s.builders[ci].NewArray()
		stats := s.stats[ci].Build()
		s.stats[ci] = common.NewStatisticsBuilder(col.Type)

		enc := chooseEncoding(col, arr, &stats, s.opts)
		payload, err := encodeChunk(col, arr, enc)
		if err != nil {
			return err
		}
		compressed, err := compress(s.opts.Codec, payload)
		if err != nil {
			return err
		}
		if _, err := s.bw.Write(compressed); err != nil {
			return err
		}

		rg.Columns = append(rg.Columns, common.ColumnChunkMeta{
			Path:             col.Path,
			Type:             col.Type,
			Offset:           s.offset,
			CompressedSize:   int64(len(compressed)),
			UncompressedSize: int64(len(payload)),
			Codec:            s.opts.Codec,
			Encoding:         enc,
			Stats:            stats,
			BloomOffset:      -1,
		})
		s.offset += int64(len(compressed))

		if s.keys[ci] != nil {
			blob, err := marshalBloom(s.keys[ci], s.opts.BloomFP)
			if err != nil {
				return err
			}
			blooms[ci] = blob
			s.keys[ci] = make(map[string]struct{})
		}
	}

	s.groups = append(s.groups, rg)
	s.groupBlooms = append(s.groupBlooms, blooms)
	s.totalRows += int64(s.rowsInGroup)
	s.rowsInGroup = 0
	s.bytesInGroup = 0

	return s.bw.Flush()
}

func marshalBloom(keys map[string]struct{}, fp float64) ([]byte, error) {
	estimate := uint(len(keys))
	if estimate == 0 {
		estimate = 1
	}
	bf := common.NewBloom(fp, estimate)
	for key := range keys {
		bf.Add([]byte(key))
	}
	return bf.Marshal()
}

func (s *streamingFile) Complete(ctx context.Context) (*common.FileMetadata, error) {
	if s.done {
		return nil, fmt.Errorf("writer for %s is already closed", s.w.name)
	}
	s.done = true

	if err := s.flushRowGroup(); err != nil {
		return nil, err
	}

	// bloom section
	for gi, blooms := range s.groupBlooms {
		for ci := range s.leaves {
			blob, ok := blooms[ci]
			if !ok {
				continue
			}
			if _, err := s.bw.Write(blob); err != nil {
				return nil, err
			}
			s.groups[gi].Columns[ci].BloomOffset = s.offset
			s.groups[gi].Columns[ci].BloomSize = int64(len(blob))
			s.offset += int64(len(blob))
		}
	}

	meta := &common.FileMetadata{
		Version:   VersionString,
		Schema:    s.schema,
		RowGroups: s.groups,
		TotalRows: s.totalRows,
	}

	footer := marshalFooter(meta)
	if _, err := s.bw.Write(footer); err != nil {
		return nil, err
	}
	s.offset += int64(len(footer))

	trailer := appendTrailer(footer)
	if _, err := s.bw.Write(trailer); err != nil {
		return nil, err
	}
	s.offset += int64(len(trailer))

	if err := s.bw.Flush(); err != nil {
		return nil, err
	}
	if err := s.w.Close(); err != nil {
		return nil, err
	}

	meta.Size = s.offset
	return meta, nil
}

// Abort closes the append job without writing a footer. Whatever made it
// to the store stays behind as an unreadable partial object, buffered but
// unflushed bytes are dropped.
func (s *streamingFile) Abort(ctx context.Context) error {
	if s.done {
		return nil
	}
	s.done = true
	return s.w.Close()
}

func sameLeaves(a, b []common.Column) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// valueBytes estimates the buffered footprint of one value, used to cut
// row groups by size.
func valueBytes(v common.Value) int64 {
	switch v.Type {
	case common.TypeBool:
		return 1
	case common.TypeInt32, common.TypeFloat32:
		return 4
	case common.TypeInt64, common.TypeFloat64, common.TypeTimestamp:
		return 8
	case common.TypeString:
		return int64(4 + len(v.S))
	case common.TypeBytes:
		return int64(4 + len(v.Raw))
	case common.TypeList:
		n := int64(4)
		for _, e := range v.L {
			n += valueBytes(e)
		}
		return n
	default:
		return 1
	}
}
