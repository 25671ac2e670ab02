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

package lakedb

import (
	"context"
	"fmt"
	"path"
	"sync"
	"testing"
	"time"

	"github.com/go-kit/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/intergral/lakescan/pkg/lakedb/backend"
	"github.com/intergral/lakescan/pkg/lakedb/backend/local"
	"github.com/intergral/lakescan/pkg/lakedb/encoding/common"
)

type testConfigOption func(*Config)

func testEngine(t *testing.T, opts ...testConfigOption) (Reader, Writer) {
	tempDir := t.TempDir()

	cfg := &Config{
		Backend: "local",
		Local: &local.Config{
			Path: path.Join(tempDir, "files"),
		},
		MetadataTTL: time.Minute,
	}

	for _, opt := range opts {
		opt(cfg)
	}

	r, w, err := New(cfg, log.NewNopLogger())
	require.NoError(t, err)
	return r, w
}

func engineSchema() *common.Schema {
	return &common.Schema{Fields: []common.Field{
		{Name: "id", Type: common.TypeInt64},
		{Name: "name", Type: common.TypeString, Nullable: true},
		{Name: "score", Type: common.TypeFloat64, Nullable: true},
	}}
}

func engineBatch(t *testing.T, start, n int) *common.RecordBatch {
	t.Helper()
	schema := engineSchema()
	leaves := schema.Leaves()
	arrays := make([]common.Array, len(leaves))
	for ci, col := range leaves {
		b, err := common.NewArrayBuilder(col)
		require.NoError(t, err)
		for row := start; row < start+n; row++ {
			switch col.Path {
			case "id":
				require.NoError(t, b.Append(common.Int64Value(int64(row))))
			case "name":
				if row%9 == 4 {
					b.AppendNull()
				} else {
					require.NoError(t, b.Append(common.StringValue(fmt.Sprintf("user-%02d", row%20))))
				}
			case "score":
				if row%6 == 5 {
					b.AppendNull()
				} else {
					require.NoError(t, b.Append(common.Float64Value(float64(row)/2)))
				}
			}
		}
		arrays[ci] = b.NewArray()
	}
	batch, err := common.NewRecordBatch(schema, arrays)
	require.NoError(t, err)
	return batch
}

func writeEngineFile(t *testing.T, w Writer, name string, rows int) *common.FileMetadata {
	t.Helper()
	ctx := context.Background()

	fw, err := w.CreateFile(ctx, name, engineSchema(), nil)
	require.NoError(t, err)
	require.NoError(t, fw.Append(ctx, engineBatch(t, 0, rows)))
	meta, err := fw.Complete(ctx)
	require.NoError(t, err)
	return meta
}

func TestEngineRoundtrip(t *testing.T) {
	r, w := testEngine(t)
	defer r.Shutdown()
	ctx := context.Background()

	written := writeEngineFile(t, w, "ds/one.lsc", 120)
	require.Equal(t, int64(120), written.TotalRows)

	meta, err := r.Metadata(ctx, "ds/one.lsc")
	require.NoError(t, err)
	assert.Equal(t, int64(120), meta.TotalRows)

	scan, err := r.OpenScan(ctx, "ds/one.lsc", common.ScanRequest{Columns: []string{"id", "name"}})
	require.NoError(t, err)

	next := int64(0)
	for {
		batch, err := scan.Next(ctx)
		require.NoError(t, err)
		if batch == nil {
			break
		}
		ids := batch.ColumnByPath("id")
		names := batch.ColumnByPath("name")
		for i := 0; i < batch.NumRows(); i++ {
			require.Equal(t, next, ids.Value(i).I)
			require.Equal(t, next%9 == 4, names.IsNull(i))
			next++
		}
	}
	require.Equal(t, int64(120), next)
	require.Equal(t, common.StateExhausted, scan.State())
}

func TestEngineMetadataCache(t *testing.T) {
	r, w := testEngine(t)
	defer r.Shutdown()
	ctx := context.Background()

	writeEngineFile(t, w, "ds/cached.lsc", 30)

	first, err := r.Metadata(ctx, "ds/cached.lsc")
	require.NoError(t, err)
	second, err := r.Metadata(ctx, "ds/cached.lsc")
	require.NoError(t, err)
	require.Same(t, first, second)

	r.InvalidateMetadata("ds/cached.lsc")
	third, err := r.Metadata(ctx, "ds/cached.lsc")
	require.NoError(t, err)
	require.NotSame(t, second, third)
}

func TestEngineMetadataCacheExpires(t *testing.T) {
	r, w := testEngine(t, func(cfg *Config) {
		cfg.MetadataTTL = 20 * time.Millisecond
	})
	defer r.Shutdown()
	ctx := context.Background()

	writeEngineFile(t, w, "ds/ttl.lsc", 30)

	first, err := r.Metadata(ctx, "ds/ttl.lsc")
	require.NoError(t, err)

	time.Sleep(30 * time.Millisecond)

	second, err := r.Metadata(ctx, "ds/ttl.lsc")
	require.NoError(t, err)
	require.NotSame(t, first, second)
}

func TestEngineListFiles(t *testing.T) {
	r, w := testEngine(t)
	defer r.Shutdown()
	ctx := context.Background()

	writeEngineFile(t, w, "ds/b.lsc", 10)
	writeEngineFile(t, w, "ds/a.lsc", 10)

	// no index yet, the listing is the fallback
	files, err := r.ListFiles(ctx, "ds")
	require.NoError(t, err)
	require.Len(t, files, 2)
	assert.Equal(t, "a.lsc", files[0].Name)
	assert.Equal(t, "b.lsc", files[1].Name)
	assert.Greater(t, files[0].Size, int64(0))

	// a written index takes over, including files the listing cannot know about
	err = w.WriteDatasetIndex(ctx, "ds", []*backend.FileEntry{
		{Name: "a.lsc", Size: files[0].Size, TotalRows: 10},
	})
	require.NoError(t, err)

	files, err = r.ListFiles(ctx, "ds")
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, "a.lsc", files[0].Name)
	assert.Equal(t, int64(10), files[0].TotalRows)

	// the raw listing ignores the index
	files, err = r.ListBackendFiles(ctx, "ds")
	require.NoError(t, err)
	require.Len(t, files, 2)
}

func TestEngineScanDataset(t *testing.T) {
	r, w := testEngine(t)
	defer r.Shutdown()
	ctx := context.Background()

	for _, name := range []string{"ds/one.lsc", "ds/two.lsc", "ds/three.lsc"} {
		writeEngineFile(t, w, name, 40)
	}

	var mtx sync.Mutex
	rowsPerFile := map[string]int{}
	err := r.ScanDataset(ctx, "ds", common.ScanRequest{Columns: []string{"id"}}, func(file string, batch *common.RecordBatch) error {
		mtx.Lock()
		defer mtx.Unlock()
		rowsPerFile[file] += batch.NumRows()
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, map[string]int{
		"one.lsc":   40,
		"two.lsc":   40,
		"three.lsc": 40,
	}, rowsPerFile)
}

func TestEngineScanDatasetPrefersIndex(t *testing.T) {
	r, w := testEngine(t)
	defer r.Shutdown()
	ctx := context.Background()

	writeEngineFile(t, w, "ds/kept.lsc", 40)
	writeEngineFile(t, w, "ds/ignored.lsc", 40)

	err := w.WriteDatasetIndex(ctx, "ds", []*backend.FileEntry{
		{Name: "kept.lsc", TotalRows: 40},
	})
	require.NoError(t, err)

	var mtx sync.Mutex
	rowsPerFile := map[string]int{}
	err = r.ScanDataset(ctx, "ds", common.ScanRequest{Columns: []string{"id"}}, func(file string, batch *common.RecordBatch) error {
		mtx.Lock()
		defer mtx.Unlock()
		rowsPerFile[file] += batch.NumRows()
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, map[string]int{"kept.lsc": 40}, rowsPerFile)
}

func TestEngineScanDatasetCallbackError(t *testing.T) {
	pre := goleak.IgnoreCurrent()

	r, w := testEngine(t)
	ctx := context.Background()

	for _, name := range []string{"ds/one.lsc", "ds/two.lsc", "ds/three.lsc"} {
		writeEngineFile(t, w, name, 40)
	}

	errStop := fmt.Errorf("enough")
	err := r.ScanDataset(ctx, "ds", common.ScanRequest{Columns: []string{"id"}}, func(string, *common.RecordBatch) error {
		return errStop
	})
	require.ErrorIs(t, err, errStop)

	r.Shutdown()
	goleak.VerifyNone(t, pre)
}

func TestEngineWriterConfigApplies(t *testing.T) {
	r, w := testEngine(t, func(cfg *Config) {
		cfg.Writer = &WriterConfig{RowGroupMaxRows: 50}
	})
	defer r.Shutdown()
	ctx := context.Background()

	writeEngineFile(t, w, "ds/grouped.lsc", 120)

	meta, err := r.Metadata(ctx, "ds/grouped.lsc")
	require.NoError(t, err)
	require.Len(t, meta.RowGroups, 3)
	assert.Equal(t, int64(50), meta.RowGroups[0].NumRows)
	assert.Equal(t, int64(50), meta.RowGroups[1].NumRows)
	assert.Equal(t, int64(20), meta.RowGroups[2].NumRows)
}

func TestEngineInmemBackend(t *testing.T) {
	cfg := &Config{Backend: "inmem"}
	r, w, err := New(cfg, log.NewNopLogger())
	require.NoError(t, err)
	defer r.Shutdown()
	ctx := context.Background()

	writeEngineFile(t, w, "mem/file.lsc", 25)

	scan, err := r.OpenScan(ctx, "mem/file.lsc", common.ScanRequest{Columns: []string{"score"}})
	require.NoError(t, err)

	rows := 0
	for {
		batch, err := scan.Next(ctx)
		require.NoError(t, err)
		if batch == nil {
			break
		}
		rows += batch.NumRows()
	}
	require.Equal(t, 25, rows)
}

func TestEngineMissingFile(t *testing.T) {
	r, _ := testEngine(t)
	defer r.Shutdown()

	_, err := r.Metadata(context.Background(), "ds/nope.lsc")
	require.ErrorIs(t, err, backend.ErrDoesNotExist)
}

func TestEngineRejectsBadConfig(t *testing.T) {
	tests := []struct {
		name string
		cfg  *Config
		want string
	}{
		{
			name: "nil config",
			cfg:  nil,
			want: "config should be non-nil",
		},
		{
			name: "no backend",
			cfg:  &Config{},
			want: "backend should be set",
		},
		{
			name: "missing backend config",
			cfg:  &Config{Backend: "local"},
			want: "local config should be non-nil",
		},
		{
			name: "unknown backend",
			cfg:  &Config{Backend: "floppy"},
			want: "unknown backend floppy",
		},
		{
			name: "bad codec",
			cfg: &Config{
				Backend: "inmem",
				Writer:  &WriterConfig{Codec: "bogus"},
			},
			want: "invalid codec: bogus",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, _, err := New(tc.cfg, log.NewNopLogger())
			require.Error(t, err)
			require.ErrorContains(t, err, tc.want)
		})
	}
}
