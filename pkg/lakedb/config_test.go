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
	"errors"
	"os"
	"path"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/intergral/lakescan/pkg/lakedb/encoding/common"
)

func TestApplyToOptions(t *testing.T) {
	opts := common.DefaultScanOptions()
	cfg := ScanConfig{}

	// test defaults
	cfg.ApplyToOptions(&opts)
	require.Equal(t, opts.BatchSize, common.DefaultScanOptions().BatchSize)
	require.Equal(t, opts.RowGroupPrefetch, common.DefaultScanOptions().RowGroupPrefetch)
	require.Equal(t, opts.ChunkFetchConcurrency, common.DefaultScanOptions().ChunkFetchConcurrency)
	require.Equal(t, cfg.DatasetConcurrency, DefaultDatasetConcurrency)
	require.False(t, opts.CacheControl.Footer)

	// test non defaults
	cfg.BatchSize = 4
	cfg.RowGroupPrefetch = 5
	cfg.ChunkFetchConcurrency = 6
	cfg.CacheFooters = true
	cfg.ApplyToOptions(&opts)
	require.Equal(t, opts.BatchSize, 4)
	require.Equal(t, opts.RowGroupPrefetch, 5)
	require.Equal(t, opts.ChunkFetchConcurrency, 6)
	require.True(t, opts.CacheControl.Footer)
}

func TestWriterApplyToOptions(t *testing.T) {
	opts := common.DefaultWriterOptions()
	cfg := WriterConfig{}

	// test zero config keeps the defaults
	require.NoError(t, cfg.ApplyToOptions(&opts))
	require.Equal(t, opts, common.DefaultWriterOptions())

	// test non defaults
	cfg.RowGroupMaxRows = 100
	cfg.Codec = "lz4"
	cfg.BloomColumns = []string{"name"}
	require.NoError(t, cfg.ApplyToOptions(&opts))
	require.Equal(t, opts.RowGroupMaxRows, 100)
	require.Equal(t, opts.Codec, common.CodecLZ4_4M)
	require.Equal(t, opts.BloomColumns, []string{"name"})
	require.Equal(t, opts.RowGroupMaxBytes, common.DefaultWriterOptions().RowGroupMaxBytes)

	cfg.Codec = "bogus"
	require.Error(t, cfg.ApplyToOptions(&opts))
}

func TestValidateConfig(t *testing.T) {
	tests := []struct {
		cfg *Config
		err error
	}{
		// nil config fails
		{
			err: errors.New("config should be non-nil"),
		},
		// missing backend fails
		{
			cfg: &Config{},
			err: errors.New("backend should be set"),
		},
		// named backend without its config fails
		{
			cfg: &Config{Backend: "local"},
			err: errors.New("local config should be non-nil"),
		},
		{
			cfg: &Config{Backend: "s3"},
			err: errors.New("s3 config should be non-nil"),
		},
		{
			cfg: &Config{Backend: "gcs"},
			err: errors.New("gcs config should be non-nil"),
		},
		{
			cfg: &Config{Backend: "azure"},
			err: errors.New("azure config should be non-nil"),
		},
		// writer codec must parse
		{
			cfg: &Config{
				Backend: "inmem",
				Writer:  &WriterConfig{Codec: "bogus"},
			},
			err: errors.New("invalid codec: bogus, supported: none, gzip, lz4-64k, lz4-256k, lz4-1M, lz4, snappy, zstd, s2"),
		},
		// inmem needs nothing else
		{
			cfg: &Config{Backend: "inmem"},
		},
	}

	for _, test := range tests {
		err := validateConfig(test.cfg)
		require.Equal(t, test.err, err)
	}
}

func TestLoadConfig(t *testing.T) {
	t.Setenv("DATA_PATH", "/var/lakedb")

	raw := `
backend: local
local:
  path: ${DATA_PATH}/files
metadata_ttl: 1m
scan:
  batch_size: 1024
  cache_footers: true
writer:
  codec: zstd
  bloom_columns:
    - name
`
	file := path.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(file, []byte(raw), 0o644))

	cfg, err := LoadConfig(file)
	require.NoError(t, err)
	require.Equal(t, "local", cfg.Backend)
	require.Equal(t, "/var/lakedb/files", cfg.Local.Path)
	require.Equal(t, time.Minute, cfg.MetadataTTL)
	require.Equal(t, 1024, cfg.Scan.BatchSize)
	require.True(t, cfg.Scan.CacheFooters)
	require.Equal(t, "zstd", cfg.Writer.Codec)
	require.Equal(t, []string{"name"}, cfg.Writer.BloomColumns)
	require.NoError(t, validateConfig(cfg))
}

func TestLoadConfigRejectsUnknownKeys(t *testing.T) {
	file := path.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(file, []byte("backend: local\nshards: 3\n"), 0o644))

	_, err := LoadConfig(file)
	require.ErrorContains(t, err, "failed to parse config file")
}
