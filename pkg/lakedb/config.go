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
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/drone/envsubst"
	"gopkg.in/yaml.v2"

	"github.com/intergral/lakescan/pkg/cache"
	"github.com/intergral/lakescan/pkg/lakedb/backend"
	"github.com/intergral/lakescan/pkg/lakedb/backend/azure"
	"github.com/intergral/lakescan/pkg/lakedb/backend/cache/memcached"
	"github.com/intergral/lakescan/pkg/lakedb/backend/cache/redis"
	"github.com/intergral/lakescan/pkg/lakedb/backend/gcs"
	"github.com/intergral/lakescan/pkg/lakedb/backend/local"
	"github.com/intergral/lakescan/pkg/lakedb/backend/s3"
	"github.com/intergral/lakescan/pkg/lakedb/encoding/common"
	"github.com/intergral/lakescan/pkg/util"
)

const (
	DefaultBloomFP            = .01
	DefaultDatasetConcurrency = 8
	DefaultMetadataTTL        = 5 * time.Minute
)

// Config is the lakescan storage configuration
type Config struct {
	Backend string `yaml:"backend"`

	Local *local.Config `yaml:"local"`
	GCS   *gcs.Config   `yaml:"gcs"`
	S3    *s3.Config    `yaml:"s3"`
	Azure *azure.Config `yaml:"azure"`

	Cache           string                  `yaml:"cache"`
	BackgroundCache *cache.BackgroundConfig `yaml:"background_cache"`
	Memcached       *memcached.Config       `yaml:"memcached"`
	Redis           *redis.Config           `yaml:"redis"`

	Retry backend.RetryConfig `yaml:"retry"`

	// MetadataTTL bounds how long a parsed footer is served from memory
	// before it is fetched again. Zero disables expiry.
	MetadataTTL time.Duration `yaml:"metadata_ttl"`

	Scan   *ScanConfig   `yaml:"scan"`
	Writer *WriterConfig `yaml:"writer"`
}

// ScanConfig carries the engine level scan tuning.
type ScanConfig struct {
	BatchSize             int  `yaml:"batch_size"`
	RowGroupPrefetch      int  `yaml:"row_group_prefetch"`
	ChunkFetchConcurrency int  `yaml:"chunk_fetch_concurrency"`
	CacheFooters          bool `yaml:"cache_footers"`

	// DatasetConcurrency bounds how many files ScanDataset reads in parallel.
	DatasetConcurrency int `yaml:"dataset_concurrency"`
}

// ApplyToOptions fills opts from the config. Unset fields fall back to their
// defaults first so a zero ScanConfig behaves like no config at all.
func (sc *ScanConfig) ApplyToOptions(opts *common.ScanOptions) {
	defaults := common.DefaultScanOptions()

	if sc.BatchSize <= 0 {
		sc.BatchSize = defaults.BatchSize
	}
	if sc.RowGroupPrefetch <= 0 {
		sc.RowGroupPrefetch = defaults.RowGroupPrefetch
	}
	if sc.ChunkFetchConcurrency <= 0 {
		sc.ChunkFetchConcurrency = defaults.ChunkFetchConcurrency
	}
	if sc.DatasetConcurrency <= 0 {
		sc.DatasetConcurrency = DefaultDatasetConcurrency
	}

	opts.BatchSize = sc.BatchSize
	opts.RowGroupPrefetch = sc.RowGroupPrefetch
	opts.ChunkFetchConcurrency = sc.ChunkFetchConcurrency
	opts.CacheControl.Footer = sc.CacheFooters
}

// WriterConfig carries the defaults applied to files created through the
// engine.
type WriterConfig struct {
	RowGroupMaxRows    int      `yaml:"row_group_max_rows"`
	RowGroupMaxBytes   int      `yaml:"row_group_max_bytes"`
	Codec              string   `yaml:"codec"`
	BloomFP            float64  `yaml:"bloom_filter_false_positive"`
	BloomColumns       []string `yaml:"bloom_columns"`
	DeltaColumns       []string `yaml:"delta_columns"`
	DictionaryMaxRatio float64  `yaml:"dictionary_max_ratio"`
}

// ApplyToOptions fills opts from the config. The codec is parsed by name, an
// empty string keeps the default.
func (wc *WriterConfig) ApplyToOptions(opts *common.WriterOptions) error {
	if wc.RowGroupMaxRows > 0 {
		opts.RowGroupMaxRows = wc.RowGroupMaxRows
	}
	if wc.RowGroupMaxBytes > 0 {
		opts.RowGroupMaxBytes = wc.RowGroupMaxBytes
	}
	if wc.Codec != "" {
		codec, err := common.ParseCodec(wc.Codec)
		if err != nil {
			return err
		}
		opts.Codec = codec
	}
	if wc.BloomFP > 0 {
		opts.BloomFP = wc.BloomFP
	}
	if len(wc.BloomColumns) > 0 {
		opts.BloomColumns = wc.BloomColumns
	}
	if len(wc.DeltaColumns) > 0 {
		opts.DeltaColumns = wc.DeltaColumns
	}
	if wc.DictionaryMaxRatio > 0 {
		opts.DictionaryMaxRatio = wc.DictionaryMaxRatio
	}
	return nil
}

// RegisterFlagsAndApplyDefaults registers the flags.
func (cfg *Config) RegisterFlagsAndApplyDefaults(prefix string, f *flag.FlagSet) {
	f.StringVar(&cfg.Backend, util.PrefixConfig(prefix, "backend"), "", "File backend (s3, azure, gcs, local)")

	cfg.Local = &local.Config{}
	f.StringVar(&cfg.Local.Path, util.PrefixConfig(prefix, "local.path"), "", "Path to store files at.")

	cfg.S3 = &s3.Config{}
	f.StringVar(&cfg.S3.Bucket, util.PrefixConfig(prefix, "s3.bucket"), "", "s3 bucket to store files in.")
	f.StringVar(&cfg.S3.Endpoint, util.PrefixConfig(prefix, "s3.endpoint"), "", "s3 endpoint to push files to.")
	f.StringVar(&cfg.S3.AccessKey, util.PrefixConfig(prefix, "s3.access_key"), "", "s3 access key.")
	f.Var(&cfg.S3.SecretKey, util.PrefixConfig(prefix, "s3.secret_key"), "s3 secret key.")
	f.Var(&cfg.S3.SessionToken, util.PrefixConfig(prefix, "s3.session_token"), "s3 session token.")
	cfg.S3.HedgeRequestsUpTo = 2

	cfg.GCS = &gcs.Config{}
	f.StringVar(&cfg.GCS.BucketName, util.PrefixConfig(prefix, "gcs.bucket"), "", "gcs bucket to store files in.")
	cfg.GCS.ChunkBufferSize = 10 * 1024 * 1024
	cfg.GCS.HedgeRequestsUpTo = 2

	cfg.Azure = &azure.Config{}
	f.StringVar(&cfg.Azure.StorageAccountName, util.PrefixConfig(prefix, "azure.storage_account_name"), "", "Azure storage account name.")
	f.Var(&cfg.Azure.StorageAccountKey, util.PrefixConfig(prefix, "azure.storage_account_key"), "Azure storage access key.")
	f.StringVar(&cfg.Azure.ContainerName, util.PrefixConfig(prefix, "azure.container_name"), "", "Azure container name to store files in.")
	f.StringVar(&cfg.Azure.Endpoint, util.PrefixConfig(prefix, "azure.endpoint"), "blob.core.windows.net", "Azure endpoint to push files to.")
	f.IntVar(&cfg.Azure.MaxBuffers, util.PrefixConfig(prefix, "azure.max_buffers"), 4, "Number of simultaneous uploads.")
	cfg.Azure.BufferSize = 3 * 1024 * 1024
	cfg.Azure.HedgeRequestsUpTo = 2

	cfg.BackgroundCache = &cache.BackgroundConfig{}
	cfg.BackgroundCache.WriteBackBuffer = 10000
	cfg.BackgroundCache.WriteBackGoroutines = 10

	cfg.Retry.RegisterFlagsAndApplyDefaults(util.PrefixConfig(prefix, "retry"), f)

	f.DurationVar(&cfg.MetadataTTL, util.PrefixConfig(prefix, "metadata-ttl"), DefaultMetadataTTL, "How long parsed footers are served from memory.")

	cfg.Scan = &ScanConfig{}
	defaults := common.DefaultScanOptions()
	f.IntVar(&cfg.Scan.BatchSize, util.PrefixConfig(prefix, "scan.batch-size"), defaults.BatchSize, "Rows per scan batch.")
	f.IntVar(&cfg.Scan.RowGroupPrefetch, util.PrefixConfig(prefix, "scan.row-group-prefetch"), defaults.RowGroupPrefetch, "Row groups fetched ahead of the one being consumed.")
	cfg.Scan.ChunkFetchConcurrency = defaults.ChunkFetchConcurrency
	cfg.Scan.CacheFooters = defaults.CacheControl.Footer
	cfg.Scan.DatasetConcurrency = DefaultDatasetConcurrency

	cfg.Writer = &WriterConfig{}
	writerDefaults := common.DefaultWriterOptions()
	f.Float64Var(&cfg.Writer.BloomFP, util.PrefixConfig(prefix, "writer.bloom-filter-false-positive"), DefaultBloomFP, "Bloom filter false positive rate.")
	cfg.Writer.RowGroupMaxRows = writerDefaults.RowGroupMaxRows
	cfg.Writer.RowGroupMaxBytes = writerDefaults.RowGroupMaxBytes
	cfg.Writer.Codec = writerDefaults.Codec.String()
	cfg.Writer.DictionaryMaxRatio = writerDefaults.DictionaryMaxRatio
}

// LoadConfig reads a yaml config file, expanding ${VAR} references from the
// environment first.
func LoadConfig(path string) (*Config, error) {
	buf, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	expanded, err := envsubst.EvalEnv(string(buf))
	if err != nil {
		return nil, fmt.Errorf("failed to expand env vars in config: %w", err)
	}

	cfg := &Config{}
	if err := yaml.UnmarshalStrict([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	return cfg, nil
}

func validateConfig(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config should be non-nil")
	}

	if cfg.Backend == "" {
		return fmt.Errorf("backend should be set")
	}

	switch cfg.Backend {
	case "local":
		if cfg.Local == nil {
			return fmt.Errorf("local config should be non-nil")
		}
	case "s3":
		if cfg.S3 == nil {
			return fmt.Errorf("s3 config should be non-nil")
		}
	case "gcs":
		if cfg.GCS == nil {
			return fmt.Errorf("gcs config should be non-nil")
		}
	case "azure":
		if cfg.Azure == nil {
			return fmt.Errorf("azure config should be non-nil")
		}
	}

	if cfg.Writer != nil && cfg.Writer.Codec != "" {
		if _, err := common.ParseCodec(cfg.Writer.Codec); err != nil {
			return err
		}
	}

	return nil
}
