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
	"strings"
	"time"

	gkLog "github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/google/uuid"
	"github.com/opentracing/opentracing-go"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"golang.org/x/sync/errgroup"

	pkg_cache "github.com/intergral/lakescan/pkg/cache"
	"github.com/intergral/lakescan/pkg/lakedb/backend"
	"github.com/intergral/lakescan/pkg/lakedb/backend/azure"
	"github.com/intergral/lakescan/pkg/lakedb/backend/cache"
	"github.com/intergral/lakescan/pkg/lakedb/backend/cache/memcached"
	"github.com/intergral/lakescan/pkg/lakedb/backend/cache/redis"
	"github.com/intergral/lakescan/pkg/lakedb/backend/gcs"
	"github.com/intergral/lakescan/pkg/lakedb/backend/inmem"
	"github.com/intergral/lakescan/pkg/lakedb/backend/local"
	"github.com/intergral/lakescan/pkg/lakedb/backend/s3"
	"github.com/intergral/lakescan/pkg/lakedb/encoding"
	"github.com/intergral/lakescan/pkg/lakedb/encoding/common"
)

var (
	metricScansStarted = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "lakedb",
		Name:      "scans_started_total",
		Help:      "Total number of file scans started.",
	})
	metricMetadataFetches = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "lakedb",
		Name:      "metadata_fetches_total",
		Help:      "Total footer lookups, by outcome of the cache check.",
	}, []string{"result"})
	metricDatasetScanDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "lakedb",
		Name:      "dataset_scan_duration_seconds",
		Help:      "Records the amount of time to scan a whole dataset.",
		Buckets:   prometheus.ExponentialBuckets(.25, 2, 6),
	})
	metricScanBytesRead = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "lakedb",
		Name:      "dataset_scan_bytes_total",
		Help:      "Total bytes fetched from the backend by dataset scans.",
	})
)

// BatchCallback receives the batches of a dataset scan. Batches of one file
// arrive in file order, batches of different files may arrive concurrently.
type BatchCallback func(file string, batch *common.RecordBatch) error

type Reader interface {
	// Metadata returns the parsed footer of the named file, served from the
	// engine cache when possible. The result is shared, callers must not
	// modify it.
	Metadata(ctx context.Context, name string) (*common.FileMetadata, error)

	// OpenScan starts a streaming scan over the named file.
	OpenScan(ctx context.Context, name string, req common.ScanRequest) (common.Scan, error)

	// ListFiles returns the files of the dataset under prefix, preferring the
	// dataset index and falling back to a backend listing. Names are relative
	// to the prefix.
	ListFiles(ctx context.Context, prefix string) ([]*backend.FileEntry, error)

	// ListBackendFiles lists the files under prefix straight from the
	// backend, ignoring any dataset index. Index rebuilds use this.
	ListBackendFiles(ctx context.Context, prefix string) ([]*backend.FileEntry, error)

	// ScanDataset scans every file of the dataset under prefix with the same
	// request and hands the batches to cb as they are produced.
	ScanDataset(ctx context.Context, prefix string, req common.ScanRequest, cb BatchCallback) error

	// InvalidateMetadata drops the cached footer of the named file.
	InvalidateMetadata(name string)

	Shutdown()
}

type Writer interface {
	// CreateFile starts writing a new file. nil opts uses the engine's
	// configured writer defaults.
	CreateFile(ctx context.Context, name string, schema *common.Schema, opts *common.WriterOptions) (common.FileWriter, error)

	// WriteDatasetIndex records the file listing as the index object of prefix.
	WriteDatasetIndex(ctx context.Context, prefix string, files []*backend.FileEntry) error
}

type readerWriter struct {
	r backend.Reader
	w backend.Writer

	cfg    *Config
	logger gkLog.Logger

	scanOpts   common.ScanOptions
	writerOpts common.WriterOptions

	metaCache *metadataCache
}

// New creates a new lakedb engine on the configured backend.
func New(cfg *Config, logger gkLog.Logger) (Reader, Writer, error) {
	var rawR backend.RawReader
	var rawW backend.RawWriter

	err := validateConfig(cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid config while creating lakedb: %w", err)
	}

	switch cfg.Backend {
	case "local":
		rawR, rawW, err = local.New(cfg.Local)
	case "gcs":
		rawR, rawW, err = gcs.New(cfg.GCS)
	case "s3":
		rawR, rawW, err = s3.New(cfg.S3)
	case "azure":
		rawR, rawW, err = azure.New(cfg.Azure)
	case "inmem":
		store := inmem.New()
		rawR, rawW = store, store
	default:
		err = fmt.Errorf("unknown backend %s", cfg.Backend)
	}

	if err != nil {
		return nil, nil, err
	}

	// an unset retry config would mean unlimited retries, fill in the defaults
	if cfg.Retry.IOTimeout <= 0 {
		cfg.Retry.IOTimeout = backend.DefaultIOTimeout
	}
	if cfg.Retry.MinBackoff <= 0 {
		cfg.Retry.MinBackoff = backend.DefaultMinBackoff
	}
	if cfg.Retry.MaxBackoff <= 0 {
		cfg.Retry.MaxBackoff = backend.DefaultMaxBackoff
	}
	if cfg.Retry.MaxRetries <= 0 {
		cfg.Retry.MaxRetries = backend.DefaultMaxRetries
	}

	rawR = backend.NewRetryingReader(rawR, cfg.Retry, logger)
	rawW = backend.NewRetryingWriter(rawW, cfg.Retry, logger)

	var cacheBackend pkg_cache.Cache

	switch cfg.Cache {
	case "redis":
		cacheBackend = redis.NewClient(cfg.Redis, cfg.BackgroundCache, logger)
	case "memcached":
		cacheBackend = memcached.NewClient(cfg.Memcached, cfg.BackgroundCache, logger)
	}

	if cacheBackend != nil {
		rawR, rawW, err = cache.NewCache(rawR, rawW, cacheBackend)
		if err != nil {
			return nil, nil, err
		}
	}

	scanOpts := common.DefaultScanOptions()
	if cfg.Scan != nil {
		cfg.Scan.ApplyToOptions(&scanOpts)
	}

	writerOpts := common.DefaultWriterOptions()
	if cfg.Writer != nil {
		if err := cfg.Writer.ApplyToOptions(&writerOpts); err != nil {
			return nil, nil, err
		}
	}

	rw := &readerWriter{
		r:          backend.NewReader(rawR),
		w:          backend.NewWriter(rawW),
		cfg:        cfg,
		logger:     logger,
		scanOpts:   scanOpts,
		writerOpts: writerOpts,
		metaCache:  newMetadataCache(cfg.MetadataTTL),
	}

	return rw, rw, nil
}

func (rw *readerWriter) Metadata(ctx context.Context, name string) (*common.FileMetadata, error) {
	if meta := rw.metaCache.get(name); meta != nil {
		metricMetadataFetches.WithLabelValues("hit").Inc()
		return meta, nil
	}
	metricMetadataFetches.WithLabelValues("miss").Inc()

	span, ctx := opentracing.StartSpanFromContext(ctx, "lakedb.Metadata")
	defer span.Finish()
	span.SetTag("file", name)

	meta, err := encoding.DefaultEncoding().ReadFileMetadata(ctx, rw.r, name, rw.scanOpts.CacheControl)
	if err != nil {
		return nil, err
	}

	rw.metaCache.put(name, meta)
	return meta, nil
}

func (rw *readerWriter) OpenScan(ctx context.Context, name string, req common.ScanRequest) (common.Scan, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "lakedb.OpenScan")
	defer span.Finish()
	span.SetTag("file", name)
	span.SetTag("scanID", uuid.New().String())

	meta, err := rw.Metadata(ctx, name)
	if err != nil {
		return nil, err
	}

	scan, err := encoding.OpenScan(ctx, rw.r, name, meta, req, rw.scanOpts)
	if err != nil {
		return nil, err
	}

	metricScansStarted.Inc()
	return scan, nil
}

func (rw *readerWriter) ListFiles(ctx context.Context, prefix string) ([]*backend.FileEntry, error) {
	index, err := rw.r.DatasetIndex(ctx, prefix)
	if err == nil {
		return index.Files, nil
	}
	if !errors.Is(err, backend.ErrDoesNotExist) {
		return nil, errors.Wrapf(err, "error reading dataset index of %s", prefix)
	}

	level.Debug(rw.logger).Log("msg", "no dataset index, listing backend", "prefix", prefix)

	return rw.ListBackendFiles(ctx, prefix)
}

func (rw *readerWriter) ListBackendFiles(ctx context.Context, prefix string) ([]*backend.FileEntry, error) {
	iter, err := rw.r.List(ctx, prefix)
	if err != nil {
		return nil, errors.Wrapf(err, "error listing %s", prefix)
	}

	var files []*backend.FileEntry
	for {
		obj, err := iter.Next(ctx)
		if err != nil {
			return nil, err
		}
		if obj == nil {
			return files, nil
		}

		name := relativeName(prefix, obj.Name)
		if name == "" || name == backend.DatasetIndexName {
			continue
		}

		files = append(files, &backend.FileEntry{
			Name:         name,
			Size:         obj.Size,
			LastModified: obj.LastModified,
		})
	}
}

func (rw *readerWriter) ScanDataset(ctx context.Context, prefix string, req common.ScanRequest, cb BatchCallback) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "lakedb.ScanDataset")
	defer span.Finish()
	span.SetTag("prefix", prefix)

	start := time.Now()
	defer func() { metricDatasetScanDuration.Observe(time.Since(start).Seconds()) }()

	files, err := rw.ListFiles(ctx, prefix)
	if err != nil {
		return err
	}
	span.SetTag("files", len(files))

	concurrency := DefaultDatasetConcurrency
	if rw.cfg.Scan != nil && rw.cfg.Scan.DatasetConcurrency > 0 {
		concurrency = rw.cfg.Scan.DatasetConcurrency
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	for _, f := range files {
		f := f
		g.Go(func() error {
			return rw.scanOne(ctx, path.Join(prefix, f.Name), f.Name, req, cb)
		})
	}

	return g.Wait()
}

func (rw *readerWriter) scanOne(ctx context.Context, object, file string, req common.ScanRequest, cb BatchCallback) error {
	scan, err := rw.OpenScan(ctx, object, req)
	if err != nil {
		return errors.Wrapf(err, "error opening scan of %s", object)
	}
	defer scan.Cancel()
	defer func() {
		if reporter, ok := scan.(interface{ BytesRead() int64 }); ok {
			metricScanBytesRead.Add(float64(reporter.BytesRead()))
		}
	}()

	for {
		batch, err := scan.Next(ctx)
		if err != nil {
			return errors.Wrapf(err, "error scanning %s", object)
		}
		if batch == nil {
			return nil
		}
		if err := cb(file, batch); err != nil {
			return err
		}
	}
}

func (rw *readerWriter) InvalidateMetadata(name string) {
	rw.metaCache.invalidate(name)
}

func (rw *readerWriter) Shutdown() {
	rw.r.Shutdown()
}

func (rw *readerWriter) CreateFile(ctx context.Context, name string, schema *common.Schema, opts *common.WriterOptions) (common.FileWriter, error) {
	writerOpts := rw.writerOpts
	if opts != nil {
		writerOpts = *opts
	}

	// a rewritten object must not be served from the stale footer
	rw.metaCache.invalidate(name)

	return encoding.DefaultEncoding().CreateFile(ctx, rw.w, name, schema, writerOpts)
}

func (rw *readerWriter) WriteDatasetIndex(ctx context.Context, prefix string, files []*backend.FileEntry) error {
	return rw.w.WriteDatasetIndex(ctx, prefix, files)
}

// relativeName strips the dataset prefix from a listed object name. Objects
// nested under a further sub prefix keep their relative path.
func relativeName(prefix, name string) string {
	if prefix == "" {
		return name
	}
	return strings.TrimPrefix(strings.TrimPrefix(name, prefix), "/")
}
