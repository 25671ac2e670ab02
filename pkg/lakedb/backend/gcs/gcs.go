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

package gcs

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"cloud.google.com/go/storage"
	"github.com/cristalhq/hedgedhttp"
	"github.com/opentracing/opentracing-go"
	"github.com/pkg/errors"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
	google_http "google.golang.org/api/transport/http"

	"github.com/intergral/lakescan/pkg/lakedb/backend"
	"github.com/intergral/lakescan/pkg/lakedb/backend/instrumentation"
)

type readerWriter struct {
	cfg          *Config
	bucket       *storage.BucketHandle
	hedgedBucket *storage.BucketHandle
}

// New gets the GCS backend
func New(cfg *Config) (backend.RawReader, backend.RawWriter, error) {
	rw, err := internalNew(cfg, true)
	return rw, rw, err
}

func internalNew(cfg *Config, confirm bool) (*readerWriter, error) {
	ctx := context.Background()

	bucket, err := createBucket(ctx, cfg, false)
	if err != nil {
		return nil, errors.Wrap(err, "creating bucket")
	}

	hedgedBucket, err := createBucket(ctx, cfg, true)
	if err != nil {
		return nil, errors.Wrap(err, "creating hedged bucket")
	}

	// healthcheck against the bucket
	if confirm {
		_, err = bucket.Attrs(ctx)
		if err != nil {
			return nil, errors.Wrap(err, "getting bucket attrs")
		}
	}

	rw := &readerWriter{
		cfg:          cfg,
		bucket:       bucket,
		hedgedBucket: hedgedBucket,
	}

	return rw, nil
}

func createBucket(ctx context.Context, cfg *Config, hedge bool) (*storage.BucketHandle, error) {
	// start with default transport
	customTransport := http.DefaultTransport.(*http.Transport).Clone()

	transportOptions := []option.ClientOption{}
	if cfg.Insecure {
		transportOptions = append(transportOptions, option.WithoutAuthentication())
	}
	transport, err := google_http.NewTransport(ctx, customTransport, transportOptions...)
	if err != nil {
		return nil, errors.Wrap(err, "creating transport")
	}

	// add hedging if configured
	if hedge && cfg.HedgeRequestsAt != 0 {
		var stats *hedgedhttp.Stats
		transport, stats, err = hedgedhttp.NewRoundTripperAndStats(cfg.HedgeRequestsAt, cfg.HedgeRequestsUpTo, transport)
		if err != nil {
			return nil, err
		}
		instrumentation.PublishHedgedMetrics(stats)
	}

	// add instrumentation
	transport = instrumentation.NewTransport(transport)

	storageClientOptions := []option.ClientOption{
		option.WithHTTPClient(&http.Client{
			Transport: transport,
		}),
		option.WithScopes(storage.ScopeReadWrite),
	}
	if cfg.Endpoint != "" {
		storageClientOptions = append(storageClientOptions, option.WithEndpoint(cfg.Endpoint))
	}

	client, err := storage.NewClient(ctx, storageClientOptions...)
	if err != nil {
		return nil, errors.Wrap(err, "creating storage client")
	}

	return client.Bucket(cfg.BucketName), nil
}

// Write implements backend.RawWriter
func (rw *readerWriter) Write(ctx context.Context, name string, data io.Reader, _ int64, _ bool) error {
	if name == "" {
		return backend.ErrEmptyObjectName
	}

	span, derivedCtx := opentracing.StartSpanFromContext(ctx, "gcs.Write")
	defer span.Finish()

	w := rw.writer(derivedCtx, name)

	_, err := io.Copy(w, data)
	if err != nil {
		w.Close()
		return errors.Wrap(err, "uploading object to gcs")
	}

	return w.Close()
}

// Append implements backend.RawWriter
func (rw *readerWriter) Append(ctx context.Context, name string, tracker backend.AppendTracker, buffer []byte) (backend.AppendTracker, error) {
	if name == "" {
		return nil, backend.ErrEmptyObjectName
	}

	span, derivedCtx := opentracing.StartSpanFromContext(ctx, "gcs.Append", opentracing.Tags{
		"len": len(buffer),
	})
	defer span.Finish()

	var w *storage.Writer
	if tracker == nil {
		w = rw.writer(derivedCtx, name)
	} else {
		w = tracker.(*storage.Writer)
	}

	_, err := w.Write(buffer)
	if err != nil {
		return nil, err
	}

	return w, nil
}

// CloseAppend implements backend.RawWriter
func (rw *readerWriter) CloseAppend(_ context.Context, tracker backend.AppendTracker) error {
	if tracker == nil {
		return nil
	}

	w := tracker.(*storage.Writer)
	return w.Close()
}

// Head implements backend.RawReader
func (rw *readerWriter) Head(ctx context.Context, name string) (backend.ObjectInfo, error) {
	if name == "" {
		return backend.ObjectInfo{}, backend.ErrEmptyObjectName
	}

	span, derivedCtx := opentracing.StartSpanFromContext(ctx, "gcs.Head")
	defer span.Finish()

	attrs, err := rw.bucket.Object(name).Attrs(derivedCtx)
	if err != nil {
		return backend.ObjectInfo{}, readError(err)
	}

	return backend.ObjectInfo{
		Name:         name,
		Size:         attrs.Size,
		LastModified: attrs.Updated,
	}, nil
}

// Read implements backend.RawReader
func (rw *readerWriter) Read(ctx context.Context, name string, _ bool) (io.ReadCloser, int64, error) {
	if name == "" {
		return nil, 0, backend.ErrEmptyObjectName
	}

	span, derivedCtx := opentracing.StartSpanFromContext(ctx, "gcs.Read")
	defer span.Finish()

	r, err := rw.hedgedBucket.Object(name).NewReader(derivedCtx)
	if err != nil {
		span.SetTag("error", true)
		return nil, 0, readError(err)
	}

	return r, r.Attrs.Size, nil
}

// ReadRange implements backend.RawReader
func (rw *readerWriter) ReadRange(ctx context.Context, name string, offset int64, buffer []byte, _ bool) error {
	if name == "" {
		return backend.ErrEmptyObjectName
	}

	span, derivedCtx := opentracing.StartSpanFromContext(ctx, "gcs.ReadRange", opentracing.Tags{
		"len":    len(buffer),
		"offset": offset,
	})
	defer span.Finish()

	r, err := rw.hedgedBucket.Object(name).NewRangeReader(derivedCtx, offset, int64(len(buffer)))
	if err != nil {
		return readError(err)
	}
	defer r.Close()

	_, err = io.ReadFull(r, buffer)
	if err != nil {
		return readError(err)
	}

	return nil
}

// List implements backend.RawReader
func (rw *readerWriter) List(ctx context.Context, prefix string) (backend.ObjectIterator, error) {
	iter := rw.bucket.Objects(ctx, &storage.Query{
		Prefix: prefix,
	})

	return &listIterator{iter: iter}, nil
}

// Shutdown implements backend.RawReader
func (rw *readerWriter) Shutdown() {
}

func (rw *readerWriter) writer(ctx context.Context, name string) *storage.Writer {
	w := rw.bucket.Object(name).NewWriter(ctx)
	w.ChunkSize = rw.cfg.ChunkBufferSize
	w.Metadata = rw.cfg.ObjectMetadata

	if rw.cfg.ObjectCacheControl != "" {
		w.CacheControl = rw.cfg.ObjectCacheControl
	}

	return w
}

type listIterator struct {
	iter *storage.ObjectIterator
}

func (i *listIterator) Next(_ context.Context) (*backend.ObjectInfo, error) {
	attrs, err := i.iter.Next()
	if err == iterator.Done {
		return nil, nil
	}
	if err != nil {
		return nil, readError(err)
	}

	return &backend.ObjectInfo{
		Name:         attrs.Name,
		Size:         attrs.Size,
		LastModified: attrs.Updated,
	}, nil
}

func readError(err error) error {
	if err == storage.ErrObjectNotExist {
		return backend.ErrDoesNotExist
	}
	if err == io.ErrUnexpectedEOF || err == io.EOF {
		return io.ErrUnexpectedEOF
	}

	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		switch {
		case gerr.Code == http.StatusUnauthorized || gerr.Code == http.StatusForbidden:
			return backend.ErrPermissionDenied
		case gerr.Code == http.StatusTooManyRequests || gerr.Code >= 500:
			return backend.AsTransient(fmt.Errorf("gcs returned %d: %w", gerr.Code, err))
		}
	}

	return err
}
