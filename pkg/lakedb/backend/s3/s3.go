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

package s3

import (
	"bytes"
	"context"
	"crypto/tls"
	"io"
	"net/http"

	"github.com/cristalhq/hedgedhttp"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/opentracing/opentracing-go"
	"github.com/pkg/errors"

	backend2 "github.com/intergral/lakescan/pkg/lakedb/backend"
	"github.com/intergral/lakescan/pkg/lakedb/backend/instrumentation"
)

type readerWriter struct {
	cfg    *Config
	core   *minio.Core
	hedged *minio.Core
}

type appendTracker struct {
	uploadID string
	name     string
	parts    []minio.CompletePart
}

// New creates an S3 backend for cfg. Works against AWS and any S3 compatible
// endpoint minio can speak to.
func New(cfg *Config) (backend2.RawReader, backend2.RawWriter, error) {
	core, err := createCore(cfg, false)
	if err != nil {
		return nil, nil, errors.Wrap(err, "creating s3 client")
	}

	hedged, err := createCore(cfg, true)
	if err != nil {
		return nil, nil, errors.Wrap(err, "creating hedged s3 client")
	}

	rw := &readerWriter{
		cfg:    cfg,
		core:   core,
		hedged: hedged,
	}

	return rw, rw, nil
}

func createCore(cfg *Config, hedge bool) (*minio.Core, error) {
	customTransport := http.DefaultTransport.(*http.Transport).Clone()
	if cfg.InsecureSkipVerify {
		customTransport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
	}

	var rt http.RoundTripper = customTransport
	if hedge && cfg.HedgeRequestsAt != 0 {
		var stats *hedgedhttp.Stats
		var err error
		rt, stats, err = hedgedhttp.NewRoundTripperAndStats(cfg.HedgeRequestsAt, cfg.HedgeRequestsUpTo, rt)
		if err != nil {
			return nil, err
		}
		instrumentation.PublishHedgedMetrics(stats)
	}
	rt = instrumentation.NewTransport(rt)

	var creds *credentials.Credentials
	switch {
	case cfg.AccessKey != "" && cfg.SignatureV2:
		creds = credentials.NewStaticV2(cfg.AccessKey, cfg.SecretKey.String(), cfg.SessionToken.String())
	case cfg.AccessKey != "":
		creds = credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey.String(), cfg.SessionToken.String())
	default:
		creds = credentials.NewChainCredentials([]credentials.Provider{
			&credentials.EnvAWS{},
			&credentials.FileAWSCredentials{},
			&credentials.IAM{},
		})
	}

	lookup := minio.BucketLookupAuto
	if cfg.ForcePathStyle {
		lookup = minio.BucketLookupPath
	}

	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:        creds,
		Region:       cfg.Region,
		Secure:       !cfg.Insecure,
		Transport:    rt,
		BucketLookup: lookup,
	})
	if err != nil {
		return nil, err
	}

	return &minio.Core{Client: client}, nil
}

// Write implements backend.RawWriter
func (rw *readerWriter) Write(ctx context.Context, name string, data io.Reader, size int64, _ bool) error {
	span, derivedCtx := opentracing.StartSpanFromContext(ctx, "s3.Write")
	defer span.Finish()

	putObjectOptions := minio.PutObjectOptions{
		PartSize:     rw.cfg.PartSize,
		UserTags:     rw.cfg.Tags,
		StorageClass: rw.cfg.StorageClass,
		UserMetadata: rw.cfg.Metadata,
	}

	_, err := rw.core.Client.PutObject(derivedCtx, rw.cfg.Bucket, name, data, size, putObjectOptions)
	if err != nil {
		return errors.Wrapf(readError(err), "error writing object to s3 backend, object %s", name)
	}

	return nil
}

// Append implements backend.RawWriter
func (rw *readerWriter) Append(ctx context.Context, name string, tracker backend2.AppendTracker, buffer []byte) (backend2.AppendTracker, error) {
	a, ok := tracker.(*appendTracker)
	if !ok {
		uploadID, err := rw.core.NewMultipartUpload(ctx, rw.cfg.Bucket, name, minio.PutObjectOptions{
			UserTags:     rw.cfg.Tags,
			StorageClass: rw.cfg.StorageClass,
			UserMetadata: rw.cfg.Metadata,
		})
		if err != nil {
			return nil, errors.Wrap(readError(err), "error starting multipart upload")
		}
		a = &appendTracker{
			uploadID: uploadID,
			name:     name,
		}
	}

	part, err := rw.core.PutObjectPart(ctx, rw.cfg.Bucket, name, a.uploadID, len(a.parts)+1,
		bytes.NewReader(buffer), int64(len(buffer)), "", "", nil)
	if err != nil {
		return nil, errors.Wrap(readError(err), "error in multipart upload")
	}

	a.parts = append(a.parts, minio.CompletePart{
		PartNumber: part.PartNumber,
		ETag:       part.ETag,
	})

	return a, nil
}

// CloseAppend implements backend.RawWriter
func (rw *readerWriter) CloseAppend(ctx context.Context, tracker backend2.AppendTracker) error {
	if tracker == nil {
		return nil
	}

	a := tracker.(*appendTracker)
	_, err := rw.core.CompleteMultipartUpload(ctx, rw.cfg.Bucket, a.name, a.uploadID, a.parts, minio.PutObjectOptions{})
	if err != nil {
		return errors.Wrap(readError(err), "error completing multipart upload")
	}

	return nil
}

// Head implements backend.RawReader
func (rw *readerWriter) Head(ctx context.Context, name string) (backend2.ObjectInfo, error) {
	span, derivedCtx := opentracing.StartSpanFromContext(ctx, "s3.Head")
	defer span.Finish()

	info, err := rw.hedged.Client.StatObject(derivedCtx, rw.cfg.Bucket, name, minio.StatObjectOptions{})
	if err != nil {
		return backend2.ObjectInfo{}, readError(err)
	}

	return backend2.ObjectInfo{
		Name:         name,
		Size:         info.Size,
		LastModified: info.LastModified,
	}, nil
}

// Read implements backend.RawReader
func (rw *readerWriter) Read(ctx context.Context, name string, _ bool) (io.ReadCloser, int64, error) {
	span, derivedCtx := opentracing.StartSpanFromContext(ctx, "s3.Read")
	defer span.Finish()

	reader, info, _, err := rw.hedged.GetObject(derivedCtx, rw.cfg.Bucket, name, minio.GetObjectOptions{})
	if err != nil {
		return nil, 0, readError(err)
	}

	return reader, info.Size, nil
}

// ReadRange implements backend.RawReader
func (rw *readerWriter) ReadRange(ctx context.Context, name string, offset int64, buffer []byte, _ bool) error {
	span, derivedCtx := opentracing.StartSpanFromContext(ctx, "s3.ReadRange", opentracing.Tags{
		"len":    len(buffer),
		"offset": offset,
	})
	defer span.Finish()

	options := minio.GetObjectOptions{}
	err := options.SetRange(offset, offset+int64(len(buffer))-1)
	if err != nil {
		return errors.Wrap(err, "error setting headers for range read in s3")
	}

	reader, _, _, err := rw.hedged.GetObject(derivedCtx, rw.cfg.Bucket, name, options)
	if err != nil {
		return readError(err)
	}
	defer reader.Close()

	totalBytes := 0
	for totalBytes < len(buffer) {
		byteCount, err := reader.Read(buffer[totalBytes:])
		if byteCount == 0 {
			if err == io.EOF {
				return io.ErrUnexpectedEOF
			}
			return readError(err)
		}
		totalBytes += byteCount
	}

	return nil
}

// List implements backend.RawReader
func (rw *readerWriter) List(ctx context.Context, prefix string) (backend2.ObjectIterator, error) {
	// the listing goroutine minio spawns exits when the channel is drained or
	// ctx ends; callers must do one or the other
	ch := rw.core.Client.ListObjects(ctx, rw.cfg.Bucket, minio.ListObjectsOptions{
		Prefix:    prefix,
		Recursive: true,
	})

	return &listIterator{ch: ch}, nil
}

// Shutdown implements backend.RawReader
func (rw *readerWriter) Shutdown() {
}

type listIterator struct {
	ch <-chan minio.ObjectInfo
}

func (it *listIterator) Next(ctx context.Context) (*backend2.ObjectInfo, error) {
	select {
	case o, ok := <-it.ch:
		if !ok {
			return nil, nil
		}
		if o.Err != nil {
			return nil, errors.Wrap(readError(o.Err), "iterating objects")
		}
		return &backend2.ObjectInfo{
			Name:         o.Key,
			Size:         o.Size,
			LastModified: o.LastModified,
		}, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func readError(err error) error {
	if err == nil {
		return nil
	}

	resp := minio.ToErrorResponse(err)
	switch resp.Code {
	case "NoSuchKey", "NoSuchBucket":
		return backend2.ErrDoesNotExist
	case "AccessDenied", "InvalidAccessKeyId", "SignatureDoesNotMatch":
		return backend2.ErrPermissionDenied
	case "SlowDown", "RequestTimeout", "InternalError", "ServiceUnavailable":
		return backend2.AsTransient(err)
	}
	if resp.StatusCode >= 500 {
		return backend2.AsTransient(err)
	}

	return err
}
