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

package cache

import (
	"bytes"
	"context"
	"io"
	"strconv"

	"github.com/intergral/lakescan/pkg/cache"
	lake_io "github.com/intergral/lakescan/pkg/io"
	"github.com/intergral/lakescan/pkg/lakedb/backend"
)

type readerWriter struct {
	nextReader backend.RawReader
	nextWriter backend.RawWriter
	cache      cache.Cache
}

// NewCache wraps the given reader/writer pair with a byte cache. Only calls
// that pass shouldCache go through the cache, everything else is handed
// straight to the wrapped backend.
func NewCache(nextReader backend.RawReader, nextWriter backend.RawWriter, cacheClient cache.Cache) (backend.RawReader, backend.RawWriter, error) {
	rw := &readerWriter{
		nextReader: nextReader,
		nextWriter: nextWriter,
		cache:      cacheClient,
	}

	return rw, rw, nil
}

// Head implements backend.RawReader
func (r *readerWriter) Head(ctx context.Context, name string) (backend.ObjectInfo, error) {
	return r.nextReader.Head(ctx, name)
}

// Read implements backend.RawReader
func (r *readerWriter) Read(ctx context.Context, name string, shouldCache bool) (io.ReadCloser, int64, error) {
	var k string
	if shouldCache {
		k = key(name)
		found, vals, _ := r.cache.Fetch(ctx, []string{k})
		if len(found) > 0 {
			return io.NopCloser(bytes.NewReader(vals[0])), int64(len(vals[0])), nil
		}
	}

	object, size, err := r.nextReader.Read(ctx, name, false)
	if err != nil {
		return nil, 0, err
	}
	defer object.Close()

	b, err := lake_io.ReadAllWithEstimate(object, size)
	if err != nil {
		return nil, 0, err
	}

	if shouldCache {
		r.cache.Store(ctx, []string{k}, [][]byte{b})
	}

	return io.NopCloser(bytes.NewReader(b)), int64(len(b)), nil
}

// ReadRange implements backend.RawReader
func (r *readerWriter) ReadRange(ctx context.Context, name string, offset int64, buffer []byte, shouldCache bool) error {
	var k string
	if shouldCache {
		k = rangeKey(name, offset, len(buffer))
		found, vals, _ := r.cache.Fetch(ctx, []string{k})
		if len(found) > 0 && len(vals[0]) == len(buffer) {
			copy(buffer, vals[0])
			return nil
		}
	}

	err := r.nextReader.ReadRange(ctx, name, offset, buffer, false)
	if err != nil {
		return err
	}

	if shouldCache {
		b := make([]byte, len(buffer))
		copy(b, buffer)
		r.cache.Store(ctx, []string{k}, [][]byte{b})
	}

	return nil
}

// List implements backend.RawReader. Listings are never cached.
func (r *readerWriter) List(ctx context.Context, prefix string) (backend.ObjectIterator, error) {
	return r.nextReader.List(ctx, prefix)
}

// Shutdown implements backend.RawReader
func (r *readerWriter) Shutdown() {
	r.nextReader.Shutdown()
	r.cache.Stop()
}

// Write implements backend.RawWriter
func (r *readerWriter) Write(ctx context.Context, name string, data io.Reader, size int64, shouldCache bool) error {
	if shouldCache {
		b, err := lake_io.ReadAllWithEstimate(data, size)
		if err != nil {
			return err
		}
		r.cache.Store(ctx, []string{key(name)}, [][]byte{b})
		data = bytes.NewReader(b)
		size = int64(len(b))
	}

	return r.nextWriter.Write(ctx, name, data, size, false)
}

// Append implements backend.RawWriter
func (r *readerWriter) Append(ctx context.Context, name string, tracker backend.AppendTracker, buffer []byte) (backend.AppendTracker, error) {
	return r.nextWriter.Append(ctx, name, tracker, buffer)
}

// CloseAppend implements backend.RawWriter
func (r *readerWriter) CloseAppend(ctx context.Context, tracker backend.AppendTracker) error {
	return r.nextWriter.CloseAppend(ctx, tracker)
}

func key(name string) string {
	return name
}

func rangeKey(name string, offset int64, length int) string {
	return name + ":" + strconv.FormatInt(offset, 10) + ":" + strconv.Itoa(length)
}
