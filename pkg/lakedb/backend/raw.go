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

package backend

import (
	"bytes"
	"context"
	"io"
	"path"

	"github.com/pkg/errors"

	lake_io "github.com/intergral/lakescan/pkg/io"
)

// DatasetIndexName is the object name of the per-prefix dataset index.
const DatasetIndexName = "index.json.gz"

type reader struct {
	r RawReader
}

// NewReader returns an object that is used to read data from the backend
func NewReader(r RawReader) Reader {
	return &reader{r: r}
}

func (r *reader) Head(ctx context.Context, name string) (ObjectInfo, error) {
	if name == "" {
		return ObjectInfo{}, ErrEmptyObjectName
	}
	return r.r.Head(ctx, name)
}

func (r *reader) Read(ctx context.Context, name string, shouldCache bool) (io.ReadCloser, int64, error) {
	if name == "" {
		return nil, 0, ErrEmptyObjectName
	}
	return r.r.Read(ctx, name, shouldCache)
}

func (r *reader) ReadRange(ctx context.Context, name string, offset int64, buffer []byte, shouldCache bool) error {
	if name == "" {
		return ErrEmptyObjectName
	}
	return r.r.ReadRange(ctx, name, offset, buffer, shouldCache)
}

func (r *reader) List(ctx context.Context, prefix string) (ObjectIterator, error) {
	return r.r.List(ctx, prefix)
}

func (r *reader) DatasetIndex(ctx context.Context, prefix string) (*DatasetIndex, error) {
	rc, size, err := r.r.Read(ctx, path.Join(prefix, DatasetIndexName), false)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	buf, err := lake_io.ReadAllWithEstimate(rc, size)
	if err != nil {
		return nil, errors.Wrap(err, "error reading dataset index")
	}

	i := &DatasetIndex{}
	err = i.unmarshal(buf)
	if err != nil {
		return nil, errors.Wrap(err, "error parsing dataset index")
	}

	return i, nil
}

func (r *reader) Shutdown() {
	r.r.Shutdown()
}

type writer struct {
	w RawWriter
}

// NewWriter returns an object that is used to write data to the backend
func NewWriter(w RawWriter) Writer {
	return &writer{w: w}
}

func (w *writer) Write(ctx context.Context, name string, data io.Reader, size int64, shouldCache bool) error {
	if name == "" {
		return ErrEmptyObjectName
	}
	return w.w.Write(ctx, name, data, size, shouldCache)
}

func (w *writer) Append(ctx context.Context, name string, tracker AppendTracker, buffer []byte) (AppendTracker, error) {
	if name == "" {
		return nil, ErrEmptyObjectName
	}
	return w.w.Append(ctx, name, tracker, buffer)
}

func (w *writer) CloseAppend(ctx context.Context, tracker AppendTracker) error {
	return w.w.CloseAppend(ctx, tracker)
}

func (w *writer) WriteDatasetIndex(ctx context.Context, prefix string, files []*FileEntry) error {
	i := newDatasetIndex(files)
	b, err := i.marshal()
	if err != nil {
		return err
	}

	return w.w.Write(ctx, path.Join(prefix, DatasetIndexName), bytes.NewReader(b), int64(len(b)), false)
}
