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
	"context"
	"fmt"
	"io"
	"time"

	"github.com/pkg/errors"
)

var (
	ErrDoesNotExist     = fmt.Errorf("does not exist")
	ErrPermissionDenied = fmt.Errorf("permission denied")
	// ErrTransient marks failures that may succeed on retry: network resets,
	// throttling, 5xx responses, per-call timeouts. It is the only error kind
	// the retry layer acts on.
	ErrTransient      = fmt.Errorf("transient backend error")
	ErrEmptyObjectName = fmt.Errorf("empty object name")
)

// ObjectInfo describes a stored object without its data.
type ObjectInfo struct {
	Name         string
	Size         int64
	LastModified time.Time
}

// ObjectIterator pages through a listing lazily. Next returns nil when the
// listing is exhausted. Implementations are not safe for concurrent use.
type ObjectIterator interface {
	Next(ctx context.Context) (*ObjectInfo, error)
}

// AppendTracker is an empty interface usable by the backend to track a long-running append operation
type AppendTracker interface{}

// RawWriter is a collection of methods to write data to lakedb backends
type RawWriter interface {
	// Write stores the contents of data under name. size must match the number
	// of bytes in data. shouldCache specifies whether caching should be attempted.
	Write(ctx context.Context, name string, data io.Reader, size int64, shouldCache bool) error
	// Append starts or continues an append job. Pass nil to AppendTracker to start a job.
	Append(ctx context.Context, name string, tracker AppendTracker, buffer []byte) (AppendTracker, error)
	// CloseAppend closes any resources associated with the AppendTracker
	CloseAppend(ctx context.Context, tracker AppendTracker) error
}

// RawReader is a collection of methods to read data from lakedb backends
type RawReader interface {
	// Head returns object metadata without reading any data. Returns
	// ErrDoesNotExist when the object is absent.
	Head(ctx context.Context, name string) (ObjectInfo, error)
	// Read streams an entire object from the backend along with its size.
	Read(ctx context.Context, name string, shouldCache bool) (io.ReadCloser, int64, error)
	// ReadRange fills buffer with the bytes at [offset, offset+len(buffer)) of
	// name. If the object is shorter than that, implementations return
	// io.ErrUnexpectedEOF.
	ReadRange(ctx context.Context, name string, offset int64, buffer []byte, shouldCache bool) error
	// List lazily iterates the objects under prefix in lexical order.
	List(ctx context.Context, prefix string) (ObjectIterator, error)
	// Shutdown shuts...down?
	Shutdown()
}

// Writer adds dataset-level operations on top of RawWriter.
type Writer interface {
	RawWriter
	// WriteDatasetIndex records the file listing as the index object of prefix.
	WriteDatasetIndex(ctx context.Context, prefix string, files []*FileEntry) error
}

// Reader adds dataset-level operations on top of RawReader.
type Reader interface {
	RawReader
	// DatasetIndex returns the file listing previously written for prefix.
	DatasetIndex(ctx context.Context, prefix string) (*DatasetIndex, error)
}

type transientError struct {
	err error
}

func (e *transientError) Error() string { return "transient: " + e.err.Error() }

func (e *transientError) Unwrap() error { return e.err }

func (e *transientError) Is(target error) bool { return target == ErrTransient }

// AsTransient marks err as retryable. The original error stays reachable
// through errors.Unwrap.
func AsTransient(err error) error {
	if err == nil {
		return nil
	}
	return &transientError{err: err}
}

// IsRetryable reports whether the operation that produced err may be retried.
// Only transient failures qualify; NotFound, PermissionDenied and corruption
// never do.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrTransient)
}
