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

package azure

import (
	"bufio"
	"bytes"
	"context"
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"io"

	blob "github.com/Azure/azure-storage-blob-go/azblob"
	"github.com/opentracing/opentracing-go"
	"github.com/pkg/errors"

	backend2 "github.com/intergral/lakescan/pkg/lakedb/backend"
)

const (
	// max parallelism on uploads
	maxParallelism = 3
)

type readerWriter struct {
	cfg                *Config
	containerURL       blob.ContainerURL
	hedgedContainerURL blob.ContainerURL
}

type appendTracker struct {
	Name string
}

// New gets the Azure blob container
func New(cfg *Config) (backend2.RawReader, backend2.RawWriter, error) {
	return internalNew(cfg, true)
}

func internalNew(cfg *Config, confirm bool) (backend2.RawReader, backend2.RawWriter, error) {
	ctx := context.Background()

	container, err := GetContainer(ctx, cfg, false)
	if err != nil {
		return nil, nil, errors.Wrap(err, "getting storage container")
	}

	hedgedContainer, err := GetContainer(ctx, cfg, true)
	if err != nil {
		return nil, nil, errors.Wrap(err, "getting hedged storage container")
	}

	if confirm {
		// Getting container properties to check if container exists
		_, err = container.GetProperties(ctx, blob.LeaseAccessConditions{})
		if err != nil {
			return nil, nil, fmt.Errorf("failed to GetProperties: %w", err)
		}
	}

	rw := &readerWriter{
		cfg:                cfg,
		containerURL:       container,
		hedgedContainerURL: hedgedContainer,
	}

	return rw, rw, nil
}

// Write implements backend.RawWriter
func (rw *readerWriter) Write(ctx context.Context, name string, data io.Reader, _ int64, _ bool) error {
	span, derivedCtx := opentracing.StartSpanFromContext(ctx, "azure.Write")
	defer span.Finish()

	return rw.writer(derivedCtx, bufio.NewReader(data), name)
}

// Append implements backend.RawWriter
func (rw *readerWriter) Append(ctx context.Context, name string, tracker backend2.AppendTracker, buffer []byte) (backend2.AppendTracker, error) {
	var a appendTracker
	if tracker == nil {
		a.Name = name

		err := rw.writeAll(ctx, a.Name, buffer)
		if err != nil {
			return nil, err
		}
	} else {
		a = tracker.(appendTracker)

		err := rw.append(ctx, buffer, a.Name)
		if err != nil {
			return nil, err
		}
	}

	return a, nil
}

// CloseAppend implements backend.RawWriter
func (rw *readerWriter) CloseAppend(context.Context, backend2.AppendTracker) error {
	return nil
}

// Head implements backend.RawReader
func (rw *readerWriter) Head(ctx context.Context, name string) (backend2.ObjectInfo, error) {
	span, derivedCtx := opentracing.StartSpanFromContext(ctx, "azure.Head")
	defer span.Finish()

	blobURL := rw.hedgedContainerURL.NewBlockBlobURL(name)

	props, err := blobURL.GetProperties(derivedCtx, blob.BlobAccessConditions{}, blob.ClientProvidedKeyOptions{})
	if err != nil {
		return backend2.ObjectInfo{}, readError(err)
	}

	return backend2.ObjectInfo{
		Name:         name,
		Size:         props.ContentLength(),
		LastModified: props.LastModified(),
	}, nil
}

// Read implements backend.RawReader
func (rw *readerWriter) Read(ctx context.Context, name string, _ bool) (io.ReadCloser, int64, error) {
	span, derivedCtx := opentracing.StartSpanFromContext(ctx, "azure.Read")
	defer span.Finish()

	b, err := rw.readAll(derivedCtx, name)
	if err != nil {
		return nil, 0, readError(err)
	}

	return io.NopCloser(bytes.NewReader(b)), int64(len(b)), nil
}

// ReadRange implements backend.RawReader
func (rw *readerWriter) ReadRange(ctx context.Context, name string, offset int64, buffer []byte, _ bool) error {
	span, derivedCtx := opentracing.StartSpanFromContext(ctx, "azure.ReadRange", opentracing.Tags{
		"len":    len(buffer),
		"offset": offset,
	})
	defer span.Finish()

	err := rw.readRange(derivedCtx, name, offset, buffer)
	if err != nil {
		return readError(err)
	}

	return nil
}

// List implements backend.RawReader
func (rw *readerWriter) List(ctx context.Context, prefix string) (backend2.ObjectIterator, error) {
	return &listIterator{
		container: rw.containerURL,
		prefix:    prefix,
	}, nil
}

// Shutdown implements backend.RawReader
func (rw *readerWriter) Shutdown() {
}

type listIterator struct {
	container blob.ContainerURL
	prefix    string
	marker    blob.Marker
	buffer    []backend2.ObjectInfo
	done      bool
}

func (it *listIterator) Next(ctx context.Context) (*backend2.ObjectInfo, error) {
	for len(it.buffer) == 0 && !it.done {
		list, err := it.container.ListBlobsFlatSegment(ctx, it.marker, blob.ListBlobsSegmentOptions{
			Prefix:  it.prefix,
			Details: blob.BlobListingDetails{},
		})
		if err != nil {
			return nil, errors.Wrap(err, "iterating objects")
		}
		it.marker = list.NextMarker

		for _, b := range list.Segment.BlobItems {
			size := int64(0)
			if b.Properties.ContentLength != nil {
				size = *b.Properties.ContentLength
			}
			it.buffer = append(it.buffer, backend2.ObjectInfo{
				Name:         b.Name,
				Size:         size,
				LastModified: b.Properties.LastModified,
			})
		}

		if !it.marker.NotDone() {
			it.done = true
		}
	}

	if len(it.buffer) == 0 {
		return nil, nil
	}

	o := it.buffer[0]
	it.buffer = it.buffer[1:]
	return &o, nil
}

func (rw *readerWriter) writeAll(ctx context.Context, name string, b []byte) error {
	err := rw.writer(ctx, bytes.NewReader(b), name)
	if err != nil {
		return err
	}

	return nil
}

func (rw *readerWriter) append(ctx context.Context, src []byte, name string) error {
	appendBlobURL := rw.containerURL.NewBlockBlobURL(name)

	// These helper functions convert a binary block ID to a base-64 string and vice versa
	// NOTE: The blockID must be <= 64 bytes and ALL blockIDs for the block must be the same length
	blockIDBinaryToBase64 := func(blockID []byte) string { return base64.StdEncoding.EncodeToString(blockID) }

	blockIDIntToBase64 := func(blockID int) string {
		binaryBlockID := (&[64]byte{})[:]
		binary.LittleEndian.PutUint32(binaryBlockID, uint32(blockID))
		return blockIDBinaryToBase64(binaryBlockID)
	}

	l, err := appendBlobURL.GetBlockList(ctx, blob.BlockListAll, blob.LeaseAccessConditions{})
	if err != nil {
		return err
	}

	// generate the next block id
	id := blockIDIntToBase64(len(l.CommittedBlocks) + 1)

	_, err = appendBlobURL.StageBlock(ctx, id, bytes.NewReader(src), blob.LeaseAccessConditions{}, nil, blob.ClientProvidedKeyOptions{})
	if err != nil {
		return err
	}

	base64BlockIDs := make([]string, len(l.CommittedBlocks)+1)
	for i := 0; i < len(l.CommittedBlocks); i++ {
		base64BlockIDs[i] = l.CommittedBlocks[i].Name
	}

	base64BlockIDs[len(l.CommittedBlocks)] = id

	// After all the blocks are uploaded, atomically commit them to the blob.
	_, err = appendBlobURL.CommitBlockList(ctx, base64BlockIDs, blob.BlobHTTPHeaders{}, blob.Metadata{}, blob.BlobAccessConditions{}, blob.DefaultAccessTier, blob.BlobTagsMap{}, blob.ClientProvidedKeyOptions{}, blob.ImmutabilityPolicyOptions{})
	if err != nil {
		return err
	}
	return nil
}

func (rw *readerWriter) writer(ctx context.Context, src io.Reader, name string) error {
	blobURL := rw.containerURL.NewBlockBlobURL(name)

	if _, err := blob.UploadStreamToBlockBlob(ctx, src, blobURL,
		blob.UploadStreamToBlockBlobOptions{
			BufferSize: rw.cfg.BufferSize,
			MaxBuffers: rw.cfg.MaxBuffers,
		},
	); err != nil {
		return errors.Wrapf(err, "cannot upload blob, name: %s", name)
	}
	return nil
}

func (rw *readerWriter) readRange(ctx context.Context, name string, offset int64, destBuffer []byte) error {
	blobURL := rw.hedgedContainerURL.NewBlockBlobURL(name)

	var props *blob.BlobGetPropertiesResponse
	props, err := blobURL.GetProperties(ctx, blob.BlobAccessConditions{}, blob.ClientProvidedKeyOptions{})
	if err != nil {
		return err
	}

	length := int64(len(destBuffer))
	if length > props.ContentLength()-offset {
		return io.ErrUnexpectedEOF
	}

	if err := blob.DownloadBlobToBuffer(ctx, blobURL.BlobURL, offset, length,
		destBuffer, blob.DownloadFromBlobOptions{
			BlockSize:   blob.BlobDefaultDownloadBlockSize,
			Parallelism: maxParallelism,
			Progress:    nil,
			RetryReaderOptionsPerBlock: blob.RetryReaderOptions{
				MaxRetryRequests: maxRetries,
			},
		},
	); err != nil {
		return err
	}

	return nil
}

func (rw *readerWriter) readAll(ctx context.Context, name string) ([]byte, error) {
	blobURL := rw.hedgedContainerURL.NewBlockBlobURL(name)

	var props *blob.BlobGetPropertiesResponse
	props, err := blobURL.GetProperties(ctx, blob.BlobAccessConditions{}, blob.ClientProvidedKeyOptions{})
	if err != nil {
		return nil, err
	}

	destBuffer := make([]byte, props.ContentLength())

	if err := blob.DownloadBlobToBuffer(ctx, blobURL.BlobURL, 0, props.ContentLength(),
		destBuffer, blob.DownloadFromBlobOptions{
			BlockSize:   blob.BlobDefaultDownloadBlockSize,
			Parallelism: uint16(maxParallelism),
			Progress:    nil,
			RetryReaderOptionsPerBlock: blob.RetryReaderOptions{
				MaxRetryRequests: maxRetries,
			},
		},
	); err != nil {
		return nil, err
	}

	return destBuffer, nil
}

func readError(err error) error {
	var storageError blob.StorageError
	errors.As(err, &storageError)

	if storageError == nil {
		return errors.Wrap(err, "reading storage container")
	}

	switch storageError.ServiceCode() {
	case blob.ServiceCodeBlobNotFound:
		return backend2.ErrDoesNotExist
	case blob.ServiceCodeInsufficientAccountPermissions, blob.ServiceCodeAccountIsDisabled:
		return backend2.ErrPermissionDenied
	case blob.ServiceCodeServerBusy, blob.ServiceCodeInternalError, blob.ServiceCodeOperationTimedOut:
		return backend2.AsTransient(storageError)
	}

	return errors.Wrap(storageError, "reading Azure blob container")
}
