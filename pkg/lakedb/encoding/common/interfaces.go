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

package common

import "context"

// ScanState is where a scan currently is in its lifecycle. It moves
// strictly forward: Initializing -> Pruning -> Streaming and then exactly
// one of Exhausted, Cancelled or Failed.
type ScanState int32

const (
	StateInitializing ScanState = iota
	StatePruning
	StateStreaming
	StateExhausted
	StateCancelled
	StateFailed
)

func (s ScanState) String() string {
	switch s {
	case StateInitializing:
		return "initializing"
	case StatePruning:
		return "pruning"
	case StateStreaming:
		return "streaming"
	case StateExhausted:
		return "exhausted"
	case StateCancelled:
		return "cancelled"
	case StateFailed:
		return "failed"
	}
	return "unknown"
}

// Terminal reports whether the scan is finished and no further batches
// will be produced.
func (s ScanState) Terminal() bool {
	return s == StateExhausted || s == StateCancelled || s == StateFailed
}

// Scan is a running scan over one file. Batches are pulled one at a time
// with Next, nothing is read ahead of demand beyond the configured
// prefetch window.
type Scan interface {
	// Next returns the next batch in file order. At the end of the scan it
	// returns (nil, nil). A terminal failure is returned exactly once,
	// afterwards Next keeps returning (nil, nil).
	Next(ctx context.Context) (*RecordBatch, error)

	// Cancel stops the scan. It is safe to call concurrently with Next and
	// more than once. In-flight row group fetches are abandoned, no new
	// ones are started.
	Cancel()

	// State returns the current lifecycle state.
	State() ScanState
}

// ScanRequest is what the caller wants out of one scan.
type ScanRequest struct {
	// Columns is the projection, by dotted leaf path. Naming a struct
	// selects all of its leaves. Must not be empty.
	Columns []string
	// Predicate prunes row groups. Row groups it cannot exclude are
	// returned whole, the predicate is not re-applied to individual rows.
	// nil scans everything.
	Predicate Predicate
	// BatchSize overrides the configured batch size when > 0.
	BatchSize int
}

// ScanOptions carries the engine level tuning a single request does not
// decide.
type ScanOptions struct {
	// BatchSize is the default number of rows per batch.
	BatchSize int
	// RowGroupPrefetch is how many row groups may be fetched ahead of the
	// one currently being consumed.
	RowGroupPrefetch int
	// ChunkFetchConcurrency bounds the parallel column chunk reads within
	// one row group.
	ChunkFetchConcurrency int
	// CacheControl selects which reads go through the byte cache.
	CacheControl CacheControl
}

// CacheControl determines which portions of a file are cached when a
// cache is configured. Chunk data is never cached, it is large and read
// once per scan.
type CacheControl struct {
	Footer bool
}

func DefaultScanOptions() ScanOptions {
	return ScanOptions{
		BatchSize:             4096,
		RowGroupPrefetch:      1,
		ChunkFetchConcurrency: 4,
		CacheControl:          CacheControl{Footer: true},
	}
}

// BatchRows resolves the batch size for one request.
func (o ScanOptions) BatchRows(req ScanRequest) int {
	if req.BatchSize > 0 {
		return req.BatchSize
	}
	if o.BatchSize > 0 {
		return o.BatchSize
	}
	return DefaultScanOptions().BatchSize
}

// FileWriter writes one file. Appended batches accumulate into row groups
// which are flushed as the size thresholds are crossed. Nothing is
// readable until Complete has written the footer.
type FileWriter interface {
	// Append buffers the rows of the batch. The batch schema must equal
	// the schema the writer was created with.
	Append(ctx context.Context, batch *RecordBatch) error

	// Complete flushes the final row group, writes the footer and returns
	// the metadata of the finished file.
	Complete(ctx context.Context) (*FileMetadata, error)

	// Abort closes the append job without writing a footer. Any partial
	// object left in the store is rejected by readers. The writer is
	// unusable afterwards.
	Abort(ctx context.Context) error
}

// WriterOptions tunes how a FileWriter lays out a file.
type WriterOptions struct {
	// RowGroupMaxRows caps the rows per row group.
	RowGroupMaxRows int
	// RowGroupMaxBytes caps the approximate uncompressed bytes per row
	// group, whichever limit is hit first flushes.
	RowGroupMaxBytes int
	// Codec compresses every chunk.
	Codec Codec
	// BloomColumns lists the leaves that get a per chunk bloom filter.
	BloomColumns []string
	// BloomFP is the target false positive rate of those filters.
	BloomFP float64
	// DictionaryMaxRatio enables dictionary encoding on a chunk when
	// distinct/total stays at or below this ratio.
	DictionaryMaxRatio float64
	// DeltaColumns lists integer or timestamp leaves to delta encode.
	DeltaColumns []string
}

func DefaultWriterOptions() WriterOptions {
	return WriterOptions{
		RowGroupMaxRows:    64 * 1024,
		RowGroupMaxBytes:   64 * 1024 * 1024,
		Codec:              CodecZstd,
		BloomFP:            0.01,
		DictionaryMaxRatio: 0.2,
	}
}
