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

package vcol1

import (
	"context"
	"sync"

	"go.uber.org/atomic"

	"github.com/intergral/lakescan/pkg/lakedb/backend"
	"github.com/intergral/lakescan/pkg/lakedb/encoding/common"
)

// groupResult carries one fetched row group or the error that ended the
// producer.
type groupResult struct {
	data *groupData
	err  error
}

// fileScan pulls batches out of one file. A single producer goroutine
// walks the surviving row groups and feeds fetched groups into a bounded
// channel, Next drains the channel and repacks rows into fixed size
// batches, so batches freely span row group boundaries. The producer runs
// on the context OpenScan was given: cancelling a scan stops new fetches
// but lets the in-flight row group finish and be discarded. A context
// passed to Next bounds the wait inside that call, and like any other
// error an expired one ends the scan.
type fileScan struct {
	name string
	r    backend.RawReader
	meta *common.FileMetadata
	proj *projection

	batchRows   int
	concurrency int
	cacheBloom  bool

	groups     []int
	equalities []common.Comparison

	ctx       context.Context
	results   chan groupResult
	quit      chan struct{}
	quitOnce  sync.Once
	state     atomic.Int32
	bytesRead atomic.Int64

	builders  []common.ArrayBuilder
	pending   *groupData
	pendingAt int
}

var _ common.Scan = (*fileScan)(nil)

// OpenScan validates the request against the file metadata, prunes row
// groups on their statistics and starts the producer. Everything up to
// the first Next runs without touching row data, an invalid projection or
// predicate fails before any chunk is read. A scan that is abandoned
// before exhaustion must be released with Cancel or its producer stays
// parked on the prefetch channel.
func OpenScan(ctx context.Context, r backend.RawReader, name string, meta *common.FileMetadata, req common.ScanRequest, opts common.ScanOptions) (common.Scan, error) {
	s := &fileScan{
		name: name,
		r:    r,
		meta: meta,
		ctx:  ctx,
		quit: make(chan struct{}),
	}
	s.state.Store(int32(common.StateInitializing))

	proj, err := resolveProjection(meta.Schema, req.Columns)
	if err != nil {
		return nil, err
	}
	s.proj = proj

	pred, err := common.Bind(req.Predicate, meta.Schema)
	if err != nil {
		return nil, err
	}

	s.builders = make([]common.ArrayBuilder, len(proj.leaves))
	for i, col := range proj.leaves {
		b, err := common.NewArrayBuilder(col)
		if err != nil {
			return nil, err
		}
		s.builders[i] = b
	}

	defaults := common.DefaultScanOptions()
	s.batchRows = opts.BatchRows(req)
	s.concurrency = opts.ChunkFetchConcurrency
	if s.concurrency < 1 {
		s.concurrency = defaults.ChunkFetchConcurrency
	}
	prefetch := opts.RowGroupPrefetch
	if prefetch < 1 {
		prefetch = defaults.RowGroupPrefetch
	}
	s.cacheBloom = opts.CacheControl.Footer

	s.state.Store(int32(common.StatePruning))
	s.groups = pruneRowGroups(meta, pred)
	s.equalities = common.RequiredEqualities(pred)

	// The producer parks prefetch-1 finished groups in the channel and one
	// more at the blocked send, keeping exactly prefetch groups ahead of
	// the one Next is draining.
	s.results = make(chan groupResult, prefetch-1)

	s.state.Store(int32(common.StateStreaming))
	go s.produce()
	return s, nil
}

func (s *fileScan) State() common.ScanState {
	return common.ScanState(s.state.Load())
}

// BytesRead returns the compressed bytes fetched so far, blooms included.
func (s *fileScan) BytesRead() int64 {
	return s.bytesRead.Load()
}

// Cancel releases the scan. It never blocks, is safe against concurrent
// Next calls and may be called repeatedly.
func (s *fileScan) Cancel() {
	s.quitOnce.Do(func() { close(s.quit) })
	s.toTerminal(common.StateCancelled)
}

func (s *fileScan) Next(ctx context.Context) (*common.RecordBatch, error) {
	if s.State().Terminal() {
		return nil, nil
	}

	for {
		if s.pending != nil {
			if err := s.fillFromPending(); err != nil {
				return nil, s.fail(err)
			}
			if s.builderLen() >= s.batchRows {
				batch, err := s.emit()
				if err != nil {
					return nil, s.fail(err)
				}
				return batch, nil
			}
			continue
		}

		select {
		case res, ok := <-s.results:
			if !ok {
				batch, err := s.finalBatch()
				if err != nil {
					return nil, s.fail(err)
				}
				s.toTerminal(common.StateExhausted)
				return batch, nil
			}
			if res.err != nil {
				return nil, s.fail(res.err)
			}
			s.pending = res.data
			s.pendingAt = 0
		case <-ctx.Done():
			return nil, s.fail(ctx.Err())
		case <-s.quit:
			return nil, nil
		}
	}
}

// produce walks the surviving row groups in file order. It exits when all
// groups are delivered, after the first fetch error, or as soon as the
// quit channel closes.
func (s *fileScan) produce() {
	defer close(s.results)
	for _, gi := range s.groups {
		select {
		case <-s.quit:
			return
		default:
		}

		rg := &s.meta.RowGroups[gi]
		if s.bloomSkip(rg) {
			continue
		}

		data, err := fetchRowGroup(s.ctx, s.r, s.name, rg, s.proj, s.concurrency, &s.bytesRead)
		select {
		case s.results <- groupResult{data: data, err: err}:
			if err != nil {
				return
			}
		case <-s.quit:
			return
		}
	}
}

// bloomSkip reports whether a bloom filter proves that no row of the
// group can satisfy one of the equality comparisons the predicate
// requires. Absent, unreadable or corrupt blooms never skip, the group is
// scanned instead.
func (s *fileScan) bloomSkip(rg *common.RowGroupMeta) bool {
	for _, eq := range s.equalities {
		cm := rg.Column(eq.Column)
		if cm == nil || cm.BloomOffset < 0 {
			continue
		}

		buf := make([]byte, cm.BloomSize)
		if err := s.r.ReadRange(s.ctx, s.name, cm.BloomOffset, buf, s.cacheBloom); err != nil {
			continue
		}
		s.bytesRead.Add(cm.BloomSize)

		bf, err := common.ParseBloom(buf)
		if err != nil {
			continue
		}
		if !bf.Test(common.BloomKey(eq.Literal)) {
			return true
		}
	}
	return false
}

// fillFromPending copies rows out of the pending group until the batch is
// full or the group is drained.
func (s *fileScan) fillFromPending() error {
	data := s.pending
	for s.pendingAt < int(data.rows) && s.builderLen() < s.batchRows {
		i := s.pendingAt
		for ci, b := range s.builders {
			arr := data.arrays[ci]
			if arr.IsNull(i) {
				b.AppendNull()
			} else if err := b.Append(arr.Value(i)); err != nil {
				return err
			}
		}
		s.pendingAt++
	}
	if s.pendingAt == int(data.rows) {
		s.pending = nil
	}
	return nil
}

func (s *fileScan) builderLen() int {
	return s.builders[0].Len()
}

func (s *fileScan) emit() (*common.RecordBatch, error) {
	cols := make([]common.Array, len(s.builders))
	for i, b := range s.builders {
		cols[i] = b.NewArray()
	}
	return common.NewRecordBatch(s.proj.schema, cols)
}

func (s *fileScan) finalBatch() (*common.RecordBatch, error) {
	if s.builderLen() == 0 {
		return nil, nil
	}
	return s.emit()
}

// fail latches a terminal error. Exactly one caller gets the error back,
// anyone racing it observes the terminal state and gets (nil, nil).
func (s *fileScan) fail(err error) error {
	s.quitOnce.Do(func() { close(s.quit) })
	if s.toTerminal(common.StateFailed) {
		return err
	}
	return nil
}

// toTerminal moves the scan into st unless it is already terminal.
// Terminal states never change again.
func (s *fileScan) toTerminal(st common.ScanState) bool {
	for {
		cur := common.ScanState(s.state.Load())
		if cur.Terminal() {
			return false
		}
		if s.state.CompareAndSwap(int32(cur), int32(st)) {
			return true
		}
	}
}
