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
	"fmt"

	"github.com/pkg/errors"
	"go.uber.org/atomic"

	"github.com/intergral/lakescan/pkg/boundedwaitgroup"
	"github.com/intergral/lakescan/pkg/lakedb/backend"
	"github.com/intergral/lakescan/pkg/lakedb/encoding/common"
)

// groupData is one row group fetched and decoded, projected down to the
// requested columns.
type groupData struct {
	arrays []common.Array
	rows   int64
}

// fetchRowGroup reads, decompresses and decodes every projected chunk of
// one row group. Chunk reads run in parallel up to the given bound. Chunk
// data is read uncached, a scan consumes it exactly once.
func fetchRowGroup(ctx context.Context, r backend.RawReader, name string, rg *common.RowGroupMeta, proj *projection, concurrency int, bytesRead *atomic.Int64) (*groupData, error) {
	arrays := make([]common.Array, len(proj.leaves))
	var fetchErr atomic.Error

	bwg := boundedwaitgroup.New(uint(concurrency))
	for i := range proj.leaves {
		bwg.Add(1)
		go func(i int) {
			defer bwg.Done()

			col := proj.leaves[i]
			cm := rg.Column(col.Path)
			if cm == nil {
				fetchErr.Store(fmt.Errorf("row group has no chunk for column %q: %w", col.Path, common.ErrCorruptFile))
				return
			}

			buf := make([]byte, cm.CompressedSize)
			if err := r.ReadRange(ctx, name, cm.Offset, buf, false); err != nil {
				fetchErr.Store(errors.Wrapf(err, "error reading chunk %q", col.Path))
				return
			}
			bytesRead.Add(cm.CompressedSize)

			data, err := decompress(cm.Codec, buf, int(cm.UncompressedSize))
			if err != nil {
				fetchErr.Store(errors.Wrapf(err, "chunk %q", col.Path))
				return
			}
			arr, err := decodeChunk(col, cm, rg.NumRows, data)
			if err != nil {
				fetchErr.Store(err)
				return
			}
			arrays[i] = arr
		}(i)
	}
	bwg.Wait()

	if err := fetchErr.Load(); err != nil {
		return nil, err
	}
	return &groupData{arrays: arrays, rows: rg.NumRows}, nil
}
