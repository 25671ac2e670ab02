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

package main

import (
	"context"
	"fmt"
	"math/rand"
	"path"
	"time"

	"github.com/google/uuid"

	"github.com/intergral/lakescan/pkg/lakedb"
	"github.com/intergral/lakescan/pkg/lakedb/backend"
	"github.com/intergral/lakescan/pkg/lakedb/encoding/common"
)

type generateCmd struct {
	backendOptions

	Prefix       string `arg:"" help:"dataset prefix to write under"`
	Files        int    `default:"3" help:"number of files to write"`
	Rows         int    `default:"10000" help:"rows per file"`
	RowGroupRows int    `name:"row-group-rows" default:"4096" help:"rows per row group"`
	Seed         int64  `default:"1" help:"seed of the value generator"`
}

var generateRegions = []string{"eu-west", "eu-central", "us-east", "us-west", "ap-south"}

func (cmd *generateCmd) Run(opts *globalOptions) error {
	r, w, err := loadEngine(&cmd.backendOptions, opts)
	if err != nil {
		return err
	}
	defer r.Shutdown()

	ctx := context.Background()
	rnd := rand.New(rand.NewSource(cmd.Seed))

	schema := &common.Schema{Fields: []common.Field{
		{Name: "id", Type: common.TypeInt64},
		{Name: "ts", Type: common.TypeTimestamp},
		{Name: "name", Type: common.TypeString},
		{Name: "region", Type: common.TypeString},
		{Name: "value", Type: common.TypeFloat64, Nullable: true},
	}}

	writerOpts := common.DefaultWriterOptions()
	writerOpts.RowGroupMaxRows = cmd.RowGroupRows
	writerOpts.BloomColumns = []string{"name"}

	entries := make([]*backend.FileEntry, 0, cmd.Files)
	nextID := int64(0)

	for i := 0; i < cmd.Files; i++ {
		name := uuid.New().String() + ".lsc"

		meta, err := cmd.writeFile(ctx, w, path.Join(cmd.Prefix, name), schema, &writerOpts, rnd, &nextID)
		if err != nil {
			return err
		}

		entries = append(entries, &backend.FileEntry{
			Name:      name,
			Size:      meta.Size,
			TotalRows: meta.TotalRows,
		})
		fmt.Printf("wrote %s: %d rows in %d row groups\n", name, meta.TotalRows, len(meta.RowGroups))
	}

	if err := w.WriteDatasetIndex(ctx, cmd.Prefix, entries); err != nil {
		return err
	}

	fmt.Printf("wrote dataset index of %d files\n", len(entries))
	return nil
}

func (cmd *generateCmd) writeFile(ctx context.Context, w lakedb.Writer, name string, schema *common.Schema, writerOpts *common.WriterOptions, rnd *rand.Rand, nextID *int64) (*common.FileMetadata, error) {
	fw, err := w.CreateFile(ctx, name, schema, writerOpts)
	if err != nil {
		return nil, err
	}

	const batchRows = 1000
	base := time.Now().Add(-24 * time.Hour)

	remaining := cmd.Rows
	for remaining > 0 {
		n := batchRows
		if n > remaining {
			n = remaining
		}

		batch, err := generateBatch(schema, n, base, rnd, nextID)
		if err != nil {
			_ = fw.Abort(ctx)
			return nil, err
		}
		if err := fw.Append(ctx, batch); err != nil {
			_ = fw.Abort(ctx)
			return nil, err
		}
		remaining -= n
	}

	return fw.Complete(ctx)
}

func generateBatch(schema *common.Schema, n int, base time.Time, rnd *rand.Rand, nextID *int64) (*common.RecordBatch, error) {
	leaves := schema.Leaves()
	builders := make([]common.ArrayBuilder, len(leaves))
	for i, col := range leaves {
		b, err := common.NewArrayBuilder(col)
		if err != nil {
			return nil, err
		}
		builders[i] = b
	}

	for row := 0; row < n; row++ {
		id := *nextID
		*nextID++

		for ci, col := range leaves {
			var err error
			switch col.Path {
			case "id":
				err = builders[ci].Append(common.Int64Value(id))
			case "ts":
				err = builders[ci].Append(common.TimestampValue(base.Add(time.Duration(id) * time.Second)))
			case "name":
				err = builders[ci].Append(common.StringValue(fmt.Sprintf("sensor-%04d", rnd.Intn(2000))))
			case "region":
				err = builders[ci].Append(common.StringValue(generateRegions[rnd.Intn(len(generateRegions))]))
			case "value":
				if rnd.Intn(20) == 0 {
					builders[ci].AppendNull()
				} else {
					err = builders[ci].Append(common.Float64Value(rnd.NormFloat64() * 100))
				}
			}
			if err != nil {
				return nil, err
			}
		}
	}

	arrays := make([]common.Array, len(builders))
	for i, b := range builders {
		arrays[i] = b.NewArray()
	}
	return common.NewRecordBatch(schema, arrays)
}
