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
	"os"

	"github.com/olekukonko/tablewriter"

	"github.com/intergral/lakescan/pkg/lakedb/encoding/common"
)

type scanCmd struct {
	backendOptions

	File    string   `arg:"" help:"object name of the file to scan"`
	Columns []string `help:"leaf columns to project, defaults to every column"`
	Where   []string `help:"row group predicate like 'id > 100', repeatable, ANDed together"`
	Limit   int      `default:"100" help:"stop after printing this many rows, 0 prints everything"`
}

func (cmd *scanCmd) Run(opts *globalOptions) error {
	r, _, err := loadEngine(&cmd.backendOptions, opts)
	if err != nil {
		return err
	}
	defer r.Shutdown()

	ctx := context.Background()

	meta, err := r.Metadata(ctx, cmd.File)
	if err != nil {
		return err
	}

	columns := cmd.Columns
	if len(columns) == 0 {
		for _, col := range meta.Schema.Leaves() {
			columns = append(columns, col.Path)
		}
	}

	pred, err := parsePredicate(cmd.Where, meta.Schema)
	if err != nil {
		return err
	}

	scan, err := r.OpenScan(ctx, cmd.File, common.ScanRequest{
		Columns:   columns,
		Predicate: pred,
	})
	if err != nil {
		return err
	}
	defer scan.Cancel()

	// struct columns expand to their leaves, the batch schema is the
	// authoritative output shape
	var table *tablewriter.Table
	var leafCount int

	printed := 0
	for {
		batch, err := scan.Next(ctx)
		if err != nil {
			return err
		}
		if batch == nil {
			break
		}

		if table == nil {
			leaves := batch.Schema.Leaves()
			headers := make([]string, len(leaves))
			for i, col := range leaves {
				headers[i] = col.Path
			}
			leafCount = len(leaves)

			table = tablewriter.NewWriter(os.Stdout)
			table.SetHeader(headers)
		}

		for row := 0; row < batch.NumRows(); row++ {
			cells := make([]string, leafCount)
			for ci := 0; ci < leafCount; ci++ {
				cells[ci] = formatCell(batch.Column(ci), row)
			}
			table.Append(cells)

			printed++
			if cmd.Limit > 0 && printed >= cmd.Limit {
				table.Render()
				fmt.Printf("stopped after %d rows\n", printed)
				return nil
			}
		}
	}

	if table != nil {
		table.Render()
	}
	fmt.Printf("%d rows\n", printed)
	return nil
}
