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
	"strconv"

	"github.com/dustin/go-humanize"
	"github.com/olekukonko/tablewriter"

	"github.com/intergral/lakescan/pkg/lakedb/encoding/common"
)

type inspectCmd struct {
	backendOptions

	File   string `arg:"" help:"object name of the file to inspect"`
	Chunks bool   `help:"also print the column chunk layout of every row group"`
}

func (cmd *inspectCmd) Run(opts *globalOptions) error {
	r, _, err := loadEngine(&cmd.backendOptions, opts)
	if err != nil {
		return err
	}
	defer r.Shutdown()

	meta, err := r.Metadata(context.Background(), cmd.File)
	if err != nil {
		return err
	}

	fmt.Printf("file:       %s\n", cmd.File)
	fmt.Printf("version:    %s\n", meta.Version)
	fmt.Printf("size:       %s\n", humanize.Bytes(uint64(meta.Size)))
	fmt.Printf("rows:       %s\n", humanize.Comma(meta.TotalRows))
	fmt.Printf("row groups: %d\n", len(meta.RowGroups))
	fmt.Println()

	schemaTable := tablewriter.NewWriter(os.Stdout)
	schemaTable.SetHeader([]string{"Column", "Type", "Nullable"})
	for _, col := range meta.Schema.Leaves() {
		schemaTable.Append([]string{col.Path, col.Type.String(), strconv.FormatBool(col.Nullable)})
	}
	schemaTable.Render()

	if !cmd.Chunks {
		return nil
	}

	for i := range meta.RowGroups {
		rg := &meta.RowGroups[i]

		fmt.Printf("\nrow group %d: %s rows\n", i, humanize.Comma(rg.NumRows))

		table := tablewriter.NewWriter(os.Stdout)
		table.SetHeader([]string{"Column", "Offset", "Compressed", "Raw", "Codec", "Encoding", "Nulls", "Min", "Max", "Bloom"})

		for _, c := range rg.Columns {
			table.Append([]string{
				c.Path,
				strconv.FormatInt(c.Offset, 10),
				humanize.Bytes(uint64(c.CompressedSize)),
				humanize.Bytes(uint64(c.UncompressedSize)),
				c.Codec.String(),
				c.Encoding.String(),
				strconv.FormatInt(c.Stats.NullCount, 10),
				formatBound(c.Stats.Min),
				formatBound(c.Stats.Max),
				formatBloom(c),
			})
		}
		table.Render()
	}

	return nil
}

func formatBound(v *common.Value) string {
	if v == nil {
		return "-"
	}
	return formatValue(*v)
}

func formatBloom(c common.ColumnChunkMeta) string {
	if c.BloomOffset < 0 {
		return "-"
	}
	return humanize.Bytes(uint64(c.BloomSize))
}
