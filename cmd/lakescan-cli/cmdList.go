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
	"time"

	"github.com/dustin/go-humanize"
	"github.com/facette/natsort"
	"github.com/olekukonko/tablewriter"

	"github.com/intergral/lakescan/pkg/lakedb/backend"
)

type listCmd struct {
	backendOptions

	Prefix  string `arg:"" optional:"" help:"dataset prefix to list"`
	Listing bool   `help:"list the backend directly instead of the dataset index"`
}

func (cmd *listCmd) Run(opts *globalOptions) error {
	r, _, err := loadEngine(&cmd.backendOptions, opts)
	if err != nil {
		return err
	}
	defer r.Shutdown()

	var files []*backend.FileEntry
	if cmd.Listing {
		files, err = r.ListBackendFiles(context.Background(), cmd.Prefix)
	} else {
		files, err = r.ListFiles(context.Background(), cmd.Prefix)
	}
	if err != nil {
		return err
	}

	byName := map[string]*backend.FileEntry{}
	names := make([]string, 0, len(files))
	for _, f := range files {
		byName[f.Name] = f
		names = append(names, f.Name)
	}
	natsort.Sort(names)

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Name", "Size", "Rows", "Modified"})

	for _, name := range names {
		f := byName[name]

		rows := "-"
		if f.TotalRows > 0 {
			rows = humanize.Comma(f.TotalRows)
		}
		modified := "-"
		if !f.LastModified.IsZero() {
			modified = f.LastModified.UTC().Format(time.RFC3339)
		}

		table.Append([]string{f.Name, humanize.Bytes(uint64(f.Size)), rows, modified})
	}
	table.Render()
	fmt.Println(strconv.Itoa(len(files)) + " files")

	return nil
}
