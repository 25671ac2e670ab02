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
	"github.com/alecthomas/kong"
)

var cli struct {
	globalOptions

	Inspect  inspectCmd  `cmd:"" help:"Print the footer of a file: schema, row groups and column statistics."`
	Scan     scanCmd     `cmd:"" help:"Stream rows of a file to stdout."`
	List     listCmd     `cmd:"" help:"List the files of a dataset."`
	Index    indexCmd    `cmd:"" help:"Rebuild the dataset index from the backend listing."`
	Generate generateCmd `cmd:"" help:"Write a synthetic dataset, useful for smoke tests."`
	Convert  convertCmd  `cmd:"" help:"Convert a flat parquet file into a scan file."`
}

func main() {
	ctx := kong.Parse(&cli,
		kong.Name("lakescan-cli"),
		kong.Description("lakescan backend and file utilities"),
		kong.UsageOnError(),
	)

	err := ctx.Run(&cli.globalOptions)
	ctx.FatalIfErrorf(err)
}
