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
	"path"
)

type indexCmd struct {
	backendOptions

	Prefix string `arg:"" help:"dataset prefix to index"`
}

func (cmd *indexCmd) Run(opts *globalOptions) error {
	r, w, err := loadEngine(&cmd.backendOptions, opts)
	if err != nil {
		return err
	}
	defer r.Shutdown()

	ctx := context.Background()

	files, err := r.ListBackendFiles(ctx, cmd.Prefix)
	if err != nil {
		return err
	}

	for _, f := range files {
		meta, err := r.Metadata(ctx, path.Join(cmd.Prefix, f.Name))
		if err != nil {
			return fmt.Errorf("error reading footer of %s: %w", f.Name, err)
		}
		f.TotalRows = meta.TotalRows
	}

	if err := w.WriteDatasetIndex(ctx, cmd.Prefix, files); err != nil {
		return err
	}

	fmt.Printf("indexed %d files under %s\n", len(files), cmd.Prefix)
	return nil
}
