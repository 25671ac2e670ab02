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

package backend

import "context"

// SliceIterator adapts an already materialized listing to ObjectIterator.
// Backends that cannot page (local disk, in-memory) build one of these.
type SliceIterator struct {
	objects []ObjectInfo
	idx     int
}

func NewSliceIterator(objects []ObjectInfo) *SliceIterator {
	return &SliceIterator{objects: objects}
}

func (it *SliceIterator) Next(ctx context.Context) (*ObjectInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if it.idx >= len(it.objects) {
		return nil, nil
	}
	o := it.objects[it.idx]
	it.idx++
	return &o, nil
}

// ListAll drains an iterator. Helper for callers that want the whole listing.
func ListAll(ctx context.Context, iter ObjectIterator) ([]ObjectInfo, error) {
	var objects []ObjectInfo
	for {
		o, err := iter.Next(ctx)
		if err != nil {
			return nil, err
		}
		if o == nil {
			return objects, nil
		}
		objects = append(objects, *o)
	}
}
