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
	"github.com/intergral/lakescan/pkg/lakedb/encoding/common"
)

// pruneRowGroups returns the indexes of the row groups the predicate
// cannot exclude, in file order. A nil predicate keeps everything. This
// is a pure function over the footer statistics and performs no I/O,
// groups it keeps are read whole and their rows are not re-filtered.
func pruneRowGroups(meta *common.FileMetadata, pred common.Predicate) []int {
	keep := make([]int, 0, len(meta.RowGroups))
	for i := range meta.RowGroups {
		if common.EvaluateStats(pred, &meta.RowGroups[i]) != common.CanExclude {
			keep = append(keep, i)
		}
	}
	return keep
}
