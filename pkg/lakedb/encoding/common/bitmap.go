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

package common

// Validity and bool columns are stored as LSB first bitmaps, one bit per
// row, the final byte zero padded.

// BitmapLen returns the number of bytes needed to hold n bits.
func BitmapLen(n int) int {
	return (n + 7) / 8
}

// NewBitmap returns an all zero bitmap for n bits.
func NewBitmap(n int) []byte {
	return make([]byte, BitmapLen(n))
}

// BitmapSet sets bit i.
func BitmapSet(bm []byte, i int) {
	bm[i/8] |= 1 << (i % 8)
}

// BitmapGet reports whether bit i is set. A nil bitmap reads as all set,
// which lets arrays without nulls skip the allocation.
func BitmapGet(bm []byte, i int) bool {
	if bm == nil {
		return true
	}
	return bm[i/8]&(1<<(i%8)) != 0
}
