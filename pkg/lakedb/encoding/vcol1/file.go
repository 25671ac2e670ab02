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
	"bytes"
	"context"
	"encoding/binary"
	"fmt"

	"github.com/cespare/xxhash/v2"
	"github.com/pkg/errors"

	"github.com/intergral/lakescan/pkg/lakedb/backend"
	"github.com/intergral/lakescan/pkg/lakedb/encoding/common"
)

// ReadFileMetadata fetches and parses the footer of the named file. It
// costs one Head plus one range read for most files, footers larger than
// footerEstimate need a second range read. The parsed metadata is
// immutable, callers are expected to cache and share it across scans.
func ReadFileMetadata(ctx context.Context, r backend.RawReader, name string, cc common.CacheControl) (*common.FileMetadata, error) {
	info, err := r.Head(ctx, name)
	if err != nil {
		return nil, errors.Wrapf(err, "error reading object info for %s", name)
	}

	size := info.Size
	if size < int64(magicLen+trailerLen) {
		return nil, fmt.Errorf("object of %d bytes is too small to hold a trailer: %w", size, common.ErrCorruptFile)
	}

	tailLen := int64(footerEstimate + trailerLen)
	if tailLen > size {
		tailLen = size
	}
	tail := make([]byte, tailLen)
	if err := r.ReadRange(ctx, name, size-tailLen, tail, cc.Footer); err != nil {
		return nil, errors.Wrapf(err, "error reading trailer of %s", name)
	}

	trailer := tail[tailLen-trailerLen:]
	if !bytes.Equal(trailer[12:16], magic) {
		return nil, fmt.Errorf("trailer magic is %q, want %q: %w", trailer[12:16], magic, common.ErrCorruptFile)
	}
	sum := binary.LittleEndian.Uint64(trailer[0:8])
	footerLen := int64(binary.LittleEndian.Uint32(trailer[8:12]))
	if footerLen > size-int64(magicLen+trailerLen) {
		return nil, fmt.Errorf("trailer says the footer is %d bytes, the object cannot hold more than %d: %w", footerLen, size-int64(magicLen+trailerLen), common.ErrCorruptFile)
	}

	var footer []byte
	if footerLen+trailerLen <= tailLen {
		footer = tail[tailLen-trailerLen-footerLen : tailLen-trailerLen]
	} else {
		footer = make([]byte, footerLen)
		if err := r.ReadRange(ctx, name, size-trailerLen-footerLen, footer, cc.Footer); err != nil {
			return nil, errors.Wrapf(err, "error reading footer of %s", name)
		}
	}

	if got := xxhash.Sum64(footer); got != sum {
		return nil, fmt.Errorf("footer checksum is %016x, trailer says %016x: %w", got, sum, common.ErrCorruptFile)
	}

	meta, err := unmarshalFooter(footer)
	if err != nil {
		return nil, errors.Wrapf(err, "error parsing footer of %s", name)
	}
	meta.Size = size
	return meta, nil
}
