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
	"fmt"
	"io"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/s2"
	"github.com/klauspost/compress/snappy"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"

	"github.com/intergral/lakescan/pkg/lakedb/encoding/common"
)

// The zstd encoder and decoder are stateless when used through
// EncodeAll/DecodeAll and shared across all writers and scans.
var (
	zstdEncoder, _ = zstd.NewWriter(nil, zstd.WithEncoderConcurrency(1))
	zstdDecoder, _ = zstd.NewReader(nil, zstd.WithDecoderConcurrency(1))
)

// compress renders the compressed form of one chunk payload.
func compress(codec common.Codec, src []byte) ([]byte, error) {
	switch codec {
	case common.CodecNone:
		return src, nil
	case common.CodecGZIP:
		buf := &bytes.Buffer{}
		w := gzip.NewWriter(buf)
		if _, err := w.Write(src); err != nil {
			return nil, err
		}
		if err := w.Close(); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	case common.CodecLZ4_64k, common.CodecLZ4_256k, common.CodecLZ4_1M, common.CodecLZ4_4M:
		buf := &bytes.Buffer{}
		w := lz4.NewWriter(buf)
		if err := w.Apply(lz4.BlockSizeOption(lz4BlockSize(codec))); err != nil {
			return nil, err
		}
		if _, err := w.Write(src); err != nil {
			return nil, err
		}
		if err := w.Close(); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	case common.CodecSnappy:
		return snappy.Encode(nil, src), nil
	case common.CodecZstd:
		return zstdEncoder.EncodeAll(src, nil), nil
	case common.CodecS2:
		return s2.Encode(nil, src), nil
	default:
		return nil, fmt.Errorf("cannot compress with codec %s", codec)
	}
}

// decompress expands one chunk back to its payload and enforces the
// uncompressed size recorded in the footer. A chunk that inflates to any
// other size disagrees with its own metadata and is corrupt.
func decompress(codec common.Codec, src []byte, uncompressedSize int) ([]byte, error) {
	var (
		out []byte
		err error
	)

	switch codec {
	case common.CodecNone:
		out = src
	case common.CodecGZIP:
		var r *gzip.Reader
		r, err = gzip.NewReader(bytes.NewReader(src))
		if err == nil {
			out, err = readExactly(r, uncompressedSize)
		}
	case common.CodecLZ4_64k, common.CodecLZ4_256k, common.CodecLZ4_1M, common.CodecLZ4_4M:
		// the lz4 frame records its own block size, no option needed
		out, err = readExactly(lz4.NewReader(bytes.NewReader(src)), uncompressedSize)
	case common.CodecSnappy:
		out, err = snappy.Decode(nil, src)
	case common.CodecZstd:
		out, err = zstdDecoder.DecodeAll(src, nil)
	case common.CodecS2:
		out, err = s2.Decode(nil, src)
	default:
		return nil, fmt.Errorf("chunk uses codec %d which this build does not support: %w", byte(codec), common.ErrCorruptData)
	}

	if err != nil {
		return nil, fmt.Errorf("chunk failed to decompress with %s (%s): %w", codec, err, common.ErrCorruptData)
	}
	if len(out) != uncompressedSize {
		return nil, fmt.Errorf("chunk decompressed to %d bytes, footer says %d: %w", len(out), uncompressedSize, common.ErrCorruptData)
	}
	return out, nil
}

// readExactly drains a stream decompressor into a buffer of the expected
// size and fails when the stream holds more.
func readExactly(r io.Reader, size int) ([]byte, error) {
	out := make([]byte, size)
	if _, err := io.ReadFull(r, out); err != nil {
		return nil, err
	}
	var one [1]byte
	if n, _ := r.Read(one[:]); n != 0 {
		return nil, fmt.Errorf("stream longer than the expected %d bytes", size)
	}
	return out, nil
}

func lz4BlockSize(codec common.Codec) lz4.BlockSize {
	switch codec {
	case common.CodecLZ4_64k:
		return lz4.Block64Kb
	case common.CodecLZ4_256k:
		return lz4.Block256Kb
	case common.CodecLZ4_1M:
		return lz4.Block1Mb
	default:
		return lz4.Block4Mb
	}
}
