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

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// Codec is the identifier for a chunk compression codec.
// Make sure to preserve the order, as these numeric values are written to the chunks!
type Codec byte

// The different available codecs.
const (
	CodecNone Codec = iota
	CodecGZIP
	CodecLZ4_64k
	CodecLZ4_256k
	CodecLZ4_1M
	CodecLZ4_4M
	CodecSnappy
	CodecZstd
	CodecS2
)

// SupportedCodecs is a slice of all supported codecs
var SupportedCodecs = []Codec{
	CodecNone,
	CodecGZIP,
	CodecLZ4_64k,
	CodecLZ4_256k,
	CodecLZ4_1M,
	CodecLZ4_4M,
	CodecSnappy,
	CodecZstd,
	CodecS2,
}

func (c Codec) String() string {
	switch c {
	case CodecNone:
		return "none"
	case CodecGZIP:
		return "gzip"
	case CodecLZ4_64k:
		return "lz4-64k"
	case CodecLZ4_256k:
		return "lz4-256k"
	case CodecLZ4_1M:
		return "lz4-1M"
	case CodecLZ4_4M:
		return "lz4"
	case CodecSnappy:
		return "snappy"
	case CodecZstd:
		return "zstd"
	case CodecS2:
		return "s2"
	default:
		return "unsupported"
	}
}

// UnmarshalYAML implements the Unmarshaler interface of the yaml pkg.
func (c *Codec) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var codecString string
	err := unmarshal(&codecString)
	if err != nil {
		return err
	}

	*c, err = ParseCodec(codecString)
	if err != nil {
		return err
	}

	return nil
}

// MarshalYAML implements the Marshaler interface of the yaml pkg
func (c Codec) MarshalYAML() (interface{}, error) {
	return c.String(), nil
}

// UnmarshalJSON implements the Unmarshaler interface of the json pkg.
func (c *Codec) UnmarshalJSON(b []byte) error {
	var codecString string
	err := json.Unmarshal(b, &codecString)
	if err != nil {
		return err
	}

	*c, err = ParseCodec(codecString)
	if err != nil {
		return err
	}

	return nil
}

// MarshalJSON implements the marshaler interface of the json pkg.
func (c Codec) MarshalJSON() ([]byte, error) {
	buffer := bytes.NewBufferString("\"" + c.String() + "\"")
	return buffer.Bytes(), nil
}

// ParseCodec parses a chunk compression codec by its name.
func ParseCodec(codec string) (Codec, error) {
	for _, c := range SupportedCodecs {
		if strings.EqualFold(c.String(), codec) {
			return c, nil
		}
	}
	return 0, fmt.Errorf("invalid codec: %s, supported: %s", codec, SupportedCodecsString())
}

// SupportedCodecsString returns the list of supported codecs.
func SupportedCodecsString() string {
	var sb strings.Builder
	for i := range SupportedCodecs {
		sb.WriteString(SupportedCodecs[i].String())
		if i != len(SupportedCodecs)-1 {
			sb.WriteString(", ")
		}
	}
	return sb.String()
}

// ChunkEncoding is the identifier for the value encoding inside a chunk.
// The numeric values are written in chunk headers, preserve the order.
type ChunkEncoding byte

const (
	EncPlain ChunkEncoding = iota
	EncDict
	EncDelta
	EncBitmap
)

func (e ChunkEncoding) String() string {
	switch e {
	case EncPlain:
		return "plain"
	case EncDict:
		return "dict"
	case EncDelta:
		return "delta"
	case EncBitmap:
		return "bitmap"
	default:
		return "unsupported"
	}
}
