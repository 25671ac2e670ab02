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
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/intergral/lakescan/pkg/lakedb/encoding/common"
)

func TestCompressionRoundtrip(t *testing.T) {
	compressible := bytes.Repeat([]byte("all work and no play "), 500)

	random := make([]byte, 10*1024)
	_, err := rand.New(rand.NewSource(42)).Read(random)
	require.NoError(t, err)

	payloads := map[string][]byte{
		"compressible": compressible,
		"random":       random,
		"tiny":         []byte{7},
	}

	for _, codec := range common.SupportedCodecs {
		for name, payload := range payloads {
			t.Run(codec.String()+"/"+name, func(t *testing.T) {
				compressed, err := compress(codec, payload)
				require.NoError(t, err)

				out, err := decompress(codec, compressed, len(payload))
				require.NoError(t, err)
				require.Equal(t, payload, out)
			})
		}
	}
}

func TestDecompressRejectsSizeMismatch(t *testing.T) {
	payload := bytes.Repeat([]byte("xyz"), 1000)

	for _, codec := range common.SupportedCodecs {
		t.Run(codec.String(), func(t *testing.T) {
			compressed, err := compress(codec, payload)
			require.NoError(t, err)

			_, err = decompress(codec, compressed, len(payload)-1)
			require.Error(t, err)
			require.ErrorIs(t, err, common.ErrCorruptData)
		})
	}
}

func TestDecompressRejectsGarbage(t *testing.T) {
	garbage := []byte{0xde, 0xad, 0xbe, 0xef, 0x01, 0x02, 0x03}

	for _, codec := range common.SupportedCodecs {
		if codec == common.CodecNone {
			continue
		}
		t.Run(codec.String(), func(t *testing.T) {
			_, err := decompress(codec, garbage, 100)
			require.Error(t, err)
			require.ErrorIs(t, err, common.ErrCorruptData)
		})
	}
}

func TestDecompressRejectsUnknownCodec(t *testing.T) {
	_, err := decompress(common.Codec(200), []byte{1, 2, 3}, 3)
	require.Error(t, err)
	require.ErrorIs(t, err, common.ErrCorruptData)
}
