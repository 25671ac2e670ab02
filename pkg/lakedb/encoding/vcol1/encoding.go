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

// Package vcol1 is the first columnar file format of lakescan.
//
// A file is a single object laid out as
//
//	[magic "LSC1"]
//	[column chunks, row group by row group]
//	[bloom filters]
//	[footer]
//	[trailer: xxhash64(footer), u32 footer length, magic "LSC1"]
//
// All integers are little-endian. The leading magic only exists so tools can
// identify the file type from its first bytes, readers locate everything
// through the fixed size trailer and never touch the front of the object.
// Each column chunk is independently compressed and carries a small header
// that is cross checked against the footer metadata when read.
package vcol1

import (
	"context"

	"github.com/intergral/lakescan/pkg/lakedb/backend"
	"github.com/intergral/lakescan/pkg/lakedb/encoding/common"
)

const (
	// VersionString is the version tag written into footers of this format.
	VersionString = "vcol1"

	// formatVersion is the first footer byte. Readers reject anything else.
	formatVersion = 1

	magicLen   = 4
	trailerLen = 8 + 4 + magicLen

	// footerEstimate is how many tail bytes the metadata reader fetches up
	// front. Footers larger than this cost one extra range request.
	footerEstimate = 64 * 1024
)

var magic = []byte("LSC1")

// Encoding implements encoding.VersionedEncoding for vcol1 files.
type Encoding struct{}

func (e Encoding) Version() string {
	return VersionString
}

// ReadFileMetadata fetches and parses the footer of the named file.
func (e Encoding) ReadFileMetadata(ctx context.Context, r backend.RawReader, name string, cc common.CacheControl) (*common.FileMetadata, error) {
	return ReadFileMetadata(ctx, r, name, cc)
}

// OpenScan starts a scan over the named file.
func (e Encoding) OpenScan(ctx context.Context, r backend.RawReader, name string, meta *common.FileMetadata, req common.ScanRequest, opts common.ScanOptions) (common.Scan, error) {
	return OpenScan(ctx, r, name, meta, req, opts)
}

// CreateFile starts writing a new file with the given schema.
func (e Encoding) CreateFile(ctx context.Context, w backend.RawWriter, name string, schema *common.Schema, opts common.WriterOptions) (common.FileWriter, error) {
	return CreateFile(ctx, w, name, schema, opts)
}
