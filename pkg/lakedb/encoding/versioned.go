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

package encoding

import (
	"context"
	"fmt"

	"github.com/intergral/lakescan/pkg/lakedb/backend"
	"github.com/intergral/lakescan/pkg/lakedb/encoding/common"
	"github.com/intergral/lakescan/pkg/lakedb/encoding/vcol1"
)

// VersionedEncoding represents a file format version, and the methods to
// read/write it.
type VersionedEncoding interface {
	Version() string

	// ReadFileMetadata fetches and parses the footer of the named file.
	ReadFileMetadata(ctx context.Context, r backend.RawReader, name string, cc common.CacheControl) (*common.FileMetadata, error)

	// OpenScan starts a streaming scan over the named file. The metadata must
	// come from ReadFileMetadata of the same encoding.
	OpenScan(ctx context.Context, r backend.RawReader, name string, meta *common.FileMetadata, req common.ScanRequest, opts common.ScanOptions) (common.Scan, error)

	// CreateFile starts writing a new file with the given schema.
	CreateFile(ctx context.Context, w backend.RawWriter, name string, schema *common.Schema, opts common.WriterOptions) (common.FileWriter, error)
}

// FromVersion returns a versioned encoding for the provided string
func FromVersion(v string) (VersionedEncoding, error) {
	switch v {
	case vcol1.VersionString:
		return vcol1.Encoding{}, nil
	}

	return nil, fmt.Errorf("%s is not a valid file version", v)
}

// DefaultEncoding for newly written files.
func DefaultEncoding() VersionedEncoding {
	return vcol1.Encoding{}
}

// AllEncodings returns all encodings
func AllEncodings() []VersionedEncoding {
	return []VersionedEncoding{
		vcol1.Encoding{},
	}
}

// OpenScan over a file in the backend. It automatically chooses the encoding
// for the given metadata.
func OpenScan(ctx context.Context, r backend.RawReader, name string, meta *common.FileMetadata, req common.ScanRequest, opts common.ScanOptions) (common.Scan, error) {
	v, err := FromVersion(meta.Version)
	if err != nil {
		return nil, err
	}
	return v.OpenScan(ctx, r, name, meta, req, opts)
}
