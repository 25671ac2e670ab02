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

import (
	"bytes"
	"time"

	"github.com/klauspost/compress/gzip"

	jsoniter "github.com/json-iterator/go"
)

const internalFilename = "index.json"

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// FileEntry describes one columnar file of a dataset.
type FileEntry struct {
	Name         string    `json:"name"`
	Size         int64     `json:"size"`
	LastModified time.Time `json:"last_modified"`
	TotalRows    int64     `json:"total_rows,omitempty"`
}

// DatasetIndex holds the file listing for a dataset prefix. It is stored in
// /<prefix>/index.json.gz as a gzipped json file so dataset scans can skip a
// full backend listing.
type DatasetIndex struct {
	CreatedAt time.Time    `json:"created_at"`
	Files     []*FileEntry `json:"files"`
}

func newDatasetIndex(files []*FileEntry) *DatasetIndex {
	return &DatasetIndex{
		CreatedAt: time.Now(),
		Files:     files,
	}
}

// marshal converts to json and compresses the index
func (b *DatasetIndex) marshal() ([]byte, error) {
	buffer := &bytes.Buffer{}

	gzip := gzip.NewWriter(buffer)
	gzip.Name = internalFilename

	jsonBytes, err := json.Marshal(b)
	if err != nil {
		return nil, err
	}

	if _, err = gzip.Write(jsonBytes); err != nil {
		return nil, err
	}
	if err = gzip.Flush(); err != nil {
		return nil, err
	}
	if err = gzip.Close(); err != nil {
		return nil, err
	}

	return buffer.Bytes(), nil
}

// unmarshal decompresses and unmarshals the results from json
func (b *DatasetIndex) unmarshal(buffer []byte) error {
	gzipReader, err := gzip.NewReader(bytes.NewReader(buffer))
	if err != nil {
		return err
	}
	defer gzipReader.Close()

	d := json.NewDecoder(gzipReader)
	return d.Decode(b)
}
