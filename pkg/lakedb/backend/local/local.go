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

package local

import (
	"context"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"

	"github.com/intergral/lakescan/pkg/lakedb/backend"
)

type readerWriter struct {
	cfg *Config
}

// New creates a local filesystem backend rooted at cfg.Path. Object names map
// to slash-separated file paths under the root.
func New(cfg *Config) (backend.RawReader, backend.RawWriter, error) {
	err := os.MkdirAll(cfg.Path, os.ModePerm)
	if err != nil {
		return nil, nil, err
	}

	rw := &readerWriter{
		cfg: cfg,
	}

	return rw, rw, nil
}

// Write implements backend.RawWriter
func (rw *readerWriter) Write(ctx context.Context, name string, data io.Reader, _ int64, _ bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	p, err := rw.objectPath(name)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(p), os.ModePerm); err != nil {
		return err
	}

	dst, err := os.Create(p)
	if err != nil {
		return readError(err)
	}

	_, err = io.Copy(dst, data)
	if err != nil {
		dst.Close()
		os.Remove(p)
		return errors.Wrapf(err, "error writing %s", name)
	}

	return dst.Close()
}

// Append implements backend.RawWriter
func (rw *readerWriter) Append(ctx context.Context, name string, tracker backend.AppendTracker, buffer []byte) (backend.AppendTracker, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var dst *os.File
	if tracker == nil {
		p, err := rw.objectPath(name)
		if err != nil {
			return nil, err
		}
		if err := os.MkdirAll(filepath.Dir(p), os.ModePerm); err != nil {
			return nil, err
		}
		dst, err = os.Create(p)
		if err != nil {
			return nil, readError(err)
		}
	} else {
		dst = tracker.(*os.File)
	}

	_, err := dst.Write(buffer)
	if err != nil {
		return nil, err
	}

	return dst, nil
}

// CloseAppend implements backend.RawWriter
func (rw *readerWriter) CloseAppend(_ context.Context, tracker backend.AppendTracker) error {
	if tracker == nil {
		return nil
	}

	return tracker.(*os.File).Close()
}

// Head implements backend.RawReader
func (rw *readerWriter) Head(ctx context.Context, name string) (backend.ObjectInfo, error) {
	if err := ctx.Err(); err != nil {
		return backend.ObjectInfo{}, err
	}

	p, err := rw.objectPath(name)
	if err != nil {
		return backend.ObjectInfo{}, err
	}

	fi, err := os.Stat(p)
	if err != nil {
		return backend.ObjectInfo{}, readError(err)
	}

	return backend.ObjectInfo{
		Name:         name,
		Size:         fi.Size(),
		LastModified: fi.ModTime(),
	}, nil
}

// Read implements backend.RawReader
func (rw *readerWriter) Read(ctx context.Context, name string, _ bool) (io.ReadCloser, int64, error) {
	if err := ctx.Err(); err != nil {
		return nil, 0, err
	}

	p, err := rw.objectPath(name)
	if err != nil {
		return nil, 0, err
	}

	f, err := os.Open(p)
	if err != nil {
		return nil, 0, readError(err)
	}

	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, 0, readError(err)
	}

	return f, fi.Size(), nil
}

// ReadRange implements backend.RawReader
func (rw *readerWriter) ReadRange(ctx context.Context, name string, offset int64, buffer []byte, _ bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	p, err := rw.objectPath(name)
	if err != nil {
		return err
	}

	f, err := os.Open(p)
	if err != nil {
		return readError(err)
	}
	defer f.Close()

	_, err = f.ReadAt(buffer, offset)
	if err == io.EOF {
		return io.ErrUnexpectedEOF
	}
	return err
}

// List implements backend.RawReader
func (rw *readerWriter) List(ctx context.Context, prefix string) (backend.ObjectIterator, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	root := rw.cfg.Path
	if prefix != "" {
		var err error
		root, err = rw.objectPath(prefix)
		if err != nil {
			return nil, err
		}
	}

	var objects []backend.ObjectInfo
	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		fi, err := d.Info()
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(rw.cfg.Path, p)
		if err != nil {
			return err
		}
		objects = append(objects, backend.ObjectInfo{
			Name:         filepath.ToSlash(rel),
			Size:         fi.Size(),
			LastModified: fi.ModTime(),
		})
		return nil
	})
	if os.IsNotExist(err) {
		// listing an absent prefix is an empty listing, not an error
		return backend.NewSliceIterator(nil), nil
	}
	if err != nil {
		return nil, err
	}

	return backend.NewSliceIterator(objects), nil
}

// Shutdown implements backend.RawReader
func (rw *readerWriter) Shutdown() {
}

func (rw *readerWriter) objectPath(name string) (string, error) {
	if name == "" {
		return "", backend.ErrEmptyObjectName
	}
	p := filepath.Join(rw.cfg.Path, filepath.FromSlash(name))
	if !strings.HasPrefix(p, filepath.Clean(rw.cfg.Path)) {
		return "", errors.Errorf("invalid object name %s", name)
	}
	return p, nil
}

func readError(err error) error {
	if os.IsNotExist(err) {
		return backend.ErrDoesNotExist
	}
	if os.IsPermission(err) {
		return backend.ErrPermissionDenied
	}
	return err
}
