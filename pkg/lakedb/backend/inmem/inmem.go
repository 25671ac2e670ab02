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

// Package inmem is an object store held in process memory. It exists for
// tests and local experiments: every operation is counted and faults can be
// injected per operation, so callers can assert how many backend calls a scan
// issued or how it behaves against a flaky store.
package inmem

import (
	"bytes"
	"context"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/intergral/lakescan/pkg/lakedb/backend"
)

// Store implements backend.RawReader and backend.RawWriter in memory.
type Store struct {
	// Hook, when set, runs before every operation with the operation name and
	// object name. Returning an error fails the operation with it. Tests use
	// this to block or fail calls at precise points.
	Hook func(op, name string) error

	mtx      sync.Mutex
	objects  map[string]*object
	opCounts map[string]int
	faults   map[string]*fault
}

type object struct {
	data     []byte
	modified time.Time
}

type fault struct {
	remaining int
	err       error
}

func New() *Store {
	return &Store{
		objects:  map[string]*object{},
		opCounts: map[string]int{},
		faults:   map[string]*fault{},
	}
}

// NewWithObject is a convenience for tests that need a single seeded object.
func NewWithObject(name string, data []byte) *Store {
	s := New()
	s.SetObject(name, data)
	return s
}

// SetObject stores data under name without counting a Write.
func (m *Store) SetObject(name string, data []byte) {
	m.mtx.Lock()
	defer m.mtx.Unlock()
	m.objects[name] = &object{data: append([]byte(nil), data...), modified: time.Now()}
}

// Object returns a copy of the stored bytes, or nil when absent.
func (m *Store) Object(name string) []byte {
	m.mtx.Lock()
	defer m.mtx.Unlock()
	o, ok := m.objects[name]
	if !ok {
		return nil
	}
	return append([]byte(nil), o.data...)
}

// InjectFault makes the next times calls of op fail with err before the store
// recovers. Passing op "" applies to every operation.
func (m *Store) InjectFault(op string, times int, err error) {
	m.mtx.Lock()
	defer m.mtx.Unlock()
	m.faults[op] = &fault{remaining: times, err: err}
}

// OpCount returns how many times op was invoked, faulted calls included.
func (m *Store) OpCount(op string) int {
	m.mtx.Lock()
	defer m.mtx.Unlock()
	return m.opCounts[op]
}

// TotalOps returns the count of all operations invoked on the store.
func (m *Store) TotalOps() int {
	m.mtx.Lock()
	defer m.mtx.Unlock()
	total := 0
	for _, c := range m.opCounts {
		total += c
	}
	return total
}

// ResetCounts zeroes the op counters, keeping objects and faults.
func (m *Store) ResetCounts() {
	m.mtx.Lock()
	defer m.mtx.Unlock()
	m.opCounts = map[string]int{}
}

// enter counts the op and returns an injected fault if one is armed. It must
// be called before touching the object map.
func (m *Store) enter(ctx context.Context, op, name string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mtx.Lock()
	m.opCounts[op]++
	var injected error
	for _, key := range []string{op, ""} {
		if f, ok := m.faults[key]; ok && f.remaining > 0 {
			f.remaining--
			injected = f.err
			break
		}
	}
	hook := m.Hook
	m.mtx.Unlock()

	if injected != nil {
		return injected
	}
	if hook != nil {
		return hook(op, name)
	}
	return nil
}

// Write implements backend.RawWriter
func (m *Store) Write(ctx context.Context, name string, data io.Reader, _ int64, _ bool) error {
	if err := m.enter(ctx, "Write", name); err != nil {
		return err
	}

	buf, err := io.ReadAll(data)
	if err != nil {
		return err
	}

	m.mtx.Lock()
	defer m.mtx.Unlock()
	m.objects[name] = &object{data: buf, modified: time.Now()}
	return nil
}

// Append implements backend.RawWriter
func (m *Store) Append(ctx context.Context, name string, tracker backend.AppendTracker, buffer []byte) (backend.AppendTracker, error) {
	if err := m.enter(ctx, "Append", name); err != nil {
		return nil, err
	}

	var b *bytes.Buffer
	if tracker == nil {
		b = &bytes.Buffer{}
	} else {
		b = tracker.(*appendTracker).buf
	}
	b.Write(buffer)

	return &appendTracker{name: name, buf: b}, nil
}

// CloseAppend implements backend.RawWriter
func (m *Store) CloseAppend(ctx context.Context, tracker backend.AppendTracker) error {
	if tracker == nil {
		return nil
	}
	t := tracker.(*appendTracker)
	if err := m.enter(ctx, "CloseAppend", t.name); err != nil {
		return err
	}

	m.mtx.Lock()
	defer m.mtx.Unlock()
	m.objects[t.name] = &object{data: t.buf.Bytes(), modified: time.Now()}
	return nil
}

type appendTracker struct {
	name string
	buf  *bytes.Buffer
}

// Head implements backend.RawReader
func (m *Store) Head(ctx context.Context, name string) (backend.ObjectInfo, error) {
	if err := m.enter(ctx, "Head", name); err != nil {
		return backend.ObjectInfo{}, err
	}

	m.mtx.Lock()
	defer m.mtx.Unlock()
	o, ok := m.objects[name]
	if !ok {
		return backend.ObjectInfo{}, backend.ErrDoesNotExist
	}
	return backend.ObjectInfo{Name: name, Size: int64(len(o.data)), LastModified: o.modified}, nil
}

// Read implements backend.RawReader
func (m *Store) Read(ctx context.Context, name string, _ bool) (io.ReadCloser, int64, error) {
	if err := m.enter(ctx, "Read", name); err != nil {
		return nil, 0, err
	}

	m.mtx.Lock()
	defer m.mtx.Unlock()
	o, ok := m.objects[name]
	if !ok {
		return nil, 0, backend.ErrDoesNotExist
	}
	return io.NopCloser(bytes.NewReader(o.data)), int64(len(o.data)), nil
}

// ReadRange implements backend.RawReader
func (m *Store) ReadRange(ctx context.Context, name string, offset int64, buffer []byte, _ bool) error {
	if err := m.enter(ctx, "ReadRange", name); err != nil {
		return err
	}

	m.mtx.Lock()
	defer m.mtx.Unlock()
	o, ok := m.objects[name]
	if !ok {
		return backend.ErrDoesNotExist
	}
	if offset < 0 || offset+int64(len(buffer)) > int64(len(o.data)) {
		return io.ErrUnexpectedEOF
	}
	copy(buffer, o.data[offset:])
	return nil
}

// List implements backend.RawReader
func (m *Store) List(ctx context.Context, prefix string) (backend.ObjectIterator, error) {
	if err := m.enter(ctx, "List", prefix); err != nil {
		return nil, err
	}

	m.mtx.Lock()
	defer m.mtx.Unlock()
	var objects []backend.ObjectInfo
	for name, o := range m.objects {
		if prefix != "" && !strings.HasPrefix(name, prefix) {
			continue
		}
		objects = append(objects, backend.ObjectInfo{Name: name, Size: int64(len(o.data)), LastModified: o.modified})
	}
	sort.Slice(objects, func(i, j int) bool { return objects[i].Name < objects[j].Name })

	return backend.NewSliceIterator(objects), nil
}

// Shutdown implements backend.RawReader
func (m *Store) Shutdown() {
}
