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

package cache

import (
	"bytes"
	"context"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/intergral/lakescan/pkg/cache"
	"github.com/intergral/lakescan/pkg/lakedb/backend/inmem"
)

func TestReadCaching(t *testing.T) {
	tests := []struct {
		name          string
		shouldCache   bool
		expectedReads int
	}{
		{
			name:          "should cache",
			shouldCache:   true,
			expectedReads: 1,
		},
		{
			name:          "should not cache",
			shouldCache:   false,
			expectedReads: 2,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := inmem.NewWithObject("foo", []byte{0x02})
			r, _, err := NewCache(store, store, cache.NewMockCache())
			require.NoError(t, err)

			ctx := context.Background()

			for i := 0; i < 2; i++ {
				reader, size, err := r.Read(ctx, "foo", tt.shouldCache)
				require.NoError(t, err)
				read, err := io.ReadAll(reader)
				require.NoError(t, err)
				assert.Equal(t, []byte{0x02}, read)
				assert.Equal(t, int64(1), size)
			}

			assert.Equal(t, tt.expectedReads, store.OpCount("Read"))
		})
	}
}

func TestReadRangeCaching(t *testing.T) {
	store := inmem.NewWithObject("foo", []byte{0x00, 0x01, 0x02, 0x03, 0x04})
	r, _, err := NewCache(store, store, cache.NewMockCache())
	require.NoError(t, err)

	ctx := context.Background()
	buffer := make([]byte, 3)

	for i := 0; i < 2; i++ {
		require.NoError(t, r.ReadRange(ctx, "foo", 1, buffer, true))
		assert.Equal(t, []byte{0x01, 0x02, 0x03}, buffer)
	}
	assert.Equal(t, 1, store.OpCount("ReadRange"))

	// a different range is a different key
	buffer = make([]byte, 2)
	require.NoError(t, r.ReadRange(ctx, "foo", 3, buffer, true))
	assert.Equal(t, []byte{0x03, 0x04}, buffer)
	assert.Equal(t, 2, store.OpCount("ReadRange"))
}

func TestWriteThrough(t *testing.T) {
	store := inmem.New()
	r, w, err := NewCache(store, store, cache.NewMockCache())
	require.NoError(t, err)

	ctx := context.Background()
	payload := []byte("hello")

	require.NoError(t, w.Write(ctx, "bar", bytes.NewReader(payload), int64(len(payload)), true))

	// the write went through to the backend
	assert.Equal(t, payload, store.Object("bar"))

	// and the read is served from cache
	reader, _, err := r.Read(ctx, "bar", true)
	require.NoError(t, err)
	read, err := io.ReadAll(reader)
	require.NoError(t, err)
	assert.Equal(t, payload, read)
	assert.Equal(t, 0, store.OpCount("Read"))
}

func TestListNotCached(t *testing.T) {
	store := inmem.NewWithObject("pre/1", []byte{0x01})
	r, _, err := NewCache(store, store, cache.NewMockCache())
	require.NoError(t, err)

	ctx := context.Background()

	for i := 0; i < 2; i++ {
		iter, err := r.List(ctx, "pre/")
		require.NoError(t, err)
		obj, err := iter.Next(ctx)
		require.NoError(t, err)
		require.NotNil(t, obj)
		assert.Equal(t, "pre/1", obj.Name)
	}

	assert.Equal(t, 2, store.OpCount("List"))
}
