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

package lakedb

import (
	"sync"
	"time"

	"github.com/intergral/lakescan/pkg/lakedb/encoding/common"
)

// metadataCache keeps parsed footers per object name. Entries are shared, a
// caller must treat the returned metadata as immutable. The cache belongs to
// one engine instance, files are written once so entries only go stale when
// an object is replaced, which Invalidate and the ttl cover.
type metadataCache struct {
	mtx     sync.Mutex
	ttl     time.Duration
	entries map[string]metadataEntry
}

type metadataEntry struct {
	meta    *common.FileMetadata
	addedAt time.Time
}

func newMetadataCache(ttl time.Duration) *metadataCache {
	return &metadataCache{
		ttl:     ttl,
		entries: make(map[string]metadataEntry),
	}
}

func (c *metadataCache) get(name string) *common.FileMetadata {
	c.mtx.Lock()
	defer c.mtx.Unlock()

	e, ok := c.entries[name]
	if !ok {
		return nil
	}
	if c.ttl > 0 && time.Since(e.addedAt) > c.ttl {
		delete(c.entries, name)
		return nil
	}
	return e.meta
}

func (c *metadataCache) put(name string, meta *common.FileMetadata) {
	c.mtx.Lock()
	defer c.mtx.Unlock()

	c.entries[name] = metadataEntry{meta: meta, addedAt: time.Now()}
}

func (c *metadataCache) invalidate(name string) {
	c.mtx.Lock()
	defer c.mtx.Unlock()

	delete(c.entries, name)
}

func (c *metadataCache) len() int {
	c.mtx.Lock()
	defer c.mtx.Unlock()

	return len(c.entries)
}
