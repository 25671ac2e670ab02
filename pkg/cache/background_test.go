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

package cache_test

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/intergral/lakescan/pkg/cache"
)

func TestBackground(t *testing.T) {
	c := cache.NewBackground("test", cache.BackgroundConfig{
		WriteBackGoroutines: 1,
		WriteBackBuffer:     100,
	}, cache.NewMockCache(), prometheus.NewRegistry())

	ctx := context.Background()
	keys := []string{"foo", "bar", "baz"}
	bufs := [][]byte{[]byte("f"), []byte("b"), []byte("z")}

	c.Store(ctx, keys, bufs)

	// stores happen asynchronously
	require.Eventually(t, func() bool {
		found, _, _ := c.Fetch(ctx, keys)
		return len(found) == len(keys)
	}, time.Second, 10*time.Millisecond)

	found, data, missing := c.Fetch(ctx, append(keys, "qux"))
	require.Equal(t, keys, found)
	require.Equal(t, bufs, data)
	require.Equal(t, []string{"qux"}, missing)

	c.Stop()
}
