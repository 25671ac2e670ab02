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

package hedgedmetrics

import (
	"time"

	"github.com/cristalhq/hedgedhttp"
	"github.com/prometheus/client_golang/prometheus"
)

const hedgedMetricsPublishDuration = 10 * time.Second

type diffCounter struct {
	previous uint64
	counter  prometheus.Gauge
}

func (d *diffCounter) addAbsoluteToCounter(value uint64) {
	diff := float64(value - d.previous)
	if value < d.previous {
		diff = float64(value)
	}
	d.counter.Add(diff)
	d.previous = value
}

// Publish flushes stats from the hedged http client to the given gauge on an
// interval for the life of the process.
func Publish(s *hedgedhttp.Stats, counter prometheus.Gauge) {
	diff := &diffCounter{previous: 0, counter: counter}

	ticker := time.NewTicker(hedgedMetricsPublishDuration)
	go func() {
		for range ticker.C {
			snap := s.Snapshot()
			hedged := snap.ActualRoundTrips - snap.RequestedRoundTrips
			if snap.ActualRoundTrips < snap.RequestedRoundTrips {
				hedged = 0
			}
			diff.addAbsoluteToCounter(hedged)
		}
	}()
}
