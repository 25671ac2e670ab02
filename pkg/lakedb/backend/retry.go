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
	"context"
	"flag"
	"io"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/grafana/dskit/backoff"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/sony/gobreaker"

	"github.com/intergral/lakescan/pkg/util"
	log_util "github.com/intergral/lakescan/pkg/util/log"
)

const (
	DefaultIOTimeout  = 30 * time.Second
	DefaultMinBackoff = 100 * time.Millisecond
	DefaultMaxBackoff = 2 * time.Second
	DefaultMaxRetries = 3
)

var metricRetries = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "lakedb",
	Name:      "backend_retries_total",
	Help:      "Total number of retried backend operations.",
}, []string{"operation"})

var metricBreakerOpen = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "lakedb",
	Name:      "backend_breaker_open_total",
	Help:      "Total number of backend operations rejected by an open circuit breaker.",
})

// RetryConfig controls the retry decorator that sits between the engine and a
// raw backend. Only transient failures are retried; a per-call timeout counts
// as transient so a hung read and a flaky store share the same policy.
type RetryConfig struct {
	IOTimeout  time.Duration `yaml:"io_timeout"`
	MinBackoff time.Duration `yaml:"min_backoff"`
	MaxBackoff time.Duration `yaml:"max_backoff"`
	MaxRetries int           `yaml:"max_retries"`

	// CircuitBreaker trips after repeated consecutive failures and fails fast
	// while open.
	CircuitBreaker          bool          `yaml:"circuit_breaker"`
	CircuitBreakerThreshold uint32        `yaml:"circuit_breaker_threshold"`
	CircuitBreakerCooldown  time.Duration `yaml:"circuit_breaker_cooldown"`
}

func (cfg *RetryConfig) RegisterFlagsAndApplyDefaults(prefix string, f *flag.FlagSet) {
	f.DurationVar(&cfg.IOTimeout, util.PrefixConfig(prefix, "io-timeout"), DefaultIOTimeout, "Deadline applied to each backend call.")
	f.IntVar(&cfg.MaxRetries, util.PrefixConfig(prefix, "max-retries"), DefaultMaxRetries, "Max retries of a transiently failing backend call.")
	cfg.MinBackoff = DefaultMinBackoff
	cfg.MaxBackoff = DefaultMaxBackoff
	cfg.CircuitBreakerThreshold = 5
	cfg.CircuitBreakerCooldown = 10 * time.Second
}

type retryReader struct {
	next   RawReader
	cfg    RetryConfig
	cb     *gobreaker.CircuitBreaker
	logger log.Logger
}

// NewRetryingReader decorates a raw backend with per-call timeouts, bounded
// exponential backoff for transient failures and an optional circuit breaker.
func NewRetryingReader(next RawReader, cfg RetryConfig, logger log.Logger) RawReader {
	r := &retryReader{
		next:   next,
		cfg:    cfg,
		logger: logger,
	}
	if cfg.CircuitBreaker {
		log_util.WarnExperimentalUse("backend circuit breaker")
		r.cb = gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:     "backend",
			Interval: time.Minute,
			Timeout:  cfg.CircuitBreakerCooldown,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= cfg.CircuitBreakerThreshold
			},
			OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
				level.Warn(logger).Log("msg", "backend circuit breaker state changed", "from", from.String(), "to", to.String())
			},
		})
	}
	return r
}

func (r *retryReader) Head(ctx context.Context, name string) (ObjectInfo, error) {
	var info ObjectInfo
	err := r.do(ctx, "Head", func(ctx context.Context) error {
		var err error
		info, err = r.next.Head(ctx, name)
		return err
	})
	return info, err
}

// Read is not retried as a whole: the returned stream outlives the call, so a
// failure surfaces to the caller once the first byte has been handed over. The
// initial request is still subject to the retry policy.
func (r *retryReader) Read(ctx context.Context, name string, shouldCache bool) (io.ReadCloser, int64, error) {
	var (
		rc   io.ReadCloser
		size int64
	)
	err := r.do(ctx, "Read", func(ctx context.Context) error {
		var err error
		rc, size, err = r.next.Read(ctx, name, shouldCache)
		return err
	})
	return rc, size, err
}

func (r *retryReader) ReadRange(ctx context.Context, name string, offset int64, buffer []byte, shouldCache bool) error {
	return r.do(ctx, "ReadRange", func(ctx context.Context) error {
		return r.next.ReadRange(ctx, name, offset, buffer, shouldCache)
	})
}

func (r *retryReader) List(ctx context.Context, prefix string) (ObjectIterator, error) {
	var iter ObjectIterator
	err := r.do(ctx, "List", func(ctx context.Context) error {
		var err error
		iter, err = r.next.List(ctx, prefix)
		return err
	})
	return iter, err
}

func (r *retryReader) Shutdown() {
	r.next.Shutdown()
}

// do runs fn under the retry policy. The per-attempt timeout is not applied to
// Read streams; the attempt context only guards the call itself for operations
// that complete before returning.
func (r *retryReader) do(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	bo := backoff.New(ctx, backoff.Config{
		MinBackoff: r.cfg.MinBackoff,
		MaxBackoff: r.cfg.MaxBackoff,
		MaxRetries: r.cfg.MaxRetries,
	})

	var lastErr error
	for bo.Ongoing() {
		lastErr = r.attempt(ctx, op, fn)
		if lastErr == nil {
			return nil
		}
		if !errors.Is(lastErr, ErrTransient) {
			return lastErr
		}

		metricRetries.WithLabelValues(op).Inc()
		level.Debug(r.logger).Log("msg", "retrying backend operation", "op", op, "retries", bo.NumRetries(), "err", lastErr)
		bo.Wait()
	}

	if lastErr != nil {
		return lastErr
	}
	return bo.Err()
}

func (r *retryReader) attempt(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	attemptCtx := ctx
	if r.cfg.IOTimeout > 0 && op != "Read" {
		var cancel context.CancelFunc
		attemptCtx, cancel = context.WithTimeout(ctx, r.cfg.IOTimeout)
		defer cancel()
	}

	var err error
	if r.cb != nil {
		_, err = r.cb.Execute(func() (interface{}, error) {
			return nil, fn(attemptCtx)
		})
		if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
			metricBreakerOpen.Inc()
			err = AsTransient(err)
		}
	} else {
		err = fn(attemptCtx)
	}

	// an attempt that ran out of its own deadline while the caller is still
	// live counts as transient
	if err != nil && errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
		err = AsTransient(err)
	}
	return err
}

type retryWriter struct {
	next   RawWriter
	cfg    RetryConfig
	logger log.Logger
}

// NewRetryingWriter decorates a raw writer. Whole-object writes follow the
// read retry policy; append jobs are stateful and never retried here.
func NewRetryingWriter(next RawWriter, cfg RetryConfig, logger log.Logger) RawWriter {
	return &retryWriter{next: next, cfg: cfg, logger: logger}
}

func (w *retryWriter) Write(ctx context.Context, name string, data io.Reader, size int64, shouldCache bool) error {
	// a plain put is only idempotent when the payload can be replayed
	if _, ok := data.(io.Seeker); !ok {
		return w.next.Write(ctx, name, data, size, shouldCache)
	}

	bo := backoff.New(ctx, backoff.Config{
		MinBackoff: w.cfg.MinBackoff,
		MaxBackoff: w.cfg.MaxBackoff,
		MaxRetries: w.cfg.MaxRetries,
	})

	var lastErr error
	for bo.Ongoing() {
		if lastErr != nil {
			if _, err := data.(io.Seeker).Seek(0, io.SeekStart); err != nil {
				return lastErr
			}
		}

		lastErr = w.next.Write(ctx, name, data, size, shouldCache)
		if lastErr == nil {
			return nil
		}
		if !errors.Is(lastErr, ErrTransient) {
			return lastErr
		}

		metricRetries.WithLabelValues("Write").Inc()
		bo.Wait()
	}

	if lastErr != nil {
		return lastErr
	}
	return bo.Err()
}

func (w *retryWriter) Append(ctx context.Context, name string, tracker AppendTracker, buffer []byte) (AppendTracker, error) {
	return w.next.Append(ctx, name, tracker, buffer)
}

func (w *retryWriter) CloseAppend(ctx context.Context, tracker AppendTracker) error {
	return w.next.CloseAppend(ctx, tracker)
}
