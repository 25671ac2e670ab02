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
	"io"
	"sync"
	"testing"
	"time"

	kitlog "github.com/go-kit/log"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

// flakyReader fails the first fails calls of each op with err, then succeeds.
type flakyReader struct {
	mtx   sync.Mutex
	fails int
	err   error
	calls int
	delay time.Duration
}

func (f *flakyReader) step(ctx context.Context) error {
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	f.mtx.Lock()
	defer f.mtx.Unlock()
	f.calls++
	if f.fails > 0 {
		f.fails--
		return f.err
	}
	return nil
}

func (f *flakyReader) Head(ctx context.Context, name string) (ObjectInfo, error) {
	if err := f.step(ctx); err != nil {
		return ObjectInfo{}, err
	}
	return ObjectInfo{Name: name, Size: 1}, nil
}

func (f *flakyReader) Read(ctx context.Context, name string, _ bool) (io.ReadCloser, int64, error) {
	if err := f.step(ctx); err != nil {
		return nil, 0, err
	}
	return io.NopCloser(nil), 0, nil
}

func (f *flakyReader) ReadRange(ctx context.Context, name string, offset int64, buffer []byte, _ bool) error {
	return f.step(ctx)
}

func (f *flakyReader) List(ctx context.Context, prefix string) (ObjectIterator, error) {
	if err := f.step(ctx); err != nil {
		return nil, err
	}
	return NewSliceIterator(nil), nil
}

func (f *flakyReader) Shutdown() {}

func testRetryConfig() RetryConfig {
	return RetryConfig{
		IOTimeout:  time.Second,
		MinBackoff: time.Millisecond,
		MaxBackoff: 5 * time.Millisecond,
		MaxRetries: 3,
	}
}

func TestRetriesTransientThenSucceeds(t *testing.T) {
	flaky := &flakyReader{fails: 2, err: AsTransient(errors.New("reset by peer"))}
	r := NewRetryingReader(flaky, testRetryConfig(), kitlog.NewNopLogger())

	_, err := r.Head(context.Background(), "x")
	require.NoError(t, err)
	require.Equal(t, 3, flaky.calls)
}

func TestRetriesExhausted(t *testing.T) {
	flaky := &flakyReader{fails: 100, err: AsTransient(errors.New("still down"))}
	r := NewRetryingReader(flaky, testRetryConfig(), kitlog.NewNopLogger())

	err := r.ReadRange(context.Background(), "x", 0, make([]byte, 1), false)
	require.Error(t, err)
	require.True(t, IsRetryable(err))
	// initial attempt plus MaxRetries-1 further ones under dskit accounting
	require.Equal(t, 3, flaky.calls)
}

func TestDoesNotRetryPermanent(t *testing.T) {
	for _, permanent := range []error{ErrDoesNotExist, ErrPermissionDenied} {
		flaky := &flakyReader{fails: 100, err: permanent}
		r := NewRetryingReader(flaky, testRetryConfig(), kitlog.NewNopLogger())

		_, err := r.Head(context.Background(), "x")
		require.ErrorIs(t, err, permanent)
		require.Equal(t, 1, flaky.calls)
	}
}

func TestTimeoutBecomesTransient(t *testing.T) {
	cfg := testRetryConfig()
	cfg.IOTimeout = 10 * time.Millisecond
	cfg.MaxRetries = 2

	flaky := &flakyReader{delay: 200 * time.Millisecond}
	r := NewRetryingReader(flaky, cfg, kitlog.NewNopLogger())

	err := r.ReadRange(context.Background(), "x", 0, make([]byte, 1), false)
	require.Error(t, err)
	require.True(t, IsRetryable(err))
}

func TestCallerCancelIsNotRetried(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	flaky := &flakyReader{fails: 100, err: AsTransient(errors.New("down"))}
	r := NewRetryingReader(flaky, testRetryConfig(), kitlog.NewNopLogger())

	_, err := r.Head(ctx, "x")
	require.Error(t, err)
	require.False(t, IsRetryable(err))
}

func TestTransientClassification(t *testing.T) {
	require.True(t, IsRetryable(AsTransient(errors.New("x"))))
	require.True(t, IsRetryable(errors.Wrap(AsTransient(errors.New("x")), "outer")))
	require.False(t, IsRetryable(ErrDoesNotExist))
	require.False(t, IsRetryable(ErrPermissionDenied))
	require.False(t, IsRetryable(nil))

	inner := errors.New("inner")
	require.ErrorIs(t, AsTransient(inner), ErrTransient)
	require.Equal(t, inner, errors.Unwrap(AsTransient(inner)))
}
