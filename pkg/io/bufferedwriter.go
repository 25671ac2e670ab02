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

package io

import (
	"bufio"
	"io"
)

const defaultBufferSize = 30 * 1024 * 1024

// BufferedWriteFlusher collects small writes into sizeable chunks before
// they hit the underlying writer. Object store appends translate into
// uploaded parts, so write size matters.
type BufferedWriteFlusher interface {
	io.WriteCloser
	Len() int
	Flush() error
}

type bufferedWriter struct {
	w *bufio.Writer
}

func NewBufferedWriter(w io.Writer) BufferedWriteFlusher {
	return &bufferedWriter{bufio.NewWriterSize(w, defaultBufferSize)}
}

func NewBufferedWriterWithSize(w io.Writer, size int) BufferedWriteFlusher {
	return &bufferedWriter{bufio.NewWriterSize(w, size)}
}

func (b *bufferedWriter) Write(p []byte) (n int, err error) {
	return b.w.Write(p)
}

func (b *bufferedWriter) Len() int {
	return b.w.Buffered()
}

func (b *bufferedWriter) Flush() error {
	return b.w.Flush()
}

func (b *bufferedWriter) Close() error {
	return nil
}
