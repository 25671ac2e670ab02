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

package common

import "errors"

var (
	// ErrCorruptFile indicates the file structure itself (magic, trailer,
	// footer checksum, schema) could not be parsed. Never retried.
	ErrCorruptFile = errors.New("corrupt file")

	// ErrCorruptData indicates a chunk failed to decompress or decode, or
	// disagreed with its own metadata. Never retried.
	ErrCorruptData = errors.New("corrupt data")

	// ErrUnknownColumn indicates a projection or predicate referenced a
	// column that does not exist in the file schema.
	ErrUnknownColumn = errors.New("unknown column")

	// ErrInvalidProjection indicates a structurally invalid projection,
	// e.g. duplicate or overlapping paths.
	ErrInvalidProjection = errors.New("invalid projection")

	// ErrInvalidPredicate indicates a predicate that cannot be applied to
	// the schema, e.g. a literal of the wrong type or a comparison against
	// a list column.
	ErrInvalidPredicate = errors.New("invalid predicate")

	ErrUnsupported = errors.New("unsupported")
)
