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

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/segmentio/parquet-go"
	"go.uber.org/multierr"

	"github.com/intergral/lakescan/pkg/lakedb/encoding/common"
)

type convertCmd struct {
	backendOptions

	Source string `arg:"" type:"path" help:"parquet file to read"`
	Dest   string `arg:"" help:"object name to write"`

	RowGroupRows int      `name:"row-group-rows" help:"rows per row group, defaults to the engine setting"`
	Bloom        []string `help:"columns to build bloom filters for"`
}

func (cmd *convertCmd) Run(opts *globalOptions) error {
	f, err := os.Open(cmd.Source)
	if err != nil {
		return err
	}
	defer f.Close()

	stat, err := f.Stat()
	if err != nil {
		return err
	}

	pf, err := parquet.OpenFile(f, stat.Size())
	if err != nil {
		return fmt.Errorf("error opening %s as parquet: %w", cmd.Source, err)
	}

	schema, convs, err := convertSchema(pf)
	if err != nil {
		return err
	}

	_, w, err := loadEngine(&cmd.backendOptions, opts)
	if err != nil {
		return err
	}

	var writerOpts *common.WriterOptions
	if cmd.RowGroupRows > 0 || len(cmd.Bloom) > 0 {
		o := common.DefaultWriterOptions()
		if cmd.RowGroupRows > 0 {
			o.RowGroupMaxRows = cmd.RowGroupRows
		}
		o.BloomColumns = cmd.Bloom
		writerOpts = &o
	}

	ctx := context.Background()
	fw, err := w.CreateFile(ctx, cmd.Dest, schema, writerOpts)
	if err != nil {
		return err
	}

	if err := copyParquetRows(ctx, pf, schema, convs, fw); err != nil {
		return multierr.Combine(err, fw.Abort(ctx))
	}

	meta, err := fw.Complete(ctx)
	if err != nil {
		return err
	}

	fmt.Printf("converted %s rows into %s (%s, %d row groups)\n",
		humanize.Comma(meta.TotalRows), cmd.Dest, humanize.Bytes(uint64(meta.Size)), len(meta.RowGroups))
	return nil
}

// columnConverter maps the parquet values of one leaf onto the scan type of
// the destination column.
type columnConverter struct {
	typ common.DataType
	// tsScale is the nanoseconds per stored unit, timestamps only.
	tsScale int64
}

func (c columnConverter) value(v parquet.Value) (common.Value, error) {
	switch c.typ {
	case common.TypeBool:
		return common.BoolValue(v.Boolean()), nil
	case common.TypeInt32:
		return common.Int32Value(v.Int32()), nil
	case common.TypeInt64:
		return common.Int64Value(v.Int64()), nil
	case common.TypeFloat32:
		return common.Float32Value(v.Float()), nil
	case common.TypeFloat64:
		return common.Float64Value(v.Double()), nil
	case common.TypeString:
		return common.StringValue(string(v.ByteArray())), nil
	case common.TypeBytes:
		b := v.ByteArray()
		return common.BytesValue(append([]byte(nil), b...)), nil
	case common.TypeTimestamp:
		return common.TimestampNanosValue(v.Int64() * c.tsScale), nil
	}
	return common.Value{}, fmt.Errorf("no conversion for %s", c.typ)
}

func convertSchema(pf *parquet.File) (*common.Schema, []columnConverter, error) {
	var fields []common.Field
	var convs []columnConverter

	for _, f := range pf.Schema().Fields() {
		if !f.Leaf() || f.Repeated() {
			return nil, nil, fmt.Errorf("column %s is not a flat value column, only flat parquet schemas are supported", f.Name())
		}

		conv, err := convertType(f.Type())
		if err != nil {
			return nil, nil, fmt.Errorf("column %s: %w", f.Name(), err)
		}

		fields = append(fields, common.Field{
			Name:     f.Name(),
			Type:     conv.typ,
			Nullable: f.Optional(),
		})
		convs = append(convs, conv)
	}

	if len(fields) == 0 {
		return nil, nil, errors.New("the parquet file has no columns")
	}
	return &common.Schema{Fields: fields}, convs, nil
}

func convertType(t parquet.Type) (columnConverter, error) {
	lt := t.LogicalType()

	switch t.Kind() {
	case parquet.Boolean:
		return columnConverter{typ: common.TypeBool}, nil
	case parquet.Int32:
		return columnConverter{typ: common.TypeInt32}, nil
	case parquet.Int64:
		if lt != nil && lt.Timestamp != nil {
			scale := int64(time.Millisecond)
			switch {
			case lt.Timestamp.Unit.Micros != nil:
				scale = int64(time.Microsecond)
			case lt.Timestamp.Unit.Nanos != nil:
				scale = 1
			}
			return columnConverter{typ: common.TypeTimestamp, tsScale: scale}, nil
		}
		return columnConverter{typ: common.TypeInt64}, nil
	case parquet.Float:
		return columnConverter{typ: common.TypeFloat32}, nil
	case parquet.Double:
		return columnConverter{typ: common.TypeFloat64}, nil
	case parquet.ByteArray, parquet.FixedLenByteArray:
		if lt != nil && lt.UTF8 != nil {
			return columnConverter{typ: common.TypeString}, nil
		}
		return columnConverter{typ: common.TypeBytes}, nil
	}
	return columnConverter{}, fmt.Errorf("parquet type %s has no scan equivalent", t.Kind())
}

func copyParquetRows(ctx context.Context, pf *parquet.File, schema *common.Schema, convs []columnConverter, fw common.FileWriter) error {
	const flushEvery = 4096

	leaves := schema.Leaves()
	builders := make([]common.ArrayBuilder, len(leaves))
	pending := 0

	reset := func() error {
		for i, col := range leaves {
			b, err := common.NewArrayBuilder(col)
			if err != nil {
				return err
			}
			builders[i] = b
		}
		pending = 0
		return nil
	}
	flush := func() error {
		if pending == 0 {
			return nil
		}
		arrays := make([]common.Array, len(builders))
		for i, b := range builders {
			arrays[i] = b.NewArray()
		}
		batch, err := common.NewRecordBatch(schema, arrays)
		if err != nil {
			return err
		}
		if err := fw.Append(ctx, batch); err != nil {
			return err
		}
		return reset()
	}

	if err := reset(); err != nil {
		return err
	}

	buf := make([]parquet.Row, 256)
	for _, rg := range pf.RowGroups() {
		rows := rg.Rows()

		for {
			n, readErr := rows.ReadRows(buf)

			for _, row := range buf[:n] {
				for _, v := range row {
					ci := v.Column()
					if ci < 0 || ci >= len(convs) {
						_ = rows.Close()
						return fmt.Errorf("value of unknown column %d", ci)
					}
					if v.IsNull() {
						builders[ci].AppendNull()
						continue
					}
					cv, err := convs[ci].value(v)
					if err != nil {
						_ = rows.Close()
						return err
					}
					if err := builders[ci].Append(cv); err != nil {
						_ = rows.Close()
						return err
					}
				}

				pending++
				if pending >= flushEvery {
					if err := flush(); err != nil {
						_ = rows.Close()
						return err
					}
				}
			}

			if readErr != nil {
				if errors.Is(readErr, io.EOF) {
					break
				}
				_ = rows.Close()
				return readErr
			}
			if n == 0 {
				break
			}
		}

		if err := rows.Close(); err != nil {
			return err
		}
	}

	return flush()
}
