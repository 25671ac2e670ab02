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
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/intergral/lakescan/pkg/lakedb"
	"github.com/intergral/lakescan/pkg/lakedb/backend/azure"
	"github.com/intergral/lakescan/pkg/lakedb/backend/gcs"
	"github.com/intergral/lakescan/pkg/lakedb/backend/local"
	"github.com/intergral/lakescan/pkg/lakedb/backend/s3"
	"github.com/intergral/lakescan/pkg/lakedb/encoding/common"
	util_log "github.com/intergral/lakescan/pkg/util/log"
)

type globalOptions struct {
	ConfigFile string `type:"path" short:"c" help:"lakescan configuration file"`
	LogLevel   string `name:"log-level" default:"warn" help:"debug, info, warn or error"`
}

type backendOptions struct {
	Backend string `help:"backend to connect to (local, s3, gcs, azure), overrides the config file"`
	Path    string `help:"path of the local backend"`
	Bucket  string `help:"bucket of the s3 or gcs backend"`

	S3Endpoint string `name:"s3-endpoint" help:"s3 endpoint url, use with the s3 backend"`
	S3User     string `name:"s3-user" help:"s3 access key, use with the s3 backend"`
	S3Pass     string `name:"s3-pass" help:"s3 secret key, use with the s3 backend"`
}

func loadEngine(b *backendOptions, g *globalOptions) (lakedb.Reader, lakedb.Writer, error) {
	logger, err := util_log.Init(g.LogLevel)
	if err != nil {
		return nil, nil, err
	}

	cfg := &lakedb.Config{}
	if g.ConfigFile != "" {
		cfg, err = lakedb.LoadConfig(g.ConfigFile)
		if err != nil {
			return nil, nil, err
		}
	}

	// cli flags override the config file
	if b.Backend != "" {
		cfg.Backend = b.Backend
	}

	switch cfg.Backend {
	case "local":
		if cfg.Local == nil {
			cfg.Local = &local.Config{}
		}
		if b.Path != "" {
			cfg.Local.Path = b.Path
		}
	case "s3":
		if cfg.S3 == nil {
			cfg.S3 = &s3.Config{}
		}
		if b.Bucket != "" {
			cfg.S3.Bucket = b.Bucket
		}
		if b.S3Endpoint != "" {
			cfg.S3.Endpoint = b.S3Endpoint
		}
		if b.S3User != "" {
			cfg.S3.AccessKey = b.S3User
		}
		if b.S3Pass != "" {
			_ = cfg.S3.SecretKey.Set(b.S3Pass)
		}
	case "gcs":
		if cfg.GCS == nil {
			cfg.GCS = &gcs.Config{}
		}
		if b.Bucket != "" {
			cfg.GCS.BucketName = b.Bucket
		}
	case "azure":
		if cfg.Azure == nil {
			cfg.Azure = &azure.Config{}
		}
		if b.Bucket != "" {
			cfg.Azure.ContainerName = b.Bucket
		}
	}

	return lakedb.New(cfg, logger)
}

// parseLiteral parses a cli literal into a value of the column's type.
func parseLiteral(col common.Column, raw string) (common.Value, error) {
	switch col.Type {
	case common.TypeBool:
		v, err := strconv.ParseBool(raw)
		if err != nil {
			return common.Value{}, fmt.Errorf("column %s wants a bool: %w", col.Path, err)
		}
		return common.BoolValue(v), nil
	case common.TypeInt32:
		v, err := strconv.ParseInt(raw, 10, 32)
		if err != nil {
			return common.Value{}, fmt.Errorf("column %s wants an int32: %w", col.Path, err)
		}
		return common.Int32Value(int32(v)), nil
	case common.TypeInt64:
		v, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return common.Value{}, fmt.Errorf("column %s wants an int64: %w", col.Path, err)
		}
		return common.Int64Value(v), nil
	case common.TypeFloat32:
		v, err := strconv.ParseFloat(raw, 32)
		if err != nil {
			return common.Value{}, fmt.Errorf("column %s wants a float32: %w", col.Path, err)
		}
		return common.Float32Value(float32(v)), nil
	case common.TypeFloat64:
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return common.Value{}, fmt.Errorf("column %s wants a float64: %w", col.Path, err)
		}
		return common.Float64Value(v), nil
	case common.TypeString:
		return common.StringValue(raw), nil
	case common.TypeBytes:
		v, err := hex.DecodeString(raw)
		if err != nil {
			return common.Value{}, fmt.Errorf("column %s wants hex encoded bytes: %w", col.Path, err)
		}
		return common.BytesValue(v), nil
	case common.TypeTimestamp:
		v, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return common.Value{}, fmt.Errorf("column %s wants an RFC3339 timestamp: %w", col.Path, err)
		}
		return common.TimestampValue(v), nil
	}
	return common.Value{}, fmt.Errorf("cannot compare against column %s of type %s", col.Path, col.Type)
}

var compareOps = map[string]common.CompareOp{
	"=":  common.OpEqual,
	"==": common.OpEqual,
	"!=": common.OpNotEqual,
	">":  common.OpGreater,
	">=": common.OpGreaterEqual,
	"<":  common.OpLess,
	"<=": common.OpLessEqual,
}

// parsePredicate turns cli expressions like "id > 100" into a predicate.
// Multiple expressions are ANDed.
func parsePredicate(exprs []string, schema *common.Schema) (common.Predicate, error) {
	if len(exprs) == 0 {
		return nil, nil
	}

	leaves := map[string]common.Column{}
	for _, col := range schema.Leaves() {
		leaves[col.Path] = col
	}

	var preds []common.Predicate
	for _, expr := range exprs {
		parts := strings.Fields(expr)
		if len(parts) != 3 {
			return nil, fmt.Errorf("cannot parse %q, expected 'column op literal'", expr)
		}

		col, ok := leaves[parts[0]]
		if !ok {
			return nil, fmt.Errorf("no column named %s", parts[0])
		}
		op, ok := compareOps[parts[1]]
		if !ok {
			return nil, fmt.Errorf("unknown operator %q in %q", parts[1], expr)
		}
		lit, err := parseLiteral(col, parts[2])
		if err != nil {
			return nil, err
		}

		preds = append(preds, common.NewComparison(col.Path, op, lit))
	}

	if len(preds) == 1 {
		return preds[0], nil
	}
	return common.NewAnd(preds...), nil
}

// formatCell renders one cell of a record batch for table output.
func formatCell(arr common.Array, i int) string {
	if arr.IsNull(i) {
		return "-"
	}
	return formatValue(arr.Value(i))
}

func formatValue(v common.Value) string {
	switch v.Type {
	case common.TypeBool:
		return strconv.FormatBool(v.B)
	case common.TypeInt32, common.TypeInt64:
		return strconv.FormatInt(v.I, 10)
	case common.TypeFloat32, common.TypeFloat64:
		return strconv.FormatFloat(v.F, 'g', -1, 64)
	case common.TypeString:
		return v.S
	case common.TypeBytes:
		return hex.EncodeToString(v.Raw)
	case common.TypeTimestamp:
		return v.Time().Format(time.RFC3339Nano)
	case common.TypeList:
		elems := make([]string, len(v.L))
		for i, e := range v.L {
			elems[i] = formatValue(e)
		}
		return "[" + strings.Join(elems, ", ") + "]"
	}
	return "?"
}
