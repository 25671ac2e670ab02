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

package log

import (
	"fmt"
	"os"
	"strings"

	kitlog "github.com/go-kit/log"
	"github.com/go-kit/log/level"
)

// Logger is the process-wide fallback logger. Packages that are not handed a
// logger explicitly log through this. It defaults to a nop logger so library
// use stays silent unless the embedding process calls Init.
var Logger kitlog.Logger = kitlog.NewNopLogger()

// Init builds a logfmt logger writing to stderr at the given level, installs
// it as the global Logger and returns it.
func Init(logLevel string) (kitlog.Logger, error) {
	var opt level.Option

	switch strings.ToLower(logLevel) {
	case "debug":
		opt = level.AllowDebug()
	case "", "info":
		opt = level.AllowInfo()
	case "warn":
		opt = level.AllowWarn()
	case "error":
		opt = level.AllowError()
	default:
		return nil, fmt.Errorf("unknown log level %q", logLevel)
	}

	l := kitlog.NewLogfmtLogger(kitlog.NewSyncWriter(os.Stderr))
	l = level.NewFilter(l, opt)
	l = kitlog.With(l, "ts", kitlog.DefaultTimestampUTC, "caller", kitlog.DefaultCaller)

	Logger = l
	return l, nil
}
