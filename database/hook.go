/*
 * Copyright 2025 tomoncle.
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package database

import (
	"context"
	"fmt"
	"io"
	"os"
	"reflect"
	"strings"
	"time"

	"github.com/fatih/color"
)

const (
	ansiReset     = "\x1b[0m"
	ansiRed       = "\x1b[31m"
	ansiYellow    = "\x1b[33m"
	ansiGreen     = "\x1b[32m"
	ansiBlue      = "\x1b[34m"
	ansiMagenta   = "\x1b[35m"
	ansiCyan      = "\x1b[36m"
	ansiBGGreen   = "\x1b[42;97m"
	ansiBGYellow  = "\x1b[43;97m"
	ansiBGBlue    = "\x1b[44;97m"
	ansiBGMagenta = "\x1b[45;97m"
	ansiBGRed     = "\x1b[41;97m"
)

// StatementEvent describes one bound statement run by an executor.
type StatementEvent struct {
	TxID      string
	Query     string
	Args      []any
	StartTime time.Time
	Duration  time.Duration
	// Rows is the affected row count for Exec and -1 for Fetch.
	Rows int64
	Err  error
}

// Operation returns the statement's leading keyword, e.g. "SELECT".
func (e *StatementEvent) Operation() string {
	q := strings.TrimSpace(e.Query)
	if i := strings.IndexAny(q, " \t\n("); i > 0 {
		q = q[:i]
	}
	return strings.ToUpper(q)
}

// StatementHook observes statements executed through a BunPool or a Tx.
type StatementHook interface {
	BeforeStatement(ctx context.Context, event *StatementEvent) context.Context
	AfterStatement(ctx context.Context, event *StatementEvent)
}

func colorWrap(s, code string) string { return code + s + ansiReset }

// QueryLogHook prints every statement. The SQLKIT_DEBUG environment variable
// overrides the enabled flag: "1" logs failures only, "2" logs everything.
type QueryLogHook struct {
	envName string
	enabled bool
	verbose bool
	writer  io.Writer
}

// NewQueryLogHook returns a hook writing to w (stdout when nil).
func NewQueryLogHook(w io.Writer, verbose bool) *QueryLogHook {
	if w == nil {
		w = os.Stdout
	}
	return &QueryLogHook{envName: "SQLKIT_DEBUG", enabled: true, verbose: verbose, writer: w}
}

var _ StatementHook = (*QueryLogHook)(nil)

func (h *QueryLogHook) BeforeStatement(ctx context.Context, _ *StatementEvent) context.Context {
	return ctx
}

func (h *QueryLogHook) AfterStatement(_ context.Context, event *StatementEvent) {
	enabled, verbose := h.enabled, h.verbose
	if env, ok := os.LookupEnv(h.envName); ok {
		enabled = env != "" && env != "0"
		verbose = env == "2"
	}
	if !enabled || (!verbose && event.Err == nil) {
		return
	}

	args := []interface{}{
		time.Now().Format("2006-01-02 15:04:05.000"),
		colorWrap(fmt.Sprintf("%12s", "[SQL]"), ansiCyan),
		fmt.Sprintf("%14s", event.Duration.Round(time.Microsecond)),
		"  ", operationColor(event),
		fmt.Sprintf(" args=%d", len(event.Args)),
	}
	if event.TxID != "" {
		args = append(args, "tx="+event.TxID)
	}
	if event.Err != nil {
		typ := reflect.TypeOf(event.Err).String()
		args = append(args,
			"\t",
			color.New(color.BgRed).Sprintf(" %s ", typ+": "+event.Err.Error()),
		)
	}
	_, _ = fmt.Fprintln(h.writer, args...)
}

func operationColor(event *StatementEvent) string {
	switch event.Operation() {
	case "SELECT":
		return colorWrap(event.Query, ansiGreen)
	case "INSERT":
		return colorWrap(event.Query, ansiBlue)
	case "UPDATE":
		return colorWrap(event.Query, ansiYellow)
	case "DELETE":
		return colorWrap(event.Query, ansiMagenta)
	default:
		return colorWrap(event.Query, ansiRed)
	}
}

func operationBackgroundColor(event *StatementEvent) string {
	switch event.Operation() {
	case "SELECT":
		return colorWrap(event.Query, ansiBGGreen)
	case "INSERT":
		return colorWrap(event.Query, ansiBGBlue)
	case "UPDATE":
		return colorWrap(event.Query, ansiBGYellow)
	case "DELETE":
		return colorWrap(event.Query, ansiBGMagenta)
	default:
		return colorWrap(event.Query, ansiBGRed)
	}
}

// SlowQueryHook reports successful statements slower than a threshold, to the
// logger when set and to the writer otherwise.
type SlowQueryHook struct {
	slowTime time.Duration
	logger   Logger
	writer   io.Writer
}

// NewSlowQueryHook returns a hook for statements slower than threshold.
func NewSlowQueryHook(threshold time.Duration, logger Logger, w io.Writer) *SlowQueryHook {
	return &SlowQueryHook{slowTime: threshold, logger: logger, writer: w}
}

func (h *SlowQueryHook) BeforeStatement(ctx context.Context, _ *StatementEvent) context.Context {
	return ctx
}

func (h *SlowQueryHook) AfterStatement(_ context.Context, event *StatementEvent) {
	if event.Err != nil || event.Duration <= h.slowTime {
		return
	}
	if h.logger != nil {
		h.logger.Warn("Database slow query detected",
			"duration", event.Duration,
			"slow_threshold", h.slowTime,
			"query", event.Query,
			"tx", event.TxID,
		)
		return
	}
	if h.writer != nil {
		_, _ = fmt.Fprintln(h.writer,
			time.Now().Format("2006-01-02 15:04:05.000"),
			colorWrap(fmt.Sprintf("%12s", "[SQL_SLOW]"), ansiYellow),
			fmt.Sprintf("%14s", event.Duration.Round(time.Microsecond)),
			"  ", operationBackgroundColor(event),
		)
	}
}
