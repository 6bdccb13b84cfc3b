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
	"database/sql"
	"errors"
	"reflect"
	"time"

	"github.com/tomoncle/sqlkit/filter"
	"github.com/tomoncle/sqlkit/types"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/feature"
	"github.com/uptrace/bun/schema"
)

// Executor runs bound statements. Placeholders must already be in the
// dialect of the pool the executor came from.
type Executor interface {
	// Exec runs a write and returns the number of affected rows.
	Exec(ctx context.Context, query string, args ...any) (int64, error)
	// Fetch runs a read and scans the rows into dest, a pointer to a slice of
	// models, a model, or a scalar.
	Fetch(ctx context.Context, dest any, query string, args ...any) error
}

// TxExecutor is an Executor bound to one open transaction.
type TxExecutor interface {
	Executor
	Commit() error
	Rollback() error
}

// Pool hands out executors. Acquire holds one connection until release is
// called; BeginTx holds one connection until commit or rollback.
type Pool interface {
	Dialect() filter.Dialect
	// Table returns bun metadata for a model type.
	Table(typ reflect.Type) *schema.Table
	HasFeature(f feature.Feature) bool
	Logger() Logger
	Acquire(ctx context.Context) (exec Executor, release func(), err error)
	BeginTx(ctx context.Context, opts *sql.TxOptions) (TxExecutor, error)
}

// BunPool is a Pool over a bun database. Statements run on the underlying
// database/sql connection with driver placeholders, and bun is used for
// model metadata and row scanning.
type BunPool struct {
	source         func() *bun.DB
	dialect        filter.Dialect
	acquireTimeout time.Duration
	hooks          []StatementHook
	logger         Logger
}

// PoolOption configures a BunPool.
type PoolOption func(*BunPool)

// WithDialect overrides the placeholder dialect derived from the bun dialect.
func WithDialect(d filter.Dialect) PoolOption {
	return func(p *BunPool) {
		if d != nil {
			p.dialect = d
		}
	}
}

// WithAcquireTimeout bounds how long Acquire and BeginTx wait for a free
// connection. Zero waits until the context ends.
func WithAcquireTimeout(d time.Duration) PoolOption {
	return func(p *BunPool) { p.acquireTimeout = d }
}

// WithStatementHook adds a hook run around every statement.
func WithStatementHook(h StatementHook) PoolOption {
	return func(p *BunPool) {
		if h != nil {
			p.hooks = append(p.hooks, h)
		}
	}
}

// WithPoolLogger sets the pool logger.
func WithPoolLogger(l Logger) PoolOption {
	return func(p *BunPool) {
		if l != nil {
			p.logger = l
		}
	}
}

// NewBunPool wraps db.
func NewBunPool(db *bun.DB, opts ...PoolOption) *BunPool {
	return newBunPool(func() *bun.DB { return db }, opts...)
}

func newBunPool(source func() *bun.DB, opts ...PoolOption) *BunPool {
	p := &BunPool{source: source, logger: GetLogger()}
	for _, opt := range opts {
		opt(p)
	}
	if p.dialect == nil {
		p.dialect = filter.Any
		if db := source(); db != nil {
			if d, ok := filter.LookupDialect(db.Dialect().Name().String()); ok {
				p.dialect = d
			}
		}
	}
	return p
}

func (p *BunPool) Dialect() filter.Dialect { return p.dialect }

func (p *BunPool) Logger() Logger { return p.logger }

func (p *BunPool) DB() *bun.DB { return p.source() }

func (p *BunPool) Table(typ reflect.Type) *schema.Table {
	db := p.source()
	if db == nil {
		return nil
	}
	return db.Table(typ)
}

func (p *BunPool) HasFeature(f feature.Feature) bool {
	db := p.source()
	return db != nil && db.HasFeature(f)
}

func (p *BunPool) db() (*bun.DB, error) {
	db := p.source()
	if db == nil {
		return nil, &types.ConnectionError{Op: "acquire", Err: errors.New("database not connected")}
	}
	return db, nil
}

func (p *BunPool) acquireContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if p.acquireTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, p.acquireTimeout)
}

// Acquire takes one connection from the pool.
func (p *BunPool) Acquire(ctx context.Context) (Executor, func(), error) {
	db, err := p.db()
	if err != nil {
		return nil, nil, err
	}
	actx, cancel := p.acquireContext(ctx)
	defer cancel()

	conn, err := db.DB.Conn(actx)
	if err != nil {
		return nil, nil, &types.ConnectionError{Op: "acquire", Err: err}
	}
	release := func() {
		if err := conn.Close(); err != nil && !errors.Is(err, sql.ErrConnDone) {
			p.logger.Warn("Failed to release connection", "error", err)
		}
	}
	return &sqlExecutor{pool: p, db: db, runner: conn}, release, nil
}

// BeginTx opens a transaction on a dedicated connection.
func (p *BunPool) BeginTx(ctx context.Context, opts *sql.TxOptions) (TxExecutor, error) {
	db, err := p.db()
	if err != nil {
		return nil, err
	}
	actx, cancel := p.acquireContext(ctx)
	defer cancel()

	// Acquiring the connection first keeps the acquire timeout off the
	// transaction itself, which database/sql would roll back when actx ends.
	conn, err := db.DB.Conn(actx)
	if err != nil {
		return nil, &types.ConnectionError{Op: "begin", Err: err}
	}
	tx, err := conn.BeginTx(ctx, opts)
	if err != nil {
		_ = conn.Close()
		return nil, Classify("begin", "BEGIN", err)
	}
	return &sqlTxExecutor{sqlExecutor: sqlExecutor{pool: p, db: db, runner: tx}, tx: tx, conn: conn}, nil
}

type sqlRunner interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

type sqlExecutor struct {
	pool   *BunPool
	db     *bun.DB
	runner sqlRunner
	txID   string
}

func (e *sqlExecutor) Exec(ctx context.Context, query string, args ...any) (int64, error) {
	ctx, event := e.pool.before(ctx, e.txID, query, args)
	res, err := e.runner.ExecContext(ctx, query, args...)
	var n int64
	if err == nil {
		n, err = res.RowsAffected()
	}
	event.Rows = n
	e.pool.after(ctx, event, err)
	if err != nil {
		return 0, Classify("exec", query, err)
	}
	return n, nil
}

func (e *sqlExecutor) Fetch(ctx context.Context, dest any, query string, args ...any) error {
	ctx, event := e.pool.before(ctx, e.txID, query, args)
	event.Rows = -1
	rows, err := e.runner.QueryContext(ctx, query, args...)
	if err == nil {
		err = e.db.ScanRows(ctx, rows, dest)
	}
	e.pool.after(ctx, event, err)
	if err != nil {
		return Classify("fetch", query, err)
	}
	return nil
}

type sqlTxExecutor struct {
	sqlExecutor
	tx   *sql.Tx
	conn *sql.Conn
}

func (e *sqlTxExecutor) Commit() error {
	defer e.conn.Close()
	if err := e.tx.Commit(); err != nil {
		return Classify("commit", "COMMIT", err)
	}
	return nil
}

func (e *sqlTxExecutor) Rollback() error {
	defer e.conn.Close()
	// database/sql has already rolled back when the begin context ended.
	if err := e.tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		return Classify("rollback", "ROLLBACK", err)
	}
	return nil
}

// setTxID tags statement events with the owning transaction.
func (e *sqlTxExecutor) setTxID(id string) { e.txID = id }

func (p *BunPool) before(ctx context.Context, txID, query string, args []any) (context.Context, *StatementEvent) {
	event := &StatementEvent{TxID: txID, Query: query, Args: args, StartTime: time.Now()}
	for _, h := range p.hooks {
		ctx = h.BeforeStatement(ctx, event)
	}
	return ctx, event
}

func (p *BunPool) after(ctx context.Context, event *StatementEvent, err error) {
	event.Duration = time.Since(event.StartTime)
	event.Err = err
	for i := len(p.hooks) - 1; i >= 0; i-- {
		p.hooks[i].AfterStatement(ctx, event)
	}
}
