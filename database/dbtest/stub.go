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

// Package dbtest provides an in-memory database.Pool that records statements
// instead of running them, for tests of code built on the database package.
package dbtest

import (
	"context"
	"database/sql"
	"reflect"
	"sync"

	"github.com/tomoncle/sqlkit/database"
	"github.com/tomoncle/sqlkit/filter"
	"github.com/uptrace/bun/dialect/feature"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/schema"
)

// Statement is one recorded Exec or Fetch call.
type Statement struct {
	Query string
	Args  []any
}

// StubPool is a database.Pool whose executors record statements. Writes made
// inside a transaction only become visible in Committed when it commits.
type StubPool struct {
	// ExecFunc answers Exec calls; nil reports one affected row.
	ExecFunc func(query string, args []any) (int64, error)
	// FetchFunc answers Fetch calls; nil leaves dest untouched.
	FetchFunc func(dest any, query string, args []any) error

	mu         sync.Mutex
	schema     schema.Dialect
	dialect    filter.Dialect
	direct     []Statement
	committed  []Statement
	rolledBack []Statement
	acquired   int
	released   int
	begun      int
}

var _ database.Pool = (*StubPool)(nil)

// New returns a stub pool using bun's postgres metadata and "$n" placeholders.
func New() *StubPool {
	return NewWithDialect(pgdialect.New())
}

// NewWithDialect returns a stub pool for a bun dialect.
func NewWithDialect(d schema.Dialect) *StubPool {
	fd, ok := filter.LookupDialect(d.Name().String())
	if !ok {
		fd = filter.Any
	}
	return &StubPool{schema: d, dialect: fd}
}

func (p *StubPool) Dialect() filter.Dialect { return p.dialect }

func (p *StubPool) Table(typ reflect.Type) *schema.Table { return p.schema.Tables().Get(typ) }

func (p *StubPool) HasFeature(f feature.Feature) bool { return p.schema.Features().Has(f) }

func (p *StubPool) Logger() database.Logger { return database.NopLogger() }

func (p *StubPool) Acquire(ctx context.Context) (database.Executor, func(), error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}
	p.mu.Lock()
	p.acquired++
	p.mu.Unlock()
	release := func() {
		p.mu.Lock()
		p.released++
		p.mu.Unlock()
	}
	return &stubExecutor{pool: p, sink: func(s Statement) { p.direct = append(p.direct, s) }}, release, nil
}

func (p *StubPool) BeginTx(ctx context.Context, _ *sql.TxOptions) (database.TxExecutor, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p.mu.Lock()
	p.begun++
	p.mu.Unlock()
	tx := &stubTx{}
	tx.stubExecutor = stubExecutor{pool: p, sink: func(s Statement) { tx.pending = append(tx.pending, s) }}
	return tx, nil
}

// Direct returns statements run outside any transaction.
func (p *StubPool) Direct() []Statement { return p.snapshot(&p.direct) }

// Committed returns statements of committed transactions.
func (p *StubPool) Committed() []Statement { return p.snapshot(&p.committed) }

// RolledBack returns statements of rolled back transactions.
func (p *StubPool) RolledBack() []Statement { return p.snapshot(&p.rolledBack) }

// Visible returns every statement whose effect is visible: direct ones and
// those of committed transactions.
func (p *StubPool) Visible() []Statement {
	return append(p.Direct(), p.Committed()...)
}

// Connections reports how many connections were acquired and released, and
// how many transactions were begun.
func (p *StubPool) Connections() (acquired, released, begun int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.acquired, p.released, p.begun
}

func (p *StubPool) snapshot(src *[]Statement) []Statement {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Statement, len(*src))
	copy(out, *src)
	return out
}

type stubExecutor struct {
	pool *StubPool
	sink func(Statement)
}

func (e *stubExecutor) Exec(ctx context.Context, query string, args ...any) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	n, err := int64(1), error(nil)
	if e.pool.ExecFunc != nil {
		n, err = e.pool.ExecFunc(query, args)
	}
	if err != nil {
		return 0, err
	}
	e.pool.mu.Lock()
	e.sink(Statement{Query: query, Args: args})
	e.pool.mu.Unlock()
	return n, nil
}

func (e *stubExecutor) Fetch(ctx context.Context, dest any, query string, args ...any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if e.pool.FetchFunc != nil {
		return e.pool.FetchFunc(dest, query, args)
	}
	return nil
}

type stubTx struct {
	stubExecutor
	pending []Statement
}

func (t *stubTx) Commit() error {
	t.pool.mu.Lock()
	defer t.pool.mu.Unlock()
	t.pool.committed = append(t.pool.committed, t.pending...)
	t.pending = nil
	return nil
}

func (t *stubTx) Rollback() error {
	t.pool.mu.Lock()
	defer t.pool.mu.Unlock()
	t.pool.rolledBack = append(t.pool.rolledBack, t.pending...)
	t.pending = nil
	return nil
}
