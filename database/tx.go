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
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/tomoncle/sqlkit/types"
)

// TxState is the lifecycle state of a Tx.
type TxState int

const (
	TxStarted TxState = iota
	TxActive
	TxCommitted
	TxRolledBack
)

func (s TxState) String() string {
	switch s {
	case TxStarted:
		return "started"
	case TxActive:
		return "active"
	case TxCommitted:
		return "committed"
	case TxRolledBack:
		return "rolled_back"
	}
	return "unknown"
}

// Tx owns one connection for the lifetime of a transaction. It is not safe to
// hand a Tx to another goroutine; the mutex only guards against misuse.
// Statements observed after the context is cancelled roll the transaction back.
type Tx struct {
	id      string
	mu      sync.Mutex
	state   TxState
	exec    TxExecutor
	logger  Logger
	started time.Time
}

var _ Executor = (*Tx)(nil)

// TxOption configures Begin.
type TxOption func(*txOptions)

type txOptions struct {
	sqlOpts *sql.TxOptions
	logger  Logger
}

// WithIsolation sets the isolation level and read-only flag.
func WithIsolation(level sql.IsolationLevel, readOnly bool) TxOption {
	return func(o *txOptions) { o.sqlOpts = &sql.TxOptions{Isolation: level, ReadOnly: readOnly} }
}

// WithTxLogger overrides the pool logger for one transaction.
func WithTxLogger(l Logger) TxOption {
	return func(o *txOptions) { o.logger = l }
}

// Begin starts a transaction on its own connection from pool.
func Begin(ctx context.Context, pool Pool, opts ...TxOption) (*Tx, error) {
	o := txOptions{logger: pool.Logger()}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = GetLogger()
	}

	tx := &Tx{id: uuid.NewString(), state: TxStarted, logger: o.logger, started: time.Now()}
	if err := ctx.Err(); err != nil {
		return nil, &types.ConnectionError{Op: "begin", Err: err}
	}
	exec, err := pool.BeginTx(ctx, o.sqlOpts)
	if err != nil {
		tx.logger.Warn("Failed to begin transaction", "tx", tx.id, "error", err)
		return nil, err
	}
	if tagged, ok := exec.(interface{ setTxID(string) }); ok {
		tagged.setTxID(tx.id)
	}
	tx.exec = exec
	tx.state = TxActive
	tx.logger.Debug("Transaction started", "tx", tx.id)
	return tx, nil
}

// ID returns the transaction's correlation id.
func (tx *Tx) ID() string { return tx.id }

// State returns the current lifecycle state.
func (tx *Tx) State() TxState {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	return tx.state
}

// Active reports whether statements may still run.
func (tx *Tx) Active() bool { return tx.State() == TxActive }

func (tx *Tx) Exec(ctx context.Context, query string, args ...any) (int64, error) {
	if err := tx.check(ctx); err != nil {
		return 0, err
	}
	n, err := tx.exec.Exec(ctx, query, args...)
	if err != nil {
		tx.abortIfCancelled(ctx)
	}
	return n, err
}

func (tx *Tx) Fetch(ctx context.Context, dest any, query string, args ...any) error {
	if err := tx.check(ctx); err != nil {
		return err
	}
	err := tx.exec.Fetch(ctx, dest, query, args...)
	if err != nil {
		tx.abortIfCancelled(ctx)
	}
	return err
}

func (tx *Tx) check(ctx context.Context) error {
	if !tx.Active() {
		return types.ErrTxDone
	}
	if err := ctx.Err(); err != nil {
		tx.abortIfCancelled(ctx)
		return &types.ConnectionError{Op: "exec", Err: err}
	}
	return nil
}

// abortIfCancelled rolls back a transaction whose context has ended, so a
// cancelled caller never leaves a half-applied unit of work open.
func (tx *Tx) abortIfCancelled(ctx context.Context) {
	if ctx.Err() == nil {
		return
	}
	if err := tx.Rollback(); err != nil && !errors.Is(err, types.ErrTxDone) {
		tx.logger.Error("Rollback after cancellation failed", "tx", tx.id, "error", err)
	}
}

// Commit makes the transaction's writes visible. A failed commit leaves the
// transaction rolled back.
func (tx *Tx) Commit() error {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	if tx.state != TxActive {
		return types.ErrTxDone
	}
	if err := tx.exec.Commit(); err != nil {
		tx.state = TxRolledBack
		tx.logger.Error("Transaction commit failed", "tx", tx.id, "error", err)
		return err
	}
	tx.state = TxCommitted
	tx.logger.Debug("Transaction committed", "tx", tx.id, "duration", time.Since(tx.started))
	return nil
}

// Rollback discards the transaction's writes.
func (tx *Tx) Rollback() error {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	if tx.state != TxActive {
		return types.ErrTxDone
	}
	tx.state = TxRolledBack
	if err := tx.exec.Rollback(); err != nil {
		tx.logger.Error("Transaction rollback failed", "tx", tx.id, "error", err)
		return err
	}
	tx.logger.Debug("Transaction rolled back", "tx", tx.id, "duration", time.Since(tx.started))
	return nil
}

// Close rolls back a transaction that is still active and is a no-op
// otherwise, so it can be deferred right after Begin.
func (tx *Tx) Close() error {
	if !tx.Active() {
		return nil
	}
	err := tx.Rollback()
	if errors.Is(err, types.ErrTxDone) {
		return nil
	}
	return err
}

// RunInTx runs fn inside a new transaction. The transaction commits when fn
// returns nil; it rolls back before returning when fn fails, panics, or the
// context ends first. fn must not commit or roll back tx itself.
func RunInTx(ctx context.Context, pool Pool, fn func(ctx context.Context, tx *Tx) error, opts ...TxOption) (err error) {
	tx, err := Begin(ctx, pool, opts...)
	if err != nil {
		return err
	}
	defer func() {
		if p := recover(); p != nil {
			tx.rollbackQuietly()
			panic(p)
		}
	}()

	if err = fn(ctx, tx); err != nil {
		tx.rollbackQuietly()
		return err
	}
	if cerr := ctx.Err(); cerr != nil {
		tx.rollbackQuietly()
		return &types.ConnectionError{Op: "commit", Err: cerr}
	}
	return tx.Commit()
}

func (tx *Tx) rollbackQuietly() {
	if err := tx.Rollback(); err != nil && !errors.Is(err, types.ErrTxDone) {
		tx.logger.Error("Rollback failed", "tx", tx.id, "error", err)
	}
}

// InTx is RunInTx for functions returning a value. The value is discarded
// when the transaction does not commit.
func InTx[R any](ctx context.Context, pool Pool, fn func(ctx context.Context, tx *Tx) (R, error), opts ...TxOption) (R, error) {
	var out R
	err := RunInTx(ctx, pool, func(ctx context.Context, tx *Tx) error {
		r, err := fn(ctx, tx)
		if err != nil {
			return err
		}
		out = r
		return nil
	}, opts...)
	if err != nil {
		var zero R
		return zero, err
	}
	return out, nil
}

// Sequential runs fns in order inside one transaction and stops at the first
// failure.
func Sequential[R any](ctx context.Context, pool Pool, fns ...func(ctx context.Context, tx *Tx) (R, error)) ([]R, error) {
	return InTx(ctx, pool, func(ctx context.Context, tx *Tx) ([]R, error) {
		out := make([]R, 0, len(fns))
		for i, fn := range fns {
			r, err := fn(ctx, tx)
			if err != nil {
				return nil, fmt.Errorf("step %d: %w", i, err)
			}
			out = append(out, r)
		}
		return out, nil
	})
}

// TryAll runs every fn inside one transaction even after failures, then
// rolls back and returns all failures joined when any step failed.
func TryAll[R any](ctx context.Context, pool Pool, fns ...func(ctx context.Context, tx *Tx) (R, error)) ([]R, error) {
	return InTx(ctx, pool, func(ctx context.Context, tx *Tx) ([]R, error) {
		out := make([]R, len(fns))
		var errs []error
		for i, fn := range fns {
			r, err := fn(ctx, tx)
			if err != nil {
				errs = append(errs, fmt.Errorf("step %d: %w", i, err))
				continue
			}
			out[i] = r
		}
		if len(errs) > 0 {
			return nil, errors.Join(errs...)
		}
		return out, nil
	})
}

// Reuse runs fn inside tx when one is supplied and inside a new transaction
// otherwise. Transactions never nest: a supplied tx is left for its owner to
// commit or roll back.
func Reuse(ctx context.Context, pool Pool, tx *Tx, fn func(ctx context.Context, tx *Tx) error) error {
	if tx == nil {
		return RunInTx(ctx, pool, fn)
	}
	if !tx.Active() {
		return types.ErrTxDone
	}
	return fn(ctx, tx)
}
