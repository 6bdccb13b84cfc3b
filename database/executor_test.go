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
	"bytes"
	"context"
	"database/sql/driver"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tomoncle/sqlkit/filter"
	"github.com/tomoncle/sqlkit/types"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
)

type account struct {
	bun.BaseModel `bun:"table:accounts"`

	ID   int64  `bun:"id,pk,autoincrement"`
	Name string `bun:"name"`
}

func newMockPool(t *testing.T, opts ...PoolOption) (*BunPool, sqlmock.Sqlmock) {
	t.Helper()
	sqldb, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	db := bun.NewDB(sqldb, pgdialect.New())
	t.Cleanup(func() { _ = db.Close() })
	return NewBunPool(db, append([]PoolOption{WithPoolLogger(NopLogger())}, opts...)...), mock
}

type recordingHook struct {
	events []*StatementEvent
}

func (h *recordingHook) BeforeStatement(ctx context.Context, _ *StatementEvent) context.Context {
	return ctx
}

func (h *recordingHook) AfterStatement(_ context.Context, e *StatementEvent) {
	h.events = append(h.events, e)
}

func TestBunPoolDialectFromBun(t *testing.T) {
	pool, _ := newMockPool(t)
	assert.Equal(t, filter.Postgres, pool.Dialect())

	pool, _ = newMockPool(t, WithDialect(filter.Any))
	assert.Equal(t, filter.Any, pool.Dialect())
}

func TestExecReturnsAffectedRows(t *testing.T) {
	hook := &recordingHook{}
	pool, mock := newMockPool(t, WithStatementHook(hook))
	mock.ExpectExec("UPDATE accounts SET name = $1 WHERE id = $2").
		WithArgs("bob", 7).
		WillReturnResult(sqlmock.NewResult(0, 1))

	exec, release, err := pool.Acquire(context.Background())
	require.NoError(t, err)
	defer release()

	n, err := exec.Exec(context.Background(), "UPDATE accounts SET name = $1 WHERE id = $2", "bob", 7)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	require.NoError(t, mock.ExpectationsWereMet())

	require.Len(t, hook.events, 1)
	assert.Equal(t, "UPDATE", hook.events[0].Operation())
	assert.Equal(t, int64(1), hook.events[0].Rows)
	assert.NoError(t, hook.events[0].Err)
}

func TestFetchScansModels(t *testing.T) {
	pool, mock := newMockPool(t)
	mock.ExpectQuery("SELECT id, name FROM accounts WHERE id > $1").
		WithArgs(1).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name"}).AddRow(int64(2), "ann").AddRow(int64(3), "bo"))

	exec, release, err := pool.Acquire(context.Background())
	require.NoError(t, err)
	defer release()

	var out []*account
	require.NoError(t, exec.Fetch(context.Background(), &out, "SELECT id, name FROM accounts WHERE id > $1", 1))
	require.Len(t, out, 2)
	assert.Equal(t, int64(2), out[0].ID)
	assert.Equal(t, "bo", out[1].Name)
}

func TestFetchScansScalar(t *testing.T) {
	pool, mock := newMockPool(t)
	mock.ExpectQuery("SELECT count(*) FROM accounts").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(int64(42)))

	exec, release, err := pool.Acquire(context.Background())
	require.NoError(t, err)
	defer release()

	var n int64
	require.NoError(t, exec.Fetch(context.Background(), &n, "SELECT count(*) FROM accounts"))
	assert.Equal(t, int64(42), n)
}

func TestBackendErrorsBecomeQueryErrors(t *testing.T) {
	pool, mock := newMockPool(t)
	boom := errors.New(`duplicate key value violates unique constraint "accounts_pkey"`)
	mock.ExpectExec("INSERT INTO accounts (name) VALUES ($1)").WithArgs("x").WillReturnError(boom)

	exec, release, err := pool.Acquire(context.Background())
	require.NoError(t, err)
	defer release()

	_, err = exec.Exec(context.Background(), "INSERT INTO accounts (name) VALUES ($1)", "x")
	var qe *types.QueryError
	require.ErrorAs(t, err, &qe)
	assert.Equal(t, "INSERT INTO accounts (name) VALUES ($1)", qe.Query)
	assert.ErrorIs(t, err, boom)

	is, kind := IsSqlError(err)
	assert.True(t, is)
	assert.Equal(t, DuplicateKeyErr, kind)
}

func TestClassify(t *testing.T) {
	assert.Nil(t, Classify("exec", "", nil))

	var ce *types.ConnectionError
	assert.ErrorAs(t, Classify("exec", "SELECT 1", driver.ErrBadConn), &ce)
	assert.ErrorAs(t, Classify("exec", "SELECT 1", context.DeadlineExceeded), &ce)

	var qe *types.QueryError
	assert.ErrorAs(t, Classify("exec", "SELECT 1", errors.New("syntax error")), &qe)

	tagged := &types.QueryError{Query: "q", Err: errors.New("x")}
	assert.Same(t, tagged, Classify("exec", "other", tagged))
}

func TestAcquireTimeout(t *testing.T) {
	pool, _ := newMockPool(t, WithAcquireTimeout(20*time.Millisecond))
	pool.DB().SetMaxOpenConns(1)

	_, release, err := pool.Acquire(context.Background())
	require.NoError(t, err)
	defer release()

	_, _, err = pool.Acquire(context.Background())
	var ce *types.ConnectionError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "acquire", ce.Op)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestSlowQueryHookLogsToWriter(t *testing.T) {
	var buf bytes.Buffer
	h := NewSlowQueryHook(time.Millisecond, nil, &buf)
	h.AfterStatement(context.Background(), &StatementEvent{Query: "SELECT 1", Duration: time.Second})
	assert.Contains(t, buf.String(), "SELECT 1")

	buf.Reset()
	h.AfterStatement(context.Background(), &StatementEvent{Query: "SELECT 2", Duration: time.Microsecond})
	assert.Empty(t, buf.String())
}

func TestQueryLogHookOnlyFailuresWhenNotVerbose(t *testing.T) {
	t.Setenv("SQLKIT_DEBUG", "1")
	var buf bytes.Buffer
	h := NewQueryLogHook(&buf, false)
	h.AfterStatement(context.Background(), &StatementEvent{Query: "SELECT 1"})
	assert.Empty(t, buf.String())

	h.AfterStatement(context.Background(), &StatementEvent{Query: "SELECT 1", Err: errors.New("bad")})
	assert.Contains(t, buf.String(), "bad")
}
