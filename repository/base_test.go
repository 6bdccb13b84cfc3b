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

package repository

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tomoncle/sqlkit/batch"
	"github.com/tomoncle/sqlkit/database"
	"github.com/tomoncle/sqlkit/database/dbtest"
	"github.com/tomoncle/sqlkit/filter"
	"github.com/tomoncle/sqlkit/types"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/mysqldialect"
)

type user struct {
	bun.BaseModel `bun:"table:users"`

	ID    int64  `bun:"id,pk,autoincrement"`
	Name  string `bun:"name,notnull"`
	Age   int    `bun:"age"`
	Role  string `bun:"role,default:'member'"`
	Email string `bun:"email,nullzero"`
}

// account carries a caller-assigned key, so identity comes from PrimaryKey.
type account struct {
	bun.BaseModel `bun:"table:accounts"`

	Code      string `bun:"code,pk"`
	Balance   int64  `bun:"balance"`
	persisted bool   `bun:"-"`
}

func (a *account) PrimaryKey() (any, bool) { return a.Code, a.persisted }

const (
	selectUsers = `SELECT "id", "name", "age", "role", "email" FROM "users"`
	updateUser  = `UPDATE "users" SET "name" = $1, "age" = $2, "role" = $3, "email" = $4 WHERE "id" = $5`
)

type fetchCall struct {
	query string
	args  []any
}

func recordFetches(pool *dbtest.StubPool, answer func(dest any)) *[]fetchCall {
	calls := &[]fetchCall{}
	pool.FetchFunc = func(dest any, query string, args []any) error {
		*calls = append(*calls, fetchCall{query: query, args: args})
		if answer != nil {
			answer(dest)
		}
		return nil
	}
	return calls
}

func TestInsertReadsBackGeneratedKey(t *testing.T) {
	pool := dbtest.New()
	calls := recordFetches(pool, func(dest any) { dest.(*user).ID = 7 })
	repo := NewRepository[user](pool)

	u := &user{Name: "ann", Age: 30}
	require.NoError(t, repo.Insert(context.Background(), u))
	assert.Equal(t, int64(7), u.ID)

	require.Len(t, *calls, 1)
	assert.Equal(t, `INSERT INTO "users" ("name", "age", "email") VALUES ($1, $2, $3) RETURNING "id"`, (*calls)[0].query)
	assert.Equal(t, []any{"ann", 30, nil}, (*calls)[0].args)

	acquired, released, begun := pool.Connections()
	assert.Equal(t, 1, acquired)
	assert.Equal(t, 1, released)
	assert.Zero(t, begun)
}

func TestInsertNil(t *testing.T) {
	repo := NewRepository[user](dbtest.New())
	var repoErr *types.RepositoryError
	assert.ErrorAs(t, repo.Insert(context.Background(), nil), &repoErr)
}

func TestSaveRoutesOnIdentity(t *testing.T) {
	ctx := context.Background()
	pool := dbtest.New()
	inserts := recordFetches(pool, nil)
	repo := NewRepository[user](pool)

	require.NoError(t, repo.Save(ctx, &user{Name: "new", Age: 20}))
	require.Len(t, *inserts, 1)
	assert.Contains(t, (*inserts)[0].query, `INSERT INTO "users"`)
	assert.Empty(t, pool.Direct())

	require.NoError(t, repo.Save(ctx, &user{ID: 5, Name: "bob", Age: 40, Role: "admin"}))
	require.Len(t, *inserts, 1)
	direct := pool.Direct()
	require.Len(t, direct, 1)
	assert.Equal(t, updateUser, direct[0].Query)
	assert.Equal(t, []any{"bob", 40, "admin", nil, int64(5)}, direct[0].Args)
}

func TestSaveUsesIdentifiable(t *testing.T) {
	ctx := context.Background()
	pool := dbtest.New()
	repo := NewRepository[account](pool)

	require.NoError(t, repo.Save(ctx, &account{Code: "A-1", Balance: 10}))
	require.NoError(t, repo.Save(ctx, &account{Code: "A-1", Balance: 20, persisted: true}))

	direct := pool.Direct()
	require.Len(t, direct, 2)
	assert.Equal(t, `INSERT INTO "accounts" ("code", "balance") VALUES ($1, $2)`, direct[0].Query)
	assert.Equal(t, `UPDATE "accounts" SET "balance" = $1 WHERE "code" = $2`, direct[1].Query)
	assert.Equal(t, []any{int64(20), "A-1"}, direct[1].Args)
}

func TestUpdateMissingRow(t *testing.T) {
	pool := dbtest.New()
	pool.ExecFunc = func(string, []any) (int64, error) { return 0, nil }
	repo := NewRepository[user](pool)

	err := repo.Update(context.Background(), &user{ID: 9, Name: "x", Role: "r"})
	require.Error(t, err)
	assert.True(t, types.IsNotFound(err))
	var repoErr *types.RepositoryError
	assert.ErrorAs(t, err, &repoErr)

	err = repo.DeleteByID(context.Background(), 9)
	assert.True(t, types.IsNotFound(err))
}

func TestDeleteStatements(t *testing.T) {
	ctx := context.Background()
	pool := dbtest.New()
	repo := NewRepository[user](pool)

	require.NoError(t, repo.Delete(ctx, &user{ID: 3}))
	require.NoError(t, repo.DeleteByID(ctx, 4))
	n, err := repo.DeleteByFilter(ctx, filter.Lt("age", 18).And(filter.Eq("role", filter.None[string]())))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	direct := pool.Direct()
	require.Len(t, direct, 3)
	assert.Equal(t, `DELETE FROM "users" WHERE "id" = $1`, direct[0].Query)
	assert.Equal(t, []any{int64(3)}, direct[0].Args)
	assert.Equal(t, []any{4}, direct[1].Args)
	assert.Equal(t, `DELETE FROM "users" WHERE age < $1`, direct[2].Query)
}

func TestDeleteByFilterRefusesEmptyFilter(t *testing.T) {
	pool := dbtest.New()
	repo := NewRepository[user](pool)

	for _, where := range []filter.Expr{nil, filter.Unset("age", filter.OpGT)} {
		_, err := repo.DeleteByFilter(context.Background(), where)
		assert.ErrorIs(t, err, types.ErrEmptyFilter)
		var repoErr *types.RepositoryError
		assert.ErrorAs(t, err, &repoErr)
	}
	acquired, _, _ := pool.Connections()
	assert.Zero(t, acquired)
}

func TestFindByID(t *testing.T) {
	ctx := context.Background()
	pool := dbtest.New()
	calls := recordFetches(pool, nil)
	repo := NewRepository[user](pool)

	u, err := repo.FindByID(ctx, 7)
	require.NoError(t, err)
	assert.Nil(t, u)

	_, err = repo.GetByID(ctx, 7)
	assert.True(t, types.IsNotFound(err))

	require.Len(t, *calls, 2)
	assert.Equal(t, selectUsers+` WHERE "id" = $1 LIMIT 1`, (*calls)[0].query)
	assert.Equal(t, []any{7}, (*calls)[0].args)
}

func TestFindOneAndOptional(t *testing.T) {
	ctx := context.Background()
	pool := dbtest.New()
	found := true
	calls := recordFetches(pool, func(dest any) {
		if found {
			*dest.(*[]*user) = []*user{{ID: 1, Name: "ann"}}
		}
	})
	repo := NewRepository[user](pool)

	u, err := repo.FindOne(ctx, filter.Eq("name", "ann"), OrderBy("id DESC"))
	require.NoError(t, err)
	assert.Equal(t, "ann", u.Name)
	assert.Equal(t, selectUsers+" WHERE name = $1 ORDER BY id DESC LIMIT 1", (*calls)[0].query)

	found = false
	u, err = repo.FindOptional(ctx, filter.Eq("name", "bob"))
	require.NoError(t, err)
	assert.Nil(t, u)

	_, err = repo.FindOne(ctx, filter.Eq("name", "bob"))
	assert.True(t, types.IsNotFound(err))
}

func TestFindAllOptions(t *testing.T) {
	pool := dbtest.New()
	calls := recordFetches(pool, nil)
	repo := NewRepository[user](pool)

	all, err := repo.FindAll(context.Background(),
		filter.Ge("age", 18).And(filter.Like("name", filter.None[string]())),
		OrderBy("age DESC", "id"), Limit(10), Offset(20))
	require.NoError(t, err)
	assert.NotNil(t, all)
	assert.Empty(t, all)
	assert.Equal(t, selectUsers+" WHERE age >= $1 ORDER BY age DESC, id LIMIT 10 OFFSET 20", (*calls)[0].query)

	_, err = repo.GetAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, selectUsers, (*calls)[1].query)
	assert.Empty(t, (*calls)[1].args)
}

func TestFindAllInvalidFilter(t *testing.T) {
	pool := dbtest.New()
	repo := NewRepository[user](pool)

	_, err := repo.FindAll(context.Background(), filter.In("id", []int{}))
	var filterErr *types.FilterError
	assert.ErrorAs(t, err, &filterErr)
}

func TestPage(t *testing.T) {
	pool := dbtest.New()
	calls := recordFetches(pool, func(dest any) {
		switch d := dest.(type) {
		case *int64:
			*d = 5
		case *[]*user:
			*d = []*user{{ID: 3}, {ID: 4}}
		}
	})
	repo := NewRepository[user](pool)

	page, err := repo.Page(context.Background(), NewPageRequest(2, 2, filter.Gt("age", 18), []string{"name"}))
	require.NoError(t, err)
	assert.Equal(t, int64(5), page.Total)
	assert.Equal(t, 3, page.Pages())
	assert.Len(t, page.Items, 2)

	require.Len(t, *calls, 2)
	assert.Equal(t, `SELECT count(*) FROM "users" WHERE age > $1`, (*calls)[0].query)
	assert.Equal(t, selectUsers+" WHERE age > $1 ORDER BY name LIMIT 2 OFFSET 2", (*calls)[1].query)

	acquired, released, _ := pool.Connections()
	assert.Equal(t, 1, acquired)
	assert.Equal(t, 1, released)
}

func TestPageEmpty(t *testing.T) {
	pool := dbtest.New()
	calls := recordFetches(pool, nil)
	repo := NewRepository[user](pool)

	page, err := repo.Page(context.Background(), NewDefaultPageRequest(1, 10))
	require.NoError(t, err)
	assert.Zero(t, page.Total)
	assert.Empty(t, page.Items)
	assert.Len(t, *calls, 1)
}

func TestInsertBatchGroupsRows(t *testing.T) {
	pool := dbtest.New()
	repo := NewRepository[user](pool)

	err := repo.InsertBatch(context.Background(), []*user{
		{Name: "a", Age: 1, Role: "admin"},
		{Name: "b", Age: 2},
		{Name: "c", Age: 3, Email: "c@example.com"},
	})
	require.NoError(t, err)

	committed := pool.Committed()
	require.Len(t, committed, 2)
	assert.Equal(t, `INSERT INTO "users" ("name", "age", "role", "email") VALUES ($1, $2, $3, $4)`, committed[0].Query)
	assert.Equal(t, `INSERT INTO "users" ("name", "age", "email") VALUES ($1, $2, $3), ($4, $5, $6)`, committed[1].Query)
	assert.Equal(t, []any{"b", 2, nil, "c", 3, "c@example.com"}, committed[1].Args)
	assert.Empty(t, pool.Direct())
}

func TestInsertBatchRollsBackOnChunkFailure(t *testing.T) {
	pool := dbtest.New()
	calls := 0
	pool.ExecFunc = func(string, []any) (int64, error) {
		calls++
		if calls == 3 {
			return 0, errors.New("boom")
		}
		return 2, nil
	}
	repo := NewRepository[user](pool, WithBatch(batch.MustNew(2)))

	users := make([]*user, 5)
	for i := range users {
		users[i] = &user{Name: "u", Age: i}
	}
	err := repo.InsertBatch(context.Background(), users)
	require.Error(t, err)

	var batchErr *types.BatchError
	require.ErrorAs(t, err, &batchErr)
	assert.Equal(t, 2, batchErr.Index)
	assert.Empty(t, pool.Visible())
	assert.Len(t, pool.RolledBack(), 2)

	_, _, begun := pool.Connections()
	assert.Equal(t, 1, begun)
}

func TestInsertBatchEmpty(t *testing.T) {
	pool := dbtest.New()
	repo := NewRepository[user](pool)

	require.NoError(t, repo.InsertBatch(context.Background(), nil))
	acquired, _, begun := pool.Connections()
	assert.Zero(t, acquired)
	assert.Zero(t, begun)
}

func TestSaveBatchPartitions(t *testing.T) {
	pool := dbtest.New()
	repo := NewRepository[user](pool)

	err := repo.SaveBatch(context.Background(), []*user{
		{ID: 1, Name: "old", Role: "r"},
		{Name: "new"},
		{ID: 2, Name: "old2", Role: "r"},
	})
	require.NoError(t, err)

	committed := pool.Committed()
	require.Len(t, committed, 3)
	assert.Contains(t, committed[0].Query, "INSERT INTO")
	assert.Equal(t, updateUser, committed[1].Query)
	assert.Equal(t, int64(1), committed[1].Args[4])
	assert.Equal(t, int64(2), committed[2].Args[4])

	_, _, begun := pool.Connections()
	assert.Equal(t, 1, begun)
}

func TestUpdateBatchMissingRowRollsBack(t *testing.T) {
	pool := dbtest.New()
	pool.ExecFunc = func(_ string, args []any) (int64, error) {
		if args[4] == int64(2) {
			return 0, nil
		}
		return 1, nil
	}
	repo := NewRepository[user](pool)

	err := repo.UpdateBatch(context.Background(), []*user{{ID: 1, Role: "r"}, {ID: 2, Role: "r"}})
	assert.True(t, types.IsNotFound(err))
	assert.Empty(t, pool.Committed())
	assert.Len(t, pool.RolledBack(), 2)
}

func TestDeleteBatchByID(t *testing.T) {
	pool := dbtest.New()
	pool.ExecFunc = func(_ string, args []any) (int64, error) { return int64(len(args)), nil }
	repo := NewRepository[user](pool, WithBatch(batch.MustNew(2)))

	n, err := repo.DeleteBatchByID(context.Background(), []any{1, 2, 3})
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	committed := pool.Committed()
	require.Len(t, committed, 2)
	assert.Equal(t, `DELETE FROM "users" WHERE "id" IN ($1, $2)`, committed[0].Query)
	assert.Equal(t, `DELETE FROM "users" WHERE "id" IN ($1)`, committed[1].Query)
}

func TestUpsertOnConflict(t *testing.T) {
	pool := dbtest.New()
	repo := NewRepository[user](pool)

	err := repo.Upsert(context.Background(), []string{"name", "age"}, nil,
		&user{ID: 1, Name: "a", Age: 1, Role: "r"},
		&user{ID: 2, Name: "b", Age: 2, Role: "r"})
	require.NoError(t, err)

	committed := pool.Committed()
	require.Len(t, committed, 1)
	assert.Equal(t, `INSERT INTO "users" ("id", "name", "age", "role", "email") VALUES ($1, $2, $3, $4, $5), ($6, $7, $8, $9, $10)`+
		` ON CONFLICT ("id") DO UPDATE SET "name" = EXCLUDED."name", "age" = EXCLUDED."age"`, committed[0].Query)
	assert.Len(t, committed[0].Args, 10)
}

func TestUpsertOnDuplicateKey(t *testing.T) {
	pool := dbtest.NewWithDialect(mysqldialect.New())
	repo := NewRepository[account](pool)
	assert.Equal(t, filter.MySQL, repo.Dialect())

	err := repo.Upsert(context.Background(), []string{"balance"}, []string{"code"},
		&account{Code: "A", Balance: 1})
	require.NoError(t, err)

	committed := pool.Committed()
	require.Len(t, committed, 1)
	assert.Equal(t, "INSERT INTO `accounts` (`code`, `balance`) VALUES (?, ?) ON DUPLICATE KEY UPDATE `balance` = VALUES(`balance`)", committed[0].Query)
}

func TestUpsertValidation(t *testing.T) {
	ctx := context.Background()
	repo := NewRepository[user](dbtest.New())

	var repoErr *types.RepositoryError
	assert.ErrorAs(t, repo.Upsert(ctx, nil, nil, &user{}), &repoErr)
	assert.ErrorAs(t, repo.Upsert(ctx, []string{"nickname"}, nil, &user{}), &repoErr)
	assert.NoError(t, repo.Upsert(ctx, []string{"name"}, nil))
}

func TestTxVariantsShareTransaction(t *testing.T) {
	ctx := context.Background()
	pool := dbtest.New()
	repo := NewRepository[account](pool)

	err := repo.WithTransaction(ctx, func(ctx context.Context, tx *database.Tx) error {
		if err := repo.InsertTx(ctx, tx, &account{Code: "A", Balance: 1}); err != nil {
			return err
		}
		return repo.InsertBatchTx(ctx, tx, []*account{{Code: "B"}, {Code: "C"}})
	})
	require.NoError(t, err)
	assert.Len(t, pool.Committed(), 2)

	acquired, _, begun := pool.Connections()
	assert.Zero(t, acquired)
	assert.Equal(t, 1, begun)
}

func TestTwoStepTransactionRollsBack(t *testing.T) {
	ctx := context.Background()
	pool := dbtest.New()
	pool.ExecFunc = func(query string, _ []any) (int64, error) {
		if strings.HasPrefix(query, "UPDATE") {
			return 0, nil
		}
		return 1, nil
	}
	repo := NewRepository[account](pool)

	err := repo.WithTransaction(ctx, func(ctx context.Context, tx *database.Tx) error {
		if err := repo.InsertTx(ctx, tx, &account{Code: "A", Balance: 1}); err != nil {
			return err
		}
		return repo.UpdateTx(ctx, tx, &account{Code: "missing", Balance: 2})
	})
	assert.True(t, types.IsNotFound(err))
	assert.Empty(t, pool.Visible())
	assert.Len(t, pool.RolledBack(), 2)
}

func TestTxVariantsRejectFinishedTx(t *testing.T) {
	ctx := context.Background()
	pool := dbtest.New()
	repo := NewRepository[account](pool)

	tx, err := database.Begin(ctx, pool)
	require.NoError(t, err)
	require.NoError(t, tx.Commit())

	assert.ErrorIs(t, repo.InsertTx(ctx, tx, &account{Code: "A"}), types.ErrTxDone)
	assert.ErrorIs(t, repo.InsertBatchTx(ctx, tx, []*account{{Code: "A"}}), types.ErrTxDone)
	_, err = repo.CountTx(ctx, tx, nil)
	assert.ErrorIs(t, err, types.ErrTxDone)
}
