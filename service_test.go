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

package sqlkit

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tomoncle/sqlkit/database"
	"github.com/tomoncle/sqlkit/filter"
	"github.com/tomoncle/sqlkit/repository"
	"github.com/tomoncle/sqlkit/types"
	"github.com/uptrace/bun"
)

type task struct {
	bun.BaseModel `bun:"table:tasks"`

	ID       int64  `bun:"id,pk,autoincrement"`
	Title    string `bun:"title,notnull"`
	Done     bool   `bun:"done"`
	Priority int    `bun:"priority"`
}

func openSQLite(t *testing.T) *database.Database {
	t.Helper()
	cfg := database.DefaultConfig()
	cfg.ConnectionConfig.Type = "sqlite"
	cfg.ConnectionConfig.DSN = "file:" + strings.ReplaceAll(t.Name(), "/", "_") + "?mode=memory&cache=shared"
	cfg.ConnectionConfig.MaxOpenConns = 1
	cfg.ConnectionConfig.MaxIdleConns = 1
	cfg.ConnectionConfig.HealthCheckInterval = 0
	cfg.ConnectionConfig.EnableReconnect = false
	cfg.ConnectionConfig.EnableQueryLog = false
	cfg.BatchConfig.Size = 2

	ctx := context.Background()
	db, err := database.Open(ctx, cfg, database.WithoutEnv(), database.WithLogger(database.NopLogger()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	_, err = db.DB().NewCreateTable().Model((*task)(nil)).Exec(ctx)
	require.NoError(t, err)
	return db
}

func TestServiceOverSQLite(t *testing.T) {
	ctx := context.Background()
	db := openSQLite(t)
	assert.Equal(t, filter.SQLite, db.Dialect())
	svc := NewServiceFor[task](db)

	require.NoError(t, svc.Create(ctx,
		&task{Title: "write", Priority: 1},
		&task{Title: "review", Priority: 3},
		&task{Title: "ship", Priority: 2, Done: true}))

	all, err := svc.All(ctx)
	require.NoError(t, err)
	require.Len(t, all, 3)

	created := &task{Title: "plan", Priority: 5}
	require.NoError(t, svc.Save(ctx, created))
	assert.NotZero(t, created.ID)

	open, err := svc.List(ctx,
		filter.Eq("done", false).And(filter.Ge("priority", filter.Some(2))).And(filter.Like("title", filter.None[string]())),
		repository.OrderBy("priority DESC"))
	require.NoError(t, err)
	require.Len(t, open, 2)
	assert.Equal(t, "plan", open[0].Title)
	assert.Equal(t, "review", open[1].Title)

	created.Title = "plan v2"
	require.NoError(t, svc.Save(ctx, created))
	got, err := svc.Get(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "plan v2", got.Title)

	missing, err := svc.Find(ctx, int64(9999))
	require.NoError(t, err)
	assert.Nil(t, missing)
	assert.True(t, types.IsNotFound(svc.Update(ctx, &task{ID: 9999, Title: "x"})))

	page, err := svc.Page(ctx, repository.NewPageRequest(2, 3, nil, []string{"id"}))
	require.NoError(t, err)
	assert.Equal(t, int64(4), page.Total)
	assert.Equal(t, 2, page.Pages())
	assert.Len(t, page.Items, 1)
}

func TestServiceTransactionRollsBack(t *testing.T) {
	ctx := context.Background()
	db := openSQLite(t)
	svc := NewServiceFor[task](db)
	require.NoError(t, svc.Create(ctx, &task{Title: "keep"}))

	boom := errors.New("boom")
	err := svc.Transaction(ctx, func(ctx context.Context, tx *database.Tx) error {
		if err := svc.SaveWithTx(ctx, tx, &task{Title: "a"}, &task{Title: "b"}, &task{Title: "c"}); err != nil {
			return err
		}
		if err := svc.DeleteWithTx(ctx, tx, int64(1)); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)

	n, err := svc.Count(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	kept, err := svc.Get(ctx, int64(1))
	require.NoError(t, err)
	assert.Equal(t, "keep", kept.Title)
}

func TestServiceUpsertAndDelete(t *testing.T) {
	ctx := context.Background()
	db := openSQLite(t)
	svc := NewServiceFor[task](db)
	require.NoError(t, svc.Create(ctx, &task{Title: "one", Priority: 1}, &task{Title: "two", Priority: 2}))

	err := svc.SaveOrUpdate(ctx, []string{"title"}, nil,
		&task{ID: 1, Title: "uno", Priority: 9},
		&task{ID: 3, Title: "tres", Priority: 3})
	require.NoError(t, err)

	one, err := svc.Get(ctx, int64(1))
	require.NoError(t, err)
	assert.Equal(t, "uno", one.Title)
	assert.Equal(t, 1, one.Priority)

	n, err := svc.Count(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	_, err = svc.DeleteWhere(ctx, filter.Eq("title", filter.None[string]()))
	assert.ErrorIs(t, err, types.ErrEmptyFilter)

	removed, err := svc.DeleteWhere(ctx, filter.Le("priority", 2))
	require.NoError(t, err)
	assert.Equal(t, int64(2), removed)

	require.NoError(t, svc.Delete(ctx, int64(3)))
	assert.True(t, types.IsNotFound(svc.Delete(ctx, int64(3))))
}

func TestDatabaseHealthAndStats(t *testing.T) {
	ctx := context.Background()
	db := openSQLite(t)

	status := db.Health(ctx)
	assert.True(t, status.Healthy)
	assert.True(t, status.Connected)
	assert.Empty(t, status.LastError)
	assert.Equal(t, 1, status.MaxOpenConns)

	stats := db.Stats()
	assert.Equal(t, 1, stats.MaxOpenConns)
	assert.GreaterOrEqual(t, stats.OpenConns, 1)

	require.NoError(t, db.Manager().Reconnect(ctx))
	assert.True(t, db.Health(ctx).Healthy)

	require.NoError(t, db.Close())
	status = db.Health(ctx)
	assert.False(t, status.Healthy)
	assert.Equal(t, "Database not initialized", status.LastError)
	assert.Equal(t, &database.DBStats{}, db.Stats())
}
