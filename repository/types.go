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

	"github.com/tomoncle/sqlkit/database"
	"github.com/tomoncle/sqlkit/filter"
	"github.com/uptrace/bun/schema"
)

// Identifiable lets a model report its identity without bun primary key
// inspection. ok is false for models that have not been persisted yet.
type Identifiable interface {
	PrimaryKey() (id any, ok bool)
}

// Insertable inserts single models.
type Insertable[T any] interface {
	Insert(ctx context.Context, entity *T) error
	InsertTx(ctx context.Context, tx *database.Tx, entity *T) error
}

// Updatable updates single models by primary key. Updating a missing row
// fails with a RepositoryError wrapping types.ErrNotFound.
type Updatable[T any] interface {
	Update(ctx context.Context, entity *T) error
	UpdateTx(ctx context.Context, tx *database.Tx, entity *T) error
}

// Saveable updates models that have an identity and inserts the others.
type Saveable[T any] interface {
	Save(ctx context.Context, entity *T) error
	SaveTx(ctx context.Context, tx *database.Tx, entity *T) error
}

// Deletable deletes by model, by id, or by filter.
type Deletable[T any] interface {
	Delete(ctx context.Context, entity *T) error
	DeleteTx(ctx context.Context, tx *database.Tx, entity *T) error
	DeleteByID(ctx context.Context, id any) error
	DeleteByIDTx(ctx context.Context, tx *database.Tx, id any) error
	// DeleteByFilter refuses an empty filter rather than deleting every row.
	DeleteByFilter(ctx context.Context, where filter.Expr) (int64, error)
	DeleteByFilterTx(ctx context.Context, tx *database.Tx, where filter.Expr) (int64, error)
}

// Selectable loads models by primary key.
type Selectable[T any] interface {
	GetByID(ctx context.Context, id any) (*T, error)
	GetByIDTx(ctx context.Context, tx *database.Tx, id any) (*T, error)
	// FindByID returns nil without error when no row matches.
	FindByID(ctx context.Context, id any) (*T, error)
	FindByIDTx(ctx context.Context, tx *database.Tx, id any) (*T, error)
	GetAll(ctx context.Context) ([]*T, error)
	GetAllTx(ctx context.Context, tx *database.Tx) ([]*T, error)
}

// FilterSelectable loads models matching a filter expression.
type FilterSelectable[T any] interface {
	FindAll(ctx context.Context, where filter.Expr, opts ...QueryOption) ([]*T, error)
	FindAllTx(ctx context.Context, tx *database.Tx, where filter.Expr, opts ...QueryOption) ([]*T, error)
	// FindOne fails with a not found RepositoryError when no row matches.
	FindOne(ctx context.Context, where filter.Expr, opts ...QueryOption) (*T, error)
	FindOneTx(ctx context.Context, tx *database.Tx, where filter.Expr, opts ...QueryOption) (*T, error)
	// FindOptional returns nil without error when no row matches.
	FindOptional(ctx context.Context, where filter.Expr, opts ...QueryOption) (*T, error)
	FindOptionalTx(ctx context.Context, tx *database.Tx, where filter.Expr, opts ...QueryOption) (*T, error)
	Count(ctx context.Context, where filter.Expr) (int64, error)
	CountTx(ctx context.Context, tx *database.Tx, where filter.Expr) (int64, error)
}

// Batchable runs bulk writes in chunks. Without a caller transaction all
// chunks share one transaction, so a failed chunk leaves no rows behind.
type Batchable[T any] interface {
	InsertBatch(ctx context.Context, entities []*T) error
	InsertBatchTx(ctx context.Context, tx *database.Tx, entities []*T) error
	UpdateBatch(ctx context.Context, entities []*T) error
	UpdateBatchTx(ctx context.Context, tx *database.Tx, entities []*T) error
	SaveBatch(ctx context.Context, entities []*T) error
	SaveBatchTx(ctx context.Context, tx *database.Tx, entities []*T) error
	DeleteBatchByID(ctx context.Context, ids []any) (int64, error)
	DeleteBatchByIDTx(ctx context.Context, tx *database.Tx, ids []any) (int64, error)
}

// Upsertable inserts models and updates fields on key conflicts.
type Upsertable[T any] interface {
	Upsert(ctx context.Context, fields []string, conflictKeys []string, entities ...*T) error
	UpsertTx(ctx context.Context, tx *database.Tx, fields []string, conflictKeys []string, entities ...*T) error
}

// Pageable returns one page of models.
type Pageable[T any] interface {
	Page(ctx context.Context, page *PageRequest) (*Pagination[T], error)
	PageTx(ctx context.Context, tx *database.Tx, page *PageRequest) (*Pagination[T], error)
}

// Transactional runs work in a transaction on the repository's pool.
type Transactional[T any] interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context, tx *database.Tx) error) error
}

// Repository combines every capability.
type Repository[T any] interface {
	Insertable[T]
	Updatable[T]
	Saveable[T]
	Deletable[T]
	Selectable[T]
	FilterSelectable[T]
	Batchable[T]
	Upsertable[T]
	Pageable[T]
	Transactional[T]

	Table() *schema.Table
	Dialect() filter.Dialect
}
