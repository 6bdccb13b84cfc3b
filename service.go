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

	"github.com/tomoncle/sqlkit/database"
	"github.com/tomoncle/sqlkit/filter"
	"github.com/tomoncle/sqlkit/repository"
)

type Service[T any] interface {
	// Get returns a single entity by its identifier.
	Get(ctx context.Context, id any) (*T, error)

	// Find returns the entity with the identifier, or nil when it does not exist.
	Find(ctx context.Context, id any) (*T, error)

	// All returns all entities.
	All(ctx context.Context) ([]*T, error)

	// List returns entities that match the provided filter.
	List(ctx context.Context, where filter.Expr, opts ...repository.QueryOption) ([]*T, error)

	// Count returns the number of entities matching the filter.
	Count(ctx context.Context, where filter.Expr) (int64, error)

	// Page returns a paginated list of entities.
	Page(ctx context.Context, page *repository.PageRequest) (*repository.Pagination[T], error)

	// Create inserts one or more new entities.
	Create(ctx context.Context, model ...*T) error

	// Save inserts entities without identity and updates the others.
	Save(ctx context.Context, model ...*T) error

	// SaveOrUpdate upserts entities based on fields and duplicate keys.
	SaveOrUpdate(ctx context.Context, fields []string, duplicateKeys []string, model ...*T) error

	// Update modifies an existing entity.
	Update(ctx context.Context, model *T) error

	// Delete removes an entity by its identifier.
	Delete(ctx context.Context, id any) error

	// DeleteWhere removes the entities matching a non-empty filter.
	DeleteWhere(ctx context.Context, where filter.Expr) (int64, error)

	// SaveWithTx saves entities within an existing transaction.
	SaveWithTx(ctx context.Context, tx *database.Tx, model ...*T) error

	// SaveOrUpdateWithTx upserts entities within a transaction.
	SaveOrUpdateWithTx(ctx context.Context, tx *database.Tx, fields []string, duplicateKeys []string, model ...*T) error

	// UpdateWithTx updates an entity within a transaction.
	UpdateWithTx(ctx context.Context, tx *database.Tx, model *T) error

	// DeleteWithTx removes an entity within a transaction.
	DeleteWithTx(ctx context.Context, tx *database.Tx, id any) error

	// Transaction runs fn in a transaction that commits when fn returns nil.
	Transaction(ctx context.Context, fn func(ctx context.Context, tx *database.Tx) error) error

	// Repository returns the underlying repository.
	Repository() repository.Repository[T]
}

type baseServiceImpl[T any] struct {
	repo repository.Repository[T]
}

// NewService returns a Service delegating to repo.
func NewService[T any](repo repository.Repository[T]) Service[T] {
	return &baseServiceImpl[T]{repo: repo}
}

// NewServiceFor builds the repository for T on an opened database, using its
// batch policy and logger.
func NewServiceFor[T any](db *database.Database) Service[T] {
	return NewService(repository.NewRepository[T](db.Pool(),
		repository.WithBatch(db.Batch()),
		repository.WithLogger(db.Logger())))
}

func (s *baseServiceImpl[T]) Repository() repository.Repository[T] { return s.repo }

func (s *baseServiceImpl[T]) Get(ctx context.Context, id any) (*T, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *baseServiceImpl[T]) Find(ctx context.Context, id any) (*T, error) {
	return s.repo.FindByID(ctx, id)
}

func (s *baseServiceImpl[T]) All(ctx context.Context) ([]*T, error) {
	return s.repo.GetAll(ctx)
}

func (s *baseServiceImpl[T]) List(ctx context.Context, where filter.Expr, opts ...repository.QueryOption) ([]*T, error) {
	return s.repo.FindAll(ctx, where, opts...)
}

func (s *baseServiceImpl[T]) Count(ctx context.Context, where filter.Expr) (int64, error) {
	return s.repo.Count(ctx, where)
}

func (s *baseServiceImpl[T]) Page(ctx context.Context, page *repository.PageRequest) (*repository.Pagination[T], error) {
	return s.repo.Page(ctx, page)
}

func (s *baseServiceImpl[T]) Create(ctx context.Context, model ...*T) error {
	if len(model) == 1 {
		return s.repo.Insert(ctx, model[0])
	}
	return s.repo.InsertBatch(ctx, model)
}

func (s *baseServiceImpl[T]) Save(ctx context.Context, model ...*T) error {
	return s.SaveWithTx(ctx, nil, model...)
}

func (s *baseServiceImpl[T]) SaveOrUpdate(ctx context.Context, fields []string, duplicateKeys []string, model ...*T) error {
	return s.repo.Upsert(ctx, fields, duplicateKeys, model...)
}

func (s *baseServiceImpl[T]) Update(ctx context.Context, model *T) error {
	return s.repo.Update(ctx, model)
}

func (s *baseServiceImpl[T]) Delete(ctx context.Context, id any) error {
	return s.repo.DeleteByID(ctx, id)
}

func (s *baseServiceImpl[T]) DeleteWhere(ctx context.Context, where filter.Expr) (int64, error) {
	return s.repo.DeleteByFilter(ctx, where)
}

func (s *baseServiceImpl[T]) SaveWithTx(ctx context.Context, tx *database.Tx, model ...*T) error {
	if len(model) == 1 {
		return s.repo.SaveTx(ctx, tx, model[0])
	}
	return s.repo.SaveBatchTx(ctx, tx, model)
}

func (s *baseServiceImpl[T]) SaveOrUpdateWithTx(ctx context.Context, tx *database.Tx, fields []string, duplicateKeys []string, model ...*T) error {
	return s.repo.UpsertTx(ctx, tx, fields, duplicateKeys, model...)
}

func (s *baseServiceImpl[T]) UpdateWithTx(ctx context.Context, tx *database.Tx, model *T) error {
	return s.repo.UpdateTx(ctx, tx, model)
}

func (s *baseServiceImpl[T]) DeleteWithTx(ctx context.Context, tx *database.Tx, id any) error {
	return s.repo.DeleteByIDTx(ctx, tx, id)
}

func (s *baseServiceImpl[T]) Transaction(ctx context.Context, fn func(ctx context.Context, tx *database.Tx) error) error {
	return s.repo.WithTransaction(ctx, fn)
}
