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
	"fmt"
	"reflect"

	"github.com/tomoncle/sqlkit/batch"
	"github.com/tomoncle/sqlkit/database"
	"github.com/tomoncle/sqlkit/filter"
	"github.com/tomoncle/sqlkit/types"
	"github.com/uptrace/bun/dialect/feature"
	"github.com/uptrace/bun/schema"
)

// Option configures a repository.
type Option func(*options)

type options struct {
	batch  *batch.Operator
	logger database.Logger
}

// WithBatch sets the chunking used by batch operations.
func WithBatch(op *batch.Operator) Option {
	return func(o *options) { o.batch = op }
}

// WithLogger overrides the pool logger.
func WithLogger(l database.Logger) Option {
	return func(o *options) { o.logger = l }
}

type baseRepositoryImpl[T any] struct {
	pool   database.Pool
	table  *schema.Table
	stmts  statements
	batch  *batch.Operator
	logger database.Logger
}

// NewRepository returns a generic repository for the model T, which must be a
// struct registered with bun.
func NewRepository[T any](pool database.Pool, opts ...Option) Repository[T] {
	o := options{logger: pool.Logger()}
	for _, opt := range opts {
		opt(&o)
	}
	if o.batch == nil {
		o.batch = batch.MustNew(batch.DefaultSize)
	}
	if o.logger == nil {
		o.logger = database.GetLogger()
	}
	table := pool.Table(reflect.TypeOf((*T)(nil)).Elem())
	return &baseRepositoryImpl[T]{
		pool:   pool,
		table:  table,
		stmts:  statements{table: table, dialect: pool.Dialect()},
		batch:  o.batch,
		logger: o.logger,
	}
}

func (r *baseRepositoryImpl[T]) Table() *schema.Table { return r.table }

func (r *baseRepositoryImpl[T]) Dialect() filter.Dialect { return r.stmts.dialect }

// run hands fn the caller's transaction, or one pooled connection held for
// the duration of the call.
func (r *baseRepositoryImpl[T]) run(ctx context.Context, tx *database.Tx, fn func(ctx context.Context, exec database.Executor) error) error {
	if tx != nil {
		if !tx.Active() {
			return types.ErrTxDone
		}
		return fn(ctx, tx)
	}
	exec, release, err := r.pool.Acquire(ctx)
	if err != nil {
		return err
	}
	defer release()
	return fn(ctx, exec)
}

func (r *baseRepositoryImpl[T]) row(entity *T) (reflect.Value, error) {
	if entity == nil {
		return reflect.Value{}, types.NewRepositoryError("nil "+r.table.Name, nil)
	}
	return reflect.ValueOf(entity).Elem(), nil
}

func (r *baseRepositoryImpl[T]) rows(entities []*T) ([]reflect.Value, error) {
	out := make([]reflect.Value, len(entities))
	for i, e := range entities {
		v, err := r.row(e)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func (r *baseRepositoryImpl[T]) notFound(what string) error {
	return types.NewRepositoryError(fmt.Sprintf("%s %s", r.table.Name, what), types.ErrNotFound)
}

// hasIdentity reports whether entity was persisted before: Identifiable
// decides when implemented, otherwise every primary key must be non-zero.
func (r *baseRepositoryImpl[T]) hasIdentity(entity *T) bool {
	if id, ok := any(entity).(Identifiable); ok {
		_, present := id.PrimaryKey()
		return present
	}
	if len(r.table.PKs) == 0 {
		return false
	}
	v := reflect.ValueOf(entity).Elem()
	for _, pk := range r.table.PKs {
		if pk.HasZeroValue(v) {
			return false
		}
	}
	return true
}

// returnsKeys reports whether an insert of row should read back generated
// primary keys.
func (r *baseRepositoryImpl[T]) returnsKeys(row reflect.Value) bool {
	if len(r.table.PKs) == 0 || !r.pool.HasFeature(feature.InsertReturning) {
		return false
	}
	for _, pk := range r.table.PKs {
		if (pk.AutoIncrement || pk.Identity) && pk.HasZeroValue(row) {
			return true
		}
	}
	return false
}

// Insert

func (r *baseRepositoryImpl[T]) Insert(ctx context.Context, entity *T) error {
	return r.InsertTx(ctx, nil, entity)
}

func (r *baseRepositoryImpl[T]) InsertTx(ctx context.Context, tx *database.Tx, entity *T) error {
	row, err := r.row(entity)
	if err != nil {
		return err
	}
	return r.run(ctx, tx, func(ctx context.Context, exec database.Executor) error {
		return r.insert(ctx, exec, entity, row)
	})
}

func (r *baseRepositoryImpl[T]) insert(ctx context.Context, exec database.Executor, entity *T, row reflect.Value) error {
	query, args := r.stmts.insertSQL(insertGroup{fields: r.stmts.insertColumns(row), rows: []reflect.Value{row}})
	if r.returnsKeys(row) {
		return exec.Fetch(ctx, entity, query+r.stmts.returningPKs(), args...)
	}
	_, err := exec.Exec(ctx, query, args...)
	return err
}

// Update

func (r *baseRepositoryImpl[T]) Update(ctx context.Context, entity *T) error {
	return r.UpdateTx(ctx, nil, entity)
}

func (r *baseRepositoryImpl[T]) UpdateTx(ctx context.Context, tx *database.Tx, entity *T) error {
	row, err := r.row(entity)
	if err != nil {
		return err
	}
	return r.run(ctx, tx, func(ctx context.Context, exec database.Executor) error {
		return r.update(ctx, exec, row)
	})
}

func (r *baseRepositoryImpl[T]) update(ctx context.Context, exec database.Executor, row reflect.Value) error {
	query, args, err := r.stmts.updateSQL(row)
	if err != nil {
		return err
	}
	n, err := exec.Exec(ctx, query, args...)
	if err != nil {
		return err
	}
	if n == 0 {
		return r.notFound("to update does not exist")
	}
	return nil
}

// Save

func (r *baseRepositoryImpl[T]) Save(ctx context.Context, entity *T) error {
	return r.SaveTx(ctx, nil, entity)
}

func (r *baseRepositoryImpl[T]) SaveTx(ctx context.Context, tx *database.Tx, entity *T) error {
	if entity != nil && r.hasIdentity(entity) {
		return r.UpdateTx(ctx, tx, entity)
	}
	return r.InsertTx(ctx, tx, entity)
}

// Delete

func (r *baseRepositoryImpl[T]) Delete(ctx context.Context, entity *T) error {
	return r.DeleteTx(ctx, nil, entity)
}

func (r *baseRepositoryImpl[T]) DeleteTx(ctx context.Context, tx *database.Tx, entity *T) error {
	row, err := r.row(entity)
	if err != nil {
		return err
	}
	if len(r.table.PKs) == 0 {
		return types.NewRepositoryError(r.table.Name+" has no primary key", nil)
	}
	return r.deleteOne(ctx, tx, r.stmts.pkExpr(row))
}

func (r *baseRepositoryImpl[T]) DeleteByID(ctx context.Context, id any) error {
	return r.DeleteByIDTx(ctx, nil, id)
}

func (r *baseRepositoryImpl[T]) DeleteByIDTx(ctx context.Context, tx *database.Tx, id any) error {
	where, err := r.stmts.idExpr(id)
	if err != nil {
		return err
	}
	return r.deleteOne(ctx, tx, where)
}

func (r *baseRepositoryImpl[T]) deleteOne(ctx context.Context, tx *database.Tx, where filter.Expr) error {
	n, err := r.DeleteByFilterTx(ctx, tx, where)
	if err != nil {
		return err
	}
	if n == 0 {
		return r.notFound("to delete does not exist")
	}
	return nil
}

func (r *baseRepositoryImpl[T]) DeleteByFilter(ctx context.Context, where filter.Expr) (int64, error) {
	return r.DeleteByFilterTx(ctx, nil, where)
}

func (r *baseRepositoryImpl[T]) DeleteByFilterTx(ctx context.Context, tx *database.Tx, where filter.Expr) (int64, error) {
	query, args, err := r.stmts.deleteSQL(where)
	if err != nil {
		return 0, err
	}
	var n int64
	err = r.run(ctx, tx, func(ctx context.Context, exec database.Executor) error {
		n, err = exec.Exec(ctx, query, args...)
		return err
	})
	return n, err
}

// Select

func (r *baseRepositoryImpl[T]) GetByID(ctx context.Context, id any) (*T, error) {
	return r.GetByIDTx(ctx, nil, id)
}

func (r *baseRepositoryImpl[T]) GetByIDTx(ctx context.Context, tx *database.Tx, id any) (*T, error) {
	entity, err := r.FindByIDTx(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if entity == nil {
		return nil, r.notFound(fmt.Sprintf("with id %v does not exist", id))
	}
	return entity, nil
}

func (r *baseRepositoryImpl[T]) FindByID(ctx context.Context, id any) (*T, error) {
	return r.FindByIDTx(ctx, nil, id)
}

func (r *baseRepositoryImpl[T]) FindByIDTx(ctx context.Context, tx *database.Tx, id any) (*T, error) {
	where, err := r.stmts.idExpr(id)
	if err != nil {
		return nil, err
	}
	return r.FindOptionalTx(ctx, tx, where)
}

func (r *baseRepositoryImpl[T]) GetAll(ctx context.Context) ([]*T, error) {
	return r.GetAllTx(ctx, nil)
}

func (r *baseRepositoryImpl[T]) GetAllTx(ctx context.Context, tx *database.Tx) ([]*T, error) {
	return r.FindAllTx(ctx, tx, nil)
}

func (r *baseRepositoryImpl[T]) FindAll(ctx context.Context, where filter.Expr, opts ...QueryOption) ([]*T, error) {
	return r.FindAllTx(ctx, nil, where, opts...)
}

func (r *baseRepositoryImpl[T]) FindAllTx(ctx context.Context, tx *database.Tx, where filter.Expr, opts ...QueryOption) ([]*T, error) {
	var entities []*T
	err := r.run(ctx, tx, func(ctx context.Context, exec database.Executor) error {
		var err error
		entities, err = r.find(ctx, exec, where, opts)
		return err
	})
	if err != nil {
		return nil, err
	}
	return entities, nil
}

func (r *baseRepositoryImpl[T]) find(ctx context.Context, exec database.Executor, where filter.Expr, opts []QueryOption) ([]*T, error) {
	query, args, err := r.stmts.selectSQL(where, opts)
	if err != nil {
		return nil, err
	}
	entities := make([]*T, 0)
	if err := exec.Fetch(ctx, &entities, query, args...); err != nil {
		return nil, err
	}
	return entities, nil
}

func (r *baseRepositoryImpl[T]) FindOne(ctx context.Context, where filter.Expr, opts ...QueryOption) (*T, error) {
	return r.FindOneTx(ctx, nil, where, opts...)
}

func (r *baseRepositoryImpl[T]) FindOneTx(ctx context.Context, tx *database.Tx, where filter.Expr, opts ...QueryOption) (*T, error) {
	entity, err := r.FindOptionalTx(ctx, tx, where, opts...)
	if err != nil {
		return nil, err
	}
	if entity == nil {
		return nil, r.notFound("matching the filter does not exist")
	}
	return entity, nil
}

func (r *baseRepositoryImpl[T]) FindOptional(ctx context.Context, where filter.Expr, opts ...QueryOption) (*T, error) {
	return r.FindOptionalTx(ctx, nil, where, opts...)
}

func (r *baseRepositoryImpl[T]) FindOptionalTx(ctx context.Context, tx *database.Tx, where filter.Expr, opts ...QueryOption) (*T, error) {
	entities, err := r.FindAllTx(ctx, tx, where, append(opts[:len(opts):len(opts)], Limit(1))...)
	if err != nil || len(entities) == 0 {
		return nil, err
	}
	return entities[0], nil
}

func (r *baseRepositoryImpl[T]) Count(ctx context.Context, where filter.Expr) (int64, error) {
	return r.CountTx(ctx, nil, where)
}

func (r *baseRepositoryImpl[T]) CountTx(ctx context.Context, tx *database.Tx, where filter.Expr) (int64, error) {
	var total int64
	err := r.run(ctx, tx, func(ctx context.Context, exec database.Executor) error {
		var err error
		total, err = r.count(ctx, exec, where)
		return err
	})
	return total, err
}

func (r *baseRepositoryImpl[T]) count(ctx context.Context, exec database.Executor, where filter.Expr) (int64, error) {
	query, args, err := r.stmts.countSQL(where)
	if err != nil {
		return 0, err
	}
	var total int64
	if err := exec.Fetch(ctx, &total, query, args...); err != nil {
		return 0, err
	}
	return total, nil
}

// Page

func (r *baseRepositoryImpl[T]) Page(ctx context.Context, page *PageRequest) (*Pagination[T], error) {
	return r.PageTx(ctx, nil, page)
}

func (r *baseRepositoryImpl[T]) PageTx(ctx context.Context, tx *database.Tx, page *PageRequest) (*Pagination[T], error) {
	if page == nil {
		page = NewDefaultPageRequest(1, 0)
	}
	pagination := NewDefaultPagination[T](page.GetPage(), page.GetPageSize())
	err := r.run(ctx, tx, func(ctx context.Context, exec database.Executor) error {
		total, err := r.count(ctx, exec, page.GetFilter())
		if err != nil || total == 0 {
			return err
		}
		items, err := r.find(ctx, exec, page.GetFilter(), []QueryOption{
			OrderBy(page.GetOrders()...),
			Limit(page.GetPageSize()),
			Offset(page.GetOffset()),
		})
		if err != nil {
			return err
		}
		pagination.Total = total
		pagination.Items = items
		return nil
	})
	if err != nil {
		return nil, err
	}
	return pagination, nil
}

// Upsert

func (r *baseRepositoryImpl[T]) Upsert(ctx context.Context, fields []string, conflictKeys []string, entities ...*T) error {
	return r.UpsertTx(ctx, nil, fields, conflictKeys, entities...)
}

func (r *baseRepositoryImpl[T]) UpsertTx(ctx context.Context, tx *database.Tx, fields []string, conflictKeys []string, entities ...*T) error {
	if len(fields) == 0 {
		return types.NewRepositoryError("upsert fields cannot be empty", nil)
	}
	if len(entities) == 0 {
		return nil
	}
	sets, err := r.stmts.resolveColumns(fields)
	if err != nil {
		return err
	}
	keys := r.stmts.pkNames()
	if len(conflictKeys) > 0 {
		if keys, err = r.stmts.resolveColumns(conflictKeys); err != nil {
			return err
		}
	}
	rows, err := r.rows(entities)
	if err != nil {
		return err
	}

	onConflict := r.pool.HasFeature(feature.InsertOnConflict)
	if !onConflict && !r.pool.HasFeature(feature.InsertOnDuplicateKey) {
		r.logger.Debug("Upsert falls back to save", "table", r.table.Name, "rows", len(entities))
		return r.SaveBatchTx(ctx, tx, entities)
	}
	if onConflict && len(keys) == 0 {
		return types.NewRepositoryError(r.table.Name+" upsert needs conflict keys", nil)
	}
	suffix := r.stmts.upsertSuffix(onConflict, sets, keys)
	return database.Reuse(ctx, r.pool, tx, func(ctx context.Context, tx *database.Tx) error {
		return batch.Each(ctx, r.batch.Sequential(), rows, func(ctx context.Context, chunk []reflect.Value) error {
			for _, g := range r.stmts.groupInsertRows(chunk) {
				query, args := r.stmts.insertSQL(g)
				if _, err := tx.Exec(ctx, query+suffix, args...); err != nil {
					return err
				}
			}
			return nil
		})
	})
}

// Batch

func (r *baseRepositoryImpl[T]) InsertBatch(ctx context.Context, entities []*T) error {
	return r.InsertBatchTx(ctx, nil, entities)
}

// InsertBatchTx writes one multi-row INSERT per run of rows sharing the same
// columns. Generated keys are not read back.
func (r *baseRepositoryImpl[T]) InsertBatchTx(ctx context.Context, tx *database.Tx, entities []*T) error {
	if len(entities) == 0 {
		return nil
	}
	rows, err := r.rows(entities)
	if err != nil {
		return err
	}
	r.logger.Debug("Batch insert", "table", r.table.Name, "rows", len(rows), "chunks", r.batch.Count(len(rows)))
	return database.Reuse(ctx, r.pool, tx, func(ctx context.Context, tx *database.Tx) error {
		return batch.Each(ctx, r.batch.Sequential(), rows, func(ctx context.Context, chunk []reflect.Value) error {
			for _, g := range r.stmts.groupInsertRows(chunk) {
				query, args := r.stmts.insertSQL(g)
				if _, err := tx.Exec(ctx, query, args...); err != nil {
					return err
				}
			}
			return nil
		})
	})
}

func (r *baseRepositoryImpl[T]) UpdateBatch(ctx context.Context, entities []*T) error {
	return r.UpdateBatchTx(ctx, nil, entities)
}

func (r *baseRepositoryImpl[T]) UpdateBatchTx(ctx context.Context, tx *database.Tx, entities []*T) error {
	if len(entities) == 0 {
		return nil
	}
	rows, err := r.rows(entities)
	if err != nil {
		return err
	}
	r.logger.Debug("Batch update", "table", r.table.Name, "rows", len(rows), "chunks", r.batch.Count(len(rows)))
	return database.Reuse(ctx, r.pool, tx, func(ctx context.Context, tx *database.Tx) error {
		return batch.Each(ctx, r.batch.Sequential(), rows, func(ctx context.Context, chunk []reflect.Value) error {
			for _, row := range chunk {
				if err := r.update(ctx, tx, row); err != nil {
					return err
				}
			}
			return nil
		})
	})
}

func (r *baseRepositoryImpl[T]) SaveBatch(ctx context.Context, entities []*T) error {
	return r.SaveBatchTx(ctx, nil, entities)
}

// SaveBatchTx inserts the entities without identity and updates the rest,
// all in one transaction.
func (r *baseRepositoryImpl[T]) SaveBatchTx(ctx context.Context, tx *database.Tx, entities []*T) error {
	if len(entities) == 0 {
		return nil
	}
	if _, err := r.rows(entities); err != nil {
		return err
	}
	inserts, updates := batch.Partition(entities, func(e *T) bool { return !r.hasIdentity(e) })
	return database.Reuse(ctx, r.pool, tx, func(ctx context.Context, tx *database.Tx) error {
		if err := r.InsertBatchTx(ctx, tx, inserts); err != nil {
			return err
		}
		return r.UpdateBatchTx(ctx, tx, updates)
	})
}

func (r *baseRepositoryImpl[T]) DeleteBatchByID(ctx context.Context, ids []any) (int64, error) {
	return r.DeleteBatchByIDTx(ctx, nil, ids)
}

func (r *baseRepositoryImpl[T]) DeleteBatchByIDTx(ctx context.Context, tx *database.Tx, ids []any) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	var total int64
	err := database.Reuse(ctx, r.pool, tx, func(ctx context.Context, tx *database.Tx) error {
		counts, err := batch.Run(ctx, r.batch.Sequential(), ids, func(ctx context.Context, chunk []any) ([]int64, error) {
			where, err := r.stmts.idsExpr(chunk)
			if err != nil {
				return nil, err
			}
			n, err := r.DeleteByFilterTx(ctx, tx, where)
			if err != nil {
				return nil, err
			}
			return []int64{n}, nil
		})
		for _, n := range counts {
			total += n
		}
		return err
	})
	if err != nil {
		return 0, err
	}
	return total, nil
}

// Transaction

func (r *baseRepositoryImpl[T]) WithTransaction(ctx context.Context, fn func(ctx context.Context, tx *database.Tx) error) error {
	return database.RunInTx(ctx, r.pool, fn)
}
