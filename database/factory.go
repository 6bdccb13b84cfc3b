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
	"os"
	"time"

	"github.com/tomoncle/sqlkit/batch"
	"github.com/tomoncle/sqlkit/filter"
	"github.com/uptrace/bun"
)

// Database is an open connection pool together with the executor pool and
// batch policy derived from its configuration. Create one with Open and pass
// it to repositories; nothing is kept in package globals.
type Database struct {
	config  *Config
	manager AbstractDatabaseManager
	pool    *BunPool
	batch   *batch.Operator
	logger  Logger
}

// Option configures Open.
type Option func(*openOptions)

type openOptions struct {
	logger Logger
	hooks  []StatementHook
	models *ModelRegistry
	env    bool
}

// WithLogger sets the logger shared by the manager, pool and transactions.
func WithLogger(l Logger) Option {
	return func(o *openOptions) { o.logger = l }
}

// WithHook adds a statement hook to the pool.
func WithHook(h StatementHook) Option {
	return func(o *openOptions) { o.hooks = append(o.hooks, h) }
}

// WithModels registers bun models when the database opens.
func WithModels(r *ModelRegistry) Option {
	return func(o *openOptions) { o.models = r }
}

// WithoutEnv disables DB_* environment overrides.
func WithoutEnv() Option {
	return func(o *openOptions) { o.env = false }
}

// Open validates cfg, connects, and resolves the placeholder dialect.
func Open(ctx context.Context, cfg *Config, opts ...Option) (*Database, error) {
	if cfg == nil {
		return nil, fmt.Errorf("database configuration cannot be empty")
	}
	o := openOptions{env: true}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = GetLogger()
	}

	// Override sensitive config from environment variables
	if o.env {
		ApplyEnv(cfg)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	conn := &cfg.ConnectionConfig

	dialect, err := ResolveDialect(conn.DialectNames(), o.logger)
	if err != nil {
		return nil, err
	}
	ops, err := batch.New(cfg.BatchConfig.Size,
		batch.WithConcurrency(cfg.BatchConfig.Concurrency),
		batch.WithLogger(o.logger))
	if err != nil {
		return nil, err
	}

	manager := NewDatabaseManager(conn, o.logger)
	if err := manager.Connect(ctx); err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if o.models != nil {
		if err := o.models.Apply(manager.GetDB(), o.logger); err != nil {
			_ = manager.Disconnect()
			return nil, err
		}
	}

	poolOpts := []PoolOption{
		WithDialect(dialect),
		WithAcquireTimeout(conn.AcquireTimeout),
		WithPoolLogger(o.logger),
	}
	if conn.EnableQueryLog {
		poolOpts = append(poolOpts, WithStatementHook(NewQueryLogHook(os.Stdout, true)))
	}
	if conn.SlowQueryTime > 0 {
		poolOpts = append(poolOpts, WithStatementHook(NewSlowQueryHook(conn.SlowQueryTime, o.logger, nil)))
	}
	for _, h := range o.hooks {
		poolOpts = append(poolOpts, WithStatementHook(h))
	}

	d := &Database{
		config:  cfg,
		manager: manager,
		pool:    newBunPool(manager.GetDB, poolOpts...),
		batch:   ops,
		logger:  o.logger,
	}
	o.logger.Info("Database initialization completed!", "type", conn.Type, "dialect", dialect.Name())
	return d, nil
}

// Config returns the configuration the database was opened with.
func (d *Database) Config() *Config { return d.config }

// Pool returns the executor pool.
func (d *Database) Pool() *BunPool { return d.pool }

// Dialect returns the resolved placeholder dialect.
func (d *Database) Dialect() filter.Dialect { return d.pool.Dialect() }

// Batch returns the configured batch operator.
func (d *Database) Batch() *batch.Operator { return d.batch }

// Manager returns the underlying database manager.
func (d *Database) Manager() AbstractDatabaseManager { return d.manager }

// DB returns the Bun database instance, or nil after Close.
func (d *Database) DB() *bun.DB { return d.manager.GetDB() }

// Logger returns the logger shared by the database components.
func (d *Database) Logger() Logger { return d.logger }

// Health returns the current database health status.
func (d *Database) Health(ctx context.Context) *HealthStatus {
	if d.manager == nil {
		return &HealthStatus{
			Healthy:       false,
			Connected:     false,
			LastError:     "Database manager not initialized",
			LastCheckTime: time.Now(),
		}
	}
	return d.manager.HealthCheck(ctx)
}

// Stats returns connection statistics.
func (d *Database) Stats() *DBStats {
	if d.manager == nil {
		return &DBStats{}
	}
	return d.manager.GetStats()
}

// RunInTx runs fn in a transaction on this database's pool.
func (d *Database) RunInTx(ctx context.Context, fn func(ctx context.Context, tx *Tx) error, opts ...TxOption) error {
	return RunInTx(ctx, d.pool, fn, opts...)
}

// Close closes the connection pool.
func (d *Database) Close() error {
	if d.manager == nil {
		return nil
	}
	return d.manager.Disconnect()
}
