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

package batch

import (
	"context"
	"sync"

	"github.com/tomoncle/sqlkit/types"
	"golang.org/x/sync/errgroup"
)

// DefaultSize is the chunk size used when none is configured.
const DefaultSize = 256

// Logger receives per-chunk debug output. database.Logger satisfies it.
type Logger interface {
	Debug(msg string, fields ...interface{})
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...interface{}) {}

// Operator holds a validated chunk size and the execution policy.
type Operator struct {
	size        int
	concurrency int
	logger      Logger
}

// Option configures an Operator.
type Option func(*Operator)

// WithConcurrency lets up to n chunks run at once. It only makes sense for
// standalone batches; a batch sharing one transaction must stay sequential.
func WithConcurrency(n int) Option {
	return func(o *Operator) {
		if n > 1 {
			o.concurrency = n
		}
	}
}

// WithLogger sets the logger used for per-chunk debug output.
func WithLogger(l Logger) Option {
	return func(o *Operator) {
		if l != nil {
			o.logger = l
		}
	}
}

// New validates size and returns an operator. Size must be at least 1.
func New(size int, opts ...Option) (*Operator, error) {
	if size < 1 {
		return nil, types.ErrInvalidBatchSize
	}
	o := &Operator{size: size, concurrency: 1, logger: nopLogger{}}
	for _, opt := range opts {
		opt(o)
	}
	return o, nil
}

// MustNew is like New but panics on an invalid size.
func MustNew(size int, opts ...Option) *Operator {
	o, err := New(size, opts...)
	if err != nil {
		panic(err)
	}
	return o
}

// Size returns the chunk size.
func (o *Operator) Size() int { return o.size }

// Concurrency returns how many chunks may run at once.
func (o *Operator) Concurrency() int { return o.concurrency }

// Sequential returns a copy of o that runs one chunk at a time.
func (o *Operator) Sequential() *Operator {
	if o.concurrency == 1 {
		return o
	}
	cp := *o
	cp.concurrency = 1
	return &cp
}

// Count returns the number of chunks for n items.
func (o *Operator) Count(n int) int {
	return (n + o.size - 1) / o.size
}

// Chunks partitions items into consecutive slices of at most op.Size()
// elements. The slices share items' backing array.
func Chunks[T any](op *Operator, items []T) [][]T {
	if len(items) == 0 {
		return nil
	}
	out := make([][]T, 0, op.Count(len(items)))
	for start := 0; start < len(items); start += op.size {
		end := min(start+op.size, len(items))
		out = append(out, items[start:end:end])
	}
	return out
}

// Run calls fn once per chunk and concatenates the results in input order.
// The first failing chunk stops the batch and is returned as a *BatchError.
// An empty input never calls fn.
func Run[T, R any](ctx context.Context, op *Operator, items []T, fn func(ctx context.Context, chunk []T) ([]R, error)) ([]R, error) {
	chunks := Chunks(op, items)
	if len(chunks) == 0 {
		return []R{}, nil
	}
	results := make([][]R, len(chunks))
	call := func(ctx context.Context, i int) error {
		op.logger.Debug("running batch chunk", "chunk", i, "chunks", len(chunks), "items", len(chunks[i]))
		out, err := fn(ctx, chunks[i])
		if err != nil {
			return err
		}
		results[i] = out
		return nil
	}

	if op.concurrency <= 1 || len(chunks) == 1 {
		for i := range chunks {
			if err := ctx.Err(); err != nil {
				return nil, &types.BatchError{Index: i, Err: err}
			}
			if err := call(ctx, i); err != nil {
				return nil, &types.BatchError{Index: i, Err: err}
			}
		}
	} else if err := runConcurrent(ctx, op.concurrency, len(chunks), call); err != nil {
		return nil, err
	}

	total := 0
	for _, r := range results {
		total += len(r)
	}
	out := make([]R, 0, total)
	for _, r := range results {
		out = append(out, r...)
	}
	return out, nil
}

// runConcurrent reports the chunk that failed first in time. Later failures
// caused by the shared cancellation are ignored. A cancellation that arrives
// after every chunk has run does not fail the batch.
func runConcurrent(ctx context.Context, limit, n int, call func(context.Context, int) error) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)

	var (
		once  sync.Once
		first *types.BatchError
	)
	next := n
	for i := 0; i < n; i++ {
		if gctx.Err() != nil {
			next = i
			break
		}
		g.Go(func() error {
			err := gctx.Err()
			if err == nil {
				err = call(gctx, i)
			}
			if err != nil {
				once.Do(func() { first = &types.BatchError{Index: i, Err: err} })
			}
			return err
		})
	}
	_ = g.Wait()
	if first != nil {
		return first
	}
	if next < n {
		return &types.BatchError{Index: next, Err: ctx.Err()}
	}
	return nil
}

// Each is Run for operations without per-chunk results.
func Each[T any](ctx context.Context, op *Operator, items []T, fn func(ctx context.Context, chunk []T) error) error {
	_, err := Run(ctx, op, items, func(ctx context.Context, chunk []T) ([]struct{}, error) {
		return nil, fn(ctx, chunk)
	})
	return err
}

// Partition splits items by pred, keeping the relative order in both halves.
func Partition[T any](items []T, pred func(T) bool) (matched, rest []T) {
	for _, it := range items {
		if pred(it) {
			matched = append(matched, it)
		} else {
			rest = append(rest, it)
		}
	}
	return matched, rest
}
