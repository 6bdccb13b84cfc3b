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

package types

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is wrapped by RepositoryError when a target row does not exist.
	ErrNotFound = errors.New("record not found")

	// ErrEmptyFilter is returned when an operation refuses to run without a WHERE clause.
	ErrEmptyFilter = errors.New("filter has no conditions")

	// ErrTxDone is returned when a transaction is used after commit or rollback.
	ErrTxDone = errors.New("transaction has already been committed or rolled back")

	// ErrInvalidBatchSize is returned when a batch operator is built with a size below 1.
	ErrInvalidBatchSize = errors.New("batch size must be greater than zero")
)

// ConnectionError reports pool exhaustion, acquisition timeouts and network failures.
// The caller decides whether to retry.
type ConnectionError struct {
	Op  string
	Err error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("connection error: %s: %v", e.Op, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// QueryError carries a backend failure verbatim together with the statement that caused it.
type QueryError struct {
	Query string
	Err   error
}

func (e *QueryError) Error() string {
	return fmt.Sprintf("query error: %v", e.Err)
}

func (e *QueryError) Unwrap() error { return e.Err }

// RepositoryError is a domain-level failure such as a missing update target.
type RepositoryError struct {
	Message string
	Err     error
}

func (e *RepositoryError) Error() string {
	if e.Err == nil {
		return "repository error: " + e.Message
	}
	return fmt.Sprintf("repository error: %s: %v", e.Message, e.Err)
}

func (e *RepositoryError) Unwrap() error { return e.Err }

// NewRepositoryError builds a RepositoryError, optionally wrapping a cause.
func NewRepositoryError(message string, err error) *RepositoryError {
	return &RepositoryError{Message: message, Err: err}
}

// FilterError reports an invalid filter construction, e.g. an empty IN list.
type FilterError struct {
	Field   string
	Message string
}

func (e *FilterError) Error() string {
	if e.Field == "" {
		return "filter error: " + e.Message
	}
	return fmt.Sprintf("filter error: %s: %s", e.Field, e.Message)
}

// NewFilterError builds a FilterError for the given field.
func NewFilterError(field string, format string, args ...interface{}) *FilterError {
	return &FilterError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// BatchError wraps the first failing chunk of a batch and its zero-based index.
type BatchError struct {
	Index int
	Err   error
}

func (e *BatchError) Error() string {
	return fmt.Sprintf("batch chunk %d failed: %v", e.Index, e.Err)
}

func (e *BatchError) Unwrap() error { return e.Err }

// IsNotFound reports whether err carries ErrNotFound.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
