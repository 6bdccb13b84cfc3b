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
	"database/sql/driver"
	"errors"
	"net"
	"strings"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
	"github.com/tomoncle/sqlkit/types"
	"github.com/uptrace/bun/driver/pgdriver"
)

// SQLError is a coarse kind for backend errors, independent of the driver.
type SQLError int

const (
	UnknownErr SQLError = iota
	NoRowsErr
	NoIndexErr
	NoColumnErr
	ExistIndexErr
	ExistColumnErr
	NoTableErr
	ExistTableErr
	DuplicateKeyErr
	NotNullViolationErr
	ForeignKeyViolationErr
	CheckConstraintViolationErr
	DataTruncatedErr
	InvalidTypeCastErr
)

func (e SQLError) String() string {
	switch e {
	case NoRowsErr:
		return "no rows"
	case NoIndexErr:
		return "no index"
	case NoColumnErr:
		return "no column"
	case ExistIndexErr:
		return "index exists"
	case ExistColumnErr:
		return "column exists"
	case NoTableErr:
		return "no table"
	case ExistTableErr:
		return "table exists"
	case DuplicateKeyErr:
		return "duplicate key"
	case NotNullViolationErr:
		return "not null violation"
	case ForeignKeyViolationErr:
		return "foreign key violation"
	case CheckConstraintViolationErr:
		return "check constraint violation"
	case DataTruncatedErr:
		return "data truncated"
	case InvalidTypeCastErr:
		return "invalid type cast"
	}
	return "unknown"
}

// sqlStateKinds maps postgres SQLSTATE codes shared by pq, pgx and pgdriver.
var sqlStateKinds = map[string]SQLError{
	"42703": NoColumnErr,
	"42704": NoIndexErr,
	"42P01": NoTableErr,
	"42P07": ExistTableErr,
	"42701": ExistColumnErr,
	"23505": DuplicateKeyErr,
	"23502": NotNullViolationErr,
	"23503": ForeignKeyViolationErr,
	"23514": CheckConstraintViolationErr,
	"22001": DataTruncatedErr,
	"42804": InvalidTypeCastErr,
	"22P02": InvalidTypeCastErr,
}

// IsSqlError reports whether err came from the backend and which kind it is.
// Typed driver errors are matched first; sqlite and wrapped errors fall back
// to message inspection.
func IsSqlError(err error) (is bool, sqlErr SQLError) {
	if err == nil {
		return false, UnknownErr
	}
	if errors.Is(err, sql.ErrNoRows) {
		return true, NoRowsErr
	}
	if code, ok := sqlState(err); ok {
		if kind, known := sqlStateKinds[code]; known {
			return true, kind
		}
		return true, UnknownErr
	}
	var mysqlErr *mysql.MySQLError
	if errors.As(err, &mysqlErr) {
		switch mysqlErr.Number {
		case 1091:
			return true, NoIndexErr
		case 1054:
			return true, NoColumnErr
		case 1061:
			return true, ExistIndexErr
		case 1060:
			return true, ExistColumnErr
		case 1062:
			return true, DuplicateKeyErr
		case 1048:
			return true, NotNullViolationErr
		case 1216, 1217:
			return true, ForeignKeyViolationErr
		case 3819:
			return true, CheckConstraintViolationErr
		case 1265:
			return true, DataTruncatedErr
		case 1146:
			return true, NoTableErr
		case 1050:
			return true, ExistTableErr
		default:
			return true, UnknownErr
		}
	}
	s := strings.ToLower(err.Error())
	if strings.Contains(s, "sqlstate 42703") ||
		strings.Contains(s, "undefined column") ||
		strings.Contains(s, "no such column") {
		return true, NoColumnErr
	}
	if strings.Contains(s, "sqlstate 42704") ||
		strings.Contains(s, "no such index") ||
		(strings.Contains(s, "does not exist") && strings.Contains(s, "index")) {
		return true, NoIndexErr
	}
	if strings.Contains(s, "sqlstate 42p01") ||
		strings.Contains(s, "undefined table") ||
		strings.Contains(s, "no such table") {
		return true, NoTableErr
	}
	if strings.Contains(s, "already exists") &&
		strings.Contains(s, "index") {
		return true, ExistIndexErr
	}
	if strings.Contains(s, "already exists") &&
		strings.Contains(s, "table") ||
		strings.Contains(s, "relation") &&
			strings.Contains(s, "already exists") {
		return true, ExistTableErr
	}
	if strings.Contains(s, "duplicate key value") ||
		strings.Contains(s, "unique constraint failed") ||
		strings.Contains(s, "sqlstate 23505") {
		return true, DuplicateKeyErr
	}
	if strings.Contains(s, "not-null constraint") ||
		strings.Contains(s, "sqlstate 23502") ||
		strings.Contains(s, "not null constraint failed") {
		return true, NotNullViolationErr
	}
	if strings.Contains(s, "foreign key violation") ||
		strings.Contains(s, "foreign key constraint failed") ||
		strings.Contains(s, "sqlstate 23503") {
		return true, ForeignKeyViolationErr
	}
	if strings.Contains(s, "check constraint") ||
		strings.Contains(s, "sqlstate 23514") {
		return true, CheckConstraintViolationErr
	}
	if strings.Contains(s, "string data right truncation") ||
		strings.Contains(s, "sqlstate 22001") ||
		strings.Contains(s, "data truncated") {
		return true, DataTruncatedErr
	}
	if strings.Contains(s, "datatype mismatch") ||
		strings.Contains(s, "sqlstate 42804") {
		return true, InvalidTypeCastErr
	}
	return false, UnknownErr
}

func sqlState(err error) (string, bool) {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return string(pqErr.Code), true
	}
	var pgxErr *pgconn.PgError
	if errors.As(err, &pgxErr) {
		return pgxErr.Code, true
	}
	var pgdErr pgdriver.Error
	if errors.As(err, &pgdErr) {
		return pgdErr.Field('C'), true
	}
	return "", false
}

// Classify tags a driver error. Lost connections, network failures and
// context expiry become ConnectionError; anything else the backend returned is
// a QueryError carrying the original error. Already tagged errors pass through.
func Classify(op, query string, err error) error {
	if err == nil {
		return nil
	}
	var (
		connErr  *types.ConnectionError
		queryErr *types.QueryError
		netErr   net.Error
	)
	switch {
	case errors.As(err, &connErr), errors.As(err, &queryErr):
		return err
	case errors.Is(err, driver.ErrBadConn),
		errors.Is(err, sql.ErrConnDone),
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded),
		errors.As(err, &netErr):
		return &types.ConnectionError{Op: op, Err: err}
	}
	return &types.QueryError{Query: query, Err: err}
}
