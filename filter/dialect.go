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

package filter

import (
	"strconv"
	"strings"
)

// Dialect is the backend capability the binder needs: how placeholders are
// spelled and whether ILIKE exists natively.
type Dialect interface {
	Name() string
	// Placeholder returns the marker for the 1-based parameter position.
	Placeholder(position int) string
	SupportsILike() bool
}

type postgresDialect struct{}

func (postgresDialect) Name() string             { return "postgres" }
func (postgresDialect) Placeholder(n int) string { return "$" + strconv.Itoa(n) }
func (postgresDialect) SupportsILike() bool      { return true }

type mysqlDialect struct{}

func (mysqlDialect) Name() string           { return "mysql" }
func (mysqlDialect) Placeholder(int) string { return "?" }
func (mysqlDialect) SupportsILike() bool    { return false }

type sqliteDialect struct{}

func (sqliteDialect) Name() string             { return "sqlite" }
func (sqliteDialect) Placeholder(n int) string { return "?" + strconv.Itoa(n) }
func (sqliteDialect) SupportsILike() bool      { return false }

type anyDialect struct{}

func (anyDialect) Name() string           { return "any" }
func (anyDialect) Placeholder(int) string { return "?" }
func (anyDialect) SupportsILike() bool    { return false }

type namedDialect struct {
	prefix string
}

func (d namedDialect) Name() string             { return "named" }
func (d namedDialect) Placeholder(n int) string { return d.prefix + strconv.Itoa(n) }
func (d namedDialect) SupportsILike() bool      { return false }

var (
	Postgres Dialect = postgresDialect{}
	MySQL    Dialect = mysqlDialect{}
	SQLite   Dialect = sqliteDialect{}
	// Any emits plain "?" markers and lowers ILIKE; it is the fallback when
	// the backend is ambiguous.
	Any Dialect = anyDialect{}
)

// Named returns a dialect emitting named markers such as "@p1" or ":p1".
func Named(prefix string) Dialect {
	if prefix == "" {
		prefix = "@p"
	}
	return namedDialect{prefix: prefix}
}

// LookupDialect resolves a backend name, accepting the aliases used by
// connection configuration ("postgresql", "sqlite3", ...).
func LookupDialect(name string) (Dialect, bool) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "postgres", "postgresql", "pg", "pgx", "pgdriver":
		return Postgres, true
	case "mysql", "mariadb":
		return MySQL, true
	case "sqlite", "sqlite3":
		return SQLite, true
	case "mssql", "sqlserver":
		return Named("@p"), true
	case "any":
		return Any, true
	}
	return nil, false
}
