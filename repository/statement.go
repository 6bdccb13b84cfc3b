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
	"fmt"
	"reflect"
	"strconv"
	"strings"

	"github.com/tomoncle/sqlkit/filter"
	"github.com/tomoncle/sqlkit/types"
	"github.com/uptrace/bun/schema"
)

// QueryOption adjusts a select.
type QueryOption func(*queryOptions)

type queryOptions struct {
	orders []string
	limit  int
	offset int
}

// OrderBy appends ORDER BY terms such as "name DESC".
func OrderBy(terms ...string) QueryOption {
	return func(o *queryOptions) { o.orders = append(o.orders, terms...) }
}

// Limit caps the number of rows.
func Limit(n int) QueryOption {
	return func(o *queryOptions) { o.limit = n }
}

// Offset skips rows.
func Offset(n int) QueryOption {
	return func(o *queryOptions) { o.offset = n }
}

// statements renders the SQL for one table in one dialect. Column values
// travel as parameters; only identifiers and integers are inlined.
type statements struct {
	table   *schema.Table
	dialect filter.Dialect
}

type params struct {
	dialect filter.Dialect
	args    []any
}

func (p *params) add(v any) string {
	p.args = append(p.args, v)
	return p.dialect.Placeholder(len(p.args))
}

func (s statements) columns() string {
	cols := make([]string, len(s.table.Fields))
	for i, f := range s.table.Fields {
		cols[i] = string(f.SQLName)
	}
	return strings.Join(cols, ", ")
}

func (s statements) selectSQL(where filter.Expr, opts []QueryOption) (string, []any, error) {
	var o queryOptions
	for _, opt := range opts {
		opt(&o)
	}
	bound, err := filter.Bind(where, s.dialect)
	if err != nil {
		return "", nil, err
	}
	var b strings.Builder
	b.WriteString("SELECT " + s.columns() + " FROM " + string(s.table.SQLName) + bound.Where())
	if len(o.orders) > 0 {
		b.WriteString(" ORDER BY " + strings.Join(o.orders, ", "))
	}
	if o.limit > 0 {
		b.WriteString(" LIMIT " + strconv.Itoa(o.limit))
	}
	if o.offset > 0 {
		if o.limit <= 0 && s.dialect == filter.MySQL {
			// MySQL has no OFFSET without LIMIT.
			b.WriteString(" LIMIT 18446744073709551615")
		}
		b.WriteString(" OFFSET " + strconv.Itoa(o.offset))
	}
	return b.String(), bound.Args, nil
}

func (s statements) countSQL(where filter.Expr) (string, []any, error) {
	bound, err := filter.Bind(where, s.dialect)
	if err != nil {
		return "", nil, err
	}
	return "SELECT count(*) FROM " + string(s.table.SQLName) + bound.Where(), bound.Args, nil
}

func (s statements) deleteSQL(where filter.Expr) (string, []any, error) {
	bound, err := filter.Bind(where, s.dialect)
	if err != nil {
		return "", nil, err
	}
	if bound.Empty() {
		return "", nil, types.NewRepositoryError("refusing to delete from "+s.table.Name+" without a filter", types.ErrEmptyFilter)
	}
	return "DELETE FROM " + string(s.table.SQLName) + bound.Where(), bound.Args, nil
}

// insertColumns lists the fields written for one row: auto-increment keys
// and zero fields with a SQL default are left to the database.
func (s statements) insertColumns(row reflect.Value) []*schema.Field {
	fields := make([]*schema.Field, 0, len(s.table.Fields))
	for _, f := range s.table.Fields {
		if f.HasZeroValue(row) && (f.AutoIncrement || f.Identity || f.SQLDefault != "") {
			continue
		}
		fields = append(fields, f)
	}
	return fields
}

func fieldArg(f *schema.Field, row reflect.Value) any {
	if f.NullZero && f.HasZeroValue(row) {
		return nil
	}
	return f.Value(row).Interface()
}

type insertGroup struct {
	fields []*schema.Field
	rows   []reflect.Value
}

// groupInsertRows splits rows into runs of consecutive rows writing the same
// columns; each run becomes one multi-row INSERT.
func (s statements) groupInsertRows(rows []reflect.Value) []insertGroup {
	var groups []insertGroup
	for _, row := range rows {
		fields := s.insertColumns(row)
		if n := len(groups); n > 0 && len(fields) > 0 && sameFields(groups[n-1].fields, fields) {
			groups[n-1].rows = append(groups[n-1].rows, row)
			continue
		}
		groups = append(groups, insertGroup{fields: fields, rows: []reflect.Value{row}})
	}
	return groups
}

func sameFields(a, b []*schema.Field) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func (s statements) insertSQL(g insertGroup) (string, []any) {
	if len(g.fields) == 0 {
		// Groups without columns always hold a single row.
		return "INSERT INTO " + string(s.table.SQLName) + " DEFAULT VALUES", nil
	}
	p := &params{dialect: s.dialect}
	cols := make([]string, len(g.fields))
	for i, f := range g.fields {
		cols[i] = string(f.SQLName)
	}

	var b strings.Builder
	b.WriteString("INSERT INTO " + string(s.table.SQLName) + " (" + strings.Join(cols, ", ") + ") VALUES ")
	for r, row := range g.rows {
		if r > 0 {
			b.WriteString(", ")
		}
		marks := make([]string, len(g.fields))
		for i, f := range g.fields {
			marks[i] = p.add(fieldArg(f, row))
		}
		b.WriteString("(" + strings.Join(marks, ", ") + ")")
	}
	return b.String(), p.args
}

// returningPKs renders " RETURNING <pk columns>".
func (s statements) returningPKs() string {
	cols := make([]string, len(s.table.PKs))
	for i, f := range s.table.PKs {
		cols[i] = string(f.SQLName)
	}
	return " RETURNING " + strings.Join(cols, ", ")
}

func (s statements) pkExpr(row reflect.Value) filter.Expr {
	exprs := make([]filter.Expr, len(s.table.PKs))
	for i, f := range s.table.PKs {
		exprs[i] = filter.Eq(string(f.SQLName), f.Value(row).Interface())
	}
	return filter.All(exprs...)
}

func (s statements) idExpr(id any) (filter.Expr, error) {
	if len(s.table.PKs) != 1 {
		return nil, types.NewRepositoryError(fmt.Sprintf("%s has %d primary key columns, lookup by a single id needs exactly one", s.table.Name, len(s.table.PKs)), nil)
	}
	return filter.Eq(string(s.table.PKs[0].SQLName), id), nil
}

func (s statements) idsExpr(ids []any) (filter.Expr, error) {
	if len(s.table.PKs) != 1 {
		return nil, types.NewRepositoryError(fmt.Sprintf("%s has %d primary key columns, lookup by a single id needs exactly one", s.table.Name, len(s.table.PKs)), nil)
	}
	return filter.In(string(s.table.PKs[0].SQLName), ids), nil
}

func (s statements) updateSQL(row reflect.Value) (string, []any, error) {
	if len(s.table.PKs) == 0 {
		return "", nil, types.NewRepositoryError(s.table.Name+" has no primary key", nil)
	}
	if len(s.table.DataFields) == 0 {
		return "", nil, types.NewRepositoryError(s.table.Name+" has no columns to update", nil)
	}
	p := &params{dialect: s.dialect}
	sets := make([]string, len(s.table.DataFields))
	for i, f := range s.table.DataFields {
		sets[i] = string(f.SQLName) + " = " + p.add(fieldArg(f, row))
	}
	bound, err := filter.NewBinder(s.dialect).WithOffset(len(p.args)).Bind(s.pkExpr(row))
	if err != nil {
		return "", nil, err
	}
	q := "UPDATE " + string(s.table.SQLName) + " SET " + strings.Join(sets, ", ") + bound.Where()
	return q, append(p.args, bound.Args...), nil
}

// upsertSuffix renders the conflict clause for the backend's syntax.
func (s statements) upsertSuffix(onConflict bool, fields, conflictKeys []string) string {
	sets := make([]string, len(fields))
	if onConflict {
		for i, f := range fields {
			sets[i] = fmt.Sprintf("%s = EXCLUDED.%s", f, f)
		}
		return " ON CONFLICT (" + strings.Join(conflictKeys, ", ") + ") DO UPDATE SET " + strings.Join(sets, ", ")
	}
	for i, f := range fields {
		sets[i] = fmt.Sprintf("%s = VALUES(%s)", f, f)
	}
	return " ON DUPLICATE KEY UPDATE " + strings.Join(sets, ", ")
}

func (s statements) pkNames() []string {
	names := make([]string, len(s.table.PKs))
	for i, f := range s.table.PKs {
		names[i] = string(f.SQLName)
	}
	return names
}

// resolveColumns maps column names to their quoted SQL identifiers.
func (s statements) resolveColumns(names []string) ([]string, error) {
	out := make([]string, len(names))
	for i, name := range names {
		f, ok := s.table.FieldMap[name]
		if !ok {
			return nil, types.NewRepositoryError(fmt.Sprintf("%s has no column %q", s.table.Name, name), nil)
		}
		out[i] = string(f.SQLName)
	}
	return out, nil
}
