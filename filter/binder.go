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
	"strings"

	"github.com/tomoncle/sqlkit/types"
)

// Bound is SQL text with its parameters in placeholder order.
type Bound struct {
	SQL  string
	Args []any
}

// Empty reports whether nothing was bound.
func (b Bound) Empty() bool { return b.SQL == "" }

// Where returns " WHERE <sql>", or "" for an empty bind.
func (b Bound) Where() string {
	if b.Empty() {
		return ""
	}
	return " WHERE " + b.SQL
}

// Binder turns expressions into SQL for one dialect.
type Binder struct {
	dialect Dialect
	offset  int
}

// NewBinder returns a binder numbering parameters from 1.
func NewBinder(d Dialect) *Binder {
	if d == nil {
		d = Any
	}
	return &Binder{dialect: d}
}

// WithOffset returns a binder whose first placeholder follows n parameters
// already present in the enclosing statement.
func (b *Binder) WithOffset(n int) *Binder {
	return &Binder{dialect: b.dialect, offset: n}
}

// Dialect returns the binder's dialect.
func (b *Binder) Dialect() Dialect { return b.dialect }

// Bind prunes absent conditions and emits the remaining tree. Binary children
// that are themselves AND/OR are always parenthesized.
func (b *Binder) Bind(e Expr) (Bound, error) {
	pruned := prune(e)
	if pruned == nil {
		return Bound{}, nil
	}
	st := &bindState{dialect: b.dialect, offset: b.offset}
	if err := st.emit(pruned); err != nil {
		return Bound{}, err
	}
	return Bound{SQL: st.sql.String(), Args: st.args}, nil
}

// Bind is a shortcut for NewBinder(d).Bind(e).
func Bind(e Expr, d Dialect) (Bound, error) {
	return NewBinder(d).Bind(e)
}

type bindState struct {
	dialect Dialect
	offset  int
	sql     strings.Builder
	args    []any
}

func (s *bindState) placeholder(v any) string {
	s.args = append(s.args, v)
	return s.dialect.Placeholder(s.offset + len(s.args))
}

func (s *bindState) emit(e Expr) error {
	switch n := e.(type) {
	case Condition:
		return s.emitCondition(n)
	case binaryNode:
		if err := s.emitChild(n.left); err != nil {
			return err
		}
		s.sql.WriteString(" " + n.op + " ")
		return s.emitChild(n.right)
	case notNode:
		s.sql.WriteString("NOT (")
		if err := s.emit(n.inner); err != nil {
			return err
		}
		s.sql.WriteString(")")
		return nil
	case constNode:
		if n.match {
			s.sql.WriteString("1 = 1")
		} else {
			s.sql.WriteString("1 = 0")
		}
		return nil
	}
	return types.NewFilterError("", "unsupported expression node %T", e)
}

func (s *bindState) emitChild(e Expr) error {
	if _, ok := e.(binaryNode); !ok {
		return s.emit(e)
	}
	s.sql.WriteString("(")
	if err := s.emit(e); err != nil {
		return err
	}
	s.sql.WriteString(")")
	return nil
}

func (s *bindState) emitCondition(c Condition) error {
	if !c.Operator.IsValid() {
		return types.NewFilterError(c.Field, "invalid operator %d", int(c.Operator))
	}
	if frag, ok := c.operand.(Fragment); ok {
		if c.Operator == OpRaw {
			return s.emitFragment(c.Field, frag)
		}
		if c.Field == "" {
			return types.NewFilterError(c.Field, "field name is required")
		}
		open, closing := "", ""
		switch {
		case c.Operator == OpILike && !s.dialect.SupportsILike():
			s.sql.WriteString("LOWER(" + c.Field + ") LIKE ")
			open, closing = "LOWER(", ")"
		case c.Operator.IsList():
			s.sql.WriteString(c.Field + " " + c.Operator.Symbol() + " ")
			open, closing = "(", ")"
		default:
			s.sql.WriteString(c.Field + " " + c.Operator.Symbol() + " ")
		}
		s.sql.WriteString(open)
		if err := s.emitFragment(c.Field, frag); err != nil {
			return err
		}
		s.sql.WriteString(closing)
		return nil
	}
	if c.Operator == OpRaw {
		return types.NewFilterError(c.Field, "RAW operand must be a fragment")
	}
	if c.Field == "" {
		return types.NewFilterError(c.Field, "field name is required")
	}

	if c.Operator.IsList() {
		values, ok := listValues(c.operand)
		if !ok {
			return types.NewFilterError(c.Field, "%s operand must be a list", c.Operator)
		}
		if len(values) == 0 {
			return types.NewFilterError(c.Field, "%s operand must not be empty", c.Operator)
		}
		marks := make([]string, len(values))
		for i, v := range values {
			marks[i] = s.placeholder(v)
		}
		s.sql.WriteString(c.Field + " " + c.Operator.Symbol() + " (" + strings.Join(marks, ", ") + ")")
		return nil
	}

	if c.Operator == OpILike && !s.dialect.SupportsILike() {
		s.sql.WriteString("LOWER(" + c.Field + ") LIKE LOWER(" + s.placeholder(c.operand) + ")")
		return nil
	}
	s.sql.WriteString(c.Field + " " + c.Operator.Symbol() + " " + s.placeholder(c.operand))
	return nil
}

// emitFragment copies the fragment, replacing each "?" with the dialect's
// next placeholder.
func (s *bindState) emitFragment(field string, f Fragment) error {
	parts := splitFragment(f.SQL)
	if n := len(parts) - 1; n != len(f.Args) {
		return types.NewFilterError(field, "raw fragment has %d placeholders but %d arguments", n, len(f.Args))
	}
	for i, part := range parts {
		if i > 0 {
			s.sql.WriteString(s.placeholder(f.Args[i-1]))
		}
		s.sql.WriteString(part)
	}
	return nil
}

// splitFragment cuts sql at its argument markers. Quoted literals are copied
// untouched and "??" collapses to a literal "?".
func splitFragment(sql string) []string {
	var (
		parts   []string
		cur     strings.Builder
		inQuote bool
	)
	for i := 0; i < len(sql); i++ {
		c := sql[i]
		switch {
		case c == '\'':
			inQuote = !inQuote
			cur.WriteByte(c)
		case c != '?' || inQuote:
			cur.WriteByte(c)
		case i+1 < len(sql) && sql[i+1] == '?':
			cur.WriteByte('?')
			i++
		default:
			parts = append(parts, cur.String())
			cur.Reset()
		}
	}
	return append(parts, cur.String())
}
