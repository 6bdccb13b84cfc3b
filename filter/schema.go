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
	"fmt"

	"github.com/tomoncle/sqlkit/types"
	"gopkg.in/yaml.v3"
)

// FieldSpec declares one filterable field of a Schema.
type FieldSpec struct {
	Name     string `yaml:"name" json:"name"`
	Column   string `yaml:"column" json:"column"`
	Operator string `yaml:"operator" json:"operator"`
	// Type is the Go type used by generated setters, e.g. "string" or "[]int64".
	Type     string `yaml:"type" json:"type"`
	Required bool   `yaml:"required" json:"required"`

	op Operator
}

// Op returns the resolved operator.
func (f FieldSpec) Op() Operator { return f.op }

// Schema is a table of filterable fields. Each field gets a setter on the
// Builder; fields left unset are absent and do not constrain the query.
type Schema struct {
	Name   string      `yaml:"name" json:"name"`
	Table  string      `yaml:"table" json:"table"`
	Fields []FieldSpec `yaml:"fields" json:"fields"`

	index map[string]int
}

// NewSchema validates the field table and returns a ready schema.
func NewSchema(name, table string, fields ...FieldSpec) (*Schema, error) {
	s := &Schema{Name: name, Table: table, Fields: fields}
	if err := s.init(); err != nil {
		return nil, err
	}
	return s, nil
}

// MustSchema is like NewSchema but panics on an invalid table.
func MustSchema(name, table string, fields ...FieldSpec) *Schema {
	s, err := NewSchema(name, table, fields...)
	if err != nil {
		panic(err)
	}
	return s
}

func (s *Schema) init() error {
	s.index = make(map[string]int, len(s.Fields))
	for i := range s.Fields {
		f := &s.Fields[i]
		if f.Name == "" {
			return types.NewFilterError("", "schema %s: field %d has no name", s.Name, i)
		}
		if _, dup := s.index[f.Name]; dup {
			return types.NewFilterError(f.Name, "schema %s: duplicate field", s.Name)
		}
		if f.Column == "" {
			f.Column = f.Name
		}
		if f.Operator == "" {
			f.Operator = OpEQ.Name()
		}
		op, ok := ParseOperator(f.Operator)
		if !ok {
			return types.NewFilterError(f.Name, "schema %s: unknown operator %q", s.Name, f.Operator)
		}
		f.op = op
		s.index[f.Name] = i
	}
	return nil
}

// LoadSchemas parses a YAML document holding a list of schemas under "filters".
func LoadSchemas(data []byte) ([]*Schema, error) {
	var doc struct {
		Filters []*Schema `yaml:"filters"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse filter schemas: %w", err)
	}
	for _, s := range doc.Filters {
		if err := s.init(); err != nil {
			return nil, err
		}
	}
	return doc.Filters, nil
}

// Field looks up a field by name.
func (s *Schema) Field(name string) (FieldSpec, bool) {
	i, ok := s.index[name]
	if !ok {
		return FieldSpec{}, false
	}
	return s.Fields[i], true
}

// New returns a builder with every field absent.
func (s *Schema) New() *Builder {
	return &Builder{schema: s, values: make([]any, len(s.Fields)), set: make([]bool, len(s.Fields))}
}

// Builder collects operands for a Schema's fields.
type Builder struct {
	schema *Schema
	values []any
	set    []bool
	err    error
}

// Set assigns a field's operand. Passing an Opt keeps optional semantics.
// Unknown fields are reported by Expr.
func (b *Builder) Set(field string, value any) *Builder {
	i, ok := b.schema.index[field]
	if !ok {
		if b.err == nil {
			b.err = types.NewFilterError(field, "schema %s has no such field", b.schema.Name)
		}
		return b
	}
	b.values[i] = value
	b.set[i] = true
	return b
}

// Unset clears a field.
func (b *Builder) Unset(field string) *Builder {
	if i, ok := b.schema.index[field]; ok {
		b.values[i] = nil
		b.set[i] = false
	}
	return b
}

// Schema returns the builder's schema.
func (b *Builder) Schema() *Schema { return b.schema }

// Expr AND-folds the conditions of all fields in declaration order. Absent
// fields are carried as absent conditions and pruned at bind time.
func (b *Builder) Expr() (Expr, error) {
	if b.err != nil {
		return nil, b.err
	}
	exprs := make([]Expr, 0, len(b.schema.Fields))
	for i, f := range b.schema.Fields {
		var cond Condition
		if v, ok := unwrapOperand(b.values[i]); b.set[i] && ok {
			if f.op == OpRaw {
				frag, isFrag := v.(Fragment)
				if !isFrag {
					frag = SQL(fmt.Sprint(v))
				}
				v = frag
			}
			cond = Where(f.Column, f.op, v)
		} else {
			cond = Unset(f.Column, f.op)
		}
		if f.Required && !cond.present {
			return nil, types.NewFilterError(f.Name, "required field is not set")
		}
		exprs = append(exprs, cond)
	}
	return All(exprs...), nil
}
