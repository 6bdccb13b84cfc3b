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

import "reflect"

// Opt is an operand that may be absent. An absent operand removes its
// condition from the bound SQL instead of turning it into a NULL check.
type Opt[T any] struct {
	value T
	ok    bool
}

// Some returns a present operand.
func Some[T any](v T) Opt[T] { return Opt[T]{value: v, ok: true} }

// None returns an absent operand.
func None[T any]() Opt[T] { return Opt[T]{} }

// FromPtr returns an operand that is present when p is not nil.
func FromPtr[T any](p *T) Opt[T] {
	if p == nil {
		return Opt[T]{}
	}
	return Opt[T]{value: *p, ok: true}
}

// Get returns the value and whether it is present.
func (o Opt[T]) Get() (T, bool) { return o.value, o.ok }

func (o Opt[T]) optional() (any, bool) { return o.value, o.ok }

type optional interface {
	optional() (any, bool)
}

// Fragment is a pre-formed SQL snippet with its own arguments. Each "?" in SQL
// is one argument; the binder renumbers them for the target dialect. A "?"
// inside a single-quoted literal is left alone, and "??" writes a literal "?"
// (for operators such as Postgres jsonb "?|"). Otherwise the content is
// spliced as-is and is never validated.
type Fragment struct {
	SQL  string
	Args []any
}

// SQL builds a Fragment.
func SQL(fragment string, args ...any) Fragment {
	return Fragment{SQL: fragment, Args: args}
}

func unwrapOperand(v any) (any, bool) {
	if o, ok := v.(optional); ok {
		return o.optional()
	}
	return v, true
}

// listValues flattens a slice or array operand into individual values.
func listValues(v any) ([]any, bool) {
	if vs, ok := v.([]any); ok {
		return vs, true
	}
	if _, ok := v.([]byte); ok {
		return nil, false
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, false
	}
	out := make([]any, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out, true
}
