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

// Expr is a filter expression tree. Combinators never mutate their operands,
// so subtrees can be shared between expressions.
type Expr interface {
	And(other Expr) Expr
	Or(other Expr) Expr
	Not() Expr
	// IsEmpty reports whether the expression binds to no SQL at all.
	IsEmpty() bool

	node()
}

// Condition is a single field comparison.
type Condition struct {
	Field    string
	Operator Operator
	operand  any
	present  bool
}

// Operand returns the condition's operand and whether it is present.
func (c Condition) Operand() (any, bool) { return c.operand, c.present }

func (c Condition) And(other Expr) Expr { return And(c, other) }
func (c Condition) Or(other Expr) Expr  { return Or(c, other) }
func (c Condition) Not() Expr           { return Not(c) }
func (c Condition) IsEmpty() bool       { return prune(c) == nil }
func (Condition) node()                 {}

// Where builds a condition from an operator and an operand. The operand may be
// a plain value, an Opt, a Fragment, or a slice for IN and NOT_IN. A Fragment
// with empty SQL is absent.
func Where(field string, op Operator, operand any) Condition {
	v, ok := unwrapOperand(operand)
	if f, isFrag := v.(Fragment); isFrag && f.SQL == "" {
		ok = false
	}
	return Condition{Field: field, Operator: op, operand: v, present: ok}
}

// Unset builds a condition whose operand is absent.
func Unset(field string, op Operator) Condition {
	return Condition{Field: field, Operator: op}
}

func Eq(field string, v any) Condition    { return Where(field, OpEQ, v) }
func Ne(field string, v any) Condition    { return Where(field, OpNE, v) }
func Gt(field string, v any) Condition    { return Where(field, OpGT, v) }
func Lt(field string, v any) Condition    { return Where(field, OpLT, v) }
func Ge(field string, v any) Condition    { return Where(field, OpGE, v) }
func Le(field string, v any) Condition    { return Where(field, OpLE, v) }
func Like(field string, v any) Condition  { return Where(field, OpLike, v) }
func ILike(field string, v any) Condition { return Where(field, OpILike, v) }

// In matches field against a list. The list must not be empty.
func In(field string, values any) Condition { return Where(field, OpIn, values) }

// NotIn excludes a list of values. The list must not be empty.
func NotIn(field string, values any) Condition { return Where(field, OpNotIn, values) }

// Raw splices a fragment into the WHERE clause. An empty fragment is absent.
func Raw(fragment string, args ...any) Condition {
	return Condition{Operator: OpRaw, operand: SQL(fragment, args...), present: fragment != ""}
}

// RawField compares field against a fragment, e.g.
// RawField("created_at", OpGT, "now() - interval '1 day'"). With OpIn or
// OpNotIn the fragment is wrapped in parentheses.
func RawField(field string, op Operator, fragment string, args ...any) Condition {
	return Condition{Field: field, Operator: op, operand: SQL(fragment, args...), present: fragment != ""}
}

type binaryNode struct {
	op          string
	left, right Expr
}

func (n binaryNode) And(other Expr) Expr { return And(n, other) }
func (n binaryNode) Or(other Expr) Expr  { return Or(n, other) }
func (n binaryNode) Not() Expr           { return Not(n) }
func (n binaryNode) IsEmpty() bool       { return prune(n) == nil }
func (binaryNode) node()                 {}

type notNode struct {
	inner Expr
}

func (n notNode) And(other Expr) Expr { return And(n, other) }
func (n notNode) Or(other Expr) Expr  { return Or(n, other) }
func (n notNode) Not() Expr           { return Not(n) }
func (n notNode) IsEmpty() bool       { return prune(n) == nil }
func (notNode) node()                 {}

// constNode is an explicit always-true or always-false branch. Unlike an
// absent condition it is never pruned.
type constNode struct {
	match bool
}

func (n constNode) And(other Expr) Expr { return And(n, other) }
func (n constNode) Or(other Expr) Expr  { return Or(n, other) }
func (n constNode) Not() Expr           { return Not(n) }
func (n constNode) IsEmpty() bool       { return false }
func (constNode) node()                 {}

// MatchAll is an explicit branch that every row satisfies.
func MatchAll() Expr { return constNode{match: true} }

// MatchNone is an explicit branch that no row satisfies.
func MatchNone() Expr { return constNode{match: false} }

// And combines two expressions. A nil operand is treated as absent.
func And(a, b Expr) Expr { return binaryNode{op: "AND", left: a, right: b} }

// Or combines two expressions. A nil operand is treated as absent.
func Or(a, b Expr) Expr { return binaryNode{op: "OR", left: a, right: b} }

// Not negates an expression.
func Not(a Expr) Expr { return notNode{inner: a} }

// All folds expressions left to right with AND. It returns an empty
// expression when called without arguments.
func All(exprs ...Expr) Expr { return fold(And, exprs) }

// AnyOf folds expressions left to right with OR.
func AnyOf(exprs ...Expr) Expr { return fold(Or, exprs) }

func fold(combine func(a, b Expr) Expr, exprs []Expr) Expr {
	if len(exprs) == 0 {
		return Unset("", OpEQ)
	}
	acc := exprs[0]
	for _, e := range exprs[1:] {
		acc = combine(acc, e)
	}
	return acc
}

// prune drops absent conditions and collapses combinators left with a single
// child. It returns nil when nothing remains.
func prune(e Expr) Expr {
	switch n := e.(type) {
	case nil:
		return nil
	case Condition:
		if !n.present {
			return nil
		}
		return n
	case binaryNode:
		l, r := prune(n.left), prune(n.right)
		switch {
		case l == nil:
			return r
		case r == nil:
			return l
		}
		return binaryNode{op: n.op, left: l, right: r}
	case notNode:
		inner := prune(n.inner)
		if inner == nil {
			return nil
		}
		return notNode{inner: inner}
	case constNode:
		return n
	}
	return nil
}

// Prune returns e with absent conditions removed, or nil if nothing is left.
func Prune(e Expr) Expr { return prune(e) }
