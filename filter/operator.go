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

import "github.com/tomoncle/sqlkit/types"

// Operator is the comparison applied by a single condition.
type Operator int

const (
	OpEQ Operator = iota
	OpNE
	OpGT
	OpLT
	OpGE
	OpLE
	OpLike
	OpILike
	OpIn
	OpNotIn
	OpRaw
)

var _ types.BaseEnum = OpEQ

var operatorNames = [...]string{"EQ", "NE", "GT", "LT", "GE", "LE", "LIKE", "ILIKE", "IN", "NOT_IN", "RAW"}

var operatorSymbols = [...]string{"=", "!=", ">", "<", ">=", "<=", "LIKE", "ILIKE", "IN", "NOT IN", ""}

var operatorDescs = [...]string{
	"equal to",
	"not equal to",
	"greater than",
	"less than",
	"greater than or equal to",
	"less than or equal to",
	"matches pattern",
	"matches pattern ignoring case",
	"contained in list",
	"not contained in list",
	"raw sql fragment",
}

// Operators lists every valid operator in declaration order.
func Operators() []Operator {
	return []Operator{OpEQ, OpNE, OpGT, OpLT, OpGE, OpLE, OpLike, OpILike, OpIn, OpNotIn, OpRaw}
}

// ParseOperator resolves an operator by name, e.g. "ge" or "NOT_IN".
func ParseOperator(name string) (Operator, bool) {
	op, ok := types.LookupEnum(Operators(), name)
	if !ok {
		return Operator(types.IllegalValue), false
	}
	return op, true
}

func (o Operator) IsValid() bool { return o >= OpEQ && o <= OpRaw }

func (o Operator) Number() int {
	if !o.IsValid() {
		return types.IllegalValue
	}
	return int(o)
}

func (o Operator) Name() string {
	if !o.IsValid() {
		return types.IllegalName
	}
	return operatorNames[o]
}

func (o Operator) Desc() string {
	if !o.IsValid() {
		return types.IllegalDesc
	}
	return operatorDescs[o]
}

func (o Operator) String() string { return o.Name() }

// Symbol returns the SQL keyword or sign emitted for the operator.
func (o Operator) Symbol() string {
	if !o.IsValid() {
		return ""
	}
	return operatorSymbols[o]
}

// IsList reports whether the operator takes a list operand.
func (o Operator) IsList() bool { return o == OpIn || o == OpNotIn }
