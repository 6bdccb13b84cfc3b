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

package codegen

import (
	"go/parser"
	"go/token"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tomoncle/sqlkit/filter"
)

func userSchema() *filter.Schema {
	return filter.MustSchema("user", "users",
		filter.FieldSpec{Name: "min_age", Column: "age", Operator: "GE", Type: "int"},
		filter.FieldSpec{Name: "name", Operator: "LIKE", Type: "string"},
		filter.FieldSpec{Name: "ids", Column: "id", Operator: "IN", Type: "[]int64"},
		filter.FieldSpec{Name: "tenant", Required: true},
		filter.FieldSpec{Name: "extra", Operator: "RAW"},
	)
}

func TestExported(t *testing.T) {
	assert.Equal(t, "MinAge", Exported("min_age"))
	assert.Equal(t, "CreatedAtFrom", Exported("created-at.from"))
	assert.Equal(t, "Name", Exported("name"))
	assert.Equal(t, "", Exported("__"))
}

func TestGenerate(t *testing.T) {
	src, err := Generate("filters", []*filter.Schema{userSchema()})
	require.NoError(t, err)

	_, err = parser.ParseFile(token.NewFileSet(), "filters_gen.go", src, parser.AllErrors)
	require.NoError(t, err)

	code := string(src)
	assert.Contains(t, code, "// Code generated by filtergen. DO NOT EDIT.")
	assert.Contains(t, code, "package filters")
	assert.Contains(t, code, "var userFilterSchema = filter.MustSchema(\"user\", \"users\",")
	assert.Contains(t, code, "func NewUserFilter() *UserFilter {")
	assert.Contains(t, code, "func (f *UserFilter) MinAge(v int) *UserFilter {")
	assert.Contains(t, code, "func (f *UserFilter) Ids(v []int64) *UserFilter {")
	assert.Contains(t, code, "func (f *UserFilter) Tenant(v any) *UserFilter {")
	assert.Contains(t, code, "func (f *UserFilter) Extra(v filter.Fragment) *UserFilter {")
	assert.Contains(t, code, `Name: "tenant", Column: "tenant", Operator: "EQ", Type: "any", Required: true`)
	assert.Contains(t, code, "func (f *UserFilter) Expr() (filter.Expr, error) {")
}

func TestGenerateRejectsBadNames(t *testing.T) {
	_, err := Generate("", []*filter.Schema{userSchema()})
	assert.Error(t, err)

	_, err = Generate("filters", []*filter.Schema{filter.MustSchema("user", "users", filter.FieldSpec{Name: "expr"})})
	assert.Error(t, err)

	_, err = Generate("filters", []*filter.Schema{filter.MustSchema("__", "t")})
	assert.Error(t, err)
}

func TestParseValue(t *testing.T) {
	s := userSchema()

	f, _ := s.Field("min_age")
	v, err := ParseValue(f, "30")
	require.NoError(t, err)
	assert.Equal(t, 30, v)

	_, err = ParseValue(f, "thirty")
	assert.Error(t, err)

	f, _ = s.Field("ids")
	v, err = ParseValue(f, "1, 2,,3")
	require.NoError(t, err)
	assert.Equal(t, []any{int64(1), int64(2), int64(3)}, v)

	f, _ = s.Field("name")
	v, err = ParseValue(f, "A%")
	require.NoError(t, err)
	assert.Equal(t, "A%", v)

	f, _ = s.Field("extra")
	v, err = ParseValue(f, "deleted_at IS NULL")
	require.NoError(t, err)
	assert.Equal(t, filter.SQL("deleted_at IS NULL"), v)
}
