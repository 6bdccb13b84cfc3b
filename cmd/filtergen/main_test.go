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

package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const schemaYAML = `filters:
  - name: user
    table: users
    fields:
      - name: min_age
        column: age
        operator: GE
        type: int
      - name: name
        operator: LIKE
        type: string
      - name: ids
        column: id
        operator: IN
        type: "[]int64"
`

func writeSchema(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "filters.yaml")
	require.NoError(t, os.WriteFile(path, []byte(schemaYAML), 0o644))
	return path
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	cmd := NewRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestBindCommand(t *testing.T) {
	path := writeSchema(t)

	out, err := run(t, "bind", "user", "--schema", path, "--dialect", "sqlite", "min_age=30", "name=A%")
	require.NoError(t, err)
	assert.Equal(t, "SELECT * FROM users WHERE age >= ?1 AND name LIKE ?2\n[1] 30\n[2] \"A%\"\n", out)

	out, err = run(t, "bind", "user", "--schema", path, "ids=1,2")
	require.NoError(t, err)
	assert.Equal(t, "SELECT * FROM users WHERE id IN ($1, $2)\n[1] 1\n[2] 2\n", out)

	out, err = run(t, "bind", "user", "--schema", path)
	require.NoError(t, err)
	assert.Equal(t, "SELECT * FROM users\n", out)
}

func TestBindCommandErrors(t *testing.T) {
	path := writeSchema(t)

	_, err := run(t, "bind", "order", "--schema", path)
	assert.ErrorContains(t, err, "unknown filter")

	_, err = run(t, "bind", "user", "--schema", path, "age=3")
	assert.ErrorContains(t, err, "no field")

	_, err = run(t, "bind", "user", "--schema", path, "--dialect", "oracle")
	assert.ErrorContains(t, err, "unknown dialect")

	_, err = run(t, "bind", "user", "--schema", path, "min_age")
	assert.ErrorContains(t, err, "field=value")
}

func TestGenerateCommand(t *testing.T) {
	path := writeSchema(t)
	outDir := filepath.Join(t.TempDir(), "userfilters")

	_, err := run(t, "generate", "--schema", path, "--out", outDir)
	require.NoError(t, err)

	src, err := os.ReadFile(filepath.Join(outDir, "filters_gen.go"))
	require.NoError(t, err)
	assert.Contains(t, string(src), "package userfilters")
	assert.Contains(t, string(src), "func (f *UserFilter) MinAge(v int) *UserFilter {")
}
