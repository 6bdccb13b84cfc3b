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

package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJSONRoundTripsThroughDriverValues(t *testing.T) {
	in := NewJSON([]string{"a", "b"})
	v, err := in.Value()
	require.NoError(t, err)
	assert.Equal(t, `["a","b"]`, v)

	var out JSON[[]string]
	require.NoError(t, out.Scan([]byte(`["c"]`)))
	assert.Equal(t, []string{"c"}, out.V)

	require.NoError(t, out.Scan(nil))
	assert.Nil(t, out.V)

	assert.Error(t, out.Scan(42))
}

func TestJsonObjectScanFromText(t *testing.T) {
	var obj JsonObject
	require.NoError(t, obj.Scan(`{"k":1}`))
	assert.Equal(t, float64(1), obj["k"])

	v, err := JsonObject(nil).Value()
	require.NoError(t, err)
	assert.Nil(t, v)
}

func TestErrorsUnwrap(t *testing.T) {
	err := NewRepositoryError("update account", ErrNotFound)
	assert.True(t, IsNotFound(err))
	assert.Equal(t, "repository error: update account: record not found", err.Error())

	be := &BatchError{Index: 3, Err: err}
	assert.True(t, IsNotFound(be))
	assert.Contains(t, be.Error(), "batch chunk 3 failed")

	fe := NewFilterError("age", "operand must be %s", "a list")
	assert.Equal(t, "filter error: age: operand must be a list", fe.Error())
}
