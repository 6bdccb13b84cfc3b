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
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// JSON stores any value as a JSON text column. Repositories pass column
// values straight to the driver, so structured fields need a Valuer such as
// this one.
type JSON[T any] struct {
	V T
}

// NewJSON wraps v.
func NewJSON[T any](v T) JSON[T] { return JSON[T]{V: v} }

// Value implements driver.Valuer.
func (j JSON[T]) Value() (driver.Value, error) {
	b, err := json.Marshal(j.V)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements sql.Scanner. NULL leaves the zero value.
func (j *JSON[T]) Scan(value interface{}) error {
	var zero T
	j.V = zero
	return scanJSON(value, &j.V)
}

// JsonObject is a convenience type for JSON columns mapped to objects.
type JsonObject map[string]interface{}

// Value implements driver.Valuer for JsonObject.
func (j JsonObject) Value() (driver.Value, error) {
	if j == nil {
		return nil, nil
	}
	b, err := json.Marshal(j)
	return string(b), err
}

// Scan implements sql.Scanner for JsonObject.
func (j *JsonObject) Scan(value interface{}) error {
	*j = make(JsonObject)
	return scanJSON(value, j)
}

func scanJSON(value interface{}, dst interface{}) error {
	switch v := value.(type) {
	case nil:
		return nil
	case []byte:
		return json.Unmarshal(v, dst)
	case string:
		return json.Unmarshal([]byte(v), dst)
	}
	return fmt.Errorf("cannot scan %T into a JSON column", value)
}
