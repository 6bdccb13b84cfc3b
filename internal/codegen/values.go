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
	"fmt"
	"strconv"
	"strings"

	"github.com/tomoncle/sqlkit/filter"
)

// ParseValue converts a command line value into the operand for field f.
// List operators split raw on commas; elements are parsed by the field's
// declared element type.
func ParseValue(f filter.FieldSpec, raw string) (any, error) {
	if f.Op() == filter.OpRaw {
		return filter.SQL(raw), nil
	}
	elem := strings.TrimPrefix(f.Type, "[]")
	if !f.Op().IsList() {
		return parseScalar(f.Name, elem, raw)
	}
	parts := strings.Split(raw, ",")
	out := make([]any, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		v, err := parseScalar(f.Name, elem, p)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

func parseScalar(field, typ, raw string) (any, error) {
	var (
		v   any
		err error
	)
	switch typ {
	case "int":
		v, err = strconv.Atoi(raw)
	case "int32":
		var n int64
		n, err = strconv.ParseInt(raw, 10, 32)
		v = int32(n)
	case "int64":
		v, err = strconv.ParseInt(raw, 10, 64)
	case "uint", "uint64":
		v, err = strconv.ParseUint(raw, 10, 64)
	case "float32", "float64":
		v, err = strconv.ParseFloat(raw, 64)
	case "bool":
		v, err = strconv.ParseBool(raw)
	default:
		v = raw
	}
	if err != nil {
		return nil, fmt.Errorf("field %s: cannot parse %q as %s: %w", field, raw, typ, err)
	}
	return v, nil
}
