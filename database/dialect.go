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

package database

import (
	"fmt"

	"github.com/tomoncle/sqlkit/filter"
)

// ResolveDialect picks the placeholder dialect for the configured backends.
// One backend maps to its own dialect. Several distinct backends cannot share
// one placeholder style, so the portable "any" dialect is used and a warning
// logged.
func ResolveDialect(names []string, logger Logger) (filter.Dialect, error) {
	if logger == nil {
		logger = GetLogger()
	}
	var (
		resolved filter.Dialect
		distinct = map[string]struct{}{}
	)
	for _, name := range names {
		d, ok := filter.LookupDialect(name)
		if !ok {
			return nil, fmt.Errorf("unknown sql dialect: %q", name)
		}
		distinct[d.Name()] = struct{}{}
		resolved = d
	}
	switch len(distinct) {
	case 0:
		logger.Warn("No sql dialect configured, using portable placeholders", "dialect", filter.Any.Name())
		return filter.Any, nil
	case 1:
		return resolved, nil
	}
	logger.Warn("Multiple sql dialects configured, using portable placeholders",
		"dialects", names, "dialect", filter.Any.Name())
	return filter.Any, nil
}
