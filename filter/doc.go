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

// Package filter builds composable WHERE conditions and binds them into
// parameterized SQL for a chosen backend dialect.
//
// Conditions whose operand is absent are pruned before binding, so a filter
// assembled from optional request fields only constrains what was set:
//
//	expr := filter.Gt("age", 30).And(filter.Like("name", filter.FromPtr(req.Name)))
//	bound, err := filter.NewBinder(filter.SQLite).Bind(expr)
//	// bound.SQL == "age > ?1 AND name LIKE ?2" when req.Name is set
package filter
