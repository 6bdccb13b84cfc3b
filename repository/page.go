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

package repository

import "github.com/tomoncle/sqlkit/filter"

// PageRequest describes pagination, optional filter, and ordering.
type PageRequest struct {
	page     int
	pageSize int
	filter   filter.Expr
	orders   []string // "id ASC", "name DESC"
}

func (p *PageRequest) GetPageSize() int {
	if p.pageSize < 1 {
		p.pageSize = 10
	}
	return p.pageSize
}

func (p *PageRequest) GetPage() int {
	if p.page < 1 {
		p.page = 1
	}
	return p.page
}

func (p *PageRequest) GetOffset() int {
	return (p.GetPage() - 1) * p.GetPageSize()
}

func (p *PageRequest) GetFilter() filter.Expr {
	return p.filter
}

func (p *PageRequest) GetOrders() []string {
	return p.orders
}

// NewPageRequest constructs a PageRequest with filter and order settings.
// A nil filter matches every row.
func NewPageRequest(page int, pageSize int, f filter.Expr, orders []string) *PageRequest {
	return &PageRequest{page, pageSize, f, orders}
}

// NewPageRequestWithFilter constructs a PageRequest with a filter only.
func NewPageRequestWithFilter(page int, pageSize int, f filter.Expr) *PageRequest {
	return NewPageRequest(page, pageSize, f, nil)
}

// NewPageRequestWithOrders constructs a PageRequest with ordering only.
func NewPageRequestWithOrders(page int, pageSize int, orders []string) *PageRequest {
	return NewPageRequest(page, pageSize, nil, orders)
}

// NewDefaultPageRequest constructs a PageRequest with no filter or ordering.
func NewDefaultPageRequest(page int, pageSize int) *PageRequest {
	return NewPageRequest(page, pageSize, nil, nil)
}

// Pagination holds paged result items along with pagination metadata.
type Pagination[T any] struct {
	Page     int
	PageSize int
	Total    int64
	Items    []*T
}

// Pages returns the number of pages for Total.
func (p *Pagination[T]) Pages() int {
	if p.PageSize < 1 {
		return 0
	}
	return int((p.Total + int64(p.PageSize) - 1) / int64(p.PageSize))
}

// NewDefaultPagination constructs an empty pagination container.
func NewDefaultPagination[T any](page int, pageSize int) *Pagination[T] {
	return &Pagination[T]{page, pageSize, 0, make([]*T, 0)}
}
