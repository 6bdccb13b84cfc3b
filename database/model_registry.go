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
	"reflect"
	"sort"
	"sync"

	"github.com/uptrace/bun"
)

// SQLModel is a bun model registered ahead of use. Priority orders
// registration; lower values first, which matters for m2m join models.
type SQLModel interface {
	Instance() interface{}
	Priority() int
}

// ModelRegistry stores SQL models and exposes them in a deterministic order.
type ModelRegistry struct {
	models []SQLModel
	mutex  sync.RWMutex
}

// NewModelRegistry returns an empty registry.
func NewModelRegistry() *ModelRegistry {
	return &ModelRegistry{}
}

func (r *ModelRegistry) Register(model SQLModel) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.models = append(r.models, model)
}

// RegisterInstance registers a model pointer with a priority.
func (r *ModelRegistry) RegisterInstance(instance interface{}, priority int) {
	r.Register(&modelAdapter{instance: instance, priority: priority})
}

func (r *ModelRegistry) Models() []SQLModel {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	result := make([]SQLModel, len(r.models))
	copy(result, r.models)
	sort.SliceStable(result, func(i, j int) bool {
		return result[i].Priority() < result[j].Priority()
	})
	return result
}

// Apply registers every model with db and checks that each maps to a table
// with a primary key, which repositories need for update and delete.
func (r *ModelRegistry) Apply(db *bun.DB, logger Logger) error {
	models := r.Models()
	instances := make([]interface{}, len(models))
	for i, m := range models {
		instances[i] = m.Instance()
	}
	db.RegisterModel(instances...)

	for _, inst := range instances {
		typ := reflect.TypeOf(inst)
		for typ.Kind() == reflect.Ptr {
			typ = typ.Elem()
		}
		if typ.Kind() != reflect.Struct {
			return fmt.Errorf("model %T is not a struct", inst)
		}
		table := db.Table(typ)
		if len(table.PKs) == 0 {
			logger.Warn("Model has no primary key", "model", typ.String(), "table", table.Name)
		}
		logger.Debug("Model registered", "model", typ.String(), "table", table.Name)
	}
	return nil
}

type modelAdapter struct {
	instance interface{}
	priority int
}

func (a *modelAdapter) Instance() interface{} { return a.instance }

func (a *modelAdapter) Priority() int { return a.priority }
