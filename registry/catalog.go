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

package registry

import (
	"reflect"
	"strings"
	"sync"

	"github.com/tomoncle/commonapi/database"
	"github.com/tomoncle/commonapi/repository"
)

var defaultCatalog = NewCatalog()

// Entry is one catalogued DTO type.
type Entry struct {
	Type      reflect.Type
	Namespace string
	Priority  int

	model interface{}
	bind  func(c *Container) error
}

// IsStruct reports whether a repository can be built for the entry.
func (e Entry) IsStruct() bool {
	return e.Type != nil && e.Type.Kind() == reflect.Struct
}

// Option adjusts a catalog entry.
type Option func(*Entry)

// WithNamespace files the type under ns instead of its Go package path.
func WithNamespace(ns string) Option {
	return func(e *Entry) {
		e.Namespace = strings.TrimSpace(ns)
	}
}

// WithPriority orders table creation; lower values are created first.
func WithPriority(p int) Option {
	return func(e *Entry) {
		e.Priority = p
	}
}

// Catalog is the compile-time list of DTO types that may get repositories.
// It is safe for concurrent use.
type Catalog struct {
	mu      sync.RWMutex
	entries []Entry
}

// NewCatalog returns an empty catalog.
func NewCatalog() *Catalog {
	return &Catalog{}
}

// DefaultCatalog returns the catalog Register adds to.
func DefaultCatalog() *Catalog {
	return defaultCatalog
}

// Add catalogues T in c. Adding the same type twice keeps both entries.
func Add[T any](c *Catalog, opts ...Option) {
	t := reflect.TypeOf((*T)(nil)).Elem()
	e := Entry{Type: t, Namespace: t.PkgPath()}
	for _, opt := range opts {
		opt(&e)
	}
	if e.IsStruct() {
		e.model = (*T)(nil)
		e.bind = func(c *Container) error {
			return AddScoped(c, func(s *Scope) (repository.Repository[T], error) {
				return repository.New[T](s.Session()), nil
			}, func(r *Registration) {
				r.Implementation = reflect.TypeOf(repository.New[T](nil))
				r.Namespace = e.Namespace
			})
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = append(c.entries, e)
}

// Register catalogues T in the default catalog, typically from init().
func Register[T any](opts ...Option) {
	Add[T](defaultCatalog, opts...)
}

// Entries returns every entry in registration order.
func (c *Catalog) Entries() []Entry {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]Entry(nil), c.entries...)
}

// InNamespace returns the entries whose namespace equals ns, ignoring case.
func (c *Catalog) InNamespace(ns string) []Entry {
	ns = strings.TrimSpace(ns)
	var out []Entry
	for _, e := range c.Entries() {
		if strings.EqualFold(e.Namespace, ns) {
			out = append(out, e)
		}
	}
	return out
}

// Models returns the table models of the struct entries in ns.
func (c *Catalog) Models(ns string) []database.SQLModel {
	var models []database.SQLModel
	for _, e := range c.InNamespace(ns) {
		if e.IsStruct() {
			models = append(models, database.NewModelAdapter(e.model, e.Priority))
		}
	}
	return models
}
