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

package predicate

import "github.com/uptrace/bun"

// Column is a typed selector for one SQL column. V is the Go type the
// column's values are compared against.
type Column[V any] struct {
	name string
}

// Col returns a typed column selector for the SQL column name.
func Col[V any](name string) Column[V] {
	return Column[V]{name: name}
}

// Name returns the SQL column name.
func (c Column[V]) Name() string { return c.name }

// Eq tests equality; a nil value becomes IS NULL.
func (c Column[V]) Eq(v V) Predicate {
	if isNil(v) {
		return c.IsNull()
	}
	return c.compare("=", v)
}

// Ne tests inequality; a nil value becomes IS NOT NULL.
func (c Column[V]) Ne(v V) Predicate {
	if isNil(v) {
		return c.NotNull()
	}
	return c.compare("<>", v)
}

// Gt matches values greater than v.
func (c Column[V]) Gt(v V) Predicate { return c.compare(">", v) }
// Ge matches values greater than or equal to v.
func (c Column[V]) Ge(v V) Predicate { return c.compare(">=", v) }
// Lt matches values less than v.
func (c Column[V]) Lt(v V) Predicate { return c.compare("<", v) }
// Le matches values less than or equal to v.
func (c Column[V]) Le(v V) Predicate { return c.compare("<=", v) }

// In matches any of values. An empty list matches nothing.
func (c Column[V]) In(values ...V) Predicate {
	if len(values) == 0 {
		return False()
	}
	return condition{query: "? IN (?)", args: []interface{}{bun.Ident(c.name), bun.In(values)}}
}

// Like matches a SQL LIKE pattern.
func (c Column[V]) Like(pattern string) Predicate {
	return condition{query: "? LIKE ?", args: []interface{}{bun.Ident(c.name), pattern}}
}

// IsNull matches NULL.
func (c Column[V]) IsNull() Predicate {
	return condition{query: "? IS NULL", args: []interface{}{bun.Ident(c.name)}}
}

// NotNull matches any non-NULL value.
func (c Column[V]) NotNull() Predicate {
	return condition{query: "? IS NOT NULL", args: []interface{}{bun.Ident(c.name)}}
}

func (c Column[V]) compare(op string, v V) Predicate {
	return condition{query: "? " + op + " ?", args: []interface{}{bun.Ident(c.name), v}}
}
