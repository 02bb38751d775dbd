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

import (
	"reflect"
	"sort"
	"strings"

	"github.com/tomoncle/commonapi/types"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/schema"
)

// Keys maps a property name to the value it must equal. A nil value
// matches SQL NULL.
type Keys map[string]interface{}

// Names returns the property names in sorted order.
func (k Keys) Names() []string {
	names := make([]string, 0, len(k))
	for name := range k {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// FromKeys builds the conjunction of one equality test per key. Every key
// must resolve to a field of table; the first one that does not is
// reported as an ArgumentError naming it. Empty keys yield True.
func FromKeys(table *schema.Table, keys Keys) (Predicate, error) {
	parts := make([]Predicate, 0, len(keys))
	for _, name := range keys.Names() {
		field, err := LookupField(table, name)
		if err != nil {
			return nil, err
		}
		parts = append(parts, Col[interface{}](field.Name).Eq(keys[name]))
	}
	return And(parts...), nil
}

// KeysFor resolves keys against the bun table registered for T.
func KeysFor[T any](db bun.IDB, keys Keys) (Predicate, error) {
	return FromKeys(TableOf[T](db), keys)
}

// TableOf returns the bun table metadata for the model type T.
func TableOf[T any](db bun.IDB) *schema.Table {
	return db.Dialect().Tables().Get(reflect.TypeOf((*T)(nil)).Elem())
}

// LookupField resolves a property by Go field name or column name.
// Exact matches win over case-insensitive ones.
func LookupField(table *schema.Table, name string) (*schema.Field, error) {
	if strings.TrimSpace(name) == "" {
		return nil, types.NewArgumentError("name", "property name cannot be blank")
	}
	for _, f := range table.Fields {
		if f.GoName == name || f.Name == name {
			return f, nil
		}
	}
	for _, f := range table.Fields {
		if strings.EqualFold(f.GoName, name) || strings.EqualFold(f.Name, name) {
			return f, nil
		}
	}
	return nil, types.NewArgumentError(name, "no such property on %s", table.Type.Name())
}
