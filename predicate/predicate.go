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
	"strings"

	"github.com/tomoncle/commonapi/types"
)

// Predicate is a boolean condition over an entity, rendered as a bun WHERE
// fragment. An empty query is the constant true.
type Predicate = types.Filter

type condition struct {
	query string
	args  []interface{}
}

func (c condition) SQL() (string, []interface{}) { return c.query, c.args }

// True matches every row.
func True() Predicate { return condition{} }

// False matches no row.
func False() Predicate { return condition{query: "1 = 0"} }

// Raw wraps a hand-written condition using bun placeholders.
func Raw(query string, args ...interface{}) Predicate {
	return condition{query: strings.TrimSpace(query), args: args}
}

// And conjoins predicates. Constant-true operands are dropped.
func And(ps ...Predicate) Predicate {
	return join(" AND ", ps, false)
}

// Or disjoins predicates. A constant-true operand makes the result true.
func Or(ps ...Predicate) Predicate {
	return join(" OR ", ps, true)
}

// Not negates p.
func Not(p Predicate) Predicate {
	query, args := render(p)
	if query == "" {
		return False()
	}
	return condition{query: "NOT (" + query + ")", args: args}
}

func join(sep string, ps []Predicate, trueWins bool) Predicate {
	parts := make([]string, 0, len(ps))
	var args []interface{}
	for _, p := range ps {
		query, pArgs := render(p)
		if query == "" {
			if trueWins {
				return True()
			}
			continue
		}
		parts = append(parts, query)
		args = append(args, pArgs...)
	}
	switch len(parts) {
	case 0:
		if trueWins {
			return False()
		}
		return True()
	case 1:
		return condition{query: parts[0], args: args}
	}
	for i := range parts {
		parts[i] = "(" + parts[i] + ")"
	}
	return condition{query: strings.Join(parts, sep), args: args}
}

func render(p Predicate) (string, []interface{}) {
	if p == nil || isNil(p) {
		return "", nil
	}
	return p.SQL()
}

// IsTrue reports whether p is the constant true (renders no condition).
func IsTrue(p Predicate) bool {
	query, _ := render(p)
	return query == ""
}

type whereQuery[Q any] interface {
	Where(query string, args ...interface{}) Q
}

// Apply adds p to the WHERE clause of a bun select, update or delete query.
func Apply[Q whereQuery[Q]](q Q, p Predicate) Q {
	query, args := render(p)
	if query == "" {
		return q
	}
	return q.Where(query, args...)
}

func isNil(v interface{}) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Ptr, reflect.Interface, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan:
		return rv.IsNil()
	}
	return false
}
