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

import (
	"context"
	"database/sql"

	"github.com/tomoncle/commonapi/predicate"
	"github.com/uptrace/bun"
)

// Max returns the largest value of property over the rows of T matching p.
// It returns sql.ErrNoRows when no row matches or every value is NULL.
func Max[T any, V any](ctx context.Context, repo Repository[T], p predicate.Predicate, property string) (V, error) {
	var zero V
	field, err := predicate.LookupField(repo.Table(), property)
	if err != nil {
		return zero, err
	}

	var out sql.Null[V]
	err = predicate.Apply(repo.NewSelect().Model((*T)(nil)), p).
		ColumnExpr("MAX(?)", bun.Ident(field.Name)).
		Scan(ctx, &out)
	if err != nil {
		return zero, err
	}
	if !out.Valid {
		return zero, sql.ErrNoRows
	}
	return out.V, nil
}
