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

	"github.com/tomoncle/commonapi/database"
	"github.com/tomoncle/commonapi/predicate"
	"github.com/tomoncle/commonapi/types"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/schema"
)

// QueryRepository defines the read operations for an entity type. Reads
// run immediately and never see staged changes.
type QueryRepository[T any] interface {
	GetByID(ctx context.Context, id any) (*T, error)

	GetByKeys(ctx context.Context, keys predicate.Keys) (*T, error)

	GetAllByKeys(ctx context.Context, keys predicate.Keys) ([]*T, error)

	GetAll(ctx context.Context) ([]*T, error)

	Find(ctx context.Context, p predicate.Predicate) ([]*T, error)

	Any(ctx context.Context, p predicate.Predicate) (bool, error)

	Count(ctx context.Context, p predicate.Predicate) (int, error)

	SingleOrDefault(ctx context.Context, p predicate.Predicate) (*T, error)

	FirstOrDefault(ctx context.Context, p predicate.Predicate) (*T, error)

	GetMaxID(ctx context.Context, property string) (int64, error)
}

// PageQueryRepository defines pagination over an entity type.
type PageQueryRepository[T any] interface {
	Page(ctx context.Context, page *types.PageRequest) (*types.Pagination[T], error)
}

// UnitOfWorkRepository stages writes on the shared session. Nothing is
// written until SaveChanges.
type UnitOfWorkRepository[T any] interface {
	Add(entity *T) error
	AddRange(entities ...*T) error
	Insert(entity *T) error
	InsertRange(entities ...*T) error
	Update(entity *T) error
	UpdateRange(entities ...*T) error
	Remove(entity *T) error
	RemoveRange(entities ...*T) error
	Upsert(fields []string, conflictKeys []string, entities ...*T) error

	SaveChanges(ctx context.Context) (int64, error)
	Save(ctx context.Context) (int64, error)

	SetNewValuesFromEntity(ctx context.Context, entity *T, newValues any) error
}

// Repository is the data access facade for one entity type. It also exposes
// the session and Bun builders for queries the facade does not cover.
type Repository[T any] interface {
	QueryRepository[T]
	PageQueryRepository[T]
	UnitOfWorkRepository[T]
	Session() *database.Session
	Table() *schema.Table
	Dialect() schema.Dialect
	NewSelect() *bun.SelectQuery
}
