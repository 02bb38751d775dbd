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
	"errors"
	"fmt"
	"reflect"

	"github.com/tomoncle/commonapi/database"
	"github.com/tomoncle/commonapi/predicate"
	"github.com/tomoncle/commonapi/types"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/schema"
)

// ErrMultipleRows is returned by SingleOrDefault when more than one row matches.
var ErrMultipleRows = errors.New("repository: more than one row matches")

type baseRepositoryImpl[T any] struct {
	session *database.Session
}

// New returns a repository for T staging its writes on session.
func New[T any](session *database.Session) Repository[T] {
	return &baseRepositoryImpl[T]{session: session}
}

// NewRepository returns a repository for T with a session of its own.
func NewRepository[T any](db *bun.DB) Repository[T] {
	return New[T](database.OpenSession(db))
}

func (r *baseRepositoryImpl[T]) Session() *database.Session { return r.session }

func (r *baseRepositoryImpl[T]) db() *bun.DB { return r.session.DB() }

func (r *baseRepositoryImpl[T]) Table() *schema.Table { return predicate.TableOf[T](r.db()) }

func (r *baseRepositoryImpl[T]) Dialect() schema.Dialect { return r.db().Dialect() }

func (r *baseRepositoryImpl[T]) NewSelect() *bun.SelectQuery { return r.db().NewSelect() }

// selectQuery selects rows of T into dest, filtered by p and ordered by
// primary key.
func (r *baseRepositoryImpl[T]) selectQuery(dest *[]*T, p predicate.Predicate) *bun.SelectQuery {
	q := predicate.Apply(r.db().NewSelect().Model(dest), p)
	for _, pk := range r.Table().PKs {
		q = q.OrderExpr("? ASC", bun.Ident(pk.Name))
	}
	return q
}

func (r *baseRepositoryImpl[T]) GetByID(ctx context.Context, id any) (*T, error) {
	if id == nil {
		return nil, types.NewArgumentError("id", "cannot be nil")
	}
	table := r.Table()
	if len(table.PKs) != 1 {
		return nil, types.NewArgumentError("id", "%s has %d primary key columns, want 1", table.Type.Name(), len(table.PKs))
	}
	return r.FirstOrDefault(ctx, predicate.Col[any](table.PKs[0].Name).Eq(id))
}

func (r *baseRepositoryImpl[T]) GetByKeys(ctx context.Context, keys predicate.Keys) (*T, error) {
	p, err := predicate.FromKeys(r.Table(), keys)
	if err != nil {
		return nil, err
	}
	return r.FirstOrDefault(ctx, p)
}

func (r *baseRepositoryImpl[T]) GetAllByKeys(ctx context.Context, keys predicate.Keys) ([]*T, error) {
	p, err := predicate.FromKeys(r.Table(), keys)
	if err != nil {
		return nil, err
	}
	return r.Find(ctx, p)
}

func (r *baseRepositoryImpl[T]) GetAll(ctx context.Context) ([]*T, error) {
	return r.Find(ctx, predicate.True())
}

func (r *baseRepositoryImpl[T]) Find(ctx context.Context, p predicate.Predicate) ([]*T, error) {
	entities := make([]*T, 0)
	if err := r.selectQuery(&entities, p).Scan(ctx); err != nil {
		return nil, err
	}
	return entities, nil
}

func (r *baseRepositoryImpl[T]) Any(ctx context.Context, p predicate.Predicate) (bool, error) {
	return predicate.Apply(r.db().NewSelect().Model((*T)(nil)), p).Exists(ctx)
}

func (r *baseRepositoryImpl[T]) Count(ctx context.Context, p predicate.Predicate) (int, error) {
	return predicate.Apply(r.db().NewSelect().Model((*T)(nil)), p).Count(ctx)
}

func (r *baseRepositoryImpl[T]) SingleOrDefault(ctx context.Context, p predicate.Predicate) (*T, error) {
	var entities []*T
	if err := r.selectQuery(&entities, p).Limit(2).Scan(ctx); err != nil {
		return nil, err
	}
	switch len(entities) {
	case 0:
		return nil, nil
	case 1:
		return entities[0], nil
	default:
		return nil, ErrMultipleRows
	}
}

func (r *baseRepositoryImpl[T]) FirstOrDefault(ctx context.Context, p predicate.Predicate) (*T, error) {
	var entities []*T
	if err := r.selectQuery(&entities, p).Limit(1).Scan(ctx); err != nil {
		return nil, err
	}
	if len(entities) == 0 {
		return nil, nil
	}
	return entities[0], nil
}

func (r *baseRepositoryImpl[T]) GetMaxID(ctx context.Context, property string) (int64, error) {
	field, err := predicate.LookupField(r.Table(), property)
	if err != nil {
		return 0, err
	}
	switch field.IndirectType.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
	default:
		return 0, types.NewArgumentError(property, "property is not an integer, got %s", field.IndirectType)
	}
	return Max[T, int64](ctx, r, predicate.True(), field.Name)
}

func (r *baseRepositoryImpl[T]) Page(ctx context.Context, pageRequest *types.PageRequest) (*types.Pagination[T], error) {
	if pageRequest == nil {
		return nil, types.NewArgumentError("pageRequest", "cannot be nil")
	}
	pagination := types.NewDefaultPagination[T](pageRequest.GetPage(), pageRequest.GetPageSize())
	total, err := predicate.Apply(r.db().NewSelect().Model((*T)(nil)), pageRequest.GetFilter()).Count(ctx)
	if err != nil || total == 0 {
		return pagination, err
	}

	entities := make([]*T, 0, pageRequest.GetPageSize())
	query := predicate.Apply(r.db().NewSelect().Model(&entities), pageRequest.GetFilter())
	if orders := pageRequest.GetOrders(); len(orders) > 0 {
		query = query.Order(orders...)
	} else {
		for _, pk := range r.Table().PKs {
			query = query.OrderExpr("? ASC", bun.Ident(pk.Name))
		}
	}
	err = query.
		Offset(pageRequest.GetOffset()).
		Limit(pageRequest.GetPageSize()).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	pagination.Total = total
	pagination.Items = entities
	return pagination, nil
}

func (r *baseRepositoryImpl[T]) Add(entity *T) error {
	return r.session.Add(entity)
}

func (r *baseRepositoryImpl[T]) AddRange(entities ...*T) error {
	return r.stageRange(entities, r.session.Add)
}

func (r *baseRepositoryImpl[T]) Insert(entity *T) error {
	return r.Add(entity)
}

func (r *baseRepositoryImpl[T]) InsertRange(entities ...*T) error {
	return r.AddRange(entities...)
}

func (r *baseRepositoryImpl[T]) Update(entity *T) error {
	return r.session.Update(entity)
}

func (r *baseRepositoryImpl[T]) UpdateRange(entities ...*T) error {
	return r.stageRange(entities, r.session.Update)
}

func (r *baseRepositoryImpl[T]) Remove(entity *T) error {
	return r.session.Remove(entity)
}

func (r *baseRepositoryImpl[T]) RemoveRange(entities ...*T) error {
	return r.stageRange(entities, r.session.Remove)
}

func (r *baseRepositoryImpl[T]) Upsert(fields []string, conflictKeys []string, entities ...*T) error {
	if len(fields) == 0 {
		return types.NewArgumentError("fields", "cannot be empty")
	}
	return r.stageRange(entities, func(entity interface{}) error {
		return r.session.Upsert(entity, fields, conflictKeys)
	})
}

// stageRange stages every entity or none of them.
func (r *baseRepositoryImpl[T]) stageRange(entities []*T, stage func(interface{}) error) error {
	for i, entity := range entities {
		if entity == nil {
			return types.NewArgumentError(fmt.Sprintf("entities[%d]", i), "cannot be nil")
		}
	}
	for _, entity := range entities {
		if err := stage(entity); err != nil {
			return err
		}
	}
	return nil
}

func (r *baseRepositoryImpl[T]) SaveChanges(ctx context.Context) (int64, error) {
	return r.session.SaveChanges(ctx)
}

func (r *baseRepositoryImpl[T]) Save(ctx context.Context) (int64, error) {
	return r.SaveChanges(ctx)
}

// SetNewValuesFromEntity copies the non-null properties of newValues onto
// entity and saves every pending change of the session right away.
func (r *baseRepositoryImpl[T]) SetNewValuesFromEntity(ctx context.Context, entity *T, newValues any) error {
	if entity == nil {
		return types.NewArgumentError("entity", "cannot be nil")
	}
	if isNilValue(newValues) {
		return types.NewArgumentError("newValues", "cannot be nil")
	}
	entry, err := r.session.Entry(entity)
	if err != nil {
		return err
	}
	if _, err := entry.SetValues(newValues); err != nil {
		return err
	}
	if err := r.session.Update(entity); err != nil {
		return err
	}
	_, err = r.session.SaveChanges(ctx)
	return err
}

func isNilValue(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Ptr, reflect.Interface, reflect.Map, reflect.Slice:
		return rv.IsNil()
	}
	return false
}
