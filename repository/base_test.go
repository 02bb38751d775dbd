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
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tomoncle/commonapi/database"
	"github.com/tomoncle/commonapi/predicate"
	"github.com/tomoncle/commonapi/types"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
)

type product struct {
	bun.BaseModel `bun:"table:products"`

	ID    int64   `bun:"id,pk,autoincrement"`
	Name  string  `bun:"name"`
	Color *string `bun:"color"`
	Price float64 `bun:"price"`
	Stock int     `bun:"stock"`
}

type orderLine struct {
	bun.BaseModel `bun:"table:order_lines"`

	OrderID int64 `bun:"order_id,pk"`
	Line    int   `bun:"line,pk"`
	Qty     int   `bun:"qty"`
}

func strPtr(s string) *string { return &s }

func newTestDB(t *testing.T) *bun.DB {
	t.Helper()
	sqldb, err := sql.Open(sqliteshim.ShimName, ":memory:")
	require.NoError(t, err)
	sqldb.SetMaxOpenConns(1)
	db := bun.NewDB(sqldb, sqlitedialect.New())
	t.Cleanup(func() { _ = db.Close() })

	ctx := context.Background()
	for _, m := range []interface{}{(*product)(nil), (*orderLine)(nil)} {
		_, err := db.NewCreateTable().Model(m).Exec(ctx)
		require.NoError(t, err)
	}
	return db
}

func seed(t *testing.T, repo Repository[product], products ...*product) {
	t.Helper()
	require.NoError(t, repo.AddRange(products...))
	_, err := repo.SaveChanges(context.Background())
	require.NoError(t, err)
}

func names(products []*product) []string {
	out := make([]string, len(products))
	for i, p := range products {
		out[i] = p.Name
	}
	return out
}

func TestGetAllByKeys(t *testing.T) {
	ctx := context.Background()
	repo := NewRepository[product](newTestDB(t))
	seed(t, repo,
		&product{Name: "lamp", Color: strPtr("red"), Stock: 1},
		&product{Name: "lamp", Stock: 1},
		&product{Name: "desk", Stock: 1},
		&product{Name: "lamp", Color: strPtr("red"), Stock: 2},
	)

	got, err := repo.GetAllByKeys(ctx, predicate.Keys{"Name": "lamp", "Color": "red"})
	require.NoError(t, err)
	assert.Len(t, got, 2)
	for _, p := range got {
		assert.Equal(t, "lamp", p.Name)
		assert.Equal(t, "red", *p.Color)
	}

	got, err = repo.GetAllByKeys(ctx, predicate.Keys{"color": nil})
	require.NoError(t, err)
	assert.Equal(t, []string{"lamp", "desk"}, names(got))

	got, err = repo.GetAllByKeys(ctx, predicate.Keys{})
	require.NoError(t, err)
	assert.Len(t, got, 4)

	one, err := repo.GetByKeys(ctx, predicate.Keys{"Name": "lamp", "Stock": 2})
	require.NoError(t, err)
	require.NotNil(t, one)
	assert.EqualValues(t, 4, one.ID)

	none, err := repo.GetByKeys(ctx, predicate.Keys{"Name": "chair"})
	require.NoError(t, err)
	assert.Nil(t, none)
}

func TestGetAllByKeysNullValues(t *testing.T) {
	ctx := context.Background()
	repo := NewRepository[product](newTestDB(t))
	seed(t, repo,
		&product{Name: "lamp", Color: strPtr("red")},
		&product{Name: "desk"},
	)

	for _, tc := range []struct {
		name string
		keys predicate.Keys
		want []string
	}{
		{"untyped nil", predicate.Keys{"Color": nil}, []string{"desk"}},
		{"typed nil pointer", predicate.Keys{"Color": (*string)(nil)}, []string{"desk"}},
		{"pointer value", predicate.Keys{"Color": strPtr("red")}, []string{"lamp"}},
	} {
		t.Run(tc.name, func(t *testing.T) {
			got, err := repo.GetAllByKeys(ctx, tc.keys)
			require.NoError(t, err)
			assert.Equal(t, tc.want, names(got))
		})
	}
}

func TestUnknownKeyIsArgumentError(t *testing.T) {
	ctx := context.Background()
	repo := NewRepository[product](newTestDB(t))

	_, err := repo.GetAllByKeys(ctx, predicate.Keys{"Name": "lamp", "Weight": 2})
	require.Error(t, err)
	assert.True(t, errors.Is(err, types.ErrInvalidArgument))
	var argErr *types.ArgumentError
	require.ErrorAs(t, err, &argErr)
	assert.Equal(t, "Weight", argErr.Arg)

	_, err = repo.GetByKeys(ctx, predicate.Keys{"": 1})
	assert.True(t, types.IsArgumentError(err))
}

func TestAddIsInvisibleUntilSaveChanges(t *testing.T) {
	ctx := context.Background()
	repo := NewRepository[product](newTestDB(t))
	seed(t, repo, &product{Name: "lamp"})

	require.NoError(t, repo.Add(&product{Name: "desk"}))
	require.NoError(t, repo.Insert(&product{Name: "chair"}))
	before, err := repo.GetAll(ctx)
	require.NoError(t, err)
	assert.Len(t, before, 1)

	n, err := repo.SaveChanges(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)

	after, err := repo.GetAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"lamp", "desk", "chair"}, names(after))
}

func TestRemove(t *testing.T) {
	ctx := context.Background()
	repo := NewRepository[product](newTestDB(t))
	lamp, desk, chair := &product{Name: "lamp"}, &product{Name: "desk"}, &product{Name: "chair"}
	seed(t, repo, lamp, desk, chair)

	require.NoError(t, repo.Remove(desk))
	_, err := repo.Save(ctx)
	require.NoError(t, err)

	all, err := repo.GetAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"lamp", "chair"}, names(all))

	require.NoError(t, repo.RemoveRange(lamp, chair))
	_, err = repo.SaveChanges(ctx)
	require.NoError(t, err)
	count, err := repo.Count(ctx, nil)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestUpdate(t *testing.T) {
	ctx := context.Background()
	repo := NewRepository[product](newTestDB(t))
	lamp, desk := &product{Name: "lamp", Stock: 1}, &product{Name: "desk", Stock: 1}
	seed(t, repo, lamp, desk)

	lamp.Stock, desk.Stock = 5, 6
	require.NoError(t, repo.UpdateRange(lamp, desk))
	n, err := repo.SaveChanges(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)

	got, err := repo.GetByID(ctx, desk.ID)
	require.NoError(t, err)
	assert.Equal(t, 6, got.Stock)
}

func TestRangeStagingIsAllOrNothing(t *testing.T) {
	repo := NewRepository[product](newTestDB(t))

	err := repo.AddRange(&product{Name: "lamp"}, nil)
	assert.True(t, types.IsArgumentError(err))
	assert.Contains(t, err.Error(), "entities[1]")
	assert.False(t, repo.Session().HasChanges())

	assert.True(t, types.IsArgumentError(repo.Add(nil)))
	assert.True(t, types.IsArgumentError(repo.Update(nil)))
	assert.True(t, types.IsArgumentError(repo.Remove(nil)))
}

func TestSetNewValuesFromEntity(t *testing.T) {
	ctx := context.Background()
	repo := NewRepository[product](newTestDB(t))
	a := &product{ID: 1, Name: "A", Color: strPtr("blue"), Stock: 3}
	seed(t, repo, a)

	require.NoError(t, repo.SetNewValuesFromEntity(ctx, a, &product{Name: "B"}))
	assert.False(t, repo.Session().HasChanges())

	got, err := repo.GetByID(ctx, 1)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.EqualValues(t, 1, got.ID)
	assert.Equal(t, "B", got.Name)
	assert.Equal(t, "blue", *got.Color)
	assert.Equal(t, 3, got.Stock)

	require.NoError(t, repo.SetNewValuesFromEntity(ctx, a, map[string]any{"color": "green", "Name": nil}))
	got, err = repo.GetByID(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "B", got.Name)
	assert.Equal(t, "green", *got.Color)

	var missing *product
	assert.True(t, types.IsArgumentError(repo.SetNewValuesFromEntity(ctx, nil, &product{})))
	assert.True(t, types.IsArgumentError(repo.SetNewValuesFromEntity(ctx, a, nil)))
	assert.True(t, types.IsArgumentError(repo.SetNewValuesFromEntity(ctx, a, missing)))
}

type productPatch struct {
	name  string
	Price float64
}

func TestSetNewValuesFromEntitySourceEdges(t *testing.T) {
	ctx := context.Background()
	repo := NewRepository[product](newTestDB(t))
	a := &product{ID: 1, Name: "A", Price: 1, Stock: 3}
	seed(t, repo, a)

	t.Run("unexported source field is skipped", func(t *testing.T) {
		assert.NotPanics(t, func() {
			require.NoError(t, repo.SetNewValuesFromEntity(ctx, a, productPatch{name: "B", Price: 2}))
		})
		got, err := repo.GetByID(ctx, 1)
		require.NoError(t, err)
		assert.Equal(t, "A", got.Name)
		assert.Equal(t, 2.0, got.Price)
	})

	t.Run("whole float from decoded json", func(t *testing.T) {
		require.NoError(t, repo.SetNewValuesFromEntity(ctx, a, map[string]any{"Stock": 4.0}))
		got, err := repo.GetByID(ctx, 1)
		require.NoError(t, err)
		assert.Equal(t, 4, got.Stock)
	})

	t.Run("fractional float is rejected", func(t *testing.T) {
		err := repo.SetNewValuesFromEntity(ctx, a, map[string]any{"Stock": 2.9, "Name": "C"})
		assert.True(t, types.IsArgumentError(err))
		assert.Equal(t, 4, a.Stock)
		assert.Equal(t, "A", a.Name)

		got, err := repo.GetByID(ctx, 1)
		require.NoError(t, err)
		assert.Equal(t, 4, got.Stock)
		assert.Equal(t, "A", got.Name)
	})
}

func TestGetMaxID(t *testing.T) {
	ctx := context.Background()
	repo := NewRepository[product](newTestDB(t))

	_, err := repo.GetMaxID(ctx, "Id")
	assert.ErrorIs(t, err, sql.ErrNoRows)

	seed(t, repo, &product{ID: 3, Name: "a"}, &product{ID: 7, Name: "b"})

	_, err = repo.GetMaxID(ctx, "")
	assert.True(t, types.IsArgumentError(err))

	maxID, err := repo.GetMaxID(ctx, "Id")
	require.NoError(t, err)
	assert.EqualValues(t, 7, maxID)

	_, err = repo.GetMaxID(ctx, "Name")
	assert.True(t, types.IsArgumentError(err))

	_, err = repo.GetMaxID(ctx, "Weight")
	assert.True(t, types.IsArgumentError(err))
}

func TestMax(t *testing.T) {
	ctx := context.Background()
	repo := NewRepository[product](newTestDB(t))
	seed(t, repo,
		&product{Name: "lamp", Price: 12.5},
		&product{Name: "lamp", Price: 30},
		&product{Name: "desk", Price: 99},
	)

	price, err := Max[product, float64](ctx, repo, predicate.Col[string]("name").Eq("lamp"), "Price")
	require.NoError(t, err)
	assert.Equal(t, 30.0, price)

	_, err = Max[product, float64](ctx, repo, predicate.Col[string]("name").Eq("chair"), "Price")
	assert.ErrorIs(t, err, sql.ErrNoRows)

	_, err = Max[product, float64](ctx, repo, nil, "Weight")
	assert.True(t, types.IsArgumentError(err))
}

func TestPredicateQueries(t *testing.T) {
	ctx := context.Background()
	repo := NewRepository[product](newTestDB(t))
	seed(t, repo,
		&product{Name: "lamp", Stock: 1},
		&product{Name: "desk", Stock: 4},
		&product{Name: "chair", Stock: 9},
	)
	inStock := predicate.Col[int]("stock").Gt(2)

	found, err := repo.Find(ctx, inStock)
	require.NoError(t, err)
	assert.Equal(t, []string{"desk", "chair"}, names(found))

	ok, err := repo.Any(ctx, predicate.Col[string]("name").Eq("desk"))
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = repo.Any(ctx, predicate.Col[string]("name").Eq("sofa"))
	require.NoError(t, err)
	assert.False(t, ok)

	n, err := repo.Count(ctx, inStock)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	first, err := repo.FirstOrDefault(ctx, inStock)
	require.NoError(t, err)
	assert.Equal(t, "desk", first.Name)

	_, err = repo.SingleOrDefault(ctx, inStock)
	assert.ErrorIs(t, err, ErrMultipleRows)

	single, err := repo.SingleOrDefault(ctx, predicate.And(inStock, predicate.Col[string]("name").Like("ch%")))
	require.NoError(t, err)
	assert.Equal(t, "chair", single.Name)

	none, err := repo.SingleOrDefault(ctx, predicate.False())
	require.NoError(t, err)
	assert.Nil(t, none)

	raw, err := repo.Find(ctx, types.NewQueryFilter("stock < ?", 5))
	require.NoError(t, err)
	assert.Equal(t, []string{"lamp", "desk"}, names(raw))
}

func TestGetByID(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	repo := NewRepository[product](db)
	lamp := &product{Name: "lamp"}
	seed(t, repo, lamp)

	got, err := repo.GetByID(ctx, lamp.ID)
	require.NoError(t, err)
	assert.Equal(t, "lamp", got.Name)

	got, err = repo.GetByID(ctx, 404)
	require.NoError(t, err)
	assert.Nil(t, got)

	_, err = repo.GetByID(ctx, nil)
	assert.True(t, types.IsArgumentError(err))

	_, err = NewRepository[orderLine](db).GetByID(ctx, 1)
	assert.True(t, types.IsArgumentError(err))
}

func TestPage(t *testing.T) {
	ctx := context.Background()
	repo := NewRepository[product](newTestDB(t))
	for _, name := range []string{"a", "b", "c", "d", "e"} {
		require.NoError(t, repo.Add(&product{Name: name, Stock: 1}))
	}
	_, err := repo.SaveChanges(ctx)
	require.NoError(t, err)

	page, err := repo.Page(ctx, types.NewDefaultPageRequest(2, 2))
	require.NoError(t, err)
	assert.Equal(t, 5, page.Total)
	assert.Equal(t, 3, page.Pages())
	assert.Equal(t, []string{"c", "d"}, names(page.Items))

	page, err = repo.Page(ctx, types.NewPageRequest(1, 10, predicate.Col[string]("name").In("a", "e"), []string{"name DESC"}))
	require.NoError(t, err)
	assert.Equal(t, 2, page.Total)
	assert.Equal(t, []string{"e", "a"}, names(page.Items))

	page, err = repo.Page(ctx, types.NewPageRequestWithFilter(1, 10, predicate.False()))
	require.NoError(t, err)
	assert.Zero(t, page.Total)
	assert.Empty(t, page.Items)

	_, err = repo.Page(ctx, nil)
	assert.True(t, types.IsArgumentError(err))
}

func TestUpsert(t *testing.T) {
	ctx := context.Background()
	repo := NewRepository[product](newTestDB(t))
	seed(t, repo, &product{ID: 1, Name: "lamp", Stock: 1})

	require.NoError(t, repo.Upsert([]string{"stock"}, []string{"id"},
		&product{ID: 1, Name: "ignored", Stock: 8},
		&product{ID: 2, Name: "desk", Stock: 2},
	))
	_, err := repo.SaveChanges(ctx)
	require.NoError(t, err)

	all, err := repo.GetAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "lamp", all[0].Name)
	assert.Equal(t, 8, all[0].Stock)
	assert.Equal(t, "desk", all[1].Name)

	assert.True(t, types.IsArgumentError(repo.Upsert(nil, nil, &product{})))
}

func TestRepositoriesShareSession(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	session := database.OpenSession(db)
	products := New[product](session)
	lines := New[orderLine](session)

	require.NoError(t, products.Add(&product{Name: "lamp"}))
	require.NoError(t, lines.Add(&orderLine{OrderID: 1, Line: 1, Qty: 2}))

	n, err := lines.SaveChanges(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)
	assert.Same(t, session, products.Session())

	count, err := products.Count(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
	assert.Equal(t, "products", products.Table().Name)
	assert.NotNil(t, products.Dialect())
}
