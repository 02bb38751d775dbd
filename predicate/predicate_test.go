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
	"database/sql"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tomoncle/commonapi/types"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
)

type gadget struct {
	bun.BaseModel `bun:"table:gadgets"`

	ID    int64   `bun:"id,pk,autoincrement"`
	Name  string  `bun:"name"`
	Color *string `bun:"color"`
	Qty   int     `bun:"qty"`
}

func newTestDB(t *testing.T) *bun.DB {
	sqldb, err := sql.Open(sqliteshim.ShimName, ":memory:")
	require.NoError(t, err)
	db := bun.NewDB(sqldb, sqlitedialect.New())
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestCombinators(t *testing.T) {
	t.Run("and drops true operands", func(t *testing.T) {
		query, args := And(True(), Raw("a = ?", 1), nil, Raw("b = ?", 2)).SQL()
		assert.Equal(t, "(a = ?) AND (b = ?)", query)
		assert.Equal(t, []interface{}{1, 2}, args)
	})

	t.Run("single operand is not wrapped", func(t *testing.T) {
		query, _ := And(Raw("a = ?", 1)).SQL()
		assert.Equal(t, "a = ?", query)
	})

	t.Run("empty and is true", func(t *testing.T) {
		assert.True(t, IsTrue(And()))
	})

	t.Run("or with a true operand is true", func(t *testing.T) {
		assert.True(t, IsTrue(Or(Raw("a = 1"), True())))
	})

	t.Run("empty or is false", func(t *testing.T) {
		query, _ := Or().SQL()
		assert.Equal(t, "1 = 0", query)
	})

	t.Run("not", func(t *testing.T) {
		query, args := Not(Or(Raw("a = ?", 1), Raw("b = ?", 2))).SQL()
		assert.Equal(t, "NOT ((a = ?) OR (b = ?))", query)
		assert.Len(t, args, 2)

		query, _ = Not(True()).SQL()
		assert.Equal(t, "1 = 0", query)
	})

	t.Run("query filter is a predicate", func(t *testing.T) {
		query, args := And(types.NewQueryFilter("qty > ?", 3)).SQL()
		assert.Equal(t, "qty > ?", query)
		assert.Equal(t, []interface{}{3}, args)
	})
}

func TestColumnRendering(t *testing.T) {
	db := newTestDB(t)
	render := func(p Predicate) string {
		return Apply(db.NewSelect().Model((*gadget)(nil)), p).String()
	}

	assert.Contains(t, render(Col[string]("name").Eq("lamp")), `"name" = 'lamp'`)
	assert.Contains(t, render(Col[*string]("color").Eq(nil)), `"color" IS NULL`)
	assert.Contains(t, render(Col[*string]("color").Ne(nil)), `"color" IS NOT NULL`)
	assert.Contains(t, render(Col[int]("qty").Ge(2)), `"qty" >= 2`)
	assert.Contains(t, render(Col[int]("qty").In(1, 2, 3)), `"qty" IN (1, 2, 3)`)
	assert.Contains(t, render(Col[int]("qty").In()), `1 = 0`)
	assert.Contains(t, render(Col[string]("name").Like("la%")), `"name" LIKE 'la%'`)
	assert.NotContains(t, render(True()), "WHERE")
}

func TestFromKeys(t *testing.T) {
	db := newTestDB(t)
	table := TableOf[gadget](db)

	t.Run("equality and null", func(t *testing.T) {
		p, err := FromKeys(table, Keys{"Name": "lamp", "color": nil, "QTY": 2})
		require.NoError(t, err)
		rendered := Apply(db.NewSelect().Model((*gadget)(nil)), p).String()
		assert.Contains(t, rendered, `"color" IS NULL`)
		assert.Contains(t, rendered, `"name" = 'lamp'`)
		assert.Contains(t, rendered, `"qty" = 2`)
	})

	t.Run("typed nil pointer is null", func(t *testing.T) {
		var color *string
		p, err := FromKeys(table, Keys{"Color": color})
		require.NoError(t, err)
		query, _ := p.SQL()
		assert.Equal(t, "? IS NULL", query)
	})

	t.Run("empty keys match everything", func(t *testing.T) {
		p, err := FromKeys(table, Keys{})
		require.NoError(t, err)
		assert.True(t, IsTrue(p))
	})

	t.Run("unknown key is an argument error naming it", func(t *testing.T) {
		_, err := FromKeys(table, Keys{"Name": "lamp", "Weight": 3})
		require.Error(t, err)
		assert.True(t, errors.Is(err, types.ErrInvalidArgument))
		assert.Contains(t, err.Error(), "Weight")
	})

	t.Run("keys are resolved in sorted order", func(t *testing.T) {
		assert.Equal(t, []string{"Color", "Name", "Qty"}, Keys{"Qty": 1, "Name": "a", "Color": nil}.Names())
	})
}

func TestLookupField(t *testing.T) {
	db := newTestDB(t)
	table := TableOf[gadget](db)

	f, err := LookupField(table, "Id")
	require.NoError(t, err)
	assert.Equal(t, "id", f.Name)
	assert.True(t, f.IsPK)

	_, err = LookupField(table, " ")
	assert.True(t, types.IsArgumentError(err))
}
