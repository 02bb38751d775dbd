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
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tomoncle/commonapi/types"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/mysqldialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
)

type account struct {
	bun.BaseModel `bun:"table:accounts"`

	ID      int64   `bun:"id,pk,autoincrement"`
	Name    string  `bun:"name,notnull"`
	Email   *string `bun:"email,unique"`
	Balance int     `bun:"balance"`
}

func strPtr(s string) *string { return &s }

func newTestDB(t *testing.T, models ...interface{}) *bun.DB {
	t.Helper()
	sqldb, err := sql.Open(sqliteshim.ShimName, ":memory:")
	require.NoError(t, err)
	sqldb.SetMaxOpenConns(1)
	db := bun.NewDB(sqldb, sqlitedialect.New())
	t.Cleanup(func() { _ = db.Close() })

	for _, m := range models {
		_, err := db.NewCreateTable().Model(m).Exec(context.Background())
		require.NoError(t, err)
	}
	return db
}

func countAccounts(t *testing.T, db *bun.DB) int {
	t.Helper()
	n, err := db.NewSelect().Model((*account)(nil)).Count(context.Background())
	require.NoError(t, err)
	return n
}

func TestSessionAddIsDeferredUntilSave(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t, (*account)(nil))
	s := OpenSession(db)

	require.NoError(t, s.Add(&account{Name: "ada"}))
	require.NoError(t, s.Add(&account{Name: "bob"}))
	assert.True(t, s.HasChanges())
	assert.Equal(t, 0, countAccounts(t, db))

	n, err := s.SaveChanges(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)
	assert.False(t, s.HasChanges())
	assert.Equal(t, 2, countAccounts(t, db))

	n, err = s.SaveChanges(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestSessionUpdateAndRemove(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t, (*account)(nil))
	s := OpenSession(db)

	a := &account{Name: "ada", Balance: 10}
	require.NoError(t, s.Add(a))
	_, err := s.SaveChanges(ctx)
	require.NoError(t, err)
	require.NotZero(t, a.ID)

	a.Balance = 25
	require.NoError(t, s.Update(a))
	n, err := s.SaveChanges(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	var got account
	require.NoError(t, db.NewSelect().Model(&got).Where("id = ?", a.ID).Scan(ctx))
	assert.Equal(t, 25, got.Balance)

	require.NoError(t, s.Remove(a))
	_, err = s.SaveChanges(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, countAccounts(t, db))
}

func TestSessionUpsert(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t, (*account)(nil))
	s := OpenSession(db)

	require.NoError(t, s.Add(&account{ID: 1, Name: "ada", Balance: 1}))
	_, err := s.SaveChanges(ctx)
	require.NoError(t, err)

	require.NoError(t, s.Upsert(&account{ID: 1, Name: "ada lovelace", Balance: 2}, []string{"name"}, nil))
	require.NoError(t, s.Upsert(&account{ID: 2, Name: "bob", Balance: 3}, []string{"name"}, []string{"id"}))
	_, err = s.SaveChanges(ctx)
	require.NoError(t, err)

	var rows []account
	require.NoError(t, db.NewSelect().Model(&rows).Order("id").Scan(ctx))
	require.Len(t, rows, 2)
	assert.Equal(t, "ada lovelace", rows[0].Name)
	assert.Equal(t, 1, rows[0].Balance)
	assert.Equal(t, "bob", rows[1].Name)

	err = s.Upsert(&account{ID: 3}, nil, nil)
	assert.True(t, types.IsArgumentError(err))
}

func TestSessionRejectsInvalidEntities(t *testing.T) {
	s := OpenSession(newTestDB(t))

	var nilAccount *account
	for name, entity := range map[string]interface{}{
		"nil":         nil,
		"nil pointer": nilAccount,
		"value":       account{},
		"non struct":  strPtr("x"),
	} {
		t.Run(name, func(t *testing.T) {
			err := s.Add(entity)
			assert.True(t, types.IsArgumentError(err), "got %v", err)
		})
	}
	assert.False(t, s.HasChanges())
}

func TestSessionPendingChanges(t *testing.T) {
	s := OpenSession(newTestDB(t))
	a := &account{ID: 7, Name: "ada"}

	require.NoError(t, s.Add(a))
	require.NoError(t, s.Update(a))
	require.NoError(t, s.Remove(a))

	pending := s.PendingChanges()
	require.Len(t, pending, 3)
	assert.Equal(t, []ChangeKind{ChangeAdded, ChangeModified, ChangeDeleted},
		[]ChangeKind{pending[0].Kind, pending[1].Kind, pending[2].Kind})
	assert.Same(t, a, pending[2].Entity)

	s.DiscardChanges()
	assert.False(t, s.HasChanges())
	assert.NotEmpty(t, s.ID())
	assert.NotEqual(t, s.ID(), OpenSession(s.DB()).ID())
}

func TestSessionSaveFailureKeepsChanges(t *testing.T) {
	sqldb, mock, err := sqlmock.New()
	require.NoError(t, err)
	db := bun.NewDB(sqldb, mysqldialect.New())
	defer db.Close()

	boom := errors.New("connection reset by peer")
	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO").WillReturnError(boom)
	mock.ExpectRollback()

	s := OpenSession(db)
	require.NoError(t, s.Add(&account{Name: "ada"}))

	n, err := s.SaveChanges(context.Background())
	assert.ErrorIs(t, err, boom)
	assert.Zero(t, n)
	assert.True(t, s.HasChanges())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSessionDuplicateKeyIsClassified(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t, (*account)(nil))
	s := OpenSession(db)

	require.NoError(t, s.Add(&account{Name: "ada", Email: strPtr("ada@example.com")}))
	require.NoError(t, s.Add(&account{Name: "eve", Email: strPtr("ada@example.com")}))
	_, err := s.SaveChanges(ctx)
	require.Error(t, err)
	assert.True(t, IsDuplicateKey(err), "got %v", err)
	assert.Equal(t, 0, countAccounts(t, db))
}

func TestChangeKindEnum(t *testing.T) {
	k, ok := types.ParseEnum("Upserted", ChangeAdded, ChangeModified, ChangeDeleted, ChangeUpserted)
	require.True(t, ok)
	assert.Equal(t, ChangeUpserted, k)
	assert.Equal(t, "upserted", k.String())

	assert.False(t, ChangeKind(0).IsValid())
	assert.Equal(t, types.IllegalValue, ChangeKind(42).Number())
	assert.Equal(t, types.IllegalDesc, ChangeKind(42).Desc())
}
