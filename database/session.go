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
	"reflect"

	"github.com/google/uuid"
	"github.com/tomoncle/commonapi/types"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/feature"
)

// ChangeKind is the kind of write staged on a Session.
type ChangeKind int

const (
	ChangeAdded ChangeKind = iota + 1
	ChangeModified
	ChangeDeleted
	ChangeUpserted
)

var changeKindNames = map[ChangeKind]string{
	ChangeAdded:    "added",
	ChangeModified: "modified",
	ChangeDeleted:  "deleted",
	ChangeUpserted: "upserted",
}

// IsValid reports whether k is a declared kind.
func (k ChangeKind) IsValid() bool {
	_, ok := changeKindNames[k]
	return ok
}

// Number returns the enum value.
func (k ChangeKind) Number() int {
	if !k.IsValid() {
		return types.IllegalValue
	}
	return int(k)
}

// Name returns the kind name.
func (k ChangeKind) Name() string {
	if name, ok := changeKindNames[k]; ok {
		return name
	}
	return types.IllegalName
}

// String returns the kind name.
func (k ChangeKind) String() string { return k.Name() }

// Desc describes the statement a change of kind k runs.
func (k ChangeKind) Desc() string {
	switch k {
	case ChangeAdded:
		return "insert on save"
	case ChangeModified:
		return "update by primary key on save"
	case ChangeDeleted:
		return "delete by primary key on save"
	case ChangeUpserted:
		return "insert or update on conflict on save"
	default:
		return types.IllegalDesc
	}
}

// Change is one staged write. Entity is a non-nil pointer to a model struct.
type Change struct {
	Kind   ChangeKind
	Entity interface{}
	// Upsert only: columns overwritten on conflict and the conflict target.
	Fields       []string
	ConflictKeys []string
}

// Session is the persistence context shared by the repositories of one scope.
// Reads go straight to the database; writes are staged and flushed together
// by SaveChanges. A Session is not safe for concurrent use.
type Session struct {
	id      string
	db      *bun.DB
	logger  Logger
	pending []Change
}

// OpenSession starts an empty unit of work on db.
func OpenSession(db *bun.DB) *Session {
	return &Session{
		id:     uuid.NewString(),
		db:     db,
		logger: GetLogger(),
	}
}

// ID returns the session id used in logs.
func (s *Session) ID() string { return s.id }

// DB returns the database reads and SaveChanges run against.
func (s *Session) DB() *bun.DB { return s.db }

// SetLogger replaces the logger; nil is ignored.
func (s *Session) SetLogger(logger Logger) {
	if logger != nil {
		s.logger = logger
	}
}

// Add stages entity for insertion.
func (s *Session) Add(entity interface{}) error {
	return s.stage(Change{Kind: ChangeAdded, Entity: entity})
}

// Update stages entity for an update by primary key.
func (s *Session) Update(entity interface{}) error {
	return s.stage(Change{Kind: ChangeModified, Entity: entity})
}

// Remove stages entity for deletion by primary key.
func (s *Session) Remove(entity interface{}) error {
	return s.stage(Change{Kind: ChangeDeleted, Entity: entity})
}

// Upsert stages entity for an insert that overwrites fields when a row with
// the same conflictKeys exists. conflictKeys defaults to "id".
func (s *Session) Upsert(entity interface{}, fields, conflictKeys []string) error {
	if len(fields) == 0 {
		return types.NewArgumentError("fields", "cannot be empty")
	}
	return s.stage(Change{
		Kind:         ChangeUpserted,
		Entity:       entity,
		Fields:       append([]string(nil), fields...),
		ConflictKeys: append([]string(nil), conflictKeys...),
	})
}

func (s *Session) stage(c Change) error {
	if err := checkEntity("entity", c.Entity); err != nil {
		return err
	}
	s.pending = append(s.pending, c)
	return nil
}

// HasChanges reports whether changes are waiting for SaveChanges.
func (s *Session) HasChanges() bool { return len(s.pending) > 0 }

// PendingChanges returns a copy of the staged changes in staging order.
func (s *Session) PendingChanges() []Change {
	return append([]Change(nil), s.pending...)
}

// DiscardChanges drops every pending change.
func (s *Session) DiscardChanges() {
	s.pending = nil
}

// SaveChanges flushes every staged change in one transaction and returns the
// number of rows affected. On error nothing is committed, the error is
// returned as reported by the driver and the changes stay staged.
func (s *Session) SaveChanges(ctx context.Context) (int64, error) {
	if len(s.pending) == 0 {
		return 0, nil
	}
	var total int64
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		total = 0
		for _, c := range s.pending {
			res, err := s.apply(ctx, tx, c)
			if err != nil {
				return err
			}
			if n, err := res.RowsAffected(); err == nil {
				total += n
			}
		}
		return nil
	})
	if err != nil {
		s.logger.Warn("Saving changes failed", "session", s.id, "pending", len(s.pending), "error", err)
		return 0, err
	}
	s.logger.Debug("Changes saved", "session", s.id, "changes", len(s.pending), "rows", total)
	s.pending = nil
	return total, nil
}

func (s *Session) apply(ctx context.Context, tx bun.Tx, c Change) (sql.Result, error) {
	switch c.Kind {
	case ChangeAdded:
		return tx.NewInsert().Model(c.Entity).Exec(ctx)
	case ChangeModified:
		return tx.NewUpdate().Model(c.Entity).WherePK().Exec(ctx)
	case ChangeDeleted:
		return tx.NewDelete().Model(c.Entity).WherePK().Exec(ctx)
	case ChangeUpserted:
		return s.upsert(ctx, tx, c)
	default:
		return nil, types.NewArgumentError("kind", "unsupported change kind %d", int(c.Kind))
	}
}

func (s *Session) upsert(ctx context.Context, tx bun.Tx, c Change) (sql.Result, error) {
	q := tx.NewInsert().Model(c.Entity)
	switch {
	case s.db.HasFeature(feature.InsertOnConflict):
		keys := c.ConflictKeys
		if len(keys) == 0 {
			keys = []string{"id"}
		}
		q = q.On("CONFLICT (?) DO UPDATE", bun.In(idents(keys)))
		for _, f := range c.Fields {
			q = q.Set("? = EXCLUDED.?", bun.Ident(f), bun.Ident(f))
		}
	case s.db.HasFeature(feature.InsertOnDuplicateKey):
		q = q.On("DUPLICATE KEY UPDATE")
		for _, f := range c.Fields {
			q = q.Set("? = VALUES(?)", bun.Ident(f), bun.Ident(f))
		}
	default:
		return s.upsertFallback(ctx, tx, c)
	}
	return q.Exec(ctx)
}

// upsertFallback updates by primary key and inserts when no row matched.
func (s *Session) upsertFallback(ctx context.Context, tx bun.Tx, c Change) (sql.Result, error) {
	res, err := tx.NewUpdate().Model(c.Entity).Column(c.Fields...).WherePK().Exec(ctx)
	if err != nil {
		return nil, err
	}
	if n, err := res.RowsAffected(); err == nil && n > 0 {
		return res, nil
	}
	return tx.NewInsert().Model(c.Entity).Exec(ctx)
}

func idents(names []string) []bun.Ident {
	out := make([]bun.Ident, len(names))
	for i, n := range names {
		out[i] = bun.Ident(n)
	}
	return out
}

// checkEntity requires entity to be a non-nil pointer to a struct.
func checkEntity(arg string, entity interface{}) error {
	if entity == nil {
		return types.NewArgumentError(arg, "cannot be nil")
	}
	v := reflect.ValueOf(entity)
	if v.Kind() != reflect.Ptr {
		return types.NewArgumentError(arg, "must be a pointer to a struct, got %T", entity)
	}
	if v.IsNil() {
		return types.NewArgumentError(arg, "cannot be nil")
	}
	if v.Elem().Kind() != reflect.Struct {
		return types.NewArgumentError(arg, "must be a pointer to a struct, got %T", entity)
	}
	return nil
}
