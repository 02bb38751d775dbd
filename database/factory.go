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
	"fmt"
	"strings"
	"time"

	"github.com/uptrace/bun"
)

const (
	driverMySQL    = "mysql"
	driverPostgres = "postgres"
	driverSQLite   = "sqlite"
)

// driverOf maps a configured database type, including its aliases, to the
// driver family used to open it.
func driverOf(dbType string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(dbType)) {
	case "mysql", "mariadb":
		return driverMySQL, nil
	case "postgres", "postgresql", "pg":
		return driverPostgres, nil
	case "sqlite", "sqlite3":
		return driverSQLite, nil
	}
	return "", fmt.Errorf("unsupported database type: %q, supported types: mysql, postgres, sqlite", dbType)
}

// BaseDatabaseFactory builds a manager from configuration and brings the
// database up: connected, entity tables created, versioned migrations applied.
type BaseDatabaseFactory struct {
	manager    AbstractDatabaseManager
	logger     Logger
	migrations []MigrationItem
}

// NewDatabaseFactory returns a factory logging through the global logger.
func NewDatabaseFactory() *BaseDatabaseFactory {
	return &BaseDatabaseFactory{
		logger: GetLogger(),
	}
}

// CreateFromConfig constructs a database manager for cfg. Environment
// overrides are already applied by LoadConfig.
func (f *BaseDatabaseFactory) CreateFromConfig(cfg *ConnectionConfig) (AbstractDatabaseManager, error) {
	if cfg == nil {
		return nil, fmt.Errorf("database configuration cannot be empty")
	}
	if _, err := driverOf(cfg.Type); err != nil {
		return nil, err
	}

	manager := NewDatabaseManager(cfg)
	manager.SetLogger(f.logger)
	f.manager = manager
	return manager, nil
}

// AddMigrations queues versioned migrations for InitializeDatabase.
func (f *BaseDatabaseFactory) AddMigrations(items ...MigrationItem) {
	f.migrations = append(f.migrations, items...)
}

// InitializeDatabase connects and, when runMigrations is set, migrates. A
// failed migration closes the connection again.
func (f *BaseDatabaseFactory) InitializeDatabase(ctx context.Context, runMigrations bool) error {
	if f.manager == nil {
		return fmt.Errorf("database manager not created")
	}
	if err := f.manager.Connect(ctx); err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	if runMigrations {
		if err := f.migrate(ctx); err != nil {
			_ = f.manager.Disconnect()
			return fmt.Errorf("failed to run database migrations: %w", err)
		}
	}
	f.logger.Info("Database initialization completed", "migrated", runMigrations, "migrations", len(f.migrations))
	return nil
}

func (f *BaseDatabaseFactory) migrate(ctx context.Context) error {
	mm := NewMigrationManager(f.manager.GetDB(), f.logger)
	for _, item := range f.migrations {
		mm.AddMigration(item)
	}
	return mm.RunMigrations(ctx)
}

// GetManager returns the manager built by CreateFromConfig.
func (f *BaseDatabaseFactory) GetManager() AbstractDatabaseManager {
	return f.manager
}

// GetDB returns the Bun database, or nil before CreateFromConfig.
func (f *BaseDatabaseFactory) GetDB() *bun.DB {
	if f.manager == nil {
		return nil
	}
	return f.manager.GetDB()
}

// SetLogger replaces the logger of the factory and its manager.
func (f *BaseDatabaseFactory) SetLogger(logger Logger) {
	if logger == nil {
		return
	}
	f.logger = logger
	if f.manager != nil {
		f.manager.SetLogger(logger)
	}
}

// Close disconnects the manager.
func (f *BaseDatabaseFactory) Close() error {
	if f.manager == nil {
		return nil
	}
	return f.manager.Disconnect()
}

// GetHealthStatus checks the managed connection.
func (f *BaseDatabaseFactory) GetHealthStatus(ctx context.Context) *HealthStatus {
	if f.manager == nil {
		return &HealthStatus{LastError: "Database manager not initialized", LastCheckTime: time.Now()}
	}
	return f.manager.HealthCheck(ctx)
}

// GetStats returns the pool statistics.
func (f *BaseDatabaseFactory) GetStats() *DBStats {
	if f.manager == nil {
		return &DBStats{}
	}
	return f.manager.GetStats()
}
