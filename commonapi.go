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

package commonapi

import (
	"context"
	"fmt"
	"strings"

	"github.com/tomoncle/commonapi/database"
	"github.com/tomoncle/commonapi/registry"
	"github.com/tomoncle/commonapi/repository"
	"github.com/tomoncle/commonapi/utils"
	"github.com/uptrace/bun"
)

// App is a connected database plus the container holding one repository per
// discovered DTO type.
type App struct {
	DB        *bun.DB
	Container *registry.Container
	Namespace string
}

// Bootstrap configures logging, registers the catalogued models of the
// configured namespace for migration, connects the global database and
// registers their repositories. A nil catalog means the default catalog.
// migrations run after the entity tables are created.
func Bootstrap(cfg *database.Config, catalog *registry.Catalog, migrations ...database.MigrationItem) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("configuration cannot be empty")
	}
	if catalog == nil {
		catalog = registry.DefaultCatalog()
	}
	namespace := strings.TrimSpace(cfg.DiscoveryConfig.Namespace)
	if namespace == "" {
		return nil, fmt.Errorf("discovery namespace cannot be empty")
	}

	if cfg.LogConfig.Format != "" {
		utils.ConfigureConsoleLogFormat(cfg.LogConfig.Format)
	}
	if cfg.LogConfig.Level != "" {
		utils.ConfigureLogLevel(cfg.LogConfig.Level)
	}

	for _, model := range catalog.Models(namespace) {
		database.RegisteredModel(model)
	}
	db, err := database.InitDB(cfg, migrations...)
	if err != nil {
		return nil, err
	}

	container := registry.NewContainer(db)
	if _, err := registry.RegisterRepositories(container, catalog, namespace); err != nil {
		_ = database.CloseDB()
		return nil, err
	}
	if path := cfg.DiscoveryConfig.ManifestFile; path != "" {
		if err := registry.WriteManifest(container, path); err != nil {
			database.GetLogger().Warn("Failed to write registration manifest", "path", path, "error", err)
		}
	}
	return &App{DB: db, Container: container, Namespace: namespace}, nil
}

// BootstrapFromFile loads the config at path (see database.LoadConfig) and
// bootstraps with the default catalog.
func BootstrapFromFile(path string, envFiles ...string) (*App, error) {
	cfg, err := database.LoadConfig(path, envFiles...)
	if err != nil {
		return nil, err
	}
	return Bootstrap(cfg, nil)
}

// NewScope opens a unit of work; close it when the request is done.
func (a *App) NewScope() *registry.Scope {
	return a.Container.NewScope()
}

// Within runs fn in a fresh scope and closes it afterwards.
func (a *App) Within(ctx context.Context, fn func(ctx context.Context, s *registry.Scope) error) error {
	s := a.NewScope()
	defer s.Close()
	return fn(ctx, s)
}

// Health checks the global database connection.
func (a *App) Health(ctx context.Context) *database.HealthStatus {
	return database.GetHealthStatus(ctx)
}

// Shutdown closes the global database.
func (a *App) Shutdown() error {
	return database.CloseDB()
}

// NewRepository returns a repository for T on the global database with a
// session of its own, for callers that do not use a container.
func NewRepository[T any]() repository.Repository[T] {
	return repository.NewRepository[T](database.GetDB())
}
