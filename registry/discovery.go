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

package registry

import (
	"strings"

	"github.com/pkg/errors"
	"github.com/tomoncle/commonapi/types"
)

// RegisterRepositories registers a scoped repository.Repository[T] in c for
// every catalogued T whose namespace equals namespace, ignoring case, and
// returns how many were registered. Entries that are not structs are logged
// and skipped.
func RegisterRepositories(c *Container, catalog *Catalog, namespace string) (int, error) {
	if c == nil {
		return 0, types.NewArgumentError("container", "cannot be nil")
	}
	if catalog == nil {
		catalog = defaultCatalog
	}
	if strings.TrimSpace(namespace) == "" {
		return 0, types.NewArgumentError("namespace", "cannot be blank")
	}

	registered := 0
	for _, e := range catalog.InNamespace(namespace) {
		if !e.IsStruct() {
			c.logger.Warn("Skipping catalog entry that is not a struct", "type", e.Type.String(), "kind", e.Type.Kind().String(), "namespace", e.Namespace)
			continue
		}
		if err := e.bind(c); err != nil {
			return registered, errors.Wrapf(err, "register repository for %s", e.Type)
		}
		registered++
	}
	c.logger.Info("Repositories registered", "namespace", namespace, "count", registered)
	return registered, nil
}
