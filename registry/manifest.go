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
	"os"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Manifest is a YAML snapshot of a container's registrations.
type Manifest struct {
	GeneratedAt   time.Time       `yaml:"generated_at"`
	Registrations []ManifestEntry `yaml:"registrations"`
}

// ManifestEntry describes one registration.
type ManifestEntry struct {
	Service        string `yaml:"service"`
	Implementation string `yaml:"implementation"`
	Lifetime       string `yaml:"lifetime"`
	Namespace      string `yaml:"namespace,omitempty"`
}

// Manifest snapshots the container's registrations.
func (c *Container) Manifest() Manifest {
	regs := c.Registrations()
	m := Manifest{
		GeneratedAt:   time.Now().UTC().Truncate(time.Second),
		Registrations: make([]ManifestEntry, len(regs)),
	}
	for i, r := range regs {
		m.Registrations[i] = ManifestEntry{
			Service:        typeName(r.Service),
			Implementation: typeName(r.Implementation),
			Lifetime:       r.Lifetime.String(),
			Namespace:      r.Namespace,
		}
	}
	return m
}

// WriteManifest writes the container's manifest to path.
func WriteManifest(c *Container, path string) error {
	out, err := yaml.Marshal(c.Manifest())
	if err != nil {
		return errors.Wrap(err, "marshal manifest")
	}
	if err := os.WriteFile(path, out, 0o644); err != nil {
		return errors.Wrapf(err, "write manifest %s", path)
	}
	return nil
}

// ReadManifest parses a manifest written by WriteManifest.
func ReadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "read manifest %s", path)
	}
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, errors.Wrapf(err, "parse manifest %s", path)
	}
	return &m, nil
}
