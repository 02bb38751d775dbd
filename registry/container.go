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
	"reflect"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"github.com/tomoncle/commonapi/database"
	"github.com/tomoncle/commonapi/repository"
	"github.com/tomoncle/commonapi/types"
	"github.com/uptrace/bun"
)

// ErrNotRegistered is returned when no registration provides a service.
var ErrNotRegistered = errors.New("service not registered")

// Lifetime controls how long a resolved instance is reused.
type Lifetime int

const (
	// Scoped instances live as long as their Scope.
	Scoped Lifetime = iota
	// Singleton instances live as long as the Container.
	Singleton
	// Transient instances are created on every resolution.
	Transient
)

var lifetimeNames = []string{"scoped", "singleton", "transient"}

// IsValid reports whether l is one of the declared lifetimes.
func (l Lifetime) IsValid() bool { return l >= Scoped && l <= Transient }

// Number returns the enum value.
func (l Lifetime) Number() int {
	if !l.IsValid() {
		return types.IllegalValue
	}
	return int(l)
}

// Name returns the lower-case lifetime name.
func (l Lifetime) Name() string {
	if !l.IsValid() {
		return types.IllegalName
	}
	return lifetimeNames[l]
}

// String returns the lifetime name.
func (l Lifetime) String() string { return l.Name() }

// Desc describes how long an instance is reused.
func (l Lifetime) Desc() string {
	switch l {
	case Scoped:
		return "one instance per scope"
	case Singleton:
		return "one instance per container"
	case Transient:
		return "a new instance per resolution"
	default:
		return types.IllegalDesc
	}
}

// ParseLifetime parses a lifetime name, ignoring case.
func ParseLifetime(name string) (Lifetime, bool) {
	return types.ParseEnum(name, Scoped, Singleton, Transient)
}

// Factory builds a service instance for the resolving scope.
type Factory func(s *Scope) (interface{}, error)

// Registration binds a service type to the factory that provides it.
type Registration struct {
	Service        reflect.Type
	Implementation reflect.Type
	Lifetime       Lifetime
	Namespace      string
	Factory        Factory
}

// RegistrationOption adjusts a registration built by the Add helpers.
type RegistrationOption func(*Registration)

// Container holds registrations and singleton instances. Duplicate
// registrations for a service are kept; the last one registered wins.
type Container struct {
	db     *bun.DB
	logger database.Logger

	mu            sync.RWMutex
	registrations []*Registration
	singletons    map[*Registration]interface{}
	root          *Scope
}

// NewContainer returns an empty container whose scopes open sessions on db.
func NewContainer(db *bun.DB) *Container {
	c := &Container{
		db:         db,
		logger:     database.GetLogger(),
		singletons: make(map[*Registration]interface{}),
	}
	c.root = c.NewScope()
	return c
}

// SetLogger replaces the logger; nil is ignored.
func (c *Container) SetLogger(logger database.Logger) {
	if logger != nil {
		c.logger = logger
	}
}

// DB returns the database scopes open their sessions on.
func (c *Container) DB() *bun.DB { return c.db }

// Root returns the container-level scope singleton factories resolve from.
// Its session lives as long as the container and is shared by every
// singleton that captures it.
func (c *Container) Root() *Scope { return c.root }

// Register validates r and appends it.
func (c *Container) Register(r Registration) error {
	if r.Service == nil {
		return types.NewArgumentError("service", "cannot be nil")
	}
	if r.Factory == nil {
		return types.NewArgumentError("factory", "cannot be nil")
	}
	if !r.Lifetime.IsValid() {
		return types.NewArgumentError("lifetime", "unknown lifetime %d", int(r.Lifetime))
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	for _, existing := range c.registrations {
		if existing.Service == r.Service {
			c.logger.Debug("Service registered again, the latest registration wins", "service", r.Service.String())
			break
		}
	}
	c.registrations = append(c.registrations, &r)
	return nil
}

// Registrations returns a copy of every registration in registration order.
func (c *Container) Registrations() []Registration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Registration, len(c.registrations))
	for i, r := range c.registrations {
		out[i] = *r
	}
	return out
}

func (c *Container) lookup(service reflect.Type) (*Registration, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for i := len(c.registrations) - 1; i >= 0; i-- {
		if c.registrations[i].Service == service {
			return c.registrations[i], true
		}
	}
	return nil, false
}

// singleton runs the factory against the root scope, never a request scope,
// and outside the lock so it may resolve other singletons. The first stored
// instance wins.
func (c *Container) singleton(r *Registration) (interface{}, error) {
	c.mu.RLock()
	v, ok := c.singletons[r]
	c.mu.RUnlock()
	if ok {
		return v, nil
	}

	v, err := r.Factory(c.root)
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if existing, ok := c.singletons[r]; ok {
		return existing, nil
	}
	c.singletons[r] = v
	return v, nil
}

// NewScope opens a unit of work with its own database session.
func (c *Container) NewScope() *Scope {
	return &Scope{
		container: c,
		session:   database.OpenSession(c.db),
		instances: make(map[*Registration]interface{}),
	}
}

// Scope resolves services for one logical request. All repositories of a
// scope share its Session, which is not safe for concurrent use.
type Scope struct {
	container *Container
	session   *database.Session

	mu        sync.Mutex
	instances map[*Registration]interface{}
}

// Session returns the unit of work shared by the scope's repositories.
func (s *Scope) Session() *database.Session { return s.session }

// Container returns the container the scope belongs to.
func (s *Scope) Container() *Container { return s.container }

func (s *Scope) cached(r *Registration) (interface{}, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.instances[r]
	return v, ok
}

// store keeps v unless another resolution stored an instance first.
func (s *Scope) store(r *Registration, v interface{}) interface{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.instances[r]; ok {
		return existing
	}
	s.instances[r] = v
	return v
}

// Resolve returns the instance the latest registration for service provides.
func (s *Scope) Resolve(service reflect.Type) (interface{}, error) {
	r, ok := s.container.lookup(service)
	if !ok {
		return nil, errors.Wrapf(ErrNotRegistered, "resolve %s", service)
	}

	switch r.Lifetime {
	case Singleton:
		v, err := s.container.singleton(r)
		return v, errors.Wrapf(err, "resolve %s", service)
	case Transient:
		v, err := r.Factory(s)
		return v, errors.Wrapf(err, "resolve %s", service)
	}

	if v, ok := s.cached(r); ok {
		return v, nil
	}
	v, err := r.Factory(s)
	if err != nil {
		return nil, errors.Wrapf(err, "resolve %s", service)
	}
	return s.store(r, v), nil
}

// Close drops the scope's instances and any changes left unsaved.
func (s *Scope) Close() {
	if s.session.HasChanges() {
		s.container.logger.Warn("Scope closed with unsaved changes", "session", s.session.ID(), "pending", len(s.session.PendingChanges()))
		s.session.DiscardChanges()
	}
	s.mu.Lock()
	s.instances = make(map[*Registration]interface{})
	s.mu.Unlock()
}

// Resolve returns the S registered in the scope's container.
func Resolve[S any](s *Scope) (S, error) {
	var zero S
	v, err := s.Resolve(serviceType[S]())
	if err != nil {
		return zero, err
	}
	out, ok := v.(S)
	if !ok {
		return zero, errors.Errorf("resolve %s: factory returned %T", serviceType[S](), v)
	}
	return out, nil
}

// RepositoryOf resolves the repository registered for T.
func RepositoryOf[T any](s *Scope) (repository.Repository[T], error) {
	return Resolve[repository.Repository[T]](s)
}

func serviceType[S any]() reflect.Type {
	return reflect.TypeOf((*S)(nil)).Elem()
}

func add[S any](c *Container, lifetime Lifetime, factory func(*Scope) (S, error), opts []RegistrationOption) error {
	if factory == nil {
		return types.NewArgumentError("factory", "cannot be nil")
	}
	r := Registration{
		Service:  serviceType[S](),
		Lifetime: lifetime,
		Factory: func(s *Scope) (interface{}, error) {
			return factory(s)
		},
	}
	for _, opt := range opts {
		opt(&r)
	}
	if r.Implementation == nil {
		r.Implementation = r.Service
	}
	return c.Register(r)
}

// AddScoped registers factory to build one S per scope.
func AddScoped[S any](c *Container, factory func(*Scope) (S, error), opts ...RegistrationOption) error {
	return add(c, Scoped, factory, opts)
}

// AddSingleton registers factory to build one S per container. The factory
// receives the container's Root scope, so a captured Session is the
// container-wide one and never a request's unit of work.
func AddSingleton[S any](c *Container, factory func(*Scope) (S, error), opts ...RegistrationOption) error {
	return add(c, Singleton, factory, opts)
}

// AddTransient registers factory to build a new S on every resolution.
func AddTransient[S any](c *Container, factory func(*Scope) (S, error), opts ...RegistrationOption) error {
	return add(c, Transient, factory, opts)
}

func typeName(t reflect.Type) string {
	if t == nil {
		return ""
	}
	return strings.TrimPrefix(t.String(), "*")
}
