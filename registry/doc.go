// Package registry binds repositories to DTO types without scanning
// packages at run time. Types are catalogued explicitly with Add or
// Register; RegisterRepositories then registers a scoped
// repository.Repository[T] in a Container for every catalogued type of a
// namespace, and each Scope resolves them against one shared Session.
package registry
