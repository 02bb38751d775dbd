// Package repository provides Repository, a generic data access facade over
// Bun. Reads run immediately; writes are staged on a database.Session shared
// by every repository of the same scope and flushed together by SaveChanges.
package repository
