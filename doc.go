// Package commonapi wires the pieces together: configuration, the database
// connection, migrations and a registry.Container with one repository per
// DTO type of the configured namespace.
package commonapi
