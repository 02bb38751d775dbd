// Package database provides configuration loading, connection management,
// migrations, SQL error classification and logging on top of Bun, and the
// Session persistence context that repositories stage their writes on.
package database
