// Package sqlitedriver registers the SQLite database/sql driver used by the
// corpus store under DriverName. CGO builds use go-sqlcipher, which also
// accepts an encryption key; pure-Go builds fall back to modernc.org/sqlite.
//
// Import for side effects, or use DSN to build a connection string:
//
//	import "github.com/teradata-labs/lectern/internal/sqlitedriver"
package sqlitedriver
