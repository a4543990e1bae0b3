//go:build cgo

package sqlitedriver

import (
	_ "github.com/mutecomm/go-sqlcipher/v4" // registers "sqlite3"
)

// EncryptionSupported reports whether DSN keys are honored.
const EncryptionSupported = true
