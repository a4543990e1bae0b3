// Copyright 2026 Teradata
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
package sqlitedriver

import (
	"net/url"
	"strings"
)

// DriverName is the database/sql name both builds register.
const DriverName = "sqlite3"

// DSN builds a connection string for path. In-memory paths get a shared
// cache so every pooled connection sees the same database. A non-empty key
// is passed as the SQLCipher key and ignored by pure-Go builds.
func DSN(path, key string) string {
	params := url.Values{}
	params.Set("_busy_timeout", "5000")
	if key != "" && EncryptionSupported {
		params.Set("_pragma_key", key)
	}

	if path == "" || path == ":memory:" || strings.HasPrefix(path, "file::memory:") {
		params.Set("cache", "shared")
		name := "file::memory:"
		if strings.HasPrefix(path, "file::memory:") {
			name = strings.SplitN(path, "?", 2)[0]
		}
		return name + "?" + params.Encode()
	}
	if strings.Contains(path, "?") {
		return path
	}
	return "file:" + path + "?" + params.Encode()
}
