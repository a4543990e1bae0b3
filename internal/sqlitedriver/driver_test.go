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
package sqlitedriver_test

import (
	"database/sql"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teradata-labs/lectern/internal/sqlitedriver"
)

func TestDriverRegistered(t *testing.T) {
	assert.True(t, slices.Contains(sql.Drivers(), sqlitedriver.DriverName))
}

func TestDSN(t *testing.T) {
	mem := sqlitedriver.DSN(":memory:", "")
	assert.True(t, strings.HasPrefix(mem, "file::memory:?"))
	assert.Contains(t, mem, "cache=shared")

	file := sqlitedriver.DSN("/tmp/books.db", "")
	assert.True(t, strings.HasPrefix(file, "file:/tmp/books.db?"))
	assert.NotContains(t, file, "cache=shared")

	assert.Equal(t, "file:x.db?mode=ro", sqlitedriver.DSN("file:x.db?mode=ro", ""))
}

func TestBooksRoundTrip(t *testing.T) {
	db, err := sql.Open(sqlitedriver.DriverName, sqlitedriver.DSN(filepath.Join(t.TempDir(), "books.db"), ""))
	require.NoError(t, err)
	defer db.Close()

	_, err = db.Exec("CREATE TABLE books (id INTEGER PRIMARY KEY, title TEXT)")
	require.NoError(t, err)
	_, err = db.Exec("INSERT INTO books (title) VALUES (?)", "Dune")
	require.NoError(t, err)

	var title string
	require.NoError(t, db.QueryRow("SELECT title FROM books WHERE id = 1").Scan(&title))
	assert.Equal(t, "Dune", title)
}

func TestFTS5Available(t *testing.T) {
	db, err := sql.Open(sqlitedriver.DriverName, sqlitedriver.DSN(filepath.Join(t.TempDir(), "fts.db"), ""))
	require.NoError(t, err)
	defer db.Close()

	_, err = db.Exec("CREATE VIRTUAL TABLE books_fts USING fts5(title, summary)")
	require.NoError(t, err, "FTS5 should be available")

	_, err = db.Exec("INSERT INTO books_fts (title, summary) VALUES (?, ?)", "Dune", "desert planet spice")
	require.NoError(t, err)

	var title string
	err = db.QueryRow("SELECT title FROM books_fts WHERE books_fts MATCH 'spice' ORDER BY bm25(books_fts)").Scan(&title)
	require.NoError(t, err)
	assert.Equal(t, "Dune", title)
}
