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
package corpus

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var sample = []Entry{
	{Title: "Dune", Summary: "A desert planet, spice and prophecy.", Themes: []string{"politics", "ecology"}},
	{Title: "The Hobbit", Summary: "Bilbo leaves the Shire on an unexpected journey with dwarves.", Themes: []string{"adventure"}},
	{Title: "1984", Summary: "Winston Smith lives under the surveillance of Big Brother.", Themes: []string{"totalitarianism"}},
}

func writeJSON(t *testing.T, path string, entries []Entry) {
	t.Helper()
	data, err := json.Marshal(entries)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data, 0o600))
}

func TestKey(t *testing.T) {
	assert.Equal(t, "the hobbit", Key("The Hobbit"))
	assert.Equal(t, " dune ", Key(" Dune "))
	assert.Equal(t, Key("STRASSE"), Key("Straße"))
	assert.Equal(t, "", Key(""))
}

func TestEntryDocument(t *testing.T) {
	assert.Equal(t, "Dune\n\nA desert planet, spice and prophecy.", sample[0].Document())
}

func TestMemoryStore(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(append(sample, Entry{Title: "dune", Summary: "duplicate"}))
	assert.Equal(t, 3, store.Len())

	tests := []struct {
		name    string
		title   string
		want    string
		wantHit bool
	}{
		{"exact", "Dune", sample[0].Summary, true},
		{"case folded", "the HOBBIT", sample[1].Summary, true},
		{"surrounding whitespace", " Dune ", "", false},
		{"blank", "   ", "", false},
		{"missing", "Neuromancer", "", false},
		{"empty", "", "", false},
		{"no fuzzy match", "Dun", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok, err := store.SummaryOf(ctx, tt.title)
			require.NoError(t, err)
			assert.Equal(t, tt.wantHit, ok)
			assert.Equal(t, tt.want, got)
		})
	}

	entries, err := store.Entries(ctx)
	require.NoError(t, err)
	entries[0].Title = "mutated"
	again, _ := store.Entries(ctx)
	assert.Equal(t, "Dune", again[0].Title)
}

func TestLoadEntries(t *testing.T) {
	dir := t.TempDir()

	jsonPath := filepath.Join(dir, "books.json")
	writeJSON(t, jsonPath, sample)
	got, err := LoadEntries(jsonPath)
	require.NoError(t, err)
	assert.Equal(t, sample, got)

	yamlPath := filepath.Join(dir, "books.yaml")
	require.NoError(t, os.WriteFile(yamlPath, []byte(`
- title: Dune
  summary: A desert planet, spice and prophecy.
  themes: [politics, ecology]
`), 0o600))
	got, err = LoadEntries(yamlPath)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, sample[0], got[0])

	badPath := filepath.Join(dir, "bad.json")
	require.NoError(t, os.WriteFile(badPath, []byte(`[{"title":"  ","summary":"x"}]`), 0o600))
	_, err = LoadEntries(badPath)
	assert.ErrorContains(t, err, "no title")

	_, err = LoadEntries(filepath.Join(dir, "missing.json"))
	assert.Error(t, err)
}

func TestSuggest(t *testing.T) {
	titles := Titles(sample)
	assert.Equal(t, []string{"The Hobbit"}, Suggest(titles, "hobit", 3))
	assert.Equal(t, []string{"Dune"}, Suggest(titles, "DUN", 3))
	assert.Empty(t, Suggest(titles, "zzz", 3))
	assert.Nil(t, Suggest(titles, "  ", 3))
}

func TestFileStoreReload(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "books.json")
	writeJSON(t, path, sample[:1])

	store, err := OpenFile(path)
	require.NoError(t, err)
	_, ok, _ := store.SummaryOf(ctx, "The Hobbit")
	assert.False(t, ok)

	writeJSON(t, path, sample)
	require.NoError(t, store.Reload(ctx))
	_, ok, _ = store.SummaryOf(ctx, "The Hobbit")
	assert.True(t, ok)

	// A broken file keeps the previous snapshot.
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))
	assert.Error(t, store.Reload(ctx))
	entries, err := store.Entries(ctx)
	require.NoError(t, err)
	assert.Len(t, entries, 3)
}

func TestFileStoreWatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "books.json")
	writeJSON(t, path, sample[:1])

	store, err := OpenFile(path, WithDebounce(20*time.Millisecond))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- store.Watch(ctx) }()

	// Give the watcher time to register.
	time.Sleep(100 * time.Millisecond)
	writeJSON(t, path, sample)

	assert.Eventually(t, func() bool {
		_, ok, _ := store.SummaryOf(context.Background(), "1984")
		return ok
	}, 3*time.Second, 20*time.Millisecond)

	cancel()
	require.NoError(t, <-done)
}

func openSQLite(t *testing.T) *SQLStore {
	t.Helper()
	store, err := OpenSQL(context.Background(), DialectSQLite, filepath.Join(t.TempDir(), "books.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestSQLStoreReplaceAndLookup(t *testing.T) {
	ctx := context.Background()
	store := openSQLite(t)

	n, err := store.Replace(ctx, append(sample, Entry{Title: "DUNE", Summary: "duplicate"}))
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	summary, ok, err := store.SummaryOf(ctx, "dune")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, sample[0].Summary, summary)

	_, ok, err = store.SummaryOf(ctx, " dune ")
	require.NoError(t, err)
	assert.False(t, ok)

	_, ok, err = store.SummaryOf(ctx, "Neuromancer")
	require.NoError(t, err)
	assert.False(t, ok)

	entries, err := store.Entries(ctx)
	require.NoError(t, err)
	assert.Equal(t, sample, entries)

	// Replace discards the previous corpus.
	n, err = store.Replace(ctx, sample[2:])
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	entries, err = store.Entries(ctx)
	require.NoError(t, err)
	assert.Equal(t, sample[2:], entries)
}

func TestSQLStoreSearch(t *testing.T) {
	ctx := context.Background()
	store := openSQLite(t)
	_, err := store.Replace(ctx, sample)
	require.NoError(t, err)

	hits, err := store.Search(ctx, "a journey with dwarves", 3)
	require.NoError(t, err)
	require.NotEmpty(t, hits)
	assert.Equal(t, "The Hobbit", hits[0].Title)

	hits, err = store.Search(ctx, "spice; DROP TABLE books", 3)
	require.NoError(t, err)
	require.NotEmpty(t, hits)
	assert.Equal(t, "Dune", hits[0].Title)

	hits, err = store.Search(ctx, "?!", 3)
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestMigratorIdempotent(t *testing.T) {
	ctx := context.Background()
	store := openSQLite(t)

	m, err := NewMigrator(store.db, DialectSQLite, nil)
	require.NoError(t, err)
	require.NoError(t, m.MigrateUp(ctx))

	version, err := m.CurrentVersion(ctx)
	require.NoError(t, err)
	assert.Equal(t, len(m.Migrations()), version)

	require.NoError(t, m.MigrateDown(ctx, 1))
	version, err = m.CurrentVersion(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, version)
}

func TestLoadMigrationsAllDialects(t *testing.T) {
	for _, d := range []Dialect{DialectSQLite, DialectPostgres, DialectMySQL} {
		migs, err := loadMigrations(d)
		require.NoError(t, err, d)
		require.NotEmpty(t, migs, d)
		assert.Equal(t, 1, migs[0].Version)
		assert.NotEmpty(t, migs[0].DownSQL)
	}
}

func TestParseDialect(t *testing.T) {
	d, err := ParseDialect("PostgreSQL")
	require.NoError(t, err)
	assert.Equal(t, DialectPostgres, d)
	d, err = ParseDialect("sqlite3")
	require.NoError(t, err)
	assert.Equal(t, DialectSQLite, d)
	_, err = ParseDialect("oracle")
	assert.Error(t, err)
}

func TestRebindAndSplit(t *testing.T) {
	assert.Equal(t, "SELECT $1, $2", rebind(DialectPostgres, "SELECT ?, ?"))
	assert.Equal(t, "SELECT ?", rebind(DialectMySQL, "SELECT ?"))

	stmts := splitStatements("-- note\nCREATE TABLE a (x INT);\n\nCREATE TABLE b (y INT);\n")
	assert.Equal(t, []string{"CREATE TABLE a (x INT)", "CREATE TABLE b (y INT)"}, stmts)
}
