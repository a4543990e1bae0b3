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
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq" // registers "postgres"
	"go.uber.org/zap"

	"github.com/teradata-labs/lectern/internal/sqlitedriver"
	"github.com/teradata-labs/lectern/pkg/observability"
)

// Dialect names a supported SQL backend.
type Dialect string

// Supported dialects.
const (
	DialectSQLite   Dialect = "sqlite"
	DialectPostgres Dialect = "postgres"
	DialectMySQL    Dialect = "mysql"
)

// ParseDialect accepts the dialect names used in configuration.
func ParseDialect(name string) (Dialect, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "sqlite", "sqlite3":
		return DialectSQLite, nil
	case "postgres", "postgresql", "pg":
		return DialectPostgres, nil
	case "mysql", "mariadb":
		return DialectMySQL, nil
	default:
		return "", fmt.Errorf("unsupported corpus dialect: %s", name)
	}
}

// Hit is one lexical search result. Lower scores rank higher.
type Hit struct {
	Title   string
	Summary string
	Score   float64
}

// SQLStore keeps the corpus in a relational database with a full-text index
// per dialect.
type SQLStore struct {
	db      *sql.DB
	dialect Dialect
	tracer  observability.Tracer
	logger  *zap.Logger
}

// SQLOption configures a SQLStore.
type SQLOption func(*SQLStore)

// WithSQLLogger sets the store logger.
func WithSQLLogger(l *zap.Logger) SQLOption {
	return func(s *SQLStore) { s.logger = l }
}

// WithSQLTracer sets the store tracer.
func WithSQLTracer(t observability.Tracer) SQLOption {
	return func(s *SQLStore) { s.tracer = t }
}

// OpenSQL connects to dsn, verifies the connection and applies pending
// migrations.
func OpenSQL(ctx context.Context, dialect Dialect, dsn string, opts ...SQLOption) (*SQLStore, error) {
	if dsn == "" {
		return nil, fmt.Errorf("database DSN is required")
	}

	driver := string(dialect)
	switch dialect {
	case DialectSQLite:
		driver = sqlitedriver.DriverName
		if !strings.HasPrefix(dsn, "file:") {
			dsn = sqlitedriver.DSN(dsn, "")
		}
	case DialectMySQL:
		cfg, err := mysql.ParseDSN(dsn)
		if err != nil {
			return nil, fmt.Errorf("invalid mysql DSN: %w", err)
		}
		cfg.MultiStatements = false
		dsn = cfg.FormatDSN()
	case DialectPostgres:
	default:
		return nil, fmt.Errorf("unsupported corpus dialect: %s", dialect)
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if dialect == DialectSQLite {
		db.SetMaxOpenConns(1)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	store, err := NewSQLStore(ctx, db, dialect, opts...)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// NewSQLStore wraps an open database and migrates it.
func NewSQLStore(ctx context.Context, db *sql.DB, dialect Dialect, opts ...SQLOption) (*SQLStore, error) {
	s := &SQLStore{
		db:      db,
		dialect: dialect,
		tracer:  observability.NewNoOpTracer(),
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}

	migrator, err := NewMigrator(db, dialect, s.tracer)
	if err != nil {
		return nil, err
	}
	if err := migrator.MigrateUp(ctx); err != nil {
		return nil, fmt.Errorf("failed to migrate corpus schema: %w", err)
	}
	return s, nil
}

// Dialect returns the backend dialect.
func (s *SQLStore) Dialect() Dialect { return s.dialect }

// Close closes the database.
func (s *SQLStore) Close() error { return s.db.Close() }

// Replace swaps the stored corpus for entries in one transaction. Later
// entries whose title matches an earlier one are skipped.
func (s *SQLStore) Replace(ctx context.Context, entries []Entry) (int, error) {
	ctx, span := s.tracer.StartSpan(ctx, "corpus.replace",
		observability.WithAttribute("dialect", string(s.dialect)))
	defer s.tracer.EndSpan(span)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		span.RecordError(err)
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if s.dialect == DialectSQLite {
		if _, err := tx.ExecContext(ctx, "DELETE FROM books_fts"); err != nil {
			return 0, fmt.Errorf("failed to clear search index: %w", err)
		}
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM books"); err != nil {
		return 0, fmt.Errorf("failed to clear books: %w", err)
	}

	insert := rebind(s.dialect,
		"INSERT INTO books (position, title, title_key, summary, themes) VALUES (?, ?, ?, ?, ?)")
	seen := make(map[string]bool, len(entries))
	stored := 0
	for i, e := range entries {
		key := Key(e.Title)
		if strings.TrimSpace(e.Title) == "" || seen[key] {
			continue
		}
		seen[key] = true

		themes, err := json.Marshal(nonNil(e.Themes))
		if err != nil {
			return 0, fmt.Errorf("failed to encode themes for %q: %w", e.Title, err)
		}

		if s.dialect == DialectPostgres {
			// lib/pq has no LastInsertId.
			var id int64
			if err := tx.QueryRowContext(ctx, insert+" RETURNING id",
				i, e.Title, key, e.Summary, string(themes)).Scan(&id); err != nil {
				return 0, fmt.Errorf("failed to insert %q: %w", e.Title, err)
			}
		} else {
			res, err := tx.ExecContext(ctx, insert, i, e.Title, key, e.Summary, string(themes))
			if err != nil {
				return 0, fmt.Errorf("failed to insert %q: %w", e.Title, err)
			}
			if s.dialect == DialectSQLite {
				id, err := res.LastInsertId()
				if err != nil {
					return 0, fmt.Errorf("failed to read row id: %w", err)
				}
				if _, err := tx.ExecContext(ctx,
					"INSERT INTO books_fts (rowid, title, summary, themes) VALUES (?, ?, ?, ?)",
					id, e.Title, e.Summary, strings.Join(e.Themes, " "),
				); err != nil {
					return 0, fmt.Errorf("failed to index %q: %w", e.Title, err)
				}
			}
		}
		stored++
	}

	if err := tx.Commit(); err != nil {
		span.RecordError(err)
		return 0, fmt.Errorf("failed to commit corpus: %w", err)
	}
	span.SetAttribute("corpus.entries", stored)
	s.logger.Info("Corpus stored",
		zap.String("dialect", string(s.dialect)),
		zap.Int("entries", stored))
	return stored, nil
}

// SummaryOf implements Lookup.
func (s *SQLStore) SummaryOf(ctx context.Context, title string) (string, bool, error) {
	key := Key(title)
	if key == "" {
		return "", false, nil
	}
	var summary string
	err := s.db.QueryRowContext(ctx,
		rebind(s.dialect, "SELECT summary FROM books WHERE title_key = ?"), key,
	).Scan(&summary)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to look up %q: %w", title, err)
	}
	return summary, true, nil
}

// Entries implements Lister in corpus order.
func (s *SQLStore) Entries(ctx context.Context) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT title, summary, themes FROM books ORDER BY position")
	if err != nil {
		return nil, fmt.Errorf("failed to list books: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		var themes string
		if err := rows.Scan(&e.Title, &e.Summary, &themes); err != nil {
			return nil, fmt.Errorf("failed to scan book: %w", err)
		}
		if themes != "" {
			if err := json.Unmarshal([]byte(themes), &e.Themes); err != nil {
				return nil, fmt.Errorf("failed to decode themes for %q: %w", e.Title, err)
			}
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

var wordPattern = regexp.MustCompile(`[\p{L}\p{N}]+`)

// Search ranks books against the words in query using the dialect's
// full-text index. A query with no words returns no hits.
func (s *SQLStore) Search(ctx context.Context, query string, limit int) ([]Hit, error) {
	words := wordPattern.FindAllString(strings.ToLower(query), -1)
	if len(words) == 0 || limit < 1 {
		return nil, nil
	}

	ctx, span := s.tracer.StartSpan(ctx, "corpus.search",
		observability.WithAttribute("dialect", string(s.dialect)),
		observability.WithAttribute(observability.AttrQueryK, limit))
	defer s.tracer.EndSpan(span)

	var (
		rows *sql.Rows
		err  error
	)
	switch s.dialect {
	case DialectSQLite:
		quoted := make([]string, len(words))
		for i, w := range words {
			quoted[i] = `"` + w + `"`
		}
		rows, err = s.db.QueryContext(ctx, `
			SELECT b.title, b.summary, bm25(books_fts) AS score
			FROM books_fts JOIN books b ON b.id = books_fts.rowid
			WHERE books_fts MATCH ?
			ORDER BY score, b.position
			LIMIT ?`, strings.Join(quoted, " OR "), limit)
	case DialectPostgres:
		rows, err = s.db.QueryContext(ctx, `
			SELECT title, summary, -ts_rank(search, q) AS score
			FROM books, to_tsquery('english', $1) q
			WHERE search @@ q
			ORDER BY score, position
			LIMIT $2`, strings.Join(words, " | "), limit)
	case DialectMySQL:
		terms := strings.Join(words, " ")
		rows, err = s.db.QueryContext(ctx, `
			SELECT title, summary, -MATCH(title, summary, themes) AGAINST (? IN NATURAL LANGUAGE MODE) AS score
			FROM books
			WHERE MATCH(title, summary, themes) AGAINST (? IN NATURAL LANGUAGE MODE)
			ORDER BY score, position
			LIMIT ?`, terms, terms, limit)
	default:
		err = fmt.Errorf("unsupported corpus dialect: %s", s.dialect)
	}
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("full-text search failed: %w", err)
	}
	defer rows.Close()

	var hits []Hit
	for rows.Next() {
		var h Hit
		if err := rows.Scan(&h.Title, &h.Summary, &h.Score); err != nil {
			return nil, fmt.Errorf("failed to scan search hit: %w", err)
		}
		hits = append(hits, h)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	span.SetAttribute(observability.AttrCandidateCount, len(hits))
	return hits, nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

var (
	_ Lookup = (*SQLStore)(nil)
	_ Lister = (*SQLStore)(nil)
)
