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

// Package corpus holds the curated book summaries that ground every
// recommendation. Titles are unique keys compared by Unicode case folding;
// lookups never fuzzy-match.
package corpus

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/sahilm/fuzzy"
	"golang.org/x/text/cases"
	"gopkg.in/yaml.v3"
)

// Entry is one curated book.
type Entry struct {
	Title   string   `json:"title" yaml:"title"`
	Summary string   `json:"summary" yaml:"summary"`
	Themes  []string `json:"themes,omitempty" yaml:"themes,omitempty"`
}

// Document is the text indexed for similarity search: title, blank line, summary.
func (e Entry) Document() string {
	return e.Title + "\n\n" + e.Summary
}

// Lookup resolves a title to its canonical summary. A missing title is
// ("", false, nil), not an error.
type Lookup interface {
	SummaryOf(ctx context.Context, title string) (string, bool, error)
}

// Lister enumerates the corpus, for ingestion and suggestions.
type Lister interface {
	Entries(ctx context.Context) ([]Entry, error)
}

// Key is the comparison key for a title, its Unicode case fold. Surrounding
// whitespace is significant.
func Key(title string) string {
	return cases.Fold().String(title)
}

// MemoryStore is an immutable in-memory corpus snapshot.
type MemoryStore struct {
	entries []Entry
	byKey   map[string]int
}

// NewMemoryStore indexes entries. When two entries share a key the first wins.
func NewMemoryStore(entries []Entry) *MemoryStore {
	m := &MemoryStore{byKey: make(map[string]int, len(entries))}
	for _, e := range entries {
		if strings.TrimSpace(e.Title) == "" {
			continue
		}
		k := Key(e.Title)
		if _, dup := m.byKey[k]; dup {
			continue
		}
		m.byKey[k] = len(m.entries)
		m.entries = append(m.entries, e)
	}
	return m
}

// SummaryOf implements Lookup.
func (m *MemoryStore) SummaryOf(_ context.Context, title string) (string, bool, error) {
	i, ok := m.byKey[Key(title)]
	if !ok {
		return "", false, nil
	}
	return m.entries[i].Summary, true, nil
}

// Entries returns a copy of the corpus in load order.
func (m *MemoryStore) Entries(_ context.Context) ([]Entry, error) {
	out := make([]Entry, len(m.entries))
	copy(out, m.entries)
	return out, nil
}

// Len returns the number of entries.
func (m *MemoryStore) Len() int { return len(m.entries) }

// LoadEntries reads a corpus file. ".yaml" and ".yml" are parsed as YAML,
// anything else as JSON. Both hold a list of entries.
func LoadEntries(path string) ([]Entry, error) {
	data, err := os.ReadFile(path) // #nosec G304 -- corpus path comes from operator config
	if err != nil {
		return nil, fmt.Errorf("read corpus: %w", err)
	}

	var entries []Entry
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &entries)
	default:
		err = json.Unmarshal(data, &entries)
	}
	if err != nil {
		return nil, fmt.Errorf("parse corpus %s: %w", filepath.Base(path), err)
	}

	for i, e := range entries {
		if strings.TrimSpace(e.Title) == "" {
			return nil, fmt.Errorf("parse corpus %s: entry %d has no title", filepath.Base(path), i)
		}
	}
	return entries, nil
}

// Suggest returns up to n corpus titles that fuzzily resemble query, best
// first. It feeds "did you mean" hints and is never used to resolve a lookup.
func Suggest(titles []string, query string, n int) []string {
	query = strings.TrimSpace(query)
	if query == "" || n <= 0 {
		return nil
	}

	lowered := make([]string, len(titles))
	for i, t := range titles {
		lowered[i] = strings.ToLower(t)
	}

	matches := fuzzy.Find(strings.ToLower(query), lowered)
	out := make([]string, 0, n)
	for _, m := range matches {
		if len(out) == n {
			break
		}
		out = append(out, titles[m.Index])
	}
	return out
}

// Titles extracts entry titles in order.
func Titles(entries []Entry) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.Title
	}
	return out
}

var (
	_ Lookup = (*MemoryStore)(nil)
	_ Lister = (*MemoryStore)(nil)
)
