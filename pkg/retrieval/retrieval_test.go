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
package retrieval

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teradata-labs/lectern/pkg/corpus"
	"github.com/teradata-labs/lectern/pkg/upstream"
)

type fakeEmbedder struct {
	calls atomic.Int32
	err   error
}

func (f *fakeEmbedder) Embed(_ context.Context, inputs []string) ([][]float32, error) {
	f.calls.Add(1)
	if f.err != nil {
		return nil, f.err
	}
	out := make([][]float32, len(inputs))
	for i := range inputs {
		out[i] = []float32{float32(i), 0.5}
	}
	return out, nil
}

// fakeChroma serves the collection, query, upsert and delete endpoints.
type fakeChroma struct {
	mu        sync.Mutex
	queries   []queryRequest
	upserts   []upsertRequest
	deletes   int
	failQuery int32
	queryHits atomic.Int32
}

func (f *fakeChroma) handler(t *testing.T) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/collections", func(w http.ResponseWriter, r *http.Request) {
		var req collectionRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.True(t, req.GetOrCreate)
		_ = json.NewEncoder(w).Encode(collectionResponse{ID: "col-1", Name: req.Name})
	})
	mux.HandleFunc("POST /api/v1/collections/col-1/query", func(w http.ResponseWriter, r *http.Request) {
		if f.queryHits.Add(1) <= f.failQuery {
			http.Error(w, "busy", http.StatusServiceUnavailable)
			return
		}
		var req queryRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		f.mu.Lock()
		f.queries = append(f.queries, req)
		f.mu.Unlock()

		long := strings.Repeat("x", 400)
		d1, d2 := 0.12, 0.34
		_ = json.NewEncoder(w).Encode(queryResponse{
			IDs:       [][]string{{"book-000", "book-001", "book-002"}},
			Documents: [][]*string{{strPtr("Dune\n\nspice"), strPtr(long), nil}},
			Metadatas: [][]map[string]interface{}{{{"title": "Dune"}, {"title": "Long"}, nil}},
			Distances: [][]*float64{{&d1, &d2, nil}},
		})
	})
	mux.HandleFunc("POST /api/v1/collections/col-1/upsert", func(w http.ResponseWriter, r *http.Request) {
		var req upsertRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		f.mu.Lock()
		f.upserts = append(f.upserts, req)
		f.mu.Unlock()
		_, _ = w.Write([]byte("true"))
	})
	mux.HandleFunc("DELETE /api/v1/collections/book_summaries", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.deletes++
		f.mu.Unlock()
		http.Error(w, `{"error":"Collection book_summaries does not exist."}`, http.StatusInternalServerError)
	})
	return mux
}

func strPtr(s string) *string { return &s }

func fastPolicy() upstream.Policy {
	return upstream.Policy{Backoffs: []time.Duration{time.Millisecond, time.Millisecond, time.Millisecond}}
}

func newChroma(t *testing.T, fake *fakeChroma, emb *fakeEmbedder) *ChromaSearcher {
	t.Helper()
	srv := httptest.NewServer(fake.handler(t))
	t.Cleanup(srv.Close)
	s, err := NewChromaSearcher(ChromaConfig{BaseURL: srv.URL, Embedder: emb, Retry: fastPolicy()})
	require.NoError(t, err)
	return s
}

func TestSnippet(t *testing.T) {
	assert.Equal(t, "short", Snippet("short"))
	assert.Len(t, []rune(Snippet(strings.Repeat("é", 500))), SnippetLength)
	assert.Equal(t, strings.Repeat("a", SnippetLength), Snippet(strings.Repeat("a", 301)))
}

func TestTitles(t *testing.T) {
	cands := []Candidate{{Title: "A"}, {Title: ""}, {Title: "B"}, {Title: "A"}}
	assert.Equal(t, []string{"A", "B", "A"}, Titles(cands))
	assert.Empty(t, Titles(nil))
}

func TestChromaSearch(t *testing.T) {
	fake := &fakeChroma{}
	emb := &fakeEmbedder{}
	s := newChroma(t, fake, emb)

	cands, err := s.Search(context.Background(), "desert politics", 3)
	require.NoError(t, err)
	require.Len(t, cands, 3)

	assert.Equal(t, "Dune", cands[0].Title)
	assert.Equal(t, "Dune\n\nspice", cands[0].Snippet)
	require.NotNil(t, cands[0].Score)
	assert.InDelta(t, 0.12, *cands[0].Score, 1e-9)

	assert.Len(t, cands[1].Snippet, SnippetLength)
	assert.Equal(t, "", cands[2].Title)
	assert.Nil(t, cands[2].Score)

	require.Len(t, fake.queries, 1)
	assert.Equal(t, 3, fake.queries[0].NResults)
	assert.ElementsMatch(t, []string{"documents", "metadatas", "distances"}, fake.queries[0].Include)
}

func TestChromaSearchTruncatesToK(t *testing.T) {
	s := newChroma(t, &fakeChroma{}, &fakeEmbedder{})
	cands, err := s.Search(context.Background(), "q", 1)
	require.NoError(t, err)
	assert.Len(t, cands, 1)
}

func TestChromaSearchRetriesTransient(t *testing.T) {
	fake := &fakeChroma{failQuery: 2}
	emb := &fakeEmbedder{}
	s := newChroma(t, fake, emb)

	cands, err := s.Search(context.Background(), "q", 3)
	require.NoError(t, err)
	assert.Len(t, cands, 3)
	assert.Equal(t, int32(3), fake.queryHits.Load())
	assert.Equal(t, int32(1), emb.calls.Load(), "query is embedded once")
}

func TestChromaSearchExhaustion(t *testing.T) {
	fake := &fakeChroma{failQuery: 100}
	s := newChroma(t, fake, &fakeEmbedder{})

	_, err := s.Search(context.Background(), "q", 3)
	require.Error(t, err)
	assert.ErrorIs(t, err, upstream.ErrTransient)
	assert.Equal(t, int32(4), fake.queryHits.Load())
}

func TestChromaSearchInvalidK(t *testing.T) {
	s := newChroma(t, &fakeChroma{}, &fakeEmbedder{})
	_, err := s.Search(context.Background(), "q", 0)
	assert.ErrorIs(t, err, ErrInvalidK)
}

func TestChromaSearchEmbedderError(t *testing.T) {
	s := newChroma(t, &fakeChroma{}, &fakeEmbedder{err: errors.New("no key")})
	_, err := s.Search(context.Background(), "q", 3)
	assert.ErrorContains(t, err, "no key")
}

func TestChromaResetAndUpsert(t *testing.T) {
	fake := &fakeChroma{}
	s := newChroma(t, fake, &fakeEmbedder{})
	ctx := context.Background()

	require.NoError(t, s.Reset(ctx))
	n, err := s.Upsert(ctx, []corpus.Entry{
		{Title: "Dune", Summary: "spice", Themes: []string{"politics", "ecology"}},
		{Title: "1984", Summary: "Big Brother"},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	assert.Equal(t, 1, fake.deletes)
	require.Len(t, fake.upserts, 1)
	up := fake.upserts[0]
	assert.Equal(t, []string{"book-000", "book-001"}, up.IDs)
	assert.Equal(t, []string{"Dune\n\nspice", "1984\n\nBig Brother"}, up.Documents)
	assert.Equal(t, "politics, ecology", up.Metadatas[0]["themes"])
	assert.Equal(t, "1984", up.Metadatas[1]["title"])
	assert.Len(t, up.Embeddings, 2)
}

func TestNewChromaSearcherRequiresEmbedder(t *testing.T) {
	_, err := NewChromaSearcher(ChromaConfig{})
	assert.Error(t, err)
}

func TestFTSSearcher(t *testing.T) {
	ctx := context.Background()
	store, err := corpus.OpenSQL(ctx, corpus.DialectSQLite, filepath.Join(t.TempDir(), "books.db"))
	require.NoError(t, err)
	defer store.Close()

	_, err = store.Replace(ctx, []corpus.Entry{
		{Title: "Dune", Summary: "A desert planet and its spice."},
		{Title: "The Hobbit", Summary: "A journey with dwarves to a dragon's hoard."},
	})
	require.NoError(t, err)

	s := NewFTSSearcher(store)
	cands, err := s.Search(ctx, "dragon journey", 3)
	require.NoError(t, err)
	require.NotEmpty(t, cands)
	assert.Equal(t, "The Hobbit", cands[0].Title)
	assert.True(t, strings.HasPrefix(cands[0].Snippet, "The Hobbit\n\n"))
	require.NotNil(t, cands[0].Score)

	_, err = s.Search(ctx, "dragon", 0)
	assert.ErrorIs(t, err, ErrInvalidK)
}

type flakySearcher struct {
	failures int
	calls    int
}

func (f *flakySearcher) Search(_ context.Context, _ string, k int) ([]Candidate, error) {
	f.calls++
	if f.calls <= f.failures {
		return nil, errors.New("connection reset")
	}
	return []Candidate{{Title: "Dune"}}, nil
}

func TestRetrying(t *testing.T) {
	inner := &flakySearcher{failures: 2}
	cands, err := NewRetrying(inner, fastPolicy(), "fts").Search(context.Background(), "q", 3)
	require.NoError(t, err)
	assert.Equal(t, []string{"Dune"}, Titles(cands))
	assert.Equal(t, 3, inner.calls)

	inner = &flakySearcher{failures: 10}
	_, err = NewRetrying(inner, fastPolicy(), "fts").Search(context.Background(), "q", 3)
	assert.ErrorIs(t, err, upstream.ErrTransient)
	assert.Equal(t, 4, inner.calls)

	_, err = NewRetrying(inner, fastPolicy(), "fts").Search(context.Background(), "q", -1)
	assert.ErrorIs(t, err, ErrInvalidK)
}
