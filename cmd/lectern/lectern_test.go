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
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zalando/go-keyring"
	"go.uber.org/zap"

	lecternconfig "github.com/teradata-labs/lectern/pkg/config"
	"github.com/teradata-labs/lectern/pkg/guard"
)

const sampleCorpus = `[
  {"title": "Dune", "summary": "On the desert planet Arrakis a noble family fights over the spice.", "themes": ["politics", "ecology"]},
  {"title": "The Hobbit", "summary": "Bilbo Baggins leaves the Shire with dwarves to reclaim a mountain from a dragon.", "themes": ["adventure"]},
  {"title": "1984", "summary": "Winston Smith lives under constant surveillance by Big Brother.", "themes": ["surveillance", "totalitarianism"]}
]`

// testConfig loads defaults in an isolated environment and points the
// corpus at a fresh summaries file.
func testConfig(t *testing.T) *lecternconfig.Config {
	t.Helper()
	keyring.MockInit()
	dir := t.TempDir()
	t.Setenv("LECTERN_DATA_DIR", dir)
	for _, k := range []string{"OPENAI_API_KEY", "ANTHROPIC_API_KEY", "CHAT_MODEL", "EMBED_MODEL", "CHROMA_URL"} {
		t.Setenv(k, "")
	}

	path := filepath.Join(dir, "book_summaries.json")
	require.NoError(t, os.WriteFile(path, []byte(sampleCorpus), 0o600))

	cfg, err := lecternconfig.Load(viper.New(), "")
	require.NoError(t, err)
	cfg.Corpus.Path = path
	cfg.Upstream.BackoffsMS = []int{1, 1, 1}
	cfg.LLM.OpenAIAPIKey = "sk-test"
	return cfg
}

func sqliteConfig(t *testing.T) *lecternconfig.Config {
	cfg := testConfig(t)
	cfg.Corpus.Backend = "sqlite"
	cfg.Retrieval.Backend = lecternconfig.RetrievalFTS
	require.NoError(t, cfg.Validate())
	return cfg
}

// fakeOpenAI answers chat completions with a tool call for the first
// candidate, then a justification, and embeddings with fixed vectors.
type fakeOpenAI struct {
	mu        sync.Mutex
	chatCalls int
	embedded  int
}

func (f *fakeOpenAI) handler(t *testing.T) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /chat/completions", func(w http.ResponseWriter, r *http.Request) {
		var req map[string]interface{}
		if !assert.NoError(t, json.NewDecoder(r.Body).Decode(&req)) {
			return
		}
		f.mu.Lock()
		f.chatCalls++
		f.mu.Unlock()

		if _, hasTools := req["tools"]; hasTools {
			_, _ = w.Write([]byte(`{"id":"c1","model":"gpt-4o-mini","choices":[{"index":0,"finish_reason":"tool_calls",
				"message":{"role":"assistant","content":null,"tool_calls":[{"id":"call_1","type":"function",
				"function":{"name":"get_summary_by_title","arguments":"{\"title\":\"dune\"}"}}]}}],
				"usage":{"prompt_tokens":10,"completion_tokens":5,"total_tokens":15}}`))
			return
		}
		_, _ = w.Write([]byte(`{"id":"c2","model":"gpt-4o-mini","choices":[{"index":0,"finish_reason":"stop",
			"message":{"role":"assistant","content":"Spice, politics and ecology."}}],
			"usage":{"prompt_tokens":20,"completion_tokens":6,"total_tokens":26}}`))
	})
	mux.HandleFunc("POST /embeddings", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Input []string `json:"input"`
		}
		if !assert.NoError(t, json.NewDecoder(r.Body).Decode(&req)) {
			return
		}
		f.mu.Lock()
		f.embedded += len(req.Input)
		f.mu.Unlock()

		data := make([]map[string]interface{}, len(req.Input))
		for i := range req.Input {
			data[i] = map[string]interface{}{"index": i, "embedding": []float32{0.1, float32(i)}}
		}
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"data": data, "model": "text-embedding-3-small"})
	})
	return mux
}

func fakeOpenLibrary(t *testing.T) *httptest.Server {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/search.json", r.URL.Path)
		_, _ = w.Write([]byte(`{"docs":[{"key":"/works/OL893415W","title":"Dune","author_name":["Frank Herbert"],"first_publish_year":1965,"cover_i":11481354}]}`))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestRunCheck(t *testing.T) {
	cfg := testConfig(t)
	cfg.Guard.ExtraTerms = []string{"spoilers"}
	comps := newComponents(cfg, zap.NewNop())

	var out bytes.Buffer
	require.NoError(t, runCheck(comps, &out, "a calm book about gardens"))
	assert.Equal(t, "ok\n", out.String())

	out.Reset()
	err := runCheck(comps, &out, "no Spoilers please")
	require.Error(t, err)
	assert.ErrorIs(t, err, guard.ErrRejected)
	assert.Contains(t, out.String(), `"spoilers"`)

	cfg.Guard.Terms = []string{"broccoli"}
	require.Error(t, runCheck(newComponents(cfg, zap.NewNop()), &out, "BROCCOLI again"))
	require.NoError(t, runCheck(newComponents(cfg, zap.NewNop()), &out, "you idiot"), "configured terms replace the defaults")
}

func TestIngestAndQuerySQLite(t *testing.T) {
	cfg := sqliteConfig(t)
	ctx := context.Background()

	comps := newComponents(cfg, zap.NewNop())
	defer func() { _ = comps.Close() }()

	var out bytes.Buffer
	require.NoError(t, runIngest(ctx, comps, &out, cfg.Corpus.Path))
	assert.Contains(t, out.String(), "Wrote 3 books to the sqlite corpus")
	_, err := os.Stat(cfg.SQLiteDSN())
	require.NoError(t, err)

	t.Run("summary", func(t *testing.T) {
		out.Reset()
		require.NoError(t, runSummary(ctx, comps, &out, "the hobbit"))
		assert.Contains(t, out.String(), "Bilbo Baggins")

		err := runSummary(ctx, comps, &out, "The Hobit")
		require.ErrorIs(t, err, ErrNotFound)
		assert.Contains(t, err.Error(), "did you mean: The Hobbit?")
	})

	t.Run("rag search", func(t *testing.T) {
		out.Reset()
		require.NoError(t, runRAGSearch(ctx, comps, &out, "desert spice", 2))
		assert.True(t, strings.HasPrefix(out.String(), "1. Dune (score "), out.String())

		assert.Error(t, runRAGSearch(ctx, comps, &out, "   ", 2))
	})

	t.Run("reingest replaces", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "one.yaml")
		require.NoError(t, os.WriteFile(path, []byte("- title: Emma\n  summary: Matchmaking in Highbury.\n"), 0o600))
		out.Reset()
		require.NoError(t, runIngest(ctx, comps, &out, path))
		assert.Contains(t, out.String(), "Wrote 1 books")

		err := runSummary(ctx, comps, &out, "Dune")
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestIngestChroma(t *testing.T) {
	cfg := testConfig(t)

	openai := &fakeOpenAI{}
	llmSrv := httptest.NewServer(openai.handler(t))
	defer llmSrv.Close()
	cfg.Embedding.Endpoint = llmSrv.URL

	var mu sync.Mutex
	var deletes, upserted int
	mux := http.NewServeMux()
	mux.HandleFunc("DELETE /api/v1/collections/book_summaries", func(w http.ResponseWriter, _ *http.Request) {
		mu.Lock()
		deletes++
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("POST /api/v1/collections", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"id":"col-1","name":"book_summaries"}`))
	})
	mux.HandleFunc("POST /api/v1/collections/col-1/upsert", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			IDs []string `json:"ids"`
		}
		if assert.NoError(t, json.NewDecoder(r.Body).Decode(&req)) {
			mu.Lock()
			upserted += len(req.IDs)
			mu.Unlock()
			assert.Equal(t, "book-000", req.IDs[0])
		}
		_, _ = w.Write([]byte("true"))
	})
	chromaSrv := httptest.NewServer(mux)
	defer chromaSrv.Close()
	cfg.Retrieval.ChromaURL = chromaSrv.URL

	comps := newComponents(cfg, zap.NewNop())
	var out bytes.Buffer
	require.NoError(t, runIngest(context.Background(), comps, &out, cfg.Corpus.Path))

	assert.Contains(t, out.String(), `Indexed 3 books into Chroma collection "book_summaries"`)
	assert.Equal(t, 1, deletes)
	assert.Equal(t, 3, upserted)
	assert.Equal(t, 3, openai.embedded)

	ingestSkipVectors = true
	defer func() { ingestSkipVectors = false }()
	out.Reset()
	require.NoError(t, runIngest(context.Background(), comps, &out, cfg.Corpus.Path))
	assert.Contains(t, out.String(), "Validated 3 books")
}

func TestAnswerEndToEnd(t *testing.T) {
	cfg := sqliteConfig(t)
	ctx := context.Background()

	openai := &fakeOpenAI{}
	llmSrv := httptest.NewServer(openai.handler(t))
	defer llmSrv.Close()
	cfg.LLM.OpenAIEndpoint = llmSrv.URL
	cfg.OpenLibrary.BaseURL = fakeOpenLibrary(t).URL

	comps := newComponents(cfg, zap.NewNop())
	defer func() { _ = comps.Close() }()
	var out bytes.Buffer
	require.NoError(t, runIngest(ctx, comps, &out, cfg.Corpus.Path))

	t.Run("answer", func(t *testing.T) {
		out.Reset()
		require.NoError(t, runAnswer(ctx, comps, &out, "desert planet politics", 0))

		var env map[string]interface{}
		require.NoError(t, json.Unmarshal(out.Bytes(), &env))
		assert.Equal(t, "Dune", env["title"])
		assert.Equal(t, "Spice, politics and ecology.", env["reason_message"])
		assert.Equal(t, float64(3), env["k"])
		assert.Equal(t, "grounded", env["grounding"].(map[string]interface{})["kind"])

		details := env["details"].(map[string]interface{})
		assert.Equal(t, []interface{}{"Frank Herbert"}, details["authors"])
		assert.Equal(t, float64(1965), details["year"])
	})

	t.Run("recommend", func(t *testing.T) {
		out.Reset()
		require.NoError(t, runRecommend(ctx, comps, &out, "desert planet politics", 2))
		assert.Contains(t, out.String(), `"title": "Dune"`)
	})

	t.Run("guard blocks before the model", func(t *testing.T) {
		openai.mu.Lock()
		before := openai.chatCalls
		openai.mu.Unlock()

		err := runAnswer(ctx, comps, &out, "shit books", 0)
		assert.ErrorIs(t, err, guard.ErrRejected)

		openai.mu.Lock()
		assert.Equal(t, before, openai.chatCalls)
		openai.mu.Unlock()
	})

	t.Run("http server", func(t *testing.T) {
		srv, err := comps.Server(ctx)
		require.NoError(t, err)

		rec := httptest.NewRecorder()
		srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/summary?title=1984", nil))
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), "Big Brother")

		rec = httptest.NewRecorder()
		srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/answer?q=desert", nil))
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		assert.Contains(t, rec.Body.String(), `"source":"rag+llm+openlibrary"`)
	})
}

func TestServeWatchesCorpus(t *testing.T) {
	cfg := testConfig(t)
	cfg.Server.Host = "127.0.0.1"
	cfg.Server.Port = 0
	cfg.Corpus.Watch = true
	cfg.Retrieval.Backend = lecternconfig.RetrievalChroma

	comps := newComponents(cfg, zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	_, err := comps.Corpus(ctx)
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- serve(ctx, comps) }()

	// Rewrite at most twice a second so the watcher's debounce can settle.
	updated := strings.Replace(sampleCorpus, "Bilbo Baggins leaves", "Bilbo Baggins reluctantly leaves", 1)
	tick := 0
	require.Eventually(t, func() bool {
		if tick%5 == 0 {
			_ = os.WriteFile(cfg.Corpus.Path, []byte(updated), 0o600)
		}
		tick++
		s, _, _ := comps.file.SummaryOf(context.Background(), "The Hobbit")
		return strings.Contains(s, "reluctantly")
	}, 10*time.Second, 100*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("serve did not stop")
	}
}

func TestShowConfigMasksSecrets(t *testing.T) {
	cfg := testConfig(t)
	cfg.LLM.OpenAIAPIKey = "sk-live-1234567890"

	var out bytes.Buffer
	require.NoError(t, showConfig(&out, cfg))
	assert.Contains(t, out.String(), "openai_api_key: sk-l...7890")
	assert.NotContains(t, out.String(), "sk-live-1234567890")
	assert.Contains(t, out.String(), "backend: chroma")
}

func TestResolveK(t *testing.T) {
	comps := newComponents(testConfig(t), zap.NewNop())
	assert.Equal(t, 3, comps.resolveK(0))
	assert.Equal(t, 3, comps.resolveK(-2))
	assert.Equal(t, 7, comps.resolveK(7))
	assert.Equal(t, 50, comps.resolveK(80))
}

func TestComponentErrors(t *testing.T) {
	cfg := testConfig(t)
	cfg.LLM.OpenAIAPIKey = ""
	comps := newComponents(cfg, zap.NewNop())

	_, err := comps.Searcher(context.Background())
	require.Error(t, err, "chroma needs an embeddings key")

	cfg = testConfig(t)
	cfg.Corpus.Path = filepath.Join(t.TempDir(), "absent.json")
	_, err = newComponents(cfg, zap.NewNop()).Corpus(context.Background())
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrNotFound))
}
