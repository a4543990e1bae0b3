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
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/teradata-labs/lectern/pkg/corpus"
	llmtypes "github.com/teradata-labs/lectern/pkg/llm/types"
	"github.com/teradata-labs/lectern/pkg/upstream"
)

// Default Chroma settings.
const (
	DefaultChromaURL  = "http://localhost:8000"
	DefaultCollection = "book_summaries"
)

// ChromaConfig configures a ChromaSearcher.
type ChromaConfig struct {
	BaseURL    string // Default: http://localhost:8000
	Collection string // Default: book_summaries
	Embedder   llmtypes.Embedder
	Retry      upstream.Policy // Default: upstream.DefaultPolicy()
	HTTPClient *http.Client
	Logger     *zap.Logger
}

// ChromaSearcher queries a Chroma collection over its REST API. Queries are
// embedded with the same model used at ingestion.
type ChromaSearcher struct {
	baseURL    string
	collection string
	embedder   llmtypes.Embedder
	retry      upstream.Policy
	httpClient *http.Client
	logger     *zap.Logger

	mu           sync.Mutex
	collectionID string
}

// NewChromaSearcher creates a searcher. The collection is resolved lazily.
func NewChromaSearcher(cfg ChromaConfig) (*ChromaSearcher, error) {
	if cfg.Embedder == nil {
		return nil, fmt.Errorf("chroma searcher requires an embedder")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultChromaURL
	}
	if cfg.Collection == "" {
		cfg.Collection = DefaultCollection
	}
	if cfg.Retry.Backoffs == nil {
		cfg.Retry = upstream.DefaultPolicy()
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Retry.Logger == nil {
		cfg.Retry.Logger = cfg.Logger
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: upstream.DefaultTimeout + 5*time.Second}
	}
	return &ChromaSearcher{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		collection: cfg.Collection,
		embedder:   cfg.Embedder,
		retry:      cfg.Retry,
		httpClient: cfg.HTTPClient,
		logger:     cfg.Logger,
	}, nil
}

type collectionRequest struct {
	Name        string `json:"name"`
	GetOrCreate bool   `json:"get_or_create"`
}

type collectionResponse struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type queryRequest struct {
	QueryEmbeddings [][]float32 `json:"query_embeddings"`
	NResults        int         `json:"n_results"`
	Include         []string    `json:"include"`
}

type queryResponse struct {
	IDs       [][]string                 `json:"ids"`
	Documents [][]*string                `json:"documents"`
	Metadatas [][]map[string]interface{} `json:"metadatas"`
	Distances [][]*float64               `json:"distances"`
}

type upsertRequest struct {
	IDs        []string                 `json:"ids"`
	Embeddings [][]float32              `json:"embeddings"`
	Documents  []string                 `json:"documents"`
	Metadatas  []map[string]interface{} `json:"metadatas"`
}

// Search implements Searcher.
func (c *ChromaSearcher) Search(ctx context.Context, query string, k int) ([]Candidate, error) {
	if err := CheckK(k); err != nil {
		return nil, err
	}

	vectors, err := c.embedder.Embed(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}
	if len(vectors) != 1 {
		return nil, fmt.Errorf("embedder returned %d vectors for one query", len(vectors))
	}

	resp, err := upstream.Do(ctx, c.retry, "chroma", "query", func(ctx context.Context) (*queryResponse, error) {
		id, err := c.collectionIDFor(ctx)
		if err != nil {
			return nil, err
		}
		var out queryResponse
		err = c.post(ctx, "/api/v1/collections/"+url.PathEscape(id)+"/query", &queryRequest{
			QueryEmbeddings: vectors,
			NResults:        k,
			Include:         []string{"documents", "metadatas", "distances"},
		}, &out)
		return &out, err
	})
	if err != nil {
		return nil, err
	}
	return truncate(resp.candidates(), k), nil
}

// candidates reads the first (only) query's result lists.
func (r *queryResponse) candidates() []Candidate {
	var docs []*string
	var metas []map[string]interface{}
	var dists []*float64
	if len(r.Documents) > 0 {
		docs = r.Documents[0]
	}
	if len(r.Metadatas) > 0 {
		metas = r.Metadatas[0]
	}
	if len(r.Distances) > 0 {
		dists = r.Distances[0]
	}

	out := make([]Candidate, 0, len(docs))
	for i, doc := range docs {
		c := Candidate{}
		if doc != nil {
			c.Snippet = Snippet(*doc)
		}
		if i < len(metas) && metas[i] != nil {
			if title, ok := metas[i]["title"].(string); ok {
				c.Title = title
			}
		}
		if i < len(dists) && dists[i] != nil {
			d := *dists[i]
			c.Score = &d
		}
		out = append(out, c)
	}
	return out
}

// Reset drops the collection so the next Upsert starts from empty.
func (c *ChromaSearcher) Reset(ctx context.Context) error {
	_, err := upstream.Do(ctx, c.retry, "chroma", "delete_collection", func(ctx context.Context) (struct{}, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodDelete,
			c.baseURL+"/api/v1/collections/"+url.PathEscape(c.collection), nil)
		if err != nil {
			return struct{}{}, upstream.Permanent(err)
		}
		resp, err := c.httpClient.Do(req)
		if err != nil {
			return struct{}{}, err
		}
		defer resp.Body.Close()
		body, _ := io.ReadAll(resp.Body)
		// Chroma answers a missing collection with 404 or a 400/500 "does not exist".
		if resp.StatusCode == http.StatusNotFound || bytes.Contains(body, []byte("does not exist")) {
			return struct{}{}, nil
		}
		return struct{}{}, upstream.ReadStatus(resp, body)
	})
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.collectionID = ""
	c.mu.Unlock()
	c.logger.Info("Chroma collection reset", zap.String("collection", c.collection))
	return nil
}

// Upsert embeds and stores entries with ids "book-000", "book-001", ...
// in corpus order.
func (c *ChromaSearcher) Upsert(ctx context.Context, entries []corpus.Entry) (int, error) {
	if len(entries) == 0 {
		return 0, nil
	}

	req := upsertRequest{
		IDs:       make([]string, len(entries)),
		Documents: make([]string, len(entries)),
		Metadatas: make([]map[string]interface{}, len(entries)),
	}
	for i, e := range entries {
		req.IDs[i] = fmt.Sprintf("book-%03d", i)
		req.Documents[i] = e.Document()
		req.Metadatas[i] = map[string]interface{}{
			"title":  e.Title,
			"themes": strings.Join(e.Themes, ", "),
		}
	}

	vectors, err := c.embedder.Embed(ctx, req.Documents)
	if err != nil {
		return 0, fmt.Errorf("failed to embed corpus: %w", err)
	}
	if len(vectors) != len(entries) {
		return 0, fmt.Errorf("embedder returned %d vectors for %d documents", len(vectors), len(entries))
	}
	req.Embeddings = vectors

	_, err = upstream.Do(ctx, c.retry, "chroma", "upsert", func(ctx context.Context) (struct{}, error) {
		id, err := c.collectionIDFor(ctx)
		if err != nil {
			return struct{}{}, err
		}
		return struct{}{}, c.post(ctx, "/api/v1/collections/"+url.PathEscape(id)+"/upsert", &req, nil)
	})
	if err != nil {
		return 0, err
	}

	c.logger.Info("Chroma collection loaded",
		zap.String("collection", c.collection),
		zap.Int("documents", len(entries)))
	return len(entries), nil
}

// collectionIDFor resolves (creating if needed) the collection id once.
func (c *ChromaSearcher) collectionIDFor(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.collectionID != "" {
		return c.collectionID, nil
	}

	var resp collectionResponse
	if err := c.post(ctx, "/api/v1/collections", &collectionRequest{Name: c.collection, GetOrCreate: true}, &resp); err != nil {
		return "", fmt.Errorf("failed to open collection %q: %w", c.collection, err)
	}
	if resp.ID == "" {
		return "", upstream.Permanent(fmt.Errorf("collection %q has no id", c.collection))
	}
	c.collectionID = resp.ID
	return resp.ID, nil
}

func (c *ChromaSearcher) post(ctx context.Context, path string, body, out interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return upstream.Permanent(fmt.Errorf("failed to marshal request: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return upstream.Permanent(fmt.Errorf("failed to create request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}
	if err := upstream.ReadStatus(resp, respBody); err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return upstream.Permanent(fmt.Errorf("failed to unmarshal response: %w", err))
	}
	return nil
}

var _ Searcher = (*ChromaSearcher)(nil)
