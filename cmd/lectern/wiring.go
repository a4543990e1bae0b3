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
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/teradata-labs/lectern/pkg/answer"
	lecternconfig "github.com/teradata-labs/lectern/pkg/config"
	"github.com/teradata-labs/lectern/pkg/corpus"
	"github.com/teradata-labs/lectern/pkg/guard"
	"github.com/teradata-labs/lectern/pkg/llm/factory"
	llmtypes "github.com/teradata-labs/lectern/pkg/llm/types"
	"github.com/teradata-labs/lectern/pkg/observability"
	"github.com/teradata-labs/lectern/pkg/openlibrary"
	"github.com/teradata-labs/lectern/pkg/recommend"
	"github.com/teradata-labs/lectern/pkg/retrieval"
	"github.com/teradata-labs/lectern/pkg/server"
)

// corpusStore is any corpus backend.
type corpusStore interface {
	corpus.Lookup
	corpus.Lister
}

// components holds everything built from one configuration. Fields are
// filled lazily so commands only pay for what they use.
type components struct {
	cfg    *lecternconfig.Config
	logger *zap.Logger
	tracer observability.Tracer

	store corpusStore
	file  *corpus.FileStore
	sql   *corpus.SQLStore

	factory  *factory.ProviderFactory
	searcher retrieval.Searcher
	orch     *recommend.Orchestrator
}

func newComponents(cfg *lecternconfig.Config, logger *zap.Logger) *components {
	if logger == nil {
		logger = zap.NewNop()
	}
	var tracer observability.Tracer = observability.NewNoOpTracer()
	if logger.Core().Enabled(zap.DebugLevel) {
		tracer = observability.NewLogTracer(logger)
	}

	return &components{
		cfg:    cfg,
		logger: logger,
		tracer: tracer,
		factory: factory.NewProviderFactory(factory.FactoryConfig{
			DefaultProvider:   cfg.LLM.Provider,
			OpenAIAPIKey:      cfg.LLM.OpenAIAPIKey,
			OpenAIModel:       cfg.LLM.OpenAIModel,
			OpenAIBaseURL:     cfg.LLM.OpenAIEndpoint,
			EmbeddingModel:    cfg.Embedding.Model,
			EmbeddingBaseURL:  cfg.Embedding.Endpoint,
			AnthropicAPIKey:   cfg.LLM.AnthropicAPIKey,
			AnthropicModel:    cfg.LLM.AnthropicModel,
			AnthropicEndpoint: cfg.LLM.AnthropicEndpoint,
			MaxTokens:         cfg.LLM.MaxTokens,
			Temperature:       cfg.LLM.Temperature,
			Timeout:           cfg.LLM.TimeoutSeconds,
			Retry:             cfg.RetryPolicy(),
			Tracer:            tracer,
		}),
	}
}

// Close releases the database connection, if one was opened.
func (c *components) Close() error {
	if c.sql != nil {
		return c.sql.Close()
	}
	return nil
}

// Corpus opens the configured corpus backend.
func (c *components) Corpus(ctx context.Context) (corpusStore, error) {
	if c.store != nil {
		return c.store, nil
	}

	if c.cfg.Corpus.Backend == lecternconfig.CorpusFile {
		fs, err := corpus.OpenFile(c.cfg.Corpus.Path,
			corpus.WithLogger(c.logger.Named("corpus")),
			corpus.WithTracer(c.tracer))
		if err != nil {
			return nil, err
		}
		c.file, c.store = fs, fs
		return fs, nil
	}

	store, err := c.SQL(ctx)
	if err != nil {
		return nil, err
	}
	c.store = store
	return store, nil
}

// SQL opens the database corpus backend.
func (c *components) SQL(ctx context.Context) (*corpus.SQLStore, error) {
	if c.sql != nil {
		return c.sql, nil
	}
	dialect, err := corpus.ParseDialect(c.cfg.Corpus.Backend)
	if err != nil {
		return nil, err
	}
	dsn := c.cfg.Corpus.DSN
	if dialect == corpus.DialectSQLite {
		dsn = c.cfg.SQLiteDSN()
	}
	store, err := corpus.OpenSQL(ctx, dialect, dsn,
		corpus.WithSQLLogger(c.logger.Named("corpus")),
		corpus.WithSQLTracer(c.tracer))
	if err != nil {
		return nil, fmt.Errorf("failed to open %s corpus: %w", dialect, err)
	}
	c.sql = store
	return store, nil
}

// Embedder returns the embeddings client.
func (c *components) Embedder() (llmtypes.Embedder, error) {
	return c.factory.CreateEmbedder()
}

// Chroma returns a client for the configured collection.
func (c *components) Chroma() (*retrieval.ChromaSearcher, error) {
	embedder, err := c.Embedder()
	if err != nil {
		return nil, err
	}
	return retrieval.NewChromaSearcher(retrieval.ChromaConfig{
		BaseURL:    c.cfg.Retrieval.ChromaURL,
		Collection: c.cfg.Retrieval.Collection,
		Embedder:   embedder,
		Retry:      c.cfg.RetryPolicy(),
		Logger:     c.logger.Named("chroma"),
	})
}

// Searcher returns the configured candidate search.
func (c *components) Searcher(ctx context.Context) (retrieval.Searcher, error) {
	if c.searcher != nil {
		return c.searcher, nil
	}

	switch c.cfg.Retrieval.Backend {
	case lecternconfig.RetrievalChroma:
		chroma, err := c.Chroma()
		if err != nil {
			return nil, err
		}
		c.searcher = chroma
	case lecternconfig.RetrievalFTS:
		store, err := c.SQL(ctx)
		if err != nil {
			return nil, err
		}
		c.searcher = retrieval.NewRetrying(retrieval.NewFTSSearcher(store), c.cfg.RetryPolicy(), "fts")
	default:
		return nil, fmt.Errorf("unsupported retrieval backend: %s", c.cfg.Retrieval.Backend)
	}
	return c.searcher, nil
}

// Guard builds the moderation guard. Configured terms replace the
// built-in list.
func (c *components) Guard() (*guard.Guard, error) {
	if len(c.cfg.Guard.Terms) == 0 {
		return guard.Default(), nil
	}
	return guard.New(c.cfg.Guard.Terms...)
}

// Orchestrator builds the recommendation orchestrator.
func (c *components) Orchestrator(ctx context.Context) (*recommend.Orchestrator, error) {
	if c.orch != nil {
		return c.orch, nil
	}
	store, err := c.Corpus(ctx)
	if err != nil {
		return nil, err
	}
	searcher, err := c.Searcher(ctx)
	if err != nil {
		return nil, err
	}
	provider, err := c.factory.CreateProvider("")
	if err != nil {
		return nil, err
	}
	policy, err := recommend.ParsePolicy(c.cfg.Recommend.MismatchPolicy)
	if err != nil {
		return nil, err
	}

	c.orch, err = recommend.New(recommend.Config{
		Provider: provider,
		Searcher: searcher,
		Lookup:   store,
		Policy:   policy,
		Tracer:   c.tracer,
		Logger:   c.logger.Named("recommend"),
	})
	return c.orch, err
}

// OpenLibrary builds the catalogue client.
func (c *components) OpenLibrary() *openlibrary.Client {
	return openlibrary.NewClient(openlibrary.Config{
		BaseURL: c.cfg.OpenLibrary.BaseURL,
		Retry:   c.cfg.RetryPolicy().WithTimeout(c.cfg.OpenLibraryTimeout()),
		Logger:  c.logger.Named("openlibrary"),
	})
}

// Aggregator builds the unified answer pipeline.
func (c *components) Aggregator(ctx context.Context) (*answer.Aggregator, error) {
	orch, err := c.Orchestrator(ctx)
	if err != nil {
		return nil, err
	}
	return answer.New(answer.Config{
		Searcher:    orch.Searcher(),
		Recommender: orch,
		Enricher:    c.OpenLibrary(),
		Tracer:      c.tracer,
		Logger:      c.logger.Named("answer"),
	})
}

// Server builds the HTTP server over the full pipeline.
func (c *components) Server(ctx context.Context) (*server.Server, error) {
	g, err := c.Guard()
	if err != nil {
		return nil, err
	}
	store, err := c.Corpus(ctx)
	if err != nil {
		return nil, err
	}
	orch, err := c.Orchestrator(ctx)
	if err != nil {
		return nil, err
	}
	agg, err := c.Aggregator(ctx)
	if err != nil {
		return nil, err
	}

	cors := c.cfg.Server.CORS
	return server.New(server.Config{
		Addr: fmt.Sprintf("%s:%d", c.cfg.Server.Host, c.cfg.Server.Port),
		CORS: server.CORSConfig{
			Enabled:          cors.Enabled,
			AllowedOrigins:   cors.AllowedOrigins,
			AllowedMethods:   cors.AllowedMethods,
			AllowedHeaders:   cors.AllowedHeaders,
			ExposedHeaders:   server.DefaultCORSConfig().ExposedHeaders,
			AllowCredentials: cors.AllowCredentials,
			MaxAge:           cors.MaxAge,
		},
		DefaultK:   c.cfg.Retrieval.DefaultK,
		MaxK:       c.cfg.Retrieval.MaxK,
		ExtraTerms: c.cfg.Guard.ExtraTerms,
	}, server.Deps{
		Guard:       g,
		Searcher:    orch.Searcher(),
		Lookup:      store,
		Titles:      store,
		Recommender: orch,
		Answerer:    agg,
		Books:       c.OpenLibrary(),
		Logger:      c.logger.Named("http"),
		Tracer:      c.tracer,
	})
}
