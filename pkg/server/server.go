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

// Package server exposes the recommender over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/teradata-labs/lectern/pkg/answer"
	"github.com/teradata-labs/lectern/pkg/corpus"
	"github.com/teradata-labs/lectern/pkg/guard"
	"github.com/teradata-labs/lectern/pkg/observability"
	"github.com/teradata-labs/lectern/pkg/openlibrary"
	"github.com/teradata-labs/lectern/pkg/recommend"
	"github.com/teradata-labs/lectern/pkg/retrieval"
)

// Recommender picks one grounded recommendation for a query.
type Recommender interface {
	Recommend(ctx context.Context, query string, k int) (*recommend.Recommendation, error)
}

// Answerer produces the enriched answer envelope.
type Answerer interface {
	Answer(ctx context.Context, query string, k int) (*answer.Envelope, error)
}

// BookSearcher is the bibliographic catalogue search.
type BookSearcher interface {
	Search(ctx context.Context, query string, limit, page int) ([]openlibrary.BookHit, error)
}

// Config configures the HTTP server.
type Config struct {
	Addr string
	CORS CORSConfig

	// DefaultK applies when k is absent or zero; larger k is capped at MaxK.
	DefaultK int
	MaxK     int

	// ExtraTerms are denylisted in addition to the guard's own terms.
	ExtraTerms []string

	ShutdownTimeout time.Duration
}

// Deps are the collaborators behind the routes.
type Deps struct {
	Guard       *guard.Guard
	Searcher    retrieval.Searcher
	Lookup      corpus.Lookup
	Titles      corpus.Lister // optional, feeds "did you mean" suggestions
	Recommender Recommender
	Answerer    Answerer
	Books       BookSearcher

	Logger *zap.Logger
	Tracer observability.Tracer
}

// Server serves the lectern HTTP API.
type Server struct {
	cfg        Config
	deps       Deps
	logger     *zap.Logger
	tracer     observability.Tracer
	router     chi.Router
	httpServer *http.Server
}

// New builds the router. Every collaborator except Titles is required.
func New(cfg Config, deps Deps) (*Server, error) {
	switch {
	case deps.Guard == nil:
		return nil, fmt.Errorf("server: guard is required")
	case deps.Searcher == nil:
		return nil, fmt.Errorf("server: searcher is required")
	case deps.Lookup == nil:
		return nil, fmt.Errorf("server: corpus lookup is required")
	case deps.Recommender == nil:
		return nil, fmt.Errorf("server: recommender is required")
	case deps.Answerer == nil:
		return nil, fmt.Errorf("server: answerer is required")
	case deps.Books == nil:
		return nil, fmt.Errorf("server: book search is required")
	}
	if cfg.Addr == "" {
		cfg.Addr = ":8080"
	}
	if cfg.DefaultK <= 0 {
		cfg.DefaultK = retrieval.DefaultK
	}
	if cfg.MaxK <= 0 {
		cfg.MaxK = maxLimit
	}
	if cfg.MaxK < cfg.DefaultK {
		cfg.MaxK = cfg.DefaultK
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 10 * time.Second
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Tracer == nil {
		deps.Tracer = observability.NewNoOpTracer()
	}

	s := &Server{
		cfg:    cfg,
		deps:   deps,
		logger: deps.Logger,
		tracer: deps.Tracer,
	}
	s.router = s.routes()
	s.httpServer = &http.Server{
		Addr:              cfg.Addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s, nil
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(requestIDMiddleware)
	r.Use(accessLog(s.logger, s.tracer))
	r.Use(middleware.Recoverer)
	if s.cfg.CORS.Enabled {
		r.Use(corsMiddleware(s.cfg.CORS))
	}

	r.Get("/health", s.handleHealth)
	r.Route("/api", func(r chi.Router) {
		r.Get("/search", s.handleBookSearch)
		r.Get("/rag/search", s.handleRAGSearch)
		r.Get("/summary", s.handleSummary)
		r.Get("/recommend_chat", s.handleRecommend)
		r.Get("/answer", s.handleAnswer)
	})
	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeDetail(w, http.StatusNotFound, "Not Found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeDetail(w, http.StatusMethodNotAllowed, "Method Not Allowed")
	})
	return r
}

// Handler returns the HTTP handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start listens on the configured address and serves until ctx is done,
// then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.cfg.Addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is done or Stop is called.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.logger.Info("Starting HTTP server", zap.String("addr", ln.Addr().String()))

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.httpServer.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
		defer cancel()
		if err := s.Stop(shutdownCtx); err != nil {
			return fmt.Errorf("HTTP server shutdown failed: %w", err)
		}
		<-errCh
		return nil
	}
}

// Stop gracefully stops the HTTP server
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("Stopping HTTP server")
	return s.httpServer.Shutdown(ctx)
}
