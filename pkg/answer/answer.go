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
// Package answer assembles the full response for a request: the retrieved
// candidates, the grounded recommendation and Open Library metadata.
package answer

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/teradata-labs/lectern/pkg/observability"
	"github.com/teradata-labs/lectern/pkg/openlibrary"
	"github.com/teradata-labs/lectern/pkg/recommend"
	"github.com/teradata-labs/lectern/pkg/retrieval"
)

// Source tags every envelope.
const Source = "rag+llm+openlibrary"

// Recommender picks one of the retrieved candidates.
type Recommender interface {
	Choose(ctx context.Context, query string, cands []retrieval.Candidate) (*recommend.Recommendation, error)
}

// Enricher fetches bibliographic metadata for a title. A nil result means
// not found.
type Enricher interface {
	FindTitleDetails(ctx context.Context, title string) (*openlibrary.Details, error)
}

// Envelope is the unified answer.
type Envelope struct {
	Query         string                `json:"query"`
	Title         string                `json:"title"`
	Justification string                `json:"reason_message"`
	Summary       string                `json:"summary"`
	Details       openlibrary.Details   `json:"details"`
	Candidates    []retrieval.Candidate `json:"rag_candidates"`
	K             int                   `json:"k"`
	Source        string                `json:"source"`
	Grounding     recommend.Grounding   `json:"grounding"`
}

// Empty reports that no book was recommended.
func (e *Envelope) Empty() bool {
	return e == nil || e.Title == ""
}

// Config wires an Aggregator.
type Config struct {
	Searcher    retrieval.Searcher
	Recommender Recommender
	Enricher    Enricher
	Tracer      observability.Tracer
	Logger      *zap.Logger
}

// Aggregator produces envelopes. Safe for concurrent use.
type Aggregator struct {
	searcher    retrieval.Searcher
	recommender Recommender
	enricher    Enricher
	tracer      observability.Tracer
	logger      *zap.Logger
}

// New creates an Aggregator. A nil Enricher leaves Details empty.
func New(cfg Config) (*Aggregator, error) {
	if cfg.Searcher == nil {
		return nil, fmt.Errorf("answer: searcher is required")
	}
	if cfg.Recommender == nil {
		return nil, fmt.Errorf("answer: recommender is required")
	}
	if cfg.Tracer == nil {
		cfg.Tracer = observability.NewNoOpTracer()
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Aggregator{
		searcher:    cfg.Searcher,
		recommender: cfg.Recommender,
		enricher:    cfg.Enricher,
		tracer:      cfg.Tracer,
		logger:      cfg.Logger,
	}, nil
}

// Answer retrieves k candidates, has the recommender pick one of that same
// list and enriches the pick. Enrichment failures never fail the answer.
func (a *Aggregator) Answer(ctx context.Context, query string, k int) (*Envelope, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, recommend.ErrEmptyQuery
	}
	if err := retrieval.CheckK(k); err != nil {
		return nil, err
	}

	ctx, span := a.tracer.StartSpan(ctx, observability.SpanAnswer,
		observability.WithAttribute(observability.AttrQueryK, k))
	defer a.tracer.EndSpan(span)

	cands, err := a.searcher.Search(ctx, query, k)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("retrieval failed: %w", err)
	}
	if cands == nil {
		cands = []retrieval.Candidate{}
	}
	span.SetAttribute(observability.AttrCandidateCount, len(cands))

	rec, err := a.recommender.Choose(ctx, query, cands)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	env := &Envelope{
		Query:         query,
		Title:         rec.Title,
		Justification: rec.Justification,
		Summary:       rec.Summary,
		Candidates:    cands,
		K:             k,
		Source:        Source,
		Grounding:     rec.Grounding,
	}
	if !rec.Empty() {
		env.Details = a.enrich(ctx, rec.Title)
	}
	span.SetAttribute(observability.AttrEnrichmentFound, !env.Details.IsZero())
	return env, nil
}

func (a *Aggregator) enrich(ctx context.Context, title string) openlibrary.Details {
	if a.enricher == nil {
		return openlibrary.Details{}
	}
	ctx, span := a.tracer.StartSpan(ctx, observability.SpanEnrich)
	defer a.tracer.EndSpan(span)

	details, err := a.enricher.FindTitleDetails(ctx, title)
	switch {
	case err != nil:
		span.RecordError(err)
		a.logger.Warn("Enrichment unavailable, answering without details",
			zap.String("title", title),
			zap.Error(err))
		a.tracer.RecordMetric(observability.MetricEnrichment, 1, map[string]string{"result": "error"})
		return openlibrary.Details{}
	case details == nil:
		a.tracer.RecordMetric(observability.MetricEnrichment, 1, map[string]string{"result": "not_found"})
		return openlibrary.Details{}
	default:
		a.tracer.RecordMetric(observability.MetricEnrichment, 1, map[string]string{"result": "found"})
		return *details
	}
}
