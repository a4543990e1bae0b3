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
package answer

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teradata-labs/lectern/pkg/corpus"
	llmtypes "github.com/teradata-labs/lectern/pkg/llm/types"
	"github.com/teradata-labs/lectern/pkg/observability"
	"github.com/teradata-labs/lectern/pkg/openlibrary"
	"github.com/teradata-labs/lectern/pkg/recommend"
	"github.com/teradata-labs/lectern/pkg/retrieval"
	"github.com/teradata-labs/lectern/pkg/shuttle"
)

type countingSearcher struct {
	cands []retrieval.Candidate
	err   error
	calls int
}

func (s *countingSearcher) Search(_ context.Context, _ string, _ int) ([]retrieval.Candidate, error) {
	s.calls++
	return s.cands, s.err
}

type fakeRecommender struct {
	rec  *recommend.Recommendation
	err  error
	seen []retrieval.Candidate
}

func (f *fakeRecommender) Choose(_ context.Context, _ string, cands []retrieval.Candidate) (*recommend.Recommendation, error) {
	f.seen = cands
	return f.rec, f.err
}

type fakeEnricher struct {
	details *openlibrary.Details
	err     error
	titles  []string
}

func (f *fakeEnricher) FindTitleDetails(_ context.Context, title string) (*openlibrary.Details, error) {
	f.titles = append(f.titles, title)
	return f.details, f.err
}

type textProvider struct{}

func (textProvider) Chat(context.Context, []llmtypes.Message, []shuttle.Tool) (*llmtypes.LLMResponse, error) {
	return &llmtypes.LLMResponse{Content: "no tools today"}, nil
}
func (textProvider) Name() string  { return "text" }
func (textProvider) Model() string { return "text-1" }

func dune() []retrieval.Candidate {
	d := 0.25
	return []retrieval.Candidate{{Title: "Dune", Snippet: "Dune\n\nSpice.", Score: &d}}
}

func TestAnswer_Enriched(t *testing.T) {
	year := 1965
	searcher := &countingSearcher{cands: dune()}
	rec := &fakeRecommender{rec: &recommend.Recommendation{
		Title: "Dune", Summary: "Spice.", Justification: "Sand and politics.",
		CandidateTitles: []string{"Dune"},
		Grounding:       recommend.Grounding{Kind: recommend.KindGrounded, Proposed: "Dune", Title: "Dune"},
	}}
	enricher := &fakeEnricher{details: &openlibrary.Details{Title: "Dune", Authors: []string{"Frank Herbert"}, Year: &year}}
	tracer := observability.NewMockTracer()

	agg, err := New(Config{Searcher: searcher, Recommender: rec, Enricher: enricher, Tracer: tracer})
	require.NoError(t, err)

	env, err := agg.Answer(context.Background(), " desert politics ", 3)
	require.NoError(t, err)

	assert.Equal(t, "desert politics", env.Query)
	assert.Equal(t, "Dune", env.Title)
	assert.Equal(t, "Sand and politics.", env.Justification)
	assert.Equal(t, "Spice.", env.Summary)
	assert.Equal(t, []string{"Frank Herbert"}, env.Details.Authors)
	assert.Equal(t, 3, env.K)
	assert.Equal(t, Source, env.Source)
	assert.Equal(t, dune(), env.Candidates)
	assert.Equal(t, env.Candidates, rec.seen, "recommender sees the echoed candidates")
	assert.Equal(t, 1, searcher.calls)
	assert.Equal(t, []string{"Dune"}, enricher.titles)

	metrics := tracer.GetMetrics(observability.MetricEnrichment)
	require.Len(t, metrics, 1)
	assert.Equal(t, "found", metrics[0].Labels["result"])
}

func TestAnswer_EnrichmentIsolated(t *testing.T) {
	tests := []struct {
		name     string
		enricher Enricher
	}{
		{"error", &fakeEnricher{err: errors.New("openlibrary search: upstream unavailable")}},
		{"not found", &fakeEnricher{}},
		{"no enricher", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			agg, err := New(Config{
				Searcher:    &countingSearcher{cands: dune()},
				Recommender: &fakeRecommender{rec: &recommend.Recommendation{Title: "Dune", Summary: "Spice."}},
				Enricher:    tt.enricher,
			})
			require.NoError(t, err)

			env, err := agg.Answer(context.Background(), "sand", 3)
			require.NoError(t, err)
			assert.Equal(t, "Dune", env.Title)
			assert.True(t, env.Details.IsZero())

			b, err := json.Marshal(env)
			require.NoError(t, err)
			var raw map[string]json.RawMessage
			require.NoError(t, json.Unmarshal(b, &raw))
			assert.JSONEq(t, `{}`, string(raw["details"]))
		})
	}
}

func TestAnswer_NoRecommendationSkipsEnrichment(t *testing.T) {
	enricher := &fakeEnricher{}
	agg, err := New(Config{
		Searcher:    &countingSearcher{},
		Recommender: &fakeRecommender{rec: &recommend.Recommendation{Justification: recommend.NoRecommendationMessage}},
		Enricher:    enricher,
	})
	require.NoError(t, err)

	env, err := agg.Answer(context.Background(), "anything", 3)
	require.NoError(t, err)
	assert.True(t, env.Empty())
	assert.Empty(t, enricher.titles)
	assert.NotNil(t, env.Candidates)

	b, err := json.Marshal(env)
	require.NoError(t, err)
	assert.Contains(t, string(b), `"rag_candidates":[]`)
}

func TestAnswer_Errors(t *testing.T) {
	ctx := context.Background()
	agg, err := New(Config{Searcher: &countingSearcher{}, Recommender: &fakeRecommender{}})
	require.NoError(t, err)

	_, err = agg.Answer(ctx, "  ", 3)
	assert.ErrorIs(t, err, recommend.ErrEmptyQuery)
	_, err = agg.Answer(ctx, "x", 0)
	assert.ErrorIs(t, err, retrieval.ErrInvalidK)

	boom := errors.New("chroma down")
	agg, err = New(Config{Searcher: &countingSearcher{err: boom}, Recommender: &fakeRecommender{}})
	require.NoError(t, err)
	_, err = agg.Answer(ctx, "x", 3)
	assert.ErrorIs(t, err, boom)

	agg, err = New(Config{Searcher: &countingSearcher{}, Recommender: &fakeRecommender{err: boom}})
	require.NoError(t, err)
	_, err = agg.Answer(ctx, "x", 3)
	assert.ErrorIs(t, err, boom)

	_, err = New(Config{Recommender: &fakeRecommender{}})
	assert.Error(t, err)
	_, err = New(Config{Searcher: &countingSearcher{}})
	assert.Error(t, err)
}

func TestAnswer_WithOrchestrator(t *testing.T) {
	searcher := &countingSearcher{cands: dune()}
	orch, err := recommend.New(recommend.Config{
		Provider: textProvider{},
		Searcher: searcher,
		Lookup:   corpus.NewMemoryStore([]corpus.Entry{{Title: "Dune", Summary: "Spice."}}),
	})
	require.NoError(t, err)

	agg, err := New(Config{Searcher: searcher, Recommender: orch})
	require.NoError(t, err)

	env, err := agg.Answer(context.Background(), "sand", 3)
	require.NoError(t, err)
	assert.Equal(t, "Dune", env.Title)
	assert.Equal(t, "My pick: Dune\n\nSpice.", env.Justification)
	assert.Equal(t, recommend.KindFallback, env.Grounding.Kind)
	assert.Equal(t, 1, searcher.calls)
}
