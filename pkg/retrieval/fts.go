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
	"fmt"

	"github.com/teradata-labs/lectern/pkg/corpus"
)

// Index is the lexical search a corpus store provides.
type Index interface {
	Search(ctx context.Context, query string, limit int) ([]corpus.Hit, error)
}

// FTSSearcher ranks candidates with the corpus store's full-text index.
// It needs no embeddings and serves as the offline backend.
type FTSSearcher struct {
	index Index
}

// NewFTSSearcher searches index.
func NewFTSSearcher(index Index) *FTSSearcher {
	return &FTSSearcher{index: index}
}

// Search implements Searcher. Snippets are built from the same
// "title\n\nsummary" document the vector index stores.
func (s *FTSSearcher) Search(ctx context.Context, query string, k int) ([]Candidate, error) {
	if err := CheckK(k); err != nil {
		return nil, err
	}
	hits, err := s.index.Search(ctx, query, k)
	if err != nil {
		return nil, fmt.Errorf("lexical search failed: %w", err)
	}

	out := make([]Candidate, 0, len(hits))
	for _, h := range hits {
		score := h.Score
		out = append(out, Candidate{
			Title:   h.Title,
			Score:   &score,
			Snippet: Snippet(corpus.Entry{Title: h.Title, Summary: h.Summary}.Document()),
		})
	}
	return truncate(out, k), nil
}

var _ Searcher = (*FTSSearcher)(nil)
