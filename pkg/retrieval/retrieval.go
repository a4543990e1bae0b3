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
// Package retrieval finds the corpus books most similar to a request. The
// ranked candidates bound what the recommender may pick.
package retrieval

import (
	"context"
	"errors"
	"fmt"

	"github.com/teradata-labs/lectern/pkg/upstream"
)

// DefaultK is the candidate count used when callers pass none.
const DefaultK = 3

// SnippetLength is the maximum snippet length in runes.
const SnippetLength = 300

// ErrInvalidK is returned for a candidate count below 1.
var ErrInvalidK = errors.New("k must be at least 1")

// Candidate is one ranked search result. Score is the backend's distance
// (lower is closer) and is nil when the backend reports none.
type Candidate struct {
	Title   string   `json:"title"`
	Score   *float64 `json:"score"`
	Snippet string   `json:"snippet"`
}

// Searcher returns at most k candidates for query, best first.
type Searcher interface {
	Search(ctx context.Context, query string, k int) ([]Candidate, error)
}

// Titles returns the non-empty candidate titles in rank order. Duplicates
// are kept.
func Titles(cands []Candidate) []string {
	out := make([]string, 0, len(cands))
	for _, c := range cands {
		if c.Title != "" {
			out = append(out, c.Title)
		}
	}
	return out
}

// Snippet truncates doc to SnippetLength runes.
func Snippet(doc string) string {
	n := 0
	for i := range doc {
		if n == SnippetLength {
			return doc[:i]
		}
		n++
	}
	return doc
}

// CheckK validates a candidate count.
func CheckK(k int) error {
	if k < 1 {
		return fmt.Errorf("%w: got %d", ErrInvalidK, k)
	}
	return nil
}

func truncate(cands []Candidate, k int) []Candidate {
	if len(cands) > k {
		return cands[:k]
	}
	return cands
}

// Retrying applies an upstream.Policy to a Searcher.
type Retrying struct {
	searcher Searcher
	policy   upstream.Policy
	service  string
}

// NewRetrying wraps searcher. service names the backend in errors.
func NewRetrying(searcher Searcher, policy upstream.Policy, service string) *Retrying {
	return &Retrying{searcher: searcher, policy: policy, service: service}
}

// Search retries the wrapped search until it succeeds or the policy is
// exhausted. An invalid k is not retried.
func (r *Retrying) Search(ctx context.Context, query string, k int) ([]Candidate, error) {
	if err := CheckK(k); err != nil {
		return nil, err
	}
	return upstream.Do(ctx, r.policy, r.service, "search", func(ctx context.Context) ([]Candidate, error) {
		return r.searcher.Search(ctx, query, k)
	})
}

var _ Searcher = (*Retrying)(nil)
