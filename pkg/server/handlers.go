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
package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/teradata-labs/lectern/pkg/corpus"
	"github.com/teradata-labs/lectern/pkg/guard"
	"github.com/teradata-labs/lectern/pkg/recommend"
	"github.com/teradata-labs/lectern/pkg/retrieval"
	"github.com/teradata-labs/lectern/pkg/upstream"
)

// Query parameter bounds.
const (
	defaultLimit = 10
	maxLimit     = 50
	defaultPage  = 1
	maxPage      = 20

	suggestionCount = 3
)

// errorBody is the error response shape: {"detail": "..."}.
type errorBody struct {
	Detail      string   `json:"detail"`
	Suggestions []string `json:"suggestions,omitempty"`
}

type summaryBody struct {
	Title   string `json:"title"`
	Summary string `json:"summary"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleBookSearch passes a free-text query through to the catalogue.
func (s *Server) handleBookSearch(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	if q == "" {
		writeDetail(w, http.StatusUnprocessableEntity, "q: field required")
		return
	}
	limit, err := intParam(r, "limit", defaultLimit, 1, maxLimit)
	if err != nil {
		writeDetail(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	page, err := intParam(r, "page", defaultPage, 1, maxPage)
	if err != nil {
		writeDetail(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	hits, err := s.deps.Books.Search(r.Context(), q, limit, page)
	if err != nil {
		s.logger.Warn("Book search failed", zap.String("q", q), zap.Error(err))
		writeDetail(w, http.StatusBadGateway, "Upstream error: "+err.Error())
		return
	}
	writeJSON(w, http.StatusOK, nonNil(hits))
}

func (s *Server) handleRAGSearch(w http.ResponseWriter, r *http.Request) {
	q := strings.TrimSpace(r.URL.Query().Get("q"))
	if q == "" {
		writeDetail(w, http.StatusBadRequest, "Empty query")
		return
	}
	k, ok := s.kParam(w, r)
	if !ok {
		return
	}

	cands, err := s.deps.Searcher.Search(r.Context(), q, k)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(cands))
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	values := r.URL.Query()
	if !values.Has("title") {
		writeDetail(w, http.StatusUnprocessableEntity, "title: field required")
		return
	}
	title := values.Get("title")

	summary, found, err := s.deps.Lookup.SummaryOf(r.Context(), title)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if !found || summary == "" {
		writeJSON(w, http.StatusNotFound, errorBody{
			Detail:      "Title not found",
			Suggestions: s.suggest(r, title),
		})
		return
	}
	writeJSON(w, http.StatusOK, summaryBody{Title: title, Summary: summary})
}

func (s *Server) handleRecommend(w http.ResponseWriter, r *http.Request) {
	q, k, ok := s.moderatedQuery(w, r)
	if !ok {
		return
	}

	rec, err := s.deps.Recommender.Recommend(r.Context(), q, k)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if rec.Empty() {
		writeDetail(w, http.StatusNotFound, "No recommendation available")
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleAnswer(w http.ResponseWriter, r *http.Request) {
	q, k, ok := s.moderatedQuery(w, r)
	if !ok {
		return
	}

	env, err := s.deps.Answerer.Answer(r.Context(), q, k)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if env.Empty() {
		writeDetail(w, http.StatusNotFound, "No recommendation available")
		return
	}
	writeJSON(w, http.StatusOK, env)
}

// moderatedQuery reads q and k and runs the guard over the raw query. The
// returned query is trimmed. On failure the response is already written.
func (s *Server) moderatedQuery(w http.ResponseWriter, r *http.Request) (string, int, bool) {
	q := r.URL.Query().Get("q")
	if q == "" {
		writeDetail(w, http.StatusUnprocessableEntity, "q: field required")
		return "", 0, false
	}
	if err := s.deps.Guard.EnsureClean(q, s.cfg.ExtraTerms...); err != nil {
		var rejected *guard.RejectedError
		if errors.As(err, &rejected) {
			s.logger.Info("Query rejected by guard", zap.String("term", rejected.Term))
		}
		writeDetail(w, http.StatusBadRequest, err.Error())
		return "", 0, false
	}
	k, ok := s.kParam(w, r)
	if !ok {
		return "", 0, false
	}
	return strings.TrimSpace(q), k, true
}

// kParam reads k. Absent or zero selects the default, larger values are
// capped at MaxK.
func (s *Server) kParam(w http.ResponseWriter, r *http.Request) (int, bool) {
	k, err := intParam(r, "k", s.cfg.DefaultK, 0, -1)
	if err != nil {
		writeDetail(w, http.StatusUnprocessableEntity, err.Error())
		return 0, false
	}
	switch {
	case k == 0:
		k = s.cfg.DefaultK
	case k > s.cfg.MaxK:
		k = s.cfg.MaxK
	}
	return k, true
}

func (s *Server) suggest(r *http.Request, title string) []string {
	if s.deps.Titles == nil {
		return nil
	}
	entries, err := s.deps.Titles.Entries(r.Context())
	if err != nil {
		s.logger.Warn("Failed to list titles for suggestions", zap.Error(err))
		return nil
	}
	return corpus.Suggest(corpus.Titles(entries), title, suggestionCount)
}

// writeError maps pipeline errors onto status codes.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var upstreamErr *upstream.Error
	var statusErr *upstream.StatusError

	switch {
	case errors.Is(err, guard.ErrRejected):
		writeDetail(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, recommend.ErrEmptyQuery):
		writeDetail(w, http.StatusBadRequest, "Empty query")
	case errors.Is(err, retrieval.ErrInvalidK):
		writeDetail(w, http.StatusBadRequest, err.Error())
	case errors.As(err, &upstreamErr), errors.As(err, &statusErr):
		s.logger.Warn("Upstream failure", zap.String("path", r.URL.Path), zap.Error(err))
		writeDetail(w, http.StatusBadGateway, "Upstream error: "+err.Error())
	default:
		s.logger.Error("Request failed", zap.String("path", r.URL.Path), zap.Error(err))
		writeDetail(w, http.StatusInternalServerError, "Internal Server Error")
	}
}

// intParam parses an optional integer query parameter. A hi below lo
// means unbounded above.
func intParam(r *http.Request, name string, def, lo, hi int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%s: value is not a valid integer", name)
	}
	if v < lo {
		return 0, fmt.Errorf("%s: ensure this value is greater than or equal to %d", name, lo)
	}
	if hi >= lo && v > hi {
		return 0, fmt.Errorf("%s: ensure this value is less than or equal to %d", name, hi)
	}
	return v, nil
}

func nonNil[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}

func writeDetail(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, errorBody{Detail: detail})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
