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
// Package openlibrary is a small client for the Open Library search API,
// used to enrich recommendations with authors, year and cover art.
package openlibrary

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/teradata-labs/lectern/pkg/upstream"
)

// Default endpoints.
const (
	DefaultBaseURL   = "https://openlibrary.org"
	DefaultCoversURL = "https://covers.openlibrary.org"
	DefaultUserAgent = "lectern/1.0 (+https://github.com/teradata-labs/lectern)"
)

// detailsLimit is how many docs FindTitleDetails considers.
const detailsLimit = 5

// BookHit is one search result.
type BookHit struct {
	Key              string   `json:"key"`
	Title            string   `json:"title"`
	AuthorName       []string `json:"author_name"`
	FirstPublishYear *int     `json:"first_publish_year"`
	ISBN             []string `json:"isbn"`
	Language         []string `json:"language"`
	CoverID          *int     `json:"cover_i"`
}

// Details is best-effort metadata for a title. The zero value marshals
// to {}.
type Details struct {
	Title          string   `json:"title,omitempty"`
	Authors        []string `json:"authors,omitempty"`
	Year           *int     `json:"year,omitempty"`
	OpenLibraryURL string   `json:"openlibrary_url,omitempty"`
	CoverURL       string   `json:"cover_url,omitempty"`
}

// IsZero reports whether no metadata is present.
func (d Details) IsZero() bool {
	return d.Title == "" && len(d.Authors) == 0 && d.Year == nil && d.OpenLibraryURL == "" && d.CoverURL == ""
}

// Config configures a Client.
type Config struct {
	BaseURL    string          // Default: https://openlibrary.org
	CoversURL  string          // Default: https://covers.openlibrary.org
	UserAgent  string          // Default: DefaultUserAgent
	Retry      upstream.Policy // Default: upstream.DefaultPolicy()
	HTTPClient *http.Client
	Logger     *zap.Logger
}

// Client queries Open Library. Each request is retried on the configured
// schedule with a per-attempt timeout (15s by default).
type Client struct {
	baseURL    string
	coversURL  string
	userAgent  string
	retry      upstream.Policy
	httpClient *http.Client
	logger     *zap.Logger
}

// NewClient creates a Client.
func NewClient(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.CoversURL == "" {
		cfg.CoversURL = DefaultCoversURL
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = DefaultUserAgent
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
		cfg.HTTPClient = &http.Client{}
	}
	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		coversURL:  strings.TrimRight(cfg.CoversURL, "/"),
		userAgent:  cfg.UserAgent,
		retry:      cfg.Retry,
		httpClient: cfg.HTTPClient,
		logger:     cfg.Logger,
	}
}

type searchResponse struct {
	NumFound int       `json:"numFound"`
	Docs     []BookHit `json:"docs"`
}

// Search runs a free-text search. limit and page are passed through.
func (c *Client) Search(ctx context.Context, query string, limit, page int) ([]BookHit, error) {
	params := url.Values{}
	params.Set("q", query)
	params.Set("limit", strconv.Itoa(limit))
	params.Set("page", strconv.Itoa(page))

	resp, err := c.search(ctx, "search", params)
	if err != nil {
		return nil, err
	}
	hits := make([]BookHit, 0, len(resp.Docs))
	for _, d := range resp.Docs {
		hits = append(hits, d.normalized())
	}
	return hits, nil
}

// FindTitleDetails looks title up, preferring a case-insensitive exact
// title match among the first results and falling back to the first one.
// It returns nil when nothing is found.
func (c *Client) FindTitleDetails(ctx context.Context, title string) (*Details, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, nil
	}

	params := url.Values{}
	params.Set("title", title)
	params.Set("limit", strconv.Itoa(detailsLimit))

	resp, err := c.search(ctx, "find_title", params)
	if err != nil {
		return nil, err
	}
	best := bestMatch(resp.Docs, title)
	if best == nil {
		return nil, nil
	}
	return c.details(*best, title), nil
}

func bestMatch(docs []BookHit, title string) *BookHit {
	want := strings.ToLower(title)
	for i := range docs {
		if strings.ToLower(strings.TrimSpace(docs[i].Title)) == want {
			return &docs[i]
		}
	}
	if len(docs) > 0 {
		return &docs[0]
	}
	return nil
}

func (c *Client) details(hit BookHit, requested string) *Details {
	d := &Details{
		Title:   hit.Title,
		Authors: hit.AuthorName,
		Year:    hit.FirstPublishYear,
	}
	if d.Title == "" {
		d.Title = requested
	}
	if hit.Key != "" {
		d.OpenLibraryURL = c.baseURL + hit.Key
	}
	d.CoverURL = c.CoverURL(hit)
	return d
}

// CoverURL returns the medium cover image for hit: by cover id, else by
// first ISBN, else empty.
func (c *Client) CoverURL(hit BookHit) string {
	if hit.CoverID != nil && *hit.CoverID != 0 {
		return fmt.Sprintf("%s/b/id/%d-M.jpg", c.coversURL, *hit.CoverID)
	}
	if len(hit.ISBN) > 0 && hit.ISBN[0] != "" {
		return fmt.Sprintf("%s/b/isbn/%s-M.jpg", c.coversURL, url.PathEscape(hit.ISBN[0]))
	}
	return ""
}

func (c *Client) search(ctx context.Context, op string, params url.Values) (*searchResponse, error) {
	endpoint := c.baseURL + "/search.json?" + params.Encode()
	return upstream.Do(ctx, c.retry, "openlibrary", op, func(ctx context.Context) (*searchResponse, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return nil, upstream.Permanent(fmt.Errorf("failed to create request: %w", err))
		}
		req.Header.Set("Accept", "application/json")
		req.Header.Set("User-Agent", c.userAgent)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, fmt.Errorf("HTTP request failed: %w", err)
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("failed to read response: %w", err)
		}
		if err := upstream.ReadStatus(resp, body); err != nil {
			return nil, err
		}

		var out searchResponse
		if err := json.Unmarshal(body, &out); err != nil {
			return nil, fmt.Errorf("failed to decode search response: %w", err)
		}
		return &out, nil
	})
}

// normalized replaces nil lists with empty ones.
func (h BookHit) normalized() BookHit {
	if h.AuthorName == nil {
		h.AuthorName = []string{}
	}
	if h.ISBN == nil {
		h.ISBN = []string{}
	}
	if h.Language == nil {
		h.Language = []string{}
	}
	return h
}
