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
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/teradata-labs/lectern/pkg/corpus"
	"github.com/teradata-labs/lectern/pkg/guard"
)

// ErrNotFound is returned by lookups that find nothing, so the process
// exits non-zero.
var ErrNotFound = errors.New("not found")

var (
	queryK      int
	searchLimit int
	searchPage  int
)

var answerCmd = &cobra.Command{
	Use:   "answer <query>",
	Short: "Recommend one book and enrich it with Open Library metadata",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withComponents(func(comps *components) error {
			return runAnswer(cmd.Context(), comps, cmd.OutOrStdout(), strings.Join(args, " "), queryK)
		})
	},
}

var recommendCmd = &cobra.Command{
	Use:   "recommend <query>",
	Short: "Recommend one book from the corpus",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withComponents(func(comps *components) error {
			return runRecommend(cmd.Context(), comps, cmd.OutOrStdout(), strings.Join(args, " "), queryK)
		})
	},
}

var ragSearchCmd = &cobra.Command{
	Use:   "rag-search <query>",
	Short: "List the candidate books similarity search returns",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withComponents(func(comps *components) error {
			return runRAGSearch(cmd.Context(), comps, cmd.OutOrStdout(), strings.Join(args, " "), queryK)
		})
	},
}

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Search the Open Library catalogue",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withComponents(func(comps *components) error {
			return runBookSearch(cmd.Context(), comps, cmd.OutOrStdout(), strings.Join(args, " "), searchLimit, searchPage)
		})
	},
}

var summaryCmd = &cobra.Command{
	Use:   "summary <title>",
	Short: "Print the corpus summary for an exact title",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withComponents(func(comps *components) error {
			return runSummary(cmd.Context(), comps, cmd.OutOrStdout(), strings.TrimSpace(strings.Join(args, " ")))
		})
	},
}

var checkCmd = &cobra.Command{
	Use:   "check <text>",
	Short: "Run text through the moderation guard",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withComponents(func(comps *components) error {
			return runCheck(comps, cmd.OutOrStdout(), strings.Join(args, " "))
		})
	},
}

func init() {
	for _, c := range []*cobra.Command{answerCmd, recommendCmd, ragSearchCmd} {
		c.Flags().IntVar(&queryK, "k", 0, "number of candidates (default: retrieval.default_k)")
	}
	searchCmd.Flags().IntVar(&searchLimit, "limit", 10, "results per page (1-50)")
	searchCmd.Flags().IntVar(&searchPage, "page", 1, "page number (1-20)")

	rootCmd.AddCommand(answerCmd, recommendCmd, ragSearchCmd, searchCmd, summaryCmd, checkCmd)
}

func withComponents(fn func(*components) error) error {
	comps, err := setup()
	if err != nil {
		return err
	}
	defer func() { _ = comps.Close() }()
	defer func() { _ = comps.logger.Sync() }()
	return fn(comps)
}

// resolveK applies the configured default and cap.
func (c *components) resolveK(k int) int {
	switch {
	case k <= 0:
		return c.cfg.Retrieval.DefaultK
	case k > c.cfg.Retrieval.MaxK:
		return c.cfg.Retrieval.MaxK
	}
	return k
}

// moderate applies the guard the same way the HTTP API does.
func (c *components) moderate(q string) error {
	g, err := c.Guard()
	if err != nil {
		return err
	}
	return g.EnsureClean(q, c.cfg.Guard.ExtraTerms...)
}

func runAnswer(ctx context.Context, comps *components, out io.Writer, q string, k int) error {
	if err := comps.moderate(q); err != nil {
		return err
	}
	agg, err := comps.Aggregator(ctx)
	if err != nil {
		return err
	}
	env, err := agg.Answer(ctx, q, comps.resolveK(k))
	if err != nil {
		return err
	}
	if env.Empty() {
		return fmt.Errorf("no recommendation available: %w", ErrNotFound)
	}
	return printJSON(out, env)
}

func runRecommend(ctx context.Context, comps *components, out io.Writer, q string, k int) error {
	if err := comps.moderate(q); err != nil {
		return err
	}
	orch, err := comps.Orchestrator(ctx)
	if err != nil {
		return err
	}
	rec, err := orch.Recommend(ctx, q, comps.resolveK(k))
	if err != nil {
		return err
	}
	if rec.Empty() {
		return fmt.Errorf("no recommendation available: %w", ErrNotFound)
	}
	return printJSON(out, rec)
}

func runRAGSearch(ctx context.Context, comps *components, out io.Writer, q string, k int) error {
	q = strings.TrimSpace(q)
	if q == "" {
		return fmt.Errorf("empty query")
	}
	searcher, err := comps.Searcher(ctx)
	if err != nil {
		return err
	}
	cands, err := searcher.Search(ctx, q, comps.resolveK(k))
	if err != nil {
		return err
	}
	for i, c := range cands {
		score := "-"
		if c.Score != nil {
			score = fmt.Sprintf("%.4f", *c.Score)
		}
		fmt.Fprintf(out, "%d. %s (score %s)\n", i+1, c.Title, score)
	}
	return nil
}

func runBookSearch(ctx context.Context, comps *components, out io.Writer, q string, limit, page int) error {
	if limit < 1 || limit > 50 {
		return fmt.Errorf("--limit must be between 1 and 50")
	}
	if page < 1 || page > 20 {
		return fmt.Errorf("--page must be between 1 and 20")
	}
	hits, err := comps.OpenLibrary().Search(ctx, q, limit, page)
	if err != nil {
		return err
	}
	return printJSON(out, hits)
}

func runSummary(ctx context.Context, comps *components, out io.Writer, title string) error {
	store, err := comps.Corpus(ctx)
	if err != nil {
		return err
	}
	summary, found, err := store.SummaryOf(ctx, title)
	if err != nil {
		return err
	}
	if found && summary != "" {
		fmt.Fprintln(out, summary)
		return nil
	}

	msg := fmt.Sprintf("title %q", title)
	if entries, err := store.Entries(ctx); err == nil {
		if s := corpus.Suggest(corpus.Titles(entries), title, 3); len(s) > 0 {
			msg += fmt.Sprintf(" (did you mean: %s?)", strings.Join(s, ", "))
		}
	}
	return fmt.Errorf("%s: %w", msg, ErrNotFound)
}

func runCheck(comps *components, out io.Writer, text string) error {
	g, err := comps.Guard()
	if err != nil {
		return err
	}
	v := g.Check(text, comps.cfg.Guard.ExtraTerms...)
	if v.Rejected {
		fmt.Fprintf(out, "rejected: matched %q\n", v.Term)
		return &guard.RejectedError{Term: v.Term}
	}
	fmt.Fprintln(out, "ok")
	return nil
}

func printJSON(out io.Writer, v interface{}) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(v)
}
