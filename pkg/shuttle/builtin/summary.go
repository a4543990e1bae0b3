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
// Package builtin provides the tools the recommender declares to the model.
package builtin

import (
	"context"
	"fmt"
	"strings"

	"github.com/teradata-labs/lectern/pkg/corpus"
	"github.com/teradata-labs/lectern/pkg/shuttle"
)

// SummaryToolName is the only tool name the recommender acts on.
const SummaryToolName = "get_summary_by_title"

// SummaryTool returns the curated summary for an exact corpus title.
type SummaryTool struct {
	lookup corpus.Lookup
}

// NewSummaryTool creates the tool over lookup.
func NewSummaryTool(lookup corpus.Lookup) *SummaryTool {
	return &SummaryTool{lookup: lookup}
}

// Name implements shuttle.Tool.
func (t *SummaryTool) Name() string { return SummaryToolName }

// Description implements shuttle.Tool.
func (t *SummaryTool) Description() string {
	return "Return the full summary for the exact book title."
}

// Backend implements shuttle.Tool.
func (t *SummaryTool) Backend() string { return "corpus" }

// InputSchema implements shuttle.Tool.
func (t *SummaryTool) InputSchema() *shuttle.JSONSchema {
	// Any string is accepted; an empty or unknown title is grounded by the caller.
	return shuttle.NewObjectSchema(
		"Book to summarize",
		map[string]*shuttle.JSONSchema{
			"title": shuttle.NewStringSchema("Exact title of the chosen book"),
		},
		[]string{"title"},
	)
}

// Execute looks up params["title"]. A title outside the corpus is a
// successful call with an empty summary, not a failure.
func (t *SummaryTool) Execute(ctx context.Context, params map[string]interface{}) (*shuttle.Result, error) {
	title, _ := params["title"].(string)
	title = strings.TrimSpace(title)

	summary, found, err := t.lookup.SummaryOf(ctx, title)
	if err != nil {
		return nil, fmt.Errorf("summary lookup failed: %w", err)
	}
	return &shuttle.Result{
		Success: true,
		Data:    summary,
		Metadata: map[string]interface{}{
			"title": title,
			"found": found,
		},
	}, nil
}

var _ shuttle.Tool = (*SummaryTool)(nil)
