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
package recommend

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/teradata-labs/lectern/pkg/corpus"
	llmtypes "github.com/teradata-labs/lectern/pkg/llm/types"
	"github.com/teradata-labs/lectern/pkg/observability"
	"github.com/teradata-labs/lectern/pkg/retrieval"
	"github.com/teradata-labs/lectern/pkg/shuttle"
	"github.com/teradata-labs/lectern/pkg/shuttle/builtin"
)

// SystemPrompt instructs the model to pick one candidate and fetch it.
const SystemPrompt = "You are a helpful book recommender. From the provided candidates, " +
	"pick exactly ONE title that best matches the user's request. " +
	"Then call the tool get_summary_by_title with that exact title. Keep responses concise."

// CodeNotACandidate marks a tool call whose title was refused by PolicyAbstain.
const CodeNotACandidate = "not_a_candidate"

// Config wires an Orchestrator.
type Config struct {
	Provider llmtypes.LLMProvider
	Searcher retrieval.Searcher
	Lookup   corpus.Lookup
	Policy   Policy
	Tracer   observability.Tracer
	Logger   *zap.Logger
}

// Orchestrator runs retrieve, propose and finalize for one request at a
// time. It holds no per-request state and is safe for concurrent use.
type Orchestrator struct {
	provider llmtypes.LLMProvider
	searcher retrieval.Searcher
	lookup   corpus.Lookup
	tool     *builtin.SummaryTool
	executor *shuttle.Executor
	policy   Policy
	tracer   observability.Tracer
	logger   *zap.Logger
}

// New creates an Orchestrator.
func New(cfg Config) (*Orchestrator, error) {
	if cfg.Provider == nil {
		return nil, fmt.Errorf("recommend: provider is required")
	}
	if cfg.Searcher == nil {
		return nil, fmt.Errorf("recommend: searcher is required")
	}
	if cfg.Lookup == nil {
		return nil, fmt.Errorf("recommend: corpus lookup is required")
	}
	if cfg.Policy == "" {
		cfg.Policy = PolicySubstitute
	}
	if cfg.Tracer == nil {
		cfg.Tracer = observability.NewNoOpTracer()
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	tool := builtin.NewSummaryTool(cfg.Lookup)
	return &Orchestrator{
		provider: cfg.Provider,
		searcher: cfg.Searcher,
		lookup:   cfg.Lookup,
		tool:     tool,
		executor: shuttle.NewExecutor(shuttle.NewRegistry(tool)),
		policy:   cfg.Policy,
		tracer:   cfg.Tracer,
		logger:   cfg.Logger,
	}, nil
}

// Searcher returns the retrieval backend.
func (o *Orchestrator) Searcher() retrieval.Searcher { return o.searcher }

// Recommend retrieves k candidates for query and picks one of them.
func (o *Orchestrator) Recommend(ctx context.Context, query string, k int) (*Recommendation, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, ErrEmptyQuery
	}
	if err := retrieval.CheckK(k); err != nil {
		return nil, err
	}

	cands, err := o.searcher.Search(ctx, query, k)
	if err != nil {
		return nil, fmt.Errorf("retrieval failed: %w", err)
	}
	return o.Choose(ctx, query, cands)
}

type payloadCandidate struct {
	Title   string `json:"title"`
	Snippet string `json:"snippet"`
}

type userPayload struct {
	Query      string             `json:"query"`
	Candidates []payloadCandidate `json:"candidates"`
}

// selection is the outcome of the last actionable tool call.
type selection struct {
	grounding Grounding
	summary   string
}

// Choose picks one of cands for query. Retrieval scores are not shown to
// the model.
func (o *Orchestrator) Choose(ctx context.Context, query string, cands []retrieval.Candidate) (*Recommendation, error) {
	ctx, span := o.tracer.StartSpan(ctx, observability.SpanRecommend,
		observability.WithAttribute(observability.AttrCandidateCount, len(cands)))
	defer o.tracer.EndSpan(span)

	titles := retrieval.Titles(cands)
	messages, err := o.initialMessages(query, cands)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	resp, err := o.propose(ctx, messages)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	var rec *Recommendation
	switch turn := resp.Turn().(type) {
	case llmtypes.ToolTurn:
		rec, err = o.handleToolTurn(ctx, messages, turn, titles)
	case llmtypes.TextTurn:
		rec, err = o.fallback(ctx, titles)
	}
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	rec.CandidateTitles = titles
	span.SetAttribute(observability.AttrGroundingKind, string(rec.Grounding.Kind))
	span.SetAttribute(observability.AttrGroundingTitle, rec.Title)
	o.tracer.RecordMetric(observability.MetricGrounding, 1, map[string]string{
		"kind": string(rec.Grounding.Kind),
	})
	return rec, nil
}

func (o *Orchestrator) initialMessages(query string, cands []retrieval.Candidate) ([]llmtypes.Message, error) {
	payload := userPayload{Query: query, Candidates: make([]payloadCandidate, 0, len(cands))}
	for _, c := range cands {
		payload.Candidates = append(payload.Candidates, payloadCandidate{Title: c.Title, Snippet: c.Snippet})
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode candidates: %w", err)
	}
	return []llmtypes.Message{
		{Role: llmtypes.RoleSystem, Content: SystemPrompt},
		{Role: llmtypes.RoleUser, Content: string(body)},
	}, nil
}

func (o *Orchestrator) propose(ctx context.Context, messages []llmtypes.Message) (*llmtypes.LLMResponse, error) {
	ctx, span := o.tracer.StartSpan(ctx, observability.SpanPropose,
		observability.WithAttribute(observability.AttrLLMTools, o.tool.Name()))
	defer o.tracer.EndSpan(span)

	resp, err := o.provider.Chat(ctx, messages, []shuttle.Tool{o.tool})
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("model proposal failed: %w", err)
	}
	return resp, nil
}

// handleToolTurn answers every call in the turn, grounding actionable ones.
// The last actionable call decides the recommendation.
func (o *Orchestrator) handleToolTurn(ctx context.Context, messages []llmtypes.Message, turn llmtypes.ToolTurn, titles []string) (*Recommendation, error) {
	calls := make([]llmtypes.ToolCall, len(turn.Calls))
	copy(calls, turn.Calls)
	for i := range calls {
		if calls[i].ID == "" {
			calls[i].ID = "call_" + uuid.NewString()
		}
	}
	messages = append(messages, llmtypes.Message{
		Role:      llmtypes.RoleAssistant,
		Content:   turn.Content,
		ToolCalls: calls,
	})

	var chosen *selection
	for _, call := range calls {
		result, sel, err := o.answerCall(ctx, call, titles)
		if err != nil {
			return nil, err
		}
		if sel != nil {
			chosen = sel
		}
		messages = append(messages, llmtypes.Message{
			Role:      llmtypes.RoleTool,
			Content:   result.Content(),
			ToolUseID: call.ID,
			ToolName:  call.Name,
			IsError:   !result.Success,
		})
	}

	if chosen == nil {
		o.logger.Debug("No actionable tool call, using fallback",
			zap.Int("calls", len(calls)))
		return o.fallback(ctx, titles)
	}
	if chosen.grounding.Kind == KindAbstained {
		o.logger.Info("Model proposed a title outside the candidates, abstaining",
			zap.String("proposed", chosen.grounding.Proposed))
		return &Recommendation{
			Justification: NoRecommendationMessage,
			Grounding:     chosen.grounding,
		}, nil
	}

	justification, err := o.finalize(ctx, messages)
	if err != nil {
		return nil, err
	}
	return &Recommendation{
		Title:         chosen.grounding.Title,
		Summary:       chosen.summary,
		Justification: justification,
		Grounding:     chosen.grounding,
	}, nil
}

// answerCall produces the tool result for one call. sel is non-nil only
// for actionable calls.
func (o *Orchestrator) answerCall(ctx context.Context, call llmtypes.ToolCall, titles []string) (*shuttle.Result, *selection, error) {
	if call.Name != o.tool.Name() {
		// Unknown tools get the executor's structured error result.
		return o.executor.Execute(ctx, call.Name, call.Input), nil, nil
	}
	if err := shuttle.ValidateArguments(o.tool, call.Input); err != nil {
		o.logger.Debug("Rejected tool call arguments",
			zap.String("tool", call.Name),
			zap.Error(err))
		return &shuttle.Result{
			Error: &shuttle.Error{Code: shuttle.CodeInvalidArguments, Message: err.Error()},
		}, nil, nil
	}

	proposed, _ := call.Input["title"].(string)
	g := Ground(proposed, titles, o.policy)
	if g.Kind == KindSubstituted {
		o.logger.Warn("Model proposed a title outside the candidates, substituting",
			zap.String("proposed", g.Proposed),
			zap.String("title", g.Title))
	}
	if g.Kind == KindAbstained {
		return &shuttle.Result{
			Error: &shuttle.Error{
				Code:       CodeNotACandidate,
				Message:    fmt.Sprintf("%q is not one of the candidates", g.Proposed),
				Suggestion: "choose one of the provided candidate titles",
			},
		}, &selection{grounding: g}, nil
	}

	result, err := o.tool.Execute(ctx, map[string]interface{}{"title": g.Title})
	if err != nil {
		return nil, nil, err
	}
	summary, _ := result.Data.(string)
	return result, &selection{grounding: g, summary: summary}, nil
}

// finalize re-prompts without tools and returns the model's closing text.
func (o *Orchestrator) finalize(ctx context.Context, messages []llmtypes.Message) (string, error) {
	ctx, span := o.tracer.StartSpan(ctx, observability.SpanFinalize)
	defer o.tracer.EndSpan(span)

	resp, err := o.provider.Chat(ctx, messages, nil)
	if err != nil {
		span.RecordError(err)
		return "", fmt.Errorf("model finalization failed: %w", err)
	}
	return resp.Content, nil
}

// fallback picks the first candidate without the model's help.
func (o *Orchestrator) fallback(ctx context.Context, titles []string) (*Recommendation, error) {
	if len(titles) == 0 {
		return &Recommendation{
			Justification: NoRecommendationMessage,
			Grounding:     Grounding{Kind: KindFallback},
		}, nil
	}

	title := titles[0]
	summary, _, err := o.lookup.SummaryOf(ctx, title)
	if err != nil {
		return nil, fmt.Errorf("summary lookup failed: %w", err)
	}
	return &Recommendation{
		Title:         title,
		Summary:       summary,
		Justification: fmt.Sprintf("My pick: %s\n\n%s", title, summary),
		Grounding:     Grounding{Kind: KindFallback, Title: title},
	}, nil
}
