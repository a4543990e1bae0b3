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

// Package llm holds provider decorators shared by every language model
// backend: tracing and bounded retry.
package llm

import (
	"context"
	"fmt"
	"time"

	llmtypes "github.com/teradata-labs/lectern/pkg/llm/types"
	"github.com/teradata-labs/lectern/pkg/observability"
	"github.com/teradata-labs/lectern/pkg/shuttle"
)

// InstrumentedProvider wraps any LLMProvider with a span per call and
// call, latency, token and error metrics.
type InstrumentedProvider struct {
	provider llmtypes.LLMProvider
	tracer   observability.Tracer
}

// NewInstrumentedProvider creates a new instrumented LLM provider.
func NewInstrumentedProvider(provider llmtypes.LLMProvider, tracer observability.Tracer) *InstrumentedProvider {
	if tracer == nil {
		tracer = observability.NewNoOpTracer()
	}
	return &InstrumentedProvider{
		provider: provider,
		tracer:   tracer,
	}
}

// Name returns the underlying provider name.
func (p *InstrumentedProvider) Name() string {
	return p.provider.Name()
}

// Model returns the underlying model identifier.
func (p *InstrumentedProvider) Model() string {
	return p.provider.Model()
}

// Chat sends a conversation to the LLM, recording the exchange on a span.
func (p *InstrumentedProvider) Chat(ctx context.Context, messages []llmtypes.Message, tools []shuttle.Tool) (*llmtypes.LLMResponse, error) {
	ctx, span := p.tracer.StartSpan(ctx, observability.SpanLLMCompletion, observability.WithSpanKind("llm"))
	defer p.tracer.EndSpan(span)

	start := time.Now()
	labels := map[string]string{
		observability.AttrLLMProvider: p.provider.Name(),
		observability.AttrLLMModel:    p.provider.Model(),
	}

	span.SetAttribute(observability.AttrLLMProvider, p.provider.Name())
	span.SetAttribute(observability.AttrLLMModel, p.provider.Model())
	span.SetAttribute("llm.messages.count", len(messages))
	if len(tools) > 0 {
		toolNames := make([]string, len(tools))
		for i, tool := range tools {
			toolNames[i] = tool.Name()
		}
		span.SetAttribute(observability.AttrLLMTools, toolNames)
	}

	resp, err := p.provider.Chat(ctx, messages, tools)
	duration := time.Since(start)

	if err != nil {
		span.RecordError(err)
		span.SetAttribute(observability.AttrErrorType, fmt.Sprintf("%T", err))
		span.AddEvent("llm.call.failed", map[string]interface{}{
			"error":       err.Error(),
			"duration_ms": duration.Milliseconds(),
		})
		p.tracer.RecordMetric(observability.MetricLLMErrors, 1, labels)
		return nil, err
	}

	span.Status = observability.Status{Code: observability.StatusOK}
	span.SetAttribute("llm.tokens.input", resp.Usage.InputTokens)
	span.SetAttribute("llm.tokens.output", resp.Usage.OutputTokens)
	span.SetAttribute(observability.AttrStopReason, resp.StopReason)
	span.SetAttribute("llm.tool_calls.count", len(resp.ToolCalls))

	p.tracer.RecordMetric(observability.MetricLLMCalls, 1, labels)
	p.tracer.RecordMetric(observability.MetricLLMLatency, float64(duration.Milliseconds()), labels)
	p.tracer.RecordMetric(observability.MetricLLMTokensInput, float64(resp.Usage.InputTokens), labels)
	p.tracer.RecordMetric(observability.MetricLLMTokensOutput, float64(resp.Usage.OutputTokens), labels)

	return resp, nil
}

var _ llmtypes.LLMProvider = (*InstrumentedProvider)(nil)
