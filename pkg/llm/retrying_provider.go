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
package llm

import (
	"context"

	llmtypes "github.com/teradata-labs/lectern/pkg/llm/types"
	"github.com/teradata-labs/lectern/pkg/shuttle"
	"github.com/teradata-labs/lectern/pkg/upstream"
)

// RetryingProvider applies an upstream.Policy to every Chat call.
// Exhaustion surfaces as *upstream.Error wrapping upstream.ErrTransient.
type RetryingProvider struct {
	provider llmtypes.LLMProvider
	policy   upstream.Policy
}

// NewRetryingProvider wraps provider with the given retry policy.
func NewRetryingProvider(provider llmtypes.LLMProvider, policy upstream.Policy) *RetryingProvider {
	return &RetryingProvider{provider: provider, policy: policy}
}

// Name returns the underlying provider name.
func (p *RetryingProvider) Name() string { return p.provider.Name() }

// Model returns the underlying model identifier.
func (p *RetryingProvider) Model() string { return p.provider.Model() }

// Chat calls the provider until it succeeds or the policy is exhausted.
func (p *RetryingProvider) Chat(ctx context.Context, messages []llmtypes.Message, tools []shuttle.Tool) (*llmtypes.LLMResponse, error) {
	return upstream.Do(ctx, p.policy, p.provider.Name(), "chat", func(ctx context.Context) (*llmtypes.LLMResponse, error) {
		return p.provider.Chat(ctx, messages, tools)
	})
}

// RetryingEmbedder applies an upstream.Policy to every Embed call.
type RetryingEmbedder struct {
	embedder llmtypes.Embedder
	policy   upstream.Policy
	service  string
}

// NewRetryingEmbedder wraps embedder with the given retry policy.
func NewRetryingEmbedder(embedder llmtypes.Embedder, policy upstream.Policy) *RetryingEmbedder {
	return &RetryingEmbedder{embedder: embedder, policy: policy, service: "embeddings"}
}

// Embed calls the embedder until it succeeds or the policy is exhausted.
func (e *RetryingEmbedder) Embed(ctx context.Context, inputs []string) ([][]float32, error) {
	return upstream.Do(ctx, e.policy, e.service, "embed", func(ctx context.Context) ([][]float32, error) {
		return e.embedder.Embed(ctx, inputs)
	})
}

var (
	_ llmtypes.LLMProvider = (*RetryingProvider)(nil)
	_ llmtypes.Embedder    = (*RetryingEmbedder)(nil)
)
