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

// Package factory builds language model providers from configuration.
package factory

import (
	"fmt"
	"os"
	"time"

	"github.com/teradata-labs/lectern/pkg/llm"
	"github.com/teradata-labs/lectern/pkg/llm/anthropic"
	"github.com/teradata-labs/lectern/pkg/llm/openai"
	llmtypes "github.com/teradata-labs/lectern/pkg/llm/types"
	"github.com/teradata-labs/lectern/pkg/observability"
	"github.com/teradata-labs/lectern/pkg/upstream"
)

// Supported provider names.
const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
)

// ProviderFactory creates LLM providers based on configuration.
type ProviderFactory struct {
	config FactoryConfig
}

// FactoryConfig holds configuration for creating LLM providers.
type FactoryConfig struct {
	DefaultProvider string

	OpenAIAPIKey   string
	OpenAIModel    string
	OpenAIBaseURL  string
	EmbeddingModel string

	// EmbeddingBaseURL overrides OpenAIBaseURL for embedding calls.
	EmbeddingBaseURL string

	AnthropicAPIKey   string
	AnthropicModel    string
	AnthropicEndpoint string

	MaxTokens   int
	Temperature float64
	Timeout     int // seconds

	// Retry is applied to every chat and embedding call.
	Retry  upstream.Policy
	Tracer observability.Tracer
}

// NewProviderFactory creates a new provider factory.
func NewProviderFactory(config FactoryConfig) *ProviderFactory {
	if config.DefaultProvider == "" {
		config.DefaultProvider = ProviderOpenAI
	}
	if config.Timeout == 0 {
		config.Timeout = 60
	}
	if config.Retry.Backoffs == nil {
		config.Retry = upstream.DefaultPolicy()
	}
	// The HTTP client timeout bounds each attempt already.
	config.Retry.Timeout = 0
	if config.Tracer == nil {
		config.Tracer = observability.NewNoOpTracer()
	}
	return &ProviderFactory{config: config}
}

// CreateProvider creates a traced, retrying provider. An empty name selects
// the default provider.
func (f *ProviderFactory) CreateProvider(provider string) (llmtypes.LLMProvider, error) {
	if provider == "" {
		provider = f.config.DefaultProvider
	}

	var base llmtypes.LLMProvider
	switch provider {
	case ProviderOpenAI:
		client, err := f.openAIClient(f.config.OpenAIBaseURL)
		if err != nil {
			return nil, err
		}
		base = client
	case ProviderAnthropic:
		apiKey := f.config.AnthropicAPIKey
		if apiKey == "" {
			apiKey = os.Getenv("ANTHROPIC_API_KEY")
		}
		if apiKey == "" {
			return nil, fmt.Errorf("anthropic API key not configured (set llm.anthropic_api_key or ANTHROPIC_API_KEY)")
		}
		base = anthropic.NewClient(anthropic.Config{
			APIKey:      apiKey,
			Model:       f.config.AnthropicModel,
			Endpoint:    f.config.AnthropicEndpoint,
			Timeout:     f.timeout(),
			MaxTokens:   f.config.MaxTokens,
			Temperature: f.config.Temperature,
		})
	default:
		return nil, fmt.Errorf("unsupported provider: %s", provider)
	}

	return llm.NewInstrumentedProvider(llm.NewRetryingProvider(base, f.config.Retry), f.config.Tracer), nil
}

// CreateEmbedder returns the OpenAI embeddings client used for similarity
// search, whatever the chat provider is.
func (f *ProviderFactory) CreateEmbedder() (llmtypes.Embedder, error) {
	baseURL := f.config.EmbeddingBaseURL
	if baseURL == "" {
		baseURL = f.config.OpenAIBaseURL
	}
	client, err := f.openAIClient(baseURL)
	if err != nil {
		return nil, err
	}
	return llm.NewRetryingEmbedder(client, f.config.Retry), nil
}

func (f *ProviderFactory) openAIClient(baseURL string) (*openai.Client, error) {
	apiKey := f.config.OpenAIAPIKey
	if apiKey == "" {
		apiKey = os.Getenv("OPENAI_API_KEY")
	}
	if apiKey == "" {
		return nil, fmt.Errorf("openai API key not configured (set llm.openai_api_key or OPENAI_API_KEY)")
	}
	return openai.NewClient(openai.Config{
		APIKey:         apiKey,
		Model:          f.config.OpenAIModel,
		BaseURL:        baseURL,
		EmbeddingModel: f.config.EmbeddingModel,
		Timeout:        f.timeout(),
		MaxTokens:      f.config.MaxTokens,
		Temperature:    f.config.Temperature,
	}), nil
}

func (f *ProviderFactory) timeout() time.Duration {
	return time.Duration(f.config.Timeout) * time.Second
}
