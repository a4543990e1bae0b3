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

// Package openai implements the language model and embedding providers over
// OpenAI's HTTP API.
package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"sort"
	"strings"
	"time"

	llmtypes "github.com/teradata-labs/lectern/pkg/llm/types"
	"github.com/teradata-labs/lectern/pkg/shuttle"
	"github.com/teradata-labs/lectern/pkg/upstream"
)

// Client implements the LLMProvider and Embedder interfaces for OpenAI's API.
type Client struct {
	apiKey         string
	model          string
	embeddingModel string
	baseURL        string
	httpClient     *http.Client
	maxTokens      int
	temperature    float64
}

// Config holds configuration for the OpenAI client.
type Config struct {
	APIKey         string
	Model          string        // Default: gpt-4o-mini
	EmbeddingModel string        // Default: text-embedding-3-small
	BaseURL        string        // Default: https://api.openai.com/v1
	Timeout        time.Duration // Default: 60s
	MaxTokens      int           // Default: 1024
	Temperature    float64       // Default: 0.2
	HTTPClient     *http.Client
}

// Default OpenAI configuration values.
// Can be overridden via environment variables:
//   - OPENAI_DEFAULT_MODEL / LECTERN_LLM_OPENAI_MODEL
//   - OPENAI_BASE_URL / LECTERN_LLM_OPENAI_ENDPOINT
//   - EMBED_MODEL
const (
	DefaultModel          = "gpt-4o-mini"
	DefaultEmbeddingModel = "text-embedding-3-small"
	DefaultBaseURL        = "https://api.openai.com/v1"
	DefaultTimeout        = 60 * time.Second
	DefaultMaxTokens      = 1024
	DefaultTemperature    = 0.2
)

// NewClient creates a new OpenAI client.
func NewClient(config Config) *Client {
	if config.Model == "" {
		config.Model = firstEnv(DefaultModel, "OPENAI_DEFAULT_MODEL", "LECTERN_LLM_OPENAI_MODEL")
	}
	if config.EmbeddingModel == "" {
		config.EmbeddingModel = firstEnv(DefaultEmbeddingModel, "EMBED_MODEL")
	}
	if config.BaseURL == "" {
		config.BaseURL = firstEnv(DefaultBaseURL, "OPENAI_BASE_URL", "LECTERN_LLM_OPENAI_ENDPOINT")
	}
	if config.Timeout == 0 {
		config.Timeout = DefaultTimeout
	}
	if config.MaxTokens == 0 {
		config.MaxTokens = DefaultMaxTokens
	}
	if config.Temperature == 0 {
		config.Temperature = DefaultTemperature
	}
	httpClient := config.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: config.Timeout}
	}

	return &Client{
		apiKey:         config.APIKey,
		model:          config.Model,
		embeddingModel: config.EmbeddingModel,
		baseURL:        strings.TrimRight(config.BaseURL, "/"),
		maxTokens:      config.MaxTokens,
		temperature:    config.Temperature,
		httpClient:     httpClient,
	}
}

func firstEnv(fallback string, keys ...string) string {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			return v
		}
	}
	return fallback
}

// Name returns the provider name.
func (c *Client) Name() string {
	return "openai"
}

// Model returns the model identifier.
func (c *Client) Model() string {
	return c.model
}

// Chat sends a conversation to OpenAI and returns the response.
// Tools are offered with tool_choice "auto"; with no tools the model must
// answer in text.
func (c *Client) Chat(ctx context.Context, messages []llmtypes.Message, tools []shuttle.Tool) (*llmtypes.LLMResponse, error) {
	req := &ChatCompletionRequest{
		Model:       c.model,
		Messages:    c.convertMessages(messages),
		MaxTokens:   c.maxTokens,
		Temperature: c.temperature,
	}

	if apiTools := c.convertTools(tools); len(apiTools) > 0 {
		req.Tools = apiTools
		req.ToolChoice = "auto"
	}

	var resp ChatCompletionResponse
	if err := c.post(ctx, "/chat/completions", req, &resp); err != nil {
		return nil, fmt.Errorf("chat completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("chat completion returned no choices")
	}

	return c.convertResponse(&resp), nil
}

// Embed returns one vector per input, in input order.
func (c *Client) Embed(ctx context.Context, inputs []string) ([][]float32, error) {
	if len(inputs) == 0 {
		return nil, nil
	}

	var resp EmbeddingResponse
	req := &EmbeddingRequest{Model: c.embeddingModel, Input: inputs}
	if err := c.post(ctx, "/embeddings", req, &resp); err != nil {
		return nil, fmt.Errorf("embedding failed: %w", err)
	}
	if len(resp.Data) != len(inputs) {
		return nil, fmt.Errorf("embedding returned %d vectors for %d inputs", len(resp.Data), len(inputs))
	}

	sort.Slice(resp.Data, func(i, j int) bool { return resp.Data[i].Index < resp.Data[j].Index })
	out := make([][]float32, len(resp.Data))
	for i, d := range resp.Data {
		out[i] = d.Embedding
	}
	return out, nil
}

// convertMessages converts conversation messages to OpenAI format.
func (c *Client) convertMessages(messages []llmtypes.Message) []ChatMessage {
	apiMessages := make([]ChatMessage, 0, len(messages))

	for _, msg := range messages {
		switch msg.Role {
		case llmtypes.RoleSystem, llmtypes.RoleUser:
			apiMessages = append(apiMessages, ChatMessage{
				Role:    msg.Role,
				Content: strPtr(msg.Content),
			})

		case llmtypes.RoleAssistant:
			apiMsg := ChatMessage{Role: llmtypes.RoleAssistant}
			if msg.Content != "" || len(msg.ToolCalls) == 0 {
				apiMsg.Content = strPtr(msg.Content)
			}

			for _, tc := range msg.ToolCalls {
				argsJSON, err := json.Marshal(tc.Input)
				if err != nil || tc.Input == nil {
					argsJSON = []byte("{}")
				}
				apiMsg.ToolCalls = append(apiMsg.ToolCalls, ToolCall{
					ID:   tc.ID,
					Type: "function",
					Function: FunctionCall{
						Name:      tc.Name,
						Arguments: string(argsJSON),
					},
				})
			}
			apiMessages = append(apiMessages, apiMsg)

		case llmtypes.RoleTool:
			apiMessages = append(apiMessages, ChatMessage{
				Role:       llmtypes.RoleTool,
				Content:    strPtr(msg.Content),
				ToolCallID: msg.ToolUseID,
			})
		}
	}

	return apiMessages
}

func strPtr(s string) *string { return &s }

// convertTools converts shuttle tools to OpenAI format.
func (c *Client) convertTools(tools []shuttle.Tool) []Tool {
	var apiTools []Tool
	for _, tool := range tools {
		apiTools = append(apiTools, Tool{
			Type: "function",
			Function: FunctionDef{
				Name:        tool.Name(),
				Description: tool.Description(),
				Parameters:  tool.InputSchema().ToMap(),
			},
		})
	}
	return apiTools
}

// convertResponse converts an OpenAI response to the provider-neutral form.
func (c *Client) convertResponse(resp *ChatCompletionResponse) *llmtypes.LLMResponse {
	choice := resp.Choices[0]
	llmResp := &llmtypes.LLMResponse{
		Usage: llmtypes.Usage{
			InputTokens:  resp.Usage.PromptTokens,
			OutputTokens: resp.Usage.CompletionTokens,
			TotalTokens:  resp.Usage.TotalTokens,
		},
		Metadata: map[string]interface{}{
			"model":         resp.Model,
			"finish_reason": choice.FinishReason,
		},
	}

	switch choice.FinishReason {
	case "stop":
		llmResp.StopReason = "end_turn"
	case "length":
		llmResp.StopReason = "max_tokens"
	case "tool_calls", "function_call":
		llmResp.StopReason = "tool_use"
	default:
		llmResp.StopReason = choice.FinishReason
	}

	if choice.Message.Content != nil {
		llmResp.Content = *choice.Message.Content
	}

	for _, tc := range choice.Message.ToolCalls {
		// Unparseable arguments stay visible as _raw so validation rejects them.
		var input map[string]interface{}
		if err := json.Unmarshal([]byte(tc.Function.Arguments), &input); err != nil {
			input = map[string]interface{}{"_raw": tc.Function.Arguments}
		}
		llmResp.ToolCalls = append(llmResp.ToolCalls, llmtypes.ToolCall{
			ID:    tc.ID,
			Name:  tc.Function.Name,
			Input: input,
		})
	}

	return llmResp
}

// post sends one JSON request. Non-retryable statuses come back wrapped with
// upstream.Permanent so the retry layer stops early.
func (c *Client) post(ctx context.Context, path string, body, out interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("HTTP request failed: %w", err)
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if err := upstream.ReadStatus(httpResp, respBody); err != nil {
		return fmt.Errorf("OpenAI API error: %w", err)
	}

	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("failed to unmarshal response: %w", err)
	}
	return nil
}

var (
	_ llmtypes.LLMProvider = (*Client)(nil)
	_ llmtypes.Embedder    = (*Client)(nil)
)
