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

// Package anthropic implements the language model provider over the
// Anthropic Messages API.
package anthropic

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	llmtypes "github.com/teradata-labs/lectern/pkg/llm/types"
	"github.com/teradata-labs/lectern/pkg/shuttle"
	"github.com/teradata-labs/lectern/pkg/upstream"
)

// Defaults, overridable with ANTHROPIC_DEFAULT_MODEL and ANTHROPIC_API_ENDPOINT.
const (
	DefaultModel       = "claude-3-5-haiku-latest"
	DefaultEndpoint    = "https://api.anthropic.com/v1/messages"
	DefaultTimeout     = 60 * time.Second
	DefaultMaxTokens   = 1024
	DefaultTemperature = 0.2
	apiVersion         = "2023-06-01"
)

// Client implements the LLMProvider interface for Anthropic's API.
type Client struct {
	apiKey      string
	model       string
	endpoint    string
	httpClient  *http.Client
	maxTokens   int
	temperature float64
}

// Config holds configuration for the Anthropic client.
type Config struct {
	APIKey      string
	Model       string
	Endpoint    string
	Timeout     time.Duration
	MaxTokens   int
	Temperature float64
	HTTPClient  *http.Client
}

// NewClient creates a new Anthropic client.
func NewClient(config Config) *Client {
	if config.Model == "" {
		if envModel := os.Getenv("ANTHROPIC_DEFAULT_MODEL"); envModel != "" {
			config.Model = envModel
		} else {
			config.Model = DefaultModel
		}
	}
	if config.Endpoint == "" {
		if envEndpoint := os.Getenv("ANTHROPIC_API_ENDPOINT"); envEndpoint != "" {
			config.Endpoint = envEndpoint
		} else {
			config.Endpoint = DefaultEndpoint
		}
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
		apiKey:      config.APIKey,
		model:       config.Model,
		endpoint:    config.Endpoint,
		maxTokens:   config.MaxTokens,
		temperature: config.Temperature,
		httpClient:  httpClient,
	}
}

// Name returns the provider name.
func (c *Client) Name() string {
	return "anthropic"
}

// Model returns the model identifier.
func (c *Client) Model() string {
	return c.model
}

// Chat sends a conversation to Anthropic and returns the response.
func (c *Client) Chat(ctx context.Context, messages []llmtypes.Message, tools []shuttle.Tool) (*llmtypes.LLMResponse, error) {
	// The API refuses tool_use blocks in a request that declares no tools,
	// so a tools-free follow-up call sends the exchange as plain text.
	system, apiMessages := c.convertMessages(messages, len(tools) == 0)

	req := &MessagesRequest{
		Model:       c.model,
		Messages:    apiMessages,
		MaxTokens:   c.maxTokens,
		Temperature: c.temperature,
		System:      system,
	}
	if apiTools := c.convertTools(tools); len(apiTools) > 0 {
		req.Tools = apiTools
		req.ToolChoice = &Choice{Type: "auto"}
	}

	resp, err := c.callAPI(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("API call failed: %w", err)
	}
	return c.convertResponse(resp), nil
}

// convertMessages splits out the system prompt, which the Messages API
// takes as a separate field, and folds consecutive tool results into a
// single user turn. With flatten set, tool calls and results become text.
func (c *Client) convertMessages(messages []llmtypes.Message, flatten bool) (string, []Message) {
	var systemPrompts []string
	var apiMessages []Message

	for _, msg := range messages {
		switch msg.Role {
		case llmtypes.RoleSystem:
			if msg.Content != "" {
				systemPrompts = append(systemPrompts, msg.Content)
			}

		case llmtypes.RoleUser:
			apiMessages = append(apiMessages, Message{
				Role:    "user",
				Content: []ContentBlock{{Type: "text", Text: msg.Content}},
			})

		case llmtypes.RoleAssistant:
			var content []ContentBlock
			if msg.Content != "" {
				content = append(content, ContentBlock{Type: "text", Text: msg.Content})
			}
			for _, tc := range msg.ToolCalls {
				if flatten {
					args, _ := json.Marshal(tc.Input)
					content = append(content, ContentBlock{
						Type: "text",
						Text: fmt.Sprintf("[called %s with %s]", tc.Name, args),
					})
					continue
				}
				content = append(content, ContentBlock{
					Type:  "tool_use",
					ID:    tc.ID,
					Name:  tc.Name,
					Input: tc.Input,
				})
			}
			if len(content) > 0 {
				apiMessages = append(apiMessages, Message{Role: "assistant", Content: content})
			}

		case llmtypes.RoleTool:
			if flatten {
				apiMessages = appendUserText(apiMessages, fmt.Sprintf("[%s result]\n%s", msg.ToolName, msg.Content))
				continue
			}
			block := ContentBlock{
				Type:      "tool_result",
				ToolUseID: msg.ToolUseID,
				Content:   msg.Content,
				IsError:   msg.IsError,
			}
			if n := len(apiMessages); n > 0 && isToolResultTurn(apiMessages[n-1]) {
				apiMessages[n-1].Content = append(apiMessages[n-1].Content, block)
				continue
			}
			apiMessages = append(apiMessages, Message{Role: "user", Content: []ContentBlock{block}})
		}
	}

	return strings.Join(systemPrompts, "\n\n"), apiMessages
}

// appendUserText merges into a preceding user turn, since the API requires
// alternating roles.
func appendUserText(messages []Message, text string) []Message {
	if n := len(messages); n > 0 && messages[n-1].Role == "user" {
		messages[n-1].Content = append(messages[n-1].Content, ContentBlock{Type: "text", Text: text})
		return messages
	}
	return append(messages, Message{Role: "user", Content: []ContentBlock{{Type: "text", Text: text}}})
}

func isToolResultTurn(m Message) bool {
	if m.Role != "user" || len(m.Content) == 0 {
		return false
	}
	for _, b := range m.Content {
		if b.Type != "tool_result" {
			return false
		}
	}
	return true
}

// convertTools converts shuttle tools to Anthropic format.
func (c *Client) convertTools(tools []shuttle.Tool) []Tool {
	var apiTools []Tool
	for _, tool := range tools {
		apiTools = append(apiTools, Tool{
			Name:        tool.Name(),
			Description: tool.Description(),
			InputSchema: tool.InputSchema().ToMap(),
		})
	}
	return apiTools
}

// convertResponse converts an Anthropic response to the provider-neutral form.
func (c *Client) convertResponse(resp *MessagesResponse) *llmtypes.LLMResponse {
	llmResp := &llmtypes.LLMResponse{
		StopReason: resp.StopReason,
		Usage: llmtypes.Usage{
			InputTokens:  resp.Usage.InputTokens,
			OutputTokens: resp.Usage.OutputTokens,
			TotalTokens:  resp.Usage.InputTokens + resp.Usage.OutputTokens,
		},
		Metadata: map[string]interface{}{
			"model":       resp.Model,
			"stop_reason": resp.StopReason,
		},
	}

	for _, block := range resp.Content {
		switch block.Type {
		case "text":
			llmResp.Content += block.Text
		case "tool_use":
			llmResp.ToolCalls = append(llmResp.ToolCalls, llmtypes.ToolCall{
				ID:    block.ID,
				Name:  block.Name,
				Input: block.Input,
			})
		}
	}

	return llmResp
}

func (c *Client) callAPI(ctx context.Context, req *MessagesRequest) (*MessagesResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", c.apiKey)
	httpReq.Header.Set("anthropic-version", apiVersion)

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("HTTP request failed: %w", err)
	}
	defer func() { _ = httpResp.Body.Close() }()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if err := upstream.ReadStatus(httpResp, respBody); err != nil {
		var apiErr ErrorResponse
		if json.Unmarshal(respBody, &apiErr) == nil && apiErr.Error.Message != "" {
			return nil, fmt.Errorf("anthropic %s: %w", apiErr.Error.Type, err)
		}
		return nil, err
	}

	var resp MessagesResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}
	return &resp, nil
}

var _ llmtypes.LLMProvider = (*Client)(nil)
