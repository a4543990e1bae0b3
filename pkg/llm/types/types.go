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

// Package types defines the provider-neutral conversation model shared by
// the language model clients and the recommendation orchestrator.
package types

import (
	"context"

	"github.com/teradata-labs/lectern/pkg/shuttle"
)

// Message roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// ToolCall is a model-proposed tool invocation. Name and Input come from
// the model and are untrusted until validated.
type ToolCall struct {
	// ID is the provider-assigned call identifier echoed by the tool result.
	ID string

	// Name is the tool name the model asked for.
	Name string

	// Input contains the decoded tool arguments.
	Input map[string]interface{}
}

// Message is one entry of a conversation.
type Message struct {
	// Role is the message sender (system, user, assistant, tool)
	Role string

	// Content is the message text
	Content string

	// ToolCalls contains tool invocations (if role is assistant)
	ToolCalls []ToolCall

	// ToolUseID links a tool result to the call it answers (if role is tool)
	ToolUseID string

	// ToolName is the name of the answered tool (if role is tool)
	ToolName string

	// IsError marks a tool result that reports a rejected call
	IsError bool
}

// Usage tracks token consumption of one call.
type Usage struct {
	InputTokens  int
	OutputTokens int
	TotalTokens  int
}

// LLMResponse represents a response from the LLM.
type LLMResponse struct {
	// Content is the text response
	Content string

	// ToolCalls contains requested tool executions
	ToolCalls []ToolCall

	// StopReason indicates why the LLM stopped
	StopReason string

	// Usage tracks token usage
	Usage Usage

	// Metadata contains provider-specific metadata
	Metadata map[string]interface{}
}

// Turn is the shape of a model reply: either a ToolTurn or a TextTurn.
type Turn interface {
	turn()
}

// ToolTurn is a reply that requests one or more tool invocations.
// Content carries any text the model emitted alongside the calls.
type ToolTurn struct {
	Content string
	Calls   []ToolCall
}

// TextTurn is a plain text reply.
type TextTurn struct {
	Content string
}

func (ToolTurn) turn() {}
func (TextTurn) turn() {}

// Turn classifies the response. Any tool call makes it a ToolTurn.
func (r *LLMResponse) Turn() Turn {
	if r == nil {
		return TextTurn{}
	}
	if len(r.ToolCalls) > 0 {
		return ToolTurn{Content: r.Content, Calls: r.ToolCalls}
	}
	return TextTurn{Content: r.Content}
}

// LLMProvider is a chat-completion backend (OpenAI, Anthropic, ...).
// A nil or empty tools slice means the model must answer in text.
type LLMProvider interface {
	// Chat sends a conversation to the LLM and returns the response
	Chat(ctx context.Context, messages []Message, tools []shuttle.Tool) (*LLMResponse, error)

	// Name returns the provider name
	Name() string

	// Model returns the model identifier
	Model() string
}

// Embedder turns text into vectors for similarity search.
type Embedder interface {
	Embed(ctx context.Context, inputs []string) ([][]float32, error)
}
