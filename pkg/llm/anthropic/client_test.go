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
package anthropic

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	llmtypes "github.com/teradata-labs/lectern/pkg/llm/types"
	"github.com/teradata-labs/lectern/pkg/shuttle"
	"github.com/teradata-labs/lectern/pkg/upstream"
)

func transcript() []llmtypes.Message {
	return []llmtypes.Message{
		{Role: llmtypes.RoleSystem, Content: "Pick one."},
		{Role: llmtypes.RoleUser, Content: "desert politics"},
		{Role: llmtypes.RoleAssistant, ToolCalls: []llmtypes.ToolCall{
			{ID: "toolu_1", Name: "get_summary_by_title", Input: map[string]interface{}{"title": "Dune"}},
			{ID: "toolu_2", Name: "other"},
		}},
		{Role: llmtypes.RoleTool, ToolUseID: "toolu_1", ToolName: "get_summary_by_title", Content: "Spice."},
		{Role: llmtypes.RoleTool, ToolUseID: "toolu_2", ToolName: "other", Content: `{"error":"unknown"}`, IsError: true},
	}
}

func TestClient_ConvertMessages(t *testing.T) {
	c := NewClient(Config{APIKey: "k"})

	system, msgs := c.convertMessages(transcript(), false)
	assert.Equal(t, "Pick one.", system)
	require.Len(t, msgs, 3)
	assert.Equal(t, "assistant", msgs[1].Role)
	require.Len(t, msgs[1].Content, 2)
	assert.Equal(t, "tool_use", msgs[1].Content[1].Type)

	// consecutive tool results fold into one user turn
	assert.Equal(t, "user", msgs[2].Role)
	require.Len(t, msgs[2].Content, 2)
	assert.True(t, msgs[2].Content[1].IsError)

	raw, err := json.Marshal(msgs[1].Content[1])
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"tool_use","id":"toolu_2","name":"other","input":{}}`, string(raw))
}

func TestClient_ConvertMessages_Flatten(t *testing.T) {
	c := NewClient(Config{APIKey: "k"})

	_, msgs := c.convertMessages(transcript(), true)
	require.Len(t, msgs, 3)
	for _, m := range msgs {
		for _, b := range m.Content {
			assert.Equal(t, "text", b.Type)
		}
	}
	assert.Contains(t, msgs[2].Content[0].Text, "Spice.")
	assert.Contains(t, msgs[1].Content[0].Text, `get_summary_by_title`)
}

func TestClient_Chat(t *testing.T) {
	var got MessagesRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "k", r.Header.Get("x-api-key"))
		assert.Equal(t, "2023-06-01", r.Header.Get("anthropic-version"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		_, _ = w.Write([]byte(`{
			"id": "msg_1", "type": "message", "role": "assistant", "model": "claude",
			"stop_reason": "tool_use",
			"content": [
				{"type": "text", "text": "Let me check."},
				{"type": "tool_use", "id": "toolu_9", "name": "get_summary_by_title", "input": {"title": "Dune"}}
			],
			"usage": {"input_tokens": 12, "output_tokens": 8}
		}`))
	}))
	defer server.Close()

	tool := &shuttle.MockTool{MockName: "get_summary_by_title"}
	c := NewClient(Config{APIKey: "k", Endpoint: server.URL})
	resp, err := c.Chat(context.Background(), transcript()[:2], []shuttle.Tool{tool})
	require.NoError(t, err)

	assert.Equal(t, "Pick one.", got.System)
	require.Len(t, got.Tools, 1)
	require.NotNil(t, got.ToolChoice)
	assert.Equal(t, "auto", got.ToolChoice.Type)

	assert.Equal(t, 20, resp.Usage.TotalTokens)
	turn, ok := resp.Turn().(llmtypes.ToolTurn)
	require.True(t, ok)
	assert.Equal(t, "Let me check.", turn.Content)
	assert.Equal(t, "Dune", turn.Calls[0].Input["title"])
}

func TestClient_Chat_Error(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"type":"error","error":{"type":"overloaded_error","message":"Overloaded"}}`))
	}))
	defer server.Close()

	_, err := NewClient(Config{APIKey: "k", Endpoint: server.URL}).Chat(context.Background(), transcript()[:2], nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "overloaded_error")
	var statusErr *upstream.StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.True(t, statusErr.Retryable())
}
