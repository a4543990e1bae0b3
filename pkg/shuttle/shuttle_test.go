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
package shuttle

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func titleTool() *MockTool {
	return &MockTool{
		MockName: "lookup",
		MockSchema: NewObjectSchema("lookup", map[string]*JSONSchema{
			"title": NewStringSchema("book title"),
		}, []string{"title"}),
	}
}

func TestNormalizeSchema(t *testing.T) {
	schema := &JSONSchema{
		Properties: map[string]*JSONSchema{
			"meta": {Type: "object"},
			"tags": {Items: &JSONSchema{Type: "string"}},
		},
	}

	got := NormalizeSchema(schema)
	assert.Equal(t, "object", got.Type)
	assert.NotNil(t, got.Properties["meta"].Properties)
	assert.Equal(t, "array", got.Properties["tags"].Type)
	assert.Nil(t, NormalizeSchema(nil))
}

func TestToMap(t *testing.T) {
	m := titleTool().InputSchema().ToMap()
	assert.Equal(t, "object", m["type"])
	props, ok := m["properties"].(map[string]interface{})
	require.True(t, ok)
	assert.Contains(t, props, "title")
	assert.Equal(t, []interface{}{"title"}, m["required"])

	empty := (*JSONSchema)(nil).ToMap()
	assert.Equal(t, "object", empty["type"])
}

func TestValidateArguments(t *testing.T) {
	tests := []struct {
		name    string
		args    map[string]interface{}
		wantErr bool
	}{
		{name: "valid", args: map[string]interface{}{"title": "Dune"}},
		{name: "extra fields allowed", args: map[string]interface{}{"title": "Dune", "why": "sand"}},
		{name: "missing title", args: map[string]interface{}{}, wantErr: true},
		{name: "nil args", args: nil, wantErr: true},
		{name: "wrong type", args: map[string]interface{}{"title": 42.0}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateArguments(titleTool(), tt.args)
			if !tt.wantErr {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			var verr *ValidationError
			require.True(t, errors.As(err, &verr))
			assert.Equal(t, "lookup", verr.Tool)
			assert.NotEmpty(t, verr.Violations)
		})
	}
}

func TestValidateArguments_Length(t *testing.T) {
	minLen, maxLen := 2, 4
	tool := &MockTool{
		MockName: "code",
		MockSchema: NewObjectSchema("code", map[string]*JSONSchema{
			"isbn": NewStringSchema("short code").WithLength(&minLen, &maxLen),
		}, []string{"isbn"}),
	}

	assert.NoError(t, ValidateArguments(tool, map[string]interface{}{"isbn": "abc"}))
	assert.Error(t, ValidateArguments(tool, map[string]interface{}{"isbn": "a"}))
	assert.Error(t, ValidateArguments(tool, map[string]interface{}{"isbn": "abcde"}))
}

func TestRegistry(t *testing.T) {
	reg := NewRegistry(&MockTool{MockName: "b"}, &MockTool{MockName: "a"})
	assert.Equal(t, 2, reg.Count())
	assert.Equal(t, []string{"a", "b"}, reg.List())

	tools := reg.ListTools()
	require.Len(t, tools, 2)
	assert.Equal(t, "a", tools[0].Name())

	_, ok := reg.Get("a")
	assert.True(t, ok)

	reg.Unregister("a")
	_, ok = reg.Get("a")
	assert.False(t, ok)
}

func TestExecutor_Execute(t *testing.T) {
	ctx := context.Background()

	t.Run("unknown tool", func(t *testing.T) {
		exec := NewExecutor(NewRegistry(titleTool()))
		res := exec.Execute(ctx, "delete_everything", map[string]interface{}{})
		require.False(t, res.Success)
		assert.Equal(t, CodeUnknownTool, res.Error.Code)
	})

	t.Run("invalid arguments never reach the tool", func(t *testing.T) {
		tool := titleTool()
		exec := NewExecutor(NewRegistry(tool))
		res := exec.Execute(ctx, "lookup", map[string]interface{}{"title": true})
		require.False(t, res.Success)
		assert.Equal(t, CodeInvalidArguments, res.Error.Code)
		assert.Equal(t, 0, tool.Calls())
	})

	t.Run("execution error becomes failed result", func(t *testing.T) {
		tool := titleTool()
		tool.MockExecute = func(ctx context.Context, params map[string]interface{}) (*Result, error) {
			return nil, errors.New("disk on fire")
		}
		exec := NewExecutor(NewRegistry(tool))
		res := exec.Execute(ctx, "lookup", map[string]interface{}{"title": "Dune"})
		require.False(t, res.Success)
		assert.Equal(t, CodeExecutionFailed, res.Error.Code)
		assert.Contains(t, res.Content(), "disk on fire")
	})

	t.Run("success", func(t *testing.T) {
		tool := titleTool()
		exec := NewExecutor(NewRegistry(tool))
		res := exec.Execute(ctx, "lookup", map[string]interface{}{"title": "Dune"})
		require.True(t, res.Success)
		assert.Equal(t, "mock result", res.Content())
		assert.Equal(t, 1, tool.Calls())
		assert.Equal(t, "Dune", tool.LastParams["title"])
	})
}

func TestResult_Content(t *testing.T) {
	assert.Equal(t, "", (*Result)(nil).Content())
	assert.Equal(t, `{"n":1}`, (&Result{Success: true, Data: map[string]int{"n": 1}}).Content())
	assert.Equal(t, `{"code":"x","error":"boom"}`,
		(&Result{Error: &Error{Code: "x", Message: "boom"}}).Content())
}
