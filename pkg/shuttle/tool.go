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

// Package shuttle defines the tool contract the recommender exposes to a
// language model: a named capability with a JSON Schema for its arguments.
// Tool calls arriving from a model are untrusted input, so the package also
// validates arguments against the declared schema before execution.
package shuttle

import (
	"context"
	"encoding/json"
)

// Tool is a capability that a language model may invoke by name.
type Tool interface {
	// Name returns the tool's unique identifier, as seen by the model.
	Name() string

	// Description returns the text shown to the model in the tool declaration.
	Description() string

	// InputSchema returns the JSON Schema for tool parameters.
	InputSchema() *JSONSchema

	// Execute runs the tool with already-validated parameters.
	Execute(ctx context.Context, params map[string]interface{}) (*Result, error)

	// Backend names the data source the tool reads from ("corpus", "openlibrary").
	// Empty string means the tool is backend-agnostic.
	Backend() string
}

// Result represents the outcome of tool execution.
type Result struct {
	// Success indicates if the tool executed successfully
	Success bool

	// Data contains the result data (format varies by tool)
	Data interface{}

	// Error contains error information if execution failed
	Error *Error

	// Metadata contains tool-specific metadata
	Metadata map[string]interface{}

	// ExecutionTimeMs is set by the Executor.
	ExecutionTimeMs int64
}

// Error represents a tool execution error with structured information.
type Error struct {
	// Code is a machine-readable error code
	Code string

	// Message is a human-readable error message
	Message string

	// Retryable indicates if the operation can be retried
	Retryable bool

	// Suggestion is shown to the model alongside the error
	Suggestion string
}

// Content renders the result as the text body of a tool-result message.
// Successful string data is passed through verbatim, anything else is JSON.
func (r *Result) Content() string {
	if r == nil {
		return ""
	}
	if !r.Success {
		payload := map[string]interface{}{"error": "tool failed"}
		if r.Error != nil {
			payload["error"] = r.Error.Message
			payload["code"] = r.Error.Code
			if r.Error.Suggestion != "" {
				payload["suggestion"] = r.Error.Suggestion
			}
		}
		b, _ := json.Marshal(payload)
		return string(b)
	}
	if s, ok := r.Data.(string); ok {
		return s
	}
	b, err := json.Marshal(r.Data)
	if err != nil {
		return ""
	}
	return string(b)
}

// JSONSchema represents a JSON Schema for tool parameters.
type JSONSchema struct {
	Type        string                 `json:"type"`
	Description string                 `json:"description,omitempty"`
	Properties  map[string]*JSONSchema `json:"properties,omitempty"`
	Required    []string               `json:"required,omitempty"`
	Items       *JSONSchema            `json:"items,omitempty"`
	Enum        []interface{}          `json:"enum,omitempty"`
	Default     interface{}            `json:"default,omitempty"`
	Pattern     string                 `json:"pattern,omitempty"`
	MinLength   *int                   `json:"minLength,omitempty"`
	MaxLength   *int                   `json:"maxLength,omitempty"`
}

// ToJSON converts the schema to JSON bytes.
func (s *JSONSchema) ToJSON() ([]byte, error) {
	return json.Marshal(s)
}

// ToMap converts the schema into the generic map form provider wire
// formats embed as "parameters" or "input_schema".
func (s *JSONSchema) ToMap() map[string]interface{} {
	if s == nil {
		return map[string]interface{}{"type": "object", "properties": map[string]interface{}{}}
	}
	raw, err := json.Marshal(NormalizeSchema(s))
	if err != nil {
		return map[string]interface{}{"type": "object"}
	}
	var out map[string]interface{}
	if err := json.Unmarshal(raw, &out); err != nil {
		return map[string]interface{}{"type": "object"}
	}
	return out
}

// NewObjectSchema creates a new object schema with the given properties.
func NewObjectSchema(description string, properties map[string]*JSONSchema, required []string) *JSONSchema {
	return &JSONSchema{
		Type:        "object",
		Description: description,
		Properties:  properties,
		Required:    required,
	}
}

// NewStringSchema creates a new string schema.
func NewStringSchema(description string) *JSONSchema {
	return &JSONSchema{
		Type:        "string",
		Description: description,
	}
}

// NewArraySchema creates a new array schema.
func NewArraySchema(description string, items *JSONSchema) *JSONSchema {
	return &JSONSchema{
		Type:        "array",
		Description: description,
		Items:       items,
	}
}

// WithLength adds length constraints to the schema.
func (s *JSONSchema) WithLength(minLen, maxLen *int) *JSONSchema {
	s.MinLength = minLen
	s.MaxLength = maxLen
	return s
}
