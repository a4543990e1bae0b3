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
	"fmt"
	"time"
)

// Error codes attached to failed results produced by the Executor.
const (
	CodeUnknownTool      = "unknown_tool"
	CodeInvalidArguments = "invalid_arguments"
	CodeExecutionFailed  = "execution_failed"
)

// Executor runs model-requested tool calls against a Registry.
// Failures are reported as unsuccessful Results rather than Go errors so the
// caller can always answer the model with a tool-result message.
type Executor struct {
	registry *Registry
}

// NewExecutor creates a new tool executor.
func NewExecutor(registry *Registry) *Executor {
	return &Executor{registry: registry}
}

// Execute executes a tool by name with the given parameters.
func (e *Executor) Execute(ctx context.Context, toolName string, params map[string]interface{}) *Result {
	tool, ok := e.registry.Get(toolName)
	if !ok {
		return &Result{
			Success: false,
			Error: &Error{
				Code:       CodeUnknownTool,
				Message:    fmt.Sprintf("tool not found: %s", toolName),
				Suggestion: fmt.Sprintf("available tools: %v", e.registry.List()),
			},
		}
	}

	if err := ValidateArguments(tool, params); err != nil {
		var verr *ValidationError
		msg := err.Error()
		if errors.As(err, &verr) {
			msg = verr.Error()
		}
		return &Result{
			Success: false,
			Error:   &Error{Code: CodeInvalidArguments, Message: msg},
		}
	}

	start := time.Now()
	result, err := tool.Execute(ctx, params)
	duration := time.Since(start)

	if err != nil {
		return &Result{
			Success:         false,
			Error:           &Error{Code: CodeExecutionFailed, Message: err.Error(), Retryable: true},
			ExecutionTimeMs: duration.Milliseconds(),
		}
	}
	if result == nil {
		result = &Result{Success: true}
	}
	// executor timing is authoritative
	result.ExecutionTimeMs = duration.Milliseconds()
	return result
}
