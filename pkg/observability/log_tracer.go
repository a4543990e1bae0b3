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
package observability

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// LogTracer exports finished spans and metrics as debug-level log lines.
// It is the tracer `lectern serve` installs when tracing is enabled.
type LogTracer struct {
	logger *zap.Logger
}

// NewLogTracer creates a tracer writing to logger.
func NewLogTracer(logger *zap.Logger) *LogTracer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogTracer{logger: logger.Named("trace")}
}

// StartSpan creates a span linked to any parent in ctx.
func (t *LogTracer) StartSpan(ctx context.Context, name string, opts ...SpanOption) (context.Context, *Span) {
	span := newSpan(ctx, name, uuid.New().String(), uuid.New().String())
	for _, opt := range opts {
		opt(span)
	}
	return ContextWithSpan(ctx, span), span
}

// EndSpan logs the finished span.
func (t *LogTracer) EndSpan(span *Span) {
	if span == nil {
		return
	}
	(&NoOpTracer{}).EndSpan(span)

	fields := []zap.Field{
		zap.String("trace_id", span.TraceID),
		zap.String("span_id", span.SpanID),
		zap.Duration("duration", span.Duration),
		zap.String("status", span.Status.Code.String()),
	}
	if span.ParentID != "" {
		fields = append(fields, zap.String("parent_id", span.ParentID))
	}
	for k, v := range span.Attributes {
		fields = append(fields, zap.Any(k, v))
	}
	if span.Status.Code == StatusError {
		t.logger.Warn(span.Name, fields...)
		return
	}
	t.logger.Debug(span.Name, fields...)
}

// RecordMetric logs the metric value.
func (t *LogTracer) RecordMetric(name string, value float64, labels map[string]string) {
	t.logger.Debug("metric",
		zap.String("name", name),
		zap.Float64("value", value),
		zap.Any("labels", labels))
}

// RecordEvent logs a standalone event.
func (t *LogTracer) RecordEvent(ctx context.Context, name string, attributes map[string]interface{}) {
	fields := []zap.Field{zap.String("event", name)}
	if span := SpanFromContext(ctx); span != nil {
		fields = append(fields, zap.String("trace_id", span.TraceID))
	}
	for k, v := range attributes {
		fields = append(fields, zap.Any(k, v))
	}
	t.logger.Debug("event", fields...)
}

// Flush syncs the underlying logger.
func (t *LogTracer) Flush(ctx context.Context) error {
	if err := t.logger.Sync(); err != nil {
		return fmt.Errorf("flush trace log: %w", err)
	}
	return nil
}

var _ Tracer = (*LogTracer)(nil)
