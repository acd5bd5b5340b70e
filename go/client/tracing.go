// Copyright 2025 Supabase, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package client

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"

	"github.com/multigres/listsql/go/tools/telemetry"
)

// dbSystem names the database in span attributes.
var dbSystem = semconv.DBSystemKey.String("listsql")

// statementTracingKey is the context key for statement tracing configuration.
type statementTracingKey struct{}

// StatementTracingConfig holds optional configuration for statement spans.
// Spans are always created; this config controls optional details.
type StatementTracingConfig struct {
	// OperationName is a semantic name for the operation. If empty, the
	// driver operation (EXECUTE, CALL, FETCH...) is used.
	OperationName string

	// IncludeQueryText records the statement text in the span. Only enable
	// it for statements whose text carries no user data.
	IncludeQueryText bool
}

// WithStatementTracing returns a context with statement tracing configuration.
func WithStatementTracing(ctx context.Context, config StatementTracingConfig) context.Context {
	return context.WithValue(ctx, statementTracingKey{}, config)
}

func getStatementTracingConfig(ctx context.Context) StatementTracingConfig {
	config, _ := ctx.Value(statementTracingKey{}).(StatementTracingConfig)
	return config
}

// startSpan starts a client span for one cursor operation.
func startSpan(ctx context.Context, op, text string) (context.Context, trace.Span) {
	config := getStatementTracingConfig(ctx)
	opName := config.OperationName
	if opName == "" {
		opName = op
	}
	attrs := []trace.SpanStartOption{
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			dbSystem,
			semconv.DBOperationName(opName),
		),
	}
	if config.IncludeQueryText && text != "" {
		attrs = append(attrs, trace.WithAttributes(semconv.DBQueryText(text)))
	}
	return telemetry.Tracer().Start(ctx, opName+" listsql", attrs...)
}

// endSpan records err on the span and ends it.
func endSpan(span trace.Span, err error, rowCount int64) {
	if rowCount >= 0 {
		span.SetAttributes(attribute.Int64("db.listsql.row_count", rowCount))
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "statement failed")
	}
	span.End()
}
