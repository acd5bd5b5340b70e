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

// Package telemetry sets up OpenTelemetry tracing for listsql programs.
//
// Library code creates spans through Tracer(); they are dropped unless a
// program installs a provider. The listsql command does so with --trace,
// which writes finished spans to stderr:
//
//	listsql --trace query "SELECT 1"
package telemetry

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"

	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

const tracingServiceName = "github.com/multigres/listsql"

// Tracer returns the tracer every listsql span is created with. It is looked
// up on each call so that spans follow the provider installed last.
func Tracer() trace.Tracer {
	return otel.GetTracerProvider().Tracer(tracingServiceName)
}

// Telemetry owns the tracer provider of one program.
type Telemetry struct {
	mu          sync.Mutex
	provider    *sdktrace.TracerProvider
	initialized bool

	// Test override.
	exporter sdktrace.SpanExporter
}

// NewTelemetry creates a new Telemetry instance.
func NewTelemetry() *Telemetry {
	return &Telemetry{}
}

// WithTestExporter makes InitTelemetry export synchronously to exp.
// Must be called before InitTelemetry().
func (t *Telemetry) WithTestExporter(exp sdktrace.SpanExporter) *Telemetry {
	t.exporter = exp
	return t
}

// InitTelemetry installs a global tracer provider. Spans are written as
// JSON to out; a nil out with no test exporter leaves tracing disabled.
func (t *Telemetry) InitTelemetry(ctx context.Context, serviceName string, out io.Writer, attrs ...attribute.KeyValue) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.initialized {
		return nil
	}
	if envServiceName := os.Getenv("OTEL_SERVICE_NAME"); envServiceName != "" {
		serviceName = envServiceName
	}

	var opts []sdktrace.TracerProviderOption
	switch {
	case t.exporter != nil:
		opts = append(opts, sdktrace.WithSyncer(t.exporter))
	case out != nil:
		exp, err := stdouttrace.New(stdouttrace.WithWriter(out), stdouttrace.WithPrettyPrint())
		if err != nil {
			return fmt.Errorf("failed to create trace exporter: %w", err)
		}
		opts = append(opts, sdktrace.WithBatcher(exp))
	default:
		return nil
	}

	resourceAttrs := append([]attribute.KeyValue{semconv.ServiceName(serviceName)}, attrs...)
	opts = append(opts, sdktrace.WithResource(resource.NewWithAttributes(semconv.SchemaURL, resourceAttrs...)))
	t.provider = sdktrace.NewTracerProvider(opts...)
	otel.SetTracerProvider(t.provider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))
	t.initialized = true

	slog.DebugContext(ctx, "tracing initialized", "service", serviceName)
	return nil
}

// WithEnvTraceparent continues the trace named by the TRACEPARENT
// environment variable, if any.
func (t *Telemetry) WithEnvTraceparent(ctx context.Context) context.Context {
	traceparent := os.Getenv("TRACEPARENT")
	if traceparent == "" {
		return ctx
	}
	carrier := propagation.MapCarrier{"traceparent": traceparent}
	return otel.GetTextMapPropagator().Extract(ctx, carrier)
}

// InitForCommand initializes tracing for a CLI command and optionally
// starts a span named after it. The caller ends the span.
func (t *Telemetry) InitForCommand(cmd *cobra.Command, out io.Writer, startSpan bool) (trace.Span, error) {
	if err := t.InitTelemetry(cmd.Context(), cmd.Root().Name(), out); err != nil {
		return nil, fmt.Errorf("failed to initialize OpenTelemetry: %w", err)
	}
	ctx := t.WithEnvTraceparent(cmd.Context())
	var span trace.Span
	if startSpan {
		ctx, span = Tracer().Start(ctx, cmd.Name())
	}
	cmd.SetContext(ctx)
	return span, nil
}

// ShutdownTelemetry flushes pending spans.
func (t *Telemetry) ShutdownTelemetry(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.initialized {
		return nil
	}
	t.initialized = false
	if err := t.provider.Shutdown(ctx); err != nil {
		return errors.Join(errors.New("failed to shutdown tracer provider"), err)
	}
	return nil
}

// WrapSlogHandler adds trace_id and span_id to records logged with a
// context that carries a span.
func WrapSlogHandler(handler slog.Handler) slog.Handler {
	return &spanContextHandler{next: handler}
}

type spanContextHandler struct {
	next slog.Handler
}

func (h *spanContextHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.next.Enabled(ctx, level)
}

func (h *spanContextHandler) Handle(ctx context.Context, r slog.Record) error {
	span := trace.SpanFromContext(ctx)
	if span.SpanContext().IsValid() {
		r.AddAttrs(
			slog.String("trace_id", span.SpanContext().TraceID().String()),
			slog.String("span_id", span.SpanContext().SpanID().String()),
		)
	}
	return h.next.Handle(ctx, r)
}

func (h *spanContextHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &spanContextHandler{next: h.next.WithAttrs(attrs)}
}

func (h *spanContextHandler) WithGroup(name string) slog.Handler {
	return &spanContextHandler{next: h.next.WithGroup(name)}
}
