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

package telemetry

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

// setupRestoreDefaultGlobals restores the global otel state after the test.
func setupRestoreDefaultGlobals(t *testing.T) {
	t.Helper()
	originalTracerProvider := otel.GetTracerProvider()
	originalTextMapPropagator := otel.GetTextMapPropagator()
	t.Cleanup(func() {
		otel.SetTracerProvider(originalTracerProvider)
		otel.SetTextMapPropagator(originalTextMapPropagator)
	})
}

func setupTestTelemetry(t *testing.T) (*Telemetry, *tracetest.InMemoryExporter) {
	t.Helper()
	setupRestoreDefaultGlobals(t)
	exp := tracetest.NewInMemoryExporter()
	return NewTelemetry().WithTestExporter(exp), exp
}

func TestNewTelemetry(t *testing.T) {
	tel := NewTelemetry()
	require.NotNil(t, tel)
	assert.False(t, tel.initialized)
	assert.Nil(t, tel.provider)
}

func TestInitTelemetry_ExportsSpans(t *testing.T) {
	tel, exp := setupTestTelemetry(t)
	ctx := context.Background()

	require.NoError(t, tel.InitTelemetry(ctx, "test-service", nil))
	assert.True(t, tel.initialized)

	_, span := Tracer().Start(ctx, "EXECUTE listsql")
	span.End()

	spans := exp.GetSpans()
	require.Len(t, spans, 1)
	assert.Equal(t, "EXECUTE listsql", spans[0].Name)

	require.NoError(t, tel.ShutdownTelemetry(ctx))
	assert.False(t, tel.initialized)
}

func TestInitTelemetry_ServiceNameFromEnv(t *testing.T) {
	t.Setenv("OTEL_SERVICE_NAME", "custom-service-from-env")
	tel, exp := setupTestTelemetry(t)
	ctx := context.Background()

	require.NoError(t, tel.InitTelemetry(ctx, "default-service", nil))
	_, span := Tracer().Start(ctx, "op")
	span.End()

	spans := exp.GetSpans()
	require.Len(t, spans, 1)
	var service string
	for _, kv := range spans[0].Resource.Attributes() {
		if kv.Key == "service.name" {
			service = kv.Value.AsString()
		}
	}
	assert.Equal(t, "custom-service-from-env", service)
	require.NoError(t, tel.ShutdownTelemetry(ctx))
}

func TestInitTelemetry_Idempotent(t *testing.T) {
	tel, _ := setupTestTelemetry(t)
	ctx := context.Background()

	require.NoError(t, tel.InitTelemetry(ctx, "test-service", nil))
	provider := tel.provider
	require.NoError(t, tel.InitTelemetry(ctx, "other-service", nil))
	assert.Same(t, provider, tel.provider)
	require.NoError(t, tel.ShutdownTelemetry(ctx))
}

func TestInitTelemetry_DisabledWithoutOutput(t *testing.T) {
	setupRestoreDefaultGlobals(t)
	tel := NewTelemetry()
	require.NoError(t, tel.InitTelemetry(context.Background(), "test-service", nil))
	assert.False(t, tel.initialized)
	assert.NoError(t, tel.ShutdownTelemetry(context.Background()))
}

func TestInitTelemetry_WritesToOutput(t *testing.T) {
	setupRestoreDefaultGlobals(t)
	var buf bytes.Buffer
	tel := NewTelemetry()
	ctx := context.Background()
	require.NoError(t, tel.InitTelemetry(ctx, "test-service", &buf))

	_, span := Tracer().Start(ctx, "FETCH listsql")
	span.End()
	require.NoError(t, tel.ShutdownTelemetry(ctx))
	assert.Contains(t, buf.String(), "FETCH listsql")
}

func TestInitForCommand(t *testing.T) {
	tel, exp := setupTestTelemetry(t)
	t.Setenv("TRACEPARENT", "00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01")

	cmd := &cobra.Command{Use: "query"}
	cmd.SetContext(context.Background())
	span, err := tel.InitForCommand(cmd, nil, true)
	require.NoError(t, err)
	require.NotNil(t, span)
	span.End()

	spans := exp.GetSpans()
	require.Len(t, spans, 1)
	assert.Equal(t, "query", spans[0].Name)
	assert.Equal(t, "4bf92f3577b34da6a3ce929d0e0e4736", spans[0].SpanContext.TraceID().String())
	require.NoError(t, tel.ShutdownTelemetry(context.Background()))
}

func TestWithEnvTraceparent_Empty(t *testing.T) {
	setupRestoreDefaultGlobals(t)
	otel.SetTextMapPropagator(propagation.TraceContext{})
	ctx := context.Background()
	assert.Equal(t, ctx, NewTelemetry().WithEnvTraceparent(ctx))
}

func TestWrapSlogHandler(t *testing.T) {
	tel, _ := setupTestTelemetry(t)
	ctx := context.Background()
	require.NoError(t, tel.InitTelemetry(ctx, "test-service", nil))
	defer func() { _ = tel.ShutdownTelemetry(ctx) }()

	var buf bytes.Buffer
	logger := slog.New(WrapSlogHandler(slog.NewTextHandler(&buf, nil)))

	logger.InfoContext(ctx, "no span")
	assert.NotContains(t, buf.String(), "trace_id")

	spanCtx, span := Tracer().Start(ctx, "op")
	defer span.End()
	logger.With("k", "v").InfoContext(spanCtx, "with span")
	assert.Contains(t, buf.String(), "trace_id="+span.SpanContext().TraceID().String())
	assert.Contains(t, buf.String(), "span_id=")
	assert.Contains(t, buf.String(), "k=v")
}
