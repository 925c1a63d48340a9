package telemetry

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/kagent-dev/kube-mcp/internal/config"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func setupTestTelemetry(t *testing.T) *tracetest.InMemoryExporter {
	t.Helper()
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	prevTP := otel.GetTracerProvider()
	prevProp := otel.GetTextMapPropagator()
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.TraceContext{})
	t.Cleanup(func() {
		otel.SetTracerProvider(prevTP)
		otel.SetTextMapPropagator(prevProp)
	})
	return exporter
}

func findSpan(spans tracetest.SpanStubs, name string) *tracetest.SpanStub {
	for i := range spans {
		if spans[i].Name == name {
			return &spans[i]
		}
	}
	return nil
}

func attr(span *tracetest.SpanStub, key string) (attribute.Value, bool) {
	for _, kv := range span.Attributes {
		if string(kv.Key) == key {
			return kv.Value, true
		}
	}
	return attribute.Value{}, false
}

func callRequest(name string, args map[string]any) mcp.CallToolRequest {
	req := mcp.CallToolRequest{}
	req.Params.Name = name
	req.Params.Arguments = args
	return req
}

func TestWithTracing(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		exporter := setupTestTelemetry(t)
		handler := WithTracing("k8s_get_resources", func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return mcp.NewToolResultText("ok"), nil
		})

		_, err := handler(context.Background(), callRequest("k8s_get_resources", map[string]any{"cluster": "dev"}))
		require.NoError(t, err)

		span := findSpan(exporter.GetSpans(), "mcp.tool.k8s_get_resources")
		require.NotNil(t, span)
		assert.Equal(t, codes.Ok, span.Status.Code)
		v, ok := attr(span, "kube.cluster.id")
		require.True(t, ok)
		assert.Equal(t, "dev", v.AsString())
	})

	t.Run("error result marks span", func(t *testing.T) {
		exporter := setupTestTelemetry(t)
		handler := WithTracing("helm_get_release", func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return mcp.NewToolResultError("NotFound"), nil
		})

		_, err := handler(context.Background(), callRequest("helm_get_release", nil))
		require.NoError(t, err)

		span := findSpan(exporter.GetSpans(), "mcp.tool.helm_get_release")
		require.NotNil(t, span)
		assert.Equal(t, codes.Error, span.Status.Code)
	})

	t.Run("handler error recorded", func(t *testing.T) {
		exporter := setupTestTelemetry(t)
		handler := WithTracing("cluster_switch", func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return nil, errors.New("boom")
		})

		_, err := handler(context.Background(), callRequest("cluster_switch", nil))
		require.Error(t, err)

		span := findSpan(exporter.GetSpans(), "mcp.tool.cluster_switch")
		require.NotNil(t, span)
		assert.Equal(t, codes.Error, span.Status.Code)
		assert.NotEmpty(t, span.Events)
	})
}

func TestHTTPMiddlewarePropagatesTrace(t *testing.T) {
	exporter := setupTestTelemetry(t)

	var sawSpan bool
	handler := HTTPMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sawSpan = true
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodPost, "/mcp", nil)
	req.Header.Set("traceparent", "00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.True(t, sawSpan)
	span := findSpan(exporter.GetSpans(), "mcp.http POST /mcp")
	require.NotNil(t, span)
	assert.Equal(t, "4bf92f3577b34da6a3ce929d0e0e4736", span.SpanContext.TraceID().String())
}

func TestSetupOTelSDKDisabled(t *testing.T) {
	shutdown, err := SetupOTelSDK(context.Background(), config.Telemetry{Disabled: true})
	require.NoError(t, err)
	assert.NoError(t, shutdown(context.Background()))
}

func TestSetupOTelSDKStdoutExporter(t *testing.T) {
	prevTP := otel.GetTracerProvider()
	t.Cleanup(func() { otel.SetTracerProvider(prevTP) })

	shutdown, err := SetupOTelSDK(context.Background(), config.Telemetry{
		ServiceName:   "kube-mcp-test",
		Environment:   "development",
		SamplingRatio: 1,
	})
	require.NoError(t, err)
	assert.NoError(t, shutdown(context.Background()))
}

func TestCreateExporterUnsupportedProtocol(t *testing.T) {
	_, err := createExporter(context.Background(), config.Telemetry{Endpoint: "localhost:4318", Protocol: "carrier-pigeon"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported protocol")
}

func TestProtocolDetection(t *testing.T) {
	tests := []struct {
		endpoint string
		expected string
	}{
		{"http://localhost:4317", ProtocolGRPC},
		{"localhost:4317", ProtocolGRPC},
		{"https://otel-collector.example.com:4317", ProtocolGRPC},
		{"http://localhost:4318", ProtocolHTTP},
		{"http://localhost", ProtocolHTTP},
		{"http://localhost:9090", ProtocolHTTP},
	}
	for _, tt := range tests {
		t.Run(tt.endpoint, func(t *testing.T) {
			assert.Equal(t, tt.expected, detectProtocol(tt.endpoint))
		})
	}
}

func TestEndpointNormalization(t *testing.T) {
	assert.Equal(t, "localhost:4317", normalizeGRPCEndpoint("http://localhost:4317/v1/traces"))
	assert.Equal(t, "otel.example.com:4317", normalizeGRPCEndpoint("https://otel.example.com:4317"))

	assert.Equal(t, "http://localhost:4318/v1/traces", normalizeHTTPEndpoint("localhost:4318", false))
	assert.Equal(t, "http://localhost:4318/v1/traces", normalizeHTTPEndpoint("http://localhost:4318/", false))
	assert.Equal(t, "https://otel.example.com/v1/traces", normalizeHTTPEndpoint("otel.example.com", false))
	assert.Equal(t, "http://otel.example.com/v1/traces", normalizeHTTPEndpoint("otel.example.com", true))
}

func TestParseHeaders(t *testing.T) {
	assert.Equal(t, map[string]string{}, parseHeaders(""))
	assert.Equal(t, map[string]string{"Authorization": "Bearer token123", "X-Org": "a=b"},
		parseHeaders("Authorization = Bearer token123 , X-Org=a=b"))
	assert.Equal(t, map[string]string{}, parseHeaders("InvalidHeader"))
}
