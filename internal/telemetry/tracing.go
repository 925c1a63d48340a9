package telemetry

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/kagent-dev/kube-mcp/internal/config"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	"go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
)

// Protocol constants for OTLP exporters
const (
	ProtocolGRPC = "grpc"
	ProtocolHTTP = "http"
	ProtocolAuto = "auto"
)

// SetupOTelSDK installs the global tracer provider and propagators.
// The returned shutdown flushes pending spans.
func SetupOTelSDK(ctx context.Context, cfg config.Telemetry) (shutdown func(context.Context) error, err error) {
	if cfg.Disabled {
		return func(context.Context) error { return nil }, nil
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(cfg.ServiceName),
			semconv.ServiceVersion(cfg.ServiceVersion),
			semconv.DeploymentEnvironment(cfg.Environment),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	tracerProvider, err := newTracerProvider(ctx, res, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create tracer provider: %w", err)
	}
	otel.SetTracerProvider(tracerProvider)

	return tracerProvider.Shutdown, nil
}

func newTracerProvider(ctx context.Context, res *resource.Resource, cfg config.Telemetry) (*trace.TracerProvider, error) {
	exporter, err := createExporter(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create exporter: %w", err)
	}

	sampler := trace.ParentBased(trace.TraceIDRatioBased(cfg.SamplingRatio))
	batchTimeout := 5 * time.Second
	if cfg.Environment == "development" {
		sampler = trace.AlwaysSample()
		batchTimeout = time.Second
	}

	return trace.NewTracerProvider(
		trace.WithBatcher(exporter, trace.WithBatchTimeout(batchTimeout)),
		trace.WithResource(res),
		trace.WithSampler(sampler),
	), nil
}

func createExporter(ctx context.Context, cfg config.Telemetry) (trace.SpanExporter, error) {
	if cfg.Endpoint == "" {
		// stdout would corrupt the stdio transport, so spans go to stderr.
		return stdouttrace.New(stdouttrace.WithWriter(os.Stderr))
	}

	protocol := strings.ToLower(cfg.Protocol)
	if protocol == ProtocolAuto || protocol == "" {
		protocol = detectProtocol(cfg.Endpoint)
	}

	switch protocol {
	case ProtocolGRPC:
		opts := []otlptracegrpc.Option{
			otlptracegrpc.WithEndpoint(normalizeGRPCEndpoint(cfg.Endpoint)),
			otlptracegrpc.WithTimeout(30 * time.Second),
		}
		if cfg.Insecure || isLocalEndpoint(cfg.Endpoint) {
			opts = append(opts, otlptracegrpc.WithInsecure())
		}
		if headers := os.Getenv("OTEL_EXPORTER_OTLP_HEADERS"); headers != "" {
			opts = append(opts, otlptracegrpc.WithHeaders(parseHeaders(headers)))
		}
		return otlptracegrpc.New(ctx, opts...)
	case ProtocolHTTP:
		opts := []otlptracehttp.Option{
			otlptracehttp.WithEndpointURL(normalizeHTTPEndpoint(cfg.Endpoint, cfg.Insecure)),
			otlptracehttp.WithTimeout(30 * time.Second),
		}
		if cfg.Insecure {
			opts = append(opts, otlptracehttp.WithInsecure())
		}
		if headers := os.Getenv("OTEL_EXPORTER_OTLP_HEADERS"); headers != "" {
			opts = append(opts, otlptracehttp.WithHeaders(parseHeaders(headers)))
		}
		return otlptracehttp.New(ctx, opts...)
	default:
		return nil, fmt.Errorf("unsupported protocol: %s (supported: %s, %s)", protocol, ProtocolGRPC, ProtocolHTTP)
	}
}

// detectProtocol picks gRPC for port 4317 and HTTP otherwise.
func detectProtocol(endpoint string) string {
	if parsed, err := url.Parse(endpoint); err == nil && parsed.Port() == "4317" {
		return ProtocolGRPC
	}
	if strings.Contains(endpoint, ":4317") {
		return ProtocolGRPC
	}
	return ProtocolHTTP
}

func isLocalEndpoint(endpoint string) bool {
	return strings.Contains(endpoint, "localhost") || strings.Contains(endpoint, "127.0.0.1")
}

func normalizeGRPCEndpoint(endpoint string) string {
	endpoint = strings.TrimPrefix(endpoint, "http://")
	endpoint = strings.TrimPrefix(endpoint, "https://")
	return strings.TrimSuffix(endpoint, "/v1/traces")
}

func normalizeHTTPEndpoint(endpoint string, insecure bool) string {
	if !strings.HasPrefix(endpoint, "http://") && !strings.HasPrefix(endpoint, "https://") {
		if insecure || isLocalEndpoint(endpoint) || strings.Contains(endpoint, "docker.internal") {
			endpoint = "http://" + endpoint
		} else {
			endpoint = "https://" + endpoint
		}
	}
	if !strings.HasSuffix(endpoint, "/v1/traces") {
		endpoint = strings.TrimSuffix(endpoint, "/") + "/v1/traces"
	}
	return endpoint
}

// parseHeaders parses "key=value,key2=value2".
func parseHeaders(headerStr string) map[string]string {
	headers := make(map[string]string)
	for _, pair := range strings.Split(headerStr, ",") {
		if k, v, ok := strings.Cut(strings.TrimSpace(pair), "="); ok {
			headers[strings.TrimSpace(k)] = strings.TrimSpace(v)
		}
	}
	return headers
}
