package telemetry

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "kube-mcp"

type ToolHandler func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error)

// WithTracing runs handler inside an mcp.tool.<name> span.
func WithTracing(toolName string, handler ToolHandler) ToolHandler {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		tracer := otel.Tracer(instrumentationName + "/mcp")

		ctx, span := tracer.Start(ctx, fmt.Sprintf("mcp.tool.%s", toolName))
		defer span.End()

		span.SetAttributes(attribute.String("mcp.tool.name", toolName))
		if args := request.GetArguments(); len(args) > 0 {
			if argsJSON, err := json.Marshal(args); err == nil {
				span.SetAttributes(attribute.String("mcp.request.arguments", string(argsJSON)))
			}
		}
		if cluster := request.GetString("cluster", ""); cluster != "" {
			span.SetAttributes(attribute.String("kube.cluster.id", cluster))
		}

		startTime := time.Now()
		result, err := handler(ctx, request)
		span.SetAttributes(attribute.Float64("mcp.tool.duration_seconds", time.Since(startTime).Seconds()))

		switch {
		case err != nil:
			RecordError(span, err, err.Error())
		case result != nil && result.IsError:
			span.SetAttributes(attribute.Bool("mcp.result.is_error", true))
			span.SetStatus(codes.Error, "tool returned an error result")
		default:
			RecordSuccess(span, "tool execution completed successfully")
			if result != nil {
				span.SetAttributes(attribute.Int("mcp.result.content_count", len(result.Content)))
			}
		}

		return result, err
	}
}

// HTTPMiddleware extracts incoming trace context and wraps each request in a server span.
func HTTPMiddleware(next http.Handler) http.Handler {
	return otelhttp.NewHandler(next, "mcp.http",
		otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
			return fmt.Sprintf("mcp.http %s %s", r.Method, r.URL.Path)
		}),
	)
}

func StartSpan(ctx context.Context, operationName string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	ctx, span := otel.Tracer(instrumentationName).Start(ctx, operationName)
	if len(attrs) > 0 {
		span.SetAttributes(attrs...)
	}
	return ctx, span
}

func RecordError(span trace.Span, err error, message string) {
	span.RecordError(err)
	span.SetStatus(codes.Error, message)
}

func RecordSuccess(span trace.Span, message string) {
	span.SetStatus(codes.Ok, message)
}

func AddEvent(span trace.Span, name string, attrs ...attribute.KeyValue) {
	span.AddEvent(name, trace.WithAttributes(attrs...))
}

// AdaptToolHandler adapts a telemetry.ToolHandler to a server.ToolHandlerFunc.
func AdaptToolHandler(th ToolHandler) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return th(ctx, req)
	}
}
