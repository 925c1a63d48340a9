package logger

import (
	"context"
	"log/slog"
	"os"
	"strings"

	"go.opentelemetry.io/otel/trace"
)

const redacted = "<REDACTED>"

// sensitiveFlags carry credentials or credential locations and are never logged verbatim.
var sensitiveFlags = map[string]struct{}{
	"--token":    {},
	"--key-file": {},
	"--password": {},
}

var globalLogger *slog.Logger

// parseLogLevel converts a string log level to slog.Level
func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Init initializes the global logger
// If useStderr is true, logs will be written to stderr (for stdio mode)
// If useStderr is false, logs will be written to stdout (for HTTP mode)
// logLevel can be "debug", "info", "warn", or "error"
func Init(useStderr bool, logLevel string) {
	opts := &slog.HandlerOptions{
		Level: parseLogLevel(logLevel),
	}

	output := os.Stdout
	if useStderr {
		output = os.Stderr
	}

	if os.Getenv("KAGENT_LOG_FORMAT") == "json" {
		globalLogger = slog.New(slog.NewJSONHandler(output, opts))
	} else {
		globalLogger = slog.New(slog.NewTextHandler(output, opts))
	}

	slog.SetDefault(globalLogger)
}

// InitWithEnv initializes the logger using environment variables
// This is a convenience function that defaults to stdout unless KAGENT_USE_STDERR is set
func InitWithEnv() {
	useStderr := os.Getenv("KAGENT_USE_STDERR") == "true"
	logLevel := os.Getenv("KAGENT_LOG_LEVEL")
	if logLevel == "" {
		logLevel = "info"
	}
	Init(useStderr, logLevel)
}

// Set replaces the global logger, e.g. to capture output in tests.
func Set(l *slog.Logger) {
	globalLogger = l
}

func Get() *slog.Logger {
	if globalLogger == nil {
		InitWithEnv()
	}
	return globalLogger
}

func WithContext(ctx context.Context) *slog.Logger {
	logger := Get()
	span := trace.SpanFromContext(ctx)
	if span.SpanContext().IsValid() {
		logger = logger.With(
			"trace_id", span.SpanContext().TraceID().String(),
			"span_id", span.SpanContext().SpanID().String(),
		)
	}
	return logger
}

// RedactArgsForLog returns a copy of args with credential values replaced.
// Both "--flag value" and "--flag=value" spellings are handled.
func RedactArgsForLog(args []string) []string {
	if len(args) == 0 {
		return nil
	}
	out := make([]string, len(args))
	copy(out, args)
	for i := 0; i < len(out); i++ {
		if flag, _, ok := strings.Cut(out[i], "="); ok {
			if _, sensitive := sensitiveFlags[flag]; sensitive {
				out[i] = flag + "=" + redacted
			}
			continue
		}
		if _, sensitive := sensitiveFlags[out[i]]; sensitive && i+1 < len(out) {
			out[i+1] = redacted
			i++
		}
	}
	return out
}

func LogExecCommand(ctx context.Context, logger *slog.Logger, command string, args []string, caller string) {
	logger.Info("executing command",
		"command", command,
		"args", RedactArgsForLog(args),
		"caller", caller,
	)
}

func LogExecCommandResult(ctx context.Context, logger *slog.Logger, command string, args []string, output string, err error, duration float64, caller string) {
	if err != nil {
		logger.Error("command execution failed",
			"command", command,
			"args", RedactArgsForLog(args),
			"error", err.Error(),
			"duration_seconds", duration,
			"caller", caller,
		)
	} else {
		logger.Info("command execution successful",
			"command", command,
			"args", RedactArgsForLog(args),
			"output_bytes", len(output),
			"duration_seconds", duration,
			"caller", caller,
		)
	}
}

func Sync() {
	// No-op for slog, but kept for compatibility
}
