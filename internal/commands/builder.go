// Package commands executes kubectl, helm and gcloud as child processes with
// bounded run time and structured failure classification.
package commands

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/kagent-dev/kube-mcp/internal/cmd"
	toolerrors "github.com/kagent-dev/kube-mcp/internal/errors"
	"github.com/kagent-dev/kube-mcp/internal/logger"
	"github.com/kagent-dev/kube-mcp/internal/metrics"
	"github.com/kagent-dev/kube-mcp/internal/telemetry"
)

const (
	KubectlTimeout = 30 * time.Second
	HelmTimeout    = 60 * time.Second
	// DefaultTimeout applies to any other program.
	DefaultTimeout = 60 * time.Second
)

var meter = otel.Meter("kube-mcp/commands")

var (
	inflight, _        = meter.Int64UpDownCounter("kube_mcp.commands.inflight", metric.WithDescription("Child processes currently running"))
	executionsMeter, _ = meter.Int64Counter("kube_mcp.commands.executions", metric.WithDescription("Child process executions by program and outcome"))
)

// DefaultTimeoutFor returns the run-time budget used when none is set explicitly.
func DefaultTimeoutFor(program string) time.Duration {
	switch program {
	case "kubectl":
		return KubectlTimeout
	case "helm":
		return HelmTimeout
	default:
		return DefaultTimeout
	}
}

// CommandBuilder assembles and runs a single external command.
type CommandBuilder struct {
	command    string
	args       []string
	kubeconfig string
	timeout    time.Duration
	classifier *toolerrors.Classifier
	caller     string
}

func NewCommandBuilder(command string) *CommandBuilder {
	return &CommandBuilder{
		command:    command,
		timeout:    DefaultTimeoutFor(command),
		classifier: toolerrors.DefaultClassifier(),
	}
}

func (cb *CommandBuilder) WithArgs(args ...string) *CommandBuilder {
	cb.args = append(cb.args, args...)
	return cb
}

// WithKubeconfig prepends --kubeconfig unless the arguments already carry one.
func (cb *CommandBuilder) WithKubeconfig(path string) *CommandBuilder {
	cb.kubeconfig = path
	return cb
}

func (cb *CommandBuilder) WithTimeout(timeout time.Duration) *CommandBuilder {
	if timeout > 0 {
		cb.timeout = timeout
	}
	return cb
}

// WithClassifier replaces the stderr classification rules.
func (cb *CommandBuilder) WithClassifier(c *toolerrors.Classifier) *CommandBuilder {
	if c != nil {
		cb.classifier = c
	}
	return cb
}

func (cb *CommandBuilder) WithCaller(caller string) *CommandBuilder {
	cb.caller = caller
	return cb
}

// Build returns the program and the final argument vector.
func (cb *CommandBuilder) Build() (string, []string) {
	args := make([]string, 0, len(cb.args)+2)
	if cb.kubeconfig != "" && !hasFlag(cb.args, "--kubeconfig") {
		args = append(args, "--kubeconfig", cb.kubeconfig)
	}
	args = append(args, cb.args...)
	return cb.command, args
}

// Execute runs the command and returns its trimmed stdout.
//
// Failures map onto toolerrors kinds: an elapsed deadline is Timeout and the
// partial stdout is dropped, a failed spawn or caller cancellation is Execution,
// and a non-zero exit is classified from stderr.
func (cb *CommandBuilder) Execute(ctx context.Context) (string, error) {
	if cb.command == "" {
		return "", toolerrors.NewInvalidArgumentsError("no command given")
	}
	command, args := cb.Build()
	if len(args) == 0 {
		return "", toolerrors.NewInvalidArgumentsError("no arguments given for %s", command)
	}

	caller := cb.caller
	if caller == "" {
		caller = callerName()
	}

	ctx, span := telemetry.StartSpan(ctx, "command."+command,
		attribute.String("command.program", command),
		attribute.StringSlice("command.args", logger.RedactArgsForLog(args)),
		attribute.Float64("command.timeout_seconds", cb.timeout.Seconds()),
	)
	defer span.End()

	log := logger.WithContext(ctx)
	logger.LogExecCommand(ctx, log, command, args, caller)

	runCtx, cancel := context.WithTimeout(ctx, cb.timeout)
	defer cancel()

	programAttr := metric.WithAttributes(attribute.String("program", command))
	inflight.Add(ctx, 1, programAttr)
	start := time.Now()
	stdout, stderr, execErr := cmd.GetShellExecutor(ctx).Exec(runCtx, command, args...)
	duration := time.Since(start)
	inflight.Add(ctx, -1, programAttr)

	output, err := cb.interpret(runCtx, command, stdout, stderr, execErr)

	outcome := "success"
	if err != nil {
		outcome = string(toolerrors.KindOf(err))
		telemetry.RecordError(span, err, outcome)
	} else {
		telemetry.RecordSuccess(span, "command completed")
		if output == "" && strings.TrimSpace(string(stderr)) != "" {
			log.Warn("command produced no output but wrote to stderr",
				"command", command,
				"stderr", strings.TrimSpace(string(stderr)),
			)
		}
	}
	metrics.CommandExecutionsTotal.WithLabelValues(command, outcome).Inc()
	metrics.CommandDurationSeconds.WithLabelValues(command).Observe(duration.Seconds())
	executionsMeter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("program", command),
		attribute.String("outcome", outcome),
	))
	logger.LogExecCommandResult(ctx, log, command, args, output, err, duration.Seconds(), caller)

	return output, err
}

func (cb *CommandBuilder) interpret(runCtx context.Context, command string, stdout, stderr []byte, execErr error) (string, error) {
	if execErr == nil {
		return strings.TrimSpace(string(stdout)), nil
	}

	if ctxErr := runCtx.Err(); ctxErr != nil {
		if errors.Is(ctxErr, context.DeadlineExceeded) {
			te := toolerrors.NewTimeoutError(command, ctxErr)
			te.Stderr = string(stderr)
			return "", te.WithContext("timeout", cb.timeout.String())
		}
		return "", toolerrors.NewExecutionError(command, ctxErr)
	}

	var exitErr interface{ ExitCode() int }
	if errors.As(execErr, &exitErr) {
		return "", cb.classifier.Classify(command, string(stderr), exitErr.ExitCode())
	}
	return "", toolerrors.NewExecutionError(command, execErr)
}

func hasFlag(args []string, flag string) bool {
	for _, a := range args {
		if a == flag || strings.HasPrefix(a, flag+"=") {
			return true
		}
	}
	return false
}

// callerName reports the function that called Execute, for log attribution.
func callerName() string {
	pc, file, line, ok := runtime.Caller(2)
	if !ok {
		return "unknown"
	}
	if fn := runtime.FuncForPC(pc); fn != nil {
		name := fn.Name()
		if i := strings.LastIndex(name, "/"); i >= 0 {
			name = name[i+1:]
		}
		return name
	}
	return fmt.Sprintf("%s:%d", file, line)
}
