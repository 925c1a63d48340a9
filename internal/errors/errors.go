// Package errors defines the failure taxonomy shared by the command runner,
// the cluster registry and the MCP tool handlers.
package errors

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
)

// Kind identifies a class of failure.
type Kind string

const (
	KindInvalidArguments     Kind = "InvalidArguments"
	KindInvalidClusterConfig Kind = "InvalidClusterConfig"
	KindNotFound             Kind = "NotFound"
	KindConnection           Kind = "Connection"
	KindTimeout              Kind = "Timeout"
	KindAuthentication       Kind = "Authentication"
	KindExecution            Kind = "Execution"
)

// Sentinels for use with errors.Is. A *ToolError matches the sentinel of its kind.
var (
	ErrInvalidArguments     = &ToolError{Kind: KindInvalidArguments}
	ErrInvalidClusterConfig = &ToolError{Kind: KindInvalidClusterConfig}
	ErrNotFound             = &ToolError{Kind: KindNotFound}
	ErrConnection           = &ToolError{Kind: KindConnection}
	ErrTimeout              = &ToolError{Kind: KindTimeout}
	ErrAuthentication       = &ToolError{Kind: KindAuthentication}
	ErrExecution            = &ToolError{Kind: KindExecution}
)

// ToolError is the structured error returned by every core operation.
type ToolError struct {
	Kind     Kind
	Message  string
	Command  string
	Stderr   string
	ExitCode int
	// Step names the GKE authentication sub-step that failed.
	Step    string
	Cause   error
	Context map[string]string
}

func (e *ToolError) Error() string {
	var b strings.Builder
	b.WriteString(string(e.Kind))
	if e.Step != "" {
		fmt.Fprintf(&b, " (%s)", e.Step)
	}
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	if e.Cause != nil && !strings.Contains(e.Message, e.Cause.Error()) {
		fmt.Fprintf(&b, ": %v", e.Cause)
	}
	return b.String()
}

func (e *ToolError) Unwrap() error {
	return e.Cause
}

// Is reports a match when target is a *ToolError of the same kind with no message,
// which is what the package sentinels are.
func (e *ToolError) Is(target error) bool {
	t, ok := target.(*ToolError)
	if !ok {
		return false
	}
	if t.Message == "" && t.Cause == nil {
		return t.Kind == e.Kind
	}
	return t == e
}

// WithContext returns a copy of the error annotated with key=value.
func (e *ToolError) WithContext(key, value string) *ToolError {
	cp := *e
	cp.Context = make(map[string]string, len(e.Context)+1)
	for k, v := range e.Context {
		cp.Context[k] = v
	}
	cp.Context[key] = value
	return &cp
}

// ToMCPResult renders the error as a tool result with IsError set.
func (e *ToolError) ToMCPResult() *mcp.CallToolResult {
	var b strings.Builder
	b.WriteString(e.Error())
	if e.Kind == KindInvalidClusterConfig {
		b.WriteString("\nThe requested cluster cannot be used. Stop and ask for a valid cluster id before retrying.")
	}
	if len(e.Context) > 0 {
		keys := make([]string, 0, len(e.Context))
		for k := range e.Context {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(&b, "\n%s: %s", k, e.Context[k])
		}
	}
	return mcp.NewToolResultError(b.String())
}

func newError(kind Kind, format string, args ...any) *ToolError {
	return &ToolError{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func NewInvalidArgumentsError(format string, args ...any) *ToolError {
	return newError(KindInvalidArguments, format, args...)
}

func NewInvalidClusterConfigError(clusterID string, cause error) *ToolError {
	return &ToolError{
		Kind:    KindInvalidClusterConfig,
		Message: fmt.Sprintf("cluster %q could not be resolved", clusterID),
		Cause:   cause,
		Context: map[string]string{"cluster": clusterID},
	}
}

func NewNotFoundError(format string, args ...any) *ToolError {
	return newError(KindNotFound, format, args...)
}

func NewTimeoutError(command string, cause error) *ToolError {
	return &ToolError{
		Kind:    KindTimeout,
		Message: fmt.Sprintf("%s did not finish in time", command),
		Command: command,
		Cause:   cause,
	}
}

func NewExecutionError(command string, cause error) *ToolError {
	return &ToolError{Kind: KindExecution, Message: fmt.Sprintf("failed to run %s", command), Command: command, Cause: cause}
}

// NewAuthenticationError reports a failed GKE authentication step.
func NewAuthenticationError(clusterID, step string, cause error) *ToolError {
	return &ToolError{
		Kind:    KindAuthentication,
		Message: fmt.Sprintf("GKE authentication for cluster %q failed", clusterID),
		Step:    step,
		Cause:   cause,
		Context: map[string]string{"cluster": clusterID},
	}
}

// KindOf returns the kind of the first *ToolError in err's chain, or "" if there is none.
func KindOf(err error) Kind {
	var te *ToolError
	if errors.As(err, &te) {
		return te.Kind
	}
	return ""
}
