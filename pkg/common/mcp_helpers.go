// Package common provides shared MCP helper functions for all tool packages.
//
// It centralizes argument parsing, cluster-aware command execution and result
// creation so every tool reports failures in the same envelope.
package common

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	toolerrors "github.com/kagent-dev/kube-mcp/internal/errors"
)

// ClusterArg is the argument every kubectl and helm tool accepts.
const ClusterArg = "cluster"

// CommandRunner runs one CLI program against a logical cluster.
// *commands.Runner is the production implementation.
type CommandRunner interface {
	Run(ctx context.Context, args []string, clusterID string) (string, error)
}

// WithCluster declares the optional cluster argument.
func WithCluster() mcp.ToolOption {
	return mcp.WithString(ClusterArg,
		mcp.Description("Cluster id from cluster_list. Omit to use the kubeconfig defaults of the server."),
	)
}

// GetBoolArg accepts a JSON boolean or the strings "true"/"false".
func GetBoolArg(request mcp.CallToolRequest, key string, defaultVal bool) bool {
	switch v := request.GetArguments()[key].(type) {
	case bool:
		return v
	case string:
		return strings.EqualFold(v, "true")
	default:
		return defaultVal
	}
}

// GetStringSliceArg reads an array of strings, skipping non-string entries.
// A single string is treated as a one-element array.
func GetStringSliceArg(request mcp.CallToolRequest, key string) []string {
	switch v := request.GetArguments()[key].(type) {
	case []any:
		out := make([]string, 0, len(v))
		for _, e := range v {
			if s, ok := e.(string); ok && s != "" {
				out = append(out, s)
			}
		}
		return out
	case []string:
		return v
	case string:
		if v == "" {
			return nil
		}
		return []string{v}
	default:
		return nil
	}
}

// RequireArgs reports every missing or empty string argument at once.
func RequireArgs(request mcp.CallToolRequest, keys ...string) *mcp.CallToolResult {
	var missing []string
	for _, key := range keys {
		if mcp.ParseString(request, key, "") == "" {
			missing = append(missing, key)
		}
	}
	if len(missing) > 0 {
		return mcp.NewToolResultError(fmt.Sprintf("required parameters missing: %s", strings.Join(missing, ", ")))
	}
	return nil
}

// ErrorResult renders err as an IsError tool result. Classified errors keep their
// kind and context lines.
func ErrorResult(err error) *mcp.CallToolResult {
	var te *toolerrors.ToolError
	if errors.As(err, &te) {
		return te.ToMCPResult()
	}
	return mcp.NewToolResultError(err.Error())
}

// InvalidArgument builds the result for an argument that failed validation.
func InvalidArgument(name string, err error) *mcp.CallToolResult {
	return ErrorResult(toolerrors.NewInvalidArgumentsError("invalid %s: %v", name, err))
}

// RunCommand executes args against the cluster named in the request and wraps
// the outcome in a tool result.
func RunCommand(ctx context.Context, runner CommandRunner, request mcp.CallToolRequest, args ...string) (*mcp.CallToolResult, error) {
	out, err := runner.Run(ctx, args, mcp.ParseString(request, ClusterArg, ""))
	if err != nil {
		return ErrorResult(err), nil
	}
	return mcp.NewToolResultText(out), nil
}
