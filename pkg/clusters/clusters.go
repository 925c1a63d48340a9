// Package clusters exposes the cluster registry as MCP tools.
package clusters

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/kagent-dev/kube-mcp/internal/cluster"
	"github.com/kagent-dev/kube-mcp/internal/logger"
	"github.com/kagent-dev/kube-mcp/internal/output"
	"github.com/kagent-dev/kube-mcp/internal/telemetry"
	"github.com/kagent-dev/kube-mcp/internal/yqutil"
	"github.com/kagent-dev/kube-mcp/pkg/common"
)

// ClusterTool serves registry queries and switches.
type ClusterTool struct {
	registry *cluster.Registry
}

func NewClusterTool(registry *cluster.Registry) *ClusterTool {
	return &ClusterTool{registry: registry}
}

// clusterView is a descriptor annotated with its role in the registry.
type clusterView struct {
	cluster.Descriptor
	Default bool `json:"default"`
	Current bool `json:"current"`
}

func (c *ClusterTool) view(d cluster.Descriptor) clusterView {
	return clusterView{
		Descriptor: d,
		Default:    d.ID == c.registry.DefaultClusterID(),
		Current:    d.ID == c.registry.GetCurrentCluster(),
	}
}

// render serializes v in the requested format and applies any yq expressions.
func render(request mcp.CallToolRequest, v any) *mcp.CallToolResult {
	format := output.Format(mcp.ParseString(request, "output", string(output.FormatJSON)))
	expressions := common.GetStringSliceArg(request, "yq_expressions")
	if len(expressions) > 0 {
		format = output.FormatYAML
	}

	text, err := output.Render(v, format)
	if err != nil {
		return common.InvalidArgument("output", err)
	}
	if len(expressions) > 0 {
		text, err = yqutil.Apply(text, expressions)
		if err != nil {
			return common.InvalidArgument("yq_expressions", err)
		}
	}
	return mcp.NewToolResultText(text)
}

func (c *ClusterTool) handleList(_ context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	descriptors := c.registry.List()
	views := make([]clusterView, 0, len(descriptors))
	for _, d := range descriptors {
		views = append(views, c.view(d))
	}
	return render(request, map[string]any{"clusters": views}), nil
}

func (c *ClusterTool) handleCurrent(_ context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	d, err := c.registry.GetCluster(c.registry.GetCurrentCluster())
	if err != nil {
		return common.ErrorResult(err), nil
	}
	return render(request, c.view(d)), nil
}

func (c *ClusterTool) handleStats(_ context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return render(request, c.registry.Stats()), nil
}

// Contexts are read from the kubeconfig of a local cluster, the default one when omitted.
func (c *ClusterTool) handleListContexts(_ context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	contexts, err := c.registry.ListContexts(mcp.ParseString(request, common.ClusterArg, ""))
	if err != nil {
		return common.ErrorResult(err), nil
	}
	return render(request, map[string]any{"contexts": contexts}), nil
}

func (c *ClusterTool) handleSwitch(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if errResult := common.RequireArgs(request, "cluster_id"); errResult != nil {
		return errResult, nil
	}
	id := mcp.ParseString(request, "cluster_id", "")

	d, err := c.registry.SwitchToCluster(ctx, id)
	if err != nil {
		return common.ErrorResult(err), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Switched to cluster %s (%s, %s)", d.ID, d.DisplayName(), d.Kind)), nil
}

func (c *ClusterTool) handleReload(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if err := c.registry.Reload(); err != nil {
		return common.ErrorResult(err), nil
	}
	stats := c.registry.Stats()
	logger.WithContext(ctx).Info("cluster configuration reloaded on request", "clusters", stats.Total)
	return mcp.NewToolResultText(fmt.Sprintf("Reloaded %d clusters from %s", stats.Total, stats.Source)), nil
}

func withRenderOptions() []mcp.ToolOption {
	return []mcp.ToolOption{
		mcp.WithString("output", mcp.Description("Output format (default: json)"), mcp.Enum("json", "yaml")),
		mcp.WithArray("yq_expressions", mcp.WithStringItems(),
			mcp.Description("yq expressions applied in order to the YAML form of the result")),
	}
}

func addTool(s *server.MCPServer, tool mcp.Tool, handler telemetry.ToolHandler) {
	s.AddTool(tool, telemetry.AdaptToolHandler(telemetry.WithTracing(tool.Name, handler)))
}

func newTool(name, description string, opts ...mcp.ToolOption) mcp.Tool {
	return mcp.NewTool(name, append([]mcp.ToolOption{mcp.WithDescription(description)}, opts...)...)
}

// RegisterTools registers the registry tools. Switching and reloading are skipped in read-only mode.
func RegisterTools(s *server.MCPServer, registry *cluster.Registry, readOnly bool) {
	logger.Get().Info("Registering cluster tools", "read_only", readOnly)
	c := NewClusterTool(registry)

	addTool(s, newTool("cluster_list",
		"List the clusters tools can target through their cluster argument",
		withRenderOptions()...), c.handleList)

	addTool(s, newTool("cluster_current",
		"Show the current cluster",
		withRenderOptions()...), c.handleCurrent)

	addTool(s, newTool("cluster_stats",
		"Show cluster counts by type, the default and current cluster and the configuration source",
		withRenderOptions()...), c.handleStats)

	addTool(s, newTool("cluster_list_contexts",
		"List the kubeconfig contexts of a local cluster",
		append(withRenderOptions(), common.WithCluster())...), c.handleListContexts)

	if readOnly {
		return
	}

	addTool(s, newTool("cluster_switch",
		"Make a cluster current. GKE clusters are authenticated with gcloud first",
		mcp.WithString("cluster_id", mcp.Description("Cluster id from cluster_list"), mcp.Required()),
	), c.handleSwitch)

	addTool(s, newTool("cluster_reload",
		"Re-read the cluster configuration file. The previous configuration is kept when the file is invalid",
	), c.handleReload)
}
