package helm

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/kagent-dev/kube-mcp/internal/logger"
	"github.com/kagent-dev/kube-mcp/internal/security"
	"github.com/kagent-dev/kube-mcp/internal/telemetry"
	"github.com/kagent-dev/kube-mcp/pkg/common"
)

// HelmTool runs helm against the cluster named in each request.
type HelmTool struct {
	helm common.CommandRunner
}

func NewHelmTool(helm common.CommandRunner) *HelmTool {
	return &HelmTool{helm: helm}
}

var listFilters = []struct {
	arg  string
	flag string
}{
	{"all", "-a"},
	{"uninstalled", "--uninstalled"},
	{"uninstalling", "--uninstalling"},
	{"failed", "--failed"},
	{"deployed", "--deployed"},
	{"pending", "--pending"},
}

// Helm list releases
func (h *HelmTool) handleHelmListReleases(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := []string{"list"}

	if common.GetBoolArg(request, "all_namespaces", false) {
		args = append(args, "-A")
	} else if namespace := mcp.ParseString(request, "namespace", ""); namespace != "" {
		if err := security.ValidateNamespace(namespace); err != nil {
			return common.InvalidArgument("namespace", err), nil
		}
		args = append(args, "-n", namespace)
	}

	for _, f := range listFilters {
		if common.GetBoolArg(request, f.arg, false) {
			args = append(args, f.flag)
		}
	}
	if filter := mcp.ParseString(request, "filter", ""); filter != "" {
		args = append(args, "-f", filter)
	}
	if output := mcp.ParseString(request, "output", ""); output != "" {
		args = append(args, "-o", output)
	}

	return common.RunCommand(ctx, h.helm, request, args...)
}

var releaseResources = map[string]bool{"all": true, "hooks": true, "manifest": true, "notes": true, "values": true}

// Helm get release
func (h *HelmTool) handleHelmGetRelease(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if errResult := common.RequireArgs(request, "name", "namespace"); errResult != nil {
		return errResult, nil
	}
	name := mcp.ParseString(request, "name", "")
	namespace := mcp.ParseString(request, "namespace", "")
	resource := mcp.ParseString(request, "resource", "all")

	if !releaseResources[resource] {
		return mcp.NewToolResultError(fmt.Sprintf("resource must be one of all, hooks, manifest, notes, values, got %q", resource)), nil
	}
	if err := security.ValidateHelmName(name); err != nil {
		return common.InvalidArgument("name", err), nil
	}
	if err := security.ValidateNamespace(namespace); err != nil {
		return common.InvalidArgument("namespace", err), nil
	}

	return common.RunCommand(ctx, h.helm, request, "get", resource, name, "-n", namespace)
}

// Repositories are local to the server, so no cluster is targeted.
func (h *HelmTool) handleHelmRepoUpdate(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	out, err := h.helm.Run(ctx, []string{"repo", "update"}, "")
	if err != nil {
		return common.ErrorResult(err), nil
	}
	return mcp.NewToolResultText(out), nil
}

func (h *HelmTool) handleHelmRepoAdd(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if errResult := common.RequireArgs(request, "name", "url"); errResult != nil {
		return errResult, nil
	}
	name := mcp.ParseString(request, "name", "")
	url := mcp.ParseString(request, "url", "")

	if err := security.ValidateHelmName(name); err != nil {
		return common.InvalidArgument("name", err), nil
	}
	if err := security.ValidateURL(url, "http", "https", "oci"); err != nil {
		return common.InvalidArgument("url", err), nil
	}

	out, err := h.helm.Run(ctx, []string{"repo", "add", name, url}, "")
	if err != nil {
		return common.ErrorResult(err), nil
	}
	return mcp.NewToolResultText(out), nil
}

// setValues accepts an array of key=value pairs or one comma separated string.
func setValues(request mcp.CallToolRequest) []string {
	if raw, ok := request.GetArguments()["set"].(string); ok {
		var out []string
		for _, kv := range strings.Split(raw, ",") {
			if kv = strings.TrimSpace(kv); kv != "" {
				out = append(out, kv)
			}
		}
		return out
	}
	return common.GetStringSliceArg(request, "set")
}

// Helm upgrade release
func (h *HelmTool) handleHelmUpgradeRelease(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if errResult := common.RequireArgs(request, "name", "chart"); errResult != nil {
		return errResult, nil
	}
	name := mcp.ParseString(request, "name", "")
	chart := mcp.ParseString(request, "chart", "")
	namespace := mcp.ParseString(request, "namespace", "")
	version := mcp.ParseString(request, "version", "")
	values := mcp.ParseString(request, "values", "")

	if err := security.ValidateHelmName(name); err != nil {
		return common.InvalidArgument("name", err), nil
	}
	if err := security.ValidateChartRef(chart); err != nil {
		return common.InvalidArgument("chart", err), nil
	}

	args := []string{"upgrade", name, chart}
	if namespace != "" {
		if err := security.ValidateNamespace(namespace); err != nil {
			return common.InvalidArgument("namespace", err), nil
		}
		args = append(args, "-n", namespace)
	}
	if version != "" {
		if strings.HasPrefix(version, "-") {
			return common.InvalidArgument("version", fmt.Errorf("must not start with '-'")), nil
		}
		args = append(args, "--version", version)
	}

	if values != "" {
		if err := security.ValidateYAML(values); err != nil {
			return common.InvalidArgument("values", err), nil
		}
		path, cleanup, err := writeValuesFile(values)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("Failed to write values file: %v", err)), nil
		}
		defer cleanup()
		args = append(args, "-f", path)
	}

	for _, kv := range setValues(request) {
		if strings.HasPrefix(kv, "-") || !strings.Contains(kv, "=") {
			return common.InvalidArgument("set", fmt.Errorf("%q is not a key=value pair", kv)), nil
		}
		args = append(args, "--set", kv)
	}

	if common.GetBoolArg(request, "install", false) {
		args = append(args, "--install")
	}
	if common.GetBoolArg(request, "create_namespace", false) {
		args = append(args, "--create-namespace")
	}
	if common.GetBoolArg(request, "dry_run", false) {
		args = append(args, "--dry-run")
	}
	if common.GetBoolArg(request, "wait", false) {
		args = append(args, "--wait")
	}

	return common.RunCommand(ctx, h.helm, request, args...)
}

func writeValuesFile(values string) (string, func(), error) {
	tmpFile, err := os.CreateTemp("", "helm-values-*.yaml")
	if err != nil {
		return "", nil, err
	}
	cleanup := func() {
		if err := os.Remove(tmpFile.Name()); err != nil {
			logger.Get().Error("Failed to remove temporary file", "error", err, "file", tmpFile.Name())
		}
	}
	if err := tmpFile.Chmod(0o600); err != nil {
		_ = tmpFile.Close()
		cleanup()
		return "", nil, err
	}
	if _, err := tmpFile.WriteString(values); err != nil {
		_ = tmpFile.Close()
		cleanup()
		return "", nil, err
	}
	if err := tmpFile.Close(); err != nil {
		cleanup()
		return "", nil, err
	}
	return tmpFile.Name(), cleanup, nil
}

// Helm uninstall release
func (h *HelmTool) handleHelmUninstall(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if errResult := common.RequireArgs(request, "name", "namespace"); errResult != nil {
		return errResult, nil
	}
	name := mcp.ParseString(request, "name", "")
	namespace := mcp.ParseString(request, "namespace", "")
	if err := security.ValidateHelmName(name); err != nil {
		return common.InvalidArgument("name", err), nil
	}
	if err := security.ValidateNamespace(namespace); err != nil {
		return common.InvalidArgument("namespace", err), nil
	}

	args := []string{"uninstall", name, "-n", namespace}
	if common.GetBoolArg(request, "dry_run", false) {
		args = append(args, "--dry-run")
	}
	if common.GetBoolArg(request, "wait", false) {
		args = append(args, "--wait")
	}
	return common.RunCommand(ctx, h.helm, request, args...)
}

func addTool(s *server.MCPServer, tool mcp.Tool, handler telemetry.ToolHandler) {
	s.AddTool(tool, telemetry.AdaptToolHandler(telemetry.WithTracing(tool.Name, handler)))
}

// Register Helm tools
func RegisterTools(s *server.MCPServer, helm common.CommandRunner, readOnly bool) {
	logger.Get().Info("Registering Helm tools", "read_only", readOnly)
	h := NewHelmTool(helm)

	// Read-only tools - always registered
	addTool(s, mcp.NewTool("helm_list_releases",
		mcp.WithDescription("List Helm releases in a namespace"),
		mcp.WithString("namespace", mcp.Description("The namespace to list releases from")),
		mcp.WithBoolean("all_namespaces", mcp.Description("List releases from all namespaces")),
		mcp.WithBoolean("all", mcp.Description("Show all releases without any filter applied")),
		mcp.WithBoolean("uninstalled", mcp.Description("List uninstalled releases")),
		mcp.WithBoolean("uninstalling", mcp.Description("List uninstalling releases")),
		mcp.WithBoolean("failed", mcp.Description("List failed releases")),
		mcp.WithBoolean("deployed", mcp.Description("List deployed releases")),
		mcp.WithBoolean("pending", mcp.Description("List pending releases")),
		mcp.WithString("filter", mcp.Description("A regular expression to filter releases by")),
		mcp.WithString("output", mcp.Description("The output format"), mcp.Enum("table", "json", "yaml")),
		common.WithCluster(),
	), h.handleHelmListReleases)

	addTool(s, mcp.NewTool("helm_get_release",
		mcp.WithDescription("Get extended information about a Helm release"),
		mcp.WithString("name", mcp.Description("The name of the release"), mcp.Required()),
		mcp.WithString("namespace", mcp.Description("The namespace of the release"), mcp.Required()),
		mcp.WithString("resource", mcp.Description("The resource to get (default: all)"),
			mcp.Enum("all", "hooks", "manifest", "notes", "values")),
		common.WithCluster(),
	), h.handleHelmGetRelease)

	addTool(s, mcp.NewTool("helm_repo_update",
		mcp.WithDescription("Update information of available charts locally from chart repositories"),
	), h.handleHelmRepoUpdate)

	// Write tools - only registered when not in read-only mode
	if readOnly {
		return
	}

	addTool(s, mcp.NewTool("helm_upgrade",
		mcp.WithDescription("Upgrade or install a Helm release"),
		mcp.WithString("name", mcp.Description("The name of the release"), mcp.Required()),
		mcp.WithString("chart", mcp.Description("The chart to install or upgrade to (repo/chart, path or oci:// reference)"), mcp.Required()),
		mcp.WithString("namespace", mcp.Description("The namespace of the release")),
		mcp.WithString("version", mcp.Description("The version of the chart to upgrade to")),
		mcp.WithString("values", mcp.Description("Values as YAML content")),
		mcp.WithArray("set", mcp.WithStringItems(), mcp.Description("Values set on the command line, e.g. ['image.tag=1.2']")),
		mcp.WithBoolean("install", mcp.Description("Run an install if the release is not present")),
		mcp.WithBoolean("create_namespace", mcp.Description("Create the release namespace if it does not exist")),
		mcp.WithBoolean("dry_run", mcp.Description("Simulate an upgrade")),
		mcp.WithBoolean("wait", mcp.Description("Wait for the upgrade to complete")),
		common.WithCluster(),
	), h.handleHelmUpgradeRelease)

	addTool(s, mcp.NewTool("helm_uninstall",
		mcp.WithDescription("Uninstall a Helm release"),
		mcp.WithString("name", mcp.Description("The name of the release to uninstall"), mcp.Required()),
		mcp.WithString("namespace", mcp.Description("The namespace of the release"), mcp.Required()),
		mcp.WithBoolean("dry_run", mcp.Description("Simulate an uninstall")),
		mcp.WithBoolean("wait", mcp.Description("Wait for the uninstall to complete")),
		common.WithCluster(),
	), h.handleHelmUninstall)

	addTool(s, mcp.NewTool("helm_repo_add",
		mcp.WithDescription("Add a Helm repository"),
		mcp.WithString("name", mcp.Description("The name of the repository"), mcp.Required()),
		mcp.WithString("url", mcp.Description("The URL of the repository"), mcp.Required()),
	), h.handleHelmRepoAdd)
}
