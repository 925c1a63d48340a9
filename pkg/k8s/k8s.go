package k8s

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/kagent-dev/kube-mcp/internal/logger"
	"github.com/kagent-dev/kube-mcp/internal/output"
	"github.com/kagent-dev/kube-mcp/internal/security"
	"github.com/kagent-dev/kube-mcp/internal/telemetry"
	"github.com/kagent-dev/kube-mcp/internal/yqutil"
	"github.com/kagent-dev/kube-mcp/pkg/common"
)

// K8sTool runs kubectl against the cluster named in each request.
type K8sTool struct {
	kubectl     common.CommandRunner
	defaultMode output.Mode
}

func NewK8sTool(kubectl common.CommandRunner, defaultMode output.Mode) *K8sTool {
	return &K8sTool{kubectl: kubectl, defaultMode: output.ModeOrDefault(string(defaultMode))}
}

func (k *K8sTool) run(ctx context.Context, request mcp.CallToolRequest, args ...string) (*mcp.CallToolResult, error) {
	return common.RunCommand(ctx, k.kubectl, request, args...)
}

// namespaceArgs validates namespace and returns the matching kubectl flags.
func namespaceArgs(namespace string, allNamespaces bool) ([]string, *mcp.CallToolResult) {
	if allNamespaces {
		return []string{"--all-namespaces"}, nil
	}
	if namespace == "" {
		return nil, nil
	}
	if err := security.ValidateNamespace(namespace); err != nil {
		return nil, common.InvalidArgument("namespace", err)
	}
	return []string{"-n", namespace}, nil
}

// Enhanced kubectl get
func (k *K8sTool) handleKubectlGetEnhanced(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	resourceType := mcp.ParseString(request, "resource_type", "")
	resourceName := mcp.ParseString(request, "resource_name", "")
	namespace := mcp.ParseString(request, "namespace", "")
	allNamespaces := common.GetBoolArg(request, "all_namespaces", false)
	labelSelector := mcp.ParseString(request, "label_selector", "")
	format := mcp.ParseString(request, "output", "json")
	modeArg := mcp.ParseString(request, "output_mode", "")
	summary := common.GetBoolArg(request, "summary", false)
	expressions := common.GetStringSliceArg(request, "yq_expressions")

	if resourceType == "" {
		return mcp.NewToolResultError("resource_type parameter is required"), nil
	}
	if err := security.ValidateResourceType(resourceType); err != nil {
		return common.InvalidArgument("resource_type", err), nil
	}

	structured := format == "json" || format == "yaml"
	if !structured && (summary || modeArg != "" || len(expressions) > 0) {
		return mcp.NewToolResultError("output_mode, summary and yq_expressions require output json or yaml"), nil
	}

	mode := k.defaultMode
	if modeArg != "" {
		m, err := output.ParseMode(modeArg)
		if err != nil {
			return common.InvalidArgument("output_mode", err), nil
		}
		mode = m
	}

	args := []string{"get", resourceType}
	if resourceName != "" {
		if err := security.ValidateResourceName(resourceName); err != nil {
			return common.InvalidArgument("resource_name", err), nil
		}
		args = append(args, resourceName)
	}
	nsArgs, errResult := namespaceArgs(namespace, allNamespaces)
	if errResult != nil {
		return errResult, nil
	}
	args = append(args, nsArgs...)
	if labelSelector != "" {
		if err := security.ValidateLabelSelector(labelSelector); err != nil {
			return common.InvalidArgument("label_selector", err), nil
		}
		args = append(args, "-l", labelSelector)
	}

	if !structured {
		return k.run(ctx, request, append(args, "-o", format)...)
	}

	raw, err := k.kubectl.Run(ctx, append(args, "-o", "json"), mcp.ParseString(request, common.ClusterArg, ""))
	if err != nil {
		return common.ErrorResult(err), nil
	}

	renderFormat := output.FormatJSON
	if format == "yaml" || len(expressions) > 0 {
		renderFormat = output.FormatYAML
	}
	rendered, err := output.Process(raw, output.Options{Mode: mode, Summary: summary, Format: renderFormat})
	if err != nil {
		logger.WithContext(ctx).Warn("kubectl output is not a JSON object, returning it unprocessed", "error", err)
		return mcp.NewToolResultText(raw), nil
	}

	if len(expressions) > 0 {
		rendered, err = yqutil.Apply(rendered, expressions)
		if err != nil {
			return common.InvalidArgument("yq_expressions", err), nil
		}
	}
	return mcp.NewToolResultText(rendered), nil
}

func (k *K8sTool) handleDescribeResource(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if errResult := common.RequireArgs(request, "resource_type", "resource_name"); errResult != nil {
		return errResult, nil
	}
	resourceType := mcp.ParseString(request, "resource_type", "")
	resourceName := mcp.ParseString(request, "resource_name", "")
	if err := security.ValidateResourceType(resourceType); err != nil {
		return common.InvalidArgument("resource_type", err), nil
	}
	if err := security.ValidateResourceName(resourceName); err != nil {
		return common.InvalidArgument("resource_name", err), nil
	}

	args := []string{"describe", resourceType, resourceName}
	nsArgs, errResult := namespaceArgs(mcp.ParseString(request, "namespace", ""), false)
	if errResult != nil {
		return errResult, nil
	}
	return k.run(ctx, request, append(args, nsArgs...)...)
}

// Get pod logs
func (k *K8sTool) handleKubectlLogsEnhanced(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	podName := mcp.ParseString(request, "pod_name", "")
	namespace := mcp.ParseString(request, "namespace", "default")
	container := mcp.ParseString(request, "container", "")
	tailLines := mcp.ParseInt(request, "tail_lines", 50)
	previous := common.GetBoolArg(request, "previous", false)

	if podName == "" {
		return mcp.NewToolResultError("pod_name parameter is required"), nil
	}
	if err := security.ValidateResourceName(podName); err != nil {
		return common.InvalidArgument("pod_name", err), nil
	}

	args := []string{"logs", podName}
	nsArgs, errResult := namespaceArgs(namespace, false)
	if errResult != nil {
		return errResult, nil
	}
	args = append(args, nsArgs...)

	if container != "" {
		if err := security.ValidateResourceName(container); err != nil {
			return common.InvalidArgument("container", err), nil
		}
		args = append(args, "-c", container)
	}
	if tailLines > 0 {
		args = append(args, "--tail", strconv.Itoa(tailLines))
	}
	if previous {
		args = append(args, "--previous")
	}
	return k.run(ctx, request, args...)
}

func (k *K8sTool) handleGetEvents(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := []string{"get", "events"}
	nsArgs, errResult := namespaceArgs(mcp.ParseString(request, "namespace", ""), common.GetBoolArg(request, "all_namespaces", false))
	if errResult != nil {
		return errResult, nil
	}
	args = append(args, nsArgs...)
	if fieldSelector := mcp.ParseString(request, "field_selector", ""); fieldSelector != "" {
		args = append(args, "--field-selector", fieldSelector)
	}
	return k.run(ctx, request, append(args, "--sort-by=.lastTimestamp")...)
}

func (k *K8sTool) handleGetAvailableAPIResources(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return k.run(ctx, request, "api-resources")
}

func (k *K8sTool) handleGetClusterInfo(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return k.run(ctx, request, "cluster-info")
}

// Rollout status is polled once; waiting for completion is left to the caller.
func (k *K8sTool) handleRolloutStatus(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, errResult := rolloutTarget(request, "status")
	if errResult != nil {
		return errResult, nil
	}
	return k.run(ctx, request, append(args, "--watch=false")...)
}

func (k *K8sTool) handleRolloutRestart(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, errResult := rolloutTarget(request, "restart")
	if errResult != nil {
		return errResult, nil
	}
	return k.run(ctx, request, args...)
}

func rolloutTarget(request mcp.CallToolRequest, action string) ([]string, *mcp.CallToolResult) {
	resourceType := mcp.ParseString(request, "resource_type", "deployment")
	resourceName := mcp.ParseString(request, "resource_name", "")
	if resourceName == "" {
		return nil, mcp.NewToolResultError("resource_name parameter is required")
	}
	if err := security.ValidateResourceType(resourceType); err != nil {
		return nil, common.InvalidArgument("resource_type", err)
	}
	if err := security.ValidateResourceName(resourceName); err != nil {
		return nil, common.InvalidArgument("resource_name", err)
	}
	args := []string{"rollout", action, resourceType + "/" + resourceName}
	nsArgs, errResult := namespaceArgs(mcp.ParseString(request, "namespace", ""), false)
	if errResult != nil {
		return nil, errResult
	}
	return append(args, nsArgs...), nil
}

// Scale a scalable resource
func (k *K8sTool) handleScale(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	resourceType := mcp.ParseString(request, "resource_type", "deployment")
	resourceName := mcp.ParseString(request, "resource_name", "")
	replicas := mcp.ParseInt(request, "replicas", -1)

	if resourceName == "" {
		return mcp.NewToolResultError("resource_name parameter is required"), nil
	}
	if replicas < 0 {
		return mcp.NewToolResultError("replicas parameter is required and must be >= 0"), nil
	}
	if err := security.ValidateResourceType(resourceType); err != nil {
		return common.InvalidArgument("resource_type", err), nil
	}
	if err := security.ValidateResourceName(resourceName); err != nil {
		return common.InvalidArgument("resource_name", err), nil
	}

	args := []string{"scale", resourceType, resourceName, "--replicas", strconv.Itoa(replicas)}
	nsArgs, errResult := namespaceArgs(mcp.ParseString(request, "namespace", ""), false)
	if errResult != nil {
		return errResult, nil
	}
	return k.run(ctx, request, append(args, nsArgs...)...)
}

func (k *K8sTool) handleDeleteResource(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if errResult := common.RequireArgs(request, "resource_type", "resource_name"); errResult != nil {
		return errResult, nil
	}
	resourceType := mcp.ParseString(request, "resource_type", "")
	resourceName := mcp.ParseString(request, "resource_name", "")
	if err := security.ValidateResourceType(resourceType); err != nil {
		return common.InvalidArgument("resource_type", err), nil
	}
	if err := security.ValidateResourceName(resourceName); err != nil {
		return common.InvalidArgument("resource_name", err), nil
	}

	args := []string{"delete", resourceType, resourceName}
	nsArgs, errResult := namespaceArgs(mcp.ParseString(request, "namespace", ""), false)
	if errResult != nil {
		return errResult, nil
	}
	return k.run(ctx, request, append(args, nsArgs...)...)
}

var patchTypes = map[string]bool{"strategic": true, "merge": true, "json": true}

// Patch resource
func (k *K8sTool) handlePatchResource(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if errResult := common.RequireArgs(request, "resource_type", "resource_name", "patch"); errResult != nil {
		return errResult, nil
	}
	resourceType := mcp.ParseString(request, "resource_type", "")
	resourceName := mcp.ParseString(request, "resource_name", "")
	patch := mcp.ParseString(request, "patch", "")
	patchType := mcp.ParseString(request, "patch_type", "strategic")

	if err := security.ValidateResourceType(resourceType); err != nil {
		return common.InvalidArgument("resource_type", err), nil
	}
	if err := security.ValidateResourceName(resourceName); err != nil {
		return common.InvalidArgument("resource_name", err), nil
	}
	if !patchTypes[patchType] {
		return mcp.NewToolResultError(fmt.Sprintf("patch_type must be strategic, merge or json, got %q", patchType)), nil
	}
	if err := security.ValidateYAML(patch); err != nil {
		return common.InvalidArgument("patch", err), nil
	}

	args := []string{"patch", resourceType, resourceName, "--type", patchType, "-p", patch}
	nsArgs, errResult := namespaceArgs(mcp.ParseString(request, "namespace", ""), false)
	if errResult != nil {
		return errResult, nil
	}
	return k.run(ctx, request, append(args, nsArgs...)...)
}

// Apply manifest from content
func (k *K8sTool) handleApplyManifest(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	manifest := mcp.ParseString(request, "manifest", "")
	if manifest == "" {
		return mcp.NewToolResultError("manifest parameter is required"), nil
	}
	if err := security.ValidateYAML(manifest); err != nil {
		return common.InvalidArgument("manifest", err), nil
	}

	tmpFile, err := os.CreateTemp("", "k8s-manifest-*.yaml")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to create temp file: %v", err)), nil
	}
	defer func() {
		if removeErr := os.Remove(tmpFile.Name()); removeErr != nil {
			logger.Get().Error("Failed to remove temporary file", "error", removeErr, "file", tmpFile.Name())
		}
	}()

	if err := os.Chmod(tmpFile.Name(), 0o600); err != nil {
		_ = tmpFile.Close()
		return mcp.NewToolResultError(fmt.Sprintf("Failed to set file permissions: %v", err)), nil
	}
	if _, err := tmpFile.WriteString(manifest); err != nil {
		_ = tmpFile.Close()
		return mcp.NewToolResultError(fmt.Sprintf("Failed to write to temp file: %v", err)), nil
	}
	if err := tmpFile.Close(); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to close temp file: %v", err)), nil
	}

	return k.run(ctx, request, "apply", "-f", tmpFile.Name())
}

func addTool(s *server.MCPServer, tool mcp.Tool, handler telemetry.ToolHandler) {
	s.AddTool(tool, telemetry.AdaptToolHandler(telemetry.WithTracing(tool.Name, handler)))
}

// RegisterTools registers the kubectl tools. Write tools are skipped in read-only mode.
func RegisterTools(s *server.MCPServer, kubectl common.CommandRunner, defaultMode output.Mode, readOnly bool) {
	logger.Get().Info("Registering Kubernetes tools", "read_only", readOnly, "output_mode", defaultMode)
	k := NewK8sTool(kubectl, defaultMode)

	addTool(s, mcp.NewTool("k8s_get_resources",
		mcp.WithDescription("Get Kubernetes resources using kubectl. JSON and YAML output is reduced according to output_mode."),
		mcp.WithString("resource_type", mcp.Description("Type of resource (pod, service, deployment, etc.)"), mcp.Required()),
		mcp.WithString("resource_name", mcp.Description("Name of specific resource (optional)")),
		mcp.WithString("namespace", mcp.Description("Namespace to query (optional)")),
		mcp.WithBoolean("all_namespaces", mcp.Description("Query all namespaces")),
		mcp.WithString("label_selector", mcp.Description("Label selector, e.g. app=web or env in (prod,staging)")),
		mcp.WithString("output", mcp.Description("Output format (json, yaml, wide, name). Default json")),
		mcp.WithString("output_mode", mcp.Description("Verbosity of json/yaml output"), mcp.Enum("compact", "normal", "verbose")),
		mcp.WithBoolean("summary", mcp.Description("Return a per-kind one-line summary instead of the resource")),
		mcp.WithArray("yq_expressions", mcp.WithStringItems(),
			mcp.Description("yq expressions applied in order to the YAML form of the result, e.g. '.items[].metadata.name'")),
		common.WithCluster(),
	), k.handleKubectlGetEnhanced)

	addTool(s, mcp.NewTool("k8s_describe_resource",
		mcp.WithDescription("Describe a Kubernetes resource"),
		mcp.WithString("resource_type", mcp.Description("Type of resource"), mcp.Required()),
		mcp.WithString("resource_name", mcp.Description("Name of the resource"), mcp.Required()),
		mcp.WithString("namespace", mcp.Description("Namespace of the resource (optional)")),
		common.WithCluster(),
	), k.handleDescribeResource)

	addTool(s, mcp.NewTool("k8s_get_pod_logs",
		mcp.WithDescription("Get logs from a Kubernetes pod"),
		mcp.WithString("pod_name", mcp.Description("Name of the pod"), mcp.Required()),
		mcp.WithString("namespace", mcp.Description("Namespace of the pod (default: default)")),
		mcp.WithString("container", mcp.Description("Container name (for multi-container pods)")),
		mcp.WithNumber("tail_lines", mcp.Description("Number of lines to show from the end (default: 50)")),
		mcp.WithBoolean("previous", mcp.Description("Show logs of the previous container instance")),
		common.WithCluster(),
	), k.handleKubectlLogsEnhanced)

	addTool(s, mcp.NewTool("k8s_get_events",
		mcp.WithDescription("Get Kubernetes events sorted by time"),
		mcp.WithString("namespace", mcp.Description("Namespace to query (optional)")),
		mcp.WithBoolean("all_namespaces", mcp.Description("Query all namespaces")),
		mcp.WithString("field_selector", mcp.Description("Field selector, e.g. involvedObject.name=web-0")),
		common.WithCluster(),
	), k.handleGetEvents)

	addTool(s, mcp.NewTool("k8s_get_available_api_resources",
		mcp.WithDescription("List the API resources the cluster serves"),
		common.WithCluster(),
	), k.handleGetAvailableAPIResources)

	addTool(s, mcp.NewTool("k8s_get_cluster_info",
		mcp.WithDescription("Show control plane endpoints of the cluster"),
		common.WithCluster(),
	), k.handleGetClusterInfo)

	addTool(s, mcp.NewTool("k8s_rollout_status",
		mcp.WithDescription("Show the current rollout status of a workload without waiting"),
		mcp.WithString("resource_type", mcp.Description("deployment, daemonset or statefulset (default: deployment)")),
		mcp.WithString("resource_name", mcp.Description("Name of the workload"), mcp.Required()),
		mcp.WithString("namespace", mcp.Description("Namespace of the workload (optional)")),
		common.WithCluster(),
	), k.handleRolloutStatus)

	if readOnly {
		return
	}

	addTool(s, mcp.NewTool("k8s_apply_manifest",
		mcp.WithDescription("Apply a YAML manifest to the Kubernetes cluster"),
		mcp.WithString("manifest", mcp.Description("YAML manifest content"), mcp.Required()),
		common.WithCluster(),
	), k.handleApplyManifest)

	addTool(s, mcp.NewTool("k8s_scale",
		mcp.WithDescription("Scale a Kubernetes workload"),
		mcp.WithString("resource_type", mcp.Description("Type of resource (default: deployment)")),
		mcp.WithString("resource_name", mcp.Description("Name of the resource"), mcp.Required()),
		mcp.WithNumber("replicas", mcp.Description("Number of replicas"), mcp.Required()),
		mcp.WithString("namespace", mcp.Description("Namespace of the resource (optional)")),
		common.WithCluster(),
	), k.handleScale)

	addTool(s, mcp.NewTool("k8s_delete_resource",
		mcp.WithDescription("Delete a Kubernetes resource"),
		mcp.WithString("resource_type", mcp.Description("Type of resource"), mcp.Required()),
		mcp.WithString("resource_name", mcp.Description("Name of the resource"), mcp.Required()),
		mcp.WithString("namespace", mcp.Description("Namespace of the resource (optional)")),
		common.WithCluster(),
	), k.handleDeleteResource)

	addTool(s, mcp.NewTool("k8s_patch_resource",
		mcp.WithDescription("Patch a Kubernetes resource"),
		mcp.WithString("resource_type", mcp.Description("Type of resource"), mcp.Required()),
		mcp.WithString("resource_name", mcp.Description("Name of the resource"), mcp.Required()),
		mcp.WithString("patch", mcp.Description("Patch document (JSON or YAML)"), mcp.Required()),
		mcp.WithString("patch_type", mcp.Description("Patch strategy"), mcp.Enum("strategic", "merge", "json")),
		mcp.WithString("namespace", mcp.Description("Namespace of the resource (optional)")),
		common.WithCluster(),
	), k.handlePatchResource)

	addTool(s, mcp.NewTool("k8s_rollout_restart",
		mcp.WithDescription("Restart the pods of a workload"),
		mcp.WithString("resource_type", mcp.Description("deployment, daemonset or statefulset (default: deployment)")),
		mcp.WithString("resource_name", mcp.Description("Name of the workload"), mcp.Required()),
		mcp.WithString("namespace", mcp.Description("Namespace of the workload (optional)")),
		common.WithCluster(),
	), k.handleRolloutRestart)
}
