package cluster

import (
	"strings"

	"github.com/kagent-dev/kube-mcp/internal/commands"
	toolerrors "github.com/kagent-dev/kube-mcp/internal/errors"
)

const kubeconfigFlag = "--kubeconfig"

var _ commands.ContextInjector = (*Registry)(nil)

// InjectContext prefixes args with the flags that target clusterID.
//
// args is returned as-is when clusterID is empty or when the caller already
// passed contextFlag or --kubeconfig. Unknown or invalid clusters yield an
// InvalidClusterConfig error.
func (r *Registry) InjectContext(args []string, clusterID, contextFlag string) ([]string, error) {
	if clusterID == "" {
		return args, nil
	}
	if containsFlag(args, contextFlag) || containsFlag(args, kubeconfigFlag) {
		return args, nil
	}

	d, err := r.GetCluster(clusterID)
	if err != nil {
		return nil, toolerrors.NewInvalidClusterConfigError(clusterID, err)
	}
	if err := d.Validate(); err != nil {
		return nil, toolerrors.NewInvalidClusterConfigError(clusterID, err)
	}

	prefix := make([]string, 0, 4)
	switch d.Kind {
	case KindLocal:
		if d.KubeconfigPath != "" {
			prefix = append(prefix, kubeconfigFlag, d.KubeconfigPath)
		}
		if d.Context != "" {
			prefix = append(prefix, contextFlag, d.Context)
		}
	case KindGKE:
		prefix = append(prefix, contextFlag, d.GKEContextName())
	}

	return append(prefix, args...), nil
}

func containsFlag(args []string, flag string) bool {
	for _, a := range args {
		if a == flag || strings.HasPrefix(a, flag+"=") {
			return true
		}
	}
	return false
}
