package cluster

import (
	"sort"

	"k8s.io/client-go/tools/clientcmd"

	toolerrors "github.com/kagent-dev/kube-mcp/internal/errors"
)

// KubeContext is one context entry of a kubeconfig file.
type KubeContext struct {
	Name      string `json:"name"`
	Cluster   string `json:"cluster"`
	User      string `json:"user"`
	Namespace string `json:"namespace,omitempty"`
	Current   bool   `json:"current"`
}

// ListContexts reads the contexts of a local cluster's kubeconfig.
func (r *Registry) ListContexts(clusterID string) ([]KubeContext, error) {
	d, err := r.GetCluster(clusterID)
	if err != nil {
		return nil, err
	}
	if d.Kind != KindLocal {
		return nil, toolerrors.NewInvalidArgumentsError("cluster %q is %s, contexts are only listed for local clusters", d.ID, d.Kind)
	}
	return ReadKubeconfigContexts(d.KubeconfigPath)
}

// ReadKubeconfigContexts parses path with clientcmd and returns its contexts sorted by name.
func ReadKubeconfigContexts(path string) ([]KubeContext, error) {
	cfg, err := clientcmd.LoadFromFile(path)
	if err != nil {
		return nil, toolerrors.NewNotFoundError("cannot read kubeconfig %s: %v", path, err)
	}

	out := make([]KubeContext, 0, len(cfg.Contexts))
	for name, c := range cfg.Contexts {
		out = append(out, KubeContext{
			Name:      name,
			Cluster:   c.Cluster,
			User:      c.AuthInfo,
			Namespace: c.Namespace,
			Current:   name == cfg.CurrentContext,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}
