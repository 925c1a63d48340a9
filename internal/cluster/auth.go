package cluster

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/kagent-dev/kube-mcp/internal/commands"
	toolerrors "github.com/kagent-dev/kube-mcp/internal/errors"
	"github.com/kagent-dev/kube-mcp/internal/logger"
	"github.com/kagent-dev/kube-mcp/internal/metrics"
)

// GKE authentication steps, in execution order.
const (
	StepActivateServiceAccount = "activate-service-account"
	StepGetCredentials         = "get-credentials"
	StepClusterInfo            = "cluster-info"
)

type authStep struct {
	name    string
	program string
	args    []string
}

func gkeAuthSteps(d Descriptor) []authStep {
	return []authStep{
		{StepActivateServiceAccount, "gcloud", []string{"auth", "activate-service-account", "--key-file", d.KeyFile}},
		{StepGetCredentials, "gcloud", []string{"container", "clusters", "get-credentials", d.ClusterName, "--region", d.Region, "--project", d.Project}},
		{StepClusterInfo, "kubectl", []string{"cluster-info", "--context", d.GKEContextName()}},
	}
}

// AuthenticateGKE runs the gcloud credential steps for d and, on success,
// makes it the current cluster. Local descriptors are a no-op.
func (r *Registry) AuthenticateGKE(ctx context.Context, d Descriptor) error {
	if d.Kind != KindGKE {
		return nil
	}
	log := logger.WithContext(ctx).With("cluster", d.ID)

	if _, err := os.Stat(d.KeyFile); err != nil {
		metrics.ClusterAuthenticationsTotal.WithLabelValues(d.ID, "failure").Inc()
		if errors.Is(err, fs.ErrNotExist) {
			err = fmt.Errorf("service account key file %s does not exist", d.KeyFile)
		}
		return toolerrors.NewExecutionError("gcloud", err).WithContext("cluster", d.ID)
	}

	timeout := r.snapshot().gkeAuthTimeout
	for _, step := range gkeAuthSteps(d) {
		log.Info("running GKE authentication step", "step", step.name)
		// The raw builder is used so no cluster context is injected into these calls.
		_, err := commands.NewCommandBuilder(step.program).
			WithArgs(step.args...).
			WithTimeout(timeout).
			WithCaller("cluster.AuthenticateGKE/" + step.name).
			Execute(ctx)
		if err != nil {
			metrics.ClusterAuthenticationsTotal.WithLabelValues(d.ID, "failure").Inc()
			return toolerrors.NewAuthenticationError(d.ID, step.name, err)
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.ClusterExists(d.ID) {
		return toolerrors.NewNotFoundError("cluster %q was removed during authentication", d.ID)
	}
	r.setCurrent(d.ID)
	metrics.ClusterAuthenticationsTotal.WithLabelValues(d.ID, "success").Inc()
	log.Info("GKE authentication complete", "context", d.GKEContextName())
	return nil
}

func (r *Registry) activateLocal(ctx context.Context, d Descriptor) error {
	if _, err := os.Stat(d.KubeconfigPath); err != nil {
		return toolerrors.NewNotFoundError("kubeconfig %s for cluster %q not found", d.KubeconfigPath, d.ID).
			WithContext("cluster", d.ID)
	}
	if d.Context == "" || !r.useContext {
		return nil
	}
	_, err := commands.NewCommandBuilder("kubectl").
		WithArgs("config", "use-context", d.Context).
		WithKubeconfig(d.KubeconfigPath).
		WithCaller("cluster.SwitchToCluster").
		Execute(ctx)
	return err
}
