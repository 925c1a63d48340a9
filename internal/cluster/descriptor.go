// Package cluster holds the registry of clusters a tool call may target and
// turns a cluster id into kubectl and helm context flags.
package cluster

import (
	"errors"
	"fmt"
	"strings"

	"github.com/hashicorp/go-multierror"
)

// Kind is the variant tag of a Descriptor.
type Kind string

const (
	KindLocal Kind = "local"
	KindGKE   Kind = "gke"
)

// ParseKind accepts "local" and "gke" in any case.
func ParseKind(s string) (Kind, error) {
	switch Kind(strings.ToLower(strings.TrimSpace(s))) {
	case KindLocal:
		return KindLocal, nil
	case KindGKE:
		return KindGKE, nil
	default:
		return "", fmt.Errorf("unsupported cluster type %q (supported: %s, %s)", s, KindLocal, KindGKE)
	}
}

// Descriptor describes one reachable control plane.
type Descriptor struct {
	ID          string `json:"id"`
	Name        string `json:"name,omitempty"`
	Description string `json:"description,omitempty"`
	Kind        Kind   `json:"type"`

	// Local
	KubeconfigPath string `json:"kubeconfig,omitempty"`
	Context        string `json:"context,omitempty"`

	// GKE
	Project     string `json:"project,omitempty"`
	ClusterName string `json:"cluster,omitempty"`
	Region      string `json:"region,omitempty"`
	KeyFile     string `json:"keyFile,omitempty"`
}

// GKEContextName is the kubeconfig context written by gcloud get-credentials.
func (d Descriptor) GKEContextName() string {
	return fmt.Sprintf("gke_%s_%s_%s", d.Project, d.Region, d.ClusterName)
}

// Validate checks that exactly the fields of the descriptor's variant are populated.
func (d Descriptor) Validate() error {
	var result *multierror.Error

	if d.ID == "" {
		result = multierror.Append(result, errors.New("id is empty"))
	}

	hasGKEFields := d.Project != "" || d.ClusterName != "" || d.Region != "" || d.KeyFile != ""

	switch d.Kind {
	case KindLocal:
		if d.KubeconfigPath == "" {
			result = multierror.Append(result, errors.New("local cluster requires kubeconfig"))
		}
		if hasGKEFields {
			result = multierror.Append(result, errors.New("local cluster must not set project, cluster, region or keyFile"))
		}
	case KindGKE:
		for _, f := range []struct{ name, value string }{
			{"project", d.Project},
			{"cluster", d.ClusterName},
			{"region", d.Region},
			{"keyFile", d.KeyFile},
		} {
			if f.value == "" {
				result = multierror.Append(result, fmt.Errorf("gke cluster requires %s", f.name))
			}
		}
		if d.KubeconfigPath != "" || d.Context != "" {
			result = multierror.Append(result, errors.New("gke cluster must not set kubeconfig or context"))
		}
	default:
		result = multierror.Append(result, fmt.Errorf("unsupported cluster type %q", d.Kind))
	}

	return result.ErrorOrNil()
}

// DisplayName falls back to the id when no name is configured.
func (d Descriptor) DisplayName() string {
	if d.Name != "" {
		return d.Name
	}
	return d.ID
}
