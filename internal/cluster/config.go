package cluster

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"
	"k8s.io/client-go/tools/clientcmd"
	"sigs.k8s.io/yaml"
)

const (
	// DeploymentConfigPath is where container images mount the cluster configuration.
	DeploymentConfigPath = "/etc/kagent/clusters.json"
	// LocalConfigPath is resolved against the working directory.
	LocalConfigPath = "config/clusters.json"

	DefaultClusterID      = "local"
	DefaultGKEAuthTimeout = 60 * time.Second
)

// DefaultConfigPaths is the search order used when no explicit file is given.
func DefaultConfigPaths() []string {
	return []string{DeploymentConfigPath, LocalConfigPath}
}

type fileCluster struct {
	Name        string `json:"name"`
	Type        string `json:"type"`
	Description string `json:"description"`
	Kubeconfig  string `json:"kubeconfig"`
	Context     string `json:"context"`
	Project     string `json:"project"`
	Cluster     string `json:"cluster"`
	Region      string `json:"region"`
	KeyFile     string `json:"keyFile"`
}

type fileSettings struct {
	GKEAuthTimeout *float64 `json:"gke_auth_timeout,omitempty"`
}

type fileConfig struct {
	Clusters      map[string]fileCluster `json:"clusters"`
	Default       string                 `json:"default"`
	Configuration fileSettings           `json:"configuration"`
}

// snapshot is an immutable, validated registry state.
type snapshot struct {
	clusters       map[string]Descriptor
	defaultID      string
	gkeAuthTimeout time.Duration
	// source is the file the snapshot came from, empty for the built-in default.
	source string
}

// parseConfig decodes and validates a cluster configuration document.
// ${VAR} references are expanded before decoding. JSON and YAML are both accepted.
func parseConfig(data []byte, source string) (*snapshot, error) {
	expanded := os.ExpandEnv(string(data))

	var fc fileConfig
	if err := yaml.Unmarshal([]byte(expanded), &fc); err != nil {
		return nil, fmt.Errorf("malformed cluster configuration %s: %w", source, err)
	}

	var result *multierror.Error
	if fc.Clusters == nil {
		result = multierror.Append(result, fmt.Errorf("missing clusters map"))
	}
	if fc.Default == "" {
		result = multierror.Append(result, fmt.Errorf("missing default cluster id"))
	} else if _, ok := fc.Clusters[fc.Default]; !ok && fc.Clusters != nil {
		result = multierror.Append(result, fmt.Errorf("default cluster %q is not defined in clusters", fc.Default))
	}

	authTimeout := DefaultGKEAuthTimeout
	if t := fc.Configuration.GKEAuthTimeout; t != nil {
		if *t <= 0 {
			result = multierror.Append(result, fmt.Errorf("configuration.gke_auth_timeout must be positive, got %v", *t))
		} else {
			authTimeout = time.Duration(*t * float64(time.Second))
		}
	}

	ids := make([]string, 0, len(fc.Clusters))
	for id := range fc.Clusters {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	clusters := make(map[string]Descriptor, len(fc.Clusters))
	for _, id := range ids {
		d, err := toDescriptor(id, fc.Clusters[id])
		if err == nil {
			err = d.Validate()
		}
		if err != nil {
			result = multierror.Append(result, fmt.Errorf("cluster %q: %w", id, err))
			continue
		}
		clusters[id] = d
	}

	if err := result.ErrorOrNil(); err != nil {
		return nil, err
	}

	return &snapshot{
		clusters:       clusters,
		defaultID:      fc.Default,
		gkeAuthTimeout: authTimeout,
		source:         source,
	}, nil
}

func toDescriptor(id string, fc fileCluster) (Descriptor, error) {
	kind, err := ParseKind(fc.Type)
	if err != nil {
		return Descriptor{}, err
	}
	return Descriptor{
		ID:             id,
		Name:           fc.Name,
		Description:    fc.Description,
		Kind:           kind,
		KubeconfigPath: expandHome(fc.Kubeconfig),
		Context:        fc.Context,
		Project:        fc.Project,
		ClusterName:    fc.Cluster,
		Region:         fc.Region,
		KeyFile:        expandHome(fc.KeyFile),
	}, nil
}

// defaultSnapshot is used when no configuration file exists.
func defaultSnapshot() *snapshot {
	return &snapshot{
		clusters: map[string]Descriptor{
			DefaultClusterID: {
				ID:             DefaultClusterID,
				Name:           "Local cluster",
				Description:    "Default kubeconfig of the current user",
				Kind:           KindLocal,
				KubeconfigPath: clientcmd.RecommendedHomeFile,
			},
		},
		defaultID:      DefaultClusterID,
		gkeAuthTimeout: DefaultGKEAuthTimeout,
	}
}

func expandHome(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~"))
}
