package cluster

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sort"
	"sync"
	"sync/atomic"

	toolerrors "github.com/kagent-dev/kube-mcp/internal/errors"
	"github.com/kagent-dev/kube-mcp/internal/logger"
	"github.com/kagent-dev/kube-mcp/internal/metrics"
)

// Registry is the source of truth for known clusters and the current cluster.
// Reads are lock-free against an immutable snapshot. Load and Reload swap in a
// fully validated snapshot or leave the previous one untouched.
type Registry struct {
	explicitPath string
	searchPaths  []string
	useContext   bool

	state   atomic.Pointer[snapshot]
	current atomic.Pointer[string]

	// mu serialises loads and switches so that current always refers to the live snapshot.
	mu sync.Mutex
}

type Option func(*Registry)

// WithConfigFile makes path the only configuration source. A missing file is an error.
func WithConfigFile(path string) Option {
	return func(r *Registry) {
		r.explicitPath = path
	}
}

// WithSearchPaths replaces the default search order. The first existing file wins.
func WithSearchPaths(paths ...string) Option {
	return func(r *Registry) {
		r.searchPaths = paths
	}
}

// WithUseContextOnSwitch controls whether switching to a local cluster runs
// "kubectl config use-context". It is on by default.
func WithUseContextOnSwitch(enabled bool) Option {
	return func(r *Registry) {
		r.useContext = enabled
	}
}

// NewRegistry returns an empty registry. Call Load before use.
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		searchPaths: DefaultConfigPaths(),
		useContext:  true,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// LoadRegistry constructs and loads a registry in one step.
func LoadRegistry(opts ...Option) (*Registry, error) {
	r := NewRegistry(opts...)
	if err := r.Load(); err != nil {
		return nil, err
	}
	return r, nil
}

// Load reads the configuration. A missing file in the search paths yields a
// single local cluster; a malformed or invalid file is an error.
func (r *Registry) Load() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	snap, err := r.readSnapshot()
	if err != nil {
		return err
	}
	r.install(snap)
	return nil
}

// Reload re-reads the configuration. On failure the previous state is kept.
func (r *Registry) Reload() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	snap, err := r.readSnapshot()
	if err != nil {
		metrics.RegistryReloadsTotal.WithLabelValues("failure").Inc()
		logger.Get().Error("cluster configuration reload failed, keeping previous state", "error", err)
		return err
	}
	r.install(snap)
	metrics.RegistryReloadsTotal.WithLabelValues("success").Inc()
	return nil
}

func (r *Registry) readSnapshot() (*snapshot, error) {
	if r.explicitPath != "" {
		data, err := os.ReadFile(r.explicitPath)
		if err != nil {
			return nil, configError(r.explicitPath, err)
		}
		return parseSnapshot(data, r.explicitPath)
	}

	for _, path := range r.searchPaths {
		data, err := os.ReadFile(path)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, configError(path, err)
		}
		return parseSnapshot(data, path)
	}

	snap := defaultSnapshot()
	logger.Get().Warn("no cluster configuration found, using default local cluster",
		"searched", r.searchPaths,
		"kubeconfig", snap.clusters[DefaultClusterID].KubeconfigPath,
	)
	return snap, nil
}

func parseSnapshot(data []byte, path string) (*snapshot, error) {
	snap, err := parseConfig(data, path)
	if err != nil {
		return nil, configError(path, err)
	}
	return snap, nil
}

func configError(path string, cause error) error {
	return &toolerrors.ToolError{
		Kind:    toolerrors.KindInvalidClusterConfig,
		Message: fmt.Sprintf("cannot load cluster configuration %s", path),
		Cause:   cause,
	}
}

// install must be called with mu held.
func (r *Registry) install(snap *snapshot) {
	r.state.Store(snap)
	if cur := r.current.Load(); cur != nil {
		if _, ok := snap.clusters[*cur]; !ok {
			logger.Get().Warn("current cluster no longer configured, falling back to default",
				"cluster", *cur, "default", snap.defaultID)
			r.current.Store(nil)
		}
	}

	counts := map[Kind]int{KindLocal: 0, KindGKE: 0}
	for _, d := range snap.clusters {
		counts[d.Kind]++
	}
	for kind, n := range counts {
		metrics.RegistryClusters.WithLabelValues(string(kind)).Set(float64(n))
	}

	logger.Get().Info("cluster configuration loaded",
		"source", sourceLabel(snap),
		"clusters", len(snap.clusters),
		"default", snap.defaultID,
	)
}

func (r *Registry) snapshot() *snapshot {
	if s := r.state.Load(); s != nil {
		return s
	}
	// Unloaded registries behave like a missing configuration file.
	return defaultSnapshot()
}

// GetCluster returns the descriptor for id, or the default cluster when id is empty.
func (r *Registry) GetCluster(id string) (Descriptor, error) {
	snap := r.snapshot()
	if id == "" {
		id = snap.defaultID
	}
	d, ok := snap.clusters[id]
	if !ok {
		return Descriptor{}, toolerrors.NewNotFoundError("cluster %q not found", id).WithContext("cluster", id)
	}
	return d, nil
}

func (r *Registry) ClusterExists(id string) bool {
	_, ok := r.snapshot().clusters[id]
	return ok
}

// List returns every descriptor sorted by id.
func (r *Registry) List() []Descriptor {
	snap := r.snapshot()
	out := make([]Descriptor, 0, len(snap.clusters))
	for _, d := range snap.clusters {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (r *Registry) DefaultClusterID() string {
	return r.snapshot().defaultID
}

// GetCurrentCluster returns the last successfully switched-to cluster, or the default.
func (r *Registry) GetCurrentCluster() string {
	if cur := r.current.Load(); cur != nil {
		return *cur
	}
	return r.snapshot().defaultID
}

func (r *Registry) setCurrent(id string) {
	r.current.Store(&id)
}

// Stats is a read-only summary of the registry.
type Stats struct {
	Total   int          `json:"total"`
	ByKind  map[Kind]int `json:"byKind"`
	Default string       `json:"default"`
	Current string       `json:"current"`
	Source  string       `json:"source"`
}

func (r *Registry) Stats() Stats {
	snap := r.snapshot()
	byKind := map[Kind]int{KindLocal: 0, KindGKE: 0}
	for _, d := range snap.clusters {
		byKind[d.Kind]++
	}
	return Stats{
		Total:   len(snap.clusters),
		ByKind:  byKind,
		Default: snap.defaultID,
		Current: r.GetCurrentCluster(),
		Source:  sourceLabel(snap),
	}
}

// ConfigSource is the file the live configuration came from, empty for the built-in default.
func (r *Registry) ConfigSource() string {
	return r.snapshot().source
}

func sourceLabel(snap *snapshot) string {
	if snap.source == "" {
		return "built-in default"
	}
	return snap.source
}

// SwitchToCluster makes id the current cluster. GKE clusters are authenticated
// first; local clusters need an existing kubeconfig. Any failure leaves the
// current cluster unchanged.
func (r *Registry) SwitchToCluster(ctx context.Context, id string) (Descriptor, error) {
	d, err := r.GetCluster(id)
	if err != nil {
		return Descriptor{}, err
	}

	switch d.Kind {
	case KindGKE:
		if err := r.AuthenticateGKE(ctx, d); err != nil {
			return Descriptor{}, err
		}
		return d, nil
	case KindLocal:
		if err := r.activateLocal(ctx, d); err != nil {
			return Descriptor{}, err
		}
	default:
		return Descriptor{}, toolerrors.NewInvalidClusterConfigError(d.ID, d.Validate())
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.ClusterExists(d.ID) {
		return Descriptor{}, toolerrors.NewNotFoundError("cluster %q was removed while switching", d.ID)
	}
	r.setCurrent(d.ID)
	logger.WithContext(ctx).Info("switched cluster", "cluster", d.ID, "type", d.Kind)
	return d, nil
}
