package cluster

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"k8s.io/client-go/tools/clientcmd"

	"github.com/kagent-dev/kube-mcp/internal/cmd"
	toolerrors "github.com/kagent-dev/kube-mcp/internal/errors"
)

const twoClusterConfig = `{
  "clusters": {
    "dev-id": {
      "name": "Development",
      "type": "local",
      "description": "kind cluster",
      "kubeconfig": "/kube/config",
      "context": "dev"
    },
    "prod": {
      "name": "Production",
      "type": "gke",
      "project": "p1",
      "cluster": "c1",
      "region": "us-central1",
      "keyFile": "/secrets/sa.json"
    }
  },
  "default": "dev-id",
  "configuration": {"gke_auth_timeout": 15}
}`

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func loadFromString(t *testing.T, content string) *Registry {
	t.Helper()
	path := writeFile(t, t.TempDir(), "clusters.json", content)
	r, err := LoadRegistry(WithConfigFile(path))
	require.NoError(t, err)
	return r
}

func TestLoad(t *testing.T) {
	t.Run("missing files fall back to a local default", func(t *testing.T) {
		dir := t.TempDir()
		r, err := LoadRegistry(WithSearchPaths(filepath.Join(dir, "a.json"), filepath.Join(dir, "b.json")))
		require.NoError(t, err)

		d, err := r.GetCluster("")
		require.NoError(t, err)
		assert.Equal(t, DefaultClusterID, d.ID)
		assert.Equal(t, KindLocal, d.Kind)
		assert.Equal(t, clientcmd.RecommendedHomeFile, d.KubeconfigPath)
		assert.Empty(t, r.ConfigSource())
		assert.Equal(t, "built-in default", r.Stats().Source)
	})

	t.Run("first existing search path wins", func(t *testing.T) {
		dir := t.TempDir()
		deployment := writeFile(t, dir, "etc/clusters.json", twoClusterConfig)
		local := writeFile(t, dir, "config/clusters.json", `{"clusters":{"x":{"type":"local","kubeconfig":"/x"}},"default":"x"}`)

		r, err := LoadRegistry(WithSearchPaths(deployment, local))
		require.NoError(t, err)
		assert.Equal(t, deployment, r.ConfigSource())
		assert.Equal(t, "dev-id", r.DefaultClusterID())

		r, err = LoadRegistry(WithSearchPaths(filepath.Join(dir, "missing.json"), local))
		require.NoError(t, err)
		assert.Equal(t, local, r.ConfigSource())
		assert.Equal(t, "x", r.DefaultClusterID())
	})

	t.Run("explicit file must exist", func(t *testing.T) {
		_, err := LoadRegistry(WithConfigFile(filepath.Join(t.TempDir(), "nope.json")))
		require.Error(t, err)
		assert.Equal(t, toolerrors.KindInvalidClusterConfig, toolerrors.KindOf(err))
	})

	t.Run("yaml documents are accepted", func(t *testing.T) {
		r := loadFromString(t, "clusters:\n  a:\n    type: local\n    kubeconfig: /a\ndefault: a\n")
		assert.True(t, r.ClusterExists("a"))
	})

	t.Run("env vars and home are expanded", func(t *testing.T) {
		t.Setenv("KUBE_MCP_TEST_PROJECT", "proj-from-env")
		home, err := os.UserHomeDir()
		require.NoError(t, err)

		r := loadFromString(t, `{
			"clusters": {
				"g": {"type": "GKE", "project": "${KUBE_MCP_TEST_PROJECT}", "cluster": "c", "region": "r", "keyFile": "~/sa.json"}
			},
			"default": "g"
		}`)
		d, err := r.GetCluster("g")
		require.NoError(t, err)
		assert.Equal(t, "proj-from-env", d.Project)
		assert.Equal(t, filepath.Join(home, "sa.json"), d.KeyFile)
		assert.Equal(t, KindGKE, d.Kind)
	})
}

func TestLoadRejectsInvalidConfig(t *testing.T) {
	tests := []struct {
		name     string
		content  string
		contains []string
	}{
		{"malformed json", `{"clusters": {`, []string{"malformed"}},
		{"missing clusters", `{"default": "a"}`, []string{"missing clusters map"}},
		{"missing default", `{"clusters": {"a": {"type": "local", "kubeconfig": "/a"}}}`, []string{"missing default"}},
		{"default not defined", `{"clusters": {"a": {"type": "local", "kubeconfig": "/a"}}, "default": "b"}`, []string{`default cluster "b" is not defined`}},
		{"unsupported type", `{"clusters": {"a": {"type": "eks"}}, "default": "a"}`, []string{`unsupported cluster type "eks"`}},
		{"gke missing fields", `{"clusters": {"g": {"type": "gke", "project": "p"}}, "default": "g"}`, []string{"requires cluster", "requires region", "requires keyFile"}},
		{"local missing kubeconfig", `{"clusters": {"a": {"type": "local"}}, "default": "a"}`, []string{"requires kubeconfig"}},
		{"mixed variants", `{"clusters": {"a": {"type": "local", "kubeconfig": "/a", "project": "p"}}, "default": "a"}`, []string{"must not set project"}},
		{"bad auth timeout", `{"clusters": {"a": {"type": "local", "kubeconfig": "/a"}}, "default": "a", "configuration": {"gke_auth_timeout": 0}}`, []string{"gke_auth_timeout must be positive"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeFile(t, t.TempDir(), "clusters.json", tt.content)
			_, err := LoadRegistry(WithConfigFile(path))
			require.Error(t, err)
			assert.Equal(t, toolerrors.KindInvalidClusterConfig, toolerrors.KindOf(err))
			for _, s := range tt.contains {
				assert.Contains(t, err.Error(), s)
			}
		})
	}
}

func TestGetCluster(t *testing.T) {
	r := loadFromString(t, twoClusterConfig)

	d, err := r.GetCluster(r.DefaultClusterID())
	require.NoError(t, err, "the default cluster always resolves")
	assert.Equal(t, "Development", d.DisplayName())

	d, err = r.GetCluster("")
	require.NoError(t, err)
	assert.Equal(t, "dev-id", d.ID)

	_, err = r.GetCluster("ghost")
	require.Error(t, err)
	assert.ErrorIs(t, err, toolerrors.ErrNotFound)
	assert.Contains(t, err.Error(), "ghost")

	assert.True(t, r.ClusterExists("prod"))
	assert.False(t, r.ClusterExists("ghost"))

	list := r.List()
	require.Len(t, list, 2)
	assert.Equal(t, "dev-id", list[0].ID)
	assert.Equal(t, "prod", list[1].ID)
}

func TestStats(t *testing.T) {
	r := loadFromString(t, twoClusterConfig)

	s := r.Stats()
	assert.Equal(t, 2, s.Total)
	assert.Equal(t, 1, s.ByKind[KindLocal])
	assert.Equal(t, 1, s.ByKind[KindGKE])
	assert.Equal(t, "dev-id", s.Default)
	assert.Equal(t, "dev-id", s.Current)
	assert.Equal(t, r.ConfigSource(), s.Source)
}

func TestUnloadedRegistryUsesDefault(t *testing.T) {
	r := NewRegistry()
	assert.Equal(t, DefaultClusterID, r.GetCurrentCluster())
	assert.True(t, r.ClusterExists(DefaultClusterID))
}

func TestReload(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "clusters.json", twoClusterConfig)
	r, err := LoadRegistry(WithConfigFile(path))
	require.NoError(t, err)

	t.Run("invalid file keeps previous state", func(t *testing.T) {
		writeFile(t, dir, "clusters.json", `{"clusters": {}, "default": "missing"}`)
		require.Error(t, r.Reload())
		assert.True(t, r.ClusterExists("prod"))
		assert.Equal(t, "dev-id", r.DefaultClusterID())
	})

	t.Run("valid file replaces state", func(t *testing.T) {
		writeFile(t, dir, "clusters.json", `{"clusters": {"staging": {"type": "local", "kubeconfig": "/s"}}, "default": "staging"}`)
		require.NoError(t, r.Reload())
		assert.False(t, r.ClusterExists("prod"))
		assert.Equal(t, "staging", r.DefaultClusterID())
	})
}

func TestReloadResetsRemovedCurrent(t *testing.T) {
	dir := t.TempDir()
	kubeconfig := writeFile(t, dir, "kubeconfig", "apiVersion: v1\nkind: Config\n")
	path := writeFile(t, dir, "clusters.json", `{"clusters": {
		"a": {"type": "local", "kubeconfig": "`+kubeconfig+`"},
		"b": {"type": "local", "kubeconfig": "`+kubeconfig+`"}
	}, "default": "a"}`)
	r, err := LoadRegistry(WithConfigFile(path))
	require.NoError(t, err)

	_, err = r.SwitchToCluster(context.Background(), "b")
	require.NoError(t, err)
	assert.Equal(t, "b", r.GetCurrentCluster())

	writeFile(t, dir, "clusters.json", `{"clusters": {"a": {"type": "local", "kubeconfig": "`+kubeconfig+`"}}, "default": "a"}`)
	require.NoError(t, r.Reload())
	assert.Equal(t, "a", r.GetCurrentCluster())
}

func TestSwitchToLocalCluster(t *testing.T) {
	dir := t.TempDir()
	kubeconfig := writeFile(t, dir, "kubeconfig", "apiVersion: v1\nkind: Config\n")
	path := writeFile(t, dir, "clusters.json", `{"clusters": {
		"home": {"type": "local", "kubeconfig": "`+kubeconfig+`"},
		"dev": {"type": "local", "kubeconfig": "`+kubeconfig+`", "context": "kind-dev"},
		"gone": {"type": "local", "kubeconfig": "`+filepath.Join(dir, "missing")+`"}
	}, "default": "home"}`)

	t.Run("missing kubeconfig is not found and current is unchanged", func(t *testing.T) {
		r, err := LoadRegistry(WithConfigFile(path))
		require.NoError(t, err)
		mock := cmd.NewMockShellExecutor()

		_, err = r.SwitchToCluster(cmd.WithShellExecutor(context.Background(), mock), "gone")
		require.Error(t, err)
		assert.ErrorIs(t, err, toolerrors.ErrNotFound)
		assert.Equal(t, "home", r.GetCurrentCluster())
		assert.Equal(t, 0, mock.CallCount())
	})

	t.Run("context switch runs use-context", func(t *testing.T) {
		r, err := LoadRegistry(WithConfigFile(path))
		require.NoError(t, err)
		mock := cmd.NewMockShellExecutor()
		mock.AddCommandString("kubectl", []string{"--kubeconfig", kubeconfig, "config", "use-context", "kind-dev"}, `Switched to context "kind-dev".`, nil)

		d, err := r.SwitchToCluster(cmd.WithShellExecutor(context.Background(), mock), "dev")
		require.NoError(t, err)
		assert.Equal(t, "dev", d.ID)
		assert.Equal(t, "dev", r.GetCurrentCluster())
		assert.Equal(t, 1, mock.CallCount())
	})

	t.Run("failed use-context leaves current unchanged", func(t *testing.T) {
		r, err := LoadRegistry(WithConfigFile(path))
		require.NoError(t, err)
		mock := cmd.NewMockShellExecutor()
		mock.AddPartialMatch("kubectl", cmd.MockResult{Stderr: `error: no context exists with the name: "kind-dev"`, ExitCode: 1})

		_, err = r.SwitchToCluster(cmd.WithShellExecutor(context.Background(), mock), "dev")
		require.Error(t, err)
		assert.Equal(t, "home", r.GetCurrentCluster())
	})

	t.Run("use-context can be disabled", func(t *testing.T) {
		r, err := LoadRegistry(WithConfigFile(path), WithUseContextOnSwitch(false))
		require.NoError(t, err)
		mock := cmd.NewMockShellExecutor()

		_, err = r.SwitchToCluster(cmd.WithShellExecutor(context.Background(), mock), "dev")
		require.NoError(t, err)
		assert.Equal(t, 0, mock.CallCount())
		assert.Equal(t, "dev", r.GetCurrentCluster())
	})

	t.Run("unknown cluster", func(t *testing.T) {
		r, err := LoadRegistry(WithConfigFile(path))
		require.NoError(t, err)

		_, err = r.SwitchToCluster(context.Background(), "ghost")
		assert.ErrorIs(t, err, toolerrors.ErrNotFound)
	})
}

func gkeRegistry(t *testing.T, keyFile string) *Registry {
	t.Helper()
	return loadFromString(t, `{
		"clusters": {
			"home": {"type": "local", "kubeconfig": "/kube/config"},
			"prod": {"type": "gke", "project": "p1", "cluster": "c1", "region": "us-central1", "keyFile": "`+keyFile+`"}
		},
		"default": "home",
		"configuration": {"gke_auth_timeout": 5}
	}`)
}

func TestAuthenticateGKE(t *testing.T) {
	t.Run("missing key file fails before any call", func(t *testing.T) {
		r := gkeRegistry(t, filepath.Join(t.TempDir(), "missing.json"))
		mock := cmd.NewMockShellExecutor()
		d, err := r.GetCluster("prod")
		require.NoError(t, err)

		err = r.AuthenticateGKE(cmd.WithShellExecutor(context.Background(), mock), d)
		require.Error(t, err)
		assert.Equal(t, toolerrors.KindExecution, toolerrors.KindOf(err))
		assert.Contains(t, err.Error(), "does not exist")
		assert.Equal(t, 0, mock.CallCount())
		assert.Equal(t, "home", r.GetCurrentCluster())
	})

	t.Run("runs three steps in order and sets current", func(t *testing.T) {
		keyFile := writeFile(t, t.TempDir(), "sa.json", "{}")
		r := gkeRegistry(t, keyFile)
		mock := cmd.NewMockShellExecutor()
		mock.AddPartialMatch("gcloud", cmd.MockResult{})
		mock.AddPartialMatch("kubectl", cmd.MockResult{Stdout: "Kubernetes control plane is running"})

		_, err := r.SwitchToCluster(cmd.WithShellExecutor(context.Background(), mock), "prod")
		require.NoError(t, err)

		calls := mock.GetCallLog()
		require.Len(t, calls, 3)
		assert.Equal(t, "gcloud", calls[0].Command)
		assert.Equal(t, []string{"auth", "activate-service-account", "--key-file", keyFile}, calls[0].Args)
		assert.Equal(t, []string{"container", "clusters", "get-credentials", "c1", "--region", "us-central1", "--project", "p1"}, calls[1].Args)
		assert.Equal(t, "kubectl", calls[2].Command)
		assert.Equal(t, []string{"cluster-info", "--context", "gke_p1_us-central1_c1"}, calls[2].Args)
		assert.Equal(t, "prod", r.GetCurrentCluster())
	})

	t.Run("failing step aborts and is named", func(t *testing.T) {
		keyFile := writeFile(t, t.TempDir(), "sa.json", "{}")
		r := gkeRegistry(t, keyFile)
		mock := cmd.NewMockShellExecutor()
		mock.AddCommandString("gcloud", []string{"auth", "activate-service-account", "--key-file", keyFile}, "", nil)
		mock.AddCommandResult("gcloud", []string{"container", "clusters", "get-credentials", "c1", "--region", "us-central1", "--project", "p1"},
			cmd.MockResult{Stderr: "ERROR: (gcloud.container.clusters.get-credentials) ResponseError: code=403", ExitCode: 1})

		_, err := r.SwitchToCluster(cmd.WithShellExecutor(context.Background(), mock), "prod")
		require.Error(t, err)

		var te *toolerrors.ToolError
		require.True(t, errors.As(err, &te))
		assert.Equal(t, toolerrors.KindAuthentication, te.Kind)
		assert.Equal(t, StepGetCredentials, te.Step)
		assert.Contains(t, err.Error(), "code=403")
		assert.Equal(t, 2, mock.CallCount())
		assert.Equal(t, "home", r.GetCurrentCluster())
	})

	t.Run("step timeout uses configured auth timeout", func(t *testing.T) {
		keyFile := writeFile(t, t.TempDir(), "sa.json", "{}")
		r := loadFromString(t, `{
			"clusters": {"prod": {"type": "gke", "project": "p1", "cluster": "c1", "region": "r", "keyFile": "`+keyFile+`"}},
			"default": "prod",
			"configuration": {"gke_auth_timeout": 0.05}
		}`)
		mock := cmd.NewMockShellExecutor()
		mock.AddPartialMatch("gcloud", cmd.MockResult{Delay: time.Minute})
		d, _ := r.GetCluster("prod")

		err := r.AuthenticateGKE(cmd.WithShellExecutor(context.Background(), mock), d)
		require.Error(t, err)
		assert.Equal(t, toolerrors.KindAuthentication, toolerrors.KindOf(err))
		assert.ErrorIs(t, err, toolerrors.ErrTimeout)
	})

	t.Run("local descriptors are a no-op", func(t *testing.T) {
		r := gkeRegistry(t, "/unused")
		mock := cmd.NewMockShellExecutor()
		d, _ := r.GetCluster("home")

		require.NoError(t, r.AuthenticateGKE(cmd.WithShellExecutor(context.Background(), mock), d))
		assert.Equal(t, 0, mock.CallCount())
	})
}

func TestWatchReloadsOnChange(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "clusters.json", twoClusterConfig)
	r, err := LoadRegistry(WithConfigFile(path))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- r.Watch(ctx) }()

	// Give the watcher a moment to register before writing.
	time.Sleep(100 * time.Millisecond)
	writeFile(t, dir, "clusters.json", `{"clusters": {"fresh": {"type": "local", "kubeconfig": "/f"}}, "default": "fresh"}`)

	assert.Eventually(t, func() bool { return r.ClusterExists("fresh") }, 5*time.Second, 50*time.Millisecond)

	cancel()
	assert.NoError(t, <-done)
}

func TestWatchRequiresFile(t *testing.T) {
	r, err := LoadRegistry(WithSearchPaths(filepath.Join(t.TempDir(), "none.json")))
	require.NoError(t, err)
	assert.Error(t, r.Watch(context.Background()))
}

func TestListContexts(t *testing.T) {
	dir := t.TempDir()
	kubeconfig := writeFile(t, dir, "kubeconfig", `apiVersion: v1
kind: Config
current-context: kind-dev
clusters:
- name: kind-dev
  cluster:
    server: https://127.0.0.1:6443
- name: kind-qa
  cluster:
    server: https://127.0.0.1:7443
users:
- name: dev-admin
  user: {}
contexts:
- name: kind-qa
  context:
    cluster: kind-qa
    user: dev-admin
- name: kind-dev
  context:
    cluster: kind-dev
    user: dev-admin
    namespace: apps
`)
	r := loadFromString(t, `{"clusters": {
		"dev": {"type": "local", "kubeconfig": "`+kubeconfig+`"},
		"prod": {"type": "gke", "project": "p", "cluster": "c", "region": "r", "keyFile": "/k"}
	}, "default": "dev"}`)

	contexts, err := r.ListContexts("dev")
	require.NoError(t, err)
	require.Len(t, contexts, 2)
	assert.Equal(t, KubeContext{Name: "kind-dev", Cluster: "kind-dev", User: "dev-admin", Namespace: "apps", Current: true}, contexts[0])
	assert.Equal(t, "kind-qa", contexts[1].Name)
	assert.False(t, contexts[1].Current)

	_, err = r.ListContexts("prod")
	assert.ErrorIs(t, err, toolerrors.ErrInvalidArguments)
}
