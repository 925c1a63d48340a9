// Package version carries build metadata injected with -ldflags, e.g.
//
//	-X github.com/kagent-dev/kube-mcp/internal/version.Version=v0.3.0
package version

var (
	Version   = "dev"
	GitCommit = "none"
	BuildDate = "unknown"
)
