package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

const namespace = "kube_mcp"

// MCP server metrics
var (
	ServerInfo = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "server_info",
			Help:      "Information about the MCP server including version and build details",
		},
		[]string{
			"server_name",
			"version",
			"git_commit",
			"build_date",
			"server_mode", // "read-only" or "read-write"
		},
	)

	RegisteredTools = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "registered_tools",
			Help:      "Set to 1 for each registered MCP tool",
		},
		[]string{"tool_name", "tool_provider"},
	)

	InvocationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "invocations_total",
			Help:      "Total number of MCP tool invocations",
		},
		[]string{"tool_name", "tool_provider"},
	)

	InvocationsFailureTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "invocations_failure_total",
			Help:      "Total number of MCP tool invocations that returned an error",
		},
		[]string{"tool_name", "tool_provider"},
	)
)

// Command runner and cluster registry metrics
var (
	CommandExecutionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "command_executions_total",
			Help:      "Subprocess executions by program and outcome kind",
		},
		[]string{"program", "outcome"},
	)

	CommandDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "command_duration_seconds",
			Help:      "Wall time of subprocess executions",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"program"},
	)

	ClusterAuthenticationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cluster_authentications_total",
			Help:      "GKE authentication attempts by cluster and outcome",
		},
		[]string{"cluster", "outcome"},
	)

	RegistryClusters = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "registry_clusters",
			Help:      "Number of configured clusters by kind",
		},
		[]string{"kind"},
	)

	RegistryReloadsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "registry_reloads_total",
			Help:      "Cluster configuration reloads by outcome",
		},
		[]string{"outcome"},
	)
)

func InitServer() *prometheus.Registry {
	// Separate from the default registry
	registry := prometheus.NewRegistry()

	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	registry.MustRegister(
		ServerInfo,
		RegisteredTools,
		InvocationsTotal,
		InvocationsFailureTotal,
		CommandExecutionsTotal,
		CommandDurationSeconds,
		ClusterAuthenticationsTotal,
		RegistryClusters,
		RegistryReloadsTotal,
	)

	return registry
}
