package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/kagent-dev/kube-mcp/internal/cluster"
	"github.com/kagent-dev/kube-mcp/internal/cmd"
	"github.com/kagent-dev/kube-mcp/internal/commands"
	"github.com/kagent-dev/kube-mcp/internal/config"
	"github.com/kagent-dev/kube-mcp/internal/httpmw"
	"github.com/kagent-dev/kube-mcp/internal/logger"
	"github.com/kagent-dev/kube-mcp/internal/metrics"
	"github.com/kagent-dev/kube-mcp/internal/output"
	"github.com/kagent-dev/kube-mcp/internal/telemetry"
	"github.com/kagent-dev/kube-mcp/internal/version"
	"github.com/kagent-dev/kube-mcp/pkg/clusters"
	"github.com/kagent-dev/kube-mcp/pkg/helm"
	"github.com/kagent-dev/kube-mcp/pkg/k8s"
)

var (
	stdio         bool
	tools         []string
	showVersion   bool
	readOnly      bool
	clusterConfig string
	outputMode    string
	watchConfig   bool
	logLevel      string

	// These variables should be set during build time using -ldflags
	Name      = "kube-mcp-server"
	Version   = version.Version
	GitCommit = version.GitCommit
	BuildDate = version.BuildDate
)

var rootCmd = &cobra.Command{
	Use:   "kube-mcp",
	Short: "Multi-cluster kubectl and helm MCP server",
	Run:   run,
}

func init() {
	// if found .env file, load it before flag defaults are read from the environment
	if _, err := os.Stat(".env"); err == nil {
		_ = godotenv.Load(".env")
	}

	cmd.RegisterServerFlags(rootCmd)
	rootCmd.Flags().BoolVar(&stdio, "stdio", false, "Use stdio for communication instead of HTTP")
	rootCmd.Flags().StringSliceVar(&tools, "tools", []string{}, "List of tool providers to register (k8s, helm, clusters). If empty, all are registered.")
	rootCmd.Flags().BoolVarP(&showVersion, "version", "v", false, "Show version information and exit")
	rootCmd.Flags().BoolVar(&readOnly, "read-only", false, "Run in read-only mode (disable tools that perform write operations)")
	rootCmd.Flags().StringVar(&clusterConfig, "cluster-config", "", "Cluster configuration file (default: $KAGENT_CLUSTER_CONFIG, /etc/kagent/clusters.json, config/clusters.json)")
	rootCmd.Flags().StringVar(&outputMode, "output-mode", "", "Default output mode for resource queries: compact, normal or verbose (default: $KAGENT_OUTPUT_MODE or normal)")
	rootCmd.Flags().BoolVar(&watchConfig, "watch-config", false, "Reload the cluster configuration when the file changes")
	rootCmd.Flags().StringVar(&logLevel, "log-level", envOr("KAGENT_LOG_LEVEL", "info"), "Log level: debug, info, warn or error")
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

// printVersion displays version information in a formatted way
func printVersion() {
	fmt.Printf("%s\n", Name)
	fmt.Printf("Version:    %s\n", Version)
	fmt.Printf("Git Commit: %s\n", GitCommit)
	fmt.Printf("Build Date: %s\n", BuildDate)
	fmt.Printf("Go Version: %s\n", runtime.Version())
	fmt.Printf("OS/Arch:    %s/%s\n", runtime.GOOS, runtime.GOARCH)
}

// resolveOutputMode prefers the flag, then KAGENT_OUTPUT_MODE. An invalid flag
// is an error while an invalid environment value falls back to normal.
func resolveOutputMode(flag string, cfg *config.Config) (output.Mode, error) {
	if flag != "" {
		return output.ParseMode(flag)
	}
	if cfg.OutputMode != "" {
		if _, err := output.ParseMode(cfg.OutputMode); err != nil {
			logger.Get().Warn("Ignoring invalid KAGENT_OUTPUT_MODE", "value", cfg.OutputMode, "default", output.DefaultMode)
		}
	}
	return output.ModeOrDefault(cfg.OutputMode), nil
}

func loadRegistry(cfg *config.Config) (*cluster.Registry, error) {
	path := clusterConfig
	if path == "" {
		path = cfg.Clusters.ConfigPath
	}
	var opts []cluster.Option
	if path != "" {
		opts = append(opts, cluster.WithConfigFile(path))
	}
	return cluster.LoadRegistry(opts...)
}

func run(command *cobra.Command, args []string) {
	// Handle version flag early, before any initialization
	if showVersion {
		printVersion()
		return
	}

	logger.Init(stdio, logLevel)
	defer logger.Sync()

	serverCfg, err := cmd.ExtractServerConfig(command)
	if err != nil {
		logger.Get().Error("Invalid server configuration", "error", err)
		os.Exit(1)
	}

	cfg := config.Load()
	mode, err := resolveOutputMode(outputMode, cfg)
	if err != nil {
		logger.Get().Error("Invalid --output-mode", "error", err)
		os.Exit(1)
	}

	// Setup context with cancellation for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize OpenTelemetry tracing
	otelShutdown, err := telemetry.SetupOTelSDK(ctx, cfg.Telemetry)
	if err != nil {
		logger.Get().Error("Failed to setup OpenTelemetry SDK", "error", err)
		os.Exit(1)
	}
	defer func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if err := otelShutdown(shutdownCtx); err != nil {
			logger.Get().Error("Failed to shutdown OpenTelemetry SDK", "error", err)
		}
	}()

	// Start root span for server lifecycle
	tracer := otel.Tracer("kube-mcp/server")
	ctx, rootSpan := tracer.Start(ctx, "server.lifecycle")
	defer rootSpan.End()

	registry, err := loadRegistry(cfg)
	if err != nil {
		logger.Get().Error("Failed to load cluster configuration", "error", err)
		os.Exit(1)
	}
	if watchConfig || cfg.Clusters.Watch {
		go func() {
			if err := registry.Watch(ctx); err != nil {
				logger.Get().Error("Cluster configuration watcher stopped", "error", err)
			}
		}()
	}

	rootSpan.SetAttributes(
		attribute.String("server.name", Name),
		attribute.String("server.version", Version),
		attribute.String("server.git_commit", GitCommit),
		attribute.String("server.build_date", BuildDate),
		attribute.Bool("server.stdio_mode", stdio),
		attribute.Int("server.port", serverCfg.Port),
		attribute.StringSlice("server.tools", tools),
		attribute.Bool("server.read_only", readOnly),
		attribute.String("server.output_mode", string(mode)),
		attribute.String("server.cluster_config", registry.Stats().Source),
	)

	logger.Get().Info("Starting "+Name, "version", Version, "git_commit", GitCommit, "build_date", BuildDate,
		"output_mode", mode, "clusters", registry.Stats().Total)
	if readOnly {
		logger.Get().Info("Running in read-only mode - write operations are disabled")
	}

	mcp := server.NewMCPServer(
		Name,
		Version,
	)

	deps := toolDeps{
		registry: registry,
		kubectl:  commands.NewKubectlRunner(registry),
		helm:     commands.NewHelmRunner(registry),
		mode:     mode,
		readOnly: readOnly,
	}

	// Register tools and wrap handlers with metrics instrumentation.
	// registerMCP returns a map of tool_name -> tool_provider so that
	// wrapToolHandlersWithMetrics knows which provider each tool belongs to.
	toolProviders := registerMCP(mcp, tools, deps)
	wrapToolHandlersWithMetrics(mcp, toolProviders)

	promRegistry := metrics.InitServer()
	serverMode := "read-write"
	if readOnly {
		serverMode = "read-only"
	}
	metrics.ServerInfo.WithLabelValues(Name, Version, GitCommit, BuildDate, serverMode).Set(1)

	// Create wait group for server goroutines
	var wg sync.WaitGroup

	// Setup signal handling
	signalChan := make(chan os.Signal, 1)
	signal.Notify(signalChan, os.Interrupt, syscall.SIGTERM)

	var httpServer *http.Server
	var metricsServer *http.Server // Separate server for metrics if the metrics port differs from the main port

	// Start server based on chosen mode
	wg.Add(1)
	if stdio {
		go func() {
			defer wg.Done()
			runStdioServer(ctx, mcp)
		}()
	} else {
		streamServer := server.NewStreamableHTTPServer(mcp,
			server.WithHeartbeatInterval(30*time.Second),
		)

		mux := http.NewServeMux()

		mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
			if err := writeResponse(w, []byte("OK")); err != nil {
				logger.Get().Error("Failed to write health response", "error", err)
			}
		})

		if serverCfg.MetricsPort != serverCfg.Port {
			// Create the metrics server outside the goroutine so the shutdown handler never races its assignment
			metricsMux := http.NewServeMux()
			metricsMux.Handle("/metrics", promhttp.HandlerFor(promRegistry, promhttp.HandlerOpts{}))
			metricsServer = &http.Server{
				Addr:        fmt.Sprintf(":%d", serverCfg.MetricsPort),
				Handler:     metricsMux,
				ReadTimeout: serverCfg.ReadTimeout,
			}

			wg.Add(1)
			go func() {
				defer wg.Done()
				logger.Get().Info("Starting Prometheus metrics endpoint on /metrics", "port", strconv.Itoa(serverCfg.MetricsPort))
				if err := metricsServer.ListenAndServe(); err != nil {
					if !errors.Is(err, http.ErrServerClosed) {
						logger.Get().Error("Metrics endpoint failed", "error", err)
					} else {
						logger.Get().Info("Metrics server closed gracefully.")
					}
				}
			}()
		} else {
			logger.Get().Info("Starting Prometheus metrics endpoint on /metrics", "port", strconv.Itoa(serverCfg.Port))
			mux.Handle("/metrics", promhttp.HandlerFor(promRegistry, promhttp.HandlerOpts{}))
		}

		// Handle all other routes with the MCP server wrapped in telemetry middleware
		mux.Handle("/", telemetry.HTTPMiddleware(streamServer))

		httpServer = &http.Server{
			Addr:         fmt.Sprintf(":%d", serverCfg.Port),
			Handler:      httpmw.Chain(mux, httpmw.RequestID(), httpmw.Logging(), httpmw.Recover()),
			ReadTimeout:  serverCfg.ReadTimeout,
			WriteTimeout: serverCfg.WriteTimeout,
		}

		go func() {
			defer wg.Done()
			logger.Get().Info("Running kube-mcp server", "port", fmt.Sprintf(":%d", serverCfg.Port), "tools", strings.Join(tools, ","))
			if err := httpServer.ListenAndServe(); err != nil {
				if !errors.Is(err, http.ErrServerClosed) {
					logger.Get().Error("Failed to start HTTP server", "error", err)
				} else {
					logger.Get().Info("HTTP server closed gracefully.")
				}
			}
		}()
	}

	// Wait for termination signal
	go func() {
		<-signalChan
		logger.Get().Info("Received termination signal, shutting down server...")
		rootSpan.AddEvent("server.shutdown.initiated")

		// Cancel context to stop the watcher and in-flight commands
		cancel()

		for _, srv := range []*http.Server{httpServer, metricsServer} {
			if srv == nil {
				continue
			}
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), serverCfg.ShutdownTimeout)
			if err := srv.Shutdown(shutdownCtx); err != nil {
				logger.Get().Error("Failed to shutdown server gracefully", "addr", srv.Addr, "error", err)
				rootSpan.RecordError(err)
				rootSpan.SetStatus(codes.Error, "Server shutdown failed")
			}
			shutdownCancel()
		}
		rootSpan.AddEvent("server.shutdown.completed")
	}()

	// Wait for all server operations to complete
	wg.Wait()
	logger.Get().Info("Server shutdown complete")
}

// writeResponse writes data to an HTTP response writer with proper error handling
func writeResponse(w http.ResponseWriter, data []byte) error {
	_, err := w.Write(data)
	return err
}

func runStdioServer(ctx context.Context, mcp *server.MCPServer) {
	logger.Get().Info("Running kube-mcp server on stdio", "tools", strings.Join(tools, ","))
	stdioServer := server.NewStdioServer(mcp)
	if err := stdioServer.Listen(ctx, os.Stdin, os.Stdout); err != nil {
		logger.Get().Info("Stdio server stopped", "error", err)
	}
}

// toolDeps are the shared collaborators handed to every tool provider.
type toolDeps struct {
	registry *cluster.Registry
	kubectl  *commands.Runner
	helm     *commands.Runner
	mode     output.Mode
	readOnly bool
}

// registerMCP registers tool providers with the MCP server and returns a mapping
// of tool_name -> tool_provider. The mapping is built from the ListTools() diff
// taken around each provider's registration.
func registerMCP(mcp *server.MCPServer, enabledToolProviders []string, deps toolDeps) map[string]string {
	toolProviderMap := map[string]func(*server.MCPServer){
		"k8s":      func(s *server.MCPServer) { k8s.RegisterTools(s, deps.kubectl, deps.mode, deps.readOnly) },
		"helm":     func(s *server.MCPServer) { helm.RegisterTools(s, deps.helm, deps.readOnly) },
		"clusters": func(s *server.MCPServer) { clusters.RegisterTools(s, deps.registry, deps.readOnly) },
	}

	// If no specific tools are specified, register all available tools.
	if len(enabledToolProviders) == 0 {
		for name := range toolProviderMap {
			enabledToolProviders = append(enabledToolProviders, name)
		}
	}

	toolToProvider := make(map[string]string)

	for _, toolProviderName := range enabledToolProviders {
		registerFunc, ok := toolProviderMap[toolProviderName]
		if !ok {
			logger.Get().Error("Unknown tool specified", "provider", toolProviderName)
			continue
		}

		// ListTools() returns every provider's tools, so the new ones are the difference.
		toolsBefore := mcp.ListTools()
		registerFunc(mcp)

		for toolName := range mcp.ListTools() {
			if _, existed := toolsBefore[toolName]; !existed {
				metrics.RegisteredTools.WithLabelValues(toolName, toolProviderName).Set(1)
				toolToProvider[toolName] = toolProviderName
			}
		}
	}

	return toolToProvider
}

// wrapToolHandlersWithMetrics replaces every registered handler with one that
// counts invocations and failures. Both a Go error and an IsError result count
// as a failure, since tools report tool-level failures through IsError.
func wrapToolHandlersWithMetrics(mcpServer *server.MCPServer, toolToProvider map[string]string) {
	allTools := mcpServer.ListTools()
	wrapped := make([]server.ServerTool, 0, len(allTools))

	for name, st := range allTools {
		originalHandler := st.Handler
		toolName := name
		provider := toolToProvider[toolName]

		wrapped = append(wrapped, server.ServerTool{
			Tool: st.Tool,
			Handler: func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
				metrics.InvocationsTotal.WithLabelValues(toolName, provider).Inc()

				result, err := originalHandler(ctx, req)

				if err != nil || (result != nil && result.IsError) {
					metrics.InvocationsFailureTotal.WithLabelValues(toolName, provider).Inc()
				}

				return result, err
			},
		})
	}

	mcpServer.SetTools(wrapped...)
}
