package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

// ServerConfig holds the listener settings of the HTTP transport.
type ServerConfig struct {
	Port            int
	MetricsPort     int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

// RegisterServerFlags adds HTTP listener flags to the root command
func RegisterServerFlags(cmd *cobra.Command) {
	cmd.Flags().IntP("port", "p", 8084, "Port to run the server on")
	cmd.Flags().IntP("metrics-port", "m", 0, "Port to run the metrics server on (default 0: same as --port)")
	cmd.Flags().Duration("http-read-timeout", 30*time.Second, "HTTP request read timeout")
	// Tool calls may legitimately run for the helm timeout, so writes get more headroom.
	cmd.Flags().Duration("http-write-timeout", 90*time.Second, "HTTP response write timeout")
	cmd.Flags().Duration("shutdown-timeout", 10*time.Second, "Graceful shutdown timeout")
}

// ValidateServerConfig validates listener configuration values
func ValidateServerConfig(cfg ServerConfig) error {
	if cfg.Port < 1 || cfg.Port > 65535 {
		return fmt.Errorf("port must be between 1-65535, got %d", cfg.Port)
	}
	if cfg.MetricsPort < 0 || cfg.MetricsPort > 65535 {
		return fmt.Errorf("metrics-port must be between 0-65535, got %d", cfg.MetricsPort)
	}
	if cfg.ReadTimeout <= 0 {
		return fmt.Errorf("http-read-timeout must be positive, got %s", cfg.ReadTimeout)
	}
	if cfg.WriteTimeout <= 0 {
		return fmt.Errorf("http-write-timeout must be positive, got %s", cfg.WriteTimeout)
	}
	if cfg.ShutdownTimeout <= 0 {
		return fmt.Errorf("shutdown-timeout must be positive, got %s", cfg.ShutdownTimeout)
	}
	return nil
}

// ExtractServerConfig reads listener configuration from command flags.
// A metrics port of 0 resolves to the main port.
func ExtractServerConfig(cmd *cobra.Command) (*ServerConfig, error) {
	flags := cmd.Flags()

	port, err := flags.GetInt("port")
	if err != nil {
		return nil, fmt.Errorf("failed to get port flag: %w", err)
	}
	metricsPort, err := flags.GetInt("metrics-port")
	if err != nil {
		return nil, fmt.Errorf("failed to get metrics-port flag: %w", err)
	}
	readTimeout, err := flags.GetDuration("http-read-timeout")
	if err != nil {
		return nil, fmt.Errorf("failed to get http-read-timeout flag: %w", err)
	}
	writeTimeout, err := flags.GetDuration("http-write-timeout")
	if err != nil {
		return nil, fmt.Errorf("failed to get http-write-timeout flag: %w", err)
	}
	shutdownTimeout, err := flags.GetDuration("shutdown-timeout")
	if err != nil {
		return nil, fmt.Errorf("failed to get shutdown-timeout flag: %w", err)
	}

	cfg := &ServerConfig{
		Port:            port,
		MetricsPort:     metricsPort,
		ReadTimeout:     readTimeout,
		WriteTimeout:    writeTimeout,
		ShutdownTimeout: shutdownTimeout,
	}
	if err := ValidateServerConfig(*cfg); err != nil {
		return nil, err
	}
	if cfg.MetricsPort == 0 {
		cfg.MetricsPort = cfg.Port
	}
	return cfg, nil
}
