package cmd

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultShellExecutor(t *testing.T) {
	executor := &DefaultShellExecutor{}

	t.Run("stdout captured", func(t *testing.T) {
		stdout, stderr, err := executor.Exec(context.Background(), "echo", "hello")
		assert.NoError(t, err)
		assert.Equal(t, "hello\n", string(stdout))
		assert.Empty(t, stderr)
	})

	t.Run("stderr captured separately", func(t *testing.T) {
		stdout, stderr, err := executor.Exec(context.Background(), "sh", "-c", "echo out; echo err >&2; exit 3")
		require.Error(t, err)
		assert.Equal(t, "out\n", string(stdout))
		assert.Equal(t, "err\n", string(stderr))

		var exitErr interface{ ExitCode() int }
		require.True(t, errors.As(err, &exitErr))
		assert.Equal(t, 3, exitErr.ExitCode())
	})

	t.Run("spawn failure", func(t *testing.T) {
		_, _, err := executor.Exec(context.Background(), "nonexistent-command-for-test")
		assert.Error(t, err)
	})

	t.Run("arguments are not shell interpreted", func(t *testing.T) {
		stdout, _, err := executor.Exec(context.Background(), "echo", "$(whoami);", "a|b")
		assert.NoError(t, err)
		assert.Equal(t, "$(whoami); a|b\n", string(stdout))
	})

	t.Run("cancelled context terminates child", func(t *testing.T) {
		ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
		defer cancel()

		start := time.Now()
		_, _, err := executor.Exec(ctx, "sleep", "10")
		assert.Error(t, err)
		assert.Less(t, time.Since(start), 5*time.Second)
	})
}

func TestMockShellExecutor(t *testing.T) {
	mock := NewMockShellExecutor()

	t.Run("unmocked command returns error", func(t *testing.T) {
		_, _, err := mock.Exec(context.Background(), "unmocked", "command")
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "no mock found for command")
	})

	t.Run("mocked command returns expected result", func(t *testing.T) {
		mock.AddCommandString("kubectl", []string{"get", "pods"}, "mocked output", nil)

		stdout, _, err := mock.Exec(context.Background(), "kubectl", "get", "pods")
		assert.NoError(t, err)
		assert.Equal(t, "mocked output", string(stdout))
	})

	t.Run("scripted exit code", func(t *testing.T) {
		mock.AddCommandResult("helm", []string{"status", "x"}, MockResult{Stderr: "release: not found", ExitCode: 1})

		_, stderr, err := mock.Exec(context.Background(), "helm", "status", "x")
		var exitErr *MockExitError
		require.ErrorAs(t, err, &exitErr)
		assert.Equal(t, 1, exitErr.ExitCode())
		assert.Equal(t, "release: not found", string(stderr))
	})

	t.Run("partial match", func(t *testing.T) {
		mock.AddPartialMatch("gcloud", MockResult{Stdout: "ok"})

		stdout, _, err := mock.Exec(context.Background(), "gcloud", "anything", "goes")
		assert.NoError(t, err)
		assert.Equal(t, "ok", string(stdout))
	})

	t.Run("delay honours context", func(t *testing.T) {
		mock.AddCommandResult("sleep", []string{"5"}, MockResult{Stdout: "late", Delay: time.Minute})
		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()

		_, _, err := mock.Exec(ctx, "sleep", "5")
		assert.Error(t, err)
	})

	t.Run("call log records every invocation", func(t *testing.T) {
		calls := mock.GetCallLog()
		require.Len(t, calls, 5)
		assert.Equal(t, "kubectl", calls[1].Command)
		assert.Equal(t, []string{"get", "pods"}, calls[1].Args)
		assert.Equal(t, 5, mock.CallCount())
	})
}

func TestContextShellExecutor(t *testing.T) {
	t.Run("default executor when no context value", func(t *testing.T) {
		executor := GetShellExecutor(context.Background())

		_, ok := executor.(*DefaultShellExecutor)
		assert.True(t, ok, "should return DefaultShellExecutor when no context value")
	})

	t.Run("mock executor from context", func(t *testing.T) {
		mock := NewMockShellExecutor()
		ctx := WithShellExecutor(context.Background(), mock)

		assert.Equal(t, mock, GetShellExecutor(ctx))
	})
}

func TestShellExecutorInterface(t *testing.T) {
	var _ ShellExecutor = (*DefaultShellExecutor)(nil)
	var _ ShellExecutor = (*MockShellExecutor)(nil)
}

func TestExtractServerConfig(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		c := &cobra.Command{}
		RegisterServerFlags(c)

		cfg, err := ExtractServerConfig(c)
		require.NoError(t, err)
		assert.Equal(t, 8084, cfg.Port)
		assert.Equal(t, 8084, cfg.MetricsPort, "metrics port 0 resolves to the main port")
		assert.Equal(t, 30*time.Second, cfg.ReadTimeout)
		assert.Equal(t, 10*time.Second, cfg.ShutdownTimeout)
	})

	t.Run("separate metrics port", func(t *testing.T) {
		c := &cobra.Command{}
		RegisterServerFlags(c)
		require.NoError(t, c.Flags().Set("metrics-port", "9090"))

		cfg, err := ExtractServerConfig(c)
		require.NoError(t, err)
		assert.Equal(t, 9090, cfg.MetricsPort)
	})
}

func TestValidateServerConfig(t *testing.T) {
	valid := ServerConfig{Port: 8084, ReadTimeout: time.Second, WriteTimeout: time.Second, ShutdownTimeout: time.Second}

	tests := []struct {
		name    string
		mutate  func(*ServerConfig)
		wantErr string
	}{
		{"valid", func(*ServerConfig) {}, ""},
		{"port zero", func(c *ServerConfig) { c.Port = 0 }, "port must be between"},
		{"port too high", func(c *ServerConfig) { c.Port = 70000 }, "port must be between"},
		{"negative metrics port", func(c *ServerConfig) { c.MetricsPort = -1 }, "metrics-port"},
		{"zero read timeout", func(c *ServerConfig) { c.ReadTimeout = 0 }, "http-read-timeout"},
		{"zero write timeout", func(c *ServerConfig) { c.WriteTimeout = 0 }, "http-write-timeout"},
		{"zero shutdown timeout", func(c *ServerConfig) { c.ShutdownTimeout = 0 }, "shutdown-timeout"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid
			tt.mutate(&cfg)
			err := ValidateServerConfig(cfg)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
