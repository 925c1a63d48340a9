package cmd

import (
	"bytes"
	"context"
	"errors"
	"os"
	"os/exec"
	"syscall"
	"time"

	"github.com/kagent-dev/kube-mcp/internal/logger"
)

// terminationGrace is how long a child gets after SIGTERM before it is killed.
const terminationGrace = 5 * time.Second

// ShellExecutor runs an external program with an argument vector. No shell is involved.
type ShellExecutor interface {
	Exec(ctx context.Context, command string, args ...string) (stdout []byte, stderr []byte, err error)
}

// DefaultShellExecutor implements ShellExecutor using os/exec
type DefaultShellExecutor struct{}

// Exec runs command and captures stdout and stderr separately. The child leads
// its own process group; when ctx is done the whole group receives SIGTERM, and
// SIGKILL once the child has exited or the grace period is over, so no
// descendant outlives the call.
func (e *DefaultShellExecutor) Exec(ctx context.Context, command string, args ...string) ([]byte, []byte, error) {
	log := logger.WithContext(ctx)
	startTime := time.Now()

	cmd := exec.CommandContext(ctx, command, args...)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		return signalGroup(cmd, syscall.SIGTERM)
	}
	cmd.WaitDelay = terminationGrace

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	if ctx.Err() != nil {
		// Descendants that ignored SIGTERM.
		_ = signalGroup(cmd, syscall.SIGKILL)
	}

	log.Debug("process exited",
		"command", command,
		"pid", processID(cmd),
		"error", err,
		"duration", time.Since(startTime).Seconds(),
	)

	return stdout.Bytes(), stderr.Bytes(), err
}

// signalGroup sends sig to the process group led by cmd's child.
func signalGroup(cmd *exec.Cmd, sig syscall.Signal) error {
	if cmd.Process == nil {
		return os.ErrProcessDone
	}
	if err := syscall.Kill(-cmd.Process.Pid, sig); err != nil {
		if errors.Is(err, syscall.ESRCH) {
			return os.ErrProcessDone
		}
		return err
	}
	return nil
}

func processID(cmd *exec.Cmd) int {
	if cmd.Process == nil {
		return 0
	}
	return cmd.Process.Pid
}

// Context key for shell executor injection
type contextKey string

const shellExecutorKey contextKey = "shellExecutor"

// WithShellExecutor returns a context with the given shell executor
func WithShellExecutor(ctx context.Context, executor ShellExecutor) context.Context {
	return context.WithValue(ctx, shellExecutorKey, executor)
}

// GetShellExecutor retrieves the shell executor from context, or returns default
func GetShellExecutor(ctx context.Context) ShellExecutor {
	if executor, ok := ctx.Value(shellExecutorKey).(ShellExecutor); ok {
		return executor
	}
	return &DefaultShellExecutor{}
}
