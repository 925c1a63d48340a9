package cmd

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"
)

// MockExitError mimics *exec.ExitError for scripted non-zero exits.
type MockExitError struct {
	Code int
}

func (e *MockExitError) Error() string {
	return fmt.Sprintf("exit status %d", e.Code)
}

func (e *MockExitError) ExitCode() int {
	return e.Code
}

// MockResult is the scripted outcome of one command line.
type MockResult struct {
	Stdout string
	Stderr string
	// ExitCode > 0 makes Exec return a *MockExitError.
	ExitCode int
	// Err is returned as-is, e.g. to simulate a spawn failure.
	Err error
	// Delay blocks Exec until it elapses or ctx is done, whichever is first.
	Delay time.Duration
}

// CallLog records one Exec invocation.
type CallLog struct {
	Command string
	Args    []string
}

// MockShellExecutor is a ShellExecutor for tests. Commands are matched on the full
// argument vector first and on the command name alone second.
type MockShellExecutor struct {
	mu       sync.Mutex
	results  map[string]MockResult
	fallback map[string]MockResult
	calls    []CallLog
}

func NewMockShellExecutor() *MockShellExecutor {
	return &MockShellExecutor{
		results:  make(map[string]MockResult),
		fallback: make(map[string]MockResult),
	}
}

func mockKey(command string, args []string) string {
	return command + "\x00" + strings.Join(args, "\x00")
}

// AddCommandString scripts stdout and an optional error for an exact command line.
func (m *MockShellExecutor) AddCommandString(command string, args []string, output string, err error) {
	m.AddCommandResult(command, args, MockResult{Stdout: output, Err: err})
}

// AddCommandResult scripts a full result for an exact command line.
func (m *MockShellExecutor) AddCommandResult(command string, args []string, result MockResult) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.results[mockKey(command, args)] = result
}

// AddPartialMatch scripts a result for any invocation of command.
func (m *MockShellExecutor) AddPartialMatch(command string, result MockResult) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fallback[command] = result
}

func (m *MockShellExecutor) Exec(ctx context.Context, command string, args ...string) ([]byte, []byte, error) {
	m.mu.Lock()
	m.calls = append(m.calls, CallLog{Command: command, Args: append([]string(nil), args...)})
	result, ok := m.results[mockKey(command, args)]
	if !ok {
		result, ok = m.fallback[command]
	}
	m.mu.Unlock()

	if !ok {
		return nil, nil, fmt.Errorf("no mock found for command: %s %s", command, strings.Join(args, " "))
	}

	if result.Delay > 0 {
		timer := time.NewTimer(result.Delay)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
			return []byte(result.Stdout), nil, &MockExitError{Code: -1}
		}
	}

	if result.Err != nil {
		return nil, []byte(result.Stderr), result.Err
	}
	if result.ExitCode != 0 {
		return []byte(result.Stdout), []byte(result.Stderr), &MockExitError{Code: result.ExitCode}
	}
	return []byte(result.Stdout), []byte(result.Stderr), nil
}

// GetCallLog returns a copy of every recorded invocation in order.
func (m *MockShellExecutor) GetCallLog() []CallLog {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]CallLog(nil), m.calls...)
}

// CallCount is the number of Exec invocations so far.
func (m *MockShellExecutor) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}
