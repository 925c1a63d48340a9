package errors

import (
	"fmt"
	"strings"
)

// Rule maps a stderr pattern to a failure kind.
type Rule struct {
	Kind  Kind
	Match func(stderr string) bool
}

// ContainsRule matches when stderr contains substr, ignoring case.
func ContainsRule(kind Kind, substr string) Rule {
	needle := strings.ToLower(substr)
	return Rule{
		Kind: kind,
		Match: func(stderr string) bool {
			return strings.Contains(strings.ToLower(stderr), needle)
		},
	}
}

// DefaultRules is the evaluation order used by kubectl and helm runners.
func DefaultRules() []Rule {
	return []Rule{
		ContainsRule(KindTimeout, "timeout"),
		ContainsRule(KindNotFound, "not found"),
		ContainsRule(KindConnection, "connection refused"),
	}
}

// Classifier turns a failed process into a *ToolError using the first rule that matches.
type Classifier struct {
	rules []Rule
}

func NewClassifier(rules ...Rule) *Classifier {
	return &Classifier{rules: rules}
}

// DefaultClassifier returns a classifier over DefaultRules.
func DefaultClassifier() *Classifier {
	return NewClassifier(DefaultRules()...)
}

// Classify builds the error for a non-zero exit. Unmatched failures become
// Execution errors carrying stderr verbatim, or "Exit code: N" when stderr is empty.
func (c *Classifier) Classify(command, stderr string, exitCode int) *ToolError {
	te := &ToolError{
		Kind:     KindExecution,
		Command:  command,
		Stderr:   stderr,
		ExitCode: exitCode,
	}
	trimmed := strings.TrimSpace(stderr)
	if trimmed == "" {
		te.Message = fmt.Sprintf("Exit code: %d", exitCode)
		return te
	}
	te.Message = stderr
	for _, r := range c.rules {
		if r.Match(stderr) {
			te.Kind = r.Kind
			te.Message = trimmed
			return te
		}
	}
	return te
}
