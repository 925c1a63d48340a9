package commands

import (
	"context"
	"time"

	toolerrors "github.com/kagent-dev/kube-mcp/internal/errors"
)

const (
	KubectlContextFlag = "--context"
	HelmContextFlag    = "--kube-context"
)

// ContextInjector rewrites an argument vector so that it targets a cluster.
type ContextInjector interface {
	InjectContext(args []string, clusterID, contextFlag string) ([]string, error)
}

// Runner executes one CLI program against a logical cluster.
type Runner struct {
	program     string
	contextFlag string
	timeout     time.Duration
	injector    ContextInjector
	classifier  *toolerrors.Classifier
}

type RunnerOption func(*Runner)

// WithRunTimeout overrides the program's default timeout.
func WithRunTimeout(d time.Duration) RunnerOption {
	return func(r *Runner) {
		if d > 0 {
			r.timeout = d
		}
	}
}

// WithRules replaces the stderr classification rules.
func WithRules(rules ...toolerrors.Rule) RunnerOption {
	return func(r *Runner) {
		r.classifier = toolerrors.NewClassifier(rules...)
	}
}

func NewRunner(program, contextFlag string, injector ContextInjector, opts ...RunnerOption) *Runner {
	r := &Runner{
		program:     program,
		contextFlag: contextFlag,
		timeout:     DefaultTimeoutFor(program),
		injector:    injector,
		classifier:  toolerrors.DefaultClassifier(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// NewKubectlRunner returns a Runner for kubectl with a 30s timeout.
func NewKubectlRunner(injector ContextInjector, opts ...RunnerOption) *Runner {
	return NewRunner("kubectl", KubectlContextFlag, injector, opts...)
}

// NewHelmRunner returns a Runner for helm with a 60s timeout.
func NewHelmRunner(injector ContextInjector, opts ...RunnerOption) *Runner {
	return NewRunner("helm", HelmContextFlag, injector, opts...)
}

func (r *Runner) Program() string {
	return r.program
}

func (r *Runner) Timeout() time.Duration {
	return r.timeout
}

// Run resolves clusterID into context flags and executes the program.
// No process is started when the arguments are empty or the cluster cannot be resolved.
func (r *Runner) Run(ctx context.Context, args []string, clusterID string) (string, error) {
	if len(args) == 0 {
		return "", toolerrors.NewInvalidArgumentsError("no arguments given for %s", r.program)
	}

	finalArgs := args
	if clusterID != "" {
		if r.injector == nil {
			return "", toolerrors.NewInvalidClusterConfigError(clusterID,
				toolerrors.NewInvalidArgumentsError("no cluster registry configured"))
		}
		injected, err := r.injector.InjectContext(args, clusterID, r.contextFlag)
		if err != nil {
			if toolerrors.KindOf(err) != toolerrors.KindInvalidClusterConfig {
				err = toolerrors.NewInvalidClusterConfigError(clusterID, err)
			}
			return "", err
		}
		finalArgs = injected
	}

	out, err := NewCommandBuilder(r.program).
		WithArgs(finalArgs...).
		WithTimeout(r.timeout).
		WithClassifier(r.classifier).
		WithCaller(callerName()).
		Execute(ctx)
	if err != nil {
		if te, ok := err.(*toolerrors.ToolError); ok && clusterID != "" {
			return "", te.WithContext("cluster", clusterID)
		}
		return "", err
	}
	return out, nil
}
