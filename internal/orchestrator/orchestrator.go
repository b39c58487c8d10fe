// Package orchestrator sequences mutating operations against the backend
// selector. Every operation walks one state machine:
//
//	Requested → Validated → Executing → {Succeeded, Failed, Cancelled,
//	DeferredRestartRequired}
//
// Validation happens before any external call; execution failures propagate
// verbatim and are never auto-retried.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/blackwell-systems/pyscope/internal/backend"
	"github.com/blackwell-systems/pyscope/internal/depgraph"
	"github.com/blackwell-systems/pyscope/internal/inventory"
	"github.com/blackwell-systems/pyscope/internal/pyenv"
)

// Kind is the requested mutation.
type Kind string

const (
	KindInstall   Kind = "install"
	KindUninstall Kind = "uninstall"
	KindUpgrade   Kind = "upgrade"
	KindReinstall Kind = "reinstall"
	KindCompile   Kind = "compile"
)

// Outcome is the terminal state of an operation.
type Outcome string

const (
	OutcomeSucceeded Outcome = "succeeded"
	OutcomeFailed    Outcome = "failed"
	OutcomeCancelled Outcome = "cancelled"
	// OutcomeDeferredRestart is not a failure: the uninstall was handed off
	// to a separate process because the running application depends on the
	// target. Callers must treat it distinctly from Succeeded.
	OutcomeDeferredRestart Outcome = "deferred-restart-required"
)

// Request describes one mutation.
type Request struct {
	Env      *pyenv.Environment
	Kind     Kind
	Packages []string

	Requirements string // install from a requirements file
	InputFile    string // compile source
	OutputFile   string // compile destination
}

// Result is the terminal record of one operation.
type Result struct {
	ID      string
	Request Request
	Outcome Outcome
	Err     error

	ExitCode int
	Output   string // combined captured output for diagnosis
}

// executor is the slice of the backend selector the orchestrator needs.
type executor interface {
	Execute(ctx context.Context, env *pyenv.Environment, cmd backend.Command) (*backend.Result, error)
}

// invalidator marks inventory state stale after successful mutations.
type invalidator interface {
	MarkStale(envID string)
}

// Orchestrator validates, serializes and executes mutation requests.
type Orchestrator struct {
	exec     executor
	inv      invalidator
	deferred *DeferredQueue
	// selfPackages are the distribution names whose transitive dependency
	// closure the running application needs; uninstalling into that closure
	// triggers the deferred-restart protocol.
	selfPackages []string
	log          *zap.Logger
}

// New creates an orchestrator. deferred may be nil, in which case
// self-dependency uninstalls fail validation instead of deferring.
func New(exec executor, inv invalidator, deferred *DeferredQueue, selfPackages []string, log *zap.Logger) *Orchestrator {
	if log == nil {
		log = zap.NewNop()
	}
	return &Orchestrator{
		exec:         exec,
		inv:          inv,
		deferred:     deferred,
		selfPackages: selfPackages,
		log:          log,
	}
}

// Execute runs one request to a terminal outcome. The graph, when non-nil,
// must describe the request's environment; it is consulted for self-dependency
// detection on uninstalls.
func (o *Orchestrator) Execute(ctx context.Context, req Request, graph *depgraph.Graph) *Result {
	res := &Result{ID: uuid.NewString(), Request: req}

	if err := validate(req); err != nil {
		res.Outcome = OutcomeFailed
		res.Err = err
		return res
	}

	if req.Kind == KindUninstall && graph != nil {
		if hit := o.selfDependency(req, graph); hit != "" {
			return o.deferUninstall(res, req, hit)
		}
	}

	cmd, err := translate(req)
	if err != nil {
		res.Outcome = OutcomeFailed
		res.Err = err
		return res
	}

	o.log.Info("operation executing",
		zap.String("op", res.ID),
		zap.String("kind", string(req.Kind)),
		zap.Strings("packages", req.Packages),
		zap.String("env", req.Env.ID))

	execRes, err := o.exec.Execute(ctx, req.Env, cmd)
	if execRes != nil {
		res.ExitCode = execRes.ExitCode
		res.Output = execRes.Stdout + execRes.Stderr
	}
	switch {
	case err == nil:
		res.Outcome = OutcomeSucceeded
		o.inv.MarkStale(req.Env.ID)
	case backend.IsCancelled(err):
		res.Outcome = OutcomeCancelled
		res.Err = err
	default:
		res.Outcome = OutcomeFailed
		res.Err = err
	}
	return res
}

// ExecuteBatch runs requests sequentially against one environment,
// continuing past individual failures: later entries are independent of an
// earlier one's failure. Cancellation marks the remaining entries Cancelled
// without starting them.
func (o *Orchestrator) ExecuteBatch(ctx context.Context, reqs []Request, graph *depgraph.Graph) []*Result {
	results := make([]*Result, 0, len(reqs))
	for _, req := range reqs {
		if ctx.Err() != nil {
			results = append(results, &Result{
				ID:      uuid.NewString(),
				Request: req,
				Outcome: OutcomeCancelled,
				Err:     ctx.Err(),
			})
			continue
		}
		results = append(results, o.Execute(ctx, req, graph))
	}
	return results
}

// validate applies the fail-fast checks: no backend is invoked for a request
// that cannot possibly succeed.
func validate(req Request) error {
	if req.Env == nil {
		return errors.New("no environment selected")
	}

	switch req.Kind {
	case KindInstall:
		if len(req.Packages) == 0 && req.Requirements == "" {
			return errors.New("install: no packages or requirements file given")
		}
	case KindUninstall, KindUpgrade, KindReinstall:
		if len(req.Packages) == 0 {
			return fmt.Errorf("%s: no packages given", req.Kind)
		}
	case KindCompile:
		if req.InputFile == "" || req.OutputFile == "" {
			return errors.New("compile: input and output files are both required")
		}
		return nil
	default:
		return fmt.Errorf("unknown operation kind %q", req.Kind)
	}

	seen := make(map[string]bool, len(req.Packages))
	for _, name := range req.Packages {
		trimmed := strings.TrimSpace(name)
		if trimmed == "" {
			return fmt.Errorf("%s: empty package name", req.Kind)
		}
		canon := inventory.CanonicalName(trimmed)
		if seen[canon] {
			return fmt.Errorf("%s: package %q listed twice", req.Kind, trimmed)
		}
		seen[canon] = true
	}

	if req.Kind == KindUninstall && seen["pip"] {
		return errors.New("uninstalling pip would strand the environment; not supported")
	}
	return nil
}

// selfDependency returns the first target that sits in the application's own
// dependency closure, or "".
func (o *Orchestrator) selfDependency(req Request, graph *depgraph.Graph) string {
	if len(o.selfPackages) == 0 {
		return ""
	}
	closure := graph.Reachable(o.selfPackages)
	for _, name := range req.Packages {
		if closure[inventory.CanonicalName(name)] {
			return inventory.CanonicalName(name)
		}
	}
	return ""
}

// deferUninstall hands the removal off to the shim process instead of cutting
// the branch we are sitting on. No immediate removal is issued.
func (o *Orchestrator) deferUninstall(res *Result, req Request, hit string) *Result {
	if o.deferred == nil {
		res.Outcome = OutcomeFailed
		res.Err = fmt.Errorf("%s is a dependency of this application and no deferred queue is configured", hit)
		return res
	}
	if err := o.deferred.Enqueue(Instruction{
		ID:          res.ID,
		EnvID:       req.Env.ID,
		Interpreter: req.Env.Interpreter,
		Packages:    req.Packages,
	}); err != nil {
		res.Outcome = OutcomeFailed
		res.Err = fmt.Errorf("recording deferred uninstall: %w", err)
		return res
	}
	o.log.Info("uninstall deferred to restart",
		zap.String("op", res.ID),
		zap.String("trigger", hit),
		zap.Strings("packages", req.Packages))
	res.Outcome = OutcomeDeferredRestart
	return res
}

// translate maps a validated request onto an abstract backend command.
func translate(req Request) (backend.Command, error) {
	switch req.Kind {
	case KindInstall:
		return backend.Command{
			Action:       backend.ActionInstall,
			Packages:     req.Packages,
			Requirements: req.Requirements,
		}, nil
	case KindUpgrade:
		return backend.Command{
			Action:   backend.ActionInstall,
			Packages: req.Packages,
			Upgrade:  true,
		}, nil
	case KindReinstall:
		return backend.Command{
			Action:         backend.ActionInstall,
			Packages:       req.Packages,
			ForceReinstall: true,
		}, nil
	case KindUninstall:
		return backend.Command{
			Action:   backend.ActionUninstall,
			Packages: req.Packages,
		}, nil
	case KindCompile:
		return backend.Command{
			Action:     backend.ActionCompile,
			InputFile:  req.InputFile,
			OutputFile: req.OutputFile,
		}, nil
	}
	return backend.Command{}, fmt.Errorf("unknown operation kind %q", req.Kind)
}
