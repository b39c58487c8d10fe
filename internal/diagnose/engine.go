package diagnose

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/blackwell-systems/pyscope/internal/backend"
	"github.com/blackwell-systems/pyscope/internal/depgraph"
	"github.com/blackwell-systems/pyscope/internal/inventory"
	"github.com/blackwell-systems/pyscope/internal/pyenv"
)

// executor is the slice of the backend selector the engine needs.
type executor interface {
	Execute(ctx context.Context, env *pyenv.Environment, cmd backend.Command) (*backend.Result, error)
}

// Options selects which checks run. Checks are independent and may run in
// any combination.
type Options struct {
	Damaged         bool
	Orphans         bool
	Conflicts       bool
	Vulnerabilities bool

	// ImportCheck spawns the interpreter per package to verify the top-level
	// module imports. Slower, so opt-in like the hash check.
	ImportCheck bool
	// VerifyHashes re-hashes every file against its RECORD digest.
	VerifyHashes bool
}

// All enables the four standard checks without the expensive extras.
func All() Options {
	return Options{Damaged: true, Orphans: true, Conflicts: true, Vulnerabilities: true}
}

// Engine runs diagnostic checks over one consistent (snapshot, graph) pair.
type Engine struct {
	exec       executor
	alwaysKeep map[string]bool
	probe      func(ctx context.Context, env *pyenv.Environment, module string) pyenv.Presence
	log        *zap.Logger
}

// New creates an engine. alwaysKeep lists packages that are never orphan
// candidates regardless of graph position.
func New(exec executor, alwaysKeep []string, log *zap.Logger) *Engine {
	if log == nil {
		log = zap.NewNop()
	}
	keep := make(map[string]bool, len(alwaysKeep))
	for _, name := range alwaysKeep {
		keep[inventory.CanonicalName(name)] = true
	}
	return &Engine{exec: exec, alwaysKeep: keep, probe: pyenv.ProbeModule, log: log}
}

// Scan runs the selected checks concurrently and returns the merged findings
// in deterministic order. The graph must have been built from exactly the
// given snapshot; mixing snapshots within one scan is refused.
func (e *Engine) Scan(ctx context.Context, env *pyenv.Environment, snap *inventory.Snapshot, graph *depgraph.Graph, opts Options) ([]Finding, error) {
	if graph.SnapshotHash != snap.Hash() {
		return nil, fmt.Errorf("graph was built from snapshot %s, scan got snapshot %s",
			graph.SnapshotHash, snap.Hash())
	}

	var damaged, orphaned, conflicting, vulnerable []Finding

	g, ctx := errgroup.WithContext(ctx)
	if opts.Damaged {
		g.Go(func() error {
			damaged = e.checkDamaged(ctx, env, snap, opts)
			return ctx.Err()
		})
	}
	if opts.Orphans {
		g.Go(func() error {
			orphaned = e.checkOrphans(snap, graph)
			return nil
		})
	}
	if opts.Conflicts {
		g.Go(func() error {
			conflicting = e.checkConflicts(graph)
			return nil
		})
	}
	if opts.Vulnerabilities {
		g.Go(func() error {
			var err error
			vulnerable, err = e.checkVulnerabilities(ctx, env, snap)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	findings := make([]Finding, 0, len(damaged)+len(orphaned)+len(conflicting)+len(vulnerable))
	findings = append(findings, damaged...)
	findings = append(findings, orphaned...)
	findings = append(findings, conflicting...)
	findings = append(findings, vulnerable...)
	sortFindings(findings)

	e.log.Info("diagnostic scan complete",
		zap.String("env", env.ID),
		zap.String("snapshot", snap.Hash()),
		zap.Int("findings", len(findings)))
	return findings, nil
}
