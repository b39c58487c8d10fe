// Command pyscope-shim drains the deferred uninstall queue.
//
// Removing a package the application itself imports cannot happen while the
// application is running: the interpreter holds the package's files open and a
// mid-flight uninstall would tear the process out from under itself. Those
// removals are queued as instruction files instead. This binary runs at
// startup, before any package metadata is loaded, and replays them against the
// environment's backend, deleting each instruction once it has been applied.
//
// Exit code 0 means every pending instruction was applied (or there were
// none); 1 means at least one failed and remains queued for the next run.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"go.uber.org/zap"

	"github.com/blackwell-systems/pyscope/internal/backend"
	"github.com/blackwell-systems/pyscope/internal/config"
	"github.com/blackwell-systems/pyscope/internal/orchestrator"
	"github.com/blackwell-systems/pyscope/internal/pyenv"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "pyscope-shim: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	dataDir, err := config.DataDir()
	if err != nil {
		return err
	}
	queue, err := orchestrator.NewDeferredQueue(filepath.Join(dataDir, "deferred"))
	if err != nil {
		return err
	}

	pending, err := queue.Pending()
	if err != nil {
		return err
	}
	if len(pending) == 0 {
		return nil
	}

	selector := backend.NewSelector(zap.NewNop())

	failed := 0
	for _, ins := range pending {
		// The instruction carries everything needed to address the
		// environment; no discovery, no database.
		env := &pyenv.Environment{
			ID:          ins.EnvID,
			Interpreter: ins.Interpreter,
		}

		fmt.Printf("applying deferred removal of %v from %s\n", ins.Packages, ins.EnvID)
		_, err := selector.Execute(ctx, env, backend.Command{
			Action:   backend.ActionUninstall,
			Packages: ins.Packages,
		})
		if err != nil {
			if backend.IsCancelled(err) {
				return err
			}
			// Leave the instruction queued; the next startup retries it.
			fmt.Fprintf(os.Stderr, "pyscope-shim: removal %s failed: %v\n", ins.ID, err)
			failed++
			continue
		}
		if err := queue.Complete(ins.ID); err != nil {
			fmt.Fprintf(os.Stderr, "pyscope-shim: %v\n", err)
			failed++
		}
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d deferred removals failed", failed, len(pending))
	}
	return nil
}
