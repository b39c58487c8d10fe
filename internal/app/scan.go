package app

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/blackwell-systems/pyscope/internal/output"
)

var (
	scanQuiet bool

	scanCmd = &cobra.Command{
		Use:   "scan",
		Short: "Take a fresh package inventory of the environment",
		Long: `Scan the environment's site-packages directories and rebuild the package
inventory. The result is cached in the database; list and doctor serve from
that cache until something changes or it expires.

A scan reads distribution metadata directly from disk, so it sees packages
installed by any tool, not just ones installed through pyscope.`,
		Example: `  # Scan the active environment
  pyscope scan

  # Scan a specific environment
  pyscope scan --env 3f9c2a1b04de`,
		RunE: runScan,
	}
)

func init() {
	scanCmd.Flags().BoolVar(&scanQuiet, "quiet", false, "suppress output")
}

func runScan(cmd *cobra.Command, args []string) error {
	app, err := newAppContext(cmd.Context())
	if err != nil {
		return err
	}
	defer app.Close()

	env, err := app.resolveEnv()
	if err != nil {
		return err
	}

	var spinner *output.Spinner
	if !scanQuiet {
		spinner = output.NewSpinner(fmt.Sprintf("Scanning %s...", env.Interpreter))
		spinner.Start()
	}

	snap, err := app.inv.Snapshot(cmd.Context(), env, true)
	if err != nil {
		if spinner != nil {
			spinner.Stop()
		}
		return err
	}

	if !scanQuiet {
		spinner.StopWithMessage(fmt.Sprintf("✓ Scan complete: %d packages (snapshot %s)",
			len(snap.Packages), snap.Hash()))
	}
	return nil
}
