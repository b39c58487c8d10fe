package app

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/blackwell-systems/pyscope/internal/inventory"
	"github.com/blackwell-systems/pyscope/internal/output"
)

var (
	listOutdated bool
	listRefresh  bool

	listCmd = &cobra.Command{
		Use:   "list",
		Short: "List installed packages",
		Long: `List the packages installed in the environment, served from the cached
inventory. Use --refresh to force a rescan, or --outdated to ask the backend
which packages have newer releases available.`,
		Example: `  # List packages from the cache
  pyscope list

  # Force a fresh scan first
  pyscope list --refresh

  # Show available upgrades
  pyscope list --outdated`,
		RunE: runList,
	}
)

func init() {
	listCmd.Flags().BoolVar(&listOutdated, "outdated", false, "show packages with newer versions available")
	listCmd.Flags().BoolVar(&listRefresh, "refresh", false, "rescan instead of serving the cache")
}

func runList(cmd *cobra.Command, args []string) error {
	app, err := newAppContext(cmd.Context())
	if err != nil {
		return err
	}
	defer app.Close()

	env, err := app.resolveEnv()
	if err != nil {
		return err
	}

	if listOutdated {
		spinner := output.NewSpinner("Checking for updates...")
		spinner.Start()
		outdated, err := inventory.Outdated(cmd.Context(), app.selector, env)
		if err != nil {
			spinner.Stop()
			return err
		}
		spinner.Stop()
		fmt.Print(output.RenderOutdatedTable(outdated))
		return nil
	}

	snap, err := app.inv.Snapshot(cmd.Context(), env, listRefresh)
	if err != nil {
		return err
	}
	fmt.Print(output.RenderPackageTable(snap))
	return nil
}
