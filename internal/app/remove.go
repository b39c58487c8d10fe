package app

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/blackwell-systems/pyscope/internal/depgraph"
	"github.com/blackwell-systems/pyscope/internal/inventory"
	"github.com/blackwell-systems/pyscope/internal/orchestrator"
	"github.com/blackwell-systems/pyscope/internal/output"
)

var (
	removeYes bool

	removeCmd = &cobra.Command{
		Use:   "remove <packages...>",
		Short: "Uninstall packages from the environment",
		Long: `Uninstall packages through the environment's backend.

Packages that other installed packages still require are refused unless
confirmed. Removing a package the application itself depends on is not
executed immediately; it is queued and runs on the next restart, before any
package metadata is loaded.`,
		Example: `  # Remove a package
  pyscope remove leftpad

  # Remove several without prompting
  pyscope remove --yes six enum34`,
		Args: cobra.MinimumNArgs(1),
		RunE: runRemove,
	}
)

func init() {
	removeCmd.Flags().BoolVar(&removeYes, "yes", false, "skip confirmation prompts")
}

func runRemove(cmd *cobra.Command, args []string) error {
	app, err := newAppContext(cmd.Context())
	if err != nil {
		return err
	}
	defer app.Close()

	env, err := app.resolveEnv()
	if err != nil {
		return err
	}

	snap, err := app.inv.Snapshot(cmd.Context(), env, false)
	if err != nil {
		return err
	}
	graph := depgraph.Build(snap)

	// Surface still-needed packages before anything runs.
	var warnings []string
	for _, name := range args {
		canon := inventory.CanonicalName(name)
		if snap.Get(canon) == nil {
			warnings = append(warnings, fmt.Sprintf("%s is not installed", name))
			continue
		}
		if deps := graph.Dependents(canon); len(deps) > 0 {
			warnings = append(warnings, fmt.Sprintf("%s is still required by %s",
				name, strings.Join(deps, ", ")))
		}
	}
	if len(warnings) > 0 {
		for _, w := range warnings {
			fmt.Printf("⚠ %s\n", w)
		}
		if !removeYes && !confirm("Remove anyway?") {
			fmt.Println("Aborted.")
			return nil
		}
	} else if !removeYes && !confirm(fmt.Sprintf("Remove %s?", strings.Join(args, ", "))) {
		fmt.Println("Aborted.")
		return nil
	}

	res := app.orch.Execute(cmd.Context(), orchestrator.Request{
		Env:      env,
		Kind:     orchestrator.KindUninstall,
		Packages: args,
	}, graph)

	fmt.Print(output.RenderOperationResults([]*orchestrator.Result{res}))
	if res.Outcome == orchestrator.OutcomeFailed {
		return fmt.Errorf("remove failed")
	}
	return nil
}
