package app

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/blackwell-systems/pyscope/internal/inventory"
	"github.com/blackwell-systems/pyscope/internal/orchestrator"
	"github.com/blackwell-systems/pyscope/internal/output"
)

var (
	upgradeAll bool
	upgradeYes bool

	upgradeCmd = &cobra.Command{
		Use:   "upgrade [packages...]",
		Short: "Upgrade packages to their latest versions",
		Long: `Upgrade the named packages, or with --all every package the backend
reports as outdated. Each package is upgraded as its own operation: one
failure does not stop the rest, and the summary reports every outcome.`,
		Example: `  # Upgrade specific packages
  pyscope upgrade requests urllib3

  # Upgrade everything that is outdated
  pyscope upgrade --all`,
		RunE: runUpgrade,
	}
)

func init() {
	upgradeCmd.Flags().BoolVar(&upgradeAll, "all", false, "upgrade every outdated package")
	upgradeCmd.Flags().BoolVar(&upgradeYes, "yes", false, "skip confirmation prompts")
}

func runUpgrade(cmd *cobra.Command, args []string) error {
	app, err := newAppContext(cmd.Context())
	if err != nil {
		return err
	}
	defer app.Close()

	env, err := app.resolveEnv()
	if err != nil {
		return err
	}

	targets := args
	if upgradeAll {
		if len(args) > 0 {
			return fmt.Errorf("--all and named packages are mutually exclusive")
		}
		spinner := output.NewSpinner("Checking for updates...")
		spinner.Start()
		outdated, err := inventory.Outdated(cmd.Context(), app.selector, env)
		spinner.Stop()
		if err != nil {
			return err
		}
		if len(outdated) == 0 {
			fmt.Println("✓ Everything is up to date.")
			return nil
		}

		fmt.Print(output.RenderOutdatedTable(outdated))
		if !upgradeYes && !confirm("Upgrade all of these?") {
			fmt.Println("Aborted.")
			return nil
		}
		for name := range outdated {
			targets = append(targets, name)
		}
		sort.Strings(targets)
	}
	if len(targets) == 0 {
		return fmt.Errorf("nothing to upgrade; name packages or pass --all")
	}

	reqs := make([]orchestrator.Request, 0, len(targets))
	for _, name := range targets {
		reqs = append(reqs, orchestrator.Request{
			Env:      env,
			Kind:     orchestrator.KindUpgrade,
			Packages: []string{name},
		})
	}

	bar := output.NewProgress(len(reqs), "Upgrading")
	results := make([]*orchestrator.Result, 0, len(reqs))
	for _, req := range reqs {
		bar.SetLabel(req.Packages[0])
		results = append(results, app.orch.ExecuteBatch(cmd.Context(), []orchestrator.Request{req}, nil)...)
		bar.Increment()
	}
	bar.Finish()
	fmt.Print(output.RenderOperationResults(results))

	failed := 0
	for _, res := range results {
		if res.Outcome == orchestrator.OutcomeFailed {
			failed++
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d upgrades failed", failed, len(results))
	}
	return nil
}
