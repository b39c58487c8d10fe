package app

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/blackwell-systems/pyscope/internal/depgraph"
	"github.com/blackwell-systems/pyscope/internal/diagnose"
	"github.com/blackwell-systems/pyscope/internal/orchestrator"
	"github.com/blackwell-systems/pyscope/internal/output"
	"github.com/blackwell-systems/pyscope/internal/pyenv"
)

var (
	doctorDamaged      bool
	doctorOrphans      bool
	doctorConflicts    bool
	doctorAudit        bool
	doctorImportCheck  bool
	doctorVerifyHashes bool
	doctorRefresh      bool
	doctorFix          bool
	doctorYes          bool

	doctorCmd = &cobra.Command{
		Use:   "doctor",
		Short: "Diagnose package problems in the environment",
		Long: `Run diagnostic checks over the environment's package inventory:

  damaged    metadata unreadable, owned files missing, imports failing
  orphans    packages installed as dependencies that nothing requires anymore
  conflicts  declared version constraints that the installed set violates
  audit      known vulnerabilities, via pip-audit

By default all four checks run. Selecting one or more check flags runs only
those. The damaged check accepts two opt-in extras: --import-check spawns the
interpreter per package, and --verify-hashes re-hashes every installed file.

With --fix, the suggested remedies are applied through the backend:
reinstalls for damaged packages, uninstalls for orphans, upgrades for
conflicting or vulnerable packages.`,
		Example: `  # Run every check
  pyscope doctor

  # Only orphans and conflicts
  pyscope doctor --orphans --conflicts

  # Deep damage check
  pyscope doctor --damaged --import-check --verify-hashes

  # Apply the suggested remedies
  pyscope doctor --fix`,
		RunE: runDoctor,
	}
)

func init() {
	doctorCmd.Flags().BoolVar(&doctorDamaged, "damaged", false, "check for damaged installs")
	doctorCmd.Flags().BoolVar(&doctorOrphans, "orphans", false, "check for orphaned dependencies")
	doctorCmd.Flags().BoolVar(&doctorConflicts, "conflicts", false, "check for version conflicts")
	doctorCmd.Flags().BoolVar(&doctorAudit, "audit", false, "check for known vulnerabilities")
	doctorCmd.Flags().BoolVar(&doctorImportCheck, "import-check", false, "verify each package's top-level module imports (slow)")
	doctorCmd.Flags().BoolVar(&doctorVerifyHashes, "verify-hashes", false, "verify installed files against their recorded hashes (slow)")
	doctorCmd.Flags().BoolVar(&doctorRefresh, "refresh", false, "rescan the inventory before diagnosing")
	doctorCmd.Flags().BoolVar(&doctorFix, "fix", false, "apply the suggested remedies")
	doctorCmd.Flags().BoolVar(&doctorYes, "yes", false, "skip confirmation prompts")
}

// doctorOptions maps the check flags onto engine options. No check flag at
// all means every check.
func doctorOptions() diagnose.Options {
	opts := diagnose.Options{
		Damaged:         doctorDamaged,
		Orphans:         doctorOrphans,
		Conflicts:       doctorConflicts,
		Vulnerabilities: doctorAudit,
	}
	if !opts.Damaged && !opts.Orphans && !opts.Conflicts && !opts.Vulnerabilities {
		opts = diagnose.All()
	}
	opts.ImportCheck = doctorImportCheck
	opts.VerifyHashes = doctorVerifyHashes
	return opts
}

func runDoctor(cmd *cobra.Command, args []string) error {
	app, err := newAppContext(cmd.Context())
	if err != nil {
		return err
	}
	defer app.Close()

	env, err := app.resolveEnv()
	if err != nil {
		return err
	}

	snap, err := app.inv.Snapshot(cmd.Context(), env, doctorRefresh)
	if err != nil {
		return err
	}
	graph := depgraph.Build(snap)

	spinner := output.NewSpinner(fmt.Sprintf("Diagnosing %d packages...", len(snap.Packages)))
	spinner.Start()
	findings, err := app.engine().Scan(cmd.Context(), env, snap, graph, doctorOptions())
	if err != nil {
		spinner.Stop()
		return err
	}
	spinner.Stop()

	if err := app.st.SaveFindings(env.ID, snap.Hash(), findings); err != nil {
		app.log.Warn("could not persist findings")
	}

	fmt.Print(output.RenderFindingsTable(findings))

	if !doctorFix {
		return nil
	}
	return applyRemedies(cmd, app, env, graph, findings)
}

// applyRemedies turns findings into mutation requests. Only remedies whose
// target is the finding's own package are applied automatically; a missing
// dependency names its target in the detail text and is left to the user.
func applyRemedies(cmd *cobra.Command, app *appContext, env *pyenv.Environment, graph *depgraph.Graph, findings []diagnose.Finding) error {
	var reqs []orchestrator.Request
	for _, f := range findings {
		var kind orchestrator.Kind
		switch f.Remedy {
		case diagnose.RemedyReinstall:
			kind = orchestrator.KindReinstall
		case diagnose.RemedyUninstall:
			kind = orchestrator.KindUninstall
		case diagnose.RemedyUpgrade:
			kind = orchestrator.KindUpgrade
		case diagnose.RemedyInstall:
			if f.Kind != diagnose.KindDegraded {
				fmt.Printf("⚠ %s: %s - install the missing dependency manually\n", f.Package, f.Detail)
				continue
			}
			kind = orchestrator.KindInstall
		default:
			continue
		}
		reqs = append(reqs, orchestrator.Request{
			Env:      env,
			Kind:     kind,
			Packages: []string{f.Package},
		})
	}

	if len(reqs) == 0 {
		fmt.Println("Nothing to fix.")
		return nil
	}

	fmt.Printf("\n%d remedies to apply:\n", len(reqs))
	for _, req := range reqs {
		fmt.Printf("  %s %s\n", req.Kind, req.Packages[0])
	}
	if !doctorYes && !confirm("Proceed?") {
		fmt.Println("Aborted.")
		return nil
	}

	results := app.orch.ExecuteBatch(cmd.Context(), reqs, graph)
	fmt.Print(output.RenderOperationResults(results))
	return nil
}
