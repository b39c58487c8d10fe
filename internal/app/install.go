package app

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/blackwell-systems/pyscope/internal/orchestrator"
	"github.com/blackwell-systems/pyscope/internal/output"
	"github.com/blackwell-systems/pyscope/internal/reqfile"
)

var (
	installRequirements   string
	installPyproject      string
	installExtras         []string
	installForceReinstall bool

	installCmd = &cobra.Command{
		Use:   "install [packages...]",
		Short: "Install packages into the environment",
		Long: `Install packages through the environment's backend (uv when available,
pip otherwise). Packages may be named on the command line, read from a
requirements file, or taken from a pyproject.toml [project] table.

A successful install invalidates the cached inventory so the next list or
doctor sees the new state.`,
		Example: `  # Install named packages
  pyscope install requests "flask>=3.0"

  # Install from a requirements file
  pyscope install -r requirements.txt

  # Install a project's dependencies, including an extras group
  pyscope install --pyproject ./pyproject.toml --extra dev

  # Repair an install by force-reinstalling it
  pyscope install --force-reinstall requests`,
		RunE: runInstall,
	}
)

func init() {
	installCmd.Flags().StringVarP(&installRequirements, "requirements", "r", "", "install from a requirements file")
	installCmd.Flags().StringVar(&installPyproject, "pyproject", "", "install dependencies from a pyproject.toml")
	installCmd.Flags().StringSliceVar(&installExtras, "extra", nil, "optional dependency groups to include (with --pyproject)")
	installCmd.Flags().BoolVar(&installForceReinstall, "force-reinstall", false, "reinstall even if already installed")
}

func runInstall(cmd *cobra.Command, args []string) error {
	app, err := newAppContext(cmd.Context())
	if err != nil {
		return err
	}
	defer app.Close()

	env, err := app.resolveEnv()
	if err != nil {
		return err
	}

	req := orchestrator.Request{
		Env:      env,
		Kind:     orchestrator.KindInstall,
		Packages: args,
	}
	if installForceReinstall {
		req.Kind = orchestrator.KindReinstall
	}

	switch {
	case installPyproject != "":
		parsed, err := reqfile.ParsePyproject(installPyproject, installExtras)
		if err != nil {
			return err
		}
		reportParseWarnings(parsed)
		req.Packages = append(req.Packages, parsed.Names()...)
	case installRequirements != "":
		// Pre-parse for early feedback; the file itself is handed to the
		// backend so its own resolution rules apply.
		parsed, err := reqfile.ParseRequirements(installRequirements)
		if err != nil {
			return err
		}
		reportParseWarnings(parsed)
		req.Requirements = installRequirements
	}

	spinner := output.NewSpinner("Installing...")
	spinner.Start()
	res := app.orch.Execute(cmd.Context(), req, nil)
	spinner.Stop()

	fmt.Print(output.RenderOperationResults([]*orchestrator.Result{res}))
	if res.Outcome == orchestrator.OutcomeFailed {
		return fmt.Errorf("install failed")
	}
	return nil
}

func reportParseWarnings(f *reqfile.File) {
	for _, w := range f.Warnings {
		fmt.Printf("⚠ %s:%d: %s (%s)\n", f.Path, w.Line, w.Text, w.Reason)
	}
}
