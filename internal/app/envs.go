package app

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/blackwell-systems/pyscope/internal/backend"
	"github.com/blackwell-systems/pyscope/internal/orchestrator"
	"github.com/blackwell-systems/pyscope/internal/output"
	"github.com/blackwell-systems/pyscope/internal/pyenv"
)

var (
	envsCreatePython string
	envsCreateSeed   []string
	envsCreateUse    bool

	envsCmd = &cobra.Command{
		Use:   "envs",
		Short: "List and manage Python environments",
		Long: `List discovered Python environments and manage which one is active.

Discovery probes python3 and python on PATH plus any interpreters listed in
the config file or registered with 'envs add'. Each environment is identified
by a short stable ID derived from its interpreter path.`,
		Example: `  # List environments
  pyscope envs

  # Switch the active environment
  pyscope envs use 3f9c2a1b04de

  # Register an interpreter discovery cannot see
  pyscope envs add /opt/python3.11/bin/python3

  # Create a fresh virtual environment and register it
  pyscope envs create ./venv`,
		RunE: runEnvsList,
	}

	envsUseCmd = &cobra.Command{
		Use:   "use <env-id>",
		Short: "Switch the active environment",
		Args:  cobra.ExactArgs(1),
		RunE:  runEnvsUse,
	}

	envsAddCmd = &cobra.Command{
		Use:   "add <interpreter>",
		Short: "Register an interpreter path",
		Args:  cobra.ExactArgs(1),
		RunE:  runEnvsAdd,
	}

	envsCreateCmd = &cobra.Command{
		Use:   "create <directory>",
		Short: "Create a virtual environment and register it",
		Args:  cobra.ExactArgs(1),
		RunE:  runEnvsCreate,
	}
)

func init() {
	envsCreateCmd.Flags().StringVar(&envsCreatePython, "python", "", "Python version for the new environment (uv only, e.g. 3.12)")
	envsCreateCmd.Flags().StringSliceVar(&envsCreateSeed, "seed", nil, "packages to install into the new environment")
	envsCreateCmd.Flags().BoolVar(&envsCreateUse, "use", false, "make the new environment active")

	envsCmd.AddCommand(envsUseCmd)
	envsCmd.AddCommand(envsAddCmd)
	envsCmd.AddCommand(envsCreateCmd)
}

func runEnvsList(cmd *cobra.Command, args []string) error {
	app, err := newAppContext(cmd.Context())
	if err != nil {
		return err
	}
	defer app.Close()

	if w := output.RenderDiscoveryWarnings(app.registry.Warnings()); w != "" {
		fmt.Print(w)
	}

	activeID := ""
	if env := app.registry.Active(); env != nil {
		activeID = env.ID
	}
	fmt.Print(output.RenderEnvironmentTable(app.registry.List(), activeID))
	return nil
}

func runEnvsUse(cmd *cobra.Command, args []string) error {
	app, err := newAppContext(cmd.Context())
	if err != nil {
		return err
	}
	defer app.Close()

	id := args[0]
	prev, err := switchActiveEnv(app.registry, id)
	if err != nil {
		return err
	}
	// The outgoing environment's in-memory view is session state; drop it.
	// The new environment keeps whatever it has cached.
	if prev != "" && prev != id {
		app.inv.DropSession(prev)
	}
	if err := saveActiveEnv(id); err != nil {
		return fmt.Errorf("failed to persist active environment: %w", err)
	}

	env, _ := app.registry.Get(id)
	fmt.Printf("✓ Active environment is now %s (%s)\n", env.ID, env.Interpreter)
	return nil
}

// switchActiveEnv makes id the active environment and returns the ID of the
// environment it replaced, or "" when none was active.
func switchActiveEnv(registry *pyenv.Registry, id string) (string, error) {
	prev := ""
	if env := registry.Active(); env != nil {
		prev = env.ID
	}
	if err := registry.SetActive(id); err != nil {
		return "", err
	}
	return prev, nil
}

func runEnvsAdd(cmd *cobra.Command, args []string) error {
	app, err := newAppContext(cmd.Context())
	if err != nil {
		return err
	}
	defer app.Close()

	env, err := app.registry.Add(cmd.Context(), args[0])
	if err != nil {
		return fmt.Errorf("interpreter %s did not probe: %w", args[0], err)
	}
	if err := app.st.SaveEnvironment(env); err != nil {
		return fmt.Errorf("failed to persist environment: %w", err)
	}

	fmt.Printf("✓ Registered %s (%s, Python %s)\n", env.ID, env.Interpreter, env.Version)
	return nil
}

func runEnvsCreate(cmd *cobra.Command, args []string) error {
	app, err := newAppContext(cmd.Context())
	if err != nil {
		return err
	}
	defer app.Close()

	base, err := app.resolveEnv()
	if err != nil {
		return err
	}

	spinner := output.NewSpinner(fmt.Sprintf("Creating virtual environment in %s...", args[0]))
	spinner.Start()
	_, err = app.selector.Execute(cmd.Context(), base, backend.Command{
		Action:        backend.ActionVenv,
		TargetDir:     args[0],
		PythonVersion: envsCreatePython,
	})
	if err != nil {
		spinner.Stop()
		return fmt.Errorf("failed to create virtual environment: %w", err)
	}
	spinner.StopWithMessage("✓ Virtual environment created")

	interp := venvInterpreter(args[0])
	env, err := app.registry.Add(cmd.Context(), interp)
	if err != nil {
		return fmt.Errorf("created environment did not probe: %w", err)
	}
	if err := app.st.SaveEnvironment(env); err != nil {
		return fmt.Errorf("failed to persist environment: %w", err)
	}

	if len(envsCreateSeed) > 0 {
		res := app.orch.Execute(cmd.Context(), orchestrator.Request{
			Env:      env,
			Kind:     orchestrator.KindInstall,
			Packages: envsCreateSeed,
		}, nil)
		fmt.Print(output.RenderOperationResults([]*orchestrator.Result{res}))
		if res.Outcome == orchestrator.OutcomeFailed {
			return fmt.Errorf("seeding the new environment failed")
		}
	}

	if envsCreateUse {
		if err := app.registry.SetActive(env.ID); err != nil {
			return err
		}
		if err := saveActiveEnv(env.ID); err != nil {
			return fmt.Errorf("failed to persist active environment: %w", err)
		}
		fmt.Printf("✓ Registered %s and made it active\n", env.Interpreter)
		return nil
	}
	fmt.Printf("✓ Registered %s. Activate it with: pyscope envs use %s\n", env.Interpreter, env.ID)
	return nil
}
