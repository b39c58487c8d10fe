package app

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/blackwell-systems/pyscope/internal/orchestrator"
	"github.com/blackwell-systems/pyscope/internal/output"
	"github.com/blackwell-systems/pyscope/internal/pyenv"
)

var (
	compileOutput string
	compileYes    bool

	compileCmd = &cobra.Command{
		Use:   "compile <requirements.in>",
		Short: "Pin a requirements file to exact versions",
		Long: `Resolve a loose requirements file into a fully pinned one, using
uv's compiler when uv is available and pip-tools otherwise.`,
		Example: `  # Pin requirements.in into requirements.txt
  pyscope compile requirements.in

  # Write the pins somewhere else
  pyscope compile requirements.in -o constraints.txt`,
		Args: cobra.ExactArgs(1),
		RunE: runCompile,
	}
)

func init() {
	compileCmd.Flags().StringVarP(&compileOutput, "output", "o", "requirements.txt", "output file for the pinned requirements")
	compileCmd.Flags().BoolVar(&compileYes, "yes", false, "skip confirmation prompts")
}

func runCompile(cmd *cobra.Command, args []string) error {
	app, err := newAppContext(cmd.Context())
	if err != nil {
		return err
	}
	defer app.Close()

	env, err := app.resolveEnv()
	if err != nil {
		return err
	}

	// Without uv the compiler is pip-tools, which is not part of a default
	// environment. Probe first and offer to install it instead of failing
	// with a cryptic "No module named piptools".
	if det := app.selector.Detect(cmd.Context(), env); !det.UVAvailable {
		if pyenv.ProbeModule(cmd.Context(), env, "piptools") == pyenv.PresenceAbsent {
			fmt.Println("pip-tools is not installed in this environment and uv is not available.")
			if !compileYes && !confirm("Install pip-tools now?") {
				return fmt.Errorf("compile requires pip-tools or uv")
			}
			res := app.orch.Execute(cmd.Context(), orchestrator.Request{
				Env:      env,
				Kind:     orchestrator.KindInstall,
				Packages: []string{"pip-tools"},
			}, nil)
			if res.Outcome != orchestrator.OutcomeSucceeded {
				fmt.Print(output.RenderOperationResults([]*orchestrator.Result{res}))
				return fmt.Errorf("could not install pip-tools")
			}
		}
	}

	spinner := output.NewSpinner(fmt.Sprintf("Resolving %s...", args[0]))
	spinner.Start()
	res := app.orch.Execute(cmd.Context(), orchestrator.Request{
		Env:        env,
		Kind:       orchestrator.KindCompile,
		InputFile:  args[0],
		OutputFile: compileOutput,
	}, nil)
	spinner.Stop()

	if res.Outcome != orchestrator.OutcomeSucceeded {
		fmt.Print(output.RenderOperationResults([]*orchestrator.Result{res}))
		return fmt.Errorf("compile failed")
	}
	fmt.Printf("✓ Pinned requirements written to %s\n", compileOutput)
	return nil
}
