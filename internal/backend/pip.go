package backend

import (
	"fmt"

	"github.com/blackwell-systems/pyscope/internal/pyenv"
)

// pipBackend runs pip as a module of the target interpreter. This is the
// baseline dialect: always available wherever pip itself is installed.
type pipBackend struct{}

// NewPip returns the baseline pip backend.
func NewPip() Backend { return pipBackend{} }

func (pipBackend) Name() Name { return NamePip }

func (pipBackend) Argv(env *pyenv.Environment, cmd Command) ([]string, error) {
	base := []string{env.Interpreter, "-m", "pip"}

	switch cmd.Action {
	case ActionInstall:
		argv := append(base, "install")
		if cmd.Upgrade {
			argv = append(argv, "--upgrade")
		}
		if cmd.ForceReinstall {
			argv = append(argv, "--force-reinstall", "--no-cache-dir")
		}
		if cmd.Requirements != "" {
			argv = append(argv, "-r", cmd.Requirements)
		}
		return append(argv, cmd.Packages...), nil

	case ActionUninstall:
		// pip prompts without --yes; uv never prompts.
		argv := append(base, "uninstall", "--yes")
		return append(argv, cmd.Packages...), nil

	case ActionList:
		argv := append(base, "list", "--format", "json")
		if cmd.Outdated {
			argv = append(argv, "--outdated")
		}
		return argv, nil

	case ActionShow:
		return append(append(base, "show"), cmd.Packages...), nil

	case ActionCompile:
		return []string{env.Interpreter, "-m", "piptools", "compile",
			"--output-file", cmd.OutputFile, cmd.InputFile}, nil

	case ActionAudit:
		return []string{env.Interpreter, "-m", "pip_audit", "-f", "json"}, nil

	case ActionVenv:
		return []string{env.Interpreter, "-m", "venv", cmd.TargetDir}, nil
	}

	return nil, fmt.Errorf("pip backend: unsupported action %q", cmd.Action)
}
