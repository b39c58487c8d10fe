package backend

import (
	"fmt"

	"github.com/blackwell-systems/pyscope/internal/pyenv"
)

// uvBackend drives the uv binary, targeting the environment's interpreter
// with -p. Preferred when available: identical semantics, much faster.
type uvBackend struct {
	path string // absolute path to the uv executable
}

// NewUV returns the fast uv backend bound to the given executable path.
func NewUV(path string) Backend { return uvBackend{path: path} }

func (uvBackend) Name() Name { return NameUV }

func (b uvBackend) Argv(env *pyenv.Environment, cmd Command) ([]string, error) {
	target := []string{"-p", env.Interpreter}

	switch cmd.Action {
	case ActionInstall:
		argv := []string{b.path, "pip", "install"}
		if cmd.Upgrade {
			argv = append(argv, "--upgrade")
		}
		if cmd.ForceReinstall {
			// uv spells pip's --force-reinstall/--no-cache-dir differently.
			argv = append(argv, "--reinstall", "--no-cache")
		}
		if cmd.Requirements != "" {
			argv = append(argv, "-r", cmd.Requirements)
		}
		argv = append(argv, cmd.Packages...)
		return append(argv, target...), nil

	case ActionUninstall:
		argv := append([]string{b.path, "pip", "uninstall"}, cmd.Packages...)
		return append(argv, target...), nil

	case ActionList:
		argv := []string{b.path, "pip", "list", "--format", "json"}
		if cmd.Outdated {
			argv = append(argv, "--outdated")
		}
		return append(argv, target...), nil

	case ActionShow:
		argv := append([]string{b.path, "pip", "show"}, cmd.Packages...)
		return append(argv, target...), nil

	case ActionCompile:
		argv := []string{b.path, "pip", "compile", "--output-file", cmd.OutputFile, cmd.InputFile}
		return append(argv, target...), nil

	case ActionAudit:
		// uv has no audit subcommand; pip-audit runs as an interpreter module
		// either way.
		return []string{env.Interpreter, "-m", "pip_audit", "-f", "json"}, nil

	case ActionVenv:
		base := env.Interpreter
		if cmd.PythonVersion != "" {
			base = cmd.PythonVersion
		}
		return []string{b.path, "venv", "-p", base, cmd.TargetDir}, nil
	}

	return nil, fmt.Errorf("uv backend: unsupported action %q", cmd.Action)
}
