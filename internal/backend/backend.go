// Package backend maps abstract package-manager commands onto concrete pip or
// uv invocations and runs them. The two dialects differ in flag syntax for
// equivalent operations; each translation lives in one Backend implementation
// so it can be tested as a plain function of (environment, command).
package backend

import (
	"fmt"
	"strings"

	"github.com/blackwell-systems/pyscope/internal/pyenv"
)

// Name identifies a backend dialect.
type Name string

const (
	NamePip Name = "pip"
	NameUV  Name = "uv"
)

// Action is an abstract, backend-agnostic operation.
type Action string

const (
	ActionInstall   Action = "install"
	ActionUninstall Action = "uninstall"
	ActionList      Action = "list"
	ActionShow      Action = "show"
	ActionCompile   Action = "compile"
	ActionAudit     Action = "audit"
	ActionVenv      Action = "venv"
)

// Command is an abstract operation with its arguments. The zero value of every
// optional field means "not requested".
type Command struct {
	Action   Action
	Packages []string

	Upgrade        bool   // install: pass the upgrade flag
	ForceReinstall bool   // install: force a clean reinstall
	Requirements   string // install: read packages from this requirements file

	Outdated bool // list: only outdated packages

	InputFile  string // compile: requirements source (.in)
	OutputFile string // compile: pinned output (.txt)

	PythonVersion string // venv: requested interpreter version (uv only)
	TargetDir     string // venv: directory to create
}

// Mutating reports whether the command changes the environment's package set.
// Mutating commands are serialized per environment by the Selector.
func (c Command) Mutating() bool {
	switch c.Action {
	case ActionInstall, ActionUninstall:
		return true
	}
	return false
}

// Result is the structured outcome of an external invocation.
type Result struct {
	Backend  Name
	Argv     []string
	ExitCode int
	Stdout   string
	Stderr   string
}

// ExecutionError is returned when the external process exits non-zero. It
// always carries the captured output so failures can be diagnosed without
// re-running the operation.
type ExecutionError struct {
	Backend  Name
	Argv     []string
	ExitCode int
	Stdout   string
	Stderr   string
}

func (e *ExecutionError) Error() string {
	detail := strings.TrimSpace(e.Stderr)
	if detail == "" {
		detail = strings.TrimSpace(e.Stdout)
	}
	if len(detail) > 300 {
		detail = detail[:300] + "..."
	}
	return fmt.Sprintf("%s exited with code %d: %s", e.Backend, e.ExitCode, detail)
}

// Backend translates abstract commands into concrete argument vectors for one
// dialect. Implementations are pure; execution happens in the Selector.
type Backend interface {
	Name() Name
	Argv(env *pyenv.Environment, cmd Command) ([]string, error)
}
