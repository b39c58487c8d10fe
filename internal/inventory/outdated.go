package inventory

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/blackwell-systems/pyscope/internal/backend"
	"github.com/blackwell-systems/pyscope/internal/pyenv"
)

// executor is the slice of the backend selector this package needs.
type executor interface {
	Execute(ctx context.Context, env *pyenv.Environment, cmd backend.Command) (*backend.Result, error)
}

// OutdatedInfo describes one package with a newer release available.
type OutdatedInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
	Latest  string `json:"latest_version"`
}

// Outdated queries the backend for packages with available updates. The
// result is keyed by canonical name, which absorbs the pip/uv naming
// differences in their JSON output.
func Outdated(ctx context.Context, exec executor, env *pyenv.Environment) (map[string]OutdatedInfo, error) {
	res, err := exec.Execute(ctx, env, backend.Command{Action: backend.ActionList, Outdated: true})
	if err != nil {
		return nil, fmt.Errorf("outdated check: %w", err)
	}

	var items []OutdatedInfo
	if err := json.Unmarshal([]byte(res.Stdout), &items); err != nil {
		return nil, fmt.Errorf("outdated check: unexpected list output: %w", err)
	}

	out := make(map[string]OutdatedInfo, len(items))
	for _, item := range items {
		out[CanonicalName(item.Name)] = item
	}
	return out, nil
}
