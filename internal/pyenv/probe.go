package pyenv

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"
)

// introspectScript prints the interpreter facts we need as one JSON object.
// base_prefix != prefix is the standard venv marker.
const introspectScript = `import json, sys, sysconfig
print(json.dumps({
    "version": "%d.%d.%d" % sys.version_info[:3],
    "prefix": sys.prefix,
    "base_prefix": getattr(sys, "base_prefix", sys.prefix),
    "site_packages": sorted(set(p for p in (sysconfig.get_path("purelib"), sysconfig.get_path("platlib")) if p)),
}))`

type introspectResult struct {
	Version      string   `json:"version"`
	Prefix       string   `json:"prefix"`
	BasePrefix   string   `json:"base_prefix"`
	SitePackages []string `json:"site_packages"`
}

const probeTimeout = 10 * time.Second

// Probe runs the candidate interpreter and builds an Environment from what it
// reports about itself. Fails if the path does not exist, is not a Python
// interpreter, or does not answer within the probe timeout.
func Probe(ctx context.Context, interpreter string) (*Environment, error) {
	if _, err := os.Stat(interpreter); err != nil {
		return nil, fmt.Errorf("interpreter not accessible: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, interpreter, "-c", introspectScript)
	output, err := cmd.Output()
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			return nil, fmt.Errorf("interpreter probe failed: %w (stderr: %s)", err, string(exitErr.Stderr))
		}
		return nil, fmt.Errorf("interpreter probe failed: %w", err)
	}

	var info introspectResult
	if err := json.Unmarshal(output, &info); err != nil {
		return nil, fmt.Errorf("unexpected probe output: %w", err)
	}
	if info.Version == "" || len(info.SitePackages) == 0 {
		return nil, fmt.Errorf("probe returned incomplete interpreter facts")
	}

	kind := KindSystem
	if info.Prefix != info.BasePrefix {
		kind = KindVirtual
	}

	return &Environment{
		ID:           EnvID(interpreter),
		Interpreter:  interpreter,
		Kind:         kind,
		Version:      info.Version,
		Prefix:       info.Prefix,
		SitePackages: info.SitePackages,
	}, nil
}

// ProbeModule checks whether a module can be imported in the environment.
// Exit 0 means available, a clean non-zero exit means the import raised
// (absent), and a spawn or timeout failure means we could not determine.
func ProbeModule(ctx context.Context, env *Environment, module string) Presence {
	if strings.TrimSpace(module) == "" {
		return PresenceUnknown
	}
	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, env.Interpreter, "-c", fmt.Sprintf("__import__(%q)", module))
	err := cmd.Run()
	if err == nil {
		return PresenceAvailable
	}
	if ctx.Err() != nil {
		return PresenceUnknown
	}
	if _, ok := err.(*exec.ExitError); ok {
		return PresenceAbsent
	}
	return PresenceUnknown
}
