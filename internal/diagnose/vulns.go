package diagnose

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/blackwell-systems/pyscope/internal/backend"
	"github.com/blackwell-systems/pyscope/internal/inventory"
	"github.com/blackwell-systems/pyscope/internal/pyenv"
)

// auditReport mirrors the JSON pip-audit emits with -f json.
type auditReport struct {
	Dependencies []struct {
		Name    string `json:"name"`
		Version string `json:"version"`
		Vulns   []struct {
			ID          string   `json:"id"`
			Description string   `json:"description"`
			FixVersions []string `json:"fix_versions"`
		} `json:"vulns"`
	} `json:"dependencies"`
}

// checkVulnerabilities delegates to pip-audit through the backend selector.
// A scanner that is missing or fails to run produces a single degraded
// finding; it never takes the rest of the scan down with it. Only
// cancellation propagates as an error.
func (e *Engine) checkVulnerabilities(ctx context.Context, env *pyenv.Environment, snap *inventory.Snapshot) ([]Finding, error) {
	switch e.probe(ctx, env, "pip_audit") {
	case pyenv.PresenceAbsent:
		return []Finding{degraded("pip-audit is not installed in this environment; install it to enable vulnerability scanning")}, nil
	case pyenv.PresenceUnknown:
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return []Finding{degraded("could not determine whether pip-audit is available")}, nil
	}

	res, err := e.exec.Execute(ctx, env, backend.Command{Action: backend.ActionAudit})
	if err != nil {
		if backend.IsCancelled(err) {
			return nil, err
		}
		// pip-audit exits non-zero when it finds vulnerabilities; the JSON
		// report is still on stdout.
		var execErr *backend.ExecutionError
		if !errors.As(err, &execErr) || strings.TrimSpace(execErr.Stdout) == "" {
			e.log.Warn("vulnerability scan failed", zap.String("env", env.ID), zap.Error(err))
			return []Finding{degraded(fmt.Sprintf("vulnerability scan failed: %v", err))}, nil
		}
		res = &backend.Result{Stdout: execErr.Stdout, Stderr: execErr.Stderr, ExitCode: execErr.ExitCode}
	}

	var report auditReport
	if err := json.Unmarshal([]byte(res.Stdout), &report); err != nil {
		return []Finding{degraded(fmt.Sprintf("vulnerability scan produced unreadable output: %v", err))}, nil
	}

	var findings []Finding
	for _, dep := range report.Dependencies {
		name := inventory.CanonicalName(dep.Name)
		for _, v := range dep.Vulns {
			detail := fmt.Sprintf("%s: %s", v.ID, v.Description)
			remedy := RemedyNone
			if len(v.FixVersions) > 0 {
				detail += fmt.Sprintf(" (fixed in %s)", strings.Join(v.FixVersions, ", "))
				remedy = RemedyUpgrade
			}
			findings = append(findings, Finding{
				Package:  name,
				Kind:     KindVulnerable,
				Severity: SeverityHigh,
				Detail:   detail,
				Remedy:   remedy,
			})
		}
	}
	return findings, nil
}

func degraded(detail string) Finding {
	return Finding{
		Package:  "pip-audit",
		Kind:     KindDegraded,
		Severity: SeverityInfo,
		Detail:   detail,
		Remedy:   RemedyInstall,
	}
}
