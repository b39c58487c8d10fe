package diagnose

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/blackwell-systems/pyscope/internal/inventory"
	"github.com/blackwell-systems/pyscope/internal/pyenv"
)

// checkDamaged verifies each package against three sub-checks: owned files
// present, top-level module importable, required metadata fields readable.
// Severity scales with how many sub-checks failed.
func (e *Engine) checkDamaged(ctx context.Context, env *pyenv.Environment, snap *inventory.Snapshot, opts Options) []Finding {
	var findings []Finding

	for _, pkg := range snap.Packages {
		if ctx.Err() != nil {
			return findings
		}

		if pkg.Unreadable {
			findings = append(findings, Finding{
				Package:  pkg.Name,
				Kind:     KindDamaged,
				Severity: SeverityHigh,
				Detail:   fmt.Sprintf("metadata unreadable at %s", pkg.Location),
				Remedy:   RemedyReinstall,
			})
			continue
		}

		failed := 0
		var details []string

		if detail := checkMetadataFields(pkg); detail != "" {
			failed++
			details = append(details, detail)
		}
		if detail := checkOwnedFiles(pkg, opts.VerifyHashes); detail != "" {
			failed++
			details = append(details, detail)
		}
		if opts.ImportCheck && len(pkg.TopLevel) > 0 {
			if e.probe(ctx, env, pkg.TopLevel[0]) == pyenv.PresenceAbsent {
				failed++
				details = append(details, fmt.Sprintf("module %q fails to import", pkg.TopLevel[0]))
			}
		}

		if failed == 0 {
			continue
		}
		findings = append(findings, Finding{
			Package:  pkg.Name,
			Kind:     KindDamaged,
			Severity: damageSeverity(failed),
			Detail:   strings.Join(details, "; "),
			Remedy:   RemedyReinstall,
		})
	}
	return findings
}

func damageSeverity(failedSubChecks int) Severity {
	switch failedSubChecks {
	case 1:
		return SeverityMedium
	case 2:
		return SeverityHigh
	default:
		return SeverityCritical
	}
}

func checkMetadataFields(pkg *inventory.PackageRecord) string {
	var missing []string
	if pkg.DisplayName == "" {
		missing = append(missing, "Name")
	}
	if pkg.Version == "" {
		missing = append(missing, "Version")
	}
	if len(missing) > 0 {
		return "missing metadata fields: " + strings.Join(missing, ", ")
	}
	return ""
}

// checkOwnedFiles verifies that every file the RECORD claims exists, and
// optionally that its content still matches the recorded sha256.
func checkOwnedFiles(pkg *inventory.PackageRecord, verifyHashes bool) string {
	if len(pkg.Files) == 0 {
		return ""
	}
	// RECORD paths are relative to the site-packages directory that holds
	// the dist-info.
	base := filepath.Dir(pkg.Location)

	missing := 0
	corrupted := 0
	for _, f := range pkg.Files {
		full := filepath.Join(base, filepath.FromSlash(f.Path))
		info, err := os.Stat(full)
		if err != nil {
			missing++
			continue
		}
		if verifyHashes && f.Hash != "" && info.Mode().IsRegular() {
			if !hashMatches(full, f.Hash) {
				corrupted++
			}
		}
	}

	var parts []string
	if missing > 0 {
		parts = append(parts, fmt.Sprintf("%d recorded files missing", missing))
	}
	if corrupted > 0 {
		parts = append(parts, fmt.Sprintf("%d files fail hash verification", corrupted))
	}
	return strings.Join(parts, "; ")
}

// hashMatches checks a file against a RECORD digest ("sha256=<urlsafe-b64,
// unpadded>"). Unknown algorithms pass: absence of evidence is not damage.
func hashMatches(path, recorded string) bool {
	algo, want, ok := strings.Cut(recorded, "=")
	if !ok || algo != "sha256" {
		return true
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return false
	}
	sum := sha256.Sum256(data)
	got := base64.RawURLEncoding.EncodeToString(sum[:])
	return got == want
}
