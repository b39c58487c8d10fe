// Package diagnose classifies the packages of one snapshot as damaged,
// orphaned, conflicting or vulnerable. Findings are derived data: regenerated
// on every scan, never authoritative state.
package diagnose

import "sort"

// Kind labels what is wrong with a package.
type Kind string

const (
	KindDamaged     Kind = "damaged"
	KindOrphaned    Kind = "orphaned"
	KindConflicting Kind = "conflicting"
	KindVulnerable  Kind = "vulnerable"
	// KindDegraded reports that a diagnostic subsystem itself could not run.
	// The rest of the scan still completes.
	KindDegraded Kind = "degraded"
)

// Severity orders findings for presentation.
type Severity int

const (
	SeverityInfo Severity = iota
	SeverityLow
	SeverityMedium
	SeverityHigh
	SeverityCritical
)

func (s Severity) String() string {
	switch s {
	case SeverityCritical:
		return "critical"
	case SeverityHigh:
		return "high"
	case SeverityMedium:
		return "medium"
	case SeverityLow:
		return "low"
	default:
		return "info"
	}
}

// Remedy is the suggested fix for a finding.
type Remedy string

const (
	RemedyNone      Remedy = ""
	RemedyReinstall Remedy = "reinstall"
	RemedyUninstall Remedy = "uninstall"
	RemedyUpgrade   Remedy = "upgrade"
	RemedyInstall   Remedy = "install"
)

// Finding is one diagnostic result for one package.
type Finding struct {
	Package  string
	Kind     Kind
	Severity Severity
	Detail   string
	Remedy   Remedy
}

// sortFindings puts findings in a stable order so repeated scans over the
// same snapshot/graph pair compare equal.
func sortFindings(findings []Finding) {
	sort.Slice(findings, func(i, j int) bool {
		a, b := findings[i], findings[j]
		if a.Package != b.Package {
			return a.Package < b.Package
		}
		if a.Kind != b.Kind {
			return a.Kind < b.Kind
		}
		return a.Detail < b.Detail
	})
}
