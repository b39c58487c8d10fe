package diagnose

import (
	"fmt"

	"github.com/blackwell-systems/pyscope/internal/depgraph"
	"github.com/blackwell-systems/pyscope/internal/inventory"
)

// checkOrphans flags packages no other installed package requires. A package
// is an orphan candidate iff its indegree is zero, it is not marked as
// explicitly user-requested, and it is not on the always-keep allowlist.
func (e *Engine) checkOrphans(snap *inventory.Snapshot, graph *depgraph.Graph) []Finding {
	var findings []Finding
	for _, pkg := range snap.Packages {
		if e.alwaysKeep[pkg.Name] {
			continue
		}
		if pkg.Requested {
			continue
		}
		if graph.Indegree(pkg.Name) > 0 {
			continue
		}
		findings = append(findings, Finding{
			Package:  pkg.Name,
			Kind:     KindOrphaned,
			Severity: SeverityLow,
			Detail:   fmt.Sprintf("%s %s is required by no other installed package and was not explicitly requested", pkg.DisplayName, pkg.Version),
			Remedy:   RemedyUninstall,
		})
	}
	return findings
}
