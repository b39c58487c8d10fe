package diagnose

import (
	"fmt"

	"github.com/blackwell-systems/pyscope/internal/depgraph"
)

// checkConflicts reports every unsatisfied or missing edge in the graph, plus
// self-requirements, which only ever come from broken metadata.
func (e *Engine) checkConflicts(graph *depgraph.Graph) []Finding {
	var findings []Finding
	for _, edge := range graph.Edges {
		switch {
		case edge.Self:
			findings = append(findings, Finding{
				Package:  edge.From,
				Kind:     KindConflicting,
				Severity: SeverityLow,
				Detail:   fmt.Sprintf("%s declares a requirement on itself", edge.From),
				Remedy:   RemedyReinstall,
			})
		case edge.Missing:
			findings = append(findings, Finding{
				Package:  edge.From,
				Kind:     KindConflicting,
				Severity: SeverityHigh,
				Detail:   fmt.Sprintf("%s requires %s, which is not installed", edge.From, edge.To),
				Remedy:   RemedyInstall,
			})
		case edge.Unsatisfied:
			installed := ""
			if rec := graph.Records[edge.To]; rec != nil {
				installed = rec.Version
			}
			findings = append(findings, Finding{
				Package:  edge.From,
				Kind:     KindConflicting,
				Severity: SeverityMedium,
				Detail: fmt.Sprintf("%s requires %s%s but %s %s is installed",
					edge.From, edge.To, edge.Constraint, edge.To, installed),
				Remedy: RemedyUpgrade,
			})
		}
	}
	return findings
}
