// Package depgraph derives the requires/required-by graph of one inventory
// snapshot. Build is pure: the same snapshot always yields a structurally
// identical graph, which is what lets diagnostics be idempotent.
package depgraph

import (
	"sort"

	"github.com/blackwell-systems/pyscope/internal/inventory"
)

// Edge is one resolved requirement between two packages in a snapshot.
type Edge struct {
	From       string // declaring package, canonical
	To         string // required package, canonical
	Constraint string // raw specifier set, "" = any
	Marker     string

	// Unsatisfied: the target is installed but its version fails the
	// constraint. Unsatisfied edges are kept, not dropped; they are the
	// primary input to conflict detection.
	Unsatisfied bool
	// Missing: the unconditional target is not installed at all.
	Missing bool
	// Self: package requires itself (metadata error). Tolerated, flagged.
	Self bool
}

// Graph is the dependency graph of exactly one snapshot. SnapshotHash ties it
// to the snapshot it was built from; consumers refuse to mix pairs.
type Graph struct {
	SnapshotHash string
	Nodes        []string // sorted canonical names present in the snapshot
	Records      map[string]*inventory.PackageRecord
	Edges        []*Edge

	out map[string][]*Edge
	in  map[string][]*Edge
}

// Build constructs the graph for a snapshot. Unparseable requirement lines
// are skipped (the record's own unreadable flag already covers them);
// requirements on packages outside the snapshot become Missing edges unless
// they are marker-conditional and therefore unresolvable here.
func Build(snap *inventory.Snapshot) *Graph {
	g := &Graph{
		SnapshotHash: snap.Hash(),
		Records:      make(map[string]*inventory.PackageRecord, len(snap.Packages)),
		out:          make(map[string][]*Edge),
		in:           make(map[string][]*Edge),
	}

	for _, pkg := range snap.Packages {
		g.Nodes = append(g.Nodes, pkg.Name)
		g.Records[pkg.Name] = pkg
	}
	sort.Strings(g.Nodes)

	for _, pkg := range snap.Packages {
		for _, raw := range pkg.Requires {
			req, err := ParseRequirement(raw)
			if err != nil {
				continue
			}

			edge := &Edge{
				From:       pkg.Name,
				To:         req.Name,
				Constraint: req.Constraint,
				Marker:     req.Marker,
			}

			if req.Name == pkg.Name {
				edge.Self = true
				g.Edges = append(g.Edges, edge)
				continue
			}

			target := snap.Get(req.Name)
			if target == nil {
				if req.Marker != "" {
					// Conditional on an environment we cannot evaluate;
					// absence is not evidence of breakage.
					continue
				}
				edge.Missing = true
				g.Edges = append(g.Edges, edge)
				g.out[pkg.Name] = append(g.out[pkg.Name], edge)
				continue
			}

			if edge.Constraint != "" {
				if ok, err := Satisfies(target.Version, edge.Constraint); err == nil && !ok {
					edge.Unsatisfied = true
				}
			}

			g.Edges = append(g.Edges, edge)
			g.out[pkg.Name] = append(g.out[pkg.Name], edge)
			g.in[req.Name] = append(g.in[req.Name], edge)
		}
	}

	return g
}

// Indegree counts incoming requires edges. Self and missing edges never
// contribute, so a package requiring only itself still has indegree zero.
func (g *Graph) Indegree(name string) int {
	return len(g.in[inventory.CanonicalName(name)])
}

// Dependents returns the packages that require name, sorted and de-duplicated.
func (g *Graph) Dependents(name string) []string {
	return edgeNames(g.in[inventory.CanonicalName(name)], func(e *Edge) string { return e.From })
}

// Dependencies returns the packages name requires, sorted and de-duplicated.
// Missing targets are included; callers can check membership in Records.
func (g *Graph) Dependencies(name string) []string {
	return edgeNames(g.out[inventory.CanonicalName(name)], func(e *Edge) string { return e.To })
}

// Reachable computes the transitive dependency closure of the given roots,
// following requires edges. Roots themselves are included when installed.
// This is what decides whether an uninstall would pull the floor out from
// under the running application.
func (g *Graph) Reachable(roots []string) map[string]bool {
	seen := make(map[string]bool)
	var stack []string
	for _, root := range roots {
		name := inventory.CanonicalName(root)
		if _, ok := g.Records[name]; ok {
			stack = append(stack, name)
		}
	}
	for len(stack) > 0 {
		name := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if seen[name] {
			continue
		}
		seen[name] = true
		for _, e := range g.out[name] {
			if !e.Missing && !seen[e.To] {
				stack = append(stack, e.To)
			}
		}
	}
	return seen
}

func edgeNames(edges []*Edge, pick func(*Edge) string) []string {
	set := make(map[string]bool, len(edges))
	for _, e := range edges {
		set[pick(e)] = true
	}
	names := make([]string, 0, len(set))
	for name := range set {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
