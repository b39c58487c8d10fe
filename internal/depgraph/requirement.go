package depgraph

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/blackwell-systems/pyscope/internal/inventory"
)

// Requirement is one parsed Requires-Dist entry: the declaring side of a
// dependency edge before it is resolved against a snapshot.
type Requirement struct {
	Name       string // canonical
	Extras     []string
	Constraint string // raw specifier set, "" = any version
	Marker     string // raw environment marker, "" = unconditional
}

var requirementNameRe = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]*`)

// ParseRequirement parses entries like:
//
//	requests
//	urllib3 (>=1.21.1,<3)
//	tomli>=1.1.0; python_version < "3.11"
//	cryptography[ssh]>=2.0
func ParseRequirement(raw string) (Requirement, error) {
	var req Requirement

	spec := raw
	if i := strings.Index(spec, ";"); i >= 0 {
		req.Marker = strings.TrimSpace(spec[i+1:])
		spec = spec[:i]
	}
	spec = strings.TrimSpace(spec)

	name := requirementNameRe.FindString(spec)
	if name == "" {
		return Requirement{}, fmt.Errorf("unparseable requirement %q", raw)
	}
	req.Name = inventory.CanonicalName(name)
	rest := strings.TrimSpace(spec[len(name):])

	if strings.HasPrefix(rest, "[") {
		end := strings.Index(rest, "]")
		if end < 0 {
			return Requirement{}, fmt.Errorf("unterminated extras in %q", raw)
		}
		for _, extra := range strings.Split(rest[1:end], ",") {
			if extra = strings.TrimSpace(extra); extra != "" {
				req.Extras = append(req.Extras, extra)
			}
		}
		rest = strings.TrimSpace(rest[end+1:])
	}

	rest = strings.TrimPrefix(rest, "(")
	rest = strings.TrimSuffix(rest, ")")
	req.Constraint = strings.TrimSpace(rest)
	return req, nil
}

// OptionalOnly reports whether the requirement applies only when an extra is
// requested, i.e. its marker contains an `extra ==` clause.
func (r Requirement) OptionalOnly() bool {
	return strings.Contains(r.Marker, "extra ==")
}

// specifier is one clause of a constraint expression.
type specifier struct {
	op      string
	version string
}

var specifierRe = regexp.MustCompile(`^(===|==|!=|~=|>=|<=|>|<)\s*(.+)$`)

func parseConstraint(expr string) ([]specifier, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return nil, nil
	}
	var specs []specifier
	for _, clause := range strings.Split(expr, ",") {
		clause = strings.TrimSpace(clause)
		if clause == "" {
			continue
		}
		m := specifierRe.FindStringSubmatch(clause)
		if m == nil {
			return nil, fmt.Errorf("unparseable specifier %q", clause)
		}
		specs = append(specs, specifier{op: m[1], version: strings.TrimSpace(m[2])})
	}
	return specs, nil
}

// Satisfies evaluates a constraint expression against an installed version.
// An empty constraint always matches. An unparseable constraint or version
// returns an error; callers treat that as "cannot evaluate", not as a
// conflict.
func Satisfies(installed, constraint string) (bool, error) {
	specs, err := parseConstraint(constraint)
	if err != nil {
		return false, err
	}
	if len(specs) == 0 {
		return true, nil
	}
	have, err := ParseVersion(installed)
	if err != nil {
		return false, err
	}
	for _, spec := range specs {
		ok, err := matchSpecifier(have, installed, spec)
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}
	}
	return true, nil
}

func matchSpecifier(have Version, installed string, spec specifier) (bool, error) {
	// Wildcards only make sense for equality operators.
	if strings.HasSuffix(spec.version, ".*") {
		prefix := strings.TrimSuffix(spec.version, ".*")
		match := prefixMatch(installed, prefix)
		switch spec.op {
		case "==":
			return match, nil
		case "!=":
			return !match, nil
		}
		return false, fmt.Errorf("wildcard with operator %q", spec.op)
	}

	if spec.op == "===" {
		return strings.TrimSpace(installed) == spec.version, nil
	}

	want, err := ParseVersion(spec.version)
	if err != nil {
		return false, err
	}

	switch spec.op {
	case "==":
		return Compare(have, want) == 0, nil
	case "!=":
		return Compare(have, want) != 0, nil
	case ">=":
		return Compare(have, want) >= 0, nil
	case "<=":
		return Compare(have, want) <= 0, nil
	case ">":
		return Compare(have, want) > 0, nil
	case "<":
		return Compare(have, want) < 0, nil
	case "~=":
		// Compatible release: >= X.Y.Z and matching the series above the
		// final segment.
		if Compare(have, want) < 0 {
			return false, nil
		}
		if len(want.Release) < 2 {
			return false, fmt.Errorf("~= requires at least two release segments")
		}
		series := want.Release[:len(want.Release)-1]
		if len(have.Release) < len(series) {
			return false, nil
		}
		for i, n := range series {
			if have.Release[i] != n {
				return false, nil
			}
		}
		return true, nil
	}
	return false, fmt.Errorf("unknown operator %q", spec.op)
}

func prefixMatch(installed, prefix string) bool {
	installed = strings.TrimSpace(installed)
	if installed == prefix {
		return true
	}
	return strings.HasPrefix(installed, prefix+".")
}
