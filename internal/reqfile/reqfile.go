// Package reqfile parses the two dependency declaration formats that install
// operations accept as input: requirements.txt and pyproject.toml.
package reqfile

import (
	"bufio"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/blackwell-systems/pyscope/internal/depgraph"
)

// Warning records one line that could not be used. Parsing keeps going; the
// caller decides whether warnings are fatal.
type Warning struct {
	Line   int
	Text   string
	Reason string
}

// File is the parsed content of a dependency declaration file.
type File struct {
	Path         string
	Requirements []depgraph.Requirement
	Warnings     []Warning
}

// ParseRequirements reads a pip requirements.txt. Comments, blank lines and
// line continuations follow pip's rules; option lines (-r, --index-url, ...)
// and malformed requirements are recorded as warnings, not errors.
func ParseRequirements(path string) (*File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening requirements file: %w", err)
	}
	defer f.Close()

	out := &File{Path: path}
	scanner := bufio.NewScanner(f)

	lineNo := 0
	pending := ""
	pendingStart := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Text()

		if idx := strings.Index(line, " #"); idx >= 0 {
			line = line[:idx]
		}
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, "#") {
			line = ""
		}

		// Backslash continuation joins with the next line.
		if strings.HasSuffix(line, "\\") {
			if pending == "" {
				pendingStart = lineNo
			}
			pending += strings.TrimSuffix(line, "\\")
			continue
		}
		start := lineNo
		if pending != "" {
			line = pending + line
			start = pendingStart
			pending = ""
		}
		if line == "" {
			continue
		}

		if strings.HasPrefix(line, "-") {
			out.Warnings = append(out.Warnings, Warning{
				Line:   start,
				Text:   line,
				Reason: "option lines are not supported; pass them to the backend directly",
			})
			continue
		}

		req, err := depgraph.ParseRequirement(line)
		if err != nil {
			out.Warnings = append(out.Warnings, Warning{Line: start, Text: line, Reason: err.Error()})
			continue
		}
		out.Requirements = append(out.Requirements, req)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading requirements file: %w", err)
	}
	return out, nil
}

// pyproject mirrors the PEP 621 [project] table, limited to the dependency
// fields.
type pyproject struct {
	Project struct {
		Dependencies         []string            `toml:"dependencies"`
		OptionalDependencies map[string][]string `toml:"optional-dependencies"`
	} `toml:"project"`
}

// ParsePyproject reads the [project] dependencies of a pyproject.toml.
// Optional dependency groups are included only when listed in extras; an
// unknown extra is an error since it points at a typo, not a preference.
func ParsePyproject(path string, extras []string) (*File, error) {
	var doc pyproject
	if _, err := toml.DecodeFile(path, &doc); err != nil {
		return nil, fmt.Errorf("parsing pyproject: %w", err)
	}

	lines := append([]string(nil), doc.Project.Dependencies...)
	for _, extra := range extras {
		group, ok := doc.Project.OptionalDependencies[extra]
		if !ok {
			known := make([]string, 0, len(doc.Project.OptionalDependencies))
			for name := range doc.Project.OptionalDependencies {
				known = append(known, name)
			}
			sort.Strings(known)
			return nil, fmt.Errorf("pyproject has no optional dependency group %q (known: %s)",
				extra, strings.Join(known, ", "))
		}
		lines = append(lines, group...)
	}

	out := &File{Path: path}
	for i, line := range lines {
		req, err := depgraph.ParseRequirement(line)
		if err != nil {
			out.Warnings = append(out.Warnings, Warning{Line: i + 1, Text: line, Reason: err.Error()})
			continue
		}
		out.Requirements = append(out.Requirements, req)
	}
	return out, nil
}

// Names returns the requirement strings in install order, suitable for
// passing straight to a backend install command.
func (f *File) Names() []string {
	names := make([]string, len(f.Requirements))
	for i, req := range f.Requirements {
		names[i] = req.Name + req.Constraint
	}
	return names
}
