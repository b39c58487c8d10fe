// Package output provides terminal output utilities for pyscope.
//
// This package includes:
//   - Table rendering for environments, installed packages, diagnostic
//     findings, outdated packages and operation results
//   - Progress bars and spinners for long-running backend operations
//   - Human-readable formatting for sizes and dates
//
// Tables use plain ASCII layout; coloring goes through fatih/color, which
// already respects NO_COLOR and non-TTY output.
package output

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/fatih/color"

	"github.com/blackwell-systems/pyscope/internal/diagnose"
	"github.com/blackwell-systems/pyscope/internal/inventory"
	"github.com/blackwell-systems/pyscope/internal/orchestrator"
	"github.com/blackwell-systems/pyscope/internal/pyenv"
)

var (
	red    = color.New(color.FgRed).SprintFunc()
	yellow = color.New(color.FgYellow).SprintFunc()
	green  = color.New(color.FgGreen).SprintFunc()
	gray   = color.New(color.FgHiBlack).SprintFunc()
)

// RenderEnvironmentTable renders the discovered environments, marking the
// active one.
func RenderEnvironmentTable(envs []*pyenv.Environment, activeID string) string {
	if len(envs) == 0 {
		return "No Python environments found.\n"
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%-3s %-14s %-11s %-9s %s\n",
		"", "ID", "Kind", "Python", "Interpreter"))
	sb.WriteString(strings.Repeat("─", 72))
	sb.WriteString("\n")

	for _, env := range envs {
		marker := ""
		if env.ID == activeID {
			marker = green("●")
		}
		sb.WriteString(fmt.Sprintf("%-3s %-14s %-11s %-9s %s\n",
			marker,
			env.ID,
			string(env.Kind),
			env.Version,
			env.Interpreter))
	}
	return sb.String()
}

// RenderDiscoveryWarnings renders interpreter candidates that failed probing.
func RenderDiscoveryWarnings(warnings []pyenv.DiscoveryWarning) string {
	if len(warnings) == 0 {
		return ""
	}
	var sb strings.Builder
	for _, w := range warnings {
		sb.WriteString(fmt.Sprintf("%s %s: %s\n", yellow("warning:"), w.Candidate, w.Reason))
	}
	return sb.String()
}

// RenderPackageTable renders a snapshot's packages with their details.
func RenderPackageTable(snap *inventory.Snapshot) string {
	if snap == nil || len(snap.Packages) == 0 {
		return "No packages installed.\n"
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%-28s %-14s %-8s %-10s %s\n",
		"Package", "Version", "Size", "Installer", "Installed"))
	sb.WriteString(strings.Repeat("─", 76))
	sb.WriteString("\n")

	for _, pkg := range snap.Packages {
		name := truncate(pkg.DisplayName, 28)
		if pkg.Unreadable {
			name = red(truncate(pkg.Name, 20) + " (damaged)")
		} else if pkg.Requested {
			name = name + " *"
		}
		sb.WriteString(fmt.Sprintf("%-28s %-14s %-8s %-10s %s\n",
			name,
			truncate(pkg.Version, 14),
			formatSize(pkg.SizeBytes),
			pkg.Installer,
			formatRelativeTime(pkg.InstalledAt)))
	}

	sb.WriteString(fmt.Sprintf("\n%d packages (* explicitly requested), snapshot %s taken %s\n",
		len(snap.Packages), snap.Hash(), formatRelativeTime(snap.TakenAt)))
	return sb.String()
}

// RenderFindingsTable renders diagnostic findings grouped as the scan sorted
// them. Degraded findings come with a leading notice instead of a table row.
func RenderFindingsTable(findings []diagnose.Finding) string {
	if len(findings) == 0 {
		return green("✓") + " No problems found.\n"
	}

	var sb strings.Builder
	var rows []diagnose.Finding
	for _, f := range findings {
		if f.Kind == diagnose.KindDegraded {
			sb.WriteString(fmt.Sprintf("%s %s\n", yellow("note:"), f.Detail))
			continue
		}
		rows = append(rows, f)
	}
	if len(rows) == 0 {
		return sb.String() + green("✓") + " No problems found.\n"
	}
	sb.WriteString("\n")

	sb.WriteString(fmt.Sprintf("%-24s %-12s %-9s %-10s %s\n",
		"Package", "Problem", "Severity", "Remedy", "Detail"))
	sb.WriteString(strings.Repeat("─", 100))
	sb.WriteString("\n")

	for _, f := range rows {
		sb.WriteString(fmt.Sprintf("%-24s %-12s %-9s %-10s %s\n",
			truncate(f.Package, 24),
			string(f.Kind),
			colorSeverity(f.Severity),
			string(f.Remedy),
			truncate(f.Detail, 60)))
	}

	sb.WriteString(fmt.Sprintf("\n%d problems found\n", len(rows)))
	return sb.String()
}

func colorSeverity(s diagnose.Severity) string {
	// Pad before coloring so the escape codes do not break column alignment.
	label := fmt.Sprintf("%-9s", s.String())
	switch s {
	case diagnose.SeverityCritical, diagnose.SeverityHigh:
		return red(label)
	case diagnose.SeverityMedium:
		return yellow(label)
	case diagnose.SeverityLow:
		return label
	default:
		return gray(label)
	}
}

// RenderOutdatedTable renders packages with newer versions available.
func RenderOutdatedTable(outdated map[string]inventory.OutdatedInfo) string {
	if len(outdated) == 0 {
		return green("✓") + " Everything is up to date.\n"
	}

	names := make([]string, 0, len(outdated))
	for name := range outdated {
		names = append(names, name)
	}
	sort.Strings(names)

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%-28s %-14s %s\n", "Package", "Installed", "Latest"))
	sb.WriteString(strings.Repeat("─", 56))
	sb.WriteString("\n")

	for _, name := range names {
		info := outdated[name]
		sb.WriteString(fmt.Sprintf("%-28s %-14s %s\n",
			truncate(name, 28),
			info.Version,
			green(info.Latest)))
	}

	sb.WriteString(fmt.Sprintf("\n%d packages can be upgraded\n", len(outdated)))
	return sb.String()
}

// RenderOperationResults renders the outcome of a batch of operations.
func RenderOperationResults(results []*orchestrator.Result) string {
	var sb strings.Builder
	for _, res := range results {
		target := strings.Join(res.Request.Packages, ", ")
		if target == "" {
			target = res.Request.Requirements
		}
		label := fmt.Sprintf("%s %s", res.Request.Kind, target)

		switch res.Outcome {
		case orchestrator.OutcomeSucceeded:
			sb.WriteString(fmt.Sprintf("%s %s\n", green("✓"), label))
		case orchestrator.OutcomeDeferredRestart:
			sb.WriteString(fmt.Sprintf("%s %s: the application itself depends on this package; "+
				"removal will run on the next restart\n", yellow("⏲"), label))
		case orchestrator.OutcomeCancelled:
			sb.WriteString(fmt.Sprintf("%s %s: cancelled\n", gray("−"), label))
		default:
			sb.WriteString(fmt.Sprintf("%s %s: %v\n", red("✗"), label, res.Err))
			if out := strings.TrimSpace(res.Output); out != "" {
				for _, line := range lastLines(out, 6) {
					sb.WriteString("    " + line + "\n")
				}
			}
		}
	}
	return sb.String()
}

// lastLines returns at most n trailing lines of s. Backend error output ends
// with the useful part.
func lastLines(s string, n int) []string {
	lines := strings.Split(s, "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return lines
}

// formatSize converts bytes to human-readable size (GB, MB, KB).
func formatSize(bytes int64) string {
	const (
		KB = 1024
		MB = 1024 * KB
		GB = 1024 * MB
	)

	switch {
	case bytes >= GB:
		return fmt.Sprintf("%.1f GB", float64(bytes)/float64(GB))
	case bytes >= MB:
		return fmt.Sprintf("%.0f MB", float64(bytes)/float64(MB))
	case bytes >= KB:
		return fmt.Sprintf("%.0f KB", float64(bytes)/float64(KB))
	default:
		return fmt.Sprintf("%d B", bytes)
	}
}

// formatRelativeTime converts a timestamp to relative time (e.g., "2 days ago").
func formatRelativeTime(t time.Time) string {
	if t.IsZero() {
		return "unknown"
	}

	now := time.Now()
	diff := now.Sub(t)

	switch {
	case diff < time.Minute:
		return "just now"
	case diff < time.Hour:
		mins := int(diff.Minutes())
		if mins == 1 {
			return "1 minute ago"
		}
		return fmt.Sprintf("%d minutes ago", mins)
	case diff < 24*time.Hour:
		hours := int(diff.Hours())
		if hours == 1 {
			return "1 hour ago"
		}
		return fmt.Sprintf("%d hours ago", hours)
	case diff < 7*24*time.Hour:
		days := int(diff.Hours() / 24)
		if days == 1 {
			return "1 day ago"
		}
		return fmt.Sprintf("%d days ago", days)
	case diff < 30*24*time.Hour:
		weeks := int(diff.Hours() / 24 / 7)
		if weeks == 1 {
			return "1 week ago"
		}
		return fmt.Sprintf("%d weeks ago", weeks)
	case diff < 365*24*time.Hour:
		months := int(diff.Hours() / 24 / 30)
		if months == 1 {
			return "1 month ago"
		}
		return fmt.Sprintf("%d months ago", months)
	default:
		years := int(diff.Hours() / 24 / 365)
		if years == 1 {
			return "1 year ago"
		}
		return fmt.Sprintf("%d years ago", years)
	}
}

// truncate truncates a string to maxLen, adding "..." if truncated.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return s[:maxLen]
	}
	return s[:maxLen-3] + "..."
}
