// Package app wires the CLI commands to the engine packages. Each command
// builds its dependencies through appContext, runs one operation, and renders
// the result; no business logic lives here.
package app

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
)

var (
	dbPath string
	envID  string

	// RootCmd is the root command for pyscope
	RootCmd = &cobra.Command{
		Use:   "pyscope",
		Short: "Diagnose and manage Python environments",
		Long: `pyscope inspects Python environments, diagnoses broken package state,
and orchestrates installs and removals through pip or uv.

It discovers interpreters on PATH (plus any configured explicitly), reads
installed-package metadata straight from site-packages, and checks for
damaged installs, orphaned dependencies, version conflicts and known
vulnerabilities.

Quick Start:
  1. pyscope envs             # see discovered environments
  2. pyscope scan             # take a package inventory
  3. pyscope doctor           # run the diagnostic checks
  4. pyscope doctor --fix     # apply the suggested remedies

Examples:
  # List environments and pick one
  pyscope envs
  pyscope envs use 3f9c2a1b04de

  # Inspect packages
  pyscope list
  pyscope list --outdated

  # Mutate
  pyscope install requests flask
  pyscope install -r requirements.txt
  pyscope upgrade --all
  pyscope remove leftpad`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Println("pyscope: Python environment diagnostics and package management")
			fmt.Println()
			fmt.Println("Run 'pyscope envs' to discover Python environments.")
			fmt.Println("Run 'pyscope --help' for the full reference.")
			return nil
		},
	}
)

func init() {
	// Global flags
	RootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "database path (default: ~/.local/share/pyscope/pyscope.db)")
	RootCmd.PersistentFlags().StringVar(&envID, "env", "", "environment ID to operate on (default: active environment)")

	RootCmd.SuggestionsMinimumDistance = 2

	RootCmd.AddCommand(envsCmd)
	RootCmd.AddCommand(scanCmd)
	RootCmd.AddCommand(listCmd)
	RootCmd.AddCommand(doctorCmd)
	RootCmd.AddCommand(installCmd)
	RootCmd.AddCommand(removeCmd)
	RootCmd.AddCommand(upgradeCmd)
	RootCmd.AddCommand(compileCmd)
	RootCmd.AddCommand(watchCmd)
}

// Execute runs the root command
func Execute() error {
	return RootCmd.Execute()
}

// getDBPath returns the database path, using the flag value or default
func getDBPath() (string, error) {
	if dbPath != "" {
		return dbPath, nil
	}

	dataDir, err := dataDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dataDir, "pyscope.db"), nil
}

// dataDir returns the pyscope data directory, creating it if needed.
func dataDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}

	dir := filepath.Join(home, ".local", "share", "pyscope")
	if base := os.Getenv("XDG_DATA_HOME"); base != "" {
		dir = filepath.Join(base, "pyscope")
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create data directory: %w", err)
	}
	return dir, nil
}

// getDefaultPIDFile returns the default PID file path
func getDefaultPIDFile() (string, error) {
	dir, err := dataDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "watch.pid"), nil
}

// getDefaultLogFile returns the default log file path
func getDefaultLogFile() (string, error) {
	dir, err := dataDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "watch.log"), nil
}
