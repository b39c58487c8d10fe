package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/blackwell-systems/pyscope/internal/diagnose"
	"github.com/blackwell-systems/pyscope/internal/inventory"
	"github.com/blackwell-systems/pyscope/internal/pyenv"
)

// Environment operations

// SaveEnvironment inserts or refreshes an environment row.
func (s *Store) SaveEnvironment(env *pyenv.Environment) error {
	query := `
		INSERT OR REPLACE INTO environments
		(id, interpreter, kind, version, prefix, last_seen)
		VALUES (?, ?, ?, ?, ?, ?)
	`
	_, err := s.db.Exec(query,
		env.ID,
		env.Interpreter,
		string(env.Kind),
		env.Version,
		env.Prefix,
		time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to save environment %s: %w", env.ID, err)
	}
	return nil
}

// KnownInterpreters returns the interpreter paths of every environment ever
// saved, most recently seen first. Used to seed discovery across restarts.
func (s *Store) KnownInterpreters() ([]string, error) {
	rows, err := s.db.Query(`SELECT interpreter FROM environments ORDER BY last_seen DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list environments: %w", err)
	}
	defer rows.Close()

	var paths []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, fmt.Errorf("failed to scan environment row: %w", err)
		}
		paths = append(paths, p)
	}
	return paths, rows.Err()
}

// PruneEnvironments deletes every environment not in the known set, cascading
// to its snapshot and findings.
func (s *Store) PruneEnvironments(known []string) error {
	if len(known) == 0 {
		if _, err := s.db.Exec(`DELETE FROM environments`); err != nil {
			return fmt.Errorf("failed to prune environments: %w", err)
		}
		return nil
	}

	placeholders := strings.Repeat("?,", len(known))
	placeholders = placeholders[:len(placeholders)-1]
	args := make([]any, len(known))
	for i, id := range known {
		args[i] = id
	}
	query := fmt.Sprintf(`DELETE FROM environments WHERE id NOT IN (%s)`, placeholders)
	if _, err := s.db.Exec(query, args...); err != nil {
		return fmt.Errorf("failed to prune environments: %w", err)
	}
	return nil
}

// Snapshot operations. Store satisfies inventory.Persister.

// SaveSnapshot replaces the persisted snapshot for the snapshot's environment.
// The RECORD file list is persisted with each package so damage checks work
// on cache-served snapshots too.
func (s *Store) SaveSnapshot(snap *inventory.Snapshot) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin snapshot save: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM snapshot_packages WHERE env_id = ?`, snap.EnvID); err != nil {
		return fmt.Errorf("failed to clear old snapshot: %w", err)
	}

	_, err = tx.Exec(`
		INSERT OR REPLACE INTO snapshots (env_id, content_hash, taken_at, package_count)
		VALUES (?, ?, ?, ?)`,
		snap.EnvID,
		snap.Hash(),
		snap.TakenAt.UTC().Format(time.RFC3339),
		len(snap.Packages),
	)
	if err != nil {
		return fmt.Errorf("failed to save snapshot header: %w", err)
	}

	insert, err := tx.Prepare(`
		INSERT INTO snapshot_packages
		(env_id, name, display_name, version, size_bytes, installed_at, location,
		 installer, requires, top_level, files, requested, unreadable)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare snapshot insert: %w", err)
	}
	defer insert.Close()

	for _, pkg := range snap.Packages {
		requiresJSON, err := json.Marshal(pkg.Requires)
		if err != nil {
			return fmt.Errorf("failed to marshal requires for %s: %w", pkg.Name, err)
		}
		topLevelJSON, err := json.Marshal(pkg.TopLevel)
		if err != nil {
			return fmt.Errorf("failed to marshal top_level for %s: %w", pkg.Name, err)
		}
		filesJSON, err := json.Marshal(pkg.Files)
		if err != nil {
			return fmt.Errorf("failed to marshal files for %s: %w", pkg.Name, err)
		}
		_, err = insert.Exec(
			snap.EnvID,
			pkg.Name,
			pkg.DisplayName,
			pkg.Version,
			pkg.SizeBytes,
			pkg.InstalledAt.UTC().Format(time.RFC3339),
			pkg.Location,
			pkg.Installer,
			string(requiresJSON),
			string(topLevelJSON),
			string(filesJSON),
			pkg.Requested,
			pkg.Unreadable,
		)
		if err != nil {
			return fmt.Errorf("failed to save package %s: %w", pkg.Name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit snapshot: %w", err)
	}
	return nil
}

// LoadSnapshot restores the persisted snapshot for an environment. Returns
// (nil, nil) when none is stored.
func (s *Store) LoadSnapshot(envID string) (*inventory.Snapshot, error) {
	var hash, takenAtStr string
	err := s.db.QueryRow(
		`SELECT content_hash, taken_at FROM snapshots WHERE env_id = ?`, envID,
	).Scan(&hash, &takenAtStr)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load snapshot header: %w", err)
	}
	takenAt, err := time.Parse(time.RFC3339, takenAtStr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse snapshot time: %w", err)
	}

	rows, err := s.db.Query(`
		SELECT name, display_name, version, size_bytes, installed_at, location,
		       installer, requires, top_level, files, requested, unreadable
		FROM snapshot_packages WHERE env_id = ? ORDER BY name`, envID)
	if err != nil {
		return nil, fmt.Errorf("failed to load snapshot packages: %w", err)
	}
	defer rows.Close()

	var pkgs []*inventory.PackageRecord
	for rows.Next() {
		var pkg inventory.PackageRecord
		var installedAtStr, requiresJSON, topLevelJSON, filesJSON string
		err := rows.Scan(
			&pkg.Name,
			&pkg.DisplayName,
			&pkg.Version,
			&pkg.SizeBytes,
			&installedAtStr,
			&pkg.Location,
			&pkg.Installer,
			&requiresJSON,
			&topLevelJSON,
			&filesJSON,
			&pkg.Requested,
			&pkg.Unreadable,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan package row: %w", err)
		}
		pkg.InstalledAt, _ = time.Parse(time.RFC3339, installedAtStr)
		if err := json.Unmarshal([]byte(requiresJSON), &pkg.Requires); err != nil {
			return nil, fmt.Errorf("failed to unmarshal requires for %s: %w", pkg.Name, err)
		}
		if err := json.Unmarshal([]byte(topLevelJSON), &pkg.TopLevel); err != nil {
			return nil, fmt.Errorf("failed to unmarshal top_level for %s: %w", pkg.Name, err)
		}
		if err := json.Unmarshal([]byte(filesJSON), &pkg.Files); err != nil {
			return nil, fmt.Errorf("failed to unmarshal files for %s: %w", pkg.Name, err)
		}
		pkgs = append(pkgs, &pkg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read snapshot packages: %w", err)
	}

	snap := inventory.RestoreSnapshot(envID, takenAt, pkgs)
	if snap.Hash() != hash {
		// Stored rows no longer reproduce the recorded hash; treat as absent
		// rather than serving a corrupt cache.
		return nil, nil
	}
	return snap, nil
}

// InvalidateSnapshot removes the persisted snapshot for an environment.
func (s *Store) InvalidateSnapshot(envID string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin snapshot invalidation: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM snapshot_packages WHERE env_id = ?`, envID); err != nil {
		return fmt.Errorf("failed to invalidate snapshot packages: %w", err)
	}
	if _, err := tx.Exec(`DELETE FROM snapshots WHERE env_id = ?`, envID); err != nil {
		return fmt.Errorf("failed to invalidate snapshot: %w", err)
	}
	return tx.Commit()
}

// Finding operations

// SaveFindings replaces the stored findings for an environment with the
// results of a fresh scan.
func (s *Store) SaveFindings(envID, snapshotHash string, findings []diagnose.Finding) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin findings save: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM findings WHERE env_id = ?`, envID); err != nil {
		return fmt.Errorf("failed to clear old findings: %w", err)
	}

	now := time.Now().UTC().Format(time.RFC3339)
	for _, f := range findings {
		_, err := tx.Exec(`
			INSERT INTO findings
			(env_id, snapshot_hash, package, kind, severity, detail, remedy, recorded_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			envID, snapshotHash, f.Package, string(f.Kind), int(f.Severity), f.Detail, string(f.Remedy), now,
		)
		if err != nil {
			return fmt.Errorf("failed to save finding for %s: %w", f.Package, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit findings: %w", err)
	}
	return nil
}

// LoadFindings returns the stored findings for an environment along with the
// snapshot hash they were scanned against. An empty hash means no findings
// are stored.
func (s *Store) LoadFindings(envID string) ([]diagnose.Finding, string, error) {
	rows, err := s.db.Query(`
		SELECT package, kind, severity, detail, remedy, snapshot_hash
		FROM findings WHERE env_id = ? ORDER BY package, kind, detail`, envID)
	if err != nil {
		return nil, "", fmt.Errorf("failed to load findings: %w", err)
	}
	defer rows.Close()

	var findings []diagnose.Finding
	var hash string
	for rows.Next() {
		var f diagnose.Finding
		var kind, remedy string
		var severity int
		if err := rows.Scan(&f.Package, &kind, &severity, &f.Detail, &remedy, &hash); err != nil {
			return nil, "", fmt.Errorf("failed to scan finding row: %w", err)
		}
		f.Kind = diagnose.Kind(kind)
		f.Severity = diagnose.Severity(severity)
		f.Remedy = diagnose.Remedy(remedy)
		findings = append(findings, f)
	}
	return findings, hash, rows.Err()
}
