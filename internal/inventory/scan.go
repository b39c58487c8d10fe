package inventory

import (
	"bufio"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"net/textproto"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/blackwell-systems/pyscope/internal/pyenv"
)

// Scan walks the environment's site-packages directories and parses every
// .dist-info distribution. A distribution whose metadata cannot be read is
// recorded with Unreadable set rather than dropped; that flag is itself a
// diagnostic input. Only a missing site-packages directory list is fatal.
func Scan(ctx context.Context, env *pyenv.Environment) (*Snapshot, error) {
	if len(env.SitePackages) == 0 {
		return nil, fmt.Errorf("environment %s has no site-packages directories", env.ID)
	}

	var records []*PackageRecord
	for _, dir := range env.SitePackages {
		entries, err := os.ReadDir(dir)
		if err != nil {
			// Purelib and platlib may overlap or not exist; skip quietly.
			continue
		}
		for _, entry := range entries {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			if !entry.IsDir() || !strings.HasSuffix(entry.Name(), ".dist-info") {
				continue
			}
			records = append(records, readDistInfo(filepath.Join(dir, entry.Name())))
		}
	}

	return NewSnapshot(env.ID, records), nil
}

// readDistInfo parses one .dist-info directory. Always returns a record; any
// parse failure downgrades it to Unreadable with the name guessed from the
// directory.
func readDistInfo(dir string) *PackageRecord {
	rec := &PackageRecord{Location: dir}

	if info, err := os.Stat(dir); err == nil {
		rec.InstalledAt = info.ModTime()
	}

	header, err := readMetadata(filepath.Join(dir, "METADATA"))
	name := header.Get("Name")
	if err != nil || name == "" {
		rec.Name = nameFromDistInfoDir(dir)
		rec.DisplayName = rec.Name
		rec.Unreadable = true
		return rec
	}

	rec.DisplayName = name
	rec.Name = CanonicalName(name)
	rec.Version = header.Get("Version")
	if rec.Version == "" {
		rec.Unreadable = true
	}
	rec.Requires = header.Values("Requires-Dist")

	if installer, err := os.ReadFile(filepath.Join(dir, "INSTALLER")); err == nil {
		rec.Installer = strings.TrimSpace(string(installer))
	} else {
		rec.Installer = "unknown"
	}

	if _, err := os.Stat(filepath.Join(dir, "REQUESTED")); err == nil {
		rec.Requested = true
	}

	rec.TopLevel = readTopLevel(filepath.Join(dir, "top_level.txt"))

	files, total, err := readRecordFile(filepath.Join(dir, "RECORD"))
	if err != nil {
		rec.Unreadable = true
		return rec
	}
	rec.Files = files
	rec.SizeBytes = total

	return rec
}

// readMetadata reads the RFC-822 style header block of a METADATA file.
func readMetadata(path string) (textproto.MIMEHeader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	reader := textproto.NewReader(bufio.NewReader(f))
	header, err := reader.ReadMIMEHeader()
	// io.EOF after a complete header block is normal for body-less files.
	if err != nil && len(header) == 0 {
		return nil, err
	}
	return header, nil
}

// readRecordFile parses RECORD (CSV: path, hash, size) and sums file sizes.
func readRecordFile(path string) ([]FileEntry, int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1

	var entries []FileEntry
	var total int64
	for {
		row, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, 0, err
		}
		if len(row) < 1 || row[0] == "" {
			continue
		}
		e := FileEntry{Path: row[0]}
		if len(row) > 1 {
			e.Hash = row[1]
		}
		if len(row) > 2 && row[2] != "" {
			if size, err := strconv.ParseInt(row[2], 10, 64); err == nil {
				e.Size = size
				total += size
			}
		}
		entries = append(entries, e)
	}
	return entries, total, nil
}

func readTopLevel(path string) []string {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil
	}
	var modules []string
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			modules = append(modules, line)
		}
	}
	return modules
}

// nameFromDistInfoDir recovers a best-effort name from "<name>-<version>.dist-info".
func nameFromDistInfoDir(dir string) string {
	base := strings.TrimSuffix(filepath.Base(dir), ".dist-info")
	if i := strings.LastIndex(base, "-"); i > 0 {
		base = base[:i]
	}
	return CanonicalName(base)
}
