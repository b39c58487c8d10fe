// Package inventory builds immutable point-in-time snapshots of the packages
// installed in one Python environment, reading distribution metadata straight
// from site-packages.
package inventory

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"
)

var canonicalRe = regexp.MustCompile(`[-_.]+`)

// CanonicalName normalizes a distribution name per PEP 503: runs of hyphens,
// underscores and dots collapse to a single hyphen, lowercased. This bridges
// the naming differences between pip and uv output.
func CanonicalName(name string) string {
	return strings.ToLower(canonicalRe.ReplaceAllString(strings.TrimSpace(name), "-"))
}

// FileEntry is one row of a distribution's RECORD file.
type FileEntry struct {
	Path string
	Hash string // "sha256=<urlsafe-b64>", may be empty
	Size int64
}

// PackageRecord describes one installed distribution. Records are owned by
// their Snapshot and never mutated after the snapshot is built.
type PackageRecord struct {
	Name        string // canonical key, unique within a snapshot
	DisplayName string // as written in metadata
	Version     string
	SizeBytes   int64
	InstalledAt time.Time
	Location    string // the .dist-info directory
	Installer   string // contents of INSTALLER, e.g. "pip", "uv"
	Requires    []string
	TopLevel    []string // importable module names from top_level.txt
	Requested   bool     // REQUESTED marker present: explicitly user-installed
	Unreadable  bool     // metadata could not be parsed; feeds diagnostics
	Files       []FileEntry
}

// Snapshot is an immutable inventory of one environment. Refresh produces a
// new Snapshot; readers never observe a partial update.
type Snapshot struct {
	EnvID    string
	TakenAt  time.Time
	Packages []*PackageRecord

	index map[string]*PackageRecord
	hash  string
}

// NewSnapshot builds a snapshot from scanned records. Records are sorted by
// canonical name; on a duplicate name the first record wins, keeping the
// name-uniqueness invariant.
func NewSnapshot(envID string, pkgs []*PackageRecord) *Snapshot {
	sort.Slice(pkgs, func(i, j int) bool { return pkgs[i].Name < pkgs[j].Name })

	index := make(map[string]*PackageRecord, len(pkgs))
	unique := make([]*PackageRecord, 0, len(pkgs))
	for _, p := range pkgs {
		if _, dup := index[p.Name]; dup {
			continue
		}
		index[p.Name] = p
		unique = append(unique, p)
	}

	s := &Snapshot{
		EnvID:    envID,
		TakenAt:  time.Now(),
		Packages: unique,
		index:    index,
	}
	s.hash = s.computeHash()
	return s
}

// RestoreSnapshot rebuilds a snapshot from persisted rows, keeping the
// original capture time. The content hash is recomputed, so a restored
// snapshot compares equal to the one that was saved.
func RestoreSnapshot(envID string, takenAt time.Time, pkgs []*PackageRecord) *Snapshot {
	s := NewSnapshot(envID, pkgs)
	s.TakenAt = takenAt
	return s
}

// Get looks a record up by name (canonicalized first). Nil if absent.
func (s *Snapshot) Get(name string) *PackageRecord {
	return s.index[CanonicalName(name)]
}

// Hash is the content hash of the snapshot: identical package sets yield
// identical hashes. Used as the cache key and to guard diagnostics against
// mixed snapshot/graph pairs.
func (s *Snapshot) Hash() string { return s.hash }

func (s *Snapshot) computeHash() string {
	h := sha256.New()
	for _, p := range s.Packages {
		fmt.Fprintf(h, "%s %s %t\n", p.Name, p.Version, p.Unreadable)
	}
	return hex.EncodeToString(h.Sum(nil))[:16]
}
