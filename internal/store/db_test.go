package store

import (
	"testing"
	"time"

	"github.com/blackwell-systems/pyscope/internal/diagnose"
	"github.com/blackwell-systems/pyscope/internal/inventory"
	"github.com/blackwell-systems/pyscope/internal/pyenv"
)

// Helper function to create an in-memory store for testing
func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := New(":memory:")
	if err != nil {
		t.Fatalf("failed to create test store: %v", err)
	}

	if err := store.CreateSchema(); err != nil {
		t.Fatalf("failed to create schema: %v", err)
	}

	return store
}

func testEnv(id string) *pyenv.Environment {
	return &pyenv.Environment{
		ID:          id,
		Interpreter: "/usr/bin/python3",
		Kind:        pyenv.KindSystem,
		Version:     "3.12.1",
		Prefix:      "/usr",
	}
}

func TestNew(t *testing.T) {
	store, err := New(":memory:")
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	defer store.Close()

	if store.db == nil {
		t.Error("Store.db should not be nil")
	}
}

func TestCreateSchema(t *testing.T) {
	store := newTestStore(t)
	defer store.Close()

	// Verify tables exist by querying sqlite_master
	tables := []string{"environments", "snapshots", "snapshot_packages", "findings"}
	for _, table := range tables {
		var name string
		err := store.db.QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&name)
		if err != nil {
			t.Errorf("Table %s not found: %v", table, err)
		}
	}

	indexes := []string{"idx_snapshot_packages_env", "idx_findings_env"}
	for _, index := range indexes {
		var name string
		err := store.db.QueryRow("SELECT name FROM sqlite_master WHERE type='index' AND name=?", index).Scan(&name)
		if err != nil {
			t.Errorf("Index %s not found: %v", index, err)
		}
	}
}

func TestSaveAndLoadSnapshot(t *testing.T) {
	store := newTestStore(t)
	defer store.Close()

	env := testEnv("env-1")
	if err := store.SaveEnvironment(env); err != nil {
		t.Fatalf("SaveEnvironment() failed: %v", err)
	}

	now := time.Now().UTC().Truncate(time.Second)
	snap := inventory.RestoreSnapshot(env.ID, now, []*inventory.PackageRecord{
		{
			Name:        "requests",
			DisplayName: "requests",
			Version:     "2.31.0",
			SizeBytes:   1048576,
			InstalledAt: now,
			Location:    "/usr/lib/python3.12/site-packages/requests-2.31.0.dist-info",
			Installer:   "pip",
			Requires:    []string{"urllib3>=1.21.1", "idna>=2.5"},
			TopLevel:    []string{"requests"},
			Files: []inventory.FileEntry{
				{Path: "requests/__init__.py", Hash: "sha256=47DEQpj8HBSa-_TImW-5JCeuQeRkm5NMpJWZG3hSuFU", Size: 5123},
				{Path: "requests/api.py", Hash: "", Size: 6400},
			},
			Requested: true,
		},
		{
			Name:        "urllib3",
			DisplayName: "urllib3",
			Version:     "2.2.0",
			InstalledAt: now,
			Location:    "/usr/lib/python3.12/site-packages/urllib3-2.2.0.dist-info",
			Installer:   "pip",
		},
	})

	if err := store.SaveSnapshot(snap); err != nil {
		t.Fatalf("SaveSnapshot() failed: %v", err)
	}

	loaded, err := store.LoadSnapshot(env.ID)
	if err != nil {
		t.Fatalf("LoadSnapshot() failed: %v", err)
	}
	if loaded == nil {
		t.Fatal("LoadSnapshot() returned nil for a saved snapshot")
	}

	if loaded.Hash() != snap.Hash() {
		t.Errorf("Hash = %s, want %s", loaded.Hash(), snap.Hash())
	}
	if !loaded.TakenAt.Equal(snap.TakenAt) {
		t.Errorf("TakenAt = %v, want %v", loaded.TakenAt, snap.TakenAt)
	}
	if len(loaded.Packages) != 2 {
		t.Fatalf("Packages length = %d, want 2", len(loaded.Packages))
	}

	req := loaded.Get("requests")
	if req == nil {
		t.Fatal("Get(requests) returned nil")
	}
	if req.Version != "2.31.0" {
		t.Errorf("Version = %s, want 2.31.0", req.Version)
	}
	if len(req.Requires) != 2 || req.Requires[0] != "urllib3>=1.21.1" {
		t.Errorf("Requires = %v, want [urllib3>=1.21.1 idna>=2.5]", req.Requires)
	}
	if !req.Requested {
		t.Error("Requested should survive a round trip")
	}
	// Damage checks run on loaded snapshots too, so the RECORD file list
	// must survive the round trip.
	if len(req.Files) != 2 {
		t.Fatalf("Files length = %d, want 2", len(req.Files))
	}
	if req.Files[0].Path != "requests/__init__.py" || req.Files[0].Hash == "" {
		t.Errorf("Files[0] = %+v, want recorded path and sha256 digest", req.Files[0])
	}
	if req.Files[1].Size != 6400 {
		t.Errorf("Files[1].Size = %d, want 6400", req.Files[1].Size)
	}
}

func TestLoadSnapshotAbsent(t *testing.T) {
	store := newTestStore(t)
	defer store.Close()

	snap, err := store.LoadSnapshot("nope")
	if err != nil {
		t.Fatalf("LoadSnapshot() failed: %v", err)
	}
	if snap != nil {
		t.Error("LoadSnapshot() should return nil for an unknown environment")
	}
}

func TestSaveSnapshotReplaces(t *testing.T) {
	store := newTestStore(t)
	defer store.Close()

	env := testEnv("env-1")
	if err := store.SaveEnvironment(env); err != nil {
		t.Fatalf("SaveEnvironment() failed: %v", err)
	}

	now := time.Now().UTC().Truncate(time.Second)
	first := inventory.RestoreSnapshot(env.ID, now, []*inventory.PackageRecord{
		{Name: "flask", DisplayName: "Flask", Version: "2.0.0", InstalledAt: now},
		{Name: "click", DisplayName: "click", Version: "8.1.0", InstalledAt: now},
	})
	if err := store.SaveSnapshot(first); err != nil {
		t.Fatalf("SaveSnapshot() failed: %v", err)
	}

	second := inventory.RestoreSnapshot(env.ID, now.Add(time.Hour), []*inventory.PackageRecord{
		{Name: "flask", DisplayName: "Flask", Version: "3.0.2", InstalledAt: now},
	})
	if err := store.SaveSnapshot(second); err != nil {
		t.Fatalf("SaveSnapshot() (replace) failed: %v", err)
	}

	loaded, err := store.LoadSnapshot(env.ID)
	if err != nil {
		t.Fatalf("LoadSnapshot() failed: %v", err)
	}
	if loaded == nil {
		t.Fatal("LoadSnapshot() returned nil")
	}
	if len(loaded.Packages) != 1 {
		t.Errorf("Packages length = %d, want 1 (old rows must be replaced)", len(loaded.Packages))
	}
	if loaded.Get("flask").Version != "3.0.2" {
		t.Errorf("Version = %s, want 3.0.2", loaded.Get("flask").Version)
	}
}

func TestInvalidateSnapshot(t *testing.T) {
	store := newTestStore(t)
	defer store.Close()

	env := testEnv("env-1")
	if err := store.SaveEnvironment(env); err != nil {
		t.Fatalf("SaveEnvironment() failed: %v", err)
	}

	now := time.Now().UTC().Truncate(time.Second)
	snap := inventory.RestoreSnapshot(env.ID, now, []*inventory.PackageRecord{
		{Name: "numpy", DisplayName: "numpy", Version: "1.26.0", InstalledAt: now},
	})
	if err := store.SaveSnapshot(snap); err != nil {
		t.Fatalf("SaveSnapshot() failed: %v", err)
	}

	if err := store.InvalidateSnapshot(env.ID); err != nil {
		t.Fatalf("InvalidateSnapshot() failed: %v", err)
	}

	loaded, err := store.LoadSnapshot(env.ID)
	if err != nil {
		t.Fatalf("LoadSnapshot() failed: %v", err)
	}
	if loaded != nil {
		t.Error("LoadSnapshot() should return nil after invalidation")
	}
}

func TestSaveAndLoadFindings(t *testing.T) {
	store := newTestStore(t)
	defer store.Close()

	env := testEnv("env-1")
	if err := store.SaveEnvironment(env); err != nil {
		t.Fatalf("SaveEnvironment() failed: %v", err)
	}

	findings := []diagnose.Finding{
		{
			Package:  "leftpad",
			Kind:     diagnose.KindOrphaned,
			Severity: diagnose.SeverityLow,
			Detail:   "installed as a dependency but nothing requires it",
			Remedy:   diagnose.RemedyUninstall,
		},
		{
			Package:  "requests",
			Kind:     diagnose.KindVulnerable,
			Severity: diagnose.SeverityHigh,
			Detail:   "CVE-2024-0001 (fixed in 2.32.0)",
			Remedy:   diagnose.RemedyUpgrade,
		},
	}

	if err := store.SaveFindings(env.ID, "abc123", findings); err != nil {
		t.Fatalf("SaveFindings() failed: %v", err)
	}

	loaded, hash, err := store.LoadFindings(env.ID)
	if err != nil {
		t.Fatalf("LoadFindings() failed: %v", err)
	}
	if hash != "abc123" {
		t.Errorf("snapshot hash = %s, want abc123", hash)
	}
	if len(loaded) != 2 {
		t.Fatalf("LoadFindings() returned %d findings, want 2", len(loaded))
	}
	if loaded[0].Package != "leftpad" || loaded[0].Kind != diagnose.KindOrphaned {
		t.Errorf("findings[0] = %+v, want leftpad/orphaned", loaded[0])
	}
	if loaded[1].Severity != diagnose.SeverityHigh {
		t.Errorf("findings[1].Severity = %v, want high", loaded[1].Severity)
	}

	// A new scan replaces the previous findings wholesale.
	if err := store.SaveFindings(env.ID, "def456", findings[:1]); err != nil {
		t.Fatalf("SaveFindings() (replace) failed: %v", err)
	}
	loaded, hash, err = store.LoadFindings(env.ID)
	if err != nil {
		t.Fatalf("LoadFindings() failed: %v", err)
	}
	if hash != "def456" {
		t.Errorf("snapshot hash = %s, want def456", hash)
	}
	if len(loaded) != 1 {
		t.Errorf("LoadFindings() returned %d findings, want 1", len(loaded))
	}
}

func TestPruneEnvironments(t *testing.T) {
	store := newTestStore(t)
	defer store.Close()

	for _, id := range []string{"env-1", "env-2", "env-3"} {
		env := testEnv(id)
		if err := store.SaveEnvironment(env); err != nil {
			t.Fatalf("SaveEnvironment(%s) failed: %v", id, err)
		}
	}

	now := time.Now().UTC().Truncate(time.Second)
	snap := inventory.RestoreSnapshot("env-2", now, []*inventory.PackageRecord{
		{Name: "pip", DisplayName: "pip", Version: "24.0", InstalledAt: now},
	})
	if err := store.SaveSnapshot(snap); err != nil {
		t.Fatalf("SaveSnapshot() failed: %v", err)
	}

	if err := store.PruneEnvironments([]string{"env-1"}); err != nil {
		t.Fatalf("PruneEnvironments() failed: %v", err)
	}

	paths, err := store.KnownInterpreters()
	if err != nil {
		t.Fatalf("KnownInterpreters() failed: %v", err)
	}
	if len(paths) != 1 {
		t.Errorf("KnownInterpreters() returned %d environments, want 1", len(paths))
	}

	// The pruned environment's snapshot must cascade away.
	loaded, err := store.LoadSnapshot("env-2")
	if err != nil {
		t.Fatalf("LoadSnapshot() failed: %v", err)
	}
	if loaded != nil {
		t.Error("snapshot should be deleted when its environment is pruned")
	}
}
