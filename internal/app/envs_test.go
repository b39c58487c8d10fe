package app

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/blackwell-systems/pyscope/internal/pyenv"
)

// testInterpreter writes an executable script that answers the introspection
// probe with fixed JSON, standing in for a real Python binary.
func testInterpreter(t *testing.T, dir string) string {
	t.Helper()
	path := filepath.Join(dir, "python")
	payload := `{"version": "3.12.1", "prefix": "` + dir + `", "base_prefix": "/usr", "site_packages": ["` + dir + `"]}`
	script := "#!/bin/sh\necho '" + payload + "'\n"
	if err := os.WriteFile(path, []byte(script), 0o755); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestSwitchActiveEnv(t *testing.T) {
	t.Setenv("PATH", "")

	pyA := testInterpreter(t, t.TempDir())
	pyB := testInterpreter(t, t.TempDir())

	registry := pyenv.NewRegistry([]string{pyA, pyB}, nil)
	registry.Discover(context.Background())

	if err := registry.SetActive(pyenv.EnvID(pyA)); err != nil {
		t.Fatal(err)
	}

	// Switching must report the outgoing environment, which is the one
	// whose session view gets dropped. Reporting the incoming one would
	// throw away the cache the user is about to use.
	prev, err := switchActiveEnv(registry, pyenv.EnvID(pyB))
	if err != nil {
		t.Fatal(err)
	}
	if prev != pyenv.EnvID(pyA) {
		t.Errorf("switchActiveEnv returned %q, want the outgoing env %q", prev, pyenv.EnvID(pyA))
	}
	if active := registry.Active(); active == nil || active.ID != pyenv.EnvID(pyB) {
		t.Error("new environment not active after switch")
	}

	// Switching to the already-active environment reports it as previous;
	// the caller skips the drop in that case.
	prev, err = switchActiveEnv(registry, pyenv.EnvID(pyB))
	if err != nil {
		t.Fatal(err)
	}
	if prev != pyenv.EnvID(pyB) {
		t.Errorf("re-selecting the active env returned %q, want %q", prev, pyenv.EnvID(pyB))
	}
}

func TestSwitchActiveEnv_Unknown(t *testing.T) {
	registry := pyenv.NewRegistry(nil, nil)
	if _, err := switchActiveEnv(registry, "nope"); err == nil {
		t.Error("switching to an unknown environment should fail")
	}
}
