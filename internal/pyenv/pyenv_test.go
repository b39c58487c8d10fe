package pyenv

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestEnvID(t *testing.T) {
	a := EnvID("/venvs/app/bin/python")
	if len(a) != 12 {
		t.Errorf("EnvID length = %d, want 12", len(a))
	}
	if a != EnvID("/venvs/app/bin/python") {
		t.Error("EnvID must be stable across calls")
	}
	// Path cleaning: the same interpreter spelled differently maps to one ID.
	if a != EnvID("/venvs/app/bin/../bin/python") {
		t.Error("EnvID must clean its input path")
	}
	if a == EnvID("/venvs/other/bin/python") {
		t.Error("distinct interpreters must get distinct IDs")
	}
}

func TestPresenceString(t *testing.T) {
	if PresenceAvailable.String() != "available" ||
		PresenceAbsent.String() != "absent" ||
		PresenceUnknown.String() != "unknown" {
		t.Error("Presence string labels wrong")
	}
}

func TestNotFoundError(t *testing.T) {
	var err error = &NotFoundError{ID: "abc123"}
	var nf *NotFoundError
	if !errors.As(err, &nf) || nf.ID != "abc123" {
		t.Error("NotFoundError does not round-trip through errors.As")
	}
}

// fakeInterpreter writes an executable script that answers the introspection
// probe with fixed JSON, standing in for a real Python binary.
func fakeInterpreter(t *testing.T, dir, payload string) string {
	t.Helper()
	path := filepath.Join(dir, "python")
	script := "#!/bin/sh\necho '" + payload + "'\n"
	if err := os.WriteFile(path, []byte(script), 0o755); err != nil {
		t.Fatal(err)
	}
	return path
}

func venvPayload(site string) string {
	return `{"version": "3.12.1", "prefix": "/venvs/app", "base_prefix": "/usr", "site_packages": ["` + site + `"]}`
}

func TestProbe(t *testing.T) {
	dir := t.TempDir()
	py := fakeInterpreter(t, dir, venvPayload(dir))

	env, err := Probe(context.Background(), py)
	if err != nil {
		t.Fatal(err)
	}
	if env.ID != EnvID(py) {
		t.Error("ID must derive from the interpreter path")
	}
	if env.Kind != KindVirtual {
		t.Errorf("prefix != base_prefix should mean virtualenv, got %s", env.Kind)
	}
	if env.Version != "3.12.1" || len(env.SitePackages) != 1 {
		t.Errorf("env = %+v", env)
	}
}

func TestProbe_SystemInterpreter(t *testing.T) {
	dir := t.TempDir()
	py := fakeInterpreter(t, dir,
		`{"version": "3.11.2", "prefix": "/usr", "base_prefix": "/usr", "site_packages": ["/usr/lib/python3.11/site-packages"]}`)

	env, err := Probe(context.Background(), py)
	if err != nil {
		t.Fatal(err)
	}
	if env.Kind != KindSystem {
		t.Errorf("Kind = %s, want system", env.Kind)
	}
}

func TestProbe_Failures(t *testing.T) {
	dir := t.TempDir()

	if _, err := Probe(context.Background(), filepath.Join(dir, "missing")); err == nil {
		t.Error("missing interpreter should fail the probe")
	}

	garbage := fakeInterpreter(t, dir, "this is not json")
	if _, err := Probe(context.Background(), garbage); err == nil {
		t.Error("non-JSON probe output should fail")
	}
}

func TestProbe_IncompleteFacts(t *testing.T) {
	dir := t.TempDir()
	py := fakeInterpreter(t, dir,
		`{"version": "", "prefix": "/usr", "base_prefix": "/usr", "site_packages": []}`)
	if _, err := Probe(context.Background(), py); err == nil {
		t.Error("incomplete interpreter facts should fail the probe")
	}
}

func TestRegistry_Discover(t *testing.T) {
	t.Setenv("PATH", "") // keep the host's interpreters out of the test

	dirA, dirB := t.TempDir(), t.TempDir()
	pyA := fakeInterpreter(t, dirA, venvPayload(dirA))
	pyB := fakeInterpreter(t, dirB, venvPayload(dirB))
	bad := filepath.Join(dirA, "not-there")

	r := NewRegistry([]string{pyA, pyB, bad}, nil)
	envs := r.Discover(context.Background())

	if len(envs) != 2 {
		t.Fatalf("discovered %d environments, want 2", len(envs))
	}
	// Stable order by interpreter path.
	if envs[0].Interpreter > envs[1].Interpreter {
		t.Error("environments not in stable order")
	}

	warnings := r.Warnings()
	if len(warnings) != 1 || warnings[0].Candidate != bad {
		t.Errorf("warnings = %v", warnings)
	}

	if r.Active() == nil {
		t.Error("discovery should default an active environment")
	}
}

func TestRegistry_ActiveSurvivesRediscovery(t *testing.T) {
	t.Setenv("PATH", "")

	dirA, dirB := t.TempDir(), t.TempDir()
	pyA := fakeInterpreter(t, dirA, venvPayload(dirA))
	pyB := fakeInterpreter(t, dirB, venvPayload(dirB))

	r := NewRegistry([]string{pyA, pyB}, nil)
	r.Discover(context.Background())

	if err := r.SetActive(EnvID(pyB)); err != nil {
		t.Fatal(err)
	}
	r.Discover(context.Background())
	if active := r.Active(); active == nil || active.ID != EnvID(pyB) {
		t.Error("active selection lost across rediscovery of a surviving environment")
	}
}

func TestRegistry_GetAndSetActiveUnknown(t *testing.T) {
	r := NewRegistry(nil, nil)

	if _, err := r.Get("nope"); err == nil {
		t.Error("Get of unknown ID should fail")
	}
	var nf *NotFoundError
	if err := r.SetActive("nope"); !errors.As(err, &nf) {
		t.Errorf("SetActive of unknown ID = %v, want NotFoundError", err)
	}
}

func TestRegistry_Add(t *testing.T) {
	dir := t.TempDir()
	py := fakeInterpreter(t, dir, venvPayload(dir))

	r := NewRegistry(nil, nil)
	env, err := r.Add(context.Background(), py)
	if err != nil {
		t.Fatal(err)
	}
	got, err := r.Get(env.ID)
	if err != nil || got.Interpreter != py {
		t.Errorf("Get after Add = %+v, %v", got, err)
	}
	if active := r.Active(); active == nil || active.ID != env.ID {
		t.Error("first added environment should become active")
	}
}
