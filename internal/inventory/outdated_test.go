package inventory

import (
	"context"
	"errors"
	"testing"

	"github.com/blackwell-systems/pyscope/internal/backend"
	"github.com/blackwell-systems/pyscope/internal/pyenv"
)

type fakeExecutor struct {
	stdout string
	err    error
	cmd    backend.Command
}

func (f *fakeExecutor) Execute(ctx context.Context, env *pyenv.Environment, cmd backend.Command) (*backend.Result, error) {
	f.cmd = cmd
	if f.err != nil {
		return nil, f.err
	}
	return &backend.Result{Stdout: f.stdout}, nil
}

func TestOutdated(t *testing.T) {
	exec := &fakeExecutor{stdout: `[
		{"name": "Charset_Normalizer", "version": "3.0.0", "latest_version": "3.1.0"},
		{"name": "urllib3", "version": "1.26.15", "latest_version": "2.0.2"}
	]`}

	out, err := Outdated(context.Background(), exec, serviceEnv())
	if err != nil {
		t.Fatal(err)
	}
	if exec.cmd.Action != backend.ActionList || !exec.cmd.Outdated {
		t.Errorf("issued command = %+v", exec.cmd)
	}
	if len(out) != 2 {
		t.Fatalf("got %d entries, want 2", len(out))
	}
	// Keys are canonical even when the backend reports display names.
	info, ok := out["charset-normalizer"]
	if !ok {
		t.Fatal("charset-normalizer not keyed canonically")
	}
	if info.Latest != "3.1.0" {
		t.Errorf("Latest = %q", info.Latest)
	}
}

func TestOutdated_ExecutorError(t *testing.T) {
	exec := &fakeExecutor{err: errors.New("boom")}
	if _, err := Outdated(context.Background(), exec, serviceEnv()); err == nil {
		t.Error("executor failure should propagate")
	}
}

func TestOutdated_MalformedOutput(t *testing.T) {
	exec := &fakeExecutor{stdout: "WARNING: not json"}
	if _, err := Outdated(context.Background(), exec, serviceEnv()); err == nil {
		t.Error("non-JSON list output should error")
	}
}
