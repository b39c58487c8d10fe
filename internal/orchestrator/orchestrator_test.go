package orchestrator

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/blackwell-systems/pyscope/internal/backend"
	"github.com/blackwell-systems/pyscope/internal/depgraph"
	"github.com/blackwell-systems/pyscope/internal/inventory"
	"github.com/blackwell-systems/pyscope/internal/pyenv"
)

type fakeExecutor struct {
	mu    sync.Mutex
	calls []backend.Command
	fail  error
	exit  int
}

func (f *fakeExecutor) Execute(ctx context.Context, env *pyenv.Environment, cmd backend.Command) (*backend.Result, error) {
	f.mu.Lock()
	f.calls = append(f.calls, cmd)
	f.mu.Unlock()
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	if f.fail != nil {
		return &backend.Result{ExitCode: f.exit, Stderr: f.fail.Error()}, f.fail
	}
	return &backend.Result{Stdout: "done"}, nil
}

type fakeInvalidator struct {
	mu     sync.Mutex
	staled []string
}

func (f *fakeInvalidator) MarkStale(envID string) {
	f.mu.Lock()
	f.staled = append(f.staled, envID)
	f.mu.Unlock()
}

func orchEnv() *pyenv.Environment {
	return &pyenv.Environment{
		ID:          "venv-orch",
		Interpreter: "/venvs/app/bin/python",
		Kind:        pyenv.KindVirtual,
	}
}

func newTestOrchestrator(t *testing.T, exec *fakeExecutor) (*Orchestrator, *fakeInvalidator, *DeferredQueue) {
	t.Helper()
	inv := &fakeInvalidator{}
	queue, err := NewDeferredQueue(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	return New(exec, inv, queue, []string{"pyscope"}, nil), inv, queue
}

func TestExecute_Success(t *testing.T) {
	exec := &fakeExecutor{}
	orch, inv, _ := newTestOrchestrator(t, exec)

	res := orch.Execute(context.Background(), Request{
		Env: orchEnv(), Kind: KindInstall, Packages: []string{"requests"},
	}, nil)

	if res.Outcome != OutcomeSucceeded {
		t.Fatalf("Outcome = %s, err = %v", res.Outcome, res.Err)
	}
	if res.ID == "" {
		t.Error("result must carry an operation ID")
	}
	if len(inv.staled) != 1 || inv.staled[0] != "venv-orch" {
		t.Errorf("success must invalidate the inventory, staled = %v", inv.staled)
	}
	if len(exec.calls) != 1 || exec.calls[0].Action != backend.ActionInstall {
		t.Errorf("calls = %+v", exec.calls)
	}
}

func TestExecute_FailureKeepsCache(t *testing.T) {
	exec := &fakeExecutor{fail: errors.New("resolution impossible"), exit: 1}
	orch, inv, _ := newTestOrchestrator(t, exec)

	res := orch.Execute(context.Background(), Request{
		Env: orchEnv(), Kind: KindInstall, Packages: []string{"nosuchpkg"},
	}, nil)

	if res.Outcome != OutcomeFailed || res.Err == nil {
		t.Fatalf("Outcome = %s, err = %v", res.Outcome, res.Err)
	}
	if res.ExitCode != 1 || res.Output == "" {
		t.Error("failure must carry exit code and captured output")
	}
	if len(inv.staled) != 0 {
		t.Error("a failed mutation must not invalidate the inventory")
	}
}

func TestExecute_Cancelled(t *testing.T) {
	exec := &fakeExecutor{}
	orch, inv, _ := newTestOrchestrator(t, exec)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res := orch.Execute(ctx, Request{
		Env: orchEnv(), Kind: KindUpgrade, Packages: []string{"requests"},
	}, nil)

	if res.Outcome != OutcomeCancelled {
		t.Fatalf("Outcome = %s, err = %v", res.Outcome, res.Err)
	}
	if len(inv.staled) != 0 {
		t.Error("cancellation must not invalidate the inventory")
	}
}

func TestExecute_TranslatesKinds(t *testing.T) {
	tests := []struct {
		kind Kind
		want func(backend.Command) bool
	}{
		{KindInstall, func(c backend.Command) bool {
			return c.Action == backend.ActionInstall && !c.Upgrade && !c.ForceReinstall
		}},
		{KindUpgrade, func(c backend.Command) bool {
			return c.Action == backend.ActionInstall && c.Upgrade
		}},
		{KindReinstall, func(c backend.Command) bool {
			return c.Action == backend.ActionInstall && c.ForceReinstall
		}},
		{KindUninstall, func(c backend.Command) bool {
			return c.Action == backend.ActionUninstall
		}},
	}
	for _, tt := range tests {
		exec := &fakeExecutor{}
		orch, _, _ := newTestOrchestrator(t, exec)
		res := orch.Execute(context.Background(), Request{
			Env: orchEnv(), Kind: tt.kind, Packages: []string{"requests"},
		}, nil)
		if res.Outcome != OutcomeSucceeded {
			t.Fatalf("%s: %v", tt.kind, res.Err)
		}
		if !tt.want(exec.calls[0]) {
			t.Errorf("%s translated to %+v", tt.kind, exec.calls[0])
		}
	}
}

func TestValidate(t *testing.T) {
	env := orchEnv()
	tests := []struct {
		name    string
		req     Request
		wantErr bool
	}{
		{"nil env", Request{Kind: KindInstall, Packages: []string{"a"}}, true},
		{"install no packages", Request{Env: env, Kind: KindInstall}, true},
		{"install from requirements only", Request{Env: env, Kind: KindInstall, Requirements: "reqs.txt"}, false},
		{"uninstall no packages", Request{Env: env, Kind: KindUninstall}, true},
		{"empty name", Request{Env: env, Kind: KindInstall, Packages: []string{"  "}}, true},
		{"canonical duplicate", Request{Env: env, Kind: KindInstall, Packages: []string{"Charset_Normalizer", "charset-normalizer"}}, true},
		{"uninstall pip", Request{Env: env, Kind: KindUninstall, Packages: []string{"PIP"}}, true},
		{"upgrade pip is fine", Request{Env: env, Kind: KindUpgrade, Packages: []string{"pip"}}, false},
		{"compile missing output", Request{Env: env, Kind: KindCompile, InputFile: "reqs.in"}, true},
		{"compile complete", Request{Env: env, Kind: KindCompile, InputFile: "reqs.in", OutputFile: "reqs.txt"}, false},
		{"unknown kind", Request{Env: env, Kind: "defenestrate", Packages: []string{"a"}}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validate(tt.req)
			if (err != nil) != tt.wantErr {
				t.Errorf("validate(%+v) error = %v, wantErr %v", tt.req, err, tt.wantErr)
			}
		})
	}
}

func TestExecute_ValidationFailureSkipsBackend(t *testing.T) {
	exec := &fakeExecutor{}
	orch, _, _ := newTestOrchestrator(t, exec)

	res := orch.Execute(context.Background(), Request{
		Env: orchEnv(), Kind: KindUninstall, Packages: []string{"pip"},
	}, nil)

	if res.Outcome != OutcomeFailed {
		t.Fatalf("Outcome = %s", res.Outcome)
	}
	if len(exec.calls) != 0 {
		t.Error("validation failure must not reach the backend")
	}
}

func selfClosureGraph() *depgraph.Graph {
	snap := inventory.NewSnapshot("venv-orch", []*inventory.PackageRecord{
		{Name: "pyscope", Version: "1.0", Requires: []string{"rich", "click"}},
		{Name: "rich", Version: "13.3.5"},
		{Name: "click", Version: "8.1.3"},
		{Name: "unrelated", Version: "0.1"},
	})
	return depgraph.Build(snap)
}

func TestExecute_SelfUninstallDeferred(t *testing.T) {
	exec := &fakeExecutor{}
	orch, inv, queue := newTestOrchestrator(t, exec)

	res := orch.Execute(context.Background(), Request{
		Env: orchEnv(), Kind: KindUninstall, Packages: []string{"rich"},
	}, selfClosureGraph())

	if res.Outcome != OutcomeDeferredRestart {
		t.Fatalf("Outcome = %s, err = %v", res.Outcome, res.Err)
	}
	if len(exec.calls) != 0 {
		t.Error("deferred uninstall must not touch the backend")
	}
	if len(inv.staled) != 0 {
		t.Error("deferred uninstall changed nothing yet; cache must stay valid")
	}

	pending, err := queue.Pending()
	if err != nil {
		t.Fatal(err)
	}
	if len(pending) != 1 || pending[0].ID != res.ID {
		t.Fatalf("pending = %+v", pending)
	}
	if pending[0].Interpreter != "/venvs/app/bin/python" {
		t.Errorf("instruction must carry the interpreter, got %q", pending[0].Interpreter)
	}
}

func TestExecute_UnrelatedUninstallRunsImmediately(t *testing.T) {
	exec := &fakeExecutor{}
	orch, _, queue := newTestOrchestrator(t, exec)

	res := orch.Execute(context.Background(), Request{
		Env: orchEnv(), Kind: KindUninstall, Packages: []string{"unrelated"},
	}, selfClosureGraph())

	if res.Outcome != OutcomeSucceeded {
		t.Fatalf("Outcome = %s, err = %v", res.Outcome, res.Err)
	}
	if pending, _ := queue.Pending(); len(pending) != 0 {
		t.Error("unrelated uninstall must not be deferred")
	}
}

func TestExecute_SelfUninstallWithoutQueueFails(t *testing.T) {
	exec := &fakeExecutor{}
	orch := New(exec, &fakeInvalidator{}, nil, []string{"pyscope"}, nil)

	res := orch.Execute(context.Background(), Request{
		Env: orchEnv(), Kind: KindUninstall, Packages: []string{"rich"},
	}, selfClosureGraph())

	if res.Outcome != OutcomeFailed || res.Err == nil {
		t.Fatalf("Outcome = %s, err = %v", res.Outcome, res.Err)
	}
	if len(exec.calls) != 0 {
		t.Error("refused uninstall must not reach the backend")
	}
}

func TestExecuteBatch_ContinuesPastFailures(t *testing.T) {
	exec := &fakeExecutor{}
	orch, _, _ := newTestOrchestrator(t, exec)

	env := orchEnv()
	results := orch.ExecuteBatch(context.Background(), []Request{
		{Env: env, Kind: KindInstall, Packages: []string{"requests"}},
		{Env: env, Kind: KindInstall}, // invalid
		{Env: env, Kind: KindUpgrade, Packages: []string{"idna"}},
	}, nil)

	if len(results) != 3 {
		t.Fatalf("got %d results, want 3", len(results))
	}
	if results[0].Outcome != OutcomeSucceeded ||
		results[1].Outcome != OutcomeFailed ||
		results[2].Outcome != OutcomeSucceeded {
		t.Errorf("outcomes = %s, %s, %s", results[0].Outcome, results[1].Outcome, results[2].Outcome)
	}
}

func TestExecuteBatch_CancellationMarksRemaining(t *testing.T) {
	exec := &fakeExecutor{}
	orch, _, _ := newTestOrchestrator(t, exec)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	env := orchEnv()
	results := orch.ExecuteBatch(ctx, []Request{
		{Env: env, Kind: KindInstall, Packages: []string{"a"}},
		{Env: env, Kind: KindInstall, Packages: []string{"b"}},
	}, nil)

	for i, res := range results {
		if res.Outcome != OutcomeCancelled {
			t.Errorf("result %d outcome = %s, want cancelled", i, res.Outcome)
		}
	}
	if len(exec.calls) != 0 {
		t.Error("cancelled batch entries must not start")
	}
}
