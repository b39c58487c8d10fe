package backend

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/blackwell-systems/pyscope/internal/pyenv"
)

func selectorEnv() *pyenv.Environment {
	return &pyenv.Environment{
		ID:          "venv-sel",
		Interpreter: "/venvs/app/bin/python",
		Kind:        pyenv.KindVirtual,
	}
}

// noUV keeps detection deterministic: with an empty PATH uv is never found
// and the selector always falls back to pip.
func noUV(t *testing.T) {
	t.Helper()
	t.Setenv("PATH", "")
}

func TestSelector_ExecuteSuccess(t *testing.T) {
	noUV(t)
	var gotArgv []string
	run := func(ctx context.Context, argv []string) (*Result, error) {
		gotArgv = argv
		return &Result{Stdout: "ok"}, nil
	}
	s := NewSelectorWithRunner(run, nil)

	res, err := s.Execute(context.Background(), selectorEnv(), Command{
		Action: ActionInstall, Packages: []string{"requests"},
	})
	if err != nil {
		t.Fatal(err)
	}
	if res.Backend != NamePip {
		t.Errorf("Backend = %q, want pip", res.Backend)
	}
	if len(gotArgv) == 0 || gotArgv[0] != "/venvs/app/bin/python" {
		t.Errorf("argv = %v", gotArgv)
	}
	if len(res.Argv) == 0 {
		t.Error("result should carry the argv that ran")
	}
}

func TestSelector_ExecuteNonZeroExit(t *testing.T) {
	noUV(t)
	run := func(ctx context.Context, argv []string) (*Result, error) {
		return &Result{ExitCode: 1, Stderr: "ERROR: no matching distribution"}, nil
	}
	s := NewSelectorWithRunner(run, nil)

	res, err := s.Execute(context.Background(), selectorEnv(), Command{
		Action: ActionInstall, Packages: []string{"nosuchpkg"},
	})
	var execErr *ExecutionError
	if !errors.As(err, &execErr) {
		t.Fatalf("want *ExecutionError, got %v", err)
	}
	if execErr.ExitCode != 1 || execErr.Stderr == "" {
		t.Errorf("execution error missing detail: %+v", execErr)
	}
	if res == nil || res.ExitCode != 1 {
		t.Error("result should still be returned alongside the error")
	}
	if IsCancelled(err) {
		t.Error("a real failure is not a cancellation")
	}
}

func TestSelector_ExecuteCancelled(t *testing.T) {
	noUV(t)
	run := func(ctx context.Context, argv []string) (*Result, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	s := NewSelectorWithRunner(run, nil)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	_, err := s.Execute(ctx, selectorEnv(), Command{
		Action: ActionInstall, Packages: []string{"requests"},
	})
	if err == nil {
		t.Fatal("want error after cancellation")
	}
	if !IsCancelled(err) {
		t.Errorf("cancellation not recognized: %v", err)
	}
}

func TestSelector_KilledProcessNotAFailure(t *testing.T) {
	noUV(t)
	// A process killed by cancellation reports a non-zero exit; that must
	// surface as the context error, not as an ExecutionError.
	ctx, cancel := context.WithCancel(context.Background())
	run := func(ctx context.Context, argv []string) (*Result, error) {
		cancel()
		return &Result{ExitCode: 137}, nil
	}
	s := NewSelectorWithRunner(run, nil)

	_, err := s.Execute(ctx, selectorEnv(), Command{
		Action: ActionUninstall, Packages: []string{"six"},
	})
	if !IsCancelled(err) {
		t.Errorf("want cancellation, got %v", err)
	}
	var execErr *ExecutionError
	if errors.As(err, &execErr) {
		t.Error("killed process must not be reported as an execution failure")
	}
}

func TestSelector_MutatingCommandsSerialized(t *testing.T) {
	noUV(t)
	var inFlight, maxInFlight atomic.Int32
	run := func(ctx context.Context, argv []string) (*Result, error) {
		cur := inFlight.Add(1)
		if cur > maxInFlight.Load() {
			maxInFlight.Store(cur)
		}
		time.Sleep(20 * time.Millisecond)
		inFlight.Add(-1)
		return &Result{}, nil
	}
	s := NewSelectorWithRunner(run, nil)
	env := selectorEnv()

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.Execute(context.Background(), env, Command{
				Action: ActionInstall, Packages: []string{"requests"},
			})
			if err != nil {
				t.Error(err)
			}
		}()
	}
	wg.Wait()

	if maxInFlight.Load() != 1 {
		t.Errorf("%d mutating commands ran concurrently against one environment", maxInFlight.Load())
	}
}

func TestSelector_DetectWithoutUV(t *testing.T) {
	noUV(t)
	s := NewSelectorWithRunner(func(ctx context.Context, argv []string) (*Result, error) {
		t.Error("runner should not be invoked when uv is not on PATH")
		return &Result{}, nil
	}, nil)

	det := s.Detect(context.Background(), selectorEnv())
	if det.UVAvailable {
		t.Error("uv reported available with an empty PATH")
	}
	if b := s.BackendFor(context.Background(), selectorEnv()); b.Name() != NamePip {
		t.Errorf("BackendFor = %q, want pip", b.Name())
	}
}
