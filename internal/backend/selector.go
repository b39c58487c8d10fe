package backend

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/blackwell-systems/pyscope/internal/pyenv"
)

// Runner executes an argument vector and returns captured output. Replaced in
// tests with a fake; the default spawns the real process.
type Runner func(ctx context.Context, argv []string) (*Result, error)

// Detection records which backends are usable for one environment. Cached per
// environment until an explicit re-detection.
type Detection struct {
	UVPath      string
	UVAvailable bool
	ProbedAt    time.Time
}

// Selector owns backend detection and command execution. Mutating commands
// against the same environment are serialized; the busy lock is released on
// every exit path, including cancellation.
type Selector struct {
	run Runner
	log *zap.Logger

	mu         sync.Mutex
	detections map[string]Detection
	envLocks   map[string]*sync.Mutex
}

// NewSelector creates a Selector using the real process runner.
func NewSelector(log *zap.Logger) *Selector {
	return NewSelectorWithRunner(execRunner, log)
}

// NewSelectorWithRunner creates a Selector with a custom runner. Used by tests
// and by callers that need to interpose on process execution.
func NewSelectorWithRunner(run Runner, log *zap.Logger) *Selector {
	if log == nil {
		log = zap.NewNop()
	}
	return &Selector{
		run:        run,
		log:        log,
		detections: make(map[string]Detection),
		envLocks:   make(map[string]*sync.Mutex),
	}
}

// Detect probes for uv availability for the environment. The result is cached;
// use Redetect to force a fresh probe.
func (s *Selector) Detect(ctx context.Context, env *pyenv.Environment) Detection {
	s.mu.Lock()
	if det, ok := s.detections[env.ID]; ok {
		s.mu.Unlock()
		return det
	}
	s.mu.Unlock()
	return s.Redetect(ctx, env)
}

// Redetect probes uv regardless of any cached result.
func (s *Selector) Redetect(ctx context.Context, env *pyenv.Environment) Detection {
	det := Detection{ProbedAt: time.Now()}
	if path, err := exec.LookPath("uv"); err == nil {
		if res, err := s.run(ctx, []string{path, "--version"}); err == nil && res.ExitCode == 0 {
			det.UVPath = path
			det.UVAvailable = true
		}
	}
	s.log.Debug("backend detection",
		zap.String("env", env.ID), zap.Bool("uv", det.UVAvailable))

	s.mu.Lock()
	s.detections[env.ID] = det
	s.mu.Unlock()
	return det
}

// BackendFor returns the preferred backend for the environment: uv when
// available, pip otherwise.
func (s *Selector) BackendFor(ctx context.Context, env *pyenv.Environment) Backend {
	det := s.Detect(ctx, env)
	if det.UVAvailable {
		return NewUV(det.UVPath)
	}
	return NewPip()
}

// Execute translates the command for the preferred backend and runs it.
// A non-zero exit is surfaced as *ExecutionError, never swallowed.
// Cancellation is reported as the context's error so callers can distinguish
// Cancelled from Failed.
func (s *Selector) Execute(ctx context.Context, env *pyenv.Environment, cmd Command) (*Result, error) {
	b := s.BackendFor(ctx, env)
	argv, err := b.Argv(env, cmd)
	if err != nil {
		return nil, err
	}

	if cmd.Mutating() {
		lock := s.envLock(env.ID)
		lock.Lock()
		defer lock.Unlock()
	}

	s.log.Info("executing backend command",
		zap.String("env", env.ID),
		zap.String("backend", string(b.Name())),
		zap.String("action", string(cmd.Action)),
		zap.Strings("packages", cmd.Packages))

	res, err := s.run(ctx, argv)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%s %s: %w", b.Name(), cmd.Action, ctx.Err())
		}
		return nil, fmt.Errorf("%s %s: %w", b.Name(), cmd.Action, err)
	}
	res.Backend = b.Name()
	res.Argv = argv

	if res.ExitCode != 0 {
		if ctx.Err() != nil {
			// The process died because we killed it, not because it failed.
			return nil, fmt.Errorf("%s %s: %w", b.Name(), cmd.Action, ctx.Err())
		}
		return res, &ExecutionError{
			Backend:  b.Name(),
			Argv:     argv,
			ExitCode: res.ExitCode,
			Stdout:   res.Stdout,
			Stderr:   res.Stderr,
		}
	}
	return res, nil
}

// IsCancelled reports whether an Execute error represents cancellation rather
// than failure.
func IsCancelled(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

func (s *Selector) envLock(envID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	lock, ok := s.envLocks[envID]
	if !ok {
		lock = &sync.Mutex{}
		s.envLocks[envID] = lock
	}
	return lock
}

// execRunner spawns the process and captures stdout/stderr separately. On
// context cancellation the process is terminated; WaitDelay bounds how long we
// wait for it to die.
func execRunner(ctx context.Context, argv []string) (*Result, error) {
	if len(argv) == 0 {
		return nil, fmt.Errorf("empty argument vector")
	}
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	cmd.WaitDelay = 5 * time.Second

	err := cmd.Run()
	res := &Result{
		Stdout: stdout.String(),
		Stderr: stderr.String(),
	}
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			res.ExitCode = exitErr.ExitCode()
			return res, nil
		}
		return nil, err
	}
	return res, nil
}
