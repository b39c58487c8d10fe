package app

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/blackwell-systems/pyscope/internal/backend"
	"github.com/blackwell-systems/pyscope/internal/config"
	"github.com/blackwell-systems/pyscope/internal/diagnose"
	"github.com/blackwell-systems/pyscope/internal/inventory"
	"github.com/blackwell-systems/pyscope/internal/orchestrator"
	"github.com/blackwell-systems/pyscope/internal/pyenv"
	"github.com/blackwell-systems/pyscope/internal/store"
)

// appContext bundles the wired-up engine components for one command
// invocation. Built fresh per command; nothing here is shared across
// processes except the database and the deferred queue directory.
type appContext struct {
	cfg      *config.Config
	log      *zap.Logger
	st       *store.Store
	registry *pyenv.Registry
	selector *backend.Selector
	inv      *inventory.Service
	orch     *orchestrator.Orchestrator
	deferred *orchestrator.DeferredQueue
}

// newAppContext opens the database, loads config and discovers environments.
func newAppContext(ctx context.Context) (*appContext, error) {
	log, err := buildLogger()
	if err != nil {
		return nil, err
	}

	cfgDir, err := config.Dir()
	if err != nil {
		return nil, fmt.Errorf("failed to locate config directory: %w", err)
	}
	cfg, err := config.Load(cfgDir)
	if err != nil {
		return nil, err
	}

	path, err := getDBPath()
	if err != nil {
		return nil, err
	}
	st, err := store.New(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := st.CreateSchema(); err != nil {
		st.Close()
		return nil, fmt.Errorf("failed to create database schema: %w", err)
	}

	// Interpreters remembered from previous runs are re-probed alongside the
	// configured ones, so a venv registered once stays visible.
	extra := cfg.Interpreters
	if known, err := st.KnownInterpreters(); err == nil {
		extra = append(extra, known...)
	}

	registry := pyenv.NewRegistry(extra, log)
	envs := registry.Discover(ctx)

	known := make([]string, 0, len(envs))
	for _, env := range envs {
		known = append(known, env.ID)
		if err := st.SaveEnvironment(env); err != nil {
			log.Warn("environment persistence failed", zap.String("env", env.ID), zap.Error(err))
		}
	}
	if err := st.PruneEnvironments(known); err != nil {
		log.Warn("environment pruning failed", zap.Error(err))
	}

	// Restore the active selection persisted by `envs use`.
	if id := loadActiveEnv(); id != "" {
		if err := registry.SetActive(id); err != nil {
			log.Warn("persisted active environment no longer exists", zap.String("env", id))
		}
	}

	selector := backend.NewSelector(log)
	inv := inventory.NewService(st, time.Duration(cfg.CacheExpiryHours)*time.Hour, log)

	dataDir, err := dataDir()
	if err != nil {
		st.Close()
		return nil, err
	}
	deferred, err := orchestrator.NewDeferredQueue(filepath.Join(dataDir, "deferred"))
	if err != nil {
		st.Close()
		return nil, err
	}

	orch := orchestrator.New(selector, inv, deferred, selfPackages(cfg), log)

	return &appContext{
		cfg:      cfg,
		log:      log,
		st:       st,
		registry: registry,
		selector: selector,
		inv:      inv,
		orch:     orch,
		deferred: deferred,
	}, nil
}

// Close releases the context's resources.
func (a *appContext) Close() {
	a.st.Close()
	a.log.Sync() //nolint:errcheck // stderr sync failures are uninteresting
}

// resolveEnv picks the environment a command operates on: the --env flag if
// given, the active environment otherwise.
func (a *appContext) resolveEnv() (*pyenv.Environment, error) {
	if envID != "" {
		return a.registry.Get(envID)
	}
	env := a.registry.Active()
	if env == nil {
		return nil, fmt.Errorf("no Python environment found; check that python3 is on PATH or register one with 'pyscope envs add'")
	}
	return env, nil
}

// engine builds a diagnostic engine from the context's configuration.
func (a *appContext) engine() *diagnose.Engine {
	return diagnose.New(a.selector, a.cfg.AlwaysKeep, a.log)
}

// selfPackages returns the configured self-dependency roots, defaulting to
// the application's own distribution name.
func selfPackages(cfg *config.Config) []string {
	if len(cfg.SelfPackages) > 0 {
		return cfg.SelfPackages
	}
	return []string{"pyscope"}
}

// buildLogger returns a stderr logger honoring PYSCOPE_DEBUG.
func buildLogger() (*zap.Logger, error) {
	if os.Getenv("PYSCOPE_DEBUG") == "" {
		return zap.NewNop(), nil
	}
	cfg := zap.NewDevelopmentConfig()
	cfg.OutputPaths = []string{"stderr"}
	return cfg.Build()
}

// activeEnvFile is where `envs use` persists the selection across runs.
func activeEnvFile() (string, error) {
	dir, err := dataDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "active-env"), nil
}

func loadActiveEnv() string {
	path, err := activeEnvFile()
	if err != nil {
		return ""
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}

func saveActiveEnv(id string) error {
	path, err := activeEnvFile()
	if err != nil {
		return err
	}
	return os.WriteFile(path, []byte(id+"\n"), 0644)
}
