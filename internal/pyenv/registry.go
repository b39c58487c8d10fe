package pyenv

import (
	"context"
	"os/exec"
	"sort"
	"sync"

	"go.uber.org/zap"
)

// Registry enumerates known interpreters and tracks the active one.
// Exactly one environment is active at a time.
type Registry struct {
	mu       sync.Mutex
	envs     map[string]*Environment
	active   string
	warnings []DiscoveryWarning

	extra []string // configured interpreter paths, probed in addition to PATH
	log   *zap.Logger
}

// NewRegistry creates an empty registry. extra lists interpreter paths the
// user registered explicitly (from config); they are probed on Discover.
func NewRegistry(extra []string, log *zap.Logger) *Registry {
	if log == nil {
		log = zap.NewNop()
	}
	return &Registry{
		envs:  make(map[string]*Environment),
		extra: extra,
		log:   log,
	}
}

// Discover re-enumerates environments. A candidate that fails probing is
// omitted with a recorded warning, never an error. Previously discovered
// environments that no longer probe are dropped; the active selection is
// cleared if its environment vanished.
func (r *Registry) Discover(ctx context.Context) []*Environment {
	var candidates []string
	for _, name := range []string{"python3", "python"} {
		if path, err := exec.LookPath(name); err == nil {
			candidates = append(candidates, path)
		}
	}
	candidates = append(candidates, r.extra...)

	found := make(map[string]*Environment)
	var warnings []DiscoveryWarning
	for _, cand := range candidates {
		env, err := Probe(ctx, cand)
		if err != nil {
			warnings = append(warnings, DiscoveryWarning{Candidate: cand, Reason: err.Error()})
			r.log.Warn("interpreter candidate skipped",
				zap.String("candidate", cand), zap.Error(err))
			continue
		}
		if _, dup := found[env.ID]; dup {
			continue
		}
		found[env.ID] = env
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.envs = found
	r.warnings = warnings
	if _, ok := r.envs[r.active]; !ok {
		r.active = ""
	}
	if r.active == "" {
		// Default to the first environment in stable order.
		for _, env := range sortedEnvs(r.envs) {
			r.active = env.ID
			break
		}
	}
	return sortedEnvs(r.envs)
}

// List returns all known environments in stable order.
func (r *Registry) List() []*Environment {
	r.mu.Lock()
	defer r.mu.Unlock()
	return sortedEnvs(r.envs)
}

// Get returns the environment with the given ID.
func (r *Registry) Get(id string) (*Environment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	env, ok := r.envs[id]
	if !ok {
		return nil, &NotFoundError{ID: id}
	}
	return env, nil
}

// SetActive switches the active environment. Callers are expected to
// invalidate session-scoped views of the previous environment; persisted
// cache entries are left intact.
func (r *Registry) SetActive(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.envs[id]; !ok {
		return &NotFoundError{ID: id}
	}
	r.active = id
	return nil
}

// Active returns the active environment, or nil if none is known.
func (r *Registry) Active() *Environment {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.envs[r.active]
}

// Warnings returns the discovery warnings from the last Discover call.
func (r *Registry) Warnings() []DiscoveryWarning {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]DiscoveryWarning, len(r.warnings))
	copy(out, r.warnings)
	return out
}

// Add probes a single interpreter and registers it without a full re-enumeration.
func (r *Registry) Add(ctx context.Context, interpreter string) (*Environment, error) {
	env, err := Probe(ctx, interpreter)
	if err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.envs[env.ID] = env
	if r.active == "" {
		r.active = env.ID
	}
	return env, nil
}

func sortedEnvs(m map[string]*Environment) []*Environment {
	out := make([]*Environment, 0, len(m))
	for _, env := range m {
		out = append(out, env)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Interpreter < out[j].Interpreter })
	return out
}
