package inventory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/blackwell-systems/pyscope/internal/pyenv"
)

// Persister stores snapshots across process restarts. Implemented by
// internal/store; nil disables persistence.
type Persister interface {
	SaveSnapshot(snap *Snapshot) error
	LoadSnapshot(envID string) (*Snapshot, error) // (nil, nil) when absent
	InvalidateSnapshot(envID string) error
}

// ScanFunc produces a fresh snapshot for an environment. Replaceable in tests.
type ScanFunc func(ctx context.Context, env *pyenv.Environment) (*Snapshot, error)

// Service serves cached snapshots. Refreshes for the same environment are
// collapsed: a request arriving while a scan is in flight joins that scan
// instead of launching a second one.
type Service struct {
	persist Persister
	scan    ScanFunc
	maxAge  time.Duration // persisted snapshots older than this are stale; 0 = never
	log     *zap.Logger

	group singleflight.Group

	mu     sync.Mutex
	cached map[string]*Snapshot
	stale  map[string]bool
	gen    map[string]uint64 // bumped by MarkStale; detects marks landing mid-scan
}

// NewService creates a snapshot service backed by the real filesystem scanner.
func NewService(persist Persister, maxAge time.Duration, log *zap.Logger) *Service {
	return newService(persist, Scan, maxAge, log)
}

func newService(persist Persister, scan ScanFunc, maxAge time.Duration, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{
		persist: persist,
		scan:    scan,
		maxAge:  maxAge,
		log:     log,
		cached:  make(map[string]*Snapshot),
		stale:   make(map[string]bool),
		gen:     make(map[string]uint64),
	}
}

// Snapshot returns the package set of env. A cached snapshot is returned
// unless it is marked stale or forceRefresh is set; otherwise a scan runs,
// with at most one concurrent scan per environment.
func (s *Service) Snapshot(ctx context.Context, env *pyenv.Environment, forceRefresh bool) (*Snapshot, error) {
	if !forceRefresh {
		if snap := s.cachedFresh(env.ID); snap != nil {
			return snap, nil
		}
		if snap := s.loadPersisted(env.ID); snap != nil {
			return snap, nil
		}
	}

	v, err, _ := s.group.Do(env.ID, func() (interface{}, error) {
		s.mu.Lock()
		startGen := s.gen[env.ID]
		s.mu.Unlock()

		snap, err := s.scan(ctx, env)
		if err != nil {
			return nil, err
		}

		// A MarkStale that landed while the scan was running means the scan
		// may predate the change it announced. Serve the result to this
		// caller, but keep the stale flag so the next call re-scans.
		s.mu.Lock()
		current := s.gen[env.ID] == startGen
		if current {
			s.cached[env.ID] = snap
			delete(s.stale, env.ID)
		}
		s.mu.Unlock()

		if current && s.persist != nil {
			if err := s.persist.SaveSnapshot(snap); err != nil {
				s.log.Warn("snapshot persistence failed",
					zap.String("env", env.ID), zap.Error(err))
			}
		}
		return snap, nil
	})
	if err != nil {
		return nil, fmt.Errorf("inventory scan for %s: %w", env.ID, err)
	}
	return v.(*Snapshot), nil
}

// MarkStale flags the environment's snapshot so the next Snapshot call
// re-scans. Called after every successful mutation and by the watcher.
func (s *Service) MarkStale(envID string) {
	s.mu.Lock()
	s.stale[envID] = true
	s.gen[envID]++
	s.mu.Unlock()

	if s.persist != nil {
		if err := s.persist.InvalidateSnapshot(envID); err != nil {
			s.log.Warn("persisted snapshot invalidation failed",
				zap.String("env", envID), zap.Error(err))
		}
	}
}

// DropSession discards the in-memory view for an environment, e.g. when the
// active environment switches. Persisted cache entries are untouched.
func (s *Service) DropSession(envID string) {
	s.mu.Lock()
	delete(s.cached, envID)
	s.mu.Unlock()
}

func (s *Service) cachedFresh(envID string) *Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stale[envID] {
		return nil
	}
	return s.cached[envID]
}

func (s *Service) loadPersisted(envID string) *Snapshot {
	if s.persist == nil {
		return nil
	}
	s.mu.Lock()
	wasStale := s.stale[envID]
	s.mu.Unlock()
	if wasStale {
		return nil
	}

	snap, err := s.persist.LoadSnapshot(envID)
	if err != nil {
		s.log.Warn("persisted snapshot load failed",
			zap.String("env", envID), zap.Error(err))
		return nil
	}
	if snap == nil {
		return nil
	}
	if s.maxAge > 0 && time.Since(snap.TakenAt) > s.maxAge {
		return nil
	}
	s.mu.Lock()
	s.cached[envID] = snap
	s.mu.Unlock()
	return snap
}
