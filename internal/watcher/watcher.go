// Package watcher invalidates cached inventory when site-packages changes on
// disk. Installs performed outside the application (a stray "pip install" in
// a shell) would otherwise leave the cache silently stale until expiry.
package watcher

import (
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/blackwell-systems/pyscope/internal/pyenv"
)

// Invalidator receives staleness notifications. Satisfied by
// *inventory.Service.
type Invalidator interface {
	MarkStale(envID string)
}

// Watcher maps filesystem events on site-packages directories back to the
// owning environment and marks its snapshot stale. Events are debounced: a
// pip install touches hundreds of files, and one invalidation is enough.
type Watcher struct {
	fsw      *fsnotify.Watcher
	inv      Invalidator
	log      *zap.Logger
	debounce time.Duration

	mu      sync.Mutex
	dirs    map[string]string // watched dir -> env ID
	pending map[string]*time.Timer

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// New creates a watcher. Nothing is watched until Watch is called.
func New(inv Invalidator, log *zap.Logger) (*Watcher, error) {
	if inv == nil {
		return nil, fmt.Errorf("invalidator cannot be nil")
	}
	if log == nil {
		log = zap.NewNop()
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating filesystem watcher: %w", err)
	}
	return &Watcher{
		fsw:      fsw,
		inv:      inv,
		log:      log,
		debounce: 2 * time.Second,
		dirs:     make(map[string]string),
		pending:  make(map[string]*time.Timer),
		stopCh:   make(chan struct{}),
	}, nil
}

// Watch registers every site-packages directory of an environment. Missing
// directories are skipped: a venv created without any installs has none yet.
func (w *Watcher) Watch(env *pyenv.Environment) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	for _, dir := range env.SitePackages {
		if _, ok := w.dirs[dir]; ok {
			continue
		}
		if err := w.fsw.Add(dir); err != nil {
			w.log.Warn("cannot watch site-packages",
				zap.String("dir", dir), zap.String("env", env.ID), zap.Error(err))
			continue
		}
		w.dirs[dir] = env.ID
	}
	return nil
}

// Start begins dispatching events. Call Stop to shut down.
func (w *Watcher) Start() {
	w.wg.Add(1)
	go w.run()
}

func (w *Watcher) run() {
	defer w.wg.Done()
	for {
		select {
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.handle(event)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.log.Warn("filesystem watcher error", zap.Error(err))
		case <-w.stopCh:
			return
		}
	}
}

// handle resolves an event path to the environment owning it and schedules a
// debounced invalidation.
func (w *Watcher) handle(event fsnotify.Event) {
	if event.Op&(fsnotify.Create|fsnotify.Remove|fsnotify.Rename|fsnotify.Write) == 0 {
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	envID := ""
	for dir, id := range w.dirs {
		if event.Name == dir || strings.HasPrefix(event.Name, dir+string(filepath.Separator)) {
			envID = id
			break
		}
	}
	if envID == "" {
		return
	}

	if timer, ok := w.pending[envID]; ok {
		timer.Reset(w.debounce)
		return
	}
	id := envID
	w.pending[id] = time.AfterFunc(w.debounce, func() {
		w.mu.Lock()
		delete(w.pending, id)
		w.mu.Unlock()

		w.log.Info("site-packages changed outside the application; cache invalidated",
			zap.String("env", id))
		w.inv.MarkStale(id)
	})
}

// Stop halts event dispatch and cancels pending invalidations.
func (w *Watcher) Stop() error {
	close(w.stopCh)
	err := w.fsw.Close()
	w.wg.Wait()

	w.mu.Lock()
	for id, timer := range w.pending {
		timer.Stop()
		delete(w.pending, id)
	}
	w.mu.Unlock()
	return err
}
