package orchestrator

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"
)

// Instruction is one pending uninstall, written as a JSON file and consumed
// by the shim process on the next startup. The file is the unit of delivery:
// enqueue writes it, Complete removes it.
type Instruction struct {
	ID          string    `json:"id"`
	EnvID       string    `json:"env_id"`
	Interpreter string    `json:"interpreter"`
	Packages    []string  `json:"packages"`
	QueuedAt    time.Time `json:"queued_at"`
}

// DeferredQueue persists uninstall instructions across process restarts.
type DeferredQueue struct {
	dir string
}

// NewDeferredQueue returns a queue rooted at dir, creating it if needed.
func NewDeferredQueue(dir string) (*DeferredQueue, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating deferred queue dir: %w", err)
	}
	return &DeferredQueue{dir: dir}, nil
}

// Enqueue writes one instruction. The write is atomic: a crash mid-write
// leaves a temp file the loader ignores, never a truncated instruction.
func (q *DeferredQueue) Enqueue(ins Instruction) error {
	if ins.QueuedAt.IsZero() {
		ins.QueuedAt = time.Now().UTC()
	}
	data, err := json.MarshalIndent(ins, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding instruction: %w", err)
	}

	tmp, err := os.CreateTemp(q.dir, ".pending-*")
	if err != nil {
		return fmt.Errorf("writing instruction: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("writing instruction: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("writing instruction: %w", err)
	}
	final := filepath.Join(q.dir, ins.ID+".json")
	if err := os.Rename(tmp.Name(), final); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("writing instruction: %w", err)
	}
	return nil
}

// Pending returns all queued instructions, oldest first. Unreadable files are
// skipped rather than blocking the readable ones.
func (q *DeferredQueue) Pending() ([]Instruction, error) {
	entries, err := os.ReadDir(q.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading deferred queue: %w", err)
	}

	var pending []Instruction
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".json" {
			continue
		}
		data, err := os.ReadFile(filepath.Join(q.dir, entry.Name()))
		if err != nil {
			continue
		}
		var ins Instruction
		if err := json.Unmarshal(data, &ins); err != nil || ins.ID == "" {
			continue
		}
		pending = append(pending, ins)
	}
	sort.Slice(pending, func(i, j int) bool {
		return pending[i].QueuedAt.Before(pending[j].QueuedAt)
	})
	return pending, nil
}

// Complete removes a delivered instruction. Removing an instruction that is
// already gone is not an error.
func (q *DeferredQueue) Complete(id string) error {
	err := os.Remove(filepath.Join(q.dir, id+".json"))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("completing instruction %s: %w", id, err)
	}
	return nil
}
