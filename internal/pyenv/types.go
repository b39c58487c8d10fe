package pyenv

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"path/filepath"
)

// Kind distinguishes a system interpreter from an isolated virtual environment.
type Kind string

const (
	KindSystem  Kind = "system"
	KindVirtual Kind = "virtualenv"
)

// Environment is one Python interpreter plus its installed-package set.
// Immutable after discovery; the Registry tracks which one is active.
type Environment struct {
	ID           string
	Interpreter  string // absolute path to the python executable
	Kind         Kind
	Version      string // e.g. "3.12.1"
	Prefix       string
	SitePackages []string
}

// DiscoveryWarning records a candidate interpreter that failed discovery.
// Non-fatal: the candidate is omitted from the registry.
type DiscoveryWarning struct {
	Candidate string
	Reason    string
}

func (w DiscoveryWarning) String() string {
	return fmt.Sprintf("%s: %s", w.Candidate, w.Reason)
}

// NotFoundError reports a reference to an environment the registry does not know.
type NotFoundError struct {
	ID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("environment %q not found", e.ID)
}

// EnvID derives the stable identifier for an interpreter path.
// The same interpreter always maps to the same ID across runs, which is
// what keys the persisted cache.
func EnvID(interpreter string) string {
	sum := sha256.Sum256([]byte(filepath.Clean(interpreter)))
	return hex.EncodeToString(sum[:])[:12]
}

// Presence is the result of a capability probe. Tri-state so callers can
// distinguish "known missing" from "could not determine".
type Presence int

const (
	PresenceUnknown Presence = iota
	PresenceAbsent
	PresenceAvailable
)

func (p Presence) String() string {
	switch p {
	case PresenceAvailable:
		return "available"
	case PresenceAbsent:
		return "absent"
	default:
		return "unknown"
	}
}
