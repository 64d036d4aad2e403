// Package storage defines where sessions, snapshots and brake events are
// kept. Backends receive storage-agnostic core types and convert them to
// their own representation.
package storage

import (
	"errors"

	"github.com/OCAP2/brakesim/pkg/core"
)

// ErrNotFound is returned by a Reader for an unknown session or a session
// without snapshots.
var ErrNotFound = errors.New("not found")

// Backend is the interface all storage implementations must satisfy
type Backend interface {
	// Lifecycle
	Init() error
	Close() error

	// Session management
	StartSession(s *core.Session) error
	EndSession(s *core.Session) error

	// SaveSnapshot stores the consist at one simulation time and assigns
	// s.ID.
	SaveSnapshot(s *core.Snapshot) error
	RecordBrakeEvent(e *core.BrakeEvent) error
}

// Reader is implemented by backends that can read back what they stored.
// Snapshots and events are ordered by simulation time.
type Reader interface {
	Sessions() ([]core.Session, error)
	Session(id string) (core.Session, error)
	LatestSnapshot(sessionID string) (core.Snapshot, error)
	Snapshots(sessionID string) ([]core.Snapshot, error)
	BrakeEvents(sessionID string) ([]core.BrakeEvent, error)
}

// Exportable is an optional interface for backends that write one file per
// session when it ends.
type Exportable interface {
	ExportedFilePath() string
}
