// Package memory keeps sessions in memory and exports each one to a JSON
// file when it ends. Exports already in the output directory are loaded on
// Init so earlier runs can be listed and restored.
package memory

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/OCAP2/brakesim/internal/config"
	"github.com/OCAP2/brakesim/internal/storage"
	"github.com/OCAP2/brakesim/pkg/core"
)

// SessionRecord groups a session with all its time-series data
type SessionRecord struct {
	Session   core.Session
	Snapshots []core.Snapshot
	Events    []core.BrakeEvent
}

// Backend stores session data in memory and exports to JSON
type Backend struct {
	cfg     config.MemoryConfig
	current *SessionRecord

	sessions map[string]*SessionRecord

	idCounter      uint
	lastExportPath string
	mu             sync.RWMutex
}

// New creates a new memory backend
func New(cfg config.MemoryConfig) *Backend {
	return &Backend{
		cfg:      cfg,
		sessions: make(map[string]*SessionRecord),
	}
}

// Init loads earlier exports from the output directory. A missing
// directory is not an error.
func (b *Backend) Init() error {
	if b.cfg.OutputDir == "" {
		return nil
	}
	entries, err := os.ReadDir(b.cfg.OutputDir)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read output directory: %w", err)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !(strings.HasSuffix(name, ".json") || strings.HasSuffix(name, ".json.gz")) {
			continue
		}
		rec, err := loadExport(filepath.Join(b.cfg.OutputDir, name))
		if err != nil {
			return fmt.Errorf("failed to load %s: %w", name, err)
		}
		b.sessions[rec.Session.ID] = rec
		for _, s := range rec.Snapshots {
			b.idCounter = max(b.idCounter, s.ID)
		}
	}
	return nil
}

// Close cleans up resources
func (b *Backend) Close() error {
	return nil
}

// StartSession begins recording a new session
func (b *Backend) StartSession(s *core.Session) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.current = &SessionRecord{Session: *s}
	b.sessions[s.ID] = b.current
	return nil
}

// EndSession finalizes and exports the session data
func (b *Backend) EndSession(s *core.Session) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.current == nil || b.current.Session.ID != s.ID {
		return fmt.Errorf("session %s is not recording", s.ID)
	}
	b.current.Session = *s
	err := b.exportJSON(b.current)
	b.current = nil
	return err
}

// SaveSnapshot appends a snapshot to the current session and assigns its ID.
func (b *Backend) SaveSnapshot(s *core.Snapshot) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.current == nil {
		return fmt.Errorf("no session started")
	}
	b.idCounter++
	s.ID = b.idCounter
	s.SessionID = b.current.Session.ID
	b.current.Snapshots = append(b.current.Snapshots, cloneSnapshot(*s))
	return nil
}

// RecordBrakeEvent appends an event to the current session.
func (b *Backend) RecordBrakeEvent(e *core.BrakeEvent) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.current == nil {
		return fmt.Errorf("no session started")
	}
	e.SessionID = b.current.Session.ID
	b.current.Events = append(b.current.Events, *e)
	return nil
}

// ExportedFilePath returns the file written by the last EndSession.
func (b *Backend) ExportedFilePath() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.lastExportPath
}

// Sessions lists every known session, newest first.
func (b *Backend) Sessions() ([]core.Session, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]core.Session, 0, len(b.sessions))
	for _, rec := range b.sessions {
		out = append(out, rec.Session)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].StartedAt.After(out[j].StartedAt)
	})
	return out, nil
}

// Session returns one session header.
func (b *Backend) Session(id string) (core.Session, error) {
	rec, err := b.record(id)
	if err != nil {
		return core.Session{}, err
	}
	return rec.Session, nil
}

// LatestSnapshot returns the snapshot with the highest simulation time.
func (b *Backend) LatestSnapshot(sessionID string) (core.Snapshot, error) {
	rec, err := b.record(sessionID)
	if err != nil {
		return core.Snapshot{}, err
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	if len(rec.Snapshots) == 0 {
		return core.Snapshot{}, fmt.Errorf("session %s has no snapshots: %w", sessionID, storage.ErrNotFound)
	}
	latest := rec.Snapshots[0]
	for _, s := range rec.Snapshots[1:] {
		if s.SimTime >= latest.SimTime {
			latest = s
		}
	}
	return cloneSnapshot(latest), nil
}

// Snapshots returns every snapshot of a session.
func (b *Backend) Snapshots(sessionID string) ([]core.Snapshot, error) {
	rec, err := b.record(sessionID)
	if err != nil {
		return nil, err
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]core.Snapshot, len(rec.Snapshots))
	for i, s := range rec.Snapshots {
		out[i] = cloneSnapshot(s)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].SimTime < out[j].SimTime })
	return out, nil
}

// BrakeEvents returns every event of a session.
func (b *Backend) BrakeEvents(sessionID string) ([]core.BrakeEvent, error) {
	rec, err := b.record(sessionID)
	if err != nil {
		return nil, err
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := append([]core.BrakeEvent(nil), rec.Events...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].SimTime < out[j].SimTime })
	return out, nil
}

func (b *Backend) record(id string) (*SessionRecord, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	rec, ok := b.sessions[id]
	if !ok {
		return nil, fmt.Errorf("session %s: %w", id, storage.ErrNotFound)
	}
	return rec, nil
}

func cloneSnapshot(s core.Snapshot) core.Snapshot {
	cars := make([]core.CarSnapshot, len(s.Cars))
	for i, c := range s.Cars {
		c.Fields = append([]core.Field(nil), c.Fields...)
		cars[i] = c
	}
	s.Cars = cars
	return s
}
