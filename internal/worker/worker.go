// Package worker connects the run loop's dispatcher topics to the sinks:
// storage, telemetry and the live stream.
package worker

import (
	"fmt"
	"time"

	"github.com/OCAP2/brakesim/internal/brake"
	"github.com/OCAP2/brakesim/internal/logging"
	"github.com/OCAP2/brakesim/internal/session"
	"github.com/OCAP2/brakesim/internal/storage"
	"github.com/OCAP2/brakesim/pkg/core"
)

// Telemetry receives car samples and events, e.g. the InfluxDB manager.
type Telemetry interface {
	WriteStatus(sessionID string, simTime float64, cars []brake.Status, ts time.Time) error
	WriteEvent(e core.BrakeEvent, ts time.Time) error
}

// Stream publishes to live clients.
type Stream interface {
	PublishEvent(e core.BrakeEvent) error
	PublishStatus(simTime float64, cars []brake.Status) error
	PublishSession(typ string, s core.Session) error
}

// Dependencies holds all dependencies for the worker manager. Every sink
// is optional.
type Dependencies struct {
	LogManager     *logging.SlogManager
	SessionContext *session.Context
	Backend        storage.Backend
	Telemetry      Telemetry
	Stream         Stream
}

// Manager owns the handlers registered on the dispatcher.
type Manager struct {
	deps Dependencies
}

// NewManager creates a new worker manager
func NewManager(deps Dependencies) *Manager {
	if deps.LogManager == nil {
		deps.LogManager = logging.NewSlogManager()
	}
	if deps.SessionContext == nil {
		deps.SessionContext = session.NewContext()
	}
	return &Manager{deps: deps}
}

// WriteDurationProvider is an optional interface that backends can
// implement to expose their last batch write duration for monitoring.
type WriteDurationProvider interface {
	LastWriteDuration() time.Duration
}

// GetLastDBWriteDuration returns the duration of the last batch write.
// Returns 0 if the backend doesn't support this metric.
func (m *Manager) GetLastDBWriteDuration() time.Duration {
	if p, ok := m.deps.Backend.(WriteDurationProvider); ok {
		return p.LastWriteDuration()
	}
	return 0
}

func payloadError(topic string, payload any) error {
	return fmt.Errorf("%s: unexpected payload %T", topic, payload)
}
