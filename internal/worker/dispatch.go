package worker

import (
	"github.com/OCAP2/brakesim/internal/brake"
	"github.com/OCAP2/brakesim/internal/dispatcher"
	"github.com/OCAP2/brakesim/pkg/core"
	"github.com/OCAP2/brakesim/pkg/streaming"
)

// Buffer sizes of the asynchronous sinks.
const (
	TelemetryBuffer = 10000
	StreamBuffer    = 1000
)

// RegisterHandlers registers all event handlers with the dispatcher.
func (m *Manager) RegisterHandlers(d *dispatcher.Dispatcher) {
	if m.deps.Backend != nil {
		// Storage - sync, so a session's rows are complete when it ends
		d.Register(dispatcher.TopicSessionStart, "storage", m.handleSessionStartStorage, dispatcher.Logged())
		d.Register(dispatcher.TopicSessionEnd, "storage", m.handleSessionEndStorage, dispatcher.Logged())
		d.Register(dispatcher.TopicBrakeEvent, "storage", m.handleBrakeEventStorage)
		d.Register(dispatcher.TopicSnapshot, "storage", m.handleSnapshot, dispatcher.Logged())
	}

	if m.deps.Telemetry != nil {
		// Telemetry - buffered
		d.Register(dispatcher.TopicBrakeEvent, "telemetry", m.handleBrakeEventTelemetry, dispatcher.Buffered(TelemetryBuffer))
		d.Register(dispatcher.TopicCarStatus, "telemetry", m.handleCarStatusTelemetry, dispatcher.Buffered(TelemetryBuffer))
	}

	if m.deps.Stream != nil {
		// Live stream - buffered, drops when clients fall behind
		d.Register(dispatcher.TopicSessionStart, "stream", m.handleSessionStream(streaming.TypeStartSession), dispatcher.Buffered(StreamBuffer))
		d.Register(dispatcher.TopicSessionEnd, "stream", m.handleSessionStream(streaming.TypeEndSession), dispatcher.Buffered(StreamBuffer))
		d.Register(dispatcher.TopicBrakeEvent, "stream", m.handleBrakeEventStream, dispatcher.Buffered(StreamBuffer))
		d.Register(dispatcher.TopicCarStatus, "stream", m.handleCarStatusStream, dispatcher.Buffered(StreamBuffer))
	}
}

func (m *Manager) handleSessionStartStorage(e dispatcher.Event) error {
	s, ok := e.Payload.(*core.Session)
	if !ok {
		return payloadError(e.Topic, e.Payload)
	}
	return m.deps.Backend.StartSession(s)
}

func (m *Manager) handleSessionEndStorage(e dispatcher.Event) error {
	s, ok := e.Payload.(*core.Session)
	if !ok {
		return payloadError(e.Topic, e.Payload)
	}
	if err := m.deps.Backend.EndSession(s); err != nil {
		return err
	}
	if ex, ok := m.deps.Backend.(interface{ ExportedFilePath() string }); ok && ex.ExportedFilePath() != "" {
		m.deps.LogManager.Logger().Info("Session exported", "path", ex.ExportedFilePath())
	}
	return nil
}

func (m *Manager) handleBrakeEventStorage(e dispatcher.Event) error {
	ev, ok := e.Payload.(core.BrakeEvent)
	if !ok {
		return payloadError(e.Topic, e.Payload)
	}
	return m.deps.Backend.RecordBrakeEvent(&ev)
}

func (m *Manager) handleSnapshot(e dispatcher.Event) error {
	s, ok := e.Payload.(*core.Snapshot)
	if !ok {
		return payloadError(e.Topic, e.Payload)
	}
	return m.deps.Backend.SaveSnapshot(s)
}

func (m *Manager) handleBrakeEventTelemetry(e dispatcher.Event) error {
	ev, ok := e.Payload.(core.BrakeEvent)
	if !ok {
		return payloadError(e.Topic, e.Payload)
	}
	return m.deps.Telemetry.WriteEvent(ev, e.Timestamp)
}

func (m *Manager) handleCarStatusTelemetry(e dispatcher.Event) error {
	cars, ok := e.Payload.([]brake.Status)
	if !ok {
		return payloadError(e.Topic, e.Payload)
	}
	return m.deps.Telemetry.WriteStatus(m.deps.SessionContext.ID(), e.SimTime, cars, e.Timestamp)
}

func (m *Manager) handleSessionStream(typ string) dispatcher.HandlerFunc {
	return func(e dispatcher.Event) error {
		s, ok := e.Payload.(*core.Session)
		if !ok {
			return payloadError(e.Topic, e.Payload)
		}
		return m.deps.Stream.PublishSession(typ, *s)
	}
}

func (m *Manager) handleBrakeEventStream(e dispatcher.Event) error {
	ev, ok := e.Payload.(core.BrakeEvent)
	if !ok {
		return payloadError(e.Topic, e.Payload)
	}
	return m.deps.Stream.PublishEvent(ev)
}

func (m *Manager) handleCarStatusStream(e dispatcher.Event) error {
	cars, ok := e.Payload.([]brake.Status)
	if !ok {
		return payloadError(e.Topic, e.Payload)
	}
	return m.deps.Stream.PublishStatus(e.SimTime, cars)
}
