package worker

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/OCAP2/brakesim/internal/brake"
	"github.com/OCAP2/brakesim/internal/dispatcher"
	"github.com/OCAP2/brakesim/internal/logging"
	"github.com/OCAP2/brakesim/internal/session"
	"github.com/OCAP2/brakesim/pkg/core"
	"github.com/OCAP2/brakesim/pkg/streaming"
)

type mockBackend struct {
	mu        sync.Mutex
	started   []string
	ended     []string
	snapshots []*core.Snapshot
	events    []core.BrakeEvent
	endErr    error
}

func (b *mockBackend) Init() error  { return nil }
func (b *mockBackend) Close() error { return nil }

func (b *mockBackend) StartSession(s *core.Session) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.started = append(b.started, s.ID)
	return nil
}

func (b *mockBackend) EndSession(s *core.Session) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.ended = append(b.ended, s.ID)
	return b.endErr
}

func (b *mockBackend) SaveSnapshot(s *core.Snapshot) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	s.ID = uint(len(b.snapshots) + 1)
	b.snapshots = append(b.snapshots, s)
	return nil
}

func (b *mockBackend) RecordBrakeEvent(e *core.BrakeEvent) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, *e)
	return nil
}

type timedBackend struct {
	mockBackend
}

func (b *timedBackend) LastWriteDuration() time.Duration { return 42 * time.Millisecond }

type mockTelemetry struct {
	mu       sync.Mutex
	sessions []string
	samples  int
	events   []core.BrakeEvent
}

func (m *mockTelemetry) WriteStatus(sessionID string, _ float64, cars []brake.Status, _ time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions = append(m.sessions, sessionID)
	m.samples += len(cars)
	return nil
}

func (m *mockTelemetry) WriteEvent(e core.BrakeEvent, _ time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, e)
	return nil
}

type mockStream struct {
	mu       sync.Mutex
	types    []string
	events   int
	statuses int
}

func (m *mockStream) PublishEvent(core.BrakeEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events++
	return nil
}

func (m *mockStream) PublishStatus(float64, []brake.Status) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.statuses++
	return nil
}

func (m *mockStream) PublishSession(typ string, _ core.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.types = append(m.types, typ)
	return nil
}

func newDispatcher(t *testing.T) *dispatcher.Dispatcher {
	t.Helper()
	d, err := dispatcher.New(logging.NewDispatcherLogger(zerolog.Nop()), nil)
	require.NoError(t, err)
	return d
}

func TestRegisterHandlers_NoSinks(t *testing.T) {
	d := newDispatcher(t)
	defer d.Close()

	NewManager(Dependencies{}).RegisterHandlers(d)
	assert.False(t, d.HasHandler(dispatcher.TopicBrakeEvent))
	assert.False(t, d.HasHandler(dispatcher.TopicSnapshot))
}

func TestRegisterHandlers_RoutesToSinks(t *testing.T) {
	d := newDispatcher(t)
	sc := session.NewContext()
	s := sc.Start("freight", 0.1, 0, 2, "air")

	backend := &mockBackend{}
	telemetry := &mockTelemetry{}
	stream := &mockStream{}
	NewManager(Dependencies{
		SessionContext: sc,
		Backend:        backend,
		Telemetry:      telemetry,
		Stream:         stream,
	}).RegisterHandlers(d)

	ev := core.BrakeEvent{SessionID: s.ID, CarID: "W-1", Kind: "BrakePipePressureDecrease", Pressure: 80, SimTime: 1.5}
	cars := []brake.Status{{CarID: "L1"}, {CarID: "W-1"}}
	snap := &core.Snapshot{SessionID: s.ID, SimTime: 2}

	require.NoError(t, d.Dispatch(dispatcher.Event{Topic: dispatcher.TopicSessionStart, Payload: s}))
	require.NoError(t, d.Dispatch(dispatcher.Event{Topic: dispatcher.TopicBrakeEvent, SimTime: 1.5, Payload: ev}))
	require.NoError(t, d.Dispatch(dispatcher.Event{Topic: dispatcher.TopicCarStatus, SimTime: 2, Payload: cars}))
	require.NoError(t, d.Dispatch(dispatcher.Event{Topic: dispatcher.TopicSnapshot, SimTime: 2, Payload: snap}))

	// storage handlers run inline
	assert.Equal(t, []string{s.ID}, backend.started)
	assert.Equal(t, []core.BrakeEvent{ev}, backend.events)
	assert.Equal(t, uint(1), snap.ID)

	sc.End()
	require.NoError(t, d.Dispatch(dispatcher.Event{Topic: dispatcher.TopicSessionEnd, Payload: sc.Get()}))
	assert.Equal(t, []string{s.ID}, backend.ended)

	// Close drains the buffered sinks
	d.Close()
	assert.Equal(t, []core.BrakeEvent{ev}, telemetry.events)
	assert.Equal(t, 2, telemetry.samples)
	assert.Equal(t, []string{s.ID}, telemetry.sessions)
	assert.Equal(t, 1, stream.events)
	assert.Equal(t, 1, stream.statuses)
	assert.ElementsMatch(t, []string{streaming.TypeStartSession, streaming.TypeEndSession}, stream.types)
}

func TestHandlers_RejectWrongPayload(t *testing.T) {
	d := newDispatcher(t)
	defer d.Close()
	NewManager(Dependencies{Backend: &mockBackend{}}).RegisterHandlers(d)

	err := d.Dispatch(dispatcher.Event{Topic: dispatcher.TopicBrakeEvent, Payload: "nope"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unexpected payload string")

	err = d.Dispatch(dispatcher.Event{Topic: dispatcher.TopicSnapshot, Payload: core.Snapshot{}})
	assert.Error(t, err, "snapshots travel by pointer")
}

func TestHandlers_StorageErrorSurfaces(t *testing.T) {
	d := newDispatcher(t)
	defer d.Close()
	boom := errors.New("disk full")
	NewManager(Dependencies{Backend: &mockBackend{endErr: boom}}).RegisterHandlers(d)

	err := d.Dispatch(dispatcher.Event{Topic: dispatcher.TopicSessionEnd, Payload: &core.Session{ID: "x"}})
	assert.ErrorIs(t, err, boom)
}

func TestGetLastDBWriteDuration(t *testing.T) {
	assert.Zero(t, NewManager(Dependencies{Backend: &mockBackend{}}).GetLastDBWriteDuration())
	assert.Zero(t, NewManager(Dependencies{}).GetLastDBWriteDuration())
	assert.Equal(t, 42*time.Millisecond, NewManager(Dependencies{Backend: &timedBackend{}}).GetLastDBWriteDuration())
}
