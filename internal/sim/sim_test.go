package sim

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/OCAP2/brakesim/internal/brake"
	"github.com/OCAP2/brakesim/internal/cache"
	"github.com/OCAP2/brakesim/internal/config"
	"github.com/OCAP2/brakesim/internal/dispatcher"
	"github.com/OCAP2/brakesim/internal/logging"
	"github.com/OCAP2/brakesim/internal/overlay"
	"github.com/OCAP2/brakesim/internal/parser"
	"github.com/OCAP2/brakesim/pkg/core"
)

func testConsist() config.ConsistConfig {
	return config.ConsistConfig{
		Name: "test train",
		Lead: 0,
		Templates: map[string]map[string]any{
			"loco":  {"brakesystemtype": "air_single_pipe", "mainreservoirvolume": 0.5},
			"wagon": {"brakesystemtype": "air_single_pipe", "maxhandbrakeforce": 10000, "retainerpositions": 3},
		},
		Cars: []config.CarConfig{
			{ID: "L1", Template: "loco"},
			{ID: "W", Template: "wagon", Count: 3},
		},
	}
}

func testSim() config.SimConfig {
	return config.SimConfig{
		TickSeconds:      0.1,
		DurationSeconds:  5,
		ImmediateRelease: true,
		SnapshotEvery:    time.Second,
		TelemetryEvery:   time.Second,
		StatusEvery:      2 * time.Second,
	}
}

// recorder collects everything dispatched, in order.
type recorder struct {
	mu     sync.Mutex
	events []dispatcher.Event
}

func (r *recorder) handle(e dispatcher.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

func (r *recorder) topic(topic string) []dispatcher.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []dispatcher.Event
	for _, e := range r.events {
		if e.Topic == topic {
			out = append(out, e)
		}
	}
	return out
}

func newRunner(t *testing.T, sim config.SimConfig, cc config.ConsistConfig) (*Runner, *recorder) {
	t.Helper()
	d, err := dispatcher.New(logging.NewDispatcherLogger(zerolog.Nop()), nil)
	require.NoError(t, err)
	t.Cleanup(d.Close)

	rec := &recorder{}
	for _, topic := range []string{
		dispatcher.TopicSessionStart,
		dispatcher.TopicSessionEnd,
		dispatcher.TopicBrakeEvent,
		dispatcher.TopicCarStatus,
		dispatcher.TopicSnapshot,
	} {
		d.Register(topic, "recorder", rec.handle)
	}

	r, err := New(Dependencies{Dispatcher: d}, sim, cc)
	require.NoError(t, err)
	return r, rec
}

func TestBuildCarsExpandsCounts(t *testing.T) {
	params := cache.NewParamCache()
	cars, err := BuildCars(testConsist(), parser.NewParser(nil), params)
	require.NoError(t, err)

	var ids []string
	for _, c := range cars {
		ids = append(ids, c.ID())
	}
	assert.Equal(t, []string{"L1", "W-1", "W-2", "W-3"}, ids)
	assert.True(t, cars[0].IsLocomotive())
	assert.False(t, cars[1].IsLocomotive())
	assert.Equal(t, 2, params.Parses())
}

func TestBuildCarsOverridesAndGeneratedIDs(t *testing.T) {
	cc := testConsist()
	cc.Cars = []config.CarConfig{
		{Template: "wagon", Params: map[string]any{"brakesystemtype": "vacuum_single_pipe"}},
		{Template: "wagon"},
	}
	params := cache.NewParamCache()
	cars, err := BuildCars(cc, parser.NewParser(nil), params)
	require.NoError(t, err)
	require.Len(t, cars, 2)

	assert.Equal(t, brake.VacuumSinglePipe, cars[0].Kind())
	assert.Equal(t, brake.AirSinglePipe, cars[1].Kind())
	assert.Equal(t, 1, params.Parses(), "only the car without overrides goes through the cache")

	assert.Len(t, cars[0].ID(), 8)
	assert.NotEqual(t, cars[0].ID(), cars[1].ID())
	again, err := BuildCars(cc, parser.NewParser(nil), cache.NewParamCache())
	require.NoError(t, err)
	assert.Equal(t, cars[0].ID(), again[0].ID())
}

func TestBuildCarsRejectsUnknownKind(t *testing.T) {
	cc := testConsist()
	cc.Cars = []config.CarConfig{{ID: "x", Params: map[string]any{"brakesystemtype": "hydraulic"}}}
	_, err := BuildCars(cc, parser.NewParser(nil), cache.NewParamCache())
	assert.ErrorIs(t, err, parser.ErrInvalidParam)
}

func TestScheduleValidation(t *testing.T) {
	tests := []struct {
		name  string
		entry config.ScheduleEntry
	}{
		{"unknown action", config.ScheduleEntry{Action: "horn"}},
		{"unknown car", config.ScheduleEntry{Action: ActionHandbrake, Car: "nope"}},
		{"bad retainer", config.ScheduleEntry{Action: ActionRetainer, Setting: "XX"}},
		{"bad cock", config.ScheduleEntry{Action: ActionAngleCock, Setting: "middle"}},
		{"negative time", config.ScheduleEntry{At: -1, Action: ActionSetPipe}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cc := testConsist()
			cc.Schedule = []config.ScheduleEntry{tt.entry}
			_, err := New(Dependencies{Dispatcher: &dispatcher.Dispatcher{}}, testSim(), cc)
			assert.Error(t, err)
		})
	}
}

func TestScheduleOrderedStable(t *testing.T) {
	r, _ := newRunner(t, testSim(), testConsist())
	steps, err := compileSchedule([]config.ScheduleEntry{
		{At: 3, Action: ActionSetPipe, Value: 80},
		{At: 1, Action: ActionSetPipe, Value: 70},
		{At: 3, Action: ActionSetPipe, Value: 75},
	}, r.Consist())
	require.NoError(t, err)

	var got []float64
	for _, s := range steps {
		got = append(got, s.raw.Value)
	}
	assert.Equal(t, []float64{70, 80, 75}, got)
}

func TestScheduleCarActions(t *testing.T) {
	cc := testConsist()
	cc.Schedule = []config.ScheduleEntry{
		{At: 0, Action: ActionHandbrake, Car: "W-2", Value: 100},
		{At: 0, Action: ActionRetainer, Setting: "hp"},
		{At: 0, Action: ActionHose, Car: "W-3", On: false},
		{At: 0, Action: ActionEngineBrake, Value: 20},
		{At: 0, Action: ActionBrakeman, Value: 2},
	}
	sim := testSim()
	sim.DurationSeconds = 0.1
	r, _ := newRunner(t, sim, cc)
	require.NoError(t, r.Run(context.Background()))

	c := r.Consist()
	assert.Equal(t, 100.0, c.Car(2).State().HandbrakePercent)
	assert.Zero(t, c.Car(1).State().HandbrakePercent)
	assert.Equal(t, overlay.RetainerHighPressure, c.Car(1).State().Retainer)
	assert.False(t, c.Car(3).Coupling().HoseConnected)
	assert.Equal(t, 20.0, c.Controls().EngineBrake)
	assert.Equal(t, 1.0, c.Controls().Brakeman)
}

func TestRunPublishes(t *testing.T) {
	cc := testConsist()
	cc.Schedule = []config.ScheduleEntry{{At: 1, Action: ActionAIPercent, Value: 100}}
	var reports int
	sim := testSim()

	d, err := dispatcher.New(logging.NewDispatcherLogger(zerolog.Nop()), nil)
	require.NoError(t, err)
	t.Cleanup(d.Close)
	rec := &recorder{}
	for _, topic := range []string{dispatcher.TopicSessionStart, dispatcher.TopicSessionEnd, dispatcher.TopicBrakeEvent, dispatcher.TopicCarStatus, dispatcher.TopicSnapshot} {
		d.Register(topic, "recorder", rec.handle)
	}
	r, err := New(Dependencies{Dispatcher: d, Status: func() { reports++ }}, sim, cc)
	require.NoError(t, err)

	require.NoError(t, r.Run(context.Background()))

	assert.Equal(t, uint64(50), r.Ticks())
	assert.InDelta(t, 5, r.SimTime(), 1e-6)
	assert.Zero(t, r.PendingEvents())
	assert.Equal(t, 64.0, r.Consist().Controls().EqualizingPressure)

	require.NotEmpty(t, rec.events)
	assert.Equal(t, dispatcher.TopicSessionStart, rec.events[0].Topic)
	assert.Equal(t, dispatcher.TopicSessionEnd, rec.events[len(rec.events)-1].Topic)

	start := rec.events[0].Payload.(*core.Session)
	assert.Equal(t, "test train", start.Consist)
	assert.Equal(t, 4, start.CarCount)
	assert.Equal(t, "air", start.Family)
	end := rec.events[len(rec.events)-1].Payload.(*core.Session)
	assert.False(t, end.EndedAt.IsZero())

	events := rec.topic(dispatcher.TopicBrakeEvent)
	require.NotEmpty(t, events)
	for _, e := range events {
		ev := e.Payload.(core.BrakeEvent)
		assert.Equal(t, start.ID, ev.SessionID)
		assert.Greater(t, ev.SimTime, 0.0)
	}

	snaps := rec.topic(dispatcher.TopicSnapshot)
	assert.GreaterOrEqual(t, len(snaps), 5)
	first := snaps[0].Payload.(*core.Snapshot)
	assert.Zero(t, first.SimTime)
	assert.Len(t, first.Cars, 4)
	last := snaps[len(snaps)-1].Payload.(*core.Snapshot)
	assert.InDelta(t, 5, last.SimTime, 1e-6)

	samples := rec.topic(dispatcher.TopicCarStatus)
	assert.GreaterOrEqual(t, len(samples), 5)
	assert.Len(t, samples[0].Payload.([]brake.Status), 4)
	assert.GreaterOrEqual(t, reports, 3)
}

func TestRunCancelled(t *testing.T) {
	r, rec := newRunner(t, testSim(), testConsist())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := r.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, r.Ticks())
	require.NotEmpty(t, rec.topic(dispatcher.TopicSessionEnd))
	assert.Len(t, rec.topic(dispatcher.TopicSnapshot), 1)
}

func TestRestoreContinuesFromSnapshot(t *testing.T) {
	cc := testConsist()
	cc.Schedule = []config.ScheduleEntry{
		{At: 0.5, Action: ActionSetPipe, Value: 75},
		{At: 4, Action: ActionSetPipe, Value: 90},
	}
	sim := testSim()
	sim.DurationSeconds = 3

	src, rec := newRunner(t, sim, cc)
	require.NoError(t, src.Run(context.Background()))
	snaps := rec.topic(dispatcher.TopicSnapshot)
	snap := *snaps[len(snaps)-1].Payload.(*core.Snapshot)

	dst, _ := newRunner(t, sim, cc)
	require.NoError(t, dst.Restore(snap))
	assert.InDelta(t, 3, dst.SimTime(), 1e-6)
	if diff := cmp.Diff(src.Consist().Save(), dst.Consist().Save()); diff != "" {
		t.Errorf("restored consist differs (-src +dst):\n%s", diff)
	}

	// only the entry after the snapshot is still pending
	assert.Equal(t, 1, dst.next)
	require.NoError(t, dst.Run(context.Background()))
	assert.InDelta(t, 6, dst.SimTime(), 1e-6)
	assert.Equal(t, 90.0, dst.Consist().Controls().EqualizingPressure)
}

func TestRestoreMismatch(t *testing.T) {
	sim := testSim()
	sim.DurationSeconds = 1
	src, rec := newRunner(t, sim, testConsist())
	require.NoError(t, src.Run(context.Background()))
	snap := *rec.topic(dispatcher.TopicSnapshot)[0].Payload.(*core.Snapshot)

	other := testConsist()
	other.Templates["wagon"] = map[string]any{"brakesystemtype": "vacuum_single_pipe"}
	dst, _ := newRunner(t, sim, other)
	dst.Initialize()
	before := dst.Consist().Save()

	require.Error(t, dst.Restore(snap))
	if diff := cmp.Diff(before, dst.Consist().Save()); diff != "" {
		t.Errorf("failed restore changed state:\n%s", diff)
	}

	snap.Cars[0].Kind = "steam"
	assert.Error(t, dst.Restore(snap))
}

func TestSnapshotRecordRoundTrip(t *testing.T) {
	r, _ := newRunner(t, testSim(), testConsist())
	r.Initialize()
	c := r.Consist()
	c.SetEqualizingPressure(70)
	for i := 0; i < 20; i++ {
		c.Tick(0.1)
	}
	want := c.Save()

	snap := ToSnapshot("s1", want, c.Status(), time.Now())
	assert.Equal(t, "s1", snap.SessionID)
	assert.Equal(t, "W-1", snap.Cars[1].CarID)
	assert.Equal(t, 1, snap.Cars[1].Index)
	assert.Equal(t, c.Car(1).CylinderPressure(), snap.Cars[1].Cylinder)
	assert.Equal(t, 70.0, snap.Controls.EqualizingPressure)

	got, err := ToRecord(snap)
	require.NoError(t, err)
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("round trip differs (-want +got):\n%s", diff)
	}
}

func TestStartPressures(t *testing.T) {
	maxP, fullP := startPressures(config.SimConfig{}, brake.FamilyAir)
	assert.Equal(t, 90.0, maxP)
	assert.Equal(t, 64.0, fullP)

	maxP, fullP = startPressures(config.SimConfig{}, brake.FamilyVacuum)
	assert.Equal(t, 21.0, maxP)
	assert.Equal(t, 10.0, fullP)

	maxP, fullP = startPressures(config.SimConfig{MaxPressure: 72.5, FullServicePressure: 80}, brake.FamilyAir)
	assert.Equal(t, 72.5, maxP)
	assert.Equal(t, 72.5, fullP)
}

func TestDue(t *testing.T) {
	next := 0.0
	assert.True(t, due(&next, time.Second, 0, false))
	assert.Equal(t, 1.0, next)
	assert.False(t, due(&next, time.Second, 0.5, false))
	assert.True(t, due(&next, time.Second, 0.5, true))
	assert.Equal(t, 1.0, next)
	assert.True(t, due(&next, time.Second, 3.2, false))
	assert.Equal(t, 4.0, next)
	assert.False(t, due(&next, 0, 10, true))
}
