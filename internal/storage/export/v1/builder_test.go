package v1

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/OCAP2/brakesim/pkg/core"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleData() *SessionData {
	start := time.Date(2024, 5, 2, 8, 30, 0, 0, time.UTC)
	return &SessionData{
		Session: core.Session{
			ID:          "5b0e",
			Consist:     "mixed freight",
			StartedAt:   start,
			EndedAt:     start.Add(2 * time.Minute),
			TickSeconds: 0.1,
			Lead:        0,
			CarCount:    2,
			Family:      "air",
		},
		Snapshots: []core.Snapshot{{
			ID:        1,
			SessionID: "5b0e",
			SimTime:   10,
			TakenAt:   start.Add(10 * time.Second),
			Controls:  core.Controls{EqualizingPressure: 64, Brakeman: 0.5},
			Cars: []core.CarSnapshot{
				{Index: 0, CarID: "L1", Kind: "air_single_pipe", Valve: "Lap", BrakePipe: 64, Cylinder: 12.5, ForceN: 8000,
					Fields: []core.Field{{Name: "brakePipe", Type: 0, Value: 64}, {Name: "emergencyFired", Type: 1, Value: 0}}},
				{Index: 1, CarID: "W1", Kind: "air_single_pipe", Valve: "Apply", BrakePipe: 64.4, Cylinder: 11.9, ForceN: 7600,
					Fields: []core.Field{{Name: "brakePipe", Type: 0, Value: 64.4}, {Name: "retainer", Type: 2, Value: 3}}},
			},
		}},
		Events: []core.BrakeEvent{
			{SessionID: "5b0e", CarID: "W1", Kind: "BrakePipePressureDecrease", Pressure: 68.1, SimTime: 1.5},
		},
	}
}

func TestBuild(t *testing.T) {
	export := Build(sampleData())

	assert.Equal(t, FormatVersion, export.Version)
	assert.Equal(t, "2024-05-02T08:30:00Z", export.Session.StartedAt)
	require.Len(t, export.Snapshots, 1)
	require.Len(t, export.Snapshots[0].Cars, 2)
	assert.Equal(t, []any{"retainer", uint8(2), 3.0}, export.Snapshots[0].Cars[1].Fields[1])
	require.Len(t, export.Events, 1)
	assert.Equal(t, Event{1.5, "W1", "BrakePipePressureDecrease", 68.1}, export.Events[0])
}

func TestBuild_OpenSessionHasNoEnd(t *testing.T) {
	data := sampleData()
	data.Session.EndedAt = time.Time{}
	assert.Empty(t, Build(data).Session.EndedAt)
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	for _, compress := range []bool{false, true} {
		var buf bytes.Buffer
		require.NoError(t, Encode(&buf, Build(sampleData()), compress))
		if compress {
			assert.Equal(t, byte(0x1f), buf.Bytes()[0])
		} else {
			assert.Equal(t, byte('{'), buf.Bytes()[0])
		}

		decoded, err := Decode(&buf)
		require.NoError(t, err)
		back, err := ToCore(decoded)
		require.NoError(t, err)
		if diff := cmp.Diff(sampleData(), back); diff != "" {
			t.Errorf("compress=%v round trip mismatch (-want +got):\n%s", compress, diff)
		}
	}
}

func TestDecode_WrongVersion(t *testing.T) {
	_, err := Decode(strings.NewReader(`{"version": 9}`))
	assert.ErrorIs(t, err, ErrVersion)
}

func TestDecode_Garbage(t *testing.T) {
	_, err := Decode(strings.NewReader("not json"))
	assert.Error(t, err)
}

func TestToCore_MalformedEvent(t *testing.T) {
	export := Build(sampleData())
	export.Events[0] = Event{"late", "W1", "x", 1.0}
	_, err := ToCore(export)
	assert.ErrorContains(t, err, "event 0")
}

func TestToCore_MalformedField(t *testing.T) {
	export := Build(sampleData())
	export.Snapshots[0].Cars[0].Fields[0] = []any{"brakePipe", 0.0}
	_, err := ToCore(export)
	assert.ErrorContains(t, err, "car L1 field 0")
}

func TestToCore_UnknownValveState(t *testing.T) {
	export := Build(sampleData())
	export.Snapshots[0].Cars[1].Valve = "Overcharged"
	_, err := ToCore(export)
	assert.ErrorContains(t, err, "car W1")
	assert.ErrorContains(t, err, `unknown valve state "Overcharged"`)
}
