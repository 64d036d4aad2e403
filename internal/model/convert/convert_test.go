package convert

import (
	"testing"
	"time"

	"github.com/OCAP2/brakesim/internal/model"
	"github.com/OCAP2/brakesim/pkg/core"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
)

func sampleSnapshot() core.Snapshot {
	return core.Snapshot{
		ID:        7,
		SessionID: "3f1c",
		SimTime:   12.5,
		TakenAt:   time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC),
		Controls:  core.Controls{EqualizingPressure: 70, EngineBrake: 10, EPLive: true},
		Cars: []core.CarSnapshot{
			{
				Index: 0, CarID: "L1", Kind: "air_single_pipe", Valve: "Release",
				BrakePipe: 70, Cylinder: 0, ForceN: 0,
				Fields: []core.Field{{Name: "brakePipe", Type: 0, Value: 70}, {Name: "holding", Type: 1, Value: 1}},
			},
			{
				Index: 1, CarID: "W1", Kind: "air_single_pipe", Valve: "Apply",
				BrakePipe: 64.5, Cylinder: 15.2, ForceN: 12000,
				Fields: []core.Field{{Name: "brakePipe", Type: 0, Value: 64.5}},
			},
		},
	}
}

func TestFieldsToJSON_Empty(t *testing.T) {
	assert.Equal(t, datatypes.JSON("[]"), fieldsToJSON(nil))
}

// Round-trip: Core → GORM → Core
func TestSnapshotRoundTrip(t *testing.T) {
	original := sampleSnapshot()

	gormSnap := CoreToSnapshot(original)
	require.Len(t, gormSnap.Cars, 2)
	assert.Equal(t, uint(7), gormSnap.Cars[1].SnapshotID)
	assert.Equal(t, "W1", gormSnap.Cars[1].CarID)
	assert.Equal(t, 10.0, gormSnap.Controls.EngineBrake)

	back, err := SnapshotToCore(gormSnap)
	require.NoError(t, err)
	if diff := cmp.Diff(original, back); diff != "" {
		t.Errorf("snapshot round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestCarSnapshotToCore_BadFields(t *testing.T) {
	_, err := CarSnapshotToCore(model.CarSnapshot{CarID: "W3", Fields: datatypes.JSON("{not json")})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "W3")
}

func TestCarSnapshotToCore_NoFields(t *testing.T) {
	c, err := CarSnapshotToCore(model.CarSnapshot{CarID: "W3"})
	require.NoError(t, err)
	assert.Nil(t, c.Fields)
}

func TestSessionRoundTrip(t *testing.T) {
	s := core.Session{
		ID:          "a9d2",
		Consist:     "freight",
		StartedAt:   time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC),
		TickSeconds: 0.1,
		Lead:        0,
		CarCount:    12,
		Family:      "air",
	}
	assert.Equal(t, s, SessionToCore(CoreToSession(s)))
}

func TestBrakeEventRoundTrip(t *testing.T) {
	e := core.BrakeEvent{SessionID: "a9d2", CarID: "W4", Kind: "TrainBrakePressureIncrease", Pressure: 18.2, SimTime: 4.5}
	m := CoreToBrakeEvent(e)
	assert.True(t, m.Time.IsZero())
	assert.Equal(t, e, BrakeEventToCore(m))
}
