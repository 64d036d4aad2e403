package convert

import (
	"encoding/json"
	"fmt"

	"github.com/OCAP2/brakesim/internal/model"
	"github.com/OCAP2/brakesim/pkg/core"
)

// SessionToCore converts a GORM Session to a core.Session.
func SessionToCore(s model.Session) core.Session {
	return core.Session{
		ID:          s.ID,
		Consist:     s.Consist,
		StartedAt:   s.StartedAt,
		EndedAt:     s.EndedAt,
		TickSeconds: s.TickSeconds,
		Lead:        s.Lead,
		CarCount:    s.CarCount,
		Family:      s.Family,
	}
}

func controlsToCore(c model.Controls) core.Controls {
	return core.Controls{
		EqualizingPressure: c.EqualizingPressure,
		Emergency:          c.Emergency,
		EngineBrake:        c.EngineBrake,
		EPFraction:         c.EPFraction,
		EPLive:             c.EPLive,
		Brakeman:           c.Brakeman,
		Holding:            c.Holding,
		BailOff:            c.BailOff,
	}
}

// CarSnapshotToCore converts one stored car. A Fields column that is not a
// valid record is an error: restoring from it would silently zero the car.
func CarSnapshotToCore(c model.CarSnapshot) (core.CarSnapshot, error) {
	var fields []core.Field
	if len(c.Fields) > 0 {
		if err := json.Unmarshal(c.Fields, &fields); err != nil {
			return core.CarSnapshot{}, fmt.Errorf("car %s: decoding fields: %w", c.CarID, err)
		}
	}
	return core.CarSnapshot{
		Index:     c.Position,
		CarID:     c.CarID,
		Kind:      c.Kind,
		Valve:     c.Valve,
		BrakePipe: c.BrakePipe,
		Cylinder:  c.Cylinder,
		ForceN:    c.ForceN,
		Fields:    fields,
	}, nil
}

// SnapshotToCore converts a GORM Snapshot with its preloaded cars. Cars
// are returned in the order given; callers preload them ordered by index.
func SnapshotToCore(s model.Snapshot) (core.Snapshot, error) {
	cars := make([]core.CarSnapshot, len(s.Cars))
	for i, c := range s.Cars {
		cs, err := CarSnapshotToCore(c)
		if err != nil {
			return core.Snapshot{}, err
		}
		cars[i] = cs
	}
	return core.Snapshot{
		ID:        s.ID,
		SessionID: s.SessionID,
		SimTime:   s.SimTime,
		TakenAt:   s.TakenAt,
		Controls:  controlsToCore(s.Controls),
		Cars:      cars,
	}, nil
}

// BrakeEventToCore converts a GORM BrakeEvent to a core.BrakeEvent.
func BrakeEventToCore(e model.BrakeEvent) core.BrakeEvent {
	return core.BrakeEvent{
		SessionID: e.SessionID,
		CarID:     e.CarID,
		Kind:      e.Kind,
		Pressure:  e.Pressure,
		SimTime:   e.SimTime,
	}
}
