// Package convert provides functions to convert between GORM models and core models
package convert

import (
	"encoding/json"

	"github.com/OCAP2/brakesim/internal/model"
	"github.com/OCAP2/brakesim/pkg/core"
	"gorm.io/datatypes"
)

// fieldsToJSON converts a flat record to datatypes.JSON for DB storage.
func fieldsToJSON(fields []core.Field) datatypes.JSON {
	if len(fields) == 0 {
		return datatypes.JSON("[]")
	}
	data, _ := json.Marshal(fields)
	return datatypes.JSON(data)
}

// CoreToSession converts a core.Session to a GORM model.Session.
func CoreToSession(s core.Session) model.Session {
	return model.Session{
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

func coreToControls(c core.Controls) model.Controls {
	return model.Controls{
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

// CoreToCarSnapshot converts one car of a snapshot.
func CoreToCarSnapshot(c core.CarSnapshot) model.CarSnapshot {
	return model.CarSnapshot{
		Position:  c.Index,
		CarID:     c.CarID,
		Kind:      c.Kind,
		Valve:     c.Valve,
		BrakePipe: c.BrakePipe,
		Cylinder:  c.Cylinder,
		ForceN:    c.ForceN,
		Fields:    fieldsToJSON(c.Fields),
	}
}

// CoreToSnapshot converts a core.Snapshot and its cars. The snapshot ID is
// carried over so an update targets the same row.
func CoreToSnapshot(s core.Snapshot) model.Snapshot {
	cars := make([]model.CarSnapshot, len(s.Cars))
	for i, c := range s.Cars {
		cars[i] = CoreToCarSnapshot(c)
		cars[i].SnapshotID = s.ID
	}
	return model.Snapshot{
		ID:        s.ID,
		SessionID: s.SessionID,
		SimTime:   s.SimTime,
		TakenAt:   s.TakenAt,
		Controls:  coreToControls(s.Controls),
		Cars:      cars,
	}
}

// CoreToBrakeEvent converts a core.BrakeEvent. The wall-clock time is
// supplied by the caller.
func CoreToBrakeEvent(e core.BrakeEvent) model.BrakeEvent {
	return model.BrakeEvent{
		SessionID: e.SessionID,
		CarID:     e.CarID,
		Kind:      e.Kind,
		Pressure:  e.Pressure,
		SimTime:   e.SimTime,
	}
}
