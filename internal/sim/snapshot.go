package sim

import (
	"fmt"
	"time"

	"github.com/OCAP2/brakesim/internal/brake"
	"github.com/OCAP2/brakesim/internal/train"
	"github.com/OCAP2/brakesim/pkg/core"
)

// ToSnapshot converts a consist save into the storage form. status must
// come from the same tick as rec.
func ToSnapshot(sessionID string, rec train.Record, status []brake.Status, takenAt time.Time) core.Snapshot {
	s := core.Snapshot{
		SessionID: sessionID,
		SimTime:   rec.SimTime,
		TakenAt:   takenAt,
		Controls:  core.Controls(rec.Controls),
		Cars:      make([]core.CarSnapshot, len(rec.Cars)),
	}
	for i, car := range rec.Cars {
		cs := core.CarSnapshot{
			Index:  i,
			CarID:  car.ID,
			Kind:   car.Record.Kind.String(),
			Fields: make([]core.Field, len(car.Record.Fields)),
		}
		if i < len(status) {
			cs.Valve = status[i].Valve
			cs.BrakePipe = status[i].BrakePipe
			cs.Cylinder = status[i].Cylinder
			cs.ForceN = status[i].Force
		}
		for j, f := range car.Record.Fields {
			cs.Fields[j] = core.Field{Name: f.Name, Type: uint8(f.Type), Value: f.Value}
		}
		s.Cars[i] = cs
	}
	return s
}

// ToRecord converts a stored snapshot back into a consist save.
func ToRecord(s core.Snapshot) (train.Record, error) {
	rec := train.Record{
		SimTime:  s.SimTime,
		Controls: train.Controls(s.Controls),
		Cars:     make([]train.CarRecord, len(s.Cars)),
	}
	for i, car := range s.Cars {
		kind, err := brake.ParseKind(car.Kind)
		if err != nil {
			return train.Record{}, fmt.Errorf("car %q: %w", car.CarID, err)
		}
		r := brake.Record{Kind: kind, Fields: make([]brake.Field, len(car.Fields))}
		for j, f := range car.Fields {
			r.Fields[j] = brake.Field{Name: f.Name, Type: brake.FieldType(f.Type), Value: f.Value}
		}
		rec.Cars[i] = train.CarRecord{ID: car.CarID, Record: r}
	}
	return rec, nil
}
