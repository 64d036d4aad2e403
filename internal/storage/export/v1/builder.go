package v1

import (
	"bufio"
	"compress/gzip"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/OCAP2/brakesim/internal/valve"
	"github.com/OCAP2/brakesim/pkg/core"
)

// ErrVersion is returned when decoding an export of another format version.
var ErrVersion = errors.New("unsupported export version")

// SessionData contains all the data needed to build an export
type SessionData struct {
	Session   core.Session
	Snapshots []core.Snapshot
	Events    []core.BrakeEvent
}

// Build creates an Export from the session data
func Build(data *SessionData) Export {
	s := data.Session
	export := Export{
		Version: FormatVersion,
		Session: Session{
			ID:          s.ID,
			Consist:     s.Consist,
			StartedAt:   formatTime(s.StartedAt),
			EndedAt:     formatTime(s.EndedAt),
			TickSeconds: s.TickSeconds,
			Lead:        s.Lead,
			CarCount:    s.CarCount,
			Family:      s.Family,
		},
		Snapshots: make([]Snapshot, 0, len(data.Snapshots)),
		Events:    make([]Event, 0, len(data.Events)),
	}

	for _, snap := range data.Snapshots {
		out := Snapshot{
			ID:       snap.ID,
			SimTime:  snap.SimTime,
			TakenAt:  formatTime(snap.TakenAt),
			Controls: Controls(snap.Controls),
			Cars:     make([]Car, 0, len(snap.Cars)),
		}
		for _, c := range snap.Cars {
			fields := make([][]any, 0, len(c.Fields))
			for _, f := range c.Fields {
				fields = append(fields, []any{f.Name, f.Type, f.Value})
			}
			out.Cars = append(out.Cars, Car{
				Index:     c.Index,
				ID:        c.CarID,
				Kind:      c.Kind,
				Valve:     c.Valve,
				BrakePipe: c.BrakePipe,
				Cylinder:  c.Cylinder,
				ForceN:    c.ForceN,
				Fields:    fields,
			})
		}
		export.Snapshots = append(export.Snapshots, out)
	}

	for _, e := range data.Events {
		export.Events = append(export.Events, Event{e.SimTime, e.CarID, e.Kind, e.Pressure})
	}

	return export
}

// ToCore converts a decoded export back into core records.
func ToCore(export Export) (*SessionData, error) {
	started, err := parseTime(export.Session.StartedAt)
	if err != nil {
		return nil, fmt.Errorf("session start: %w", err)
	}
	ended, err := parseTime(export.Session.EndedAt)
	if err != nil {
		return nil, fmt.Errorf("session end: %w", err)
	}
	data := &SessionData{
		Session: core.Session{
			ID:          export.Session.ID,
			Consist:     export.Session.Consist,
			StartedAt:   started,
			EndedAt:     ended,
			TickSeconds: export.Session.TickSeconds,
			Lead:        export.Session.Lead,
			CarCount:    export.Session.CarCount,
			Family:      export.Session.Family,
		},
	}

	for i, snap := range export.Snapshots {
		taken, err := parseTime(snap.TakenAt)
		if err != nil {
			return nil, fmt.Errorf("snapshot %d: %w", i, err)
		}
		out := core.Snapshot{
			ID:        snap.ID,
			SessionID: data.Session.ID,
			SimTime:   snap.SimTime,
			TakenAt:   taken,
			Controls:  core.Controls(snap.Controls),
			Cars:      make([]core.CarSnapshot, 0, len(snap.Cars)),
		}
		for _, c := range snap.Cars {
			if _, err := valve.ParseState(c.Valve); err != nil {
				return nil, fmt.Errorf("snapshot %d car %s: %w", i, c.ID, err)
			}
			fields := make([]core.Field, 0, len(c.Fields))
			for j, raw := range c.Fields {
				f, err := decodeField(raw)
				if err != nil {
					return nil, fmt.Errorf("snapshot %d car %s field %d: %w", i, c.ID, j, err)
				}
				fields = append(fields, f)
			}
			out.Cars = append(out.Cars, core.CarSnapshot{
				Index:     c.Index,
				CarID:     c.ID,
				Kind:      c.Kind,
				Valve:     c.Valve,
				BrakePipe: c.BrakePipe,
				Cylinder:  c.Cylinder,
				ForceN:    c.ForceN,
				Fields:    fields,
			})
		}
		data.Snapshots = append(data.Snapshots, out)
	}

	for i, e := range export.Events {
		simTime, ok1 := number(e[0])
		carID, ok2 := e[1].(string)
		kind, ok3 := e[2].(string)
		p, ok4 := number(e[3])
		if !ok1 || !ok2 || !ok3 || !ok4 {
			return nil, fmt.Errorf("event %d: malformed entry %v", i, e)
		}
		data.Events = append(data.Events, core.BrakeEvent{
			SessionID: data.Session.ID,
			CarID:     carID,
			Kind:      kind,
			Pressure:  p,
			SimTime:   simTime,
		})
	}

	return data, nil
}

// Encode writes export as JSON, gzipped when compress is set.
func Encode(w io.Writer, export Export, compress bool) error {
	if !compress {
		return json.NewEncoder(w).Encode(export)
	}
	gzWriter := gzip.NewWriter(w)
	if err := json.NewEncoder(gzWriter).Encode(export); err != nil {
		gzWriter.Close()
		return err
	}
	return gzWriter.Close()
}

// Decode reads an export written by Encode, compressed or not.
func Decode(r io.Reader) (Export, error) {
	var export Export
	br := bufio.NewReader(r)
	magic, _ := br.Peek(2)
	var src io.Reader = br
	if len(magic) == 2 && magic[0] == 0x1f && magic[1] == 0x8b {
		gz, err := gzip.NewReader(br)
		if err != nil {
			return export, fmt.Errorf("opening gzip stream: %w", err)
		}
		defer gz.Close()
		src = gz
	}
	if err := json.NewDecoder(src).Decode(&export); err != nil {
		return export, fmt.Errorf("decoding export: %w", err)
	}
	if export.Version != FormatVersion {
		return export, fmt.Errorf("%w: %d", ErrVersion, export.Version)
	}
	return export, nil
}

func decodeField(raw []any) (core.Field, error) {
	if len(raw) != 3 {
		return core.Field{}, fmt.Errorf("want 3 elements, got %d", len(raw))
	}
	name, ok1 := raw[0].(string)
	typ, ok2 := number(raw[1])
	value, ok3 := number(raw[2])
	if !ok1 || !ok2 || !ok3 {
		return core.Field{}, fmt.Errorf("malformed field %v", raw)
	}
	return core.Field{Name: name, Type: uint8(typ), Value: value}, nil
}

// number accepts both decoded JSON numbers and the typed values Build
// produces.
func number(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case uint8:
		return float64(n), true
	case int:
		return float64(n), true
	}
	return 0, false
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339Nano, s)
}
