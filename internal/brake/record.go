package brake

import (
	"errors"
	"fmt"

	"github.com/OCAP2/brakesim/internal/overlay"
	"github.com/OCAP2/brakesim/internal/pressure"
)

var (
	ErrRecordShort = errors.New("brake record too short")
	ErrRecordType  = errors.New("brake record does not match")
)

// FieldType tags the primitive stored in a Field.
type FieldType int

const (
	FieldFloat FieldType = iota
	FieldBool
	FieldInt
)

// Field is one primitive of a saved car. Bools are stored as 0/1 and ints
// exactly.
type Field struct {
	Name  string    `json:"name"`
	Type  FieldType `json:"type"`
	Value float64   `json:"value"`
}

// Record is the flat, ordered save of one car. The field list is fixed
// per kind.
type Record struct {
	Kind   Kind    `json:"kind"`
	Fields []Field `json:"fields"`
}

func (k Kind) MarshalText() ([]byte, error) { return []byte(k.String()), nil }

func (k *Kind) UnmarshalText(b []byte) error {
	v, err := ParseKind(string(b))
	if err != nil {
		return err
	}
	*k = v
	return nil
}

// binder walks a schema either writing fields to a record or reading them
// back in the same order.
type binder struct {
	rec  *Record
	pos  int
	load bool
	err  error
}

func (b *binder) next(name string, typ FieldType) *Field {
	if b.err != nil {
		return nil
	}
	if !b.load {
		b.rec.Fields = append(b.rec.Fields, Field{Name: name, Type: typ})
		return &b.rec.Fields[len(b.rec.Fields)-1]
	}
	if b.pos >= len(b.rec.Fields) {
		b.err = fmt.Errorf("%w: missing %s", ErrRecordShort, name)
		return nil
	}
	f := &b.rec.Fields[b.pos]
	b.pos++
	if f.Name != name || f.Type != typ {
		b.err = fmt.Errorf("%w: field %d is %s, want %s", ErrRecordType, b.pos-1, f.Name, name)
		return nil
	}
	return f
}

func (b *binder) Float(name string, v *float64) {
	f := b.next(name, FieldFloat)
	if f == nil {
		return
	}
	if b.load {
		*v = f.Value
	} else {
		f.Value = *v
	}
}

func (b *binder) Bool(name string, v *bool) {
	f := b.next(name, FieldBool)
	if f == nil {
		return
	}
	if b.load {
		*v = f.Value != 0
	} else if *v {
		f.Value = 1
	}
}

// Optional stores an absent cell as 0 and ignores the value on load.
func (b *binder) Optional(name string, v *pressure.Optional) {
	x := v.Or(0)
	b.Float(name, &x)
	if b.load && b.err == nil {
		v.Set(x)
	}
}

func bindEnum[T ~int](b *binder, name string, v *T) {
	f := b.next(name, FieldInt)
	if f == nil {
		return
	}
	if b.load {
		*v = T(f.Value)
	} else {
		f.Value = float64(*v)
	}
}

func commonSchema(st *State, b *binder) {
	b.Float("brakePipe", &st.BrakePipe)
	b.Float("cylinder", &st.Cylinder)
	b.Float("handbrakePercent", &st.HandbrakePercent)
	b.Bool("frontHoseConnected", &st.FrontHoseConnected)
	b.Bool("angleCockA", &st.AngleCockA)
	b.Bool("angleCockB", &st.AngleCockB)
	b.Float("angleCockAAmount", &st.AngleCockAAmount)
	b.Float("angleCockBAmount", &st.AngleCockBAmount)
	b.Bool("bleedOff", &st.BleedOff)
	b.Float("cylinderVolume", &st.CylinderVolumeM3)
	b.Float("maxPressure", &st.MaxPressure)
	b.Float("fullServicePressure", &st.FullServicePressure)
}

// Save writes the car's state as a flat record.
func (s *System) Save() Record {
	rec := Record{Kind: s.params.Kind}
	st := s.st
	s.strat.schema(&st, &binder{rec: &rec})
	return rec
}

// Restore replaces the car's state with rec. Nothing changes unless the
// whole record matches this car's schema.
func (s *System) Restore(rec Record) error {
	if rec.Kind != s.params.Kind {
		return fmt.Errorf("%w: record is %s, car %s is %s", ErrRecordType, rec.Kind, s.id, s.params.Kind)
	}
	st := s.freshState()
	b := &binder{rec: &rec, load: true}
	s.strat.schema(&st, b)
	if b.err != nil {
		return fmt.Errorf("car %s: %w", s.id, b.err)
	}
	if b.pos != len(rec.Fields) {
		return fmt.Errorf("car %s: %w: %d trailing fields", s.id, ErrRecordType, len(rec.Fields)-b.pos)
	}
	s.st = st
	s.SetRetainer(st.Retainer)
	s.rate.Reset()
	s.force = overlay.Handbrake(s.strat.force(s), s.params.MaxHandbrakeForceN, st.HandbrakePercent)
	s.primeMonitors()
	return nil
}
