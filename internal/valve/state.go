// Package valve decides, once per tick, whether a car's brake valve
// charges, holds or vents its brake cylinder.
package valve

import "fmt"

// State is the position of a car's brake valve.
type State int

const (
	Release State = iota
	Apply
	Lap
	Emergency
)

func (s State) String() string {
	switch s {
	case Release:
		return "Release"
	case Apply:
		return "Apply"
	case Lap:
		return "Lap"
	case Emergency:
		return "Emergency"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// ParseState accepts the names produced by String.
func ParseState(s string) (State, error) {
	for st := Release; st <= Emergency; st++ {
		if st.String() == s {
			return st, nil
		}
	}
	return Release, fmt.Errorf("unknown valve state %q", s)
}

// Type selects the pneumatic valve fitted to an air braked car.
type Type int

const (
	// TripleValve is a plain triple valve: direct release only.
	TripleValve Type = iota
	// Distributor is a self-lapping distributor with a control reservoir
	// and graduated release.
	Distributor
)

func (t Type) String() string {
	switch t {
	case TripleValve:
		return "TripleValve"
	case Distributor:
		return "Distributor"
	default:
		return fmt.Sprintf("Type(%d)", int(t))
	}
}

// ParseType maps configuration names onto a valve type. Unknown names fall
// back to TripleValve and report false.
func ParseType(s string) (Type, bool) {
	switch s {
	case "TripleValve", "triple_valve", "triplevalve", "":
		return TripleValve, s != ""
	case "Distributor", "distributor", "Distributing_Valve", "DistributingValve", "distributing_valve":
		return Distributor, true
	}
	return TripleValve, false
}
