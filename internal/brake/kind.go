package brake

import (
	"fmt"
	"strings"
)

// Kind is the physical brake architecture fitted to a car.
type Kind int

const (
	AirSinglePipe Kind = iota
	AirTwinPipe
	ElectroPneumatic
	SelfLappingEP
	VacuumSinglePipe
	StraightVacuum
	Manual
	AirPiped
	VacuumPiped
)

var kindNames = [...]string{
	AirSinglePipe:    "air_single_pipe",
	AirTwinPipe:      "air_twin_pipe",
	ElectroPneumatic: "ep",
	SelfLappingEP:    "sme",
	VacuumSinglePipe: "vacuum_single_pipe",
	StraightVacuum:   "straight_vacuum_single_pipe",
	Manual:           "manual_braking",
	AirPiped:         "air_piped",
	VacuumPiped:      "vacuum_piped",
}

func (k Kind) String() string {
	if k >= 0 && int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// ParseKind accepts the configuration names produced by String, ignoring
// case and surrounding whitespace.
func ParseKind(s string) (Kind, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for k, name := range kindNames {
		if name == s {
			return Kind(k), nil
		}
	}
	switch s {
	case "air", "air_single":
		return AirSinglePipe, nil
	case "air_twin", "air_twin_pipe_ep":
		return AirTwinPipe, nil
	case "vacuum", "vacuum_single":
		return VacuumSinglePipe, nil
	case "manual":
		return Manual, nil
	}
	return 0, fmt.Errorf("unknown brake system %q", s)
}

// Family groups kinds by the medium in their brake pipe.
type Family int

const (
	FamilyNone Family = iota
	FamilyAir
	FamilyVacuum
)

func (f Family) String() string {
	switch f {
	case FamilyAir:
		return "air"
	case FamilyVacuum:
		return "vacuum"
	default:
		return "none"
	}
}

// Family reports the pipe medium of the kind.
func (k Kind) Family() Family {
	switch k {
	case AirSinglePipe, AirTwinPipe, ElectroPneumatic, SelfLappingEP, AirPiped:
		return FamilyAir
	case VacuumSinglePipe, StraightVacuum, VacuumPiped:
		return FamilyVacuum
	default:
		return FamilyNone
	}
}

// TwoPipes reports whether the kind carries a main reservoir pipe.
func (k Kind) TwoPipes() bool {
	switch k {
	case AirTwinPipe, ElectroPneumatic, SelfLappingEP:
		return true
	}
	return false
}
