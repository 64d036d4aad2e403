package valve

// Inputs is the per-tick view of a car that the transition rules read.
// All pressures are in the car's own units (gauge psi for air, absolute
// psi for vacuum).
type Inputs struct {
	State     State
	BrakePipe float64
	Aux       float64
	Control   float64
	Cylinder  float64
	// PipeRate is the smoothed rate of change of the brake pipe in psi/s,
	// positive when rising.
	PipeRate float64
	// Holding forces Lap outside of an emergency.
	Holding bool
	// BailOff suppresses any new application.
	BailOff bool
}

// AirThresholds are the hysteresis bands of the air brake valves.
type AirThresholds struct {
	// EmergencyRate is the pipe drop rate in psi/s that trips Emergency.
	// Zero disables emergency detection.
	EmergencyRate float64
	// Sensitivity is the pipe/reservoir difference needed to move off Lap.
	Sensitivity float64
	// InitialApplication is the first pipe reduction that starts an
	// application from Release.
	InitialApplication float64
	// AuxCylRatio converts a pipe reduction into a cylinder target for
	// distributors.
	AuxCylRatio float64
}

// DefaultTripleValve and DefaultDistributor hold the stock bands.
// Distributor values follow the UIC 0.15 bar sensitivity.
var (
	DefaultTripleValve = AirThresholds{Sensitivity: 1.0, InitialApplication: 1.0, AuxCylRatio: 2.5}
	DefaultDistributor = AirThresholds{Sensitivity: 1.4, InitialApplication: 2.2, AuxCylRatio: 2.5}
)

// releaseBandFactor widens the release band relative to Sensitivity.
const releaseBandFactor = 1.5

func emergencyTripped(in Inputs, th AirThresholds) bool {
	return th.EmergencyRate > 0 && -in.PipeRate > th.EmergencyRate
}

func finish(in Inputs, next State) State {
	if next == Emergency {
		return next
	}
	if in.Holding {
		return Lap
	}
	if in.BailOff && next == Apply {
		return Lap
	}
	return next
}

// EvaluateTripleValve compares the pipe against the auxiliary reservoir.
// A triple valve only releases directly: once the pipe exceeds aux by the
// release band the whole cylinder vents.
func EvaluateTripleValve(in Inputs, th AirThresholds) State {
	if emergencyTripped(in, th) {
		return Emergency
	}
	bp, aux := in.BrakePipe, in.Aux

	releaseBand := releaseBandFactor * th.Sensitivity
	if in.State == Release {
		releaseBand = 0
	}
	if bp > aux+releaseBand {
		return finish(in, Release)
	}
	if in.State == Emergency {
		return Emergency
	}

	applyBand := th.Sensitivity
	if in.State == Apply {
		applyBand = 0
	}
	initialOK := in.State != Release || bp < aux-th.InitialApplication
	if initialOK && bp < aux-applyBand {
		return finish(in, Apply)
	}
	if in.State == Apply {
		return finish(in, Lap)
	}
	return finish(in, in.State)
}

// EvaluateDistributor compares the cylinder against the target implied by
// the control reservoir, giving graduated release.
func EvaluateDistributor(in Inputs, th AirThresholds) State {
	if emergencyTripped(in, th) {
		return Emergency
	}
	if in.State == Emergency && in.BrakePipe <= in.Aux {
		return Emergency
	}

	application := in.Control - in.BrakePipe
	target := application * th.AuxCylRatio
	band := th.Sensitivity * th.AuxCylRatio

	releaseBand := band
	if in.State == Release {
		releaseBand = 0
	}
	if application < th.InitialApplication || target < in.Cylinder-releaseBand {
		return finish(in, Release)
	}

	applyBand := band
	if in.State == Apply {
		applyBand = 0
	}
	if target > in.Cylinder+applyBand {
		return finish(in, Apply)
	}
	return finish(in, Lap)
}

// VacuumThresholds are kept apart from the air bands: vacuum pipe
// differences are an order of magnitude smaller.
type VacuumThresholds struct {
	// EmergencyRate is the pipe rise rate in psi/s that trips Emergency.
	EmergencyRate float64
	Sensitivity   float64
}

// DefaultVacuum is roughly 0.1 inHg.
var DefaultVacuum = VacuumThresholds{Sensitivity: 0.05}

// EvaluateVacuum compares the pipe with the lower chamber of the cylinder.
// A rising pipe (air admitted) applies, a falling pipe releases.
func EvaluateVacuum(in Inputs, th VacuumThresholds) State {
	if th.EmergencyRate > 0 && in.PipeRate > th.EmergencyRate {
		return Emergency
	}
	bp, cyl := in.BrakePipe, in.Cylinder

	releaseBand := th.Sensitivity
	if in.State == Release {
		releaseBand = 0
	}
	if bp < cyl-releaseBand {
		return finish(in, Release)
	}
	if in.State == Emergency {
		return Emergency
	}

	applyBand := th.Sensitivity
	if in.State == Apply {
		applyBand = 0
	}
	if bp > cyl+applyBand {
		return finish(in, Apply)
	}
	if in.State == Release && bp <= cyl {
		return finish(in, Release)
	}
	return finish(in, Lap)
}
