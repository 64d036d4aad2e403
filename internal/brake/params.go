package brake

import (
	"fmt"
	"math"

	"github.com/OCAP2/brakesim/internal/pressure"
	"github.com/OCAP2/brakesim/internal/valve"
)

// Params is the per-car configuration record. It is validated once by
// Validate and then treated as read-only. Air pressures are gauge psi,
// vacuum pressures absolute psi, rates per second and volumes m³.
type Params struct {
	Kind      Kind
	ValveType valve.Type

	BrakePipeVolumeM3       float64
	CylinderVolumeM3        float64
	AuxCylVolumeRatio       float64
	AuxBrakeLineVolumeRatio float64
	// EmergResVolumeM3 of zero means no emergency reservoir is fitted.
	EmergResVolumeM3    float64
	EmergAuxVolumeRatio float64
	// MainResVolumeM3 of zero means the car is not a locomotive.
	MainResVolumeM3 float64

	MaxCylPressure    float64
	ReferencePressure float64

	MaxApplicationRate     float64
	MaxReleaseRate         float64
	MaxAuxChargingRate     float64
	EmergResChargingRate   float64
	BrakeInsensitivityRate float64

	EmergencyValveActuationRate float64
	EmergencyDumpValveRate      float64
	EmergencyDumpValveTimer     float64

	TripleValveSensitivity      float64
	InitialApplicationThreshold float64

	RetainerPositions int

	MaxBrakeForceN     float64
	MaxHandbrakeForceN float64

	WheelSlideProtection bool
	WheelSlideLockout    float64

	EngineBrakeApplyRate   float64
	EngineBrakeReleaseRate float64

	MaxMainResPressure        float64
	MaxMainResPipePressure    float64
	CompressorRestartPressure float64
	CompressorChargingRate    float64

	// Read from the lead unit by propagation.
	BrakePipeTimeFactor      float64
	BrakeServiceTimeFactor   float64
	BrakeEmergencyTimeFactor float64
	BrakePipeChargingRate    float64
	TrainPipeLeakRate        float64
	AngleCockOpeningTime     float64

	// Vacuum.
	VacuumMaxForcePressure float64
	VacResVolumeM3         float64
	DirectAdmissionValve   bool
	VacuumChargingRate     float64

	// Manual braking, as fractions of full force per second.
	ManualApplyRate   float64
	ManualReleaseRate float64
}

// Default values. Rates and time factors are tunable defaults.
const (
	DefaultBrakePipeVolumeM3       = 0.012
	DefaultAuxCylVolumeRatio       = 2.5
	DefaultAuxBrakeLineVolumeRatio = 3.1
	DefaultEmergAuxVolumeRatio     = 1.4
	DefaultMaxCylPressure          = 50
	DefaultMaxApplicationRate      = 0.9
	DefaultMaxReleaseRate          = 1.86
	DefaultMaxAuxChargingRate      = 1.684
	DefaultBrakeInsensitivityRate  = 0.07
	DefaultEmergencyActuationRate  = 15
	DefaultEmergencyDumpValveTimer = 120
	DefaultWheelSlideLockout       = 7
	DefaultEngineBrakeRate         = 12
	DefaultMaxMainResPressure      = 140
	DefaultCompressorRestart       = 130
	DefaultCompressorChargingRate  = 0.4
	DefaultBrakePipeTimeFactor     = 0.0015
	DefaultBrakeServiceTimeFactor  = 1.009
	DefaultBrakeEmergencyFactor    = 0.1
	DefaultBrakePipeChargingRate   = 21
	DefaultAngleCockOpeningTime    = 30
	DefaultVacuumChargingRateInHg  = 10
	DefaultVacuumRate              = 2.5
	DefaultVacuumPipeDiameterM     = 0.050
	DefaultCarLengthM              = 15
	DefaultManualApplyRate         = 0.2
	DefaultManualReleaseRate       = 0.5

	// DisabledGradientRate is the charging rate at or above which the
	// whole pipe is set to the target instantly.
	DisabledGradientRate = 1000
)

// DefaultVacuumMaxForcePressure is 21 inHg of vacuum.
var DefaultVacuumMaxForcePressure = pressure.FromInHg(21)

// DefaultVacResVolumeM3 is a 24 in × 16 in vacuum reservoir.
var DefaultVacResVolumeM3 = pressure.In3ToM3(math.Pi * 12 * 12 * 16)

// DefaultVacuumCylinderVolumeM3 is two 18 in cylinders with a 4.5 in stroke.
var DefaultVacuumCylinderVolumeM3 = 2 * pressure.In3ToM3(math.Pi*9*9*4.5)

// DefaultParams returns the documented defaults for kind.
func DefaultParams(kind Kind) Params {
	p := Params{
		Kind:                        kind,
		ValveType:                   valve.TripleValve,
		BrakePipeVolumeM3:           DefaultBrakePipeVolumeM3,
		AuxCylVolumeRatio:           DefaultAuxCylVolumeRatio,
		AuxBrakeLineVolumeRatio:     DefaultAuxBrakeLineVolumeRatio,
		EmergAuxVolumeRatio:         DefaultEmergAuxVolumeRatio,
		MaxCylPressure:              DefaultMaxCylPressure,
		MaxApplicationRate:          DefaultMaxApplicationRate,
		MaxReleaseRate:              DefaultMaxReleaseRate,
		MaxAuxChargingRate:          DefaultMaxAuxChargingRate,
		EmergResChargingRate:        DefaultMaxAuxChargingRate,
		BrakeInsensitivityRate:      DefaultBrakeInsensitivityRate,
		EmergencyDumpValveTimer:     DefaultEmergencyDumpValveTimer,
		WheelSlideLockout:           DefaultWheelSlideLockout,
		EngineBrakeApplyRate:        DefaultEngineBrakeRate,
		EngineBrakeReleaseRate:      DefaultEngineBrakeRate,
		MaxMainResPressure:          DefaultMaxMainResPressure,
		MaxMainResPipePressure:      DefaultMaxMainResPressure,
		CompressorRestartPressure:   DefaultCompressorRestart,
		CompressorChargingRate:      DefaultCompressorChargingRate,
		BrakePipeTimeFactor:         DefaultBrakePipeTimeFactor,
		BrakeServiceTimeFactor:      DefaultBrakeServiceTimeFactor,
		BrakeEmergencyTimeFactor:    DefaultBrakeEmergencyFactor,
		BrakePipeChargingRate:       DefaultBrakePipeChargingRate,
		AngleCockOpeningTime:        DefaultAngleCockOpeningTime,
		VacuumMaxForcePressure:      DefaultVacuumMaxForcePressure,
		VacResVolumeM3:              DefaultVacResVolumeM3,
		VacuumChargingRate:          pressure.FromInHg(DefaultVacuumChargingRateInHg),
		ManualApplyRate:             DefaultManualApplyRate,
		ManualReleaseRate:           DefaultManualReleaseRate,
		MaxBrakeForceN:              20000,
		TripleValveSensitivity:      valve.DefaultTripleValve.Sensitivity,
		InitialApplicationThreshold: valve.DefaultTripleValve.InitialApplication,
	}
	switch kind.Family() {
	case FamilyVacuum:
		p.BrakePipeVolumeM3 = pressure.PipeVolumeM3(DefaultVacuumPipeDiameterM, DefaultCarLengthM)
		p.CylinderVolumeM3 = DefaultVacuumCylinderVolumeM3
		p.MaxApplicationRate = DefaultVacuumRate
		p.MaxReleaseRate = DefaultVacuumRate
		p.MaxCylPressure = pressure.OneAtmospherePSI
	default:
		p.CylinderVolumeM3 = p.BrakePipeVolumeM3 * p.AuxBrakeLineVolumeRatio / p.AuxCylVolumeRatio
	}
	p.ReferencePressure = p.MaxCylPressure
	return p
}

// UseDistributor switches the valve to a distributor with its stock bands.
func (p *Params) UseDistributor() {
	p.ValveType = valve.Distributor
	p.TripleValveSensitivity = valve.DefaultDistributor.Sensitivity
	p.InitialApplicationThreshold = valve.DefaultDistributor.InitialApplication
}

// HasEmergencyReservoir reports whether an emergency reservoir is fitted.
func (p Params) HasEmergencyReservoir() bool { return p.EmergResVolumeM3 > 0 }

// IsLocomotive reports whether the car has its own main reservoir.
func (p Params) IsLocomotive() bool { return p.MainResVolumeM3 > 0 }

// Validate rejects physically impossible records. A car is only built from
// a record that passed.
func (p Params) Validate() error {
	if p.Kind < AirSinglePipe || p.Kind > VacuumPiped {
		return fmt.Errorf("brake kind %d out of range", p.Kind)
	}
	positive := []struct {
		name string
		v    float64
	}{
		{"brakePipeVolume", p.BrakePipeVolumeM3},
		{"auxCylVolumeRatio", p.AuxCylVolumeRatio},
		{"auxBrakeLineVolumeRatio", p.AuxBrakeLineVolumeRatio},
		{"emergAuxVolumeRatio", p.EmergAuxVolumeRatio},
		{"brakePipeTimeFactor", p.BrakePipeTimeFactor},
		{"brakeServiceTimeFactor", p.BrakeServiceTimeFactor},
		{"brakeEmergencyTimeFactor", p.BrakeEmergencyTimeFactor},
		{"maxCylinderPressure", p.MaxCylPressure},
		{"referencePressure", p.ReferencePressure},
	}
	for _, f := range positive {
		if !(f.v > 0) || math.IsInf(f.v, 0) {
			return fmt.Errorf("%s must be positive, got %v", f.name, f.v)
		}
	}
	if p.Kind.Family() == FamilyVacuum {
		if !(p.VacuumMaxForcePressure > 0) {
			return fmt.Errorf("vacuumMaxForcePressure must be positive, got %v", p.VacuumMaxForcePressure)
		}
		if p.Kind == VacuumSinglePipe && !(p.VacResVolumeM3 > 0) {
			return fmt.Errorf("vacuumReservoirVolume must be positive, got %v", p.VacResVolumeM3)
		}
	}
	nonNegative := []struct {
		name string
		v    float64
	}{
		{"cylinderVolume", p.CylinderVolumeM3},
		{"emergencyReservoirVolume", p.EmergResVolumeM3},
		{"mainReservoirVolume", p.MainResVolumeM3},
		{"maxApplicationRate", p.MaxApplicationRate},
		{"maxReleaseRate", p.MaxReleaseRate},
		{"maxAuxChargingRate", p.MaxAuxChargingRate},
		{"emergencyValveActuationRate", p.EmergencyValveActuationRate},
		{"emergencyDumpValveRate", p.EmergencyDumpValveRate},
		{"maxBrakeForce", p.MaxBrakeForceN},
		{"maxHandbrakeForce", p.MaxHandbrakeForceN},
		{"brakePipeChargingRate", p.BrakePipeChargingRate},
		{"trainPipeLeakRate", p.TrainPipeLeakRate},
		{"angleCockOpeningTime", p.AngleCockOpeningTime},
	}
	for _, f := range nonNegative {
		if f.v < 0 || math.IsNaN(f.v) {
			return fmt.Errorf("%s must not be negative, got %v", f.name, f.v)
		}
	}
	if p.RetainerPositions < 0 {
		return fmt.Errorf("retainerPositions must not be negative, got %d", p.RetainerPositions)
	}
	return nil
}

func (p Params) airThresholds() valve.AirThresholds {
	return valve.AirThresholds{
		EmergencyRate:      p.EmergencyValveActuationRate,
		Sensitivity:        p.TripleValveSensitivity,
		InitialApplication: p.InitialApplicationThreshold,
		AuxCylRatio:        p.AuxCylVolumeRatio,
	}
}

func (p Params) emergBrakeLineVolumeRatio() float64 {
	return p.EmergAuxVolumeRatio * p.AuxBrakeLineVolumeRatio
}
