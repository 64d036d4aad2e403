package parser

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/OCAP2/brakesim/internal/brake"
	"github.com/OCAP2/brakesim/internal/pressure"
	"github.com/OCAP2/brakesim/internal/util"
	"github.com/OCAP2/brakesim/internal/valve"
)

// ErrInvalidParam wraps every rejection of a parameter table. Callers test
// for it with errors.Is.
var ErrInvalidParam = errors.New("invalid brake parameter")

// Table is one car's flat set of named parameters, as decoded from a
// configuration file. Values may be numbers, booleans or strings carrying
// a unit suffix ("5bar", "0.3m3").
type Table map[string]any

// quantity selects how a value is converted. brake.Params stores
// pressures in psi, rates in psi/s, volumes in m³ and forces in N.
type quantity int

const (
	qPressure quantity = iota
	qRate
	qVolume
	qPlain
	qSeconds
	qForce
	qBool
	qInt
)

type field struct {
	key string
	q   quantity
	// set stores a converted value. Floats arrive for every quantity
	// except qBool and qInt.
	set func(p *brake.Params, v float64)
}

func floatField(key string, q quantity, dst func(p *brake.Params) *float64) field {
	return field{key: key, q: q, set: func(p *brake.Params, v float64) { *dst(p) = v }}
}

// fields lists every recognised key except brakeSystemType and valveType,
// which are read first because they pick the defaults.
var fields = []field{
	floatField("brakePipeVolume", qVolume, func(p *brake.Params) *float64 { return &p.BrakePipeVolumeM3 }),
	floatField("cylinderVolume", qVolume, func(p *brake.Params) *float64 { return &p.CylinderVolumeM3 }),
	floatField("auxCylVolumeRatio", qPlain, func(p *brake.Params) *float64 { return &p.AuxCylVolumeRatio }),
	floatField("auxBrakeLineVolumeRatio", qPlain, func(p *brake.Params) *float64 { return &p.AuxBrakeLineVolumeRatio }),
	floatField("emergencyReservoirVolume", qVolume, func(p *brake.Params) *float64 { return &p.EmergResVolumeM3 }),
	floatField("emergAuxVolumeRatio", qPlain, func(p *brake.Params) *float64 { return &p.EmergAuxVolumeRatio }),
	floatField("mainReservoirVolume", qVolume, func(p *brake.Params) *float64 { return &p.MainResVolumeM3 }),
	floatField("maxCylinderPressure", qPressure, func(p *brake.Params) *float64 { return &p.MaxCylPressure }),
	floatField("referencePressure", qPressure, func(p *brake.Params) *float64 { return &p.ReferencePressure }),
	floatField("maxApplicationRate", qRate, func(p *brake.Params) *float64 { return &p.MaxApplicationRate }),
	floatField("maxReleaseRate", qRate, func(p *brake.Params) *float64 { return &p.MaxReleaseRate }),
	floatField("maxAuxChargingRate", qRate, func(p *brake.Params) *float64 { return &p.MaxAuxChargingRate }),
	floatField("emergencyResChargingRate", qRate, func(p *brake.Params) *float64 { return &p.EmergResChargingRate }),
	floatField("brakeInsensitivityRate", qRate, func(p *brake.Params) *float64 { return &p.BrakeInsensitivityRate }),
	floatField("emergencyValveActuationRate", qRate, func(p *brake.Params) *float64 { return &p.EmergencyValveActuationRate }),
	floatField("emergencyDumpValveRate", qRate, func(p *brake.Params) *float64 { return &p.EmergencyDumpValveRate }),
	floatField("emergencyDumpValveTimer", qSeconds, func(p *brake.Params) *float64 { return &p.EmergencyDumpValveTimer }),
	floatField("tripleValveSensitivity", qPressure, func(p *brake.Params) *float64 { return &p.TripleValveSensitivity }),
	floatField("initialApplicationThreshold", qPressure, func(p *brake.Params) *float64 { return &p.InitialApplicationThreshold }),
	{key: "retainerPositions", q: qInt, set: func(p *brake.Params, v float64) { p.RetainerPositions = int(v) }},
	floatField("maxBrakeForce", qForce, func(p *brake.Params) *float64 { return &p.MaxBrakeForceN }),
	floatField("maxHandbrakeForce", qForce, func(p *brake.Params) *float64 { return &p.MaxHandbrakeForceN }),
	{key: "wheelSlideProtection", q: qBool, set: func(p *brake.Params, v float64) { p.WheelSlideProtection = v != 0 }},
	floatField("wheelSlideLockout", qSeconds, func(p *brake.Params) *float64 { return &p.WheelSlideLockout }),
	floatField("engineBrakeApplyRate", qRate, func(p *brake.Params) *float64 { return &p.EngineBrakeApplyRate }),
	floatField("engineBrakeReleaseRate", qRate, func(p *brake.Params) *float64 { return &p.EngineBrakeReleaseRate }),
	floatField("maxMainResPressure", qPressure, func(p *brake.Params) *float64 { return &p.MaxMainResPressure }),
	floatField("maxMainResPipePressure", qPressure, func(p *brake.Params) *float64 { return &p.MaxMainResPipePressure }),
	floatField("compressorRestartPressure", qPressure, func(p *brake.Params) *float64 { return &p.CompressorRestartPressure }),
	floatField("compressorChargingRate", qRate, func(p *brake.Params) *float64 { return &p.CompressorChargingRate }),
	floatField("brakePipeTimeFactor", qPlain, func(p *brake.Params) *float64 { return &p.BrakePipeTimeFactor }),
	floatField("brakeServiceTimeFactor", qPlain, func(p *brake.Params) *float64 { return &p.BrakeServiceTimeFactor }),
	floatField("brakeEmergencyTimeFactor", qPlain, func(p *brake.Params) *float64 { return &p.BrakeEmergencyTimeFactor }),
	floatField("brakePipeChargingRate", qRate, func(p *brake.Params) *float64 { return &p.BrakePipeChargingRate }),
	floatField("trainPipeLeakRate", qRate, func(p *brake.Params) *float64 { return &p.TrainPipeLeakRate }),
	floatField("angleCockOpeningTime", qSeconds, func(p *brake.Params) *float64 { return &p.AngleCockOpeningTime }),
	floatField("vacuumMaxForcePressure", qPressure, func(p *brake.Params) *float64 { return &p.VacuumMaxForcePressure }),
	floatField("vacuumReservoirVolume", qVolume, func(p *brake.Params) *float64 { return &p.VacResVolumeM3 }),
	{key: "directAdmissionValve", q: qBool, set: func(p *brake.Params, v float64) { p.DirectAdmissionValve = v != 0 }},
	floatField("vacuumChargingRate", qRate, func(p *brake.Params) *float64 { return &p.VacuumChargingRate }),
	floatField("manualApplyRate", qPlain, func(p *brake.Params) *float64 { return &p.ManualApplyRate }),
	floatField("manualReleaseRate", qPlain, func(p *brake.Params) *float64 { return &p.ManualReleaseRate }),
}

const (
	keyBrakeSystem = "brakesystemtype"
	keyValveType   = "valvetype"
)

var fieldsByKey = func() map[string]field {
	m := make(map[string]field, len(fields))
	for _, f := range fields {
		m[util.NormalizeKey(f.key)] = f
	}
	return m
}()

// Parser turns parameter tables into validated brake records. Anomalies
// that have a documented default are logged and replaced.
type Parser struct {
	logger *slog.Logger
}

// NewParser creates a new parser with only a logger dependency
func NewParser(logger *slog.Logger) *Parser {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Parser{logger: logger}
}

// ParseCarParams builds brake.Params from table. Missing keys take the
// documented defaults for the car's brake system; malformed values are
// logged as warnings and also take the default. An unknown brake system
// or a physically impossible value is rejected with ErrInvalidParam.
func (p *Parser) ParseCarParams(name string, table Table) (brake.Params, error) {
	norm := make(map[string]any, len(table))
	for k, v := range table {
		norm[util.NormalizeKey(k)] = v
	}

	kind := brake.AirSinglePipe
	if raw, ok := norm[keyBrakeSystem]; ok {
		k, err := brake.ParseKind(util.TrimQuotes(fmt.Sprint(raw)))
		if err != nil {
			return brake.Params{}, fmt.Errorf("%w: %s: %w", ErrInvalidParam, name, err)
		}
		kind = k
	}
	params := brake.DefaultParams(kind)

	if raw, ok := norm[keyValveType]; ok {
		vt, known := valve.ParseType(util.TrimQuotes(fmt.Sprint(raw)))
		if !known {
			p.logger.Warn("Unknown valve type, using triple valve", "car", name, "value", raw)
		}
		if vt == valve.Distributor {
			params.UseDistributor()
		}
	}

	keys := make([]string, 0, len(norm))
	for k := range norm {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	seen := make(map[string]bool, len(keys))
	for _, k := range keys {
		if k == keyBrakeSystem || k == keyValveType {
			continue
		}
		f, ok := fieldsByKey[k]
		if !ok {
			p.logger.Debug("Ignoring unknown brake parameter", "car", name, "key", k)
			continue
		}
		v, err := convert(norm[k], f.q)
		if err != nil {
			p.logger.Warn("Malformed brake parameter, using default",
				"car", name, "key", f.key, "value", norm[k], "error", err)
			continue
		}
		f.set(&params, v)
		seen[k] = true
	}

	// Derived defaults follow whatever the table did set.
	if !seen["cylindervolume"] && kind.Family() != brake.FamilyVacuum && params.AuxCylVolumeRatio > 0 {
		params.CylinderVolumeM3 = params.BrakePipeVolumeM3 * params.AuxBrakeLineVolumeRatio / params.AuxCylVolumeRatio
	}
	if !seen["referencepressure"] {
		params.ReferencePressure = params.MaxCylPressure
	}
	if !seen["maxmainrespipepressure"] && seen["maxmainrespressure"] {
		params.MaxMainResPipePressure = params.MaxMainResPressure
	}
	if !seen["emergencyvalveactuationrate"] && params.HasEmergencyReservoir() {
		params.EmergencyValveActuationRate = brake.DefaultEmergencyActuationRate
	}

	if err := params.Validate(); err != nil {
		return brake.Params{}, fmt.Errorf("%w: %s: %w", ErrInvalidParam, name, err)
	}
	return params, nil
}

func convert(raw any, q quantity) (float64, error) {
	switch v := raw.(type) {
	case bool:
		if q != qBool {
			return 0, fmt.Errorf("expected a number, got %v", v)
		}
		if v {
			return 1, nil
		}
		return 0, nil
	case float64:
		return checkNumber(v, q)
	case float32:
		return checkNumber(float64(v), q)
	case int:
		return checkNumber(float64(v), q)
	case int64:
		return checkNumber(float64(v), q)
	case string:
		return convertString(v, q)
	case nil:
		return 0, errors.New("empty value")
	}
	return 0, fmt.Errorf("unsupported value type %T", raw)
}

func checkNumber(v float64, q quantity) (float64, error) {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("not a finite number: %v", v)
	}
	switch q {
	case qBool:
		return boolFloat(v != 0), nil
	case qInt:
		if v != math.Trunc(v) {
			return 0, fmt.Errorf("%v is not a whole number", v)
		}
	}
	return v, nil
}

func convertString(s string, q quantity) (float64, error) {
	s = strings.TrimSpace(util.TrimQuotes(s))
	if q == qBool {
		switch strings.ToLower(s) {
		case "yes", "on":
			return 1, nil
		case "no", "off":
			return 0, nil
		}
		b, err := strconv.ParseBool(s)
		if err != nil {
			if f, ferr := strconv.ParseFloat(s, 64); ferr == nil {
				return boolFloat(f != 0), nil
			}
			return 0, err
		}
		return boolFloat(b), nil
	}

	number, unit := util.SplitUnit(s)
	v, err := strconv.ParseFloat(number, 64)
	if err != nil {
		return 0, fmt.Errorf("parsing %q: %w", s, err)
	}
	v, err = scale(v, unit, q)
	if err != nil {
		return 0, err
	}
	return checkNumber(v, q)
}

func scale(v float64, unit string, q quantity) (float64, error) {
	if unit == "" {
		return v, nil
	}
	switch q {
	case qPressure:
		switch unit {
		case "psi":
			return v, nil
		case "bar":
			return pressure.FromBar(v), nil
		case "kpa":
			return pressure.FromKPa(v), nil
		case "inhg":
			return pressure.FromInHg(v), nil
		}
	case qRate:
		switch strings.TrimSuffix(unit, "/s") {
		case "psi":
			return v, nil
		case "bar":
			return pressure.FromBar(v), nil
		case "kpa":
			return pressure.FromKPa(v), nil
		case "inhg":
			return pressure.FromInHg(v), nil
		}
	case qVolume:
		switch unit {
		case "m3", "m^3":
			return v, nil
		case "ft3", "ft^3":
			return pressure.Ft3ToM3(v), nil
		case "in3", "in^3":
			return pressure.In3ToM3(v), nil
		case "l":
			return v / 1000, nil
		}
	case qSeconds:
		switch unit {
		case "s":
			return v, nil
		case "min":
			return v * 60, nil
		}
	case qForce:
		switch unit {
		case "n":
			return v, nil
		case "kn":
			return v * 1000, nil
		case "lbf":
			return v * newtonsPerLbf, nil
		}
	}
	return 0, fmt.Errorf("unit %q not valid here", unit)
}

const newtonsPerLbf = 4.4482216

func boolFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
