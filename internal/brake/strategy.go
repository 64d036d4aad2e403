package brake

// strategy is the behaviour table of one brake kind. Kinds share
// functions where the physics is the same; the EP kinds add an overlay
// that runs in a fixed order around the pneumatic update.
type strategy struct {
	initialize func(s *System, maxPressure, fullServPressure float64, immediateRelease bool)
	initMoving func(s *System, pipePressure float64)
	update     func(s *System, dt float64)
	overlay    *overlayStrategy
	settle     func(s *System, dt float64)
	force      func(s *System) float64
	braking    func(s *System) bool
	schema     func(st *State, b *binder)
}

// overlayStrategy wraps the pneumatic update: before, then the pneumatic
// update unless bypass reports true, then after.
type overlayStrategy struct {
	bypass func(s *System) bool
	before func(s *System, dt float64)
	after  func(s *System, dt float64)
}

var airStrategy = strategy{
	initialize: initializeAir,
	initMoving: initMovingAir,
	update:     updateAir,
	settle:     settleAir,
	force:      airForce,
	braking:    airBraking,
	schema:     airSchema,
}

func withOverlay(base strategy, ov *overlayStrategy) *strategy {
	base.overlay = ov
	return &base
}

var strategies = map[Kind]*strategy{
	AirSinglePipe:    withOverlay(airStrategy, nil),
	AirTwinPipe:      withOverlay(airStrategy, nil),
	ElectroPneumatic: withOverlay(airStrategy, &epOverlay),
	SelfLappingEP:    withOverlay(airStrategy, &smeOverlay),
	VacuumSinglePipe: {
		initialize: initializeVacuum,
		initMoving: initMovingVacuum,
		update:     updateVacuum,
		settle:     settleVacuum,
		force:      vacuumForce,
		braking:    vacuumBraking,
		schema:     vacuumSchema,
	},
	StraightVacuum: {
		initialize: initializeStraightVacuum,
		initMoving: initMovingStraightVacuum,
		update:     updateStraightVacuum,
		settle:     settleVacuum,
		force:      straightVacuumForce,
		braking:    straightVacuumBraking,
		schema:     straightVacuumSchema,
	},
	Manual: {
		initialize: initializeManual,
		initMoving: func(s *System, _ float64) { initializeManual(s, 0, 0, true) },
		update:     updateManual,
		force:      manualForce,
		braking:    manualBraking,
		schema:     manualSchema,
	},
	AirPiped: {
		initialize: initializePiped,
		initMoving: initMovingPiped,
		update:     updatePiped,
		settle:     settlePiped,
		force:      noForce,
		braking:    neverBraking,
		schema:     pipedSchema,
	},
	VacuumPiped: {
		initialize: initializeVacuumPiped,
		initMoving: initMovingPiped,
		update:     updatePiped,
		settle:     settleVacuum,
		force:      noForce,
		braking:    neverBraking,
		schema:     pipedSchema,
	},
}
