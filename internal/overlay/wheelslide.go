package overlay

// WheelSlide models the dump valve fitted for wheel-slide protection. While
// a slide is flagged the valve vents the cylinder. After LockoutAfter
// seconds of continuous dumping it locks out until the flag clears.
type WheelSlide struct {
	LockoutAfter float64
	// MinPipe is the pipe pressure below which the valve stays shut, so an
	// emergency application is never undone.
	MinPipe float64
}

// SlideState is the running part of the valve. It is saved with the car.
type SlideState struct {
	Timer     float64
	LockedOut bool
}

const timerEpsilon = 1e-9

// Step advances the protection by dt and reports whether the dump valve is
// open for this tick.
func (w WheelSlide) Step(st *SlideState, flagged bool, cylinder, pipe, dt float64) bool {
	if !flagged {
		*st = SlideState{}
		return false
	}
	if st.LockedOut || dt <= 0 || cylinder <= 0 || pipe <= w.MinPipe {
		return false
	}
	if w.LockoutAfter > 0 && st.Timer >= w.LockoutAfter-timerEpsilon {
		st.LockedOut = true
		return false
	}
	st.Timer += dt
	return true
}
