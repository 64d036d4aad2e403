package valve

// RateTracker smooths the rate of change of a pressure so a single noisy
// sub-step does not look like an emergency reduction.
type RateTracker struct {
	prev   float64
	rate   float64
	primed bool
}

// smoothingTime is the filter time constant in seconds.
const smoothingTime = 0.2

// Observe records p after dt seconds and returns the smoothed rate.
func (r *RateTracker) Observe(p, dt float64) float64 {
	if dt <= 0 {
		return r.rate
	}
	if !r.primed {
		r.prev, r.primed = p, true
		return r.rate
	}
	raw := (p - r.prev) / dt
	alpha := dt / (dt + smoothingTime)
	r.rate += alpha * (raw - r.rate)
	r.prev = p
	return r.rate
}

// Rate returns the last smoothed rate.
func (r *RateTracker) Rate() float64 { return r.rate }

// Reset forgets history, so the next observation only primes the tracker.
func (r *RateTracker) Reset() { *r = RateTracker{} }
