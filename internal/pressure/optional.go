package pressure

// Optional is a pressure cell that may not exist on a given car, such as
// an emergency reservoir. Writes to an absent cell are dropped.
type Optional struct {
	value   float64
	present bool
}

func Some(v float64) Optional { return Optional{value: v, present: true} }

func None() Optional { return Optional{} }

func (o Optional) Present() bool { return o.present }

// Get returns the value and whether the cell exists.
func (o Optional) Get() (float64, bool) { return o.value, o.present }

// Or returns the value, or def when the cell is absent.
func (o Optional) Or(def float64) float64 {
	if !o.present {
		return def
	}
	return o.value
}

// Set stores v if the cell exists.
func (o *Optional) Set(v float64) {
	if o.present {
		o.value = v
	}
}
