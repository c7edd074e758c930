// Package input turns the raw controls of the human driver into a smooth
// throttle. Devices are read elsewhere; each tick receives a Snapshot.
package input

import (
	"math"

	"github.com/race/slotcar/config"
)

// Snapshot is the state of the controls at one tick.
type Snapshot struct {
	Accelerate bool    // digital throttle key held
	Trigger    float64 // analog trigger, [0, 1]
}

// Shaper ramps the throttle towards the requested value.
type Shaper struct {
	throttle float64
}

// Update applies one tick of length dt and returns the shaped throttle.
// The key and the trigger are merged, the larger one wins.
func (s *Shaper) Update(snap Snapshot, dt float64) float64 {
	target := 0.0
	if snap.Accelerate {
		target = 1
	}
	desired := math.Max(target, Deadzone(snap.Trigger))

	rate := config.ThrottleRampDown
	if desired > s.throttle {
		rate = config.ThrottleRampUp
	}
	s.throttle += (desired - s.throttle) * math.Min(1, rate*math.Max(0, dt))
	s.throttle = clamp01(s.throttle)
	return s.throttle
}

// Throttle returns the current shaped throttle.
func (s *Shaper) Throttle() float64 {
	return s.throttle
}

// Reset drops the throttle to zero.
func (s *Shaper) Reset() {
	s.throttle = 0
}

// Deadzone clamps an analog reading to [0, 1], zeroes it below the deadzone
// and stretches the rest back over the full range.
func Deadzone(v float64) float64 {
	v = clamp01(v)
	if v < config.TriggerDeadzone {
		return 0
	}
	return (v - config.TriggerDeadzone) / (1 - config.TriggerDeadzone)
}

func clamp01(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return math.Max(0, math.Min(1, v))
}
