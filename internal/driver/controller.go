// Package driver implements the autonomous opponents. A Controller looks
// ahead along the track for the tightest bend, derives the speed it can
// carry through it and steers the car towards that speed with a PID loop.
package driver

import (
	"fmt"
	"math"

	"github.com/race/slotcar/config"
	"github.com/race/slotcar/internal/physics"
	"github.com/race/slotcar/internal/track"
)

// Output is the command a controller produces for one tick.
type Output struct {
	Throttle float64 // [0, 1]
}

// Controller drives one car. It keeps PID state between ticks and must not
// be shared between cars.
type Controller struct {
	track      *track.Track
	difficulty Difficulty

	integral float64
	lastErr  float64
}

// New creates a controller for the given track at Medium difficulty.
func New(t *track.Track) *Controller {
	return &Controller{track: t, difficulty: Medium}
}

// Difficulty returns the active preset.
func (c *Controller) Difficulty() Difficulty {
	return c.difficulty
}

// SetDifficulty switches the preset by name. The integral and derivative
// history carry over to the new gains.
func (c *Controller) SetDifficulty(name string) error {
	d, ok := LookupDifficulty(name)
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownDifficulty, name)
	}
	c.difficulty = d
	return nil
}

// TargetSpeed returns the speed the driver wants at arc position s: the
// slowest cornering speed found within the lookahead window, scaled by the
// difficulty margin.
func (c *Controller) TargetSpeed(s float64) float64 {
	vMax := config.MaxTargetSpeed
	steps := int(config.LookaheadDistance / config.LookaheadStep)
	for i := 0; i <= steps; i++ {
		r := c.track.RadiusMetersAt(s + float64(i)*config.LookaheadStep)
		if math.IsInf(r, 1) {
			continue
		}
		vMax = math.Min(vMax, math.Sqrt(physics.MaxLateralAccel*r))
	}
	return c.difficulty.Alpha * vMax
}

// Update computes the throttle for car over a tick of length dt.
func (c *Controller) Update(car *physics.Car, dt float64) Output {
	err := c.TargetSpeed(car.ArcPosition) - car.Speed
	c.integral = clamp(c.integral+err*dt, -config.IntegralLimit, config.IntegralLimit)

	deriv := 0.0
	if dt > 0 {
		deriv = (err - c.lastErr) / dt
	}
	c.lastErr = err

	g := c.difficulty.Gains
	u := g.Kp*err + g.Ki*c.integral + g.Kd*deriv
	return Output{Throttle: clamp(u/config.ThrottleDivisor, 0, 1)}
}

// Reset clears the PID memory, for a car put back on the grid.
func (c *Controller) Reset() {
	c.integral = 0
	c.lastErr = 0
}

func clamp(x, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, x))
}
