// Package physics advances the cars of a race along the track.
//
// Slotted cars follow the centreline under motor force and quadratic drag.
// A car that corners faster than the slot can hold deslots: it leaves the
// track on a ballistic path, slides to a halt and is respotted on the
// nearest centreline sample once the marshal delay has passed.
package physics

import (
	"math"

	"github.com/race/slotcar/config"
	"github.com/race/slotcar/internal/track"
)

// MaxLateralAccel is the cornering limit of a slotted car in m/s^2. The
// driver plans its corner speeds against the same value.
const MaxLateralAccel = config.Friction * config.Gravity

// Physics handles the motion of all cars on one track
type Physics struct {
	track *track.Track
	Cars  []Car
}

// New creates a physics engine for the given track.
func New(t *track.Track) *Physics {
	return &Physics{track: t}
}

// Track returns the track the cars run on.
func (ph *Physics) Track() *track.Track {
	return ph.track
}

// InitCars creates count stationary cars spaced along the centreline.
func (ph *Physics) InitCars(count int) {
	ph.Cars = make([]Car, count)
	for i := range ph.Cars {
		ph.Cars[i] = Car{ArcPosition: float64(i) * config.GridSpacing}
	}
}

// PlaceOnGrid puts every car back on the track at the given arc positions,
// stationary and slotted. Cars without a position are left alone.
func (ph *Physics) PlaceOnGrid(positions []float64) {
	for i := range ph.Cars {
		if i >= len(positions) {
			return
		}
		ph.Cars[i] = Car{ArcPosition: positions[i]}
	}
}

// Update advances every car by dt. throttles is indexed by car; a missing
// entry counts as a closed throttle.
func (ph *Physics) Update(dt float64, throttles []float64) {
	for i := range ph.Cars {
		throttle := 0.0
		if i < len(throttles) {
			throttle = throttles[i]
		}
		ph.UpdateCar(&ph.Cars[i], dt, throttle)
	}
}

// UpdateCar advances a single car by dt with the given throttle. Throttle is
// clamped to [0, 1].
func (ph *Physics) UpdateCar(c *Car, dt, throttle float64) {
	if c.Off != nil {
		ph.updateOffTrack(c, dt)
		return
	}

	// Longitudinal dynamics
	accel := config.MotorAccel*clampThrottle(throttle) - config.DragCoefficient*c.Speed*c.Speed
	c.Speed = math.Max(0, c.Speed+accel*dt)
	c.ArcPosition += c.Speed * dt

	// Cornering check at the new position
	r := ph.track.RadiusMetersAt(c.ArcPosition)
	if math.IsInf(r, 1) {
		return
	}
	lateral := c.Speed * c.Speed / r
	if lateral > MaxLateralAccel+config.DeslotTolerance {
		ph.deslot(c)
	}
}

// LateralAccel returns the lateral acceleration a slotted car would need at
// arc position s and speed v. Straights need none.
func (ph *Physics) LateralAccel(s, v float64) float64 {
	r := ph.track.RadiusMetersAt(s)
	if math.IsInf(r, 1) {
		return 0
	}
	return v * v / r
}

// deslot throws the car off the track: it keeps its forward speed along the
// heading and picks up an impulse towards the outside of the bend.
func (ph *Physics) deslot(c *Car) {
	pose := ph.track.SamplePose(c.ArcPosition)
	outward := pose.Normal()
	if dir := ph.track.TurnDirection(c.ArcPosition); dir != 0 {
		outward = outward.Scale(-dir)
	}
	velocity := pose.Tangent().Scale(c.Speed).Add(outward.Scale(config.OutwardImpulse * c.Speed))

	c.Off = &OffTrack{
		Position:      track.Vec2{X: pose.X, Y: pose.Y},
		Velocity:      velocity,
		RecoveryTimer: config.MarshalDelay,
	}
	c.Deslots++
}

// updateOffTrack slides a deslotted car under constant deceleration and
// respots it once the marshal delay has run out. The delay is fixed: a car
// that stopped early still waits for the marshal. Speed keeps its value from
// the moment of the deslot until the respot.
func (ph *Physics) updateOffTrack(c *Car, dt float64) {
	off := c.Off
	speed := off.Velocity.Len()
	newSpeed := math.Max(0, speed-config.OffTrackDecel*dt)
	if speed > 0 {
		off.Velocity = off.Velocity.Scale(newSpeed / speed)
	}
	off.Position = off.Position.Add(off.Velocity.Scale(dt / ph.track.MetersPerPixel))

	off.RecoveryTimer -= dt
	if off.RecoveryTimer <= 0 {
		ph.respot(c)
	}
}

// respot puts the car back in the slot at the centreline sample nearest to
// where it came to rest. The arc position stays on the lap the car left
// from, so a respot never counts as crossing the line backwards or forwards
// by a whole lap.
func (ph *Physics) respot(c *Car) {
	t := ph.track
	nearest := t.NearestArcPosition(c.Off.Position)

	s := c.ArcPosition - t.Wrap(c.ArcPosition) + nearest
	half := t.TotalLength / 2
	switch {
	case s-c.ArcPosition > half:
		s -= t.TotalLength
	case c.ArcPosition-s > half:
		s += t.TotalLength
	}

	c.ArcPosition = s
	c.Speed = 0
	c.Off = nil
}

func clampThrottle(x float64) float64 {
	if math.IsNaN(x) {
		return 0
	}
	return math.Max(0, math.Min(1, x))
}
