package physics

import (
	"math"

	"github.com/race/slotcar/internal/track"
)

// OffTrack is the state of a deslotted car sliding free of the slot.
type OffTrack struct {
	Position      track.Vec2 // pixels
	Velocity      track.Vec2 // m/s
	RecoveryTimer float64    // seconds until the marshal respots the car
}

// Car is the simulation state of one car.
//
// A car is either slotted or off track. While slotted, ArcPosition and Speed
// describe its motion along the centreline and Off is nil. While off track,
// Off carries the free-body state while Speed and ArcPosition keep their
// values from the moment the car left the slot.
type Car struct {
	ArcPosition float64 // metres, unbounded
	Speed       float64 // m/s, >= 0
	Off         *OffTrack

	Deslots int // number of times the car left the slot
}

// IsOffTrack reports whether the car is deslotted.
func (c *Car) IsOffTrack() bool {
	return c.Off != nil
}

// DisplaySpeed returns how fast the car is actually moving: the slot speed
// while slotted, the sliding speed while off track.
func (c *Car) DisplaySpeed() float64 {
	if c.Off == nil {
		return c.Speed
	}
	return c.Off.Velocity.Len()
}

// RecoveryTimer returns the seconds left before the respot, 0 when slotted.
func (c *Car) RecoveryTimer() float64 {
	if c.Off == nil {
		return 0
	}
	return c.Off.RecoveryTimer
}

// Pose returns where the car currently is: the centreline pose while
// slotted, the free position with the heading of its velocity otherwise.
func (c *Car) Pose(t *track.Track) track.Pose {
	if c.Off == nil {
		return t.SamplePose(c.ArcPosition)
	}
	heading := math.Atan2(c.Off.Velocity.Y, c.Off.Velocity.X)
	return track.Pose{X: c.Off.Position.X, Y: c.Off.Position.Y, Heading: heading}
}
