package input

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/race/slotcar/config"
)

const dt = config.PhysicsStep

func TestDeadzone(t *testing.T) {
	tests := []struct {
		in, want float64
	}{
		{-1, 0},
		{0, 0},
		{0.1, 0},
		{0.12, 0},
		{0.56, 0.5},
		{1, 1},
		{3, 1},
		{math.NaN(), 0},
	}
	for _, tt := range tests {
		assert.InDelta(t, tt.want, Deadzone(tt.in), 1e-9, "in=%v", tt.in)
	}
}

func TestShaper_RampUp(t *testing.T) {
	var s Shaper
	first := s.Update(Snapshot{Accelerate: true}, dt)
	assert.InDelta(t, config.ThrottleRampUp*dt, first, 1e-12)

	prev := first
	for i := 0; i < 600; i++ {
		got := s.Update(Snapshot{Accelerate: true}, dt)
		assert.GreaterOrEqual(t, got, prev)
		assert.LessOrEqual(t, got, 1.0)
		prev = got
	}
	assert.Greater(t, prev, 0.99)
}

func TestShaper_RampDownFasterThanUp(t *testing.T) {
	var up, down Shaper
	down.throttle = 1

	up.Update(Snapshot{Accelerate: true}, dt)
	down.Update(Snapshot{}, dt)

	assert.InDelta(t, config.ThrottleRampUp*dt, up.Throttle(), 1e-12)
	assert.InDelta(t, 1-config.ThrottleRampDown*dt, down.Throttle(), 1e-12)
	assert.Greater(t, 1-down.Throttle(), up.Throttle())
}

func TestShaper_TriggerAndKeyMerge(t *testing.T) {
	var s Shaper
	// a large step reaches the target in one go
	assert.InDelta(t, 0.5, s.Update(Snapshot{Trigger: 0.56}, 1), 1e-9)
	assert.InDelta(t, 1, s.Update(Snapshot{Accelerate: true, Trigger: 0.56}, 1), 1e-9)
	assert.InDelta(t, 0, s.Update(Snapshot{Trigger: 0.05}, 1), 1e-9)
}

func TestShaper_Reset(t *testing.T) {
	var s Shaper
	s.Update(Snapshot{Accelerate: true}, 1)
	s.Reset()
	assert.Zero(t, s.Throttle())
	assert.Zero(t, s.Update(Snapshot{}, -1))
}
