package game

import (
	"math"

	"github.com/race/slotcar/config"
)

// FixedStepLoop turns variable frame times into a whole number of fixed
// simulation steps. The remainder is carried to the next frame and exposed
// as an interpolation factor.
type FixedStepLoop struct {
	Step float64

	accumulator float64
	paused      bool
}

// NewFixedStepLoop creates a running loop with the given step in seconds.
func NewFixedStepLoop(step float64) *FixedStepLoop {
	return &FixedStepLoop{Step: step}
}

// Advance feeds one frame of frameSeconds into the loop and calls update
// once per whole step. Frame time is clamped so a long stall cannot trigger
// a burst of catch-up steps. It returns the number of steps taken and the
// fraction of a step left over.
func (l *FixedStepLoop) Advance(frameSeconds float64, update func(dt float64)) (int, float64) {
	if l.paused || l.Step <= 0 {
		return 0, 0
	}
	if frameSeconds < 0 || math.IsNaN(frameSeconds) {
		frameSeconds = 0
	}
	l.accumulator += math.Min(frameSeconds, l.Step*config.MaxFrameSteps)

	steps := 0
	for l.accumulator >= l.Step {
		update(l.Step)
		l.accumulator -= l.Step
		steps++
	}
	return steps, l.accumulator / l.Step
}

// Pause stops the loop from stepping.
func (l *FixedStepLoop) Pause() {
	l.paused = true
}

// Resume restarts a paused loop with an empty accumulator.
func (l *FixedStepLoop) Resume() {
	if !l.paused {
		return
	}
	l.paused = false
	l.accumulator = 0
}

// Running reports whether the loop is stepping.
func (l *FixedStepLoop) Running() bool {
	return !l.paused
}
