// Package race keeps the race phase, the start procedure and lap timing.
package race

import (
	"math"
	"slices"

	"github.com/samber/lo"

	"github.com/race/slotcar/config"
	"github.com/race/slotcar/internal/physics"
)

// Phase is the stage the race is in.
type Phase uint8

const (
	PhaseMenu Phase = iota
	PhaseCountdown
	PhaseRunning
)

func (p Phase) String() string {
	switch p {
	case PhaseMenu:
		return "menu"
	case PhaseCountdown:
		return "countdown"
	case PhaseRunning:
		return "running"
	default:
		return "unknown"
	}
}

// State is the race bookkeeping for one session. The car at
// config.HumanCarIndex is the human driver; false starts only apply to it.
type State struct {
	totalLength float64
	phase       Phase

	countdownRemaining float64
	countdownTotal     float64
	falseStart         bool
	penalty            float64

	laps       []int
	bestLap    []float64
	elapsedLap []float64
	lastS      []float64
	lastLine   []float64 // raw position of the last line crossing counted
	behind     []bool    // still has to reach the line from the grid
}

// New creates the race state for carCount cars on a track of totalLength
// metres. The race starts in the menu.
func New(totalLength float64, carCount int) *State {
	return &State{
		totalLength: totalLength,
		laps:        make([]int, carCount),
		bestLap:     lo.Times(carCount, func(int) float64 { return math.Inf(1) }),
		elapsedLap:  make([]float64, carCount),
		lastS:       make([]float64, carCount),
		lastLine:    make([]float64, carCount),
		behind:      make([]bool, carCount),
	}
}

// PlaceGrid records the starting positions of the cars. A car in the back
// half of the lap is behind the line: its first crossing starts lap one
// instead of completing a lap.
func (s *State) PlaceGrid(positions []float64) {
	for i := range s.lastS {
		if i >= len(positions) {
			return
		}
		s.lastS[i] = positions[i]
		s.lastLine[i] = positions[i] - s.wrap(positions[i])
		s.behind[i] = s.totalLength > 0 && s.wrap(positions[i]) > s.totalLength/2
	}
}

// StartCountdown (re)enters the countdown from any phase. Lap timers and
// the false start are cleared, lap counts are kept.
func (s *State) StartCountdown(seconds float64) {
	s.phase = PhaseCountdown
	s.countdownRemaining = math.Max(0, seconds)
	s.countdownTotal = math.Max(0, seconds)
	s.falseStart = false
	s.penalty = 0
	for i := range s.elapsedLap {
		s.elapsedLap[i] = 0
	}
}

// Update advances the race by dt. cars is indexed like the race; throttle is
// the human driver's raw input, before any multiplier.
//
// A forward crossing of the line completes a lap, except the first crossing
// of a car placed behind the line by PlaceGrid, which only starts lap one.
// Each line is counted once per car: crossing it again after a respot
// behind it adds nothing.
func (s *State) Update(cars []physics.Car, dt, throttle float64) {
	switch s.phase {
	case PhaseMenu:
		return
	case PhaseCountdown:
		if throttle > config.FalseStartThrottle && !s.falseStart {
			s.falseStart = true
			s.penalty = config.FalseStartPenalty
		}
		s.countdownRemaining = math.Max(0, s.countdownRemaining-dt)
		if s.countdownRemaining <= 0 {
			s.phase = PhaseRunning
		}
		return
	}

	if s.penalty > 0 {
		s.penalty = math.Max(0, s.penalty-dt)
	}

	for i := range cars {
		if i >= len(s.laps) {
			break
		}
		s.elapsedLap[i] += dt
		curr := cars[i].ArcPosition
		line := curr - s.wrap(curr)
		switch {
		case !s.didWrap(s.lastS[i], curr):
		case line < s.lastLine[i]+s.totalLength/2:
		case s.behind[i]:
			s.behind[i] = false
			s.lastLine[i] = line
			s.elapsedLap[i] = 0
		default:
			s.laps[i]++
			if s.elapsedLap[i] < s.bestLap[i] {
				s.bestLap[i] = s.elapsedLap[i]
			}
			s.lastLine[i] = line
			s.elapsedLap[i] = 0
		}
		s.lastS[i] = curr
	}
}

// didWrap reports whether a car moving from prev to curr crossed the start
// line going forward. Backward moves, such as a respot behind the point
// where the car left the slot, and jumps of a whole lap or more are not
// crossings.
func (s *State) didWrap(prev, curr float64) bool {
	if s.totalLength <= 0 {
		return false
	}
	p := s.wrap(prev)
	c := s.wrap(curr)
	d := curr - prev
	return c < p && d > 0 && d < s.totalLength
}

func (s *State) wrap(x float64) float64 {
	w := math.Mod(x, s.totalLength)
	if w < 0 {
		w += s.totalLength
	}
	return w
}

// ThrottleMultiplier gates the throttle of car index: 0 before the start
// and for the human driver while a false start penalty runs, 1 otherwise.
func (s *State) ThrottleMultiplier(index int) float64 {
	if s.phase != PhaseRunning {
		return 0
	}
	if index == config.HumanCarIndex && s.penalty > 0 {
		return 0
	}
	return 1
}

func (s *State) Phase() Phase {
	return s.phase
}

// CarCount returns the number of cars the race tracks.
func (s *State) CarCount() int {
	return len(s.laps)
}

// Laps returns the completed laps of car i.
func (s *State) Laps(i int) int {
	return s.laps[i]
}

// BestLap returns the fastest lap of car i in seconds, +Inf before the
// first completed lap.
func (s *State) BestLap(i int) float64 {
	return s.bestLap[i]
}

// CurrentLap returns the time car i has spent on its current lap.
func (s *State) CurrentLap(i int) float64 {
	return s.elapsedLap[i]
}

// CountdownSeconds returns the whole seconds left on the countdown, rounded
// up as shown on the start lights.
func (s *State) CountdownSeconds() int {
	return int(math.Ceil(s.countdownRemaining))
}

// CountdownProgress returns how far the countdown has run, in [0, 1].
func (s *State) CountdownProgress() float64 {
	if s.countdownTotal <= 0 {
		return 0
	}
	return math.Max(0, math.Min(1, 1-s.countdownRemaining/s.countdownTotal))
}

func (s *State) IsFalseStart() bool {
	return s.falseStart
}

// PenaltyRemaining returns the seconds of throttle lockout left for the
// human driver.
func (s *State) PenaltyRemaining() float64 {
	return s.penalty
}

// Standing is one line of the classification.
type Standing struct {
	Car     int
	Laps    int
	BestLap float64
}

// Standings orders the cars by laps completed, then by best lap. Ties keep
// the car order.
func (s *State) Standings() []Standing {
	out := lo.Times(len(s.laps), func(i int) Standing {
		return Standing{Car: i, Laps: s.laps[i], BestLap: s.bestLap[i]}
	})
	slices.SortStableFunc(out, func(a, b Standing) int {
		if a.Laps != b.Laps {
			return b.Laps - a.Laps
		}
		switch {
		case a.BestLap < b.BestLap:
			return -1
		case a.BestLap > b.BestLap:
			return 1
		default:
			return 0
		}
	})
	return out
}
