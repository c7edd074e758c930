// Package game runs race sessions: it owns the simulation of one race,
// advances it on a fixed step and streams the state to the human driver.
package game

import (
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/race/slotcar/config"
	"github.com/race/slotcar/internal/driver"
	"github.com/race/slotcar/internal/input"
	"github.com/race/slotcar/internal/network"
	"github.com/race/slotcar/internal/physics"
	"github.com/race/slotcar/internal/race"
	"github.com/race/slotcar/internal/track"
	"github.com/race/slotcar/log"
)

// Session is one race on one track: a human driver against bots.
//
// Each session has its own:
// - Fixed-step simulation at 120Hz, woken up at 60Hz
// - State broadcast to the human driver at 20Hz
// - Input rate limiting
//
// Thread Safety:
// The simulation is single-threaded. Session.mu serializes the game loop
// against calls coming in from the connection goroutines (input, start,
// difficulty changes). The player keeps its own lock for the input it
// receives between ticks.
type Session struct {
	mu sync.Mutex

	ID string

	track    *track.Track
	physics  *physics.Physics
	race     *race.State
	bots     []*driver.Controller // per car, nil for the human seat
	human    bool
	shaper   input.Shaper
	loop     *FixedStepLoop
	guard    *InputGuard
	protocol *network.Protocol

	difficulty driver.Difficulty
	player     *Player
	idleSince  time.Time

	// bookkeeping for event logs
	phase   race.Phase
	laps    []int
	deslots []int

	tickCount uint64        // Simulation step counter
	running   atomic.Bool   // True if game loop is running
	stopChan  chan struct{} // Signal to stop game loop

	log *zap.Logger
}

type sessionOptions struct {
	bots       int
	difficulty string
	human      bool
	player     *Player
}

// Option configures a new session.
type Option func(*sessionOptions)

// WithBots sets the number of bot opponents.
func WithBots(n int) Option {
	return func(o *sessionOptions) { o.bots = n }
}

// WithDifficulty sets the bot difficulty by preset name.
func WithDifficulty(name string) Option {
	return func(o *sessionOptions) { o.difficulty = name }
}

// WithPlayer seats a connected human driver from the start.
func WithPlayer(p *Player) Option {
	return func(o *sessionOptions) { o.player = p }
}

// WithoutHuman fills every car with a bot, for headless races.
func WithoutHuman() Option {
	return func(o *sessionOptions) { o.human = false }
}

// NewSession creates a session on trk. The cars are placed on the starting
// grid and the race waits in the menu; the game loop is not started.
func NewSession(id string, trk *track.Track, opts ...Option) (*Session, error) {
	o := sessionOptions{
		bots:       config.DefaultBotCount,
		difficulty: driver.Medium.Name,
		human:      true,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.bots < 0 || o.bots > config.MaxBotCount {
		return nil, fmt.Errorf("%w: %d", ErrBotCount, o.bots)
	}
	difficulty, ok := driver.LookupDifficulty(o.difficulty)
	if !ok {
		return nil, fmt.Errorf("%w: %q", driver.ErrUnknownDifficulty, o.difficulty)
	}

	carCount := o.bots
	if o.human {
		carCount++
	}
	if carCount == 0 {
		return nil, fmt.Errorf("%w: session without cars", ErrBotCount)
	}

	s := &Session{
		ID:         id,
		track:      trk,
		physics:    physics.New(trk),
		human:      o.human,
		loop:       NewFixedStepLoop(config.PhysicsStep),
		guard:      NewInputGuard(),
		protocol:   network.NewProtocol(),
		difficulty: difficulty,
		bots:       make([]*driver.Controller, carCount),
		idleSince:  time.Now(),
		stopChan:   make(chan struct{}),
		log:        log.Named("session").With(zap.String("session", id)),
	}
	for i := range s.bots {
		if s.isHuman(i) {
			continue
		}
		bot := driver.New(trk)
		// the preset was validated above
		_ = bot.SetDifficulty(difficulty.Name)
		s.bots[i] = bot
	}
	s.physics.InitCars(carCount)
	s.resetRace()

	if o.player != nil && o.human {
		s.Attach(o.player)
	}
	return s, nil
}

func (s *Session) isHuman(i int) bool {
	return s.human && i == config.HumanCarIndex
}

// resetRace puts every car back on the grid and the race in the menu.
// Caller must hold the session lock or own the session exclusively.
func (s *Session) resetRace() {
	n := len(s.physics.Cars)
	grid := s.track.StartingGrid(n)
	s.physics.PlaceOnGrid(grid)
	s.race = race.New(s.track.TotalLength, n)
	s.race.PlaceGrid(grid)
	s.phase = s.race.Phase()
	s.laps = make([]int, n)
	s.deslots = make([]int, n)
	s.shaper.Reset()
	for _, bot := range s.bots {
		if bot != nil {
			bot.Reset()
		}
	}
}

// Start begins the session's game loop in a separate goroutine.
// Safe to call multiple times - subsequent calls are no-ops.
func (s *Session) Start() {
	if s.running.Swap(true) {
		return
	}

	go s.gameLoop()
	s.log.Info("session started", zap.String("track", s.track.Data.Name), zap.Int("cars", s.CarCount()))
}

// Stop stops the session's game loop.
// Safe to call multiple times - subsequent calls are no-ops.
func (s *Session) Stop() {
	if !s.running.Swap(false) {
		return
	}

	close(s.stopChan)
	s.log.Info("session stopped")
}

// Attach seats p as the human driver and sends it the session and track
// info. A previous driver is replaced.
func (s *Session) Attach(p *Player) {
	s.mu.Lock()
	s.player = p
	s.idleSince = time.Time{}
	s.mu.Unlock()

	info := s.protocol.EncodeSessionInfo(s.ID, uint8(s.CarCount()), config.HumanCarIndex, s.DifficultyLevel())
	if err := p.Connection.Send(info); err != nil {
		s.log.Warn("sending session info", zap.Error(err))
	}
	if err := p.Connection.Send(s.protocol.EncodeTrackInfo(TrackInfo(s.track))); err != nil {
		s.log.Warn("sending track info", zap.Error(err))
	}
	s.log.Info("player attached", zap.String("name", p.Name), zap.String("addr", p.Connection.RemoteAddr()))
}

// Detach removes the human driver. The session keeps running without
// input until it is cleaned up.
func (s *Session) Detach() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.player == nil {
		return
	}
	s.log.Info("player detached", zap.String("name", s.player.Name))
	s.player = nil
	s.idleSince = time.Now()
}

// IdleSince returns when the session lost its driver. ok is false while a
// driver is attached.
func (s *Session) IdleSince() (t time.Time, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.player != nil {
		return time.Time{}, false
	}
	return s.idleSince, true
}

// HandleInput processes the human driver's control input.
func (s *Session) HandleInput(msg *network.InputMessage) {
	s.mu.Lock()
	player := s.player
	s.mu.Unlock()

	if player == nil {
		return
	}

	if s.guard.ValidateInputRate(player) == ValidationIgnoreInput {
		return // Too many inputs this tick - ignore
	}
	player.ApplyInput(s.guard.Sanitize(msg))
}

// StartRace puts the cars back on the grid and starts a new countdown.
func (s *Session) StartRace(countdown float64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.resetRace()
	s.race.StartCountdown(countdown)
	s.phase = s.race.Phase()
	s.log.Info("countdown started", zap.Float64("seconds", countdown))
}

// SetDifficulty changes the preset of every bot.
func (s *Session) SetDifficulty(name string) error {
	d, ok := driver.LookupDifficulty(name)
	if !ok {
		return fmt.Errorf("%w: %q", driver.ErrUnknownDifficulty, name)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, bot := range s.bots {
		if bot != nil {
			_ = bot.SetDifficulty(d.Name)
		}
	}
	s.difficulty = d
	s.log.Info("difficulty changed", zap.String("difficulty", d.Name))
	return nil
}

// Difficulty returns the bot preset.
func (s *Session) Difficulty() driver.Difficulty {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.difficulty
}

// DifficultyLevel returns the wire index of the bot preset.
func (s *Session) DifficultyLevel() uint8 {
	name := s.Difficulty().Name
	for i, d := range driver.Difficulties {
		if d.Name == name {
			return uint8(i)
		}
	}
	return 0
}

// DifficultyByLevel maps a wire difficulty index to its preset name.
func DifficultyByLevel(level uint8) (string, bool) {
	if int(level) >= len(driver.Difficulties) {
		return "", false
	}
	return driver.Difficulties[level].Name, true
}

// Track returns the track the session races on.
func (s *Session) Track() *track.Track {
	return s.track
}

// CarCount returns the number of cars, human included.
func (s *Session) CarCount() int {
	return len(s.bots)
}

// Phase returns the race phase.
func (s *Session) Phase() race.Phase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.race.Phase()
}

// Cars returns a copy of the car states.
func (s *Session) Cars() []physics.Car {
	s.mu.Lock()
	defer s.mu.Unlock()

	cars := make([]physics.Car, len(s.physics.Cars))
	for i, c := range s.physics.Cars {
		if c.Off != nil {
			off := *c.Off
			c.Off = &off
		}
		cars[i] = c
	}
	return cars
}

// Step runs one fixed simulation step of dt seconds.
func (s *Session) Step(dt float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.step(dt)
}

// Advance feeds a frame of wall-clock time into the fixed-step loop and
// returns the number of simulation steps it ran.
// A paused frame resets the input budget itself, since no tick runs.
func (s *Session) Advance(frameSeconds float64) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.player != nil && s.player.Paused() {
		s.player.ResetInputCount()
		s.loop.Pause()
	} else {
		s.loop.Resume()
	}
	steps, _ := s.loop.Advance(frameSeconds, s.step)
	return steps
}

// step is one orchestrated tick: human throttle, bot throttles, race gate,
// physics, then race bookkeeping.
// IMPORTANT: Caller must hold the session lock.
func (s *Session) step(dt float64) {
	humanThrottle := 0.0
	if s.player != nil {
		humanThrottle = s.shaper.Update(s.player.Controls(), dt)
		s.player.ResetInputCount()
	}

	cars := s.physics.Cars
	throttles := make([]float64, len(cars))
	for i := range cars {
		throttle := humanThrottle
		if bot := s.bots[i]; bot != nil {
			throttle = bot.Update(&cars[i], dt).Throttle
		}
		throttles[i] = throttle * s.race.ThrottleMultiplier(i)
	}

	s.physics.Update(dt, throttles)
	s.race.Update(cars, dt, humanThrottle)
	s.tickCount++

	s.logEvents()
}

// logEvents reports phase changes, deslots and laps since the last step.
func (s *Session) logEvents() {
	if phase := s.race.Phase(); phase != s.phase {
		s.log.Info("race phase changed", zap.Stringer("from", s.phase), zap.Stringer("to", phase))
		if s.race.IsFalseStart() {
			s.log.Info("false start", zap.Float64("penalty", s.race.PenaltyRemaining()))
		}
		s.phase = phase
	}
	for i, c := range s.physics.Cars {
		if c.Deslots != s.deslots[i] {
			s.deslots[i] = c.Deslots
			s.log.Debug("car deslotted", zap.Int("car", i), zap.Float64("arc", c.ArcPosition))
		}
		if laps := s.race.Laps(i); laps != s.laps[i] {
			s.laps[i] = laps
			s.log.Debug("lap completed", zap.Int("car", i), zap.Int("laps", laps), zap.Float64("best", s.race.BestLap(i)))
		}
	}
}

// Snapshot returns the wire representation of the current race state.
func (s *Session) Snapshot() network.RaceStateData {
	s.mu.Lock()
	defer s.mu.Unlock()

	state := network.RaceStateData{
		Tick:      uint16(s.tickCount & 0xFFFF),
		Phase:     uint8(s.race.Phase()),
		Countdown: uint8(min(s.race.CountdownSeconds(), math.MaxUint8)),
		Progress:  network.EncodeProgress(s.race.CountdownProgress()),
		PenaltyMs: uint16(network.EncodeMillis(s.race.PenaltyRemaining(), math.MaxUint16)),
		Cars:      make([]network.CarStateData, len(s.physics.Cars)),
	}
	if s.race.IsFalseStart() {
		state.Flags |= network.FlagFalseStart
	}
	if !s.loop.Running() {
		state.Flags |= network.FlagPaused
	}

	for i := range s.physics.Cars {
		c := &s.physics.Cars[i]
		pose := c.Pose(s.track)
		flags := uint8(0)
		if c.IsOffTrack() {
			flags |= network.FlagOffTrack
		}
		if s.isHuman(i) {
			flags |= network.FlagHuman
		}
		state.Cars[i] = network.CarStateData{
			Index:        uint8(i),
			Flags:        flags,
			Laps:         uint16(min(s.race.Laps(i), math.MaxUint16)),
			X:            float32(pose.X),
			Y:            float32(pose.Y),
			Heading:      float32(pose.Heading),
			Speed:        float32(c.DisplaySpeed()),
			BestLapMs:    network.EncodeMillis(s.race.BestLap(i), network.NoLapTime),
			CurrentLapMs: network.EncodeMillis(s.race.CurrentLap(i), network.NoLapTime-1),
		}
	}
	return state
}

// Standing is one line of the results.
type Standing struct {
	Car     int
	Human   bool
	Laps    int
	BestLap float64 // seconds, +Inf without a completed lap
	Deslots int
}

// Standings returns the classification, leader first.
func (s *Session) Standings() []Standing {
	s.mu.Lock()
	defer s.mu.Unlock()

	ranked := s.race.Standings()
	out := make([]Standing, len(ranked))
	for i, r := range ranked {
		out[i] = Standing{
			Car:     r.Car,
			Human:   s.isHuman(r.Car),
			Laps:    r.Laps,
			BestLap: r.BestLap,
			Deslots: s.physics.Cars[r.Car].Deslots,
		}
	}
	return out
}

// gameLoop is the main game loop running in its own goroutine.
// It wakes up at 60Hz to advance the fixed-step simulation and broadcasts
// at 20Hz.
func (s *Session) gameLoop() {
	frameTicker := time.NewTicker(time.Second / time.Duration(config.FrameRate))
	broadcastTicker := time.NewTicker(time.Second / time.Duration(config.BroadcastRate))
	defer frameTicker.Stop()
	defer broadcastTicker.Stop()

	last := time.Now()

	for {
		select {
		case <-s.stopChan:
			return

		case now := <-frameTicker.C:
			frame := now.Sub(last).Seconds()
			last = now
			s.Advance(frame)

		case <-broadcastTicker.C:
			s.broadcastState()
		}
	}
}

// broadcastState sends the current race state to the human driver.
func (s *Session) broadcastState() {
	s.mu.Lock()
	player := s.player
	s.mu.Unlock()

	if player == nil {
		return
	}

	msg := s.protocol.EncodeStateUpdate(s.Snapshot())
	if err := player.Connection.Send(msg); err != nil {
		// Log but don't disconnect - connection cleanup handles that
		s.log.Debug("failed to send state", zap.Error(err))
	}
}

// TrackInfo converts a track to its wire description.
func TrackInfo(t *track.Track) network.TrackInfoMessage {
	points := make([]float32, 0, 2*len(t.Points))
	for _, p := range t.Points {
		points = append(points, float32(p.X), float32(p.Y))
	}
	return network.TrackInfoMessage{
		MsgType:     network.MsgTypeTrackInfo,
		Name:        t.Data.Name,
		TotalLength: float32(t.TotalLength),
		LaneWidth:   float32(t.LaneWidth),
		Bounds: [4]float32{
			float32(t.Bounds.X), float32(t.Bounds.Y),
			float32(t.Bounds.Width), float32(t.Bounds.Height),
		},
		Points: points,
	}
}

// Error definitions
var (
	ErrBotCount = &SessionError{message: "invalid bot count"}
)

// SessionError represents an error related to session operations.
type SessionError struct {
	message string
}

func (e *SessionError) Error() string {
	return e.message
}
