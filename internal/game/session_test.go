package game

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/race/slotcar/config"
	"github.com/race/slotcar/internal/driver"
	"github.com/race/slotcar/internal/network"
	"github.com/race/slotcar/internal/race"
	"github.com/race/slotcar/internal/track"
)

const dt = config.PhysicsStep

type fakeConn struct {
	mu     sync.Mutex
	sent   [][]byte
	closed bool
}

func (c *fakeConn) Send(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, data)
	return nil
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *fakeConn) RemoteAddr() string { return "127.0.0.1:1234" }

func (c *fakeConn) messages() [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([][]byte(nil), c.sent...)
}

func newOval(t *testing.T) *track.Track {
	t.Helper()
	trk, err := track.New(track.Data{
		Name: "oval",
		Segments: []track.Segment{
			{Type: track.SegmentStraight, Length: 1000},
			{Type: track.SegmentCurve, Radius: 250, Angle: 180, Direction: track.DirLeft},
			{Type: track.SegmentStraight, Length: 1000},
			{Type: track.SegmentCurve, Radius: 250, Angle: 180, Direction: track.DirLeft},
		},
	}, config.MetersPerPixel)
	require.NoError(t, err)
	return trk
}

func accelerate(seq uint8) *network.InputMessage {
	return &network.InputMessage{MsgType: network.MsgTypeInput, Sequence: seq, Keys: network.KeyAccelerate}
}

func TestNewSession_Defaults(t *testing.T) {
	s, err := NewSession("s1", newOval(t))
	require.NoError(t, err)

	assert.Equal(t, config.DefaultBotCount+1, s.CarCount())
	assert.Equal(t, driver.Medium, s.Difficulty())
	assert.Equal(t, uint8(1), s.DifficultyLevel())
	assert.Equal(t, race.PhaseMenu, s.Phase())
	assert.Nil(t, s.bots[config.HumanCarIndex])
	for i := 1; i < s.CarCount(); i++ {
		assert.NotNil(t, s.bots[i])
	}

	_, idle := s.IdleSince()
	assert.True(t, idle)
}

func TestNewSession_Invalid(t *testing.T) {
	_, err := NewSession("s1", newOval(t), WithBots(-1))
	assert.ErrorIs(t, err, ErrBotCount)

	_, err = NewSession("s1", newOval(t), WithBots(config.MaxBotCount+1))
	assert.ErrorIs(t, err, ErrBotCount)

	_, err = NewSession("s1", newOval(t), WithBots(0), WithoutHuman())
	assert.ErrorIs(t, err, ErrBotCount)

	_, err = NewSession("s1", newOval(t), WithDifficulty("insane"))
	assert.ErrorIs(t, err, driver.ErrUnknownDifficulty)
}

func TestSession_GridPlacement(t *testing.T) {
	trk := newOval(t)
	s, err := NewSession("s1", trk, WithBots(3))
	require.NoError(t, err)

	grid := trk.StartingGrid(4)
	for i, c := range s.Cars() {
		assert.Equal(t, grid[i], c.ArcPosition)
		assert.Zero(t, c.Speed)
	}
}

func TestSession_NoMovementBeforeStart(t *testing.T) {
	conn := &fakeConn{}
	s, err := NewSession("s1", newOval(t), WithPlayer(NewPlayer("ada", conn)))
	require.NoError(t, err)
	before := s.Cars()

	s.HandleInput(accelerate(1))
	for i := 0; i < 120; i++ {
		s.Step(dt)
	}
	assert.Equal(t, before, s.Cars(), "menu")

	s.StartRace(1)
	for i := 0; i < 100; i++ {
		s.Step(dt)
	}
	require.Equal(t, race.PhaseCountdown, s.Phase())
	assert.Equal(t, before, s.Cars(), "countdown")
}

func TestSession_FalseStart(t *testing.T) {
	conn := &fakeConn{}
	s, err := NewSession("s1", newOval(t), WithPlayer(NewPlayer("ada", conn)))
	require.NoError(t, err)

	s.StartRace(1)
	s.HandleInput(accelerate(1))
	for i := 0; i < 30; i++ {
		s.Step(dt)
	}
	snap := s.Snapshot()
	assert.NotZero(t, snap.Flags&network.FlagFalseStart)
	assert.Equal(t, uint16(2000), snap.PenaltyMs)

	// run into the race: bots go, the human is held
	for s.Phase() != race.PhaseRunning {
		s.Step(dt)
	}
	for i := 0; i < 60; i++ {
		s.Step(dt)
	}
	cars := s.Cars()
	grid := s.Track().StartingGrid(s.CarCount())
	assert.Equal(t, grid[config.HumanCarIndex], cars[config.HumanCarIndex].ArcPosition)
	assert.Greater(t, cars[1].ArcPosition, grid[1])
}

func TestSession_RaceProgresses(t *testing.T) {
	s, err := NewSession("headless", newOval(t), WithoutHuman(), WithBots(2), WithDifficulty("hard"))
	require.NoError(t, err)
	require.Equal(t, 2, s.CarCount())

	s.StartRace(0)
	for i := 0; i < 60*120; i++ {
		s.Step(dt)
	}
	require.Equal(t, race.PhaseRunning, s.Phase())

	standings := s.Standings()
	require.Len(t, standings, 2)
	for _, st := range standings {
		assert.False(t, st.Human)
		assert.GreaterOrEqual(t, st.Laps, 1, "car %d", st.Car)
		assert.Less(t, st.BestLap, 60.0)
	}
	assert.GreaterOrEqual(t, standings[0].Laps, standings[1].Laps)

	snap := s.Snapshot()
	assert.Equal(t, uint8(race.PhaseRunning), snap.Phase)
	for _, c := range snap.Cars {
		assert.Zero(t, c.Flags&network.FlagHuman)
		assert.NotEqual(t, network.NoLapTime, c.BestLapMs)
	}
}

func TestSession_Attach(t *testing.T) {
	conn := &fakeConn{}
	s, err := NewSession("abc", newOval(t), WithBots(2), WithDifficulty("easy"))
	require.NoError(t, err)
	s.Attach(NewPlayer("ada", conn))

	msgs := conn.messages()
	require.Len(t, msgs, 2)
	p := network.NewProtocol()

	info, err := p.DecodeSessionInfo(msgs[0])
	require.NoError(t, err)
	assert.Equal(t, "abc", info.SessionID)
	assert.Equal(t, uint8(3), info.CarCount)
	assert.Equal(t, uint8(0), info.Difficulty)

	trackInfo, err := p.DecodeTrackInfo(msgs[1])
	require.NoError(t, err)
	assert.Equal(t, "oval", trackInfo.Name)
	assert.Len(t, trackInfo.Points, 2*len(s.Track().Points))

	_, idle := s.IdleSince()
	assert.False(t, idle)
	s.Detach()
	_, idle = s.IdleSince()
	assert.True(t, idle)
}

func TestSession_InputRateLimit(t *testing.T) {
	player := NewPlayer("ada", &fakeConn{})
	s, err := NewSession("s1", newOval(t), WithPlayer(player))
	require.NoError(t, err)

	for seq := uint8(1); seq <= 5; seq++ {
		s.HandleInput(accelerate(seq))
	}
	assert.Equal(t, uint8(config.MaxInputsPerTick), player.CurrentInput.Sequence)

	s.Step(dt)
	s.HandleInput(accelerate(9))
	assert.Equal(t, uint8(9), player.CurrentInput.Sequence)
}

func TestSession_InputBudgetPerTick(t *testing.T) {
	player := NewPlayer("ada", &fakeConn{})
	s, err := NewSession("s1", newOval(t), WithPlayer(player))
	require.NoError(t, err)

	// every tick refills the budget
	for seq := uint8(1); seq <= 5; seq++ {
		s.HandleInput(accelerate(seq))
	}
	assert.Equal(t, uint8(config.MaxInputsPerTick), player.CurrentInput.Sequence)
	require.Equal(t, 2, s.Advance(2*dt))
	assert.Zero(t, player.InputsThisTick)

	// a frame too short for a tick leaves the budget spent
	for seq := uint8(10); seq <= 14; seq++ {
		s.HandleInput(accelerate(seq))
	}
	require.Zero(t, s.Advance(0))
	s.HandleInput(accelerate(20))
	assert.Equal(t, uint8(12), player.CurrentInput.Sequence)
}

func TestSession_PausedFrameRefillsInputBudget(t *testing.T) {
	player := NewPlayer("ada", &fakeConn{})
	s, err := NewSession("s1", newOval(t), WithPlayer(player))
	require.NoError(t, err)

	s.HandleInput(&network.InputMessage{Sequence: 1, Flags: network.InputFlagPaused})
	s.HandleInput(&network.InputMessage{Sequence: 2, Flags: network.InputFlagPaused})
	s.HandleInput(&network.InputMessage{Sequence: 3, Flags: network.InputFlagPaused})
	require.Zero(t, s.Advance(2*dt))

	s.HandleInput(accelerate(4))
	assert.Equal(t, uint8(4), player.CurrentInput.Sequence)
	assert.Equal(t, 2, s.Advance(2*dt))
}

func TestSession_Pause(t *testing.T) {
	player := NewPlayer("ada", &fakeConn{})
	s, err := NewSession("s1", newOval(t), WithPlayer(player))
	require.NoError(t, err)

	assert.Equal(t, 2, s.Advance(2*dt))

	s.HandleInput(&network.InputMessage{Flags: network.InputFlagPaused})
	assert.Zero(t, s.Advance(2*dt))
	assert.NotZero(t, s.Snapshot().Flags&network.FlagPaused)

	s.HandleInput(&network.InputMessage{})
	assert.Equal(t, 2, s.Advance(2*dt))
}

func TestSession_SetDifficulty(t *testing.T) {
	s, err := NewSession("s1", newOval(t))
	require.NoError(t, err)

	require.NoError(t, s.SetDifficulty("HARD"))
	assert.Equal(t, driver.Hard, s.Difficulty())
	assert.Equal(t, driver.Hard, s.bots[1].Difficulty())

	assert.ErrorIs(t, s.SetDifficulty("insane"), driver.ErrUnknownDifficulty)
	assert.Equal(t, driver.Hard, s.Difficulty())

	name, ok := DifficultyByLevel(0)
	assert.True(t, ok)
	assert.Equal(t, "Easy", name)
	_, ok = DifficultyByLevel(3)
	assert.False(t, ok)
}

func TestSession_BroadcastState(t *testing.T) {
	conn := &fakeConn{}
	s, err := NewSession("s1", newOval(t), WithPlayer(NewPlayer("ada", conn)))
	require.NoError(t, err)

	s.broadcastState()
	msgs := conn.messages()
	require.Len(t, msgs, 3)

	state, err := network.NewProtocol().DecodeStateUpdate(msgs[2])
	require.NoError(t, err)
	require.Len(t, state.Cars, 4)
	assert.NotZero(t, state.Cars[0].Flags&network.FlagHuman)
	assert.Equal(t, network.NoLapTime, state.Cars[0].BestLapMs)
}

func TestSession_StartStop(t *testing.T) {
	s, err := NewSession("s1", newOval(t))
	require.NoError(t, err)
	s.Start()
	s.Start()
	s.Stop()
	s.Stop()
}
