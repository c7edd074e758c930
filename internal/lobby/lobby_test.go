package lobby

import (
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/race/slotcar/config"
	"github.com/race/slotcar/internal/driver"
	"github.com/race/slotcar/internal/game"
	"github.com/race/slotcar/internal/track"
)

type nopConn struct {
	mu   sync.Mutex
	sent int
}

func (c *nopConn) Send([]byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent++
	return nil
}
func (c *nopConn) Close() error       { return nil }
func (c *nopConn) RemoteAddr() string { return "test" }

func newCatalog(t *testing.T, names ...string) *track.Catalog {
	t.Helper()
	cat, err := track.NewCatalog("", config.MetersPerPixel)
	require.NoError(t, err)
	for _, name := range names {
		trk, err := track.New(track.Data{
			Name: name,
			Segments: []track.Segment{
				{Type: track.SegmentStraight, Length: 500},
				{Type: track.SegmentCurve, Radius: 200, Angle: 180, Direction: track.DirLeft},
				{Type: track.SegmentStraight, Length: 500},
				{Type: track.SegmentCurve, Radius: 200, Angle: 180, Direction: track.DirLeft},
			},
		}, config.MetersPerPixel)
		require.NoError(t, err)
		cat.Add(trk)
	}
	return cat
}

func newLobby(t *testing.T, capacity int, names ...string) *Lobby {
	t.Helper()
	l := NewLobby(newCatalog(t, names...), capacity)
	t.Cleanup(l.StopAll)
	return l
}

func TestCreateSession(t *testing.T) {
	l := newLobby(t, 5, "oval", "kidney")

	s, err := l.CreateSession("oval", "hard", game.NewPlayer("ada", &nopConn{}))
	require.NoError(t, err)
	_, err = uuid.Parse(s.ID)
	assert.NoError(t, err)
	assert.Equal(t, "oval", s.Track().Data.Name)
	assert.Equal(t, driver.Hard, s.Difficulty())

	got, ok := l.Get(s.ID)
	require.True(t, ok)
	assert.Same(t, s, got)

	// an empty name picks the first track in name order
	s2, err := l.CreateSession("", "", nil)
	require.NoError(t, err)
	assert.Equal(t, "kidney", s2.Track().Data.Name)
	assert.Equal(t, driver.Medium, s2.Difficulty())
	assert.NotEqual(t, s.ID, s2.ID)

	assert.Equal(t, []string{"kidney", "oval"}, l.Tracks())
}

func TestCreateSession_Errors(t *testing.T) {
	l := newLobby(t, 1, "oval")

	_, err := l.CreateSession("monza", "", nil)
	assert.ErrorIs(t, err, ErrUnknownTrack)

	_, err = l.CreateSession("oval", "insane", nil)
	assert.ErrorIs(t, err, driver.ErrUnknownDifficulty)

	_, err = l.CreateSession("oval", "", nil)
	require.NoError(t, err)
	_, err = l.CreateSession("oval", "", nil)
	assert.ErrorIs(t, err, ErrLobbyFull)

	empty := newLobby(t, 1)
	_, err = empty.CreateSession("", "", nil)
	assert.ErrorIs(t, err, ErrNoTracks)
}

func TestRemove(t *testing.T) {
	l := newLobby(t, 5, "oval")
	s, err := l.CreateSession("oval", "", nil)
	require.NoError(t, err)

	l.Remove(s.ID)
	_, ok := l.Get(s.ID)
	assert.False(t, ok)
	l.Remove(s.ID)
}

func TestCleanupIdle(t *testing.T) {
	l := newLobby(t, 5, "oval")
	idle, err := l.CreateSession("oval", "", nil)
	require.NoError(t, err)
	busy, err := l.CreateSession("oval", "", game.NewPlayer("ada", &nopConn{}))
	require.NoError(t, err)

	assert.Zero(t, l.cleanupIdle(time.Now(), time.Minute))

	removed := l.cleanupIdle(time.Now().Add(2*time.Minute), time.Minute)
	assert.Equal(t, 1, removed)
	_, ok := l.Get(idle.ID)
	assert.False(t, ok)
	_, ok = l.Get(busy.ID)
	assert.True(t, ok)
}

func TestStats(t *testing.T) {
	l := newLobby(t, 5, "oval")
	_, err := l.CreateSession("oval", "easy", game.NewPlayer("ada", &nopConn{}))
	require.NoError(t, err)
	_, err = l.CreateSession("oval", "", nil, game.WithBots(1))
	require.NoError(t, err)

	stats := l.Stats()
	assert.Equal(t, 2, stats.TotalSessions)
	assert.Equal(t, 1, stats.ActivePlayers)
	require.Len(t, stats.Sessions, 2)
	for _, s := range stats.Sessions {
		assert.Equal(t, "oval", s.Track)
		assert.Equal(t, "menu", s.Phase)
	}
	assert.ElementsMatch(t, []int{4, 2}, []int{stats.Sessions[0].Cars, stats.Sessions[1].Cars})
}
