// Package lobby keeps track of the running race sessions.
package lobby

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/race/slotcar/internal/game"
	"github.com/race/slotcar/internal/track"
	"github.com/race/slotcar/log"
)

var (
	ErrLobbyFull    = errors.New("lobby is full")
	ErrUnknownTrack = errors.New("unknown track")
	ErrNoTracks     = errors.New("no tracks available")
)

// Lobby creates sessions on the tracks of a catalog and owns them until
// they are removed.
type Lobby struct {
	mu          sync.RWMutex
	catalog     *track.Catalog
	maxSessions int
	sessions    map[string]*game.Session
	log         *zap.Logger
}

// NewLobby creates a new lobby
func NewLobby(catalog *track.Catalog, maxSessions int) *Lobby {
	return &Lobby{
		catalog:     catalog,
		maxSessions: maxSessions,
		sessions:    make(map[string]*game.Session),
		log:         log.Named("lobby"),
	}
}

// CreateSession starts a new session on the named track with player as its
// driver. An empty track name picks the first track of the catalog.
func (l *Lobby) CreateSession(trackName, difficulty string, player *game.Player, opts ...game.Option) (*game.Session, error) {
	trk, err := l.resolveTrack(trackName)
	if err != nil {
		return nil, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if len(l.sessions) >= l.maxSessions {
		return nil, ErrLobbyFull
	}

	if difficulty != "" {
		opts = append(opts, game.WithDifficulty(difficulty))
	}
	if player != nil {
		opts = append(opts, game.WithPlayer(player))
	}

	id := uuid.NewString()
	session, err := game.NewSession(id, trk, opts...)
	if err != nil {
		return nil, err
	}
	l.sessions[id] = session
	session.Start()

	l.log.Info("session created",
		zap.String("session", id),
		zap.String("track", trk.Data.Name),
		zap.Int("sessions", len(l.sessions)))
	return session, nil
}

func (l *Lobby) resolveTrack(name string) (*track.Track, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		names := l.catalog.Names()
		if len(names) == 0 {
			return nil, ErrNoTracks
		}
		name = names[0]
	}
	trk, ok := l.catalog.Get(name)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownTrack, name)
	}
	return trk, nil
}

// Get returns the session with the given id
func (l *Lobby) Get(id string) (*game.Session, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	s, ok := l.sessions[id]
	return s, ok
}

// Remove stops and forgets a session
func (l *Lobby) Remove(id string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if s, ok := l.sessions[id]; ok {
		s.Stop()
		delete(l.sessions, id)
	}
}

// CleanupIdle removes the sessions that have been without a driver for
// longer than timeout and returns how many were removed.
func (l *Lobby) CleanupIdle(timeout time.Duration) int {
	return l.cleanupIdle(time.Now(), timeout)
}

func (l *Lobby) cleanupIdle(now time.Time, timeout time.Duration) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	removed := 0
	for id, s := range l.sessions {
		since, idle := s.IdleSince()
		if !idle || now.Sub(since) < timeout {
			continue
		}
		s.Stop()
		delete(l.sessions, id)
		removed++
	}

	return removed
}

// StopAll stops every session, for shutdown
func (l *Lobby) StopAll() {
	l.mu.Lock()
	defer l.mu.Unlock()

	for id, s := range l.sessions {
		s.Stop()
		delete(l.sessions, id)
	}
}

// Tracks returns the names of the tracks sessions can be created on
func (l *Lobby) Tracks() []string {
	return l.catalog.Names()
}

// Stats returns lobby statistics
func (l *Lobby) Stats() Stats {
	l.mu.RLock()
	sessions := lo.Values(l.sessions)
	l.mu.RUnlock()

	stats := Stats{
		TotalSessions: len(sessions),
		Sessions: lo.Map(sessions, func(s *game.Session, _ int) SessionStats {
			_, idle := s.IdleSince()
			return SessionStats{
				ID:         s.ID,
				Track:      s.Track().Data.Name,
				Cars:       s.CarCount(),
				Phase:      s.Phase().String(),
				Difficulty: s.Difficulty().Name,
				HasPlayer:  !idle,
			}
		}),
	}
	stats.ActivePlayers = lo.CountBy(stats.Sessions, func(s SessionStats) bool { return s.HasPlayer })
	slices.SortFunc(stats.Sessions, func(a, b SessionStats) int { return strings.Compare(a.ID, b.ID) })

	return stats
}

// Stats contains lobby statistics
type Stats struct {
	TotalSessions int            `json:"sessions"`
	ActivePlayers int            `json:"players"`
	Sessions      []SessionStats `json:"details"`
}

// SessionStats contains session statistics
type SessionStats struct {
	ID         string `json:"id"`
	Track      string `json:"track"`
	Cars       int    `json:"cars"`
	Phase      string `json:"phase"`
	Difficulty string `json:"difficulty"`
	HasPlayer  bool   `json:"hasPlayer"`
}
