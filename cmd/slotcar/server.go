package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"github.com/race/slotcar/config"
	"github.com/race/slotcar/internal/lobby"
	"github.com/race/slotcar/internal/network"
	"github.com/race/slotcar/log"
)

const (
	cleanupInterval  = 30 * time.Second
	statsInterval    = 5 * time.Minute
	shutdownTimeout  = 10 * time.Second
	maxPlayerNameLen = 20
)

// GameServer accepts WebSocket drivers and hands each of them a session
// from the lobby.
type GameServer struct {
	config   *config.ServerConfig
	lobby    *lobby.Lobby
	protocol *network.Protocol
	upgrader websocket.Upgrader
	log      *zap.Logger

	mu          sync.Mutex
	connections map[*ClientConnection]bool
}

// NewGameServer creates a server on top of the given lobby.
func NewGameServer(cfg *config.ServerConfig, l *lobby.Lobby) *GameServer {
	s := &GameServer{
		config:   cfg,
		lobby:    l,
		protocol: network.NewProtocol(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		log:         log.Named("server"),
		connections: make(map[*ClientConnection]bool),
	}
	if cfg.EnableCORS {
		s.upgrader.CheckOrigin = func(r *http.Request) bool { return true }
	}
	return s
}

// Handler returns the HTTP routes of the server.
func (s *GameServer) Handler() http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/ws", s.handleWebSocket)
	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet, http.MethodHead)
	r.HandleFunc("/stats", s.handleStats).Methods(http.MethodGet)
	r.HandleFunc("/tracks", s.handleTracks).Methods(http.MethodGet)

	if !s.config.EnableCORS {
		return r
	}
	return newCORS().Handler(r)
}

func newCORS() *cors.Cors {
	return cors.New(cors.Options{
		AllowedMethods: []string{http.MethodGet, http.MethodHead},
		AllowOriginFunc: func(origin string) bool {
			return true
		},
		AllowedHeaders: []string{"*"},
	})
}

// Run serves until ctx is done, then shuts the HTTP server and every
// session down.
func (s *GameServer) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.config.Host, s.config.Port),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go s.housekeeping(ctx)

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		s.lobby.StopAll()
		return err
	case <-ctx.Done():
	}

	s.log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	err := srv.Shutdown(shutdownCtx)
	s.closeConnections()
	s.lobby.StopAll()
	return err
}

// housekeeping removes abandoned sessions and logs statistics while the
// server runs.
func (s *GameServer) housekeeping(ctx context.Context) {
	cleanup := time.NewTicker(cleanupInterval)
	defer cleanup.Stop()
	stats := time.NewTicker(statsInterval)
	defer stats.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-cleanup.C:
			removed := s.lobby.CleanupIdle(config.SessionIdleTimeout * time.Second)
			if removed > 0 {
				s.log.Info("cleaned up idle sessions", zap.Int("removed", removed))
			}
		case <-stats.C:
			st := s.lobby.Stats()
			if st.TotalSessions > 0 {
				s.log.Info("stats", zap.Int("sessions", st.TotalSessions), zap.Int("players", st.ActivePlayers))
			}
		}
	}
}

func (s *GameServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]string{"status": "ok"})
}

func (s *GameServer) handleStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.lobby.Stats())
}

func (s *GameServer) handleTracks(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string][]string{"tracks": s.lobby.Tracks()})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(v)
}

// handleWebSocket upgrades the request and starts the client's pumps.
func (s *GameServer) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	conn := newClientConnection(s, ws)
	s.mu.Lock()
	s.connections[conn] = true
	s.mu.Unlock()

	s.log.Debug("new connection", zap.String("addr", conn.RemoteAddr()))

	go conn.writePump()
	go conn.readPump()
}

func (s *GameServer) forget(c *ClientConnection) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.connections, c)
}

func (s *GameServer) closeConnections() {
	s.mu.Lock()
	conns := make([]*ClientConnection, 0, len(s.connections))
	for c := range s.connections {
		conns = append(conns, c)
	}
	s.mu.Unlock()

	for _, c := range conns {
		c.cleanup()
	}
}
