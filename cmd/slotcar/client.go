package main

import (
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/race/slotcar/config"
	"github.com/race/slotcar/internal/game"
	"github.com/race/slotcar/internal/lobby"
	"github.com/race/slotcar/internal/network"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 30 * time.Second
	maxMessageSize = 512
	sendBufferSize = 256
)

var errConnectionClosed = errors.New("connection closed")

// ClientConnection is one connected driver. Reads and writes run in their
// own goroutines; the session it drives is set once the join succeeded.
type ClientConnection struct {
	ws       *websocket.Conn
	server   *GameServer
	sendChan chan []byte
	done     chan struct{}
	once     sync.Once

	mu      sync.Mutex
	player  *game.Player
	session *game.Session
	closed  bool
}

func newClientConnection(s *GameServer, ws *websocket.Conn) *ClientConnection {
	return &ClientConnection{
		ws:       ws,
		server:   s,
		sendChan: make(chan []byte, sendBufferSize),
		done:     make(chan struct{}),
	}
}

// Send queues data for the client. A full buffer drops the message; the
// next state update supersedes it.
func (c *ClientConnection) Send(data []byte) error {
	select {
	case <-c.done:
		return errConnectionClosed
	default:
	}
	select {
	case c.sendChan <- data:
	default:
	}
	return nil
}

// Close shuts the connection down. Safe to call multiple times.
func (c *ClientConnection) Close() error {
	select {
	case <-c.done:
		return nil
	default:
		close(c.done)
	}
	return c.ws.Close()
}

// RemoteAddr returns the client's address for logging.
func (c *ClientConnection) RemoteAddr() string {
	return c.ws.RemoteAddr().String()
}

func (c *ClientConnection) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	defer c.cleanup()

	for {
		select {
		case <-c.done:
			return

		case message := <-c.sendChan:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.BinaryMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *ClientConnection) readPump() {
	defer c.cleanup()

	c.ws.SetReadLimit(maxMessageSize)
	_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, message, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.server.log.Debug("read error", zap.String("addr", c.RemoteAddr()), zap.Error(err))
			}
			return
		}
		c.handleMessage(message)
	}
}

// handleMessage dispatches on the message type in the first byte.
func (c *ClientConnection) handleMessage(data []byte) {
	if len(data) == 0 {
		return
	}

	switch data[0] {
	case network.MsgTypeJoin:
		c.handleJoin(data)
	case network.MsgTypeInput:
		c.handleInput(data)
	case network.MsgTypePing:
		c.handlePing(data)
	case network.MsgTypeStart:
		c.handleStart(data)
	case network.MsgTypeDifficulty:
		c.handleDifficulty(data)
	case network.MsgTypeLeave:
		c.handleLeave()
	default:
		c.sendError(network.ErrorCodeInvalidMessage, "unknown message type")
	}
}

func (c *ClientConnection) handleJoin(data []byte) {
	p := c.server.protocol
	msg, err := p.DecodeJoin(data)
	if err != nil {
		c.sendError(network.ErrorCodeInvalidMessage, err.Error())
		return
	}
	difficulty, ok := game.DifficultyByLevel(msg.Difficulty)
	if !ok {
		c.sendError(network.ErrorCodeInvalidMessage, "unknown difficulty")
		return
	}

	// one session per connection
	c.handleLeave()

	player := game.NewPlayer(sanitizeName(msg.Name), c)
	session, err := c.server.lobby.CreateSession(msg.Track, difficulty, player)
	switch {
	case errors.Is(err, lobby.ErrLobbyFull):
		c.sendError(network.ErrorCodeLobbyFull, "server full")
		return
	case errors.Is(err, lobby.ErrUnknownTrack), errors.Is(err, lobby.ErrNoTracks):
		c.sendError(network.ErrorCodeUnknownTrack, err.Error())
		return
	case err != nil:
		c.server.log.Error("creating session", zap.Error(err))
		c.sendError(network.ErrorCodeServerError, "could not create session")
		return
	}

	if !c.attach(player, session) {
		// the connection went away while the session was being created
		c.server.lobby.Remove(session.ID)
		return
	}

	c.server.log.Info("player joined",
		zap.String("name", player.Name),
		zap.String("session", session.ID),
		zap.String("track", session.Track().Data.Name))
}

// attach makes session the one this connection drives. It reports false once
// cleanup has run, since nothing would detach the session afterwards.
func (c *ClientConnection) attach(player *game.Player, session *game.Session) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return false
	}
	c.player = player
	c.session = session
	return true
}

func (c *ClientConnection) handleInput(data []byte) {
	session := c.currentSession()
	if session == nil {
		return
	}
	msg, err := c.server.protocol.DecodeInput(data)
	if err != nil {
		return
	}
	session.HandleInput(msg)
}

// handlePing echoes the client timestamp for round-trip measurement.
func (c *ClientConnection) handlePing(data []byte) {
	ts, err := c.server.protocol.DecodePing(data)
	if err != nil {
		return
	}
	_ = c.Send(c.server.protocol.EncodePong(ts))
}

func (c *ClientConnection) handleStart(data []byte) {
	session := c.currentSession()
	if session == nil {
		c.sendError(network.ErrorCodeNotInSession, "join a session first")
		return
	}
	msg, err := c.server.protocol.DecodeStart(data)
	if err != nil {
		c.sendError(network.ErrorCodeInvalidMessage, err.Error())
		return
	}
	countdown := float64(msg.Countdown)
	if countdown == 0 {
		countdown = config.DefaultCountdown
	}
	session.StartRace(countdown)
}

func (c *ClientConnection) handleDifficulty(data []byte) {
	session := c.currentSession()
	if session == nil {
		c.sendError(network.ErrorCodeNotInSession, "join a session first")
		return
	}
	msg, err := c.server.protocol.DecodeDifficulty(data)
	if err != nil {
		c.sendError(network.ErrorCodeInvalidMessage, err.Error())
		return
	}
	name, ok := game.DifficultyByLevel(msg.Level)
	if !ok {
		c.sendError(network.ErrorCodeInvalidMessage, "unknown difficulty")
		return
	}
	if err := session.SetDifficulty(name); err != nil {
		c.sendError(network.ErrorCodeInvalidMessage, err.Error())
	}
}

// handleLeave ends the client's session.
func (c *ClientConnection) handleLeave() {
	c.mu.Lock()
	session := c.session
	c.session = nil
	c.player = nil
	c.mu.Unlock()

	if session != nil {
		c.server.lobby.Remove(session.ID)
	}
}

func (c *ClientConnection) currentSession() *game.Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session
}

func (c *ClientConnection) sendError(code uint8, message string) {
	_ = c.Send(c.server.protocol.EncodeError(code, message))
}

// cleanup runs once, from whichever pump stops first. The session loses
// its driver and is reaped by the idle cleanup.
func (c *ClientConnection) cleanup() {
	c.once.Do(func() {
		c.server.forget(c)

		c.mu.Lock()
		session := c.session
		c.session = nil
		c.player = nil
		c.closed = true
		c.mu.Unlock()

		if session != nil {
			session.Detach()
		}
		_ = c.Close()
		c.server.log.Debug("connection closed", zap.String("addr", c.RemoteAddr()))
	})
}

func sanitizeName(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return "Player"
	}
	if r := []rune(name); len(r) > maxPlayerNameLen {
		name = string(r[:maxPlayerNameLen])
	}
	return name
}
