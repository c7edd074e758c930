package game

import (
	"sync"
	"time"

	"github.com/race/slotcar/internal/input"
	"github.com/race/slotcar/internal/network"
)

// PlayerInput represents input from client
type PlayerInput struct {
	Sequence uint8
	Keys     uint8   // Bit flags: Accelerate=1, Brake=2
	Trigger  float64 // 0.0 to 1.0
	Flags    uint8
}

// PlayerConnection interface for network abstraction
type PlayerConnection interface {
	Send(data []byte) error
	Close() error
	RemoteAddr() string
}

// Player is the human driver of a session
type Player struct {
	mu sync.RWMutex

	Name       string
	Connection PlayerConnection

	CurrentInput   PlayerInput
	InputsThisTick int

	LastInputTime time.Time
	ConnectedAt   time.Time
}

// NewPlayer creates a new player
func NewPlayer(name string, conn PlayerConnection) *Player {
	now := time.Now()
	return &Player{
		Name:          name,
		Connection:    conn,
		ConnectedAt:   now,
		LastInputTime: now,
	}
}

// ApplyInput stores the latest input (thread-safe)
func (p *Player) ApplyInput(in PlayerInput) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.CurrentInput = in
	p.LastInputTime = time.Now()
}

// Controls returns the current controls as an input snapshot. The brake key
// cancels the throttle key.
func (p *Player) Controls() input.Snapshot {
	p.mu.RLock()
	defer p.mu.RUnlock()

	keys := p.CurrentInput.Keys
	return input.Snapshot{
		Accelerate: keys&network.KeyAccelerate != 0 && keys&network.KeyBrake == 0,
		Trigger:    p.CurrentInput.Trigger,
	}
}

// Paused reports whether the client asked for the simulation to hold.
func (p *Player) Paused() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.CurrentInput.Flags&network.InputFlagPaused != 0
}

// ResetInputCount resets the input counter for this tick
func (p *Player) ResetInputCount() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.InputsThisTick = 0
}

// IncrementInputCount increments and returns the input count
func (p *Player) IncrementInputCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.InputsThisTick++
	return p.InputsThisTick
}
