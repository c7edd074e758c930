package game

import (
	"github.com/race/slotcar/config"
	"github.com/race/slotcar/internal/network"
)

// ValidationResult represents the result of input validation
type ValidationResult int

const (
	ValidationValid ValidationResult = iota
	ValidationIgnoreInput
)

// InputGuard screens client input before it reaches the simulation
type InputGuard struct{}

// NewInputGuard creates a new input guard
func NewInputGuard() *InputGuard {
	return &InputGuard{}
}

// ValidateInputRate checks if player is sending too many inputs
func (g *InputGuard) ValidateInputRate(p *Player) ValidationResult {
	count := p.IncrementInputCount()

	if count > config.MaxInputsPerTick {
		return ValidationIgnoreInput
	}

	return ValidationValid
}

// Sanitize converts a wire input message into a player input. Unknown key
// bits are dropped.
func (g *InputGuard) Sanitize(msg *network.InputMessage) PlayerInput {
	return PlayerInput{
		Sequence: msg.Sequence,
		Keys:     msg.Keys & (network.KeyAccelerate | network.KeyBrake),
		Trigger:  network.DecodeTrigger(msg.Trigger),
		Flags:    msg.Flags & network.InputFlagPaused,
	}
}
