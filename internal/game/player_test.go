package game

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/race/slotcar/config"
	"github.com/race/slotcar/internal/network"
)

func TestPlayer_Controls(t *testing.T) {
	p := NewPlayer("ada", &fakeConn{})
	assert.False(t, p.Controls().Accelerate)

	p.ApplyInput(PlayerInput{Keys: network.KeyAccelerate, Trigger: 0.4})
	c := p.Controls()
	assert.True(t, c.Accelerate)
	assert.Equal(t, 0.4, c.Trigger)

	p.ApplyInput(PlayerInput{Keys: network.KeyAccelerate | network.KeyBrake})
	assert.False(t, p.Controls().Accelerate, "brake wins")
}

func TestInputGuard_ValidateInputRate(t *testing.T) {
	g := NewInputGuard()
	p := NewPlayer("ada", &fakeConn{})

	for i := 0; i < config.MaxInputsPerTick; i++ {
		assert.Equal(t, ValidationValid, g.ValidateInputRate(p))
	}
	assert.Equal(t, ValidationIgnoreInput, g.ValidateInputRate(p))

	p.ResetInputCount()
	assert.Equal(t, ValidationValid, g.ValidateInputRate(p))
}

func TestInputGuard_Sanitize(t *testing.T) {
	in := NewInputGuard().Sanitize(&network.InputMessage{
		Sequence: 4,
		Keys:     0xFF,
		Trigger:  255,
		Flags:    0xFF,
	})
	assert.Equal(t, uint8(4), in.Sequence)
	assert.Equal(t, network.KeyAccelerate|network.KeyBrake, in.Keys)
	assert.Equal(t, 1.0, in.Trigger)
	assert.Equal(t, network.InputFlagPaused, in.Flags)
}
