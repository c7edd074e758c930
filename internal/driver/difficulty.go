package driver

import (
	"errors"
	"strings"

	"github.com/samber/lo"
)

// Gains are the PID coefficients of a difficulty preset.
type Gains struct {
	Kp float64
	Ki float64
	Kd float64
}

// Difficulty is a named driver preset. Alpha is the fraction of the
// theoretical cornering speed the driver aims for.
type Difficulty struct {
	Name  string
	Alpha float64
	Gains Gains
}

var (
	Easy   = Difficulty{Name: "Easy", Alpha: 0.80, Gains: Gains{Kp: 0.5, Ki: 0.05, Kd: 0.01}}
	Medium = Difficulty{Name: "Medium", Alpha: 0.90, Gains: Gains{Kp: 0.6, Ki: 0.10, Kd: 0.02}}
	Hard   = Difficulty{Name: "Hard", Alpha: 0.96, Gains: Gains{Kp: 0.7, Ki: 0.12, Kd: 0.03}}
)

// Difficulties lists the presets from the slowest to the fastest driver.
var Difficulties = []Difficulty{Easy, Medium, Hard}

// ErrUnknownDifficulty is returned for a preset name that does not exist.
var ErrUnknownDifficulty = errors.New("unknown difficulty")

// LookupDifficulty finds a preset by name, ignoring case.
func LookupDifficulty(name string) (Difficulty, bool) {
	for _, d := range Difficulties {
		if strings.EqualFold(d.Name, name) {
			return d, true
		}
	}
	return Difficulty{}, false
}

// DifficultyNames returns the preset names in order.
func DifficultyNames() []string {
	return lo.Map(Difficulties, func(d Difficulty, _ int) string { return d.Name })
}
