package main

import (
	"fmt"
	"io"
	"math"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/race/slotcar/config"
	"github.com/race/slotcar/internal/driver"
	"github.com/race/slotcar/internal/game"
	"github.com/race/slotcar/internal/track"
	"github.com/race/slotcar/log"
)

type simulateOptions struct {
	trackFile  string
	bots       int
	difficulty string
	duration   float64 // seconds of racing after the countdown
	countdown  float64
}

func newSimulateCmd() *cobra.Command {
	opts := simulateOptions{}
	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "runs a bot-only race and prints the results",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSimulation(cmd.OutOrStdout(), opts)
		},
	}
	cmd.Flags().StringVarP(&opts.trackFile,
		"track",
		"t",
		"assets/tracks/oval.json",
		"track file (.json, .yaml)")
	cmd.Flags().IntVarP(&opts.bots,
		"bots",
		"b",
		config.DefaultBotCount+1,
		"number of bots")
	cmd.Flags().StringVarP(&opts.difficulty,
		"difficulty",
		"d",
		driver.Medium.Name,
		"bot difficulty ("+strings.Join(driver.DifficultyNames(), ", ")+")")
	cmd.Flags().Float64Var(&opts.duration,
		"duration",
		60,
		"race duration in seconds")
	cmd.Flags().Float64Var(&opts.countdown,
		"countdown",
		config.DefaultCountdown,
		"countdown before the start in seconds")
	return cmd
}

func runSimulation(w io.Writer, opts simulateOptions) error {
	logger := log.Named("simulate")

	trk, err := track.Load(opts.trackFile, config.MetersPerPixel)
	if err != nil {
		return err
	}
	session, err := game.NewSession("simulate", trk,
		game.WithoutHuman(),
		game.WithBots(opts.bots),
		game.WithDifficulty(opts.difficulty))
	if err != nil {
		return err
	}

	countdown := math.Max(0, opts.countdown)
	session.StartRace(countdown)
	steps := int(math.Ceil((countdown + math.Max(0, opts.duration)) / config.PhysicsStep))
	for i := 0; i < steps; i++ {
		session.Step(config.PhysicsStep)
	}
	logger.Debug("simulation done", zap.String("track", trk.Data.Name), zap.Int("steps", steps))

	renderStandings(w, trk, session.Difficulty().Name, session.Standings())
	return nil
}

func renderStandings(w io.Writer, trk *track.Track, difficulty string, standings []game.Standing) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleRounded)
	t.SetTitle("%s (%.1f m, %s)", trk.Data.Name, trk.TotalLength, difficulty)
	t.AppendHeader(table.Row{"Pos", "Car", "Laps", "Best lap", "Off track"})
	for i, s := range standings {
		t.AppendRow(table.Row{i + 1, s.Car + 1, s.Laps, formatLapTime(s.BestLap), s.Deslots})
	}
	t.Render()
}

// formatLapTime renders seconds as m:ss.mmm, "-" without a lap.
func formatLapTime(seconds float64) string {
	if math.IsInf(seconds, 0) || math.IsNaN(seconds) {
		return "-"
	}
	ms := int64(math.Round(seconds * 1000))
	return fmt.Sprintf("%d:%02d.%03d", ms/60000, ms/1000%60, ms%1000)
}
