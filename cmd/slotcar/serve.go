package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/race/slotcar/config"
	"github.com/race/slotcar/internal/lobby"
	"github.com/race/slotcar/internal/track"
	"github.com/race/slotcar/log"
)

func newServeCmd() *cobra.Command {
	cfg := config.DefaultServerConfig()
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "starts the race server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg.LogLevel = logLevel
			cfg.LogFormat = logFormat
			return runServer(cmd.Context(), cfg)
		},
	}
	cmd.Flags().StringVar(&cfg.Host,
		"host",
		cfg.Host,
		"listen address")
	cmd.Flags().IntVarP(&cfg.Port,
		"port",
		"p",
		cfg.Port,
		"listen port")
	cmd.Flags().StringVar(&cfg.TracksDir,
		"tracks-dir",
		cfg.TracksDir,
		"directory with the track files (.json, .yaml)")
	cmd.Flags().BoolVar(&cfg.EnableCORS,
		"enable-cors",
		cfg.EnableCORS,
		"allow cross-origin requests and WebSocket upgrades")
	return cmd
}

func runServer(ctx context.Context, cfg *config.ServerConfig) error {
	logger := log.Named("server")

	catalog, err := track.NewCatalog(cfg.TracksDir, config.MetersPerPixel)
	if err != nil {
		return err
	}
	if catalog.Len() == 0 {
		logger.Warn("no tracks found, sessions cannot be created", zap.String("dir", cfg.TracksDir))
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		if err := catalog.Watch(ctx); err != nil {
			logger.Error("track watcher stopped", zap.Error(err))
		}
	}()

	logger.Info("starting server",
		zap.String("host", cfg.Host),
		zap.Int("port", cfg.Port),
		zap.Float64("physicsRate", 1/config.PhysicsStep),
		zap.Int("broadcastRate", config.BroadcastRate),
		zap.Int("maxSessions", config.MaxSessions),
		zap.Strings("tracks", catalog.Names()))

	server := NewGameServer(cfg, lobby.NewLobby(catalog, config.MaxSessions))
	return server.Run(ctx)
}
