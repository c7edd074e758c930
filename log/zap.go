// Package log holds the process wide zap logger.
package log

import (
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger is silent until Init is called, so library code and tests stay quiet.
var Logger = zap.NewNop()

// Init builds the global logger from the level and format flags.
// format is either "json" or "text"; unknown levels fall back to info.
func Init(level, format string) error {
	var cfg zap.Config
	if strings.EqualFold(format, "text") {
		cfg = zap.NewDevelopmentConfig()
	} else {
		cfg = zap.NewProductionConfig()
	}
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		lvl = zapcore.InfoLevel
	}
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	l, err := cfg.Build()
	if err != nil {
		return err
	}
	Logger = l
	return nil
}

// Named returns a child of the global logger.
func Named(name string) *zap.Logger {
	return Logger.Named(name)
}
