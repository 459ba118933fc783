// Package commands implements the dbtbridge subcommands.
package commands

import (
	"context"
	"log/slog"

	"github.com/leapstack-labs/dbtbridge/internal/cli/config"
)

// ConfigKey is the context key under which the loaded config is stored.
type ConfigKey struct{}

// LoggerKey is the context key under which the logger is stored.
type LoggerKey struct{}

// GetConfig retrieves the config from the command context.
func GetConfig(ctx context.Context) *config.Config {
	if c, ok := ctx.Value(ConfigKey{}).(*config.Config); ok {
		return c
	}
	return &config.Config{
		ProjectDir: config.DefaultProjectDir,
		OutDir:     config.DefaultOutDir,
		StatePath:  config.DefaultStateFile,
	}
}

// GetLogger retrieves the logger from the command context.
func GetLogger(ctx context.Context) *slog.Logger {
	if l, ok := ctx.Value(LoggerKey{}).(*slog.Logger); ok {
		return l
	}
	return slog.New(slog.DiscardHandler)
}
