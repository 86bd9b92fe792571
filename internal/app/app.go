// Package app wires a workspace into a ready engine.
package app

import (
	"database/sql"
	"fmt"
	"io"
	"log/slog"

	"pulseboard/internal/config"
	"pulseboard/internal/db"
	"pulseboard/internal/delivery"
	"pulseboard/internal/engine"
	"pulseboard/internal/migrate"
	"pulseboard/internal/telemetry"
)

// Options select the workspace and config file.
type Options struct {
	Workspace string
	// ConfigPath overrides <workspace>/pulseboard.yml.
	ConfigPath string
	Logger     *slog.Logger
}

// App holds an open workspace.
type App struct {
	DB      *sql.DB
	Config  *config.Config
	Engine  engine.Engine
	Metrics *telemetry.Metrics
	Logger  *slog.Logger
}

// LoadConfig reads the config for opts, falling back to defaults when the
// workspace has no config file.
func LoadConfig(opts Options) (*config.Config, error) {
	if opts.ConfigPath != "" {
		return config.FromFile(opts.ConfigPath)
	}
	return config.LoadOrDefault(opts.Workspace)
}

// Open loads config, opens and migrates the database and builds the engine with
// the configured delivery transport.
func Open(opts Options) (*App, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	cfg, err := LoadConfig(opts)
	if err != nil {
		return nil, err
	}
	conn, err := db.Open(db.Config{Workspace: opts.Workspace})
	if err != nil {
		return nil, err
	}
	if err := migrate.Migrate(conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	transport, err := delivery.New(cfg, logger.With(slog.String("component", "delivery")))
	if err != nil {
		conn.Close()
		return nil, err
	}
	m := telemetry.New()
	e := engine.New(conn, cfg)
	e.Transport = transport
	e.Metrics = m
	e.Logger = logger
	return &App{DB: conn, Config: cfg, Engine: e, Metrics: m, Logger: logger}, nil
}

func (a *App) Close() error {
	return a.DB.Close()
}

// NewLogger returns a JSON or text slog logger writing to w.
func NewLogger(w io.Writer, asJSON bool, level slog.Level) *slog.Logger {
	opts := &slog.HandlerOptions{Level: level}
	if asJSON {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
