package main

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel/metric"

	"github.com/aminssutt/AurisTraining/internal/api"
	"github.com/aminssutt/AurisTraining/internal/config"
	"github.com/aminssutt/AurisTraining/internal/recent"
	"github.com/aminssutt/AurisTraining/internal/shell"
	"github.com/aminssutt/AurisTraining/internal/telemetry"
	"github.com/aminssutt/AurisTraining/internal/tui"
)

type rootFlags struct {
	apiURL  string
	dataDir string
	debug   bool
}

// app is everything a command needs, built once per invocation.
type app struct {
	cfg    config.Config
	logger *slog.Logger
	meter  metric.Meter
	client *api.Client
	store  *recent.Store

	closers []func()
}

// loadConfig resolves .env, environment and flags, in that order.
func loadConfig(cmd *cobra.Command, flags *rootFlags) (config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return config.Config{}, err
	}
	if cmd.Flags().Changed("api-url") {
		cfg.APIURL = flags.apiURL
	}
	if cmd.Flags().Changed("data-dir") {
		cfg.DataDir = flags.dataDir
	}
	if flags.debug {
		cfg.Debug = true
	}
	return cfg, cfg.Validate()
}

func newApp(cmd *cobra.Command, flags *rootFlags) (*app, error) {
	cfg, err := loadConfig(cmd, flags)
	if err != nil {
		return nil, err
	}

	a := &app{cfg: cfg}
	logger, logCloser, err := telemetry.InitLogger(cfg.LogDir(), cfg.Debug)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	a.logger = logger
	a.closers = append(a.closers, func() { logCloser.Close() })

	tracer, meter, cleanup, err := telemetry.InitTelemetry(cmd.Context(), cfg.LogDir())
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	a.meter = meter
	a.closers = append(a.closers, cleanup)

	a.client, err = api.New(cfg.APIURL,
		api.WithHTTPClient(&http.Client{Timeout: cfg.RequestTimeout}),
		api.WithLogger(logger),
		api.WithTelemetry(tracer, meter),
	)
	if err != nil {
		a.Close()
		return nil, err
	}

	a.store, err = recent.Open(cfg.SessionsDB())
	if err != nil {
		// the flow works without bookmarks
		logger.Warn("recent sessions unavailable", "error", err)
	} else {
		a.closers = append(a.closers, func() { a.store.Close() })
	}

	if cfg.Debug {
		logger.Info("debug mode enabled")
	}
	logger.Info("assistant started", "command", cmd.CommandPath(), "api_url", cfg.APIURL)
	return a, nil
}

// Close releases resources in reverse order of acquisition.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

func (a *app) tuiDeps() tui.Deps {
	d := tui.Deps{
		Client:            a.client,
		Logger:            a.logger,
		Meter:             a.meter,
		PollInterval:      a.cfg.PollInterval,
		HandoffDelay:      a.cfg.HandoffDelay,
		NotStartedTimeout: a.cfg.NotStartedTimeout,
		PollRetries:       a.cfg.PollRetries,
		RequestTimeout:    a.cfg.RequestTimeout,
	}
	if a.store != nil {
		d.Bookmarks = a.store
	}
	return d
}

func (a *app) shell(cmd *cobra.Command) *shell.Shell {
	opts := shell.Options{
		In:                cmd.InOrStdin(),
		Out:               cmd.OutOrStdout(),
		Logger:            a.logger,
		Meter:             a.meter,
		PollInterval:      a.cfg.PollInterval,
		HandoffDelay:      a.cfg.HandoffDelay,
		NotStartedTimeout: a.cfg.NotStartedTimeout,
		PollRetries:       a.cfg.PollRetries,
		RequestTimeout:    a.cfg.RequestTimeout,
	}
	if a.store != nil {
		opts.Bookmarks = a.store
	}
	return shell.New(a.client, opts)
}
