package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"tianshand/internal/config"
	"tianshand/internal/eventbus"
	"tianshand/internal/httpapi"
	"tianshand/internal/supervisor"
)

type serveOptions struct {
	configPath string
	addr       string
	logLevel   string
	pretty     bool
}

const shutdownTimeout = 10 * time.Second

func runServe(opts serveOptions) error {
	cfg := config.Default()
	if opts.configPath != "" {
		fileCfg, err := config.Load(opts.configPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = config.Merge(fileCfg, cfg)
	}
	cfg, err := config.ApplyEnv(cfg)
	if err != nil {
		return err
	}
	// flags win over file and environment
	if opts.addr != "" {
		cfg.Addr = opts.addr
	}
	if opts.logLevel != "" {
		cfg.LogLevel = opts.logLevel
	}

	lvl, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("invalid log level %q: %w", cfg.LogLevel, err)
	}
	var out = zerolog.New(os.Stderr)
	if opts.pretty {
		out = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr})
	}
	log := out.Level(lvl).With().Timestamp().Logger()

	log.Info().Str("version", version).Str("addr", cfg.Addr).Msg("tianshand starting")

	bus := eventbus.New(eventbus.Config{
		QueueSize:   cfg.EventQueueSize,
		MaxHandlers: cfg.MaxHandlers,
		MaxPayload:  cfg.MaxEventPayload,
		PostTimeout: cfg.PostTimeout(),
	}, log.With().Str("component", "eventbus").Logger())

	sup := supervisor.New(bus, supervisor.Config{
		MaxServices: cfg.MaxServices,
	}, log.With().Str("component", "supervisor").Logger())

	prometheus.MustRegister(eventbus.NewCollector(bus), supervisor.NewCollector(sup))

	hub, err := httpapi.NewWSHub(bus, log.With().Str("component", "wshub").Logger())
	if err != nil {
		return fmt.Errorf("event stream: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	httpapi.SetLogger(log)
	httpapi.SetBaseContext(ctx)
	if len(cfg.CORSOrigins) > 0 {
		httpapi.SetCORSOptions(true, cfg.CORSOrigins,
			[]string{"GET", "POST", "OPTIONS"}, []string{"Content-Type"})
	}

	deps := httpapi.Deps{Sup: sup, Bus: bus, Hub: hub}
	if err := registerBuiltins(sup, bus, cfg, log, deps); err != nil {
		return fmt.Errorf("register services: %w", err)
	}

	if err := sup.StartAll(ctx); err != nil {
		return fmt.Errorf("startup: %w", err)
	}
	_ = bus.Post(eventbus.BaseSystem, eventbus.SystemStarted, nil, eventbus.Forever)

	<-ctx.Done()
	log.Info().Msg("shutdown signal received")
	// synchronous so handlers observe it before teardown begins
	_ = bus.PostSync(eventbus.BaseSystem, eventbus.SystemShutdown, nil)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := sup.Close(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("supervisor close")
	}
	hub.Close()
	bus.DumpStats()
	if err := bus.Close(); err != nil {
		log.Warn().Err(err).Msg("bus close")
	}
	log.Info().Msg("tianshand stopped")
	return nil
}
