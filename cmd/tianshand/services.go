package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"tianshand/internal/config"
	"tianshand/internal/eventbus"
	"tianshand/internal/httpapi"
	"tianshand/internal/supervisor"
)

// heartbeat event id under eventbus.BaseDevMon.
const devmonHeartbeat int32 = 0x0001

// httpDrainTimeout bounds how long a stopping httpd waits for in-flight
// requests. A restart issued through the API itself is still in flight at
// that point, so the drain must not wait on the caller's context.
const httpDrainTimeout = 5 * time.Second

// registerBuiltins wires the daemon's own services into the supervisor:
// an event logger in the core phase, a system monitor in the service phase
// and the diagnostics HTTP server in the UI phase.
func registerBuiltins(sup *supervisor.Supervisor, bus *eventbus.Bus, cfg config.Config, log zerolog.Logger, deps httpapi.Deps) error {
	if _, err := sup.Register(eventlogService(bus, log)); err != nil {
		return err
	}
	if _, err := sup.Register(sysmonService(bus, cfg, log)); err != nil {
		return err
	}
	if _, err := sup.Register(httpdService(cfg, log, deps)); err != nil {
		return err
	}
	return nil
}

// eventlogService mirrors every service lifecycle event into the log.
func eventlogService(bus *eventbus.Bus, log zerolog.Logger) supervisor.Definition {
	elog := log.With().Str("component", "eventlog").Logger()
	var handle eventbus.Handle

	return supervisor.Definition{
		Name:  "eventlog",
		Phase: supervisor.PhaseCore,
		Hooks: supervisor.Hooks{
			Start: func(ctx context.Context) error {
				h, err := bus.Register(eventbus.BaseService, eventbus.AnyID, func(ev eventbus.Event) {
					var se supervisor.ServiceEvent
					if json.Unmarshal(ev.Payload, &se) != nil || se.Service == "" {
						return
					}
					e := elog.Debug().Str("service", se.Service).
						Str("old", string(se.OldState)).Str("new", string(se.NewState))
					if se.Error != "" {
						e = e.Str("error", se.Error)
					}
					e.Msg("service event")
				})
				if err != nil {
					return err
				}
				handle = h
				return nil
			},
			Stop: func(ctx context.Context) error {
				return bus.Unregister(handle)
			},
		},
	}
}

// sysmonService posts a periodic runtime heartbeat on the devmon base.
func sysmonService(bus *eventbus.Bus, cfg config.Config, log zerolog.Logger) supervisor.Definition {
	mlog := log.With().Str("component", "sysmon").Logger()
	var (
		quit chan struct{}
		done chan struct{}
		live atomic.Bool
	)
	period := time.Duration(cfg.HeartbeatSeconds) * time.Second

	beat := func(bootTime time.Time) {
		var ms runtime.MemStats
		runtime.ReadMemStats(&ms)
		payload, err := json.Marshal(map[string]any{
			"goroutines":     runtime.NumGoroutine(),
			"heap_alloc":     ms.HeapAlloc,
			"uptime_seconds": int64(time.Since(bootTime).Seconds()),
		})
		if err != nil {
			return
		}
		// heartbeat must never stall the monitor loop
		if err := bus.TryPost(eventbus.BaseDevMon, devmonHeartbeat, payload); err != nil {
			mlog.Debug().Err(err).Msg("heartbeat dropped")
		}
	}

	return supervisor.Definition{
		Name:         "sysmon",
		Phase:        supervisor.PhaseService,
		Capabilities: supervisor.CapRestartable,
		DependsOn:    []string{"eventlog"},
		Hooks: supervisor.Hooks{
			Start: func(ctx context.Context) error {
				if period <= 0 {
					mlog.Info().Msg("heartbeat disabled")
					return nil
				}
				quit = make(chan struct{})
				done = make(chan struct{})
				live.Store(true)
				bootTime := time.Now()
				go func() {
					defer close(done)
					defer live.Store(false)
					tick := time.NewTicker(period)
					defer tick.Stop()
					for {
						select {
						case <-quit:
							return
						case <-tick.C:
							beat(bootTime)
						}
					}
				}()
				return nil
			},
			Stop: func(ctx context.Context) error {
				if quit == nil {
					return nil
				}
				close(quit)
				select {
				case <-done:
				case <-ctx.Done():
					return ctx.Err()
				}
				quit = nil
				return nil
			},
			Health: func() bool {
				return period <= 0 || live.Load()
			},
		},
	}
}

// httpdService serves the diagnostics API. A fresh http.Server is built on
// every start so the service survives restarts.
func httpdService(cfg config.Config, log zerolog.Logger, deps httpapi.Deps) supervisor.Definition {
	hlog := log.With().Str("component", "httpd").Logger()
	var srv *http.Server

	return supervisor.Definition{
		Name:         "httpd",
		Phase:        supervisor.PhaseUI,
		Capabilities: supervisor.CapRestartable,
		Hooks: supervisor.Hooks{
			Start: func(ctx context.Context) error {
				srv = &http.Server{Addr: cfg.Addr, Handler: httpapi.NewMux(deps)}
				go func(s *http.Server) {
					hlog.Info().Str("addr", cfg.Addr).Msg("diagnostics api listening")
					if err := s.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
						hlog.Error().Err(err).Msg("http server error")
					}
				}(srv)
				return nil
			},
			Stop: func(ctx context.Context) error {
				if srv == nil {
					return nil
				}
				sctx, cancel := context.WithTimeout(context.Background(), httpDrainTimeout)
				defer cancel()
				err := srv.Shutdown(sctx)
				if err != nil {
					err = srv.Close()
				}
				srv = nil
				return err
			},
		},
	}
}
