package httpapi

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"tianshand/internal/eventbus"
	"tianshand/internal/supervisor"
	"tianshand/pkg/types"
)

// Deps wires the diagnostics API to the daemon core.
type Deps struct {
	Sup *supervisor.Supervisor
	Bus *eventbus.Bus
	// Hub streams bus events over /events/ws. Optional; the route answers
	// 503 when nil.
	Hub *WSHub
}

// NewMux builds the diagnostics router.
func NewMux(d Deps) http.Handler {
	started := time.Now()

	r := chi.NewRouter()
	// Basic middlewares: request id, real ip, recoverer
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	// Compression for JSON endpoints
	r.Use(middleware.Compress(5))
	r.Use(MetricsMiddleware)
	if corsEnabled {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: corsAllowedOrigins,
			AllowedMethods: corsAllowedMethods,
			AllowedHeaders: corsAllowedHeaders,
		}))
	}
	// Security headers
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Content-Type-Options", "nosniff")
			next.ServeHTTP(w, r)
		})
	})

	r.Get("/status", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, statusResponse(d, started))
	})

	r.Get("/services", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, types.ServicesResponse{Services: listServices(d.Sup)})
	})

	r.Get("/services/{name}", func(w http.ResponseWriter, r *http.Request) {
		name := chi.URLParam(r, "name")
		h, err := d.Sup.Find(name)
		if err != nil {
			writeSupervisorError(w, err)
			return
		}
		in, err := d.Sup.GetInfo(h)
		if err != nil {
			writeSupervisorError(w, err)
			return
		}
		// refresh the health probe so the snapshot is current
		healthy := d.Sup.IsHealthy(h)
		si := serviceInfo(in)
		si.Healthy = healthy
		writeJSON(w, si)
	})

	r.Post("/services/{name}/restart", func(w http.ResponseWriter, r *http.Request) {
		name := chi.URLParam(r, "name")
		h, err := d.Sup.Find(name)
		if err != nil {
			writeSupervisorError(w, err)
			return
		}

		lvl := requestLogLevel(r)
		start := time.Now()
		// join with the daemon context so shutdown cancels the restart too
		ctx, cancel := joinContexts(baseCtx, r.Context())
		defer cancel()

		if err := d.Sup.Restart(ctx, h); err != nil {
			if lvl >= LevelInfo && zlog != nil {
				z := zlog.Info().Str("service", name).Dur("dur", time.Since(start))
				if rid := middleware.GetReqID(r.Context()); rid != "" {
					z = z.Str("request_id", rid)
				}
				z.Err(err).Msg("restart failed")
			}
			writeSupervisorError(w, err)
			return
		}

		if lvl >= LevelInfo && zlog != nil {
			z := zlog.Info().Str("service", name).Dur("dur", time.Since(start))
			if rid := middleware.GetReqID(r.Context()); rid != "" {
				z = z.Str("request_id", rid)
			}
			z.Msg("service restarted")
		}
		in, err := d.Sup.GetInfo(h)
		if err != nil {
			writeSupervisorError(w, err)
			return
		}
		writeJSON(w, serviceInfo(in))
	})

	r.Get("/events/stats", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, busStats(d.Bus))
	})

	r.Post("/events/stats/reset", func(w http.ResponseWriter, r *http.Request) {
		d.Bus.ResetStats()
		w.WriteHeader(http.StatusNoContent)
	})

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if d.Sup.StartupComplete() {
			w.WriteHeader(http.StatusOK)
			w.Write([]byte("ready"))
			return
		}
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte("starting"))
	})

	// Prometheus metrics endpoint
	r.Get("/metrics", promhttp.Handler().ServeHTTP)

	r.Get("/events/ws", func(w http.ResponseWriter, r *http.Request) {
		if d.Hub == nil {
			writeJSONError(w, http.StatusServiceUnavailable, "event stream disabled")
			return
		}
		d.Hub.ServeWS(w, r)
	})

	return r
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		writeJSONError(w, http.StatusInternalServerError, "failed to encode response")
	}
}

// writeSupervisorError maps registry errors to HTTP status codes.
func writeSupervisorError(w http.ResponseWriter, err error) {
	switch {
	case supervisor.IsNotFound(err):
		writeJSONError(w, http.StatusNotFound, err.Error())
	case supervisor.IsNotRestartable(err), supervisor.IsDependencyNotReady(err):
		writeJSONError(w, http.StatusConflict, err.Error())
	case err == supervisor.ErrNotRunning:
		writeJSONError(w, http.StatusConflict, err.Error())
	case err == supervisor.ErrClosed:
		writeJSONError(w, http.StatusServiceUnavailable, err.Error())
	default:
		if he, ok := err.(HTTPError); ok {
			writeJSONError(w, he.StatusCode(), he.Error())
			return
		}
		writeJSONError(w, http.StatusInternalServerError, err.Error())
	}
}

func serviceInfo(in supervisor.Info) types.ServiceInfo {
	si := types.ServiceInfo{
		Name:        in.Name,
		Phase:       in.Phase.String(),
		State:       string(in.State),
		Healthy:     in.Healthy,
		Restartable: in.Capabilities&supervisor.CapRestartable != 0,
		StartMS:     in.StartDuration.Milliseconds(),
	}
	if !in.StartTime.IsZero() {
		si.StartedAt = in.StartTime.Unix()
	}
	return si
}

func listServices(sup *supervisor.Supervisor) []types.ServiceInfo {
	out := make([]types.ServiceInfo, 0, sup.Count())
	sup.Enumerate(func(in supervisor.Info) bool {
		out = append(out, serviceInfo(in))
		return true
	})
	return out
}

func busStats(bus *eventbus.Bus) types.BusStats {
	s := bus.Stats()
	return types.BusStats{
		Posted:         s.Posted,
		Delivered:      s.Delivered,
		Dropped:        s.Dropped,
		Handlers:       s.Handlers,
		QueueDepth:     s.QueueDepth,
		QueueHighWater: s.QueueHighWater,
		MaxDeliveryUS:  s.MaxDelivery.Microseconds(),
		AvgDeliveryUS:  s.AvgDelivery.Microseconds(),
	}
}

func statusResponse(d Deps, started time.Time) types.StatusResponse {
	st := d.Sup.GetStats()
	resp := types.StatusResponse{
		State:           "starting",
		StartupComplete: d.Sup.StartupComplete(),
		StartupMS:       st.StartupTime.Milliseconds(),
		UptimeSeconds:   int64(time.Since(started).Seconds()),
		ServerTimeUnix:  time.Now().Unix(),
		Services:        listServices(d.Sup),
		Bus:             busStats(d.Bus),
	}
	if resp.StartupComplete {
		resp.State = "ready"
	}
	for i, dur := range st.PhaseTimes {
		if dur == 0 {
			continue
		}
		if resp.PhaseMS == nil {
			resp.PhaseMS = make(map[string]int64)
		}
		resp.PhaseMS[supervisor.Phase(i).String()] = dur.Milliseconds()
	}
	return resp
}
