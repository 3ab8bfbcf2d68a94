package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"

	"tianshand/internal/eventbus"
	"tianshand/internal/supervisor"
	"tianshand/pkg/types"
)

type testAPI struct {
	mux http.Handler
	sup *supervisor.Supervisor
	bus *eventbus.Bus
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	bus := eventbus.New(eventbus.Config{QueueSize: 128}, zerolog.Nop())
	sup := supervisor.New(bus, supervisor.Config{}, zerolog.Nop())
	t.Cleanup(func() {
		_ = sup.Close(context.Background())
		_ = bus.Close()
	})
	return &testAPI{mux: NewMux(Deps{Sup: sup, Bus: bus}), sup: sup, bus: bus}
}

func (a *testAPI) get(t *testing.T, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	a.mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func (a *testAPI) post(t *testing.T, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	a.mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, path, nil))
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode body %q: %v", rec.Body.String(), err)
	}
	return v
}

func TestHealthz(t *testing.T) {
	a := newTestAPI(t)
	if rec := a.get(t, "/healthz"); rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
}

func TestReadyzFollowsStartup(t *testing.T) {
	a := newTestAPI(t)
	if rec := a.get(t, "/readyz"); rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status before startup = %d, want 503", rec.Code)
	}
	if err := a.sup.StartAll(context.Background()); err != nil {
		t.Fatalf("start all: %v", err)
	}
	if rec := a.get(t, "/readyz"); rec.Code != http.StatusOK {
		t.Fatalf("status after startup = %d, want 200", rec.Code)
	}
}

func TestListServices(t *testing.T) {
	a := newTestAPI(t)
	if _, err := a.sup.Register(supervisor.Definition{Name: "alpha", Phase: supervisor.PhaseCore}); err != nil {
		t.Fatalf("register: %v", err)
	}
	if _, err := a.sup.Register(supervisor.Definition{Name: "beta", Phase: supervisor.PhaseUI}); err != nil {
		t.Fatalf("register: %v", err)
	}

	rec := a.get(t, "/services")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	resp := decode[types.ServicesResponse](t, rec)
	if len(resp.Services) != 2 {
		t.Fatalf("services = %d, want 2", len(resp.Services))
	}
	if resp.Services[0].Name != "alpha" || resp.Services[0].Phase != "core" {
		t.Fatalf("first service = %+v", resp.Services[0])
	}
	if resp.Services[0].State != "registered" {
		t.Fatalf("state = %q, want registered", resp.Services[0].State)
	}
}

func TestGetServiceByName(t *testing.T) {
	a := newTestAPI(t)
	h, err := a.sup.Register(supervisor.Definition{
		Name:         "netmgr",
		Phase:        supervisor.PhaseNetwork,
		Capabilities: supervisor.CapRestartable,
	})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := a.sup.Start(context.Background(), h); err != nil {
		t.Fatalf("start: %v", err)
	}

	rec := a.get(t, "/services/netmgr")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	si := decode[types.ServiceInfo](t, rec)
	if si.Name != "netmgr" || si.State != "running" || !si.Restartable {
		t.Fatalf("service info = %+v", si)
	}
	if si.StartedAt == 0 {
		t.Fatal("started_at not populated for a running service")
	}
}

func TestGetUnknownService(t *testing.T) {
	a := newTestAPI(t)
	rec := a.get(t, "/services/ghost")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
	er := decode[types.ErrorResponse](t, rec)
	if er.Code != http.StatusNotFound || er.Error == "" {
		t.Fatalf("error body = %+v", er)
	}
}

func TestRestartService(t *testing.T) {
	a := newTestAPI(t)
	ctx := context.Background()

	starts := 0
	h, err := a.sup.Register(supervisor.Definition{
		Name:         "able",
		Phase:        supervisor.PhaseService,
		Capabilities: supervisor.CapRestartable,
		Hooks: supervisor.Hooks{
			Start: func(context.Context) error { starts++; return nil },
		},
	})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := a.sup.Start(ctx, h); err != nil {
		t.Fatalf("start: %v", err)
	}

	rec := a.post(t, "/services/able/restart")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	si := decode[types.ServiceInfo](t, rec)
	if si.State != "running" {
		t.Fatalf("state after restart = %q", si.State)
	}
	if starts != 2 {
		t.Fatalf("start hook ran %d times, want 2", starts)
	}
}

func TestRestartNotRestartable(t *testing.T) {
	a := newTestAPI(t)
	h, err := a.sup.Register(supervisor.Definition{Name: "plain", Phase: supervisor.PhaseCore})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := a.sup.Start(context.Background(), h); err != nil {
		t.Fatalf("start: %v", err)
	}

	rec := a.post(t, "/services/plain/restart")
	if rec.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409", rec.Code)
	}
}

func TestRestartUnknownService(t *testing.T) {
	a := newTestAPI(t)
	if rec := a.post(t, "/services/ghost/restart"); rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestRestartFailurePropagates(t *testing.T) {
	a := newTestAPI(t)
	ctx := context.Background()

	fail := false
	h, err := a.sup.Register(supervisor.Definition{
		Name:         "flaky",
		Phase:        supervisor.PhaseService,
		Capabilities: supervisor.CapRestartable,
		Hooks: supervisor.Hooks{
			Start: func(context.Context) error {
				if fail {
					return errors.New("device gone")
				}
				return nil
			},
		},
	})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := a.sup.Start(ctx, h); err != nil {
		t.Fatalf("start: %v", err)
	}

	fail = true
	rec := a.post(t, "/services/flaky/restart")
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
}

func TestEventStats(t *testing.T) {
	a := newTestAPI(t)
	if err := a.bus.PostSync(eventbus.BaseUser, 1, nil); err != nil {
		t.Fatalf("post: %v", err)
	}

	rec := a.get(t, "/events/stats")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	bs := decode[types.BusStats](t, rec)
	if bs.Posted != 1 {
		t.Fatalf("posted = %d, want 1", bs.Posted)
	}

	if rec := a.post(t, "/events/stats/reset"); rec.Code != http.StatusNoContent {
		t.Fatalf("reset status = %d, want 204", rec.Code)
	}
	bs = decode[types.BusStats](t, a.get(t, "/events/stats"))
	if bs.Posted != 0 {
		t.Fatalf("posted after reset = %d, want 0", bs.Posted)
	}
}

func TestStatusResponse(t *testing.T) {
	a := newTestAPI(t)
	ctx := context.Background()

	if _, err := a.sup.Register(supervisor.Definition{Name: "svc", Phase: supervisor.PhaseCore}); err != nil {
		t.Fatalf("register: %v", err)
	}

	st := decode[types.StatusResponse](t, a.get(t, "/status"))
	if st.State != "starting" || st.StartupComplete {
		t.Fatalf("status before startup = %+v", st)
	}

	if err := a.sup.StartAll(ctx); err != nil {
		t.Fatalf("start all: %v", err)
	}
	st = decode[types.StatusResponse](t, a.get(t, "/status"))
	if st.State != "ready" || !st.StartupComplete {
		t.Fatalf("status after startup = %+v", st)
	}
	if len(st.Services) != 1 || st.Services[0].State != "running" {
		t.Fatalf("services = %+v", st.Services)
	}
	if st.ServerTimeUnix == 0 {
		t.Fatal("server time not set")
	}
	if _, ok := st.PhaseMS["core"]; !ok && len(st.PhaseMS) == 0 {
		t.Log("phase timings all sub-millisecond, map may be empty")
	}
}

func TestEventStreamDisabled(t *testing.T) {
	a := newTestAPI(t)
	if rec := a.get(t, "/events/ws"); rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503 without a hub", rec.Code)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	a := newTestAPI(t)
	rec := a.get(t, "/metrics")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if rec.Body.Len() == 0 {
		t.Fatal("empty metrics exposition")
	}
}

func TestNosniffHeader(t *testing.T) {
	a := newTestAPI(t)
	rec := a.get(t, "/healthz")
	if got := rec.Header().Get("X-Content-Type-Options"); got != "nosniff" {
		t.Fatalf("X-Content-Type-Options = %q", got)
	}
}

func TestCORSHeadersWhenEnabled(t *testing.T) {
	SetCORSOptions(true, []string{"*"}, []string{"GET", "POST", "OPTIONS"}, []string{"Content-Type"})
	defer SetCORSOptions(false, nil, nil, nil)

	a := newTestAPI(t)
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/status", nil)
	req.Header.Set("Origin", "http://dashboard.local")
	a.mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got == "" {
		t.Fatal("Access-Control-Allow-Origin not set")
	}
	if got := rec.Header().Get("X-Content-Type-Options"); got != "nosniff" {
		t.Fatalf("X-Content-Type-Options = %q", got)
	}
}

func TestCORSDisabledByDefault(t *testing.T) {
	a := newTestAPI(t)
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/status", nil)
	req.Header.Set("Origin", "http://dashboard.local")
	a.mux.ServeHTTP(rec, req)

	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Fatalf("Access-Control-Allow-Origin = %q, want unset", got)
	}
}
