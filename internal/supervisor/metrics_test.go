package supervisor

import (
	"context"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestCollectorExposesServiceCounts(t *testing.T) {
	sup, _ := newTestSup(t)
	c := NewCollector(sup)

	if n := testutil.CollectAndCount(c); n != 4 {
		t.Fatalf("collected %d metrics, want 4", n)
	}

	h, err := sup.Register(noopDef("svc", PhaseCore))
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := sup.Start(context.Background(), h); err != nil {
		t.Fatalf("start: %v", err)
	}

	expected := `
# HELP tianshand_services_registered Registered services
# TYPE tianshand_services_registered gauge
tianshand_services_registered 1
# HELP tianshand_services_running Services currently running
# TYPE tianshand_services_running gauge
tianshand_services_running 1
# HELP tianshand_services_errored Services in the error state
# TYPE tianshand_services_errored gauge
tianshand_services_errored 0
`
	if err := testutil.CollectAndCompare(c, strings.NewReader(expected),
		"tianshand_services_registered",
		"tianshand_services_running",
		"tianshand_services_errored"); err != nil {
		t.Fatalf("unexpected exposition: %v", err)
	}
}
