package eventbus

import (
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestCollectorExposesCounters(t *testing.T) {
	b := newTestBus(t, Config{})
	c := NewCollector(b)

	if n := testutil.CollectAndCount(c); n != 6 {
		t.Fatalf("collected %d metrics, want 6", n)
	}

	done := make(chan struct{}, 1)
	if _, err := b.Register(BaseUser, 1, func(Event) { done <- struct{}{} }); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := b.Post(BaseUser, 1, nil, Forever); err != nil {
		t.Fatalf("post: %v", err)
	}
	waitSignal(t, done)

	expected := `
# HELP tianshand_eventbus_events_posted_total Events accepted into the queue or delivered synchronously
# TYPE tianshand_eventbus_events_posted_total counter
tianshand_eventbus_events_posted_total 1
# HELP tianshand_eventbus_handlers Live handler registrations
# TYPE tianshand_eventbus_handlers gauge
tianshand_eventbus_handlers 1
`
	if err := testutil.CollectAndCompare(c, strings.NewReader(expected),
		"tianshand_eventbus_events_posted_total",
		"tianshand_eventbus_handlers"); err != nil {
		t.Fatalf("unexpected exposition: %v", err)
	}
}
