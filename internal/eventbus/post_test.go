package eventbus

import (
	"sync"
	"testing"
	"time"
)

// blockDispatcher parks the dispatch goroutine inside a handler until the
// returned release func is called. The queue can then be filled
// deterministically behind it.
func blockDispatcher(t *testing.T, b *Bus) (release func()) {
	t.Helper()
	entered := make(chan struct{})
	gate := make(chan struct{})
	if _, err := b.Register("blocker", AnyID, func(Event) {
		close(entered)
		<-gate
	}); err != nil {
		t.Fatalf("register blocker: %v", err)
	}
	if err := b.Post("blocker", 0, nil, Forever); err != nil {
		t.Fatalf("post blocker event: %v", err)
	}
	select {
	case <-entered:
	case <-time.After(2 * time.Second):
		t.Fatal("dispatcher never picked up the blocker event")
	}
	return func() { close(gate) }
}

func TestPostZeroTimeoutDropsWhenFull(t *testing.T) {
	b := newTestBus(t, Config{QueueSize: 2})
	release := blockDispatcher(t, b)
	defer release()

	// fill the queue behind the parked dispatcher
	for i := 0; i < 2; i++ {
		if err := b.Post(BaseUser, int32(i), nil, Forever); err != nil {
			t.Fatalf("fill post %d: %v", i, err)
		}
	}

	if err := b.Post(BaseUser, 99, nil, 0); err != ErrPostTimeout {
		t.Fatalf("err = %v, want ErrPostTimeout", err)
	}
	s := b.Stats()
	if s.Dropped != 1 {
		t.Fatalf("dropped = %d, want 1", s.Dropped)
	}
	if s.QueueDepth != 2 || s.QueueHighWater != 2 {
		t.Fatalf("depth=%d highwater=%d, want 2/2", s.QueueDepth, s.QueueHighWater)
	}
}

func TestPostBoundedTimeoutDropsWhenFull(t *testing.T) {
	b := newTestBus(t, Config{QueueSize: 1})
	release := blockDispatcher(t, b)
	defer release()

	if err := b.Post(BaseUser, 1, nil, Forever); err != nil {
		t.Fatalf("fill post: %v", err)
	}

	start := time.Now()
	if err := b.Post(BaseUser, 2, nil, 20*time.Millisecond); err != ErrPostTimeout {
		t.Fatalf("err = %v, want ErrPostTimeout", err)
	}
	if time.Since(start) < 20*time.Millisecond {
		t.Fatal("post returned before the timeout elapsed")
	}
}

func TestTryPostFullQueue(t *testing.T) {
	b := newTestBus(t, Config{QueueSize: 1})
	release := blockDispatcher(t, b)

	if err := b.TryPost(BaseUser, 1, nil); err != nil {
		t.Fatalf("trypost into free queue: %v", err)
	}
	if err := b.TryPost(BaseUser, 2, nil); err != ErrQueueFull {
		t.Fatalf("err = %v, want ErrQueueFull", err)
	}
	// TryPost rejections are the caller's to count
	if s := b.Stats(); s.Dropped != 0 {
		t.Fatalf("dropped = %d, want 0", s.Dropped)
	}

	release()
}

func TestTryPostCarriesHighPriority(t *testing.T) {
	b := newTestBus(t, Config{})
	got := make(chan Event, 1)
	if _, err := b.RegisterWithPriority(BaseUser, 1, PriorityHigh, func(ev Event) { got <- ev }); err != nil {
		t.Fatalf("register: %v", err)
	}

	if err := b.TryPost(BaseUser, 1, []byte("isr")); err != nil {
		t.Fatalf("trypost: %v", err)
	}
	if ev := waitEvent(t, got); ev.Priority != PriorityHigh {
		t.Fatalf("priority = %v, want high", ev.Priority)
	}
}

func TestPostSyncRunsInline(t *testing.T) {
	b := newTestBus(t, Config{})
	var mu sync.Mutex
	seen := 0
	if _, err := b.Register(BaseUser, 1, func(Event) {
		mu.Lock()
		seen++
		mu.Unlock()
	}); err != nil {
		t.Fatalf("register: %v", err)
	}

	if err := b.PostSync(BaseUser, 1, nil); err != nil {
		t.Fatalf("postsync: %v", err)
	}
	mu.Lock()
	defer mu.Unlock()
	if seen != 1 {
		t.Fatalf("handler ran %d times before PostSync returned, want 1", seen)
	}
}

func TestFIFOWithinQueue(t *testing.T) {
	b := newTestBus(t, Config{QueueSize: 16})
	var mu sync.Mutex
	var ids []int32
	done := make(chan struct{})
	if _, err := b.Register(BaseUser, AnyID, func(ev Event) {
		mu.Lock()
		ids = append(ids, ev.ID)
		n := len(ids)
		mu.Unlock()
		if n == 5 {
			close(done)
		}
	}); err != nil {
		t.Fatalf("register: %v", err)
	}

	for i := int32(0); i < 5; i++ {
		if err := b.Post(BaseUser, i, nil, Forever); err != nil {
			t.Fatalf("post %d: %v", i, err)
		}
	}
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for deliveries")
	}

	mu.Lock()
	defer mu.Unlock()
	for i := int32(0); i < 5; i++ {
		if ids[i] != i {
			t.Fatalf("delivery order = %v, want ascending", ids)
		}
	}
}

func TestStatsCounters(t *testing.T) {
	b := newTestBus(t, Config{})
	done := make(chan struct{}, 8)
	if _, err := b.Register(BaseUser, AnyID, func(Event) { done <- struct{}{} }); err != nil {
		t.Fatalf("register: %v", err)
	}

	for i := 0; i < 3; i++ {
		if err := b.Post(BaseUser, int32(i), nil, Forever); err != nil {
			t.Fatalf("post: %v", err)
		}
	}
	for i := 0; i < 3; i++ {
		waitSignal(t, done)
	}
	// the delivered counter trails the handler call; give it a moment
	deadline := time.Now().Add(2 * time.Second)
	for b.Stats().Delivered < 3 {
		if time.Now().After(deadline) {
			t.Fatalf("delivered = %d, want 3", b.Stats().Delivered)
		}
		time.Sleep(time.Millisecond)
	}

	s := b.Stats()
	if s.Posted != 3 {
		t.Fatalf("posted = %d, want 3", s.Posted)
	}
	if s.Handlers != 1 {
		t.Fatalf("handlers = %d, want 1", s.Handlers)
	}

	b.ResetStats()
	s = b.Stats()
	if s.Posted != 0 || s.Delivered != 0 || s.Dropped != 0 || s.QueueHighWater != 0 {
		t.Fatalf("stats after reset = %+v", s)
	}
	if s.Handlers != 1 {
		t.Fatalf("reset cleared the handler count: %d", s.Handlers)
	}
}

func waitSignal(t *testing.T, ch <-chan struct{}) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for delivery")
	}
}
