// Package eventbus implements the publish/subscribe core every other
// subsystem is built on: a bounded in-memory queue drained by a single
// dispatch goroutine, a generation-checked handler registry, transactional
// batching, and delivery statistics.
//
// Events are transient and local to the process; there is no persistence
// and no network fan-out.
package eventbus

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

const (
	defaultQueueSize   = 32
	defaultMaxHandlers = 64
	defaultMaxPayload  = 256
	defaultPostTimeout = 100 * time.Millisecond
)

// Forever requests an unbounded enqueue wait from Post.
const Forever time.Duration = -1

// Config holds the bus sizing knobs. Zero values fall back to the firmware
// defaults.
type Config struct {
	// QueueSize is the capacity of the bounded event queue.
	QueueSize int
	// MaxHandlers caps concurrent handler registrations.
	MaxHandlers int
	// MaxPayload caps event payload length in bytes; larger posts are
	// rejected, never truncated.
	MaxPayload int
	// PostTimeout is the bounded enqueue wait used when a caller does not
	// choose one (transactions, convenience posts).
	PostTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.QueueSize <= 0 {
		c.QueueSize = defaultQueueSize
	}
	if c.MaxHandlers <= 0 {
		c.MaxHandlers = defaultMaxHandlers
	}
	if c.MaxPayload <= 0 {
		c.MaxPayload = defaultMaxPayload
	}
	if c.PostTimeout <= 0 {
		c.PostTimeout = defaultPostTimeout
	}
	return c
}

// slot is one arena entry in the handler registry. Freed slots keep their
// generation counter so stale handles can never alias a new registration.
type slot struct {
	used        bool
	gen         uint32
	seq         uint64
	base        string
	id          int32
	minPriority Priority
	fn          HandlerFunc
}

// Handle identifies a registration. It stays valid until Unregister and is
// never reused for a different handler.
type Handle struct {
	idx uint32
	gen uint32
}

// Bus is the process-wide event bus. Construct with New; all methods are
// safe for concurrent use. TryPost is additionally safe from contexts that
// must never block or take the registry lock.
type Bus struct {
	cfg Config
	log zerolog.Logger

	mu    sync.Mutex
	slots []slot
	free  []uint32
	count int
	seq   uint64

	queue  chan Event
	quit   chan struct{}
	done   chan struct{}
	closed atomic.Bool

	counters counters
}

// New allocates the queue and handler registry and spawns the dispatch
// goroutine.
func New(cfg Config, log zerolog.Logger) *Bus {
	cfg = cfg.withDefaults()
	b := &Bus{
		cfg:   cfg,
		log:   log,
		slots: make([]slot, 0, cfg.MaxHandlers),
		queue: make(chan Event, cfg.QueueSize),
		quit:  make(chan struct{}),
		done:  make(chan struct{}),
	}
	go b.run()
	b.log.Info().Int("queue_size", cfg.QueueSize).Int("max_handlers", cfg.MaxHandlers).
		Msg("event bus started")
	return b
}

// Close signals the dispatch goroutine to exit, joins it, and releases all
// handler registrations. A second Close fails with ErrClosed. Events still
// queued at close time are discarded.
func (b *Bus) Close() error {
	if !b.closed.CompareAndSwap(false, true) {
		return ErrClosed
	}
	close(b.quit)
	<-b.done

	b.mu.Lock()
	b.slots = nil
	b.free = nil
	b.count = 0
	b.mu.Unlock()

	b.log.Info().Msg("event bus stopped")
	return nil
}

// Closed reports whether the bus has been torn down.
func (b *Bus) Closed() bool { return b.closed.Load() }

// QueueDepth reports the number of events currently queued.
func (b *Bus) QueueDepth() int { return len(b.queue) }

// run is the dispatch worker: it drains the queue one event at a time and
// invokes matching handlers.
func (b *Bus) run() {
	defer close(b.done)
	for {
		select {
		case <-b.quit:
			return
		case ev := <-b.queue:
			b.dispatch(ev)
		}
	}
}

// matchRef records a handler that matched an event at snapshot time. The
// generation is rechecked immediately before invocation so a handler
// unregistered mid-dispatch is skipped.
type matchRef struct {
	idx uint32
	gen uint32
	seq uint64
}

// dispatch delivers one event to every matching handler. The registry lock
// is never held across a callback: callbacks may register, unregister, or
// post further events.
func (b *Bus) dispatch(ev Event) {
	start := time.Now()

	b.mu.Lock()
	refs := make([]matchRef, 0, len(b.slots))
	for i := range b.slots {
		s := &b.slots[i]
		if s.used && slotMatches(s, &ev) {
			refs = append(refs, matchRef{idx: uint32(i), gen: s.gen, seq: s.seq})
		}
	}
	b.mu.Unlock()

	// Most recently registered first, matching the original head-insertion
	// handler list.
	sort.Slice(refs, func(i, j int) bool { return refs[i].seq > refs[j].seq })

	for _, ref := range refs {
		b.mu.Lock()
		if int(ref.idx) >= len(b.slots) {
			b.mu.Unlock()
			continue
		}
		s := &b.slots[ref.idx]
		if !s.used || s.gen != ref.gen {
			b.mu.Unlock()
			continue
		}
		fn := s.fn
		b.mu.Unlock()

		fn(ev)
		b.counters.delivered.Add(1)
	}

	b.counters.observeDelivery(time.Since(start))
}

func slotMatches(s *slot, ev *Event) bool {
	if ev.Priority < s.minPriority {
		return false
	}
	if s.base != AnyBase && s.base != ev.Base {
		return false
	}
	if s.id != AnyID && s.id != ev.ID {
		return false
	}
	return true
}
