package eventbus

import (
	"sync/atomic"
	"time"
)

// counters are the raw delivery statistics. Everything is atomic so the
// lock-free TryPost path can touch them without the registry mutex.
type counters struct {
	posted    atomic.Uint64
	delivered atomic.Uint64
	dropped   atomic.Uint64
	handlers  atomic.Int64

	highWater atomic.Int64

	maxDeliveryNS   atomic.Int64
	totalDeliveryNS atomic.Int64
	dispatches      atomic.Uint64
}

func (c *counters) observeDepth(depth int) {
	for {
		cur := c.highWater.Load()
		if int64(depth) <= cur {
			return
		}
		if c.highWater.CompareAndSwap(cur, int64(depth)) {
			return
		}
	}
}

func (c *counters) observeDelivery(d time.Duration) {
	ns := d.Nanoseconds()
	c.totalDeliveryNS.Add(ns)
	c.dispatches.Add(1)
	for {
		cur := c.maxDeliveryNS.Load()
		if ns <= cur {
			return
		}
		if c.maxDeliveryNS.CompareAndSwap(cur, ns) {
			return
		}
	}
}

// Stats is a point-in-time copy of the bus counters.
type Stats struct {
	Posted         uint64
	Delivered      uint64
	Dropped        uint64
	Handlers       int
	QueueDepth     int
	QueueHighWater int
	MaxDelivery    time.Duration
	AvgDelivery    time.Duration
}

// Stats returns a copy of the current counters.
func (b *Bus) Stats() Stats {
	s := Stats{
		Posted:         b.counters.posted.Load(),
		Delivered:      b.counters.delivered.Load(),
		Dropped:        b.counters.dropped.Load(),
		Handlers:       int(b.counters.handlers.Load()),
		QueueDepth:     len(b.queue),
		QueueHighWater: int(b.counters.highWater.Load()),
		MaxDelivery:    time.Duration(b.counters.maxDeliveryNS.Load()),
	}
	if n := b.counters.dispatches.Load(); n > 0 {
		s.AvgDelivery = time.Duration(uint64(b.counters.totalDeliveryNS.Load()) / n)
	}
	return s
}

// ResetStats zeroes every counter except the live handler count.
func (b *Bus) ResetStats() {
	b.counters.posted.Store(0)
	b.counters.delivered.Store(0)
	b.counters.dropped.Store(0)
	b.counters.highWater.Store(0)
	b.counters.maxDeliveryNS.Store(0)
	b.counters.totalDeliveryNS.Store(0)
	b.counters.dispatches.Store(0)
}

// DumpStats logs the current counters at info level.
func (b *Bus) DumpStats() {
	s := b.Stats()
	b.log.Info().
		Uint64("posted", s.Posted).
		Uint64("delivered", s.Delivered).
		Uint64("dropped", s.Dropped).
		Int("handlers", s.Handlers).
		Int("queue_high_water", s.QueueHighWater).
		Dur("max_delivery", s.MaxDelivery).
		Dur("avg_delivery", s.AvgDelivery).
		Msg("event bus statistics")
}
