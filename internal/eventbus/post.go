package eventbus

import "time"

// Post enqueues an event at normal priority, waiting up to timeout for
// queue space. Pass Forever for an unbounded wait or 0 for an immediate
// attempt. A full queue for the whole wait drops the event, counts it, and
// returns ErrPostTimeout.
func (b *Bus) Post(base string, id int32, payload []byte, timeout time.Duration) error {
	return b.PostWithPriority(base, id, payload, PriorityNormal, timeout)
}

// PostWithPriority is Post with an explicit event priority.
func (b *Bus) PostWithPriority(base string, id int32, payload []byte, priority Priority, timeout time.Duration) error {
	if b.closed.Load() {
		return ErrClosed
	}
	ev, err := b.makeEvent(base, id, payload, priority)
	if err != nil {
		return err
	}
	return b.enqueue(ev, timeout)
}

// PostSync delivers the event inline, in the calling goroutine, bypassing
// the queue. All matching handlers have run when it returns, which gives
// the caller ordering relative to its own subsequent code.
func (b *Bus) PostSync(base string, id int32, payload []byte) error {
	if b.closed.Load() {
		return ErrClosed
	}
	ev, err := b.makeEvent(base, id, payload, PriorityNormal)
	if err != nil {
		return err
	}
	b.counters.posted.Add(1)
	b.dispatch(ev)
	return nil
}

// TryPost is the restricted posting surface for contexts that must never
// block: it takes no lock, allocates nothing beyond the payload copy, and
// either enqueues immediately or fails with ErrQueueFull. Events posted
// this way carry high priority, mirroring the interrupt-origin path of the
// original firmware.
func (b *Bus) TryPost(base string, id int32, payload []byte) error {
	if b.closed.Load() {
		return ErrClosed
	}
	if len(payload) > b.cfg.MaxPayload {
		return payloadTooLargeError{size: len(payload), max: b.cfg.MaxPayload}
	}
	ev := Event{
		Base:      base,
		ID:        id,
		Priority:  PriorityHigh,
		Timestamp: time.Now(),
		Payload:   append([]byte(nil), payload...),
	}
	select {
	case b.queue <- ev:
		b.counters.posted.Add(1)
		b.counters.observeDepth(len(b.queue))
		return nil
	default:
		return ErrQueueFull
	}
}

// makeEvent validates the payload and builds the internal event record with
// a private copy of the payload.
func (b *Bus) makeEvent(base string, id int32, payload []byte, priority Priority) (Event, error) {
	if len(payload) > b.cfg.MaxPayload {
		return Event{}, payloadTooLargeError{size: len(payload), max: b.cfg.MaxPayload}
	}
	ev := Event{
		Base:      base,
		ID:        id,
		Priority:  priority,
		Timestamp: time.Now(),
	}
	if len(payload) > 0 {
		ev.Payload = append([]byte(nil), payload...)
	}
	return ev, nil
}

// enqueue performs the bounded-wait send and updates the posted/dropped
// counters and the queue high-water mark.
func (b *Bus) enqueue(ev Event, timeout time.Duration) error {
	if timeout == 0 {
		select {
		case b.queue <- ev:
		default:
			b.counters.dropped.Add(1)
			return ErrPostTimeout
		}
	} else if timeout < 0 {
		select {
		case b.queue <- ev:
		case <-b.quit:
			return ErrClosed
		}
	} else {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		select {
		case b.queue <- ev:
		case <-b.quit:
			return ErrClosed
		case <-timer.C:
			b.counters.dropped.Add(1)
			b.log.Warn().Str("base", ev.Base).Int32("id", ev.ID).Msg("event queue full, event dropped")
			return ErrPostTimeout
		}
	}
	b.counters.posted.Add(1)
	b.counters.observeDepth(len(b.queue))
	return nil
}
