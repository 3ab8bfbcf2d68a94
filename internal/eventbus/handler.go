package eventbus

// Register subscribes fn to events matching base and id (AnyBase / AnyID
// are wildcards) at the lowest priority filter, so every matching event is
// delivered. The returned handle is needed to unregister.
func (b *Bus) Register(base string, id int32, fn HandlerFunc) (Handle, error) {
	return b.RegisterWithPriority(base, id, PriorityLow, fn)
}

// RegisterWithPriority subscribes fn with a minimum priority filter: events
// below minPriority are not delivered to this handler.
func (b *Bus) RegisterWithPriority(base string, id int32, minPriority Priority, fn HandlerFunc) (Handle, error) {
	if fn == nil {
		return Handle{}, ErrNilHandler
	}
	if b.closed.Load() {
		return Handle{}, ErrClosed
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.count >= b.cfg.MaxHandlers {
		return Handle{}, tooManyHandlersError{max: b.cfg.MaxHandlers}
	}

	var idx uint32
	if n := len(b.free); n > 0 {
		idx = b.free[n-1]
		b.free = b.free[:n-1]
	} else {
		b.slots = append(b.slots, slot{})
		idx = uint32(len(b.slots) - 1)
	}

	b.seq++
	s := &b.slots[idx]
	s.used = true
	s.seq = b.seq
	s.base = base
	s.id = id
	s.minPriority = minPriority
	s.fn = fn
	b.count++
	b.counters.handlers.Store(int64(b.count))

	b.log.Debug().Str("base", base).Int32("id", id).Msg("handler registered")
	return Handle{idx: idx, gen: s.gen}, nil
}

// Unregister removes the registration behind h. After it returns the handler
// is never invoked again; an already-removed or unknown handle fails with
// ErrHandlerNotFound.
func (b *Bus) Unregister(h Handle) error {
	if b.closed.Load() {
		return ErrClosed
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if int(h.idx) >= len(b.slots) {
		return ErrHandlerNotFound
	}
	s := &b.slots[h.idx]
	if !s.used || s.gen != h.gen {
		return ErrHandlerNotFound
	}
	b.releaseSlot(h.idx)
	return nil
}

// UnregisterAll removes every handler whose subscription base and id equal
// the given values; AnyBase / AnyID widen the match to every base or id.
// It succeeds even when nothing matched.
func (b *Bus) UnregisterAll(base string, id int32) error {
	if b.closed.Load() {
		return ErrClosed
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	for i := range b.slots {
		s := &b.slots[i]
		if !s.used {
			continue
		}
		if base != AnyBase && s.base != base {
			continue
		}
		if id != AnyID && s.id != id {
			continue
		}
		b.releaseSlot(uint32(i))
	}
	return nil
}

// releaseSlot frees a slot and bumps its generation so outstanding handles
// can never alias a later registration. Caller holds b.mu.
func (b *Bus) releaseSlot(idx uint32) {
	s := &b.slots[idx]
	s.used = false
	s.gen++
	s.fn = nil
	s.base = ""
	b.free = append(b.free, idx)
	b.count--
	b.counters.handlers.Store(int64(b.count))
}

// HandlerCount reports the number of live registrations.
func (b *Bus) HandlerCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.count
}
