package supervisor

import (
	"time"
)

// waitPoll bounds how long a waiter sleeps between startup-flag checks.
const waitPoll = 10 * time.Millisecond

// IsHealthy re-evaluates the service's Health hook while it is Running and
// caches the result. Services without a hook (or not Running) report the
// cached value, which starts healthy.
func (s *Supervisor) IsHealthy(h Handle) bool {
	inst, err := s.resolve(h)
	if err != nil {
		return false
	}

	s.mu.Lock()
	check := inst.def.Hooks.Health
	running := inst.state == StateRunning
	s.mu.Unlock()

	if check != nil && running {
		healthy := check()
		s.mu.Lock()
		inst.healthy = healthy
		inst.lastHealthCheck = time.Now()
		s.mu.Unlock()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return inst.healthy
}

// IsRunning reports whether the service is currently Running.
func (s *Supervisor) IsRunning(h Handle) bool {
	return s.GetState(h) == StateRunning
}

// GetState returns the service's current lifecycle state, or
// StateUnregistered for a dead handle.
func (s *Supervisor) GetState(h Handle) State {
	inst, err := s.resolve(h)
	if err != nil {
		return StateUnregistered
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return inst.state
}

// WaitState blocks until the service reaches target or timeout elapses.
// Pass a negative timeout for an unbounded wait.
func (s *Supervisor) WaitState(h Handle, target State, timeout time.Duration) error {
	inst, err := s.resolve(h)
	if err != nil {
		return err
	}

	var deadline <-chan time.Time
	if timeout >= 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		deadline = timer.C
	}

	for {
		s.mu.Lock()
		st := inst.state
		ch := inst.stateCh
		s.mu.Unlock()
		if st == target {
			return nil
		}
		select {
		case <-ch:
		case <-deadline:
			return ErrTimeout
		}
	}
}

// WaitAllStarted blocks until a StartAll pass completes or timeout elapses.
// Pass a negative timeout for an unbounded wait.
func (s *Supervisor) WaitAllStarted(timeout time.Duration) error {
	var deadline <-chan time.Time
	if timeout >= 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		deadline = timer.C
	}

	tick := time.NewTicker(waitPoll)
	defer tick.Stop()
	for {
		if s.startupComplete.Load() {
			return nil
		}
		select {
		case <-tick.C:
		case <-deadline:
			return ErrTimeout
		}
	}
}

// SetAPI publishes an opaque API value dependents can fetch by handle.
func (s *Supervisor) SetAPI(h Handle, api any) error {
	inst, err := s.resolve(h)
	if err != nil {
		return err
	}
	s.mu.Lock()
	inst.api = api
	s.mu.Unlock()
	return nil
}

// API returns the value published via SetAPI, or nil.
func (s *Supervisor) API(h Handle) any {
	inst, err := s.resolve(h)
	if err != nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return inst.api
}
