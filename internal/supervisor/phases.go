package supervisor

import (
	"context"
	"sort"
	"time"
)

// StartAll brings every phase up in ascending order. A single service's
// failure is logged and skipped; startup continues with the rest of the
// phase. A nil return therefore does not mean every service is Running —
// callers needing that inspect states via Enumerate or Stats.
func (s *Supervisor) StartAll(ctx context.Context) error {
	if s.closed.Load() {
		return ErrClosed
	}
	s.log.Info().Msg("starting all services")
	begin := time.Now()

	for phase := PhasePlatform; phase < NumPhases; phase++ {
		phaseBegin := time.Now()
		if err := s.StartPhase(ctx, phase); err != nil {
			s.log.Error().Err(err).Stringer("phase", phase).Msg("phase start failed")
			return err
		}

		s.mu.Lock()
		s.phaseTimes[phase] = time.Since(phaseBegin)
		s.mu.Unlock()

		s.postPhaseEvent(phase)
	}

	s.mu.Lock()
	s.startupTime = time.Since(begin)
	total := s.startupTime
	s.mu.Unlock()
	s.startupComplete.Store(true)

	s.log.Info().Dur("took", total).Msg("all services started")
	s.postAllStarted()
	return nil
}

// StartPhase starts every Registered service in one phase, in registration
// order. Per-service failures are logged and skipped.
func (s *Supervisor) StartPhase(ctx context.Context, phase Phase) error {
	if !phase.Valid() {
		return ErrInvalidPhase
	}
	if s.closed.Load() {
		return ErrClosed
	}

	// snapshot under the lock, start outside it
	s.mu.Lock()
	var pending []*instance
	for i := range s.slots {
		sl := &s.slots[i]
		if sl.used && sl.inst.def.Phase == phase && sl.inst.state == StateRegistered {
			pending = append(pending, sl.inst)
		}
	}
	s.mu.Unlock()

	if len(pending) == 0 {
		s.log.Debug().Stringer("phase", phase).Msg("no services in phase")
		return nil
	}
	sort.Slice(pending, func(i, j int) bool { return pending[i].seq < pending[j].seq })

	s.log.Info().Stringer("phase", phase).Int("services", len(pending)).Msg("starting phase")
	for _, inst := range pending {
		if err := s.startService(ctx, inst); err != nil {
			s.log.Error().Err(err).Str("service", inst.def.Name).Msg("service failed to start, continuing phase")
		}
	}
	return nil
}

// StopAll tears every phase down in descending order (UI first, Platform
// last) and clears the startup-complete flag.
func (s *Supervisor) StopAll(ctx context.Context) error {
	if s.closed.Load() {
		return ErrClosed
	}
	s.stopAll(ctx)
	return nil
}

func (s *Supervisor) stopAll(ctx context.Context) {
	s.log.Info().Msg("stopping all services")

	for phase := NumPhases - 1; phase >= PhasePlatform; phase-- {
		s.mu.Lock()
		var running []*instance
		for i := range s.slots {
			sl := &s.slots[i]
			if sl.used && sl.inst.def.Phase == phase && sl.inst.state == StateRunning {
				running = append(running, sl.inst)
			}
		}
		s.mu.Unlock()

		// reverse registration order within the phase
		sort.Slice(running, func(i, j int) bool { return running[i].seq > running[j].seq })
		for _, inst := range running {
			if err := s.stopService(ctx, inst); err != nil {
				s.log.Warn().Err(err).Str("service", inst.def.Name).Msg("service failed to stop")
			}
		}
	}

	s.startupComplete.Store(false)
	s.log.Info().Msg("all services stopped")
}

// StartupComplete reports whether a StartAll pass has finished.
func (s *Supervisor) StartupComplete() bool { return s.startupComplete.Load() }
