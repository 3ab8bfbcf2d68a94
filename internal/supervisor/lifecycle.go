package supervisor

import (
	"context"
	"time"
)

// Start brings the service to Running: dependency check, Init hook, Start
// hook. Already Running is a no-op success. A failing hook leaves the
// service in Error and returns the hook's error.
func (s *Supervisor) Start(ctx context.Context, h Handle) error {
	if s.closed.Load() {
		return ErrClosed
	}
	inst, err := s.resolve(h)
	if err != nil {
		return err
	}
	return s.startService(ctx, inst)
}

// Stop brings a Running service to Stopped. Already Stopped or merely
// Registered is a no-op success; any other state fails with ErrNotRunning.
// A failing Stop hook is logged and attached to the published event, but
// the service still reaches Stopped.
func (s *Supervisor) Stop(ctx context.Context, h Handle) error {
	if s.closed.Load() {
		return ErrClosed
	}
	inst, err := s.resolve(h)
	if err != nil {
		return err
	}
	return s.stopService(ctx, inst)
}

// Restart stops then starts the service. Only services declaring
// CapRestartable may be restarted.
func (s *Supervisor) Restart(ctx context.Context, h Handle) error {
	if s.closed.Load() {
		return ErrClosed
	}
	inst, err := s.resolve(h)
	if err != nil {
		return err
	}
	if inst.def.Capabilities&CapRestartable == 0 {
		s.log.Warn().Str("service", inst.def.Name).Msg("restart refused: not restartable")
		return notRestartableError{name: inst.def.Name}
	}

	s.log.Info().Str("service", inst.def.Name).Msg("restarting service")
	if err := s.stopService(ctx, inst); err != nil && err != ErrNotRunning {
		return err
	}
	return s.startService(ctx, inst)
}

// startService runs the Registered/Stopped → Starting → Running transition.
// The registry lock is never held across a hook.
func (s *Supervisor) startService(ctx context.Context, inst *instance) error {
	s.mu.Lock()
	if inst.state == StateRunning {
		s.mu.Unlock()
		return nil
	}
	if err := s.checkDependenciesLocked(inst); err != nil {
		s.mu.Unlock()
		s.log.Error().Err(err).Str("service", inst.def.Name).Msg("dependencies not met")
		return err
	}
	old := inst.state
	s.setStateLocked(inst, StateStarting)
	inst.startTime = time.Now()
	s.mu.Unlock()

	s.log.Info().Str("service", inst.def.Name).Msg("starting service")
	s.postServiceEvent(EventStateChanged, ServiceEvent{
		Service: inst.def.Name, OldState: old, NewState: StateStarting,
	})

	if init := inst.def.Hooks.Init; init != nil {
		if err := init(ctx); err != nil {
			s.failStart(inst, err)
			return err
		}
	}
	if start := inst.def.Hooks.Start; start != nil {
		if err := start(ctx); err != nil {
			s.failStart(inst, err)
			return err
		}
	}

	s.mu.Lock()
	inst.startDuration = time.Since(inst.startTime)
	s.setStateLocked(inst, StateRunning)
	dur := inst.startDuration
	s.mu.Unlock()

	s.log.Info().Str("service", inst.def.Name).Dur("took", dur).Msg("service started")
	s.postServiceEvent(EventStateChanged, ServiceEvent{
		Service: inst.def.Name, OldState: StateStarting, NewState: StateRunning,
	})
	s.postServiceEvent(EventStarted, ServiceEvent{
		Service: inst.def.Name, OldState: old, NewState: StateRunning,
	})
	return nil
}

func (s *Supervisor) failStart(inst *instance, hookErr error) {
	s.mu.Lock()
	s.setStateLocked(inst, StateError)
	s.mu.Unlock()
	s.log.Error().Err(hookErr).Str("service", inst.def.Name).Msg("service start failed")
	s.postServiceEvent(EventStateChanged, ServiceEvent{
		Service: inst.def.Name, OldState: StateStarting, NewState: StateError,
		Error: hookErr.Error(),
	})
}

// stopService runs the Running → Stopping → Stopped transition.
func (s *Supervisor) stopService(ctx context.Context, inst *instance) error {
	s.mu.Lock()
	switch inst.state {
	case StateStopped, StateRegistered:
		s.mu.Unlock()
		return nil
	case StateRunning:
	default:
		s.mu.Unlock()
		return ErrNotRunning
	}
	old := inst.state
	s.setStateLocked(inst, StateStopping)
	s.mu.Unlock()

	s.log.Info().Str("service", inst.def.Name).Msg("stopping service")
	s.postServiceEvent(EventStateChanged, ServiceEvent{
		Service: inst.def.Name, OldState: old, NewState: StateStopping,
	})

	var hookErr error
	if stop := inst.def.Hooks.Stop; stop != nil {
		if hookErr = stop(ctx); hookErr != nil {
			// the transition still completes; the error rides on the event
			s.log.Warn().Err(hookErr).Str("service", inst.def.Name).Msg("stop hook returned error")
		}
	}

	s.mu.Lock()
	s.setStateLocked(inst, StateStopped)
	s.mu.Unlock()

	s.log.Info().Str("service", inst.def.Name).Msg("service stopped")
	errStr := ""
	if hookErr != nil {
		errStr = hookErr.Error()
	}
	s.postServiceEvent(EventStateChanged, ServiceEvent{
		Service: inst.def.Name, OldState: StateStopping, NewState: StateStopped, Error: errStr,
	})
	s.postServiceEvent(EventStopped, ServiceEvent{
		Service: inst.def.Name, OldState: old, NewState: StateStopped, Error: errStr,
	})
	return nil
}

// setStateLocked advances the state machine and wakes waiters. Caller holds
// s.mu; events are posted by the caller after releasing it.
func (s *Supervisor) setStateLocked(inst *instance, st State) {
	if inst.state == st {
		return
	}
	inst.state = st
	close(inst.stateCh)
	inst.stateCh = make(chan struct{})
}

// checkDependenciesLocked verifies every declared dependency exists and is
// Running. Direct dependencies only; services within a phase start in
// registration order.
// TODO: topologically sort services within a phase instead of relying on
// registration order.
func (s *Supervisor) checkDependenciesLocked(inst *instance) error {
	for _, name := range inst.def.DependsOn {
		dep := s.lookupLocked(name)
		if dep == nil {
			return dependencyError{service: inst.def.Name, dep: name, reason: "not registered"}
		}
		if dep.state != StateRunning {
			return dependencyError{service: inst.def.Name, dep: name, reason: "not running"}
		}
	}
	return nil
}
