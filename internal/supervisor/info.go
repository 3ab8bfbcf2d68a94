package supervisor

import (
	"sort"
	"time"
)

// Info is a point-in-time snapshot of one service.
type Info struct {
	Name            string
	Phase           Phase
	State           State
	Capabilities    Capability
	Healthy         bool
	StartTime       time.Time
	StartDuration   time.Duration
	LastHealthCheck time.Time
}

// Stats aggregates registry-wide counters.
type Stats struct {
	Total       int
	Running     int
	Stopped     int
	Errored     int
	StartupTime time.Duration
	PhaseTimes  [NumPhases]time.Duration
}

func (s *Supervisor) infoLocked(inst *instance) Info {
	return Info{
		Name:            inst.def.Name,
		Phase:           inst.def.Phase,
		State:           inst.state,
		Capabilities:    inst.def.Capabilities,
		Healthy:         inst.healthy,
		StartTime:       inst.startTime,
		StartDuration:   inst.startDuration,
		LastHealthCheck: inst.lastHealthCheck,
	}
}

// GetInfo returns a snapshot of the service behind h.
func (s *Supervisor) GetInfo(h Handle) (Info, error) {
	inst, err := s.resolve(h)
	if err != nil {
		return Info{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.infoLocked(inst), nil
}

// Enumerate visits every service in registration order with a point-in-time
// snapshot. The visitor returning false stops the walk early. The registry
// lock is not held during visits. Returns the number of services visited.
func (s *Supervisor) Enumerate(visit func(Info) bool) int {
	return s.enumerate(func(Info) bool { return true }, visit)
}

// EnumeratePhase is Enumerate restricted to one phase.
func (s *Supervisor) EnumeratePhase(phase Phase, visit func(Info) bool) int {
	return s.enumerate(func(in Info) bool { return in.Phase == phase }, visit)
}

func (s *Supervisor) enumerate(keep func(Info) bool, visit func(Info) bool) int {
	if visit == nil {
		return 0
	}

	type seqInfo struct {
		seq  uint64
		info Info
	}
	s.mu.Lock()
	snap := make([]seqInfo, 0, s.count)
	for i := range s.slots {
		sl := &s.slots[i]
		if !sl.used {
			continue
		}
		in := s.infoLocked(sl.inst)
		if keep(in) {
			snap = append(snap, seqInfo{seq: sl.inst.seq, info: in})
		}
	}
	s.mu.Unlock()
	sort.Slice(snap, func(i, j int) bool { return snap[i].seq < snap[j].seq })

	count := 0
	for _, it := range snap {
		if !visit(it.info) {
			return count
		}
		count++
	}
	return count
}

// GetStats recomputes the per-state counts and returns a copy of the
// aggregate counters.
func (s *Supervisor) GetStats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := Stats{
		Total:       s.count,
		StartupTime: s.startupTime,
		PhaseTimes:  s.phaseTimes,
	}
	for i := range s.slots {
		sl := &s.slots[i]
		if !sl.used {
			continue
		}
		switch sl.inst.state {
		case StateRunning:
			st.Running++
		case StateStopped, StateRegistered:
			st.Stopped++
		case StateError:
			st.Errored++
		}
	}
	return st
}

// Dump logs one line per service plus the aggregate counters.
func (s *Supervisor) Dump() {
	st := s.GetStats()
	s.log.Info().
		Int("total", st.Total).
		Int("running", st.Running).
		Int("stopped", st.Stopped).
		Int("error", st.Errored).
		Dur("startup_time", st.StartupTime).
		Msg("service status")

	s.Enumerate(func(in Info) bool {
		s.log.Info().
			Stringer("phase", in.Phase).
			Str("service", in.Name).
			Str("state", string(in.State)).
			Dur("start_duration", in.StartDuration).
			Bool("healthy", in.Healthy).
			Msg("service")
		return true
	})
}
