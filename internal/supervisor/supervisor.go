// Package supervisor drives named services through a phased lifecycle:
// eight startup tiers brought up in order, each service moving through an
// init/start/stop state machine with declared dependencies, health checks,
// and lifecycle events published on the event bus.
//
// All operations execute synchronously in the calling goroutine; the
// supervisor has no worker of its own.
package supervisor

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"tianshand/internal/eventbus"
)

const (
	defaultMaxServices = 32

	// MaxDependencies caps the declared dependency list of one service.
	MaxDependencies = 8
)

// Hooks are the optional lifecycle callbacks of a service. Nil hooks are
// skipped. Hooks run in the goroutine that triggered the transition and are
// expected to return promptly.
type Hooks struct {
	Init   func(ctx context.Context) error
	Start  func(ctx context.Context) error
	Stop   func(ctx context.Context) error
	Health func() bool
}

// Definition is the caller-supplied, immutable service template. The
// supervisor stores its own copy at registration.
type Definition struct {
	Name         string
	Phase        Phase
	Capabilities Capability
	DependsOn    []string
	Hooks        Hooks
}

// instance wraps a definition copy plus mutable runtime state, owned by the
// supervisor from Register until Unregister.
type instance struct {
	def Definition
	seq uint64

	state           State
	startTime       time.Time
	startDuration   time.Duration
	lastHealthCheck time.Time
	healthy         bool
	api             any

	// stateCh is closed and replaced on every state change; waiters select
	// on a snapshot of it.
	stateCh chan struct{}
}

// svcSlot is one arena entry. Freed slots keep their generation counter so
// stale handles can never alias a later registration.
type svcSlot struct {
	used bool
	gen  uint32
	inst *instance
}

// Handle identifies a registered service.
type Handle struct {
	idx uint32
	gen uint32
}

// Config holds the supervisor sizing knobs.
type Config struct {
	// MaxServices caps concurrent registrations. Zero means the default.
	MaxServices int
}

// Supervisor owns the service registry. Construct with New.
type Supervisor struct {
	cfg Config
	bus *eventbus.Bus
	log zerolog.Logger

	mu     sync.Mutex
	slots  []svcSlot
	free   []uint32
	byName map[string]Handle
	count  int
	seq    uint64

	phaseTimes  [NumPhases]time.Duration
	startupTime time.Duration

	startupComplete atomic.Bool
	closed          atomic.Bool
}

// New builds a supervisor that publishes lifecycle events on bus.
func New(bus *eventbus.Bus, cfg Config, log zerolog.Logger) *Supervisor {
	if cfg.MaxServices <= 0 {
		cfg.MaxServices = defaultMaxServices
	}
	s := &Supervisor{
		cfg:    cfg,
		bus:    bus,
		log:    log,
		byName: make(map[string]Handle),
	}
	s.log.Info().Int("max_services", cfg.MaxServices).Msg("service supervisor started")
	return s
}

// Close stops every running service (descending phase order) and releases
// the registry. A second Close fails with ErrClosed.
func (s *Supervisor) Close(ctx context.Context) error {
	if !s.closed.CompareAndSwap(false, true) {
		return ErrClosed
	}
	s.stopAll(ctx)

	s.mu.Lock()
	s.slots = nil
	s.free = nil
	s.byName = map[string]Handle{}
	s.count = 0
	s.mu.Unlock()

	s.log.Info().Msg("service supervisor stopped")
	return nil
}

// Register stores a copy of def with fresh runtime state (Registered,
// healthy). Duplicate names and the service ceiling are rejected.
func (s *Supervisor) Register(def Definition) (Handle, error) {
	if def.Name == "" {
		return Handle{}, ErrNilDefinition
	}
	if !def.Phase.Valid() {
		return Handle{}, ErrInvalidPhase
	}
	if len(def.DependsOn) > MaxDependencies {
		return Handle{}, limitError{what: "dependencies", max: MaxDependencies}
	}
	if s.closed.Load() {
		return Handle{}, ErrClosed
	}

	// store our own copy; the dependency slice is cloned so later caller
	// mutation cannot leak in
	inst := &instance{
		def:     def,
		state:   StateRegistered,
		healthy: true,
		stateCh: make(chan struct{}),
	}
	inst.def.DependsOn = append([]string(nil), def.DependsOn...)

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, dup := s.byName[def.Name]; dup {
		return Handle{}, alreadyRegisteredError{name: def.Name}
	}
	if s.count >= s.cfg.MaxServices {
		return Handle{}, limitError{what: "services", max: s.cfg.MaxServices}
	}

	var idx uint32
	if n := len(s.free); n > 0 {
		idx = s.free[n-1]
		s.free = s.free[:n-1]
	} else {
		s.slots = append(s.slots, svcSlot{})
		idx = uint32(len(s.slots) - 1)
	}

	s.seq++
	inst.seq = s.seq
	sl := &s.slots[idx]
	sl.used = true
	sl.inst = inst
	h := Handle{idx: idx, gen: sl.gen}
	s.byName[def.Name] = h
	s.count++

	s.log.Info().Str("service", def.Name).Stringer("phase", def.Phase).Msg("service registered")
	return h, nil
}

// Unregister removes the service. A running service is stopped first; a
// stop failure aborts the unregistration.
func (s *Supervisor) Unregister(ctx context.Context, h Handle) error {
	if s.closed.Load() {
		return ErrClosed
	}
	inst, err := s.resolve(h)
	if err != nil {
		return err
	}

	s.mu.Lock()
	running := inst.state == StateRunning
	s.mu.Unlock()
	if running {
		if err := s.stopService(ctx, inst); err != nil {
			return err
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if int(h.idx) >= len(s.slots) {
		return notFoundError{name: inst.def.Name}
	}
	sl := &s.slots[h.idx]
	if !sl.used || sl.gen != h.gen {
		return notFoundError{name: inst.def.Name}
	}
	sl.used = false
	sl.gen++
	sl.inst = nil
	s.free = append(s.free, h.idx)
	delete(s.byName, inst.def.Name)
	s.count--

	s.log.Info().Str("service", inst.def.Name).Msg("service unregistered")
	return nil
}

// Find returns the handle for a registered name.
func (s *Supervisor) Find(name string) (Handle, error) {
	if s.closed.Load() {
		return Handle{}, ErrClosed
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	h, ok := s.byName[name]
	if !ok {
		return Handle{}, notFoundError{name: name}
	}
	return h, nil
}

// Exists reports whether a service of that name is registered.
func (s *Supervisor) Exists(name string) bool {
	_, err := s.Find(name)
	return err == nil
}

// Count reports the number of registered services.
func (s *Supervisor) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.count
}

// resolve maps a handle to its live instance.
func (s *Supervisor) resolve(h Handle) (*instance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if int(h.idx) >= len(s.slots) {
		return nil, notFoundError{name: "<handle>"}
	}
	sl := &s.slots[h.idx]
	if !sl.used || sl.gen != h.gen {
		return nil, notFoundError{name: "<handle>"}
	}
	return sl.inst, nil
}

// lookupLocked finds an instance by name. Caller holds s.mu.
func (s *Supervisor) lookupLocked(name string) *instance {
	h, ok := s.byName[name]
	if !ok {
		return nil
	}
	sl := &s.slots[h.idx]
	if !sl.used {
		return nil
	}
	return sl.inst
}
