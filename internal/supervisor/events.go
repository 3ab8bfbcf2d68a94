package supervisor

import (
	"encoding/json"
	"time"

	"tianshand/internal/eventbus"
)

// Service lifecycle event ids, posted under eventbus.BaseService.
const (
	EventPhaseComplete int32 = 0x0001
	EventAllStarted    int32 = 0x0002
	EventStarted       int32 = 0x0003
	EventStopped       int32 = 0x0004
	EventStateChanged  int32 = 0x0005
)

// ServiceEvent is the JSON payload of started/stopped/state-changed events.
type ServiceEvent struct {
	Service  string `json:"service"`
	OldState State  `json:"old_state"`
	NewState State  `json:"new_state"`
	Error    string `json:"error,omitempty"`
}

// PhaseEvent is the JSON payload of phase-complete events.
type PhaseEvent struct {
	Phase int    `json:"phase"`
	Name  string `json:"name"`
}

const eventPostTimeout = 100 * time.Millisecond

// postServiceEvent publishes a lifecycle notification. Delivery is
// best-effort: a full queue must not stall a state transition.
func (s *Supervisor) postServiceEvent(id int32, ev ServiceEvent) {
	payload, err := json.Marshal(ev)
	if err != nil {
		return
	}
	if err := s.bus.Post(eventbus.BaseService, id, payload, eventPostTimeout); err != nil {
		s.log.Debug().Err(err).Str("service", ev.Service).Msg("lifecycle event dropped")
	}
}

func (s *Supervisor) postPhaseEvent(phase Phase) {
	payload, err := json.Marshal(PhaseEvent{Phase: int(phase), Name: phase.String()})
	if err != nil {
		return
	}
	if err := s.bus.Post(eventbus.BaseService, EventPhaseComplete, payload, eventPostTimeout); err != nil {
		s.log.Debug().Err(err).Stringer("phase", phase).Msg("phase event dropped")
	}
}

func (s *Supervisor) postAllStarted() {
	if err := s.bus.Post(eventbus.BaseService, EventAllStarted, nil, eventPostTimeout); err != nil {
		s.log.Debug().Err(err).Msg("all-started event dropped")
	}
}
