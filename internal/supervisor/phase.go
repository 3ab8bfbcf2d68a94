package supervisor

// Phase is a startup tier. StartAll brings phases up in ascending order and
// StopAll tears them down in descending order.
type Phase int

const (
	PhasePlatform Phase = iota
	PhaseCore
	PhaseHal
	PhaseDriver
	PhaseNetwork
	PhaseSecurity
	PhaseService
	PhaseUI

	// NumPhases is the number of startup tiers.
	NumPhases
)

var phaseNames = [NumPhases]string{
	"platform",
	"core",
	"hal",
	"driver",
	"network",
	"security",
	"service",
	"ui",
}

func (p Phase) String() string {
	if p < 0 || p >= NumPhases {
		return "unknown"
	}
	return phaseNames[p]
}

// Valid reports whether p names one of the fixed startup tiers.
func (p Phase) Valid() bool { return p >= 0 && p < NumPhases }

// State is a service lifecycle state. Transitions follow
// Registered → Starting → Running → Stopping → Stopped, with Error reachable
// from Starting or Stopping on callback failure.
type State string

const (
	StateUnregistered State = "unregistered"
	StateRegistered   State = "registered"
	StateStarting     State = "starting"
	StateRunning      State = "running"
	StateStopping     State = "stopping"
	StateStopped      State = "stopped"
	StateError        State = "error"
)

// Capability flags declared on a service definition.
type Capability uint32

const (
	// CapRestartable permits Restart (stop-then-start) on the service.
	CapRestartable Capability = 1 << iota
)
