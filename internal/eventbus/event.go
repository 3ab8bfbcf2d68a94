package eventbus

import "time"

// Priority orders events for delivery filtering. Handlers registered with a
// minimum priority never see events below it.
type Priority uint8

const (
	PriorityLow Priority = iota
	PriorityNormal
	PriorityHigh
	PriorityCritical
)

func (p Priority) String() string {
	switch p {
	case PriorityLow:
		return "low"
	case PriorityNormal:
		return "normal"
	case PriorityHigh:
		return "high"
	case PriorityCritical:
		return "critical"
	}
	return "unknown"
}

// AnyBase subscribes a handler to every event base.
const AnyBase = "*"

// AnyID subscribes a handler to every event id within its base.
const AnyID int32 = -1

// Event is the unit of communication on the bus. The payload is copied at
// post time and handed to handlers as a read-only view; handlers must not
// retain or mutate it past the callback.
type Event struct {
	Base      string
	ID        int32
	Payload   []byte
	Priority  Priority
	Timestamp time.Time
}

// HandlerFunc receives matching events on the dispatch goroutine (or inline
// for PostSync). Handlers are expected to return promptly; delivery is
// serialized.
type HandlerFunc func(Event)

// Predefined event bases. Collaborating subsystems post and subscribe under
// these namespaces; ids are scoped per base.
const (
	BaseSystem  = "system"
	BaseConfig  = "config"
	BaseService = "service"
	BaseNetwork = "network"
	BaseLED     = "led"
	BasePower   = "power"
	BaseStorage = "storage"
	BaseDevMon  = "devmon"
	BaseOTA     = "ota"
	BaseUser    = "user"
)

// System event ids.
const (
	SystemStarted   int32 = 0x0001
	SystemShutdown  int32 = 0x0002
	SystemError     int32 = 0x0003
	SystemWarning   int32 = 0x0004
	SystemLowMemory int32 = 0x0005
)

// Network event ids.
const (
	NetworkEthConnected     int32 = 0x0101
	NetworkEthDisconnected  int32 = 0x0102
	NetworkWifiConnected    int32 = 0x0103
	NetworkWifiDisconnected int32 = 0x0104
	NetworkGotIP            int32 = 0x0105
	NetworkLostIP           int32 = 0x0106
	NetworkDHCPClientJoined int32 = 0x0107
)
