package supervisor

import (
	"errors"
	"strconv"
)

var (
	// ErrClosed is returned by operations on a supervisor that has been torn
	// down (or by a second Close).
	ErrClosed = errors.New("supervisor closed")

	// ErrTimeout signals a bounded state wait expired.
	ErrTimeout = errors.New("wait timed out")

	// ErrNilDefinition is returned by Register for a definition without a name.
	ErrNilDefinition = errors.New("service definition has no name")

	// ErrInvalidPhase is returned for a phase outside the fixed tier set.
	ErrInvalidPhase = errors.New("invalid startup phase")

	// ErrNotRunning is returned by Stop when the service is in a state the
	// stop transition is not legal from.
	ErrNotRunning = errors.New("service is not running")
)

// notFoundError signals an unknown service handle or name.
type notFoundError struct{ name string }

func (e notFoundError) Error() string { return "service not found: " + e.name }

// IsNotFound reports whether err indicates an unknown service.
func IsNotFound(err error) bool {
	var e notFoundError
	return errors.As(err, &e)
}

// alreadyRegisteredError signals a duplicate service name.
type alreadyRegisteredError struct{ name string }

func (e alreadyRegisteredError) Error() string { return "service already registered: " + e.name }

// IsAlreadyRegistered reports whether err indicates a duplicate name.
func IsAlreadyRegistered(err error) bool {
	var e alreadyRegisteredError
	return errors.As(err, &e)
}

// dependencyError signals a start attempt with an unmet dependency.
type dependencyError struct {
	service string
	dep     string
	reason  string
}

func (e dependencyError) Error() string {
	return "service " + e.service + ": dependency " + e.dep + " " + e.reason
}

// IsDependencyNotReady reports whether err indicates a missing or
// not-running dependency.
func IsDependencyNotReady(err error) bool {
	var e dependencyError
	return errors.As(err, &e)
}

// notRestartableError signals Restart on a service without CapRestartable.
type notRestartableError struct{ name string }

func (e notRestartableError) Error() string { return "service not restartable: " + e.name }

// IsNotRestartable reports whether err indicates a missing restart capability.
func IsNotRestartable(err error) bool {
	var e notRestartableError
	return errors.As(err, &e)
}

// limitError signals the service or dependency ceiling was reached.
type limitError struct {
	what string
	max  int
}

func (e limitError) Error() string {
	return "too many " + e.what + " (max " + strconv.Itoa(e.max) + ")"
}

// IsLimit reports whether err indicates a capacity ceiling.
func IsLimit(err error) bool {
	var e limitError
	return errors.As(err, &e)
}
