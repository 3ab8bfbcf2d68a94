package eventbus

import (
	"errors"
	"strconv"
)

var (
	// ErrClosed is returned by every operation on a bus that has been torn
	// down (or by a second Close).
	ErrClosed = errors.New("event bus closed")

	// ErrPostTimeout signals the bounded enqueue wait expired with the queue
	// still full. The event was dropped and counted.
	ErrPostTimeout = errors.New("event queue full: post timed out")

	// ErrQueueFull is the non-blocking variant of ErrPostTimeout, returned by
	// TryPost when no queue slot is immediately free.
	ErrQueueFull = errors.New("event queue full")

	// ErrNilHandler is returned by Register when the callback is nil.
	ErrNilHandler = errors.New("handler callback is nil")

	// ErrHandlerNotFound is returned by Unregister for a handle that is not
	// (or no longer) registered.
	ErrHandlerNotFound = errors.New("handler not found")

	// ErrTransactionDone is returned when a transaction is used after its
	// terminal Commit or Rollback.
	ErrTransactionDone = errors.New("transaction already committed or rolled back")
)

// payloadTooLargeError signals an event payload above the configured maximum.
type payloadTooLargeError struct {
	size int
	max  int
}

func (e payloadTooLargeError) Error() string {
	return "event payload too large: " + strconv.Itoa(e.size) + " > " + strconv.Itoa(e.max)
}

// IsPayloadTooLarge reports whether err indicates an oversized payload.
func IsPayloadTooLarge(err error) bool {
	var e payloadTooLargeError
	return errors.As(err, &e)
}

// tooManyHandlersError signals the registration ceiling was reached.
type tooManyHandlersError struct{ max int }

func (e tooManyHandlersError) Error() string {
	return "handler limit reached: " + strconv.Itoa(e.max)
}

// IsTooManyHandlers reports whether err indicates the handler ceiling.
func IsTooManyHandlers(err error) bool {
	var e tooManyHandlersError
	return errors.As(err, &e)
}
