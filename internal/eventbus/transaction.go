package eventbus

import (
	"sync"

	"github.com/google/uuid"
)

// Tx stages events without publishing them. It is owned by the goroutine
// that began it; exactly one of Commit or Rollback terminates it, and the
// terminal call is single-use.
type Tx struct {
	bus *Bus
	id  string

	mu     sync.Mutex
	staged []Event
	done   bool
}

// BeginTransaction starts a staged batch of events.
func (b *Bus) BeginTransaction() (*Tx, error) {
	if b.closed.Load() {
		return nil, ErrClosed
	}
	return &Tx{bus: b, id: uuid.NewString()}, nil
}

// ID returns the transaction id used for log correlation.
func (tx *Tx) ID() string { return tx.id }

// Post stages an event at normal priority. Nothing is visible on the bus
// until Commit.
func (tx *Tx) Post(base string, id int32, payload []byte) error {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	if tx.done {
		return ErrTransactionDone
	}
	ev, err := tx.bus.makeEvent(base, id, payload, PriorityNormal)
	if err != nil {
		return err
	}
	tx.staged = append(tx.staged, ev)
	return nil
}

// Commit flushes every staged event into the queue with the bus's default
// bounded wait, then releases the staging storage. Returns the first
// enqueue error, if any; remaining events are still attempted.
func (tx *Tx) Commit() error {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	if tx.done {
		return ErrTransactionDone
	}
	tx.done = true

	var firstErr error
	for _, ev := range tx.staged {
		if err := tx.bus.enqueue(ev, tx.bus.cfg.PostTimeout); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if firstErr != nil {
		tx.bus.log.Warn().Str("tx", tx.id).Err(firstErr).Msg("transaction commit dropped events")
	}
	tx.staged = nil
	return firstErr
}

// Rollback discards every staged event; none of them ever reach the queue.
func (tx *Tx) Rollback() error {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	if tx.done {
		return ErrTransactionDone
	}
	tx.done = true
	tx.staged = nil
	return nil
}

// Len reports the number of currently staged events.
func (tx *Tx) Len() int {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	return len(tx.staged)
}
