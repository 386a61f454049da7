package evdisp

import "time"

// readyKind classifies one readiness notification returned by a Backend's
// Wait call.
type readyKind int

const (
	readyRead readyKind = iota
	readyWrite
	readyClose // peer hangup/error observed directly by the backend (EPOLLHUP/EPOLLERR)
)

// readyEvent pairs a registered connection with the kind of readiness the
// backend observed for it. A single Wait call can return multiple events
// for the same connection (e.g. both readyRead and readyWrite).
type readyEvent struct {
	conn ConnID
	kind readyKind
}

// Backend is the pluggable readiness-multiplexing contract. Exactly one
// implementation backs a given Dispatcher; which one is chosen at
// NewDispatcher time based on platform and caller preference.
//
// AddRead/AddWrite/Cancel/Wait split registration from the run loop as an
// explicit interface so a portable poll(2)-based backend can stand in when
// epoll isn't available.
type Backend interface {
	// AddRead arms fd for read readiness, associating it with connID.
	AddRead(fd int, connID ConnID) error
	// AddWrite arms fd for write readiness, associating it with connID.
	// A backend may share one registration slot per fd across both
	// directions (epoll does); AddRead and AddWrite compose rather than
	// overwrite each other.
	AddWrite(fd int, connID ConnID) error
	// DelRead stops watching fd for read readiness, leaving any armed
	// write interest untouched. A no-op if fd isn't currently armed for
	// reads. Callers must disarm a direction once its queue drains — both
	// backends are level-triggered, so a socket that's almost always
	// readable/writable would otherwise report ready forever and spin the
	// loop.
	DelRead(fd int) error
	// DelWrite is the write-direction counterpart of DelRead.
	DelWrite(fd int) error
	// Cancel deregisters fd entirely, for both directions.
	Cancel(fd int) error
	// Wait blocks up to timeout (or indefinitely if timeout < 0) and
	// returns whatever readiness events it observed, or an empty slice on
	// timeout. It returns early if Interrupt was called concurrently.
	Wait(timeout time.Duration) ([]readyEvent, error)
	// Interrupt wakes a concurrent or future Wait call. Safe to call from
	// any goroutine.
	Interrupt() error
	// Close releases backend resources. The backend must not be used
	// afterward.
	Close() error
}
