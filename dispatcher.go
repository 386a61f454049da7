package evdisp

import (
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/rcrowley/go-metrics"
)

// Dispatcher is a single-threaded, non-blocking I/O event loop. All of its
// methods except Interrupt and Terminate must be called from the same
// goroutine that runs Loop/Dispatch. It runs over any Backend rather than
// one hardwired multiplexer.
type Dispatcher struct {
	opts    *Options
	backend Backend
	timers  *timerHeap

	reads  *dirQueues
	writes *dirQueues

	conns     map[ConnID]Connection
	listeners map[ConnID]*listenerReg

	terminated   atomic.Bool
	metrics      *metricsSet
	pendingFatal []error
}

// AcceptCallback receives one freshly accepted, already-nonblocking fd.
type AcceptCallback func(fd int)

type listenerReg struct {
	ln       *Listener
	onAccept AcceptCallback
}

// NewDispatcher constructs a Dispatcher with the platform's default
// Backend (epoll on Linux, poll(2) elsewhere).
func NewDispatcher(opts ...Option) (*Dispatcher, error) {
	o := buildOptions(opts...)
	backend, err := newDefaultBackend(o.evReadyNum)
	if err != nil {
		return nil, fmt.Errorf("evdisp: new backend: %w", err)
	}
	return newDispatcherWithBackend(backend, o), nil
}

// NewDispatcherWithBackend builds a Dispatcher over a caller-supplied
// Backend, bypassing platform autodetection. Mainly useful for tests that
// want a fake or instrumented Backend rather than a real epoll/poll one.
func NewDispatcherWithBackend(backend Backend, opts ...Option) *Dispatcher {
	return newDispatcherWithBackend(backend, buildOptions(opts...))
}

func newDispatcherWithBackend(backend Backend, o *Options) *Dispatcher {
	d := &Dispatcher{
		opts:      o,
		backend:   backend,
		timers:    newTimerHeap(o.timerHeapInitCap),
		reads:     newDirQueues(),
		writes:    newDirQueues(),
		conns:     make(map[ConnID]Connection),
		listeners: make(map[ConnID]*listenerReg),
	}
	d.metrics = newMetricsSet(d)
	return d
}

// Register makes conn known to the dispatcher so that later AsyncRead/
// AsyncWrite calls can arm its fd with the backend. conn must implement
// Fder. Calling Register twice for the same ConnID replaces the tracked
// Connection value (used when a Connection wrapper is recreated around
// the same fd, which never happens for netConn but may for callers'
// Connection implementations).
func (d *Dispatcher) Register(conn Connection) error {
	if _, ok := conn.(Fder); !ok {
		return errors.New("evdisp: Register: connection does not implement Fder")
	}
	d.conns[conn.ID()] = conn
	d.metrics.registeredConns.Inc(1)
	return nil
}

// RegisterListener arms ln for accept readiness: whenever it becomes
// readable, onAccept is invoked once per fd drained from its backlog
// (Listener.Accept already bounds how many are drained per readiness
// event). The caller is responsible for turning each fd into a
// Connection and calling Register on it.
func (d *Dispatcher) RegisterListener(ln *Listener, onAccept AcceptCallback) error {
	cid := ConnID(nextConnID.Add(1))
	d.listeners[cid] = &listenerReg{ln: ln, onAccept: onAccept}
	return d.backend.AddRead(ln.Fd(), cid)
}

// Cancel deregisters conn from the backend and synthesizes a completion
// for every record still queued in either direction, in FIFO order within
// each direction (reads first, then writes, matching the order a real
// close would surface them: pending reads never got their data, pending
// writes never got confirmation).
func (d *Dispatcher) Cancel(conn Connection) {
	cid := conn.ID()
	pending := append(d.reads.drain(cid), d.writes.drain(cid)...)
	if fdr, ok := conn.(Fder); ok {
		d.backend.Cancel(fdr.Fd())
	}
	delete(d.conns, cid)
	d.metrics.registeredConns.Dec(1)

	abortAll(pending, conn)
}

// Metrics returns this Dispatcher's private go-metrics Registry, so an
// embedder can report its instruments however it already reports its
// own (an expvar handler, metrics.Log, a StatsD/Graphite writer).
func (d *Dispatcher) Metrics() metrics.Registry {
	return d.metrics.registry
}

// HasAsyncWrites reports whether any connection has a pending AsyncWrite/
// AsyncWriteBlock record. Useful for graceful-shutdown loops that want to
// drain outstanding writes before exiting.
func (d *Dispatcher) HasAsyncWrites() bool {
	return d.writes.pending() > 0
}

// AddTimer arms a callback to fire once after delay elapses, measured from
// the call to AddTimer. If cb returns true, it is rearmed at its previous
// expiry plus interval rather than at delay from the refire time, so a
// repeating timer's period doesn't drift under load. interval is ignored
// if cb always returns false.
func (d *Dispatcher) AddTimer(delay, interval time.Duration, cb TimerCallback) {
	d.timers.Push(time.Now().Add(delay), interval, cb)
	d.metrics.armedTimers.Inc(1)
}

// Interrupt wakes a blocked or future Wait call without terminating the
// loop, so newly-queued work (e.g. a timer armed from another goroutine
// via a channel handoff) gets serviced promptly. Safe to call from any
// goroutine.
func (d *Dispatcher) Interrupt() error {
	return d.backend.Interrupt()
}

// Terminate requests that Loop return after the current iteration. Safe
// to call from any goroutine.
func (d *Dispatcher) Terminate() {
	d.terminated.Store(true)
	d.backend.Interrupt()
}

// Close releases the backend's resources. Call after Loop returns.
func (d *Dispatcher) Close() error {
	return d.backend.Close()
}

func (d *Dispatcher) enqueueRead(conn Connection, rec record) {
	d.conns[conn.ID()] = conn
	isHead := d.reads.push(conn.ID(), rec)
	if isHead {
		d.driveDirect(conn, d.reads, rec, d.backend.AddRead, d.backend.DelRead)
	}
}

func (d *Dispatcher) enqueueWrite(conn Connection, rec record) {
	d.conns[conn.ID()] = conn
	isHead := d.writes.push(conn.ID(), rec)
	if isHead {
		d.driveDirect(conn, d.writes, rec, d.backend.AddWrite, d.backend.DelWrite)
	}
}

// driveDirect steps rec (already known to be at the head of its queue),
// optimistically assuming the fd may already be ready — most non-blocking
// sockets have buffer room or buffered data available, so this avoids a
// round trip through the backend for the common case. If the record
// doesn't finish, it arms the backend for future readiness. Called both
// at submission time (a brand-new head record) and from the loop when a
// readiness event fires for an already-armed record.
//
// Both backends are level-triggered, so once a connection's queue in this
// direction drains, the direction must be explicitly disarmed (del) —
// otherwise a still-readable/writable fd would keep reporting ready with
// no record to service it, spinning the loop.
func (d *Dispatcher) driveDirect(conn Connection, q *dirQueues, rec record, arm func(fd int, cid ConnID) error, del func(fd int) error) {
	fdr, ok := conn.(Fder)
	if !ok {
		return
	}
	cid := conn.ID()
	for {
		done, err := rec.step(conn)
		if err != nil {
			if next := q.advance(cid); next == nil {
				if derr := del(fdr.Fd()); derr != nil {
					d.reportFatal(derr)
				}
			}
			d.reportFatal(err)
			return
		}
		if !done {
			if err := arm(fdr.Fd(), cid); err != nil {
				d.reportFatal(err)
			}
			return
		}
		next := q.advance(cid)
		if next == nil {
			if err := del(fdr.Fd()); err != nil {
				d.reportFatal(err)
			}
			return
		}
		rec = next
	}
}

// reportFatal accumulates a fatal error raised while stepping a record, so
// Dispatch can surface it to its caller once the current round of events
// has finished being processed.
func (d *Dispatcher) reportFatal(err error) {
	d.pendingFatal = append(d.pendingFatal, err)
}
