package evdisp

import (
	"testing"
	"time"

	"github.com/rcrowley/go-metrics"
)

func TestMetricsSetTracksRegisteredConnections(t *testing.T) {
	d := NewDispatcherWithBackend(newFakeBackend())
	conn := &blockingConnection{id: 1, fd: 5}
	if err := d.Register(conn); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if got := d.metrics.registeredConns.Count(); got != 1 {
		t.Fatalf("registeredConns.Count() = %d, want 1", got)
	}
	d.Cancel(conn)
	if got := d.metrics.registeredConns.Count(); got != 0 {
		t.Fatalf("registeredConns.Count() = %d, want 0 after Cancel", got)
	}
}

func TestMetricsSetTracksArmedTimers(t *testing.T) {
	d := NewDispatcherWithBackend(newFakeBackend())
	before := d.metrics.armedTimers.Count()
	d.AddTimer(0, 0, func(now time.Time) bool { return false })
	if got := d.metrics.armedTimers.Count(); got != before+1 {
		t.Fatalf("armedTimers.Count() = %d, want %d", got, before+1)
	}
}

// TestMetricsSetArmedTimersDecrementsOnFire ensures armedTimers reflects the
// heap's live size rather than a running total of every timer ever armed:
// a one-shot timer that fires and isn't rescheduled must bring the count
// back down.
func TestMetricsSetArmedTimersDecrementsOnFire(t *testing.T) {
	d := NewDispatcherWithBackend(newFakeBackend())
	before := d.metrics.armedTimers.Count()
	d.AddTimer(-time.Millisecond, 0, func(now time.Time) bool { return false }) // already due
	if got := d.metrics.armedTimers.Count(); got != before+1 {
		t.Fatalf("armedTimers.Count() after AddTimer = %d, want %d", got, before+1)
	}
	if err := d.Dispatch(); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if got := d.metrics.armedTimers.Count(); got != before {
		t.Fatalf("armedTimers.Count() after firing = %d, want %d", got, before)
	}
}

// TestMetricsPendingGaugeClosureTracksQueueDepth exercises the same
// pending-count computation newMetricsSet's FunctionalGauge closures wrap.
func TestMetricsPendingGaugeClosureTracksQueueDepth(t *testing.T) {
	backend := newFakeBackend()
	d := NewDispatcherWithBackend(backend)
	conn := &blockingConnection{id: 1, fd: 9}
	if err := d.Register(conn); err != nil {
		t.Fatalf("Register: %v", err)
	}
	d.AsyncRead(conn, 4, func(Connection, Buffer) {})

	if got := d.reads.pending(); got != 1 {
		t.Fatalf("reads.pending() = %d, want 1", got)
	}
	d.Cancel(conn)
	if got := d.reads.pending(); got != 0 {
		t.Fatalf("reads.pending() = %d, want 0 after Cancel", got)
	}
}

// TestMetricsSetPerDispatcherRegistryDoesNotAlias ensures two Dispatchers
// constructed in the same process each get their own go-metrics Registry:
// bumping one's registeredConns must never move the other's.
func TestMetricsSetPerDispatcherRegistryDoesNotAlias(t *testing.T) {
	d1 := NewDispatcherWithBackend(newFakeBackend())
	d2 := NewDispatcherWithBackend(newFakeBackend())

	if d1.Metrics() == d2.Metrics() {
		t.Fatalf("two Dispatchers share a go-metrics Registry, want distinct ones")
	}

	conn := &blockingConnection{id: 1, fd: 5}
	if err := d1.Register(conn); err != nil {
		t.Fatalf("Register: %v", err)
	}

	got1 := d1.Metrics().Get("evdisp.connections.registered").(metrics.Counter).Count()
	got2 := d2.Metrics().Get("evdisp.connections.registered").(metrics.Counter).Count()
	if got1 != 1 {
		t.Fatalf("d1 registeredConns = %d, want 1", got1)
	}
	if got2 != 0 {
		t.Fatalf("d2 registeredConns = %d, want 0 (registering on d1 must not affect d2)", got2)
	}
}
