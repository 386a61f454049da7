package evdisp

import "github.com/rcrowley/go-metrics"

// metricsSet groups the runtime gauges/counters/histograms a Dispatcher
// updates as it runs. Each Dispatcher gets its own go-metrics Registry
// rather than sharing metrics.DefaultRegistry: go-metrics' GetOrRegister
// keeps whichever instrument was registered under a name first, so two
// Dispatchers sharing one registry would silently alias their gauges to
// the first one constructed. A process embedding this package that wants
// these in its own DefaultRegistry-backed exporter can copy them over with
// Registry.Each on the value returned by Dispatcher.Metrics.
type metricsSet struct {
	registry        metrics.Registry
	registeredConns metrics.Counter
	armedTimers     metrics.Counter
	loopIterations  metrics.Counter
	waitDuration    metrics.Histogram
}

func newMetricsSet(d *Dispatcher) *metricsSet {
	r := metrics.NewRegistry()
	ms := &metricsSet{
		registry:        r,
		registeredConns: metrics.NewRegisteredCounter("evdisp.connections.registered", r),
		armedTimers:     metrics.NewRegisteredCounter("evdisp.timers.armed", r),
		loopIterations:  metrics.NewRegisteredCounter("evdisp.loop.iterations", r),
		waitDuration: metrics.NewRegisteredHistogram("evdisp.loop.wait_ns", r,
			metrics.NewExpDecaySample(1028, 0.015)),
	}
	metrics.NewRegisteredFunctionalGauge("evdisp.reads.pending", r, func() int64 {
		return int64(d.reads.pending())
	})
	metrics.NewRegisteredFunctionalGauge("evdisp.writes.pending", r, func() int64 {
		return int64(d.writes.pending())
	})
	metrics.NewRegisteredFunctionalGauge("evdisp.bufpool.allocs", r, func() int64 {
		return int64(bufPoolAllocs.Load())
	})
	metrics.NewRegisteredFunctionalGauge("evdisp.bufpool.frees", r, func() int64 {
		return int64(bufPoolFrees.Load())
	})
	return ms
}
