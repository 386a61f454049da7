package evdisp

import "time"

// Options configures a Dispatcher. Constructed via functional options
// rather than a struct literal, so future fields can default sensibly
// without breaking existing callers.
type Options struct {
	// evReadyNum bounds how many ready events the epoll backend's Wait
	// returns per call; the poll(2) backend ignores it. Larger batches amortize the syscall over more work but
	// delay servicing events discovered late in a big batch.
	evReadyNum int

	// timerHeapInitCap sizes the timer heap's backing array up front, to
	// avoid reallocation churn for services that arm most of their timers
	// at startup.
	timerHeapInitCap int

	// idleWaitMax bounds how long a Wait call blocks when no timer is
	// armed, so Interrupt/Terminate requests are noticed even without a
	// wakeup write (belt-and-suspenders alongside the self-pipe/eventfd).
	idleWaitMax time.Duration

	// minWait floors the computed backend wait timeout, so a timer that
	// is already slightly overdue doesn't cause a zero or negative
	// timeout that some backends treat as "poll and return immediately
	// forever" under repeated near-miss expiries.
	minWait time.Duration

	// listenBacklog and reuseAddr configure listener helpers (cmd/evechod
	// and any other Connection acceptor built on this package).
	listenBacklog int
	reuseAddr     bool

	// recvBuffSize/sendBuffSize set SO_RCVBUF/SO_SNDBUF on accepted
	// sockets when nonzero; zero leaves the OS default.
	recvBuffSize int
	sendBuffSize int
}

type Option func(*Options)

func defaultOptions() *Options {
	return &Options{
		evReadyNum:       256,
		timerHeapInitCap: 16,
		idleWaitMax:      10 * time.Second,
		minWait:          time.Millisecond,
		listenBacklog:    1024,
		reuseAddr:        true,
	}
}

func buildOptions(optL ...Option) *Options {
	o := defaultOptions()
	for _, opt := range optL {
		opt(o)
	}
	return o
}

// EvReadyNum caps how many ready events a single epoll backend Wait call
// drains. It has no effect on the poll(2) backend.
func EvReadyNum(n int) Option {
	return func(o *Options) {
		if n > 0 {
			o.evReadyNum = n
		}
	}
}

// TimerHeapInitCap sizes the timer heap's initial backing array.
func TimerHeapInitCap(n int) Option {
	return func(o *Options) {
		if n > 0 {
			o.timerHeapInitCap = n
		}
	}
}

// IdleWaitMax bounds how long the loop blocks in the backend when no timer
// is armed.
func IdleWaitMax(d time.Duration) Option {
	return func(o *Options) {
		if d > 0 {
			o.idleWaitMax = d
		}
	}
}

// MinWait floors the computed backend wait timeout.
func MinWait(d time.Duration) Option {
	return func(o *Options) {
		if d > 0 {
			o.minWait = d
		}
	}
}

// ReuseAddr sets SO_REUSEADDR on listener sockets created via this
// package's listener helpers.
func ReuseAddr(v bool) Option {
	return func(o *Options) {
		o.reuseAddr = v
	}
}

// ListenBacklog sets the backlog passed to listen(2).
func ListenBacklog(n int) Option {
	return func(o *Options) {
		if n > 0 {
			o.listenBacklog = n
		}
	}
}

// RecvBuffSize sets SO_RCVBUF on listener sockets created by NewListener
// and on the sockets they accept.
func RecvBuffSize(n int) Option {
	return func(o *Options) {
		o.recvBuffSize = n
	}
}

// SendBuffSize sets SO_SNDBUF on sockets accepted by a Listener.
func SendBuffSize(n int) Option {
	return func(o *Options) {
		o.sendBuffSize = n
	}
}
