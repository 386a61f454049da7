//go:build !linux

package evdisp

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sys/unix"
)

// pollBackend is the portable Backend, built on poll(2). Used on any
// platform without an epoll backend. O(n) in the number of registered
// fds per Wait call, unlike epollBackend's O(ready), which is the
// standard poll(2) tradeoff.
type pollState struct {
	conn   ConnID
	wantR  bool
	wantW  bool
}

type pollBackend struct {
	mu    sync.Mutex
	fds   map[int]*pollState
	rpipe int
	wpipe int
	armed atomic.Bool
}

func newDefaultBackend(evReadyNum int) (Backend, error) {
	return newPollBackend()
}

func newPollBackend() (*pollBackend, error) {
	var fds [2]int
	if err := unix.Pipe2(fds[:], unix.O_NONBLOCK|unix.O_CLOEXEC); err != nil {
		return nil, fmt.Errorf("evdisp: pipe2: %w", err)
	}
	return &pollBackend{
		fds:   make(map[int]*pollState),
		rpipe: fds[0],
		wpipe: fds[1],
	}, nil
}

func (b *pollBackend) state(fd int, connID ConnID) *pollState {
	st, ok := b.fds[fd]
	if !ok {
		st = &pollState{conn: connID}
		b.fds[fd] = st
	}
	return st
}

func (b *pollBackend) AddRead(fd int, connID ConnID) error {
	b.mu.Lock()
	b.state(fd, connID).wantR = true
	b.mu.Unlock()
	return nil
}

func (b *pollBackend) AddWrite(fd int, connID ConnID) error {
	b.mu.Lock()
	b.state(fd, connID).wantW = true
	b.mu.Unlock()
	return nil
}

// DelRead and DelWrite drop a single direction's interest, removing fd
// from the poll set entirely once neither direction wants it — poll(2) is
// level-triggered just like epoll, so a drained queue must stop asking
// for that direction's readiness or Wait would report it forever.
func (b *pollBackend) DelRead(fd int) error {
	b.mu.Lock()
	if st, ok := b.fds[fd]; ok {
		st.wantR = false
		if !st.wantW {
			delete(b.fds, fd)
		}
	}
	b.mu.Unlock()
	return nil
}

func (b *pollBackend) DelWrite(fd int) error {
	b.mu.Lock()
	if st, ok := b.fds[fd]; ok {
		st.wantW = false
		if !st.wantR {
			delete(b.fds, fd)
		}
	}
	b.mu.Unlock()
	return nil
}

func (b *pollBackend) Cancel(fd int) error {
	b.mu.Lock()
	delete(b.fds, fd)
	b.mu.Unlock()
	return nil
}

func (b *pollBackend) Wait(timeout time.Duration) ([]readyEvent, error) {
	b.mu.Lock()
	pfds := make([]unix.PollFd, 0, len(b.fds)+1)
	pfds = append(pfds, unix.PollFd{Fd: int32(b.rpipe), Events: unix.POLLIN})
	for fd, st := range b.fds {
		var events int16
		if st.wantR {
			events |= unix.POLLIN
		}
		if st.wantW {
			events |= unix.POLLOUT
		}
		pfds = append(pfds, unix.PollFd{Fd: int32(fd), Events: events})
	}
	conns := make(map[int]ConnID, len(b.fds))
	for fd, st := range b.fds {
		conns[fd] = st.conn
	}
	b.mu.Unlock()

	msec := -1
	if timeout >= 0 {
		msec = int(timeout / time.Millisecond)
	}
	n, err := unix.Poll(pfds, msec)
	if err != nil {
		if err == unix.EINTR {
			return nil, nil
		}
		return nil, fmt.Errorf("evdisp: poll: %w", err)
	}
	if n == 0 {
		return nil, nil
	}
	out := make([]readyEvent, 0, n)
	if pfds[0].Revents != 0 {
		b.drainWakeup()
	}
	for _, pfd := range pfds[1:] {
		if pfd.Revents == 0 {
			continue
		}
		connID, ok := conns[int(pfd.Fd)]
		if !ok {
			continue
		}
		if pfd.Revents&(unix.POLLHUP|unix.POLLERR|unix.POLLNVAL) != 0 {
			out = append(out, readyEvent{conn: connID, kind: readyClose})
			continue
		}
		if pfd.Revents&unix.POLLOUT != 0 {
			out = append(out, readyEvent{conn: connID, kind: readyWrite})
		}
		if pfd.Revents&unix.POLLIN != 0 {
			out = append(out, readyEvent{conn: connID, kind: readyRead})
		}
	}
	return out, nil
}

func (b *pollBackend) drainWakeup() {
	var tmp [64]byte
	for {
		n, err := unix.Read(b.rpipe, tmp[:])
		if n <= 0 || err != nil {
			break
		}
	}
	b.armed.Store(false)
}

func (b *pollBackend) Interrupt() error {
	if !b.armed.CompareAndSwap(false, true) {
		return nil
	}
	_, err := unix.Write(b.wpipe, []byte{1})
	if err == unix.EAGAIN {
		return nil
	}
	return err
}

func (b *pollBackend) Close() error {
	unix.Close(b.rpipe)
	return unix.Close(b.wpipe)
}
