package evdisp

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"syscall"
)

// Listener wraps a nonblocking TCP listening socket and knows how to drain
// pending connections from a single accept-ready notification.
//
// bind/listen/accept4, bounded to accept up to backlog/2 connections per
// readiness notification so one very busy listener can't starve every
// other registered fd. Accept hands back plain fds — wiring an accepted
// fd into a Connection and registering it with a Dispatcher is the
// caller's job, not the listener's.
type Listener struct {
	fd          int
	addr        string
	maxPerReady int
	opts        *Options
}

// NewListener binds and listens on addr ("host:port" or ":port").
func NewListener(addr string, opts ...Option) (*Listener, error) {
	o := buildOptions(opts...)

	fd, err := syscall.Socket(syscall.AF_INET, syscall.SOCK_STREAM, 0)
	if err != nil {
		return nil, fmt.Errorf("evdisp: socket: %w", err)
	}
	if o.reuseAddr {
		if err := syscall.SetsockoptInt(fd, syscall.SOL_SOCKET, syscall.SO_REUSEADDR, 1); err != nil {
			syscall.Close(fd)
			return nil, fmt.Errorf("evdisp: SO_REUSEADDR: %w", err)
		}
	}
	if err := syscall.SetNonblock(fd, true); err != nil {
		syscall.Close(fd)
		return nil, fmt.Errorf("evdisp: set nonblocking: %w", err)
	}
	if o.recvBuffSize > 0 {
		if err := syscall.SetsockoptInt(fd, syscall.SOL_SOCKET, syscall.SO_RCVBUF, o.recvBuffSize); err != nil {
			syscall.Close(fd)
			return nil, fmt.Errorf("evdisp: SO_RCVBUF: %w", err)
		}
	}

	sa, err := parseInet4Addr(addr)
	if err != nil {
		syscall.Close(fd)
		return nil, err
	}
	if err := syscall.Bind(fd, sa); err != nil {
		syscall.Close(fd)
		return nil, fmt.Errorf("evdisp: bind: %w", err)
	}
	if err := syscall.Listen(fd, o.listenBacklog); err != nil {
		syscall.Close(fd)
		return nil, fmt.Errorf("evdisp: listen: %w", err)
	}

	maxPerReady := o.listenBacklog / 2
	if maxPerReady < 1 {
		maxPerReady = 1
	}
	return &Listener{fd: fd, addr: addr, maxPerReady: maxPerReady, opts: o}, nil
}

func parseInet4Addr(addr string) (*syscall.SockaddrInet4, error) {
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return nil, fmt.Errorf("evdisp: address %q invalid: %w", addr, err)
	}
	if host == "" {
		host = "0.0.0.0"
	}
	ip := net.ParseIP(host)
	if ip == nil || ip.To4() == nil {
		return nil, fmt.Errorf("evdisp: address %q is not a valid IPv4 host", addr)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil || port < 1 || port > 65535 {
		return nil, errors.New("evdisp: port must be in (0, 65536)")
	}
	sa := &syscall.SockaddrInet4{Port: port}
	copy(sa.Addr[:], ip.To4())
	return sa, nil
}

// Fd returns the listening socket's fd, for registration with a Backend.
func (l *Listener) Fd() int { return l.fd }

// Accept drains up to the listener's per-readiness accept bound, invoking
// onAccept for each accepted fd. accept4's SOCK_NONBLOCK already makes the
// fd nonblocking; Accept additionally applies the listener's socket
// options (TCP_NODELAY, SO_RCVBUF/SO_SNDBUF) to it via setNonblockingTCP
// before handing it to onAccept. Returns the number accepted.
func (l *Listener) Accept(onAccept func(fd int)) int {
	n := 0
	for ; n < l.maxPerReady; n++ {
		fd, _, err := syscall.Accept4(l.fd, syscall.SOCK_NONBLOCK|syscall.SOCK_CLOEXEC)
		if err != nil {
			break
		}
		if err := setNonblockingTCP(fd, l.opts); err != nil {
			Warning("evdisp: accepted fd %d: %s", fd, err)
			syscall.Close(fd)
			continue
		}
		onAccept(fd)
	}
	return n
}

func (l *Listener) Close() error {
	return syscall.Close(l.fd)
}
