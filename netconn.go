package evdisp

import (
	"fmt"
	"sync/atomic"
	"syscall"

	"github.com/oxlab/evdisp/netfd"
)

var nextConnID atomic.Int64

// netConn is a Connection over a nonblocking TCP socket fd. It's the
// concrete implementation the dispatcher exercises in its own tests and
// in cmd/evechod; embedders may supply any other Connection — the
// external Connection contract is deliberately narrow (RecvOne/SendOne/
// ID/Valid/String) so a mock or an in-memory pipe works just as well.
type netConn struct {
	fd    int
	id    ConnID
	valid atomic.Bool
}

// NewNetConn wraps an already-nonblocking, already-connected fd (as
// produced by Listener.Accept) in a Connection.
func NewNetConn(fd int) Connection {
	return newNetConn(fd)
}

// newNetConn wraps an already-nonblocking, already-connected fd.
func newNetConn(fd int) *netConn {
	c := &netConn{fd: fd, id: ConnID(nextConnID.Add(1))}
	c.valid.Store(true)
	return c
}

func (c *netConn) ID() ConnID { return c.id }
func (c *netConn) Fd() int    { return c.fd }

func (c *netConn) Valid() bool { return c.valid.Load() }

func (c *netConn) String() string {
	if !c.Valid() {
		return fmt.Sprintf("conn#%d(closed)", c.id)
	}
	return fmt.Sprintf("conn#%d(%s->%s)", c.id, netfd.LocalAddr(c.fd), netfd.RemoteAddr(c.fd))
}

func (c *netConn) RecvOne(buf []byte) (int, IOStatus, error) {
	n, err := netfd.Read(c.fd, buf)
	status, outErr := classify(n, err)
	if n < 0 {
		n = 0 // syscall reports -1 on error; the Connection contract wants 0
	}
	return n, status, outErr
}

func (c *netConn) SendOne(buf []byte) (int, IOStatus, error) {
	n, err := netfd.Write(c.fd, buf)
	status, outErr := classify(n, err)
	if n < 0 {
		n = 0 // syscall reports -1 on error; the Connection contract wants 0
	}
	return n, status, outErr
}

// Close releases the underlying fd. Idempotent.
func (c *netConn) Close() error {
	if !c.valid.CompareAndSwap(true, false) {
		return nil
	}
	return netfd.Close(c.fd)
}

func setNonblockingTCP(fd int, opts *Options) error {
	if err := syscall.SetNonblock(fd, true); err != nil {
		return fmt.Errorf("evdisp: set nonblocking: %w", err)
	}
	if opts.recvBuffSize > 0 {
		if err := syscall.SetsockoptInt(fd, syscall.SOL_SOCKET, syscall.SO_RCVBUF, opts.recvBuffSize); err != nil {
			return fmt.Errorf("evdisp: set SO_RCVBUF: %w", err)
		}
	}
	if opts.sendBuffSize > 0 {
		if err := netfd.SetSendBuffSize(fd, opts.sendBuffSize); err != nil {
			return err
		}
	}
	if err := netfd.SetNoDelay(fd, 1); err != nil {
		return err
	}
	return nil
}
