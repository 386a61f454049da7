package evdisp

import (
	"bytes"
	"syscall"
	"testing"

	"golang.org/x/sys/unix"
)

func TestNetConnSendRecvRoundTrip(t *testing.T) {
	a, b := socketpair(t)
	defer a.(interface{ Close() error }).Close()
	defer b.(interface{ Close() error }).Close()

	n, status, err := a.SendOne([]byte("ping"))
	if err != nil || status != IOOk || n != 4 {
		t.Fatalf("SendOne = (%d, %v, %v), want (4, IOOk, nil)", n, status, err)
	}

	buf := make([]byte, 4)
	n, status, err = b.RecvOne(buf)
	if err != nil || status != IOOk || n != 4 {
		t.Fatalf("RecvOne = (%d, %v, %v), want (4, IOOk, nil)", n, status, err)
	}
	if !bytes.Equal(buf, []byte("ping")) {
		t.Fatalf("got %q, want %q", buf, "ping")
	}
}

func TestNetConnRecvOneWouldBlockOnEmptySocket(t *testing.T) {
	a, _ := socketpair(t)
	defer a.(interface{ Close() error }).Close()

	buf := make([]byte, 4)
	n, status, err := a.RecvOne(buf)
	if status != IOWouldBlock || err != nil || n != 0 {
		t.Fatalf("RecvOne on an empty nonblocking socket = (%d, %v, %v), want (0, IOWouldBlock, nil)", n, status, err)
	}
}

func TestNetConnClosePeerReportsIOClosed(t *testing.T) {
	a, b := socketpair(t)
	defer b.(interface{ Close() error }).Close()

	if err := a.(interface{ Close() error }).Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	buf := make([]byte, 4)
	_, status, err := b.RecvOne(buf)
	if status != IOClosed || err != nil {
		t.Fatalf("RecvOne after peer close = (%v, %v), want (IOClosed, nil)", status, err)
	}
}

func TestNetConnCloseIsIdempotent(t *testing.T) {
	a, b := socketpair(t)
	defer b.(interface{ Close() error }).Close()

	closer := a.(interface{ Close() error })
	if err := closer.Close(); err != nil {
		t.Fatalf("first Close: %v", err)
	}
	if err := closer.Close(); err != nil {
		t.Fatalf("second Close should be a no-op, got %v", err)
	}
}

func TestNetConnValidTracksClose(t *testing.T) {
	a, b := socketpair(t)
	defer b.(interface{ Close() error }).Close()

	nc := a.(*netConn)
	if !nc.Valid() {
		t.Fatalf("freshly wrapped connection should be Valid")
	}
	nc.Close()
	if nc.Valid() {
		t.Fatalf("connection should be invalid after Close")
	}
}

func TestSetNonblockingTCPAppliesOptions(t *testing.T) {
	fds, err := syscall.Socketpair(syscall.AF_UNIX, syscall.SOCK_STREAM, 0)
	if err != nil {
		t.Fatalf("socketpair: %v", err)
	}
	defer syscall.Close(fds[0])
	defer syscall.Close(fds[1])

	opts := buildOptions(RecvBuffSize(8192))
	if err := syscall.SetNonblock(fds[0], false); err != nil {
		t.Fatalf("SetNonblock: %v", err)
	}
	// setNonblockingTCP also sets TCP_NODELAY, which AF_UNIX doesn't
	// support (IPPROTO_TCP is meaningless there); on a real TCP socket
	// that call succeeds. Here it's expected to fail on that final step,
	// but the nonblocking flag and SO_RCVBUF must already be applied by
	// then since they're set first.
	_ = setNonblockingTCP(fds[0], opts)
	flags, err := unix.FcntlInt(uintptr(fds[0]), syscall.F_GETFL, 0)
	if err != nil {
		t.Fatalf("fcntl F_GETFL: %v", err)
	}
	if flags&syscall.O_NONBLOCK == 0 {
		t.Fatalf("setNonblockingTCP should leave the fd nonblocking even though a later step errors on AF_UNIX")
	}
}
