//go:build linux

package evdisp

import (
	"fmt"
	"sync/atomic"
	"syscall"
	"time"
	"unsafe"

	"golang.org/x/sys/unix"
)

// epollBackend is the default Backend on Linux: epoll_create1/epoll_ctl/
// epoll_wait, with EPOLLHUP/EPOLLERR checked ahead of EPOLLOUT ahead of
// EPOLLIN, and an eventfd for the cross-thread wakeup Interrupt needs.
// Wait only ever runs from a single goroutine here, so there's no thread
// handoff to manage — one *fdState per fd, looked up through registry, is
// enough.
type epollBackend struct {
	efd        int
	wfd        int // eventfd used to wake a blocked epoll_wait from Interrupt
	regs       *registry[fdState]
	evReadyNum int

	interruptArmed atomic.Bool
}

type fdState struct {
	conn   ConnID
	events uint32 // currently-armed EPOLLIN/EPOLLOUT bits
}

func newDefaultBackend(evReadyNum int) (Backend, error) {
	return newEpollBackend(8192, evReadyNum)
}

func newEpollBackend(regArrSize, evReadyNum int) (*epollBackend, error) {
	if evReadyNum < 1 {
		evReadyNum = 256
	}
	efd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, fmt.Errorf("evdisp: epoll_create1: %w", err)
	}
	wfd, err := unix.Eventfd(0, unix.EFD_NONBLOCK|unix.EFD_CLOEXEC)
	if err != nil {
		unix.Close(efd)
		return nil, fmt.Errorf("evdisp: eventfd: %w", err)
	}
	b := &epollBackend{
		efd:        efd,
		wfd:        wfd,
		regs:       newRegistry[fdState](regArrSize),
		evReadyNum: evReadyNum,
	}
	ev := unix.EpollEvent{Events: unix.EPOLLIN, Fd: int32(wfd)}
	if err := unix.EpollCtl(efd, unix.EPOLL_CTL_ADD, wfd, &ev); err != nil {
		unix.Close(efd)
		unix.Close(wfd)
		return nil, fmt.Errorf("evdisp: epoll_ctl add wakeup fd: %w", err)
	}
	return b, nil
}

// addInterest arms bit (EPOLLIN or EPOLLOUT) on fd, adding to whatever is
// already armed rather than overwriting it — the fdState.events mask is
// the source of truth for what's actually armed, so a MOD always requests
// exactly the union of currently-wanted directions, never a direction
// nothing asked for.
func (b *epollBackend) addInterest(fd int, connID ConnID, bit uint32) error {
	st := b.regs.Load(fd)
	if st == nil {
		st = &fdState{conn: connID, events: bit}
		b.regs.Store(fd, st)
		ev := unix.EpollEvent{Events: bit, Fd: int32(fd)}
		if err := unix.EpollCtl(b.efd, unix.EPOLL_CTL_ADD, fd, &ev); err != nil {
			b.regs.Delete(fd)
			return fmt.Errorf("evdisp: epoll_ctl add: %w", err)
		}
		return nil
	}
	if st.events&bit != 0 {
		return nil // already armed for this direction
	}
	st.events |= bit
	ev := unix.EpollEvent{Events: st.events, Fd: int32(fd)}
	if err := unix.EpollCtl(b.efd, unix.EPOLL_CTL_MOD, fd, &ev); err != nil {
		return fmt.Errorf("evdisp: epoll_ctl mod: %w", err)
	}
	return nil
}

// delInterest disarms bit on fd. Once neither direction is wanted, the fd
// is removed from epoll entirely rather than left registered with an
// empty event mask.
func (b *epollBackend) delInterest(fd int, bit uint32) error {
	st := b.regs.Load(fd)
	if st == nil || st.events&bit == 0 {
		return nil
	}
	st.events &^= bit
	if st.events == 0 {
		b.regs.Delete(fd)
		if err := unix.EpollCtl(b.efd, unix.EPOLL_CTL_DEL, fd, nil); err != nil && err != unix.ENOENT {
			return fmt.Errorf("evdisp: epoll_ctl del: %w", err)
		}
		return nil
	}
	ev := unix.EpollEvent{Events: st.events, Fd: int32(fd)}
	if err := unix.EpollCtl(b.efd, unix.EPOLL_CTL_MOD, fd, &ev); err != nil {
		return fmt.Errorf("evdisp: epoll_ctl mod: %w", err)
	}
	return nil
}

func (b *epollBackend) AddRead(fd int, connID ConnID) error {
	return b.addInterest(fd, connID, unix.EPOLLIN)
}

func (b *epollBackend) AddWrite(fd int, connID ConnID) error {
	return b.addInterest(fd, connID, unix.EPOLLOUT)
}

func (b *epollBackend) DelRead(fd int) error {
	return b.delInterest(fd, unix.EPOLLIN)
}

func (b *epollBackend) DelWrite(fd int) error {
	return b.delInterest(fd, unix.EPOLLOUT)
}

func (b *epollBackend) Cancel(fd int) error {
	if b.regs.Load(fd) == nil {
		return nil
	}
	b.regs.Delete(fd)
	// EPOLL_CTL_DEL ignores its event argument on kernels >= 2.6.9.
	if err := unix.EpollCtl(b.efd, unix.EPOLL_CTL_DEL, fd, nil); err != nil && err != unix.ENOENT {
		return fmt.Errorf("evdisp: epoll_ctl del: %w", err)
	}
	return nil
}

func (b *epollBackend) Wait(timeout time.Duration) ([]readyEvent, error) {
	msec := -1
	if timeout >= 0 {
		msec = int(timeout / time.Millisecond)
	}
	events := make([]unix.EpollEvent, b.evReadyNum)
	n, err := unix.EpollWait(b.efd, events, msec)
	if err != nil {
		if err == unix.EINTR {
			return nil, nil
		}
		return nil, fmt.Errorf("evdisp: epoll_wait: %w", err)
	}
	out := make([]readyEvent, 0, n)
	for i := 0; i < n; i++ {
		ev := &events[i]
		if int(ev.Fd) == b.wfd {
			b.drainWakeup()
			continue
		}
		st := b.regs.Load(int(ev.Fd))
		if st == nil {
			continue
		}
		if ev.Events&(unix.EPOLLHUP|unix.EPOLLERR) != 0 {
			out = append(out, readyEvent{conn: st.conn, kind: readyClose})
			continue
		}
		if ev.Events&unix.EPOLLOUT != 0 { // before EPOLLIN, per epoll_ctl(2) ordering conventions
			out = append(out, readyEvent{conn: st.conn, kind: readyWrite})
		}
		if ev.Events&unix.EPOLLIN != 0 {
			out = append(out, readyEvent{conn: st.conn, kind: readyRead})
		}
	}
	return out, nil
}

func (b *epollBackend) drainWakeup() {
	var tmp [8]byte
	for {
		_, err := syscall.Read(b.wfd, tmp[:])
		if err == syscall.EINTR {
			continue
		}
		break
	}
	b.interruptArmed.Store(false)
}

func (b *epollBackend) Interrupt() error {
	if !b.interruptArmed.CompareAndSwap(false, true) {
		return nil
	}
	one := uint64(1)
	buf := (*(*[8]byte)(unsafe.Pointer(&one)))[:]
	for {
		_, err := syscall.Write(b.wfd, buf)
		if err == syscall.EINTR {
			continue
		}
		return err
	}
}

func (b *epollBackend) Close() error {
	unix.Close(b.wfd)
	return unix.Close(b.efd)
}
