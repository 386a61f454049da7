package evdisp

import "time"

// TimerCallback is invoked at most once per scheduled expiry, from the
// loop goroutine, never reentrantly. Returning true reschedules the timer
// at its original next-expiry plus its interval (drift-free); returning
// false drops it.
type TimerCallback func(now time.Time) (reschedule bool)

// timerItem is a single armed timer. Immutable after insertion except for
// nextExpiry, which is only ever rewritten by the heap that owns the item
// (on reschedule), never externally.
type timerItem struct {
	nextExpiry time.Time
	interval   time.Duration
	cb         TimerCallback
	seq        uint64 // insertion order, breaks nextExpiry ties (stable FIFO)
}

// timerHeap is a quaternary min-heap ordered by nextExpiry, ties broken by
// insertion order. Not safe for concurrent use — it is only ever touched
// from the dispatch loop goroutine.
//
// 4-ary rather than binary (half as many levels as a binary heap, at the
// cost of comparing up to four children per level). There is no timerfd wiring here — the
// dispatcher computes its own backend wait deadline from the heap's
// minimum rather than delegating wakeup to a kernel timer fd.
type timerHeap struct {
	items   []*timerItem
	nextSeq uint64
}

func newTimerHeap(initCap int) *timerHeap {
	if initCap < 1 {
		initCap = 16
	}
	return &timerHeap{items: make([]*timerItem, 0, initCap)}
}

func (h *timerHeap) Len() int { return len(h.items) }

// Push inserts a new timer and returns it (so callers can log/track it).
func (h *timerHeap) Push(nextExpiry time.Time, interval time.Duration, cb TimerCallback) *timerItem {
	ti := &timerItem{nextExpiry: nextExpiry, interval: interval, cb: cb, seq: h.nextSeq}
	h.nextSeq++
	h.pushItem(ti)
	return ti
}

func (h *timerHeap) pushItem(ti *timerItem) {
	h.items = append(h.items, ti)
	h.shiftUp(len(h.items) - 1)
}

// Peek returns the minimum item without removing it, or nil if empty.
func (h *timerHeap) Peek() *timerItem {
	if len(h.items) == 0 {
		return nil
	}
	return h.items[0]
}

// Pop removes and returns the minimum item, or nil if empty.
func (h *timerHeap) Pop() *timerItem {
	n := len(h.items)
	if n == 0 {
		return nil
	}
	min := h.items[0]
	last := n - 1
	h.items[0] = h.items[last]
	h.items[last] = nil
	h.items = h.items[:last]
	if last > 0 {
		h.shiftDown(0)
	}
	return min
}

func (h *timerHeap) less(i, j int) bool {
	a, b := h.items[i], h.items[j]
	if a.nextExpiry.Equal(b.nextExpiry) {
		return a.seq < b.seq
	}
	return a.nextExpiry.Before(b.nextExpiry)
}

func (h *timerHeap) shiftUp(i int) {
	for i > 0 {
		parent := (i - 1) / 4
		if !h.less(i, parent) {
			break
		}
		h.items[i], h.items[parent] = h.items[parent], h.items[i]
		i = parent
	}
}

func (h *timerHeap) shiftDown(i int) {
	n := len(h.items)
	for {
		smallest := i
		childStart := 4*i + 1
		childEnd := childStart + 4
		if childEnd > n {
			childEnd = n
		}
		for c := childStart; c < childEnd; c++ {
			if h.less(c, smallest) {
				smallest = c
			}
		}
		if smallest == i {
			return
		}
		h.items[i], h.items[smallest] = h.items[smallest], h.items[i]
		i = smallest
	}
}

// handleExpired pops and fires every timer whose nextExpiry is <= now,
// rescheduling repeaters at nextExpiry+interval (never now+interval, which
// would let a slow loop iteration silently stretch the period). stop, if
// given, is checked before each pop so a callback that calls Terminate
// doesn't let the remaining due timers in the same batch fire anyway.
// It returns the number of timers that fired and were not rescheduled, so
// a caller tracking a live-armed-timer count knows how far to decrement it.
func (h *timerHeap) handleExpired(now time.Time, stop ...func() bool) (dropped int) {
	for {
		for _, s := range stop {
			if s() {
				return dropped
			}
		}
		top := h.Peek()
		if top == nil || top.nextExpiry.After(now) {
			return dropped
		}
		h.Pop()
		if top.cb(now) {
			top.nextExpiry = top.nextExpiry.Add(top.interval)
			h.pushItem(top)
		} else {
			dropped++
		}
	}
}
