package logic

import (
	"github.com/zyedidia/generic/heap"
)

// TimerHandle identifies a scheduled callback. Handles are never reused and
// the zero handle is never issued.
type TimerHandle uint64

type timerEntry struct {
	handle   TimerHandle
	fireAt   float64
	seq      uint64
	interval float64
	fn       func()

	// Periodic entries fire at start + n*interval so sub-second intervals
	// do not accumulate rounding error.
	start float64
	n     int
}

// TimerQueue multiplexes one-shot and periodic callbacks onto a single
// virtual clock measured in seconds. It is not safe for concurrent use; the
// game loop goroutine owns it.
type TimerQueue struct {
	now     float64
	seq     uint64
	lastID  TimerHandle
	pending *heap.Heap[*timerEntry]
	live    map[TimerHandle]*timerEntry
}

func NewTimerQueue() *TimerQueue {
	return &TimerQueue{
		pending: heap.New(func(a, b *timerEntry) bool {
			if a.fireAt != b.fireAt {
				return a.fireAt < b.fireAt
			}
			return a.seq < b.seq
		}),
		live: make(map[TimerHandle]*timerEntry),
	}
}

// Now returns the current virtual time.
func (q *TimerQueue) Now() float64 {
	return q.now
}

// After schedules fn once, delay seconds from now.
func (q *TimerQueue) After(delay float64, fn func()) TimerHandle {
	return q.schedule(delay, 0, fn)
}

// Every schedules fn every interval seconds, first firing one interval from now.
func (q *TimerQueue) Every(interval float64, fn func()) TimerHandle {
	if interval <= 0 {
		return 0
	}
	return q.schedule(interval, interval, fn)
}

func (q *TimerQueue) schedule(delay, interval float64, fn func()) TimerHandle {
	if fn == nil {
		return 0
	}
	if delay < 0 {
		delay = 0
	}
	q.lastID++
	e := &timerEntry{handle: q.lastID, fireAt: q.now + delay, interval: interval, fn: fn}
	if interval > 0 {
		e.start = q.now
		e.n = 1
	}
	q.push(e)
	q.live[e.handle] = e
	return e.handle
}

func (q *TimerQueue) push(e *timerEntry) {
	q.seq++
	e.seq = q.seq
	q.pending.Push(e)
}

// Cancel removes a pending callback. Cancelling an unknown or already fired
// handle is a no-op and returns false.
func (q *TimerQueue) Cancel(h TimerHandle) bool {
	if _, ok := q.live[h]; !ok {
		return false
	}
	delete(q.live, h)
	return true
}

// Active reports whether h is still scheduled.
func (q *TimerQueue) Active(h TimerHandle) bool {
	_, ok := q.live[h]
	return ok
}

// Len returns the number of scheduled callbacks.
func (q *TimerQueue) Len() int {
	return len(q.live)
}

// Advance moves the clock forward by dt and fires every callback that falls
// due, in fire-time order. Callbacks scheduled while firing run in the same
// call if they are due before the new time. Returns the number fired.
func (q *TimerQueue) Advance(dt float64) int {
	if dt < 0 {
		dt = 0
	}
	target := q.now + dt
	fired := 0
	for {
		e, ok := q.pending.Peek()
		if !ok || e.fireAt > target {
			break
		}
		q.pending.Pop()
		if q.live[e.handle] != e {
			continue // cancelled
		}
		if e.fireAt > q.now {
			q.now = e.fireAt
		}
		if e.interval > 0 {
			e.n++
			e.fireAt = e.start + float64(e.n)*e.interval
			q.push(e)
		} else {
			delete(q.live, e.handle)
		}
		e.fn()
		fired++
	}
	q.now = target
	return fired
}
