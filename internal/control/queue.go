package control

import (
	"context"
	"sync/atomic"
)

// ActionQueue carries external commands to the tick goroutine. Many
// producers, one consumer. Push never blocks, so a producer learns about
// overflow immediately and can report it to its client.
type ActionQueue struct {
	ch      chan Action
	dropped atomic.Uint64
}

func NewActionQueue(capacity int) *ActionQueue {
	if capacity <= 0 {
		capacity = 256
	}
	return &ActionQueue{ch: make(chan Action, capacity)}
}

// Push enqueues without blocking. False means the queue was full and the
// action was not accepted.
func (q *ActionQueue) Push(a Action) bool {
	select {
	case q.ch <- a:
		return true
	default:
		q.dropped.Add(1)
		return false
	}
}

// Drain empties the queue without blocking, up to max items (max <= 0 takes
// everything currently buffered). The tick loop calls this exactly once per
// tick, before the perception pass.
func (q *ActionQueue) Drain(max int) []Action {
	var out []Action
	for max <= 0 || len(out) < max {
		select {
		case a := <-q.ch:
			out = append(out, a)
		default:
			return out
		}
	}
	return out
}

func (q *ActionQueue) Len() int        { return len(q.ch) }
func (q *ActionQueue) Dropped() uint64 { return q.dropped.Load() }

// SignalQueue carries world events out to the transport hub. One producer
// (the tick goroutine), one consumer. When the buffer fills, the oldest
// signal is evicted: a slow consumer sees a gap, never a stalled world.
type SignalQueue struct {
	ch      chan Signal
	dropped atomic.Uint64
}

func NewSignalQueue(capacity int) *SignalQueue {
	if capacity <= 0 {
		capacity = 1024
	}
	return &SignalQueue{ch: make(chan Signal, capacity)}
}

// Push enqueues, evicting the oldest buffered signal while the queue is
// full. Never blocks.
func (q *SignalQueue) Push(s Signal) {
	for {
		select {
		case q.ch <- s:
			return
		default:
		}
		select {
		case <-q.ch:
			q.dropped.Add(1)
		default:
		}
	}
}

// Next blocks until a signal arrives or ctx ends.
func (q *SignalQueue) Next(ctx context.Context) (Signal, bool) {
	select {
	case s := <-q.ch:
		return s, true
	case <-ctx.Done():
		return Signal{}, false
	}
}

// TryNext is Next without the wait.
func (q *SignalQueue) TryNext() (Signal, bool) {
	select {
	case s := <-q.ch:
		return s, true
	default:
		return Signal{}, false
	}
}

func (q *SignalQueue) Len() int        { return len(q.ch) }
func (q *SignalQueue) Dropped() uint64 { return q.dropped.Load() }
