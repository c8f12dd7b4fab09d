// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

//go:build unix

package reactor

import (
	"container/heap"
	"time"
)

// ScheduledEvent is a callback due at a point in time.
type ScheduledEvent struct {
	At time.Time
	Fn func()

	seq uint64
}

// eventHeap orders events by deadline, then by insertion.
type eventHeap []ScheduledEvent

func (h eventHeap) Len() int { return len(h) }

func (h eventHeap) Less(i, j int) bool {
	if h[i].At.Equal(h[j].At) {
		return h[i].seq < h[j].seq
	}
	return h[i].At.Before(h[j].At)
}

func (h eventHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *eventHeap) Push(x any) { *h = append(*h, x.(ScheduledEvent)) }

func (h *eventHeap) Pop() any {
	old := *h
	n := len(old)
	ev := old[n-1]
	old[n-1] = ScheduledEvent{}
	*h = old[:n-1]
	return ev
}

// TimerQueue is a deadline-ordered queue of callbacks.
// Events with equal deadlines fire in the order they were scheduled.
// The zero value is ready to use. TimerQueue is not safe for concurrent use.
type TimerQueue struct {
	events eventHeap
	seq    uint64
	due    []ScheduledEvent
}

// Schedule adds fn to run on the first Drain at or after at.
// A deadline in the past fires on the next Drain.
func (q *TimerQueue) Schedule(at time.Time, fn func()) {
	q.seq++
	heap.Push(&q.events, ScheduledEvent{At: at, Fn: fn, seq: q.seq})
}

// Len returns the number of pending events.
func (q *TimerQueue) Len() int { return len(q.events) }

// Next returns the earliest pending deadline.
func (q *TimerQueue) Next() (time.Time, bool) {
	if len(q.events) == 0 {
		return time.Time{}, false
	}
	return q.events[0].At, true
}

// Drain runs every event whose deadline is at or before now and returns
// how many ran. The due set is fixed when Drain is called: events that
// callbacks schedule are left for a later Drain even if already due.
func (q *TimerQueue) Drain(now time.Time) int {
	q.due = q.due[:0]
	for len(q.events) > 0 && !q.events[0].At.After(now) {
		q.due = append(q.due, heap.Pop(&q.events).(ScheduledEvent))
	}
	due := q.due
	for i := range due {
		fn := due[i].Fn
		due[i] = ScheduledEvent{}
		fn()
	}
	return len(due)
}
