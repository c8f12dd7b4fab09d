// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

//go:build unix

package reactor

import (
	"fmt"
	"time"

	"code.hybscloud.com/iox"
	"code.hybscloud.com/kont"
)

// sessionDispatcher is the structural interface for reactor operations.
// DispatchSession is non-blocking: it returns iox.ErrWouldBlock when the
// operation cannot make progress until the session's socket becomes ready
// in the direction reported by Intent.
type sessionDispatcher interface {
	Intent() Intent
	DispatchSession(s *Session) (kont.Resumed, error)
}

// ReadLine is the effect operation for reading one line from the peer.
// Perform(ReadLine{}) resumes with the line including its trailing "\n".
// Trimming the separator is left to the caller.
type ReadLine struct {
	kont.Phantom[string]
}

// Intent reports read interest.
func (ReadLine) Intent() Intent { return IntentRead }

// DispatchSession handles ReadLine on the session's buffered reader.
// Non-blocking: returns iox.ErrWouldBlock until a full line is buffered.
// Returns ErrPeerClosed once the peer closed and no data is left.
func (ReadLine) DispatchSession(s *Session) (kont.Resumed, error) {
	line, err := s.reader.readLine(s.fd)
	if err != nil {
		return nil, err
	}
	return line, nil
}

// Write is the effect operation for sending bytes to the peer.
// Perform(Write{Data: b}) resumes once all of b has been written.
type Write struct {
	kont.Phantom[struct{}]
	Data []byte
}

// Intent reports write interest.
func (Write) Intent() Intent { return IntentWrite }

// DispatchSession handles Write on the session's socket.
// Non-blocking: a partial write records its progress on the session and
// returns iox.ErrWouldBlock. A broken pipe returns ErrPeerClosed.
func (o Write) DispatchSession(s *Session) (kont.Resumed, error) {
	for s.written < len(o.Data) {
		n, err := writeFD(s.fd, o.Data[s.written:])
		s.written += n
		if err != nil {
			return nil, err
		}
		if n == 0 {
			return nil, iox.ErrWouldBlock
		}
	}
	s.written = 0
	return struct{}{}, nil
}

// Await is the effect operation for waiting on a value delivered by
// another session through Reactor.Deliver.
// Perform(Await[T]{}) declares no I/O interest; every incidental dispatch
// before a delivery leaves the task suspended.
type Await[T any] struct {
	kont.Phantom[T]
}

// Intent reports no I/O interest.
func (Await[T]) Intent() Intent { return IntentNone }

// DispatchSession handles Await on the session mailbox.
// Non-blocking: returns iox.ErrWouldBlock while the mailbox is empty.
func (Await[T]) DispatchSession(s *Session) (kont.Resumed, error) {
	v, err := s.mailbox.Dequeue()
	if err != nil {
		return nil, err
	}
	t, ok := v.(T)
	if !ok {
		return nil, fmt.Errorf("%w: got %T", ErrMismatch, v)
	}
	return t, nil
}

// Sleep is the effect operation for a timed wakeup.
// Perform(Sleep{Duration: d}) resumes on the first timer drain at or after
// d has elapsed on the reactor clock.
type Sleep struct {
	kont.Phantom[struct{}]
	Duration time.Duration
}

// Intent reports no I/O interest.
func (Sleep) Intent() Intent { return IntentNone }

// DispatchSession handles Sleep through the reactor timer queue.
func (o Sleep) DispatchSession(s *Session) (kont.Resumed, error) {
	if o.Duration <= 0 {
		return struct{}{}, nil
	}
	r := s.reactor
	now := r.now()
	if !s.sleeping {
		s.sleeping = true
		s.wakeAt = now.Add(o.Duration)
		id := s.id
		r.timers.Schedule(s.wakeAt, func() { r.wake(id) })
		return nil, iox.ErrWouldBlock
	}
	if now.Before(s.wakeAt) {
		return nil, iox.ErrWouldBlock
	}
	s.sleeping = false
	return struct{}{}, nil
}

// Deliver is the effect operation for handing a value to another session.
// Perform(Deliver{To: a, Value: v}) enqueues v into a's mailbox and
// dispatches a, then resumes with whether a accepted the value.
type Deliver struct {
	kont.Phantom[bool]
	To    *Session
	Value any
}

// Intent reports no I/O interest. Deliver never waits.
func (Deliver) Intent() Intent { return IntentNone }

// DispatchSession hands the value over on the reactor owning s.
func (o Deliver) DispatchSession(s *Session) (kont.Resumed, error) {
	err := s.reactor.Deliver(o.To, o.Value)
	return err == nil, nil
}
