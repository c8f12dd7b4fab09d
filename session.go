// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

//go:build unix

package reactor

import (
	"net"
	"strconv"
	"time"

	"code.hybscloud.com/kont"
	"code.hybscloud.com/lfq"
)

// mailboxCapacity is the bounded capacity of a session mailbox.
// A waiting session consumes each delivery as soon as it is dispatched,
// so a handful of slots covers deliveries that race its suspension.
const mailboxCapacity = 4

// Intent is the I/O interest a suspended session declares to the
// readiness multiplexer.
type Intent uint8

const (
	// IntentNone keeps the session out of the poll set. It is resumed only
	// by an explicit dispatch, a delivery, or a timer.
	IntentNone Intent = iota
	// IntentRead polls the session socket for readability.
	IntentRead
	// IntentWrite polls the session socket for writability.
	IntentWrite
)

func (i Intent) String() string {
	switch i {
	case IntentRead:
		return "read"
	case IntentWrite:
		return "write"
	default:
		return "none"
	}
}

// Task is the entry point of a session's protocol logic.
// It is invoked once when the session is created and returns the
// computation the reactor drives one suspension at a time.
type Task func(s *Session) kont.Eff[struct{}]

// Session is one live connection and the suspended state of its task.
// All methods must be called on the reactor's loop thread.
type Session struct {
	id      Serial
	reactor *Reactor
	fd      int
	peer    net.Addr
	reader  lineReader
	task    Task
	susp    *kont.Suspension[kont.Either[error, struct{}]]
	intent  Intent
	mailbox lfq.SPSC[any]

	finalizers []func()

	outbound   bool
	connecting bool
	started    bool
	running    bool
	deferred   bool
	closed     bool
	sleeping   bool

	written int
	wakeAt  time.Time
}

// ID returns the session's identity within its reactor.
func (s *Session) ID() Serial { return s.id }

// Reactor returns the reactor that owns the session.
func (s *Session) Reactor() *Reactor { return s.reactor }

// PeerAddr returns the remote address, or nil for an outbound session
// whose connect has not completed yet.
func (s *Session) PeerAddr() net.Addr { return s.peer }

// Intent returns the I/O interest declared by the current suspension.
func (s *Session) Intent() Intent { return s.intent }

// Outbound reports whether the session was opened by Reactor.Dial.
func (s *Session) Outbound() bool { return s.outbound }

// Closed reports whether the session has been torn down.
func (s *Session) Closed() bool { return s.closed }

// OnClose registers fn to run when the session is torn down, whether its
// task completed, failed, or the peer went away. Finalizers run once, in
// reverse registration order, before the socket is closed.
// Registering on a closed session runs fn immediately.
func (s *Session) OnClose(fn func()) {
	if s.closed {
		fn()
		return
	}
	s.finalizers = append(s.finalizers, fn)
}

func (s *Session) String() string {
	peer := "-"
	if s.peer != nil {
		peer = s.peer.String()
	}
	return "session#" + strconv.FormatUint(uint64(s.id), 10) + "(" + peer + ")"
}
