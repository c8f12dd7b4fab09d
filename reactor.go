// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

//go:build unix

package reactor

import (
	"context"
	"errors"
	"fmt"
	"net"
	"runtime"
	"time"

	"code.hybscloud.com/atomix"
	"code.hybscloud.com/iox"
	"github.com/eapache/queue"
	"go.uber.org/zap"
)

const (
	stateIdle uint32 = iota
	stateRunning
	stateStopped
)

// Stats is a snapshot of session counters.
type Stats struct {
	Accepted  uint64 // sessions created by accepting a connection
	Dialed    uint64 // sessions created by Dial
	Completed uint64 // sessions whose task completed or whose peer closed
	Failed    uint64 // sessions whose task failed
	Live      uint64 // sessions currently registered
}

// Reactor is a single-threaded event loop driving session tasks.
//
// Everything except Post, Stop and Stats must be called on the loop
// thread: from inside tasks, timer callbacks, posted functions, or before
// Run starts.
type Reactor struct {
	opts     options
	log      *zap.Logger
	reg      *registry
	timers   TimerQueue
	poller   poller
	inbox    *inbox
	runq     *queue.Queue
	current  *Session
	woken    bool
	stopping bool

	state     atomix.Uint32
	serial    atomix.Uint32
	opened    atomix.Uint64
	closed    atomix.Uint64
	accepted  atomix.Uint64
	dialed    atomix.Uint64
	completed atomix.Uint64
	failed    atomix.Uint64
}

// New creates a reactor. It owns no listeners yet; see Listen.
func New(opts ...Option) (*Reactor, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	in, err := newInbox()
	if err != nil {
		return nil, err
	}
	return &Reactor{
		opts:  o,
		log:   o.logger,
		reg:   newRegistry(),
		inbox: in,
		runq:  queue.New(),
	}, nil
}

// Listen registers l so that every connection it accepts starts a session
// running entry. Listeners must be registered before Run.
func (r *Reactor) Listen(l *Listener, entry Task) error {
	if l == nil || entry == nil {
		return errors.New("reactor: listen: nil listener or task")
	}
	if r.state.Load() != stateIdle {
		return ErrRunning
	}
	r.reg.addListener(l, entry)
	return nil
}

// Run drives the loop on the calling goroutine, locked to its OS thread,
// until Stop is called or ctx is done. It returns ErrNoListeners without
// touching any socket when no listener was registered.
// On return every session has been torn down and every listener closed.
// A poll failure ends the loop and is returned.
func (r *Reactor) Run(ctx context.Context) error {
	if len(r.reg.listeners) == 0 {
		return ErrNoListeners
	}
	if !r.state.CompareAndSwap(stateIdle, stateRunning) {
		if r.state.Load() == stateStopped {
			return ErrStopped
		}
		return ErrRunning
	}
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	stop := context.AfterFunc(ctx, func() { _ = r.Stop() })
	defer stop()
	defer r.shutdown()

	r.log.Info("reactor running",
		zap.Int("listeners", len(r.reg.listeners)),
		zap.Duration("poll_timeout", r.opts.pollTimeout))
	for !r.stopping {
		if err := r.tick(); err != nil {
			r.log.Error("reactor loop failed", zap.Error(err))
			return err
		}
	}
	return nil
}

// tick runs one loop iteration: poll, dispatch readable then writable
// targets, run posted work and deferred sessions, then drain timers.
func (r *Reactor) tick() error {
	p := &r.poller
	p.reset()
	p.addRead(r.inbox.rfd, pollTarget{kind: targetWake})
	now := r.now()
	for i := range r.reg.listeners {
		le := &r.reg.listeners[i]
		if le.paused(now) {
			continue
		}
		p.addRead(le.l.fd, pollTarget{kind: targetListener, index: i})
	}
	for _, s := range r.reg.sessions {
		t := pollTarget{kind: targetSession, id: s.id}
		switch {
		case s.connecting, s.intent == IntentWrite:
			p.addWrite(s.fd, t)
		case s.intent == IntentRead, !s.started:
			p.addRead(s.fd, t)
		}
	}

	readable, writable, err := p.wait(r.timeout())
	if err != nil {
		return fmt.Errorf("reactor: %w", err)
	}
	for _, t := range readable {
		r.onReadable(t)
	}
	for _, t := range writable {
		r.onWritable(t)
	}
	if r.woken {
		r.woken = false
		for _, fn := range r.inbox.take() {
			r.safely("posted function", fn)
		}
	}
	r.runDeferred()
	r.timers.Drain(r.now())
	return nil
}

// timeout bounds the next poll by the poll timeout and the earliest timer.
// Deferred sessions make the poll return immediately.
func (r *Reactor) timeout() time.Duration {
	if r.runq.Length() > 0 {
		return 0
	}
	d := r.opts.pollTimeout
	if next, ok := r.timers.Next(); ok {
		if until := next.Sub(r.now()); until < d {
			d = max(until, 0)
		}
	}
	return d
}

func (r *Reactor) onReadable(t pollTarget) {
	switch t.kind {
	case targetWake:
		r.woken = true
	case targetListener:
		r.accept(&r.reg.listeners[t.index])
	case targetSession:
		s, ok := r.reg.get(t.id)
		if !ok || s.connecting {
			return
		}
		if s.intent == IntentRead || !s.started {
			r.drive(s)
		}
	}
}

func (r *Reactor) onWritable(t pollTarget) {
	s, ok := r.reg.get(t.id)
	if !ok {
		return
	}
	if s.connecting {
		r.finishConnect(s)
		return
	}
	if s.intent == IntentWrite {
		r.drive(s)
	}
}

// accept takes pending connections from one listener and primes a session
// for each, within the current iteration. A failure other than would-block
// takes the listener out of the interest set for one poll timeout, so a
// persistent error such as EMFILE does not spin the loop.
func (r *Reactor) accept(le *listenerEntry) {
	for range r.opts.acceptBatch {
		fd, peer, err := le.l.accept()
		if err != nil {
			if !iox.IsWouldBlock(err) {
				le.pausedUntil = r.now().Add(r.opts.pollTimeout)
				r.log.Warn("accept failed", zap.Stringer("listener", le.l.Addr()), zap.Error(err))
			}
			return
		}
		s := r.newSession(fd, peer, le.entry)
		r.accepted.Add(1)
		r.log.Debug("session accepted", zap.Stringer("session", s))
		r.drive(s)
	}
}

// Dial opens an outbound session to host:port running entry.
// The connect is non-blocking: the session waits for writability before
// its first operation proceeds, and a failed connect tears it down with
// its finalizers run. The task is primed before Dial returns.
// host must be an IP literal: name resolution blocks, so callers resolve
// off the loop thread and Post the dial back.
func (r *Reactor) Dial(host string, port int, entry Task) (*Session, error) {
	if entry == nil {
		return nil, errors.New("reactor: dial: nil task")
	}
	if net.ParseIP(host) == nil {
		return nil, fmt.Errorf("%w: %q", ErrHostname, host)
	}
	if r.stopping || r.state.Load() == stateStopped {
		return nil, ErrStopped
	}
	fd, connected, err := dial(host, port)
	if err != nil {
		return nil, err
	}
	s := r.newSession(fd, nil, entry)
	s.outbound = true
	if connected {
		s.peer, _ = connectResult(fd)
	} else {
		s.connecting, s.intent = true, IntentWrite
	}
	r.dialed.Add(1)
	r.log.Debug("session dialing", zap.Stringer("session", s), zap.String("host", host), zap.Int("port", port))
	r.drive(s)
	return s, nil
}

func (r *Reactor) finishConnect(s *Session) {
	peer, err := connectResult(s.fd)
	if err != nil {
		r.teardown(s, outcomeFailed, err)
		return
	}
	s.peer = peer
	s.connecting = false
	r.drive(s)
}

func (r *Reactor) newSession(fd int, peer net.Addr, entry Task) *Session {
	s := &Session{
		id:      r.nextSerial(),
		reactor: r,
		fd:      fd,
		peer:    peer,
		task:    entry,
	}
	s.reader.max = r.opts.maxLineLength
	s.mailbox.Init(mailboxCapacity)
	r.reg.add(s)
	r.opened.Add(1)
	return s
}

// Dispatch resumes s outside of its declared readiness. An operation that
// still cannot make progress leaves the task suspended as it was.
func (r *Reactor) Dispatch(s *Session) error {
	if s == nil || s.closed || s.reactor != r {
		return ErrSessionClosed
	}
	r.drive(s)
	return nil
}

// Deliver hands v to s and dispatches it. A task suspended in Await
// resumes with v right away; otherwise v waits in the session mailbox
// until the task awaits it. This is the only way one session's result
// reaches another.
func (r *Reactor) Deliver(s *Session, v any) error {
	if s == nil || s.closed || s.reactor != r {
		return ErrSessionClosed
	}
	if v == nil {
		return fmt.Errorf("%w: nil value", ErrMismatch)
	}
	if err := s.mailbox.Enqueue(&v); err != nil {
		return ErrMailboxFull
	}
	r.drive(s)
	return nil
}

// Current returns the session being dispatched, or nil between dispatches.
func (r *Reactor) Current() *Session { return r.current }

// Lookup returns the live session with the given id.
func (r *Reactor) Lookup(id Serial) (*Session, bool) { return r.reg.get(id) }

// Len returns the number of live sessions.
func (r *Reactor) Len() int { return r.reg.len() }

// Now returns the reactor clock.
func (r *Reactor) Now() time.Time { return r.now() }

func (r *Reactor) now() time.Time { return r.opts.clock() }

// Schedule runs fn on the first timer drain at or after at.
// Timers are drained once per loop iteration, after I/O dispatch.
func (r *Reactor) Schedule(at time.Time, fn func()) {
	r.timers.Schedule(at, func() { r.safely("timer", fn) })
}

// After runs fn once d has elapsed on the reactor clock.
func (r *Reactor) After(d time.Duration, fn func()) {
	r.Schedule(r.now().Add(d), fn)
}

// Post queues fn to run on the loop thread. Safe for concurrent use.
// Returns ErrStopped once the loop has shut down.
func (r *Reactor) Post(fn func()) error {
	return r.inbox.post(fn)
}

// Stop asks the loop to shut down after the current iteration.
// Safe for concurrent use and idempotent.
func (r *Reactor) Stop() error {
	err := r.Post(func() { r.stopping = true })
	if errors.Is(err, ErrStopped) {
		return nil
	}
	return err
}

// Close releases a reactor that was never run, tearing down sessions
// opened with Dial and closing registered listeners.
// It returns ErrRunning while Run is active.
func (r *Reactor) Close() error {
	if !r.state.CompareAndSwap(stateIdle, stateStopped) {
		if r.state.Load() == stateStopped {
			return nil
		}
		return ErrRunning
	}
	r.shutdown()
	return nil
}

// Stats returns the session counters. Safe for concurrent use.
func (r *Reactor) Stats() Stats {
	// closed first: opened can only have grown since, so Live never wraps.
	closed := r.closed.Load()
	opened := r.opened.Load()
	return Stats{
		Accepted:  r.accepted.Load(),
		Dialed:    r.dialed.Load(),
		Completed: r.completed.Load(),
		Failed:    r.failed.Load(),
		Live:      opened - closed,
	}
}

func (r *Reactor) wake(id Serial) {
	if s, ok := r.reg.get(id); ok {
		r.drive(s)
	}
}

// deferRun queues s to be driven on the next iteration.
func (r *Reactor) deferRun(s *Session) {
	if s.deferred {
		return
	}
	s.deferred = true
	r.runq.Add(s.id)
}

// runDeferred drives the sessions deferred before this call.
// Sessions deferred meanwhile wait for the next iteration.
func (r *Reactor) runDeferred() {
	for n := r.runq.Length(); n > 0; n-- {
		id := r.runq.Remove().(Serial)
		s, ok := r.reg.get(id)
		if !ok {
			continue
		}
		s.deferred = false
		r.drive(s)
	}
}

// teardown ends a session: discards its continuation, runs its finalizers,
// releases the reader, closes the socket and unregisters it.
// Only the first call has any effect.
func (r *Reactor) teardown(s *Session, oc outcome, cause error) {
	if s.closed {
		return
	}
	s.closed = true
	if s.susp != nil {
		s.susp.Discard()
		s.susp = nil
	}
	s.intent = IntentNone
	for i := len(s.finalizers) - 1; i >= 0; i-- {
		r.safely("session finalizer", s.finalizers[i], zap.Stringer("session", s))
	}
	s.finalizers = nil
	s.reader.release()
	if err := closeFD(s.fd); err != nil {
		r.log.Warn("session close failed", zap.Stringer("session", s), zap.Error(err))
	}
	s.fd = -1
	r.reg.remove(s.id)
	r.closed.Add(1)

	if oc == outcomeFailed {
		r.failed.Add(1)
		r.log.Error("session failed", zap.Stringer("session", s), zap.Stringer("outcome", oc), zap.Error(cause))
		return
	}
	r.completed.Add(1)
	r.log.Debug("session closed", zap.Stringer("session", s), zap.Stringer("outcome", oc), zap.NamedError("reason", cause))
}

// shutdown tears down every session and closes every listener.
func (r *Reactor) shutdown() {
	r.stopping = true
	for r.reg.len() > 0 {
		for _, s := range r.reg.snapshot() {
			r.teardown(s, outcomeCompleted, ErrStopped)
		}
	}
	for _, le := range r.reg.listeners {
		if err := le.l.Close(); err != nil {
			r.log.Warn("listener close failed", zap.Stringer("listener", le.l.Addr()), zap.Error(err))
		}
	}
	r.inbox.close()
	r.state.Store(stateStopped)
	r.log.Info("reactor stopped", zap.Uint64("sessions", r.opened.Load()))
}

// safely runs fn, logging instead of propagating a panic.
func (r *Reactor) safely(what string, fn func(), fields ...zap.Field) {
	defer func() {
		if v := recover(); v != nil {
			r.log.Error(what+" panicked", append(fields, zap.Any("panic", v), zap.Stack("stack"))...)
		}
	}()
	fn()
}
