// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

//go:build unix

package reactor

import (
	"fmt"

	"code.hybscloud.com/iox"
	"code.hybscloud.com/kont"
)

// Step evaluates a task computation until its first effect suspension.
// Returns (result, nil) on completion or error, or (zero, suspension) if
// pending. A Left result carries the error the task threw.
func Step(task kont.Eff[struct{}]) (kont.Either[error, struct{}], *kont.Suspension[kont.Either[error, struct{}]]) {
	wrapped := kont.ExprMap(Reify(task), func(r struct{}) kont.Either[error, struct{}] {
		return kont.Right[error, struct{}](r)
	})
	return kont.StepExpr(wrapped)
}

// Advance dispatches the suspended operation on the session once.
// Reactor operations are non-blocking: on iox.ErrWouldBlock the suspension
// is returned unconsumed together with the error. Error operations are
// eager: Throw discards the suspension and returns Left.
func Advance(s *Session, susp *kont.Suspension[kont.Either[error, struct{}]]) (kont.Either[error, struct{}], *kont.Suspension[kont.Either[error, struct{}]], error) {
	switch op := susp.Op().(type) {
	case sessionDispatcher:
		v, err := op.DispatchSession(s)
		if err != nil {
			if iox.IsWouldBlock(err) {
				var zero kont.Either[error, struct{}]
				return zero, susp, err
			}
			susp.Discard()
			var zero kont.Either[error, struct{}]
			return zero, nil, err
		}
		result, next := susp.Resume(v)
		return result, next, nil
	case errorDispatcher:
		result, next := dispatchError(susp, op)
		return result, next, nil
	default:
		susp.Discard()
		var zero kont.Either[error, struct{}]
		return zero, nil, fmt.Errorf("reactor: unhandled effect %T", op)
	}
}

// drive resumes s until its task suspends on an operation that would block,
// completes, or fails, and tears the session down on the two terminal
// outcomes. The session is the current one for the duration.
// A session already running further up the stack is deferred to the next
// loop iteration instead of being re-entered.
func (r *Reactor) drive(s *Session) {
	if s.closed {
		return
	}
	if s.running {
		r.deferRun(s)
		return
	}
	prev := r.current
	r.current = s
	s.running = true
	oc, err := r.advance(s)
	s.running = false
	r.current = prev

	if oc != outcomePending {
		r.teardown(s, oc, err)
	}
}

// advance runs the session's task forward. The first call primes the task:
// it is started and run until its first suspension. Each suspension is
// attempted once right away; only an attempt that would block leaves the
// task suspended with that operation's intent. After stepBudget completed
// operations the session yields to the others and is deferred.
func (r *Reactor) advance(s *Session) (oc outcome, err error) {
	defer func() {
		if v := recover(); v != nil {
			s.susp = nil
			oc, err = outcomeFailed, &panicError{v: v}
		}
	}()

	var result kont.Either[error, struct{}]
	susp := s.susp
	s.susp = nil
	if !s.started {
		s.started = true
		result, susp = Step(s.task(s))
	}

	for budget := r.opts.stepBudget; susp != nil; budget-- {
		if s.connecting {
			s.susp, s.intent = susp, IntentWrite
			return outcomePending, nil
		}
		if budget <= 0 {
			s.susp = susp
			if op, ok := susp.Op().(sessionDispatcher); ok {
				s.intent = op.Intent()
			}
			r.deferRun(s)
			return outcomePending, nil
		}
		res, next, derr := Advance(s, susp)
		if derr != nil {
			if oc := classify(derr); oc != outcomePending {
				return oc, derr
			}
			s.susp, s.intent = next, susp.Op().(sessionDispatcher).Intent()
			return outcomePending, nil
		}
		result, susp = res, next
	}

	if e, ok := result.GetLeft(); ok {
		return outcomeFailed, e
	}
	return outcomeCompleted, nil
}
