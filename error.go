// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

//go:build unix

package reactor

import (
	"errors"
	"fmt"

	"code.hybscloud.com/iox"
	"code.hybscloud.com/kont"
)

var (
	// ErrPeerClosed reports that the peer closed the connection or that a
	// write hit a broken pipe. Sessions ending with it complete normally.
	ErrPeerClosed = errors.New("reactor: peer closed")

	// ErrSessionClosed is returned when dispatching to a session that has
	// already been torn down.
	ErrSessionClosed = errors.New("reactor: session closed")

	// ErrNoListeners is returned by Run when no listener was registered.
	ErrNoListeners = errors.New("reactor: no listeners registered")

	// ErrRunning is returned when an operation requires a reactor that is
	// not running yet, or when Run is called twice.
	ErrRunning = errors.New("reactor: already running")

	// ErrStopped is returned by Post after the loop has shut down.
	ErrStopped = errors.New("reactor: stopped")

	// ErrHostname is returned by Dial for a host that is not an IP literal.
	ErrHostname = errors.New("reactor: dial needs an IP address")

	// ErrLineTooLong is returned by ReadLine when a line exceeds the
	// configured maximum length. It fails the session.
	ErrLineTooLong = errors.New("reactor: line too long")

	// ErrMismatch is returned when Await receives a delivered value of an
	// unexpected type. It fails the session.
	ErrMismatch = errors.New("reactor: delivered value type mismatch")

	// ErrMailboxFull is returned by Deliver when the target mailbox cannot
	// accept another value. It wraps iox.ErrWouldBlock.
	ErrMailboxFull = fmt.Errorf("reactor: mailbox full: %w", iox.ErrWouldBlock)
)

// outcome classifies the result of driving a task one dispatch further.
type outcome uint8

const (
	outcomePending outcome = iota
	outcomeCompleted
	outcomeFailed
)

func (o outcome) String() string {
	switch o {
	case outcomePending:
		return "pending"
	case outcomeCompleted:
		return "completed"
	default:
		return "failed"
	}
}

// errorDispatcher is the structural interface of kont error operations.
type errorDispatcher interface {
	DispatchError(ctx *kont.ErrorContext[error]) (kont.Resumed, bool)
}

// dispatchError eagerly handles an error operation.
// Throw discards the suspension and reports the thrown error.
func dispatchError(susp *kont.Suspension[kont.Either[error, struct{}]], eop errorDispatcher) (kont.Either[error, struct{}], *kont.Suspension[kont.Either[error, struct{}]]) {
	var ctx kont.ErrorContext[error]
	v, _ := eop.DispatchError(&ctx)
	if ctx.HasErr {
		susp.Discard()
		return kont.Left[error, struct{}](ctx.Err), nil
	}
	return susp.Resume(v)
}

// classify maps a dispatch error to the session outcome it implies.
// Peer closure is a normal end of the session, anything else is a failure.
func classify(err error) outcome {
	switch {
	case err == nil:
		return outcomePending
	case iox.IsWouldBlock(err):
		return outcomePending
	case errors.Is(err, ErrPeerClosed):
		return outcomeCompleted
	default:
		return outcomeFailed
	}
}

// panicError wraps a value recovered from a panicking task.
type panicError struct {
	v any
}

func (e *panicError) Error() string {
	if err, ok := e.v.(error); ok {
		return "reactor: task panic: " + err.Error()
	}
	return fmt.Sprintf("reactor: task panic: %v", e.v)
}

func (e *panicError) Unwrap() error {
	err, _ := e.v.(error)
	return err
}
