// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

//go:build unix

// Package reactor runs many TCP sessions on one thread. Each session's
// protocol is a task written as an algebraic-effect computation on
// [code.hybscloud.com/kont], and a readiness loop drives it one effect at
// a time.
//
// A task never blocks. It performs an operation and the reactor attempts
// it immediately; when the socket is not ready the operation returns
// [code.hybscloud.com/iox.ErrWouldBlock], the task stays suspended, and
// the session declares read or write interest for the next poll.
//
// # Architecture
//
//   - Loop: [Reactor.Run] polls listeners, sessions and a wakeup pipe with poll(2), dispatches readable sockets before writable ones, then runs posted work, deferred sessions and due timers.
//   - Sessions: [Session] owns a non-blocking socket, a buffered line reader and a bounded [code.hybscloud.com/lfq] mailbox. Sessions are torn down the moment their task completes, fails, or the peer closes.
//   - Timers: [TimerQueue] fires callbacks in deadline order, ties in scheduling order.
//   - Fairness: a session that completes too many operations in one dispatch yields and is resumed on the next iteration.
//
// # API Topologies
//
//   - Operations: [ReadLine], [Write], [Await], [Sleep], [Deliver].
//   - Cont-world: [ReadLineBind], [WriteThen], [WriteString], [AwaitBind], [SleepThen], [DeliverThen], [Done], [Fail].
//   - Expr-world: [ExprReadLineBind], [ExprWriteThen], [ExprAwaitBind], [ExprDone], [ExprFail], run through [ExprTask].
//   - Recursive: [Loop] and [ExprLoop].
//
// # Cross-Session Completion
//
// A session waiting on another performs [Await]. The other side hands the
// result over with [Reactor.Deliver], which queues the value in the
// waiter's mailbox and dispatches it right away. Dispatch may nest;
// [Reactor.Current] always reports the session being dispatched.
//
// # Example
//
//	echo := func(s *reactor.Session) kont.Eff[struct{}] {
//		return reactor.Loop(0, func(n int) kont.Eff[kont.Either[int, struct{}]] {
//			return reactor.ReadLineBind(func(line string) kont.Eff[kont.Either[int, struct{}]] {
//				return reactor.WriteString(line, reactor.Continue[int, struct{}](n+1))
//			})
//		})
//	}
//	l, _ := reactor.Listen("127.0.0.1", 7000)
//	r, _ := reactor.New()
//	_ = r.Listen(l, echo)
//	_ = r.Run(ctx)
package reactor
