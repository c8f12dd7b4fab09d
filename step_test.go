// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

//go:build unix

package reactor

import (
	"errors"
	"strings"
	"testing"

	"code.hybscloud.com/iox"
	"code.hybscloud.com/kont"
	"golang.org/x/sys/unix"
)

// detached returns a session with no socket whose reads replay steps.
func detached(r *Reactor, steps ...any) *Session {
	s := &Session{reactor: r, fd: -1}
	s.reader.fill = script(steps...)
	s.mailbox.Init(mailboxCapacity)
	return s
}

// socketSession registers a session on one end of a socket pair and
// returns the other end.
func socketSession(t *testing.T, r *Reactor, task Task) (*Session, int) {
	t.Helper()
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM, 0)
	if err != nil {
		t.Fatalf("socketpair: %v", err)
	}
	if err := unix.SetNonblock(fds[0], true); err != nil {
		t.Fatalf("setnonblock: %v", err)
	}
	t.Cleanup(func() { unix.Close(fds[1]) })
	return r.newSession(fds[0], nil, task), fds[1]
}

func TestStepAdvanceReadAwait(t *testing.T) {
	s := detached(nil, "hello\n")
	var got string
	task := ReadLineBind(func(line string) kont.Eff[struct{}] {
		return AwaitBind(func(v string) kont.Eff[struct{}] {
			got = strings.TrimSpace(line) + " " + v
			return Done()
		})
	})

	_, susp := Step(task)
	if susp == nil {
		t.Fatal("expected suspension for ReadLine")
	}
	if _, ok := susp.Op().(ReadLine); !ok {
		t.Fatalf("expected ReadLine, got %T", susp.Op())
	}

	_, susp, err := Advance(s, susp)
	if err != nil {
		t.Fatalf("Advance ReadLine: %v", err)
	}
	if _, ok := susp.Op().(Await[string]); !ok {
		t.Fatalf("expected Await[string], got %T", susp.Op())
	}

	// Nothing delivered yet: the suspension comes back unconsumed.
	_, again, err := Advance(s, susp)
	if !iox.IsWouldBlock(err) {
		t.Fatalf("Advance empty Await: got %v, want ErrWouldBlock", err)
	}
	if again != susp {
		t.Fatal("would-block Advance did not return the same suspension")
	}

	v := any("world")
	if err := s.mailbox.Enqueue(&v); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	result, susp, err := Advance(s, again)
	if err != nil || susp != nil {
		t.Fatalf("Advance Await: susp=%v err=%v", susp, err)
	}
	if result.IsLeft() {
		t.Fatalf("result is Left")
	}
	if got != "hello world" {
		t.Fatalf("got %q", got)
	}
}

func TestStepFailIsLeft(t *testing.T) {
	boom := errors.New("boom")
	result, susp := Step(ReadLineBind(func(string) kont.Eff[struct{}] {
		return Fail[struct{}](boom)
	}))
	if susp == nil {
		t.Fatal("expected suspension")
	}
	result, susp, err := Advance(detached(nil, "x\n"), susp)
	if err != nil {
		t.Fatalf("Advance ReadLine: %v", err)
	}
	for susp != nil {
		if result, susp, err = Advance(nil, susp); err != nil {
			t.Fatalf("Advance: %v", err)
		}
	}
	if e, ok := result.GetLeft(); !ok || !errors.Is(e, boom) {
		t.Fatalf("result: got %v, want Left(boom)", result)
	}
}

type bogus struct {
	kont.Phantom[int]
}

func TestAdvanceUnhandledEffect(t *testing.T) {
	_, susp := Step(kont.Bind(kont.Perform(bogus{}), func(int) kont.Eff[struct{}] {
		return Done()
	}))
	_, next, err := Advance(detached(nil), susp)
	if err == nil || next != nil {
		t.Fatalf("Advance: next=%v err=%v", next, err)
	}
}

func TestAwaitMismatch(t *testing.T) {
	s := detached(nil)
	v := any(42)
	s.mailbox.Enqueue(&v)
	if _, err := (Await[string]{}).DispatchSession(s); !errors.Is(err, ErrMismatch) {
		t.Fatalf("Await: got %v, want ErrMismatch", err)
	}
}

func TestDriveDeliverTeardown(t *testing.T) {
	r, err := New()
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer r.Close()

	var got int
	finalized := 0
	s, peer := socketSession(t, r, func(s *Session) kont.Eff[struct{}] {
		s.OnClose(func() { finalized++ })
		return AwaitBind(func(v int) kont.Eff[struct{}] {
			got = v
			return Done()
		})
	})

	r.drive(s)
	if s.Closed() || s.Intent() != IntentNone {
		t.Fatalf("after priming: closed=%v intent=%v", s.Closed(), s.Intent())
	}
	if r.Current() != nil {
		t.Fatal("current session not restored")
	}

	if err := r.Deliver(s, 7); err != nil {
		t.Fatalf("Deliver: %v", err)
	}
	if got != 7 || !s.Closed() || finalized != 1 {
		t.Fatalf("after delivery: got=%d closed=%v finalized=%d", got, s.Closed(), finalized)
	}

	r.teardown(s, outcomeFailed, errors.New("again"))
	if finalized != 1 {
		t.Fatalf("second teardown ran finalizers: %d", finalized)
	}
	if st := r.Stats(); st.Completed != 1 || st.Failed != 0 || st.Live != 0 {
		t.Fatalf("stats: %+v", st)
	}
	if r.Len() != 0 {
		t.Fatalf("registry still holds %d sessions", r.Len())
	}

	// The peer sees the socket closed.
	var buf [1]byte
	if n, err := unix.Read(peer, buf[:]); n != 0 || err != nil {
		t.Fatalf("peer read: n=%d err=%v", n, err)
	}
	if err := r.Deliver(s, 8); !errors.Is(err, ErrSessionClosed) {
		t.Fatalf("Deliver after teardown: got %v", err)
	}
}

func TestDeliverRejectsNilAndFullMailbox(t *testing.T) {
	r, err := New()
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer r.Close()

	s, _ := socketSession(t, r, func(s *Session) kont.Eff[struct{}] {
		return ReadLineBind(func(string) kont.Eff[struct{}] { return Done() })
	})
	r.drive(s)
	if s.Intent() != IntentRead {
		t.Fatalf("intent: got %v, want read", s.Intent())
	}

	if err := r.Deliver(s, nil); !errors.Is(err, ErrMismatch) {
		t.Fatalf("Deliver nil: got %v", err)
	}
	for i := range 64 {
		err := r.Deliver(s, i)
		if err == nil {
			continue
		}
		if !errors.Is(err, ErrMailboxFull) || !iox.IsWouldBlock(err) {
			t.Fatalf("Deliver: got %v, want ErrMailboxFull", err)
		}
		if s.Closed() || s.Intent() != IntentRead {
			t.Fatal("deliveries disturbed a reading session")
		}
		return
	}
	t.Fatal("mailbox never filled up")
}

func TestWriteToClosedPeerCompletes(t *testing.T) {
	r, err := New()
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer r.Close()

	big := make([]byte, 1<<20)
	s, peer := socketSession(t, r, func(s *Session) kont.Eff[struct{}] {
		return ReadLineBind(func(string) kont.Eff[struct{}] {
			return WriteThen(big, WriteThen(big, Done()))
		})
	})
	r.drive(s)
	if s.Intent() != IntentRead {
		t.Fatalf("intent: got %v, want read", s.Intent())
	}

	if _, err := unix.Write(peer, []byte("go\n")); err != nil {
		t.Fatalf("peer write: %v", err)
	}
	unix.Close(peer)
	r.drive(s)
	if !s.Closed() {
		t.Fatal("session survived a broken pipe")
	}
	if st := r.Stats(); st.Completed != 1 || st.Failed != 0 || st.Live != 0 {
		t.Fatalf("stats: %+v", st)
	}
}
