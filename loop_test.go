// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

//go:build unix

package reactor

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"code.hybscloud.com/kont"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
	"golang.org/x/sys/unix"
)

func TestAcceptFailurePausesListener(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	now := time.Unix(1000, 0)
	const pause = 50 * time.Millisecond
	r, err := New(
		WithLogger(zap.New(core)),
		WithPollTimeout(pause),
		WithClock(func() time.Time { return now }),
	)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer r.Close()

	// A closed descriptor makes every accept fail with EBADF.
	r.reg.addListener(&Listener{fd: -1, addr: &net.TCPAddr{}}, func(*Session) kont.Eff[struct{}] { return Done() })
	le := &r.reg.listeners[0]
	r.accept(le)
	if !le.paused(now) {
		t.Fatal("listener not paused after a failed accept")
	}
	if n := logs.FilterMessage("accept failed").Len(); n != 1 {
		t.Fatalf("accept failed logged %d times, want 1", n)
	}

	var polled int
	r.poller.poll = func(fds []unix.PollFd, _ int) (int, error) {
		polled = len(fds)
		return 0, nil
	}
	if err := r.tick(); err != nil {
		t.Fatalf("tick: %v", err)
	}
	if polled != 1 {
		t.Fatalf("polled %d descriptors while paused, want only the inbox", polled)
	}

	now = now.Add(pause + time.Nanosecond)
	if le.paused(now) {
		t.Fatal("listener still paused after the poll timeout")
	}
	if err := r.tick(); err != nil {
		t.Fatalf("tick: %v", err)
	}
	if polled != 2 {
		t.Fatalf("polled %d descriptors after the pause, want 2", polled)
	}
}

func TestPollFailureEndsRun(t *testing.T) {
	core, logs := observer.New(zap.ErrorLevel)
	r, err := New(WithLogger(zap.New(core)))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	l, err := Listen("127.0.0.1", 0)
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	if err := r.Listen(l, func(*Session) kont.Eff[struct{}] { return Done() }); err != nil {
		t.Fatalf("Reactor.Listen: %v", err)
	}
	r.poller.poll = func([]unix.PollFd, int) (int, error) { return 0, unix.EBADF }

	if err := r.Run(context.Background()); !errors.Is(err, unix.EBADF) {
		t.Fatalf("Run: got %v, want EBADF", err)
	}
	if l.fd != -1 {
		t.Fatal("listener left open after a failed run")
	}
	if err := r.Post(func() {}); !errors.Is(err, ErrStopped) {
		t.Fatalf("Post after failed run: got %v, want ErrStopped", err)
	}
	if n := logs.FilterMessage("reactor loop failed").Len(); n != 1 {
		t.Fatalf("reactor loop failed logged %d times, want 1", n)
	}
}

func TestInterruptedPollKeepsRunning(t *testing.T) {
	r, err := New()
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	l, err := Listen("127.0.0.1", 0)
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	if err := r.Listen(l, func(*Session) kont.Eff[struct{}] { return Done() }); err != nil {
		t.Fatalf("Reactor.Listen: %v", err)
	}
	calls := 0
	r.poller.poll = func([]unix.PollFd, int) (int, error) {
		calls++
		if calls == 1 {
			return 0, unix.EINTR
		}
		r.stopping = true
		return 0, nil
	}
	if err := r.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if calls != 2 {
		t.Fatalf("poll called %d times, want 2", calls)
	}
}
