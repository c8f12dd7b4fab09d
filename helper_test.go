// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

//go:build unix

package reactor_test

import (
	"bufio"
	"context"
	"errors"
	"io"
	"net"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"code.hybscloud.com/kont"
	"code.hybscloud.com/reactor"
	"go.uber.org/zap/zaptest"
)

const testTimeout = 5 * time.Second

// newReactor creates a reactor logging to the test and a fast poll.
// Options given later override the defaults.
func newReactor(t *testing.T, opts ...reactor.Option) *reactor.Reactor {
	t.Helper()
	base := []reactor.Option{
		reactor.WithLogger(zaptest.NewLogger(t)),
		reactor.WithPollTimeout(10 * time.Millisecond),
	}
	r, err := reactor.New(append(base, opts...)...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return r
}

// listen registers a loopback listener on an ephemeral port and returns
// its port.
func listen(t *testing.T, r *reactor.Reactor, entry reactor.Task) int {
	t.Helper()
	l, err := reactor.Listen("127.0.0.1", 0)
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	if err := r.Listen(l, entry); err != nil {
		l.Close()
		t.Fatalf("Reactor.Listen: %v", err)
	}
	return l.Addr().(*net.TCPAddr).Port
}

// run starts the loop on its own goroutine. The returned function stops it
// and returns the error Run returned; it is also registered as cleanup.
func run(t *testing.T, r *reactor.Reactor) func() error {
	t.Helper()
	done := make(chan error, 1)
	go func() { done <- r.Run(context.Background()) }()
	var (
		once sync.Once
		err  error
	)
	stop := func() error {
		once.Do(func() {
			if serr := r.Stop(); serr != nil {
				err = serr
				return
			}
			select {
			case err = <-done:
			case <-time.After(testTimeout):
				err = errors.New("reactor did not stop")
			}
		})
		return err
	}
	t.Cleanup(func() {
		if err := stop(); err != nil {
			t.Errorf("stop: %v", err)
		}
	})
	return stop
}

// serve is newReactor + listen + run for a single listener.
func serve(t *testing.T, entry reactor.Task, opts ...reactor.Option) (*reactor.Reactor, int) {
	t.Helper()
	r := newReactor(t, opts...)
	port := listen(t, r, entry)
	run(t, r)
	return r, port
}

// onLoop runs fn on the loop thread and waits for it.
func onLoop(t *testing.T, r *reactor.Reactor, fn func()) {
	t.Helper()
	done := make(chan struct{})
	if err := r.Post(func() { fn(); close(done) }); err != nil {
		t.Fatalf("Post: %v", err)
	}
	select {
	case <-done:
	case <-time.After(testTimeout):
		t.Fatal("posted function did not run")
	}
}

// eventually polls cond until it holds or the test times out.
func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(testTimeout)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

type client struct {
	t    *testing.T
	conn net.Conn
	rd   *bufio.Reader
}

func dial(t *testing.T, port int) *client {
	t.Helper()
	conn, err := net.DialTimeout("tcp", net.JoinHostPort("127.0.0.1", strconv.Itoa(port)), testTimeout)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return &client{t: t, conn: conn, rd: bufio.NewReader(conn)}
}

func (c *client) send(line string) {
	c.t.Helper()
	c.conn.SetWriteDeadline(time.Now().Add(testTimeout))
	if _, err := io.WriteString(c.conn, line); err != nil {
		c.t.Fatalf("send %q: %v", line, err)
	}
}

// line reads one line with its terminator stripped.
func (c *client) line() string {
	c.t.Helper()
	c.conn.SetReadDeadline(time.Now().Add(testTimeout))
	s, err := c.rd.ReadString('\n')
	if err != nil {
		c.t.Fatalf("read line: %v (partial %q)", err, s)
	}
	return strings.TrimRight(s, "\r\n")
}

// expectLine reads one line and compares it to want.
func (c *client) expectLine(want string) {
	c.t.Helper()
	if got := c.line(); got != want {
		c.t.Fatalf("line: got %q, want %q", got, want)
	}
}

// expectEOF waits for the server to close the connection.
func (c *client) expectEOF() {
	c.t.Helper()
	c.conn.SetReadDeadline(time.Now().Add(testTimeout))
	rest, err := io.ReadAll(c.rd)
	if err != nil && !errors.Is(err, net.ErrClosed) && !isReset(err) {
		c.t.Fatalf("expected EOF, got %v (read %q)", err, rest)
	}
}

func (c *client) close() { c.conn.Close() }

func isReset(err error) bool {
	return strings.Contains(err.Error(), "connection reset")
}

// echoTask answers every line with "echo: <line>" until the peer goes away.
func echoTask(s *reactor.Session) kont.Eff[struct{}] {
	return reactor.Loop(0, func(n int) kont.Eff[kont.Either[int, struct{}]] {
		return reactor.ReadLineBind(func(line string) kont.Eff[kont.Either[int, struct{}]] {
			return reactor.WriteString("echo: "+line, reactor.Continue[int, struct{}](n+1))
		})
	})
}
