// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

//go:build unix

package reactor

import (
	"os"
	"sync"

	"github.com/eapache/queue"
	"golang.org/x/sys/unix"
)

// inbox funnels work from other goroutines onto the loop thread.
// Posted functions queue up in FIFO order; a byte written to a pipe wakes
// the loop out of poll. The read end sits in the read-interest set.
type inbox struct {
	mu     sync.Mutex
	q      *queue.Queue
	rfd    int
	wfd    int
	closed bool
	batch  []func()
}

func newInbox() (*inbox, error) {
	var p [2]int
	if err := unix.Pipe(p[:]); err != nil {
		return nil, os.NewSyscallError("pipe", err)
	}
	for _, fd := range p {
		unix.CloseOnExec(fd)
		if err := unix.SetNonblock(fd, true); err != nil {
			unix.Close(p[0])
			unix.Close(p[1])
			return nil, os.NewSyscallError("setnonblock", err)
		}
	}
	return &inbox{q: queue.New(), rfd: p[0], wfd: p[1]}, nil
}

// post queues fn and wakes the loop. Safe for concurrent use.
func (b *inbox) post(fn func()) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrStopped
	}
	b.q.Add(fn)
	// A full pipe already guarantees a wakeup.
	_, _ = unix.Write(b.wfd, []byte{1})
	return nil
}

// take clears pending wakeups and returns everything posted so far.
// The returned slice is reused by the next call.
func (b *inbox) take() []func() {
	var sink [64]byte
	for {
		n, err := unix.Read(b.rfd, sink[:])
		if n <= 0 || err != nil {
			break
		}
	}
	b.batch = b.batch[:0]
	b.mu.Lock()
	for b.q.Length() > 0 {
		b.batch = append(b.batch, b.q.Remove().(func()))
	}
	b.mu.Unlock()
	return b.batch
}

// close stops accepting posts and releases the pipe.
// Functions still queued are dropped.
func (b *inbox) close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	unix.Close(b.rfd)
	unix.Close(b.wfd)
}
