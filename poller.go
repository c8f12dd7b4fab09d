// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

//go:build unix

package reactor

import (
	"os"
	"time"

	"golang.org/x/sys/unix"
)

// targetKind tells the loop what a polled descriptor belongs to.
type targetKind uint8

const (
	targetWake targetKind = iota
	targetListener
	targetSession
)

// pollTarget identifies the owner of a polled descriptor.
// Sessions are referenced by Serial, not by descriptor, so a descriptor
// recycled within one iteration never reaches the wrong session.
type pollTarget struct {
	kind  targetKind
	index int
	id    Serial
}

// poller is the readiness multiplexer. The interest set is rebuilt every
// iteration from the sessions' declared intents.
type poller struct {
	fds      []unix.PollFd
	targets  []pollTarget
	readable []pollTarget
	writable []pollTarget

	// poll defaults to unix.Poll. Tests replace it to inject failures.
	poll func(fds []unix.PollFd, timeout int) (int, error)
}

func (p *poller) reset() {
	p.fds = p.fds[:0]
	p.targets = p.targets[:0]
}

// addRead adds fd to the read-interest set.
func (p *poller) addRead(fd int, t pollTarget) {
	p.fds = append(p.fds, unix.PollFd{Fd: int32(fd), Events: unix.POLLIN})
	p.targets = append(p.targets, t)
}

// addWrite adds fd to the write-interest set.
func (p *poller) addWrite(fd int, t pollTarget) {
	p.fds = append(p.fds, unix.PollFd{Fd: int32(fd), Events: unix.POLLOUT})
	p.targets = append(p.targets, t)
}

// wait polls the interest set for at most timeout and returns the ready
// targets partitioned by interest, each in interest-set order.
// An interrupted poll reports nothing ready. Hang-up and error conditions
// count as ready so the next I/O attempt observes them.
// The returned slices are reused by the next call.
func (p *poller) wait(timeout time.Duration) (readable, writable []pollTarget, err error) {
	p.readable = p.readable[:0]
	p.writable = p.writable[:0]
	poll := p.poll
	if poll == nil {
		poll = unix.Poll
	}
	n, err := poll(p.fds, pollMillis(timeout))
	if err == unix.EINTR {
		return p.readable, p.writable, nil
	}
	if err != nil {
		return nil, nil, os.NewSyscallError("poll", err)
	}
	if n == 0 {
		return p.readable, p.writable, nil
	}
	const failed = unix.POLLHUP | unix.POLLERR | unix.POLLNVAL
	for i := range p.fds {
		rev := p.fds[i].Revents
		if rev == 0 {
			continue
		}
		if p.fds[i].Events&unix.POLLIN != 0 && rev&(unix.POLLIN|failed) != 0 {
			p.readable = append(p.readable, p.targets[i])
		}
		if p.fds[i].Events&unix.POLLOUT != 0 && rev&(unix.POLLOUT|failed) != 0 {
			p.writable = append(p.writable, p.targets[i])
		}
	}
	return p.readable, p.writable, nil
}

// pollMillis rounds up so a sub-millisecond wait does not spin.
func pollMillis(d time.Duration) int {
	if d <= 0 {
		return 0
	}
	return int((d + time.Millisecond - 1) / time.Millisecond)
}
