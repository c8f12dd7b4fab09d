// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

//go:build unix

package reactor

import (
	"time"

	"go.uber.org/zap"
)

const (
	defaultPollTimeout   = 100 * time.Millisecond
	defaultStepBudget    = 64
	defaultMaxLineLength = 64 << 10
	defaultAcceptBatch   = 16
)

type options struct {
	logger        *zap.Logger
	pollTimeout   time.Duration
	clock         func() time.Time
	stepBudget    int
	maxLineLength int
	acceptBatch   int
}

func defaultOptions() options {
	return options{
		logger:        zap.NewNop(),
		pollTimeout:   defaultPollTimeout,
		clock:         time.Now,
		stepBudget:    defaultStepBudget,
		maxLineLength: defaultMaxLineLength,
		acceptBatch:   defaultAcceptBatch,
	}
}

// Option customizes a Reactor.
type Option func(*options)

// WithLogger sets the logger. The default discards everything.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithPollTimeout bounds how long one poll may wait for readiness, so the
// timer queue is serviced without I/O activity. Defaults to 100ms.
func WithPollTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.pollTimeout = d
		}
	}
}

// WithClock replaces the clock used for timers and Sleep.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.clock = now
		}
	}
}

// WithStepBudget sets how many operations one session may complete in a
// single dispatch before yielding to the others. Defaults to 64.
func WithStepBudget(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.stepBudget = n
		}
	}
}

// WithMaxLineLength caps the length of a line returned by ReadLine.
// Defaults to 64 KiB.
func WithMaxLineLength(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.maxLineLength = n
		}
	}
}

// WithAcceptBatch caps how many connections one listener accepts per loop
// iteration. Defaults to 16.
func WithAcceptBatch(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.acceptBatch = n
		}
	}
}
