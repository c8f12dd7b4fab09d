// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

//go:build unix

// Package caser is a line-oriented echo protocol that answers every line
// in the session's current letter case.
package caser

import (
	"fmt"
	"strings"

	"code.hybscloud.com/kont"
	"code.hybscloud.com/reactor"
	"code.hybscloud.com/reactor/internal/httpget"
	"go.uber.org/zap"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Fixed replies.
const (
	// Banner greets a new connection.
	Banner = "<Welcome to the echo-server! Starting in upper case mode>\r\n" +
		"<To see the available commands, type \"help\" and press return>\r\n\r\n"

	// Help lists the commands.
	Help = "Available commands: \r\n" +
		"help - shows the available commands\r\n" +
		"quit - quits the session\r\n" +
		"upper - sets the echoing mode to UPPER case\r\n" +
		"lower - sets the echoing mode to lower case\r\n" +
		"title - sets the echoing mode to Title case\r\n" +
		"http <url> - shows the response header of an http URL\r\n" +
		"\r\n"

	// Bye answers quit.
	Bye = "bye!\r\n"
)

// Mode is the letter case lines are echoed in.
type Mode uint8

const (
	Upper Mode = iota // UPPER case, the initial mode
	Lower             // lower case
	Title             // Title case, word by word
)

// ParseMode maps a mode command to its Mode.
func ParseMode(cmd string) (Mode, bool) {
	switch cmd {
	case "upper":
		return Upper, true
	case "lower":
		return Lower, true
	case "title":
		return Title, true
	}
	return 0, false
}

// Apply returns str in the mode's case.
func (m Mode) Apply(str string) string {
	switch m {
	case Lower:
		return cases.Lower(language.Und).String(str)
	case Title:
		return cases.Title(language.Und).String(str)
	default:
		return cases.Upper(language.Und).String(str)
	}
}

// String returns the mode's name in its own case: UPPER, lower or Title.
func (m Mode) String() string {
	switch m {
	case Lower:
		return m.Apply("lower")
	case Title:
		return m.Apply("title")
	default:
		return m.Apply("upper")
	}
}

// Switching is the reply to a command changing the mode to m.
func Switching(m Mode) string {
	return fmt.Sprintf("<Switching to %s cased mode>\r\n\r\n", m)
}

// Already is the reply to a command naming the active mode m.
func Already(m Mode) string {
	return fmt.Sprintf("<Already in %s cased mode>\r\n\r\n", m)
}

// Echo is the reply to a plain line in mode m.
func Echo(m Mode, line string) string {
	return fmt.Sprintf("%s-cased: %s\r\n\r\n", m, m.Apply(line))
}

// Handler serves the protocol on accepted sessions.
type Handler struct {
	log *zap.Logger
}

// New returns a Handler logging to log. A nil log discards.
func New(log *zap.Logger) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Handler{log: log}
}

type step = kont.Eff[kont.Either[Mode, struct{}]]

// Task is the session entry point: it greets the peer and then answers
// line by line until the peer quits or goes away.
func (h *Handler) Task(s *reactor.Session) kont.Eff[struct{}] {
	log := h.log.With(zap.Stringer("session", s))
	log.Info("connection received")
	s.OnClose(func() { log.Info("connection quit") })
	return reactor.WriteString(Banner, reactor.Loop(Upper, func(m Mode) step {
		return reactor.ReadLineBind(func(line string) step {
			line = strings.TrimSpace(line)
			log.Debug("line received", zap.String("line", line), zap.Stringer("mode", m))
			return h.reply(s, m, line)
		})
	}))
}

func (h *Handler) reply(s *reactor.Session, m Mode, line string) step {
	next := reactor.Continue[Mode, struct{}]
	switch {
	case line == "":
		return next(m)
	case line == "quit":
		return reactor.WriteString(Bye, reactor.Break[Mode](struct{}{}))
	case line == "help":
		return reactor.WriteString(Help, next(m))
	case line == "http" || strings.HasPrefix(line, "http "):
		return h.fetch(s, m, strings.TrimSpace(strings.TrimPrefix(line, "http")))
	}
	if to, ok := ParseMode(line); ok {
		if to == m {
			return reactor.WriteString(Already(m), next(m))
		}
		return reactor.WriteString(Switching(to), next(to))
	}
	return reactor.WriteString(Echo(m, line), next(m))
}

// fetch starts an http fetch and answers with its result once delivered.
func (h *Handler) fetch(s *reactor.Session, m Mode, raw string) step {
	next := reactor.Continue[Mode, struct{}]
	if err := httpget.Start(s, raw); err != nil {
		h.log.Debug("fetch rejected", zap.Stringer("session", s), zap.Error(err))
		return reactor.WriteString(httpget.Result{URL: raw, Err: err}.Format(), next(m))
	}
	return reactor.AwaitBind(func(res httpget.Result) step {
		return reactor.WriteString(res.Format(), next(m))
	})
}
