// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

//go:build unix

// Package httpget fetches the status line and headers of an http URL on an
// outbound reactor session and delivers them to the session that asked.
package httpget

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"
	"time"

	"code.hybscloud.com/kont"
	"code.hybscloud.com/reactor"
)

const (
	defaultPort    = 80
	resolveTimeout = 5 * time.Second
)

var (
	// ErrScheme is returned by Parse for URLs that are not plain http.
	ErrScheme = errors.New("httpget: unsupported scheme")

	// ErrNoHost is returned by Parse for URLs without a host.
	ErrNoHost = errors.New("httpget: missing host")

	// ErrNoResponse reports that the connection ended before a complete
	// response header was read.
	ErrNoResponse = errors.New("httpget: connection closed before response")

	// ErrMalformed reports a status line that is not HTTP.
	ErrMalformed = errors.New("httpget: malformed status line")
)

// Request is a parsed GET target.
type Request struct {
	Host string
	Port int
	Path string
}

// Parse parses an http URL. The path defaults to "/" and the port to 80.
func Parse(raw string) (Request, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return Request{}, fmt.Errorf("httpget: %w", err)
	}
	if u.Scheme != "http" {
		return Request{}, fmt.Errorf("%w: %q", ErrScheme, u.Scheme)
	}
	req := Request{Host: u.Hostname(), Port: defaultPort, Path: u.RequestURI()}
	if req.Host == "" {
		return Request{}, ErrNoHost
	}
	if p := u.Port(); p != "" {
		n, err := strconv.Atoi(p)
		if err != nil || n <= 0 || n > 65535 {
			return Request{}, fmt.Errorf("httpget: invalid port %q", p)
		}
		req.Port = n
	}
	return req, nil
}

// String returns the request as a URL.
func (r Request) String() string {
	return "http://" + r.authority() + r.Path
}

// Wire returns the HTTP/1.0 request text.
func (r Request) Wire() string {
	return "GET " + r.Path + " HTTP/1.0\r\nHost: " + r.authority() + "\r\n\r\n"
}

func (r Request) authority() string {
	host := r.Host
	if strings.Contains(host, ":") {
		host = "[" + host + "]"
	}
	if r.Port != defaultPort {
		host += ":" + strconv.Itoa(r.Port)
	}
	return host
}

// Result is the outcome of a fetch, delivered to the requesting session.
type Result struct {
	URL    string
	Status string
	Header []string
	Err    error
}

// Format renders the result as a block of CRLF-terminated lines.
func (r Result) Format() string {
	var b strings.Builder
	if r.Err != nil {
		fmt.Fprintf(&b, "<GET %s failed: %v>\r\n\r\n", r.URL, r.Err)
		return b.String()
	}
	fmt.Fprintf(&b, "<GET %s: %s>\r\n", r.URL, r.Status)
	for _, h := range r.Header {
		b.WriteString(h)
		b.WriteString("\r\n")
	}
	b.WriteString("\r\n")
	return b.String()
}

// Task returns the task of an outbound session fetching req.
// Exactly one Result reaches origin: the response header on success, or
// a Result carrying Err when the session ends any other way.
func Task(origin *reactor.Session, req Request) reactor.Task {
	return func(s *reactor.Session) kont.Eff[struct{}] {
		res := Result{URL: req.String()}
		delivered := false
		s.OnClose(func() {
			if delivered {
				return
			}
			delivered = true
			if res.Err == nil {
				res.Err = ErrNoResponse
			}
			_ = s.Reactor().Deliver(origin, res)
		})
		return reactor.WriteString(req.Wire(), reactor.ReadLineBind(func(status string) kont.Eff[struct{}] {
			status = strings.TrimRight(status, "\r\n")
			if !strings.HasPrefix(status, "HTTP/") {
				res.Err = fmt.Errorf("%w: %q", ErrMalformed, status)
				return reactor.Fail[struct{}](res.Err)
			}
			res.Status = status
			return kont.Bind(readHeader(), func(h []string) kont.Eff[struct{}] {
				res.Header = h
				delivered = true
				return reactor.DeliverThen(origin, res, func(bool) kont.Eff[struct{}] {
					return reactor.Done()
				})
			})
		}))
	}
}

// readHeader reads header lines up to the blank line ending them.
func readHeader() kont.Eff[[]string] {
	return reactor.Loop([]string(nil), func(acc []string) kont.Eff[kont.Either[[]string, []string]] {
		return reactor.ReadLineBind(func(line string) kont.Eff[kont.Either[[]string, []string]] {
			line = strings.TrimRight(line, "\r\n")
			if line == "" {
				return reactor.Break[[]string](acc)
			}
			return reactor.Continue[[]string, []string](append(acc, line))
		})
	})
}

// Start parses raw and dials the fetch on origin's reactor.
// The Result is delivered to origin, which should Await it.
// A host name is resolved on its own goroutine and the dial posted back to
// the loop, so the loop thread never waits on DNS.
func Start(origin *reactor.Session, raw string) error {
	req, err := Parse(raw)
	if err != nil {
		return err
	}
	r := origin.Reactor()
	if net.ParseIP(req.Host) != nil {
		_, err = r.Dial(req.Host, req.Port, Task(origin, req))
		return err
	}
	go resolve(r, origin, req)
	return nil
}

func resolve(r *reactor.Reactor, origin *reactor.Session, req Request) {
	ctx, cancel := context.WithTimeout(context.Background(), resolveTimeout)
	defer cancel()
	ip, lerr := lookup(ctx, req.Host)
	_ = r.Post(func() {
		if origin.Closed() {
			return
		}
		err := lerr
		if err == nil {
			_, err = r.Dial(ip, req.Port, Task(origin, req))
		}
		if err != nil {
			_ = r.Deliver(origin, Result{URL: req.String(), Err: err})
		}
	})
}

// lookup resolves host, preferring an IPv4 address.
func lookup(ctx context.Context, host string) (string, error) {
	addrs, err := net.DefaultResolver.LookupIPAddr(ctx, host)
	if err != nil {
		return "", fmt.Errorf("httpget: resolve %s: %w", host, err)
	}
	if len(addrs) == 0 {
		return "", fmt.Errorf("httpget: resolve %s: no addresses", host)
	}
	for _, a := range addrs {
		if a.IP.To4() != nil {
			return a.IP.String(), nil
		}
	}
	return addrs[0].IP.String(), nil
}
