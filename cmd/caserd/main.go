// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

//go:build unix

// Command caserd serves the caser echo protocol on a single-threaded
// reactor.
//
// Usage:
//
//	caserd [-host localhost] [-port 1848] [-poll-timeout 100ms] [-log-level info] [-dev]
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"code.hybscloud.com/reactor"
	"code.hybscloud.com/reactor/internal/caser"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type config struct {
	host        string
	port        int
	pollTimeout time.Duration
	logLevel    string
	dev         bool
}

func parseFlags(args []string) (config, error) {
	var cfg config
	fs := flag.NewFlagSet("caserd", flag.ContinueOnError)
	fs.StringVar(&cfg.host, "host", "localhost", "address to listen on")
	fs.IntVar(&cfg.port, "port", 1848, "TCP port to listen on")
	fs.DurationVar(&cfg.pollTimeout, "poll-timeout", 100*time.Millisecond, "upper bound of one poll wait")
	fs.StringVar(&cfg.logLevel, "log-level", "info", "log level: debug, info, warn, error")
	fs.BoolVar(&cfg.dev, "dev", false, "human-readable development logging")
	if err := fs.Parse(args); err != nil {
		return config{}, err
	}
	if cfg.port < 0 || cfg.port > 65535 {
		return config{}, fmt.Errorf("invalid port %d", cfg.port)
	}
	return cfg, nil
}

func newLogger(cfg config) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.logLevel)
	if err != nil {
		return nil, err
	}
	zc := zap.NewProductionConfig()
	if cfg.dev {
		zc = zap.NewDevelopmentConfig()
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	return zc.Build()
}

func run(ctx context.Context, cfg config, log *zap.Logger) error {
	l, err := reactor.Listen(cfg.host, cfg.port)
	if err != nil {
		return err
	}
	r, err := reactor.New(
		reactor.WithLogger(log),
		reactor.WithPollTimeout(cfg.pollTimeout),
	)
	if err != nil {
		l.Close()
		return err
	}
	if err := r.Listen(l, caser.New(log).Task); err != nil {
		l.Close()
		return err
	}
	log.Info("listening", zap.Stringer("addr", l.Addr()))
	err = r.Run(ctx)
	st := r.Stats()
	log.Info("shut down",
		zap.Uint64("accepted", st.Accepted),
		zap.Uint64("dialed", st.Dialed),
		zap.Uint64("completed", st.Completed),
		zap.Uint64("failed", st.Failed))
	return err
}

func main() {
	cfg, err := parseFlags(os.Args[1:])
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		os.Exit(2)
	}
	log, err := newLogger(cfg)
	if err != nil {
		fmt.Fprintln(os.Stderr, "caserd:", err)
		os.Exit(2)
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := run(ctx, cfg, log); err != nil {
		log.Error("caserd failed", zap.Error(err))
		log.Sync()
		os.Exit(1)
	}
}
