package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/lonelysadness/proconn/pkg/display"
	"github.com/lonelysadness/proconn/pkg/metrics"
	"github.com/lonelysadness/proconn/pkg/proconn"
	"github.com/prometheus/procfs"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const (
	outputLog      = "log"
	outputTerminal = "terminal"
)

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Listen for process events until interrupted",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd)
		},
	}

	flags := cmd.Flags()
	flags.Int("buffer-size", proconn.DefaultBufferSize, "receive buffer size in bytes")
	flags.String("log-level", "info", "log level (debug, info, warn, error)")
	flags.String("output", outputLog, "output mode (log, terminal)")
	flags.StringSlice("events", kindNames(proconn.Kinds), "event kinds to handle")
	flags.String("metrics-addr", "", "serve Prometheus metrics on this address, e.g. :9090")

	for _, name := range []string{"buffer-size", "log-level", "output", "events", "metrics-addr"} {
		_ = viper.BindPFlag(name, flags.Lookup(name))
	}
	return cmd
}

func run(cmd *cobra.Command) error {
	if os.Geteuid() != 0 {
		return errors.New("this program must be run as root")
	}

	logger, err := newLogger(viper.GetString("log-level"))
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	kinds, err := parseKinds(viper.GetStringSlice("events"))
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg := proconn.DefaultConfig()
	cfg.BufferSize = viper.GetInt("buffer-size")
	cfg.Logger = logger

	if addr := viper.GetString("metrics-addr"); addr != "" {
		m := metrics.NewPrometheusMetric(nil)
		cfg.Metrics = m
		go func() {
			if err := m.ListenAndServe(addr); err != nil {
				logger.Error("metrics server stopped", zap.Error(err))
			}
		}()
		logger.Info("serving metrics", zap.String("addr", addr))
	}

	var emit func(proconn.Event)
	switch output := viper.GetString("output"); output {
	case outputLog:
		events := logger.Named("events")
		emit = func(ev proconn.Event) {
			meta := ev.Meta()
			events.Info(display.FormatEvent(ev),
				zap.Stringer("kind", ev.Kind()),
				zap.Uint32("cpu", meta.CPU),
				zap.Uint64("timestamp", meta.Timestamp))
		}

	case outputTerminal:
		resolver, err := display.NewResolver(procfs.DefaultMountPoint)
		if err != nil {
			logger.Warn("exec details disabled", zap.Error(err))
		}
		ch := make(chan proconn.Event, 100)
		monitor := display.NewMonitor(cmd.OutOrStdout(), resolver, time.Second)
		go monitor.Start(ctx, ch)
		emit = func(ev proconn.Event) {
			// The screen is redrawn once a second; a slow terminal loses events
			// rather than stalling the receive loop.
			select {
			case ch <- ev:
			default:
			}
		}

	default:
		return fmt.Errorf("unknown output mode %q", output)
	}

	listener, err := proconn.New(buildHandlers(kinds, emit), cfg)
	if err != nil {
		return fmt.Errorf("failed to start listener: %w", err)
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- listener.Run(ctx)
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	select {
	case sig := <-sigChan:
		logger.Info("shutting down", zap.Stringer("signal", sig))
	case err := <-errCh:
		_ = listener.Stop()
		if proconn.IsClosed(err) {
			return nil
		}
		return err
	}

	stopErr := listener.Stop()
	if err := <-errCh; err != nil && !proconn.IsClosed(err) {
		logger.Warn("listener ended with error", zap.Error(err))
	}
	return stopErr
}

func newLogger(level string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level: %w", err)
	}

	var zc zap.Config
	if lvl == zapcore.DebugLevel {
		zc = zap.NewDevelopmentConfig()
	} else {
		zc = zap.NewProductionConfig()
	}
	zc.Level = zap.NewAtomicLevelAt(lvl)
	return zc.Build()
}

func parseKinds(names []string) (proconn.KindSet, error) {
	var set proconn.KindSet
	for _, name := range names {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		k, err := proconn.ParseKind(name)
		if err != nil {
			return 0, err
		}
		set = set.With(k)
	}
	return set, nil
}

func kindNames(kinds []proconn.Kind) []string {
	names := make([]string, len(kinds))
	for i, k := range kinds {
		names[i] = k.String()
	}
	return names
}

// buildHandlers registers a handler for every kind in set. Kinds outside set
// are left without a handler so the listener drops them.
func buildHandlers(set proconn.KindSet, emit func(proconn.Event)) proconn.Handlers {
	var h proconn.Handlers
	if set.Has(proconn.KindFork) {
		h.Fork = forward[proconn.ForkEvent](emit)
	}
	if set.Has(proconn.KindExec) {
		h.Exec = forward[proconn.ExecEvent](emit)
	}
	if set.Has(proconn.KindUID) {
		h.UID = forward[proconn.UIDEvent](emit)
	}
	if set.Has(proconn.KindGID) {
		h.GID = forward[proconn.GIDEvent](emit)
	}
	if set.Has(proconn.KindSID) {
		h.SID = forward[proconn.SIDEvent](emit)
	}
	if set.Has(proconn.KindPtrace) {
		h.Ptrace = forward[proconn.PtraceEvent](emit)
	}
	if set.Has(proconn.KindComm) {
		h.Comm = forward[proconn.CommEvent](emit)
	}
	if set.Has(proconn.KindCoredump) {
		h.Coredump = forward[proconn.CoredumpEvent](emit)
	}
	if set.Has(proconn.KindExit) {
		h.Exit = forward[proconn.ExitEvent](emit)
	}
	return h
}

func forward[E proconn.Event](emit func(proconn.Event)) func(E) error {
	return func(ev E) error {
		emit(ev)
		return nil
	}
}
