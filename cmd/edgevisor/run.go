package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/bft-labs/edgevisor/internal/metrics"
	"github.com/bft-labs/edgevisor/pkg/edgevisor"
	"github.com/bft-labs/edgevisor/pkg/log"
)

func newRunCommand(s *settings) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Launch the services and run until SIGINT or SIGTERM",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := s.load(cmd); err != nil {
				return err
			}
			if err := s.cfg.Validate(); err != nil {
				return err
			}
			logger, err := s.logger()
			if err != nil {
				return err
			}
			zl := logger.Logger()
			zl.Info().Interface("config", s.cfg).Msg("configuration")
			return run(s, logger)
		},
	}

	f := cmd.Flags()
	f.DurationVar(&s.cfg.ShutdownTimeout, "shutdown-timeout", s.cfg.ShutdownTimeout, "global deadline for stopping every service")
	f.DurationVar(&s.cfg.Grace, "grace", s.cfg.Grace, "delay between polite and forced termination of a stage process")
	f.DurationVar(&s.cfg.ForceGrace, "force-grace", s.cfg.ForceGrace, "bound on each wait while forcing services at the deadline")
	f.StringVar(&s.cfg.Shell, "shell", s.cfg.Shell, "shell interpreting stage scripts")
	f.StringVar(&s.cfg.MetricsAddr, "metrics-addr", s.cfg.MetricsAddr, "serve Prometheus metrics on this address (empty: disabled)")
	f.StringVar(&s.cfg.EventLog, "event-log", s.cfg.EventLog, "append every transition as a CloudEvent JSON line to this file")
	f.BoolVar(&s.cfg.Watch, "watch", s.cfg.Watch, "reload the services file when it changes")
	f.Float64Var(&s.cfg.MaxCPUs, "max-cpus", s.cfg.MaxCPUs, "cap on any service's CPU limit (default: host CPUs)")
	f.IntVar(&s.cfg.MaxMemoryKB, "max-memory-kb", s.cfg.MaxMemoryKB, "cap on any service's memory limit in KB (0: uncapped)")
	return cmd
}

func run(s *settings, logger *log.ZerologAdapter) error {
	cfg := s.cfg
	opts := []edgevisor.Option{
		edgevisor.WithLogger(logger),
		edgevisor.WithShell(cfg.Shell),
		edgevisor.WithGrace(cfg.Grace),
		edgevisor.WithForceGrace(cfg.ForceGrace),
		edgevisor.WithWatch(cfg.Watch),
		edgevisor.WithResourceCaps(cfg.MaxCPUs, int64(cfg.MaxMemoryKB)),
	}
	if cfg.StatusFile != "" {
		opts = append(opts, edgevisor.WithStatusFile(cfg.StatusFile))
	}
	if cfg.EventLog != "" {
		f, err := os.OpenFile(cfg.EventLog, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return fmt.Errorf("open event log: %w", err)
		}
		defer f.Close()
		opts = append(opts, edgevisor.WithEventLog(f))
	}

	var srv *http.Server
	if cfg.MetricsAddr != "" {
		reg := prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		opts = append(opts, edgevisor.WithMetrics(reg))

		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler(reg))
		srv = &http.Server{Addr: cfg.MetricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	}

	ev, err := edgevisor.New(cfg.Services, opts...)
	if err != nil {
		return fmt.Errorf("create edgevisor: %w", err)
	}

	if srv != nil {
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics-server-failed", log.String("addr", cfg.MetricsAddr), log.Err(err))
			}
		}()
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(ctx)
		}()
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	if err := ev.Start(ctx); err != nil {
		_, _ = ev.Stop(cfg.ShutdownTimeout)
		return fmt.Errorf("start: %w", err)
	}

	sig := <-sigCh
	logger.Info("signal-received", log.String("signal", sig.String()))

	report, err := ev.Stop(cfg.ShutdownTimeout)
	if err != nil {
		return fmt.Errorf("stop: %w", err)
	}
	logger.Info("stopped",
		log.Int("services", len(report.Graceful)),
		log.Duration("elapsed", report.Elapsed))
	return nil
}
