package orchestrator

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/bft-labs/edgevisor/internal/domain"
	"github.com/bft-labs/edgevisor/internal/service"
	"github.com/bft-labs/edgevisor/pkg/log"
)

// DefaultShutdownTimeout is the global deadline used when Shutdown is
// given none.
const DefaultShutdownTimeout = 30 * time.Second

// ShutdownReport lists how each service was closed.
type ShutdownReport struct {
	Graceful []string
	Forced   []string
	Canceled []string
	Elapsed  time.Duration
}

// Clean reports whether every service closed gracefully.
func (r ShutdownReport) Clean() bool {
	return len(r.Forced) == 0 && len(r.Canceled) == 0
}

// Shutdown closes every service concurrently, in reverse dependency order.
// Each close waits for its HARD dependants to exit. Services still open
// when timeout elapses are forced to FINISHED and the returned error wraps
// ErrShutdownTimeout.
func (o *Orchestrator) Shutdown(timeout time.Duration) (ShutdownReport, error) {
	if timeout <= 0 {
		timeout = DefaultShutdownTimeout
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return o.ShutdownContext(ctx)
}

// ShutdownContext is Shutdown bounded by ctx. Cancellation of ctx leaves
// the remaining stops running in the background.
func (o *Orchestrator) ShutdownContext(ctx context.Context) (ShutdownReport, error) {
	start := o.cfg.Clock.Now()
	if o.unwatch != nil {
		o.unwatch()
	}

	order := o.shutdownOrder()
	o.logger.Info("shutdown-started", log.Strings("order", names(order)))

	var (
		mu       sync.Mutex
		outcomes = make(map[string]service.Outcome, len(order))
	)
	var g errgroup.Group
	for _, svc := range order {
		task := svc.Close(ctx)
		g.Go(func() error {
			outcome, _ := task.Wait(context.Background())
			mu.Lock()
			outcomes[svc.Name()] = outcome
			mu.Unlock()
			return nil
		})
	}

	stopWatch := o.watchDeadline(ctx, order)
	_ = g.Wait()
	stopWatch()

	var report ShutdownReport
	for _, svc := range order {
		switch outcomes[svc.Name()] {
		case service.OutcomeForced:
			report.Forced = append(report.Forced, svc.Name())
		case service.OutcomeCanceled:
			report.Canceled = append(report.Canceled, svc.Name())
		default:
			report.Graceful = append(report.Graceful, svc.Name())
		}
	}
	report.Elapsed = o.cfg.Clock.Now().Sub(start)

	switch {
	case len(report.Forced) > 0:
		o.logger.Warn("shutdown-forced",
			log.Strings("forced", report.Forced),
			log.Strings("graceful", report.Graceful),
			log.Duration("elapsed", report.Elapsed))
		return report, fmt.Errorf("%w: forced %v", domain.ErrShutdownTimeout, report.Forced)
	case len(report.Canceled) > 0:
		o.logger.Warn("shutdown-canceled", log.Strings("canceled", report.Canceled))
		return report, ctx.Err()
	}
	o.logger.Info("shutdown-complete",
		log.Int("services", len(report.Graceful)),
		log.Duration("elapsed", report.Elapsed))
	return report, nil
}

// shutdownOrder is the reverse of the startup order. With an invalid
// graph, declaration order is reversed instead.
func (o *Orchestrator) shutdownOrder() []*service.Service {
	order := o.resolve(o.graph().sort().order)
	slices.Reverse(order)
	return order
}

// watchDeadline logs the services still open when ctx ends.
func (o *Orchestrator) watchDeadline(ctx context.Context, svcs []*service.Service) (stop func()) {
	quit := make(chan struct{})
	go func() {
		select {
		case <-quit:
			return
		case <-ctx.Done():
		}
		var open []string
		for _, svc := range svcs {
			select {
			case <-svc.Done():
			default:
				open = append(open, svc.Name()+":"+svc.State().String())
			}
		}
		if len(open) > 0 {
			o.logger.Warn("shutdown-deadline", log.Strings("unclosed", open), log.Err(ctx.Err()))
		}
	}()
	return func() { close(quit) }
}
