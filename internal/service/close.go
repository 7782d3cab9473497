package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/bft-labs/edgevisor/internal/domain"
	"github.com/bft-labs/edgevisor/internal/events"
	"github.com/bft-labs/edgevisor/pkg/log"
)

// Close stops the service for good. It first waits for every HARD
// dependant to exit, then stops the service and its worker. When ctx
// expires the service is forced to FINISHED; when ctx is canceled the
// stop continues in the background and the task reports OutcomeCanceled.
// Repeated calls return the same task.
func (s *Service) Close(ctx context.Context) *Task {
	s.closeOnce.Do(func() {
		s.closeTask = newTask()
		s.mu.Lock()
		s.closing = true
		s.mu.Unlock()
		go s.runClose(ctx)
	})
	return s.closeTask
}

func (s *Service) runClose(ctx context.Context) {
	s.logger.Debug("close-requested")
	if err := s.waitDependants(ctx, s.env.Dependants(s.name)); err != nil {
		s.abortClose(ctx)
		return
	}
	s.beginStop()

	select {
	case <-s.done:
		s.detach()
		s.closeTask.complete(OutcomeCompleted, nil)
	case <-ctx.Done():
		s.abortClose(ctx)
	}
}

func (s *Service) beginStop() {
	s.mu.Lock()
	s.closed = true
	s.pending.set(intentStop)
	s.mu.Unlock()
	s.ensureWorker()
	s.poke()
}

func (s *Service) abortClose(ctx context.Context) {
	if errors.Is(ctx.Err(), context.Canceled) {
		s.beginStop()
		s.logger.Warn("close-canceled", log.Err(ctx.Err()))
		go func() {
			<-s.done
			s.detach()
		}()
		s.closeTask.complete(OutcomeCanceled, ctx.Err())
		return
	}

	// Dependants are being forced too; give them a moment to get there.
	graceCtx, cancel := context.WithTimeout(context.Background(), s.env.ForceGrace)
	_ = s.waitDependants(graceCtx, s.env.Dependants(s.name))
	cancel()
	s.beginStop()

	forced := s.forceFinish(fmt.Errorf("%w: %v", domain.ErrShutdownTimeout, ctx.Err()))
	s.detach()
	if !forced {
		s.closeTask.complete(OutcomeCompleted, nil)
		return
	}
	s.closeTask.complete(OutcomeForced, domain.ErrShutdownTimeout)
}

// waitDependants blocks until every service in deps has exited.
func (s *Service) waitDependants(ctx context.Context, deps []*Service) error {
	if len(deps) == 0 {
		return nil
	}
	names := make(map[string]struct{}, len(deps))
	for _, d := range deps {
		names[d.name] = struct{}{}
	}
	signal := make(chan struct{}, 1)
	cancel := s.env.Bus.Subscribe(events.ListenerFunc(func(ev domain.Event) {
		if _, ok := names[ev.Service]; !ok {
			return
		}
		select {
		case signal <- struct{}{}:
		default:
		}
	}))
	defer cancel()

	logged := false
	for {
		var waiting []string
		for _, d := range deps {
			if !d.State().HasExited() {
				waiting = append(waiting, d.name)
			}
		}
		if len(waiting) == 0 {
			return nil
		}
		if !logged {
			logged = true
			s.logger.Info("waiting-for-dependants", log.Strings("dependants", waiting))
		}
		select {
		case <-signal:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
