package service

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/bft-labs/edgevisor/internal/config"
	"github.com/bft-labs/edgevisor/internal/domain"
	"github.com/bft-labs/edgevisor/internal/events"
	"github.com/bft-labs/edgevisor/internal/stage"
	"github.com/bft-labs/edgevisor/pkg/clock"
	"github.com/bft-labs/edgevisor/pkg/log"
)

// Service is one supervised component and its lifecycle worker.
type Service struct {
	name   string
	env    Env
	logger log.Logger

	state      atomic.Int32
	generation atomic.Uint64
	faults     atomic.Uint64

	spec    atomic.Pointer[config.Spec]
	specErr atomic.Pointer[error]

	// mu guards the fields below.
	mu             sync.Mutex
	pending        pending
	desired        goal
	needReinstall  bool
	needRestart    bool
	closing        bool // no new start, restart or reinstall
	closed         bool // stopping for good
	lastFailure    *domain.Failure
	reachedRunning bool // in the current generation
	everRunning    bool
	runningOnce    bool // since the last install
	stopFromError  bool
	finishWhenUp   bool
	pinned         stage.Set // cleared on entry to NEW
	changed        chan struct{}

	// resolveMu serializes stage set resolution.
	resolveMu sync.Mutex

	// commitMu serializes state commits and event publication.
	commitMu sync.Mutex
	seq      atomic.Uint64
	forced   bool

	// inflight is held while a transition runs stage actions.
	inflight sync.Mutex

	wake         chan struct{}
	workerOnce   sync.Once
	workerCtx    context.Context
	cancelWorker context.CancelFunc
	done         chan struct{}

	activeMu sync.Mutex
	active   map[*activeAction]struct{}
	backing  *activeAction // worker-only

	errors      *errorWindow   // worker-only
	backoff     *clock.Backoff // worker-only
	lastBlocker string         // worker-only

	deps      *tracker
	closeOnce sync.Once
	closeTask *Task
	detachFns []func()
}

// New creates a service in NEW. specErr, when set, is the configuration
// error that will make the service BROKEN once it is started.
func New(spec config.Spec, specErr error, env Env) *Service {
	env = env.withDefaults()
	s := &Service{
		name:    spec.Name,
		env:     env,
		logger:  env.Logger.With(log.Service(spec.Name)),
		changed: make(chan struct{}),
		wake:    make(chan struct{}, 1),
		done:    make(chan struct{}),
		active:  map[*activeAction]struct{}{},
		errors:  newErrorWindow(),
		backoff: clock.NewBackoff(installBackoffMin, installBackoffMax),
	}
	s.state.Store(int32(domain.StateNew))
	s.generation.Store(1)
	s.workerCtx, s.cancelWorker = context.WithCancel(context.Background())
	s.spec.Store(&spec)
	if specErr != nil {
		s.specErr.Store(&specErr)
	}
	s.deps = newTracker(s, spec.Dependencies)
	s.detachFns = append(s.detachFns, env.Bus.Subscribe(events.ListenerFunc(s.deps.onTransition)))
	if env.Config != nil {
		s.detachFns = append(s.detachFns, env.Config.Subscribe(s.onConfigChange, config.ServicesKey, s.name))
	}
	return s
}

// Name returns the service name.
func (s *Service) Name() string { return s.name }

// State returns the current state without locking.
func (s *Service) State() domain.State { return domain.State(s.state.Load()) }

// Generation returns the state generation, incremented on every entry to
// NEW or STARTING.
func (s *Service) Generation() uint64 { return s.generation.Load() }

// Spec returns the latest configuration snapshot.
func (s *Service) Spec() config.Spec { return *s.spec.Load() }

// Dependencies returns the current dependency edges.
func (s *Service) Dependencies() []domain.Dependency { return s.deps.list() }

// Faults returns how many illegal transitions were attempted.
func (s *Service) Faults() uint64 { return s.faults.Load() }

// LastFailure returns the most recent stage failure, if any.
func (s *Service) LastFailure() *domain.Failure {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastFailure
}

// Closed reports whether Close was called.
func (s *Service) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closing
}

// Done is closed when the worker has exited after Close.
func (s *Service) Done() <-chan struct{} { return s.done }

// Invalidate records a configuration error found outside the service's
// own node, such as a dependency cycle. The service goes BROKEN once it is
// started; a later valid change to its node clears the error.
func (s *Service) Invalidate(err error) {
	if err == nil {
		s.specErr.Store(nil)
		return
	}
	s.specErr.Store(&err)
	s.logger.Error("config-invalid", log.Err(err))
}

func (s *Service) configError() error {
	if p := s.specErr.Load(); p != nil {
		return *p
	}
	return nil
}

// RequestStart asks the service to install if needed and run.
func (s *Service) RequestStart() bool {
	return s.request(intentStart)
}

// RequestStop asks the service to stop and stay stopped.
func (s *Service) RequestStop() bool {
	return s.request(intentStop)
}

// RequestRestart asks for a stop followed by a start. It is ignored while
// the service is NEW with no start requested.
func (s *Service) RequestRestart() bool {
	return s.request(intentRestart)
}

// RequestReinstall asks for a full cycle back through NEW.
func (s *Service) RequestReinstall() bool {
	return s.request(intentReinstall)
}

func (s *Service) request(i intent) bool {
	accepted, _ := s.requestIntent(i)
	return accepted
}

// requestIntent records i and reports whether it was accepted and whether
// it was not already pending.
func (s *Service) requestIntent(i intent) (accepted, fresh bool) {
	s.mu.Lock()
	if s.closing && i != intentStop {
		s.mu.Unlock()
		s.logger.Debug("request-ignored", log.String("intent", i.String()), log.String("reason", "closed"))
		return false, false
	}
	if i == intentRestart && s.State() == domain.StateNew && s.desired != goalRunning && !s.pending.start {
		s.mu.Unlock()
		s.logger.Debug("request-ignored", log.String("intent", i.String()), log.String("reason", "not started"))
		return false, false
	}
	fresh = s.pending.set(i)
	s.mu.Unlock()

	s.ensureWorker()
	s.poke()
	return true, fresh
}

func (s *Service) poke() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *Service) ensureWorker() {
	s.workerOnce.Do(func() {
		go s.loop(s.workerCtx)
	})
}

// AddStateSubscriber calls fn for every state change of this service.
func (s *Service) AddStateSubscriber(fn func(domain.Event)) (cancel func()) {
	return s.env.Bus.Subscribe(events.ListenerFunc(func(ev domain.Event) {
		if ev.Service == s.name {
			fn(ev)
		}
	}))
}

// changedChan returns a channel closed at the next commit.
func (s *Service) changedChan() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.changed
}

func (s *Service) detach() {
	s.mu.Lock()
	fns := s.detachFns
	s.detachFns = nil
	s.mu.Unlock()
	for _, fn := range fns {
		fn()
	}
}
