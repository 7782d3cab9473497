// Package status records point-in-time service reports for operators.
package status

import (
	"context"
	"sync"
	"time"

	"github.com/bft-labs/edgevisor/internal/domain"
	"github.com/bft-labs/edgevisor/internal/service"
	"github.com/bft-labs/edgevisor/pkg/clock"
	"github.com/bft-labs/edgevisor/pkg/log"
)

// DefaultDebounce is how long the recorder waits after a transition before
// saving, so that a burst of transitions produces one write.
const DefaultDebounce = 250 * time.Millisecond

// Snapshot is the persisted status of every service.
type Snapshot struct {
	UpdatedAt time.Time        `json:"updated_at"`
	Services  []service.Status `json:"services"`
}

// Broken returns the BROKEN services of the snapshot.
func (s Snapshot) Broken() []service.Status {
	var out []service.Status
	for _, st := range s.Services {
		if st.Broken {
			out = append(out, st)
		}
	}
	return out
}

// Store persists snapshots.
type Store interface {
	Load(ctx context.Context) (Snapshot, error)
	Save(ctx context.Context, snap Snapshot) error
}

// Source produces the current report.
type Source func() []service.Status

// Recorder saves a snapshot shortly after each transition.
type Recorder struct {
	source   Source
	store    Store
	clock    clock.Clock
	logger   log.Logger
	debounce time.Duration

	dirty chan struct{}

	mu   sync.Mutex
	last Snapshot
}

// NewRecorder creates a Recorder. Register it as a listener and call Run.
func NewRecorder(source Source, store Store, c clock.Clock, logger log.Logger) *Recorder {
	if c == nil {
		c = clock.Real{}
	}
	if logger == nil {
		logger = log.NewNoop()
	}
	return &Recorder{
		source:   source,
		store:    store,
		clock:    c,
		logger:   logger,
		debounce: DefaultDebounce,
		dirty:    make(chan struct{}, 1),
	}
}

// SetDebounce changes the delay between a transition and the save.
func (r *Recorder) SetDebounce(d time.Duration) { r.debounce = d }

// OnTransition implements events.Listener.
func (r *Recorder) OnTransition(domain.Event) {
	select {
	case r.dirty <- struct{}{}:
	default:
	}
}

// Run saves snapshots until ctx is done, then saves a final one.
func (r *Recorder) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			r.flush(context.Background())
			return
		case <-r.dirty:
		}
		select {
		case <-ctx.Done():
			r.flush(context.Background())
			return
		case <-r.clock.After(r.debounce):
		}
		r.flush(ctx)
	}
}

// Flush saves the current snapshot now.
func (r *Recorder) Flush(ctx context.Context) error {
	return r.flush(ctx)
}

func (r *Recorder) flush(ctx context.Context) error {
	snap := Snapshot{UpdatedAt: r.clock.Now().UTC(), Services: r.source()}
	r.mu.Lock()
	r.last = snap
	r.mu.Unlock()
	if err := r.store.Save(ctx, snap); err != nil {
		r.logger.Warn("status-save-failed", log.Err(err))
		return err
	}
	return nil
}

// Last returns the most recently saved snapshot.
func (r *Recorder) Last() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.last
}
