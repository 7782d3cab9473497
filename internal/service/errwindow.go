package service

import (
	"time"

	"github.com/bft-labs/edgevisor/internal/domain"
)

// errorWindow counts recent consecutive failures per stage.
type errorWindow struct {
	failures map[domain.Stage][]time.Time
}

func newErrorWindow() *errorWindow {
	return &errorWindow{failures: map[domain.Stage][]time.Time{}}
}

// record adds a failure at now, forgets failures older than window and
// returns the count.
func (w *errorWindow) record(stage domain.Stage, now time.Time, window time.Duration) int {
	kept := w.failures[stage][:0]
	for _, t := range w.failures[stage] {
		if window <= 0 || now.Sub(t) < window {
			kept = append(kept, t)
		}
	}
	kept = append(kept, now)
	w.failures[stage] = kept
	return len(kept)
}

func (w *errorWindow) count(stage domain.Stage) int {
	return len(w.failures[stage])
}

func (w *errorWindow) reset(stage domain.Stage) {
	delete(w.failures, stage)
}

func (w *errorWindow) resetAll() {
	w.failures = map[domain.Stage][]time.Time{}
}
