package domain

import "time"

// Event is one observed state change of a service.
type Event struct {
	Service string
	Old     State
	New     State
	Time    time.Time
	// Seq increases by one per event of the same service.
	Seq uint64
	// Generation is the service's state generation after the change.
	Generation uint64
	// Forced marks a transition imposed by a shutdown deadline.
	Forced  bool
	Failure *Failure
}
