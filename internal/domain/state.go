package domain

import (
	"fmt"
	"strings"
)

// State is the lifecycle state of a service.
type State int32

// Service states. NEW is the only legal initial state.
const (
	StateNew State = iota
	StateInstalled
	StateStarting
	StateRunning
	StateStopping
	StateFinished
	StateErrored
	StateBroken
)

var stateNames = [...]string{
	StateNew:       "NEW",
	StateInstalled: "INSTALLED",
	StateStarting:  "STARTING",
	StateRunning:   "RUNNING",
	StateStopping:  "STOPPING",
	StateFinished:  "FINISHED",
	StateErrored:   "ERRORED",
	StateBroken:    "BROKEN",
}

// AllStates lists every state in declaration order.
var AllStates = []State{
	StateNew, StateInstalled, StateStarting, StateRunning,
	StateStopping, StateFinished, StateErrored, StateBroken,
}

// String returns the upper-case state name.
func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return fmt.Sprintf("State(%d)", int32(s))
	}
	return stateNames[s]
}

// ParseState parses a state name case-insensitively.
func ParseState(name string) (State, error) {
	for i, n := range stateNames {
		if strings.EqualFold(n, name) {
			return State(i), nil
		}
	}
	return 0, fmt.Errorf("unknown state %q", name)
}

// IsRunning reports whether the service is serving.
func (s State) IsRunning() bool { return s == StateRunning }

// IsClosable reports whether a close or stop may be initiated from s
// by moving to STOPPING.
func (s State) IsClosable() bool {
	return s == StateRunning || s == StateStarting || s == StateStopping
}

// HasExited reports whether nothing of the service is executing in s.
func (s State) HasExited() bool {
	switch s {
	case StateNew, StateInstalled, StateFinished, StateBroken:
		return true
	}
	return false
}

// IsTerminal reports whether s only changes on an external request.
func (s State) IsTerminal() bool {
	return s == StateFinished || s == StateBroken
}

var edges = map[State][]State{
	StateNew:       {StateInstalled, StateBroken},
	StateInstalled: {StateStarting, StateNew},
	StateStarting:  {StateRunning, StateErrored, StateStopping},
	StateRunning:   {StateStopping, StateErrored},
	StateErrored:   {StateStopping, StateBroken},
	StateStopping:  {StateFinished, StateInstalled},
	StateFinished:  {StateStarting, StateNew},
	StateBroken:    {StateNew},
}

// CanTransition reports whether from -> to is a legal edge.
func CanTransition(from, to State) bool {
	for _, s := range edges[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Successors returns the legal targets from s.
func Successors(s State) []State {
	out := make([]State, len(edges[s]))
	copy(out, edges[s])
	return out
}
