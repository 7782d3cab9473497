// Package service implements the lifecycle of a single supervised service.
//
// Each Service owns one worker goroutine, the only writer of its State.
// Callers never transition a service directly; they record intents
// (start, stop, restart, reinstall) which the worker honors once the
// transition in flight completes. Simultaneously pending intents are
// resolved by precedence: stop, then reinstall, then restart, then start.
//
// Lifecycle edges:
//
//	NEW -> INSTALLED -> STARTING -> RUNNING -> STOPPING -> FINISHED
//	NEW -> BROKEN                  STARTING -> ERRORED
//	RUNNING -> ERRORED -> STOPPING -> INSTALLED (retry, restart)
//	ERRORED -> BROKEN (retry budget exhausted)
//	FINISHED -> STARTING, BROKEN/INSTALLED/FINISHED -> NEW (reinstall)
//
// A service also tracks its dependencies: a HARD dependency losing
// readiness restarts a started dependant, and every dependency gates the
// dependant's start.
package service
