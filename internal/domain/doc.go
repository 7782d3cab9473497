// Package domain contains the core value types of edgevisor.
//
// This package represents the innermost layer of the Clean Architecture. It has
// no dependencies on infrastructure concerns (processes, files, logging) and
// contains only the rules every other layer agrees on.
//
// # Values
//
//   - [State]: the lifecycle state of a service and its legal edges
//   - [Dependency]: a HARD or SOFT edge from a dependant to a dependency
//   - [StatusCode] and [Failure]: why a stage failed
//   - [Event]: a single observed state change
package domain
