// Package edgevisor runs a set of dependent services on an edge device.
//
// Services are declared in a YAML or TOML file under a top-level
// "services" key. Each service has lifecycle stages (install, startup,
// run, shutdown, recover, bootstrap), dependencies on other services and
// optional resource limits. edgevisor starts services in dependency
// order, restarts them on failure within a retry budget, reacts to the
// state of their dependencies and stops them in reverse order.
//
// # Basic Usage
//
//	ev, err := edgevisor.New("/etc/edgevisor/services.yaml",
//	    edgevisor.WithLogger(log.NewZerologAdapter()),
//	)
//	if err != nil {
//	    return err
//	}
//	if err := ev.Start(ctx); err != nil {
//	    return err
//	}
//
//	// ... run until shutdown signal ...
//
//	report, err := ev.Stop(30 * time.Second)
//
// Stop returns an error wrapping [ErrShutdownTimeout] when some services
// had to be forced to FINISHED; report lists which.
//
// # Observing Services
//
// Every state transition is published to listeners added with
// [WithListener] or [Edgevisor.AddListener]. Listeners are called
// synchronously and must return quickly. Built-in sinks are available
// through options:
//
//   - [WithEventLog] writes each transition as a JSON CloudEvent line.
//   - [WithMetrics] exports transition counters and state gauges.
//   - [WithStatusFile] keeps a JSON status report on disk.
//
// # In-process Services
//
// A service with componentType "plugin" is served by a [Plugin]
// registered with [WithPlugin] under the service's plugin key. The
// built-in "dircleanup" plugin is always available.
package edgevisor
