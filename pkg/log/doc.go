// Package log provides a logging abstraction for edgevisor components.
//
// This package defines a Logger interface that can be implemented by
// any logging library. A zerolog adapter is provided for production use
// and a no-op logger for libraries and tests.
//
// # Usage
//
// Console output for interactive use:
//
//	logger := log.NewZerologAdapter()
//
// JSON lines for log collectors:
//
//	logger := log.NewJSONAdapter(os.Stdout)
//
// Per-component loggers are derived with With:
//
//	svcLog := logger.With(log.Service("telemetry"))
//	svcLog.Info("service-set-state", log.String("from", "NEW"), log.String("to", "INSTALLED"))
//
// # Conventions
//
// The message is a short kebab-case event name. Details go in fields,
// never in the message itself.
package log
