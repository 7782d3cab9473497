package log

// NoopLogger implements Logger by discarding all log messages.
type NoopLogger struct{}

// NewNoop creates a new no-op logger.
func NewNoop() NoopLogger {
	return NoopLogger{}
}

// Debug discards the message.
func (NoopLogger) Debug(msg string, fields ...Field) {}

// Info discards the message.
func (NoopLogger) Info(msg string, fields ...Field) {}

// Warn discards the message.
func (NoopLogger) Warn(msg string, fields ...Field) {}

// Error discards the message.
func (NoopLogger) Error(msg string, fields ...Field) {}

// With returns the receiver.
func (n NoopLogger) With(fields ...Field) Logger { return n }
