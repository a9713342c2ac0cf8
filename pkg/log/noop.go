package log

type nopLogger struct{}

func (nopLogger) Debug(string, ...Field) {}
func (nopLogger) Info(string, ...Field)  {}
func (nopLogger) Warn(string, ...Field)  {}
func (nopLogger) Error(string, ...Field) {}

// NewNoopLogger returns a Logger that discards everything.
func NewNoopLogger() Logger {
	return nopLogger{}
}
