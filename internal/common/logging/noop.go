package logging

import "time"

// Noop returns a Logger that discards everything. Used by tests and by
// callers that don't want any log output.
func Noop() Logger { return noopLogger{} }

type noopLogger struct{}

func (noopLogger) Debug() Event        { return noopEvent{} }
func (noopLogger) Info() Event         { return noopEvent{} }
func (noopLogger) Warn() Event         { return noopEvent{} }
func (noopLogger) Error() Event        { return noopEvent{} }
func (noopLogger) With(_, _ string) Logger { return noopLogger{} }

type noopEvent struct{}

func (noopEvent) Str(_, _ string) Event           { return noopEvent{} }
func (noopEvent) Int(_ string, _ int) Event       { return noopEvent{} }
func (noopEvent) Int32(_ string, _ int32) Event   { return noopEvent{} }
func (noopEvent) Dur(_ string, _ time.Duration) Event { return noopEvent{} }
func (noopEvent) Err(_ error) Event                { return noopEvent{} }
func (noopEvent) Msg(_ string)                     {}
