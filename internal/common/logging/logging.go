// Package logging defines the logger capability the listener container
// and its collaborators depend on, plus a zerolog-backed default
// implementation.
package logging

import (
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Event is a single in-flight log entry being built up with fields
// before it is emitted with Msg. It mirrors zerolog's *zerolog.Event
// fluent API closely enough that the default implementation is a thin
// wrapper, while keeping the listener container's dependency surface
// to an interface rather than a concrete logging library.
type Event interface {
	Str(key, value string) Event
	Int(key string, value int) Event
	Int32(key string, value int32) Event
	Dur(key string, value time.Duration) Event
	Err(err error) Event
	Msg(msg string)
}

// Logger is the capability injected into every component that needs to
// emit log lines. Level methods return an Event to attach structured
// fields to before calling Msg.
type Logger interface {
	Debug() Event
	Info() Event
	Warn() Event
	Error() Event

	// With returns a Logger with key bound to value as a persistent field
	// on every subsequent event, matching the sub-logger pattern used
	// throughout the teacher codebase (log.With().Str(...).Logger()).
	With(key, value string) Logger
}

// Default returns a Logger backed by a new zerolog logger that writes
// timestamped, console-formatted lines to stderr, tagged with a
// "component" field. Pass "" for component to skip tagging.
func Default(component string) Logger {
	l := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
		With().Timestamp().Logger()
	if component != "" {
		l = l.With().Str("component", component).Logger()
	}
	return &zerologLogger{logger: l}
}

// FromZerolog wraps an existing zerolog.Logger, for embedding this
// library into a host service that already configured its own zerolog
// output/level/sinks.
func FromZerolog(l zerolog.Logger) Logger {
	return &zerologLogger{logger: l}
}

type zerologLogger struct {
	logger zerolog.Logger
}

func (z *zerologLogger) Debug() Event { return &zerologEvent{e: z.logger.Debug()} }
func (z *zerologLogger) Info() Event  { return &zerologEvent{e: z.logger.Info()} }
func (z *zerologLogger) Warn() Event  { return &zerologEvent{e: z.logger.Warn()} }
func (z *zerologLogger) Error() Event { return &zerologEvent{e: z.logger.Error()} }

func (z *zerologLogger) With(key, value string) Logger {
	return &zerologLogger{logger: z.logger.With().Str(key, value).Logger()}
}

type zerologEvent struct {
	e *zerolog.Event
}

func (z *zerologEvent) Str(key, value string) Event {
	z.e = z.e.Str(key, value)
	return z
}

func (z *zerologEvent) Int(key string, value int) Event {
	z.e = z.e.Int(key, value)
	return z
}

func (z *zerologEvent) Int32(key string, value int32) Event {
	z.e = z.e.Int32(key, value)
	return z
}

func (z *zerologEvent) Dur(key string, value time.Duration) Event {
	z.e = z.e.Dur(key, value)
	return z
}

func (z *zerologEvent) Err(err error) Event {
	z.e = z.e.Err(err)
	return z
}

func (z *zerologEvent) Msg(msg string) {
	z.e.Msg(msg)
}
