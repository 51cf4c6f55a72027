// Package alert implements the fan-out alert callback registration used by
// the CircuitBreaker, modeled on the register_alert_callback/_send_alert
// pattern in the original risk manager. The StopLossSupervisor and the
// Reconciler do not send alerts; they only log.
package alert

import (
	"sync"

	"github.com/rs/zerolog/log"
)

// Level is the alert severity.
type Level string

const (
	LevelInfo     Level = "info"
	LevelWarning  Level = "warning"
	LevelCritical Level = "critical"
)

// Sink receives alerts. Implementations must not block for long; Send is
// called synchronously from the triggering goroutine.
type Sink interface {
	Send(level Level, message string)
}

// LogSink is the default Sink, logging through zerolog at a level matching
// the alert severity.
type LogSink struct{}

func (LogSink) Send(level Level, message string) {
	switch level {
	case LevelCritical:
		log.Error().Str("alert_level", string(level)).Msg(message)
	case LevelWarning:
		log.Warn().Str("alert_level", string(level)).Msg(message)
	default:
		log.Info().Str("alert_level", string(level)).Msg(message)
	}
}

// Fanout holds a registry of Sinks and dispatches to all of them, continuing
// past a panicking or erroring sink the way the original logs-and-continues
// through its callback list.
type Fanout struct {
	mu    sync.RWMutex
	sinks []Sink
}

// NewFanout returns a Fanout pre-registered with a LogSink, matching the
// teacher's pattern of always having a baseline zerolog destination.
func NewFanout() *Fanout {
	return &Fanout{sinks: []Sink{LogSink{}}}
}

func (f *Fanout) Register(sink Sink) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sinks = append(f.sinks, sink)
}

func (f *Fanout) Send(level Level, message string) {
	f.mu.RLock()
	sinks := make([]Sink, len(f.sinks))
	copy(sinks, f.sinks)
	f.mu.RUnlock()

	for _, s := range sinks {
		func() {
			defer func() {
				if r := recover(); r != nil {
					log.Error().Interface("panic", r).Msg("alert sink panicked")
				}
			}()
			s.Send(level, message)
		}()
	}
}
