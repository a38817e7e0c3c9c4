package logger

import (
	"github.com/quantfarm/futures-agent/internal/domain/event"
)

// EventSink writes execution events through a Logger, one structured
// line per event.
type EventSink struct {
	log *Logger
}

// NewEventSink creates a sink that logs every event
func NewEventSink(l *Logger) *EventSink {
	if l == nil {
		l = Default()
	}
	return &EventSink{log: l}
}

// Emit implements event.Sink
func (s *EventSink) Emit(e event.Event) {
	fields := map[string]interface{}{
		"run_id": e.RunID,
		"kind":   string(e.Kind),
		"time":   e.Time,
	}
	for k, v := range e.Detail {
		fields[k] = v
	}

	l := s.log.WithFields(fields)
	switch e.Kind {
	case event.KindRejected, event.KindRetry:
		l.Warn("execution event")
	default:
		l.Info("execution event")
	}
}
