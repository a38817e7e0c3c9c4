package event

import (
	"sync"
	"time"
)

// Kind identifies what happened during strategy execution
type Kind string

const (
	KindPlaced           Kind = "PLACED"
	KindFilled           Kind = "FILLED"
	KindPartiallyFilled  Kind = "PARTIALLY_FILLED"
	KindCancelled        Kind = "CANCELLED"
	KindRejected         Kind = "REJECTED"
	KindRetry            Kind = "RETRY"
	KindStrategyResolved Kind = "STRATEGY_RESOLVED"
)

// Event is one record in the ordered execution stream of a run.
// The engine only emits these; formatting for humans happens in the
// consuming sink.
type Event struct {
	Time   time.Time
	RunID  string
	Kind   Kind
	Detail map[string]interface{}
}

// Sink consumes execution events in emission order
type Sink interface {
	Emit(e Event)
}

// Discard is a sink that drops everything
var Discard Sink = discard{}

type discard struct{}

func (discard) Emit(Event) {}

// Collector gathers events in order, for tests and for the CLI's final
// run summary.
type Collector struct {
	mu     sync.Mutex
	events []Event
}

// NewCollector creates an empty collector
func NewCollector() *Collector {
	return &Collector{}
}

// Emit appends the event, preserving emission order
func (c *Collector) Emit(e Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, e)
}

// Events returns a copy of all collected events
func (c *Collector) Events() []Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Event, len(c.events))
	copy(out, c.events)
	return out
}

// Fanout returns a sink that forwards each event to every given sink
func Fanout(sinks ...Sink) Sink {
	return fanout(sinks)
}

type fanout []Sink

func (f fanout) Emit(e Event) {
	for _, s := range f {
		s.Emit(e)
	}
}
