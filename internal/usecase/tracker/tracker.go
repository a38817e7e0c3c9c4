package tracker

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/quantfarm/futures-agent/internal/domain/entity"
)

var (
	// ErrUnknownChild is returned for a local id that was never recorded
	ErrUnknownChild = errors.New("child order not found")

	// ErrInvalidTransition is returned for an illegal state change
	ErrInvalidTransition = errors.New("invalid child order state transition")
)

// Tracker is the execution ledger for one strategy run. It serializes
// all mutations of the run aggregate; strategies never touch child
// orders directly once they are recorded.
type Tracker struct {
	mu  sync.Mutex
	run *entity.StrategyRun
}

// New creates a tracker owning the given run
func New(run *entity.StrategyRun) *Tracker {
	return &Tracker{run: run}
}

// RunID returns the owned run's id
func (t *Tracker) RunID() string {
	return t.run.ID
}

// Run returns the owned run aggregate. Callers must treat it as
// read-only; all writes go through the tracker.
func (t *Tracker) Run() *entity.StrategyRun {
	return t.run
}

// RecordChild registers a spawned child order and returns its local id
func (t *Tracker) RecordChild(o *entity.ChildOrder) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.run.AddChild(o)
}

// MarkSubmitted records a successful placement
func (t *Tracker) MarkSubmitted(localID int, exchangeOrderID string, now time.Time) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	child, ok := t.run.Child(localID)
	if !ok {
		return fmt.Errorf("%w: local id %d", ErrUnknownChild, localID)
	}
	if !child.State.CanTransition(entity.ChildSubmitted) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, child.State, entity.ChildSubmitted)
	}
	child.ExchangeOrderID = exchangeOrderID
	child.State = entity.ChildSubmitted
	child.UpdatedAt = now
	return nil
}

// UpdateChildState applies a state transition plus a fill delta to one
// child order, enforcing filled+remaining == requested on every update.
func (t *Tracker) UpdateChildState(localID int, state entity.ChildState, filledDelta decimal.Decimal, now time.Time) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	child, ok := t.run.Child(localID)
	if !ok {
		return fmt.Errorf("%w: local id %d", ErrUnknownChild, localID)
	}
	if !child.State.CanTransition(state) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, child.State, state)
	}
	if filledDelta.Sign() != 0 {
		if err := child.ApplyFill(filledDelta); err != nil {
			return err
		}
	}
	if state == entity.ChildFilled && child.RemainingQty.Sign() > 0 {
		return &entity.InconsistentFillError{
			LocalID:   child.LocalID,
			Requested: child.RequestedQty,
			Filled:    child.FilledQty,
			Delta:     filledDelta,
		}
	}
	child.State = state
	child.UpdatedAt = now
	return nil
}

// Child returns a copy of the child order with the given local id
func (t *Tracker) Child(localID int) (entity.ChildOrder, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	child, ok := t.run.Child(localID)
	if !ok {
		return entity.ChildOrder{}, false
	}
	return *child, true
}

// Children returns copies of all child orders in spawn order
func (t *Tracker) Children() []entity.ChildOrder {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]entity.ChildOrder, len(t.run.Children))
	for i, c := range t.run.Children {
		out[i] = *c
	}
	return out
}

// MarkFailed records an unrecoverable failure on the run
func (t *Tracker) MarkFailed() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.run.MarkFailed()
}

// MarkCancelled records a completed user abort on the run
func (t *Tracker) MarkCancelled() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.run.MarkCancelled()
}

// MarkPartialFailure records partially failed placement on the run
func (t *Tracker) MarkPartialFailure() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.run.MarkPartialFailure()
}

// Status derives the current run status
func (t *Tracker) Status() entity.RunStatus {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.run.Status()
}
