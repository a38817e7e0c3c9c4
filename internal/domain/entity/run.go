package entity

import (
	"time"

	"github.com/google/uuid"
)

// RunStatus represents the derived status of a strategy run
type RunStatus string

const (
	RunActive         RunStatus = "ACTIVE"
	RunPartial        RunStatus = "PARTIAL"
	RunComplete       RunStatus = "COMPLETE"
	RunFailed         RunStatus = "FAILED"
	RunCancelled      RunStatus = "CANCELLED"
	RunPartialFailure RunStatus = "PARTIAL_FAILURE"
)

// Terminal returns true if the run can no longer change
func (s RunStatus) Terminal() bool {
	switch s {
	case RunComplete, RunFailed, RunCancelled:
		return true
	default:
		return false
	}
}

// StrategyRun is the aggregate for one strategy invocation. It owns its
// child orders in spawn order and is mutated only by the owning strategy
// engine (through the tracker).
type StrategyRun struct {
	ID        string
	Intent    Intent
	CreatedAt time.Time
	Children  []*ChildOrder

	failed         bool
	cancelled      bool
	partialFailure bool
}

// NewRun creates a run for an accepted intent
func NewRun(intent Intent, now time.Time) *StrategyRun {
	return &StrategyRun{
		ID:        uuid.NewString(),
		Intent:    intent,
		CreatedAt: now,
	}
}

// AddChild appends a child order and assigns its local sequence number
func (r *StrategyRun) AddChild(o *ChildOrder) int {
	o.LocalID = len(r.Children) + 1
	r.Children = append(r.Children, o)
	return o.LocalID
}

// Child returns the child order with the given local id
func (r *StrategyRun) Child(localID int) (*ChildOrder, bool) {
	if localID < 1 || localID > len(r.Children) {
		return nil, false
	}
	return r.Children[localID-1], true
}

// MarkFailed records an unrecoverable failure
func (r *StrategyRun) MarkFailed() { r.failed = true }

// MarkCancelled records a completed user-requested abort
func (r *StrategyRun) MarkCancelled() { r.cancelled = true }

// MarkPartialFailure records that some, but not all, placements failed
func (r *StrategyRun) MarkPartialFailure() { r.partialFailure = true }

// Status derives the run status from recorded outcomes and child states.
// It is never stored, only computed.
func (r *StrategyRun) Status() RunStatus {
	switch {
	case r.failed:
		return RunFailed
	case r.cancelled:
		return RunCancelled
	case r.partialFailure:
		return RunPartialFailure
	}

	if len(r.Children) == 0 {
		return RunActive
	}

	if r.isComplete() {
		return RunComplete
	}
	for _, c := range r.Children {
		if c.FilledQty.Sign() > 0 {
			return RunPartial
		}
	}
	return RunActive
}

// isComplete applies the per-kind completion rule: every child filled,
// except for OCO where one filled leg plus a cancelled (or also filled)
// sibling resolves the pair.
func (r *StrategyRun) isComplete() bool {
	if r.Intent.Kind == KindOCO {
		filled := 0
		for _, c := range r.Children {
			switch c.State {
			case ChildFilled:
				filled++
			case ChildCancelled:
			default:
				return false
			}
		}
		return filled >= 1
	}

	for _, c := range r.Children {
		if c.State != ChildFilled {
			return false
		}
	}
	return true
}
