package entity

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// ChildState represents the lifecycle state of a child order
type ChildState string

const (
	ChildPending         ChildState = "PENDING"
	ChildSubmitted       ChildState = "SUBMITTED"
	ChildPartiallyFilled ChildState = "PARTIALLY_FILLED"
	ChildFilled          ChildState = "FILLED"
	ChildCancelled       ChildState = "CANCELLED"
	ChildRejected        ChildState = "REJECTED"
)

// Terminal returns true if no further transition is possible
func (s ChildState) Terminal() bool {
	switch s {
	case ChildFilled, ChildCancelled, ChildRejected:
		return true
	default:
		return false
	}
}

// CanTransition reports whether moving from s to next is a legal
// lifecycle step. Re-asserting the current state is allowed so that
// repeated status polls are idempotent.
func (s ChildState) CanTransition(next ChildState) bool {
	if s == next {
		return !s.Terminal()
	}
	switch s {
	case ChildPending:
		return next == ChildSubmitted || next == ChildRejected
	case ChildSubmitted:
		return next == ChildPartiallyFilled || next == ChildFilled ||
			next == ChildCancelled || next == ChildRejected
	case ChildPartiallyFilled:
		return next == ChildFilled || next == ChildCancelled
	default:
		return false
	}
}

// InconsistentFillError indicates a fill update that would break the
// filled+remaining == requested invariant. It is fatal: it means the
// tracking logic itself is wrong, not the exchange.
type InconsistentFillError struct {
	LocalID   int
	Requested decimal.Decimal
	Filled    decimal.Decimal
	Delta     decimal.Decimal
}

func (e *InconsistentFillError) Error() string {
	return fmt.Sprintf("inconsistent fill on child %d: requested=%s filled=%s delta=%s",
		e.LocalID, e.Requested, e.Filled, e.Delta)
}

// ChildOrder is a single exchange order spawned by a strategy run.
// It is owned exclusively by one strategy engine instance.
type ChildOrder struct {
	LocalID         int
	ExchangeOrderID string
	Symbol          string
	Side            Side
	Type            OrderType
	Price           decimal.Decimal // limit price, zero for market orders
	StopPrice       decimal.Decimal // trigger price for stop orders
	TimeInForce     TimeInForce
	RequestedQty    decimal.Decimal
	FilledQty       decimal.Decimal
	RemainingQty    decimal.Decimal
	State           ChildState
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// NewChildOrder creates a child order in PENDING state
func NewChildOrder(symbol string, side Side, typ OrderType, qty decimal.Decimal, now time.Time) *ChildOrder {
	return &ChildOrder{
		Symbol:       symbol,
		Side:         side,
		Type:         typ,
		RequestedQty: qty,
		RemainingQty: qty,
		State:        ChildPending,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

// IsOpen returns true while the order can still fill or be cancelled
func (o *ChildOrder) IsOpen() bool {
	return !o.State.Terminal()
}

// ApplyFill adds delta to the filled quantity, maintaining
// filled + remaining == requested at all times.
func (o *ChildOrder) ApplyFill(delta decimal.Decimal) error {
	if delta.Sign() < 0 {
		return &InconsistentFillError{LocalID: o.LocalID, Requested: o.RequestedQty, Filled: o.FilledQty, Delta: delta}
	}
	filled := o.FilledQty.Add(delta)
	if filled.GreaterThan(o.RequestedQty) {
		return &InconsistentFillError{LocalID: o.LocalID, Requested: o.RequestedQty, Filled: o.FilledQty, Delta: delta}
	}
	o.FilledQty = filled
	o.RemainingQty = o.RequestedQty.Sub(filled)
	return nil
}
