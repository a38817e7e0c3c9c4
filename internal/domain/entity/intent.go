package entity

import (
	"fmt"
	"regexp"
	"time"

	"github.com/shopspring/decimal"
)

// Side represents order side (buy or sell)
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// Opposite returns the closing side for a position opened on s
func (s Side) Opposite() Side {
	if s == SideBuy {
		return SideSell
	}
	return SideBuy
}

// OrderKind represents the strategy kind of an intent
type OrderKind string

const (
	KindMarket OrderKind = "MARKET"
	KindLimit  OrderKind = "LIMIT"
	KindOCO    OrderKind = "OCO"
	KindTWAP   OrderKind = "TWAP"
	KindGrid   OrderKind = "GRID"
)

// OrderType represents the concrete exchange order type of a child order
type OrderType string

const (
	OrderTypeMarket     OrderType = "MARKET"
	OrderTypeLimit      OrderType = "LIMIT"
	OrderTypeStopMarket OrderType = "STOP_MARKET"
)

// TimeInForce represents how long a limit order stays active
type TimeInForce string

const (
	TimeInForceGTC TimeInForce = "GTC"
	TimeInForceIOC TimeInForce = "IOC"
	TimeInForceFOK TimeInForce = "FOK"
)

// ValidationError describes an intent that must not reach the exchange
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid intent: %s: %s", e.Field, e.Reason)
}

// USDT-M futures symbol format
var symbolPattern = regexp.MustCompile(`^[A-Z0-9]+USDT$`)

// Intent is an immutable description of what the user wants.
// It is created once from validated input and never mutated after a run starts.
type Intent struct {
	Symbol        string
	Side          Side
	TotalQuantity decimal.Decimal
	Kind          OrderKind

	// LIMIT parameters
	Price       decimal.Decimal
	TimeInForce TimeInForce

	// OCO parameters
	TakeProfitPrice decimal.Decimal
	StopLossPrice   decimal.Decimal

	// TWAP parameters
	Duration time.Duration
	Interval time.Duration

	// GRID parameters
	LowerPrice       decimal.Decimal
	UpperPrice       decimal.Decimal
	Levels           int
	QuantityPerLevel decimal.Decimal
}

// Validate checks the intent's structural rules. Checks that need market
// data (e.g. the OCO bracket against the reference price) happen in the
// owning strategy instead.
func (i Intent) Validate() error {
	if !symbolPattern.MatchString(i.Symbol) {
		return &ValidationError{Field: "symbol", Reason: fmt.Sprintf("%q is not a valid USDT-M futures symbol", i.Symbol)}
	}

	switch i.Kind {
	case KindMarket:
		return i.validateQuantitySide()
	case KindLimit:
		if err := i.validateQuantitySide(); err != nil {
			return err
		}
		if i.Price.Sign() <= 0 {
			return &ValidationError{Field: "price", Reason: "must be positive"}
		}
		switch i.TimeInForce {
		case TimeInForceGTC, TimeInForceIOC, TimeInForceFOK:
		default:
			return &ValidationError{Field: "timeInForce", Reason: fmt.Sprintf("unknown value %q", i.TimeInForce)}
		}
	case KindOCO:
		if err := i.validateQuantitySide(); err != nil {
			return err
		}
		if i.TakeProfitPrice.Sign() <= 0 {
			return &ValidationError{Field: "takeProfitPrice", Reason: "must be positive"}
		}
		if i.StopLossPrice.Sign() <= 0 {
			return &ValidationError{Field: "stopLossPrice", Reason: "must be positive"}
		}
	case KindTWAP:
		if err := i.validateQuantitySide(); err != nil {
			return err
		}
		if i.Interval <= 0 {
			return &ValidationError{Field: "intervalSeconds", Reason: "must be positive"}
		}
		if i.Duration < i.Interval {
			return &ValidationError{Field: "durationSeconds", Reason: "must be at least one interval"}
		}
	case KindGrid:
		if i.LowerPrice.Sign() <= 0 {
			return &ValidationError{Field: "lowerPrice", Reason: "must be positive"}
		}
		if i.LowerPrice.GreaterThanOrEqual(i.UpperPrice) {
			return &ValidationError{Field: "lowerPrice", Reason: "must be less than upperPrice"}
		}
		if i.Levels < 2 {
			return &ValidationError{Field: "levels", Reason: "must be at least 2"}
		}
		if i.QuantityPerLevel.Sign() <= 0 {
			return &ValidationError{Field: "quantityPerLevel", Reason: "must be positive"}
		}
	default:
		return &ValidationError{Field: "kind", Reason: fmt.Sprintf("unknown kind %q", i.Kind)}
	}

	return nil
}

func (i Intent) validateQuantitySide() error {
	if i.Side != SideBuy && i.Side != SideSell {
		return &ValidationError{Field: "side", Reason: fmt.Sprintf("must be BUY or SELL, got %q", i.Side)}
	}
	if i.TotalQuantity.Sign() <= 0 {
		return &ValidationError{Field: "totalQuantity", Reason: "must be positive"}
	}
	return nil
}
