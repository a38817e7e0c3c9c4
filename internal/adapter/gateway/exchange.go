package gateway

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/quantfarm/futures-agent/internal/domain/entity"
)

// OrderRequest describes one concrete exchange order
type OrderRequest struct {
	Symbol      string
	Side        entity.Side
	Type        entity.OrderType
	Quantity    decimal.Decimal
	Price       decimal.Decimal // required for LIMIT
	StopPrice   decimal.Decimal // required for STOP_MARKET
	TimeInForce entity.TimeInForce
}

// OrderStatus is the exchange's view of a placed order
type OrderStatus struct {
	State          entity.ChildState
	FilledQuantity decimal.Decimal
}

// ExchangeGateway defines the exchange capability consumed by strategy
// engines. Every call is synchronous and bounded by its context.
type ExchangeGateway interface {
	// PlaceOrder submits an order and returns the exchange order id
	PlaceOrder(ctx context.Context, req OrderRequest) (string, error)

	// CancelOrder cancels a resting order
	CancelOrder(ctx context.Context, symbol, exchangeOrderID string) error

	// CancelAllOrders cancels every open order on the symbol
	CancelAllOrders(ctx context.Context, symbol string) error

	// GetOrderStatus retrieves current state and cumulative fill
	GetOrderStatus(ctx context.Context, symbol, exchangeOrderID string) (OrderStatus, error)

	// GetSymbolPrice retrieves the current reference price
	GetSymbolPrice(ctx context.Context, symbol string) (decimal.Decimal, error)
}

// ErrorClass splits gateway failures into retryable and not
type ErrorClass int

const (
	ClassTransient ErrorClass = iota + 1
	ClassPermanent
)

func (c ErrorClass) String() string {
	switch c {
	case ClassTransient:
		return "transient"
	case ClassPermanent:
		return "permanent"
	default:
		return "unknown"
	}
}

// Error is a classified gateway failure. Strategy retry policy depends
// only on Class, never on the underlying cause.
type Error struct {
	Class   ErrorClass
	Code    int
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("gateway %s error (code %d): %s", e.Class, e.Code, e.Message)
	}
	return fmt.Sprintf("gateway %s error: %s", e.Class, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Transient wraps a retryable failure (network, rate limit, timeout)
func Transient(code int, message string, err error) *Error {
	return &Error{Class: ClassTransient, Code: code, Message: message, Err: err}
}

// Permanent wraps a non-retryable failure (invalid params, unknown symbol)
func Permanent(code int, message string, err error) *Error {
	return &Error{Class: ClassPermanent, Code: code, Message: message, Err: err}
}

// IsTransient reports whether err is a retryable gateway error
func IsTransient(err error) bool {
	var gerr *Error
	return errors.As(err, &gerr) && gerr.Class == ClassTransient
}

// IsPermanent reports whether err is a non-retryable gateway error
func IsPermanent(err error) bool {
	var gerr *Error
	return errors.As(err, &gerr) && gerr.Class == ClassPermanent
}
