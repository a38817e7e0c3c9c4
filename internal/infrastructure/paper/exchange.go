package paper

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/quantfarm/futures-agent/internal/adapter/gateway"
	"github.com/quantfarm/futures-agent/internal/domain/entity"
)

// Exchange is an in-memory gateway for dry runs. Market orders fill
// instantly at the mark price; limit and stop orders rest until the
// mark price crosses them.
type Exchange struct {
	mu     sync.Mutex
	mark   decimal.Decimal
	nextID int64
	orders map[string]*paperOrder
}

type paperOrder struct {
	req    gateway.OrderRequest
	state  entity.ChildState
	filled decimal.Decimal
}

// NewExchange creates a paper exchange with the given starting mark
// price.
func NewExchange(markPrice decimal.Decimal) *Exchange {
	return &Exchange{
		mark:   markPrice,
		orders: map[string]*paperOrder{},
	}
}

// SetMarkPrice moves the mark price and fills any resting orders it
// crossed.
func (e *Exchange) SetMarkPrice(price decimal.Decimal) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.mark = price
	for _, o := range e.orders {
		if o.state != entity.ChildSubmitted {
			continue
		}
		if e.crossed(o) {
			o.state = entity.ChildFilled
			o.filled = o.req.Quantity
		}
	}
}

// crossed reports whether the current mark price executes the order
func (e *Exchange) crossed(o *paperOrder) bool {
	switch o.req.Type {
	case entity.OrderTypeLimit:
		if o.req.Side == entity.SideBuy {
			return e.mark.LessThanOrEqual(o.req.Price)
		}
		return e.mark.GreaterThanOrEqual(o.req.Price)
	case entity.OrderTypeStopMarket:
		if o.req.Side == entity.SideBuy {
			return e.mark.GreaterThanOrEqual(o.req.StopPrice)
		}
		return e.mark.LessThanOrEqual(o.req.StopPrice)
	}
	return false
}

// PlaceOrder accepts the order. Market orders fill on the spot.
func (e *Exchange) PlaceOrder(ctx context.Context, req gateway.OrderRequest) (string, error) {
	if req.Quantity.Sign() <= 0 {
		return "", gateway.Permanent(0, "quantity must be positive", nil)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	e.nextID++
	id := "PAPER-" + strconv.FormatInt(e.nextID, 10)

	o := &paperOrder{req: req, state: entity.ChildSubmitted, filled: decimal.Zero}
	if req.Type == entity.OrderTypeMarket {
		o.state = entity.ChildFilled
		o.filled = req.Quantity
	}
	e.orders[id] = o
	return id, nil
}

// CancelOrder cancels a resting order
func (e *Exchange) CancelOrder(ctx context.Context, symbol, exchangeOrderID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	o, ok := e.orders[exchangeOrderID]
	if !ok {
		return gateway.Permanent(0, fmt.Sprintf("unknown order %s", exchangeOrderID), nil)
	}
	if o.state.Terminal() {
		return gateway.Permanent(0, fmt.Sprintf("order %s already %s", exchangeOrderID, o.state), nil)
	}
	o.state = entity.ChildCancelled
	return nil
}

// CancelAllOrders cancels every resting order on the symbol
func (e *Exchange) CancelAllOrders(ctx context.Context, symbol string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	for _, o := range e.orders {
		if o.req.Symbol != symbol || o.state.Terminal() {
			continue
		}
		o.state = entity.ChildCancelled
	}
	return nil
}

// GetOrderStatus reports the order's state and filled quantity
func (e *Exchange) GetOrderStatus(ctx context.Context, symbol, exchangeOrderID string) (gateway.OrderStatus, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	o, ok := e.orders[exchangeOrderID]
	if !ok {
		return gateway.OrderStatus{}, gateway.Permanent(0, fmt.Sprintf("unknown order %s", exchangeOrderID), nil)
	}
	return gateway.OrderStatus{State: o.state, FilledQuantity: o.filled}, nil
}

// GetSymbolPrice returns the mark price
func (e *Exchange) GetSymbolPrice(ctx context.Context, symbol string) (decimal.Decimal, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.mark, nil
}
