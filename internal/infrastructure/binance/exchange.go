package binance

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strconv"

	"github.com/shopspring/decimal"

	"github.com/quantfarm/futures-agent/internal/adapter/gateway"
	"github.com/quantfarm/futures-agent/internal/domain/entity"
)

// Exchange implements gateway.ExchangeGateway against the Binance
// USDT-M futures API.
type Exchange struct {
	client *Client
}

// NewExchange creates a gateway backed by the given client
func NewExchange(client *Client) *Exchange {
	return &Exchange{client: client}
}

type orderResponse struct {
	OrderID     int64  `json:"orderId"`
	Status      string `json:"status"`
	ExecutedQty string `json:"executedQty"`
}

type tickerResponse struct {
	Symbol string `json:"symbol"`
	Price  string `json:"price"`
}

// PlaceOrder submits a new order and returns its exchange order id
func (e *Exchange) PlaceOrder(ctx context.Context, req gateway.OrderRequest) (string, error) {
	params := url.Values{}
	params.Set("symbol", req.Symbol)
	params.Set("side", string(req.Side))
	params.Set("type", string(req.Type))
	params.Set("quantity", req.Quantity.String())
	switch req.Type {
	case entity.OrderTypeLimit:
		params.Set("price", req.Price.String())
		tif := req.TimeInForce
		if tif == "" {
			tif = entity.TimeInForceGTC
		}
		params.Set("timeInForce", string(tif))
	case entity.OrderTypeStopMarket:
		params.Set("stopPrice", req.StopPrice.String())
	}

	var resp orderResponse
	if err := e.client.doSigned(ctx, http.MethodPost, "/fapi/v1/order", params, &resp); err != nil {
		return "", classify("place order", err)
	}
	return strconv.FormatInt(resp.OrderID, 10), nil
}

// CancelOrder cancels an open order
func (e *Exchange) CancelOrder(ctx context.Context, symbol, exchangeOrderID string) error {
	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("orderId", exchangeOrderID)

	if err := e.client.doSigned(ctx, http.MethodDelete, "/fapi/v1/order", params, nil); err != nil {
		return classify("cancel order", err)
	}
	return nil
}

// CancelAllOrders cancels every open order on the symbol
func (e *Exchange) CancelAllOrders(ctx context.Context, symbol string) error {
	params := url.Values{}
	params.Set("symbol", symbol)

	if err := e.client.doSigned(ctx, http.MethodDelete, "/fapi/v1/allOpenOrders", params, nil); err != nil {
		return classify("cancel all orders", err)
	}
	return nil
}

// GetOrderStatus queries an order's state and cumulative filled quantity
func (e *Exchange) GetOrderStatus(ctx context.Context, symbol, exchangeOrderID string) (gateway.OrderStatus, error) {
	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("orderId", exchangeOrderID)

	var resp orderResponse
	if err := e.client.doSigned(ctx, http.MethodGet, "/fapi/v1/order", params, &resp); err != nil {
		return gateway.OrderStatus{}, classify("query order", err)
	}

	state, err := mapOrderStatus(resp.Status)
	if err != nil {
		return gateway.OrderStatus{}, gateway.Permanent(0, err.Error(), err)
	}
	filled := decimal.Zero
	if resp.ExecutedQty != "" {
		filled, err = decimal.NewFromString(resp.ExecutedQty)
		if err != nil {
			return gateway.OrderStatus{}, gateway.Permanent(0, "unparseable executedQty", err)
		}
	}
	return gateway.OrderStatus{State: state, FilledQuantity: filled}, nil
}

// GetSymbolPrice returns the latest traded price for the symbol
func (e *Exchange) GetSymbolPrice(ctx context.Context, symbol string) (decimal.Decimal, error) {
	params := url.Values{}
	params.Set("symbol", symbol)

	var resp tickerResponse
	if err := e.client.doRequest(ctx, http.MethodGet, "/fapi/v1/ticker/price", params, &resp); err != nil {
		return decimal.Zero, classify("ticker price", err)
	}
	price, err := decimal.NewFromString(resp.Price)
	if err != nil {
		return decimal.Zero, gateway.Permanent(0, "unparseable ticker price", err)
	}
	return price, nil
}

// mapOrderStatus maps a Binance order status onto the child order
// state machine.
func mapOrderStatus(status string) (entity.ChildState, error) {
	switch status {
	case "NEW":
		return entity.ChildSubmitted, nil
	case "PARTIALLY_FILLED":
		return entity.ChildPartiallyFilled, nil
	case "FILLED":
		return entity.ChildFilled, nil
	case "CANCELED", "EXPIRED":
		return entity.ChildCancelled, nil
	case "REJECTED":
		return entity.ChildRejected, nil
	default:
		return "", fmt.Errorf("unknown order status %q", status)
	}
}

// classify sorts an error into the gateway's transient/permanent
// taxonomy. Rate limits, server errors and network timeouts are worth
// retrying; everything the exchange rejects outright is not.
func classify(op string, err error) error {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		if transientCode(apiErr) {
			return gateway.Transient(apiErr.Code, op+": "+apiErr.Message, apiErr)
		}
		return gateway.Permanent(apiErr.Code, op+": "+apiErr.Message, apiErr)
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return gateway.Transient(0, op+": request timed out", err)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return gateway.Transient(0, op+": request timed out", err)
	}
	if errors.Is(err, context.Canceled) {
		return err
	}

	// Connection resets and DNS hiccups surface as url.Error
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return gateway.Transient(0, op+": "+urlErr.Err.Error(), err)
	}

	return gateway.Permanent(0, op+": "+err.Error(), err)
}

func transientCode(e *APIError) bool {
	if e.HTTPStatus == http.StatusTooManyRequests ||
		e.HTTPStatus == 418 ||
		e.HTTPStatus >= 500 {
		return true
	}
	switch e.Code {
	case -1001, // DISCONNECTED
		-1003, // TOO_MANY_REQUESTS
		-1007, // TIMEOUT
		-1016: // SERVICE_SHUTTING_DOWN
		return true
	}
	return false
}
