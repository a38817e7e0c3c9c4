package paper

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/quantfarm/futures-agent/internal/adapter/gateway"
	"github.com/quantfarm/futures-agent/internal/domain/entity"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestExchange_MarketOrderFillsInstantly(t *testing.T) {
	ex := NewExchange(d("45000"))

	id, err := ex.PlaceOrder(context.Background(), gateway.OrderRequest{
		Symbol:   "BTCUSDT",
		Side:     entity.SideBuy,
		Type:     entity.OrderTypeMarket,
		Quantity: d("0.5"),
	})
	if err != nil {
		t.Fatalf("PlaceOrder() error = %v", err)
	}

	st, err := ex.GetOrderStatus(context.Background(), "BTCUSDT", id)
	if err != nil {
		t.Fatalf("GetOrderStatus() error = %v", err)
	}
	if st.State != entity.ChildFilled || !st.FilledQuantity.Equal(d("0.5")) {
		t.Errorf("status = %+v, want filled 0.5", st)
	}
}

func TestExchange_LimitOrderRestsUntilCrossed(t *testing.T) {
	ex := NewExchange(d("45000"))

	id, err := ex.PlaceOrder(context.Background(), gateway.OrderRequest{
		Symbol:   "BTCUSDT",
		Side:     entity.SideBuy,
		Type:     entity.OrderTypeLimit,
		Quantity: d("1"),
		Price:    d("44000"),
	})
	if err != nil {
		t.Fatalf("PlaceOrder() error = %v", err)
	}

	st, _ := ex.GetOrderStatus(context.Background(), "BTCUSDT", id)
	if st.State != entity.ChildSubmitted {
		t.Fatalf("state = %s, want SUBMITTED while price is above limit", st.State)
	}

	ex.SetMarkPrice(d("43900"))
	st, _ = ex.GetOrderStatus(context.Background(), "BTCUSDT", id)
	if st.State != entity.ChildFilled {
		t.Errorf("state = %s, want FILLED after price crossed", st.State)
	}
}

func TestExchange_StopMarketTriggers(t *testing.T) {
	ex := NewExchange(d("45000"))

	id, _ := ex.PlaceOrder(context.Background(), gateway.OrderRequest{
		Symbol:    "BTCUSDT",
		Side:      entity.SideSell,
		Type:      entity.OrderTypeStopMarket,
		Quantity:  d("1"),
		StopPrice: d("40000"),
	})

	ex.SetMarkPrice(d("39500"))
	st, _ := ex.GetOrderStatus(context.Background(), "BTCUSDT", id)
	if st.State != entity.ChildFilled {
		t.Errorf("state = %s, want FILLED after stop triggered", st.State)
	}
}

func TestExchange_CancelTerminalOrderFails(t *testing.T) {
	ex := NewExchange(d("45000"))

	id, _ := ex.PlaceOrder(context.Background(), gateway.OrderRequest{
		Symbol:   "BTCUSDT",
		Side:     entity.SideBuy,
		Type:     entity.OrderTypeMarket,
		Quantity: d("1"),
	})

	err := ex.CancelOrder(context.Background(), "BTCUSDT", id)
	if err == nil {
		t.Fatal("CancelOrder(filled) error = nil")
	}
	if !gateway.IsPermanent(err) {
		t.Errorf("error = %v, want permanent", err)
	}
}

func TestExchange_CancelRestingOrder(t *testing.T) {
	ex := NewExchange(d("45000"))

	id, _ := ex.PlaceOrder(context.Background(), gateway.OrderRequest{
		Symbol:   "BTCUSDT",
		Side:     entity.SideBuy,
		Type:     entity.OrderTypeLimit,
		Quantity: d("1"),
		Price:    d("44000"),
	})
	if err := ex.CancelOrder(context.Background(), "BTCUSDT", id); err != nil {
		t.Fatalf("CancelOrder() error = %v", err)
	}
	st, _ := ex.GetOrderStatus(context.Background(), "BTCUSDT", id)
	if st.State != entity.ChildCancelled {
		t.Errorf("state = %s, want CANCELLED", st.State)
	}
}

func TestExchange_CancelAllOrders(t *testing.T) {
	ex := NewExchange(d("45000"))

	resting := make([]string, 0, 2)
	for _, price := range []string{"44000", "43000"} {
		id, _ := ex.PlaceOrder(context.Background(), gateway.OrderRequest{
			Symbol:   "BTCUSDT",
			Side:     entity.SideBuy,
			Type:     entity.OrderTypeLimit,
			Quantity: d("1"),
			Price:    d(price),
		})
		resting = append(resting, id)
	}
	filled, _ := ex.PlaceOrder(context.Background(), gateway.OrderRequest{
		Symbol:   "BTCUSDT",
		Side:     entity.SideBuy,
		Type:     entity.OrderTypeMarket,
		Quantity: d("0.1"),
	})
	other, _ := ex.PlaceOrder(context.Background(), gateway.OrderRequest{
		Symbol:   "ETHUSDT",
		Side:     entity.SideBuy,
		Type:     entity.OrderTypeLimit,
		Quantity: d("2"),
		Price:    d("3000"),
	})

	if err := ex.CancelAllOrders(context.Background(), "BTCUSDT"); err != nil {
		t.Fatalf("CancelAllOrders() error = %v", err)
	}

	for _, id := range resting {
		st, _ := ex.GetOrderStatus(context.Background(), "BTCUSDT", id)
		if st.State != entity.ChildCancelled {
			t.Errorf("order %s state = %s, want CANCELLED", id, st.State)
		}
	}
	st, _ := ex.GetOrderStatus(context.Background(), "BTCUSDT", filled)
	if st.State != entity.ChildFilled {
		t.Errorf("filled order state = %s, want FILLED untouched", st.State)
	}
	st, _ = ex.GetOrderStatus(context.Background(), "ETHUSDT", other)
	if st.State != entity.ChildSubmitted {
		t.Errorf("other-symbol order state = %s, want SUBMITTED untouched", st.State)
	}
}
