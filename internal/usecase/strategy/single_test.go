package strategy

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/quantfarm/futures-agent/internal/adapter/gateway"
	"github.com/quantfarm/futures-agent/internal/domain/entity"
	"github.com/quantfarm/futures-agent/internal/domain/event"
)

func TestSingle_Run_MarketFills(t *testing.T) {
	gw := newFakeGateway("45000")
	sink := event.NewCollector()

	intent := entity.Intent{
		Symbol:        "ETHUSDT",
		Side:          entity.SideBuy,
		TotalQuantity: decimal.RequireFromString("1.5"),
		Kind:          entity.KindMarket,
	}
	gw.statusSeq["EX-1"] = []gateway.OrderStatus{
		{State: entity.ChildFilled, FilledQuantity: decimal.RequireFromString("1.5")},
	}

	s := NewSingle(intent, SingleConfig{}, Deps{Gateway: gw, Sink: sink, Clock: newFakeClock()})
	status, err := s.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if status != entity.RunComplete {
		t.Errorf("status = %s, want %s", status, entity.RunComplete)
	}
	if gw.placed[0].Type != entity.OrderTypeMarket {
		t.Errorf("type = %s, want MARKET", gw.placed[0].Type)
	}

	child, _ := s.Tracker().Child(1)
	if !child.RemainingQty.IsZero() {
		t.Errorf("remaining = %s, want 0", child.RemainingQty)
	}
	if got := countKind(sink.Events(), event.KindFilled); got != 1 {
		t.Errorf("FILLED events = %d, want 1", got)
	}
}

func TestSingle_Run_RestingLimitStaysActive(t *testing.T) {
	gw := newFakeGateway("45000")

	intent := entity.Intent{
		Symbol:        "ETHUSDT",
		Side:          entity.SideSell,
		TotalQuantity: decimal.RequireFromString("2"),
		Kind:          entity.KindLimit,
		Price:         decimal.RequireFromString("4700"),
		TimeInForce:   entity.TimeInForceGTC,
	}

	s := NewSingle(intent, SingleConfig{}, Deps{Gateway: gw, Clock: newFakeClock()})
	status, err := s.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if status != entity.RunActive {
		t.Errorf("status = %s, want %s (GTC limit rests)", status, entity.RunActive)
	}
	if len(gw.statusIdx) != 0 {
		t.Errorf("status polls = %v, want none for a resting order", gw.statusIdx)
	}
}

func TestSingle_Run_PlacementFailure(t *testing.T) {
	gw := newFakeGateway("45000")
	gw.placeErrs = []error{gateway.Permanent(-1121, "invalid symbol", nil)}
	sink := event.NewCollector()

	intent := entity.Intent{
		Symbol:        "ETHUSDT",
		Side:          entity.SideBuy,
		TotalQuantity: decimal.RequireFromString("1"),
		Kind:          entity.KindMarket,
	}

	s := NewSingle(intent, SingleConfig{}, Deps{Gateway: gw, Sink: sink, Clock: newFakeClock()})
	status, err := s.Run(context.Background())
	if err == nil {
		t.Fatal("Run() error = nil, want placement failure")
	}
	if status != entity.RunFailed {
		t.Errorf("status = %s, want %s", status, entity.RunFailed)
	}
	if got := countKind(sink.Events(), event.KindRejected); got != 1 {
		t.Errorf("REJECTED events = %d, want 1", got)
	}
}

func TestSingle_Run_SettleExhaustion(t *testing.T) {
	gw := newFakeGateway("45000")
	gw.statusSeq["EX-1"] = []gateway.OrderStatus{{State: entity.ChildSubmitted}}

	intent := entity.Intent{
		Symbol:        "ETHUSDT",
		Side:          entity.SideBuy,
		TotalQuantity: decimal.RequireFromString("1"),
		Kind:          entity.KindMarket,
	}

	s := NewSingle(intent, SingleConfig{}, Deps{
		Gateway: gw,
		Clock:   newFakeClock(),
		Retry:   RetryPolicy{MaxAttempts: 3, BaseDelay: time.Second, MaxDelay: 30 * time.Second},
	})
	status, err := s.Run(context.Background())
	if err == nil {
		t.Fatal("Run() error = nil, want settle exhaustion")
	}
	if status != entity.RunFailed {
		t.Errorf("status = %s, want %s", status, entity.RunFailed)
	}
	if got := gw.statusIdx["EX-1"]; got != 3 {
		t.Errorf("status polls = %d, want 3", got)
	}
}
