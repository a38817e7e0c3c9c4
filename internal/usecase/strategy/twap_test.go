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

func twapIntent(qty string, duration, interval time.Duration) entity.Intent {
	return entity.Intent{
		Symbol:        "BTCUSDT",
		Side:          entity.SideBuy,
		TotalQuantity: decimal.RequireFromString(qty),
		Kind:          entity.KindTWAP,
		Duration:      duration,
		Interval:      interval,
	}
}

func TestSliceCount(t *testing.T) {
	tests := []struct {
		duration, interval time.Duration
		want               int
	}{
		{3600 * time.Second, 600 * time.Second, 6},
		{3500 * time.Second, 600 * time.Second, 6},
		{600 * time.Second, 600 * time.Second, 1},
		{601 * time.Second, 600 * time.Second, 2},
	}
	for _, tt := range tests {
		if got := SliceCount(tt.duration, tt.interval); got != tt.want {
			t.Errorf("SliceCount(%v, %v) = %d, want %d", tt.duration, tt.interval, got, tt.want)
		}
	}
}

func TestSliceQuantities_ExactSum(t *testing.T) {
	total := decimal.RequireFromString("0.01")
	qs := SliceQuantities(total, 6)

	if len(qs) != 6 {
		t.Fatalf("len = %d, want 6", len(qs))
	}
	base := decimal.RequireFromString("0.001667")
	for i := 0; i < 5; i++ {
		if !qs[i].Equal(base) {
			t.Errorf("slice %d = %s, want %s", i, qs[i], base)
		}
	}
	if want := decimal.RequireFromString("0.001665"); !qs[5].Equal(want) {
		t.Errorf("last slice = %s, want %s", qs[5], want)
	}

	sum := decimal.Zero
	for _, q := range qs {
		sum = sum.Add(q)
	}
	if !sum.Equal(total) {
		t.Errorf("slice sum = %s, want %s", sum, total)
	}
}

func TestSliceQuantities_SingleSlice(t *testing.T) {
	total := decimal.RequireFromString("1.5")
	qs := SliceQuantities(total, 1)
	if len(qs) != 1 || !qs[0].Equal(total) {
		t.Errorf("got %v, want [%s]", qs, total)
	}
}

func TestTWAP_Run_AllSlicesFill(t *testing.T) {
	gw := newFakeGateway("45000")
	clock := newFakeClock()
	sink := event.NewCollector()

	intent := twapIntent("0.01", 3600*time.Second, 600*time.Second)
	tw := NewTWAP(intent, TWAPConfig{}, Deps{Gateway: gw, Sink: sink, Clock: clock})

	qs := SliceQuantities(intent.TotalQuantity, 6)
	for i, q := range qs {
		id := "EX-" + string(rune('1'+i))
		gw.statusSeq[id] = []gateway.OrderStatus{{State: entity.ChildFilled, FilledQuantity: q}}
	}

	status, err := tw.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if status != entity.RunComplete {
		t.Errorf("status = %s, want %s", status, entity.RunComplete)
	}
	if len(gw.placed) != 6 {
		t.Fatalf("placed %d orders, want 6", len(gw.placed))
	}
	for i, req := range gw.placed {
		if req.Type != entity.OrderTypeMarket {
			t.Errorf("slice %d type = %s, want MARKET", i, req.Type)
		}
		if !req.Quantity.Equal(qs[i]) {
			t.Errorf("slice %d quantity = %s, want %s", i, req.Quantity, qs[i])
		}
	}

	events := sink.Events()
	if got := countKind(events, event.KindPlaced); got != 6 {
		t.Errorf("PLACED events = %d, want 6", got)
	}
	if got := countKind(events, event.KindFilled); got != 6 {
		t.Errorf("FILLED events = %d, want 6", got)
	}
	if last := events[len(events)-1]; last.Kind != event.KindStrategyResolved {
		t.Errorf("last event = %s, want %s", last.Kind, event.KindStrategyResolved)
	}
}

func TestTWAP_Run_WaitsIntervalBetweenSlices(t *testing.T) {
	gw := newFakeGateway("45000")
	clock := newFakeClock()

	intent := twapIntent("0.3", 30*time.Minute, 10*time.Minute)
	tw := NewTWAP(intent, TWAPConfig{}, Deps{Gateway: gw, Clock: clock})

	for i := 0; i < 3; i++ {
		id := "EX-" + string(rune('1'+i))
		gw.statusSeq[id] = []gateway.OrderStatus{{State: entity.ChildFilled, FilledQuantity: decimal.RequireFromString("0.1")}}
	}

	if _, err := tw.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	intervals := 0
	for _, w := range clock.waits {
		if w == 10*time.Minute {
			intervals++
		}
	}
	if intervals != 2 {
		t.Errorf("interval waits = %d, want 2 (first slice fires immediately)", intervals)
	}
}

func TestTWAP_Run_TransientExhaustionFailsRun(t *testing.T) {
	gw := newFakeGateway("45000")
	transient := gateway.Transient(-1003, "rate limited", nil)
	gw.placeErrs = []error{transient, transient, transient}
	clock := newFakeClock()
	sink := event.NewCollector()

	intent := twapIntent("0.01", 3600*time.Second, 600*time.Second)
	tw := NewTWAP(intent, TWAPConfig{}, Deps{
		Gateway: gw,
		Sink:    sink,
		Clock:   clock,
		Retry:   RetryPolicy{MaxAttempts: 3, BaseDelay: time.Second, MaxDelay: 30 * time.Second},
	})

	status, err := tw.Run(context.Background())
	if err == nil {
		t.Fatal("Run() error = nil, want placement failure")
	}
	if status != entity.RunFailed {
		t.Errorf("status = %s, want %s", status, entity.RunFailed)
	}
	if gw.placeCalls != 3 {
		t.Errorf("place attempts = %d, want 3 (no further slices after exhaustion)", gw.placeCalls)
	}

	events := sink.Events()
	if got := countKind(events, event.KindRetry); got != 2 {
		t.Errorf("RETRY events = %d, want 2", got)
	}
	if got := countKind(events, event.KindRejected); got != 1 {
		t.Errorf("REJECTED events = %d, want 1", got)
	}
}

func TestTWAP_Run_PermanentErrorFailsImmediately(t *testing.T) {
	gw := newFakeGateway("45000")
	gw.placeErrs = []error{gateway.Permanent(-1121, "invalid symbol", nil)}
	clock := newFakeClock()

	intent := twapIntent("0.01", 3600*time.Second, 600*time.Second)
	tw := NewTWAP(intent, TWAPConfig{}, Deps{Gateway: gw, Clock: clock})

	status, err := tw.Run(context.Background())
	if err == nil {
		t.Fatal("Run() error = nil, want permanent failure")
	}
	if status != entity.RunFailed {
		t.Errorf("status = %s, want %s", status, entity.RunFailed)
	}
	if gw.placeCalls != 1 {
		t.Errorf("place attempts = %d, want 1", gw.placeCalls)
	}
}

func TestTWAP_Run_CancelBetweenSlices(t *testing.T) {
	gw := newFakeGateway("45000")
	clock := newFakeClock()
	ctx, cancel := context.WithCancel(context.Background())

	// Cancel the context the first time the scheduler waits out an
	// interval; the wait channel never fires.
	clock.afterFn = func(d time.Duration) <-chan time.Time {
		cancel()
		return make(chan time.Time)
	}

	gw.statusSeq["EX-1"] = []gateway.OrderStatus{{State: entity.ChildFilled, FilledQuantity: decimal.RequireFromString("0.005")}}

	intent := twapIntent("0.01", 20*time.Minute, 10*time.Minute)
	tw := NewTWAP(intent, TWAPConfig{}, Deps{Gateway: gw, Clock: clock})

	status, err := tw.Run(ctx)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if status != entity.RunCancelled {
		t.Errorf("status = %s, want %s", status, entity.RunCancelled)
	}
	if len(gw.placed) != 1 {
		t.Errorf("placed %d orders, want 1 (second slice never submitted)", len(gw.placed))
	}
}
