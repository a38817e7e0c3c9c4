package strategy

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/quantfarm/futures-agent/internal/adapter/gateway"
	"github.com/quantfarm/futures-agent/internal/domain/entity"
	"github.com/quantfarm/futures-agent/internal/domain/event"
	"github.com/quantfarm/futures-agent/internal/usecase/tracker"
)

// slicePrecision is the decimal scale slices are rounded to; the final
// slice absorbs whatever the rounding left over.
const slicePrecision = 6

// TWAPConfig controls scheduled execution
type TWAPConfig struct {
	// OrderType is the child order type, MARKET by default
	OrderType entity.OrderType

	// PollInterval is the wait between settlement polls for a slice
	PollInterval time.Duration
}

// TWAP splits the intent quantity into evenly timed slices and submits
// them strictly in sequence: slice k+1 is never submitted before slice
// k's submission attempt has resolved.
type TWAP struct {
	intent entity.Intent
	cfg    TWAPConfig
	deps   Deps
	tr     *tracker.Tracker
}

// NewTWAP creates a TWAP scheduler for the intent
func NewTWAP(intent entity.Intent, cfg TWAPConfig, deps Deps) *TWAP {
	deps = deps.withDefaults()
	if cfg.OrderType == "" {
		cfg.OrderType = entity.OrderTypeMarket
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 500 * time.Millisecond
	}
	return &TWAP{
		intent: intent,
		cfg:    cfg,
		deps:   deps,
		tr:     tracker.New(entity.NewRun(intent, deps.Clock.Now())),
	}
}

// Tracker exposes the run ledger
func (t *TWAP) Tracker() *tracker.Tracker { return t.tr }

// SliceCount returns N = ceil(duration / interval)
func SliceCount(duration, interval time.Duration) int {
	return int((duration + interval - 1) / interval)
}

// SliceQuantities splits total into n slices whose sum is exactly total.
// All slices share the same rounded quantity except the last, which
// absorbs the rounding remainder.
func SliceQuantities(total decimal.Decimal, n int) []decimal.Decimal {
	if n <= 1 {
		return []decimal.Decimal{total}
	}

	count := decimal.NewFromInt(int64(n))
	base := total.DivRound(count, slicePrecision)
	last := total.Sub(base.Mul(decimal.NewFromInt(int64(n - 1))))
	if base.Sign() <= 0 || last.Sign() <= 0 {
		// Quantity too small for the rounded split; fall back to a
		// truncated base so the remainder stays positive.
		base = total.Div(count).Truncate(int32(decimal.DivisionPrecision))
		last = total.Sub(base.Mul(decimal.NewFromInt(int64(n - 1))))
	}

	out := make([]decimal.Decimal, n)
	for i := 0; i < n-1; i++ {
		out[i] = base
	}
	out[n-1] = last
	return out
}

// Run executes all slices. It returns CANCELLED if the context is
// cancelled at any suspension point; already-submitted slices are left
// to settle.
func (t *TWAP) Run(ctx context.Context) (entity.RunStatus, error) {
	slices := SliceQuantities(t.intent.TotalQuantity, SliceCount(t.intent.Duration, t.intent.Interval))

	for i, qty := range slices {
		// Interval 0 fires immediately
		wait := time.Duration(0)
		if i > 0 {
			wait = t.intent.Interval
		}
		if err := sleep(ctx, t.deps.Clock, wait); err != nil {
			t.tr.MarkCancelled()
			t.resolved()
			return entity.RunCancelled, nil
		}

		if err := t.executeSlice(ctx, i, qty); err != nil {
			if ctx.Err() != nil {
				t.tr.MarkCancelled()
				t.resolved()
				return entity.RunCancelled, nil
			}
			t.tr.MarkFailed()
			t.resolved()
			return entity.RunFailed, err
		}
	}

	t.resolved()
	return t.tr.Status(), nil
}

// executeSlice submits one slice and waits for it to settle. Transient
// submission failures are retried per the policy; exhaustion or a
// permanent rejection fails the run so no further slices are scheduled.
func (t *TWAP) executeSlice(ctx context.Context, index int, qty decimal.Decimal) error {
	req := gateway.OrderRequest{
		Symbol:   t.intent.Symbol,
		Side:     t.intent.Side,
		Type:     t.cfg.OrderType,
		Quantity: qty,
	}
	if t.cfg.OrderType == entity.OrderTypeLimit {
		price, err := t.deps.Gateway.GetSymbolPrice(ctx, t.intent.Symbol)
		if err != nil {
			return err
		}
		req.Price = price
		req.TimeInForce = entity.TimeInForceGTC
	}

	child := newChild(t.tr, t.deps, req)

	exchangeID, err := t.deps.placeWithRetry(ctx, t.tr.RunID(), req)
	if err != nil {
		rejectChild(t.tr, t.deps, child.LocalID, err)
		return err
	}
	if err := t.tr.MarkSubmitted(child.LocalID, exchangeID, t.deps.Clock.Now()); err != nil {
		return err
	}
	t.deps.emit(t.tr.RunID(), event.KindPlaced, map[string]interface{}{
		"local_id":          child.LocalID,
		"exchange_order_id": exchangeID,
		"slice":             index + 1,
		"quantity":          qty.String(),
	})

	t.settleSlice(ctx, child.LocalID, exchangeID)
	return nil
}

// settleSlice polls the slice toward a terminal state, bounded by the
// retry policy. A slice still open after the polls is left to settle;
// the run's derived status reflects it.
func (t *TWAP) settleSlice(ctx context.Context, localID int, exchangeID string) {
	for attempt := 0; attempt < t.deps.Retry.MaxAttempts; attempt++ {
		if attempt > 0 {
			if err := sleep(ctx, t.deps.Clock, t.cfg.PollInterval); err != nil {
				return
			}
		}

		st, err := t.deps.Gateway.GetOrderStatus(ctx, t.intent.Symbol, exchangeID)
		if err != nil {
			if !gateway.IsTransient(err) {
				return
			}
			continue
		}
		updated, err := t.deps.applyStatus(t.tr, localID, st)
		if err != nil || updated.State.Terminal() {
			return
		}
	}
}

func (t *TWAP) resolved() {
	t.deps.emit(t.tr.RunID(), event.KindStrategyResolved, map[string]interface{}{
		"status": string(t.tr.Status()),
	})
}
