package strategy

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/quantfarm/futures-agent/internal/adapter/gateway"
	"github.com/quantfarm/futures-agent/internal/domain/entity"
	"github.com/quantfarm/futures-agent/internal/domain/event"
	"github.com/quantfarm/futures-agent/internal/usecase/tracker"
)

// GridLevel is one rung of the ladder: a resting limit order at a fixed
// price, on the side determined by where the price sits relative to the
// reference at planning time.
type GridLevel struct {
	Index int
	Price decimal.Decimal
	Side  entity.Side
}

// Grid lays a ladder of resting limit orders between a lower and upper
// price. Levels at or below the reference price buy, levels above sell.
type Grid struct {
	intent entity.Intent
	deps   Deps
	tr     *tracker.Tracker

	levels []GridLevel
	failed []GridLevel
}

// NewGrid creates a grid strategy for the intent
func NewGrid(intent entity.Intent, deps Deps) *Grid {
	deps = deps.withDefaults()
	return &Grid{
		intent: intent,
		deps:   deps,
		tr:     tracker.New(entity.NewRun(intent, deps.Clock.Now())),
	}
}

// Tracker exposes the run ledger
func (g *Grid) Tracker() *tracker.Tracker { return g.tr }

// PlanLevels computes the ladder prices and sides against a reference
// price. Level prices are evenly spaced from lower to upper inclusive.
func PlanLevels(lower, upper decimal.Decimal, levels int, reference decimal.Decimal) []GridLevel {
	if levels < 2 {
		return nil
	}
	step := upper.Sub(lower).Div(decimal.NewFromInt(int64(levels - 1)))
	out := make([]GridLevel, 0, levels)
	for i := 0; i < levels; i++ {
		price := lower.Add(step.Mul(decimal.NewFromInt(int64(i))))
		if i == levels-1 {
			price = upper
		}
		side := entity.SideBuy
		if price.GreaterThan(reference) {
			side = entity.SideSell
		}
		out = append(out, GridLevel{Index: i, Price: price, Side: side})
	}
	return out
}

// Levels returns the planned ladder; empty before Run
func (g *Grid) Levels() []GridLevel { return g.levels }

// FailedLevels returns the levels whose placement was rejected
func (g *Grid) FailedLevels() []GridLevel { return g.failed }

// Run plans the ladder from the current symbol price and places every
// level. Placement failures do not stop the remaining levels; the run
// degrades to PARTIAL_FAILURE when some levels failed and to FAILED
// when none could be placed.
func (g *Grid) Run(ctx context.Context) (entity.RunStatus, error) {
	ref, err := g.deps.Gateway.GetSymbolPrice(ctx, g.intent.Symbol)
	if err != nil {
		g.tr.MarkFailed()
		g.resolved()
		return entity.RunFailed, err
	}

	g.levels = PlanLevels(g.intent.LowerPrice, g.intent.UpperPrice, g.intent.Levels, ref)
	if len(g.levels) == 0 {
		g.tr.MarkFailed()
		g.resolved()
		return entity.RunFailed, fmt.Errorf("grid needs at least 2 levels, got %d", g.intent.Levels)
	}

	placed := 0
	for _, lvl := range g.levels {
		if ctx.Err() != nil {
			return g.abort()
		}
		req := gateway.OrderRequest{
			Symbol:      g.intent.Symbol,
			Side:        lvl.Side,
			Type:        entity.OrderTypeLimit,
			Quantity:    g.intent.QuantityPerLevel,
			Price:       lvl.Price,
			TimeInForce: entity.TimeInForceGTC,
		}
		child := newChild(g.tr, g.deps, req)

		exchangeID, err := g.deps.placeWithRetry(ctx, g.tr.RunID(), req)
		if err != nil {
			rejectChild(g.tr, g.deps, child.LocalID, err)
			if ctx.Err() != nil {
				return g.abort()
			}
			g.failed = append(g.failed, lvl)
			continue
		}
		if err := g.tr.MarkSubmitted(child.LocalID, exchangeID, g.deps.Clock.Now()); err != nil {
			return entity.RunFailed, err
		}
		g.deps.emit(g.tr.RunID(), event.KindPlaced, map[string]interface{}{
			"local_id":          child.LocalID,
			"exchange_order_id": exchangeID,
			"level":             lvl.Index,
			"price":             lvl.Price.String(),
			"side":              string(lvl.Side),
		})
		placed++
	}

	switch {
	case placed == 0:
		g.tr.MarkFailed()
		g.resolved()
		return entity.RunFailed, fmt.Errorf("no grid level could be placed")
	case len(g.failed) > 0:
		g.tr.MarkPartialFailure()
		g.resolved()
		return entity.RunPartialFailure, nil
	}

	// A grid rests on the book until cancelled or fully filled; the run
	// stays live after placement.
	return g.tr.Status(), nil
}

// abort sweeps the levels already placed after a user-requested
// cancellation. The original context is done, so the sweep runs
// detached from it.
func (g *Grid) abort() (entity.RunStatus, error) {
	ctx := context.Background()
	for _, child := range g.tr.Children() {
		if child.State.Terminal() || child.ExchangeOrderID == "" {
			continue
		}
		if err := g.deps.Gateway.CancelOrder(ctx, child.Symbol, child.ExchangeOrderID); err != nil {
			continue
		}
		_ = g.tr.UpdateChildState(child.LocalID, entity.ChildCancelled, decimal.Zero, g.deps.Clock.Now())
		g.deps.emit(g.tr.RunID(), event.KindCancelled, map[string]interface{}{
			"local_id":          child.LocalID,
			"exchange_order_id": child.ExchangeOrderID,
			"reason":            "user_abort",
		})
	}
	g.tr.MarkCancelled()
	g.resolved()
	return entity.RunCancelled, nil
}

// Refresh polls the exchange for every open level and applies the
// observed states to the ledger.
func (g *Grid) Refresh(ctx context.Context) error {
	for _, child := range g.tr.Children() {
		if child.State.Terminal() || child.ExchangeOrderID == "" {
			continue
		}
		st, err := g.deps.Gateway.GetOrderStatus(ctx, child.Symbol, child.ExchangeOrderID)
		if err != nil {
			if gateway.IsTransient(err) {
				continue
			}
			return err
		}
		if _, err := g.deps.applyStatus(g.tr, child.LocalID, st); err != nil {
			return err
		}
	}
	return nil
}

// Cancel refreshes the ladder and cancels every level that is still
// open. Filled levels are left alone; the run resolves CANCELLED.
func (g *Grid) Cancel(ctx context.Context) (entity.RunStatus, error) {
	if err := g.Refresh(ctx); err != nil {
		return g.tr.Status(), err
	}

	var firstErr error
	for _, child := range g.tr.Children() {
		if child.State.Terminal() || child.ExchangeOrderID == "" {
			continue
		}
		if err := g.deps.Gateway.CancelOrder(ctx, child.Symbol, child.ExchangeOrderID); err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		_ = g.tr.UpdateChildState(child.LocalID, entity.ChildCancelled, decimal.Zero, g.deps.Clock.Now())
		g.deps.emit(g.tr.RunID(), event.KindCancelled, map[string]interface{}{
			"local_id":          child.LocalID,
			"exchange_order_id": child.ExchangeOrderID,
		})
	}
	if firstErr != nil {
		return g.tr.Status(), firstErr
	}

	g.tr.MarkCancelled()
	g.resolved()
	return entity.RunCancelled, nil
}

func (g *Grid) resolved() {
	g.deps.emit(g.tr.RunID(), event.KindStrategyResolved, map[string]interface{}{
		"status": string(g.tr.Status()),
	})
}
