package strategy

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/quantfarm/futures-agent/internal/adapter/gateway"
	"github.com/quantfarm/futures-agent/internal/domain/entity"
	"github.com/quantfarm/futures-agent/internal/domain/event"
	"github.com/quantfarm/futures-agent/internal/usecase/tracker"
)

// InvalidBracketError indicates take-profit and stop-loss prices that do
// not straddle the reference price as required for the position side.
type InvalidBracketError struct {
	Side       entity.Side
	TakeProfit decimal.Decimal
	StopLoss   decimal.Decimal
	Reference  decimal.Decimal
}

func (e *InvalidBracketError) Error() string {
	return fmt.Sprintf("invalid OCO bracket for %s: takeProfit=%s stopLoss=%s reference=%s",
		e.Side, e.TakeProfit, e.StopLoss, e.Reference)
}

// PartialLegFailureError indicates one leg was placed while the sibling
// placement failed; the placed leg has been cancelled as compensation.
type PartialLegFailureError struct {
	PlacedLeg string
	FailedLeg string
	Cause     error
}

func (e *PartialLegFailureError) Error() string {
	return fmt.Sprintf("OCO %s leg failed after %s leg was placed: %v", e.FailedLeg, e.PlacedLeg, e.Cause)
}

func (e *PartialLegFailureError) Unwrap() error { return e.Cause }

// OCOConfig controls leg monitoring
type OCOConfig struct {
	// PollInterval is the wait between leg status polls
	PollInterval time.Duration

	// FillThreshold is the filled/requested ratio at which a partially
	// filled leg already triggers the sibling cancel. 1 means only a
	// full fill triggers.
	FillThreshold decimal.Decimal
}

// OCO places a take-profit leg and a stop-loss leg on the closing side
// of the position and enforces the one-cancels-other contract: the
// first leg observed FILLED wins, and the sibling is cancelled.
type OCO struct {
	intent entity.Intent
	cfg    OCOConfig
	deps   Deps
	tr     *tracker.Tracker

	tpID int
	slID int
}

// NewOCO creates an OCO strategy for the intent
func NewOCO(intent entity.Intent, cfg OCOConfig, deps Deps) *OCO {
	deps = deps.withDefaults()
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Second
	}
	if cfg.FillThreshold.Sign() <= 0 || cfg.FillThreshold.GreaterThan(decimal.New(1, 0)) {
		cfg.FillThreshold = decimal.New(1, 0)
	}
	return &OCO{
		intent: intent,
		cfg:    cfg,
		deps:   deps,
		tr:     tracker.New(entity.NewRun(intent, deps.Clock.Now())),
	}
}

// Tracker exposes the run ledger
func (o *OCO) Tracker() *tracker.Tracker { return o.tr }

// Run validates the bracket, places both legs and monitors them until
// the pair resolves or the context requests an abort.
func (o *OCO) Run(ctx context.Context) (entity.RunStatus, error) {
	ref, err := o.deps.Gateway.GetSymbolPrice(ctx, o.intent.Symbol)
	if err != nil {
		o.tr.MarkFailed()
		o.resolved(nil)
		return entity.RunFailed, err
	}
	if err := o.checkBracket(ref); err != nil {
		o.tr.MarkFailed()
		o.resolved(nil)
		return entity.RunFailed, err
	}

	if err := o.placeLegs(ctx); err != nil {
		o.tr.MarkFailed()
		o.resolved(nil)
		return entity.RunFailed, err
	}

	return o.monitor(ctx)
}

// checkBracket requires takeProfit and stopLoss to straddle the
// reference price consistent with the position side: for a BUY intent
// takeProfit sits above the reference and stopLoss below, mirrored for
// SELL.
func (o *OCO) checkBracket(ref decimal.Decimal) error {
	tp, sl := o.intent.TakeProfitPrice, o.intent.StopLossPrice
	ok := false
	switch o.intent.Side {
	case entity.SideBuy:
		ok = tp.GreaterThan(ref) && sl.LessThan(ref)
	case entity.SideSell:
		ok = tp.LessThan(ref) && sl.GreaterThan(ref)
	}
	if !ok {
		return &InvalidBracketError{Side: o.intent.Side, TakeProfit: tp, StopLoss: sl, Reference: ref}
	}
	return nil
}

// placeLegs submits both legs on the closing side. If the second
// placement fails, the first leg is cancelled as compensation.
func (o *OCO) placeLegs(ctx context.Context) error {
	closeSide := o.intent.Side.Opposite()

	tpReq := gateway.OrderRequest{
		Symbol:      o.intent.Symbol,
		Side:        closeSide,
		Type:        entity.OrderTypeLimit,
		Quantity:    o.intent.TotalQuantity,
		Price:       o.intent.TakeProfitPrice,
		TimeInForce: entity.TimeInForceGTC,
	}
	tpChild := newChild(o.tr, o.deps, tpReq)
	o.tpID = tpChild.LocalID

	tpExchangeID, err := o.deps.placeWithRetry(ctx, o.tr.RunID(), tpReq)
	if err != nil {
		rejectChild(o.tr, o.deps, o.tpID, err)
		return fmt.Errorf("take-profit leg: %w", err)
	}
	if err := o.tr.MarkSubmitted(o.tpID, tpExchangeID, o.deps.Clock.Now()); err != nil {
		return err
	}
	o.emitLegPlaced(o.tpID, tpExchangeID, "take_profit")

	slReq := gateway.OrderRequest{
		Symbol:    o.intent.Symbol,
		Side:      closeSide,
		Type:      entity.OrderTypeStopMarket,
		Quantity:  o.intent.TotalQuantity,
		StopPrice: o.intent.StopLossPrice,
	}
	slChild := newChild(o.tr, o.deps, slReq)
	o.slID = slChild.LocalID

	slExchangeID, err := o.deps.placeWithRetry(ctx, o.tr.RunID(), slReq)
	if err != nil {
		rejectChild(o.tr, o.deps, o.slID, err)
		o.compensate(ctx, o.tpID)
		return &PartialLegFailureError{PlacedLeg: "take_profit", FailedLeg: "stop_loss", Cause: err}
	}
	if err := o.tr.MarkSubmitted(o.slID, slExchangeID, o.deps.Clock.Now()); err != nil {
		return err
	}
	o.emitLegPlaced(o.slID, slExchangeID, "stop_loss")
	return nil
}

// compensate cancels an already-placed leg after the sibling failed
func (o *OCO) compensate(ctx context.Context, localID int) {
	child, ok := o.tr.Child(localID)
	if !ok || child.State.Terminal() {
		return
	}
	if err := o.deps.Gateway.CancelOrder(ctx, child.Symbol, child.ExchangeOrderID); err != nil {
		o.deps.emit(o.tr.RunID(), event.KindRetry, map[string]interface{}{
			"local_id": localID,
			"action":   "compensating_cancel",
			"error":    err.Error(),
		})
		return
	}
	_ = o.tr.UpdateChildState(localID, entity.ChildCancelled, decimal.Zero, o.deps.Clock.Now())
	o.deps.emit(o.tr.RunID(), event.KindCancelled, map[string]interface{}{
		"local_id":          localID,
		"exchange_order_id": child.ExchangeOrderID,
		"reason":            "compensating_cancel",
	})
}

// monitor polls both legs until one triggers the one-cancels-other
// contract. The first observed FILLED transition is authoritative.
func (o *OCO) monitor(ctx context.Context) (entity.RunStatus, error) {
	// consecutive transient poll failures, per leg
	failures := map[int]int{}

	for {
		if err := sleep(ctx, o.deps.Clock, o.cfg.PollInterval); err != nil {
			return o.abort()
		}

		var winner int
		for _, localID := range []int{o.tpID, o.slID} {
			child, _ := o.tr.Child(localID)
			if child.State.Terminal() {
				continue
			}

			st, err := o.deps.Gateway.GetOrderStatus(ctx, child.Symbol, child.ExchangeOrderID)
			if err != nil {
				if ctx.Err() != nil {
					return o.abort()
				}
				if !gateway.IsTransient(err) {
					o.tr.MarkFailed()
					o.resolved(nil)
					return entity.RunFailed, err
				}
				failures[localID]++
				if failures[localID] >= o.deps.Retry.MaxAttempts {
					o.tr.MarkFailed()
					o.resolved(nil)
					return entity.RunFailed, fmt.Errorf("leg status polling exhausted: %w", err)
				}
				continue
			}
			failures[localID] = 0

			updated, err := o.deps.applyStatus(o.tr, localID, st)
			if err != nil {
				o.tr.MarkFailed()
				o.resolved(nil)
				return entity.RunFailed, err
			}
			if winner == 0 && o.triggered(updated) {
				winner = localID
				break
			}
		}

		if winner != 0 {
			return o.resolve(ctx, winner)
		}

		// Both legs terminal without a fill means the pair died under
		// us (cancelled externally or rejected); nothing can resolve.
		tp, _ := o.tr.Child(o.tpID)
		sl, _ := o.tr.Child(o.slID)
		if tp.State.Terminal() && sl.State.Terminal() {
			if o.tr.Status() == entity.RunComplete {
				o.resolved(nil)
				return entity.RunComplete, nil
			}
			o.tr.MarkFailed()
			o.resolved(nil)
			return entity.RunFailed, fmt.Errorf("both OCO legs terminal without fill")
		}
	}
}

// triggered reports whether a leg fill satisfies the cancel trigger
func (o *OCO) triggered(child entity.ChildOrder) bool {
	if child.State == entity.ChildFilled {
		return true
	}
	if child.State != entity.ChildPartiallyFilled || child.RequestedQty.Sign() == 0 {
		return false
	}
	ratio := child.FilledQty.Div(child.RequestedQty)
	return ratio.GreaterThanOrEqual(o.cfg.FillThreshold)
}

// resolve cancels the sibling of the winning leg. A cancel failure here
// is a benign race: the sibling most likely filled in the same instant.
func (o *OCO) resolve(ctx context.Context, winner int) (entity.RunStatus, error) {
	sibling := o.slID
	if winner == o.slID {
		sibling = o.tpID
	}

	benignRace := false
	sib, _ := o.tr.Child(sibling)
	if !sib.State.Terminal() {
		if err := o.deps.Gateway.CancelOrder(ctx, sib.Symbol, sib.ExchangeOrderID); err != nil {
			benignRace = true
			// Pick up the sibling's actual terminal state
			if st, serr := o.deps.Gateway.GetOrderStatus(ctx, sib.Symbol, sib.ExchangeOrderID); serr == nil {
				_, _ = o.deps.applyStatus(o.tr, sibling, st)
			}
		} else {
			_ = o.tr.UpdateChildState(sibling, entity.ChildCancelled, decimal.Zero, o.deps.Clock.Now())
			o.deps.emit(o.tr.RunID(), event.KindCancelled, map[string]interface{}{
				"local_id":          sibling,
				"exchange_order_id": sib.ExchangeOrderID,
				"reason":            "one_cancels_other",
			})
		}
	}

	detail := map[string]interface{}{
		"winner_local_id": winner,
	}
	if benignRace {
		detail["benign_race"] = true
	}
	o.resolved(detail)
	return o.tr.Status(), nil
}

// abort cancels both open legs after a user-requested cancellation. The
// original context is already done, so the sweep runs detached from it.
func (o *OCO) abort() (entity.RunStatus, error) {
	ctx := context.Background()
	for _, localID := range []int{o.tpID, o.slID} {
		child, ok := o.tr.Child(localID)
		if !ok || child.State.Terminal() {
			continue
		}
		if err := o.deps.Gateway.CancelOrder(ctx, child.Symbol, child.ExchangeOrderID); err != nil {
			continue
		}
		_ = o.tr.UpdateChildState(localID, entity.ChildCancelled, decimal.Zero, o.deps.Clock.Now())
		o.deps.emit(o.tr.RunID(), event.KindCancelled, map[string]interface{}{
			"local_id":          localID,
			"exchange_order_id": child.ExchangeOrderID,
			"reason":            "user_abort",
		})
	}
	o.tr.MarkCancelled()
	o.resolved(nil)
	return entity.RunCancelled, nil
}

func (o *OCO) emitLegPlaced(localID int, exchangeID, leg string) {
	o.deps.emit(o.tr.RunID(), event.KindPlaced, map[string]interface{}{
		"local_id":          localID,
		"exchange_order_id": exchangeID,
		"leg":               leg,
	})
}

func (o *OCO) resolved(extra map[string]interface{}) {
	detail := map[string]interface{}{
		"status": string(o.tr.Status()),
	}
	for k, v := range extra {
		detail[k] = v
	}
	o.deps.emit(o.tr.RunID(), event.KindStrategyResolved, detail)
}
