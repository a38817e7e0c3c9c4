package strategy

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/quantfarm/futures-agent/internal/adapter/gateway"
	"github.com/quantfarm/futures-agent/internal/domain/entity"
	"github.com/quantfarm/futures-agent/internal/domain/event"
	"github.com/quantfarm/futures-agent/internal/usecase/tracker"
)

// Strategy drives one run to a terminal or steady state
type Strategy interface {
	// Run executes the strategy. Cancelling the context requests a
	// user abort, which takes effect at the next suspension point.
	Run(ctx context.Context) (entity.RunStatus, error)

	// Tracker exposes the run's execution ledger for reporting
	Tracker() *tracker.Tracker
}

// Deps are the capabilities injected into every strategy engine
type Deps struct {
	Gateway gateway.ExchangeGateway
	Sink    event.Sink
	Clock   Clock
	Retry   RetryPolicy
}

func (d Deps) withDefaults() Deps {
	if d.Sink == nil {
		d.Sink = event.Discard
	}
	if d.Clock == nil {
		d.Clock = SystemClock()
	}
	if d.Retry.MaxAttempts <= 0 {
		d.Retry = DefaultRetryPolicy()
	}
	return d
}

func (d Deps) emit(runID string, kind event.Kind, detail map[string]interface{}) {
	d.Sink.Emit(event.Event{
		Time:   d.Clock.Now(),
		RunID:  runID,
		Kind:   kind,
		Detail: detail,
	})
}

// placeWithRetry submits an order, retrying transient failures with
// exponential backoff up to Retry.MaxAttempts total attempts. Permanent
// failures return immediately.
func (d Deps) placeWithRetry(ctx context.Context, runID string, req gateway.OrderRequest) (string, error) {
	var lastErr error
	for attempt := 0; attempt < d.Retry.MaxAttempts; attempt++ {
		if attempt > 0 {
			d.emit(runID, event.KindRetry, map[string]interface{}{
				"attempt": attempt + 1,
				"error":   lastErr.Error(),
			})
			if err := sleep(ctx, d.Clock, d.Retry.Backoff(attempt-1)); err != nil {
				return "", err
			}
		}

		id, err := d.Gateway.PlaceOrder(ctx, req)
		if err == nil {
			return id, nil
		}
		if !gateway.IsTransient(err) {
			return "", err
		}
		lastErr = err
	}
	return "", lastErr
}

// applyStatus folds an exchange-reported status into the ledger and
// emits the matching event. The fill delta is derived from the
// cumulative filled quantity the exchange reports.
func (d Deps) applyStatus(tr *tracker.Tracker, localID int, st gateway.OrderStatus) (entity.ChildOrder, error) {
	child, ok := tr.Child(localID)
	if !ok {
		return entity.ChildOrder{}, tracker.ErrUnknownChild
	}
	if child.State == st.State && st.FilledQuantity.Equal(child.FilledQty) {
		return child, nil
	}

	delta := st.FilledQuantity.Sub(child.FilledQty)
	if err := tr.UpdateChildState(localID, st.State, delta, d.Clock.Now()); err != nil {
		return child, err
	}
	updated, _ := tr.Child(localID)

	detail := map[string]interface{}{
		"local_id":          updated.LocalID,
		"exchange_order_id": updated.ExchangeOrderID,
		"filled":            updated.FilledQty.String(),
	}
	switch st.State {
	case entity.ChildFilled:
		d.emit(tr.RunID(), event.KindFilled, detail)
	case entity.ChildPartiallyFilled:
		if delta.Sign() > 0 {
			d.emit(tr.RunID(), event.KindPartiallyFilled, detail)
		}
	case entity.ChildCancelled:
		d.emit(tr.RunID(), event.KindCancelled, detail)
	case entity.ChildRejected:
		d.emit(tr.RunID(), event.KindRejected, detail)
	}
	return updated, nil
}

// newChild records a pending child order built from the request
func newChild(tr *tracker.Tracker, d Deps, req gateway.OrderRequest) *entity.ChildOrder {
	o := entity.NewChildOrder(req.Symbol, req.Side, req.Type, req.Quantity, d.Clock.Now())
	o.Price = req.Price
	o.StopPrice = req.StopPrice
	o.TimeInForce = req.TimeInForce
	tr.RecordChild(o)
	return o
}

// rejectChild marks a child rejected after a failed placement
func rejectChild(tr *tracker.Tracker, d Deps, localID int, cause error) {
	_ = tr.UpdateChildState(localID, entity.ChildRejected, decimal.Zero, d.Clock.Now())
	d.emit(tr.RunID(), event.KindRejected, map[string]interface{}{
		"local_id": localID,
		"error":    cause.Error(),
	})
}
