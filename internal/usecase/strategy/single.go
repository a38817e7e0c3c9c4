package strategy

import (
	"context"
	"fmt"
	"time"

	"github.com/quantfarm/futures-agent/internal/adapter/gateway"
	"github.com/quantfarm/futures-agent/internal/domain/entity"
	"github.com/quantfarm/futures-agent/internal/domain/event"
	"github.com/quantfarm/futures-agent/internal/usecase/tracker"
)

// SingleConfig controls single-order execution
type SingleConfig struct {
	// PollInterval is the wait between settlement status polls
	PollInterval time.Duration
}

// Single executes a plain MARKET or LIMIT intent as one child order.
// MARKET runs block until the order settles; a resting LIMIT (GTC)
// reaches steady ACTIVE after placement.
type Single struct {
	intent entity.Intent
	cfg    SingleConfig
	deps   Deps
	tr     *tracker.Tracker
}

// NewSingle creates a single-order strategy for a MARKET or LIMIT intent
func NewSingle(intent entity.Intent, cfg SingleConfig, deps Deps) *Single {
	deps = deps.withDefaults()
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 500 * time.Millisecond
	}
	return &Single{
		intent: intent,
		cfg:    cfg,
		deps:   deps,
		tr:     tracker.New(entity.NewRun(intent, deps.Clock.Now())),
	}
}

// Tracker exposes the run ledger
func (s *Single) Tracker() *tracker.Tracker { return s.tr }

// Run places the order and waits for settlement where applicable
func (s *Single) Run(ctx context.Context) (entity.RunStatus, error) {
	req := gateway.OrderRequest{
		Symbol:   s.intent.Symbol,
		Side:     s.intent.Side,
		Quantity: s.intent.TotalQuantity,
	}
	switch s.intent.Kind {
	case entity.KindMarket:
		req.Type = entity.OrderTypeMarket
	case entity.KindLimit:
		req.Type = entity.OrderTypeLimit
		req.Price = s.intent.Price
		req.TimeInForce = s.intent.TimeInForce
	default:
		return entity.RunFailed, fmt.Errorf("single strategy cannot execute kind %s", s.intent.Kind)
	}

	child := newChild(s.tr, s.deps, req)

	exchangeID, err := s.deps.placeWithRetry(ctx, s.tr.RunID(), req)
	if err != nil {
		rejectChild(s.tr, s.deps, child.LocalID, err)
		s.tr.MarkFailed()
		s.resolved()
		return entity.RunFailed, err
	}
	if err := s.tr.MarkSubmitted(child.LocalID, exchangeID, s.deps.Clock.Now()); err != nil {
		s.tr.MarkFailed()
		return entity.RunFailed, err
	}
	s.deps.emit(s.tr.RunID(), event.KindPlaced, map[string]interface{}{
		"local_id":          child.LocalID,
		"exchange_order_id": exchangeID,
		"type":              string(req.Type),
	})

	// A resting GTC limit order is a steady state, not something to
	// wait out. Everything else settles promptly.
	if s.intent.Kind == entity.KindLimit && s.intent.TimeInForce == entity.TimeInForceGTC {
		s.resolved()
		return s.tr.Status(), nil
	}

	if err := s.settle(ctx, child.LocalID); err != nil {
		s.tr.MarkFailed()
		s.resolved()
		return entity.RunFailed, err
	}
	s.resolved()
	return s.tr.Status(), nil
}

// settle polls the child until it reaches a terminal state, bounded by
// the retry policy so a stuck order fails the run instead of hanging.
func (s *Single) settle(ctx context.Context, localID int) error {
	child, _ := s.tr.Child(localID)

	var lastErr error
	for attempt := 0; attempt < s.deps.Retry.MaxAttempts; attempt++ {
		if attempt > 0 {
			if err := sleep(ctx, s.deps.Clock, s.cfg.PollInterval); err != nil {
				return err
			}
		}

		st, err := s.deps.Gateway.GetOrderStatus(ctx, child.Symbol, child.ExchangeOrderID)
		if err != nil {
			if !gateway.IsTransient(err) {
				return err
			}
			lastErr = err
			continue
		}

		updated, err := s.deps.applyStatus(s.tr, localID, st)
		if err != nil {
			return err
		}
		if updated.State.Terminal() {
			return nil
		}
		lastErr = fmt.Errorf("order %s still %s", updated.ExchangeOrderID, updated.State)
	}
	return fmt.Errorf("order did not settle: %w", lastErr)
}

func (s *Single) resolved() {
	s.deps.emit(s.tr.RunID(), event.KindStrategyResolved, map[string]interface{}{
		"status": string(s.tr.Status()),
	})
}
