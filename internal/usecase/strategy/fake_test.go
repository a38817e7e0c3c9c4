package strategy

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/quantfarm/futures-agent/internal/adapter/gateway"
	"github.com/quantfarm/futures-agent/internal/domain/event"
)

// fakeClock advances its notion of time whenever a wait is requested,
// so strategies that sleep between steps run instantly in tests.
type fakeClock struct {
	mu    sync.Mutex
	now   time.Time
	waits []time.Duration

	// afterFn, when set, replaces the default immediate wakeup
	afterFn func(d time.Duration) <-chan time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) After(d time.Duration) <-chan time.Time {
	c.mu.Lock()
	c.waits = append(c.waits, d)
	c.now = c.now.Add(d)
	now := c.now
	fn := c.afterFn
	c.mu.Unlock()

	if fn != nil {
		return fn(d)
	}
	ch := make(chan time.Time, 1)
	ch <- now
	return ch
}

// fakeGateway is a scripted exchange. Responses are queued per call
// site; unscripted calls succeed with generated order ids.
type fakeGateway struct {
	mu sync.Mutex

	price    decimal.Decimal
	priceErr error

	// placeErrs[i] is returned by the i-th PlaceOrder call; nil succeeds
	placeErrs  []error
	placeCalls int
	placed     []gateway.OrderRequest
	placedIDs  []string
	nextID     int

	cancelled    []string
	cancelErr    map[string]error
	cancelledAll []string

	// statusSeq[orderID] is consumed one entry per GetOrderStatus call;
	// the final entry repeats once the queue is drained
	statusSeq  map[string][]gateway.OrderStatus
	statusErrs map[string][]error
	statusIdx  map[string]int
}

func newFakeGateway(price string) *fakeGateway {
	return &fakeGateway{
		price:      decimal.RequireFromString(price),
		cancelErr:  map[string]error{},
		statusSeq:  map[string][]gateway.OrderStatus{},
		statusErrs: map[string][]error{},
		statusIdx:  map[string]int{},
	}
}

func (g *fakeGateway) GetSymbolPrice(ctx context.Context, symbol string) (decimal.Decimal, error) {
	if g.priceErr != nil {
		return decimal.Zero, g.priceErr
	}
	return g.price, nil
}

func (g *fakeGateway) PlaceOrder(ctx context.Context, req gateway.OrderRequest) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	idx := g.placeCalls
	g.placeCalls++
	if idx < len(g.placeErrs) && g.placeErrs[idx] != nil {
		return "", g.placeErrs[idx]
	}
	g.nextID++
	id := fmt.Sprintf("EX-%d", g.nextID)
	g.placed = append(g.placed, req)
	g.placedIDs = append(g.placedIDs, id)
	return id, nil
}

func (g *fakeGateway) CancelOrder(ctx context.Context, symbol, orderID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err, ok := g.cancelErr[orderID]; ok && err != nil {
		return err
	}
	g.cancelled = append(g.cancelled, orderID)
	return nil
}

func (g *fakeGateway) CancelAllOrders(ctx context.Context, symbol string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.cancelledAll = append(g.cancelledAll, symbol)
	return nil
}

func (g *fakeGateway) GetOrderStatus(ctx context.Context, symbol, orderID string) (gateway.OrderStatus, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if errs := g.statusErrs[orderID]; len(errs) > 0 {
		err := errs[0]
		g.statusErrs[orderID] = errs[1:]
		if err != nil {
			return gateway.OrderStatus{}, err
		}
	}

	seq := g.statusSeq[orderID]
	if len(seq) == 0 {
		return gateway.OrderStatus{}, fmt.Errorf("no scripted status for %s", orderID)
	}
	i := g.statusIdx[orderID]
	g.statusIdx[orderID]++
	if i >= len(seq) {
		i = len(seq) - 1
	}
	return seq[i], nil
}

func eventKinds(events []event.Event) []event.Kind {
	out := make([]event.Kind, len(events))
	for i, e := range events {
		out[i] = e.Kind
	}
	return out
}

func countKind(events []event.Event, k event.Kind) int {
	n := 0
	for _, e := range events {
		if e.Kind == k {
			n++
		}
	}
	return n
}
