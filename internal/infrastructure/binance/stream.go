package binance

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"

	"github.com/quantfarm/futures-agent/internal/domain/entity"
	"github.com/quantfarm/futures-agent/internal/infrastructure/logger"
)

// listenKeyKeepalive is how often the user data stream key is renewed;
// Binance expires it after 60 minutes without a keepalive.
const listenKeyKeepalive = 30 * time.Minute

// OrderUpdate is a live order state change pushed over the user data
// stream.
type OrderUpdate struct {
	Symbol          string
	ExchangeOrderID string
	State           entity.ChildState
	FilledQuantity  decimal.Decimal
}

// UserStream consumes the Binance futures user data stream and
// publishes order updates. It complements status polling: polls drive
// the strategy engines, the stream gives the operator live visibility.
type UserStream struct {
	client *Client
	wsURL  string
	log    *logger.Logger

	mu        sync.RWMutex
	conn      *websocket.Conn
	listenKey string
	done      chan struct{}

	updates chan OrderUpdate
}

// NewUserStream creates a user data stream consumer
func NewUserStream(client *Client, wsURL string, log *logger.Logger) *UserStream {
	if log == nil {
		log = logger.Default()
	}
	return &UserStream{
		client:  client,
		wsURL:   wsURL,
		log:     log,
		updates: make(chan OrderUpdate, 64),
	}
}

// Updates returns the channel order updates are published on
func (s *UserStream) Updates() <-chan OrderUpdate {
	return s.updates
}

// Connect obtains a listen key and opens the websocket. The read and
// keepalive loops run until Close or until the connection drops.
func (s *UserStream) Connect(ctx context.Context) error {
	key, err := s.createListenKey(ctx)
	if err != nil {
		return fmt.Errorf("create listen key: %w", err)
	}

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, s.wsURL+"/ws/"+key, nil)
	if err != nil {
		return fmt.Errorf("websocket dial failed: %w", err)
	}

	s.mu.Lock()
	s.conn = conn
	s.listenKey = key
	s.done = make(chan struct{})
	s.mu.Unlock()

	go s.readLoop(conn)
	go s.keepaliveLoop()

	s.log.Info("user data stream connected")
	return nil
}

// Close tears the stream down
func (s *UserStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.done != nil {
		close(s.done)
		s.done = nil
	}
	if s.conn != nil {
		err := s.conn.Close()
		s.conn = nil
		return err
	}
	return nil
}

func (s *UserStream) createListenKey(ctx context.Context) (string, error) {
	var resp struct {
		ListenKey string `json:"listenKey"`
	}
	if err := s.client.doSigned(ctx, http.MethodPost, "/fapi/v1/listenKey", url.Values{}, &resp); err != nil {
		return "", err
	}
	return resp.ListenKey, nil
}

func (s *UserStream) keepaliveLoop() {
	s.mu.RLock()
	done := s.done
	s.mu.RUnlock()

	ticker := time.NewTicker(listenKeyKeepalive)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			err := s.client.doSigned(ctx, http.MethodPut, "/fapi/v1/listenKey", url.Values{}, nil)
			cancel()
			if err != nil {
				s.log.Warn("listen key keepalive failed: %v", err)
			}
		}
	}
}

// streamEvent is the envelope of a user data stream message
type streamEvent struct {
	EventType string `json:"e"`
	Order     struct {
		Symbol    string `json:"s"`
		OrderID   int64  `json:"i"`
		Status    string `json:"X"`
		FilledQty string `json:"z"`
	} `json:"o"`
}

func (s *UserStream) readLoop(conn *websocket.Conn) {
	for {
		s.mu.RLock()
		done := s.done
		s.mu.RUnlock()
		select {
		case <-done:
			return
		default:
		}

		_, message, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				s.log.Error("user data stream read error: %v", err)
			}
			return
		}

		update, ok := s.parseUpdate(message)
		if !ok {
			continue
		}
		select {
		case s.updates <- update:
		default:
			// Slow consumer; drop rather than stall the read loop
			s.log.Warn("order update dropped: consumer not keeping up")
		}
	}
}

func (s *UserStream) parseUpdate(message []byte) (OrderUpdate, bool) {
	var ev streamEvent
	if err := json.Unmarshal(message, &ev); err != nil {
		s.log.Warn("unparseable stream message: %v", err)
		return OrderUpdate{}, false
	}
	if ev.EventType != "ORDER_TRADE_UPDATE" {
		return OrderUpdate{}, false
	}

	state, err := mapOrderStatus(ev.Order.Status)
	if err != nil {
		s.log.Warn("order update skipped: %v", err)
		return OrderUpdate{}, false
	}
	filled := decimal.Zero
	if ev.Order.FilledQty != "" {
		filled, err = decimal.NewFromString(ev.Order.FilledQty)
		if err != nil {
			s.log.Warn("order update skipped: bad filled quantity %q", ev.Order.FilledQty)
			return OrderUpdate{}, false
		}
	}

	return OrderUpdate{
		Symbol:          ev.Order.Symbol,
		ExchangeOrderID: fmt.Sprintf("%d", ev.Order.OrderID),
		State:           state,
		FilledQuantity:  filled,
	}, true
}
