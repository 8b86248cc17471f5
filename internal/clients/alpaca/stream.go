package alpaca

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/jpillora/backoff"
	"github.com/rs/zerolog"
	"nhooyr.io/websocket"

	"github.com/harmoniceagle/trader/internal/domain"
)

// FillHandler receives order lifecycle events from the trade-updates stream.
// event is the broker's event name ("fill", "partial_fill", "canceled", ...).
type FillHandler func(event string, order domain.Order)

// TradeUpdateStream maintains a websocket subscription to the broker's
// trade_updates channel. Fill events let the reconciliation engine react
// within seconds instead of waiting for the next polling cycle; the stream is
// an accelerator only - polling remains the source of truth.
type TradeUpdateStream struct {
	url       string
	apiKey    string
	apiSecret string
	handler   FillHandler
	log       zerolog.Logger

	mu      sync.Mutex
	conn    *websocket.Conn
	cancel  context.CancelFunc
	started bool
}

// NewTradeUpdateStream creates a stream client. Call Start to connect.
func NewTradeUpdateStream(url, apiKey, apiSecret string, handler FillHandler, log zerolog.Logger) *TradeUpdateStream {
	return &TradeUpdateStream{
		url:       url,
		apiKey:    apiKey,
		apiSecret: apiSecret,
		handler:   handler,
		log:       log.With().Str("component", "trade_update_stream").Logger(),
	}
}

type streamMessage struct {
	Stream string          `json:"stream"`
	Data   json.RawMessage `json:"data"`
}

type tradeUpdateData struct {
	Event string   `json:"event"`
	Order orderDTO `json:"order"`
}

// Start connects in the background and keeps reconnecting with exponential
// backoff until Stop is called. A stream that never connects is not an error;
// the engine works fully on polling alone.
func (s *TradeUpdateStream) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		s.log.Warn().Msg("Stream already started, ignoring")
		return
	}
	s.started = true

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel

	go s.run(ctx)
}

// Stop disconnects and stops reconnection attempts.
func (s *TradeUpdateStream) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started {
		return
	}
	s.started = false
	s.cancel()
	if s.conn != nil {
		_ = s.conn.Close(websocket.StatusNormalClosure, "shutting down")
		s.conn = nil
	}
	s.log.Info().Msg("Trade update stream stopped")
}

func (s *TradeUpdateStream) run(ctx context.Context) {
	retry := &backoff.Backoff{
		Min:    5 * time.Second,
		Max:    5 * time.Minute,
		Factor: 2,
		Jitter: true,
	}

	for {
		if ctx.Err() != nil {
			return
		}

		if err := s.connectAndListen(ctx); err != nil && ctx.Err() == nil {
			wait := retry.Duration()
			s.log.Warn().
				Err(err).
				Dur("retry_in", wait).
				Msg("Trade update stream disconnected")

			select {
			case <-ctx.Done():
				return
			case <-time.After(wait):
			}
			continue
		}

		retry.Reset()
	}
}

func (s *TradeUpdateStream) connectAndListen(ctx context.Context) error {
	dialCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	conn, _, err := websocket.Dial(dialCtx, s.url, nil)
	cancel()
	if err != nil {
		return fmt.Errorf("dial failed: %w", err)
	}

	s.mu.Lock()
	s.conn = conn
	s.mu.Unlock()

	// Authenticate, then subscribe to trade updates.
	auth := map[string]interface{}{
		"action": "auth",
		"key":    s.apiKey,
		"secret": s.apiSecret,
	}
	if err := s.writeJSON(ctx, conn, auth); err != nil {
		return fmt.Errorf("auth failed: %w", err)
	}

	listen := map[string]interface{}{
		"action": "listen",
		"data":   map[string]interface{}{"streams": []string{"trade_updates"}},
	}
	if err := s.writeJSON(ctx, conn, listen); err != nil {
		return fmt.Errorf("subscribe failed: %w", err)
	}

	s.log.Info().Msg("Trade update stream connected")

	for {
		_, raw, err := conn.Read(ctx)
		if err != nil {
			return fmt.Errorf("read failed: %w", err)
		}

		var msg streamMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			s.log.Debug().Err(err).Msg("Skipping unparseable stream message")
			continue
		}
		if msg.Stream != "trade_updates" {
			continue
		}

		var update tradeUpdateData
		if err := json.Unmarshal(msg.Data, &update); err != nil {
			s.log.Debug().Err(err).Msg("Skipping unparseable trade update")
			continue
		}

		s.log.Debug().
			Str("event", update.Event).
			Str("symbol", update.Order.Symbol).
			Msg("Trade update received")

		if s.handler != nil {
			s.handler(update.Event, update.Order.toDomain())
		}
	}
}

func (s *TradeUpdateStream) writeJSON(ctx context.Context, conn *websocket.Conn, v interface{}) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return err
	}
	writeCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	return conn.Write(writeCtx, websocket.MessageText, payload)
}
