package venue

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const (
	tickerPongWait   = 60 * time.Second
	tickerPingPeriod = (tickerPongWait * 9) / 10
	tickerRetryDelay = 5 * time.Second
)

// tickerFeed maintains a websocket subscription to a symbol's aggTrade
// stream and caches the last traded price. Gateways use it as a fast path
// for ticker reads, falling back to REST when the cache is stale.
type tickerFeed struct {
	wsBaseURL string
	symbol    string
	logger    *zap.Logger

	mu        sync.RWMutex
	lastPrice decimal.Decimal
	lastSeen  time.Time
}

func newTickerFeed(wsBaseURL, symbol string, logger *zap.Logger) *tickerFeed {
	return &tickerFeed{
		wsBaseURL: wsBaseURL,
		symbol:    symbol,
		logger:    logger,
	}
}

// price returns the cached last price and whether it is younger than maxAge.
func (f *tickerFeed) price(maxAge time.Duration) (decimal.Decimal, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.lastSeen.IsZero() || time.Since(f.lastSeen) > maxAge {
		return decimal.Decimal{}, false
	}
	return f.lastPrice, true
}

// run keeps the subscription alive until the context is canceled,
// reconnecting after transient failures.
func (f *tickerFeed) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		conn, err := f.dial()
		if err != nil {
			f.logger.Warn("ticker stream dial failed, retrying",
				zap.String("symbol", f.symbol), zap.Error(err))
			if !sleepCtx(ctx, tickerRetryDelay) {
				return
			}
			continue
		}

		if err := f.consume(ctx, conn); err != nil {
			f.logger.Warn("ticker stream closed, reconnecting",
				zap.String("symbol", f.symbol), zap.Error(err))
		}
		conn.Close()

		if !sleepCtx(ctx, tickerRetryDelay) {
			return
		}
	}
}

func (f *tickerFeed) dial() (*websocket.Conn, error) {
	wsURL := fmt.Sprintf("%s/ws/%s@aggTrade", f.wsBaseURL, strings.ToLower(f.symbol))
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", wsURL, err)
	}
	return conn, nil
}

// consume reads trade messages until the connection breaks or the context
// ends, sending pings to keep the connection alive.
func (f *tickerFeed) consume(ctx context.Context, conn *websocket.Conn) error {
	conn.SetReadDeadline(time.Now().Add(tickerPongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(tickerPongWait))
		return nil
	})

	pingDone := make(chan struct{})
	defer close(pingDone)
	go func() {
		pingTicker := time.NewTicker(tickerPingPeriod)
		defer pingTicker.Stop()
		for {
			select {
			case <-pingTicker.C:
				if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
					return
				}
			case <-pingDone:
				return
			case <-ctx.Done():
				conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				conn.Close()
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		_, message, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("read message: %w", err)
		}

		var trade struct {
			Price json.Number `json:"p"`
		}
		if err := json.Unmarshal(message, &trade); err != nil {
			f.logger.Debug("unparseable ticker message", zap.Error(err))
			continue
		}
		price, err := decimal.NewFromString(trade.Price.String())
		if err != nil || !price.IsPositive() {
			continue
		}

		f.mu.Lock()
		f.lastPrice = price
		f.lastSeen = time.Now()
		f.mu.Unlock()
	}
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
