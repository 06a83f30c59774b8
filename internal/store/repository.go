package store

import (
	"sync"
	"time"

	"grid-hedge-bot-go/internal/models"
)

// Repository abstracts the persisted state store from the engine. One record
// exists per strategy, plus a periodically rewritten system-status record and
// an append-only trade collection per strategy.
type Repository interface {
	// SaveStrategyState persists a strategy snapshot. Writes are
	// rate-limited per strategy unless force is set (shutdown path).
	SaveStrategyState(state *models.StrategyState, force bool) error

	// LoadStrategyState loads a strategy snapshot.
	// If no state is found, it returns (nil, nil).
	LoadStrategyState(strategyID string) (*models.StrategyState, error)

	// SaveSystemStatus rewrites the aggregate system-status record.
	SaveSystemStatus(status *models.SystemStatus) error

	// AppendTrade appends one record to a strategy's trade history.
	AppendTrade(trade *models.TradeRecord) error

	// LoadTrades returns a strategy's full trade history, oldest first.
	LoadTrades(strategyID string) ([]*models.TradeRecord, error)

	// Close releases the underlying storage.
	Close() error
}

// saveThrottle enforces the per-strategy minimum interval between snapshot
// writes. Skipped writes are not errors; the next cycle writes again.
type saveThrottle struct {
	mu       sync.Mutex
	interval time.Duration
	last     map[string]time.Time
}

func newSaveThrottle(interval time.Duration) *saveThrottle {
	return &saveThrottle{
		interval: interval,
		last:     make(map[string]time.Time),
	}
}

// allow reports whether a write for key may proceed now, recording the write
// time when it may.
func (t *saveThrottle) allow(key string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := time.Now()
	if last, ok := t.last[key]; ok && now.Sub(last) < t.interval {
		return false
	}
	t.last[key] = now
	return true
}
