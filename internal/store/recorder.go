package store

import (
	"sync"
	"time"

	"github.com/jxskiss/base62"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"grid-hedge-bot-go/internal/models"
)

// TradeRecorder keeps a per-strategy trade history in memory, backed by the
// repository. History is loaded lazily on first access so restarts keep their
// realized-profit figures.
type TradeRecorder struct {
	repo   Repository
	logger *zap.Logger

	mu     sync.Mutex
	trades map[string][]*models.TradeRecord
	loaded map[string]bool
}

func NewTradeRecorder(repo Repository, logger *zap.Logger) *TradeRecorder {
	return &TradeRecorder{
		repo:   repo,
		logger: logger,
		trades: make(map[string][]*models.TradeRecord),
		loaded: make(map[string]bool),
	}
}

// Record appends a filled-order trade to the strategy's history and persists
// it. A persistence failure keeps the in-memory record and is logged.
func (tr *TradeRecorder) Record(strategyID, orderID, pair string, side models.Side, price, amount decimal.Decimal, ts time.Time) *models.TradeRecord {
	trade := &models.TradeRecord{
		TradeID:    tradeID(strategyID, orderID, ts),
		StrategyID: strategyID,
		OrderID:    orderID,
		Pair:       pair,
		Side:       side,
		Price:      price,
		Amount:     amount,
		Timestamp:  ts,
	}

	tr.mu.Lock()
	tr.ensureLoadedLocked(strategyID)
	tr.trades[strategyID] = append(tr.trades[strategyID], trade)
	tr.mu.Unlock()

	if err := tr.repo.AppendTrade(trade); err != nil {
		tr.logger.Error("failed to persist trade",
			zap.String("trade_id", trade.TradeID), zap.Error(err))
	}
	return trade
}

// TradesByStrategy returns a copy of the strategy's history, oldest first.
func (tr *TradeRecorder) TradesByStrategy(strategyID string) []*models.TradeRecord {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	tr.ensureLoadedLocked(strategyID)
	out := make([]*models.TradeRecord, len(tr.trades[strategyID]))
	copy(out, tr.trades[strategyID])
	return out
}

// ensureLoadedLocked pulls persisted history into the cache once per strategy.
func (tr *TradeRecorder) ensureLoadedLocked(strategyID string) {
	if tr.loaded[strategyID] {
		return
	}
	tr.loaded[strategyID] = true
	persisted, err := tr.repo.LoadTrades(strategyID)
	if err != nil {
		tr.logger.Error("failed to load trade history",
			zap.String("strategy_id", strategyID), zap.Error(err))
		return
	}
	tr.trades[strategyID] = append(persisted, tr.trades[strategyID]...)
}

// tradeID builds a unique, sortable id from the fill time and source order.
func tradeID(strategyID, orderID string, ts time.Time) string {
	id := strategyID + "-" + string(base62.FormatInt(ts.UnixMilli()))
	if orderID != "" {
		if len(orderID) > 6 {
			orderID = orderID[len(orderID)-6:]
		}
		id += "-" + orderID
	}
	return id
}
