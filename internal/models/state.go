package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// StateVersion is the current schema version of the persisted aggregate.
// Loaders fill defaults when they encounter an older version.
const StateVersion = 1

// StrategyState is the persisted aggregate for one strategy and the unit of
// crash recovery: a controller restarted after a crash is reconstructed from
// this blob plus its live configuration.
type StrategyState struct {
	Version         int               `json:"version"`
	StrategyID      string            `json:"strategy_id"`
	TradingPair     string            `json:"trading_pair"`
	StartPrice      decimal.Decimal   `json:"start_price"`
	EndPrice        decimal.Decimal   `json:"end_price"`
	TotalInvestment decimal.Decimal   `json:"total_investment"`
	Levels          []*GridLevel      `json:"grid_levels"`
	RealizedProfit  decimal.Decimal   `json:"realized_profit"`
	CompletedTrades int               `json:"completed_trades"`
	StartTime       time.Time         `json:"start_time"`
	LastUpdate      time.Time         `json:"last_update"`
	Orders          map[string]*Order `json:"orders"`
}

// Normalize fills defaults for blobs written by older schema versions and
// reports whether the state is usable at all. A blob without levels carries
// nothing worth restoring; callers fall back to fresh initialization.
func (s *StrategyState) Normalize() bool {
	if s == nil || len(s.Levels) == 0 {
		return false
	}
	if s.Version == 0 {
		s.Version = StateVersion
	}
	if s.Orders == nil {
		s.Orders = make(map[string]*Order)
	}
	for _, lvl := range s.Levels {
		if lvl.Status == "" {
			lvl.Status = LevelReady
		}
	}
	if s.StartTime.IsZero() {
		s.StartTime = time.Now()
	}
	return true
}
