package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Side defines the trade direction type.
type Side string

const (
	Buy  Side = "buy"
	Sell Side = "sell"
)

// Opposite returns the mirrored direction, used when hedging a primary order.
func (s Side) Opposite() Side {
	if s == Buy {
		return Sell
	}
	return Buy
}

// OrderStatus is the lifecycle status of a single venue order.
type OrderStatus string

const (
	OrderOpen            OrderStatus = "open"
	OrderPartiallyFilled OrderStatus = "partially_filled"
	OrderFilled          OrderStatus = "filled"
	OrderCanceled        OrderStatus = "canceled"
	OrderError           OrderStatus = "error"
)

// Terminal reports whether the status can no longer change on the venue.
func (s OrderStatus) Terminal() bool {
	return s == OrderFilled || s == OrderCanceled || s == OrderError
}

// Active reports whether the order still occupies the book.
func (s OrderStatus) Active() bool {
	return s == OrderOpen || s == OrderPartiallyFilled
}

// LevelStatus is the state of a grid level's buy/sell cycle.
type LevelStatus string

const (
	LevelReady   LevelStatus = "READY"
	LevelBuying  LevelStatus = "BUYING"
	LevelBought  LevelStatus = "BOUGHT"
	LevelSelling LevelStatus = "SELLING"
	LevelSold    LevelStatus = "SOLD"
)

// GridLevel is one price point within a strategy's configured range. It is
// owned exclusively by its strategy controller and mutated only inside that
// controller's update cycle.
type GridLevel struct {
	ID          string          `json:"id"`
	Price       decimal.Decimal `json:"price"`
	Amount      decimal.Decimal `json:"amount"` // quote-currency allocation
	BuyOrderID  string          `json:"buy_order_id,omitempty"`
	SellOrderID string          `json:"sell_order_id,omitempty"`
	Status      LevelStatus     `json:"status"`
	LastUpdate  time.Time       `json:"last_update"`
}

// Order is a tracked primary-side order. The id is venue-assigned; the level
// id is a back-reference, not ownership.
type Order struct {
	ID         string          `json:"id"`
	LevelID    string          `json:"level_id"`
	Side       Side            `json:"side"`
	Price      decimal.Decimal `json:"price"`
	Amount     decimal.Decimal `json:"amount"` // base-currency quantity
	Status     OrderStatus     `json:"status"`
	Timestamp  time.Time       `json:"timestamp"`
	FilledTime *time.Time      `json:"filled_time,omitempty"`
	CancelTime *time.Time      `json:"cancel_time,omitempty"`
}

// HedgeOrder is one member of a hedge group, placed on a single hedge venue.
type HedgeOrder struct {
	Venue      string      `json:"venue"`
	OrderID    string      `json:"order_id"`
	Status     OrderStatus `json:"status"`
	Timestamp  time.Time   `json:"timestamp"`
	FilledTime *time.Time  `json:"filled_time,omitempty"`
	CancelTime *time.Time  `json:"cancel_time,omitempty"`
}

// HedgeOrderGroup holds every hedge order mirrored from one primary order,
// keyed by the primary order id (or a synthesized id when the caller had
// none). Group status becomes filled only when every member is filled.
type HedgeOrderGroup struct {
	OriginalOrderID string                 `json:"original_order_id"`
	StrategyID      string                 `json:"strategy_id"`
	LevelID         string                 `json:"level_id"`
	Pair            string                 `json:"pair"`
	Side            Side                   `json:"side"` // mirrored side, opposite of primary
	Amount          decimal.Decimal        `json:"amount"`
	Price           decimal.Decimal        `json:"price"`
	Status          OrderStatus            `json:"status"`
	Orders          map[string]*HedgeOrder `json:"orders"`
}

// AllFilled reports whether every member order has been filled.
func (g *HedgeOrderGroup) AllFilled() bool {
	if len(g.Orders) == 0 {
		return false
	}
	for _, o := range g.Orders {
		if o.Status != OrderFilled {
			return false
		}
	}
	return true
}

// Position is an open venue position as reported at the gateway boundary.
type Position struct {
	Side string          `json:"side"` // "long" or "short"
	Size decimal.Decimal `json:"size"`
}

// Balance is the amount of one asset held on a venue.
type Balance struct {
	Asset string          `json:"asset"`
	Free  decimal.Decimal `json:"free"`
}

// TradeRecord is one append-only entry in a strategy's trade history.
type TradeRecord struct {
	TradeID     string          `json:"trade_id"`
	StrategyID  string          `json:"strategy_id"`
	OrderID     string          `json:"order_id"`
	Pair        string          `json:"pair"`
	Side        Side            `json:"side"`
	Price       decimal.Decimal `json:"price"`
	Amount      decimal.Decimal `json:"amount"`
	Timestamp   time.Time       `json:"timestamp"`
	Fee         decimal.Decimal `json:"fee,omitempty"`
	FeeCurrency string          `json:"fee_currency,omitempty"`
}

// StrategyStatus is one strategy's row in the periodic system snapshot.
type StrategyStatus struct {
	StrategyID      string          `json:"strategy_id"`
	TradingPair     string          `json:"trading_pair"`
	StartPrice      decimal.Decimal `json:"start_price"`
	EndPrice        decimal.Decimal `json:"end_price"`
	GridLevels      int             `json:"grid_levels"`
	TotalInvestment decimal.Decimal `json:"total_investment"`
	RealizedProfit  decimal.Decimal `json:"realized_profit"`
	CompletedTrades int             `json:"completed_trades"`
	ActiveOrders    int             `json:"active_orders"`
	RunningTime     time.Duration   `json:"running_time"`
	LastUpdate      time.Time       `json:"last_update"`
}

// SystemStatus aggregates all strategies' summaries; it is rewritten
// periodically by the scheduler's snapshot loop.
type SystemStatus struct {
	Timestamp  time.Time        `json:"timestamp"`
	Uptime     time.Duration    `json:"uptime"`
	Strategies []StrategyStatus `json:"strategies"`
}
