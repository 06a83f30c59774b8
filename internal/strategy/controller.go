package strategy

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"grid-hedge-bot-go/internal/hedge"
	"grid-hedge-bot-go/internal/models"
	"grid-hedge-bot-go/internal/store"
	"grid-hedge-bot-go/internal/tracker"
	"grid-hedge-bot-go/internal/venue"
)

// Controller runs one grid strategy: it owns the level set, the order
// tracker, and the per-cycle reconciliation loop. The strategy's own loop is
// the only caller of Update, but the scheduler reads Status from the snapshot
// goroutine and invokes Shutdown while a cycle may still be in flight, so the
// mutex serializes every entry point. Inside a held section the level set and
// tracker have a single effective owner.
type Controller struct {
	mu sync.Mutex

	cfg      models.StrategyConfig
	gateway  venue.Gateway
	hedger   *hedge.Coordinator
	recorder *store.TradeRecorder
	repo     store.Repository
	logger   *zap.Logger

	hedgeEnabled bool

	levels  []*models.GridLevel
	tracker *tracker.OrderTracker

	startPrice      decimal.Decimal
	endPrice        decimal.Decimal
	totalInvestment decimal.Decimal
	realizedProfit  decimal.Decimal
	completedTrades int
	startTime       time.Time

	priceStep      decimal.Decimal
	amountStep     decimal.Decimal
	precisionKnown bool
}

// NewController builds a controller from saved state when one exists, or
// initializes a fresh grid around the current price otherwise.
func NewController(ctx context.Context, cfg models.StrategyConfig, gw venue.Gateway, hedger *hedge.Coordinator, recorder *store.TradeRecorder, repo store.Repository, logger *zap.Logger, saved *models.StrategyState) (*Controller, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("strategy %s: %w", cfg.ID, err)
	}

	c := &Controller{
		cfg:      cfg,
		gateway:  gw,
		hedger:   hedger,
		recorder: recorder,
		repo:     repo,
		logger:   logger.With(zap.String("strategy_id", cfg.ID)),
		tracker:  tracker.New(),
	}

	if cfg.EnableHedge && hedger != nil {
		c.hedgeEnabled = hedger.InitializeForStrategy(cfg.ID)
	}

	if saved != nil && saved.Normalize() {
		c.restore(saved)
		c.logger.Info("strategy restored from saved state",
			zap.Int("levels", len(c.levels)),
			zap.Int("orders", c.tracker.Len()))
		return c, nil
	}

	if err := c.initialize(ctx); err != nil {
		return nil, fmt.Errorf("strategy %s: %w", cfg.ID, err)
	}
	return c, nil
}

// restore adopts a saved snapshot verbatim. Nothing is recomputed so that
// in-flight levels and orders survive a restart untouched.
func (c *Controller) restore(state *models.StrategyState) {
	c.startPrice = state.StartPrice
	c.endPrice = state.EndPrice
	c.totalInvestment = state.TotalInvestment
	c.levels = state.Levels
	c.realizedProfit = state.RealizedProfit
	c.completedTrades = state.CompletedTrades
	c.startTime = state.StartTime
	for _, order := range state.Orders {
		c.tracker.Add(order)
	}
}

// initialize lays out equally spaced levels across the configured range,
// re-centering the range on the current price when it falls outside.
func (c *Controller) initialize(ctx context.Context) error {
	low, high := c.cfg.LowPrice, c.cfg.HighPrice

	price, err := c.gateway.FetchTicker(ctx, c.cfg.Symbol)
	if err != nil {
		c.logger.Warn("initial price fetch failed, using configured range",
			zap.Error(err))
	} else if price.LessThan(low) || price.GreaterThan(high) {
		halfWidth := high.Sub(low).Div(decimal.NewFromInt(2))
		low = price.Sub(halfWidth)
		high = price.Add(halfWidth)
		c.logger.Warn("current price outside configured range, re-centering",
			zap.String("price", price.String()),
			zap.String("low", low.String()),
			zap.String("high", high.String()))
	}

	n := c.cfg.GridNumber
	step := high.Sub(low).Div(decimal.NewFromInt(int64(n - 1)))
	allocation := c.cfg.Investment.Div(decimal.NewFromInt(int64(n)))
	now := time.Now()

	c.startPrice = low
	c.endPrice = high
	c.totalInvestment = c.cfg.Investment
	c.startTime = now
	c.realizedProfit = decimal.Zero
	c.levels = make([]*models.GridLevel, 0, n)
	for i := 0; i < n; i++ {
		levelPrice := low.Add(step.Mul(decimal.NewFromInt(int64(i))))
		if i == n-1 {
			levelPrice = high
		}
		c.levels = append(c.levels, &models.GridLevel{
			ID:         fmt.Sprintf("%s-%d", c.cfg.ID, i),
			Price:      levelPrice,
			Amount:     allocation,
			Status:     models.LevelReady,
			LastUpdate: now,
		})
	}

	c.logger.Info("grid initialized",
		zap.Int("levels", n),
		zap.String("low", low.String()),
		zap.String("high", high.String()),
		zap.String("allocation", allocation.String()))
	return nil
}

// Update runs one reconciliation cycle. Individual failures inside the cycle
// are logged and skipped; the cycle itself never aborts partway in a way that
// stops the remaining levels from being processed.
func (c *Controller) Update(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	price := c.currentPrice(ctx)

	c.reconcileOrders(ctx)
	c.driveLevels(ctx, price)

	if c.hedgeEnabled {
		c.hedger.Update(ctx, c.cfg.ID)
	}

	c.recomputeProfit()
	c.checkRisk(price)

	if err := c.repo.SaveStrategyState(c.snapshot(), false); err != nil {
		c.logger.Error("failed to persist strategy state", zap.Error(err))
	}
	return nil
}

// currentPrice returns the live price, falling back to the range midpoint
// when the venue call fails (zero if no levels exist yet).
func (c *Controller) currentPrice(ctx context.Context) decimal.Decimal {
	price, err := c.gateway.FetchTicker(ctx, c.cfg.Symbol)
	if err == nil && price.IsPositive() {
		return price
	}
	if err != nil {
		c.logger.Warn("price fetch failed, using range midpoint", zap.Error(err))
	}
	if len(c.levels) == 0 {
		return decimal.Zero
	}
	return c.startPrice.Add(c.endPrice).Div(decimal.NewFromInt(2))
}

// reconcileOrders batch-fetches the status of every order referenced by a
// level and dispatches the fill/cancel handlers for terminal observations.
func (c *Controller) reconcileOrders(ctx context.Context) {
	var ids []string
	for _, level := range c.levels {
		if level.BuyOrderID != "" {
			ids = append(ids, level.BuyOrderID)
		}
		if level.SellOrderID != "" {
			ids = append(ids, level.SellOrderID)
		}
	}
	if len(ids) == 0 {
		return
	}

	statuses, err := c.gateway.FetchOrdersByIDs(ctx, ids, c.cfg.Symbol)
	if err != nil {
		c.logger.Warn("order status fetch failed", zap.Error(err))
		return
	}
	for id, status := range statuses {
		if !status.Terminal() {
			continue
		}
		order := c.tracker.Get(id)
		if order == nil || order.Status.Terminal() {
			// Already handled; re-observing a fill must never double
			// the trade history or the follow-up placement.
			continue
		}
		c.tracker.Update(id, status)
		switch status {
		case models.OrderFilled:
			c.handleFill(ctx, order)
		case models.OrderCanceled:
			c.handleCancel(order)
		}
	}
}

// handleFill advances the level past a filled order, records the trade,
// mirrors the fill to the hedge venues, and immediately works the opposite
// side of the level.
func (c *Controller) handleFill(ctx context.Context, order *models.Order) {
	level := c.levelByID(order.LevelID)
	if level == nil {
		c.logger.Warn("filled order references unknown level",
			zap.String("order_id", order.ID),
			zap.String("level_id", order.LevelID))
		return
	}

	now := time.Now()
	c.recorder.Record(c.cfg.ID, order.ID, c.cfg.Symbol, order.Side, order.Price, order.Amount, now)

	if c.hedgeEnabled {
		if _, err := c.hedger.CreateHedgeOrder(ctx, c.cfg.ID, level.ID, order.ID, c.cfg.Symbol, order.Side, order.Amount, order.Price); err != nil {
			c.logger.Error("hedge mirroring failed", zap.Error(err))
		}
	}

	switch order.Side {
	case models.Buy:
		level.Status = models.LevelBought
		level.BuyOrderID = ""
		level.LastUpdate = now
		c.logger.Info("buy filled",
			zap.String("level_id", level.ID),
			zap.String("price", order.Price.String()))
		c.placeSell(ctx, level)
	case models.Sell:
		level.Status = models.LevelSold
		level.SellOrderID = ""
		level.LastUpdate = now
		c.completedTrades++
		c.logger.Info("sell filled",
			zap.String("level_id", level.ID),
			zap.String("price", order.Price.String()))
		c.placeBuy(ctx, level)
	}
}

// handleCancel clears the level's reference and reverts its status. Trade
// history is untouched.
func (c *Controller) handleCancel(order *models.Order) {
	level := c.levelByID(order.LevelID)
	if level == nil {
		return
	}
	now := time.Now()
	switch order.Side {
	case models.Buy:
		if level.BuyOrderID == order.ID {
			level.BuyOrderID = ""
		}
		if level.Status == models.LevelBuying {
			level.Status = models.LevelReady
		}
	case models.Sell:
		if level.SellOrderID == order.ID {
			level.SellOrderID = ""
		}
		if level.Status == models.LevelSelling {
			level.Status = models.LevelBought
		}
	}
	level.LastUpdate = now
}

// driveLevels advances each level's state machine one step against the
// current price. Entry at READY is price-gated with strict inequality; the
// BOUGHT and SOLD re-entry placements retry every cycle until they succeed.
func (c *Controller) driveLevels(ctx context.Context, price decimal.Decimal) {
	for _, level := range c.levels {
		switch level.Status {
		case models.LevelReady:
			if price.IsPositive() && price.LessThan(level.Price) && level.BuyOrderID == "" {
				c.placeBuy(ctx, level)
			} else if price.GreaterThan(level.Price) && level.SellOrderID == "" {
				c.placeSell(ctx, level)
			}
		case models.LevelBought:
			if level.SellOrderID == "" {
				c.placeSell(ctx, level)
			}
		case models.LevelSold:
			if level.BuyOrderID == "" {
				c.placeBuy(ctx, level)
			}
		}
	}
}

func (c *Controller) placeBuy(ctx context.Context, level *models.GridLevel) {
	price, qty, ok := c.sizeOrder(ctx, level)
	if !ok {
		return
	}
	orderID, err := c.gateway.PlaceLimitOrder(ctx, c.cfg.Symbol, models.Buy, qty, price)
	if err != nil {
		c.logger.Warn("buy placement failed",
			zap.String("level_id", level.ID),
			zap.String("price", price.String()),
			zap.Error(err))
		return
	}
	c.tracker.Add(&models.Order{
		ID:        orderID,
		LevelID:   level.ID,
		Side:      models.Buy,
		Price:     price,
		Amount:    qty,
		Status:    models.OrderOpen,
		Timestamp: time.Now(),
	})
	level.BuyOrderID = orderID
	level.Status = models.LevelBuying
	level.LastUpdate = time.Now()
	c.logger.Info("buy placed",
		zap.String("level_id", level.ID),
		zap.String("order_id", orderID),
		zap.String("price", price.String()),
		zap.String("qty", qty.String()))
}

func (c *Controller) placeSell(ctx context.Context, level *models.GridLevel) {
	price, qty, ok := c.sizeOrder(ctx, level)
	if !ok {
		return
	}
	orderID, err := c.gateway.PlaceLimitOrder(ctx, c.cfg.Symbol, models.Sell, qty, price)
	if err != nil {
		c.logger.Warn("sell placement failed",
			zap.String("level_id", level.ID),
			zap.String("price", price.String()),
			zap.Error(err))
		return
	}
	c.tracker.Add(&models.Order{
		ID:        orderID,
		LevelID:   level.ID,
		Side:      models.Sell,
		Price:     price,
		Amount:    qty,
		Status:    models.OrderOpen,
		Timestamp: time.Now(),
	})
	level.SellOrderID = orderID
	level.Status = models.LevelSelling
	level.LastUpdate = time.Now()
	c.logger.Info("sell placed",
		zap.String("level_id", level.ID),
		zap.String("order_id", orderID),
		zap.String("price", price.String()),
		zap.String("qty", qty.String()))
}

// sizeOrder converts the level's quote allocation into a base quantity and
// rounds both price and quantity down to venue precision.
func (c *Controller) sizeOrder(ctx context.Context, level *models.GridLevel) (price, qty decimal.Decimal, ok bool) {
	c.ensurePrecision(ctx)
	price = models.RoundToStep(level.Price, c.priceStep)
	if !price.IsPositive() {
		return decimal.Zero, decimal.Zero, false
	}
	qty = models.RoundToStep(level.Amount.Div(price), c.amountStep)
	if !qty.IsPositive() {
		c.logger.Warn("order quantity rounds to zero, skipping",
			zap.String("level_id", level.ID),
			zap.String("allocation", level.Amount.String()))
		return decimal.Zero, decimal.Zero, false
	}
	return price, qty, true
}

// ensurePrecision fetches the venue steps once; a failed lookup substitutes
// the default step and retries on a later cycle.
func (c *Controller) ensurePrecision(ctx context.Context) {
	if c.precisionKnown {
		return
	}
	priceStep, amountStep, err := c.gateway.FetchMarketPrecision(ctx, c.cfg.Symbol)
	if err != nil || !priceStep.IsPositive() || !amountStep.IsPositive() {
		c.logger.Warn("market precision lookup failed, using default step",
			zap.Error(err))
		c.priceStep = models.DefaultStep
		c.amountStep = models.DefaultStep
		return
	}
	c.priceStep = priceStep
	c.amountStep = amountStep
	c.precisionKnown = true
}

// recomputeProfit rebuilds the realized-profit figure from the full trade
// history. The figure approximates profit under partial inventory turnover;
// it is a monitoring number, not an accounting cost basis.
func (c *Controller) recomputeProfit() {
	var buyVolume, buyCost, sellVolume, sellRevenue decimal.Decimal
	for _, trade := range c.recorder.TradesByStrategy(c.cfg.ID) {
		notional := trade.Price.Mul(trade.Amount)
		switch trade.Side {
		case models.Buy:
			buyVolume = buyVolume.Add(trade.Amount)
			buyCost = buyCost.Add(notional)
		case models.Sell:
			sellVolume = sellVolume.Add(trade.Amount)
			sellRevenue = sellRevenue.Add(notional)
		}
	}
	if !sellRevenue.IsPositive() || !buyVolume.IsPositive() {
		c.realizedProfit = decimal.Zero
		return
	}
	c.realizedProfit = sellRevenue.Sub(buyCost.Mul(sellVolume.Div(buyVolume)))
}

// checkRisk alerts on threshold breaches. No position action is taken here;
// the operator decides.
func (c *Controller) checkRisk(price decimal.Decimal) {
	if !price.IsPositive() || !c.startPrice.IsPositive() {
		return
	}
	deviation := price.Sub(c.startPrice).Abs().Div(c.startPrice)
	if c.cfg.Risk.MaxPriceDeviation.IsPositive() && deviation.GreaterThan(c.cfg.Risk.MaxPriceDeviation) {
		c.logger.Warn("price deviation beyond threshold",
			zap.String("price", price.String()),
			zap.String("start_price", c.startPrice.String()),
			zap.String("deviation", deviation.String()))
	}
	if c.cfg.Risk.StopLoss.IsPositive() {
		floor := c.startPrice.Mul(decimal.NewFromInt(1).Sub(c.cfg.Risk.StopLoss))
		if price.LessThanOrEqual(floor) {
			c.logger.Warn("price at or below stop-loss threshold",
				zap.String("price", price.String()),
				zap.String("floor", floor.String()))
		}
	}
}

// snapshot builds the persisted form of the strategy.
func (c *Controller) snapshot() *models.StrategyState {
	orders := make(map[string]*models.Order, c.tracker.Len())
	for _, order := range c.tracker.All() {
		orders[order.ID] = order
	}
	return &models.StrategyState{
		Version:         models.StateVersion,
		StrategyID:      c.cfg.ID,
		TradingPair:     c.cfg.Symbol,
		StartPrice:      c.startPrice,
		EndPrice:        c.endPrice,
		TotalInvestment: c.totalInvestment,
		Levels:          c.levels,
		RealizedProfit:  c.realizedProfit,
		CompletedTrades: c.completedTrades,
		StartTime:       c.startTime,
		LastUpdate:      time.Now(),
		Orders:          orders,
	}
}

// Persist writes the current snapshot unconditionally. The scheduler invokes
// this during shutdown so the final state skips the rate limit.
func (c *Controller) Persist() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.repo.SaveStrategyState(c.snapshot(), true)
}

// Shutdown cancels every outstanding order and, when hedging, flattens the
// hedge venues. Each cancellation failure is logged and skipped so one stuck
// order cannot strand the rest. Taking the mutex also waits out a cycle that
// was already in flight when the scheduler stopped the loop.
func (c *Controller) Shutdown(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, order := range c.tracker.Active() {
		if err := c.gateway.CancelOrder(ctx, order.ID, c.cfg.Symbol); err != nil {
			c.logger.Warn("cancel failed during shutdown",
				zap.String("order_id", order.ID), zap.Error(err))
		}
		c.tracker.Update(order.ID, models.OrderCanceled)
		c.handleCancel(order)
		if c.hedgeEnabled {
			c.hedger.CancelHedgeOrders(ctx, order.ID)
		}
	}
	if c.hedgeEnabled {
		c.hedger.CloseAllHedgePositions(ctx, c.cfg.Symbol)
	}
	c.logger.Info("strategy shut down",
		zap.Int("completed_trades", c.completedTrades),
		zap.String("realized_profit", c.realizedProfit.String()))
}

// ID returns the strategy identifier.
func (c *Controller) ID() string { return c.cfg.ID }

// Status summarizes the strategy for the periodic system snapshot.
func (c *Controller) Status() models.StrategyStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	return models.StrategyStatus{
		StrategyID:      c.cfg.ID,
		TradingPair:     c.cfg.Symbol,
		StartPrice:      c.startPrice,
		EndPrice:        c.endPrice,
		GridLevels:      len(c.levels),
		TotalInvestment: c.totalInvestment,
		RealizedProfit:  c.realizedProfit,
		CompletedTrades: c.completedTrades,
		ActiveOrders:    c.tracker.CountActive(),
		RunningTime:     time.Since(c.startTime),
		LastUpdate:      time.Now(),
	}
}

// Levels exposes the level set for inspection.
func (c *Controller) Levels() []*models.GridLevel { return c.levels }

// Tracker exposes the order tracker for inspection.
func (c *Controller) Tracker() *tracker.OrderTracker { return c.tracker }

func (c *Controller) levelByID(id string) *models.GridLevel {
	for _, level := range c.levels {
		if level.ID == id {
			return level
		}
	}
	return nil
}
