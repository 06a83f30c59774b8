package hedge

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"grid-hedge-bot-go/internal/models"
	"grid-hedge-bot-go/internal/venue"
)

// VenueProvider hands the coordinator its set of hedge venues. venue.Manager
// satisfies it; tests substitute their own.
type VenueProvider interface {
	HedgeVenues() []venue.Gateway
}

// Coordinator mirrors primary-side orders onto every configured hedge venue
// and tracks the mirrored orders as groups keyed by the primary order id.
//
// The group maps are guarded by the mutex; the groups themselves are not.
// Each group belongs to exactly one strategy and is only ever mutated from
// that strategy's goroutine.
type Coordinator struct {
	venues VenueProvider
	logger *zap.Logger

	mu         sync.Mutex
	groups     map[string]*models.HedgeOrderGroup
	byStrategy map[string][]string

	precMu sync.Mutex
	steps  map[string]marketSteps
}

// marketSteps caches a pair's price tick and amount lot steps.
type marketSteps struct {
	price  decimal.Decimal
	amount decimal.Decimal
}

func NewCoordinator(venues VenueProvider, logger *zap.Logger) *Coordinator {
	return &Coordinator{
		venues:     venues,
		logger:     logger,
		groups:     make(map[string]*models.HedgeOrderGroup),
		byStrategy: make(map[string][]string),
		steps:      make(map[string]marketSteps),
	}
}

// InitializeForStrategy reports whether hedging can operate for the strategy.
// A false return means the strategy runs unhedged; it is not an error.
func (c *Coordinator) InitializeForStrategy(strategyID string) bool {
	if len(c.venues.HedgeVenues()) == 0 {
		c.logger.Warn("no hedge venues configured, strategy runs unhedged",
			zap.String("strategy_id", strategyID))
		return false
	}
	return true
}

// CreateHedgeOrder places a limit order at the fill price on every hedge
// venue, mirroring the primary order on the opposite side. Venue failures are
// isolated: the group keeps whatever members were placed. A group with no
// members at all is recorded with error status and reported back, but the
// primary strategy is expected to keep running.
func (c *Coordinator) CreateHedgeOrder(ctx context.Context, strategyID, levelID, originalOrderID, pair string, side models.Side, amount, price decimal.Decimal) (*models.HedgeOrderGroup, error) {
	hedges := c.venues.HedgeVenues()
	if len(hedges) == 0 {
		return nil, nil
	}

	priceStep, amountStep := c.resolveSteps(ctx, pair, hedges[0])
	qty := models.RoundToStep(amount, amountStep)
	if !qty.IsPositive() {
		c.logger.Warn("hedge amount rounds to zero, skipping",
			zap.String("strategy_id", strategyID),
			zap.String("amount", amount.String()))
		return nil, nil
	}
	px := models.RoundToStep(price, priceStep)
	if !px.IsPositive() {
		c.logger.Warn("hedge price rounds to zero, skipping",
			zap.String("strategy_id", strategyID),
			zap.String("price", price.String()))
		return nil, nil
	}

	if originalOrderID == "" {
		originalOrderID = fmt.Sprintf("hedge-%s-%d", strategyID, time.Now().UnixNano())
	}

	group := &models.HedgeOrderGroup{
		OriginalOrderID: originalOrderID,
		StrategyID:      strategyID,
		LevelID:         levelID,
		Pair:            pair,
		Side:            side.Opposite(),
		Amount:          qty,
		Price:           px,
		Status:          models.OrderOpen,
		Orders:          make(map[string]*models.HedgeOrder),
	}

	for _, gw := range hedges {
		orderID, err := gw.PlaceLimitOrder(ctx, pair, group.Side, qty, px)
		if err != nil {
			c.logger.Error("hedge order placement failed",
				zap.String("venue", gw.Name()),
				zap.String("original_order_id", originalOrderID),
				zap.Error(err))
			continue
		}
		group.Orders[gw.Name()] = &models.HedgeOrder{
			Venue:     gw.Name(),
			OrderID:   orderID,
			Status:    models.OrderOpen,
			Timestamp: time.Now(),
		}
	}

	c.mu.Lock()
	c.groups[originalOrderID] = group
	c.byStrategy[strategyID] = append(c.byStrategy[strategyID], originalOrderID)
	c.mu.Unlock()

	if len(group.Orders) == 0 {
		group.Status = models.OrderError
		return group, fmt.Errorf("hedge order %s failed on every venue", originalOrderID)
	}

	c.logger.Info("hedge order group created",
		zap.String("original_order_id", originalOrderID),
		zap.String("side", string(group.Side)),
		zap.String("amount", qty.String()),
		zap.String("price", px.String()),
		zap.Int("venues", len(group.Orders)))
	return group, nil
}

// CancelHedgeOrders cancels every still-active member of the group mirrored
// from the given primary order. Members are marked canceled even when the
// venue cancel call fails, so the group never blocks the primary cycle.
func (c *Coordinator) CancelHedgeOrders(ctx context.Context, originalOrderID string) {
	group := c.Group(originalOrderID)
	if group == nil {
		return
	}
	now := time.Now()
	for name, order := range group.Orders {
		if !order.Status.Active() {
			continue
		}
		gw := c.hedgeVenue(name)
		if gw != nil {
			if err := gw.CancelOrder(ctx, order.OrderID, group.Pair); err != nil {
				c.logger.Warn("hedge cancel failed",
					zap.String("venue", name),
					zap.String("order_id", order.OrderID),
					zap.Error(err))
			}
		}
		order.Status = models.OrderCanceled
		order.CancelTime = &now
	}
	if !group.AllFilled() {
		group.Status = models.OrderCanceled
	}
}

// Update polls the live status of every active member in the strategy's
// groups. A group turns filled only once every member reports filled.
func (c *Coordinator) Update(ctx context.Context, strategyID string) {
	for _, group := range c.GroupsByStrategy(strategyID) {
		if group.Status.Terminal() {
			continue
		}
		for name, order := range group.Orders {
			if !order.Status.Active() {
				continue
			}
			gw := c.hedgeVenue(name)
			if gw == nil {
				continue
			}
			status, err := gw.FetchOrder(ctx, order.OrderID, group.Pair)
			if err != nil {
				c.logger.Warn("hedge order status check failed",
					zap.String("venue", name),
					zap.String("order_id", order.OrderID),
					zap.Error(err))
				continue
			}
			if status == order.Status {
				continue
			}
			order.Status = status
			now := time.Now()
			switch status {
			case models.OrderFilled:
				order.FilledTime = &now
			case models.OrderCanceled:
				order.CancelTime = &now
			}
		}
		if group.AllFilled() {
			group.Status = models.OrderFilled
		}
	}
}

// CloseAllHedgePositions flattens whatever position remains on each hedge
// venue with reduce-only market orders, falling back to a plain market order
// where reduce-only is unsupported. Residual positions are logged, not
// retried forever.
func (c *Coordinator) CloseAllHedgePositions(ctx context.Context, pair string) {
	for _, gw := range c.venues.HedgeVenues() {
		positions, err := gw.FetchPositions(ctx, pair)
		if err != nil {
			c.logger.Error("failed to fetch hedge positions",
				zap.String("venue", gw.Name()), zap.Error(err))
			continue
		}
		for _, pos := range positions {
			if !pos.Size.IsPositive() {
				continue
			}
			closeSide := models.Sell
			if pos.Side == "short" {
				closeSide = models.Buy
			}
			if _, err := gw.PlaceMarketOrder(ctx, pair, closeSide, pos.Size, true); err != nil {
				if !errors.Is(err, venue.ErrReduceOnlyUnsupported) {
					c.logger.Warn("reduce-only close rejected, retrying plain",
						zap.String("venue", gw.Name()), zap.Error(err))
				}
				if _, err := gw.PlaceMarketOrder(ctx, pair, closeSide, pos.Size, false); err != nil {
					c.logger.Error("failed to close hedge position",
						zap.String("venue", gw.Name()),
						zap.String("side", pos.Side),
						zap.String("size", pos.Size.String()),
						zap.Error(err))
					continue
				}
			}
		}
		remaining, err := gw.FetchPositions(ctx, pair)
		if err != nil {
			continue
		}
		for _, pos := range remaining {
			if pos.Size.IsPositive() {
				c.logger.Warn("residual hedge position after close",
					zap.String("venue", gw.Name()),
					zap.String("side", pos.Side),
					zap.String("size", pos.Size.String()))
			}
		}
	}
}

// Group returns the group mirrored from the given primary order, or nil.
func (c *Coordinator) Group(originalOrderID string) *models.HedgeOrderGroup {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.groups[originalOrderID]
}

// GroupsByStrategy returns the strategy's groups in creation order.
func (c *Coordinator) GroupsByStrategy(strategyID string) []*models.HedgeOrderGroup {
	c.mu.Lock()
	defer c.mu.Unlock()
	ids := c.byStrategy[strategyID]
	out := make([]*models.HedgeOrderGroup, 0, len(ids))
	for _, id := range ids {
		if g, ok := c.groups[id]; ok {
			out = append(out, g)
		}
	}
	return out
}

// resolveSteps returns the hedge price and lot steps for the pair, fetched
// from the first hedge venue and cached on success. A failed lookup
// substitutes the default step for this placement only; the pair stays
// unknown and the next placement retries the fetch.
func (c *Coordinator) resolveSteps(ctx context.Context, pair string, gw venue.Gateway) (priceStep, amountStep decimal.Decimal) {
	c.precMu.Lock()
	defer c.precMu.Unlock()
	if steps, ok := c.steps[pair]; ok {
		return steps.price, steps.amount
	}
	priceStep, amountStep, err := gw.FetchMarketPrecision(ctx, pair)
	if err != nil || !priceStep.IsPositive() || !amountStep.IsPositive() {
		c.logger.Warn("hedge precision lookup failed, using default step",
			zap.String("venue", gw.Name()),
			zap.String("pair", pair),
			zap.Error(err))
		return models.DefaultStep, models.DefaultStep
	}
	c.steps[pair] = marketSteps{price: priceStep, amount: amountStep}
	return priceStep, amountStep
}

func (c *Coordinator) hedgeVenue(name string) venue.Gateway {
	for _, gw := range c.venues.HedgeVenues() {
		if gw.Name() == name {
			return gw
		}
	}
	return nil
}
