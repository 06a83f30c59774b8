package venue

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/adshao/go-binance/v2"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"grid-hedge-bot-go/internal/models"
)

const (
	spotAPIURL        = "https://api.binance.com"
	spotTestnetAPIURL = "https://testnet.binance.vision"
	spotWSURL         = "wss://stream.binance.com:9443"
	spotTestnetWSURL  = "wss://testnet.binance.vision"

	// tickerMaxAge bounds how old a websocket price may be before the
	// gateway falls back to a REST ticker call.
	tickerMaxAge = 10 * time.Second

	initTimeout = 10 * time.Second
)

// SpotGateway implements Gateway against Binance spot. Spot accounts have no
// position concept and no reduce-only flag; the corresponding capabilities
// report that instead of failing opaquely.
type SpotGateway struct {
	name      string
	client    *binance.Client
	wsBaseURL string
	logger    *zap.Logger

	feedCtx    context.Context
	feedCancel context.CancelFunc
	mu         sync.Mutex
	feeds      map[string]*tickerFeed
}

// NewSpotGateway connects to Binance spot and verifies reachability.
func NewSpotGateway(cfg models.VenueConfig, logger *zap.Logger) (*SpotGateway, error) {
	client := binance.NewClient(cfg.APIKey, cfg.APISecret)
	wsBaseURL := spotWSURL
	if cfg.Testnet {
		client.BaseURL = spotTestnetAPIURL
		wsBaseURL = spotTestnetWSURL
	} else {
		client.BaseURL = spotAPIURL
	}

	ctx, cancel := context.WithTimeout(context.Background(), initTimeout)
	defer cancel()
	if err := client.NewPingService().Do(ctx); err != nil {
		return nil, fmt.Errorf("ping binance spot: %w", err)
	}

	feedCtx, feedCancel := context.WithCancel(context.Background())
	return &SpotGateway{
		name:       venueID(cfg),
		client:     client,
		wsBaseURL:  wsBaseURL,
		logger:     logger.Named("venue").With(zap.String("venue", venueID(cfg))),
		feedCtx:    feedCtx,
		feedCancel: feedCancel,
		feeds:      make(map[string]*tickerFeed),
	}, nil
}

func (g *SpotGateway) Name() string { return g.name }

func (g *SpotGateway) FetchTicker(ctx context.Context, pair string) (decimal.Decimal, error) {
	symbol := normalizeSymbol(pair)
	if price, ok := g.feedPrice(symbol); ok {
		return price, nil
	}

	prices, err := g.client.NewListPricesService().Symbol(symbol).Do(ctx)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("fetch ticker %s: %w", symbol, err)
	}
	if len(prices) == 0 {
		return decimal.Decimal{}, fmt.Errorf("fetch ticker %s: empty response", symbol)
	}
	return parsePrice(prices[0].Price, symbol)
}

// feedPrice returns a fresh websocket price, starting the feed on first use.
func (g *SpotGateway) feedPrice(symbol string) (decimal.Decimal, bool) {
	g.mu.Lock()
	feed, ok := g.feeds[symbol]
	if !ok {
		feed = newTickerFeed(g.wsBaseURL, symbol, g.logger)
		g.feeds[symbol] = feed
		go feed.run(g.feedCtx)
	}
	g.mu.Unlock()
	return feed.price(tickerMaxAge)
}

func (g *SpotGateway) FetchMarketPrecision(ctx context.Context, pair string) (decimal.Decimal, decimal.Decimal, error) {
	symbol := normalizeSymbol(pair)
	info, err := g.client.NewExchangeInfoService().Symbol(symbol).Do(ctx)
	if err != nil {
		return decimal.Decimal{}, decimal.Decimal{}, fmt.Errorf("fetch exchange info %s: %w", symbol, err)
	}
	for _, s := range info.Symbols {
		if s.Symbol != symbol {
			continue
		}
		var priceStep, amountStep decimal.Decimal
		if f := s.PriceFilter(); f != nil {
			priceStep = parseStep(f.TickSize)
		}
		if f := s.LotSizeFilter(); f != nil {
			amountStep = parseStep(f.StepSize)
		}
		return priceStep, amountStep, nil
	}
	return decimal.Decimal{}, decimal.Decimal{}, fmt.Errorf("fetch exchange info: symbol %s not listed", symbol)
}

func (g *SpotGateway) PlaceLimitOrder(ctx context.Context, pair string, side models.Side, amount, price decimal.Decimal) (string, error) {
	symbol := normalizeSymbol(pair)
	resp, err := g.client.NewCreateOrderService().
		Symbol(symbol).
		Side(spotSide(side)).
		Type(binance.OrderTypeLimit).
		TimeInForce(binance.TimeInForceTypeGTC).
		Quantity(amount.String()).
		Price(price.String()).
		Do(ctx)
	if err != nil {
		return "", fmt.Errorf("place limit %s %s %s@%s: %w", symbol, side, amount, price, err)
	}
	return strconv.FormatInt(resp.OrderID, 10), nil
}

func (g *SpotGateway) PlaceMarketOrder(ctx context.Context, pair string, side models.Side, amount decimal.Decimal, reduceOnly bool) (string, error) {
	if reduceOnly {
		return "", ErrReduceOnlyUnsupported
	}
	symbol := normalizeSymbol(pair)
	resp, err := g.client.NewCreateOrderService().
		Symbol(symbol).
		Side(spotSide(side)).
		Type(binance.OrderTypeMarket).
		Quantity(amount.String()).
		Do(ctx)
	if err != nil {
		return "", fmt.Errorf("place market %s %s %s: %w", symbol, side, amount, err)
	}
	return strconv.FormatInt(resp.OrderID, 10), nil
}

func (g *SpotGateway) CancelOrder(ctx context.Context, orderID, pair string) error {
	id, err := parseOrderID(orderID)
	if err != nil {
		return err
	}
	symbol := normalizeSymbol(pair)
	if _, err := g.client.NewCancelOrderService().Symbol(symbol).OrderID(id).Do(ctx); err != nil {
		return fmt.Errorf("cancel order %s on %s: %w", orderID, symbol, err)
	}
	return nil
}

func (g *SpotGateway) FetchOrder(ctx context.Context, orderID, pair string) (models.OrderStatus, error) {
	id, err := parseOrderID(orderID)
	if err != nil {
		return models.OrderError, err
	}
	symbol := normalizeSymbol(pair)
	order, err := g.client.NewGetOrderService().Symbol(symbol).OrderID(id).Do(ctx)
	if err != nil {
		return models.OrderError, fmt.Errorf("fetch order %s on %s: %w", orderID, symbol, err)
	}
	return mapOrderStatus(string(order.Status)), nil
}

func (g *SpotGateway) FetchOrdersByIDs(ctx context.Context, ids []string, pair string) (map[string]models.OrderStatus, error) {
	return fetchOrdersOneByOne(ctx, g, ids, pair, g.logger)
}

// FetchPositions is a no-op on spot: holdings are balances, not positions.
func (g *SpotGateway) FetchPositions(ctx context.Context, pair string) ([]models.Position, error) {
	return nil, nil
}

func (g *SpotGateway) FetchBalance(ctx context.Context) ([]models.Balance, error) {
	account, err := g.client.NewGetAccountService().Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch balance: %w", err)
	}
	balances := make([]models.Balance, 0, len(account.Balances))
	for _, b := range account.Balances {
		free, err := decimal.NewFromString(b.Free)
		if err != nil || free.IsZero() {
			continue
		}
		balances = append(balances, models.Balance{Asset: b.Asset, Free: free})
	}
	return balances, nil
}

func (g *SpotGateway) Close() error {
	g.feedCancel()
	return nil
}

// venueID builds the unique venue identifier from name and account alias.
func venueID(cfg models.VenueConfig) string {
	if cfg.AccountAlias != "" {
		return cfg.Name + "_" + cfg.AccountAlias
	}
	return cfg.Name
}

// normalizeSymbol turns config pairs like "BTC/USDT" into venue symbols.
func normalizeSymbol(pair string) string {
	return strings.ToUpper(strings.ReplaceAll(pair, "/", ""))
}

func spotSide(side models.Side) binance.SideType {
	if side == models.Buy {
		return binance.SideTypeBuy
	}
	return binance.SideTypeSell
}

func parseOrderID(orderID string) (int64, error) {
	id, err := strconv.ParseInt(orderID, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid order id %q: %w", orderID, err)
	}
	return id, nil
}

func parsePrice(raw, symbol string) (decimal.Decimal, error) {
	price, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("parse price %q for %s: %w", raw, symbol, err)
	}
	return price, nil
}

// parseStep parses a tick/lot step, returning zero on junk so callers can
// substitute the conservative default.
func parseStep(raw string) decimal.Decimal {
	step, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Decimal{}
	}
	return step
}

// mapOrderStatus folds venue status strings into the tracked order statuses.
func mapOrderStatus(status string) models.OrderStatus {
	switch status {
	case "NEW", "PENDING_CANCEL":
		return models.OrderOpen
	case "PARTIALLY_FILLED":
		return models.OrderPartiallyFilled
	case "FILLED":
		return models.OrderFilled
	case "CANCELED", "EXPIRED", "REJECTED":
		return models.OrderCanceled
	default:
		return models.OrderError
	}
}

// fetchOrdersOneByOne implements the batch status fetch for venues without a
// batch endpoint. Unresolvable ids are logged and omitted, not fatal.
func fetchOrdersOneByOne(ctx context.Context, g Gateway, ids []string, pair string, logger *zap.Logger) (map[string]models.OrderStatus, error) {
	statuses := make(map[string]models.OrderStatus, len(ids))
	for _, id := range ids {
		status, err := g.FetchOrder(ctx, id, pair)
		if err != nil {
			logger.Warn("order status fetch failed",
				zap.String("order_id", id), zap.Error(err))
			continue
		}
		statuses[id] = status
	}
	return statuses, nil
}
