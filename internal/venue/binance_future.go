package venue

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	"github.com/adshao/go-binance/v2/futures"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"grid-hedge-bot-go/internal/models"
)

const (
	futuresAPIURL        = "https://fapi.binance.com"
	futuresTestnetAPIURL = "https://testnet.binancefuture.com"
	futuresWSURL         = "wss://fstream.binance.com"
	futuresTestnetWSURL  = "wss://stream.binancefuture.com"
)

// FuturesGateway implements Gateway against Binance USD-M futures. This is
// the venue type hedge strategies run on: it reports open positions and
// accepts reduce-only market orders for unwinding them.
type FuturesGateway struct {
	name      string
	client    *futures.Client
	wsBaseURL string
	logger    *zap.Logger

	feedCtx    context.Context
	feedCancel context.CancelFunc
	mu         sync.Mutex
	feeds      map[string]*tickerFeed
}

// NewFuturesGateway connects to Binance USD-M futures and verifies
// reachability.
func NewFuturesGateway(cfg models.VenueConfig, logger *zap.Logger) (*FuturesGateway, error) {
	client := futures.NewClient(cfg.APIKey, cfg.APISecret)
	wsBaseURL := futuresWSURL
	if cfg.Testnet {
		client.BaseURL = futuresTestnetAPIURL
		wsBaseURL = futuresTestnetWSURL
	} else {
		client.BaseURL = futuresAPIURL
	}

	ctx, cancel := context.WithTimeout(context.Background(), initTimeout)
	defer cancel()
	if err := client.NewPingService().Do(ctx); err != nil {
		return nil, fmt.Errorf("ping binance futures: %w", err)
	}

	feedCtx, feedCancel := context.WithCancel(context.Background())
	return &FuturesGateway{
		name:       venueID(cfg),
		client:     client,
		wsBaseURL:  wsBaseURL,
		logger:     logger.Named("venue").With(zap.String("venue", venueID(cfg))),
		feedCtx:    feedCtx,
		feedCancel: feedCancel,
		feeds:      make(map[string]*tickerFeed),
	}, nil
}

func (g *FuturesGateway) Name() string { return g.name }

func (g *FuturesGateway) FetchTicker(ctx context.Context, pair string) (decimal.Decimal, error) {
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

func (g *FuturesGateway) feedPrice(symbol string) (decimal.Decimal, bool) {
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

func (g *FuturesGateway) FetchMarketPrecision(ctx context.Context, pair string) (decimal.Decimal, decimal.Decimal, error) {
	symbol := normalizeSymbol(pair)
	info, err := g.client.NewExchangeInfoService().Do(ctx)
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

func (g *FuturesGateway) PlaceLimitOrder(ctx context.Context, pair string, side models.Side, amount, price decimal.Decimal) (string, error) {
	symbol := normalizeSymbol(pair)
	resp, err := g.client.NewCreateOrderService().
		Symbol(symbol).
		Side(futuresSide(side)).
		Type(futures.OrderTypeLimit).
		TimeInForce(futures.TimeInForceTypeGTC).
		Quantity(amount.String()).
		Price(price.String()).
		Do(ctx)
	if err != nil {
		return "", fmt.Errorf("place limit %s %s %s@%s: %w", symbol, side, amount, price, err)
	}
	return strconv.FormatInt(resp.OrderID, 10), nil
}

func (g *FuturesGateway) PlaceMarketOrder(ctx context.Context, pair string, side models.Side, amount decimal.Decimal, reduceOnly bool) (string, error) {
	symbol := normalizeSymbol(pair)
	svc := g.client.NewCreateOrderService().
		Symbol(symbol).
		Side(futuresSide(side)).
		Type(futures.OrderTypeMarket).
		Quantity(amount.String())
	if reduceOnly {
		svc = svc.ReduceOnly(true)
	}
	resp, err := svc.Do(ctx)
	if err != nil {
		return "", fmt.Errorf("place market %s %s %s: %w", symbol, side, amount, err)
	}
	return strconv.FormatInt(resp.OrderID, 10), nil
}

func (g *FuturesGateway) CancelOrder(ctx context.Context, orderID, pair string) error {
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

func (g *FuturesGateway) FetchOrder(ctx context.Context, orderID, pair string) (models.OrderStatus, error) {
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

func (g *FuturesGateway) FetchOrdersByIDs(ctx context.Context, ids []string, pair string) (map[string]models.OrderStatus, error) {
	return fetchOrdersOneByOne(ctx, g, ids, pair, g.logger)
}

func (g *FuturesGateway) FetchPositions(ctx context.Context, pair string) ([]models.Position, error) {
	symbol := normalizeSymbol(pair)
	risks, err := g.client.NewGetPositionRiskService().Symbol(symbol).Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch positions %s: %w", symbol, err)
	}
	var positions []models.Position
	for _, r := range risks {
		amt, err := decimal.NewFromString(r.PositionAmt)
		if err != nil || amt.IsZero() {
			continue
		}
		side := "long"
		if amt.IsNegative() {
			side = "short"
		}
		positions = append(positions, models.Position{Side: side, Size: amt.Abs()})
	}
	return positions, nil
}

func (g *FuturesGateway) FetchBalance(ctx context.Context) ([]models.Balance, error) {
	raw, err := g.client.NewGetBalanceService().Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch balance: %w", err)
	}
	balances := make([]models.Balance, 0, len(raw))
	for _, b := range raw {
		free, err := decimal.NewFromString(b.AvailableBalance)
		if err != nil || free.IsZero() {
			continue
		}
		balances = append(balances, models.Balance{Asset: b.Asset, Free: free})
	}
	return balances, nil
}

func (g *FuturesGateway) Close() error {
	g.feedCancel()
	return nil
}

func futuresSide(side models.Side) futures.SideType {
	if side == models.Buy {
		return futures.SideTypeBuy
	}
	return futures.SideTypeSell
}
