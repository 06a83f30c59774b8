package venue

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"

	"grid-hedge-bot-go/internal/models"
)

// ErrReduceOnlyUnsupported is returned by venues that cannot flag an order
// as reduce-only. Callers retry the close without the flag.
var ErrReduceOnlyUnsupported = errors.New("venue does not support reduce-only orders")

// Gateway is the capability set every venue implementation must provide.
// Strategy and hedge code depend only on this interface, never on a concrete
// venue type. All calls are fallible and surface distinguishable errors.
type Gateway interface {
	// Name returns the unique venue identifier (name plus account alias).
	Name() string

	// FetchTicker returns the last traded price for the pair.
	FetchTicker(ctx context.Context, pair string) (decimal.Decimal, error)

	// FetchMarketPrecision returns the price tick and amount lot steps.
	FetchMarketPrecision(ctx context.Context, pair string) (priceStep, amountStep decimal.Decimal, err error)

	// PlaceLimitOrder submits a limit order and returns the venue order id.
	PlaceLimitOrder(ctx context.Context, pair string, side models.Side, amount, price decimal.Decimal) (string, error)

	// PlaceMarketOrder submits a market order, optionally reduce-only.
	PlaceMarketOrder(ctx context.Context, pair string, side models.Side, amount decimal.Decimal, reduceOnly bool) (string, error)

	// CancelOrder requests cancellation of an order.
	CancelOrder(ctx context.Context, orderID, pair string) error

	// FetchOrder returns the live status of a single order.
	FetchOrder(ctx context.Context, orderID, pair string) (models.OrderStatus, error)

	// FetchOrdersByIDs returns the live status of each order it could
	// resolve; ids that fail to resolve are absent from the result.
	FetchOrdersByIDs(ctx context.Context, ids []string, pair string) (map[string]models.OrderStatus, error)

	// FetchPositions returns the open positions for the pair, if the venue
	// has a position concept at all.
	FetchPositions(ctx context.Context, pair string) ([]models.Position, error)

	// FetchBalance returns the venue account balances.
	FetchBalance(ctx context.Context) ([]models.Balance, error)

	// Close releases the connection and any background feeds.
	Close() error
}
