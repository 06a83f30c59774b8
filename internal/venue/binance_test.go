package venue

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"grid-hedge-bot-go/internal/models"
)

func TestVenueID(t *testing.T) {
	assert.Equal(t, "binance", venueID(models.VenueConfig{Name: "binance"}))
	assert.Equal(t, "binance_future_acct2",
		venueID(models.VenueConfig{Name: "binance_future", AccountAlias: "acct2"}))
}

func TestNormalizeSymbol(t *testing.T) {
	assert.Equal(t, "BTCUSDT", normalizeSymbol("BTC/USDT"))
	assert.Equal(t, "BTCUSDT", normalizeSymbol("btcusdt"))
	assert.Equal(t, "ETHBTC", normalizeSymbol("eth/btc"))
}

func TestMapOrderStatus(t *testing.T) {
	cases := []struct {
		venue string
		want  models.OrderStatus
	}{
		{"NEW", models.OrderOpen},
		{"PENDING_CANCEL", models.OrderOpen},
		{"PARTIALLY_FILLED", models.OrderPartiallyFilled},
		{"FILLED", models.OrderFilled},
		{"CANCELED", models.OrderCanceled},
		{"EXPIRED", models.OrderCanceled},
		{"REJECTED", models.OrderCanceled},
		{"SOMETHING_ELSE", models.OrderError},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, mapOrderStatus(tc.venue), "venue status %s", tc.venue)
	}
}

func TestParseStep(t *testing.T) {
	assert.True(t, parseStep("0.00100000").Equal(decimal.RequireFromString("0.001")))
	assert.True(t, parseStep("").IsZero())
	assert.True(t, parseStep("junk").IsZero())
	assert.True(t, parseStep("0").IsZero())
}

func TestParseOrderID(t *testing.T) {
	id, err := parseOrderID("123456")
	assert.NoError(t, err)
	assert.Equal(t, int64(123456), id)

	_, err = parseOrderID("not-a-number")
	assert.Error(t, err)
}
