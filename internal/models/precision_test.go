package models

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestRoundToStep(t *testing.T) {
	cases := []struct {
		name  string
		value string
		step  string
		want  string
	}{
		{"exact multiple", "1.50", "0.01", "1.5"},
		{"rounds toward zero", "1.14285714", "0.0001", "1.1428"},
		{"coarse step", "123.456", "0.5", "123"},
		{"negative value rounds toward zero", "-1.119", "0.01", "-1.11"},
		{"zero step falls back to default", "1.123456789123", "0", "1.12345678"},
		{"negative step falls back to default", "0.5", "-1", "0.5"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := RoundToStep(decimal.RequireFromString(tc.value), decimal.RequireFromString(tc.step))
			assert.True(t, got.Equal(decimal.RequireFromString(tc.want)),
				"got %s, want %s", got, tc.want)
		})
	}
}

func TestSideOpposite(t *testing.T) {
	assert.Equal(t, Sell, Buy.Opposite())
	assert.Equal(t, Buy, Sell.Opposite())
}

func TestOrderStatusClassification(t *testing.T) {
	assert.True(t, OrderOpen.Active())
	assert.True(t, OrderPartiallyFilled.Active())
	assert.False(t, OrderFilled.Active())

	assert.True(t, OrderFilled.Terminal())
	assert.True(t, OrderCanceled.Terminal())
	assert.True(t, OrderError.Terminal())
	assert.False(t, OrderOpen.Terminal())
}

func TestHedgeGroupAllFilled(t *testing.T) {
	group := &HedgeOrderGroup{Orders: map[string]*HedgeOrder{}}
	assert.False(t, group.AllFilled(), "empty group is never filled")

	group.Orders["a"] = &HedgeOrder{Status: OrderFilled}
	group.Orders["b"] = &HedgeOrder{Status: OrderOpen}
	assert.False(t, group.AllFilled())

	group.Orders["b"].Status = OrderFilled
	assert.True(t, group.AllFilled())
}

func TestStrategyStateNormalize(t *testing.T) {
	var nilState *StrategyState
	assert.False(t, nilState.Normalize())
	assert.False(t, (&StrategyState{}).Normalize())

	state := &StrategyState{
		StrategyID: "s1",
		Levels:     []*GridLevel{{ID: "s1-0", Price: decimal.NewFromInt(100)}},
	}
	assert.True(t, state.Normalize())
	assert.Equal(t, StateVersion, state.Version)
	assert.NotNil(t, state.Orders)
	assert.Equal(t, LevelReady, state.Levels[0].Status)
	assert.False(t, state.StartTime.IsZero())
}
