package store

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"grid-hedge-bot-go/internal/models"
)

func stateFixture(strategyID string) *models.StrategyState {
	return &models.StrategyState{
		Version:         models.StateVersion,
		StrategyID:      strategyID,
		TradingPair:     "BTC/USDT",
		StartPrice:      decimal.NewFromInt(100),
		EndPrice:        decimal.NewFromInt(200),
		TotalInvestment: decimal.NewFromInt(1000),
		Levels: []*models.GridLevel{
			{ID: strategyID + "-0", Price: decimal.NewFromInt(100), Amount: decimal.NewFromInt(200), Status: models.LevelReady},
			{ID: strategyID + "-1", Price: decimal.NewFromInt(150), Amount: decimal.NewFromInt(200), Status: models.LevelBuying, BuyOrderID: "o7"},
		},
		RealizedProfit:  decimal.NewFromInt(10),
		CompletedTrades: 3,
		StartTime:       time.Now().Add(-time.Hour),
		Orders: map[string]*models.Order{
			"o7": {ID: "o7", LevelID: strategyID + "-1", Side: models.Buy, Status: models.OrderOpen},
		},
	}
}

func newFileRepo(t *testing.T) *FileRepository {
	t.Helper()
	repo, err := NewFileRepository(t.TempDir(), zap.NewNop())
	require.NoError(t, err)
	return repo
}

func TestFileStateRoundtrip(t *testing.T) {
	repo := newFileRepo(t)
	state := stateFixture("s1")
	require.NoError(t, repo.SaveStrategyState(state, true))

	loaded, err := repo.LoadStrategyState("s1")
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, "s1", loaded.StrategyID)
	assert.True(t, loaded.StartPrice.Equal(state.StartPrice))
	require.Len(t, loaded.Levels, 2)
	assert.Equal(t, models.LevelBuying, loaded.Levels[1].Status)
	assert.Equal(t, "o7", loaded.Levels[1].BuyOrderID)
	require.Contains(t, loaded.Orders, "o7")
	assert.Equal(t, models.OrderOpen, loaded.Orders["o7"].Status)
}

func TestLoadMissingStateReturnsNil(t *testing.T) {
	repo := newFileRepo(t)
	loaded, err := repo.LoadStrategyState("nonexistent")
	assert.NoError(t, err)
	assert.Nil(t, loaded)
}

func TestSaveIsRateLimitedUnlessForced(t *testing.T) {
	repo := newFileRepo(t)
	state := stateFixture("s1")
	require.NoError(t, repo.SaveStrategyState(state, false))

	state.CompletedTrades = 99
	// Within the throttle window the write is silently skipped.
	require.NoError(t, repo.SaveStrategyState(state, false))
	loaded, err := repo.LoadStrategyState("s1")
	require.NoError(t, err)
	assert.Equal(t, 3, loaded.CompletedTrades)

	require.NoError(t, repo.SaveStrategyState(state, true))
	loaded, err = repo.LoadStrategyState("s1")
	require.NoError(t, err)
	assert.Equal(t, 99, loaded.CompletedTrades)
}

func TestSaveLeavesNoTempFile(t *testing.T) {
	dir := t.TempDir()
	repo, err := NewFileRepository(dir, zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, repo.SaveStrategyState(stateFixture("s1"), true))

	entries, err := os.ReadDir(filepath.Join(dir, stateDirName))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "s1.json", entries[0].Name())
}

func TestTradeAppendAndLoad(t *testing.T) {
	repo := newFileRepo(t)
	base := time.Now()
	for i := 0; i < 3; i++ {
		require.NoError(t, repo.AppendTrade(&models.TradeRecord{
			TradeID:    tradeID("s1", "o1", base.Add(time.Duration(i)*time.Second)),
			StrategyID: "s1",
			OrderID:    "o1",
			Pair:       "BTC/USDT",
			Side:       models.Buy,
			Price:      decimal.NewFromInt(100 + int64(i)),
			Amount:     decimal.NewFromInt(1),
			Timestamp:  base.Add(time.Duration(i) * time.Second),
		}))
	}

	trades, err := repo.LoadTrades("s1")
	require.NoError(t, err)
	require.Len(t, trades, 3)
	assert.True(t, trades[0].Price.Equal(decimal.NewFromInt(100)))
	assert.True(t, trades[2].Price.Equal(decimal.NewFromInt(102)))

	none, err := repo.LoadTrades("other")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestCorruptTradeLineIsSkipped(t *testing.T) {
	dir := t.TempDir()
	repo, err := NewFileRepository(dir, zap.NewNop())
	require.NoError(t, err)

	path := repo.tradesPath("s1")
	content := `{"trade_id":"a","strategy_id":"s1","side":"buy","price":"100","amount":"1"}
not json at all
{"trade_id":"b","strategy_id":"s1","side":"sell","price":"110","amount":"1"}
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	trades, err := repo.LoadTrades("s1")
	require.NoError(t, err)
	require.Len(t, trades, 2)
	assert.Equal(t, "a", trades[0].TradeID)
	assert.Equal(t, "b", trades[1].TradeID)
}

func TestTradeIDDeterministic(t *testing.T) {
	ts := time.UnixMilli(1700000000000)
	first := tradeID("s1", "order-12345678", ts)
	second := tradeID("s1", "order-12345678", ts)
	assert.Equal(t, first, second)

	// Only the order id suffix participates, keeping ids short.
	assert.Contains(t, first, "345678")
	assert.NotContains(t, first, "order-1")

	assert.NotEqual(t, first, tradeID("s1", "order-12345678", ts.Add(time.Millisecond)))
	assert.NotEqual(t, first, tradeID("s2", "order-12345678", ts))
}

func TestRecorderCachesAndReloads(t *testing.T) {
	repo := newFileRepo(t)
	recorder := NewTradeRecorder(repo, zap.NewNop())

	recorder.Record("s1", "o1", "BTC/USDT", models.Buy,
		decimal.NewFromInt(100), decimal.NewFromInt(1), time.Now())
	recorder.Record("s1", "o2", "BTC/USDT", models.Sell,
		decimal.NewFromInt(110), decimal.NewFromInt(1), time.Now())

	assert.Len(t, recorder.TradesByStrategy("s1"), 2)
	assert.Empty(t, recorder.TradesByStrategy("s2"))

	// A fresh recorder over the same repository sees the persisted history.
	fresh := NewTradeRecorder(repo, zap.NewNop())
	trades := fresh.TradesByStrategy("s1")
	require.Len(t, trades, 2)
	assert.Equal(t, models.Buy, trades[0].Side)
	assert.Equal(t, models.Sell, trades[1].Side)
}
