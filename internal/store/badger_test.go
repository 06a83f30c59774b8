package store

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"grid-hedge-bot-go/internal/models"
)

func newBadgerRepo(t *testing.T) *BadgerRepository {
	t.Helper()
	repo, err := NewBadgerRepository(t.TempDir(), zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })
	return repo
}

func TestBadgerStateRoundtrip(t *testing.T) {
	repo := newBadgerRepo(t)
	require.NoError(t, repo.SaveStrategyState(stateFixture("s1"), true))

	loaded, err := repo.LoadStrategyState("s1")
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, "s1", loaded.StrategyID)
	require.Len(t, loaded.Levels, 2)
	assert.Equal(t, "o7", loaded.Levels[1].BuyOrderID)

	missing, err := repo.LoadStrategyState("other")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestBadgerTradesIsolatedPerStrategy(t *testing.T) {
	repo := newBadgerRepo(t)
	now := time.Now()
	for _, sid := range []string{"s1", "s1", "s2"} {
		require.NoError(t, repo.AppendTrade(&models.TradeRecord{
			TradeID:    tradeID(sid, "o1", now),
			StrategyID: sid,
			Side:       models.Buy,
			Price:      decimal.NewFromInt(100),
			Amount:     decimal.NewFromInt(1),
			Timestamp:  now,
		}))
		now = now.Add(time.Millisecond)
	}

	s1, err := repo.LoadTrades("s1")
	require.NoError(t, err)
	assert.Len(t, s1, 2)

	s2, err := repo.LoadTrades("s2")
	require.NoError(t, err)
	assert.Len(t, s2, 1)
}
