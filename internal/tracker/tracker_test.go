package tracker

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"grid-hedge-bot-go/internal/models"
)

func newOrder(id, levelID string, side models.Side, status models.OrderStatus, ts time.Time) *models.Order {
	return &models.Order{
		ID:        id,
		LevelID:   levelID,
		Side:      side,
		Price:     decimal.NewFromInt(100),
		Amount:    decimal.NewFromFloat(0.5),
		Status:    status,
		Timestamp: ts,
	}
}

func TestAddRejectsDuplicateID(t *testing.T) {
	tr := New()
	now := time.Now()

	require.True(t, tr.Add(newOrder("o1", "l1", models.Buy, models.OrderOpen, now)))
	assert.False(t, tr.Add(newOrder("o1", "l2", models.Sell, models.OrderOpen, now)))

	// The original record must survive the rejected add.
	got := tr.Get("o1")
	require.NotNil(t, got)
	assert.Equal(t, "l1", got.LevelID)
	assert.Equal(t, models.Buy, got.Side)
}

func TestAddRejectsNilAndEmptyID(t *testing.T) {
	tr := New()
	assert.False(t, tr.Add(nil))
	assert.False(t, tr.Add(newOrder("", "l1", models.Buy, models.OrderOpen, time.Now())))
	assert.Equal(t, 0, tr.Len())
}

func TestUpdateUnknownOrderFails(t *testing.T) {
	tr := New()
	assert.False(t, tr.Update("missing", models.OrderFilled))
}

func TestUpdateStampsTerminalTimes(t *testing.T) {
	tr := New()
	now := time.Now()
	require.True(t, tr.Add(newOrder("o1", "l1", models.Buy, models.OrderOpen, now)))
	require.True(t, tr.Add(newOrder("o2", "l2", models.Sell, models.OrderOpen, now)))

	require.True(t, tr.Update("o1", models.OrderFilled))
	require.True(t, tr.Update("o2", models.OrderCanceled))

	filled := tr.Get("o1")
	require.NotNil(t, filled.FilledTime)
	assert.Nil(t, filled.CancelTime)

	canceled := tr.Get("o2")
	require.NotNil(t, canceled.CancelTime)
	assert.Nil(t, canceled.FilledTime)
}

func TestCountActive(t *testing.T) {
	tr := New()
	now := time.Now()
	tr.Add(newOrder("o1", "l1", models.Buy, models.OrderOpen, now))
	tr.Add(newOrder("o2", "l2", models.Buy, models.OrderPartiallyFilled, now))
	tr.Add(newOrder("o3", "l3", models.Sell, models.OrderFilled, now))
	tr.Add(newOrder("o4", "l4", models.Sell, models.OrderCanceled, now))

	assert.Equal(t, 2, tr.CountActive())
	assert.Len(t, tr.Active(), 2)
}

func TestQueries(t *testing.T) {
	tr := New()
	early := time.Now().Add(-2 * time.Hour)
	late := time.Now()
	tr.Add(newOrder("o1", "l1", models.Buy, models.OrderOpen, early))
	tr.Add(newOrder("o2", "l1", models.Sell, models.OrderFilled, late))
	tr.Add(newOrder("o3", "l2", models.Buy, models.OrderCanceled, late))

	assert.Len(t, tr.ByStatus(models.OrderFilled), 1)
	assert.Len(t, tr.BySide(models.Buy), 2)
	assert.Len(t, tr.ByLevel("l1"), 2)
	assert.Len(t, tr.ByTimeRange(early.Add(-time.Minute), early.Add(time.Minute)), 1)
	assert.Len(t, tr.All(), 3)

	summary := tr.StatusSummary()
	assert.Equal(t, 1, summary[models.OrderOpen])
	assert.Equal(t, 1, summary[models.OrderFilled])
	assert.Equal(t, 1, summary[models.OrderCanceled])
}

func TestQueriesReturnCopies(t *testing.T) {
	tr := New()
	require.True(t, tr.Add(newOrder("o1", "l1", models.Buy, models.OrderOpen, time.Now())))

	// Mutating a query result must not leak back into the tracker.
	got := tr.Get("o1")
	got.Status = models.OrderFilled
	assert.Equal(t, models.OrderOpen, tr.Get("o1").Status)

	active := tr.Active()
	require.Len(t, active, 1)
	active[0].LevelID = "corrupted"
	assert.Equal(t, "l1", tr.Get("o1").LevelID)
}

func TestPruneOlderThanKeepsActiveOrders(t *testing.T) {
	tr := New()
	old := time.Now().Add(-48 * time.Hour)
	tr.Add(newOrder("old-filled", "l1", models.Buy, models.OrderFilled, old))
	tr.Add(newOrder("old-open", "l2", models.Buy, models.OrderOpen, old))
	tr.Add(newOrder("new-filled", "l3", models.Sell, models.OrderFilled, time.Now()))

	removed := tr.PruneOlderThan(time.Now().Add(-24 * time.Hour))
	assert.Equal(t, 1, removed)

	// An active order is never pruned, no matter how old.
	assert.NotNil(t, tr.Get("old-open"))
	assert.Nil(t, tr.Get("old-filled"))
	assert.NotNil(t, tr.Get("new-filled"))
}
