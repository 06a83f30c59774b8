package tracker

import (
	"time"

	"grid-hedge-bot-go/internal/models"
)

// OrderTracker is the in-memory book of every order a strategy has placed.
// Each strategy goroutine owns exactly one tracker, so no locking happens
// here; persistence is the strategy's job.
type OrderTracker struct {
	orders map[string]*models.Order
}

func New() *OrderTracker {
	return &OrderTracker{orders: make(map[string]*models.Order)}
}

// Add registers a new order. It reports false without overwriting when an
// order with the same id is already tracked.
func (t *OrderTracker) Add(order *models.Order) bool {
	if order == nil || order.ID == "" {
		return false
	}
	if _, exists := t.orders[order.ID]; exists {
		return false
	}
	t.orders[order.ID] = order
	return true
}

// Update transitions a tracked order to a new status, stamping the fill or
// cancel time on the matching terminal transition. It reports false when the
// order is unknown.
func (t *OrderTracker) Update(orderID string, status models.OrderStatus) bool {
	order, ok := t.orders[orderID]
	if !ok {
		return false
	}
	order.Status = status
	now := time.Now()
	switch status {
	case models.OrderFilled:
		order.FilledTime = &now
	case models.OrderCanceled:
		order.CancelTime = &now
	}
	return true
}

// Get returns a copy of the tracked order, or nil when unknown. Mutation
// goes through Update only.
func (t *OrderTracker) Get(orderID string) *models.Order {
	return copyOrder(t.orders[orderID])
}

// Queries below return copies so callers cannot corrupt tracker state.

// ByStatus returns every order currently in the given status.
func (t *OrderTracker) ByStatus(status models.OrderStatus) []*models.Order {
	var out []*models.Order
	for _, o := range t.orders {
		if o.Status == status {
			out = append(out, copyOrder(o))
		}
	}
	return out
}

// BySide returns every order on the given side.
func (t *OrderTracker) BySide(side models.Side) []*models.Order {
	var out []*models.Order
	for _, o := range t.orders {
		if o.Side == side {
			out = append(out, copyOrder(o))
		}
	}
	return out
}

// ByLevel returns every order attached to the given grid level.
func (t *OrderTracker) ByLevel(levelID string) []*models.Order {
	var out []*models.Order
	for _, o := range t.orders {
		if o.LevelID == levelID {
			out = append(out, copyOrder(o))
		}
	}
	return out
}

// ByTimeRange returns every order placed in [from, to].
func (t *OrderTracker) ByTimeRange(from, to time.Time) []*models.Order {
	var out []*models.Order
	for _, o := range t.orders {
		if !o.Timestamp.Before(from) && !o.Timestamp.After(to) {
			out = append(out, copyOrder(o))
		}
	}
	return out
}

// Active returns every order still working on the venue.
func (t *OrderTracker) Active() []*models.Order {
	var out []*models.Order
	for _, o := range t.orders {
		if o.Status.Active() {
			out = append(out, copyOrder(o))
		}
	}
	return out
}

// CountActive reports how many orders are still working on the venue.
func (t *OrderTracker) CountActive() int {
	n := 0
	for _, o := range t.orders {
		if o.Status.Active() {
			n++
		}
	}
	return n
}

// All returns every tracked order.
func (t *OrderTracker) All() []*models.Order {
	out := make([]*models.Order, 0, len(t.orders))
	for _, o := range t.orders {
		out = append(out, copyOrder(o))
	}
	return out
}

// Len reports the number of tracked orders.
func (t *OrderTracker) Len() int {
	return len(t.orders)
}

// PruneOlderThan drops terminal orders placed before the cutoff and reports
// how many were removed. Active orders are never pruned.
func (t *OrderTracker) PruneOlderThan(cutoff time.Time) int {
	removed := 0
	for id, o := range t.orders {
		if o.Status.Terminal() && o.Timestamp.Before(cutoff) {
			delete(t.orders, id)
			removed++
		}
	}
	return removed
}

func copyOrder(o *models.Order) *models.Order {
	if o == nil {
		return nil
	}
	dup := *o
	if o.FilledTime != nil {
		ft := *o.FilledTime
		dup.FilledTime = &ft
	}
	if o.CancelTime != nil {
		ct := *o.CancelTime
		dup.CancelTime = &ct
	}
	return &dup
}

// StatusSummary counts tracked orders per status.
func (t *OrderTracker) StatusSummary() map[models.OrderStatus]int {
	summary := make(map[models.OrderStatus]int)
	for _, o := range t.orders {
		summary[o.Status]++
	}
	return summary
}
