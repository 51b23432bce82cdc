package book

import (
	"testing"
	"time"

	"github.com/ashgrove/scrollmarket/internal/models"
)

func openOrder(id, userID int64, side models.Side, price int64, at time.Time) models.Order {
	return models.Order{
		ID:        id,
		UserID:    userID,
		Side:      side,
		Price:     price,
		Status:    models.StatusOpen,
		CreatedAt: at,
	}
}

func TestBook_InsertOrdering(t *testing.T) {
	b := New()
	base := time.Now()

	b.Insert(openOrder(1, 1, models.SideBid, 30, base))
	b.Insert(openOrder(2, 2, models.SideBid, 40, base.Add(time.Second)))
	b.Insert(openOrder(3, 3, models.SideBid, 30, base.Add(2*time.Second)))
	b.Insert(openOrder(4, 1, models.SideAsk, 60, base))
	b.Insert(openOrder(5, 2, models.SideAsk, 50, base.Add(time.Second)))
	b.Insert(openOrder(6, 3, models.SideAsk, 60, base.Add(2*time.Second)))

	bids, asks := b.Orders()

	if len(bids) != 3 || len(asks) != 3 {
		t.Fatalf("expected 3 orders per side, got %d bids, %d asks", len(bids), len(asks))
	}
	if bids[0].Price != 40 {
		t.Errorf("expected highest bid first, got %d", bids[0].Price)
	}
	if bids[1].ID != 1 || bids[2].ID != 3 {
		t.Errorf("equal-price bids not in time order: got %d, %d", bids[1].ID, bids[2].ID)
	}
	if asks[0].Price != 50 {
		t.Errorf("expected lowest ask first, got %d", asks[0].Price)
	}
	if asks[1].ID != 4 || asks[2].ID != 6 {
		t.Errorf("equal-price asks not in time order: got %d, %d", asks[1].ID, asks[2].ID)
	}
}

func TestBook_Remove(t *testing.T) {
	b := New()
	base := time.Now()
	b.Insert(openOrder(1, 1, models.SideBid, 30, base))
	b.Insert(openOrder(2, 2, models.SideAsk, 50, base))

	tests := []struct {
		name          string
		orderID       int64
		expectRemoved bool
	}{
		{name: "RemoveBid", orderID: 1, expectRemoved: true},
		{name: "RemoveAsk", orderID: 2, expectRemoved: true},
		{name: "NonExistent", orderID: 999, expectRemoved: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			removed := b.Remove(tt.orderID)
			if removed != tt.expectRemoved {
				t.Errorf("expected removed=%v, got %v", tt.expectRemoved, removed)
			}
			bids, asks := b.Orders()
			for _, o := range append(bids, asks...) {
				if o.ID == tt.orderID {
					t.Errorf("order %d still in book", tt.orderID)
				}
			}
		})
	}
}

func TestBook_Rebuild(t *testing.T) {
	b := New()
	b.Insert(openOrder(99, 9, models.SideBid, 10, time.Now()))

	base := time.Now()
	b.Rebuild([]models.Order{
		openOrder(1, 1, models.SideAsk, 50, base),
		openOrder(2, 2, models.SideBid, 30, base),
		{ID: 3, UserID: 3, Side: models.SideBid, Price: 40, Status: models.StatusFilled, CreatedAt: base},
	})

	bids, asks := b.Orders()
	if len(bids) != 1 || bids[0].ID != 2 {
		t.Errorf("expected only open bid 2 after rebuild, got %v", bids)
	}
	if len(asks) != 1 || asks[0].ID != 1 {
		t.Errorf("expected only open ask 1 after rebuild, got %v", asks)
	}
}

func TestBook_SnapshotAggregation(t *testing.T) {
	b := New()
	base := time.Now()
	b.Insert(openOrder(1, 1, models.SideBid, 30, base))
	b.Insert(openOrder(2, 2, models.SideBid, 30, base.Add(time.Second)))
	b.Insert(openOrder(3, 3, models.SideBid, 20, base))
	b.Insert(openOrder(4, 4, models.SideBid, 10, base))
	b.Insert(openOrder(5, 5, models.SideAsk, 50, base))

	snap := b.Snapshot(2)

	if len(snap.Bids) != 2 {
		t.Fatalf("expected 2 bid levels at depth 2, got %d", len(snap.Bids))
	}
	if snap.Bids[0].Price != 30 || snap.Bids[0].Count != 2 {
		t.Errorf("expected level (30, 2), got (%d, %d)", snap.Bids[0].Price, snap.Bids[0].Count)
	}
	if snap.Bids[1].Price != 20 || snap.Bids[1].Count != 1 {
		t.Errorf("expected level (20, 1), got (%d, %d)", snap.Bids[1].Price, snap.Bids[1].Count)
	}
	if len(snap.Asks) != 1 || snap.Asks[0].Price != 50 {
		t.Errorf("unexpected ask levels: %v", snap.Asks)
	}
}
