// Package book keeps an in-memory price-time index of the open book.
// It is a per-process cache: rebuilt from the store on startup, updated
// after each commit, and never consulted for correctness decisions.
// The engine's match queries go to the store under lock.
package book

import (
	"sort"
	"sync"

	"github.com/ashgrove/scrollmarket/internal/models"
)

// Book holds the open orders of both sides in price-time order.
type Book struct {
	mu   sync.RWMutex
	bids []models.Order
	asks []models.Order
}

// New creates an empty book.
func New() *Book {
	return &Book{
		bids: []models.Order{},
		asks: []models.Order{},
	}
}

// Rebuild replaces the index with the given open orders.
func (b *Book) Rebuild(orders []models.Order) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.bids = b.bids[:0]
	b.asks = b.asks[:0]
	for _, o := range orders {
		if o.Status != models.StatusOpen {
			continue
		}
		if o.Side == models.SideBid {
			b.bids = append(b.bids, o)
		} else {
			b.asks = append(b.asks, o)
		}
	}
	sortBids(b.bids)
	sortAsks(b.asks)
}

// Insert adds an open order to its side of the index.
func (b *Book) Insert(order models.Order) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if order.Side == models.SideBid {
		b.bids = append(b.bids, order)
		sortBids(b.bids)
	} else {
		b.asks = append(b.asks, order)
		sortAsks(b.asks)
	}
}

// Remove drops an order from the index. Returns false if it was not
// present, which is not an error: the store is the source of truth.
func (b *Book) Remove(orderID int64) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, o := range b.bids {
		if o.ID == orderID {
			b.bids = append(b.bids[:i], b.bids[i+1:]...)
			return true
		}
	}
	for i, o := range b.asks {
		if o.ID == orderID {
			b.asks = append(b.asks[:i], b.asks[i+1:]...)
			return true
		}
	}
	return false
}

// Snapshot aggregates the index into the top depth levels per side.
func (b *Book) Snapshot(depth int) models.BookSnapshot {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return models.BookSnapshot{
		Bids: aggregate(b.bids, depth),
		Asks: aggregate(b.asks, depth),
	}
}

// Orders returns copies of both sides in price-time order.
func (b *Book) Orders() (bids, asks []models.Order) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	bids = append([]models.Order{}, b.bids...)
	asks = append([]models.Order{}, b.asks...)
	return bids, asks
}

// aggregate collapses price-time ordered orders into per-price levels.
func aggregate(orders []models.Order, depth int) []models.BookLevel {
	levels := []models.BookLevel{}
	for _, o := range orders {
		if n := len(levels); n > 0 && levels[n-1].Price == o.Price {
			levels[n-1].Count++
			continue
		}
		if len(levels) == depth {
			break
		}
		levels = append(levels, models.BookLevel{Price: o.Price, Count: 1})
	}
	return levels
}

// sortBids orders highest price first, then earliest time.
func sortBids(orders []models.Order) {
	sort.SliceStable(orders, func(i, j int) bool {
		if orders[i].Price == orders[j].Price {
			return orders[i].CreatedAt.Before(orders[j].CreatedAt)
		}
		return orders[i].Price > orders[j].Price
	})
}

// sortAsks orders lowest price first, then earliest time.
func sortAsks(orders []models.Order) {
	sort.SliceStable(orders, func(i, j int) bool {
		if orders[i].Price == orders[j].Price {
			return orders[i].CreatedAt.Before(orders[j].CreatedAt)
		}
		return orders[i].Price < orders[j].Price
	})
}
