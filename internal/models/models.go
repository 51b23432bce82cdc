package models

import "time"

// Side of an order in the scroll market.
type Side string

const (
	SideBid Side = "bid"
	SideAsk Side = "ask"
)

// Opposite returns the counterparty side.
func (s Side) Opposite() Side {
	if s == SideBid {
		return SideAsk
	}
	return SideBid
}

// Valid reports whether s is a known side.
func (s Side) Valid() bool {
	return s == SideBid || s == SideAsk
}

// Status of an order. Open is the only state in which escrow is held;
// filled and cancelled are terminal.
type Status string

const (
	StatusOpen      Status = "open"
	StatusFilled    Status = "filled"
	StatusCancelled Status = "cancelled"
)

// Terminal reports whether the status admits no further transitions.
func (s Status) Terminal() bool {
	return s == StatusFilled || s == StatusCancelled
}

// Price bounds for orders, in pax.
const (
	MinPrice int64 = 1
	MaxPrice int64 = 1_000_000_000
)

// Account holds a user's authoritative balances: pax (currency) and
// scrolls (the single tradable item). Both are non-negative integers.
type Account struct {
	ID           int64     `json:"id"`
	Username     string    `json:"username"`
	PasswordHash string    `json:"-"`
	Pax          int64     `json:"pax"`
	Scrolls      int64     `json:"scrolls"`
	CreatedAt    time.Time `json:"created_at"`
}

// Order is a resting or terminal intent to trade one scroll at a fixed
// price. Size is always 1.
type Order struct {
	ID             int64     `json:"id"`
	UserID         int64     `json:"user_id"`
	Side           Side      `json:"side"`
	Price          int64     `json:"price"`
	Status         Status    `json:"status"`
	IdempotencyKey string    `json:"-"`
	CreatedAt      time.Time `json:"created_at"` // time priority at a price level
}

// Trade records a settled match. TakerOrderID is zero when the taker
// settled through fulfill and never had an order row of its own.
type Trade struct {
	ID           int64     `json:"id"`
	MakerOrderID int64     `json:"maker_order_id"`
	TakerOrderID int64     `json:"taker_order_id,omitempty"`
	TakerUserID  int64     `json:"taker_user_id"`
	Price        int64     `json:"price"`
	ExecutedAt   time.Time `json:"executed_at"`
}

// FeeKind distinguishes the non-refundable placement fee from
// settlement fees.
type FeeKind string

const (
	FeePlacement  FeeKind = "placement"
	FeeSettlement FeeKind = "settlement"
)

// FeeRecord is an append-only record of a collected fee.
type FeeRecord struct {
	ID        int64     `json:"id"`
	OrderID   int64     `json:"order_id"`
	Kind      FeeKind   `json:"kind"`
	Amount    int64     `json:"amount"`
	CreatedAt time.Time `json:"created_at"`
}

// BookLevel is one aggregated price level of the book snapshot.
type BookLevel struct {
	Price int64 `json:"price"`
	Count int64 `json:"count"`
}

// BookSnapshot is the read-side view of the book: top levels per side,
// bids descending on price, asks ascending.
type BookSnapshot struct {
	Bids []BookLevel `json:"bids"`
	Asks []BookLevel `json:"asks"`
}
