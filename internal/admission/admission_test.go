package admission

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/ashgrove/scrollmarket/internal/fees"
	"github.com/ashgrove/scrollmarket/internal/models"
)

// stubStore serves admission reads from fixed maps.
type stubStore struct {
	accounts map[int64]*models.Account
	orders   map[int64]*models.Order
}

func (s *stubStore) GetAccount(ctx context.Context, id int64) (*models.Account, error) {
	account, ok := s.accounts[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return account, nil
}

func (s *stubStore) GetOrder(ctx context.Context, id int64) (*models.Order, error) {
	order, ok := s.orders[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return order, nil
}

func newTestGate() *Gate {
	store := &stubStore{
		accounts: map[int64]*models.Account{
			1: {ID: 1, Username: "alice", Pax: 100, Scrolls: 2},
			2: {ID: 2, Username: "bob", Pax: 100, Scrolls: 0},
			3: {ID: 3, Username: "carol", Pax: 3, Scrolls: 0},
			4: {ID: 4, Username: "dave", Pax: 10, Scrolls: 1},
		},
		orders: map[int64]*models.Order{
			10: {ID: 10, UserID: 1, Side: models.SideAsk, Price: 30, Status: models.StatusOpen, CreatedAt: time.Now()},
			11: {ID: 11, UserID: 1, Side: models.SideBid, Price: 40, Status: models.StatusOpen, CreatedAt: time.Now()},
			12: {ID: 12, UserID: 1, Side: models.SideAsk, Price: 30, Status: models.StatusFilled, CreatedAt: time.Now()},
			13: {ID: 13, UserID: 2, Side: models.SideAsk, Price: 500, Status: models.StatusOpen, CreatedAt: time.Now()},
		},
	}
	return NewGate(store, fees.NewFlat(fees.DefaultPlacementFee))
}

func TestAdmitPlace(t *testing.T) {
	gate := newTestGate()
	ctx := context.Background()

	tests := []struct {
		name      string
		caller    int64
		owner     int64
		side      models.Side
		price     int64
		expectErr error
	}{
		{name: "ValidBid", caller: 2, owner: 2, side: models.SideBid, price: 40},
		{name: "ValidAsk", caller: 1, owner: 1, side: models.SideAsk, price: 30},
		{name: "CallerNotOwner", caller: 1, owner: 2, side: models.SideBid, price: 40, expectErr: models.ErrUnauthorized},
		{name: "InvalidSide", caller: 1, owner: 1, side: "hold", price: 40, expectErr: models.ErrInvalidSide},
		{name: "PriceZero", caller: 1, owner: 1, side: models.SideBid, price: 0, expectErr: models.ErrInvalidPrice},
		{name: "PriceNegative", caller: 1, owner: 1, side: models.SideBid, price: -5, expectErr: models.ErrInvalidPrice},
		{name: "PriceAboveMax", caller: 1, owner: 1, side: models.SideBid, price: models.MaxPrice + 1, expectErr: models.ErrInvalidPrice},
		{name: "PriceAtMax", caller: 1, owner: 1, side: models.SideAsk, price: models.MaxPrice},
		{name: "CannotCoverFee", caller: 3, owner: 3, side: models.SideBid, price: 1, expectErr: models.ErrInsufficientPax},
		{name: "BidExceedsPaxWithFee", caller: 2, owner: 2, side: models.SideBid, price: 96, expectErr: models.ErrInsufficientPax},
		{name: "BidExactlyCovered", caller: 2, owner: 2, side: models.SideBid, price: 95},
		{name: "AskWithoutScroll", caller: 2, owner: 2, side: models.SideAsk, price: 30, expectErr: models.ErrInsufficientScrolls},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := gate.AdmitPlace(ctx, tt.caller, tt.owner, tt.side, tt.price)
			if tt.expectErr == nil {
				if err != nil {
					t.Fatalf("expected admit, got %v", err)
				}
				return
			}
			if !errors.Is(err, tt.expectErr) {
				t.Fatalf("expected %v, got %v", tt.expectErr, err)
			}
		})
	}
}

func TestAdmitCancel(t *testing.T) {
	gate := newTestGate()
	ctx := context.Background()

	tests := []struct {
		name      string
		orderID   int64
		caller    int64
		expectErr error
	}{
		{name: "OwnerCancelsOpen", orderID: 10, caller: 1},
		{name: "MissingOrder", orderID: 999, caller: 1, expectErr: models.ErrNotFound},
		{name: "TerminalOrder", orderID: 12, caller: 1, expectErr: models.ErrNotFound},
		{name: "NotOwner", orderID: 10, caller: 2, expectErr: models.ErrUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := gate.AdmitCancel(ctx, tt.orderID, tt.caller)
			if tt.expectErr == nil {
				if err != nil {
					t.Fatalf("expected admit, got %v", err)
				}
				return
			}
			if !errors.Is(err, tt.expectErr) {
				t.Fatalf("expected %v, got %v", tt.expectErr, err)
			}
		})
	}
}

func TestAdmitFulfill(t *testing.T) {
	gate := newTestGate()
	ctx := context.Background()

	tests := []struct {
		name      string
		orderID   int64
		caller    int64
		expectErr error
	}{
		{name: "BuyRestingAsk", orderID: 10, caller: 2},
		{name: "SellIntoRestingBidNoScroll", orderID: 11, caller: 2, expectErr: models.ErrInsufficientScrolls},
		{name: "SellIntoRestingBidWithScroll", orderID: 11, caller: 4},
		{name: "MissingOrder", orderID: 999, caller: 2, expectErr: models.ErrNotFound},
		{name: "TerminalOrder", orderID: 12, caller: 2, expectErr: models.ErrGone},
		{name: "OwnOrder", orderID: 10, caller: 1, expectErr: models.ErrUnauthorized},
		{name: "AskTooExpensive", orderID: 13, caller: 1, expectErr: models.ErrInsufficientPax},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := gate.AdmitFulfill(ctx, tt.orderID, tt.caller)
			if tt.expectErr == nil {
				if err != nil {
					t.Fatalf("expected admit, got %v", err)
				}
				return
			}
			if !errors.Is(err, tt.expectErr) {
				t.Fatalf("expected %v, got %v", tt.expectErr, err)
			}
		})
	}
}
