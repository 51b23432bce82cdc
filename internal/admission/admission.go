// Package admission validates intents before they reach the engine.
// Its reads are dry and non-authoritative: the engine re-verifies every
// condition under lock. Admission exists to cheaply reject the obvious.
package admission

import (
	"context"
	"errors"
	"fmt"

	"github.com/ashgrove/scrollmarket/internal/fees"
	"github.com/ashgrove/scrollmarket/internal/models"

	"github.com/jackc/pgx/v5"
)

// Store is the read surface admission needs.
type Store interface {
	GetAccount(ctx context.Context, id int64) (*models.Account, error)
	GetOrder(ctx context.Context, id int64) (*models.Order, error)
}

// Gate admits or rejects intents. No durable state is mutated.
type Gate struct {
	store  Store
	policy fees.Policy
}

// NewGate creates an admission gate.
func NewGate(store Store, policy fees.Policy) *Gate {
	return &Gate{store: store, policy: policy}
}

// AdmitPlace checks a place intent: caller identity, side, price range,
// and a best-effort funds/inventory read.
func (g *Gate) AdmitPlace(ctx context.Context, caller, owner int64, side models.Side, price int64) error {
	if caller != owner {
		return models.ErrUnauthorized
	}
	if !side.Valid() {
		return models.ErrInvalidSide
	}
	if price < models.MinPrice || price > models.MaxPrice {
		return fmt.Errorf("price %d not in [%d, %d]: %w", price, models.MinPrice, models.MaxPrice, models.ErrInvalidPrice)
	}

	account, err := g.store.GetAccount(ctx, owner)
	if err != nil {
		return fmt.Errorf("admission read failed: %w", err)
	}

	fee := g.policy.Placement(side, price)
	if account.Pax < fee {
		return fmt.Errorf("placement fee is %d pax: %w", fee, models.ErrInsufficientPax)
	}
	switch side {
	case models.SideBid:
		// The bid escrows price on top of the fee.
		if account.Pax < price+fee {
			return fmt.Errorf("bid needs %d pax including fee: %w", price+fee, models.ErrInsufficientPax)
		}
	case models.SideAsk:
		if account.Scrolls < 1 {
			return models.ErrInsufficientScrolls
		}
	}
	return nil
}

// AdmitCancel checks that an open order exists and the caller owns it.
func (g *Gate) AdmitCancel(ctx context.Context, orderID, caller int64) error {
	order, err := g.store.GetOrder(ctx, orderID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.ErrNotFound
		}
		return fmt.Errorf("admission read failed: %w", err)
	}
	if order.Status != models.StatusOpen {
		return models.ErrNotFound
	}
	if order.UserID != caller {
		return models.ErrUnauthorized
	}
	return nil
}

// AdmitFulfill checks that the resting order is open, not the caller's
// own, and that the caller holds the counterparty asset.
func (g *Gate) AdmitFulfill(ctx context.Context, orderID, caller int64) error {
	order, err := g.store.GetOrder(ctx, orderID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.ErrNotFound
		}
		return fmt.Errorf("admission read failed: %w", err)
	}
	if order.Status != models.StatusOpen {
		return models.ErrGone
	}
	if order.UserID == caller {
		return models.ErrUnauthorized
	}

	account, err := g.store.GetAccount(ctx, caller)
	if err != nil {
		return fmt.Errorf("admission read failed: %w", err)
	}
	if order.Side == models.SideBid {
		// Selling into a resting bid requires a scroll.
		if account.Scrolls < 1 {
			return models.ErrInsufficientScrolls
		}
	} else {
		// Buying from a resting ask requires the full price.
		if account.Pax < order.Price {
			return fmt.Errorf("ask costs %d pax: %w", order.Price, models.ErrInsufficientPax)
		}
	}
	return nil
}
