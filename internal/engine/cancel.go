package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/ashgrove/scrollmarket/internal/ledger"
	"github.com/ashgrove/scrollmarket/internal/models"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
)

// CancelResult reports the owner's balances after the escrow release.
type CancelResult struct {
	Pax     int64 `json:"pax"`
	Scrolls int64 `json:"scrolls"`
}

// Cancel releases an open order's escrow back to its owner and moves it
// to cancelled. The placement fee is not refunded.
func (e *Engine) Cancel(ctx context.Context, orderID, caller int64) (*CancelResult, error) {
	if err := e.checkWritable(); err != nil {
		return nil, err
	}

	var res CancelResult
	err := e.retry(ctx, func(tx pgx.Tx) error {
		order, err := e.store.LockOrder(ctx, tx, orderID)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return models.ErrNotFound
			}
			return err
		}
		if order.UserID != caller {
			return models.ErrUnauthorized
		}
		if order.Status.Terminal() {
			return fmt.Errorf("order %d is %s: %w", orderID, order.Status, models.ErrAlreadyTerminal)
		}

		if _, err := e.store.LockAccount(ctx, tx, caller); err != nil {
			return err
		}

		var pax, scrolls int64
		if order.Side == models.SideBid {
			pax, scrolls, err = ledger.Credit(ctx, tx, caller, order.Price, 0)
		} else {
			pax, scrolls, err = ledger.Credit(ctx, tx, caller, 0, 1)
		}
		if err != nil {
			return err
		}

		if err := e.store.SetOrderStatus(ctx, tx, orderID, models.StatusCancelled); err != nil {
			return err
		}
		res = CancelResult{Pax: pax, Scrolls: scrolls}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if e.book != nil {
		e.book.Remove(orderID)
	}
	e.log.Info("order cancelled",
		zap.Int64("order_id", orderID),
		zap.Int64("caller", caller))
	return &res, nil
}
