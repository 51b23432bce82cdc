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

// FulfillResult is the outcome of settling directly against a resting
// order.
type FulfillResult struct {
	Trade   models.Trade `json:"trade"`
	Pax     int64        `json:"pax"`
	Scrolls int64        `json:"scrolls"`
}

// Fulfill settles the caller against a specific resting order at that
// order's price, without inserting a taker order and without the
// placement fee. The order row locks first: concurrent fulfills race on
// that lock and exactly one wins; the loser sees Gone.
func (e *Engine) Fulfill(ctx context.Context, orderID, caller int64) (*FulfillResult, error) {
	if err := e.checkWritable(); err != nil {
		return nil, err
	}

	var res FulfillResult
	err := e.retry(ctx, func(tx pgx.Tx) error {
		order, err := e.store.LockOrder(ctx, tx, orderID)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return models.ErrNotFound
			}
			return err
		}
		if order.Status.Terminal() {
			return fmt.Errorf("order %d is %s: %w", orderID, order.Status, models.ErrGone)
		}
		if order.UserID == caller {
			return fmt.Errorf("cannot fulfill own order: %w", models.ErrUnauthorized)
		}

		if _, err := e.store.LockAccounts(ctx, tx, caller, order.UserID); err != nil {
			return err
		}

		execPrice := order.Price
		if order.Side == models.SideAsk {
			// Caller buys: pays the price, receives the escrowed scroll.
			if _, _, err := ledger.Debit(ctx, tx, caller, execPrice, 0); err != nil {
				return err
			}
			if _, _, err := ledger.Credit(ctx, tx, order.UserID, execPrice, 0); err != nil {
				return err
			}
			if _, _, err := ledger.Credit(ctx, tx, caller, 0, 1); err != nil {
				return err
			}
		} else {
			// Caller sells: hands over a scroll, receives the escrowed
			// bid pax.
			if _, _, err := ledger.Debit(ctx, tx, caller, 0, 1); err != nil {
				return err
			}
			if _, _, err := ledger.Credit(ctx, tx, order.UserID, 0, 1); err != nil {
				return err
			}
			if _, _, err := ledger.Credit(ctx, tx, caller, execPrice, 0); err != nil {
				return err
			}
		}

		if fee := e.policy.Settlement(execPrice); fee > 0 {
			if _, _, err := ledger.Debit(ctx, tx, caller, fee, 0); err != nil {
				return err
			}
			if err := e.store.InsertFee(ctx, tx, order.ID, models.FeeSettlement, fee); err != nil {
				return err
			}
		}

		if err := e.store.SetOrderStatus(ctx, tx, order.ID, models.StatusFilled); err != nil {
			return err
		}
		trade, err := e.store.InsertTrade(ctx, tx, order.ID, 0, caller, execPrice)
		if err != nil {
			return err
		}

		pax, scrolls, err := e.store.GetBalances(ctx, tx, caller)
		if err != nil {
			return err
		}
		res = FulfillResult{Trade: *trade, Pax: pax, Scrolls: scrolls}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if e.book != nil {
		e.book.Remove(orderID)
	}
	e.log.Info("order fulfilled",
		zap.Int64("order_id", orderID),
		zap.Int64("taker", caller),
		zap.Int64("price", res.Trade.Price))
	return &res, nil
}
