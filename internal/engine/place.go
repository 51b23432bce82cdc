package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/ashgrove/scrollmarket/internal/db"
	"github.com/ashgrove/scrollmarket/internal/ledger"
	"github.com/ashgrove/scrollmarket/internal/models"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
)

// errKeyRaced signals that an insert lost a race on the idempotency
// index: the competing order has committed, so rerunning the
// transaction replays it.
var errKeyRaced = errors.New("idempotency key raced with a concurrent insert")

// PlaceResult is the outcome of a place intent. Trade is non-nil when
// the incoming order crossed and filled immediately.
type PlaceResult struct {
	Order   models.Order  `json:"order"`
	Pax     int64         `json:"pax"`
	Scrolls int64         `json:"scrolls"`
	Trade   *models.Trade `json:"trade,omitempty"`
}

// placeOutcome carries what the post-commit book update needs.
type placeOutcome struct {
	result       PlaceResult
	makerOrderID int64 // removed from the index on a fill
	replayed     bool  // idempotency-key hit, index untouched
}

// Place debits the placement fee, escrows the order's asset, and runs
// the match loop against the opposite side. Size is fixed at 1, so at
// most one fill occurs; a crossing order fills at the maker's price and
// never rests. All of it commits atomically or not at all.
func (e *Engine) Place(ctx context.Context, owner int64, side models.Side, price int64, idempotencyKey string) (*PlaceResult, error) {
	if err := e.checkWritable(); err != nil {
		return nil, err
	}
	if !side.Valid() {
		return nil, models.ErrInvalidSide
	}
	if price < models.MinPrice || price > models.MaxPrice {
		return nil, fmt.Errorf("price %d not in [%d, %d]: %w", price, models.MinPrice, models.MaxPrice, models.ErrInvalidPrice)
	}

	var out placeOutcome
	op := func(tx pgx.Tx) error {
		var err error
		out, err = e.placeTx(ctx, tx, owner, side, price, idempotencyKey)
		return err
	}
	err := e.retry(ctx, op)
	if errors.Is(err, errKeyRaced) {
		// The winner has committed; the rerun's lookup replays it.
		err = e.retry(ctx, op)
	}
	if err != nil {
		return nil, err
	}

	if e.book != nil && !out.replayed {
		if out.result.Trade != nil {
			e.book.Remove(out.makerOrderID)
		} else {
			e.book.Insert(out.result.Order)
		}
	}

	if out.replayed {
		return &out.result, nil
	}
	if out.result.Trade != nil {
		e.log.Info("order placed and filled",
			zap.Int64("order_id", out.result.Order.ID),
			zap.String("side", string(side)),
			zap.Int64("limit_price", price),
			zap.Int64("execution_price", out.result.Trade.Price),
			zap.Int64("maker_order_id", out.result.Trade.MakerOrderID))
	} else {
		e.log.Info("order placed and resting",
			zap.Int64("order_id", out.result.Order.ID),
			zap.String("side", string(side)),
			zap.Int64("price", price))
	}
	return &out.result, nil
}

func (e *Engine) placeTx(ctx context.Context, tx pgx.Tx, owner int64, side models.Side, price int64, idempotencyKey string) (placeOutcome, error) {
	var out placeOutcome

	// A retried intent with the same key returns the original order
	// instead of creating another one.
	if idempotencyKey != "" {
		existing, err := e.store.GetOrderByIdempotencyKey(ctx, tx, idempotencyKey)
		if err != nil {
			return out, err
		}
		if existing != nil {
			// A key replays only for the account that coined it.
			if existing.UserID != owner {
				return out, fmt.Errorf("idempotency key already used by another account: %w", models.ErrUnauthorized)
			}
			account, err := e.store.LockAccount(ctx, tx, owner)
			if err != nil {
				return out, err
			}
			out.result = PlaceResult{Order: *existing, Pax: account.Pax, Scrolls: account.Scrolls}
			out.replayed = true
			return out, nil
		}
	}

	// Authoritative checks happen against the locked row; admission's
	// earlier reads were advisory.
	if _, err := e.store.LockAccount(ctx, tx, owner); err != nil {
		return out, err
	}

	order, err := e.store.InsertOrder(ctx, tx, owner, side, price, idempotencyKey)
	if err != nil {
		if db.IsUniqueViolation(err, "idx_orders_idempotency_key") {
			return out, errKeyRaced
		}
		return out, err
	}

	fee := e.policy.Placement(side, price)
	if fee > 0 {
		if err := e.store.InsertFee(ctx, tx, order.ID, models.FeePlacement, fee); err != nil {
			return out, err
		}
	}

	// Fee plus escrow leave the owner in one guarded debit: price pax
	// behind a bid, one scroll behind an ask.
	var escrowPax, escrowScrolls int64
	if side == models.SideBid {
		escrowPax = price
	} else {
		escrowScrolls = 1
	}
	if _, _, err := ledger.Debit(ctx, tx, owner, fee+escrowPax, escrowScrolls); err != nil {
		return out, err
	}

	// Match loop: best price for the incoming order, FIFO within a
	// level, own orders skipped by the query.
	maker, err := e.store.LockBestCounterOrder(ctx, tx, side, price, owner)
	if err != nil {
		return out, err
	}

	var trade *models.Trade
	if maker != nil {
		trade, err = e.settle(ctx, tx, maker, order.ID, owner, side, price)
		if err != nil {
			return out, err
		}
		if err := e.store.SetOrderStatus(ctx, tx, order.ID, models.StatusFilled); err != nil {
			return out, err
		}
		order.Status = models.StatusFilled
		out.makerOrderID = maker.ID
	}

	pax, scrolls, err := e.store.GetBalances(ctx, tx, owner)
	if err != nil {
		return out, err
	}

	out.result = PlaceResult{Order: *order, Pax: pax, Scrolls: scrolls, Trade: trade}
	return out, nil
}

// settle crosses a placed taker order against the locked maker order:
// the scroll moves to the bid side, the execution price moves to the
// ask side, and the bid-escrow residual returns to the bid owner.
// Executes at the maker's price, never the taker's.
func (e *Engine) settle(ctx context.Context, tx pgx.Tx, maker *models.Order, takerOrderID, takerUserID int64, takerSide models.Side, takerLimit int64) (*models.Trade, error) {
	// Both accounts lock in ascending id order.
	if _, err := e.store.LockAccounts(ctx, tx, takerUserID, maker.UserID); err != nil {
		return nil, err
	}

	execPrice := maker.Price

	switch takerSide {
	case models.SideBid:
		// The taker escrowed its limit; the maker ask escrowed the
		// scroll at placement. The maker is paid the execution price,
		// the residual goes back to the taker, the scroll crosses.
		if _, _, err := ledger.Credit(ctx, tx, maker.UserID, execPrice, 0); err != nil {
			return nil, err
		}
		if _, _, err := ledger.Credit(ctx, tx, takerUserID, takerLimit-execPrice, 1); err != nil {
			return nil, err
		}
	case models.SideAsk:
		// The taker escrowed the scroll; the maker bid escrowed its
		// own price, which is the execution price.
		if _, _, err := ledger.Credit(ctx, tx, takerUserID, execPrice, 0); err != nil {
			return nil, err
		}
		if _, _, err := ledger.Credit(ctx, tx, maker.UserID, 0, 1); err != nil {
			return nil, err
		}
	}

	if fee := e.policy.Settlement(execPrice); fee > 0 {
		if _, _, err := ledger.Debit(ctx, tx, takerUserID, fee, 0); err != nil {
			return nil, err
		}
		if err := e.store.InsertFee(ctx, tx, takerOrderID, models.FeeSettlement, fee); err != nil {
			return nil, err
		}
	}

	if err := e.store.SetOrderStatus(ctx, tx, maker.ID, models.StatusFilled); err != nil {
		return nil, err
	}
	return e.store.InsertTrade(ctx, tx, maker.ID, takerOrderID, takerUserID, execPrice)
}
