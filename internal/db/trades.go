package db

import (
	"context"
	"fmt"

	"github.com/ashgrove/scrollmarket/internal/models"

	"github.com/jackc/pgx/v5"
)

// InsertTrade appends a trade inside the engine's transaction.
// takerOrderID of zero records a fulfill settlement with no taker
// order row.
func (db *DB) InsertTrade(ctx context.Context, tx pgx.Tx, makerOrderID, takerOrderID, takerUserID, price int64) (*models.Trade, error) {
	var takerOrder any
	if takerOrderID != 0 {
		takerOrder = takerOrderID
	}
	t := &models.Trade{}
	var scannedTaker *int64
	err := tx.QueryRow(ctx,
		`INSERT INTO trades (maker_order_id, taker_order_id, taker_user_id, price)
		 VALUES ($1, $2, $3, $4)
		 RETURNING id, maker_order_id, taker_order_id, taker_user_id, price, executed_at`,
		makerOrderID, takerOrder, takerUserID, price).Scan(
		&t.ID, &t.MakerOrderID, &scannedTaker, &t.TakerUserID, &t.Price, &t.ExecutedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to insert trade: %w", err)
	}
	if scannedTaker != nil {
		t.TakerOrderID = *scannedTaker
	}
	return t, nil
}

// UserTrades retrieves the trades a user participated in, newest first.
func (db *DB) UserTrades(ctx context.Context, userID int64) ([]models.Trade, error) {
	rows, err := db.Pool.Query(ctx,
		`SELECT t.id, t.maker_order_id, t.taker_order_id, t.taker_user_id, t.price, t.executed_at
		 FROM trades t
		 JOIN orders m ON t.maker_order_id = m.id
		 WHERE m.user_id = $1 OR t.taker_user_id = $1
		 ORDER BY t.executed_at DESC, t.id DESC`,
		userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get user trades: %w", err)
	}
	defer rows.Close()

	var trades []models.Trade
	for rows.Next() {
		var t models.Trade
		var taker *int64
		if err := rows.Scan(&t.ID, &t.MakerOrderID, &taker, &t.TakerUserID, &t.Price, &t.ExecutedAt); err != nil {
			return nil, fmt.Errorf("failed to scan trade: %w", err)
		}
		if taker != nil {
			t.TakerOrderID = *taker
		}
		trades = append(trades, t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return trades, nil
}

// CountTrades returns the total number of settled trades.
func (db *DB) CountTrades(ctx context.Context) (int64, error) {
	var n int64
	if err := db.Pool.QueryRow(ctx, "SELECT COUNT(*) FROM trades").Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count trades: %w", err)
	}
	return n, nil
}

// InsertFee appends a fee record inside the engine's transaction.
func (db *DB) InsertFee(ctx context.Context, tx pgx.Tx, orderID int64, kind models.FeeKind, amount int64) error {
	_, err := tx.Exec(ctx,
		"INSERT INTO fees (order_id, kind, amount) VALUES ($1, $2, $3)",
		orderID, kind, amount)
	if err != nil {
		return fmt.Errorf("failed to insert fee record: %w", err)
	}
	return nil
}

// OrderFees retrieves the fee records attached to an order.
func (db *DB) OrderFees(ctx context.Context, orderID int64) ([]models.FeeRecord, error) {
	rows, err := db.Pool.Query(ctx,
		"SELECT id, order_id, kind, amount, created_at FROM fees WHERE order_id = $1 ORDER BY id",
		orderID)
	if err != nil {
		return nil, fmt.Errorf("failed to get order fees: %w", err)
	}
	defer rows.Close()

	var fees []models.FeeRecord
	for rows.Next() {
		var f models.FeeRecord
		if err := rows.Scan(&f.ID, &f.OrderID, &f.Kind, &f.Amount, &f.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan fee record: %w", err)
		}
		fees = append(fees, f)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return fees, nil
}
