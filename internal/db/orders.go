package db

import (
	"context"
	"fmt"

	"github.com/ashgrove/scrollmarket/internal/models"

	"github.com/jackc/pgx/v5"
)

const orderColumns = "id, user_id, side, price, status, COALESCE(idempotency_key, ''), created_at"

func scanOrder(row pgx.Row) (*models.Order, error) {
	o := &models.Order{}
	err := row.Scan(&o.ID, &o.UserID, &o.Side, &o.Price, &o.Status, &o.IdempotencyKey, &o.CreatedAt)
	if err != nil {
		return nil, err
	}
	return o, nil
}

// InsertOrder inserts a new open order inside the engine's transaction.
func (db *DB) InsertOrder(ctx context.Context, tx pgx.Tx, userID int64, side models.Side, price int64, idempotencyKey string) (*models.Order, error) {
	var key any
	if idempotencyKey != "" {
		key = idempotencyKey
	}
	o, err := scanOrder(tx.QueryRow(ctx,
		"INSERT INTO orders (user_id, side, price, status, idempotency_key) VALUES ($1, $2, $3, 'open', $4) RETURNING "+orderColumns,
		userID, side, price, key))
	if err != nil {
		return nil, fmt.Errorf("failed to insert order: %w", err)
	}
	return o, nil
}

// GetOrder retrieves an order by id without locking.
func (db *DB) GetOrder(ctx context.Context, id int64) (*models.Order, error) {
	o, err := scanOrder(db.Pool.QueryRow(ctx,
		"SELECT "+orderColumns+" FROM orders WHERE id = $1", id))
	if err != nil {
		return nil, fmt.Errorf("failed to get order: %w", err)
	}
	return o, nil
}

// GetOrderByIdempotencyKey returns the order previously created with
// the given key, if any.
func (db *DB) GetOrderByIdempotencyKey(ctx context.Context, tx pgx.Tx, key string) (*models.Order, error) {
	o, err := scanOrder(tx.QueryRow(ctx,
		"SELECT "+orderColumns+" FROM orders WHERE idempotency_key = $1", key))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to look up idempotency key: %w", err)
	}
	return o, nil
}

// LockOrder acquires a row lock on the order. Returns pgx.ErrNoRows
// (wrapped) if it does not exist.
func (db *DB) LockOrder(ctx context.Context, tx pgx.Tx, id int64) (*models.Order, error) {
	o, err := scanOrder(tx.QueryRow(ctx,
		"SELECT "+orderColumns+" FROM orders WHERE id = $1 FOR UPDATE", id))
	if err != nil {
		return nil, fmt.Errorf("failed to lock order %d: %w", id, err)
	}
	return o, nil
}

// LockBestCounterOrder locks the resting order an incoming taker should
// match: the best-priced open order on the opposite side that crosses
// limitPrice, oldest first at a level, skipping the taker's own orders.
// Returns nil when nothing crosses.
func (db *DB) LockBestCounterOrder(ctx context.Context, tx pgx.Tx, takerSide models.Side, limitPrice, takerUserID int64) (*models.Order, error) {
	var query string
	if takerSide == models.SideBid {
		// Incoming bid crosses any ask at or below its limit; best for
		// the bid is the lowest ask.
		query = "SELECT " + orderColumns + ` FROM orders
			WHERE status = 'open' AND side = 'ask' AND price <= $1 AND user_id <> $2
			ORDER BY price ASC, created_at ASC, id ASC
			LIMIT 1 FOR UPDATE`
	} else {
		query = "SELECT " + orderColumns + ` FROM orders
			WHERE status = 'open' AND side = 'bid' AND price >= $1 AND user_id <> $2
			ORDER BY price DESC, created_at ASC, id ASC
			LIMIT 1 FOR UPDATE`
	}
	o, err := scanOrder(tx.QueryRow(ctx, query, limitPrice, takerUserID))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to lock counter order: %w", err)
	}
	return o, nil
}

// SetOrderStatus moves an order to a terminal state.
func (db *DB) SetOrderStatus(ctx context.Context, tx pgx.Tx, id int64, status models.Status) error {
	tag, err := tx.Exec(ctx, "UPDATE orders SET status = $1 WHERE id = $2", status, id)
	if err != nil {
		return fmt.Errorf("failed to update order status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("order %d: %w", id, pgx.ErrNoRows)
	}
	return nil
}

// GetOpenOrders retrieves all open orders, oldest first. Used to
// rebuild the in-memory book index on startup.
func (db *DB) GetOpenOrders(ctx context.Context) ([]models.Order, error) {
	rows, err := db.Pool.Query(ctx,
		"SELECT "+orderColumns+" FROM orders WHERE status = 'open' ORDER BY created_at ASC, id ASC")
	if err != nil {
		return nil, fmt.Errorf("failed to get open orders: %w", err)
	}
	defer rows.Close()
	return collectOrders(rows)
}

// UserOrders retrieves orders owned by userID whose status is in
// states, newest first. An empty states slice means all statuses.
func (db *DB) UserOrders(ctx context.Context, userID int64, states []models.Status) ([]models.Order, error) {
	if len(states) == 0 {
		states = []models.Status{models.StatusOpen, models.StatusFilled, models.StatusCancelled}
	}
	rows, err := db.Pool.Query(ctx,
		"SELECT "+orderColumns+" FROM orders WHERE user_id = $1 AND status = ANY($2) ORDER BY created_at DESC, id DESC",
		userID, states)
	if err != nil {
		return nil, fmt.Errorf("failed to get user orders: %w", err)
	}
	defer rows.Close()
	return collectOrders(rows)
}

func collectOrders(rows pgx.Rows) ([]models.Order, error) {
	var orders []models.Order
	for rows.Next() {
		var o models.Order
		if err := rows.Scan(&o.ID, &o.UserID, &o.Side, &o.Price, &o.Status, &o.IdempotencyKey, &o.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan order: %w", err)
		}
		orders = append(orders, o)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return orders, nil
}

// BookSnapshot aggregates open orders into the top depth levels per
// side. Reads see the latest committed write; writers are not blocked.
func (db *DB) BookSnapshot(ctx context.Context, depth int) (*models.BookSnapshot, error) {
	snap := &models.BookSnapshot{
		Bids: []models.BookLevel{},
		Asks: []models.BookLevel{},
	}
	for _, side := range []models.Side{models.SideBid, models.SideAsk} {
		dir := "DESC"
		if side == models.SideAsk {
			dir = "ASC"
		}
		rows, err := db.Pool.Query(ctx,
			`SELECT price, COUNT(*) FROM orders
			 WHERE status = 'open' AND side = $1
			 GROUP BY price ORDER BY price `+dir+` LIMIT $2`,
			side, depth)
		if err != nil {
			return nil, fmt.Errorf("failed to query book snapshot: %w", err)
		}
		levels, err := collectLevels(rows)
		if err != nil {
			return nil, err
		}
		if side == models.SideBid {
			snap.Bids = levels
		} else {
			snap.Asks = levels
		}
	}
	return snap, nil
}

func collectLevels(rows pgx.Rows) ([]models.BookLevel, error) {
	defer rows.Close()
	levels := []models.BookLevel{}
	for rows.Next() {
		var l models.BookLevel
		if err := rows.Scan(&l.Price, &l.Count); err != nil {
			return nil, fmt.Errorf("failed to scan book level: %w", err)
		}
		levels = append(levels, l)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return levels, nil
}
