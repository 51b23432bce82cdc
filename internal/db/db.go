package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/ashgrove/scrollmarket/internal/models"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// DB wraps a PostgreSQL connection pool. The database is the sole
// source of truth; in-memory indexes are rebuilt from it on startup.
type DB struct {
	Pool *pgxpool.Pool
}

// NewDB initializes a new database connection pool.
func NewDB(ctx context.Context, connString string) (*DB, error) {
	pool, err := pgxpool.New(ctx, connString)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	return &DB{Pool: pool}, nil
}

// Close closes the database connection pool.
func (db *DB) Close() {
	db.Pool.Close()
}

// WithTx runs fn inside a transaction, rolling back on error.
func (db *DB) WithTx(ctx context.Context, fn func(pgx.Tx) error) error {
	tx, err := db.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// IsRetryable reports whether err is a transient serialization or
// deadlock failure that a fresh transaction may get past.
func IsRetryable(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		// 40001 serialization_failure, 40P01 deadlock_detected
		return pgErr.Code == "40001" || pgErr.Code == "40P01"
	}
	return false
}

// IsUniqueViolation reports whether err is a unique violation on the
// named constraint.
func IsUniqueViolation(err error, constraint string) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505" && pgErr.ConstraintName == constraint
}

const accountColumns = "id, username, password_hash, pax, scrolls, created_at"

func scanAccount(row pgx.Row) (*models.Account, error) {
	a := &models.Account{}
	err := row.Scan(&a.ID, &a.Username, &a.PasswordHash, &a.Pax, &a.Scrolls, &a.CreatedAt)
	if err != nil {
		return nil, err
	}
	return a, nil
}

// CreateAccount inserts a new account with zero balances.
func (db *DB) CreateAccount(ctx context.Context, username, passwordHash string) (*models.Account, error) {
	a, err := scanAccount(db.Pool.QueryRow(ctx,
		"INSERT INTO users (username, password_hash) VALUES ($1, $2) RETURNING "+accountColumns,
		username, passwordHash))
	if err != nil {
		return nil, fmt.Errorf("failed to create account: %w", err)
	}
	return a, nil
}

// GetAccount retrieves an account by id.
func (db *DB) GetAccount(ctx context.Context, id int64) (*models.Account, error) {
	a, err := scanAccount(db.Pool.QueryRow(ctx,
		"SELECT "+accountColumns+" FROM users WHERE id = $1", id))
	if err != nil {
		return nil, fmt.Errorf("failed to get account: %w", err)
	}
	return a, nil
}

// GetAccountByUsername retrieves an account by username.
func (db *DB) GetAccountByUsername(ctx context.Context, username string) (*models.Account, error) {
	a, err := scanAccount(db.Pool.QueryRow(ctx,
		"SELECT "+accountColumns+" FROM users WHERE username = $1", username))
	if err != nil {
		return nil, fmt.Errorf("failed to get account: %w", err)
	}
	return a, nil
}

// GetBalances reads an account's balances inside the caller's
// transaction, typically after settlement writes.
func (db *DB) GetBalances(ctx context.Context, tx pgx.Tx, id int64) (pax, scrolls int64, err error) {
	err = tx.QueryRow(ctx,
		"SELECT pax, scrolls FROM users WHERE id = $1", id).Scan(&pax, &scrolls)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to read balances for account %d: %w", id, err)
	}
	return pax, scrolls, nil
}

// LockAccount acquires a row lock on a single account and returns its
// current balances.
func (db *DB) LockAccount(ctx context.Context, tx pgx.Tx, id int64) (*models.Account, error) {
	a, err := scanAccount(tx.QueryRow(ctx,
		"SELECT "+accountColumns+" FROM users WHERE id = $1 FOR UPDATE", id))
	if err != nil {
		return nil, fmt.Errorf("failed to lock account %d: %w", id, err)
	}
	return a, nil
}

// LockAccounts acquires row locks on the given accounts in ascending id
// order so that concurrent settlements cannot deadlock on each other.
func (db *DB) LockAccounts(ctx context.Context, tx pgx.Tx, ids ...int64) (map[int64]*models.Account, error) {
	rows, err := tx.Query(ctx,
		"SELECT "+accountColumns+" FROM users WHERE id = ANY($1) ORDER BY id FOR UPDATE", ids)
	if err != nil {
		return nil, fmt.Errorf("failed to lock accounts: %w", err)
	}
	defer rows.Close()

	accounts := make(map[int64]*models.Account, len(ids))
	for rows.Next() {
		a := &models.Account{}
		if err := rows.Scan(&a.ID, &a.Username, &a.PasswordHash, &a.Pax, &a.Scrolls, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan account: %w", err)
		}
		accounts[a.ID] = a
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for _, id := range ids {
		if _, ok := accounts[id]; !ok {
			return nil, fmt.Errorf("account %d: %w", id, pgx.ErrNoRows)
		}
	}
	return accounts, nil
}
