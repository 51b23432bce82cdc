// Package ledger provides the balance primitives the engine settles
// with. All amounts are integers; every mutation runs inside the
// caller's transaction against rows the caller has already locked.
package ledger

import (
	"context"
	"fmt"

	"github.com/ashgrove/scrollmarket/internal/models"

	"github.com/jackc/pgx/v5"
)

// Debit removes pax and scrolls from an account, failing with the
// deficient resource named if either balance would go negative. The
// guard lives in the UPDATE itself so the CHECK constraint is never the
// only line of defense.
func Debit(ctx context.Context, tx pgx.Tx, accountID, pax, scrolls int64) (newPax, newScrolls int64, err error) {
	err = tx.QueryRow(ctx,
		`UPDATE users SET pax = pax - $1, scrolls = scrolls - $2
		 WHERE id = $3 AND pax >= $1 AND scrolls >= $2
		 RETURNING pax, scrolls`,
		pax, scrolls, accountID).Scan(&newPax, &newScrolls)
	if err == pgx.ErrNoRows {
		// Name the resource that fell short.
		var havePax, haveScrolls int64
		if lookErr := tx.QueryRow(ctx,
			"SELECT pax, scrolls FROM users WHERE id = $1", accountID).Scan(&havePax, &haveScrolls); lookErr != nil {
			return 0, 0, fmt.Errorf("failed to read account %d: %w", accountID, lookErr)
		}
		if havePax < pax {
			return 0, 0, fmt.Errorf("account %d has %d pax, needs %d: %w",
				accountID, havePax, pax, models.ErrInsufficientPax)
		}
		return 0, 0, fmt.Errorf("account %d has %d scrolls, needs %d: %w",
			accountID, haveScrolls, scrolls, models.ErrInsufficientScrolls)
	}
	if err != nil {
		return 0, 0, fmt.Errorf("failed to debit account %d: %w", accountID, err)
	}
	return newPax, newScrolls, nil
}

// Credit adds pax and scrolls to an account. Arithmetically infallible;
// fails only on I/O.
func Credit(ctx context.Context, tx pgx.Tx, accountID, pax, scrolls int64) (newPax, newScrolls int64, err error) {
	err = tx.QueryRow(ctx,
		"UPDATE users SET pax = pax + $1, scrolls = scrolls + $2 WHERE id = $3 RETURNING pax, scrolls",
		pax, scrolls, accountID).Scan(&newPax, &newScrolls)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to credit account %d: %w", accountID, err)
	}
	return newPax, newScrolls, nil
}

// Transfer moves pax and scrolls between two accounts, acquiring both
// row locks in ascending id order to avoid deadlock.
func Transfer(ctx context.Context, tx pgx.Tx, from, to, pax, scrolls int64) error {
	lo, hi := from, to
	if lo > hi {
		lo, hi = hi, lo
	}
	rows, err := tx.Query(ctx,
		"SELECT id FROM users WHERE id IN ($1, $2) ORDER BY id FOR UPDATE", lo, hi)
	if err != nil {
		return fmt.Errorf("failed to lock accounts %d, %d: %w", lo, hi, err)
	}
	var locked int
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return fmt.Errorf("failed to scan account id: %w", err)
		}
		locked++
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}
	if locked != 2 {
		return fmt.Errorf("transfer %d -> %d: %w", from, to, pgx.ErrNoRows)
	}

	if _, _, err := Debit(ctx, tx, from, pax, scrolls); err != nil {
		return err
	}
	if _, _, err := Credit(ctx, tx, to, pax, scrolls); err != nil {
		return err
	}
	return nil
}
