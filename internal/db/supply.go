package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// SupplyTotals are the recorded issuance totals the conservation
// invariants are audited against.
type SupplyTotals struct {
	PaxIssued     int64
	ScrollsMinted int64
}

// AddSupply records newly minted pax and scrolls. Called only from the
// engine's Fund path, in the same transaction as the account credit.
func (db *DB) AddSupply(ctx context.Context, tx pgx.Tx, pax, scrolls int64) error {
	_, err := tx.Exec(ctx,
		"UPDATE supply SET pax_issued = pax_issued + $1, scrolls_minted = scrolls_minted + $2 WHERE id = 1",
		pax, scrolls)
	if err != nil {
		return fmt.Errorf("failed to update supply totals: %w", err)
	}
	return nil
}

// GetSupply reads the issuance totals.
func (db *DB) GetSupply(ctx context.Context) (SupplyTotals, error) {
	var s SupplyTotals
	err := db.Pool.QueryRow(ctx,
		"SELECT pax_issued, scrolls_minted FROM supply WHERE id = 1").Scan(&s.PaxIssued, &s.ScrollsMinted)
	if err != nil {
		return s, fmt.Errorf("failed to get supply totals: %w", err)
	}
	return s, nil
}

// ReconcileSnapshot reads the supply totals and ledger sums from one
// repeatable-read snapshot so concurrent commits cannot skew the audit.
func (db *DB) ReconcileSnapshot(ctx context.Context) (SupplyTotals, LedgerSums, error) {
	var supply SupplyTotals
	var sums LedgerSums

	tx, err := db.Pool.BeginTx(ctx, pgx.TxOptions{
		IsoLevel:   pgx.RepeatableRead,
		AccessMode: pgx.ReadOnly,
	})
	if err != nil {
		return supply, sums, fmt.Errorf("failed to begin snapshot transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := tx.QueryRow(ctx,
		"SELECT pax_issued, scrolls_minted FROM supply WHERE id = 1").Scan(&supply.PaxIssued, &supply.ScrollsMinted); err != nil {
		return supply, sums, fmt.Errorf("failed to read supply totals: %w", err)
	}
	if err := tx.QueryRow(ctx, ledgerSumsQuery).Scan(
		&sums.PaxHeld, &sums.ScrollsHeld, &sums.OpenBidEscrow, &sums.OpenAskCount,
		&sums.FeesCollected, &sums.MinPax, &sums.MinScrolls); err != nil {
		return supply, sums, fmt.Errorf("failed to compute ledger sums: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return supply, sums, fmt.Errorf("failed to close snapshot transaction: %w", err)
	}
	return supply, sums, nil
}

// LedgerSums is a point-in-time aggregation of all conserved quantities.
// Scroll conservation (held + ask escrow = minted) and pax conservation
// (held + bid escrow + fees = issued) are checked against SupplyTotals.
type LedgerSums struct {
	PaxHeld       int64 // sum of account pax balances
	ScrollsHeld   int64 // sum of account scroll counts
	OpenBidEscrow int64 // sum of price over open bids
	OpenAskCount  int64 // count of open asks, one scroll escrowed each
	FeesCollected int64 // sum over the fee log
	MinPax        int64 // most negative pax balance (non-negativity audit)
	MinScrolls    int64
}

const ledgerSumsQuery = `
	SELECT
		(SELECT COALESCE(SUM(pax), 0) FROM users),
		(SELECT COALESCE(SUM(scrolls), 0) FROM users),
		(SELECT COALESCE(SUM(price), 0) FROM orders WHERE status = 'open' AND side = 'bid'),
		(SELECT COUNT(*) FROM orders WHERE status = 'open' AND side = 'ask'),
		(SELECT COALESCE(SUM(amount), 0) FROM fees),
		(SELECT COALESCE(MIN(pax), 0) FROM users),
		(SELECT COALESCE(MIN(scrolls), 0) FROM users)`

// GetLedgerSums computes the aggregates in a single query so all sums
// observe the same committed state.
func (db *DB) GetLedgerSums(ctx context.Context) (LedgerSums, error) {
	var s LedgerSums
	err := db.Pool.QueryRow(ctx, ledgerSumsQuery).Scan(
		&s.PaxHeld, &s.ScrollsHeld, &s.OpenBidEscrow, &s.OpenAskCount,
		&s.FeesCollected, &s.MinPax, &s.MinScrolls)
	if err != nil {
		return s, fmt.Errorf("failed to compute ledger sums: %w", err)
	}
	return s, nil
}
