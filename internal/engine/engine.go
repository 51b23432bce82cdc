// Package engine is the single writer for the scroll order book. Every
// mutating intent runs inside one database transaction with row locks
// on the accounts and orders it touches; the transaction's commit point
// is the operation's linearization point.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/ashgrove/scrollmarket/internal/book"
	"github.com/ashgrove/scrollmarket/internal/db"
	"github.com/ashgrove/scrollmarket/internal/fees"
	"github.com/ashgrove/scrollmarket/internal/ledger"
	"github.com/ashgrove/scrollmarket/internal/models"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
)

// DefaultMaxAttempts bounds transaction retries under contention.
const DefaultMaxAttempts = 3

// Engine applies intents atomically against the store and keeps the
// in-memory book index in step with committed state.
type Engine struct {
	store       *db.DB
	policy      fees.Policy
	book        *book.Book
	log         *zap.Logger
	maxAttempts int

	// halted latches on a detected invariant violation; all further
	// writes are refused until an operator reconciles.
	halted atomic.Bool
}

// New creates an engine. The book index may be nil when no read-side
// cache is wanted (tests, batch tools).
func New(store *db.DB, policy fees.Policy, idx *book.Book, log *zap.Logger, maxAttempts int) *Engine {
	if log == nil {
		log = zap.NewNop()
	}
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	return &Engine{
		store:       store,
		policy:      policy,
		book:        idx,
		log:         log,
		maxAttempts: maxAttempts,
	}
}

// Halted reports whether the engine has refused writes.
func (e *Engine) Halted() bool {
	return e.halted.Load()
}

// checkWritable gates every mutating operation.
func (e *Engine) checkWritable() error {
	if e.halted.Load() {
		return models.ErrHalted
	}
	return nil
}

// retry runs op in fresh transactions until it succeeds, fails
// non-transiently, or the attempt budget is spent. A context deadline
// surfaces as Timeout with no durable effect.
func (e *Engine) retry(ctx context.Context, op func(pgx.Tx) error) error {
	var lastErr error
	for attempt := 0; attempt < e.maxAttempts; attempt++ {
		err := e.store.WithTx(ctx, op)
		if err == nil {
			return nil
		}
		if ctxErr := mapDeadline(ctx, err); ctxErr != nil {
			return ctxErr
		}
		if !db.IsRetryable(err) {
			return err
		}
		lastErr = err
	}
	return fmt.Errorf("%d attempts exhausted: %w (last: %v)", e.maxAttempts, models.ErrContention, lastErr)
}

// mapDeadline converts a deadline-driven failure into the typed
// timeout error; other errors pass through as nil (not a ctx problem).
func mapDeadline(ctx context.Context, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || ctx.Err() != nil {
		return fmt.Errorf("%w: %v", models.ErrTimeout, err)
	}
	return nil
}

// FundResult reports the funded account's balances after the mint.
type FundResult struct {
	Pax     int64 `json:"pax"`
	Scrolls int64 `json:"scrolls"`
}

// Fund mints pax and scrolls into an account and records them against
// the issuance totals so conservation stays checkable. This is the only
// path by which assets enter the system.
func (e *Engine) Fund(ctx context.Context, accountID, pax, scrolls int64) (*FundResult, error) {
	if err := e.checkWritable(); err != nil {
		return nil, err
	}
	if pax < 0 || scrolls < 0 {
		return nil, fmt.Errorf("negative mint amount: %w", models.ErrInvalidPrice)
	}

	var res FundResult
	err := e.retry(ctx, func(tx pgx.Tx) error {
		if _, err := e.store.LockAccount(ctx, tx, accountID); err != nil {
			return err
		}
		newPax, newScrolls, err := ledger.Credit(ctx, tx, accountID, pax, scrolls)
		if err != nil {
			return err
		}
		if err := e.store.AddSupply(ctx, tx, pax, scrolls); err != nil {
			return err
		}
		res = FundResult{Pax: newPax, Scrolls: newScrolls}
		return nil
	})
	if err != nil {
		return nil, err
	}
	e.log.Info("account funded",
		zap.Int64("account_id", accountID),
		zap.Int64("pax", pax),
		zap.Int64("scrolls", scrolls))
	return &res, nil
}

// ReconcileResult reports the conservation audit.
type ReconcileResult struct {
	Supply db.SupplyTotals `json:"supply"`
	Sums   db.LedgerSums   `json:"sums"`

	ScrollsOK     bool `json:"scrolls_ok"` // held + ask escrow == minted
	PaxOK         bool `json:"pax_ok"`     // held + bid escrow + fees == issued
	NonNegativeOK bool `json:"non_negative_ok"`
}

// OK reports whether all audited invariants hold.
func (r ReconcileResult) OK() bool {
	return r.ScrollsOK && r.PaxOK && r.NonNegativeOK
}

// Reconcile recomputes the conservation invariants from a single store
// snapshot. A violation is fatal: the engine latches halted and refuses
// further writes until an operator intervenes.
func (e *Engine) Reconcile(ctx context.Context) (*ReconcileResult, error) {
	supply, sums, err := e.store.ReconcileSnapshot(ctx)
	if err != nil {
		return nil, err
	}

	res := &ReconcileResult{
		Supply:        supply,
		Sums:          sums,
		ScrollsOK:     sums.ScrollsHeld+sums.OpenAskCount == supply.ScrollsMinted,
		PaxOK:         sums.PaxHeld+sums.OpenBidEscrow+sums.FeesCollected == supply.PaxIssued,
		NonNegativeOK: sums.MinPax >= 0 && sums.MinScrolls >= 0,
	}
	if !res.OK() {
		e.halted.Store(true)
		e.log.Error("conservation invariant violated; refusing further writes",
			zap.Bool("scrolls_ok", res.ScrollsOK),
			zap.Bool("pax_ok", res.PaxOK),
			zap.Bool("non_negative_ok", res.NonNegativeOK),
			zap.Int64("pax_issued", supply.PaxIssued),
			zap.Int64("pax_held", sums.PaxHeld),
			zap.Int64("open_bid_escrow", sums.OpenBidEscrow),
			zap.Int64("fees_collected", sums.FeesCollected),
			zap.Int64("scrolls_minted", supply.ScrollsMinted),
			zap.Int64("scrolls_held", sums.ScrollsHeld),
			zap.Int64("open_ask_count", sums.OpenAskCount))
		return res, fmt.Errorf("reconciliation failed: %w", models.ErrHalted)
	}
	return res, nil
}

// Resume clears the halt latch after an operator has reconciled.
func (e *Engine) Resume() {
	e.halted.Store(false)
}
