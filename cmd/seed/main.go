package main

import (
	"context"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/ashgrove/scrollmarket/internal/config"
	"github.com/ashgrove/scrollmarket/internal/db"
	"github.com/ashgrove/scrollmarket/internal/engine"
	"github.com/ashgrove/scrollmarket/internal/fees"
	"github.com/ashgrove/scrollmarket/internal/logging"
	"github.com/ashgrove/scrollmarket/internal/models"
)

// bcrypt hash of "password", for local development only.
const devPasswordHash = "$2a$10$XLhV7TU4dIvHO1d9UKgoT.Kt1XCYIbLV4LkQqmXGtN6VBnsmgS.G."

// Seed the database with two traders and a small book. Funding goes
// through the engine so the supply totals stay reconcilable.
func main() {
	logger, err := logging.NewLogger()
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	cfg := config.LoadFromEnv("")
	ctx := context.Background()

	database, err := db.NewDB(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Fatal("failed to connect to database", zap.Error(err))
	}
	defer database.Close()

	n, err := database.CountTrades(ctx)
	if err != nil {
		logger.Fatal("failed to check trades", zap.Error(err))
	}
	if n > 0 {
		fmt.Printf("database already has %d trades, nothing to seed\n", n)
		os.Exit(0)
	}

	policy := fees.NewFlat(cfg.PlacementFee)
	eng := engine.New(database, policy, nil, logger, cfg.EngineMaxAttempts)

	seller := ensureAccount(ctx, database, logger, "trader1")
	buyer := ensureAccount(ctx, database, logger, "trader2")

	if _, err := eng.Fund(ctx, seller.ID, 500, 3); err != nil {
		logger.Fatal("failed to fund trader1", zap.Error(err))
	}
	if _, err := eng.Fund(ctx, buyer.ID, 500, 0); err != nil {
		logger.Fatal("failed to fund trader2", zap.Error(err))
	}

	// A small uncrossed book.
	for _, price := range []int64{60, 70} {
		if _, err := eng.Place(ctx, seller.ID, models.SideAsk, price, ""); err != nil {
			logger.Fatal("failed to place ask", zap.Int64("price", price), zap.Error(err))
		}
	}
	for _, price := range []int64{40, 30} {
		if _, err := eng.Place(ctx, buyer.ID, models.SideBid, price, ""); err != nil {
			logger.Fatal("failed to place bid", zap.Int64("price", price), zap.Error(err))
		}
	}

	// One settled trade for history.
	res, err := eng.Place(ctx, seller.ID, models.SideAsk, 40, "")
	if err != nil {
		logger.Fatal("failed to place crossing ask", zap.Error(err))
	}
	if res.Trade == nil {
		logger.Fatal("expected the seed ask to cross the resting bid")
	}

	audit, err := eng.Reconcile(ctx)
	if err != nil {
		logger.Fatal("seeded state failed reconciliation", zap.Error(err))
	}
	fmt.Printf("seeded: pax issued %d, scrolls minted %d, trade at %d\n",
		audit.Supply.PaxIssued, audit.Supply.ScrollsMinted, res.Trade.Price)
}

func ensureAccount(ctx context.Context, database *db.DB, logger *zap.Logger, username string) *models.Account {
	account, err := database.GetAccountByUsername(ctx, username)
	if err == nil {
		return account
	}
	account, err = database.CreateAccount(ctx, username, devPasswordHash)
	if err != nil {
		logger.Fatal("failed to create account", zap.String("username", username), zap.Error(err))
	}
	return account
}
