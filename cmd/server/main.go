package main

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/ashgrove/scrollmarket/internal/admission"
	"github.com/ashgrove/scrollmarket/internal/api"
	"github.com/ashgrove/scrollmarket/internal/auth"
	"github.com/ashgrove/scrollmarket/internal/book"
	"github.com/ashgrove/scrollmarket/internal/config"
	"github.com/ashgrove/scrollmarket/internal/db"
	"github.com/ashgrove/scrollmarket/internal/engine"
	"github.com/ashgrove/scrollmarket/internal/fees"
	"github.com/ashgrove/scrollmarket/internal/logging"
)

// Main entry point: wires the store, engine, and HTTP server.
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

	// The book index is a cache: rebuilt from the store, updated after
	// each commit, never consulted for correctness.
	idx := book.New()
	openOrders, err := database.GetOpenOrders(ctx)
	if err != nil {
		logger.Fatal("failed to load open orders", zap.Error(err))
	}
	idx.Rebuild(openOrders)
	logger.Info("book index rebuilt", zap.Int("open_orders", len(openOrders)))

	policy := fees.NewFlat(cfg.PlacementFee)
	eng := engine.New(database, policy, idx, logger, cfg.EngineMaxAttempts)
	gate := admission.NewGate(database, policy)
	authService := auth.NewAuthService(database, cfg.JWTSecret)
	handler := api.NewHandler(database, eng, gate, authService, logger, cfg.StartingPax)
	broadcaster := api.NewBroadcaster(idx, logger, 20)

	r := chi.NewRouter()
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/ws", broadcaster.Handle)

	r.Post("/auth/register", handler.Register)
	r.Post("/auth/login", handler.Login)

	r.Group(func(r chi.Router) {
		r.Use(handler.JWTAuthMiddleware)
		r.Post("/orders", handler.PlaceOrder)
		r.Get("/orders", handler.GetUserOrders)
		r.Delete("/orders/{id}", handler.CancelOrder)
		r.Post("/orders/{id}/fulfill", handler.FulfillOrder)
		r.Get("/orderbook", handler.GetOrderBook)
		r.Get("/trades", handler.GetUserTrades)
		r.Post("/admin/reconcile", handler.Reconcile)
	})

	stop := make(chan struct{})
	defer close(stop)
	go broadcaster.Run(5*time.Second, stop)

	logger.Info("starting server", zap.String("addr", cfg.ListenAddr))
	if err := http.ListenAndServe(cfg.ListenAddr, r); err != nil {
		logger.Fatal("server failed", zap.Error(err))
	}
}
