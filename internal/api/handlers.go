package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/ashgrove/scrollmarket/internal/admission"
	"github.com/ashgrove/scrollmarket/internal/auth"
	"github.com/ashgrove/scrollmarket/internal/db"
	"github.com/ashgrove/scrollmarket/internal/engine"
	"github.com/ashgrove/scrollmarket/internal/models"
)

type ctxKey int

const userIDKey ctxKey = 0

// Handler contains dependencies for HTTP handlers.
type Handler struct {
	DB          *db.DB
	Engine      *engine.Engine
	Gate        *admission.Gate
	AuthService *auth.AuthService
	Log         *zap.Logger

	// StartingPax is minted into each newly registered account.
	StartingPax int64
}

// NewHandler creates a new handler.
func NewHandler(database *db.DB, eng *engine.Engine, gate *admission.Gate, authService *auth.AuthService, log *zap.Logger, startingPax int64) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Handler{
		DB:          database,
		Engine:      eng,
		Gate:        gate,
		AuthService: authService,
		Log:         log,
		StartingPax: startingPax,
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// statusForError maps the market error taxonomy onto HTTP statuses.
func statusForError(err error) int {
	switch {
	case errors.Is(err, models.ErrInvalidPrice), errors.Is(err, models.ErrInvalidSide):
		return http.StatusBadRequest
	case errors.Is(err, models.ErrUnauthorized):
		return http.StatusForbidden
	case errors.Is(err, models.ErrInsufficientPax), errors.Is(err, models.ErrInsufficientScrolls):
		return http.StatusPaymentRequired
	case errors.Is(err, models.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, models.ErrGone), errors.Is(err, models.ErrAlreadyTerminal):
		return http.StatusConflict
	case errors.Is(err, models.ErrContention), errors.Is(err, models.ErrTimeout), errors.Is(err, models.ErrHalted):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) writeMarketError(w http.ResponseWriter, err error) {
	status := statusForError(err)
	if status == http.StatusInternalServerError {
		h.Log.Error("internal error", zap.Error(err))
		writeError(w, status, "internal error")
		return
	}
	writeError(w, status, err.Error())
}

// Register handles account registration and funds the starting balance.
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Username == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "username and password required")
		return
	}

	account, err := h.AuthService.Register(r.Context(), req.Username, req.Password)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to register account")
		return
	}

	pax := int64(0)
	if h.StartingPax > 0 {
		res, err := h.Engine.Fund(r.Context(), account.ID, h.StartingPax, 0)
		if err != nil {
			h.Log.Error("failed to fund starting balance", zap.Int64("account_id", account.ID), zap.Error(err))
			writeError(w, http.StatusInternalServerError, "failed to fund starting balance")
			return
		}
		pax = res.Pax
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"id":       account.ID,
		"username": account.Username,
		"pax":      pax,
		"scrolls":  account.Scrolls,
	})
}

// Login handles account login.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	token, err := h.AuthService.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"token": token})
}

// JWTAuthMiddleware verifies JWT tokens and stashes the caller id.
func (h *Handler) JWTAuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tokenString := r.Header.Get("Authorization")
		if tokenString == "" {
			writeError(w, http.StatusUnauthorized, "authorization header required")
			return
		}
		tokenString = strings.TrimPrefix(tokenString, "Bearer ")

		userID, err := h.AuthService.GetUserFromToken(tokenString)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "invalid or expired token")
			return
		}

		ctx := context.WithValue(r.Context(), userIDKey, userID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func callerID(r *http.Request) (int64, bool) {
	id, ok := r.Context().Value(userIDKey).(int64)
	return id, ok
}

// PlaceOrder admits and places an order, returning the final status,
// balances, and the trade if the order crossed.
func (h *Handler) PlaceOrder(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerID(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req struct {
		Side           string `json:"side"`
		Price          int64  `json:"price"`
		IdempotencyKey string `json:"idempotency_key"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	side := models.Side(req.Side)
	if err := h.Gate.AdmitPlace(r.Context(), caller, caller, side, req.Price); err != nil {
		h.writeMarketError(w, err)
		return
	}

	res, err := h.Engine.Place(r.Context(), caller, side, req.Price, req.IdempotencyKey)
	if err != nil {
		h.writeMarketError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

// CancelOrder cancels an open order and returns the released balances.
func (h *Handler) CancelOrder(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerID(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	orderID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid order id")
		return
	}

	if err := h.Gate.AdmitCancel(r.Context(), orderID, caller); err != nil {
		h.writeMarketError(w, err)
		return
	}

	res, err := h.Engine.Cancel(r.Context(), orderID, caller)
	if err != nil {
		h.writeMarketError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// FulfillOrder settles the caller directly against a resting order.
func (h *Handler) FulfillOrder(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerID(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	orderID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid order id")
		return
	}

	if err := h.Gate.AdmitFulfill(r.Context(), orderID, caller); err != nil {
		h.writeMarketError(w, err)
		return
	}

	res, err := h.Engine.Fulfill(r.Context(), orderID, caller)
	if err != nil {
		h.writeMarketError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

const (
	defaultDepth = 20
	maxDepth     = 100
)

// GetOrderBook returns the aggregated book snapshot.
func (h *Handler) GetOrderBook(w http.ResponseWriter, r *http.Request) {
	depth := defaultDepth
	if v := r.URL.Query().Get("depth"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > maxDepth {
			writeError(w, http.StatusBadRequest, "depth must be between 1 and 100")
			return
		}
		depth = n
	}

	snap, err := h.DB.BookSnapshot(r.Context(), depth)
	if err != nil {
		h.writeMarketError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// GetUserOrders retrieves the caller's orders, optionally filtered by
// status (comma-separated), newest first.
func (h *Handler) GetUserOrders(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerID(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var states []models.Status
	if v := r.URL.Query().Get("status"); v != "" {
		for _, s := range strings.Split(v, ",") {
			status := models.Status(strings.TrimSpace(s))
			switch status {
			case models.StatusOpen, models.StatusFilled, models.StatusCancelled:
				states = append(states, status)
			default:
				writeError(w, http.StatusBadRequest, "invalid status filter")
				return
			}
		}
	}

	orders, err := h.DB.UserOrders(r.Context(), caller, states)
	if err != nil {
		h.writeMarketError(w, err)
		return
	}
	if orders == nil {
		orders = []models.Order{}
	}
	writeJSON(w, http.StatusOK, orders)
}

// GetUserTrades retrieves the caller's trade history.
func (h *Handler) GetUserTrades(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerID(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	trades, err := h.DB.UserTrades(r.Context(), caller)
	if err != nil {
		h.writeMarketError(w, err)
		return
	}
	if trades == nil {
		trades = []models.Trade{}
	}
	writeJSON(w, http.StatusOK, trades)
}

// Reconcile runs the conservation audit. On a violation the engine has
// already halted writes; the discrepancy is returned for the operator.
func (h *Handler) Reconcile(w http.ResponseWriter, r *http.Request) {
	res, err := h.Engine.Reconcile(r.Context())
	if err != nil {
		if res != nil {
			writeJSON(w, http.StatusServiceUnavailable, res)
			return
		}
		h.writeMarketError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}
