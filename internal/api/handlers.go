// Package api exposes the HTTP surface: auth, order placement, wallet and
// market data. Handlers translate domain errors into status codes and
// route every mutation through the session's engine.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sort"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"

	"papertrade/internal/auth"
	"papertrade/internal/models"
	"papertrade/internal/pricecache"
	"papertrade/internal/session"
)

type contextKey string

const userIDKey contextKey = "user_id"

// Handler contains dependencies for HTTP handlers.
type Handler struct {
	Sessions *session.Manager
	Auth     *auth.Service
	Prices   *pricecache.Cache
	Log      *logrus.Logger
}

// NewHandler creates a new handler.
func NewHandler(sessions *session.Manager, authService *auth.Service, prices *pricecache.Cache, log *logrus.Logger) *Handler {
	return &Handler{Sessions: sessions, Auth: authService, Prices: prices, Log: log}
}

// Routes mounts all API routes on r.
func (h *Handler) Routes(r chi.Router) {
	r.Post("/api/auth/login", h.Login)
	r.Get("/api/price", h.GetPrice)
	r.Get("/api/markets", h.GetMarkets)
	r.Get("/api/kline", h.GetKline)
	r.Get("/api/copy-traders", h.GetCopyTraders)

	r.Group(func(r chi.Router) {
		r.Use(h.JWTAuthMiddleware)
		r.Post("/api/auth/logout", h.Logout)
		r.Post("/api/trade", h.PlaceOrder)
		r.Get("/api/orders", h.GetOrders)
		r.Delete("/api/orders/{id}", h.CancelOrder)
		r.Get("/api/wallet", h.GetWallet)
		r.Get("/api/trade-history", h.GetTradeHistory)
		r.Get("/api/following", h.GetFollowing)
		r.Post("/api/following", h.StartFollowing)
		r.Delete("/api/following/{traderId}", h.StopFollowing)
	})
}

// Login authenticates (provisioning on first use) and attaches a session.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error": "Invalid request body"}`, http.StatusBadRequest)
		return
	}

	token, user, err := h.Auth.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		if models.IsValidation(err) {
			http.Error(w, `{"error": "Email and password required"}`, http.StatusBadRequest)
			return
		}
		if errors.Is(err, models.ErrInvalidCredentials) {
			http.Error(w, `{"error": "Invalid credentials"}`, http.StatusUnauthorized)
			return
		}
		h.Log.WithError(err).Error("login failed")
		http.Error(w, `{"error": "Login failed"}`, http.StatusInternalServerError)
		return
	}

	h.Sessions.Attach(r.Context(), user.ID)

	json.NewEncoder(w).Encode(map[string]interface{}{
		"token": token,
		"user":  user,
	})
}

// Logout detaches the in-memory session. Persisted state is kept.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	userID, ok := r.Context().Value(userIDKey).(string)
	if !ok {
		http.Error(w, `{"error": "Unauthorized"}`, http.StatusUnauthorized)
		return
	}
	h.Sessions.Detach(userID)
	json.NewEncoder(w).Encode(map[string]string{"message": "Logged out"})
}

// JWTAuthMiddleware verifies JWT tokens.
func (h *Handler) JWTAuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tokenString := r.Header.Get("Authorization")
		if tokenString == "" {
			http.Error(w, `{"error": "Authorization header required"}`, http.StatusUnauthorized)
			return
		}
		if len(tokenString) > 7 && tokenString[:7] == "Bearer " {
			tokenString = tokenString[7:]
		}

		userID, err := h.Auth.GetUserFromToken(tokenString)
		if err != nil {
			http.Error(w, `{"error": "Invalid or expired token"}`, http.StatusUnauthorized)
			return
		}

		ctx := context.WithValue(r.Context(), userIDKey, userID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// sessionFor resolves the caller's session, attaching it if the server
// restarted since login.
func (h *Handler) sessionFor(r *http.Request) (*session.Session, bool) {
	userID, ok := r.Context().Value(userIDKey).(string)
	if !ok {
		return nil, false
	}
	return h.Sessions.Attach(r.Context(), userID), true
}

// PlaceOrder handles order submission. Market orders settle immediately;
// rejections carry a human-readable reason and leave no trace.
func (h *Handler) PlaceOrder(w http.ResponseWriter, r *http.Request) {
	s, ok := h.sessionFor(r)
	if !ok {
		http.Error(w, `{"error": "Unauthorized"}`, http.StatusUnauthorized)
		return
	}

	var req struct {
		Pair      string  `json:"pair"`
		Side      string  `json:"side"`
		OrderType string  `json:"orderType"`
		Price     float64 `json:"price"`
		Amount    float64 `json:"amount"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error": "Invalid request body"}`, http.StatusBadRequest)
		return
	}

	order, err := s.Engine.PlaceOrder(r.Context(), models.Order{
		Pair:      req.Pair,
		Side:      req.Side,
		OrderType: req.OrderType,
		Price:     req.Price,
		Amount:    req.Amount,
	})
	if err != nil {
		writeOrderError(w, err)
		return
	}

	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"success": true,
		"message": "Order placed",
		"order":   order,
	})
}

func writeOrderError(w http.ResponseWriter, err error) {
	switch {
	case models.IsValidation(err):
		http.Error(w, `{"error": "`+err.Error()+`"}`, http.StatusBadRequest)
	case errors.Is(err, models.ErrPriceUnavailable):
		http.Error(w, `{"error": "No price available for this pair yet"}`, http.StatusServiceUnavailable)
	case errors.Is(err, models.ErrInsufficientFunds):
		http.Error(w, `{"error": "Insufficient balance for this order"}`, http.StatusUnprocessableEntity)
	case errors.Is(err, models.ErrInsufficientHoldings):
		http.Error(w, `{"error": "Insufficient holdings for this order"}`, http.StatusUnprocessableEntity)
	default:
		http.Error(w, `{"error": "Failed to place order"}`, http.StatusInternalServerError)
	}
}

// GetOrders returns the caller's orders, newest first.
func (h *Handler) GetOrders(w http.ResponseWriter, r *http.Request) {
	s, ok := h.sessionFor(r)
	if !ok {
		http.Error(w, `{"error": "Unauthorized"}`, http.StatusUnauthorized)
		return
	}
	orders := s.Book.Orders()
	if orders == nil {
		orders = []models.Order{}
	}
	json.NewEncoder(w).Encode(orders)
}

// CancelOrder cancels a PENDING order.
func (h *Handler) CancelOrder(w http.ResponseWriter, r *http.Request) {
	s, ok := h.sessionFor(r)
	if !ok {
		http.Error(w, `{"error": "Unauthorized"}`, http.StatusUnauthorized)
		return
	}

	id := chi.URLParam(r, "id")
	if err := s.Engine.CancelOrder(r.Context(), id); err != nil {
		switch {
		case errors.Is(err, models.ErrOrderNotFound):
			http.Error(w, `{"error": "Order not found"}`, http.StatusNotFound)
		case errors.Is(err, models.ErrOrderNotCancellable):
			http.Error(w, `{"error": "Order is already filled or cancelled"}`, http.StatusConflict)
		default:
			http.Error(w, `{"error": "Failed to cancel order"}`, http.StatusInternalServerError)
		}
		return
	}
	json.NewEncoder(w).Encode(map[string]string{"message": "Order cancelled"})
}

// GetWallet returns the account snapshot.
func (h *Handler) GetWallet(w http.ResponseWriter, r *http.Request) {
	s, ok := h.sessionFor(r)
	if !ok {
		http.Error(w, `{"error": "Unauthorized"}`, http.StatusUnauthorized)
		return
	}
	acc := s.Account.Snapshot()
	if acc.TradeHistory == nil {
		acc.TradeHistory = []models.Trade{}
	}
	json.NewEncoder(w).Encode(acc)
}

// GetTradeHistory returns executed trades in execution order.
func (h *Handler) GetTradeHistory(w http.ResponseWriter, r *http.Request) {
	s, ok := h.sessionFor(r)
	if !ok {
		http.Error(w, `{"error": "Unauthorized"}`, http.StatusUnauthorized)
		return
	}
	trades := s.Account.Snapshot().TradeHistory
	if trades == nil {
		trades = []models.Trade{}
	}
	json.NewEncoder(w).Encode(trades)
}

// GetMarkets returns every symbol with a cached price, as pairs, for the
// market overview.
func (h *Handler) GetMarkets(w http.ResponseWriter, r *http.Request) {
	symbols := h.Prices.Symbols()
	sort.Strings(symbols)

	type market struct {
		Symbol string  `json:"symbol"`
		Pair   string  `json:"pair"`
		Price  float64 `json:"price"`
	}
	markets := make([]market, 0, len(symbols))
	for _, sym := range symbols {
		price, ok := h.Prices.Get(sym)
		if !ok {
			continue
		}
		markets = append(markets, market{Symbol: sym, Pair: sym + models.QuoteSuffix, Price: price})
	}
	json.NewEncoder(w).Encode(markets)
}

// GetPrice returns the cached spot price for a symbol.
func (h *Handler) GetPrice(w http.ResponseWriter, r *http.Request) {
	symbol := r.URL.Query().Get("symbol")
	if symbol == "" {
		http.Error(w, `{"error": "symbol parameter required"}`, http.StatusBadRequest)
		return
	}
	price, ok := h.Prices.Get(symbol)
	if !ok {
		http.Error(w, `{"error": "No price for symbol"}`, http.StatusNotFound)
		return
	}
	json.NewEncoder(w).Encode(map[string]interface{}{
		"symbol":    symbol,
		"price":     price,
		"timestamp": time.Now().UnixMilli(),
	})
}
