// Package orderbook owns the list of orders placed by one user: their
// creation, status lifecycle and persistence. Orders are kept in arrival
// order so matching stays deterministic and fair; they are never deleted,
// only transitioned between statuses.
package orderbook

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"papertrade/internal/models"
	"papertrade/internal/store"
)

// Book is the order store for a single user.
type Book struct {
	mu     sync.Mutex
	kv     store.KV
	userID string
	orders []models.Order // arrival order
	log    *logrus.Logger
}

// Load returns the persisted order book for userID, empty on a miss or an
// unreadable blob.
func Load(ctx context.Context, kv store.KV, userID string, log *logrus.Logger) *Book {
	b := &Book{kv: kv, userID: userID, log: log}

	data, err := kv.Get(ctx, store.OrdersKey(userID))
	if err != nil {
		return b
	}
	var orders []models.Order
	if err := json.Unmarshal(data, &orders); err != nil {
		log.WithField("user_id", userID).Warn("stored orders unreadable, starting empty")
		return b
	}
	b.orders = orders
	return b
}

// AddOrder validates, assigns an id and timestamp, sets the initial status
// by order type (market orders are created already FILLED; the engine
// validates and settles before calling this), appends and persists.
func (b *Book) AddOrder(ctx context.Context, o models.Order) (models.Order, error) {
	if err := Validate(o); err != nil {
		return models.Order{}, err
	}

	if o.ID == "" {
		o.ID = NewOrderID()
	}
	if o.Timestamp.IsZero() {
		o.Timestamp = time.Now().UTC()
	}
	if o.OrderType == models.TypeMarket {
		o.Status = models.StatusFilled
	} else {
		o.Status = models.StatusPending
	}

	b.mu.Lock()
	b.orders = append(b.orders, o)
	b.persistLocked(ctx)
	b.mu.Unlock()
	return o, nil
}

// Validate checks an order request before any state is touched. The engine
// runs it ahead of market-order settlement so a rejection leaves no trace.
func Validate(o models.Order) error {
	if o.Side != models.SideBuy && o.Side != models.SideSell {
		return &models.ValidationError{Message: "side must be 'buy' or 'sell'"}
	}
	if o.OrderType != models.TypeMarket && o.OrderType != models.TypeLimit {
		return &models.ValidationError{Message: "orderType must be 'market' or 'limit'"}
	}
	if !strings.HasSuffix(o.Pair, models.QuoteSuffix) || models.BaseSymbol(o.Pair) == "" ||
		strings.Count(o.Pair, "/") != 1 {
		return &models.ValidationError{Message: "pair must be quoted in USDT, e.g. BTC/USDT"}
	}
	if o.Amount <= 0 {
		return &models.ValidationError{Message: "amount must be positive"}
	}
	if o.OrderType == models.TypeLimit && o.Price <= 0 {
		return &models.ValidationError{Message: "limit price must be positive"}
	}
	return nil
}

// NewOrderID generates a unique order id. Ids carry the creation time but
// arrival order is tracked by list position, not by id comparison.
func NewOrderID() string {
	return fmt.Sprintf("order-%d-%s", time.Now().UnixMilli(), uuid.NewString()[:8])
}

// ListPending returns the PENDING orders for pair in arrival order.
func (b *Book) ListPending(pair string) []models.Order {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []models.Order
	for _, o := range b.orders {
		if o.Status == models.StatusPending && o.Pair == pair {
			out = append(out, o)
		}
	}
	return out
}

// Orders returns all orders, most recent first, for display.
func (b *Book) Orders() []models.Order {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]models.Order, len(b.orders))
	for i, o := range b.orders {
		out[len(b.orders)-1-i] = o
	}
	return out
}

// Get returns the order with the given id.
func (b *Book) Get(id string) (models.Order, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, o := range b.orders {
		if o.ID == id {
			return o, true
		}
	}
	return models.Order{}, false
}

// UpdateStatus transitions an order and reports whether the transition was
// applied. Orders already in a terminal state are left untouched, which is
// what prevents a double fill.
func (b *Book) UpdateStatus(ctx context.Context, id, status string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i := range b.orders {
		if b.orders[i].ID != id {
			continue
		}
		if b.orders[i].Terminal() {
			return false
		}
		b.orders[i].Status = status
		b.persistLocked(ctx)
		return true
	}
	return false
}

// Cancel transitions a PENDING order to CANCELLED.
func (b *Book) Cancel(ctx context.Context, id string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i := range b.orders {
		if b.orders[i].ID != id {
			continue
		}
		if b.orders[i].Terminal() {
			return models.ErrOrderNotCancellable
		}
		b.orders[i].Status = models.StatusCancelled
		b.persistLocked(ctx)
		return nil
	}
	return models.ErrOrderNotFound
}

// persistLocked writes the order list through to the KV. Failures are
// logged and tolerated; in-memory state stays authoritative.
func (b *Book) persistLocked(ctx context.Context) {
	data, err := json.Marshal(b.orders)
	if err != nil {
		b.log.WithError(err).Error("failed to marshal orders")
		return
	}
	if err := b.kv.Set(ctx, store.OrdersKey(b.userID), data); err != nil {
		b.log.WithError(err).WithField("user_id", b.userID).Warn("orders persist failed")
	}
}
