// Package session wires a logged-in user's account store, order book and
// matching engine together, and fans price ticks out to every active
// session. Logout detaches only the in-memory view; persisted state is
// kept for the next login.
package session

import (
	"context"
	"sync"

	"github.com/sirupsen/logrus"

	"papertrade/internal/account"
	"papertrade/internal/engine"
	"papertrade/internal/following"
	"papertrade/internal/models"
	"papertrade/internal/orderbook"
	"papertrade/internal/pricecache"
	"papertrade/internal/store"
)

// Session is the per-user trading context.
type Session struct {
	UserID    string
	Account   *account.Store
	Book      *orderbook.Book
	Engine    *engine.Engine
	Following *following.Store
}

// Manager owns the active sessions and implements feed.TickSink.
type Manager struct {
	mu       sync.Mutex
	kv       store.KV
	prices   *pricecache.Cache
	spreads  map[string]float64
	log      *logrus.Logger
	sessions map[string]*Session
	notify   func(userID string, trade models.Trade)
}

// NewManager creates a session manager over shared infrastructure.
func NewManager(kv store.KV, prices *pricecache.Cache, spreads map[string]float64, log *logrus.Logger) *Manager {
	return &Manager{
		kv:       kv,
		prices:   prices,
		spreads:  spreads,
		log:      log,
		sessions: make(map[string]*Session),
	}
}

// SetFillNotifier registers a callback for fills across all sessions.
// It must be called before sessions are attached.
func (m *Manager) SetFillNotifier(fn func(userID string, trade models.Trade)) {
	m.mu.Lock()
	m.notify = fn
	m.mu.Unlock()
}

// Attach returns the session for userID, loading persisted account and
// order state and constructing the engine on first attach.
func (m *Manager) Attach(ctx context.Context, userID string) *Session {
	m.mu.Lock()
	defer m.mu.Unlock()

	if s, ok := m.sessions[userID]; ok {
		return s
	}

	acc := account.Load(ctx, m.kv, userID, m.log)
	book := orderbook.Load(ctx, m.kv, userID, m.log)
	eng := engine.New(acc, book, m.prices, m.spreads, m.log)
	if m.notify != nil {
		fn := m.notify
		uid := userID
		eng.SetFillNotifier(func(trade models.Trade) { fn(uid, trade) })
	}

	s := &Session{
		UserID:    userID,
		Account:   acc,
		Book:      book,
		Engine:    eng,
		Following: following.Load(ctx, m.kv, userID, m.log),
	}
	m.sessions[userID] = s
	m.log.WithField("user_id", userID).Info("session attached")
	return s
}

// Get returns the active session for userID, if any.
func (m *Manager) Get(userID string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[userID]
	return s, ok
}

// Detach drops the in-memory session. Persisted blobs are untouched.
func (m *Manager) Detach(userID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[userID]; ok {
		delete(m.sessions, userID)
		m.log.WithField("user_id", userID).Info("session detached")
	}
}

// OnTick applies one price observation to the shared cache and, if it is
// an actual change, runs the matching scan for every active session.
func (m *Manager) OnTick(ctx context.Context, symbol string, price float64) {
	if price <= 0 {
		return
	}
	if !m.prices.Update(symbol, price) {
		return
	}

	m.mu.Lock()
	active := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		active = append(active, s)
	}
	m.mu.Unlock()

	for _, s := range active {
		s.Engine.Match(ctx, symbol, price)
	}
}
