// Package account owns the authoritative per-user financial state: cash
// balance, per-asset holdings and the append-only trade history. All
// mutations go through a single mutex so every write reads the latest
// state, and each mutation persists the full snapshot before returning.
package account

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"papertrade/internal/models"
	"papertrade/internal/store"
)

// InitialBalance is granted to every newly created account, in USDT.
const InitialBalance = 100_000_000

// Store is the serialized-access boundary around one user's account.
type Store struct {
	mu  sync.Mutex
	kv  store.KV
	acc models.Account
	log *logrus.Logger
}

// Load returns the persisted account for userID, creating and persisting a
// fresh one with the initial balance on a miss or an unreadable blob.
func Load(ctx context.Context, kv store.KV, userID string, log *logrus.Logger) *Store {
	s := &Store{kv: kv, log: log}

	data, err := kv.Get(ctx, store.AccountKey(userID))
	if err == nil {
		var acc models.Account
		if jsonErr := json.Unmarshal(data, &acc); jsonErr == nil && acc.UserID == userID {
			if acc.Holdings == nil {
				acc.Holdings = make(map[string]float64)
			}
			s.acc = acc
			return s
		}
		log.WithField("user_id", userID).Warn("stored account unreadable, creating fresh")
	}

	now := time.Now().UTC()
	s.acc = models.Account{
		UserID:    userID,
		Balance:   InitialBalance,
		Holdings:  make(map[string]float64),
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.persist(ctx)
	return s
}

// Snapshot returns a deep copy of the current account state.
func (s *Store) Snapshot() models.Account {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.copyLocked()
}

// Balance returns the current cash balance.
func (s *Store) Balance() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.acc.Balance
}

// Holding returns the held quantity of symbol, zero if absent.
func (s *Store) Holding(symbol string) float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.acc.Holdings[symbol]
}

// ApplyBalanceDelta adjusts the cash balance. The caller must have checked
// sufficiency; a delta that would drive the balance negative is refused.
func (s *Store) ApplyBalanceDelta(ctx context.Context, delta float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.acc.Balance+delta < 0 {
		return models.ErrInsufficientFunds
	}
	s.acc.Balance += delta
	s.touchLocked()
	s.persist(ctx)
	return nil
}

// ApplyHoldingsDelta adjusts the held quantity of symbol. A delta that
// would require going negative is refused; small float residue from an
// exact full sell is clamped to zero.
func (s *Store) ApplyHoldingsDelta(ctx context.Context, symbol string, delta float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.holdingsDeltaLocked(symbol, delta); err != nil {
		return err
	}
	s.touchLocked()
	s.persist(ctx)
	return nil
}

// AppendTrade records an executed trade. History is append-only.
func (s *Store) AppendTrade(ctx context.Context, trade models.Trade) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.acc.TradeHistory = append(s.acc.TradeHistory, trade)
	s.touchLocked()
	s.persist(ctx)
}

// ApplySettlement applies a fill's balance delta, holdings delta and trade
// record as one atomic group under the store lock, re-validating both
// sufficiency conditions against current state. On failure nothing is
// applied. Satisfies the engine's SettlementSink.
func (s *Store) ApplySettlement(ctx context.Context, balanceDelta float64, symbol string, holdingsDelta float64, trade models.Trade) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.acc.Balance+balanceDelta < 0 {
		return models.ErrInsufficientFunds
	}
	if s.acc.Holdings[symbol]+holdingsDelta < 0 && !nearZero(s.acc.Holdings[symbol]+holdingsDelta) {
		return models.ErrInsufficientHoldings
	}

	s.acc.Balance += balanceDelta
	if err := s.holdingsDeltaLocked(symbol, holdingsDelta); err != nil {
		// Unreachable after the check above; restore balance for safety.
		s.acc.Balance -= balanceDelta
		return err
	}
	s.acc.TradeHistory = append(s.acc.TradeHistory, trade)
	s.touchLocked()
	s.persist(ctx)
	return nil
}

func (s *Store) holdingsDeltaLocked(symbol string, delta float64) error {
	next := s.acc.Holdings[symbol] + delta
	if next < 0 {
		if !nearZero(next) {
			return models.ErrInsufficientHoldings
		}
		next = 0
	}
	s.acc.Holdings[symbol] = next
	return nil
}

func (s *Store) touchLocked() {
	s.acc.UpdatedAt = time.Now().UTC()
}

// persist writes the full snapshot through to the KV. Write failures are
// logged and tolerated: the in-memory state stays authoritative and the
// next successful write reconciles.
func (s *Store) persist(ctx context.Context) {
	data, err := json.Marshal(s.acc)
	if err != nil {
		s.log.WithError(err).Error("failed to marshal account")
		return
	}
	if err := s.kv.Set(ctx, store.AccountKey(s.acc.UserID), data); err != nil {
		s.log.WithError(err).WithField("user_id", s.acc.UserID).Warn("account persist failed")
	}
}

func (s *Store) copyLocked() models.Account {
	out := s.acc
	out.Holdings = make(map[string]float64, len(s.acc.Holdings))
	for k, v := range s.acc.Holdings {
		out.Holdings[k] = v
	}
	out.TradeHistory = make([]models.Trade, len(s.acc.TradeHistory))
	copy(out.TradeHistory, s.acc.TradeHistory)
	return out
}

// nearZero absorbs float64 rounding residue around an exact zero.
func nearZero(v float64) bool {
	return v > -1e-9 && v < 1e-9
}
