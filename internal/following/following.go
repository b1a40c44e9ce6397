// Package following owns a user's copy-trading list: which traders they
// copy and how much quote currency each copy is allocated. The list is
// persisted as one blob per user, like the account and order book.
package following

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"papertrade/internal/models"
	"papertrade/internal/store"
)

// Store is the copy-trading list for a single user.
type Store struct {
	mu     sync.Mutex
	kv     store.KV
	userID string
	list   []models.Following
	log    *logrus.Logger
}

// Load returns the persisted following list for userID, empty on a miss
// or an unreadable blob.
func Load(ctx context.Context, kv store.KV, userID string, log *logrus.Logger) *Store {
	s := &Store{kv: kv, userID: userID, log: log}

	data, err := kv.Get(ctx, store.FollowingKey(userID))
	if err != nil {
		return s
	}
	var list []models.Following
	if err := json.Unmarshal(data, &list); err != nil {
		log.WithField("user_id", userID).Warn("stored following list unreadable, starting empty")
		return s
	}
	s.list = list
	return s
}

// List returns the followed traders in the order following started.
func (s *Store) List() []models.Following {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Following, len(s.list))
	copy(out, s.list)
	return out
}

// IsFollowing reports whether the trader is currently followed.
func (s *Store) IsFollowing(traderID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.indexLocked(traderID) >= 0
}

// Start begins copying a trader with the given allocation. A trader can
// be followed at most once.
func (s *Store) Start(ctx context.Context, trader models.CopyTrader, amount float64) (models.Following, error) {
	if amount <= 0 {
		return models.Following{}, &models.ValidationError{Message: "amount must be positive"}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.indexLocked(trader.ID) >= 0 {
		return models.Following{}, models.ErrAlreadyFollowing
	}

	f := models.Following{
		TraderID:   trader.ID,
		TraderName: trader.Name,
		Amount:     amount,
		StartDate:  time.Now().UTC(),
	}
	s.list = append(s.list, f)
	s.persistLocked(ctx)
	return f, nil
}

// Stop removes the trader from the following list.
func (s *Store) Stop(ctx context.Context, traderID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.indexLocked(traderID)
	if i < 0 {
		return models.ErrNotFollowing
	}
	s.list = append(s.list[:i], s.list[i+1:]...)
	s.persistLocked(ctx)
	return nil
}

func (s *Store) indexLocked(traderID string) int {
	for i, f := range s.list {
		if f.TraderID == traderID {
			return i
		}
	}
	return -1
}

// persistLocked writes the list through to the KV. Failures are logged
// and tolerated; in-memory state stays authoritative.
func (s *Store) persistLocked(ctx context.Context) {
	data, err := json.Marshal(s.list)
	if err != nil {
		s.log.WithError(err).Error("failed to marshal following list")
		return
	}
	if err := s.kv.Set(ctx, store.FollowingKey(s.userID), data); err != nil {
		s.log.WithError(err).WithField("user_id", s.userID).Warn("following persist failed")
	}
}
