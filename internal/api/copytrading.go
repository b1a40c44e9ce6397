package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"papertrade/internal/models"
)

// copyTraders is the roster offered for copy trading. The profiles are
// fixed demo data; the real product would source them from a ranking
// service.
var copyTraders = []models.CopyTrader{
	{ID: "trader-sato", Name: "Sato Alpha", AvatarURL: "https://i.pravatar.cc/150?u=trader-sato", ROI: 182.4, Followers: 12840, WinRate: 71.2},
	{ID: "trader-nova", Name: "Nova Grid", AvatarURL: "https://i.pravatar.cc/150?u=trader-nova", ROI: 95.7, Followers: 8312, WinRate: 64.5},
	{ID: "trader-kestrel", Name: "Kestrel", AvatarURL: "https://i.pravatar.cc/150?u=trader-kestrel", ROI: 67.3, Followers: 5120, WinRate: 58.9},
	{ID: "trader-drift", Name: "Drift Capital", AvatarURL: "https://i.pravatar.cc/150?u=trader-drift", ROI: 41.8, Followers: 2904, WinRate: 55.1},
	{ID: "trader-ember", Name: "Ember Quant", AvatarURL: "https://i.pravatar.cc/150?u=trader-ember", ROI: 28.6, Followers: 1437, WinRate: 52.7},
}

func findCopyTrader(id string) (models.CopyTrader, bool) {
	for _, tr := range copyTraders {
		if tr.ID == id {
			return tr, true
		}
	}
	return models.CopyTrader{}, false
}

// GetCopyTraders returns the trader roster.
func (h *Handler) GetCopyTraders(w http.ResponseWriter, r *http.Request) {
	json.NewEncoder(w).Encode(copyTraders)
}

// GetFollowing returns the traders the caller currently copies.
func (h *Handler) GetFollowing(w http.ResponseWriter, r *http.Request) {
	s, ok := h.sessionFor(r)
	if !ok {
		http.Error(w, `{"error": "Unauthorized"}`, http.StatusUnauthorized)
		return
	}
	list := s.Following.List()
	if list == nil {
		list = []models.Following{}
	}
	json.NewEncoder(w).Encode(list)
}

// StartFollowing begins copying a roster trader with an allocated amount.
func (h *Handler) StartFollowing(w http.ResponseWriter, r *http.Request) {
	s, ok := h.sessionFor(r)
	if !ok {
		http.Error(w, `{"error": "Unauthorized"}`, http.StatusUnauthorized)
		return
	}

	var req struct {
		TraderID string  `json:"traderId"`
		Amount   float64 `json:"amount"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error": "Invalid request body"}`, http.StatusBadRequest)
		return
	}

	trader, found := findCopyTrader(req.TraderID)
	if !found {
		http.Error(w, `{"error": "Trader not found"}`, http.StatusNotFound)
		return
	}

	f, err := s.Following.Start(r.Context(), trader, req.Amount)
	if err != nil {
		switch {
		case models.IsValidation(err):
			http.Error(w, `{"error": "`+err.Error()+`"}`, http.StatusBadRequest)
		case errors.Is(err, models.ErrAlreadyFollowing):
			http.Error(w, `{"error": "Already following this trader"}`, http.StatusConflict)
		default:
			http.Error(w, `{"error": "Failed to start following"}`, http.StatusInternalServerError)
		}
		return
	}

	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(f)
}

// StopFollowing removes a trader from the caller's copy list.
func (h *Handler) StopFollowing(w http.ResponseWriter, r *http.Request) {
	s, ok := h.sessionFor(r)
	if !ok {
		http.Error(w, `{"error": "Unauthorized"}`, http.StatusUnauthorized)
		return
	}

	traderID := chi.URLParam(r, "traderId")
	if err := s.Following.Stop(r.Context(), traderID); err != nil {
		if errors.Is(err, models.ErrNotFollowing) {
			http.Error(w, `{"error": "Not following this trader"}`, http.StatusNotFound)
			return
		}
		http.Error(w, `{"error": "Failed to stop following"}`, http.StatusInternalServerError)
		return
	}
	json.NewEncoder(w).Encode(map[string]string{"message": "Stopped following"})
}
