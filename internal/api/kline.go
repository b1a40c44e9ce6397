package api

import (
	"encoding/json"
	"hash/fnv"
	"math/rand"
	"net/http"
	"strconv"
	"time"

	"papertrade/internal/models"
)

const (
	defaultKlineLimit = 96
	maxKlineLimit     = 500
	klineStep         = time.Minute
)

// GetKline returns a synthesized OHLC series anchored at the cached spot
// price. The walk is seeded per pair so repeated requests for the same
// pair within a minute line up.
func (h *Handler) GetKline(w http.ResponseWriter, r *http.Request) {
	pair := r.URL.Query().Get("pair")
	if pair == "" {
		http.Error(w, `{"error": "pair parameter required"}`, http.StatusBadRequest)
		return
	}
	limit := defaultKlineLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > maxKlineLimit {
			http.Error(w, `{"error": "limit must be between 1 and 500"}`, http.StatusBadRequest)
			return
		}
		limit = n
	}

	spot, ok := h.Prices.Get(models.BaseSymbol(pair))
	if !ok {
		http.Error(w, `{"error": "No price for pair"}`, http.StatusNotFound)
		return
	}

	json.NewEncoder(w).Encode(synthesizeCandles(pair, spot, limit, time.Now().UTC()))
}

// synthesizeCandles walks backwards from the anchor price, producing limit
// candles ending at the current minute.
func synthesizeCandles(pair string, anchor float64, limit int, now time.Time) []models.Candle {
	end := now.Truncate(klineStep)
	seed := fnv.New64a()
	seed.Write([]byte(pair))
	rng := rand.New(rand.NewSource(int64(seed.Sum64()) ^ end.Unix()))

	// Generate closes from newest to oldest, then assemble in time order.
	closes := make([]float64, limit)
	closes[limit-1] = anchor
	for i := limit - 2; i >= 0; i-- {
		drift := 1 + (rng.Float64()-0.5)*0.01
		closes[i] = closes[i+1] / drift
	}

	candles := make([]models.Candle, limit)
	for i := 0; i < limit; i++ {
		open := closes[i]
		if i > 0 {
			open = closes[i-1]
		}
		high := open
		low := open
		if closes[i] > high {
			high = closes[i]
		}
		if closes[i] < low {
			low = closes[i]
		}
		wick := (rng.Float64() * 0.002) * high
		candles[i] = models.Candle{
			Time:  end.Add(-time.Duration(limit-1-i) * klineStep).Unix(),
			Open:  open,
			High:  high + wick,
			Low:   low - wick,
			Close: closes[i],
		}
	}
	return candles
}
