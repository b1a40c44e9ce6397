package engine

import (
	"strings"
	"time"

	"papertrade/internal/models"
)

// Settlement is the account mutation implied by filling one order: a cash
// delta, a base-asset holdings delta and the trade record to append. The
// same computation serves immediate market fills and deferred limit fills.
type Settlement struct {
	BalanceDelta  float64
	Symbol        string
	HoldingsDelta float64
	Trade         models.Trade
}

// Settle computes the settlement for an order executed at fillPrice.
// It is pure: sufficiency of funds or holdings is the caller's concern.
func Settle(o models.Order, fillPrice float64, executedAt time.Time) Settlement {
	base := models.BaseSymbol(o.Pair)
	cost := fillPrice * o.Amount

	s := Settlement{
		Symbol: base,
		Trade: models.Trade{
			ID:        o.ID,
			Pair:      o.Pair,
			Side:      strings.ToUpper(o.Side),
			Price:     fillPrice,
			Amount:    o.Amount,
			Timestamp: executedAt,
		},
	}
	if o.Side == models.SideBuy {
		s.BalanceDelta = -cost
		s.HoldingsDelta = o.Amount
	} else {
		s.BalanceDelta = cost
		s.HoldingsDelta = -o.Amount
	}
	return s
}
