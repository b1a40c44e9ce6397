// Package engine decides when orders fill and drives the settlement group
// {order status update, balance delta, holdings delta, trade append} as one
// logical unit. Market orders settle immediately against the cached spot
// price adjusted by a per-pair spread; limit orders wait in the book and
// are re-evaluated on every accepted price tick for their symbol.
package engine

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"papertrade/internal/models"
	"papertrade/internal/orderbook"
	"papertrade/internal/pricecache"
)

// DefaultSpread is the fractional price adjustment applied to market
// orders on pairs without a configured spread.
const DefaultSpread = 0.0002

// SettlementSink applies a fill's deltas and trade record atomically,
// re-validating sufficiency against current state. The account store
// implements it; the engine never imports the account package.
type SettlementSink interface {
	ApplySettlement(ctx context.Context, balanceDelta float64, symbol string, holdingsDelta float64, trade models.Trade) error
	Balance() float64
	Holding(symbol string) float64
}

// Engine is the matching engine for one user session. A single mutex
// serializes order placement, cancellation and tick processing, so a fill
// decision always reads the state it is about to mutate.
type Engine struct {
	mu      sync.Mutex
	account SettlementSink
	book    *orderbook.Book
	prices  *pricecache.Cache
	spreads map[string]float64
	log     *logrus.Logger
	notify  func(models.Trade)
}

// New creates an engine over the given account, order book and price
// cache. spreads maps pairs to their market-order spread; missing pairs
// use DefaultSpread.
func New(account SettlementSink, book *orderbook.Book, prices *pricecache.Cache, spreads map[string]float64, log *logrus.Logger) *Engine {
	return &Engine{
		account: account,
		book:    book,
		prices:  prices,
		spreads: spreads,
		log:     log,
	}
}

// SetFillNotifier registers a callback invoked after every successful
// fill, with the engine lock released.
func (e *Engine) SetFillNotifier(fn func(models.Trade)) {
	e.mu.Lock()
	e.notify = fn
	e.mu.Unlock()
}

// PlaceOrder validates and accepts a new order. Market orders settle
// immediately and are rejected synchronously, before any order object is
// created, when the price is unavailable or funds/holdings are short.
// Limit orders are parked PENDING for the tick scan.
func (e *Engine) PlaceOrder(ctx context.Context, req models.Order) (models.Order, error) {
	if err := orderbook.Validate(req); err != nil {
		return models.Order{}, err
	}

	if req.OrderType == models.TypeLimit {
		return e.book.AddOrder(ctx, req)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	base := models.BaseSymbol(req.Pair)
	spot, ok := e.prices.Get(base)
	if !ok {
		return models.Order{}, models.ErrPriceUnavailable
	}
	fillPrice := applySpread(spot, req.Side, e.spreadFor(req.Pair))

	if req.Side == models.SideBuy {
		if e.account.Balance() < fillPrice*req.Amount {
			return models.Order{}, models.ErrInsufficientFunds
		}
	} else {
		if e.account.Holding(base) < req.Amount {
			return models.Order{}, models.ErrInsufficientHoldings
		}
	}

	order := req
	order.ID = orderbook.NewOrderID()
	order.Timestamp = time.Now().UTC()
	order.Price = fillPrice

	st := Settle(order, fillPrice, order.Timestamp)
	if err := e.account.ApplySettlement(ctx, st.BalanceDelta, st.Symbol, st.HoldingsDelta, st.Trade); err != nil {
		return models.Order{}, err
	}

	placed, err := e.book.AddOrder(ctx, order)
	if err != nil {
		// Cannot happen: the request was validated above.
		e.log.WithError(err).WithField("order_id", order.ID).Error("settled market order failed to persist")
		return models.Order{}, err
	}

	e.log.WithFields(logrus.Fields{
		"order_id": placed.ID,
		"pair":     placed.Pair,
		"side":     placed.Side,
		"price":    fillPrice,
		"amount":   placed.Amount,
	}).Info("market order filled")

	e.emit(st.Trade)
	return placed, nil
}

// CancelOrder transitions a PENDING order to CANCELLED. It takes the
// engine lock so a cancellation can never interleave with a fill in
// progress for the same order.
func (e *Engine) CancelOrder(ctx context.Context, id string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.book.Cancel(ctx, id)
}

// OnTick feeds one price observation into the engine. The cache update is
// change-detecting; an unchanged price triggers no matching work. On a
// change, pending limit orders for the symbol's pair are scanned in
// arrival order and crossing orders are filled at their own limit price,
// with funds re-validated against the current account state immediately
// before each settlement. Orders that cannot be afforded this tick stay
// PENDING and are retried on the next qualifying tick.
func (e *Engine) OnTick(ctx context.Context, symbol string, price float64) {
	if price <= 0 {
		return
	}
	if !e.prices.Update(symbol, price) {
		return
	}
	e.Match(ctx, symbol, price)
}

// Match runs one pending-order scan for symbol at the given price without
// touching the price cache. The session manager uses it to fan a single
// accepted tick out to every active session.
func (e *Engine) Match(ctx context.Context, symbol string, price float64) {
	e.mu.Lock()
	defer e.mu.Unlock()

	pair := symbol + models.QuoteSuffix
	for _, o := range e.book.ListPending(pair) {
		if !crosses(o, price) {
			continue
		}
		// Re-read right before mutating: the scan snapshot may be stale.
		cur, ok := e.book.Get(o.ID)
		if !ok || cur.Status != models.StatusPending {
			continue
		}

		base := models.BaseSymbol(cur.Pair)
		if cur.Side == models.SideBuy {
			if e.account.Balance() < cur.Price*cur.Amount {
				continue
			}
		} else {
			if e.account.Holding(base) < cur.Amount {
				continue
			}
		}

		// Limit fills execute at the order's own limit price.
		st := Settle(cur, cur.Price, time.Now().UTC())
		if err := e.account.ApplySettlement(ctx, st.BalanceDelta, st.Symbol, st.HoldingsDelta, st.Trade); err != nil {
			e.log.WithError(err).WithField("order_id", cur.ID).Debug("limit fill skipped")
			continue
		}
		if !e.book.UpdateStatus(ctx, cur.ID, models.StatusFilled) {
			e.log.WithField("order_id", cur.ID).Error("settled order was already terminal")
			continue
		}

		e.log.WithFields(logrus.Fields{
			"order_id": cur.ID,
			"pair":     cur.Pair,
			"side":     cur.Side,
			"price":    cur.Price,
			"amount":   cur.Amount,
		}).Info("limit order filled")

		e.emit(st.Trade)
	}
}

// crosses reports whether the tick price makes the limit order eligible:
// buys fill at or below their limit, sells at or above.
func crosses(o models.Order, tickPrice float64) bool {
	if o.Side == models.SideBuy {
		return tickPrice <= o.Price
	}
	return tickPrice >= o.Price
}

func applySpread(spot float64, side string, spread float64) float64 {
	if side == models.SideBuy {
		return spot * (1 + spread)
	}
	return spot * (1 - spread)
}

func (e *Engine) spreadFor(pair string) float64 {
	if s, ok := e.spreads[pair]; ok {
		return s
	}
	return DefaultSpread
}

func (e *Engine) emit(trade models.Trade) {
	if e.notify == nil {
		return
	}
	// Deliver outside the lock path via goroutine so a slow consumer
	// cannot stall matching.
	fn := e.notify
	go fn(trade)
}
