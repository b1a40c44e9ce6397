// Package feed delivers live price ticks. Two sources are provided, a
// websocket stream and an HTTP poller; both push into the same TickSink
// so downstream matching is transport-agnostic. Each symbol is served by
// exactly one goroutine, which keeps per-symbol ticks in arrival order.
package feed

import "context"

// TickSink consumes price observations. The matching engine implements it.
type TickSink interface {
	OnTick(ctx context.Context, symbol string, price float64)
}

// Source streams prices for a set of symbols until the context ends.
type Source interface {
	Run(ctx context.Context)
}
