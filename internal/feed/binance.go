package feed

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// DefaultStreamURL is the Binance trade stream endpoint.
const DefaultStreamURL = "wss://stream.binance.com:9443/ws"

// WSSource streams trade prices over one websocket connection per symbol.
type WSSource struct {
	URL       string
	Symbols   []string
	Sink      TickSink
	Log       *logrus.Logger
	Reconnect time.Duration
}

// NewWSSource creates a websocket price source for the given base symbols
// (e.g. "BTC"), streaming their USDT trade pairs.
func NewWSSource(url string, symbols []string, sink TickSink, log *logrus.Logger) *WSSource {
	return &WSSource{
		URL:       url,
		Symbols:   symbols,
		Sink:      sink,
		Log:       log,
		Reconnect: 5 * time.Second,
	}
}

// Run opens one stream per symbol and blocks until ctx is done. Dropped
// connections are redialed after the reconnect delay.
func (s *WSSource) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for _, symbol := range s.Symbols {
		wg.Add(1)
		go func(sym string) {
			defer wg.Done()
			s.streamSymbol(ctx, sym)
		}(symbol)
	}
	wg.Wait()
}

func (s *WSSource) streamSymbol(ctx context.Context, symbol string) {
	url := s.URL + "/" + strings.ToLower(symbol) + "usdt@trade"
	for {
		if err := s.readLoop(ctx, url, symbol); err != nil {
			if ctx.Err() != nil {
				return
			}
			s.Log.WithError(err).WithField("symbol", symbol).Warn("price stream dropped, reconnecting")
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(s.Reconnect):
		}
	}
}

// tradeEvent is the subset of the Binance trade payload we consume.
type tradeEvent struct {
	Price string `json:"p"`
}

func (s *WSSource) readLoop(ctx context.Context, url, symbol string) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return errors.Wrap(err, "failed to dial price stream")
	}
	defer conn.Close()

	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return errors.Wrap(err, "failed to read price stream")
		}
		var ev tradeEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			s.Log.WithError(err).WithField("symbol", symbol).Debug("unparseable stream message")
			continue
		}
		price, err := strconv.ParseFloat(ev.Price, 64)
		if err != nil || price <= 0 {
			continue
		}
		s.Sink.OnTick(ctx, symbol, price)
	}
}
