package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// DefaultRESTURL is the Binance REST API base used by the poller.
const DefaultRESTURL = "https://api.binance.com"

// PollSource fetches ticker prices on a fixed interval, one goroutine per
// symbol. It serves deployments where outbound websockets are blocked.
type PollSource struct {
	BaseURL  string
	Symbols  []string
	Interval time.Duration
	Sink     TickSink
	Log      *logrus.Logger
	Client   *http.Client
}

// NewPollSource creates a polling price source for the given base symbols.
func NewPollSource(baseURL string, symbols []string, interval time.Duration, sink TickSink, log *logrus.Logger) *PollSource {
	return &PollSource{
		BaseURL:  baseURL,
		Symbols:  symbols,
		Interval: interval,
		Sink:     sink,
		Log:      log,
		Client:   &http.Client{Timeout: 5 * time.Second},
	}
}

// Run polls each symbol until ctx is done. An immediate fetch precedes the
// first interval so prices are available at startup.
func (p *PollSource) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for _, symbol := range p.Symbols {
		wg.Add(1)
		go func(sym string) {
			defer wg.Done()
			p.pollSymbol(ctx, sym)
		}(symbol)
	}
	wg.Wait()
}

func (p *PollSource) pollSymbol(ctx context.Context, symbol string) {
	ticker := time.NewTicker(p.Interval)
	defer ticker.Stop()

	p.fetchOnce(ctx, symbol)
	for {
		select {
		case <-ticker.C:
			p.fetchOnce(ctx, symbol)
		case <-ctx.Done():
			return
		}
	}
}

func (p *PollSource) fetchOnce(ctx context.Context, symbol string) {
	price, err := p.fetchPrice(ctx, symbol)
	if err != nil {
		if ctx.Err() == nil {
			p.Log.WithError(err).WithField("symbol", symbol).Warn("price poll failed")
		}
		return
	}
	p.Sink.OnTick(ctx, symbol, price)
}

// tickerResponse matches the exchange's /api/v3/ticker/price payload.
type tickerResponse struct {
	Symbol string `json:"symbol"`
	Price  string `json:"price"`
}

func (p *PollSource) fetchPrice(ctx context.Context, symbol string) (float64, error) {
	url := fmt.Sprintf("%s/api/v3/ticker/price?symbol=%sUSDT", p.BaseURL, symbol)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, errors.Wrap(err, "failed to build ticker request")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := p.Client.Do(req)
	if err != nil {
		return 0, errors.Wrap(err, "failed to fetch ticker")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("ticker request failed with status %d", resp.StatusCode)
	}

	var body tickerResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return 0, errors.Wrap(err, "failed to decode ticker response")
	}
	price, err := strconv.ParseFloat(body.Price, 64)
	if err != nil {
		return 0, errors.Wrap(err, "unparseable ticker price")
	}
	if price <= 0 {
		return 0, fmt.Errorf("non-positive ticker price: %f", price)
	}
	return price, nil
}
