package models

import "time"

// Order sides and types. Sides are lowercase on orders and uppercase on
// trade records, matching the wire format the frontend expects.
const (
	SideBuy  = "buy"
	SideSell = "sell"

	TypeMarket = "market"
	TypeLimit  = "limit"
)

// Order statuses. FILLED and CANCELLED are terminal.
const (
	StatusPending   = "PENDING"
	StatusFilled    = "FILLED"
	StatusCancelled = "CANCELLED"
)

// User represents an authenticated user profile.
type User struct {
	ID           string `json:"id"`
	Email        string `json:"email"`
	Name         string `json:"name"`
	AvatarURL    string `json:"avatarUrl,omitempty"`
	PasswordHash string `json:"-"`
}

// Account holds a user's simulated funds, denominated in USDT.
type Account struct {
	UserID       string             `json:"userId"`
	Balance      float64            `json:"balance"`
	Holdings     map[string]float64 `json:"holdings"`
	TradeHistory []Trade            `json:"tradeHistory"`
	CreatedAt    time.Time          `json:"createdAt"`
	UpdatedAt    time.Time          `json:"updatedAt"`
}

// Order represents a buy or sell order placed by the user.
type Order struct {
	ID        string    `json:"id"`
	Pair      string    `json:"pair"` // e.g. "BTC/USDT"
	Side      string    `json:"side"` // "buy" or "sell"
	OrderType string    `json:"orderType"`
	Price     float64   `json:"price"` // limit: trigger price; market: fill price
	Amount    float64   `json:"amount"`
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}

// Terminal reports whether the order is in a final state.
func (o *Order) Terminal() bool {
	return o.Status == StatusFilled || o.Status == StatusCancelled
}

// Trade is an immutable record of an executed order.
type Trade struct {
	ID        string    `json:"id"` // shared with the originating order
	Pair      string    `json:"pair"`
	Side      string    `json:"side"` // "BUY" or "SELL"
	Price     float64   `json:"price"`
	Amount    float64   `json:"amount"`
	Timestamp time.Time `json:"timestamp"`
}

// CopyTrader is a trader profile offered for copy trading.
type CopyTrader struct {
	ID        string  `json:"id"`
	Name      string  `json:"name"`
	AvatarURL string  `json:"avatarUrl"`
	ROI       float64 `json:"roi"` // percent
	Followers int     `json:"followers"`
	WinRate   float64 `json:"winRate"` // percent
}

// Following records that the user copies one trader with an allocated
// amount of quote currency.
type Following struct {
	TraderID   string    `json:"traderId"`
	TraderName string    `json:"traderName"`
	Amount     float64   `json:"amount"`
	StartDate  time.Time `json:"startDate"`
}

// Tick is a single price observation from a feed.
type Tick struct {
	Symbol     string
	Price      float64
	ReceivedAt time.Time
}

// Candle is one OHLC entry for the kline endpoint.
type Candle struct {
	Time  int64   `json:"time"`
	Open  float64 `json:"open"`
	High  float64 `json:"high"`
	Low   float64 `json:"low"`
	Close float64 `json:"close"`
}

// QuoteSuffix is appended to a base symbol to form its trading pair.
// All pairs are quoted in USDT.
const QuoteSuffix = "/USDT"

// BaseSymbol extracts the base asset from a pair like "BTC/USDT".
func BaseSymbol(pair string) string {
	for i := 0; i < len(pair); i++ {
		if pair[i] == '/' {
			return pair[:i]
		}
	}
	return pair
}
