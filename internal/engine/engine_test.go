package engine

import (
	"context"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"papertrade/internal/account"
	"papertrade/internal/models"
	"papertrade/internal/orderbook"
	"papertrade/internal/pricecache"
	"papertrade/internal/store"
)

func newTestEngine(t *testing.T) (*Engine, *account.Store, *orderbook.Book, *pricecache.Cache) {
	t.Helper()
	ctx := context.Background()
	kv := store.NewMemory()
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)

	acc := account.Load(ctx, kv, "user-1", log)
	book := orderbook.Load(ctx, kv, "user-1", log)
	prices := pricecache.New()
	eng := New(acc, book, prices, map[string]float64{"BTC/USDT": 0.0002}, log)
	return eng, acc, book, prices
}

func marketOrder(side string, amount float64) models.Order {
	return models.Order{Pair: "BTC/USDT", Side: side, OrderType: models.TypeMarket, Amount: amount}
}

func limitOrder(side string, price, amount float64) models.Order {
	return models.Order{Pair: "BTC/USDT", Side: side, OrderType: models.TypeLimit, Price: price, Amount: amount}
}

func TestMarketOrder_FillsAtSpreadAdjustedPrice(t *testing.T) {
	eng, acc, _, prices := newTestEngine(t)
	ctx := context.Background()
	prices.Update("BTC", 50000)

	buy, err := eng.PlaceOrder(ctx, marketOrder("buy", 1))
	if err != nil {
		t.Fatalf("market buy: %v", err)
	}
	if buy.Price != 50000*1.0002 {
		t.Errorf("buy fill price: expected 50010, got %f", buy.Price)
	}
	if buy.Status != models.StatusFilled {
		t.Errorf("expected FILLED, got %s", buy.Status)
	}
	if got := acc.Balance(); got != account.InitialBalance-50010 {
		t.Errorf("balance after buy: expected %f, got %f", float64(account.InitialBalance-50010), got)
	}
	if got := acc.Holding("BTC"); got != 1 {
		t.Errorf("holdings after buy: expected 1, got %f", got)
	}

	sell, err := eng.PlaceOrder(ctx, marketOrder("sell", 1))
	if err != nil {
		t.Fatalf("market sell: %v", err)
	}
	if sell.Price != 50000*0.9998 {
		t.Errorf("sell fill price: expected 49990, got %f", sell.Price)
	}
	if got := acc.Holding("BTC"); got != 0 {
		t.Errorf("holdings after sell: expected 0, got %f", got)
	}

	history := acc.Snapshot().TradeHistory
	if len(history) != 2 {
		t.Fatalf("expected 2 trades, got %d", len(history))
	}
	if history[0].Side != "BUY" || history[1].Side != "SELL" {
		t.Errorf("trade sides: %s, %s", history[0].Side, history[1].Side)
	}
	if history[0].ID != buy.ID {
		t.Error("trade id must be shared with originating order")
	}
}

func TestMarketOrder_DefaultSpreadForUnconfiguredPair(t *testing.T) {
	eng, _, _, prices := newTestEngine(t)
	ctx := context.Background()
	prices.Update("ETH", 2500)

	o, err := eng.PlaceOrder(ctx, models.Order{Pair: "ETH/USDT", Side: "buy", OrderType: models.TypeMarket, Amount: 2})
	if err != nil {
		t.Fatalf("market buy: %v", err)
	}
	if o.Price != 2500*(1+DefaultSpread) {
		t.Errorf("expected default spread price %f, got %f", 2500*(1+DefaultSpread), o.Price)
	}
}

func TestMarketOrder_RejectionWithoutSideEffects(t *testing.T) {
	eng, acc, book, prices := newTestEngine(t)
	ctx := context.Background()
	prices.Update("BTC", 50000)

	// Cost far above the initial balance.
	_, err := eng.PlaceOrder(ctx, marketOrder("buy", 1e6))
	if err != models.ErrInsufficientFunds {
		t.Fatalf("expected ErrInsufficientFunds, got %v", err)
	}

	if acc.Balance() != account.InitialBalance {
		t.Error("balance changed on rejected order")
	}
	if len(acc.Snapshot().TradeHistory) != 0 {
		t.Error("trade history changed on rejected order")
	}
	if len(book.Orders()) != 0 {
		t.Error("rejected market order must not be created")
	}

	// Sell with no holdings.
	_, err = eng.PlaceOrder(ctx, marketOrder("sell", 1))
	if err != models.ErrInsufficientHoldings {
		t.Fatalf("expected ErrInsufficientHoldings, got %v", err)
	}
	if len(book.Orders()) != 0 {
		t.Error("rejected market order must not be created")
	}
}

func TestMarketOrder_PriceUnavailable(t *testing.T) {
	eng, _, book, _ := newTestEngine(t)

	_, err := eng.PlaceOrder(context.Background(), marketOrder("buy", 1))
	if err != models.ErrPriceUnavailable {
		t.Fatalf("expected ErrPriceUnavailable, got %v", err)
	}
	if len(book.Orders()) != 0 {
		t.Error("order must not be created without a price")
	}
}

func TestLimitOrder_FillsAtLimitPriceWhenCrossed(t *testing.T) {
	eng, acc, book, _ := newTestEngine(t)
	ctx := context.Background()

	o, err := eng.PlaceOrder(ctx, limitOrder("buy", 48000, 1))
	if err != nil {
		t.Fatalf("place limit: %v", err)
	}
	if o.Status != models.StatusPending {
		t.Fatalf("expected PENDING, got %s", o.Status)
	}

	// Tick above the limit: no fill.
	eng.OnTick(ctx, "BTC", 48500)
	got, _ := book.Get(o.ID)
	if got.Status != models.StatusPending {
		t.Fatal("order filled above its buy limit")
	}

	// Tick crossing below the limit: fill at the limit price, not the tick.
	eng.OnTick(ctx, "BTC", 47900)
	got, _ = book.Get(o.ID)
	if got.Status != models.StatusFilled {
		t.Fatal("crossed buy limit did not fill")
	}
	history := acc.Snapshot().TradeHistory
	if len(history) != 1 || history[0].Price != 48000 {
		t.Errorf("limit fill must execute at the limit price, got %+v", history)
	}
	if acc.Balance() != account.InitialBalance-48000 {
		t.Errorf("balance: expected %f, got %f", float64(account.InitialBalance-48000), acc.Balance())
	}
}

func TestLimitSell_CrossesAtOrAboveLimit(t *testing.T) {
	eng, acc, book, prices := newTestEngine(t)
	ctx := context.Background()

	// Acquire holdings first.
	prices.Update("BTC", 50000)
	if _, err := eng.PlaceOrder(ctx, marketOrder("buy", 2)); err != nil {
		t.Fatalf("setup buy: %v", err)
	}

	o, _ := eng.PlaceOrder(ctx, limitOrder("sell", 52000, 1))
	eng.OnTick(ctx, "BTC", 51000)
	got, _ := book.Get(o.ID)
	if got.Status != models.StatusPending {
		t.Fatal("sell filled below its limit")
	}

	eng.OnTick(ctx, "BTC", 52100)
	got, _ = book.Get(o.ID)
	if got.Status != models.StatusFilled {
		t.Fatal("crossed sell limit did not fill")
	}
	last := acc.Snapshot().TradeHistory[len(acc.Snapshot().TradeHistory)-1]
	if last.Price != 52000 || last.Side != "SELL" {
		t.Errorf("unexpected fill record: %+v", last)
	}
}

func TestLimitOrders_ArrivalOrderFairness(t *testing.T) {
	eng, acc, book, _ := newTestEngine(t)
	ctx := context.Background()

	// Shrink the balance so only one of the two orders is affordable.
	if err := acc.ApplyBalanceDelta(ctx, -(account.InitialBalance - 150)); err != nil {
		t.Fatalf("setup balance: %v", err)
	}

	a, _ := eng.PlaceOrder(ctx, limitOrder("buy", 100, 1))
	b, _ := eng.PlaceOrder(ctx, limitOrder("buy", 100, 1))

	eng.OnTick(ctx, "BTC", 100)

	gotA, _ := book.Get(a.ID)
	gotB, _ := book.Get(b.ID)
	if gotA.Status != models.StatusFilled {
		t.Error("earlier order A should fill first")
	}
	if gotB.Status != models.StatusPending {
		t.Error("later order B should be skipped when funds run out")
	}
	if acc.Balance() != 50 {
		t.Errorf("expected balance 50, got %f", acc.Balance())
	}
}

func TestLimitSell_IdempotentRetick(t *testing.T) {
	eng, acc, book, _ := newTestEngine(t)
	ctx := context.Background()

	o, _ := eng.PlaceOrder(ctx, limitOrder("sell", 100, 1))

	// Two crossing ticks with no holdings: stays PENDING, no error surfaced.
	eng.OnTick(ctx, "BTC", 105)
	eng.OnTick(ctx, "BTC", 106)
	got, _ := book.Get(o.ID)
	if got.Status != models.StatusPending {
		t.Fatal("unaffordable sell must stay PENDING across ticks")
	}

	// Holdings arrive; the next qualifying tick fills exactly once.
	if err := acc.ApplyHoldingsDelta(ctx, "BTC", 1); err != nil {
		t.Fatalf("grant holdings: %v", err)
	}
	eng.OnTick(ctx, "BTC", 107)
	got, _ = book.Get(o.ID)
	if got.Status != models.StatusFilled {
		t.Fatal("affordable crossed sell did not fill")
	}

	fills := 0
	for _, tr := range acc.Snapshot().TradeHistory {
		if tr.ID == o.ID {
			fills++
		}
	}
	if fills != 1 {
		t.Errorf("expected exactly one settlement for the order, got %d", fills)
	}
}

func TestOnTick_UnchangedPriceIsNoOp(t *testing.T) {
	eng, acc, book, _ := newTestEngine(t)
	ctx := context.Background()

	// Leave funds for exactly one of the two orders.
	if err := acc.ApplyBalanceDelta(ctx, -(account.InitialBalance - 150)); err != nil {
		t.Fatalf("setup balance: %v", err)
	}
	a, _ := eng.PlaceOrder(ctx, limitOrder("buy", 100, 1))
	b, _ := eng.PlaceOrder(ctx, limitOrder("buy", 100, 1))

	eng.OnTick(ctx, "BTC", 99)
	gotA, _ := book.Get(a.ID)
	gotB, _ := book.Get(b.ID)
	if gotA.Status != models.StatusFilled || gotB.Status != models.StatusPending {
		t.Fatalf("setup fill wrong: A=%s B=%s", gotA.Status, gotB.Status)
	}

	// Funds arrive, but a repeat of the same price is not a price change
	// and must not re-trigger matching.
	if err := acc.ApplyBalanceDelta(ctx, 1000); err != nil {
		t.Fatalf("grant funds: %v", err)
	}
	eng.OnTick(ctx, "BTC", 99)
	gotB, _ = book.Get(b.ID)
	if gotB.Status != models.StatusPending {
		t.Error("unchanged price must not re-run matching")
	}

	// An actual change fills it.
	eng.OnTick(ctx, "BTC", 98)
	gotB, _ = book.Get(b.ID)
	if gotB.Status != models.StatusFilled {
		t.Error("changed crossing price should fill the retried order")
	}
}

func TestCancelOrder_BlockedAfterFill(t *testing.T) {
	eng, _, book, _ := newTestEngine(t)
	ctx := context.Background()

	o, _ := eng.PlaceOrder(ctx, limitOrder("buy", 100, 1))
	eng.OnTick(ctx, "BTC", 99)

	if err := eng.CancelOrder(ctx, o.ID); err != models.ErrOrderNotCancellable {
		t.Errorf("expected ErrOrderNotCancellable after fill, got %v", err)
	}
	got, _ := book.Get(o.ID)
	if got.Status != models.StatusFilled {
		t.Errorf("fill must stick, got %s", got.Status)
	}
}

func TestCancelOrder_PendingOrder(t *testing.T) {
	eng, acc, book, _ := newTestEngine(t)
	ctx := context.Background()

	o, _ := eng.PlaceOrder(ctx, limitOrder("buy", 100, 1))
	if err := eng.CancelOrder(ctx, o.ID); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	got, _ := book.Get(o.ID)
	if got.Status != models.StatusCancelled {
		t.Errorf("expected CANCELLED, got %s", got.Status)
	}

	// A later crossing tick must not resurrect it.
	eng.OnTick(ctx, "BTC", 99)
	got, _ = book.Get(o.ID)
	if got.Status != models.StatusCancelled || len(acc.Snapshot().TradeHistory) != 0 {
		t.Error("cancelled order was filled")
	}
}

func TestSettle_Pure(t *testing.T) {
	now := time.Now().UTC()
	o := models.Order{ID: "order-1", Pair: "BTC/USDT", Side: "buy", Amount: 0.5}

	st := Settle(o, 40000, now)
	if st.BalanceDelta != -20000 || st.HoldingsDelta != 0.5 || st.Symbol != "BTC" {
		t.Errorf("buy settlement wrong: %+v", st)
	}
	if st.Trade.Side != "BUY" || st.Trade.Price != 40000 || st.Trade.ID != "order-1" {
		t.Errorf("buy trade wrong: %+v", st.Trade)
	}

	o.Side = "sell"
	st = Settle(o, 40000, now)
	if st.BalanceDelta != 20000 || st.HoldingsDelta != -0.5 {
		t.Errorf("sell settlement wrong: %+v", st)
	}
	if st.Trade.Side != "SELL" {
		t.Errorf("sell trade side wrong: %s", st.Trade.Side)
	}
}

func TestFillNotifier_ReceivesTrades(t *testing.T) {
	eng, _, _, prices := newTestEngine(t)
	ctx := context.Background()
	prices.Update("BTC", 50000)

	fills := make(chan models.Trade, 1)
	eng.SetFillNotifier(func(tr models.Trade) { fills <- tr })

	o, err := eng.PlaceOrder(ctx, marketOrder("buy", 1))
	if err != nil {
		t.Fatalf("market buy: %v", err)
	}

	select {
	case tr := <-fills:
		if tr.ID != o.ID || tr.Pair != "BTC/USDT" {
			t.Errorf("unexpected fill event: %+v", tr)
		}
	case <-time.After(time.Second):
		t.Fatal("no fill event delivered")
	}
}
