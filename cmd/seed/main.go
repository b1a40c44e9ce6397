package main

import (
	"context"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"

	"papertrade/internal/account"
	"papertrade/internal/auth"
	"papertrade/internal/config"
	"papertrade/internal/engine"
	"papertrade/internal/models"
	"papertrade/internal/orderbook"
	"papertrade/internal/pricecache"
	"papertrade/internal/store"
)

// Seed the configured store with a demo user, a funded wallet with a few
// executed trades, and a spread of resting limit orders. Safe to run on a
// fresh store; refuses to touch one that already has demo data.
func main() {
	log := logrus.New()
	ctx := context.Background()

	configPath := os.Getenv("CONFIG_FILE")
	if configPath == "" {
		configPath = "config.yaml"
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		log.WithError(err).Fatal("failed to load config")
	}

	kv, err := store.Open(ctx, cfg.StoreBackend, cfg.DataDir, cfg.RedisAddr, cfg.PostgresConn)
	if err != nil {
		log.WithError(err).Fatal("failed to open store")
	}

	const email = "demo@example.com"
	userID := auth.UserIDFromEmail(email)

	if _, err := kv.Get(ctx, store.AccountKey(userID)); err == nil {
		fmt.Println("Demo account already exists. No need to seed.")
		os.Exit(0)
	}

	// Provision the user so the demo credentials work at login.
	authService := auth.NewService(kv, cfg.JWTSecret)
	if _, _, err := authService.Login(ctx, email, "demo1234"); err != nil {
		log.WithError(err).Fatal("failed to provision demo user")
	}

	acc := account.Load(ctx, kv, userID, log)
	book := orderbook.Load(ctx, kv, userID, log)

	prices := pricecache.New()
	prices.Update("BTC", 67000)
	prices.Update("ETH", 3500)
	prices.Update("SOL", 150)

	eng := engine.New(acc, book, prices, cfg.Spreads, log)

	// A couple of settled market orders for wallet and history.
	market := []models.Order{
		{Pair: "BTC/USDT", Side: models.SideBuy, OrderType: models.TypeMarket, Amount: 0.5},
		{Pair: "ETH/USDT", Side: models.SideBuy, OrderType: models.TypeMarket, Amount: 10},
		{Pair: "BTC/USDT", Side: models.SideSell, OrderType: models.TypeMarket, Amount: 0.1},
	}
	for _, o := range market {
		placed, err := eng.PlaceOrder(ctx, o)
		if err != nil {
			log.WithError(err).Fatalf("failed to seed %s %s order", o.Side, o.Pair)
		}
		fmt.Printf("filled %s %s %s at %.2f\n", placed.Side, placed.Pair, placed.ID, placed.Price)
	}

	// Resting limit orders on both sides of the market.
	limits := []models.Order{
		{Pair: "BTC/USDT", Side: models.SideBuy, OrderType: models.TypeLimit, Price: 60000, Amount: 0.2},
		{Pair: "BTC/USDT", Side: models.SideSell, OrderType: models.TypeLimit, Price: 75000, Amount: 0.2},
		{Pair: "ETH/USDT", Side: models.SideBuy, OrderType: models.TypeLimit, Price: 3000, Amount: 5},
		{Pair: "SOL/USDT", Side: models.SideBuy, OrderType: models.TypeLimit, Price: 120, Amount: 50},
	}
	for _, o := range limits {
		placed, err := eng.PlaceOrder(ctx, o)
		if err != nil {
			log.WithError(err).Fatalf("failed to seed limit %s %s order", o.Side, o.Pair)
		}
		fmt.Printf("resting %s %s %s at %.2f\n", placed.Side, placed.Pair, placed.ID, placed.Price)
	}

	snap := acc.Snapshot()
	fmt.Printf("Seeded %s: balance %.2f, %d holdings, %d trades, %d orders\n",
		email, snap.Balance, len(snap.Holdings), len(snap.TradeHistory), len(book.Orders()))
}
