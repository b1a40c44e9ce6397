package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/sirupsen/logrus"

	"papertrade/internal/api"
	"papertrade/internal/auth"
	"papertrade/internal/config"
	"papertrade/internal/feed"
	"papertrade/internal/pricecache"
	"papertrade/internal/session"
	"papertrade/internal/store"
)

// Main entry point: sets up storage, sessions, price feed and HTTP server.
func main() {
	log := logrus.New()
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	configPath := os.Getenv("CONFIG_FILE")
	if configPath == "" {
		configPath = "config.yaml"
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		log.WithError(err).Fatal("failed to load config")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	kv, err := store.Open(ctx, cfg.StoreBackend, cfg.DataDir, cfg.RedisAddr, cfg.PostgresConn)
	if err != nil {
		log.WithError(err).Fatal("failed to open store")
	}

	prices := pricecache.New()
	sessions := session.NewManager(kv, prices, cfg.Spreads, log)
	authService := auth.NewService(kv, cfg.JWTSecret)
	handler := api.NewHandler(sessions, authService, prices, log)

	hub := api.NewHub(log)
	sessions.SetFillNotifier(hub.BroadcastFill)

	// Start the price feed. Every tick drives the matching scan.
	var source feed.Source
	switch cfg.FeedMode {
	case "poll":
		restURL := cfg.RESTURL
		if restURL == "" {
			restURL = feed.DefaultRESTURL
		}
		source = feed.NewPollSource(restURL, cfg.Symbols, cfg.ParsedPollInterval, sessions, log)
	default:
		streamURL := cfg.StreamURL
		if streamURL == "" {
			streamURL = feed.DefaultStreamURL
		}
		source = feed.NewWSSource(streamURL, cfg.Symbols, sessions, log)
	}
	go source.Run(ctx)

	r := chi.NewRouter()

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Handle("/*", http.FileServer(http.Dir(cfg.StaticDir)))
	r.Get("/ws", hub.ServeWS)
	handler.Routes(r)

	server := &http.Server{Addr: cfg.Addr, Handler: r}
	go func() {
		log.WithFields(logrus.Fields{
			"addr":    cfg.Addr,
			"backend": cfg.StoreBackend,
			"feed":    cfg.FeedMode,
		}).Info("starting server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Fatal("server failed")
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("shutdown failed")
	}
	if closer, ok := kv.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			log.WithError(err).Error("failed to close store")
		}
	}
}
