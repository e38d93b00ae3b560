package main

import (
	"log"
	"log/slog"
	"net/http"
	"time"

	"bookmart/internal/ratelimit"
	"bookmart/internal/util"
	"bookmart/services/storeapi/internal/config"
	"bookmart/services/storeapi/internal/server"
	"bookmart/services/storeapi/internal/store"
	"bookmart/services/storeapi/internal/token"
)

func main() {
	cfg, err := config.Load(config.ConfigPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger := util.InitLogger(cfg.LogLevel)

	tokens, err := token.NewManager(token.Config{
		Secret:   cfg.TokenSecret,
		Issuer:   cfg.TokenIssuer,
		Audience: cfg.TokenAudience,
	})
	if err != nil {
		log.Fatalf("failed to init token manager: %v", err)
	}

	var cartStore store.CartStore
	if cfg.DatabaseURL != "" {
		cartStore, err = store.NewGormCartStore(cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("failed to init cart store: %v", err)
		}
	} else {
		slog.Warn("no databaseURL configured, carts are in-memory only")
		cartStore = store.NewMemoryCartStore()
	}

	var refresh store.RefreshValidator
	var limiter *ratelimit.FixedWindowLimiter
	if cfg.RedisAddr != "" {
		refresh = store.NewRedisRefreshValidator(cfg.RedisAddr, cfg.RedisPassword)
		if cfg.ConfirmRateLimit > 0 {
			window := time.Duration(cfg.ConfirmRateWindowSecs) * time.Second
			if window <= 0 {
				window = time.Minute
			}
			limiter, err = ratelimit.NewRedisFixedWindowLimiter(
				cfg.RedisAddr, cfg.RedisPassword, "storeapi", cfg.ConfirmRateLimit, window)
			if err != nil {
				log.Fatalf("failed to init rate limiter: %v", err)
			}
		}
	} else {
		slog.Warn("no redisAddr configured, refresh registrations are in-memory only")
		refresh = store.NewMemoryRefreshValidator()
	}

	httpServer := server.New(server.Config{
		Cart:       cartStore,
		Refresh:    refresh,
		Tokens:     tokens,
		Limiter:    limiter,
		RefreshTTL: time.Duration(cfg.RefreshTTLHours) * time.Hour,
	})

	addr := ":" + cfg.Port
	srv := &http.Server{
		Addr:         addr,
		Handler:      httpServer.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	slog.Info("storeapi server listening", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("server error", "err", err)
	}
}
