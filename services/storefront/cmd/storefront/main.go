package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"time"

	"bookmart/internal/util"
	"bookmart/pkg/cache"
	"bookmart/pkg/netretry"
	"bookmart/pkg/pricing"
	"bookmart/services/storefront/internal/authclient"
	"bookmart/services/storefront/internal/cart"
	"bookmart/services/storefront/internal/cartclient"
	"bookmart/services/storefront/internal/config"
	"bookmart/services/storefront/internal/server"
	"bookmart/services/storefront/internal/session"
)

func main() {
	cfg, err := config.Load(config.ConfigPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger := util.InitLogger(cfg.LogLevel)

	catalog, err := pricing.LoadCatalog(cfg.CurrencyCatalogPath)
	if err != nil {
		log.Fatalf("failed to load currency catalog: %v", err)
	}
	engine := pricing.NewEngine(catalog)

	httpClient := &http.Client{Timeout: 30 * time.Second}
	exec := netretry.New(netretry.Options{
		Attempts: cfg.RetryAttempts,
		Timeout:  time.Duration(cfg.RetryTimeoutMs) * time.Millisecond,
		Backoff:  time.Duration(cfg.RetryBackoffMs) * time.Millisecond,
	})

	var slots cache.SlotStore
	if cfg.RedisAddr != "" {
		slots = cache.NewRedisSlotStore(cfg.RedisAddr, cfg.RedisPassword, "")
	} else {
		slots, err = cache.NewFileSlotStore(cfg.CacheDir)
		if err != nil {
			log.Fatalf("failed to init cache dir: %v", err)
		}
	}

	authClient := authclient.NewClient(cfg.StoreAPIURL, httpClient, exec)
	cartClient := cartclient.NewClient(cfg.StoreAPIURL, httpClient, exec)

	// The cart re-runs hydration whenever the confirmed session changes:
	// a sign-in adopts the remote cart, a sign-out drops to local-only.
	var cartSync *cart.Synchronizer
	sessionSync := session.New(session.Config{
		Confirmer: authClient,
		OnChange: func(session.State) {
			if cartSync == nil {
				return
			}
			ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
			defer cancel()
			cartSync.Rehydrate(ctx)
		},
	})
	cartSync = cart.New(cart.Config{
		Remote:  cartClient,
		Cache:   slots,
		Session: sessionSync.Current,
		Decoder: cart.NewDecoder(func(v float64) string {
			return engine.Format(engine.Catalog().Home().Code, v)
		}),
		MirrorConcurrency: cfg.MirrorConcurrency,
	})
	defer cartSync.Close()

	startCtx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	sessionSync.Reconcile(startCtx, nil)
	cartSync.Hydrate(startCtx)
	cancel()

	httpServer := server.New(server.Config{
		Cart:    cartSync,
		Session: sessionSync,
		Pricing: engine,
	})

	addr := ":" + cfg.Port
	srv := &http.Server{
		Addr:         addr,
		Handler:      httpServer.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	slog.Info("storefront server listening", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("server error", "err", err)
	}
}
