package app

import (
	"context"
	"fmt"
	"log/slog"

	"soltrader/internal/cache/redis"
	"soltrader/internal/config"
	"soltrader/internal/domain"
	"soltrader/internal/feed"
	"soltrader/internal/gateway"
	"soltrader/internal/gateway/jupiter"
	"soltrader/internal/notify"
	"soltrader/internal/platform/helius"
	"soltrader/internal/store/postgres"
	"soltrader/internal/wallet"
)

// Dependencies bundles every domain-level dependency the application modes
// need. It is constructed by Wire and torn down by the returned cleanup
// function.
type Dependencies struct {
	PositionStore domain.PositionStore
	CandleStore   domain.CandleStore
	CandleCache   domain.LiveCandleCache
	Feed          domain.CandleFeed

	Wallet  *wallet.Wallet
	Helius  *helius.Client
	Gateway *gateway.Gateway

	Notifier *notify.Notifier
}

// needsWallet reports whether the mode submits orders and therefore needs
// signing keys and the swap gateway.
func needsWallet(mode string) bool {
	return mode == "trade" || mode == "full"
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that should
// be called on shutdown to release resources.
func Wire(ctx context.Context, cfg *config.Config) (*Dependencies, func(), error) {
	logger := slog.Default()

	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{}

	// --- PostgreSQL ---
	pgClient, err := postgres.New(ctx, postgres.ClientConfig{
		DSN:      cfg.Database.DSN,
		Host:     cfg.Database.Host,
		Port:     cfg.Database.Port,
		Database: cfg.Database.Database,
		User:     cfg.Database.User,
		Password: cfg.Database.Password,
		SSLMode:  cfg.Database.SSLMode,
		MaxConns: cfg.Database.PoolMaxConns,
		MinConns: cfg.Database.PoolMinConns,
	})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: postgres: %w", err)
	}
	closers = append(closers, pgClient.Close)

	if cfg.Database.RunMigrations {
		if err := pgClient.RunMigrations(ctx); err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
		}
	}

	pool := pgClient.Pool()
	deps.PositionStore = postgres.NewPositionStore(pool)
	deps.CandleStore = postgres.NewCandleStore(pool)

	// --- Redis ---
	redisClient, err := redis.New(ctx, redis.ClientConfig{
		Addr:       cfg.Redis.Addr,
		Password:   cfg.Redis.Password,
		DB:         cfg.Redis.DB,
		PoolSize:   cfg.Redis.PoolSize,
		MaxRetries: cfg.Redis.MaxRetries,
		TLSEnabled: cfg.Redis.TLSEnabled,
	})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: redis: %w", err)
	}
	closers = append(closers, func() { _ = redisClient.Close() })

	// Live candles expire once they are far past any reasonable staleness
	// window, so a dead feed never leaves a frozen price behind.
	deps.CandleCache = redis.NewCandleCache(redisClient, 10*cfg.Feed.MaxStale.Duration)
	deps.Feed = feed.New(deps.CandleStore, deps.CandleCache, cfg.Feed.MaxStale.Duration)

	// --- Solana RPC ---
	deps.Helius = helius.New(cfg.Helius.RPCURL, cfg.Helius.APIKey, cfg.Helius.Commitment)

	// --- Wallet and swap gateway (trading modes only) ---
	if needsWallet(cfg.Mode) {
		w, err := wallet.Load(wallet.KeyConfig{
			SecretKey:        cfg.Wallet.SecretKey,
			EncryptedKeyPath: cfg.Wallet.EncryptedKeyPath,
			KeyPassword:      cfg.Wallet.KeyPassword,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: wallet: %w", err)
		}
		deps.Wallet = w

		swapper := jupiter.New(
			cfg.Jupiter.QuoteURL,
			cfg.Jupiter.SwapURL,
			cfg.Jupiter.APIKey,
			w,
			deps.Helius,
			logger,
		)
		gw, err := gateway.New(swapper, gateway.Config{
			BaseSlippageBps: cfg.Gateway.BaseSlippageBps,
			SlippageStepBps: cfg.Gateway.SlippageStepBps,
			MaxAttempts:     cfg.Gateway.MaxAttempts,
			AttemptTimeout:  cfg.Gateway.AttemptTimeout.Duration,
			RetryDelay:      cfg.Gateway.RetryDelay.Duration,
		}, logger)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: gateway: %w", err)
		}
		deps.Gateway = gw
	}

	// --- Notifications ---
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(
			cfg.Notify.TelegramToken,
			cfg.Notify.TelegramChatID,
		))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	deps.Notifier = notify.New(senders, cfg.Notify.Events, logger)

	return deps, cleanup, nil
}
