package app

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"soltrader/internal/engine"
	"soltrader/internal/feed"
	"soltrader/internal/strategy"
)

// TradeMode starts one execution engine per configured instrument. The feed is
// assumed to be populated externally (a separate process in feed mode).
func (a *App) TradeMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting trade mode",
		slog.Int("instruments", len(a.cfg.Trading.Instruments)),
		slog.String("strategy", a.cfg.Strategy.Name),
	)

	g, ctx := errgroup.WithContext(ctx)
	if err := a.startEngines(ctx, g, deps); err != nil {
		return fmt.Errorf("trade mode: %w", err)
	}
	return g.Wait()
}

// FeedMode starts only the websocket ingestor. Useful for running the market
// data pipeline on a separate box from the trading engines.
func (a *App) FeedMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting feed mode",
		slog.String("ws_url", a.cfg.Feed.WsURL),
	)

	g, ctx := errgroup.WithContext(ctx)
	a.startIngestor(ctx, g, deps)
	return g.Wait()
}

// FullMode starts the ingestor and the trading engines in one process.
func (a *App) FullMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting full mode",
		slog.Int("instruments", len(a.cfg.Trading.Instruments)),
		slog.String("strategy", a.cfg.Strategy.Name),
	)

	g, ctx := errgroup.WithContext(ctx)
	a.startIngestor(ctx, g, deps)
	if err := a.startEngines(ctx, g, deps); err != nil {
		return fmt.Errorf("full mode: %w", err)
	}
	return g.Wait()
}

// startEngines builds the configured strategy and adds one engine goroutine
// per instrument to the errgroup. Each engine owns its instrument's position
// exclusively; they share the feed, gateway, and stores as stateless-per-call
// collaborators.
func (a *App) startEngines(ctx context.Context, g *errgroup.Group, deps *Dependencies) error {
	if deps.Gateway == nil || deps.Wallet == nil {
		return fmt.Errorf("engines require a wallet and gateway")
	}

	stratCfg := strategy.Config{
		Params: strategy.Params{
			StopLossPct:   a.cfg.Strategy.StopLossPct,
			TakeProfitPct: a.cfg.Strategy.TakeProfitPct,
			MaxHold:       a.cfg.Strategy.MaxHoldDuration.Duration,
			Cooldown:      a.cfg.Strategy.CooldownDuration.Duration,
		},
		Goliath: strategy.GoliathOpts{
			MAPeriods:        a.cfg.Strategy.Goliath.MAPeriods,
			VolumeMultiplier: a.cfg.Strategy.Goliath.VolumeMultiplier,
		},
		Momentum: strategy.MomentumOpts{
			MinPriceMomentumPct: a.cfg.Strategy.Momentum.MinPriceMomentumPct,
			MinVolMomentumPct:   a.cfg.Strategy.Momentum.MinVolMomentumPct,
			RSIPeriod:           a.cfg.Strategy.Momentum.RSIPeriod,
			MaxRSI:              a.cfg.Strategy.Momentum.MaxRSI,
		},
		EMAGradient: strategy.EMAGradientOpts{
			EMAPeriod:         a.cfg.Strategy.EMAGradient.EMAPeriod,
			GradientThreshold: a.cfg.Strategy.EMAGradient.GradientThreshold,
		},
	}
	registry := strategy.DefaultRegistry()

	for _, instrument := range a.cfg.Trading.Instruments {
		instrument := instrument
		// Strategies may keep per-instrument lookback state in the future,
		// so each engine gets its own instance.
		strat, err := registry.New(a.cfg.Strategy.Name, stratCfg)
		if err != nil {
			return fmt.Errorf("build strategy: %w", err)
		}

		eng, err := engine.New(engine.Config{
			Instrument:        instrument,
			LoopDelay:         a.cfg.Trading.LoopDelay.Duration,
			Lookback:          a.cfg.Trading.Lookback,
			BalancePercentage: a.cfg.Trading.BalancePercentage,
			MinTradeSizeSOL:   a.cfg.Trading.MinTradeSizeSOL,
			FeeBufferSOL:      a.cfg.Trading.FeeBufferSOL,
			RentBufferSOL:     a.cfg.Trading.RentBufferSOL,
		}, strat, deps.Feed, deps.Gateway, deps.PositionStore, deps.Helius, deps.Wallet.PublicKey(), deps.Notifier, a.logger)
		if err != nil {
			return fmt.Errorf("build engine for %s: %w", instrument, err)
		}

		g.Go(func() error {
			if err := eng.Run(ctx); err != nil && ctx.Err() == nil {
				return fmt.Errorf("engine %s: %w", instrument, err)
			}
			return nil
		})
	}
	return nil
}

// startIngestor adds the websocket candle ingestor to the errgroup.
func (a *App) startIngestor(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	ingestor := feed.NewWSIngestor(
		a.cfg.Feed.WsURL,
		a.cfg.Trading.Instruments,
		a.cfg.Feed.CandleInterval.Duration,
		deps.CandleStore,
		deps.CandleCache,
		a.logger,
	)
	g.Go(func() error {
		defer ingestor.Close()
		if err := ingestor.Run(ctx); err != nil && ctx.Err() == nil {
			return fmt.Errorf("ingestor: %w", err)
		}
		return nil
	})
}
