// Package gateway turns trade intents into confirmed fills. It owns the
// order-submission retry protocol: progressive slippage widening across a
// bounded number of attempts, with per-attempt timeouts and typed failure
// classification.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"soltrader/internal/domain"
)

// Swapper executes a single swap attempt at a fixed slippage tolerance.
// Implementations report attempt failures as errors marked via Retryable or
// Fatal; unmarked errors are treated as retryable.
type Swapper interface {
	Swap(ctx context.Context, intent domain.TradeIntent, slippageBps int) (domain.Fill, error)
}

// Config holds the retry protocol parameters.
type Config struct {
	BaseSlippageBps int
	SlippageStepBps int
	MaxAttempts     int
	AttemptTimeout  time.Duration
	RetryDelay      time.Duration
}

func (c Config) validate() error {
	if c.BaseSlippageBps <= 0 {
		return fmt.Errorf("gateway: base slippage must be > 0 bps, got %d", c.BaseSlippageBps)
	}
	if c.SlippageStepBps < 0 {
		return fmt.Errorf("gateway: slippage step must be >= 0 bps, got %d", c.SlippageStepBps)
	}
	if c.MaxAttempts < 1 {
		return fmt.Errorf("gateway: max attempts must be >= 1, got %d", c.MaxAttempts)
	}
	if c.AttemptTimeout <= 0 {
		return fmt.Errorf("gateway: attempt timeout must be > 0, got %v", c.AttemptTimeout)
	}
	if c.RetryDelay < 0 {
		return fmt.Errorf("gateway: retry delay must be >= 0, got %v", c.RetryDelay)
	}
	return nil
}

// Gateway wraps a Swapper with the progressive slippage widening policy.
// Attempt n (zero-based) is quoted at BaseSlippageBps + n*SlippageStepBps.
// A fatal failure aborts immediately without widening; when MaxAttempts
// retryable failures accumulate the result is an EXHAUSTED failure and the
// caller must treat the submission as "no state change occurred".
type Gateway struct {
	swapper Swapper
	cfg     Config
	logger  *slog.Logger
}

// New creates a Gateway around the given Swapper. Malformed retry parameters
// are rejected here, never discovered mid-submission.
func New(swapper Swapper, cfg Config, logger *slog.Logger) (*Gateway, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &Gateway{
		swapper: swapper,
		cfg:     cfg,
		logger:  logger.With(slog.String("component", "gateway")),
	}, nil
}

// Submit executes the intent under the retry policy. On failure the returned
// error is always a *domain.ExecutionFailure. A fill is authoritative proof of
// trade; the caller must never infer state from attempt count, since failed
// attempts may still have incurred on-chain side effects.
func (g *Gateway) Submit(ctx context.Context, intent domain.TradeIntent) (domain.Fill, error) {
	if err := intent.Validate(); err != nil {
		return domain.Fill{}, &domain.ExecutionFailure{Kind: domain.FailureFatal, LastErr: err}
	}

	log := g.logger.With(
		slog.String("instrument", intent.Instrument),
		slog.String("side", string(intent.Side)),
		slog.Float64("size", intent.Size),
	)

	var lastErr error
	for attempt := 0; attempt < g.cfg.MaxAttempts; attempt++ {
		slippageBps := g.cfg.BaseSlippageBps + attempt*g.cfg.SlippageStepBps

		log.Debug("submitting swap attempt",
			slog.Int("attempt", attempt),
			slog.Int("slippage_bps", slippageBps),
		)

		attemptCtx, cancel := context.WithTimeout(ctx, g.cfg.AttemptTimeout)
		fill, err := g.swapper.Swap(attemptCtx, intent, slippageBps)
		cancel()

		if err == nil {
			fill.SlippageBps = slippageBps
			fill.Attempts = attempt + 1
			log.Info("swap confirmed",
				slog.Int("attempt", attempt),
				slog.Int("slippage_bps", slippageBps),
				slog.Float64("price", fill.Price),
				slog.String("tx", fill.TxRef),
			)
			return fill, nil
		}

		if classify(err) == domain.FailureFatal {
			log.Error("swap failed fatally",
				slog.Int("attempt", attempt),
				slog.String("error", err.Error()),
			)
			return domain.Fill{}, &domain.ExecutionFailure{
				Kind:     domain.FailureFatal,
				Attempts: attempt + 1,
				LastErr:  err,
			}
		}

		lastErr = err
		log.Warn("swap attempt failed, widening slippage",
			slog.Int("attempt", attempt),
			slog.Int("slippage_bps", slippageBps),
			slog.String("error", err.Error()),
		)

		// Pause before the next attempt unless the ladder is spent.
		if attempt < g.cfg.MaxAttempts-1 {
			select {
			case <-ctx.Done():
				return domain.Fill{}, &domain.ExecutionFailure{
					Kind:     domain.FailureRetryable,
					Attempts: attempt + 1,
					LastErr:  errors.Join(ctx.Err(), lastErr),
				}
			case <-time.After(g.cfg.RetryDelay):
			}
		}
	}

	return domain.Fill{}, &domain.ExecutionFailure{
		Kind:     domain.FailureExhausted,
		Attempts: g.cfg.MaxAttempts,
		LastErr:  lastErr,
	}
}
