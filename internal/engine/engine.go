// Package engine runs the per-instrument trading loop. Each engine is a
// SCANNING -> HOLDING -> CLOSING state machine that owns every position
// mutation for its instrument: it fetches candles, asks the strategy for a
// decision, submits intents to the gateway, and persists the outcome, one
// iteration at a time.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"soltrader/internal/domain"
	"soltrader/internal/strategy"
)

// State is the engine's position in its trading cycle.
type State string

const (
	// StateScanning means no open position, looking for an entry.
	StateScanning State = "SCANNING"
	// StateHolding means a position is open and monitored for exit.
	StateHolding State = "HOLDING"
	// StateClosing means an exit fired and the gateway result is pending.
	StateClosing State = "CLOSING"
)

const lamportsPerSOL = 1_000_000_000

// Gateway submits trade intents and returns confirmed fills. Failures are
// always *domain.ExecutionFailure values.
type Gateway interface {
	Submit(ctx context.Context, intent domain.TradeIntent) (domain.Fill, error)
}

// BalanceSource reports the wallet's SOL balance in lamports.
type BalanceSource interface {
	GetSOLBalance(ctx context.Context, pubkey string) (uint64, error)
}

// Alerter receives trade lifecycle notifications. All methods must be safe to
// call from the trading loop and must never block it for long.
type Alerter interface {
	PositionOpened(ctx context.Context, pos domain.Position, fill domain.Fill)
	PositionClosed(ctx context.Context, pos domain.Position, reason string)
	Failure(ctx context.Context, instrument string, err error)
}

// Config holds the per-instrument loop and sizing parameters.
type Config struct {
	Instrument string
	Symbol     string
	LoopDelay  time.Duration
	Lookback   int

	// Sizing: a BUY spends BalancePercentage of the balance left after the
	// fee and rent buffers. The buffers are a hard floor, never spent.
	BalancePercentage float64
	MinTradeSizeSOL   float64
	FeeBufferSOL      float64
	RentBufferSOL     float64
}

func (c Config) validate() error {
	if c.Instrument == "" {
		return errors.New("engine: instrument must not be empty")
	}
	if c.LoopDelay <= 0 {
		return fmt.Errorf("engine: loop delay must be > 0, got %v", c.LoopDelay)
	}
	if c.Lookback <= 0 {
		return fmt.Errorf("engine: lookback must be > 0, got %d", c.Lookback)
	}
	if c.BalancePercentage <= 0 || c.BalancePercentage > 1 {
		return fmt.Errorf("engine: balance percentage must be in (0, 1], got %v", c.BalancePercentage)
	}
	return nil
}

// Engine is the trading loop for one instrument. It is not safe for
// concurrent use; run exactly one engine per instrument.
type Engine struct {
	cfg      Config
	strat    strategy.Strategy
	feed     domain.CandleFeed
	gateway  Gateway
	store    domain.PositionStore
	balance  BalanceSource
	owner    string // wallet pubkey for balance queries
	alerts   Alerter
	logger   *slog.Logger

	state State
	pos   *domain.Position
	// lastExit feeds the strategy cooldown; it survives across positions but
	// not restarts (a restart clears the cooldown, matching a fresh start).
	lastExit *time.Time
	// lastProcessed is the timestamp of the newest candle acted on. A candle
	// at or before it is stale and skipped.
	lastProcessed time.Time

	// pendingCreate/pendingClose hold a persistence write that failed
	// transiently after the gateway already filled. They are flushed before
	// any new decision so the store never lags the chain by more than one
	// write.
	pendingCreate bool
	pendingClose  *domain.ClosePosition
}

// New creates an Engine. It fails on malformed configuration so a bad config
// never enters the loop.
func New(cfg Config, strat strategy.Strategy, feed domain.CandleFeed, gw Gateway, store domain.PositionStore, balance BalanceSource, owner string, alerts Alerter, logger *slog.Logger) (*Engine, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if strat == nil {
		return nil, errors.New("engine: strategy must not be nil")
	}
	return &Engine{
		cfg:     cfg,
		strat:   strat,
		feed:    feed,
		gateway: gw,
		store:   store,
		balance: balance,
		owner:   owner,
		alerts:  alerts,
		logger: logger.With(
			slog.String("component", "engine"),
			slog.String("instrument", cfg.Instrument),
			slog.String("strategy", strat.Name()),
		),
		state: StateScanning,
	}, nil
}

// State returns the engine's current state.
func (e *Engine) State() State {
	return e.state
}

// Run executes the trading loop until ctx is cancelled or an unrecoverable
// consistency violation is found. Per-iteration failures are logged and
// skipped; they never stop the loop.
func (e *Engine) Run(ctx context.Context) error {
	if err := e.recover(ctx); err != nil {
		return err
	}
	e.logger.Info("engine started",
		slog.String("state", string(e.state)),
		slog.Duration("loop_delay", e.cfg.LoopDelay),
	)

	for {
		select {
		case <-ctx.Done():
			return e.shutdown(ctx)
		default:
		}

		if err := e.iterate(ctx); err != nil {
			e.logger.Error("engine halted", slog.String("error", err.Error()))
			if e.alerts != nil {
				e.alerts.Failure(context.WithoutCancel(ctx), e.cfg.Instrument, err)
			}
			return err
		}

		select {
		case <-ctx.Done():
			return e.shutdown(ctx)
		case <-time.After(e.cfg.LoopDelay):
		}
	}
}

// shutdown makes a final attempt to persist any write still owed to the store
// before the loop exits. A fill already happened on chain; losing its record
// would let a restarted engine buy again on top of it.
func (e *Engine) shutdown(ctx context.Context) error {
	if e.pendingCreate || e.pendingClose != nil {
		if err := e.flushPending(context.WithoutCancel(ctx)); err != nil {
			e.logger.Error("pending write not persisted during shutdown", slog.String("error", err.Error()))
		}
	}
	e.logger.Info("shutdown complete", slog.String("state", string(e.state)))
	return ctx.Err()
}

// recover restores state from the store so a restart resumes where the
// previous process stopped.
func (e *Engine) recover(ctx context.Context) error {
	pos, err := e.store.FindOpen(ctx, e.cfg.Instrument)
	if err != nil {
		if errors.Is(err, domain.ErrConsistency) {
			return fmt.Errorf("engine: recover: %w", err)
		}
		// A transient read error at startup is not worth refusing to start
		// over; the position, if any, is found on the first HOLDING flush.
		e.logger.Warn("recover open position failed, starting in SCANNING",
			slog.String("error", err.Error()))
		return nil
	}
	if pos != nil {
		e.pos = pos
		e.state = StateHolding
		e.logger.Info("recovered open position",
			slog.String("position_id", pos.ID),
			slog.Float64("entry_price", pos.EntryPrice),
		)
	}
	return nil
}

// iterate runs one cycle of the state machine. A non-nil return halts the
// engine; everything recoverable is logged and swallowed here.
func (e *Engine) iterate(ctx context.Context) error {
	if err := e.flushPending(ctx); err != nil {
		return err
	}

	current, err := e.feed.Current(ctx, e.cfg.Instrument)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrFeedStale):
			e.logger.Warn("feed stale, skipping iteration", slog.String("error", err.Error()))
		case errors.Is(err, domain.ErrFeedUnavailable):
			e.logger.Warn("feed unavailable, skipping iteration", slog.String("error", err.Error()))
		default:
			e.logger.Error("feed error, skipping iteration", slog.String("error", err.Error()))
		}
		return nil
	}
	if !current.Timestamp.After(e.lastProcessed) {
		e.logger.Warn("feed stale, skipping iteration",
			slog.Time("candle_ts", current.Timestamp),
			slog.Time("last_processed", e.lastProcessed),
		)
		return nil
	}

	switch e.state {
	case StateScanning:
		if err := e.scan(ctx, current); err != nil {
			return err
		}
	case StateHolding:
		if err := e.holdOrClose(ctx, current); err != nil {
			return err
		}
	}

	e.lastProcessed = current.Timestamp
	return nil
}

// flushPending retries a persistence write left over from a previous
// iteration. Until it succeeds no new decision is made for the position.
func (e *Engine) flushPending(ctx context.Context) error {
	if e.pendingCreate && e.pos != nil {
		if _, err := e.store.CreateOpen(ctx, *e.pos); err != nil {
			if errors.Is(err, domain.ErrConsistency) {
				return fmt.Errorf("engine: persist open position: %w", err)
			}
			e.logger.Error("persist open position failed, will retry",
				slog.String("position_id", e.pos.ID),
				slog.String("error", err.Error()),
			)
			return nil
		}
		e.pendingCreate = false
		e.logger.Info("open position persisted after retry", slog.String("position_id", e.pos.ID))
	}
	if e.pendingClose != nil && e.pos != nil {
		if err := e.store.Close(ctx, e.pos.ID, *e.pendingClose); err != nil {
			if e.isStoreInvariantBreach(err) {
				return fmt.Errorf("engine: persist close: %w", err)
			}
			e.logger.Error("persist close failed, will retry",
				slog.String("position_id", e.pos.ID),
				slog.String("error", err.Error()),
			)
			return nil
		}
		e.finishClose(ctx, *e.pendingClose, "recovered close")
	}
	return nil
}

// scan evaluates an entry. The engine must be SCANNING and not shutting down
// to issue a BUY.
func (e *Engine) scan(ctx context.Context, current domain.Candle) error {
	lookback, err := e.feed.Recent(ctx, e.cfg.Instrument, e.cfg.Lookback)
	if err != nil {
		e.logger.Warn("lookback fetch failed, skipping iteration", slog.String("error", err.Error()))
		return nil
	}

	dec := e.strat.ShouldBuy(lookback, current, e.lastExit)
	if !dec.Signal {
		e.logger.Debug("no entry", slog.String("reason", dec.Reason))
		return nil
	}
	if ctx.Err() != nil {
		// Shutdown observed between the decision and the order. Never start
		// a new position on the way out.
		return nil
	}

	size, err := e.tradeSize(ctx)
	if err != nil {
		e.logger.Warn("buy skipped", slog.String("error", err.Error()))
		return nil
	}

	intent := domain.TradeIntent{
		Instrument: e.cfg.Instrument,
		Side:       domain.TradeSideBuy,
		Size:       size,
		PriceHint:  current.Close,
	}
	e.logger.Info("buy attempted",
		slog.Float64("size_sol", size),
		slog.String("reason", dec.Reason),
	)

	// In-flight orders run to completion even during shutdown.
	fill, err := e.gateway.Submit(context.WithoutCancel(ctx), intent)
	if err != nil {
		e.recordExecutionFailure(ctx, "buy failed", err)
		return nil
	}

	pos := domain.Position{
		ID:         uuid.New().String(),
		Instrument: e.cfg.Instrument,
		Symbol:     e.cfg.Symbol,
		Side:       domain.TradeSideBuy,
		Size:       fill.Size,
		EntryPrice: fill.Price,
		EntryTime:  fill.FilledAt,
		Status:     domain.PositionStatusOpen,
		Strategy:   e.strat.Name(),
		OpenTxRef:  fill.TxRef,
	}
	e.pos = &pos
	e.state = StateHolding

	// Persist with a detached context, like the close path: the buy is on
	// chain, and a shutdown signal between fill and write must not lose it.
	if _, err := e.store.CreateOpen(context.WithoutCancel(ctx), pos); err != nil {
		if errors.Is(err, domain.ErrConsistency) {
			return fmt.Errorf("engine: persist open position: %w", err)
		}
		// Keep the position in memory and retry the write next iteration.
		e.pendingCreate = true
		e.logger.Error("persist open position failed, will retry",
			slog.String("position_id", pos.ID),
			slog.String("error", err.Error()),
		)
	}

	e.logger.Info("buy confirmed",
		slog.String("position_id", pos.ID),
		slog.Float64("entry_price", fill.Price),
		slog.Float64("size", fill.Size),
		slog.Int("attempts", fill.Attempts),
		slog.String("tx", fill.TxRef),
	)
	if e.alerts != nil {
		e.alerts.PositionOpened(ctx, pos, fill)
	}
	return nil
}

// holdOrClose evaluates the exit for the open position and, when it fires,
// drives the CLOSING leg.
func (e *Engine) holdOrClose(ctx context.Context, current domain.Candle) error {
	if e.pos == nil {
		return fmt.Errorf("engine: %w: HOLDING with no position", domain.ErrConsistency)
	}
	if e.pendingCreate || e.pendingClose != nil {
		// Never stack a new decision on top of an unpersisted one.
		return nil
	}

	dec := e.strat.ShouldSell(*e.pos, current)
	if !dec.Signal {
		e.logger.Debug("holding", slog.String("reason", dec.Reason))
		return nil
	}

	e.state = StateClosing
	intent := domain.TradeIntent{
		Instrument: e.cfg.Instrument,
		Side:       domain.TradeSideSell,
		Size:       e.pos.Size,
		PriceHint:  current.Close,
	}
	e.logger.Info("sell attempted",
		slog.String("position_id", e.pos.ID),
		slog.Float64("size", e.pos.Size),
		slog.String("reason", dec.Reason),
	)

	fill, err := e.gateway.Submit(context.WithoutCancel(ctx), intent)
	if err != nil {
		// The position is still open. Back to HOLDING; the exit is
		// re-evaluated next iteration, never silently abandoned.
		e.state = StateHolding
		e.recordExecutionFailure(ctx, "sell failed", err)
		return nil
	}

	realized := (fill.Price - e.pos.EntryPrice) * e.pos.Size * e.pos.DirectionSign()
	close := domain.ClosePosition{
		ExitPrice:   fill.Price,
		ExitTime:    fill.FilledAt,
		RealizedPnL: realized,
		CloseTxRef:  fill.TxRef,
	}

	// Persist with a detached context so a shutdown signal cannot strand a
	// filled close.
	if err := e.store.Close(context.WithoutCancel(ctx), e.pos.ID, close); err != nil {
		if e.isStoreInvariantBreach(err) {
			return fmt.Errorf("engine: persist close: %w", err)
		}
		e.pendingClose = &close
		e.logger.Error("persist close failed, will retry",
			slog.String("position_id", e.pos.ID),
			slog.String("error", err.Error()),
		)
		return nil
	}

	e.finishClose(ctx, close, dec.Reason)
	return nil
}

// finishClose applies the in-memory side of a persisted close and returns the
// engine to SCANNING.
func (e *Engine) finishClose(ctx context.Context, close domain.ClosePosition, reason string) {
	closed := *e.pos
	closed.Status = domain.PositionStatusClosed
	closed.ExitPrice = &close.ExitPrice
	exitTime := close.ExitTime
	closed.ExitTime = &exitTime
	pnl := close.RealizedPnL
	closed.RealizedPnL = &pnl
	ref := close.CloseTxRef
	closed.CloseTxRef = &ref

	e.lastExit = &exitTime
	e.pos = nil
	e.pendingClose = nil
	e.state = StateScanning

	e.logger.Info("sell confirmed",
		slog.String("position_id", closed.ID),
		slog.Float64("exit_price", close.ExitPrice),
		slog.Float64("realized_pnl", close.RealizedPnL),
		slog.String("reason", reason),
		slog.String("tx", close.CloseTxRef),
	)
	if e.alerts != nil {
		e.alerts.PositionClosed(ctx, closed, reason)
	}
}

// isStoreInvariantBreach reports store errors that mean the engine's view and
// the store disagree. Guessing which is authoritative would corrupt state, so
// these halt the engine.
func (e *Engine) isStoreInvariantBreach(err error) bool {
	return errors.Is(err, domain.ErrConsistency) ||
		errors.Is(err, domain.ErrPositionClosed) ||
		errors.Is(err, domain.ErrNotFound)
}

// recordExecutionFailure logs a gateway failure and alerts on the fatal kind.
// EXHAUSTED means no trade occurred; nothing to clean up.
func (e *Engine) recordExecutionFailure(ctx context.Context, event string, err error) {
	var fail *domain.ExecutionFailure
	if !errors.As(err, &fail) {
		e.logger.Error(event, slog.String("error", err.Error()))
		return
	}
	e.logger.Warn(event,
		slog.String("kind", string(fail.Kind)),
		slog.Int("attempts", fail.Attempts),
		slog.String("error", fail.Error()),
	)
	if fail.Kind == domain.FailureFatal && e.alerts != nil {
		e.alerts.Failure(ctx, e.cfg.Instrument, fail)
	}
}

// tradeSize computes the SOL amount for a BUY from the live balance. The fee
// and rent buffers come off the top before the percentage is applied.
func (e *Engine) tradeSize(ctx context.Context) (float64, error) {
	lamports, err := e.balance.GetSOLBalance(ctx, e.owner)
	if err != nil {
		return 0, fmt.Errorf("engine: balance lookup: %w", err)
	}
	bal := float64(lamports) / lamportsPerSOL

	available := bal - e.cfg.FeeBufferSOL - e.cfg.RentBufferSOL
	if available <= 0 {
		return 0, fmt.Errorf("%w: balance %.9f SOL below buffers", domain.ErrInsufficientBalance, bal)
	}
	size := available * e.cfg.BalancePercentage
	if size < e.cfg.MinTradeSizeSOL {
		return 0, fmt.Errorf("%w: size %.9f SOL below minimum %.9f", domain.ErrInsufficientBalance, size, e.cfg.MinTradeSizeSOL)
	}
	return size, nil
}
