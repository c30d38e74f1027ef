package domain

import (
	"context"
	"time"
)

// ListOpts provides pagination and filtering for list queries.
type ListOpts struct {
	Limit  int
	Offset int
	Since  *time.Time
	Until  *time.Time
}

// ClosePosition carries the exit fields applied in the single atomic update
// that closes a position.
type ClosePosition struct {
	ExitPrice   float64
	ExitTime    time.Time
	RealizedPnL float64
	CloseTxRef  string
}

// PositionStore persists positions. Implementations must fail loudly when
// asked to close a position that is not open, and must surface duplicate open
// rows for one instrument as ErrConsistency rather than picking one.
type PositionStore interface {
	// CreateOpen inserts a new OPEN position and returns its id.
	CreateOpen(ctx context.Context, pos Position) (string, error)
	// Close transitions an OPEN position to CLOSED. Returns
	// ErrPositionClosed if the row exists but is already closed, and
	// ErrNotFound if it does not exist.
	Close(ctx context.Context, id string, close ClosePosition) error
	// FindOpen returns the open position for an instrument, or nil when
	// there is none. More than one open row is ErrConsistency.
	FindOpen(ctx context.Context, instrument string) (*Position, error)
	// ListHistory returns positions for an instrument, newest first.
	ListHistory(ctx context.Context, instrument string, opts ListOpts) ([]Position, error)
}

// CandleStore persists OHLCV history.
type CandleStore interface {
	// Recent returns the most recent n candles, oldest first.
	Recent(ctx context.Context, instrument string, n int) ([]Candle, error)
	InsertBatch(ctx context.Context, candles []Candle) error
}

// LiveCandleCache holds the in-progress candle per instrument.
type LiveCandleCache interface {
	SetCurrent(ctx context.Context, c Candle) error
	// GetCurrent returns ErrNotFound when no live candle has been written.
	GetCurrent(ctx context.Context, instrument string) (Candle, error)
}

// CandleFeed supplies market data to the execution engine. It is a pure read
// dependency: Recent returns the lookback window oldest->newest, Current the
// live candle. Both fail with ErrFeedUnavailable on transient errors; Current
// additionally fails with ErrFeedStale when the live candle is too old.
type CandleFeed interface {
	Recent(ctx context.Context, instrument string, n int) ([]Candle, error)
	Current(ctx context.Context, instrument string) (Candle, error)
}
