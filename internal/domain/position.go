package domain

import "time"

// PositionStatus tracks whether a position is open or closed.
type PositionStatus string

const (
	PositionStatusOpen   PositionStatus = "OPEN"
	PositionStatusClosed PositionStatus = "CLOSED"
)

// TradeSide is the direction of a trade leg.
type TradeSide string

const (
	TradeSideBuy  TradeSide = "BUY"
	TradeSideSell TradeSide = "SELL"
)

// Position is the unit of risk exposure. A position is created already OPEN
// and the only legal transition is OPEN -> CLOSED; exit fields are set in a
// single update at close time and are nil while the position is open.
type Position struct {
	ID          string
	Instrument  string // token mint address
	Symbol      string
	Side        TradeSide // direction of the opening leg
	Size        float64
	EntryPrice  float64
	EntryTime   time.Time
	Status      PositionStatus
	Strategy    string
	OpenTxRef   string
	ExitPrice   *float64
	ExitTime    *time.Time
	RealizedPnL *float64
	CloseTxRef  *string
}

// DirectionSign returns +1 for a long (BUY) opening leg and -1 for a short.
func (p Position) DirectionSign() float64 {
	if p.Side == TradeSideSell {
		return -1
	}
	return 1
}

// IsOpen reports whether the position is still open.
func (p Position) IsOpen() bool {
	return p.Status == PositionStatusOpen
}

// HoldDuration returns how long the position has been held as of ts.
func (p Position) HoldDuration(ts time.Time) time.Duration {
	return ts.Sub(p.EntryTime)
}
