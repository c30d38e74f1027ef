// Package strategy defines the trading strategy contract and the built-in
// reference strategies. Strategies are pure: a decision is a function of the
// candles and position handed in, so identical inputs always yield identical
// decisions.
package strategy

import (
	"fmt"
	"time"

	"soltrader/internal/domain"
)

// Exit reasons reported in Decision.Reason. The first satisfied risk condition
// wins, evaluated in the order stop-loss, take-profit, max-hold.
const (
	ReasonStopLoss   = "stop-loss"
	ReasonTakeProfit = "take-profit"
	ReasonMaxHold    = "max-hold"
	ReasonCooldown   = "cooldown"
)

// Decision is the result of one strategy evaluation. It is ephemeral and
// never persisted.
type Decision struct {
	Signal bool
	Reason string
}

// hold is the canonical negative decision.
func hold(reason string) Decision { return Decision{Signal: false, Reason: reason} }

// Strategy decides entries and exits for one instrument. Implementations must
// not keep hidden mutable state: cooldown tracking is handed in explicitly via
// lastExit, and must suppress a buy while current.Timestamp is within the
// cooldown window after lastExit. They must never panic on well-formed inputs;
// malformed configuration is rejected by the factory at construction time.
type Strategy interface {
	Name() string
	ShouldBuy(lookback []domain.Candle, current domain.Candle, lastExit *time.Time) Decision
	ShouldSell(pos domain.Position, current domain.Candle) Decision
}

// Params carries the risk parameters shared by every strategy.
type Params struct {
	StopLossPct   float64 // positive percentage, e.g. 10 means exit at -10%
	TakeProfitPct float64 // positive percentage
	MaxHold       time.Duration
	Cooldown      time.Duration
}

// Validate rejects parameter sets a strategy must refuse at construction.
func (p Params) Validate() error {
	if p.StopLossPct <= 0 {
		return fmt.Errorf("strategy: stop loss pct must be > 0, got %v", p.StopLossPct)
	}
	if p.TakeProfitPct <= 0 {
		return fmt.Errorf("strategy: take profit pct must be > 0, got %v", p.TakeProfitPct)
	}
	if p.MaxHold <= 0 {
		return fmt.Errorf("strategy: max hold must be > 0, got %v", p.MaxHold)
	}
	if p.Cooldown < 0 {
		return fmt.Errorf("strategy: cooldown must be >= 0, got %v", p.Cooldown)
	}
	return nil
}

// inCooldown reports whether a buy at ts is still inside the cooldown window.
func (p Params) inCooldown(ts time.Time, lastExit *time.Time) bool {
	if lastExit == nil || p.Cooldown == 0 {
		return false
	}
	return ts.Sub(*lastExit) < p.Cooldown
}

// riskExit evaluates the shared exit ladder: stop-loss, then take-profit,
// then max hold duration. It returns a hold decision when none fires.
func (p Params) riskExit(pos domain.Position, current domain.Candle) Decision {
	if pos.EntryPrice == 0 {
		return hold("no entry price")
	}
	pnlPct := (current.Close - pos.EntryPrice) / pos.EntryPrice * 100 * pos.DirectionSign()

	if pnlPct <= -p.StopLossPct {
		return Decision{Signal: true, Reason: fmt.Sprintf("%s: %.2f%%", ReasonStopLoss, pnlPct)}
	}
	if pnlPct >= p.TakeProfitPct {
		return Decision{Signal: true, Reason: fmt.Sprintf("%s: %.2f%%", ReasonTakeProfit, pnlPct)}
	}
	if held := pos.HoldDuration(current.Timestamp); held >= p.MaxHold {
		return Decision{Signal: true, Reason: fmt.Sprintf("%s: held %s", ReasonMaxHold, held.Truncate(time.Second))}
	}
	return hold(fmt.Sprintf("pnl %.2f%%", pnlPct))
}
