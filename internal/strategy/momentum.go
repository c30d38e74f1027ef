package strategy

import (
	"fmt"
	"time"

	"soltrader/internal/domain"
)

const (
	defaultMinPriceMomentumPct = 2.0
	defaultMinVolMomentumPct   = 50.0
	defaultRSIPeriod           = 14
	defaultMaxRSI              = 70.0
)

// Momentum buys short-term price and volume acceleration, filtered by an RSI
// ceiling so it does not chase already-overbought moves.
type Momentum struct {
	params        Params
	minPricePct   float64
	minVolPct     float64
	rsiPeriod     int
	maxRSI        float64
	volumePeriods int
}

// MomentumOpts tunes the entry signal. Zero values fall back to defaults.
type MomentumOpts struct {
	MinPriceMomentumPct float64
	MinVolMomentumPct   float64
	RSIPeriod           int
	MaxRSI              float64
}

// NewMomentum constructs a Momentum strategy, validating all parameters.
func NewMomentum(params Params, opts MomentumOpts) (*Momentum, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	if opts.MinPriceMomentumPct == 0 {
		opts.MinPriceMomentumPct = defaultMinPriceMomentumPct
	}
	if opts.MinVolMomentumPct == 0 {
		opts.MinVolMomentumPct = defaultMinVolMomentumPct
	}
	if opts.RSIPeriod == 0 {
		opts.RSIPeriod = defaultRSIPeriod
	}
	if opts.MaxRSI == 0 {
		opts.MaxRSI = defaultMaxRSI
	}
	if opts.RSIPeriod < 1 {
		return nil, fmt.Errorf("strategy: momentum rsi period must be >= 1, got %d", opts.RSIPeriod)
	}
	if opts.MaxRSI <= 0 || opts.MaxRSI > 100 {
		return nil, fmt.Errorf("strategy: momentum max rsi must be in (0, 100], got %v", opts.MaxRSI)
	}
	if opts.MinPriceMomentumPct < 0 || opts.MinVolMomentumPct < 0 {
		return nil, fmt.Errorf("strategy: momentum thresholds must be >= 0")
	}
	return &Momentum{
		params:        params,
		minPricePct:   opts.MinPriceMomentumPct,
		minVolPct:     opts.MinVolMomentumPct,
		rsiPeriod:     opts.RSIPeriod,
		maxRSI:        opts.MaxRSI,
		volumePeriods: 20,
	}, nil
}

// Name returns the registry identifier.
func (m *Momentum) Name() string { return "momentum" }

// ShouldBuy signals entry when the close gained at least minPricePct over the
// previous candle, volume runs minVolPct above its recent average, and RSI is
// below the ceiling. Cooldown suppresses the signal unconditionally.
func (m *Momentum) ShouldBuy(lookback []domain.Candle, current domain.Candle, lastExit *time.Time) Decision {
	need := m.volumePeriods
	if m.rsiPeriod+1 > need {
		need = m.rsiPeriod + 1
	}
	if len(lookback) < need {
		return hold(fmt.Sprintf("insufficient data: %d of %d candles", len(lookback), need))
	}
	if m.params.inCooldown(current.Timestamp, lastExit) {
		return hold(ReasonCooldown)
	}

	prevClose := lookback[len(lookback)-1].Close
	if prevClose == 0 {
		return hold("zero previous close")
	}
	priceMomentum := (current.Close - prevClose) / prevClose * 100

	avgVol := avgVolume(lookback, m.volumePeriods)
	if avgVol == 0 {
		return hold("zero average volume")
	}
	volMomentum := (current.Volume - avgVol) / avgVol * 100

	strength := rsi(closesOf(lookback, current), m.rsiPeriod)

	if priceMomentum > m.minPricePct && volMomentum > m.minVolPct && strength < m.maxRSI {
		return Decision{
			Signal: true,
			Reason: fmt.Sprintf("price momentum %.2f%%, volume momentum %.2f%%, rsi %.1f",
				priceMomentum, volMomentum, strength),
		}
	}
	return hold(fmt.Sprintf("no buy: price momentum %.2f%%, volume momentum %.2f%%, rsi %.1f",
		priceMomentum, volMomentum, strength))
}

// ShouldSell applies the shared risk exit ladder.
func (m *Momentum) ShouldSell(pos domain.Position, current domain.Candle) Decision {
	return m.params.riskExit(pos, current)
}
