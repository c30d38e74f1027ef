package strategy

import (
	"fmt"
	"time"

	"soltrader/internal/domain"
)

const (
	defaultGoliathMAPeriods  = 20
	defaultGoliathVolumeMult = 1.5
)

// Goliath buys when price trades above its moving average on unusually high
// volume, and exits on the shared stop-loss / take-profit / max-hold ladder.
type Goliath struct {
	params     Params
	maPeriods  int
	volumeMult float64
}

// GoliathOpts tunes the entry signal. Zero values fall back to defaults.
type GoliathOpts struct {
	MAPeriods        int
	VolumeMultiplier float64
}

// NewGoliath constructs a Goliath strategy, validating all parameters.
func NewGoliath(params Params, opts GoliathOpts) (*Goliath, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	if opts.MAPeriods == 0 {
		opts.MAPeriods = defaultGoliathMAPeriods
	}
	if opts.VolumeMultiplier == 0 {
		opts.VolumeMultiplier = defaultGoliathVolumeMult
	}
	if opts.MAPeriods < 1 {
		return nil, fmt.Errorf("strategy: goliath ma periods must be >= 1, got %d", opts.MAPeriods)
	}
	if opts.VolumeMultiplier <= 0 {
		return nil, fmt.Errorf("strategy: goliath volume multiplier must be > 0, got %v", opts.VolumeMultiplier)
	}
	return &Goliath{
		params:     params,
		maPeriods:  opts.MAPeriods,
		volumeMult: opts.VolumeMultiplier,
	}, nil
}

// Name returns the registry identifier.
func (g *Goliath) Name() string { return "goliath" }

// ShouldBuy signals entry when the current close is above the lookback moving
// average and current volume exceeds the average volume by the configured
// multiplier. Cooldown suppresses the signal unconditionally.
func (g *Goliath) ShouldBuy(lookback []domain.Candle, current domain.Candle, lastExit *time.Time) Decision {
	if len(lookback) < g.maPeriods {
		return hold(fmt.Sprintf("insufficient data: %d of %d candles", len(lookback), g.maPeriods))
	}
	if g.params.inCooldown(current.Timestamp, lastExit) {
		return hold(ReasonCooldown)
	}

	ma := sma(lookback, g.maPeriods)
	avgVol := avgVolume(lookback, g.maPeriods)
	volThreshold := g.volumeMult * avgVol

	if current.Close > ma && current.Volume > volThreshold {
		return Decision{
			Signal: true,
			Reason: fmt.Sprintf("price %.6f > MA%d %.6f, volume %.2f > %.2f",
				current.Close, g.maPeriods, ma, current.Volume, volThreshold),
		}
	}
	return hold("no buy signal")
}

// ShouldSell applies the shared risk exit ladder.
func (g *Goliath) ShouldSell(pos domain.Position, current domain.Candle) Decision {
	return g.params.riskExit(pos, current)
}
