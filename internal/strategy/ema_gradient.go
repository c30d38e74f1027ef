package strategy

import (
	"fmt"
	"time"

	"soltrader/internal/domain"
)

const (
	defaultEMAGradientPeriod    = 20
	defaultEMAGradientThreshold = 0.001
)

// EMAGradient buys when the exponential moving average is rising faster than
// a threshold rate, and exits on the shared stop-loss / take-profit / max-hold
// ladder. The sell contract carries no lookback, so the gradient is evaluated
// on entry only.
type EMAGradient struct {
	params    Params
	emaPeriod int
	threshold float64
}

// EMAGradientOpts tunes the entry signal. Zero values fall back to defaults.
type EMAGradientOpts struct {
	EMAPeriod         int
	GradientThreshold float64
}

// NewEMAGradient constructs an EMAGradient strategy, validating all parameters.
func NewEMAGradient(params Params, opts EMAGradientOpts) (*EMAGradient, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	if opts.EMAPeriod == 0 {
		opts.EMAPeriod = defaultEMAGradientPeriod
	}
	if opts.GradientThreshold == 0 {
		opts.GradientThreshold = defaultEMAGradientThreshold
	}
	if opts.EMAPeriod < 1 {
		return nil, fmt.Errorf("strategy: ema gradient period must be >= 1, got %d", opts.EMAPeriod)
	}
	if opts.GradientThreshold <= 0 {
		return nil, fmt.Errorf("strategy: ema gradient threshold must be > 0, got %v", opts.GradientThreshold)
	}
	return &EMAGradient{
		params:    params,
		emaPeriod: opts.EMAPeriod,
		threshold: opts.GradientThreshold,
	}, nil
}

// Name returns the registry identifier.
func (e *EMAGradient) Name() string { return "ema_gradient" }

// ShouldBuy signals entry when the relative change between the last two EMA
// values exceeds the gradient threshold. Cooldown suppresses the signal
// unconditionally.
func (e *EMAGradient) ShouldBuy(lookback []domain.Candle, current domain.Candle, lastExit *time.Time) Decision {
	// Two EMA values need period+1 closes; the current candle supplies one.
	if len(lookback) < e.emaPeriod {
		return hold(fmt.Sprintf("insufficient data: %d of %d candles", len(lookback), e.emaPeriod))
	}
	if e.params.inCooldown(current.Timestamp, lastExit) {
		return hold(ReasonCooldown)
	}

	gradient, ok := emaGradient(closesOf(lookback, current), e.emaPeriod)
	if !ok {
		return hold("insufficient data for ema gradient")
	}

	if gradient > e.threshold {
		return Decision{
			Signal: true,
			Reason: fmt.Sprintf("ema%d gradient %.4f > %.4f", e.emaPeriod, gradient, e.threshold),
		}
	}
	return hold(fmt.Sprintf("no buy: ema%d gradient %.4f", e.emaPeriod, gradient))
}

// ShouldSell applies the shared risk exit ladder.
func (e *EMAGradient) ShouldSell(pos domain.Position, current domain.Candle) Decision {
	return e.params.riskExit(pos, current)
}

// emaGradient returns the relative change between the last two EMA values.
// ok is false when the series is too short or the previous value is zero.
func emaGradient(closes []float64, period int) (float64, bool) {
	values := ema(closes, period)
	if len(values) < 2 {
		return 0, false
	}
	prev := values[len(values)-2]
	if prev == 0 {
		return 0, false
	}
	return (values[len(values)-1] - prev) / prev, true
}
