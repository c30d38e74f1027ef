package strategy

import "soltrader/internal/domain"

// sma returns the simple moving average of the closing prices of the last
// period candles. Returns 0 when there are fewer candles than period.
func sma(candles []domain.Candle, period int) float64 {
	if period <= 0 || len(candles) < period {
		return 0
	}
	var sum float64
	for _, c := range candles[len(candles)-period:] {
		sum += c.Close
	}
	return sum / float64(period)
}

// avgVolume returns the mean volume of the last period candles.
func avgVolume(candles []domain.Candle, period int) float64 {
	if period <= 0 || len(candles) < period {
		return 0
	}
	var sum float64
	for _, c := range candles[len(candles)-period:] {
		sum += c.Volume
	}
	return sum / float64(period)
}

// ema returns the exponential moving average series of closes, seeded with
// the simple average of the first period values. Returns nil when there is
// not enough data for a single value.
func ema(closes []float64, period int) []float64 {
	if period <= 0 || len(closes) < period {
		return nil
	}
	var sum float64
	for _, c := range closes[:period] {
		sum += c
	}
	out := make([]float64, 0, len(closes)-period+1)
	prev := sum / float64(period)
	out = append(out, prev)

	k := 2 / float64(period+1)
	for _, c := range closes[period:] {
		prev = c*k + prev*(1-k)
		out = append(out, prev)
	}
	return out
}

// rsi computes the relative strength index over the last period deltas of
// closes. A neutral 50 is returned when there is not enough data.
func rsi(closes []float64, period int) float64 {
	if period <= 0 || len(closes) < period+1 {
		return 50
	}
	start := len(closes) - period
	var gains, losses float64
	for i := start; i < len(closes); i++ {
		delta := closes[i] - closes[i-1]
		if delta > 0 {
			gains += delta
		} else {
			losses -= delta
		}
	}
	avgGain := gains / float64(period)
	avgLoss := losses / float64(period)
	if avgLoss == 0 {
		return 100
	}
	rs := avgGain / avgLoss
	return 100 - 100/(1+rs)
}

// closesOf extracts closing prices, appending the current candle's close.
func closesOf(lookback []domain.Candle, current domain.Candle) []float64 {
	closes := make([]float64, 0, len(lookback)+1)
	for _, c := range lookback {
		closes = append(closes, c.Close)
	}
	return append(closes, current.Close)
}
