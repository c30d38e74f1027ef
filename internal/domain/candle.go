package domain

import "time"

// Candle is one OHLCV sample for a fixed time interval. The feed guarantees
// strictly increasing timestamps within one instrument.
type Candle struct {
	Instrument string
	Timestamp  time.Time
	Open       float64
	High       float64
	Low        float64
	Close      float64
	Volume     float64
}

// After reports whether c is strictly newer than other.
func (c Candle) After(other Candle) bool {
	return c.Timestamp.After(other.Timestamp)
}
