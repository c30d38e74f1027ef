package strategy

import (
	"testing"
	"time"

	"soltrader/internal/domain"
)

// Rising prices with volume at 2x the 20-period average must trigger the
// goliath entry.
func TestGoliathBuysAboveMAOnHighVolume(t *testing.T) {
	g, err := NewGoliath(testParams, GoliathOpts{MAPeriods: 20, VolumeMultiplier: 1.5})
	if err != nil {
		t.Fatal(err)
	}

	start := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	lookback := make([]domain.Candle, 20)
	for i := range lookback {
		close := 100 + float64(i) // rising
		lookback[i] = domain.Candle{
			Timestamp: start.Add(time.Duration(i) * time.Second),
			Close:     close,
			Volume:    100,
		}
	}
	current := domain.Candle{
		Timestamp: start.Add(25 * time.Second),
		Close:     125, // above MA of ~109.5
		Volume:    200, // 2x the average volume
	}

	dec := g.ShouldBuy(lookback, current, nil)
	if !dec.Signal {
		t.Fatalf("expected buy, got hold: %s", dec.Reason)
	}
}

func TestGoliathHoldsOnLowVolume(t *testing.T) {
	g, err := NewGoliath(testParams, GoliathOpts{MAPeriods: 20, VolumeMultiplier: 1.5})
	if err != nil {
		t.Fatal(err)
	}

	start := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	lookback := flatLookback(20, 100, 100, start)
	current := domain.Candle{
		Timestamp: start.Add(25 * time.Second),
		Close:     110,
		Volume:    120, // below the 150 threshold
	}

	if dec := g.ShouldBuy(lookback, current, nil); dec.Signal {
		t.Errorf("expected hold on low volume, got buy: %s", dec.Reason)
	}
}

func TestGoliathHoldsBelowMA(t *testing.T) {
	g, err := NewGoliath(testParams, GoliathOpts{MAPeriods: 20, VolumeMultiplier: 1.5})
	if err != nil {
		t.Fatal(err)
	}

	start := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	lookback := flatLookback(20, 100, 100, start)
	current := domain.Candle{
		Timestamp: start.Add(25 * time.Second),
		Close:     95, // below MA
		Volume:    1000,
	}

	if dec := g.ShouldBuy(lookback, current, nil); dec.Signal {
		t.Errorf("expected hold below MA, got buy: %s", dec.Reason)
	}
}

func TestGoliathInsufficientData(t *testing.T) {
	g, err := NewGoliath(testParams, GoliathOpts{MAPeriods: 20, VolumeMultiplier: 1.5})
	if err != nil {
		t.Fatal(err)
	}

	start := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	lookback := flatLookback(5, 100, 100, start)
	current := domain.Candle{Timestamp: start.Add(10 * time.Second), Close: 120, Volume: 1000}

	if dec := g.ShouldBuy(lookback, current, nil); dec.Signal {
		t.Errorf("expected hold with 5 candles, got buy: %s", dec.Reason)
	}
}

func TestGoliathRejectsBadOpts(t *testing.T) {
	if _, err := NewGoliath(testParams, GoliathOpts{MAPeriods: -1}); err == nil {
		t.Error("expected error for negative ma periods")
	}
	if _, err := NewGoliath(testParams, GoliathOpts{VolumeMultiplier: -2}); err == nil {
		t.Error("expected error for negative volume multiplier")
	}
	if _, err := NewGoliath(Params{}, GoliathOpts{}); err == nil {
		t.Error("expected error for empty risk params")
	}
}
