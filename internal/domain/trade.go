package domain

import (
	"fmt"
	"time"
)

// TradeIntent asks the gateway to execute one swap leg. PriceHint is the most
// recent observed price for the instrument and is informational only; the
// realized price comes back in the Fill.
type TradeIntent struct {
	Instrument string // token mint address
	Side       TradeSide
	Size       float64 // SOL amount for BUY, token amount for SELL
	PriceHint  float64
}

// Validate rejects intents the gateway must never submit.
func (i TradeIntent) Validate() error {
	if i.Instrument == "" {
		return fmt.Errorf("%w: empty instrument", ErrInvalidIntent)
	}
	if i.Side != TradeSideBuy && i.Side != TradeSideSell {
		return fmt.Errorf("%w: side %q", ErrInvalidIntent, i.Side)
	}
	if i.Size <= 0 {
		return fmt.Errorf("%w: size %v", ErrInvalidIntent, i.Size)
	}
	return nil
}

// Fill is authoritative proof that a submitted swap executed.
type Fill struct {
	Price       float64
	Size        float64
	TxRef       string
	SlippageBps int // slippage tolerance the winning attempt was quoted at
	Attempts    int
	FilledAt    time.Time
}

// FailureKind classifies a gateway failure.
type FailureKind string

const (
	// FailureRetryable covers quote expiry, price movement beyond tolerance,
	// and transient network/RPC errors. The gateway retries these itself.
	FailureRetryable FailureKind = "RETRYABLE"
	// FailureExhausted means the slippage ladder was spent without a fill.
	// The caller must treat this as "no trade occurred".
	FailureExhausted FailureKind = "EXHAUSTED"
	// FailureFatal covers insufficient balance, invalid instruments, and
	// other conditions retrying cannot fix.
	FailureFatal FailureKind = "FATAL"
)

// ExecutionFailure is the typed failure result of a gateway submission. It is
// propagated as a value so the engine's control flow over retries stays
// explicit.
type ExecutionFailure struct {
	Kind     FailureKind
	Attempts int
	LastErr  error
}

func (f *ExecutionFailure) Error() string {
	return fmt.Sprintf("execution failed (%s after %d attempt(s)): %v", f.Kind, f.Attempts, f.LastErr)
}

func (f *ExecutionFailure) Unwrap() error { return f.LastErr }

// Exhausted reports whether the failure was a spent retry ladder.
func (f *ExecutionFailure) Exhausted() bool { return f.Kind == FailureExhausted }
