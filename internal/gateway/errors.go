package gateway

import (
	"errors"

	"soltrader/internal/domain"
)

// markedError tags an underlying error with a failure kind so the retry loop
// can classify it without string matching.
type markedError struct {
	kind domain.FailureKind
	err  error
}

func (m *markedError) Error() string { return m.err.Error() }
func (m *markedError) Unwrap() error { return m.err }

// Retryable marks err as a transient failure the gateway may retry with wider
// slippage (quote expired, price moved, flaky RPC).
func Retryable(err error) error {
	return &markedError{kind: domain.FailureRetryable, err: err}
}

// Fatal marks err as a failure retrying cannot fix (insufficient balance,
// invalid instrument). The gateway aborts immediately.
func Fatal(err error) error {
	return &markedError{kind: domain.FailureFatal, err: err}
}

// classify resolves the failure kind of an attempt error. Unmarked errors are
// treated as retryable: transient network and RPC flakiness dominates in
// practice, and the attempt budget still bounds the damage.
func classify(err error) domain.FailureKind {
	var marked *markedError
	if errors.As(err, &marked) {
		return marked.kind
	}
	return domain.FailureRetryable
}
