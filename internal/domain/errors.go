package domain

import "errors"

var (
	ErrNotFound            = errors.New("not found")
	ErrFeedUnavailable     = errors.New("candle feed unavailable")
	ErrFeedStale           = errors.New("candle feed stale")
	ErrPositionClosed      = errors.New("position already closed")
	ErrConsistency         = errors.New("store consistency violation")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrInvalidIntent       = errors.New("invalid trade intent")
	ErrContextDone         = errors.New("context cancelled")
)
