// Package feed supplies market data to the execution engine. The CandleFeed
// composes the persistent candle store with the live-candle cache; the
// websocket ingestor in this package is what writes to both.
package feed

import (
	"context"
	"errors"
	"fmt"
	"time"

	"soltrader/internal/domain"
)

// Feed implements domain.CandleFeed. Recent reads closed candles from the
// store, Current reads the in-progress candle from the cache and rejects it
// once older than maxStale.
type Feed struct {
	store    domain.CandleStore
	cache    domain.LiveCandleCache
	maxStale time.Duration
	now      func() time.Time
}

// New creates a Feed. maxStale bounds how old the live candle may be before
// Current reports ErrFeedStale.
func New(store domain.CandleStore, cache domain.LiveCandleCache, maxStale time.Duration) *Feed {
	return &Feed{
		store:    store,
		cache:    cache,
		maxStale: maxStale,
		now:      time.Now,
	}
}

// Recent returns the most recent n closed candles, oldest first.
func (f *Feed) Recent(ctx context.Context, instrument string, n int) ([]domain.Candle, error) {
	candles, err := f.store.Recent(ctx, instrument, n)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrFeedUnavailable, err)
	}
	return candles, nil
}

// Current returns the live candle for an instrument. A missing candle is
// reported as unavailable, an old one as stale. The caller treats both as a
// skip-this-iteration signal, not a halt.
func (f *Feed) Current(ctx context.Context, instrument string) (domain.Candle, error) {
	c, err := f.cache.GetCurrent(ctx, instrument)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.Candle{}, fmt.Errorf("%w: no live candle for %s", domain.ErrFeedUnavailable, instrument)
		}
		return domain.Candle{}, fmt.Errorf("%w: %v", domain.ErrFeedUnavailable, err)
	}
	if age := f.now().Sub(c.Timestamp); age > f.maxStale {
		return domain.Candle{}, fmt.Errorf("%w: live candle for %s is %s old", domain.ErrFeedStale, instrument, age.Round(time.Millisecond))
	}
	return c, nil
}
