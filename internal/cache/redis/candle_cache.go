package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"soltrader/internal/domain"
)

// CandleCache implements domain.LiveCandleCache using Redis hashes. Each
// instrument's in-progress candle is stored as a hash at key
// "candle:{instrument}" with OHLCV fields plus a Unix nanosecond timestamp.
type CandleCache struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewCandleCache creates a CandleCache backed by the given Client. A zero ttl
// means entries never expire.
func NewCandleCache(c *Client, ttl time.Duration) *CandleCache {
	return &CandleCache{rdb: c.Underlying(), ttl: ttl}
}

func candleKey(instrument string) string {
	return "candle:" + instrument
}

// SetCurrent stores the live candle for an instrument.
func (cc *CandleCache) SetCurrent(ctx context.Context, c domain.Candle) error {
	key := candleKey(c.Instrument)
	fields := map[string]interface{}{
		"ts":     strconv.FormatInt(c.Timestamp.UnixNano(), 10),
		"open":   formatFloat(c.Open),
		"high":   formatFloat(c.High),
		"low":    formatFloat(c.Low),
		"close":  formatFloat(c.Close),
		"volume": formatFloat(c.Volume),
	}

	pipe := cc.rdb.Pipeline()
	pipe.HSet(ctx, key, fields)
	if cc.ttl > 0 {
		pipe.Expire(ctx, key, cc.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: set live candle %s: %w", c.Instrument, err)
	}
	return nil
}

// GetCurrent retrieves the live candle for an instrument. It returns
// domain.ErrNotFound when no candle has been written.
func (cc *CandleCache) GetCurrent(ctx context.Context, instrument string) (domain.Candle, error) {
	vals, err := cc.rdb.HGetAll(ctx, candleKey(instrument)).Result()
	if err != nil {
		return domain.Candle{}, fmt.Errorf("redis: get live candle %s: %w", instrument, err)
	}
	if len(vals) == 0 {
		return domain.Candle{}, domain.ErrNotFound
	}

	tsNano, err := strconv.ParseInt(vals["ts"], 10, 64)
	if err != nil {
		return domain.Candle{}, fmt.Errorf("redis: parse live candle ts %s: %w", instrument, err)
	}

	c := domain.Candle{
		Instrument: instrument,
		Timestamp:  time.Unix(0, tsNano).UTC(),
	}
	for field, dst := range map[string]*float64{
		"open":   &c.Open,
		"high":   &c.High,
		"low":    &c.Low,
		"close":  &c.Close,
		"volume": &c.Volume,
	} {
		v, err := strconv.ParseFloat(vals[field], 64)
		if err != nil {
			return domain.Candle{}, fmt.Errorf("redis: parse live candle %s field %s: %w", instrument, field, err)
		}
		*dst = v
	}
	return c, nil
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
