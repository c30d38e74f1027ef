package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"soltrader/internal/domain"
)

// CandleStore implements domain.CandleStore using PostgreSQL.
type CandleStore struct {
	pool *pgxpool.Pool
}

// NewCandleStore creates a new CandleStore backed by the given connection pool.
func NewCandleStore(pool *pgxpool.Pool) *CandleStore {
	return &CandleStore{pool: pool}
}

// Recent returns the most recent n candles for an instrument, oldest first.
func (s *CandleStore) Recent(ctx context.Context, instrument string, n int) ([]domain.Candle, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT instrument, ts, open, high, low, close, volume
		FROM (
			SELECT instrument, ts, open, high, low, close, volume
			FROM candles
			WHERE instrument = $1
			ORDER BY ts DESC
			LIMIT $2
		) latest
		ORDER BY ts ASC`,
		instrument, n)
	if err != nil {
		return nil, fmt.Errorf("postgres: recent candles: %w", err)
	}
	defer rows.Close()

	var candles []domain.Candle
	for rows.Next() {
		var c domain.Candle
		if err := rows.Scan(&c.Instrument, &c.Timestamp, &c.Open, &c.High, &c.Low, &c.Close, &c.Volume); err != nil {
			return nil, fmt.Errorf("postgres: scan candle: %w", err)
		}
		candles = append(candles, c)
	}
	return candles, rows.Err()
}

// InsertBatch upserts candles in a single batch. Re-ingesting the same candle
// replaces it, so the feed can flush a live candle repeatedly as it builds.
func (s *CandleStore) InsertBatch(ctx context.Context, candles []domain.Candle) error {
	if len(candles) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, c := range candles {
		batch.Queue(`
			INSERT INTO candles (instrument, ts, open, high, low, close, volume)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			ON CONFLICT (instrument, ts) DO UPDATE SET
				open = EXCLUDED.open,
				high = EXCLUDED.high,
				low = EXCLUDED.low,
				close = EXCLUDED.close,
				volume = EXCLUDED.volume`,
			c.Instrument, c.Timestamp, c.Open, c.High, c.Low, c.Close, c.Volume)
	}

	results := s.pool.SendBatch(ctx, batch)
	defer results.Close()

	for range candles {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("postgres: insert candles: %w", err)
		}
	}
	return nil
}
