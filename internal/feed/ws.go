package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"soltrader/internal/domain"
)

// tradeEvent is the JSON shape of a trade tick on the stream. Price is quoted
// in SOL per token, Amount in token units.
type tradeEvent struct {
	Type       string  `json:"type"`
	Instrument string  `json:"instrument"`
	Price      float64 `json:"price"`
	Amount     float64 `json:"amount"`
	Timestamp  string  `json:"timestamp"`
}

type subscribeMsg struct {
	Op          string   `json:"op"`
	Channel     string   `json:"channel"`
	Instruments []string `json:"instruments"`
}

// WSIngestor connects to a trade-tick websocket, aggregates ticks into fixed
// interval OHLCV candles, publishes the in-progress candle to the live cache
// on every tick and flushes completed candles to the store. It reconnects on
// disconnect.
type WSIngestor struct {
	wsURL       string
	instruments []string
	interval    time.Duration
	store       domain.CandleStore
	cache       domain.LiveCandleCache
	logger      *slog.Logger

	mu      sync.Mutex
	current map[string]*domain.Candle

	closeOnce sync.Once
	done      chan struct{}
}

// NewWSIngestor creates an ingestor for the given instruments.
func NewWSIngestor(wsURL string, instruments []string, interval time.Duration, store domain.CandleStore, cache domain.LiveCandleCache, logger *slog.Logger) *WSIngestor {
	return &WSIngestor{
		wsURL:       wsURL,
		instruments: instruments,
		interval:    interval,
		store:       store,
		cache:       cache,
		logger:      logger.With(slog.String("component", "ws_ingestor")),
		current:     make(map[string]*domain.Candle),
		done:        make(chan struct{}),
	}
}

// Run connects, subscribes to trades for the configured instruments, and runs
// until ctx is cancelled. Reconnects with backoff on disconnect.
func (w *WSIngestor) Run(ctx context.Context) error {
	if len(w.instruments) == 0 {
		w.logger.Info("no instruments to subscribe, exiting")
		return nil
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-w.done:
			return nil
		default:
		}
		err := w.runConnection(ctx)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		w.logger.Warn("trade stream disconnected, reconnecting", slog.String("error", err.Error()))
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(2 * time.Second):
		}
	}
}

func (w *WSIngestor) runConnection(ctx context.Context) error {
	dialCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	conn, _, err := websocket.DefaultDialer.DialContext(dialCtx, w.wsURL, nil)
	cancel()
	if err != nil {
		return fmt.Errorf("feed: dial %s: %w", w.wsURL, err)
	}
	defer conn.Close()

	sub := subscribeMsg{Op: "subscribe", Channel: "trades", Instruments: w.instruments}
	if err := conn.WriteJSON(sub); err != nil {
		return fmt.Errorf("feed: subscribe: %w", err)
	}
	w.logger.Info("trade stream subscribed", slog.Int("instruments", len(w.instruments)))

	// Close the connection when ctx ends so ReadMessage unblocks.
	readDone := make(chan struct{})
	defer close(readDone)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-w.done:
			_ = conn.Close()
		case <-readDone:
		}
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			select {
			case <-w.done:
				return nil
			default:
			}
			return fmt.Errorf("feed: read: %w", err)
		}
		if err := w.handleMessage(ctx, data); err != nil {
			w.logger.Debug("trade message dropped",
				slog.String("error", err.Error()),
				slog.Int("payload_len", len(data)),
			)
		}
	}
}

func (w *WSIngestor) handleMessage(ctx context.Context, data []byte) error {
	var ev tradeEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		return err
	}
	if ev.Type != "" && ev.Type != "trade" {
		return nil
	}
	instrument := strings.TrimSpace(ev.Instrument)
	if instrument == "" || ev.Price <= 0 {
		return nil
	}
	ts := time.Now().UTC()
	if ev.Timestamp != "" {
		if t, err := time.Parse(time.RFC3339Nano, ev.Timestamp); err == nil {
			ts = t.UTC()
		}
	}
	return w.applyTick(ctx, instrument, ev.Price, ev.Amount, ts)
}

// applyTick folds one trade into the current candle for the instrument,
// flushing the previous candle to the store when the tick crosses an interval
// boundary.
func (w *WSIngestor) applyTick(ctx context.Context, instrument string, price, amount float64, ts time.Time) error {
	bucket := ts.Truncate(w.interval)

	w.mu.Lock()
	var closed *domain.Candle
	cur := w.current[instrument]
	switch {
	case cur == nil:
		cur = newCandle(instrument, bucket, price, amount)
		w.current[instrument] = cur
	case bucket.After(cur.Timestamp):
		done := *cur
		closed = &done
		cur = newCandle(instrument, bucket, price, amount)
		w.current[instrument] = cur
	case bucket.Before(cur.Timestamp):
		// Late tick from before the current bucket, ignore.
		w.mu.Unlock()
		return nil
	default:
		if price > cur.High {
			cur.High = price
		}
		if price < cur.Low {
			cur.Low = price
		}
		cur.Close = price
		cur.Volume += amount
	}
	live := *cur
	w.mu.Unlock()

	if closed != nil {
		if err := w.store.InsertBatch(ctx, []domain.Candle{*closed}); err != nil {
			w.logger.Error("flush closed candle failed",
				slog.String("instrument", instrument),
				slog.String("error", err.Error()),
			)
		}
	}
	return w.cache.SetCurrent(ctx, live)
}

func newCandle(instrument string, bucket time.Time, price, amount float64) *domain.Candle {
	return &domain.Candle{
		Instrument: instrument,
		Timestamp:  bucket,
		Open:       price,
		High:       price,
		Low:        price,
		Close:      price,
		Volume:     amount,
	}
}

// Close stops the ingestor.
func (w *WSIngestor) Close() {
	w.closeOnce.Do(func() { close(w.done) })
}
