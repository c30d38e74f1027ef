package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"soltrader/internal/domain"
	"soltrader/internal/strategy"
)

// --- fakes ---

type fakeFeed struct {
	current    domain.Candle
	currentErr error
	lookback   []domain.Candle
	recentErr  error
}

func (f *fakeFeed) Recent(context.Context, string, int) ([]domain.Candle, error) {
	return f.lookback, f.recentErr
}

func (f *fakeFeed) Current(context.Context, string) (domain.Candle, error) {
	if f.currentErr != nil {
		return domain.Candle{}, f.currentErr
	}
	return f.current, nil
}

type fakeGateway struct {
	fill    domain.Fill
	err     error
	intents []domain.TradeIntent
}

func (g *fakeGateway) Submit(_ context.Context, intent domain.TradeIntent) (domain.Fill, error) {
	g.intents = append(g.intents, intent)
	if g.err != nil {
		return domain.Fill{}, g.err
	}
	return g.fill, nil
}

// cancellingGateway simulates a shutdown signal arriving while a submission
// is in flight: it cancels the run context, then reports the fill anyway.
type cancellingGateway struct {
	cancel context.CancelFunc
	fill   domain.Fill
}

func (g *cancellingGateway) Submit(context.Context, domain.TradeIntent) (domain.Fill, error) {
	g.cancel()
	return g.fill, nil
}

// memStore is an in-memory PositionStore enforcing the same contract as the
// postgres implementation.
type memStore struct {
	positions map[string]*domain.Position
	createErr error
	closeErr  error
	findErr   error
}

func newMemStore() *memStore {
	return &memStore{positions: make(map[string]*domain.Position)}
}

func (s *memStore) CreateOpen(ctx context.Context, pos domain.Position) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if s.createErr != nil {
		return "", s.createErr
	}
	for _, p := range s.positions {
		if p.Instrument == pos.Instrument && p.IsOpen() {
			return "", fmt.Errorf("%w: open position already exists for %s", domain.ErrConsistency, pos.Instrument)
		}
	}
	cp := pos
	s.positions[pos.ID] = &cp
	return pos.ID, nil
}

func (s *memStore) Close(ctx context.Context, id string, close domain.ClosePosition) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s.closeErr != nil {
		return s.closeErr
	}
	p, ok := s.positions[id]
	if !ok {
		return domain.ErrNotFound
	}
	if !p.IsOpen() {
		return domain.ErrPositionClosed
	}
	p.Status = domain.PositionStatusClosed
	p.ExitPrice = &close.ExitPrice
	t := close.ExitTime
	p.ExitTime = &t
	pnl := close.RealizedPnL
	p.RealizedPnL = &pnl
	ref := close.CloseTxRef
	p.CloseTxRef = &ref
	return nil
}

func (s *memStore) FindOpen(_ context.Context, instrument string) (*domain.Position, error) {
	if s.findErr != nil {
		return nil, s.findErr
	}
	var found []*domain.Position
	for _, p := range s.positions {
		if p.Instrument == instrument && p.IsOpen() {
			found = append(found, p)
		}
	}
	switch len(found) {
	case 0:
		return nil, nil
	case 1:
		cp := *found[0]
		return &cp, nil
	default:
		return nil, fmt.Errorf("%w: %d open positions", domain.ErrConsistency, len(found))
	}
}

func (s *memStore) ListHistory(context.Context, string, domain.ListOpts) ([]domain.Position, error) {
	return nil, nil
}

func (s *memStore) openCount(instrument string) int {
	n := 0
	for _, p := range s.positions {
		if p.Instrument == instrument && p.IsOpen() {
			n++
		}
	}
	return n
}

type fakeBalance struct {
	lamports uint64
	err      error
}

func (b *fakeBalance) GetSOLBalance(context.Context, string) (uint64, error) {
	return b.lamports, b.err
}

// scriptedStrategy answers with fixed decisions.
type scriptedStrategy struct {
	buy  strategy.Decision
	sell strategy.Decision
}

func (s *scriptedStrategy) Name() string { return "scripted" }

func (s *scriptedStrategy) ShouldBuy([]domain.Candle, domain.Candle, *time.Time) strategy.Decision {
	return s.buy
}

func (s *scriptedStrategy) ShouldSell(domain.Position, domain.Candle) strategy.Decision {
	return s.sell
}

// --- harness ---

type harness struct {
	engine  *Engine
	feed    *fakeFeed
	gateway *fakeGateway
	store   *memStore
	strat   *scriptedStrategy
	clock   time.Time
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	start := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	h := &harness{
		feed:    &fakeFeed{},
		gateway: &fakeGateway{},
		store:   newMemStore(),
		strat:   &scriptedStrategy{},
		clock:   start,
	}
	h.feed.lookback = []domain.Candle{{Instrument: "MINT", Timestamp: start.Add(-time.Minute), Close: 0.001, Volume: 100}}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	eng, err := New(Config{
		Instrument:        "MINT",
		LoopDelay:         time.Second,
		Lookback:          20,
		BalancePercentage: 0.5,
		MinTradeSizeSOL:   0.001,
		FeeBufferSOL:      0.01,
		RentBufferSOL:     0.002,
	}, h.strat, h.feed, h.gateway, h.store, &fakeBalance{lamports: 1_000_000_000}, "ownerpubkey", nil, logger)
	if err != nil {
		t.Fatal(err)
	}
	h.engine = eng
	return h
}

// tick advances the feed one candle and runs one iteration.
func (h *harness) tick(t *testing.T, close float64) {
	t.Helper()
	h.clock = h.clock.Add(time.Second)
	h.feed.current = domain.Candle{
		Instrument: "MINT",
		Timestamp:  h.clock,
		Close:      close,
		Volume:     100,
	}
	if err := h.engine.iterate(context.Background()); err != nil {
		t.Fatalf("iterate: %v", err)
	}
}

func buyDecision() strategy.Decision {
	return strategy.Decision{Signal: true, Reason: "test entry"}
}

// --- tests ---

func TestEngineOpensPositionOnBuySignal(t *testing.T) {
	h := newHarness(t)
	h.strat.buy = buyDecision()
	h.gateway.fill = domain.Fill{Price: 0.001, Size: 244, TxRef: "sig-open", FilledAt: h.clock.Add(time.Second)}

	h.tick(t, 0.001)

	if got := h.engine.State(); got != StateHolding {
		t.Fatalf("state = %s, want %s", got, StateHolding)
	}
	pos, err := h.store.FindOpen(context.Background(), "MINT")
	if err != nil || pos == nil {
		t.Fatalf("FindOpen = %v, %v; want one open position", pos, err)
	}
	if pos.EntryPrice != 0.001 {
		t.Errorf("entry price = %v, want fill price 0.001", pos.EntryPrice)
	}
	if pos.Size != 244 {
		t.Errorf("size = %v, want fill size 244", pos.Size)
	}
	if pos.OpenTxRef != "sig-open" {
		t.Errorf("open tx ref = %q, want sig-open", pos.OpenTxRef)
	}

	if len(h.gateway.intents) != 1 {
		t.Fatalf("gateway calls = %d, want 1", len(h.gateway.intents))
	}
	intent := h.gateway.intents[0]
	if intent.Side != domain.TradeSideBuy {
		t.Errorf("intent side = %s, want BUY", intent.Side)
	}
	// 1 SOL balance, 0.012 buffers, 50% of the rest.
	if want := 0.494; intent.Size < want-1e-9 || intent.Size > want+1e-9 {
		t.Errorf("intent size = %v, want %v", intent.Size, want)
	}
}

func TestEngineClosesPositionOnSellSignal(t *testing.T) {
	h := newHarness(t)
	h.strat.buy = buyDecision()
	entryTime := h.clock.Add(time.Second)
	h.gateway.fill = domain.Fill{Price: 0.001, Size: 200, TxRef: "sig-open", FilledAt: entryTime}
	h.tick(t, 0.001)

	h.strat.buy = strategy.Decision{}
	h.strat.sell = strategy.Decision{Signal: true, Reason: "stop-loss: -11.00%"}
	exitTime := entryTime.Add(2 * time.Second)
	h.gateway.fill = domain.Fill{Price: 0.00089, Size: 200, TxRef: "sig-close", FilledAt: exitTime}
	h.tick(t, 0.00089)

	if got := h.engine.State(); got != StateScanning {
		t.Fatalf("state = %s, want %s", got, StateScanning)
	}
	if n := h.store.openCount("MINT"); n != 0 {
		t.Fatalf("open positions = %d, want 0", n)
	}

	var closed *domain.Position
	for _, p := range h.store.positions {
		closed = p
	}
	if closed == nil || closed.Status != domain.PositionStatusClosed {
		t.Fatal("expected a closed position in the store")
	}
	if closed.ExitPrice == nil || *closed.ExitPrice != 0.00089 {
		t.Errorf("exit price = %v, want 0.00089", closed.ExitPrice)
	}
	if closed.ExitTime == nil || !closed.ExitTime.After(closed.EntryTime) {
		t.Error("exit time must be strictly after entry time")
	}
	if closed.RealizedPnL == nil {
		t.Fatal("realized pnl not set")
	}
	// (0.00089 - 0.001) * 200 = -0.022; price dropped, pnl must be negative.
	if got, want := *closed.RealizedPnL, -0.022; got < want-1e-9 || got > want+1e-9 {
		t.Errorf("realized pnl = %v, want %v", got, want)
	}
	if h.engine.lastExit == nil || !h.engine.lastExit.Equal(exitTime) {
		t.Errorf("lastExit = %v, want exit time %v for cooldown", h.engine.lastExit, exitTime)
	}
}

func TestEngineSkipsStaleFeed(t *testing.T) {
	h := newHarness(t)
	h.strat.buy = buyDecision()
	h.feed.currentErr = fmt.Errorf("%w: live candle is 12s old", domain.ErrFeedStale)

	if err := h.engine.iterate(context.Background()); err != nil {
		t.Fatalf("iterate: %v", err)
	}
	if got := h.engine.State(); got != StateScanning {
		t.Errorf("state = %s, want unchanged %s", got, StateScanning)
	}
	if len(h.gateway.intents) != 0 {
		t.Errorf("gateway called %d times on stale feed", len(h.gateway.intents))
	}
}

// A candle at or before the last processed timestamp is stale and skipped.
func TestEngineSkipsRepeatedCandle(t *testing.T) {
	h := newHarness(t)
	h.strat.buy = buyDecision()
	h.gateway.err = &domain.ExecutionFailure{Kind: domain.FailureExhausted, Attempts: 4, LastErr: errors.New("no fill")}

	h.tick(t, 0.001)
	calls := len(h.gateway.intents)

	// Same candle again: no decision, no gateway call.
	if err := h.engine.iterate(context.Background()); err != nil {
		t.Fatalf("iterate: %v", err)
	}
	if len(h.gateway.intents) != calls {
		t.Errorf("gateway calls = %d, want %d (stale candle must be a no-op)", len(h.gateway.intents), calls)
	}
}

func TestEngineStaysScanningOnExhaustedBuy(t *testing.T) {
	h := newHarness(t)
	h.strat.buy = buyDecision()
	h.gateway.err = &domain.ExecutionFailure{Kind: domain.FailureExhausted, Attempts: 4, LastErr: errors.New("no fill")}

	h.tick(t, 0.001)

	if got := h.engine.State(); got != StateScanning {
		t.Errorf("state = %s, want %s", got, StateScanning)
	}
	if n := h.store.openCount("MINT"); n != 0 {
		t.Errorf("open positions = %d, want 0 after exhausted ladder", n)
	}
}

func TestEngineStaysHoldingOnSellFailure(t *testing.T) {
	h := newHarness(t)
	h.strat.buy = buyDecision()
	h.gateway.fill = domain.Fill{Price: 0.001, Size: 200, TxRef: "sig-open", FilledAt: h.clock.Add(time.Second)}
	h.tick(t, 0.001)

	h.strat.buy = strategy.Decision{}
	h.strat.sell = strategy.Decision{Signal: true, Reason: "stop-loss"}
	h.gateway.err = &domain.ExecutionFailure{Kind: domain.FailureExhausted, Attempts: 4, LastErr: errors.New("no fill")}
	h.tick(t, 0.00088)

	if got := h.engine.State(); got != StateHolding {
		t.Fatalf("state = %s, want %s (exit must be retried, not abandoned)", got, StateHolding)
	}
	if n := h.store.openCount("MINT"); n != 1 {
		t.Fatalf("open positions = %d, want 1", n)
	}

	// Next cycle retries the sell.
	h.gateway.err = nil
	h.gateway.fill = domain.Fill{Price: 0.00088, Size: 200, TxRef: "sig-close", FilledAt: h.clock.Add(2 * time.Second)}
	h.tick(t, 0.00088)
	if got := h.engine.State(); got != StateScanning {
		t.Errorf("state = %s, want %s after retried sell", got, StateScanning)
	}
}

// The single-open-position invariant: while HOLDING no BUY intent is ever
// issued, however loud the entry signal.
func TestEngineNeverDoublesOpenPosition(t *testing.T) {
	h := newHarness(t)
	h.strat.buy = buyDecision()
	h.strat.sell = strategy.Decision{}
	h.gateway.fill = domain.Fill{Price: 0.001, Size: 200, TxRef: "sig-open", FilledAt: h.clock.Add(time.Second)}

	for i := 0; i < 5; i++ {
		h.tick(t, 0.001)
	}

	if n := h.store.openCount("MINT"); n != 1 {
		t.Fatalf("open positions = %d, want exactly 1", n)
	}
	if len(h.gateway.intents) != 1 {
		t.Errorf("gateway calls = %d, want 1 (no buy while HOLDING)", len(h.gateway.intents))
	}
}

func TestEngineHaltsOnCloseConsistencyError(t *testing.T) {
	h := newHarness(t)
	h.strat.buy = buyDecision()
	h.gateway.fill = domain.Fill{Price: 0.001, Size: 200, TxRef: "sig-open", FilledAt: h.clock.Add(time.Second)}
	h.tick(t, 0.001)

	h.strat.buy = strategy.Decision{}
	h.strat.sell = strategy.Decision{Signal: true, Reason: "stop-loss"}
	h.gateway.fill = domain.Fill{Price: 0.00088, Size: 200, TxRef: "sig-close", FilledAt: h.clock.Add(2 * time.Second)}
	h.store.closeErr = domain.ErrPositionClosed

	h.clock = h.clock.Add(time.Second)
	h.feed.current = domain.Candle{Instrument: "MINT", Timestamp: h.clock, Close: 0.00088, Volume: 100}
	err := h.engine.iterate(context.Background())
	if err == nil {
		t.Fatal("expected halt on close of already-closed position")
	}
	if !errors.Is(err, domain.ErrPositionClosed) {
		t.Errorf("err = %v, want ErrPositionClosed in chain", err)
	}
}

// A BUY that fills while shutdown is in flight must still reach the store:
// otherwise a restarted engine sees no open row and buys again on top of the
// unrecorded tokens.
func TestEnginePersistsFillWhenShutdownInterruptsBuy(t *testing.T) {
	h := newHarness(t)
	h.strat.buy = buyDecision()
	h.feed.current = domain.Candle{
		Instrument: "MINT",
		Timestamp:  h.clock.Add(time.Second),
		Close:      0.001,
		Volume:     100,
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h.engine.gateway = &cancellingGateway{
		cancel: cancel,
		fill:   domain.Fill{Price: 0.001, Size: 200, TxRef: "sig-open", FilledAt: h.clock.Add(time.Second)},
	}

	err := h.engine.Run(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Run = %v, want context.Canceled", err)
	}

	pos, findErr := h.store.FindOpen(context.Background(), "MINT")
	if findErr != nil {
		t.Fatalf("FindOpen: %v", findErr)
	}
	if pos == nil {
		t.Fatal("filled BUY was not persisted: store has no open position after shutdown")
	}
	if pos.OpenTxRef != "sig-open" {
		t.Errorf("open tx ref = %q, want sig-open", pos.OpenTxRef)
	}
}

func TestEngineRecoversOpenPosition(t *testing.T) {
	h := newHarness(t)
	entry := time.Date(2025, 6, 1, 11, 0, 0, 0, time.UTC)
	if _, err := h.store.CreateOpen(context.Background(), domain.Position{
		ID:         "existing",
		Instrument: "MINT",
		Side:       domain.TradeSideBuy,
		Size:       100,
		EntryPrice: 0.002,
		EntryTime:  entry,
		Status:     domain.PositionStatusOpen,
	}); err != nil {
		t.Fatal(err)
	}

	if err := h.engine.recover(context.Background()); err != nil {
		t.Fatalf("recover: %v", err)
	}
	if got := h.engine.State(); got != StateHolding {
		t.Errorf("state = %s, want %s after recovering open position", got, StateHolding)
	}
	if h.engine.pos == nil || h.engine.pos.ID != "existing" {
		t.Error("expected the stored position to be loaded")
	}
}

func TestEngineSkipsBuyBelowMinimumSize(t *testing.T) {
	h := newHarness(t)
	h.strat.buy = buyDecision()
	// 0.0125 SOL: after the 0.012 SOL buffers only 0.00025 SOL remains to
	// trade, below the 0.001 minimum.
	eng, err := New(h.engine.cfg, h.strat, h.feed, h.gateway, h.store, &fakeBalance{lamports: 12_500_000}, "owner", nil, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatal(err)
	}
	h.engine = eng

	h.tick(t, 0.001)

	if len(h.gateway.intents) != 0 {
		t.Errorf("gateway called with size below minimum")
	}
	if n := h.store.openCount("MINT"); n != 0 {
		t.Errorf("open positions = %d, want 0", n)
	}
}

func TestEngineRejectsBadConfig(t *testing.T) {
	strat := &scriptedStrategy{}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	bad := []Config{
		{},
		{Instrument: "MINT", LoopDelay: time.Second, Lookback: 0, BalancePercentage: 0.5},
		{Instrument: "MINT", LoopDelay: time.Second, Lookback: 20, BalancePercentage: 1.5},
		{Instrument: "MINT", LoopDelay: -time.Second, Lookback: 20, BalancePercentage: 0.5},
	}
	for i, cfg := range bad {
		if _, err := New(cfg, strat, nil, nil, nil, nil, "", nil, logger); err == nil {
			t.Errorf("config %d: expected constructor to fail", i)
		}
	}
}
