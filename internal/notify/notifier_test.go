package notify

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"soltrader/internal/domain"
)

type recordingSender struct {
	name   string
	err    error
	titles []string
}

func (s *recordingSender) Send(_ context.Context, title, _ string) error {
	s.titles = append(s.titles, title)
	return s.err
}

func (s *recordingSender) Name() string { return s.name }

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func openPosition() domain.Position {
	return domain.Position{
		ID:         "pos-1",
		Instrument: "MINT",
		Symbol:     "MEME",
		Side:       domain.TradeSideBuy,
		Strategy:   "goliath",
		Size:       1000,
		EntryPrice: 0.001,
		EntryTime:  time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
		Status:     domain.PositionStatusOpen,
	}
}

func TestNotifierDeliversToAllSenders(t *testing.T) {
	first := &recordingSender{name: "telegram"}
	second := &recordingSender{name: "discord"}
	n := New([]Sender{first, second}, nil, testLogger())

	n.PositionOpened(context.Background(), openPosition(), domain.Fill{SlippageBps: 75, Attempts: 2, TxRef: "sig"})

	if len(first.titles) != 1 || len(second.titles) != 1 {
		t.Fatalf("delivered %d/%d notifications, want 1/1", len(first.titles), len(second.titles))
	}
}

func TestNotifierFiltersEvents(t *testing.T) {
	sender := &recordingSender{name: "telegram"}
	n := New([]Sender{sender}, []string{EventPositionClosed}, testLogger())

	n.PositionOpened(context.Background(), openPosition(), domain.Fill{})
	n.Failure(context.Background(), "MINT", errors.New("boom"))
	if len(sender.titles) != 0 {
		t.Fatalf("filtered events were delivered: %v", sender.titles)
	}

	n.PositionClosed(context.Background(), openPosition(), "take_profit")
	if len(sender.titles) != 1 {
		t.Fatalf("allowed event delivered %d times, want 1", len(sender.titles))
	}
}

func TestNotifierSwallowsSenderFailures(t *testing.T) {
	broken := &recordingSender{name: "telegram", err: errors.New("api down")}
	healthy := &recordingSender{name: "discord"}
	n := New([]Sender{broken, healthy}, nil, testLogger())

	n.Failure(context.Background(), "MINT", errors.New("execution failed"))

	if len(healthy.titles) != 1 {
		t.Error("a failing sender must not block the others")
	}
}
