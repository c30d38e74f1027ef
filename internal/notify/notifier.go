// Package notify delivers trade lifecycle alerts to operators. Events are
// dispatched to all registered senders (Telegram, Discord) and filtered by
// event type so operators receive only the alerts they care about.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"soltrader/internal/domain"
)

// Event types recognized by the filter.
const (
	EventPositionOpened = "position_opened"
	EventPositionClosed = "position_closed"
	EventError          = "error"
)

// Sender is the interface that each notification channel must implement.
type Sender interface {
	// Send delivers a notification with the given title and message body.
	Send(ctx context.Context, title, message string) error
	// Name returns a human-readable identifier for the sender (e.g. "telegram").
	Name() string
}

// Notifier dispatches trade events to one or more Senders. Only events whose
// type is in the allowed set are forwarded; an empty set allows everything.
// Delivery failures are logged, never propagated into the trading loop.
type Notifier struct {
	senders []Sender
	events  map[string]bool
	logger  *slog.Logger
}

// New creates a Notifier that will deliver to the given senders.
func New(senders []Sender, events []string, logger *slog.Logger) *Notifier {
	allowed := make(map[string]bool, len(events))
	for _, e := range events {
		allowed[strings.TrimSpace(e)] = true
	}
	return &Notifier{
		senders: senders,
		events:  allowed,
		logger:  logger.With(slog.String("component", "notifier")),
	}
}

// PositionOpened reports a freshly opened position.
func (n *Notifier) PositionOpened(ctx context.Context, pos domain.Position, fill domain.Fill) {
	title := fmt.Sprintf("Opened %s %s", pos.Side, symbolOr(pos))
	message := fmt.Sprintf(
		"strategy: %s\nsize: %.6f\nentry: %.9f SOL\nslippage: %d bps (%d attempts)\ntx: %s",
		pos.Strategy, pos.Size, pos.EntryPrice, fill.SlippageBps, fill.Attempts, fill.TxRef,
	)
	n.emit(ctx, EventPositionOpened, title, message)
}

// PositionClosed reports a closed position with its realized result.
func (n *Notifier) PositionClosed(ctx context.Context, pos domain.Position, reason string) {
	pnl := 0.0
	if pos.RealizedPnL != nil {
		pnl = *pos.RealizedPnL
	}
	exit := 0.0
	if pos.ExitPrice != nil {
		exit = *pos.ExitPrice
	}
	title := fmt.Sprintf("Closed %s (%+.6f SOL)", symbolOr(pos), pnl)
	message := fmt.Sprintf(
		"reason: %s\nentry: %.9f SOL\nexit: %.9f SOL\nheld: %s",
		reason, pos.EntryPrice, exit, heldFor(pos),
	)
	n.emit(ctx, EventPositionClosed, title, message)
}

// Failure reports an error the operator should know about.
func (n *Notifier) Failure(ctx context.Context, instrument string, err error) {
	n.emit(ctx, EventError, "Trading error", fmt.Sprintf("instrument: %s\n%v", instrument, err))
}

func (n *Notifier) emit(ctx context.Context, event, title, message string) {
	if len(n.events) > 0 && !n.events[event] {
		n.logger.DebugContext(ctx, "event filtered out", slog.String("event", event))
		return
	}
	for _, s := range n.senders {
		if err := s.Send(ctx, title, message); err != nil {
			n.logger.ErrorContext(ctx, "sender failed",
				slog.String("sender", s.Name()),
				slog.String("event", event),
				slog.String("error", err.Error()),
			)
			continue
		}
		n.logger.DebugContext(ctx, "notification sent",
			slog.String("sender", s.Name()),
			slog.String("event", event),
		)
	}
}

func symbolOr(pos domain.Position) string {
	if pos.Symbol != "" {
		return pos.Symbol
	}
	return pos.Instrument
}

func heldFor(pos domain.Position) string {
	if pos.ExitTime == nil {
		return "unknown"
	}
	return pos.ExitTime.Sub(pos.EntryTime).Round(time.Second).String()
}
