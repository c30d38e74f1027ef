package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"soltrader/internal/domain"
)

// PositionStore implements domain.PositionStore using PostgreSQL.
type PositionStore struct {
	pool *pgxpool.Pool
}

// NewPositionStore creates a new PositionStore backed by the given connection pool.
func NewPositionStore(pool *pgxpool.Pool) *PositionStore {
	return &PositionStore{pool: pool}
}

const positionSelectCols = `id, instrument, symbol, side, size,
	entry_price, entry_time, status, strategy_name, open_tx_ref,
	exit_price, exit_time, realized_pnl, close_tx_ref`

func scanPosition(row pgx.Row) (domain.Position, error) {
	var p domain.Position
	var side, status string

	err := row.Scan(
		&p.ID, &p.Instrument, &p.Symbol, &side, &p.Size,
		&p.EntryPrice, &p.EntryTime, &status, &p.Strategy, &p.OpenTxRef,
		&p.ExitPrice, &p.ExitTime, &p.RealizedPnL, &p.CloseTxRef,
	)
	if err != nil {
		return domain.Position{}, err
	}
	p.Side = domain.TradeSide(side)
	p.Status = domain.PositionStatus(status)
	return p, nil
}

// CreateOpen inserts a new OPEN position and returns its id. The partial
// unique index on open rows turns a double-open race into ErrConsistency.
func (s *PositionStore) CreateOpen(ctx context.Context, p domain.Position) (string, error) {
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	if p.Size <= 0 {
		return "", fmt.Errorf("postgres: create position: size must be > 0, got %v", p.Size)
	}

	const query = `
		INSERT INTO positions (
			id, instrument, symbol, side, size,
			entry_price, entry_time, status, strategy_name, open_tx_ref,
			updated_at
		) VALUES (
			$1, $2, $3, $4, $5,
			$6, $7, $8, $9, $10,
			NOW()
		)`

	_, err := s.pool.Exec(ctx, query,
		p.ID, p.Instrument, p.Symbol, string(p.Side), p.Size,
		p.EntryPrice, p.EntryTime, string(domain.PositionStatusOpen), p.Strategy, p.OpenTxRef,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return "", fmt.Errorf("%w: open position already exists for %s", domain.ErrConsistency, p.Instrument)
		}
		return "", fmt.Errorf("postgres: create position %s: %w", p.ID, err)
	}
	return p.ID, nil
}

// Close transitions an OPEN position to CLOSED in a single atomic update. It
// fails loudly when the row is missing or already closed: a second close for
// the same id indicates a logic error upstream, never a silent no-op.
func (s *PositionStore) Close(ctx context.Context, id string, close domain.ClosePosition) error {
	const query = `
		UPDATE positions SET
			status       = $2,
			exit_price   = $3,
			exit_time    = $4,
			realized_pnl = $5,
			close_tx_ref = $6,
			updated_at   = NOW()
		WHERE id = $1 AND status = $7`

	tag, err := s.pool.Exec(ctx, query,
		id, string(domain.PositionStatusClosed),
		close.ExitPrice, close.ExitTime, close.RealizedPnL, close.CloseTxRef,
		string(domain.PositionStatusOpen),
	)
	if err != nil {
		return fmt.Errorf("postgres: close position %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		var status string
		err := s.pool.QueryRow(ctx, "SELECT status FROM positions WHERE id = $1", id).Scan(&status)
		if err == pgx.ErrNoRows {
			return fmt.Errorf("postgres: close position %s: %w", id, domain.ErrNotFound)
		}
		if err != nil {
			return fmt.Errorf("postgres: close position %s: %w", id, err)
		}
		return fmt.Errorf("postgres: close position %s: %w", id, domain.ErrPositionClosed)
	}
	return nil
}

// FindOpen returns the open position for an instrument, nil when there is
// none. Finding more than one open row is a consistency violation surfaced to
// the caller, not resolved here.
func (s *PositionStore) FindOpen(ctx context.Context, instrument string) (*domain.Position, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+positionSelectCols+` FROM positions
		 WHERE instrument = $1 AND status = $2`,
		instrument, string(domain.PositionStatusOpen))
	if err != nil {
		return nil, fmt.Errorf("postgres: find open position: %w", err)
	}
	defer rows.Close()

	var found []domain.Position
	for rows.Next() {
		p, err := scanPosition(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan open position: %w", err)
		}
		found = append(found, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: find open position: %w", err)
	}

	switch len(found) {
	case 0:
		return nil, nil
	case 1:
		return &found[0], nil
	default:
		return nil, fmt.Errorf("%w: %d open positions for %s", domain.ErrConsistency, len(found), instrument)
	}
}

// ListHistory returns positions for an instrument with pagination and
// optional time filtering, newest first.
func (s *PositionStore) ListHistory(ctx context.Context, instrument string, opts domain.ListOpts) ([]domain.Position, error) {
	query := `SELECT ` + positionSelectCols + ` FROM positions WHERE instrument = $1`
	args := []any{instrument}
	argIdx := 2

	if opts.Since != nil {
		query += fmt.Sprintf(" AND entry_time >= $%d", argIdx)
		args = append(args, *opts.Since)
		argIdx++
	}
	if opts.Until != nil {
		query += fmt.Sprintf(" AND entry_time <= $%d", argIdx)
		args = append(args, *opts.Until)
		argIdx++
	}

	query += " ORDER BY entry_time DESC"

	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, opts.Limit)
		argIdx++
	}
	if opts.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argIdx)
		args = append(args, opts.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list position history: %w", err)
	}
	defer rows.Close()

	var positions []domain.Position
	for rows.Next() {
		p, err := scanPosition(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan position history: %w", err)
		}
		positions = append(positions, p)
	}
	return positions, rows.Err()
}
