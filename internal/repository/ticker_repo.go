package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/tlemoine/peatrack/internal/models"
)

// ErrTickerNotFound is returned when a ticker does not exist locally
var ErrTickerNotFound = errors.New("ticker not found")

// TickerRepository handles database operations for tickers
type TickerRepository struct {
	pool *pgxpool.Pool
}

// NewTickerRepository creates a new TickerRepository
func NewTickerRepository(pool *pgxpool.Pool) *TickerRepository {
	return &TickerRepository{pool: pool}
}

// GetByID retrieves a ticker by ID
func (r *TickerRepository) GetByID(ctx context.Context, id int64) (*models.Ticker, error) {
	query := `
		SELECT id, symbol, COALESCE(name, ''), COALESCE(exchange, ''), currency, last_updated
		FROM tickers
		WHERE id = $1
	`
	t := &models.Ticker{}
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&t.ID, &t.Symbol, &t.Name, &t.Exchange, &t.Currency, &t.LastUpdated,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrTickerNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get ticker: %w", err)
	}
	return t, nil
}

// GetBySymbol retrieves a ticker by its symbol
func (r *TickerRepository) GetBySymbol(ctx context.Context, symbol string) (*models.Ticker, error) {
	query := `
		SELECT id, symbol, COALESCE(name, ''), COALESCE(exchange, ''), currency, last_updated
		FROM tickers
		WHERE symbol = $1
	`
	t := &models.Ticker{}
	err := r.pool.QueryRow(ctx, query, strings.ToUpper(strings.TrimSpace(symbol))).Scan(
		&t.ID, &t.Symbol, &t.Name, &t.Exchange, &t.Currency, &t.LastUpdated,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrTickerNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get ticker: %w", err)
	}
	return t, nil
}

// GetOrCreate returns the existing ticker row for a symbol or inserts one
func (r *TickerRepository) GetOrCreate(ctx context.Context, symbol, name, exchange, currency string) (*models.Ticker, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))

	existing, err := r.GetBySymbol(ctx, symbol)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, ErrTickerNotFound) {
		return nil, err
	}

	if currency == "" {
		currency = "EUR"
	}

	query := `
		INSERT INTO tickers (symbol, name, exchange, currency, last_updated)
		VALUES ($1, $2, $3, $4, NOW())
		ON CONFLICT (symbol) DO UPDATE SET last_updated = NOW()
		RETURNING id, symbol, COALESCE(name, ''), COALESCE(exchange, ''), currency, last_updated
	`
	t := &models.Ticker{}
	err = r.pool.QueryRow(ctx, query, symbol, name, exchange, currency).Scan(
		&t.ID, &t.Symbol, &t.Name, &t.Exchange, &t.Currency, &t.LastUpdated,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create ticker: %w", err)
	}
	return t, nil
}

// ActiveForSync returns every distinct ticker with at least one open lot or
// one armed alert. These are the instruments the daily sync refreshes.
func (r *TickerRepository) ActiveForSync(ctx context.Context) ([]models.Ticker, error) {
	query := `
		SELECT DISTINCT t.id, t.symbol, COALESCE(t.name, ''), COALESCE(t.exchange, ''), t.currency, t.last_updated
		FROM tickers t
		WHERE t.id IN (
			SELECT ticker_id FROM lots WHERE remaining_qty > 0
			UNION
			SELECT ticker_id FROM alerts WHERE state = 'ARMED'
		)
		ORDER BY t.symbol
	`
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query active tickers: %w", err)
	}
	defer rows.Close()

	var tickers []models.Ticker
	for rows.Next() {
		var t models.Ticker
		if err := rows.Scan(&t.ID, &t.Symbol, &t.Name, &t.Exchange, &t.Currency, &t.LastUpdated); err != nil {
			return nil, fmt.Errorf("failed to scan ticker: %w", err)
		}
		tickers = append(tickers, t)
	}
	return tickers, rows.Err()
}

// TouchLastUpdated stamps a ticker after a successful data refresh
func (r *TickerRepository) TouchLastUpdated(ctx context.Context, id int64, at time.Time) error {
	_, err := r.pool.Exec(ctx, `UPDATE tickers SET last_updated = $2 WHERE id = $1`, id, at)
	return err
}
