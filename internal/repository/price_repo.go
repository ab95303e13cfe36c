package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/tlemoine/peatrack/internal/models"
)

// PriceRepository handles database operations for daily prices and dividends
type PriceRepository struct {
	pool *pgxpool.Pool
}

// NewPriceRepository creates a new PriceRepository
func NewPriceRepository(pool *pgxpool.Pool) *PriceRepository {
	return &PriceRepository{pool: pool}
}

// UpsertPrices writes a batch of daily price points, overwriting any rows
// that already exist for the same (ticker_id, date).
func (r *PriceRepository) UpsertPrices(ctx context.Context, prices []models.PricePoint) error {
	if len(prices) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	query := `
		INSERT INTO daily_prices (ticker_id, date, open, high, low, close, volume)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (ticker_id, date)
		DO UPDATE SET
			open = EXCLUDED.open,
			high = EXCLUDED.high,
			low = EXCLUDED.low,
			close = EXCLUDED.close,
			volume = EXCLUDED.volume
	`
	for _, p := range prices {
		batch.Queue(query, p.TickerID, p.Date, p.Open, p.High, p.Low, p.Close, p.Volume)
	}

	results := r.pool.SendBatch(ctx, batch)
	defer results.Close()

	for range prices {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("failed to upsert price: %w", err)
		}
	}
	return nil
}

// UpsertDividends writes a batch of per-share dividend records
func (r *PriceRepository) UpsertDividends(ctx context.Context, dividends []models.DividendRecord) error {
	if len(dividends) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	query := `
		INSERT INTO dividends (ticker_id, date, amount_per_share)
		VALUES ($1, $2, $3)
		ON CONFLICT (ticker_id, date)
		DO UPDATE SET amount_per_share = EXCLUDED.amount_per_share
	`
	for _, d := range dividends {
		batch.Queue(query, d.TickerID, d.Date, d.AmountPerShare)
	}

	results := r.pool.SendBatch(ctx, batch)
	defer results.Close()

	for range dividends {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("failed to upsert dividend: %w", err)
		}
	}
	return nil
}

// EarliestDate returns the oldest stored price date for a ticker,
// or nil when no prices are stored at all.
func (r *PriceRepository) EarliestDate(ctx context.Context, tickerID int64) (*time.Time, error) {
	var earliest *time.Time
	err := r.pool.QueryRow(ctx,
		`SELECT MIN(date) FROM daily_prices WHERE ticker_id = $1`, tickerID,
	).Scan(&earliest)
	if err != nil {
		return nil, fmt.Errorf("failed to query earliest price date: %w", err)
	}
	return earliest, nil
}

// LatestPrice returns the most recent price point for a ticker.
// Returns (nil, nil) when the ticker has no stored prices.
func (r *PriceRepository) LatestPrice(ctx context.Context, tickerID int64) (*models.PricePoint, error) {
	query := `
		SELECT ticker_id, date, open, high, low, close, volume
		FROM daily_prices
		WHERE ticker_id = $1
		ORDER BY date DESC
		LIMIT 1
	`
	p := &models.PricePoint{}
	err := r.pool.QueryRow(ctx, query, tickerID).Scan(
		&p.TickerID, &p.Date, &p.Open, &p.High, &p.Low, &p.Close, &p.Volume,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query latest price: %w", err)
	}
	return p, nil
}

// CloseBefore returns the last close strictly before date, used as the
// prior-close reference for alert crossing detection.
// Returns (nil, nil) when no earlier close exists.
func (r *PriceRepository) CloseBefore(ctx context.Context, tickerID int64, date time.Time) (*models.PricePoint, error) {
	query := `
		SELECT ticker_id, date, open, high, low, close, volume
		FROM daily_prices
		WHERE ticker_id = $1 AND date < $2
		ORDER BY date DESC
		LIMIT 1
	`
	p := &models.PricePoint{}
	err := r.pool.QueryRow(ctx, query, tickerID, date).Scan(
		&p.TickerID, &p.Date, &p.Open, &p.High, &p.Low, &p.Close, &p.Volume,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query prior close: %w", err)
	}
	return p, nil
}

// PricesInRange returns all stored price points for a ticker within
// [start, end], ascending by date.
func (r *PriceRepository) PricesInRange(ctx context.Context, tickerID int64, start, end time.Time) ([]models.PricePoint, error) {
	query := `
		SELECT ticker_id, date, open, high, low, close, volume
		FROM daily_prices
		WHERE ticker_id = $1 AND date >= $2 AND date <= $3
		ORDER BY date ASC
	`
	rows, err := r.pool.Query(ctx, query, tickerID, start, end)
	if err != nil {
		return nil, fmt.Errorf("failed to query price range: %w", err)
	}
	defer rows.Close()

	var prices []models.PricePoint
	for rows.Next() {
		var p models.PricePoint
		if err := rows.Scan(&p.TickerID, &p.Date, &p.Open, &p.High, &p.Low, &p.Close, &p.Volume); err != nil {
			return nil, fmt.Errorf("failed to scan price: %w", err)
		}
		prices = append(prices, p)
	}
	return prices, rows.Err()
}

// DividendsForTicker returns all stored dividends for a ticker ascending by date
func (r *PriceRepository) DividendsForTicker(ctx context.Context, tickerID int64) ([]models.DividendRecord, error) {
	query := `
		SELECT ticker_id, date, amount_per_share
		FROM dividends
		WHERE ticker_id = $1
		ORDER BY date ASC
	`
	rows, err := r.pool.Query(ctx, query, tickerID)
	if err != nil {
		return nil, fmt.Errorf("failed to query dividends: %w", err)
	}
	defer rows.Close()

	var divs []models.DividendRecord
	for rows.Next() {
		var d models.DividendRecord
		if err := rows.Scan(&d.TickerID, &d.Date, &d.AmountPerShare); err != nil {
			return nil, fmt.Errorf("failed to scan dividend: %w", err)
		}
		divs = append(divs, d)
	}
	return divs, rows.Err()
}
