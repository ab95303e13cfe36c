package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/tlemoine/peatrack/internal/models"
)

// SnapshotRepository handles database operations for portfolio snapshots
type SnapshotRepository struct {
	pool *pgxpool.Pool
}

// NewSnapshotRepository creates a new SnapshotRepository
func NewSnapshotRepository(pool *pgxpool.Pool) *SnapshotRepository {
	return &SnapshotRepository{pool: pool}
}

// Upsert writes a batch of snapshots, overwriting existing (user, date) rows
func (r *SnapshotRepository) Upsert(ctx context.Context, snapshots []models.Snapshot) error {
	if len(snapshots) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	query := `
		INSERT INTO portfolio_snapshots (user_id, date, total_value, total_invested, total_pnl, total_pnl_pct)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (user_id, date)
		DO UPDATE SET
			total_value = EXCLUDED.total_value,
			total_invested = EXCLUDED.total_invested,
			total_pnl = EXCLUDED.total_pnl,
			total_pnl_pct = EXCLUDED.total_pnl_pct
	`
	for _, s := range snapshots {
		batch.Queue(query, s.UserID, s.Date, s.TotalValue, s.TotalInvested, s.TotalPnL, s.TotalPnLPct)
	}

	results := r.pool.SendBatch(ctx, batch)
	defer results.Close()

	for range snapshots {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("failed to upsert snapshot: %w", err)
		}
	}
	return nil
}

// LatestDate returns the most recent snapshot date for a user, or nil when
// the user has no snapshots yet.
func (r *SnapshotRepository) LatestDate(ctx context.Context, userID int64) (*time.Time, error) {
	var latest *time.Time
	err := r.pool.QueryRow(ctx,
		`SELECT MAX(date) FROM portfolio_snapshots WHERE user_id = $1`, userID,
	).Scan(&latest)
	if err != nil {
		return nil, fmt.Errorf("failed to query latest snapshot date: %w", err)
	}
	return latest, nil
}

// Series returns a user's snapshots within [from, to], ascending by date
func (r *SnapshotRepository) Series(ctx context.Context, userID int64, from, to time.Time) ([]models.Snapshot, error) {
	query := `
		SELECT user_id, date, total_value, total_invested, total_pnl, total_pnl_pct
		FROM portfolio_snapshots
		WHERE user_id = $1 AND date >= $2 AND date <= $3
		ORDER BY date ASC
	`
	rows, err := r.pool.Query(ctx, query, userID, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to query snapshots: %w", err)
	}
	defer rows.Close()

	var snaps []models.Snapshot
	for rows.Next() {
		var s models.Snapshot
		if err := rows.Scan(&s.UserID, &s.Date, &s.TotalValue, &s.TotalInvested, &s.TotalPnL, &s.TotalPnLPct); err != nil {
			return nil, fmt.Errorf("failed to scan snapshot: %w", err)
		}
		snaps = append(snaps, s)
	}
	return snaps, rows.Err()
}
