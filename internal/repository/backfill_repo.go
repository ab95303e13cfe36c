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

// ErrBackfillNotFound is returned when a queue row has disappeared
var ErrBackfillNotFound = errors.New("backfill request not found")

// BackfillRepository handles database operations for the backfill queue
type BackfillRepository struct {
	pool *pgxpool.Pool
}

// NewBackfillRepository creates a new BackfillRepository
func NewBackfillRepository(pool *pgxpool.Pool) *BackfillRepository {
	return &BackfillRepository{pool: pool}
}

const backfillColumns = `
	id, ticker_id, start_date, end_date, status, attempts, last_error, next_attempt_at, requested_at
`

func scanBackfill(row pgx.Row) (*models.BackfillRequest, error) {
	b := &models.BackfillRequest{}
	err := row.Scan(
		&b.ID, &b.TickerID, &b.StartDate, &b.EndDate,
		&b.Status, &b.Attempts, &b.LastError, &b.NextAttemptAt, &b.RequestedAt,
	)
	if err != nil {
		return nil, err
	}
	return b, nil
}

// Create inserts a new PENDING request
func (r *BackfillRepository) Create(ctx context.Context, tickerID int64, start, end time.Time) (*models.BackfillRequest, error) {
	query := `
		INSERT INTO backfill_queue (ticker_id, start_date, end_date, status)
		VALUES ($1, $2, $3, 'PENDING')
		RETURNING ` + backfillColumns
	b, err := scanBackfill(r.pool.QueryRow(ctx, query, tickerID, start, end))
	if err != nil {
		return nil, fmt.Errorf("failed to create backfill request: %w", err)
	}
	return b, nil
}

// OpenForTicker returns a ticker's non-terminal PENDING and FAILED requests,
// the candidates for range merging on enqueue.
func (r *BackfillRepository) OpenForTicker(ctx context.Context, tickerID int64, maxAttempts int) ([]models.BackfillRequest, error) {
	query := `
		SELECT ` + backfillColumns + `
		FROM backfill_queue
		WHERE ticker_id = $1
		  AND (status = 'PENDING' OR (status = 'FAILED' AND attempts < $2))
		ORDER BY start_date ASC
	`
	rows, err := r.pool.Query(ctx, query, tickerID, maxAttempts)
	if err != nil {
		return nil, fmt.Errorf("failed to query open backfills: %w", err)
	}
	defer rows.Close()

	var reqs []models.BackfillRequest
	for rows.Next() {
		b, err := scanBackfill(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan backfill: %w", err)
		}
		reqs = append(reqs, *b)
	}
	return reqs, rows.Err()
}

// Merge replaces a set of overlapping requests with a single PENDING request
// covering their union, atomically. Attempts carries over the maximum of the
// merged rows so retry budgets survive the merge.
func (r *BackfillRepository) Merge(ctx context.Context, tickerID int64, start, end time.Time, attempts int, dropIDs []int64) (*models.BackfillRequest, error) {
	dbTx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer dbTx.Rollback(ctx)

	if len(dropIDs) > 0 {
		_, err = dbTx.Exec(ctx,
			`DELETE FROM backfill_queue WHERE id = ANY($1)`, dropIDs)
		if err != nil {
			return nil, fmt.Errorf("failed to drop merged backfills: %w", err)
		}
	}

	query := `
		INSERT INTO backfill_queue (ticker_id, start_date, end_date, status, attempts)
		VALUES ($1, $2, $3, 'PENDING', $4)
		RETURNING ` + backfillColumns
	b, err := scanBackfill(dbTx.QueryRow(ctx, query, tickerID, start, end, attempts))
	if err != nil {
		return nil, fmt.Errorf("failed to insert merged backfill: %w", err)
	}

	if err := dbTx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit merge: %w", err)
	}
	return b, nil
}

// Due returns requests eligible for processing: PENDING, or FAILED with
// retry budget left and a backoff deadline that has passed.
func (r *BackfillRepository) Due(ctx context.Context, now time.Time, maxAttempts int) ([]models.BackfillRequest, error) {
	query := `
		SELECT ` + backfillColumns + `
		FROM backfill_queue
		WHERE (status = 'PENDING' OR (status = 'FAILED' AND attempts < $2))
		  AND next_attempt_at <= $1
		ORDER BY requested_at ASC
	`
	rows, err := r.pool.Query(ctx, query, now, maxAttempts)
	if err != nil {
		return nil, fmt.Errorf("failed to query due backfills: %w", err)
	}
	defer rows.Close()

	var reqs []models.BackfillRequest
	for rows.Next() {
		b, err := scanBackfill(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan backfill: %w", err)
		}
		reqs = append(reqs, *b)
	}
	return reqs, rows.Err()
}

// MarkInProgress transitions a request to IN_PROGRESS, guarding against
// a concurrent worker having already claimed it.
func (r *BackfillRepository) MarkInProgress(ctx context.Context, id int64) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE backfill_queue
		SET status = 'IN_PROGRESS'
		WHERE id = $1 AND status IN ('PENDING', 'FAILED')
	`, id)
	if err != nil {
		return false, fmt.Errorf("failed to claim backfill %d: %w", id, err)
	}
	return tag.RowsAffected() == 1, nil
}

// MarkDone finalizes a completed request
func (r *BackfillRepository) MarkDone(ctx context.Context, id int64) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE backfill_queue
		SET status = 'DONE', last_error = NULL
		WHERE id = $1
	`, id)
	if err != nil {
		return fmt.Errorf("failed to complete backfill %d: %w", id, err)
	}
	return nil
}

// MarkFailed records a failed attempt with its error and backoff deadline.
// Callers pass the incremented attempts count; terminal failures set
// attempts to the configured ceiling so the row is never retried.
func (r *BackfillRepository) MarkFailed(ctx context.Context, id int64, attempts int, lastError string, nextAttemptAt time.Time) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE backfill_queue
		SET status = 'FAILED', attempts = $2, last_error = $3, next_attempt_at = $4
		WHERE id = $1
	`, id, attempts, lastError, nextAttemptAt)
	if err != nil {
		return fmt.Errorf("failed to record backfill failure %d: %w", id, err)
	}
	return nil
}

// RevertPending returns an IN_PROGRESS request to PENDING without consuming
// an attempt, used when processing is interrupted by shutdown.
func (r *BackfillRepository) RevertPending(ctx context.Context, id int64) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE backfill_queue
		SET status = 'PENDING'
		WHERE id = $1 AND status = 'IN_PROGRESS'
	`, id)
	if err != nil {
		return fmt.Errorf("failed to revert backfill %d: %w", id, err)
	}
	return nil
}

// List returns the most recent queue rows for the admin surface
func (r *BackfillRepository) List(ctx context.Context, limit int) ([]models.BackfillRequest, error) {
	query := `
		SELECT ` + backfillColumns + `
		FROM backfill_queue
		ORDER BY requested_at DESC
		LIMIT $1
	`
	rows, err := r.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list backfills: %w", err)
	}
	defer rows.Close()

	var reqs []models.BackfillRequest
	for rows.Next() {
		b, err := scanBackfill(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan backfill: %w", err)
		}
		reqs = append(reqs, *b)
	}
	return reqs, rows.Err()
}
