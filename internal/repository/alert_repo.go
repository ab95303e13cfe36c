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

// ErrAlertNotFound is returned when an alert does not exist or belongs to
// another user
var ErrAlertNotFound = errors.New("alert not found")

// AlertRepository handles database operations for price alerts
type AlertRepository struct {
	pool *pgxpool.Pool
}

// NewAlertRepository creates a new AlertRepository
func NewAlertRepository(pool *pgxpool.Pool) *AlertRepository {
	return &AlertRepository{pool: pool}
}

const alertColumns = `
	id, user_id, ticker_id, direction, threshold, state, triggered_at, created_at
`

func scanAlert(row pgx.Row) (*models.Alert, error) {
	a := &models.Alert{}
	err := row.Scan(
		&a.ID, &a.UserID, &a.TickerID, &a.Direction,
		&a.Threshold, &a.State, &a.TriggeredAt, &a.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return a, nil
}

// Create inserts a new ARMED alert
func (r *AlertRepository) Create(ctx context.Context, userID, tickerID int64, direction models.AlertDirection, threshold float64) (*models.Alert, error) {
	query := `
		INSERT INTO alerts (user_id, ticker_id, direction, threshold, state)
		VALUES ($1, $2, $3, $4, 'ARMED')
		RETURNING ` + alertColumns
	a, err := scanAlert(r.pool.QueryRow(ctx, query, userID, tickerID, direction, threshold))
	if err != nil {
		return nil, fmt.Errorf("failed to create alert: %w", err)
	}
	return a, nil
}

// ListByUser returns all of a user's alerts, newest first
func (r *AlertRepository) ListByUser(ctx context.Context, userID int64) ([]models.Alert, error) {
	query := `
		SELECT ` + alertColumns + `
		FROM alerts
		WHERE user_id = $1
		ORDER BY created_at DESC
	`
	rows, err := r.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query alerts: %w", err)
	}
	defer rows.Close()

	var alerts []models.Alert
	for rows.Next() {
		a, err := scanAlert(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan alert: %w", err)
		}
		alerts = append(alerts, *a)
	}
	return alerts, rows.Err()
}

// ArmedByTicker returns all ARMED alerts watching a ticker
func (r *AlertRepository) ArmedByTicker(ctx context.Context, tickerID int64) ([]models.Alert, error) {
	query := `
		SELECT ` + alertColumns + `
		FROM alerts
		WHERE ticker_id = $1 AND state = 'ARMED'
		ORDER BY id ASC
	`
	rows, err := r.pool.Query(ctx, query, tickerID)
	if err != nil {
		return nil, fmt.Errorf("failed to query armed alerts: %w", err)
	}
	defer rows.Close()

	var alerts []models.Alert
	for rows.Next() {
		a, err := scanAlert(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan alert: %w", err)
		}
		alerts = append(alerts, *a)
	}
	return alerts, rows.Err()
}

// Trigger transitions an alert from ARMED to TRIGGERED. The state guard in
// the WHERE clause makes the transition exactly-once under concurrent
// evaluation: only one caller sees a row affected.
func (r *AlertRepository) Trigger(ctx context.Context, id int64, at time.Time) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE alerts
		SET state = 'TRIGGERED', triggered_at = $2
		WHERE id = $1 AND state = 'ARMED'
	`, id, at)
	if err != nil {
		return false, fmt.Errorf("failed to trigger alert %d: %w", id, err)
	}
	return tag.RowsAffected() == 1, nil
}

// Acknowledge transitions a user's alert from TRIGGERED to ACKNOWLEDGED
func (r *AlertRepository) Acknowledge(ctx context.Context, userID, id int64) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE alerts
		SET state = 'ACKNOWLEDGED'
		WHERE id = $1 AND user_id = $2 AND state = 'TRIGGERED'
	`, id, userID)
	if err != nil {
		return fmt.Errorf("failed to acknowledge alert %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrAlertNotFound
	}
	return nil
}

// Rearm returns an acknowledged alert to ARMED. Re-arming is an explicit
// user action; the evaluator never does it.
func (r *AlertRepository) Rearm(ctx context.Context, userID, id int64) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE alerts
		SET state = 'ARMED', triggered_at = NULL
		WHERE id = $1 AND user_id = $2 AND state = 'ACKNOWLEDGED'
	`, id, userID)
	if err != nil {
		return fmt.Errorf("failed to rearm alert %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrAlertNotFound
	}
	return nil
}

// Delete removes a user's alert
func (r *AlertRepository) Delete(ctx context.Context, userID, id int64) error {
	tag, err := r.pool.Exec(ctx,
		`DELETE FROM alerts WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return fmt.Errorf("failed to delete alert %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrAlertNotFound
	}
	return nil
}
