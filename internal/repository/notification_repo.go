package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/tlemoine/peatrack/internal/models"
)

// NotificationRepository handles database operations for per-user
// notification delivery settings
type NotificationRepository struct {
	pool *pgxpool.Pool
}

// NewNotificationRepository creates a new NotificationRepository
func NewNotificationRepository(pool *pgxpool.Pool) *NotificationRepository {
	return &NotificationRepository{pool: pool}
}

// GetByUser returns a user's notification preferences.
// Users without a row get the disabled default.
func (r *NotificationRepository) GetByUser(ctx context.Context, userID int64) (*models.NotificationPreference, error) {
	query := `
		SELECT user_id, slack_enabled, slack_webhook_url
		FROM notification_preferences
		WHERE user_id = $1
	`
	p := &models.NotificationPreference{}
	err := r.pool.QueryRow(ctx, query, userID).Scan(&p.UserID, &p.SlackEnabled, &p.SlackWebhookURL)
	if errors.Is(err, pgx.ErrNoRows) {
		return &models.NotificationPreference{UserID: userID}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get notification preferences: %w", err)
	}
	return p, nil
}

// Upsert writes a user's notification preferences
func (r *NotificationRepository) Upsert(ctx context.Context, p *models.NotificationPreference) error {
	query := `
		INSERT INTO notification_preferences (user_id, slack_enabled, slack_webhook_url)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id)
		DO UPDATE SET
			slack_enabled = EXCLUDED.slack_enabled,
			slack_webhook_url = EXCLUDED.slack_webhook_url
	`
	_, err := r.pool.Exec(ctx, query, p.UserID, p.SlackEnabled, p.SlackWebhookURL)
	if err != nil {
		return fmt.Errorf("failed to upsert notification preferences: %w", err)
	}
	return nil
}
