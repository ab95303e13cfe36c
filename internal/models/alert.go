package models

import (
	"time"
)

// AlertDirection is the side of the threshold that fires the alert
type AlertDirection string

const (
	AlertAbove AlertDirection = "ABOVE"
	AlertBelow AlertDirection = "BELOW"
)

// AlertState is the lifecycle state of an alert
type AlertState string

const (
	AlertArmed        AlertState = "ARMED"
	AlertTriggered    AlertState = "TRIGGERED"
	AlertAcknowledged AlertState = "ACKNOWLEDGED"
)

// Alert fires exactly once when a new close crosses its threshold in the
// configured direction. Re-arming after acknowledgment is an explicit user
// action, never automatic.
type Alert struct {
	ID          int64          `json:"id"`
	UserID      int64          `json:"user_id"`
	TickerID    int64          `json:"ticker_id"`
	Direction   AlertDirection `json:"direction"`
	Threshold   float64        `json:"threshold"`
	State       AlertState     `json:"state"`
	TriggeredAt *time.Time     `json:"triggered_at,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
}

// TriggeredAlert describes a single ARMED→TRIGGERED transition
type TriggeredAlert struct {
	AlertID      int64          `json:"alert_id"`
	UserID       int64          `json:"user_id"`
	TickerID     int64          `json:"ticker_id"`
	Symbol       string         `json:"symbol"`
	Direction    AlertDirection `json:"direction"`
	Threshold    float64        `json:"threshold"`
	CurrentPrice float64        `json:"current_price"`
}

// NotificationPreference holds a user's alert delivery settings
type NotificationPreference struct {
	UserID          int64   `json:"user_id"`
	SlackEnabled    bool    `json:"slack_enabled"`
	SlackWebhookURL *string `json:"slack_webhook_url,omitempty"`
}
