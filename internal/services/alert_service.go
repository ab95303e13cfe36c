package services

import (
	"context"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/tlemoine/peatrack/internal/models"
)

// alertStore is the alert persistence surface
type alertStore interface {
	ArmedByTicker(ctx context.Context, tickerID int64) ([]models.Alert, error)
	Trigger(ctx context.Context, id int64, at time.Time) (bool, error)
}

// priorCloseReader provides the reference close for crossing detection
type priorCloseReader interface {
	CloseBefore(ctx context.Context, tickerID int64, date time.Time) (*models.PricePoint, error)
}

// preferenceReader loads per-user delivery settings
type preferenceReader interface {
	GetByUser(ctx context.Context, userID int64) (*models.NotificationPreference, error)
}

// alertNotifier delivers one triggered alert to an external channel
type alertNotifier interface {
	Send(ctx context.Context, webhookURL string, alert models.TriggeredAlert) error
}

// AlertService evaluates armed alerts against new closes. An alert fires
// only on a crossing: the new close reaches the threshold while the prior
// close did not (an alert created with the price already past its threshold
// fires on the first close). The ARMED state guard in the store makes each
// firing exactly-once.
type AlertService struct {
	store    alertStore
	prices   priorCloseReader
	tickers  tickerGetter
	prefs    preferenceReader
	notifier alertNotifier
}

// NewAlertService creates a new AlertService
func NewAlertService(store alertStore, prices priorCloseReader, tickers tickerGetter, prefs preferenceReader, notifier alertNotifier) *AlertService {
	return &AlertService{
		store:    store,
		prices:   prices,
		tickers:  tickers,
		prefs:    prefs,
		notifier: notifier,
	}
}

// Evaluate checks all armed alerts on a ticker against its newest close
// and returns the alerts that fired. Notification delivery is best-effort:
// a failed send never rolls back the trigger.
func (s *AlertService) Evaluate(ctx context.Context, tickerID int64, latest models.PricePoint) ([]models.TriggeredAlert, error) {
	alerts, err := s.store.ArmedByTicker(ctx, tickerID)
	if err != nil {
		return nil, fmt.Errorf("failed to load armed alerts: %w", err)
	}
	if len(alerts) == 0 {
		return nil, nil
	}

	prior, err := s.prices.CloseBefore(ctx, tickerID, latest.Date)
	if err != nil {
		return nil, fmt.Errorf("failed to load prior close: %w", err)
	}

	ticker, err := s.tickers.GetByID(ctx, tickerID)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve ticker %d: %w", tickerID, err)
	}

	var fired []models.TriggeredAlert
	for _, alert := range alerts {
		if !crossed(alert, latest.Close, prior) {
			continue
		}
		ok, err := s.store.Trigger(ctx, alert.ID, time.Now().UTC())
		if err != nil {
			log.Errorf("Failed to trigger alert %d: %v", alert.ID, err)
			continue
		}
		if !ok {
			// Another evaluator got there first
			continue
		}

		triggered := models.TriggeredAlert{
			AlertID:      alert.ID,
			UserID:       alert.UserID,
			TickerID:     tickerID,
			Symbol:       ticker.Symbol,
			Direction:    alert.Direction,
			Threshold:    alert.Threshold,
			CurrentPrice: latest.Close,
		}
		fired = append(fired, triggered)
		s.deliver(ctx, triggered)
	}
	return fired, nil
}

func crossed(alert models.Alert, close float64, prior *models.PricePoint) bool {
	switch alert.Direction {
	case models.AlertAbove:
		return close >= alert.Threshold && (prior == nil || prior.Close < alert.Threshold)
	case models.AlertBelow:
		return close <= alert.Threshold && (prior == nil || prior.Close > alert.Threshold)
	}
	return false
}

func (s *AlertService) deliver(ctx context.Context, alert models.TriggeredAlert) {
	prefs, err := s.prefs.GetByUser(ctx, alert.UserID)
	if err != nil {
		log.Warnf("Failed to load notification preferences for user %d: %v", alert.UserID, err)
		return
	}
	if !prefs.SlackEnabled || prefs.SlackWebhookURL == nil {
		return
	}
	if err := s.notifier.Send(ctx, *prefs.SlackWebhookURL, alert); err != nil {
		log.Warnf("Failed to deliver alert %d to user %d: %v", alert.AlertID, alert.UserID, err)
	}
}
