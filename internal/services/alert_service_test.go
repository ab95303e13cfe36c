package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tlemoine/peatrack/internal/models"
)

type fakeAlertStore struct {
	mu     sync.Mutex
	alerts map[int64]*models.Alert
}

func newFakeAlertStore(alerts ...*models.Alert) *fakeAlertStore {
	s := &fakeAlertStore{alerts: make(map[int64]*models.Alert)}
	for _, a := range alerts {
		s.alerts[a.ID] = a
	}
	return s
}

func (f *fakeAlertStore) ArmedByTicker(ctx context.Context, tickerID int64) ([]models.Alert, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var armed []models.Alert
	for _, a := range f.alerts {
		if a.TickerID == tickerID && a.State == models.AlertArmed {
			armed = append(armed, *a)
		}
	}
	return armed, nil
}

func (f *fakeAlertStore) Trigger(ctx context.Context, id int64, at time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.alerts[id]
	if !ok || a.State != models.AlertArmed {
		return false, nil
	}
	a.State = models.AlertTriggered
	a.TriggeredAt = &at
	return true, nil
}

// fakeCloseHistory serves CloseBefore from an ascending list of closes
type fakeCloseHistory struct {
	closes []models.PricePoint
}

func (f *fakeCloseHistory) CloseBefore(ctx context.Context, tickerID int64, date time.Time) (*models.PricePoint, error) {
	var prior *models.PricePoint
	for i := range f.closes {
		if f.closes[i].Date.Before(date) {
			prior = &f.closes[i]
		}
	}
	return prior, nil
}

type fakePrefs struct {
	prefs map[int64]*models.NotificationPreference
}

func (f *fakePrefs) GetByUser(ctx context.Context, userID int64) (*models.NotificationPreference, error) {
	if p, ok := f.prefs[userID]; ok {
		return p, nil
	}
	return &models.NotificationPreference{UserID: userID}, nil
}

type fakeNotifier struct {
	mu    sync.Mutex
	sends []models.TriggeredAlert
	err   error
}

func (f *fakeNotifier) Send(ctx context.Context, webhookURL string, alert models.TriggeredAlert) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sends = append(f.sends, alert)
	return f.err
}

func newAlertService(store *fakeAlertStore, history *fakeCloseHistory, prefs *fakePrefs, notifier *fakeNotifier) *AlertService {
	tickers := &fakeTickers{tickers: map[int64]*models.Ticker{
		1: {ID: 1, Symbol: "TTE.PA"},
	}}
	if prefs == nil {
		prefs = &fakePrefs{}
	}
	if notifier == nil {
		notifier = &fakeNotifier{}
	}
	return NewAlertService(store, history, tickers, prefs, notifier)
}

func point(day int, close float64) models.PricePoint {
	return models.PricePoint{TickerID: 1, Date: jan(day), Close: close}
}

func TestAlertFiresOnceAcrossCloseSequence(t *testing.T) {
	store := newFakeAlertStore(&models.Alert{
		ID: 10, UserID: 7, TickerID: 1,
		Direction: models.AlertAbove, Threshold: 100, State: models.AlertArmed,
	})

	closes := []float64{98, 101, 102, 99, 103}
	history := &fakeCloseHistory{}
	svc := newAlertService(store, history, nil, nil)

	var fired []models.TriggeredAlert
	for i, close := range closes {
		latest := point(i+1, close)
		triggered, err := svc.Evaluate(context.Background(), 1, latest)
		require.NoError(t, err)
		fired = append(fired, triggered...)
		history.closes = append(history.closes, latest)
	}

	require.Len(t, fired, 1, "threshold crossed repeatedly but the alert fires once")
	assert.Equal(t, int64(10), fired[0].AlertID)
	assert.Equal(t, 101.0, fired[0].CurrentPrice)
}

func TestAlertFiresOnFirstCloseWithoutPrior(t *testing.T) {
	store := newFakeAlertStore(&models.Alert{
		ID: 11, UserID: 7, TickerID: 1,
		Direction: models.AlertAbove, Threshold: 100, State: models.AlertArmed,
	})
	svc := newAlertService(store, &fakeCloseHistory{}, nil, nil)

	fired, err := svc.Evaluate(context.Background(), 1, point(1, 105))
	require.NoError(t, err)
	require.Len(t, fired, 1, "an alert created past its threshold fires on the first close")
}

func TestAlertDoesNotFireWithoutCrossing(t *testing.T) {
	store := newFakeAlertStore(&models.Alert{
		ID: 12, UserID: 7, TickerID: 1,
		Direction: models.AlertAbove, Threshold: 100, State: models.AlertArmed,
	})
	history := &fakeCloseHistory{closes: []models.PricePoint{point(1, 104)}}
	svc := newAlertService(store, history, nil, nil)

	// Prior close already above threshold: no crossing
	fired, err := svc.Evaluate(context.Background(), 1, point(2, 106))
	require.NoError(t, err)
	assert.Empty(t, fired)
}

func TestBelowAlertCrossing(t *testing.T) {
	store := newFakeAlertStore(&models.Alert{
		ID: 13, UserID: 7, TickerID: 1,
		Direction: models.AlertBelow, Threshold: 50, State: models.AlertArmed,
	})
	history := &fakeCloseHistory{closes: []models.PricePoint{point(1, 52)}}
	svc := newAlertService(store, history, nil, nil)

	fired, err := svc.Evaluate(context.Background(), 1, point(2, 49.5))
	require.NoError(t, err)
	require.Len(t, fired, 1)
	assert.Equal(t, models.AlertBelow, fired[0].Direction)
}

func TestExactThresholdTouchFires(t *testing.T) {
	store := newFakeAlertStore(&models.Alert{
		ID: 14, UserID: 7, TickerID: 1,
		Direction: models.AlertAbove, Threshold: 100, State: models.AlertArmed,
	})
	history := &fakeCloseHistory{closes: []models.PricePoint{point(1, 99)}}
	svc := newAlertService(store, history, nil, nil)

	fired, err := svc.Evaluate(context.Background(), 1, point(2, 100))
	require.NoError(t, err)
	require.Len(t, fired, 1, "reaching the threshold exactly counts as a crossing")
}

func TestNotificationDelivery(t *testing.T) {
	webhook := "https://hooks.slack.com/services/T000/B000/XXX"
	store := newFakeAlertStore(&models.Alert{
		ID: 15, UserID: 7, TickerID: 1,
		Direction: models.AlertAbove, Threshold: 100, State: models.AlertArmed,
	})
	prefs := &fakePrefs{prefs: map[int64]*models.NotificationPreference{
		7: {UserID: 7, SlackEnabled: true, SlackWebhookURL: &webhook},
	}}
	notifier := &fakeNotifier{}
	svc := newAlertService(store, &fakeCloseHistory{}, prefs, notifier)

	fired, err := svc.Evaluate(context.Background(), 1, point(1, 101))
	require.NoError(t, err)
	require.Len(t, fired, 1)
	require.Len(t, notifier.sends, 1)
	assert.Equal(t, "TTE.PA", notifier.sends[0].Symbol)
}

func TestNotificationFailureDoesNotRollBackTrigger(t *testing.T) {
	webhook := "https://hooks.slack.com/services/T000/B000/XXX"
	store := newFakeAlertStore(&models.Alert{
		ID: 16, UserID: 7, TickerID: 1,
		Direction: models.AlertAbove, Threshold: 100, State: models.AlertArmed,
	})
	prefs := &fakePrefs{prefs: map[int64]*models.NotificationPreference{
		7: {UserID: 7, SlackEnabled: true, SlackWebhookURL: &webhook},
	}}
	notifier := &fakeNotifier{err: errors.New("slack down")}
	svc := newAlertService(store, &fakeCloseHistory{}, prefs, notifier)

	fired, err := svc.Evaluate(context.Background(), 1, point(1, 101))
	require.NoError(t, err)
	require.Len(t, fired, 1)
	assert.Equal(t, models.AlertTriggered, store.alerts[16].State)
}
