package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tlemoine/peatrack/internal/alphavantage"
	"github.com/tlemoine/peatrack/internal/cache"
	"github.com/tlemoine/peatrack/internal/models"
)

type fixedCalendar bool

func (f fixedCalendar) IsTradingDay(t time.Time) bool { return bool(f) }

type fakeActiveTickers struct {
	tickers []models.Ticker
	touched []int64
}

func (f *fakeActiveTickers) ActiveForSync(ctx context.Context) ([]models.Ticker, error) {
	return f.tickers, nil
}

func (f *fakeActiveTickers) TouchLastUpdated(ctx context.Context, id int64, at time.Time) error {
	f.touched = append(f.touched, id)
	return nil
}

type fakeQueueProcessor struct {
	completed, failed int
	called            bool
}

func (f *fakeQueueProcessor) ProcessQueue(ctx context.Context) (int, int, error) {
	f.called = true
	return f.completed, f.failed, nil
}

type fakeAlertEvaluator struct {
	fired     map[int64]int
	evaluated map[int64][]time.Time
	calls     int
}

func (f *fakeAlertEvaluator) Evaluate(ctx context.Context, tickerID int64, latest models.PricePoint) ([]models.TriggeredAlert, error) {
	f.calls++
	if f.evaluated == nil {
		f.evaluated = map[int64][]time.Time{}
	}
	f.evaluated[tickerID] = append(f.evaluated[tickerID], latest.Date)
	n := f.fired[tickerID]
	out := make([]models.TriggeredAlert, n)
	return out, nil
}

type fakeSnapshotUpdater struct {
	users []int64
}

func (f *fakeSnapshotUpdater) EnsureUpToDate(ctx context.Context, userID int64, today time.Time) (int, error) {
	f.users = append(f.users, userID)
	return 1, nil
}

type fakeUserLister struct {
	ids []int64
}

func (f *fakeUserLister) UserIDsWithTransactions(ctx context.Context) ([]int64, error) {
	return f.ids, nil
}

// errorForSymbolProvider fails for one symbol and succeeds for the rest
type errorForSymbolProvider struct {
	failSymbol string
	rows       []alphavantage.ParsedPriceData
}

func (p *errorForSymbolProvider) FetchRange(ctx context.Context, symbol string, start, end time.Time) ([]alphavantage.ParsedPriceData, error) {
	if symbol == p.failSymbol {
		return nil, alphavantage.ErrRateLimited
	}
	return p.rows, nil
}

func TestSyncSkipsNonTradingDay(t *testing.T) {
	queue := &fakeQueueProcessor{}
	svc := NewSyncService(
		fixedCalendar(false), &fakeActiveTickers{}, &fakeProvider{}, &fakePriceWriter{},
		queue, &fakeAlertEvaluator{}, &fakeSnapshotUpdater{}, &fakeUserLister{},
		cache.NewMemoryCache(time.Minute),
	)

	report, err := svc.RunDailySync(context.Background(), time.Date(2024, 7, 27, 18, 0, 0, 0, time.UTC))
	require.NoError(t, err)

	assert.False(t, report.TradingDay)
	assert.False(t, queue.called, "no work happens on a non-trading day")
	assert.Zero(t, report.InstrumentsUpdated)
}

func TestSyncReportAggregates(t *testing.T) {
	tickers := &fakeActiveTickers{tickers: []models.Ticker{
		{ID: 1, Symbol: "TTE.PA"},
		{ID: 2, Symbol: "AIR.PA"},
		{ID: 3, Symbol: "BAD.PA"},
	}}
	provider := &errorForSymbolProvider{
		failSymbol: "BAD.PA",
		rows: []alphavantage.ParsedPriceData{
			{Date: jan(2), Close: 61.0},
			{Date: jan(3), Close: 61.5},
		},
	}
	queue := &fakeQueueProcessor{completed: 2, failed: 1}
	alerts := &fakeAlertEvaluator{fired: map[int64]int{1: 1}}
	snapshots := &fakeSnapshotUpdater{}
	users := &fakeUserLister{ids: []int64{7, 8}}
	memCache := cache.NewMemoryCache(time.Minute)
	writer := &fakePriceWriter{prices: []models.PricePoint{
		{TickerID: 1, Date: jan(2), Close: 61.0},
		{TickerID: 2, Date: jan(2), Close: 61.0},
	}}

	svc := NewSyncService(
		fixedCalendar(true), tickers, provider, writer,
		queue, alerts, snapshots, users, memCache,
	)

	report, err := svc.RunDailySync(context.Background(), jan(3))
	require.NoError(t, err)

	assert.True(t, report.TradingDay)
	assert.Equal(t, 2, report.InstrumentsUpdated)
	assert.Equal(t, 2, report.BackfillsCompleted)
	assert.Equal(t, 1, report.BackfillsFailed)
	assert.Equal(t, 1, report.AlertsTriggered)
	assert.Equal(t, 2, report.SnapshotUsers)

	require.Len(t, report.Errors, 1, "one failing instrument does not abort the run")
	assert.Equal(t, "BAD.PA", report.Errors[0].Symbol)

	// The newest close lands in the cache for valuation reads
	latest, ok := memCache.GetLatest(1)
	require.True(t, ok)
	assert.Equal(t, 61.5, latest.Close)

	assert.ElementsMatch(t, []int64{7, 8}, snapshots.users)
	assert.ElementsMatch(t, []int64{1, 2}, tickers.touched)
}

func TestSyncEvaluatesAlertsForEachNewClose(t *testing.T) {
	tickers := &fakeActiveTickers{tickers: []models.Ticker{{ID: 1, Symbol: "TTE.PA"}}}
	provider := &errorForSymbolProvider{
		rows: []alphavantage.ParsedPriceData{
			{Date: jan(1), Close: 98},
			{Date: jan(2), Close: 101},
			{Date: jan(3), Close: 99},
		},
	}
	alerts := &fakeAlertEvaluator{}
	writer := &fakePriceWriter{prices: []models.PricePoint{
		{TickerID: 1, Date: jan(1), Close: 98},
	}}

	svc := NewSyncService(
		fixedCalendar(true), tickers, provider, writer,
		&fakeQueueProcessor{}, alerts, &fakeSnapshotUpdater{}, &fakeUserLister{},
		cache.NewMemoryCache(time.Minute),
	)

	_, err := svc.RunDailySync(context.Background(), jan(3))
	require.NoError(t, err)

	// Jan 1 was already stored; the two healed days each get a pass, in
	// order, so a crossing on the intermediate day is not skipped
	assert.Equal(t, []time.Time{jan(2), jan(3)}, alerts.evaluated[1])
}

func TestSyncStopsOnCancelledContext(t *testing.T) {
	tickers := &fakeActiveTickers{tickers: []models.Ticker{{ID: 1, Symbol: "TTE.PA"}}}
	svc := NewSyncService(
		fixedCalendar(true), tickers, &fakeProvider{}, &fakePriceWriter{},
		&fakeQueueProcessor{}, &fakeAlertEvaluator{}, &fakeSnapshotUpdater{}, &fakeUserLister{},
		cache.NewMemoryCache(time.Minute),
	)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := svc.RunDailySync(ctx, jan(3))
	assert.True(t, errors.Is(err, context.Canceled))
}
