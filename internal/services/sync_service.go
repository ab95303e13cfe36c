package services

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/tlemoine/peatrack/internal/cache"
	"github.com/tlemoine/peatrack/internal/marketcal"
	"github.com/tlemoine/peatrack/internal/models"
)

// lookbackDays is how far back the daily fetch reaches, enough to heal a
// week of missed syncs without a backfill.
const lookbackDays = 7

// activeTickerLister finds the instruments worth refreshing
type activeTickerLister interface {
	ActiveForSync(ctx context.Context) ([]models.Ticker, error)
	TouchLastUpdated(ctx context.Context, id int64, at time.Time) error
}

// syncPriceStore persists fetched rows and reports what was already stored
type syncPriceStore interface {
	priceWriter
	LatestPrice(ctx context.Context, tickerID int64) (*models.PricePoint, error)
}

// queueProcessor drains the backfill queue
type queueProcessor interface {
	ProcessQueue(ctx context.Context) (completed, failed int, err error)
}

// alertEvaluator checks armed alerts against a new close
type alertEvaluator interface {
	Evaluate(ctx context.Context, tickerID int64, latest models.PricePoint) ([]models.TriggeredAlert, error)
}

// snapshotUpdater extends users' valuation series
type snapshotUpdater interface {
	EnsureUpToDate(ctx context.Context, userID int64, today time.Time) (int, error)
}

// userLister finds the users who need snapshots
type userLister interface {
	UserIDsWithTransactions(ctx context.Context) ([]int64, error)
}

// SyncService runs the end-of-day pipeline: drain backfills, refresh
// prices for active instruments, evaluate alerts, extend snapshots.
// One instrument failing never aborts the run; failures are collected
// into the report.
type SyncService struct {
	calendar  marketcal.Calendar
	tickers   activeTickerLister
	provider  marketDataProvider
	prices    syncPriceStore
	backfill  queueProcessor
	alerts    alertEvaluator
	snapshots snapshotUpdater
	users     userLister
	cache     *cache.MemoryCache
}

// NewSyncService creates a new SyncService
func NewSyncService(
	calendar marketcal.Calendar,
	tickers activeTickerLister,
	provider marketDataProvider,
	prices syncPriceStore,
	backfill queueProcessor,
	alerts alertEvaluator,
	snapshots snapshotUpdater,
	users userLister,
	memCache *cache.MemoryCache,
) *SyncService {
	return &SyncService{
		calendar:  calendar,
		tickers:   tickers,
		provider:  provider,
		prices:    prices,
		backfill:  backfill,
		alerts:    alerts,
		snapshots: snapshots,
		users:     users,
		cache:     memCache,
	}
}

// RunDailySync executes one sync pass for the given wall-clock time.
// Non-trading days produce an immediate no-op report.
func (s *SyncService) RunDailySync(ctx context.Context, now time.Time) (*models.SyncReport, error) {
	report := &models.SyncReport{}

	if !s.calendar.IsTradingDay(now) {
		log.Info("Sync skipped: not a trading day")
		return report, nil
	}
	report.TradingDay = true

	completed, failed, err := s.backfill.ProcessQueue(ctx)
	if err != nil {
		log.Errorf("Backfill queue processing failed: %v", err)
	}
	report.BackfillsCompleted = completed
	report.BackfillsFailed = failed

	tickers, err := s.tickers.ActiveForSync(ctx)
	if err != nil {
		return report, err
	}
	log.Infof("Syncing %d active instruments", len(tickers))

	for _, ticker := range tickers {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		triggered, err := s.syncInstrument(ctx, ticker, now)
		if err != nil {
			log.Warnf("Sync failed for %s: %v", ticker.Symbol, err)
			report.Errors = append(report.Errors, models.InstrumentError{
				Symbol: ticker.Symbol,
				Error:  err.Error(),
			})
			continue
		}
		report.InstrumentsUpdated++
		report.AlertsTriggered += triggered
	}

	userIDs, err := s.users.UserIDsWithTransactions(ctx)
	if err != nil {
		log.Errorf("Failed to list users for snapshots: %v", err)
		return report, nil
	}
	for _, userID := range userIDs {
		if _, err := s.snapshots.EnsureUpToDate(ctx, userID, now); err != nil {
			log.Warnf("Snapshot update failed for user %d: %v", userID, err)
			continue
		}
		report.SnapshotUsers++
	}

	log.Infof("Sync complete: %d instruments, %d backfills done, %d failed, %d alerts, %d users snapshotted",
		report.InstrumentsUpdated, report.BackfillsCompleted, report.BackfillsFailed,
		report.AlertsTriggered, report.SnapshotUsers)
	return report, nil
}

// syncInstrument refreshes one ticker's recent history and evaluates its
// alerts against every close not yet stored, oldest first, so a multi-day
// heal still catches crossings on intermediate days. Returns how many
// alerts fired.
func (s *SyncService) syncInstrument(ctx context.Context, ticker models.Ticker, now time.Time) (int, error) {
	prev, err := s.prices.LatestPrice(ctx, ticker.ID)
	if err != nil {
		return 0, err
	}

	rows, err := s.provider.FetchRange(ctx, ticker.Symbol, now.AddDate(0, 0, -lookbackDays), now)
	if err != nil {
		return 0, err
	}
	if len(rows) == 0 {
		return 0, nil
	}

	points, dividends := splitProviderRows(ticker.ID, rows)
	if err := s.prices.UpsertPrices(ctx, points); err != nil {
		return 0, err
	}
	if err := s.prices.UpsertDividends(ctx, dividends); err != nil {
		return 0, err
	}

	latest := points[len(points)-1]
	s.cache.SetLatest(latest)

	if err := s.tickers.TouchLastUpdated(ctx, ticker.ID, now); err != nil {
		log.Warnf("Failed to stamp last_updated for %s: %v", ticker.Symbol, err)
	}

	triggered := 0
	for _, point := range points {
		if prev != nil && !point.Date.After(prev.Date) {
			continue
		}
		fired, err := s.alerts.Evaluate(ctx, ticker.ID, point)
		if err != nil {
			// Prices landed; an alert failure should not fail the instrument
			log.Warnf("Alert evaluation failed for %s on %s: %v",
				ticker.Symbol, point.Date.Format("2006-01-02"), err)
			continue
		}
		triggered += len(fired)
	}
	return triggered, nil
}
