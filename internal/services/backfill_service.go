package services

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/tlemoine/peatrack/internal/alphavantage"
	"github.com/tlemoine/peatrack/internal/models"
)

// backfillStore is the queue persistence surface
type backfillStore interface {
	Create(ctx context.Context, tickerID int64, start, end time.Time) (*models.BackfillRequest, error)
	OpenForTicker(ctx context.Context, tickerID int64, maxAttempts int) ([]models.BackfillRequest, error)
	Merge(ctx context.Context, tickerID int64, start, end time.Time, attempts int, dropIDs []int64) (*models.BackfillRequest, error)
	Due(ctx context.Context, now time.Time, maxAttempts int) ([]models.BackfillRequest, error)
	MarkInProgress(ctx context.Context, id int64) (bool, error)
	MarkDone(ctx context.Context, id int64) error
	MarkFailed(ctx context.Context, id int64, attempts int, lastError string, nextAttemptAt time.Time) error
	RevertPending(ctx context.Context, id int64) error
}

// marketDataProvider fetches daily history for a symbol
type marketDataProvider interface {
	FetchRange(ctx context.Context, symbol string, start, end time.Time) ([]alphavantage.ParsedPriceData, error)
}

// priceWriter persists fetched prices and dividends
type priceWriter interface {
	UpsertPrices(ctx context.Context, prices []models.PricePoint) error
	UpsertDividends(ctx context.Context, dividends []models.DividendRecord) error
}

// tickerGetter resolves ticker IDs to symbols
type tickerGetter interface {
	GetByID(ctx context.Context, id int64) (*models.Ticker, error)
}

// BackfillService manages the historical-data queue. Enqueue merges
// overlapping or adjacent ranges per ticker; ProcessQueue drains due
// requests with a bounded worker pool, one ticker at a time per worker.
type BackfillService struct {
	store    backfillStore
	prices   priceWriter
	tickers  tickerGetter
	provider marketDataProvider

	workers     int
	maxAttempts int
	backoff     time.Duration
}

// NewBackfillService creates a new BackfillService
func NewBackfillService(store backfillStore, prices priceWriter, tickers tickerGetter, provider marketDataProvider, workers, maxAttempts int, backoff time.Duration) *BackfillService {
	return &BackfillService{
		store:       store,
		prices:      prices,
		tickers:     tickers,
		provider:    provider,
		workers:     workers,
		maxAttempts: maxAttempts,
		backoff:     backoff,
	}
}

// Enqueue requests history for [start, end]. When the range overlaps or is
// adjacent to an existing open request for the same ticker, the requests
// collapse into one PENDING request covering the union, carrying forward
// the highest attempt count among the merged rows.
func (s *BackfillService) Enqueue(ctx context.Context, tickerID int64, start, end time.Time) (*models.BackfillRequest, error) {
	start = dateOnly(start)
	end = dateOnly(end)

	open, err := s.store.OpenForTicker(ctx, tickerID, s.maxAttempts)
	if err != nil {
		return nil, err
	}

	var dropIDs []int64
	attempts := 0
	for _, req := range open {
		if !rangesTouch(start, end, req.StartDate, req.EndDate) {
			continue
		}
		if req.StartDate.Before(start) {
			start = req.StartDate
		}
		if req.EndDate.After(end) {
			end = req.EndDate
		}
		if req.Attempts > attempts {
			attempts = req.Attempts
		}
		dropIDs = append(dropIDs, req.ID)
	}

	if len(dropIDs) == 0 {
		return s.store.Create(ctx, tickerID, start, end)
	}
	return s.store.Merge(ctx, tickerID, start, end, attempts, dropIDs)
}

// ProcessQueue drains all currently due requests. Requests for the same
// ticker run serially inside one goroutine; distinct tickers run in
// parallel up to the worker limit. Returns how many requests completed
// and how many failed this pass.
func (s *BackfillService) ProcessQueue(ctx context.Context) (completed, failed int, err error) {
	due, err := s.store.Due(ctx, time.Now().UTC(), s.maxAttempts)
	if err != nil {
		return 0, 0, err
	}
	if len(due) == 0 {
		return 0, 0, nil
	}

	byTicker := make(map[int64][]models.BackfillRequest)
	for _, req := range due {
		byTicker[req.TickerID] = append(byTicker[req.TickerID], req)
	}

	var done, fail atomic.Int64
	sem := semaphore.NewWeighted(int64(s.workers))
	g, gctx := errgroup.WithContext(ctx)

	for tickerID, reqs := range byTicker {
		tickerID, reqs := tickerID, reqs
		g.Go(func() error {
			if err := sem.Acquire(gctx, 1); err != nil {
				for _, req := range reqs {
					s.revert(req.ID)
				}
				return nil
			}
			defer sem.Release(1)

			for _, req := range reqs {
				switch s.processOne(gctx, tickerID, req) {
				case backfillDone:
					done.Add(1)
				case backfillFailed:
					fail.Add(1)
				}
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return int(done.Load()), int(fail.Load()), err
	}
	return int(done.Load()), int(fail.Load()), nil
}

type backfillOutcome int

const (
	backfillSkipped backfillOutcome = iota
	backfillDone
	backfillFailed
)

func (s *BackfillService) processOne(ctx context.Context, tickerID int64, req models.BackfillRequest) backfillOutcome {
	claimed, err := s.store.MarkInProgress(ctx, req.ID)
	if err != nil {
		log.Warnf("Failed to claim backfill %d: %v", req.ID, err)
		return backfillSkipped
	}
	if !claimed {
		return backfillSkipped
	}

	ticker, err := s.tickers.GetByID(ctx, tickerID)
	if err != nil {
		s.recordFailure(req, err)
		return backfillFailed
	}

	prices, err := s.provider.FetchRange(ctx, ticker.Symbol, req.StartDate, req.EndDate)
	if err != nil {
		// Interrupted fetches go back to PENDING without spending an attempt
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			s.revert(req.ID)
			return backfillSkipped
		}
		s.recordFailure(req, err)
		return backfillFailed
	}

	points, dividends := splitProviderRows(tickerID, prices)
	if err := s.prices.UpsertPrices(ctx, points); err != nil {
		s.recordFailure(req, err)
		return backfillFailed
	}
	if err := s.prices.UpsertDividends(ctx, dividends); err != nil {
		s.recordFailure(req, err)
		return backfillFailed
	}

	if err := s.store.MarkDone(ctx, req.ID); err != nil {
		log.Warnf("Failed to finalize backfill %d: %v", req.ID, err)
	}
	log.Infof("Backfilled %s: %d prices, %d dividends (%s to %s)",
		ticker.Symbol, len(points), len(dividends),
		req.StartDate.Format("2006-01-02"), req.EndDate.Format("2006-01-02"))
	return backfillDone
}

// recordFailure writes the failure with its retry schedule. Permanent
// errors (unknown symbol) exhaust the attempt budget immediately;
// transient ones back off exponentially.
func (s *BackfillService) recordFailure(req models.BackfillRequest, cause error) {
	// The request row must be updated even when the triggering context is gone
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	attempts := req.Attempts + 1
	next := time.Now().UTC().Add(s.backoff << (attempts - 1))
	if alphavantage.IsPermanent(cause) {
		attempts = s.maxAttempts
		next = time.Now().UTC()
	}

	if err := s.store.MarkFailed(ctx, req.ID, attempts, cause.Error(), next); err != nil {
		log.Errorf("Failed to record backfill failure %d: %v", req.ID, err)
		return
	}
	log.Warnf("Backfill %d failed (attempt %d/%d): %v", req.ID, attempts, s.maxAttempts, cause)
}

func (s *BackfillService) revert(id int64) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.store.RevertPending(ctx, id); err != nil {
		log.Errorf("Failed to revert backfill %d to pending: %v", id, err)
	}
}

// rangesTouch reports whether two inclusive date ranges overlap or sit
// within one calendar day of each other.
func rangesTouch(aStart, aEnd, bStart, bEnd time.Time) bool {
	return !aStart.After(bEnd.AddDate(0, 0, 1)) && !bStart.After(aEnd.AddDate(0, 0, 1))
}

// splitProviderRows converts provider rows into price points plus the
// dividend records embedded in them.
func splitProviderRows(tickerID int64, rows []alphavantage.ParsedPriceData) ([]models.PricePoint, []models.DividendRecord) {
	points := make([]models.PricePoint, 0, len(rows))
	var dividends []models.DividendRecord
	for _, row := range rows {
		points = append(points, models.PricePoint{
			TickerID: tickerID,
			Date:     row.Date,
			Open:     row.Open,
			High:     row.High,
			Low:      row.Low,
			Close:    row.Close,
			Volume:   row.Volume,
		})
		if row.Dividend > 0 {
			dividends = append(dividends, models.DividendRecord{
				TickerID:       tickerID,
				Date:           row.Date,
				AmountPerShare: row.Dividend,
			})
		}
	}
	return points, dividends
}

func dateOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
