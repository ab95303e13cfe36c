package services

import (
	"context"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/shopspring/decimal"
	"github.com/tlemoine/peatrack/internal/ledger"
	"github.com/tlemoine/peatrack/internal/models"
)

// snapshotStore is the snapshot persistence surface
type snapshotStore interface {
	Upsert(ctx context.Context, snapshots []models.Snapshot) error
	LatestDate(ctx context.Context, userID int64) (*time.Time, error)
	Series(ctx context.Context, userID int64, from, to time.Time) ([]models.Snapshot, error)
}

// snapshotLedger reads the transaction history snapshots replay
type snapshotLedger interface {
	TransactionsByUser(ctx context.Context, userID int64) ([]models.Transaction, error)
}

// rangePriceReader reads stored closes for LOCF pricing
type rangePriceReader interface {
	PricesInRange(ctx context.Context, tickerID int64, start, end time.Time) ([]models.PricePoint, error)
}

// locfLookbackDays is how far before the snapshot window closes are loaded
// so the first days of the window still find a carried-forward price.
const locfLookbackDays = 35

// SnapshotService maintains the daily portfolio valuation series. Weekends
// and holidays carry the last observed close forward; days where a held
// instrument has no stored price at all contribute nothing and are logged
// as gaps.
type SnapshotService struct {
	store  snapshotStore
	ledger snapshotLedger
	prices rangePriceReader
}

// NewSnapshotService creates a new SnapshotService
func NewSnapshotService(store snapshotStore, ledgerRepo snapshotLedger, prices rangePriceReader) *SnapshotService {
	return &SnapshotService{
		store:  store,
		ledger: ledgerRepo,
		prices: prices,
	}
}

// EnsureUpToDate extends a user's snapshot series through today, computing
// only the missing days. Returns how many days were written.
func (s *SnapshotService) EnsureUpToDate(ctx context.Context, userID int64, today time.Time) (int, error) {
	today = dateOnly(today)

	latest, err := s.store.LatestDate(ctx, userID)
	if err != nil {
		return 0, err
	}

	var from time.Time
	if latest != nil {
		from = latest.AddDate(0, 0, 1)
	}
	// A nil latest leaves from zero; ComputeRange clamps to the first trade

	if latest != nil && from.After(today) {
		return 0, nil
	}

	snaps, err := s.ComputeRange(ctx, userID, from, today)
	if err != nil {
		return 0, err
	}
	if len(snaps) == 0 {
		return 0, nil
	}
	if err := s.store.Upsert(ctx, snaps); err != nil {
		return 0, err
	}
	return len(snaps), nil
}

// ComputeRange replays a user's full transaction history and values the
// portfolio for every day in [from, to]. Days before the first transaction
// are skipped.
func (s *SnapshotService) ComputeRange(ctx context.Context, userID int64, from, to time.Time) ([]models.Snapshot, error) {
	txs, err := s.ledger.TransactionsByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load transactions: %w", err)
	}
	if len(txs) == 0 {
		return nil, nil
	}
	ledger.SortTransactions(txs)

	from = dateOnly(from)
	to = dateOnly(to)
	if first := dateOnly(txs[0].TradeDate); from.Before(first) {
		from = first
	}
	if from.After(to) {
		return nil, nil
	}

	tickerIDs := make(map[int64]bool)
	for _, tx := range txs {
		tickerIDs[tx.TickerID] = true
	}

	closes := make(map[int64]*locfSeries, len(tickerIDs))
	for tickerID := range tickerIDs {
		prices, err := s.prices.PricesInRange(ctx, tickerID, from.AddDate(0, 0, -locfLookbackDays), to)
		if err != nil {
			return nil, fmt.Errorf("failed to load prices for ticker %d: %w", tickerID, err)
		}
		closes[tickerID] = &locfSeries{prices: prices}
	}

	qty := make(map[int64]decimal.Decimal)
	invested := decimal.Zero
	txIdx := 0

	var snaps []models.Snapshot
	gapTickers := make(map[int64]bool)

	for day := from; !day.After(to); day = day.AddDate(0, 0, 1) {
		for txIdx < len(txs) && !dateOnly(txs[txIdx].TradeDate).After(day) {
			tx := txs[txIdx]
			switch tx.Side {
			case models.SideBuy:
				qty[tx.TickerID] = qty[tx.TickerID].Add(tx.Quantity)
				invested = invested.Add(tx.Quantity.Mul(tx.Price)).Add(tx.Fee)
			case models.SideSell:
				qty[tx.TickerID] = qty[tx.TickerID].Sub(tx.Quantity)
				invested = invested.Sub(tx.Quantity.Mul(tx.Price)).Add(tx.Fee)
			}
			txIdx++
		}

		value := 0.0
		for tickerID, held := range qty {
			if !held.IsPositive() {
				continue
			}
			price, ok := closes[tickerID].closeOn(day)
			if !ok {
				if !gapTickers[tickerID] {
					log.Warnf("No price history for ticker %d on %s; valuing at zero until data arrives",
						tickerID, day.Format("2006-01-02"))
					gapTickers[tickerID] = true
				}
				continue
			}
			heldF, _ := held.Float64()
			value += heldF * price
		}

		investedF, _ := invested.Float64()
		snap := models.Snapshot{
			UserID:        userID,
			Date:          day,
			TotalValue:    value,
			TotalInvested: investedF,
			TotalPnL:      value - investedF,
		}
		if investedF > 0 {
			snap.TotalPnLPct = snap.TotalPnL / investedF * 100
		}
		snaps = append(snaps, snap)
	}

	return snaps, nil
}

// History returns the stored series for a charting period: "1m", "3m",
// "1y", or "all".
func (s *SnapshotService) History(ctx context.Context, userID int64, period string) (*models.SnapshotSeriesResponse, error) {
	to := dateOnly(time.Now().UTC())
	var from time.Time
	switch period {
	case "1m":
		from = to.AddDate(0, -1, 0)
	case "3m":
		from = to.AddDate(0, -3, 0)
	case "1y":
		from = to.AddDate(-1, 0, 0)
	case "", "all":
		period = "all"
		from = time.Date(1970, 1, 1, 0, 0, 0, 0, time.UTC)
	default:
		return nil, fmt.Errorf("%w: %q", ErrInvalidPeriod, period)
	}

	snaps, err := s.store.Series(ctx, userID, from, to)
	if err != nil {
		return nil, err
	}
	return &models.SnapshotSeriesResponse{Period: period, Snapshots: snaps}, nil
}

// locfSeries walks an ascending price list carrying the last close forward
type locfSeries struct {
	prices []models.PricePoint
	idx    int
	last   float64
	seen   bool
}

// closeOn returns the last close at or before day. Days must be queried in
// ascending order.
func (l *locfSeries) closeOn(day time.Time) (float64, bool) {
	for l.idx < len(l.prices) && !dateOnly(l.prices[l.idx].Date).After(day) {
		l.last = l.prices[l.idx].Close
		l.seen = true
		l.idx++
	}
	return l.last, l.seen
}
