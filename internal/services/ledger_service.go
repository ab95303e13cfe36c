package services

import (
	"context"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/tlemoine/peatrack/internal/ledger"
	"github.com/tlemoine/peatrack/internal/models"
)

// ledgerStore is the persistence surface the ledger service needs
type ledgerStore interface {
	GetTransaction(ctx context.Context, id int64) (*models.Transaction, error)
	Transactions(ctx context.Context, userID, tickerID int64) ([]models.Transaction, error)
	OpenLots(ctx context.Context, userID, tickerID int64) ([]*models.Lot, error)
	CommitBuy(ctx context.Context, tx *models.Transaction, lot *models.Lot) error
	CommitSell(ctx context.Context, tx *models.Transaction, fills []ledger.Fill) error
	ReplaceInstrument(ctx context.Context, userID, tickerID, deleteTxID int64, lots []*models.Lot, matches []ledger.SellMatch) error
}

// priceDates answers how far back stored history reaches
type priceDates interface {
	EarliestDate(ctx context.Context, tickerID int64) (*time.Time, error)
}

// backfillEnqueuer requests historical data for a date range
type backfillEnqueuer interface {
	Enqueue(ctx context.Context, tickerID int64, start, end time.Time) (*models.BackfillRequest, error)
}

// LedgerService applies buy/sell transactions to the FIFO lot ledger.
// Writes to one (user, instrument) pair are serialized; concurrent writers
// get ErrConcurrencyConflict instead of interleaved matches.
type LedgerService struct {
	store    ledgerStore
	prices   priceDates
	backfill backfillEnqueuer
	locks    *keyedLocks
}

// NewLedgerService creates a new LedgerService
func NewLedgerService(store ledgerStore, prices priceDates, backfill backfillEnqueuer) *LedgerService {
	return &LedgerService{
		store:    store,
		prices:   prices,
		backfill: backfill,
		locks:    newKeyedLocks(),
	}
}

// ApplyTransaction validates and commits one transaction. Buys open a lot;
// sells consume open lots FIFO and record realized gains. After a successful
// commit, price history predating the trade date is requested as a backfill.
func (s *LedgerService) ApplyTransaction(ctx context.Context, tx *models.Transaction) error {
	if err := validateTransaction(tx); err != nil {
		return err
	}

	key := lockKey(tx.UserID, tx.TickerID)
	if !s.locks.TryLock(key) {
		return ErrConcurrencyConflict
	}
	defer s.locks.Unlock(key)

	switch tx.Side {
	case models.SideBuy:
		lot := ledger.OpenLot(*tx)
		if err := s.store.CommitBuy(ctx, tx, &lot); err != nil {
			return fmt.Errorf("failed to commit buy: %w", err)
		}
	case models.SideSell:
		lots, err := s.store.OpenLots(ctx, tx.UserID, tx.TickerID)
		if err != nil {
			return fmt.Errorf("failed to load open lots: %w", err)
		}
		fills, err := ledger.MatchSell(lots, *tx)
		if err != nil {
			return err
		}
		if err := s.store.CommitSell(ctx, tx, fills); err != nil {
			return fmt.Errorf("failed to commit sell: %w", err)
		}
	}

	s.ensureHistoryCovers(ctx, tx.TickerID, tx.TradeDate)
	return nil
}

// DeleteTransaction removes one transaction and rebuilds the instrument's
// lots and realized gains by replaying the remaining history from empty
// state. The delete is rejected when the remaining history is inconsistent
// (a sell that the surviving buys can no longer cover).
func (s *LedgerService) DeleteTransaction(ctx context.Context, userID, txID int64) error {
	tx, err := s.store.GetTransaction(ctx, txID)
	if err != nil {
		return err
	}
	if tx.UserID != userID {
		return fmt.Errorf("transaction %d: %w", txID, ErrInvalidTransaction)
	}

	key := lockKey(tx.UserID, tx.TickerID)
	if !s.locks.TryLock(key) {
		return ErrConcurrencyConflict
	}
	defer s.locks.Unlock(key)

	history, err := s.store.Transactions(ctx, tx.UserID, tx.TickerID)
	if err != nil {
		return fmt.Errorf("failed to load history: %w", err)
	}

	remaining := make([]models.Transaction, 0, len(history))
	for _, t := range history {
		if t.ID != txID {
			remaining = append(remaining, t)
		}
	}

	lots, matches, err := ledger.Replay(remaining)
	if err != nil {
		return fmt.Errorf("history invalid without transaction %d: %w", txID, err)
	}

	return s.store.ReplaceInstrument(ctx, tx.UserID, tx.TickerID, txID, lots, matches)
}

// ensureHistoryCovers enqueues a backfill when stored prices do not reach
// back to the trade date. Enqueue failures are logged, not returned: the
// ledger write has already committed and the next sync retries the gap.
func (s *LedgerService) ensureHistoryCovers(ctx context.Context, tickerID int64, tradeDate time.Time) {
	earliest, err := s.prices.EarliestDate(ctx, tickerID)
	if err != nil {
		log.Warnf("Failed to check price coverage for ticker %d: %v", tickerID, err)
		return
	}

	var start, end time.Time
	switch {
	case earliest == nil:
		start, end = tradeDate, time.Now().UTC().Truncate(24*time.Hour)
	case tradeDate.Before(*earliest):
		start, end = tradeDate, earliest.AddDate(0, 0, -1)
	default:
		return
	}

	if _, err := s.backfill.Enqueue(ctx, tickerID, start, end); err != nil {
		log.Warnf("Failed to enqueue backfill for ticker %d: %v", tickerID, err)
	}
}

func validateTransaction(tx *models.Transaction) error {
	if tx.Side != models.SideBuy && tx.Side != models.SideSell {
		return fmt.Errorf("%w: side must be BUY or SELL", ErrInvalidTransaction)
	}
	if !tx.Quantity.IsPositive() {
		return fmt.Errorf("%w: quantity must be positive", ErrInvalidTransaction)
	}
	if tx.Price.IsNegative() {
		return fmt.Errorf("%w: price cannot be negative", ErrInvalidTransaction)
	}
	if tx.Fee.IsNegative() {
		return fmt.Errorf("%w: fee cannot be negative", ErrInvalidTransaction)
	}
	if tx.TradeDate.IsZero() {
		return fmt.Errorf("%w: trade date is required", ErrInvalidTransaction)
	}
	return nil
}
