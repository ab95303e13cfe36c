package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tlemoine/peatrack/internal/ledger"
	"github.com/tlemoine/peatrack/internal/models"
)

type fakeLedgerStore struct {
	txs      []models.Transaction
	lots     []*models.Lot
	buys     int
	sells    int
	replaced bool
}

func (f *fakeLedgerStore) GetTransaction(ctx context.Context, id int64) (*models.Transaction, error) {
	for i := range f.txs {
		if f.txs[i].ID == id {
			return &f.txs[i], nil
		}
	}
	return nil, assert.AnError
}

func (f *fakeLedgerStore) Transactions(ctx context.Context, userID, tickerID int64) ([]models.Transaction, error) {
	return f.txs, nil
}

func (f *fakeLedgerStore) OpenLots(ctx context.Context, userID, tickerID int64) ([]*models.Lot, error) {
	return f.lots, nil
}

func (f *fakeLedgerStore) CommitBuy(ctx context.Context, tx *models.Transaction, lot *models.Lot) error {
	f.buys++
	tx.ID = int64(len(f.txs) + 1)
	f.txs = append(f.txs, *tx)
	f.lots = append(f.lots, lot)
	return nil
}

func (f *fakeLedgerStore) CommitSell(ctx context.Context, tx *models.Transaction, fills []ledger.Fill) error {
	f.sells++
	tx.ID = int64(len(f.txs) + 1)
	f.txs = append(f.txs, *tx)
	return nil
}

func (f *fakeLedgerStore) ReplaceInstrument(ctx context.Context, userID, tickerID, deleteTxID int64, lots []*models.Lot, matches []ledger.SellMatch) error {
	f.replaced = true
	f.lots = lots
	return nil
}

type fakePriceDates struct {
	earliest *time.Time
}

func (f *fakePriceDates) EarliestDate(ctx context.Context, tickerID int64) (*time.Time, error) {
	return f.earliest, nil
}

type fakeEnqueuer struct {
	ranges [][2]time.Time
}

func (f *fakeEnqueuer) Enqueue(ctx context.Context, tickerID int64, start, end time.Time) (*models.BackfillRequest, error) {
	f.ranges = append(f.ranges, [2]time.Time{start, end})
	return &models.BackfillRequest{TickerID: tickerID, StartDate: start, EndDate: end}, nil
}

func buyTx(qty, price string, day int) *models.Transaction {
	return &models.Transaction{
		UserID: 7, TickerID: 1, Side: models.SideBuy,
		Quantity: d(qty), Price: d(price), Fee: d("0"), TradeDate: jan(day),
	}
}

func TestApplyTransactionRejectsInvalidInput(t *testing.T) {
	svc := NewLedgerService(&fakeLedgerStore{}, &fakePriceDates{}, &fakeEnqueuer{})

	bad := buyTx("10", "50", 5)
	bad.Quantity = d("0")
	err := svc.ApplyTransaction(context.Background(), bad)
	assert.ErrorIs(t, err, ErrInvalidTransaction)

	bad = buyTx("10", "50", 5)
	bad.Side = "HOLD"
	err = svc.ApplyTransaction(context.Background(), bad)
	assert.ErrorIs(t, err, ErrInvalidTransaction)
}

func TestApplyTransactionBuyOpensLot(t *testing.T) {
	store := &fakeLedgerStore{}
	earliest := jan(1)
	svc := NewLedgerService(store, &fakePriceDates{earliest: &earliest}, &fakeEnqueuer{})

	err := svc.ApplyTransaction(context.Background(), buyTx("10", "50", 5))
	require.NoError(t, err)

	assert.Equal(t, 1, store.buys)
	require.Len(t, store.lots, 1)
	assert.True(t, store.lots[0].RemainingQty.Equal(d("10")))
}

func TestApplyTransactionSellRequiresPosition(t *testing.T) {
	store := &fakeLedgerStore{}
	earliest := jan(1)
	svc := NewLedgerService(store, &fakePriceDates{earliest: &earliest}, &fakeEnqueuer{})

	sell := &models.Transaction{
		UserID: 7, TickerID: 1, Side: models.SideSell,
		Quantity: d("5"), Price: d("55"), Fee: d("0"), TradeDate: jan(6),
	}
	err := svc.ApplyTransaction(context.Background(), sell)
	assert.ErrorIs(t, err, ledger.ErrInsufficientPosition)
	assert.Zero(t, store.sells, "rejected sell commits nothing")
}

func TestApplyTransactionEnqueuesBackfillForEarlierTrade(t *testing.T) {
	store := &fakeLedgerStore{}
	earliest := jan(10)
	enq := &fakeEnqueuer{}
	svc := NewLedgerService(store, &fakePriceDates{earliest: &earliest}, enq)

	err := svc.ApplyTransaction(context.Background(), buyTx("10", "50", 2))
	require.NoError(t, err)

	require.Len(t, enq.ranges, 1)
	assert.Equal(t, jan(2), enq.ranges[0][0])
	assert.Equal(t, jan(9), enq.ranges[0][1], "backfill stops the day before existing coverage")
}

func TestApplyTransactionEnqueuesFullHistoryWhenNoPrices(t *testing.T) {
	store := &fakeLedgerStore{}
	enq := &fakeEnqueuer{}
	svc := NewLedgerService(store, &fakePriceDates{}, enq)

	err := svc.ApplyTransaction(context.Background(), buyTx("10", "50", 2))
	require.NoError(t, err)

	require.Len(t, enq.ranges, 1)
	assert.Equal(t, jan(2), enq.ranges[0][0])
	assert.False(t, enq.ranges[0][1].Before(enq.ranges[0][0]))
}

func TestApplyTransactionSkipsBackfillWhenCovered(t *testing.T) {
	store := &fakeLedgerStore{}
	earliest := jan(1)
	enq := &fakeEnqueuer{}
	svc := NewLedgerService(store, &fakePriceDates{earliest: &earliest}, enq)

	err := svc.ApplyTransaction(context.Background(), buyTx("10", "50", 5))
	require.NoError(t, err)
	assert.Empty(t, enq.ranges)
}

func TestApplyTransactionConcurrencyConflict(t *testing.T) {
	store := &fakeLedgerStore{}
	earliest := jan(1)
	svc := NewLedgerService(store, &fakePriceDates{earliest: &earliest}, &fakeEnqueuer{})

	// Simulate another in-flight write on the same (user, instrument)
	require.True(t, svc.locks.TryLock(lockKey(7, 1)))
	defer svc.locks.Unlock(lockKey(7, 1))

	err := svc.ApplyTransaction(context.Background(), buyTx("10", "50", 5))
	assert.ErrorIs(t, err, ErrConcurrencyConflict)

	// A different instrument is unaffected
	other := buyTx("1", "10", 5)
	other.TickerID = 2
	assert.NoError(t, svc.ApplyTransaction(context.Background(), other))
}

func TestDeleteTransactionReplaysHistory(t *testing.T) {
	buy1 := *buyTx("10", "50", 1)
	buy1.ID = 1
	buy2 := *buyTx("5", "60", 2)
	buy2.ID = 2

	store := &fakeLedgerStore{txs: []models.Transaction{buy1, buy2}}
	earliest := jan(1)
	svc := NewLedgerService(store, &fakePriceDates{earliest: &earliest}, &fakeEnqueuer{})

	err := svc.DeleteTransaction(context.Background(), 7, 1)
	require.NoError(t, err)

	assert.True(t, store.replaced)
	require.Len(t, store.lots, 1, "rebuilt state holds only the surviving buy")
	assert.True(t, store.lots[0].OriginalQty.Equal(d("5")))
}

func TestDeleteTransactionRejectedWhenHistoryBreaks(t *testing.T) {
	buy := *buyTx("10", "50", 1)
	buy.ID = 1
	sell := models.Transaction{
		ID: 2, UserID: 7, TickerID: 1, Side: models.SideSell,
		Quantity: d("8"), Price: d("55"), Fee: d("0"), TradeDate: jan(3),
	}

	store := &fakeLedgerStore{txs: []models.Transaction{buy, sell}}
	earliest := jan(1)
	svc := NewLedgerService(store, &fakePriceDates{earliest: &earliest}, &fakeEnqueuer{})

	// Deleting the buy would leave the sell uncovered
	err := svc.DeleteTransaction(context.Background(), 7, 1)
	assert.ErrorIs(t, err, ledger.ErrInsufficientPosition)
	assert.False(t, store.replaced)
}
