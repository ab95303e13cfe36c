package services

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tlemoine/peatrack/internal/cache"
	"github.com/tlemoine/peatrack/internal/models"
)

type fakeValuationLedger struct {
	lots     []*models.Lot
	realized map[int64]decimal.Decimal
	txs      map[int64][]models.Transaction
}

func (f *fakeValuationLedger) OpenLotsByUser(ctx context.Context, userID int64) ([]*models.Lot, error) {
	return f.lots, nil
}

func (f *fakeValuationLedger) RealizedPnLByTicker(ctx context.Context, userID int64) (map[int64]decimal.Decimal, error) {
	if f.realized == nil {
		return map[int64]decimal.Decimal{}, nil
	}
	return f.realized, nil
}

func (f *fakeValuationLedger) Transactions(ctx context.Context, userID, tickerID int64) ([]models.Transaction, error) {
	return f.txs[tickerID], nil
}

type fakePriceReader struct {
	latest    map[int64]*models.PricePoint
	dividends map[int64][]models.DividendRecord
}

func (f *fakePriceReader) LatestPrice(ctx context.Context, tickerID int64) (*models.PricePoint, error) {
	return f.latest[tickerID], nil
}

func (f *fakePriceReader) DividendsForTicker(ctx context.Context, tickerID int64) ([]models.DividendRecord, error) {
	return f.dividends[tickerID], nil
}

func newValuationService(ledgerFake *fakeValuationLedger, prices *fakePriceReader) *ValuationService {
	tickers := &fakeTickers{tickers: map[int64]*models.Ticker{
		1: {ID: 1, Symbol: "TTE.PA"},
		2: {ID: 2, Symbol: "AIR.PA"},
	}}
	return NewValuationService(ledgerFake, prices, tickers, cache.NewMemoryCache(time.Minute))
}

func d(s string) decimal.Decimal {
	v, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return v
}

func TestSummaryValuesPosition(t *testing.T) {
	ledgerFake := &fakeValuationLedger{
		lots: []*models.Lot{
			{TickerID: 1, RemainingQty: d("10"), CostBasis: d("50.5")},
			{TickerID: 1, RemainingQty: d("5"), CostBasis: d("60")},
		},
	}
	priceDate := jan(10)
	prices := &fakePriceReader{latest: map[int64]*models.PricePoint{
		1: {TickerID: 1, Date: priceDate, Close: 62},
	}}
	svc := newValuationService(ledgerFake, prices)

	summary, err := svc.Summary(context.Background(), 7)
	require.NoError(t, err)
	require.Len(t, summary.Positions, 1)

	pos := summary.Positions[0]
	assert.Equal(t, "TTE.PA", pos.Symbol)
	assert.True(t, pos.Quantity.Equal(d("15")))
	assert.True(t, pos.Invested.Equal(d("805"))) // 10*50.5 + 5*60
	assert.False(t, pos.Pending)
	assert.InDelta(t, 930.0, pos.MarketValue, 1e-9) // 15 * 62
	assert.InDelta(t, 125.0, pos.UnrealizedPnL, 1e-9)
	assert.Equal(t, 100.0, pos.Weight)
	require.NotNil(t, pos.PriceDate)
	assert.Equal(t, priceDate, *pos.PriceDate)
}

func TestSummaryMarksPendingWhenNoPriceExists(t *testing.T) {
	ledgerFake := &fakeValuationLedger{
		lots: []*models.Lot{
			{TickerID: 1, RemainingQty: d("10"), CostBasis: d("50")},
			{TickerID: 2, RemainingQty: d("2"), CostBasis: d("140")},
		},
	}
	prices := &fakePriceReader{latest: map[int64]*models.PricePoint{
		2: {TickerID: 2, Date: jan(10), Close: 150},
	}}
	svc := newValuationService(ledgerFake, prices)

	summary, err := svc.Summary(context.Background(), 7)
	require.NoError(t, err)
	require.Len(t, summary.Positions, 2)

	var pending, valued *models.Position
	for i := range summary.Positions {
		if summary.Positions[i].Pending {
			pending = &summary.Positions[i]
		} else {
			valued = &summary.Positions[i]
		}
	}
	require.NotNil(t, pending, "instrument without prices is pending, not zero")
	require.NotNil(t, valued)

	assert.Equal(t, "TTE.PA", pending.Symbol)
	assert.Zero(t, pending.MarketValue)
	assert.Equal(t, []string{"TTE.PA"}, summary.PendingTickers)

	// Totals only include valued positions
	assert.InDelta(t, 300.0, summary.TotalValue, 1e-9)
	assert.Equal(t, 100.0, valued.Weight)
}

func TestSummaryIncludesRealizedOnClosedPositions(t *testing.T) {
	ledgerFake := &fakeValuationLedger{
		lots: []*models.Lot{
			{TickerID: 1, RemainingQty: d("10"), CostBasis: d("50")},
		},
		realized: map[int64]decimal.Decimal{
			1: d("25"),
			2: d("100"), // fully closed position, no open lots
		},
	}
	prices := &fakePriceReader{latest: map[int64]*models.PricePoint{
		1: {TickerID: 1, Date: jan(10), Close: 55},
	}}
	svc := newValuationService(ledgerFake, prices)

	summary, err := svc.Summary(context.Background(), 7)
	require.NoError(t, err)
	assert.True(t, summary.TotalRealizedPnL.Equal(d("125")))
}

func TestSummaryIncludesDividendsOnClosedPositions(t *testing.T) {
	ledgerFake := &fakeValuationLedger{
		realized: map[int64]decimal.Decimal{
			2: d("40"), // fully closed position, no open lots
		},
		txs: map[int64][]models.Transaction{
			2: {
				{TickerID: 2, Side: models.SideBuy, Quantity: d("10"), TradeDate: jan(1)},
				{TickerID: 2, Side: models.SideSell, Quantity: d("10"), TradeDate: jan(20)},
			},
		},
	}
	prices := &fakePriceReader{dividends: map[int64][]models.DividendRecord{
		2: {{TickerID: 2, Date: jan(10), AmountPerShare: 1.5}}, // held 10
	}}
	svc := newValuationService(ledgerFake, prices)

	summary, err := svc.Summary(context.Background(), 7)
	require.NoError(t, err)

	assert.Empty(t, summary.Positions)
	assert.True(t, summary.TotalDividends.Equal(d("15")), "got %s", summary.TotalDividends)
	assert.True(t, summary.TotalRealizedPnL.Equal(d("40")))
}

func TestDividendIncomeUsesQuantityHeldAtExDate(t *testing.T) {
	ledgerFake := &fakeValuationLedger{
		txs: map[int64][]models.Transaction{
			1: {
				{TickerID: 1, Side: models.SideBuy, Quantity: d("10"), TradeDate: jan(1)},
				{TickerID: 1, Side: models.SideBuy, Quantity: d("5"), TradeDate: jan(10)},
				{TickerID: 1, Side: models.SideSell, Quantity: d("12"), TradeDate: jan(20)},
			},
		},
	}
	prices := &fakePriceReader{dividends: map[int64][]models.DividendRecord{
		1: {
			{TickerID: 1, Date: jan(5), AmountPerShare: 1.0},   // held 10
			{TickerID: 1, Date: jan(15), AmountPerShare: 2.0},  // held 15
			{TickerID: 1, Date: jan(25), AmountPerShare: 0.5},  // held 3
			{TickerID: 1, Date: jan(10), AmountPerShare: 0.25}, // buy settles same day: held 15
		},
	}}
	svc := newValuationService(ledgerFake, prices)

	total, err := svc.DividendIncome(context.Background(), 7, 1)
	require.NoError(t, err)

	// 10*1 + 15*2 + 3*0.5 + 15*0.25 = 45.25
	assert.True(t, total.Equal(d("45.25")), "got %s", total)
}

func TestDividendIncomeBeforeFirstBuyIsZero(t *testing.T) {
	ledgerFake := &fakeValuationLedger{
		txs: map[int64][]models.Transaction{
			1: {{TickerID: 1, Side: models.SideBuy, Quantity: d("10"), TradeDate: jan(10)}},
		},
	}
	prices := &fakePriceReader{dividends: map[int64][]models.DividendRecord{
		1: {{TickerID: 1, Date: jan(5), AmountPerShare: 3.0}},
	}}
	svc := newValuationService(ledgerFake, prices)

	total, err := svc.DividendIncome(context.Background(), 7, 1)
	require.NoError(t, err)
	assert.True(t, total.IsZero())
}
