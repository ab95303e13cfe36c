package services

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"github.com/tlemoine/peatrack/internal/cache"
	"github.com/tlemoine/peatrack/internal/models"
)

// valuationLedger reads the lot and gain state valuation needs
type valuationLedger interface {
	OpenLotsByUser(ctx context.Context, userID int64) ([]*models.Lot, error)
	RealizedPnLByTicker(ctx context.Context, userID int64) (map[int64]decimal.Decimal, error)
	Transactions(ctx context.Context, userID, tickerID int64) ([]models.Transaction, error)
}

// priceReader reads stored market data
type priceReader interface {
	LatestPrice(ctx context.Context, tickerID int64) (*models.PricePoint, error)
	DividendsForTicker(ctx context.Context, tickerID int64) ([]models.DividendRecord, error)
}

// ValuationService combines open lots with the latest stored prices.
// Cost figures stay decimal end to end; market values are float like the
// prices they derive from. An instrument with no stored price at all is
// reported Pending rather than valued at zero.
type ValuationService struct {
	ledger  valuationLedger
	prices  priceReader
	tickers tickerGetter
	cache   *cache.MemoryCache
}

// NewValuationService creates a new ValuationService
func NewValuationService(ledger valuationLedger, prices priceReader, tickers tickerGetter, memCache *cache.MemoryCache) *ValuationService {
	return &ValuationService{
		ledger:  ledger,
		prices:  prices,
		tickers: tickers,
		cache:   memCache,
	}
}

// Summary values all of a user's open positions and aggregates them
func (s *ValuationService) Summary(ctx context.Context, userID int64) (*models.PortfolioSummary, error) {
	lots, err := s.ledger.OpenLotsByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load lots: %w", err)
	}
	realized, err := s.ledger.RealizedPnLByTicker(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load realized pnl: %w", err)
	}

	byTicker := make(map[int64][]*models.Lot)
	var order []int64
	for _, lot := range lots {
		if _, seen := byTicker[lot.TickerID]; !seen {
			order = append(order, lot.TickerID)
		}
		byTicker[lot.TickerID] = append(byTicker[lot.TickerID], lot)
	}

	summary := &models.PortfolioSummary{
		TotalInvested:    decimal.Zero,
		TotalRealizedPnL: decimal.Zero,
		TotalDividends:   decimal.Zero,
	}

	for _, tickerID := range order {
		pos, err := s.valuePosition(ctx, userID, tickerID, byTicker[tickerID], realized[tickerID])
		if err != nil {
			return nil, err
		}
		summary.Positions = append(summary.Positions, *pos)
		summary.TotalInvested = summary.TotalInvested.Add(pos.Invested)
		summary.TotalRealizedPnL = summary.TotalRealizedPnL.Add(pos.RealizedPnL)
		if pos.Pending {
			summary.PendingTickers = append(summary.PendingTickers, pos.Symbol)
		} else {
			summary.TotalValue += pos.MarketValue
			summary.TotalUnrealizedPnL += pos.UnrealizedPnL
		}

		dividends, err := s.DividendIncome(ctx, userID, tickerID)
		if err != nil {
			return nil, err
		}
		summary.TotalDividends = summary.TotalDividends.Add(dividends)
	}
	summary.NumPositions = len(summary.Positions)

	// Fully closed positions still contribute their realized P&L and the
	// dividends collected while the position was held
	for tickerID, pnl := range realized {
		if _, open := byTicker[tickerID]; open {
			continue
		}
		summary.TotalRealizedPnL = summary.TotalRealizedPnL.Add(pnl)

		dividends, err := s.DividendIncome(ctx, userID, tickerID)
		if err != nil {
			return nil, err
		}
		summary.TotalDividends = summary.TotalDividends.Add(dividends)
	}

	if summary.TotalValue > 0 {
		for i := range summary.Positions {
			if !summary.Positions[i].Pending {
				summary.Positions[i].Weight = summary.Positions[i].MarketValue / summary.TotalValue * 100
			}
		}
	}

	return summary, nil
}

func (s *ValuationService) valuePosition(ctx context.Context, userID, tickerID int64, lots []*models.Lot, realizedPnL decimal.Decimal) (*models.Position, error) {
	ticker, err := s.tickers.GetByID(ctx, tickerID)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve ticker %d: %w", tickerID, err)
	}

	qty := decimal.Zero
	invested := decimal.Zero
	for _, lot := range lots {
		qty = qty.Add(lot.RemainingQty)
		invested = invested.Add(lot.RemainingQty.Mul(lot.CostBasis))
	}

	pos := &models.Position{
		TickerID:    tickerID,
		Symbol:      ticker.Symbol,
		Quantity:    qty,
		Invested:    invested,
		RealizedPnL: realizedPnL,
	}
	if qty.IsPositive() {
		pos.AvgCostBasis = invested.Div(qty)
	}

	latest, err := s.latestPrice(ctx, tickerID)
	if err != nil {
		return nil, err
	}
	if latest == nil {
		pos.Pending = true
		return pos, nil
	}

	qtyF, _ := qty.Float64()
	investedF, _ := invested.Float64()
	pos.CurrentPrice = latest.Close
	pos.PriceDate = &latest.Date
	pos.MarketValue = latest.Close * qtyF
	pos.UnrealizedPnL = pos.MarketValue - investedF
	return pos, nil
}

func (s *ValuationService) latestPrice(ctx context.Context, tickerID int64) (*models.PricePoint, error) {
	if p, ok := s.cache.GetLatest(tickerID); ok {
		return &p, nil
	}
	p, err := s.prices.LatestPrice(ctx, tickerID)
	if err != nil {
		return nil, fmt.Errorf("failed to load latest price: %w", err)
	}
	if p != nil {
		s.cache.SetLatest(*p)
	}
	return p, nil
}

// DividendIncome attributes stored per-share dividends to the quantity the
// user held at each ex-date, reconstructed from the transaction timeline.
func (s *ValuationService) DividendIncome(ctx context.Context, userID, tickerID int64) (decimal.Decimal, error) {
	dividends, err := s.prices.DividendsForTicker(ctx, tickerID)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to load dividends: %w", err)
	}
	if len(dividends) == 0 {
		return decimal.Zero, nil
	}

	txs, err := s.ledger.Transactions(ctx, userID, tickerID)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to load transactions: %w", err)
	}
	timeline := holdingsTimeline(txs)
	if len(timeline) == 0 {
		return decimal.Zero, nil
	}

	total := decimal.Zero
	for _, div := range dividends {
		qty := quantityAt(timeline, div.Date)
		if qty.IsPositive() {
			total = total.Add(qty.Mul(decimal.NewFromFloat(div.AmountPerShare)))
		}
	}
	return total, nil
}

// holdingPoint is the cumulative quantity held from Date onward
type holdingPoint struct {
	Date time.Time
	Qty  decimal.Decimal
}

// holdingsTimeline folds a chronological transaction list into cumulative
// held-quantity steps.
func holdingsTimeline(txs []models.Transaction) []holdingPoint {
	var timeline []holdingPoint
	qty := decimal.Zero
	for _, tx := range txs {
		switch tx.Side {
		case models.SideBuy:
			qty = qty.Add(tx.Quantity)
		case models.SideSell:
			qty = qty.Sub(tx.Quantity)
		}
		if n := len(timeline); n > 0 && timeline[n-1].Date.Equal(tx.TradeDate) {
			timeline[n-1].Qty = qty
		} else {
			timeline = append(timeline, holdingPoint{Date: tx.TradeDate, Qty: qty})
		}
	}
	return timeline
}

// quantityAt returns the quantity held on a given date
func quantityAt(timeline []holdingPoint, date time.Time) decimal.Decimal {
	idx := sort.Search(len(timeline), func(i int) bool {
		return timeline[i].Date.After(date)
	})
	if idx == 0 {
		return decimal.Zero
	}
	return timeline[idx-1].Qty
}
