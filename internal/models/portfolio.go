package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Position combines open lots with the latest known price for one ticker.
// When no price has ever been stored, Pending is true and the price-derived
// fields are meaningless — callers must distinguish "no data" from zero.
type Position struct {
	TickerID      int64           `json:"ticker_id"`
	Symbol        string          `json:"symbol"`
	Quantity      decimal.Decimal `json:"quantity"`
	Invested      decimal.Decimal `json:"invested"`
	AvgCostBasis  decimal.Decimal `json:"avg_cost_basis"`
	Pending       bool            `json:"pending"`
	CurrentPrice  float64         `json:"current_price"`
	PriceDate     *time.Time      `json:"price_date,omitempty"`
	MarketValue   float64         `json:"market_value"`
	UnrealizedPnL float64         `json:"unrealized_pnl"`
	RealizedPnL   decimal.Decimal `json:"realized_pnl"`
	Weight        float64         `json:"weight"`
}

// PortfolioSummary aggregates all of a user's positions.
// Aggregation is a pure sum over instruments.
type PortfolioSummary struct {
	Positions          []Position      `json:"positions"`
	TotalValue         float64         `json:"total_value"`
	TotalInvested      decimal.Decimal `json:"total_invested"`
	TotalUnrealizedPnL float64         `json:"total_unrealized_pnl"`
	TotalRealizedPnL   decimal.Decimal `json:"total_realized_pnl"`
	TotalDividends     decimal.Decimal `json:"total_dividends"`
	NumPositions       int             `json:"num_positions"`
	PendingTickers     []string        `json:"pending_tickers,omitempty"`
}

// Snapshot is one day of portfolio valuation for a user, computed with
// last-observation-carried-forward pricing over weekends and holidays.
type Snapshot struct {
	UserID        int64     `json:"user_id"`
	Date          time.Time `json:"date"`
	TotalValue    float64   `json:"total_value"`
	TotalInvested float64   `json:"total_invested"`
	TotalPnL      float64   `json:"total_pnl"`
	TotalPnLPct   float64   `json:"total_pnl_pct"`
}

// InstrumentError is a per-ticker failure surfaced in a SyncReport
type InstrumentError struct {
	Symbol string `json:"symbol"`
	Error  string `json:"error"`
}

// SyncReport summarizes one daily sync run
type SyncReport struct {
	TradingDay         bool              `json:"trading_day"`
	InstrumentsUpdated int               `json:"instruments_updated"`
	BackfillsCompleted int               `json:"backfills_completed"`
	BackfillsFailed    int               `json:"backfills_failed"`
	AlertsTriggered    int               `json:"alerts_triggered"`
	SnapshotUsers      int               `json:"snapshot_users"`
	Errors             []InstrumentError `json:"errors,omitempty"`
}
