package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Side represents the direction of a transaction
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// Transaction represents a single buy or sell. Transactions are immutable;
// corrections are modeled as delete + replay of the instrument's history.
type Transaction struct {
	ID        int64           `json:"id"`
	UserID    int64           `json:"user_id"`
	TickerID  int64           `json:"ticker_id"`
	Side      Side            `json:"side"`
	Quantity  decimal.Decimal `json:"quantity"`
	Price     decimal.Decimal `json:"price"`
	Fee       decimal.Decimal `json:"fee"`
	TradeDate time.Time       `json:"trade_date"`
	Notes     *string         `json:"notes,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

// Lot is a chunk of bought, not-yet-fully-sold quantity with its own cost
// basis. Lots for one instrument are FIFO-ordered by (opened_at,
// transaction_id); this order never changes after creation.
type Lot struct {
	ID            int64           `json:"id"`
	UserID        int64           `json:"user_id"`
	TickerID      int64           `json:"ticker_id"`
	TransactionID int64           `json:"transaction_id"`
	OpenedAt      time.Time       `json:"opened_at"`
	OriginalQty   decimal.Decimal `json:"original_qty"`
	RemainingQty  decimal.Decimal `json:"remaining_qty"`
	CostBasis     decimal.Decimal `json:"cost_basis"`
}

// RealizedGain records the P&L locked in by one (sell, lot) pairing.
// Immutable, produced exactly once at match time.
type RealizedGain struct {
	ID                int64           `json:"id"`
	UserID            int64           `json:"user_id"`
	TickerID          int64           `json:"ticker_id"`
	SellTransactionID int64           `json:"sell_transaction_id"`
	LotID             int64           `json:"lot_id"`
	Quantity          decimal.Decimal `json:"quantity"`
	Proceeds          decimal.Decimal `json:"proceeds"`
	CostBasis         decimal.Decimal `json:"cost_basis"`
	Fee               decimal.Decimal `json:"fee"`
	PnL               decimal.Decimal `json:"pnl"`
	RealizedAt        time.Time       `json:"realized_at"`
}
