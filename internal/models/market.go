package models

import (
	"time"
)

// PricePoint represents one day of OHLCV data for a ticker.
// Keyed uniquely by (ticker_id, date); later fetches overwrite.
type PricePoint struct {
	TickerID int64     `json:"ticker_id"`
	Date     time.Time `json:"date"`
	Open     float64   `json:"open"`
	High     float64   `json:"high"`
	Low      float64   `json:"low"`
	Close    float64   `json:"close"`
	Volume   int64     `json:"volume"`
}

// DividendRecord represents a per-share dividend at an ex-date.
// Same (ticker_id, date) upsert discipline as PricePoint.
type DividendRecord struct {
	TickerID       int64     `json:"ticker_id"`
	Date           time.Time `json:"date"`
	AmountPerShare float64   `json:"amount_per_share"`
}

// BackfillStatus is the lifecycle state of a backfill request
type BackfillStatus string

const (
	BackfillPending    BackfillStatus = "PENDING"
	BackfillInProgress BackfillStatus = "IN_PROGRESS"
	BackfillDone       BackfillStatus = "DONE"
	BackfillFailed     BackfillStatus = "FAILED"
)

// BackfillRequest asks for historical data covering [StartDate, EndDate]
// for one ticker. FAILED requests retry with backoff until Attempts reaches
// the configured ceiling, after which they are terminal.
type BackfillRequest struct {
	ID            int64          `json:"id"`
	TickerID      int64          `json:"ticker_id"`
	StartDate     time.Time      `json:"start_date"`
	EndDate       time.Time      `json:"end_date"`
	Status        BackfillStatus `json:"status"`
	Attempts      int            `json:"attempts"`
	LastError     *string        `json:"last_error,omitempty"`
	NextAttemptAt time.Time      `json:"next_attempt_at"`
	RequestedAt   time.Time      `json:"requested_at"`
}

// Quote represents the most recent known price for a ticker
type Quote struct {
	TickerID  int64     `json:"ticker_id"`
	Symbol    string    `json:"symbol"`
	Price     float64   `json:"price"`
	FetchedAt time.Time `json:"fetched_at"`
}
