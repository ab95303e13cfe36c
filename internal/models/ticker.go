package models

import (
	"time"
)

// Ticker represents a tradeable instrument, shared across all users.
type Ticker struct {
	ID          int64      `json:"id"`
	Symbol      string     `json:"symbol"`
	Name        string     `json:"name"`
	Exchange    string     `json:"exchange"`
	Currency    string     `json:"currency"`
	LastUpdated *time.Time `json:"last_updated,omitempty"`
}

// TickerSearchResult is a provider search hit, prior to any local persistence.
type TickerSearchResult struct {
	Symbol   string `json:"symbol"`
	Name     string `json:"name"`
	Region   string `json:"region"`
	Currency string `json:"currency"`
	Type     string `json:"type"`
}
