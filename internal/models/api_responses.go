package models

// CreateTransactionRequest represents the request body for recording a transaction
type CreateTransactionRequest struct {
	Symbol    string  `json:"symbol" binding:"required"`
	Side      Side    `json:"side" binding:"required"`
	Quantity  string  `json:"quantity" binding:"required"`
	Price     string  `json:"price" binding:"required"`
	Fee       string  `json:"fee"`
	TradeDate string  `json:"trade_date" binding:"required"` // YYYY-MM-DD
	Notes     *string `json:"notes"`
}

// CreateAlertRequest represents the request body for creating a price alert
type CreateAlertRequest struct {
	Symbol    string         `json:"symbol" binding:"required"`
	Direction AlertDirection `json:"direction" binding:"required"`
	Threshold float64        `json:"threshold" binding:"required"`
}

// ImportResult summarizes a CSV transaction import
type ImportResult struct {
	Imported int      `json:"imported"`
	Skipped  int      `json:"skipped"`
	Errors   []string `json:"errors,omitempty"`
}

// SnapshotSeriesResponse is the charting series for a user's portfolio history
type SnapshotSeriesResponse struct {
	Period    string     `json:"period"`
	Snapshots []Snapshot `json:"snapshots"`
}

// ErrorResponse represents an API error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}
