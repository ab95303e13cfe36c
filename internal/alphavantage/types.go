package alphavantage

import "time"

// TimeSeriesDailyAdjustedResponse represents the AlphaVantage
// TIME_SERIES_DAILY_ADJUSTED response
type TimeSeriesDailyAdjustedResponse struct {
	ErrorMessage string                   `json:"Error Message"`
	Note         string                   `json:"Note"`
	Information  string                   `json:"Information"`
	TimeSeries   map[string]DailyAdjusted `json:"Time Series (Daily)"`
}

// DailyAdjusted is one day of adjusted OHLCV data, all values as strings
type DailyAdjusted struct {
	Open             string `json:"1. open"`
	High             string `json:"2. high"`
	Low              string `json:"3. low"`
	Close            string `json:"4. close"`
	AdjustedClose    string `json:"5. adjusted close"`
	Volume           string `json:"6. volume"`
	Dividend         string `json:"7. dividend amount"`
	SplitCoefficient string `json:"8. split coefficient"`
}

// GlobalQuoteResponse represents the AlphaVantage GLOBAL_QUOTE response
type GlobalQuoteResponse struct {
	ErrorMessage string      `json:"Error Message"`
	Note         string      `json:"Note"`
	GlobalQuote  GlobalQuote `json:"Global Quote"`
}

// GlobalQuote is the payload of a GLOBAL_QUOTE response
type GlobalQuote struct {
	Symbol string `json:"01. symbol"`
	Price  string `json:"05. price"`
}

// SymbolSearchResponse represents the AlphaVantage SYMBOL_SEARCH response
type SymbolSearchResponse struct {
	ErrorMessage string              `json:"Error Message"`
	Note         string              `json:"Note"`
	BestMatches  []SymbolSearchMatch `json:"bestMatches"`
}

// SymbolSearchMatch is a single search hit
type SymbolSearchMatch struct {
	Symbol   string `json:"1. symbol"`
	Name     string `json:"2. name"`
	Type     string `json:"3. type"`
	Region   string `json:"4. region"`
	Currency string `json:"8. currency"`
}

// ParsedPriceData represents parsed price data ready for use. Dividend is
// the per-share amount paid on Date, zero on non-distribution days.
type ParsedPriceData struct {
	Date             time.Time
	Open             float64
	High             float64
	Low              float64
	Close            float64
	Volume           int64
	Dividend         float64
	SplitCoefficient float64
}

// ParsedQuote represents a parsed real-time quote
type ParsedQuote struct {
	Symbol string
	Price  float64
}
