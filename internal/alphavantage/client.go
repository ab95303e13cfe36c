package alphavantage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Alphavantage is a Stock and ETF API that fetches data including pricing data
// It is a subscription service, but provides free API access
// https://www.alphavantage.co/documentation/
const defaultBaseURL = "https://www.alphavantage.co/query"

// compactWindowDays is how far back the "compact" output size reaches
// (the last 100 data points); older ranges need a "full" fetch.
const compactWindowDays = 100

// Classified provider errors. ErrSymbolNotFound is permanent (unknown or
// delisted instrument); everything else is treated as transient.
var (
	ErrSymbolNotFound = errors.New("alphavantage: symbol not found")
	ErrRateLimited    = errors.New("alphavantage: rate limited")
)

// IsPermanent reports whether err can never succeed on retry
func IsPermanent(err error) bool {
	return errors.Is(err, ErrSymbolNotFound)
}

// Client is an HTTP client for the AlphaVantage API
type Client struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a new AlphaVantage client
func NewClient(apiKey string, timeout time.Duration) *Client {
	return &Client{
		apiKey:  apiKey,
		baseURL: defaultBaseURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// NewClientWithBaseURL creates a new AlphaVantage client with a custom base URL (for testing)
func NewClientWithBaseURL(apiKey, baseURL string, timeout time.Duration) *Client {
	c := NewClient(apiKey, timeout)
	c.baseURL = baseURL
	return c
}

// FetchRange fetches daily adjusted data for a symbol and filters it to
// [start, end]. The output size is chosen from how far back start reaches:
// ranges within the last 100 days use the cheaper "compact" fetch.
// Dividend amounts ride along in the returned rows.
func (c *Client) FetchRange(ctx context.Context, symbol string, start, end time.Time) ([]ParsedPriceData, error) {
	outputSize := "compact"
	if time.Since(start).Hours()/24.0 >= compactWindowDays {
		outputSize = "full"
	}

	all, err := c.GetDailyAdjusted(ctx, symbol, outputSize)
	if err != nil {
		return nil, err
	}

	var filtered []ParsedPriceData
	for _, p := range all {
		if p.Date.Before(start) || p.Date.After(end) {
			continue
		}
		filtered = append(filtered, p)
	}
	return filtered, nil
}

// GetDailyAdjusted fetches daily adjusted price data for a symbol.
// outputSize is "compact" (last 100 points) or "full". Rows are returned in
// ascending date order.
func (c *Client) GetDailyAdjusted(ctx context.Context, symbol string, outputSize string) ([]ParsedPriceData, error) {
	params := url.Values{}
	params.Set("function", "TIME_SERIES_DAILY_ADJUSTED")
	params.Set("symbol", symbol)
	params.Set("outputsize", outputSize)
	params.Set("apikey", c.apiKey)

	resp, err := c.doRequest(ctx, params)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	var tsResp TimeSeriesDailyAdjustedResponse
	if err := json.Unmarshal(body, &tsResp); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}
	if err := classify(tsResp.ErrorMessage, tsResp.Note, tsResp.Information, symbol); err != nil {
		return nil, err
	}

	var prices []ParsedPriceData
	for dateStr, ohlcv := range tsResp.TimeSeries {
		date, err := time.Parse("2006-01-02", dateStr)
		if err != nil {
			continue
		}

		open, _ := strconv.ParseFloat(ohlcv.Open, 64)
		high, _ := strconv.ParseFloat(ohlcv.High, 64)
		low, _ := strconv.ParseFloat(ohlcv.Low, 64)
		closePrice, _ := strconv.ParseFloat(ohlcv.Close, 64)
		volume, _ := strconv.ParseInt(ohlcv.Volume, 10, 64)
		dividend, _ := strconv.ParseFloat(ohlcv.Dividend, 64)
		split, _ := strconv.ParseFloat(ohlcv.SplitCoefficient, 64)

		prices = append(prices, ParsedPriceData{
			Date:             date,
			Open:             open,
			High:             high,
			Low:              low,
			Close:            closePrice,
			Volume:           volume,
			Dividend:         dividend,
			SplitCoefficient: split,
		})
	}

	sort.Slice(prices, func(i, j int) bool {
		return prices[i].Date.Before(prices[j].Date)
	})

	return prices, nil
}

// GetQuote fetches a real-time quote for a symbol
func (c *Client) GetQuote(ctx context.Context, symbol string) (*ParsedQuote, error) {
	params := url.Values{}
	params.Set("function", "GLOBAL_QUOTE")
	params.Set("symbol", symbol)
	params.Set("apikey", c.apiKey)

	resp, err := c.doRequest(ctx, params)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	var quoteResp GlobalQuoteResponse
	if err := json.Unmarshal(body, &quoteResp); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}
	if err := classify(quoteResp.ErrorMessage, quoteResp.Note, "", symbol); err != nil {
		return nil, err
	}

	price, err := strconv.ParseFloat(quoteResp.GlobalQuote.Price, 64)
	if err != nil {
		return nil, fmt.Errorf("failed to parse price: %w", err)
	}

	return &ParsedQuote{
		Symbol: symbol,
		Price:  price,
	}, nil
}

// SearchSymbols searches AlphaVantage for symbols matching a query
func (c *Client) SearchSymbols(ctx context.Context, query string) ([]SymbolSearchMatch, error) {
	params := url.Values{}
	params.Set("function", "SYMBOL_SEARCH")
	params.Set("keywords", query)
	params.Set("apikey", c.apiKey)

	resp, err := c.doRequest(ctx, params)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	var searchResp SymbolSearchResponse
	if err := json.Unmarshal(body, &searchResp); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}
	if err := classify(searchResp.ErrorMessage, searchResp.Note, "", query); err != nil {
		return nil, err
	}

	return searchResp.BestMatches, nil
}

// classify maps AlphaVantage's in-band error fields to typed errors.
// The API returns HTTP 200 for both bad symbols ("Error Message") and
// throttling ("Note"/"Information"), so status codes alone are not enough.
func classify(errorMessage, note, information, symbol string) error {
	if errorMessage != "" {
		if strings.Contains(strings.ToLower(errorMessage), "invalid api call") {
			return fmt.Errorf("%w: %s", ErrSymbolNotFound, symbol)
		}
		return fmt.Errorf("alphavantage error for %s: %s", symbol, errorMessage)
	}
	if note != "" || information != "" {
		return fmt.Errorf("%w: %s", ErrRateLimited, symbol)
	}
	return nil
}

func (c *Client) doRequest(ctx context.Context, params url.Values) (*http.Response, error) {
	reqURL := c.baseURL + "?" + params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		resp.Body.Close()
		return nil, ErrRateLimited
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("API returned status %d", resp.StatusCode)
	}

	return resp, nil
}
