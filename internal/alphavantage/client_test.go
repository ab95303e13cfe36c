package alphavantage

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const dailyAdjustedBody = `{
	"Meta Data": {"2. Symbol": "TTE.PA"},
	"Time Series (Daily)": {
		"2024-03-04": {
			"1. open": "62.10", "2. high": "62.80", "3. low": "61.90",
			"4. close": "62.50", "5. adjusted close": "62.50",
			"6. volume": "4200000", "7. dividend amount": "0.0000",
			"8. split coefficient": "1.0"
		},
		"2024-03-01": {
			"1. open": "61.00", "2. high": "61.60", "3. low": "60.70",
			"4. close": "61.40", "5. adjusted close": "61.40",
			"6. volume": "3900000", "7. dividend amount": "0.7400",
			"8. split coefficient": "1.0"
		}
	}
}`

func TestGetDailyAdjustedParsesAndSorts(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "TIME_SERIES_DAILY_ADJUSTED", r.URL.Query().Get("function"))
		assert.Equal(t, "TTE.PA", r.URL.Query().Get("symbol"))
		w.Write([]byte(dailyAdjustedBody))
	}))
	defer srv.Close()

	client := NewClientWithBaseURL("test-key", srv.URL, 5*time.Second)
	prices, err := client.GetDailyAdjusted(context.Background(), "TTE.PA", "compact")
	require.NoError(t, err)
	require.Len(t, prices, 2)

	// Ascending date order regardless of map iteration
	assert.Equal(t, "2024-03-01", prices[0].Date.Format("2006-01-02"))
	assert.Equal(t, "2024-03-04", prices[1].Date.Format("2006-01-02"))
	assert.Equal(t, 61.40, prices[0].Close)
	assert.Equal(t, 0.74, prices[0].Dividend)
	assert.Equal(t, int64(4200000), prices[1].Volume)
}

func TestFetchRangeFiltersDates(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Recent start date should request the cheap compact size
		assert.Equal(t, "compact", r.URL.Query().Get("outputsize"))
		w.Write([]byte(dailyAdjustedBody))
	}))
	defer srv.Close()

	client := NewClientWithBaseURL("test-key", srv.URL, 5*time.Second)
	start := time.Now().AddDate(0, 0, -10)
	end := time.Now()

	prices, err := client.FetchRange(context.Background(), "TTE.PA", start, end)
	require.NoError(t, err)
	assert.Empty(t, prices, "2024 rows fall outside the requested range")
}

func TestClassifyUnknownSymbol(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"Error Message": "Invalid API call. Please retry or visit the documentation."}`))
	}))
	defer srv.Close()

	client := NewClientWithBaseURL("test-key", srv.URL, 5*time.Second)
	_, err := client.GetDailyAdjusted(context.Background(), "NOPE", "compact")
	assert.ErrorIs(t, err, ErrSymbolNotFound)
	assert.True(t, IsPermanent(err))
}

func TestClassifyRateLimit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"Note": "Thank you for using Alpha Vantage! Our standard API rate limit is 25 requests per day."}`))
	}))
	defer srv.Close()

	client := NewClientWithBaseURL("test-key", srv.URL, 5*time.Second)
	_, err := client.GetDailyAdjusted(context.Background(), "TTE.PA", "compact")
	assert.ErrorIs(t, err, ErrRateLimited)
	assert.False(t, IsPermanent(err))
}

func TestHTTP429IsRateLimited(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	client := NewClientWithBaseURL("test-key", srv.URL, 5*time.Second)
	_, err := client.GetQuote(context.Background(), "TTE.PA")
	assert.ErrorIs(t, err, ErrRateLimited)
}
