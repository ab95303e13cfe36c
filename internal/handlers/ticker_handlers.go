package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tlemoine/peatrack/internal/alphavantage"
	"github.com/tlemoine/peatrack/internal/cache"
	"github.com/tlemoine/peatrack/internal/models"
	"github.com/tlemoine/peatrack/internal/repository"
)

// TickerHandler handles instrument lookup endpoints
type TickerHandler struct {
	client     *alphavantage.Client
	tickerRepo *repository.TickerRepository
	cache      *cache.MemoryCache
}

// NewTickerHandler creates a new TickerHandler
func NewTickerHandler(client *alphavantage.Client, tickerRepo *repository.TickerRepository, memCache *cache.MemoryCache) *TickerHandler {
	return &TickerHandler{
		client:     client,
		tickerRepo: tickerRepo,
		cache:      memCache,
	}
}

// Search handles GET /tickers/search?q=
func (h *TickerHandler) Search(c *gin.Context) {
	query := c.Query("q")
	if query == "" {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Error:   "bad_request",
			Message: "query parameter 'q' is required",
		})
		return
	}

	matches, err := h.client.SearchSymbols(c.Request.Context(), query)
	if err != nil {
		c.JSON(http.StatusBadGateway, models.ErrorResponse{
			Error:   "provider_error",
			Message: err.Error(),
		})
		return
	}

	results := make([]models.TickerSearchResult, 0, len(matches))
	for _, m := range matches {
		results = append(results, models.TickerSearchResult{
			Symbol:   m.Symbol,
			Name:     m.Name,
			Region:   m.Region,
			Currency: m.Currency,
			Type:     m.Type,
		})
	}

	c.JSON(http.StatusOK, gin.H{"results": results})
}

// Quote handles GET /tickers/:id/quote, serving from the TTL cache when fresh
func (h *TickerHandler) Quote(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Error:   "bad_request",
			Message: "invalid ticker ID",
		})
		return
	}

	if quote, ok := h.cache.GetQuote(id); ok {
		c.JSON(http.StatusOK, quote)
		return
	}

	ticker, err := h.tickerRepo.GetByID(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, repository.ErrTickerNotFound) {
			c.JSON(http.StatusNotFound, models.ErrorResponse{
				Error:   "not_found",
				Message: "ticker not found",
			})
			return
		}
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{
			Error:   "internal_error",
			Message: err.Error(),
		})
		return
	}

	parsed, err := h.client.GetQuote(c.Request.Context(), ticker.Symbol)
	if err != nil {
		c.JSON(http.StatusBadGateway, models.ErrorResponse{
			Error:   "provider_error",
			Message: err.Error(),
		})
		return
	}

	quote := &models.Quote{
		TickerID:  ticker.ID,
		Symbol:    ticker.Symbol,
		Price:     parsed.Price,
		FetchedAt: time.Now().UTC(),
	}
	h.cache.SetQuote(ticker.ID, quote)

	c.JSON(http.StatusOK, quote)
}
