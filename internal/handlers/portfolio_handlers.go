package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tlemoine/peatrack/internal/middleware"
	"github.com/tlemoine/peatrack/internal/models"
	"github.com/tlemoine/peatrack/internal/services"
)

// PortfolioHandler handles portfolio valuation endpoints
type PortfolioHandler struct {
	valuationSvc *services.ValuationService
	snapshotSvc  *services.SnapshotService
}

// NewPortfolioHandler creates a new PortfolioHandler
func NewPortfolioHandler(valuationSvc *services.ValuationService, snapshotSvc *services.SnapshotService) *PortfolioHandler {
	return &PortfolioHandler{
		valuationSvc: valuationSvc,
		snapshotSvc:  snapshotSvc,
	}
}

// Summary handles GET /portfolio
func (h *PortfolioHandler) Summary(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, models.ErrorResponse{Error: "unauthorized"})
		return
	}

	summary, err := h.valuationSvc.Summary(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{
			Error:   "internal_error",
			Message: err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, summary)
}

// History handles GET /portfolio/history?period=1m|3m|1y|all
func (h *PortfolioHandler) History(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, models.ErrorResponse{Error: "unauthorized"})
		return
	}

	series, err := h.snapshotSvc.History(c.Request.Context(), userID, c.Query("period"))
	if err != nil {
		if errors.Is(err, services.ErrInvalidPeriod) {
			c.JSON(http.StatusBadRequest, models.ErrorResponse{
				Error:   "bad_request",
				Message: err.Error(),
			})
			return
		}
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{
			Error:   "internal_error",
			Message: err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, series)
}
