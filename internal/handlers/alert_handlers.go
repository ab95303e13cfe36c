package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/tlemoine/peatrack/internal/middleware"
	"github.com/tlemoine/peatrack/internal/models"
	"github.com/tlemoine/peatrack/internal/repository"
)

// AlertHandler handles price alert endpoints
type AlertHandler struct {
	alertRepo  *repository.AlertRepository
	tickerRepo *repository.TickerRepository
}

// NewAlertHandler creates a new AlertHandler
func NewAlertHandler(alertRepo *repository.AlertRepository, tickerRepo *repository.TickerRepository) *AlertHandler {
	return &AlertHandler{
		alertRepo:  alertRepo,
		tickerRepo: tickerRepo,
	}
}

// Create handles POST /alerts
func (h *AlertHandler) Create(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, models.ErrorResponse{Error: "unauthorized"})
		return
	}

	var req models.CreateAlertRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Error:   "bad_request",
			Message: err.Error(),
		})
		return
	}
	if req.Direction != models.AlertAbove && req.Direction != models.AlertBelow {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Error:   "bad_request",
			Message: "direction must be 'ABOVE' or 'BELOW'",
		})
		return
	}
	if req.Threshold <= 0 {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Error:   "bad_request",
			Message: "threshold must be positive",
		})
		return
	}

	ticker, err := h.tickerRepo.GetOrCreate(c.Request.Context(), req.Symbol, "", "", "")
	if err != nil {
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{
			Error:   "internal_error",
			Message: err.Error(),
		})
		return
	}

	alert, err := h.alertRepo.Create(c.Request.Context(), userID, ticker.ID, req.Direction, req.Threshold)
	if err != nil {
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{
			Error:   "internal_error",
			Message: err.Error(),
		})
		return
	}

	c.JSON(http.StatusCreated, alert)
}

// List handles GET /alerts
func (h *AlertHandler) List(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, models.ErrorResponse{Error: "unauthorized"})
		return
	}

	alerts, err := h.alertRepo.ListByUser(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{
			Error:   "internal_error",
			Message: err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{"alerts": alerts})
}

// Acknowledge handles POST /alerts/:id/acknowledge
func (h *AlertHandler) Acknowledge(c *gin.Context) {
	h.transition(c, h.alertRepo.Acknowledge)
}

// Rearm handles POST /alerts/:id/rearm
func (h *AlertHandler) Rearm(c *gin.Context) {
	h.transition(c, h.alertRepo.Rearm)
}

// Delete handles DELETE /alerts/:id
func (h *AlertHandler) Delete(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, models.ErrorResponse{Error: "unauthorized"})
		return
	}

	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Error:   "bad_request",
			Message: "invalid alert ID",
		})
		return
	}

	if err := h.alertRepo.Delete(c.Request.Context(), userID, id); err != nil {
		if errors.Is(err, repository.ErrAlertNotFound) {
			c.JSON(http.StatusNotFound, models.ErrorResponse{
				Error:   "not_found",
				Message: "alert not found",
			})
			return
		}
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{
			Error:   "internal_error",
			Message: err.Error(),
		})
		return
	}

	c.Status(http.StatusNoContent)
}

// transition applies a guarded state change (acknowledge or rearm) to one
// of the user's alerts.
func (h *AlertHandler) transition(c *gin.Context, apply func(ctx context.Context, userID, id int64) error) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, models.ErrorResponse{Error: "unauthorized"})
		return
	}

	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Error:   "bad_request",
			Message: "invalid alert ID",
		})
		return
	}

	if err := apply(c.Request.Context(), userID, id); err != nil {
		if errors.Is(err, repository.ErrAlertNotFound) {
			c.JSON(http.StatusNotFound, models.ErrorResponse{
				Error:   "not_found",
				Message: "alert not found or not in the required state",
			})
			return
		}
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{
			Error:   "internal_error",
			Message: err.Error(),
		})
		return
	}

	c.Status(http.StatusNoContent)
}
