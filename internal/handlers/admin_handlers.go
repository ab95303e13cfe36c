package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tlemoine/peatrack/internal/models"
	"github.com/tlemoine/peatrack/internal/repository"
	"github.com/tlemoine/peatrack/internal/services"
)

// AdminHandler handles operational endpoints: manual sync and queue inspection
type AdminHandler struct {
	syncSvc      *services.SyncService
	backfillRepo *repository.BackfillRepository
}

// NewAdminHandler creates a new AdminHandler
func NewAdminHandler(syncSvc *services.SyncService, backfillRepo *repository.BackfillRepository) *AdminHandler {
	return &AdminHandler{
		syncSvc:      syncSvc,
		backfillRepo: backfillRepo,
	}
}

// TriggerSync handles POST /admin/sync, running a sync pass immediately
func (h *AdminHandler) TriggerSync(c *gin.Context) {
	report, err := h.syncSvc.RunDailySync(c.Request.Context(), time.Now().UTC())
	if err != nil {
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{
			Error:   "internal_error",
			Message: err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, report)
}

// ListBackfills handles GET /admin/backfill?limit=
func (h *AdminHandler) ListBackfills(c *gin.Context) {
	limit := 50
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			c.JSON(http.StatusBadRequest, models.ErrorResponse{
				Error:   "bad_request",
				Message: "limit must be a positive integer",
			})
			return
		}
		limit = parsed
	}

	reqs, err := h.backfillRepo.List(c.Request.Context(), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{
			Error:   "internal_error",
			Message: err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{"backfills": reqs})
}
