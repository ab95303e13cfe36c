package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/tlemoine/peatrack/internal/ledger"
	"github.com/tlemoine/peatrack/internal/middleware"
	"github.com/tlemoine/peatrack/internal/models"
	"github.com/tlemoine/peatrack/internal/repository"
	"github.com/tlemoine/peatrack/internal/services"
)

// TransactionHandler handles transaction endpoints
type TransactionHandler struct {
	ledgerSvc  *services.LedgerService
	ledgerRepo *repository.LedgerRepository
	tickerRepo *repository.TickerRepository
}

// NewTransactionHandler creates a new TransactionHandler
func NewTransactionHandler(ledgerSvc *services.LedgerService, ledgerRepo *repository.LedgerRepository, tickerRepo *repository.TickerRepository) *TransactionHandler {
	return &TransactionHandler{
		ledgerSvc:  ledgerSvc,
		ledgerRepo: ledgerRepo,
		tickerRepo: tickerRepo,
	}
}

// Create handles POST /transactions
func (h *TransactionHandler) Create(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, models.ErrorResponse{Error: "unauthorized"})
		return
	}

	var req models.CreateTransactionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Error:   "bad_request",
			Message: err.Error(),
		})
		return
	}

	tx, err := h.buildTransaction(c, userID, &req)
	if err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Error:   "bad_request",
			Message: err.Error(),
		})
		return
	}

	if err := h.ledgerSvc.ApplyTransaction(c.Request.Context(), tx); err != nil {
		writeLedgerError(c, err)
		return
	}

	c.JSON(http.StatusCreated, tx)
}

// Delete handles DELETE /transactions/:id
func (h *TransactionHandler) Delete(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, models.ErrorResponse{Error: "unauthorized"})
		return
	}

	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Error:   "bad_request",
			Message: "invalid transaction ID",
		})
		return
	}

	if err := h.ledgerSvc.DeleteTransaction(c.Request.Context(), userID, id); err != nil {
		if errors.Is(err, repository.ErrTransactionNotFound) {
			c.JSON(http.StatusNotFound, models.ErrorResponse{
				Error:   "not_found",
				Message: "transaction not found",
			})
			return
		}
		writeLedgerError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

// List handles GET /transactions
func (h *TransactionHandler) List(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, models.ErrorResponse{Error: "unauthorized"})
		return
	}

	txs, err := h.ledgerRepo.TransactionsByUser(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{
			Error:   "internal_error",
			Message: err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{"transactions": txs})
}

// Import handles POST /transactions/import with a CSV file upload.
// Rows are applied independently; a bad row is reported and skipped.
func (h *TransactionHandler) Import(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, models.ErrorResponse{Error: "unauthorized"})
		return
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Error:   "bad_request",
			Message: "missing CSV file upload",
		})
		return
	}
	file, err := fileHeader.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Error:   "bad_request",
			Message: err.Error(),
		})
		return
	}
	defer file.Close()

	rows, err := ParseTransactionsCSV(file)
	if err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Error:   "bad_request",
			Message: err.Error(),
		})
		return
	}

	result := models.ImportResult{}
	for i, row := range rows {
		tx, err := h.buildTransaction(c, userID, &row)
		if err == nil {
			err = h.ledgerSvc.ApplyTransaction(c.Request.Context(), tx)
		}
		if err != nil {
			result.Skipped++
			result.Errors = append(result.Errors, fmt.Sprintf("row %d (%s): %v", i+2, row.Symbol, err))
			continue
		}
		result.Imported++
	}

	c.JSON(http.StatusOK, result)
}

func (h *TransactionHandler) buildTransaction(c *gin.Context, userID int64, req *models.CreateTransactionRequest) (*models.Transaction, error) {
	qty, err := decimal.NewFromString(req.Quantity)
	if err != nil {
		return nil, fmt.Errorf("invalid quantity %q", req.Quantity)
	}
	price, err := decimal.NewFromString(req.Price)
	if err != nil {
		return nil, fmt.Errorf("invalid price %q", req.Price)
	}
	fee := decimal.Zero
	if req.Fee != "" {
		fee, err = decimal.NewFromString(req.Fee)
		if err != nil {
			return nil, fmt.Errorf("invalid fee %q", req.Fee)
		}
	}
	tradeDate, err := time.Parse("2006-01-02", req.TradeDate)
	if err != nil {
		return nil, fmt.Errorf("invalid trade_date %q, expected YYYY-MM-DD", req.TradeDate)
	}

	ticker, err := h.tickerRepo.GetOrCreate(c.Request.Context(), req.Symbol, "", "", "")
	if err != nil {
		return nil, err
	}

	return &models.Transaction{
		UserID:    userID,
		TickerID:  ticker.ID,
		Side:      req.Side,
		Quantity:  qty,
		Price:     price,
		Fee:       fee,
		TradeDate: tradeDate,
		Notes:     req.Notes,
	}, nil
}

// writeLedgerError maps ledger service errors to HTTP responses
func writeLedgerError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, ledger.ErrInsufficientPosition):
		c.JSON(http.StatusUnprocessableEntity, models.ErrorResponse{
			Error:   "insufficient_position",
			Message: err.Error(),
		})
	case errors.Is(err, services.ErrConcurrencyConflict):
		c.JSON(http.StatusConflict, models.ErrorResponse{
			Error:   "conflict",
			Message: "another change to this instrument is in progress, retry shortly",
		})
	case errors.Is(err, services.ErrInvalidTransaction):
		c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Error:   "bad_request",
			Message: err.Error(),
		})
	default:
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{
			Error:   "internal_error",
			Message: err.Error(),
		})
	}
}
