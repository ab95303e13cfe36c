package handlers

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"

	"github.com/tlemoine/peatrack/internal/models"
)

// ParseTransactionsCSV parses a transaction import CSV into request rows.
// Required columns: symbol, side, quantity, price, trade_date
// Optional columns: fee, notes (missing columns default to "")
// Rows with an empty symbol are skipped.
func ParseTransactionsCSV(r io.Reader) ([]models.CreateTransactionRequest, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV header: %w", err)
	}

	colIdx := make(map[string]int)
	for i, col := range header {
		colIdx[strings.ToLower(strings.TrimSpace(col))] = i
	}

	for _, col := range []string{"symbol", "side", "quantity", "price", "trade_date"} {
		if _, ok := colIdx[col]; !ok {
			return nil, fmt.Errorf("missing required column: %s", col)
		}
	}

	optionalCol := func(record []string, col string) string {
		idx, ok := colIdx[col]
		if !ok || idx >= len(record) {
			return ""
		}
		return strings.TrimSpace(record[idx])
	}

	var rows []models.CreateTransactionRequest
	rowNum := 1
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("row %d: failed to read CSV record: %w", rowNum+1, err)
		}
		rowNum++

		symbol := strings.TrimSpace(record[colIdx["symbol"]])
		if symbol == "" {
			continue
		}

		fee := optionalCol(record, "fee")
		if fee == "" {
			fee = "0"
		}

		row := models.CreateTransactionRequest{
			Symbol:    symbol,
			Side:      models.Side(strings.ToUpper(strings.TrimSpace(record[colIdx["side"]]))),
			Quantity:  strings.TrimSpace(record[colIdx["quantity"]]),
			Price:     strings.TrimSpace(record[colIdx["price"]]),
			Fee:       fee,
			TradeDate: strings.TrimSpace(record[colIdx["trade_date"]]),
		}
		if notes := optionalCol(record, "notes"); notes != "" {
			row.Notes = &notes
		}
		rows = append(rows, row)
	}

	return rows, nil
}
