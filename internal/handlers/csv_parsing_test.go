package handlers

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tlemoine/peatrack/internal/models"
)

func TestParseTransactionsCSV(t *testing.T) {
	csvData := `symbol,side,quantity,price,fee,trade_date,notes
TTE.PA,buy,10,50.25,1.50,2024-01-15,first buy
AIR.PA,SELL,2,140.00,,2024-02-01,
,BUY,1,10,0,2024-03-01,skipped row
MC.PA,BUY,0.5,712.40,0.95,2024-03-10,fractional`

	rows, err := ParseTransactionsCSV(strings.NewReader(csvData))
	require.NoError(t, err)
	require.Len(t, rows, 3, "empty-symbol rows are skipped")

	assert.Equal(t, "TTE.PA", rows[0].Symbol)
	assert.Equal(t, models.SideBuy, rows[0].Side)
	assert.Equal(t, "10", rows[0].Quantity)
	assert.Equal(t, "1.50", rows[0].Fee)
	require.NotNil(t, rows[0].Notes)
	assert.Equal(t, "first buy", *rows[0].Notes)

	assert.Equal(t, models.SideSell, rows[1].Side)
	assert.Equal(t, "0", rows[1].Fee, "missing fee defaults to zero")
	assert.Nil(t, rows[1].Notes)

	assert.Equal(t, "0.5", rows[2].Quantity)
}

func TestParseTransactionsCSVMissingColumn(t *testing.T) {
	csvData := `symbol,side,quantity,price
TTE.PA,BUY,10,50.25`

	_, err := ParseTransactionsCSV(strings.NewReader(csvData))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "trade_date")
}

func TestParseTransactionsCSVWithoutOptionalColumns(t *testing.T) {
	csvData := `symbol,side,quantity,price,trade_date
TTE.PA,BUY,10,50.25,2024-01-15`

	rows, err := ParseTransactionsCSV(strings.NewReader(csvData))
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "0", rows[0].Fee)
	assert.Nil(t, rows[0].Notes)
}
