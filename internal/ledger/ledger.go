// Package ledger implements FIFO lot matching for buy/sell transactions.
// All functions are pure with respect to storage: they operate on in-memory
// lots and leave persistence to the caller.
package ledger

import (
	"errors"
	"sort"

	"github.com/shopspring/decimal"
	"github.com/tlemoine/peatrack/internal/models"
)

// ErrInsufficientPosition is returned when a sell exceeds the total
// remaining quantity across open lots. The ledger is left untouched.
var ErrInsufficientPosition = errors.New("sell quantity exceeds held position")

// Fill records the portion of a sell matched against one lot.
// Lot points at the matched lot, whose RemainingQty has already been
// decremented by Quantity.
type Fill struct {
	Lot      *models.Lot
	Quantity decimal.Decimal
	Proceeds decimal.Decimal
	Fee      decimal.Decimal
	Cost     decimal.Decimal
	PnL      decimal.Decimal
}

// SellMatch groups the fills produced by one sell transaction
type SellMatch struct {
	Tx    models.Transaction
	Fills []Fill
}

// CostBasis returns the per-share cost of a buy: (price×qty + fee) / qty.
func CostBasis(price, qty, fee decimal.Decimal) decimal.Decimal {
	return price.Mul(qty).Add(fee).Div(qty)
}

// OpenLot creates the lot for a buy transaction
func OpenLot(tx models.Transaction) models.Lot {
	return models.Lot{
		UserID:        tx.UserID,
		TickerID:      tx.TickerID,
		TransactionID: tx.ID,
		OpenedAt:      tx.TradeDate,
		OriginalQty:   tx.Quantity,
		RemainingQty:  tx.Quantity,
		CostBasis:     CostBasis(tx.Price, tx.Quantity, tx.Fee),
	}
}

// SortLots orders lots into FIFO matching order: opened date ascending,
// ties broken by origin transaction id.
func SortLots(lots []*models.Lot) {
	sort.SliceStable(lots, func(i, j int) bool {
		if !lots[i].OpenedAt.Equal(lots[j].OpenedAt) {
			return lots[i].OpenedAt.Before(lots[j].OpenedAt)
		}
		return lots[i].TransactionID < lots[j].TransactionID
	})
}

// SortTransactions orders transactions chronologically, ties broken by id.
// This is the canonical replay order.
func SortTransactions(txs []models.Transaction) {
	sort.SliceStable(txs, func(i, j int) bool {
		if !txs[i].TradeDate.Equal(txs[j].TradeDate) {
			return txs[i].TradeDate.Before(txs[j].TradeDate)
		}
		return txs[i].ID < txs[j].ID
	})
}

// MatchSell consumes open lots in FIFO order to cover a sell transaction.
// Fees and proceeds are apportioned pro-rata by matched quantity; any
// rounding remainder of the fee lands on the last fill so the shares always
// sum exactly to the transaction fee.
//
// The lots slice must already be in FIFO order (see SortLots). If the total
// remaining quantity is insufficient, no lot is modified and
// ErrInsufficientPosition is returned.
func MatchSell(lots []*models.Lot, tx models.Transaction) ([]Fill, error) {
	total := decimal.Zero
	for _, lot := range lots {
		total = total.Add(lot.RemainingQty)
	}
	if total.LessThan(tx.Quantity) {
		return nil, ErrInsufficientPosition
	}

	var fills []Fill
	left := tx.Quantity
	feeAssigned := decimal.Zero

	for _, lot := range lots {
		if left.IsZero() {
			break
		}
		if lot.RemainingQty.IsZero() {
			continue
		}

		matched := decimal.Min(lot.RemainingQty, left)
		lot.RemainingQty = lot.RemainingQty.Sub(matched)
		left = left.Sub(matched)

		proceeds := tx.Price.Mul(matched)
		cost := lot.CostBasis.Mul(matched)

		var feeShare decimal.Decimal
		if left.IsZero() {
			// last fill absorbs the rounding remainder
			feeShare = tx.Fee.Sub(feeAssigned)
		} else {
			feeShare = tx.Fee.Mul(matched).Div(tx.Quantity)
		}
		feeAssigned = feeAssigned.Add(feeShare)

		fills = append(fills, Fill{
			Lot:      lot,
			Quantity: matched,
			Proceeds: proceeds,
			Fee:      feeShare,
			Cost:     cost,
			PnL:      proceeds.Sub(feeShare).Sub(cost),
		})
	}

	return fills, nil
}

// FillsToGains converts the fills of a sell into RealizedGain records.
// Lot IDs must be resolved before calling (fills reference lots in place).
func FillsToGains(tx models.Transaction, fills []Fill) []models.RealizedGain {
	gains := make([]models.RealizedGain, 0, len(fills))
	for _, f := range fills {
		gains = append(gains, models.RealizedGain{
			UserID:            tx.UserID,
			TickerID:          tx.TickerID,
			SellTransactionID: tx.ID,
			LotID:             f.Lot.ID,
			Quantity:          f.Quantity,
			Proceeds:          f.Proceeds,
			CostBasis:         f.Cost,
			Fee:               f.Fee,
			PnL:               f.PnL,
			RealizedAt:        tx.TradeDate,
		})
	}
	return gains
}

// Replay rebuilds the full lot state and sell matches of one instrument
// from its chronological transaction history, starting from empty state.
// Used after a correction (delete + recreate); the tracker never edits
// historical matches in place.
func Replay(txs []models.Transaction) ([]*models.Lot, []SellMatch, error) {
	SortTransactions(txs)

	var lots []*models.Lot
	var matches []SellMatch

	for _, tx := range txs {
		switch tx.Side {
		case models.SideBuy:
			lot := OpenLot(tx)
			lots = append(lots, &lot)
		case models.SideSell:
			fills, err := MatchSell(lots, tx)
			if err != nil {
				return nil, nil, err
			}
			matches = append(matches, SellMatch{Tx: tx, Fills: fills})
		}
	}

	return lots, matches, nil
}
