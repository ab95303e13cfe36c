package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"github.com/tlemoine/peatrack/internal/ledger"
	"github.com/tlemoine/peatrack/internal/models"
)

// ErrTransactionNotFound is returned when a transaction does not exist
var ErrTransactionNotFound = errors.New("transaction not found")

// LedgerRepository persists transactions, lots, and realized gains.
// Every mutation runs in a single database transaction so the ledger is
// never observable in a half-applied state.
//
// Numeric columns are selected with ::text casts and scanned through
// decimal's sql.Scanner to avoid float round-trips.
type LedgerRepository struct {
	pool *pgxpool.Pool
}

// NewLedgerRepository creates a new LedgerRepository
func NewLedgerRepository(pool *pgxpool.Pool) *LedgerRepository {
	return &LedgerRepository{pool: pool}
}

const transactionColumns = `
	id, user_id, ticker_id, side,
	quantity::text, price::text, fee::text,
	trade_date, notes, created_at
`

func scanTransaction(row pgx.Row) (*models.Transaction, error) {
	t := &models.Transaction{}
	err := row.Scan(
		&t.ID, &t.UserID, &t.TickerID, &t.Side,
		&t.Quantity, &t.Price, &t.Fee,
		&t.TradeDate, &t.Notes, &t.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return t, nil
}

// GetTransaction retrieves one transaction by ID
func (r *LedgerRepository) GetTransaction(ctx context.Context, id int64) (*models.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE id = $1`
	t, err := scanTransaction(r.pool.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrTransactionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get transaction: %w", err)
	}
	return t, nil
}

// Transactions returns a user's transactions for one ticker in replay order
// (trade_date, then id).
func (r *LedgerRepository) Transactions(ctx context.Context, userID, tickerID int64) ([]models.Transaction, error) {
	query := `
		SELECT ` + transactionColumns + `
		FROM transactions
		WHERE user_id = $1 AND ticker_id = $2
		ORDER BY trade_date ASC, id ASC
	`
	rows, err := r.pool.Query(ctx, query, userID, tickerID)
	if err != nil {
		return nil, fmt.Errorf("failed to query transactions: %w", err)
	}
	defer rows.Close()

	var txs []models.Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		txs = append(txs, *t)
	}
	return txs, rows.Err()
}

// TransactionsByUser returns all of a user's transactions, newest first
func (r *LedgerRepository) TransactionsByUser(ctx context.Context, userID int64) ([]models.Transaction, error) {
	query := `
		SELECT ` + transactionColumns + `
		FROM transactions
		WHERE user_id = $1
		ORDER BY trade_date DESC, id DESC
	`
	rows, err := r.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query transactions: %w", err)
	}
	defer rows.Close()

	var txs []models.Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		txs = append(txs, *t)
	}
	return txs, rows.Err()
}

// OpenLots returns a user's open lots for one ticker in FIFO order
func (r *LedgerRepository) OpenLots(ctx context.Context, userID, tickerID int64) ([]*models.Lot, error) {
	query := `
		SELECT id, user_id, ticker_id, transaction_id, opened_at,
		       original_qty::text, remaining_qty::text, cost_basis::text
		FROM lots
		WHERE user_id = $1 AND ticker_id = $2 AND remaining_qty > 0
		ORDER BY opened_at ASC, transaction_id ASC
	`
	rows, err := r.pool.Query(ctx, query, userID, tickerID)
	if err != nil {
		return nil, fmt.Errorf("failed to query lots: %w", err)
	}
	defer rows.Close()

	var lots []*models.Lot
	for rows.Next() {
		l := &models.Lot{}
		err := rows.Scan(
			&l.ID, &l.UserID, &l.TickerID, &l.TransactionID, &l.OpenedAt,
			&l.OriginalQty, &l.RemainingQty, &l.CostBasis,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan lot: %w", err)
		}
		lots = append(lots, l)
	}
	return lots, rows.Err()
}

// OpenLotsByUser returns all of a user's open lots across tickers, FIFO
// ordered within each ticker.
func (r *LedgerRepository) OpenLotsByUser(ctx context.Context, userID int64) ([]*models.Lot, error) {
	query := `
		SELECT id, user_id, ticker_id, transaction_id, opened_at,
		       original_qty::text, remaining_qty::text, cost_basis::text
		FROM lots
		WHERE user_id = $1 AND remaining_qty > 0
		ORDER BY ticker_id ASC, opened_at ASC, transaction_id ASC
	`
	rows, err := r.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query lots: %w", err)
	}
	defer rows.Close()

	var lots []*models.Lot
	for rows.Next() {
		l := &models.Lot{}
		err := rows.Scan(
			&l.ID, &l.UserID, &l.TickerID, &l.TransactionID, &l.OpenedAt,
			&l.OriginalQty, &l.RemainingQty, &l.CostBasis,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan lot: %w", err)
		}
		lots = append(lots, l)
	}
	return lots, rows.Err()
}

// CommitBuy atomically inserts a buy transaction and its new lot.
// On return tx.ID and lot.ID/TransactionID are populated.
func (r *LedgerRepository) CommitBuy(ctx context.Context, tx *models.Transaction, lot *models.Lot) error {
	dbTx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer dbTx.Rollback(ctx)

	if err := insertTransaction(ctx, dbTx, tx); err != nil {
		return err
	}
	lot.TransactionID = tx.ID
	if err := insertLot(ctx, dbTx, lot); err != nil {
		return err
	}

	return dbTx.Commit(ctx)
}

// CommitSell atomically inserts a sell transaction, applies its lot
// decrements, and records one realized gain per touched lot. The fills
// must come from a ledger match against the lots currently stored.
func (r *LedgerRepository) CommitSell(ctx context.Context, tx *models.Transaction, fills []ledger.Fill) error {
	dbTx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer dbTx.Rollback(ctx)

	if err := insertTransaction(ctx, dbTx, tx); err != nil {
		return err
	}

	for _, f := range fills {
		_, err := dbTx.Exec(ctx,
			`UPDATE lots SET remaining_qty = $2 WHERE id = $1`,
			f.Lot.ID, f.Lot.RemainingQty.String(),
		)
		if err != nil {
			return fmt.Errorf("failed to update lot %d: %w", f.Lot.ID, err)
		}
	}

	gains := ledger.FillsToGains(*tx, fills)
	for i := range gains {
		if err := insertRealizedGain(ctx, dbTx, &gains[i]); err != nil {
			return err
		}
	}

	return dbTx.Commit(ctx)
}

// ReplaceInstrument deletes one transaction and rewrites the instrument's
// derived state (lots and realized gains) from a full replay, all
// atomically. The lots must carry nil IDs; they are inserted fresh and the
// matches' fills pick up the new IDs through their lot pointers.
func (r *LedgerRepository) ReplaceInstrument(ctx context.Context, userID, tickerID, deleteTxID int64, lots []*models.Lot, matches []ledger.SellMatch) error {
	dbTx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer dbTx.Rollback(ctx)

	_, err = dbTx.Exec(ctx,
		`DELETE FROM realized_gains WHERE user_id = $1 AND ticker_id = $2`,
		userID, tickerID,
	)
	if err != nil {
		return fmt.Errorf("failed to clear realized gains: %w", err)
	}
	_, err = dbTx.Exec(ctx,
		`DELETE FROM lots WHERE user_id = $1 AND ticker_id = $2`,
		userID, tickerID,
	)
	if err != nil {
		return fmt.Errorf("failed to clear lots: %w", err)
	}

	tag, err := dbTx.Exec(ctx,
		`DELETE FROM transactions WHERE id = $1 AND user_id = $2 AND ticker_id = $3`,
		deleteTxID, userID, tickerID,
	)
	if err != nil {
		return fmt.Errorf("failed to delete transaction: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrTransactionNotFound
	}

	for _, lot := range lots {
		if err := insertLot(ctx, dbTx, lot); err != nil {
			return err
		}
	}
	for _, m := range matches {
		gains := ledger.FillsToGains(m.Tx, m.Fills)
		for i := range gains {
			if err := insertRealizedGain(ctx, dbTx, &gains[i]); err != nil {
				return err
			}
		}
	}

	return dbTx.Commit(ctx)
}

// RealizedGains returns a user's realized gains for one ticker
func (r *LedgerRepository) RealizedGains(ctx context.Context, userID, tickerID int64) ([]models.RealizedGain, error) {
	query := `
		SELECT id, user_id, ticker_id, sell_transaction_id, lot_id,
		       quantity::text, proceeds::text, cost_basis::text, fee::text, pnl::text,
		       realized_at
		FROM realized_gains
		WHERE user_id = $1 AND ticker_id = $2
		ORDER BY realized_at ASC, id ASC
	`
	rows, err := r.pool.Query(ctx, query, userID, tickerID)
	if err != nil {
		return nil, fmt.Errorf("failed to query realized gains: %w", err)
	}
	defer rows.Close()

	var gains []models.RealizedGain
	for rows.Next() {
		var g models.RealizedGain
		err := rows.Scan(
			&g.ID, &g.UserID, &g.TickerID, &g.SellTransactionID, &g.LotID,
			&g.Quantity, &g.Proceeds, &g.CostBasis, &g.Fee, &g.PnL,
			&g.RealizedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan realized gain: %w", err)
		}
		gains = append(gains, g)
	}
	return gains, rows.Err()
}

// RealizedPnLByTicker sums realized P&L per ticker for a user
func (r *LedgerRepository) RealizedPnLByTicker(ctx context.Context, userID int64) (map[int64]decimal.Decimal, error) {
	query := `
		SELECT ticker_id, SUM(pnl)::text
		FROM realized_gains
		WHERE user_id = $1
		GROUP BY ticker_id
	`
	rows, err := r.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query realized pnl: %w", err)
	}
	defer rows.Close()

	totals := make(map[int64]decimal.Decimal)
	for rows.Next() {
		var tickerID int64
		var pnl decimal.Decimal
		if err := rows.Scan(&tickerID, &pnl); err != nil {
			return nil, fmt.Errorf("failed to scan realized pnl: %w", err)
		}
		totals[tickerID] = pnl
	}
	return totals, rows.Err()
}

// UserIDsWithTransactions returns every user holding at least one transaction
func (r *LedgerRepository) UserIDsWithTransactions(ctx context.Context) ([]int64, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT DISTINCT user_id FROM transactions ORDER BY user_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query user ids: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan user id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func insertTransaction(ctx context.Context, dbTx pgx.Tx, t *models.Transaction) error {
	query := `
		INSERT INTO transactions (user_id, ticker_id, side, quantity, price, fee, trade_date, notes)
		VALUES ($1, $2, $3, $4::numeric, $5::numeric, $6::numeric, $7, $8)
		RETURNING id, created_at
	`
	err := dbTx.QueryRow(ctx, query,
		t.UserID, t.TickerID, t.Side,
		t.Quantity.String(), t.Price.String(), t.Fee.String(),
		t.TradeDate, t.Notes,
	).Scan(&t.ID, &t.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert transaction: %w", err)
	}
	return nil
}

func insertLot(ctx context.Context, dbTx pgx.Tx, l *models.Lot) error {
	query := `
		INSERT INTO lots (user_id, ticker_id, transaction_id, opened_at, original_qty, remaining_qty, cost_basis)
		VALUES ($1, $2, $3, $4, $5::numeric, $6::numeric, $7::numeric)
		RETURNING id
	`
	err := dbTx.QueryRow(ctx, query,
		l.UserID, l.TickerID, l.TransactionID, l.OpenedAt,
		l.OriginalQty.String(), l.RemainingQty.String(), l.CostBasis.String(),
	).Scan(&l.ID)
	if err != nil {
		return fmt.Errorf("failed to insert lot: %w", err)
	}
	return nil
}

func insertRealizedGain(ctx context.Context, dbTx pgx.Tx, g *models.RealizedGain) error {
	query := `
		INSERT INTO realized_gains (user_id, ticker_id, sell_transaction_id, lot_id, quantity, proceeds, cost_basis, fee, pnl, realized_at)
		VALUES ($1, $2, $3, $4, $5::numeric, $6::numeric, $7::numeric, $8::numeric, $9::numeric, $10)
		RETURNING id
	`
	err := dbTx.QueryRow(ctx, query,
		g.UserID, g.TickerID, g.SellTransactionID, g.LotID,
		g.Quantity.String(), g.Proceeds.String(), g.CostBasis.String(), g.Fee.String(), g.PnL.String(),
		g.RealizedAt,
	).Scan(&g.ID)
	if err != nil {
		return fmt.Errorf("failed to insert realized gain: %w", err)
	}
	return nil
}
