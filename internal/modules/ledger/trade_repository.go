package ledger

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/stockyhq/stocky/internal/domain"
)

// tradesColumns is the column list for the trades table. Kept explicit to
// avoid SELECT * breaking when the schema grows; order must match the scan
// helpers below.
const tradesColumns = `id, trade_id, ticker, action, quantity, price, executed_at, created_at`

// TradeRepository handles trade persistence on ledger.db. The database is
// opened with the ledger profile, so a successful Append is fsynced before
// it returns (write-then-ack).
type TradeRepository struct {
	ledgerDB *sql.DB
	log      zerolog.Logger
}

// NewTradeRepository creates a new trade repository.
func NewTradeRepository(ledgerDB *sql.DB, log zerolog.Logger) *TradeRepository {
	return &TradeRepository{
		ledgerDB: ledgerDB,
		log:      log.With().Str("repo", "trade").Logger(),
	}
}

// Append validates and inserts a new trade record. The row is never
// updated afterwards.
func (r *TradeRepository) Append(trade Trade) error {
	if err := trade.Validate(); err != nil {
		return fmt.Errorf("failed to append trade: %w", err)
	}

	query := `
		INSERT INTO trades
		(trade_id, ticker, action, quantity, price, executed_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.ledgerDB.Exec(query,
		trade.TradeID,
		strings.ToUpper(strings.TrimSpace(trade.Ticker)),
		string(trade.Action),
		trade.Quantity,
		trade.Price.String(),
		trade.ExecutedAt.Unix(),
		time.Now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to append trade: %w", err)
	}

	r.log.Info().
		Str("ticker", trade.Ticker).
		Str("action", string(trade.Action)).
		Int64("quantity", trade.Quantity).
		Str("price", trade.Price.String()).
		Msg("Trade appended")

	return nil
}

// AppendTx inserts a trade inside an existing transaction. Used when a
// caller needs the append to commit atomically with other work.
func (r *TradeRepository) AppendTx(tx *sql.Tx, trade Trade) error {
	if err := trade.Validate(); err != nil {
		return fmt.Errorf("failed to append trade: %w", err)
	}

	query := `
		INSERT INTO trades
		(trade_id, ticker, action, quantity, price, executed_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	_, err := tx.Exec(query,
		trade.TradeID,
		strings.ToUpper(strings.TrimSpace(trade.Ticker)),
		string(trade.Action),
		trade.Quantity,
		trade.Price.String(),
		trade.ExecutedAt.Unix(),
		time.Now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to append trade: %w", err)
	}

	return nil
}

// All returns every trade in append order. This is the replay path: the
// accountant rebuilds lot state from this sequence, so ordering is by the
// autoincrement id, not wall-clock time.
func (r *TradeRepository) All() ([]Trade, error) {
	query := "SELECT " + tradesColumns + " FROM trades ORDER BY id ASC"

	rows, err := r.ledgerDB.Query(query)
	if err != nil {
		return nil, fmt.Errorf("failed to query trades: %w", err)
	}
	defer rows.Close()

	return r.collectTrades(rows)
}

// GetByTicker returns all trades for one ticker in append order.
func (r *TradeRepository) GetByTicker(ticker string) ([]Trade, error) {
	query := "SELECT " + tradesColumns + " FROM trades WHERE ticker = ? ORDER BY id ASC"

	rows, err := r.ledgerDB.Query(query, strings.ToUpper(strings.TrimSpace(ticker)))
	if err != nil {
		return nil, fmt.Errorf("failed to query trades by ticker: %w", err)
	}
	defer rows.Close()

	return r.collectTrades(rows)
}

// GetHistory returns the most recent trades, newest first.
func (r *TradeRepository) GetHistory(limit int) ([]Trade, error) {
	query := "SELECT " + tradesColumns + " FROM trades ORDER BY id DESC LIMIT ?"

	rows, err := r.ledgerDB.Query(query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query trade history: %w", err)
	}
	defer rows.Close()

	return r.collectTrades(rows)
}

// Count returns the number of trades in the ledger.
func (r *TradeRepository) Count() (int, error) {
	var count int
	err := r.ledgerDB.QueryRow("SELECT COUNT(*) FROM trades").Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count trades: %w", err)
	}
	return count, nil
}

// LastTradeTimestamp returns when the most recent trade executed, or nil
// for an empty ledger.
func (r *TradeRepository) LastTradeTimestamp() (*time.Time, error) {
	var executedAt sql.NullInt64
	err := r.ledgerDB.QueryRow("SELECT executed_at FROM trades ORDER BY id DESC LIMIT 1").Scan(&executedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get last trade timestamp: %w", err)
	}
	if !executedAt.Valid {
		return nil, nil
	}

	t := time.Unix(executedAt.Int64, 0).UTC()
	return &t, nil
}

// collectTrades scans all rows into trades.
func (r *TradeRepository) collectTrades(rows *sql.Rows) ([]Trade, error) {
	var trades []Trade
	for rows.Next() {
		trade, err := scanTrade(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan trade: %w", err)
		}
		trades = append(trades, trade)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating trades: %w", err)
	}

	return trades, nil
}

func scanTrade(rows *sql.Rows) (Trade, error) {
	var trade Trade
	var action string
	var priceStr string
	var executedAt, createdAt int64

	err := rows.Scan(
		&trade.ID,
		&trade.TradeID,
		&trade.Ticker,
		&action,
		&trade.Quantity,
		&priceStr,
		&executedAt,
		&createdAt,
	)
	if err != nil {
		return trade, err
	}

	price, err := decimal.NewFromString(priceStr)
	if err != nil {
		return trade, fmt.Errorf("malformed price %q: %w", priceStr, err)
	}

	trade.Action = domain.TradeAction(action)
	trade.Price = price
	trade.ExecutedAt = time.Unix(executedAt, 0).UTC()
	trade.CreatedAt = time.Unix(createdAt, 0).UTC()
	trade.Ticker = strings.ToUpper(strings.TrimSpace(trade.Ticker))

	return trade, nil
}
