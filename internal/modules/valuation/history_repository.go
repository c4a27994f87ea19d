// Package valuation computes total portfolio worth on two cadences: a
// fast broadcast-only tick and a slower durable tick persisted with a
// rolling retention window.
package valuation

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/stockyhq/stocky/internal/database"
	"github.com/stockyhq/stocky/internal/domain"
)

// HistoryRepository owns valuation sample retention on history.db.
// Storage is bounded: every Record evicts samples older than the
// retention window, with the cutoff re-derived from the wall clock so the
// bound survives process restarts.
type HistoryRepository struct {
	historyDB *sql.DB
	retention time.Duration
	log       zerolog.Logger
}

// NewHistoryRepository creates a new history repository.
func NewHistoryRepository(historyDB *sql.DB, retention time.Duration, log zerolog.Logger) *HistoryRepository {
	return &HistoryRepository{
		historyDB: historyDB,
		retention: retention,
		log:       log.With().Str("repo", "history").Logger(),
	}
}

// Record appends a sample and synchronously evicts everything older than
// the retention window, in one transaction.
func (r *HistoryRepository) Record(sample domain.ValuationSample) error {
	cutoff := time.Now().Add(-r.retention).Unix()

	err := database.WithTransaction(r.historyDB, func(tx *sql.Tx) error {
		_, err := tx.Exec(
			"INSERT INTO worth_history (timestamp, total_worth) VALUES (?, ?)",
			sample.Timestamp.Unix(),
			sample.TotalWorth.String(),
		)
		if err != nil {
			return fmt.Errorf("failed to insert valuation sample: %w", err)
		}

		if _, err := tx.Exec("DELETE FROM worth_history WHERE timestamp < ?", cutoff); err != nil {
			return fmt.Errorf("failed to evict expired samples: %w", err)
		}

		return nil
	})
	if err != nil {
		return err
	}

	r.log.Debug().
		Str("total_worth", sample.TotalWorth.String()).
		Time("timestamp", sample.Timestamp).
		Msg("Valuation sample recorded")

	return nil
}

// Query returns samples within [from, to] ascending by timestamp. Zero
// values widen the range to everything retained.
func (r *HistoryRepository) Query(from, to time.Time) ([]domain.ValuationSample, error) {
	fromUnix := int64(0)
	if !from.IsZero() {
		fromUnix = from.Unix()
	}
	toUnix := time.Now().Unix()
	if !to.IsZero() {
		toUnix = to.Unix()
	}

	rows, err := r.historyDB.Query(
		"SELECT timestamp, total_worth FROM worth_history WHERE timestamp >= ? AND timestamp <= ? ORDER BY timestamp ASC",
		fromUnix, toUnix,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query valuation history: %w", err)
	}
	defer rows.Close()

	var samples []domain.ValuationSample
	for rows.Next() {
		var ts int64
		var worthStr string
		if err := rows.Scan(&ts, &worthStr); err != nil {
			return nil, fmt.Errorf("failed to scan valuation sample: %w", err)
		}

		worth, err := decimal.NewFromString(worthStr)
		if err != nil {
			return nil, fmt.Errorf("malformed total_worth %q: %w", worthStr, err)
		}

		samples = append(samples, domain.ValuationSample{
			Timestamp:  time.Unix(ts, 0).UTC(),
			TotalWorth: worth,
		})
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating valuation samples: %w", err)
	}

	return samples, nil
}

// Count returns the number of retained samples.
func (r *HistoryRepository) Count() (int, error) {
	var count int
	err := r.historyDB.QueryRow("SELECT COUNT(*) FROM worth_history").Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count valuation samples: %w", err)
	}
	return count, nil
}
