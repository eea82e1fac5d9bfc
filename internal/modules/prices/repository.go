// Package prices stores imported closing prices and serves lookups near a
// date. Prices are optional inputs; scorers that need one and cannot get it
// mark the sub-factor as not computable instead of guessing.
package prices

import (
	"database/sql"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/fundtrail/fundtrail/internal/domain"
)

// lookbackDays bounds how far before the requested date a price may fall.
// A quarter-end lookup tolerates the preceding week (holidays, weekends).
const lookbackDays = 7

// Repository stores and serves price marks from the cache database.
type Repository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewRepository creates a price repository
func NewRepository(db *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With().Str("repo", "prices").Logger(),
	}
}

// Save stores one closing price.
func (r *Repository) Save(ticker string, date time.Time, close float64) error {
	_, err := r.db.Exec(`
		INSERT INTO prices (ticker, date, close) VALUES (?, ?, ?)
		ON CONFLICT(ticker, date) DO UPDATE SET close = excluded.close`,
		ticker, date.Format("2006-01-02"), close)
	if err != nil {
		return fmt.Errorf("failed to save price %s@%s: %w", ticker, date.Format("2006-01-02"), err)
	}
	return nil
}

// GetPrice returns the most recent close at or before date, within the
// lookback window. Satisfies domain.PriceProvider.
func (r *Repository) GetPrice(ticker string, date time.Time) (float64, error) {
	floor := date.AddDate(0, 0, -lookbackDays)

	var close float64
	err := r.db.QueryRow(`
		SELECT close FROM prices
		WHERE ticker = ? AND date <= ? AND date >= ?
		ORDER BY date DESC LIMIT 1`,
		ticker, date.Format("2006-01-02"), floor.Format("2006-01-02")).Scan(&close)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, domain.ErrPriceUnavailable
	}
	if err != nil {
		return 0, fmt.Errorf("failed to look up price %s@%s: %w", ticker, date.Format("2006-01-02"), err)
	}
	return close, nil
}

// ImportCSV loads a price series from a CSV with a ticker,date,close header.
// Dates are YYYY-MM-DD. Returns the number of rows imported; malformed rows
// abort the import.
func (r *Repository) ImportCSV(reader io.Reader) (int, error) {
	cr := csv.NewReader(reader)

	header, err := cr.Read()
	if err != nil {
		return 0, fmt.Errorf("failed to read price CSV header: %w", err)
	}
	if len(header) < 3 {
		return 0, fmt.Errorf("price CSV needs ticker,date,close columns")
	}

	imported := 0
	for {
		record, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return imported, fmt.Errorf("failed to read price CSV row: %w", err)
		}
		if len(record) < 3 {
			return imported, fmt.Errorf("short price CSV row %v", record)
		}

		date, err := time.Parse("2006-01-02", record[1])
		if err != nil {
			return imported, fmt.Errorf("bad date %q in price CSV: %w", record[1], err)
		}
		close, err := strconv.ParseFloat(record[2], 64)
		if err != nil {
			return imported, fmt.Errorf("bad close %q in price CSV: %w", record[2], err)
		}

		if err := r.Save(record[0], date, close); err != nil {
			return imported, err
		}
		imported++
	}

	r.log.Info().Int("imported", imported).Msg("Price import complete")
	return imported, nil
}

// ImportFile loads a price series CSV from disk.
func (r *Repository) ImportFile(path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("failed to open price CSV: %w", err)
	}
	defer f.Close()
	return r.ImportCSV(f)
}

// Count returns the number of stored price marks.
func (r *Repository) Count() (int, error) {
	var n int
	if err := r.db.QueryRow(`SELECT COUNT(*) FROM prices`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count prices: %w", err)
	}
	return n, nil
}
