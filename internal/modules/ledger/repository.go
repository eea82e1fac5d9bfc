// Package ledger stores the reconciled activity ledger and the holdings
// timeline it was derived from. A manager's rows are rebuilt wholesale in a
// single transaction; partially updated managers are never visible.
package ledger

import (
	"database/sql"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"github.com/rs/zerolog"

	"github.com/fundtrail/fundtrail/internal/database"
	"github.com/fundtrail/fundtrail/internal/domain"
)

// Repository handles ledger database operations
type Repository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewRepository creates a new ledger repository
func NewRepository(db *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With().Str("repo", "ledger").Logger(),
	}
}

// ReplaceManager atomically replaces a manager's holdings and activities.
// The activity set must be internally consistent: at most one record per
// (ticker, quarter), in ascending quarter order. A violation aborts the
// transaction for this manager only; other managers' rows are untouched.
func (r *Repository) ReplaceManager(managerID string, holdings []domain.HoldingRecord, activities []domain.ActivityRecord) error {
	if err := checkInvariants(managerID, activities); err != nil {
		return err
	}

	return database.WithTransaction(r.db, func(tx *sql.Tx) error {
		if _, err := tx.Exec(`DELETE FROM holdings WHERE manager_id = ?`, managerID); err != nil {
			return fmt.Errorf("failed to clear holdings for %s: %w", managerID, err)
		}
		if _, err := tx.Exec(`DELETE FROM activities WHERE manager_id = ?`, managerID); err != nil {
			return fmt.Errorf("failed to clear activities for %s: %w", managerID, err)
		}

		for _, h := range holdings {
			_, err := tx.Exec(`
				INSERT INTO holdings (manager_id, ticker, quarter, quarter_index, shares, value_usd, pct_of_portfolio)
				VALUES (?, ?, ?, ?, ?, ?, ?)`,
				h.ManagerID, h.Ticker, h.Quarter.String(), h.Quarter.Index(),
				h.Shares, h.ValueUSD, h.PctOfPortfolio)
			if err != nil {
				return fmt.Errorf("failed to insert holding %s/%s: %w", h.Ticker, h.Quarter, err)
			}
		}

		for _, a := range activities {
			_, err := tx.Exec(`
				INSERT INTO activities (manager_id, ticker, quarter, quarter_index, activity_type,
					shares, shares_delta, value_usd, pct_of_portfolio, pct_delta)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
				a.ManagerID, a.Ticker, a.Quarter.String(), a.Quarter.Index(), string(a.Type),
				a.Shares, a.SharesDelta, a.ValueUSD, a.PctOfPortfolio, a.PctDelta)
			if err != nil {
				return fmt.Errorf("failed to insert activity %s/%s: %w", a.Ticker, a.Quarter, err)
			}
		}

		return nil
	})
}

// checkInvariants rejects duplicate (ticker, quarter) pairs and quarters
// arriving out of order before anything touches the database.
func checkInvariants(managerID string, activities []domain.ActivityRecord) error {
	type key struct {
		ticker  string
		quarter domain.Quarter
	}
	seen := make(map[key]bool, len(activities))
	var prev domain.Quarter
	for _, a := range activities {
		k := key{a.Ticker, a.Quarter}
		if seen[k] {
			return &domain.LedgerInvariantViolation{
				ManagerID: managerID,
				Quarter:   a.Quarter,
				Detail:    "duplicate activity for " + a.Ticker,
			}
		}
		seen[k] = true

		if !prev.IsZero() && a.Quarter.Before(prev) {
			return &domain.LedgerInvariantViolation{
				ManagerID: managerID,
				Quarter:   a.Quarter,
				Detail:    "out-of-order quarter after " + prev.String(),
			}
		}
		prev = a.Quarter
	}
	return nil
}

// Query filters ledger slices. Zero values mean "any".
type Query struct {
	ManagerID string
	Ticker    string
	Type      domain.ActivityType
	From      domain.Quarter
	To        domain.Quarter
	Limit     int
}

// Activities returns a ledger slice ordered by quarter then ticker.
func (r *Repository) Activities(q Query) ([]domain.ActivityRecord, error) {
	query := `
		SELECT manager_id, ticker, quarter, activity_type, shares, shares_delta,
			value_usd, pct_of_portfolio, pct_delta
		FROM activities WHERE 1=1`
	var args []interface{}

	if q.ManagerID != "" {
		query += " AND manager_id = ?"
		args = append(args, q.ManagerID)
	}
	if q.Ticker != "" {
		query += " AND ticker = ?"
		args = append(args, q.Ticker)
	}
	if q.Type != "" {
		query += " AND activity_type = ?"
		args = append(args, string(q.Type))
	}
	if q.From.Valid() {
		query += " AND quarter_index >= ?"
		args = append(args, q.From.Index())
	}
	if q.To.Valid() {
		query += " AND quarter_index <= ?"
		args = append(args, q.To.Index())
	}

	query += " ORDER BY quarter_index, manager_id, ticker"
	if q.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, q.Limit)
	}

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query activities: %w", err)
	}
	defer rows.Close()

	return scanActivities(rows)
}

// Holdings returns a manager's stored positions, ordered by quarter then ticker.
func (r *Repository) Holdings(managerID string) ([]domain.HoldingRecord, error) {
	rows, err := r.db.Query(`
		SELECT manager_id, ticker, quarter, shares, value_usd, pct_of_portfolio
		FROM holdings WHERE manager_id = ?
		ORDER BY quarter_index, ticker`, managerID)
	if err != nil {
		return nil, fmt.Errorf("failed to query holdings for %s: %w", managerID, err)
	}
	defer rows.Close()

	var holdings []domain.HoldingRecord
	for rows.Next() {
		var h domain.HoldingRecord
		var quarter string
		if err := rows.Scan(&h.ManagerID, &h.Ticker, &quarter, &h.Shares, &h.ValueUSD, &h.PctOfPortfolio); err != nil {
			return nil, fmt.Errorf("failed to scan holding: %w", err)
		}
		h.Quarter, _ = domain.ParseQuarter(quarter)
		holdings = append(holdings, h)
	}
	return holdings, rows.Err()
}

// HoldingsAsOf reconstructs a manager's portfolio at a quarter boundary by
// replaying activities up to and including that quarter. Tickers whose share
// count replays to zero are absent from the result.
func (r *Repository) HoldingsAsOf(managerID string, asOf domain.Quarter) ([]domain.HoldingRecord, error) {
	acts, err := r.Activities(Query{ManagerID: managerID, To: asOf})
	if err != nil {
		return nil, err
	}

	latest := make(map[string]domain.ActivityRecord)
	for _, a := range acts {
		latest[a.Ticker] = a
	}

	var out []domain.HoldingRecord
	for _, a := range latest {
		if a.Shares == 0 {
			continue
		}
		out = append(out, domain.HoldingRecord{
			ManagerID:      a.ManagerID,
			Ticker:         a.Ticker,
			Quarter:        a.Quarter,
			Shares:         a.Shares,
			ValueUSD:       a.ValueUSD,
			PctOfPortfolio: a.PctOfPortfolio,
		})
	}

	sortHoldings(out)
	return out, nil
}

// Quarters returns the distinct quarters present in a manager's ledger,
// ascending. An empty manager ID spans the whole ledger.
func (r *Repository) Quarters(managerID string) ([]domain.Quarter, error) {
	query := `SELECT DISTINCT quarter FROM activities`
	var args []interface{}
	if managerID != "" {
		query += " WHERE manager_id = ?"
		args = append(args, managerID)
	}
	query += " ORDER BY quarter_index"

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query quarters: %w", err)
	}
	defer rows.Close()

	var quarters []domain.Quarter
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, fmt.Errorf("failed to scan quarter: %w", err)
		}
		q, err := domain.ParseQuarter(s)
		if err != nil {
			return nil, fmt.Errorf("corrupt quarter label %q: %w", s, err)
		}
		quarters = append(quarters, q)
	}
	return quarters, rows.Err()
}

// ExportCSV writes the whole ledger (or one manager's slice) as a flat CSV
// table, ordered by manager, quarter, ticker. The format is stable: same
// ledger, same bytes.
func (r *Repository) ExportCSV(w io.Writer, managerID string) error {
	query := `
		SELECT manager_id, ticker, quarter, activity_type, shares, shares_delta,
			value_usd, pct_of_portfolio, pct_delta
		FROM activities`
	var args []interface{}
	if managerID != "" {
		query += " WHERE manager_id = ?"
		args = append(args, managerID)
	}
	query += " ORDER BY manager_id, quarter_index, ticker"

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return fmt.Errorf("failed to query activities for export: %w", err)
	}
	defer rows.Close()

	cw := csv.NewWriter(w)
	header := []string{"manager_id", "ticker", "quarter", "activity_type",
		"shares", "shares_delta", "value_usd", "pct_of_portfolio", "pct_delta"}
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("failed to write export header: %w", err)
	}

	for rows.Next() {
		var a domain.ActivityRecord
		var quarter, actType string
		if err := rows.Scan(&a.ManagerID, &a.Ticker, &quarter, &actType,
			&a.Shares, &a.SharesDelta, &a.ValueUSD, &a.PctOfPortfolio, &a.PctDelta); err != nil {
			return fmt.Errorf("failed to scan activity for export: %w", err)
		}

		record := []string{
			a.ManagerID, a.Ticker, quarter, actType,
			strconv.FormatInt(a.Shares, 10),
			strconv.FormatInt(a.SharesDelta, 10),
			strconv.FormatFloat(a.ValueUSD, 'f', 2, 64),
			strconv.FormatFloat(a.PctOfPortfolio, 'f', 4, 64),
			strconv.FormatFloat(a.PctDelta, 'f', 4, 64),
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("failed to write export row: %w", err)
		}
	}
	if err := rows.Err(); err != nil {
		return err
	}

	cw.Flush()
	return cw.Error()
}

// TimelineEntry aggregates one quarter of a manager's activity.
type TimelineEntry struct {
	Quarter    domain.Quarter `json:"quarter"`
	Buys       int            `json:"buys"`
	Adds       int            `json:"adds"`
	Reduces    int            `json:"reduces"`
	Sells      int            `json:"sells"`
	Holds      int            `json:"holds"`
	TotalValue float64        `json:"total_value_usd"`
}

// Timeline returns per-quarter activity counts for one manager, ascending.
func (r *Repository) Timeline(managerID string) ([]TimelineEntry, error) {
	rows, err := r.db.Query(`
		SELECT quarter, activity_type, COUNT(*), SUM(value_usd)
		FROM activities WHERE manager_id = ?
		GROUP BY quarter_index, activity_type
		ORDER BY quarter_index`, managerID)
	if err != nil {
		return nil, fmt.Errorf("failed to query timeline for %s: %w", managerID, err)
	}
	defer rows.Close()

	var entries []TimelineEntry
	byQuarter := make(map[domain.Quarter]int)
	for rows.Next() {
		var qs, actType string
		var count int
		var value sql.NullFloat64
		if err := rows.Scan(&qs, &actType, &count, &value); err != nil {
			return nil, fmt.Errorf("failed to scan timeline row: %w", err)
		}
		q, err := domain.ParseQuarter(qs)
		if err != nil {
			return nil, fmt.Errorf("corrupt quarter label %q: %w", qs, err)
		}

		idx, ok := byQuarter[q]
		if !ok {
			entries = append(entries, TimelineEntry{Quarter: q})
			idx = len(entries) - 1
			byQuarter[q] = idx
		}
		entry := &entries[idx]
		switch domain.ActivityType(actType) {
		case domain.ActivityBuy:
			entry.Buys = count
		case domain.ActivityAdd:
			entry.Adds = count
		case domain.ActivityReduce:
			entry.Reduces = count
		case domain.ActivitySell:
			entry.Sells = count
		case domain.ActivityHold:
			entry.Holds = count
		}
		entry.TotalValue += value.Float64
	}
	return entries, rows.Err()
}

func scanActivities(rows *sql.Rows) ([]domain.ActivityRecord, error) {
	var out []domain.ActivityRecord
	for rows.Next() {
		var a domain.ActivityRecord
		var quarter, actType string
		if err := rows.Scan(&a.ManagerID, &a.Ticker, &quarter, &actType,
			&a.Shares, &a.SharesDelta, &a.ValueUSD, &a.PctOfPortfolio, &a.PctDelta); err != nil {
			return nil, fmt.Errorf("failed to scan activity: %w", err)
		}
		var err error
		a.Quarter, err = domain.ParseQuarter(quarter)
		if err != nil {
			return nil, fmt.Errorf("corrupt quarter label %q: %w", quarter, err)
		}
		a.Type = domain.ActivityType(actType)
		out = append(out, a)
	}
	return out, rows.Err()
}

func sortHoldings(hs []domain.HoldingRecord) {
	for i := 1; i < len(hs); i++ {
		for j := i; j > 0 && hs[j].Ticker < hs[j-1].Ticker; j-- {
			hs[j], hs[j-1] = hs[j-1], hs[j]
		}
	}
}
