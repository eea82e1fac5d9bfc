package scoring

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/fundtrail/fundtrail/internal/database"
	"github.com/fundtrail/fundtrail/internal/domain"
)

// Repository persists computed score tables in the cache database. Scores
// are derived data: a whole (type, as-of) table is replaced per computation.
type Repository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewRepository creates a score repository
func NewRepository(db *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With().Str("repo", "scores").Logger(),
	}
}

// SaveTable replaces the stored table for one score type at one quarter.
func (r *Repository) SaveTable(scoreType string, asOf domain.Quarter, records []domain.ScoreRecord) error {
	return database.WithTransaction(r.db, func(tx *sql.Tx) error {
		if _, err := tx.Exec(`DELETE FROM scores WHERE score_type = ? AND as_of = ?`,
			scoreType, asOf.String()); err != nil {
			return fmt.Errorf("failed to clear scores %s@%s: %w", scoreType, asOf, err)
		}

		for _, rec := range records {
			components, err := json.Marshal(rec.Components)
			if err != nil {
				return fmt.Errorf("failed to encode components for %s: %w", rec.Subject, err)
			}
			_, err = tx.Exec(`
				INSERT INTO scores (score_type, subject, as_of, score, coverage, rank, components)
				VALUES (?, ?, ?, ?, ?, ?, ?)`,
				rec.Type, rec.Subject, rec.AsOf.String(), rec.Score, rec.Coverage, rec.Rank, string(components))
			if err != nil {
				return fmt.Errorf("failed to insert score %s/%s: %w", rec.Type, rec.Subject, err)
			}
		}
		return nil
	})
}

// Latest returns the most recently computed table for a score type, ordered
// by rank. Quarter labels do not sort chronologically as strings, so the
// latest quarter is picked by index in Go.
func (r *Repository) Latest(scoreType string) ([]domain.ScoreRecord, error) {
	labels, err := r.db.Query(`
		SELECT DISTINCT as_of FROM scores WHERE score_type = ?`, scoreType)
	if err != nil {
		return nil, fmt.Errorf("failed to find latest table for %s: %w", scoreType, err)
	}
	defer labels.Close()

	var asOf string
	latest := domain.Quarter{}
	for labels.Next() {
		var label string
		if err := labels.Scan(&label); err != nil {
			return nil, fmt.Errorf("failed to scan as_of label: %w", err)
		}
		q, err := domain.ParseQuarter(label)
		if err != nil {
			return nil, fmt.Errorf("corrupt as_of label %q: %w", label, err)
		}
		if latest.Before(q) {
			latest = q
			asOf = label
		}
	}
	if err := labels.Err(); err != nil {
		return nil, err
	}
	if asOf == "" {
		return nil, nil
	}

	rows, err := r.db.Query(`
		SELECT score_type, subject, as_of, score, coverage, rank, components
		FROM scores WHERE score_type = ? AND as_of = ?
		ORDER BY rank`, scoreType, asOf)
	if err != nil {
		return nil, fmt.Errorf("failed to query scores %s@%s: %w", scoreType, asOf, err)
	}
	defer rows.Close()

	var records []domain.ScoreRecord
	for rows.Next() {
		var rec domain.ScoreRecord
		var asOfLabel, components string
		if err := rows.Scan(&rec.Type, &rec.Subject, &asOfLabel, &rec.Score, &rec.Coverage, &rec.Rank, &components); err != nil {
			return nil, fmt.Errorf("failed to scan score: %w", err)
		}
		rec.AsOf, _ = domain.ParseQuarter(asOfLabel)
		if err := json.Unmarshal([]byte(components), &rec.Components); err != nil {
			return nil, fmt.Errorf("corrupt components for %s/%s: %w", rec.Type, rec.Subject, err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// Types returns the distinct score types present in storage.
func (r *Repository) Types() ([]string, error) {
	rows, err := r.db.Query(`SELECT DISTINCT score_type FROM scores ORDER BY score_type`)
	if err != nil {
		return nil, fmt.Errorf("failed to list score types: %w", err)
	}
	defer rows.Close()

	var types []string
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return nil, fmt.Errorf("failed to scan score type: %w", err)
		}
		types = append(types, t)
	}
	return types, rows.Err()
}
