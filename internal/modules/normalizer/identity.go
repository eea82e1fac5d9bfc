package normalizer

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/fundtrail/fundtrail/internal/domain"
)

// IdentityRepository maintains manager identities and the append-only alias
// index. Managers are created on first filing and never deleted; their
// display name may be corrected in place when a cleaner alias arrives.
type IdentityRepository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewIdentityRepository creates an identity repository over the ledger database.
func NewIdentityRepository(db *sql.DB, log zerolog.Logger) *IdentityRepository {
	return &IdentityRepository{
		db:  db,
		log: log.With().Str("repo", "identity").Logger(),
	}
}

// Get returns one manager, or sql.ErrNoRows.
func (r *IdentityRepository) Get(id string) (domain.Manager, error) {
	var m domain.Manager
	var first, last string

	err := r.db.QueryRow(`
		SELECT id, display_name, firm, first_seen_quarter, last_seen_quarter
		FROM managers WHERE id = ?`, id).
		Scan(&m.ID, &m.DisplayName, &m.Firm, &first, &last)
	if err != nil {
		return domain.Manager{}, err
	}

	m.FirstSeenQuarter, _ = domain.ParseQuarter(first)
	m.LastSeenQuarter, _ = domain.ParseQuarter(last)
	return m, nil
}

// List returns all managers sorted by ID.
func (r *IdentityRepository) List() ([]domain.Manager, error) {
	rows, err := r.db.Query(`
		SELECT id, display_name, firm, first_seen_quarter, last_seen_quarter
		FROM managers ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list managers: %w", err)
	}
	defer rows.Close()

	var managers []domain.Manager
	for rows.Next() {
		var m domain.Manager
		var first, last string
		if err := rows.Scan(&m.ID, &m.DisplayName, &m.Firm, &first, &last); err != nil {
			return nil, fmt.Errorf("failed to scan manager: %w", err)
		}
		m.FirstSeenQuarter, _ = domain.ParseQuarter(first)
		m.LastSeenQuarter, _ = domain.ParseQuarter(last)
		managers = append(managers, m)
	}
	return managers, rows.Err()
}

// Observe records an encounter with a manager: the raw name goes into the
// alias index, seen-quarter bounds widen, and the display name is re-elected
// over all known aliases. Order independent: any permutation of the same
// observations converges on the same row.
func (r *IdentityRepository) Observe(id, rawName string, quarter domain.Quarter) error {
	if id == "" {
		return fmt.Errorf("manager id required")
	}

	name, firm := CleanName(rawName)

	var existingFirst, existingLast string
	err := r.db.QueryRow(`SELECT first_seen_quarter, last_seen_quarter FROM managers WHERE id = ?`, id).
		Scan(&existingFirst, &existingLast)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		_, err = r.db.Exec(`
			INSERT INTO managers (id, display_name, firm, first_seen_quarter, last_seen_quarter)
			VALUES (?, ?, ?, ?, ?)`,
			id, name, firm, quarter.String(), quarter.String())
		if err != nil {
			return fmt.Errorf("failed to create manager %s: %w", id, err)
		}
	case err != nil:
		return fmt.Errorf("failed to look up manager %s: %w", id, err)
	default:
		first, _ := domain.ParseQuarter(existingFirst)
		last, _ := domain.ParseQuarter(existingLast)
		if quarter.Before(first) {
			first = quarter
		}
		if last.Before(quarter) {
			last = quarter
		}
		_, err = r.db.Exec(`
			UPDATE managers SET first_seen_quarter = ?, last_seen_quarter = ? WHERE id = ?`,
			first.String(), last.String(), id)
		if err != nil {
			return fmt.Errorf("failed to update manager %s: %w", id, err)
		}
	}

	if rawName != "" {
		_, err = r.db.Exec(`
			INSERT INTO manager_aliases (manager_id, alias, first_seen)
			VALUES (?, ?, ?)
			ON CONFLICT(manager_id, alias) DO NOTHING`,
			id, rawName, time.Now().UTC().Format(time.RFC3339))
		if err != nil {
			return fmt.Errorf("failed to record alias for %s: %w", id, err)
		}
	}

	return r.reelectDisplayName(id, firm)
}

// Aliases returns every raw name variant ever recorded for a manager.
func (r *IdentityRepository) Aliases(id string) ([]string, error) {
	rows, err := r.db.Query(`
		SELECT alias FROM manager_aliases WHERE manager_id = ? ORDER BY alias`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to list aliases for %s: %w", id, err)
	}
	defer rows.Close()

	var aliases []string
	for rows.Next() {
		var a string
		if err := rows.Scan(&a); err != nil {
			return nil, fmt.Errorf("failed to scan alias: %w", err)
		}
		aliases = append(aliases, a)
	}
	return aliases, rows.Err()
}

// reelectDisplayName recomputes the identity over all known aliases. The
// elected alias supplies both name and firm; an alias without a firm falls
// back to the latest observation's firm, and only when none is recorded yet.
func (r *IdentityRepository) reelectDisplayName(id, firm string) error {
	aliases, err := r.Aliases(id)
	if err != nil {
		return err
	}
	if len(aliases) == 0 {
		return nil
	}

	elected, electedFirm := ElectIdentity(aliases)
	if elected == "" {
		return nil
	}

	if electedFirm != "" {
		_, err = r.db.Exec(`
			UPDATE managers SET display_name = ?, firm = ? WHERE id = ?`,
			elected, electedFirm, id)
	} else {
		_, err = r.db.Exec(`
			UPDATE managers SET
				display_name = ?,
				firm = CASE WHEN firm = '' THEN ? ELSE firm END
			WHERE id = ?`,
			elected, firm, id)
	}
	if err != nil {
		return fmt.Errorf("failed to update display name for %s: %w", id, err)
	}
	return nil
}
