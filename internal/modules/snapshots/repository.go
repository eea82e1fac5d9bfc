// Package snapshots stores raw fetched disclosure documents, keyed by
// manager and filing period. Snapshots are the system's source of truth;
// everything downstream is recomputable from them.
package snapshots

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/fundtrail/fundtrail/internal/domain"
)

// Repository handles snapshot database operations
type Repository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewRepository creates a new snapshot repository
func NewRepository(db *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With().Str("repo", "snapshots").Logger(),
	}
}

// Save stores a snapshot. Re-saving the same (manager, period) replaces the
// stored document, which only matters when a re-fetch returned new bytes.
func (r *Repository) Save(snap domain.RawSnapshot) error {
	if snap.ManagerID == "" || snap.Period == "" {
		return fmt.Errorf("snapshot requires manager id and period")
	}
	if snap.FetchedAt.IsZero() {
		snap.FetchedAt = time.Now().UTC()
	}

	_, err := r.db.Exec(`
		INSERT INTO snapshots (manager_id, period, html, fetched_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(manager_id, period) DO UPDATE SET
			html = excluded.html,
			fetched_at = excluded.fetched_at`,
		snap.ManagerID, snap.Period, []byte(snap.HTML), snap.FetchedAt.Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("failed to save snapshot %s/%s: %w", snap.ManagerID, snap.Period, err)
	}

	return nil
}

// Get returns the snapshot for a manager and period, or ErrSnapshotNotFound.
func (r *Repository) Get(managerID, period string) (domain.RawSnapshot, error) {
	var snap domain.RawSnapshot
	var html []byte
	var fetchedAt string

	err := r.db.QueryRow(`
		SELECT manager_id, period, html, fetched_at
		FROM snapshots WHERE manager_id = ? AND period = ?`,
		managerID, period).Scan(&snap.ManagerID, &snap.Period, &html, &fetchedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.RawSnapshot{}, domain.ErrSnapshotNotFound
	}
	if err != nil {
		return domain.RawSnapshot{}, fmt.Errorf("failed to get snapshot %s/%s: %w", managerID, period, err)
	}

	snap.HTML = string(html)
	if t, err := time.Parse(time.RFC3339, fetchedAt); err == nil {
		snap.FetchedAt = t
	}
	return snap, nil
}

// ListPeriods returns the stored filing periods for a manager, sorted
// lexically (period labels sort chronologically in the on-disk layout).
func (r *Repository) ListPeriods(managerID string) ([]string, error) {
	rows, err := r.db.Query(`
		SELECT period FROM snapshots WHERE manager_id = ? ORDER BY period`,
		managerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list periods for %s: %w", managerID, err)
	}
	defer rows.Close()

	var periods []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, fmt.Errorf("failed to scan period: %w", err)
		}
		periods = append(periods, p)
	}
	return periods, rows.Err()
}

// ListManagers returns all manager IDs that have at least one snapshot,
// sorted ascending. The sort order keeps pipeline runs deterministic.
func (r *Repository) ListManagers() ([]string, error) {
	rows, err := r.db.Query(`SELECT DISTINCT manager_id FROM snapshots ORDER BY manager_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list managers: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan manager id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Count returns the total number of stored snapshots.
func (r *Repository) Count() (int, error) {
	var n int
	if err := r.db.QueryRow(`SELECT COUNT(*) FROM snapshots`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count snapshots: %w", err)
	}
	return n, nil
}

// ImportDir walks a directory laid out as <dir>/<manager_id>/<period>.html
// and stores every document found. Files that are not .html are skipped.
// Returns the number of snapshots imported.
func (r *Repository) ImportDir(dir string) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, fmt.Errorf("failed to read snapshots directory: %w", err)
	}

	imported := 0
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		managerID := entry.Name()

		files, err := os.ReadDir(filepath.Join(dir, managerID))
		if err != nil {
			return imported, fmt.Errorf("failed to read directory for %s: %w", managerID, err)
		}

		for _, f := range files {
			if f.IsDir() || !strings.HasSuffix(f.Name(), ".html") {
				continue
			}
			period := strings.TrimSuffix(f.Name(), ".html")

			content, err := os.ReadFile(filepath.Join(dir, managerID, f.Name()))
			if err != nil {
				return imported, fmt.Errorf("failed to read %s/%s: %w", managerID, f.Name(), err)
			}

			info, _ := f.Info()
			fetchedAt := time.Now().UTC()
			if info != nil {
				fetchedAt = info.ModTime().UTC()
			}

			if err := r.Save(domain.RawSnapshot{
				ManagerID: managerID,
				Period:    period,
				HTML:      string(content),
				FetchedAt: fetchedAt,
			}); err != nil {
				return imported, err
			}
			imported++
		}
	}

	r.log.Info().Int("imported", imported).Str("dir", dir).Msg("Snapshot import complete")
	return imported, nil
}
