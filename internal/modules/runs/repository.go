// Package runs records pipeline executions and their per-manager summaries.
// Summaries are stored as msgpack blobs in the cache database.
package runs

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/vmihailenco/msgpack/v5"
)

// Run statuses.
const (
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// ManagerSummary is the outcome of processing one manager in one run.
type ManagerSummary struct {
	ManagerID        string   `msgpack:"manager_id" json:"manager_id"`
	QuartersIngested int      `msgpack:"quarters_ingested" json:"quarters_ingested"`
	QuartersSkipped  int      `msgpack:"quarters_skipped" json:"quarters_skipped"`
	RowsParsed       int      `msgpack:"rows_parsed" json:"rows_parsed"`
	RowsSkipped      int      `msgpack:"rows_skipped" json:"rows_skipped"`
	Activities       int      `msgpack:"activities" json:"activities"`
	Errors           []string `msgpack:"errors" json:"errors"`
}

// Summary is the full outcome of one pipeline run.
type Summary struct {
	Managers      []ManagerSummary `msgpack:"managers" json:"managers"`
	ManagersOK    int              `msgpack:"managers_ok" json:"managers_ok"`
	ManagersError int              `msgpack:"managers_error" json:"managers_error"`
	ScoreTables   int              `msgpack:"score_tables" json:"score_tables"`
}

// Run is one pipeline execution.
type Run struct {
	ID         string     `json:"id"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	Status     string     `json:"status"`
	Summary    *Summary   `json:"summary,omitempty"`
}

// Repository stores runs in the cache database.
type Repository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewRepository creates a run repository
func NewRepository(db *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With().Str("repo", "runs").Logger(),
	}
}

// Start records a new run in the running state.
func (r *Repository) Start(id string) error {
	_, err := r.db.Exec(`
		INSERT INTO runs (id, started_at, status) VALUES (?, ?, ?)`,
		id, time.Now().UTC().Format(time.RFC3339), StatusRunning)
	if err != nil {
		return fmt.Errorf("failed to record run start: %w", err)
	}
	return nil
}

// Finish marks a run completed or failed and stores its summary.
func (r *Repository) Finish(id, status string, summary *Summary) error {
	var blob []byte
	if summary != nil {
		var err error
		blob, err = msgpack.Marshal(summary)
		if err != nil {
			return fmt.Errorf("failed to encode run summary: %w", err)
		}
	}

	_, err := r.db.Exec(`
		UPDATE runs SET finished_at = ?, status = ?, summary = ? WHERE id = ?`,
		time.Now().UTC().Format(time.RFC3339), status, blob, id)
	if err != nil {
		return fmt.Errorf("failed to record run finish: %w", err)
	}
	return nil
}

// Get returns one run with its decoded summary.
func (r *Repository) Get(id string) (*Run, error) {
	row := r.db.QueryRow(`
		SELECT id, started_at, finished_at, status, summary FROM runs WHERE id = ?`, id)
	run, err := scanRun(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return run, err
}

// List returns recent runs, newest first.
func (r *Repository) List(limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := r.db.Query(`
		SELECT id, started_at, finished_at, status, summary
		FROM runs ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var out []Run
	for rows.Next() {
		run, err := scanRun(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, *run)
	}
	return out, rows.Err()
}

func scanRun(scan func(dest ...interface{}) error) (*Run, error) {
	var run Run
	var started string
	var finished sql.NullString
	var blob []byte

	if err := scan(&run.ID, &started, &finished, &run.Status, &blob); err != nil {
		return nil, err
	}

	if t, err := time.Parse(time.RFC3339, started); err == nil {
		run.StartedAt = t
	}
	if finished.Valid {
		if t, err := time.Parse(time.RFC3339, finished.String); err == nil {
			run.FinishedAt = &t
		}
	}
	if len(blob) > 0 {
		var summary Summary
		if err := msgpack.Unmarshal(blob, &summary); err != nil {
			return nil, fmt.Errorf("corrupt run summary for %s: %w", run.ID, err)
		}
		run.Summary = &summary
	}

	return &run, nil
}
