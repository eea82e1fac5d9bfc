package runs

import (
	"database/sql"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"
)

func newTestRepo(t *testing.T) *Repository {
	t.Helper()

	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	// One connection, or each pool connection gets its own memory database
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	_, err = db.Exec(`
		CREATE TABLE runs (
			id          TEXT PRIMARY KEY,
			started_at  TEXT NOT NULL,
			finished_at TEXT,
			status      TEXT NOT NULL,
			summary     BLOB
		);
	`)
	require.NoError(t, err)

	return NewRepository(db, zerolog.New(nil).Level(zerolog.Disabled))
}

func TestStartAndGet(t *testing.T) {
	repo := newTestRepo(t)

	require.NoError(t, repo.Start("run-1"))

	run, err := repo.Get("run-1")
	require.NoError(t, err)
	require.NotNil(t, run)
	assert.Equal(t, StatusRunning, run.Status)
	assert.Nil(t, run.FinishedAt)
	assert.Nil(t, run.Summary)
	assert.False(t, run.StartedAt.IsZero())
}

func TestFinish_SummaryRoundTrip(t *testing.T) {
	repo := newTestRepo(t)
	require.NoError(t, repo.Start("run-1"))

	summary := &Summary{
		Managers: []ManagerSummary{{
			ManagerID:        "berkshire",
			QuartersIngested: 4,
			RowsParsed:       120,
			Activities:       87,
			Errors:           []string{"one snapshot skipped"},
		}},
		ManagersOK:  1,
		ScoreTables: 5,
	}
	require.NoError(t, repo.Finish("run-1", StatusCompleted, summary))

	run, err := repo.Get("run-1")
	require.NoError(t, err)
	require.NotNil(t, run)
	assert.Equal(t, StatusCompleted, run.Status)
	require.NotNil(t, run.FinishedAt)
	require.NotNil(t, run.Summary)
	require.Len(t, run.Summary.Managers, 1)
	assert.Equal(t, "berkshire", run.Summary.Managers[0].ManagerID)
	assert.Equal(t, 87, run.Summary.Managers[0].Activities)
	assert.Equal(t, []string{"one snapshot skipped"}, run.Summary.Managers[0].Errors)
	assert.Equal(t, 5, run.Summary.ScoreTables)
}

func TestFinish_FailedWithoutSummary(t *testing.T) {
	repo := newTestRepo(t)
	require.NoError(t, repo.Start("run-1"))
	require.NoError(t, repo.Finish("run-1", StatusFailed, nil))

	run, err := repo.Get("run-1")
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, run.Status)
	assert.Nil(t, run.Summary)
}

func TestGet_Missing(t *testing.T) {
	repo := newTestRepo(t)
	run, err := repo.Get("nope")
	require.NoError(t, err)
	assert.Nil(t, run)
}

func TestList_NewestFirst(t *testing.T) {
	repo := newTestRepo(t)

	// started_at has second precision; insert directly to control ordering
	for _, row := range []struct{ id, started string }{
		{"old", "2025-08-01T00:00:00Z"},
		{"new", "2025-08-02T00:00:00Z"},
	} {
		_, err := repo.db.Exec(`INSERT INTO runs (id, started_at, status) VALUES (?, ?, ?)`,
			row.id, row.started, StatusCompleted)
		require.NoError(t, err)
	}

	runs, err := repo.List(10)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "new", runs[0].ID)
	assert.Equal(t, "old", runs[1].ID)
}
