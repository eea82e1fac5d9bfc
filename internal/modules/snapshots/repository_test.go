package snapshots

import (
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/fundtrail/fundtrail/internal/domain"
)

func newTestRepo(t *testing.T) *Repository {
	t.Helper()

	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	// One connection, or each pool connection gets its own memory database
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	_, err = db.Exec(`
		CREATE TABLE snapshots (
			manager_id TEXT NOT NULL,
			period     TEXT NOT NULL,
			html       BLOB NOT NULL,
			fetched_at TEXT NOT NULL,
			PRIMARY KEY (manager_id, period)
		);
	`)
	require.NoError(t, err)

	return NewRepository(db, zerolog.New(nil).Level(zerolog.Disabled))
}

func TestSaveAndGet(t *testing.T) {
	repo := newTestRepo(t)

	require.NoError(t, repo.Save(domain.RawSnapshot{
		ManagerID: "berkshire",
		Period:    "2019_Q3",
		HTML:      "<html>filing</html>",
	}))

	snap, err := repo.Get("berkshire", "2019_Q3")
	require.NoError(t, err)
	assert.Equal(t, "<html>filing</html>", snap.HTML)
	assert.False(t, snap.FetchedAt.IsZero(), "missing fetch time defaults to now")
}

func TestSave_ReplacesOnConflict(t *testing.T) {
	repo := newTestRepo(t)

	require.NoError(t, repo.Save(domain.RawSnapshot{ManagerID: "mgr", Period: "2019_Q3", HTML: "old"}))
	require.NoError(t, repo.Save(domain.RawSnapshot{ManagerID: "mgr", Period: "2019_Q3", HTML: "new"}))

	snap, err := repo.Get("mgr", "2019_Q3")
	require.NoError(t, err)
	assert.Equal(t, "new", snap.HTML)

	count, err := repo.Count()
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestSave_RequiresKeys(t *testing.T) {
	repo := newTestRepo(t)
	assert.Error(t, repo.Save(domain.RawSnapshot{Period: "2019_Q3"}))
	assert.Error(t, repo.Save(domain.RawSnapshot{ManagerID: "mgr"}))
}

func TestGet_NotFound(t *testing.T) {
	repo := newTestRepo(t)
	_, err := repo.Get("nobody", "2019_Q3")
	assert.True(t, errors.Is(err, domain.ErrSnapshotNotFound))
}

func TestListManagersAndPeriods_Sorted(t *testing.T) {
	repo := newTestRepo(t)

	for _, s := range []domain.RawSnapshot{
		{ManagerID: "zeta", Period: "2019_Q4", HTML: "x"},
		{ManagerID: "alpha", Period: "2019_Q4", HTML: "x"},
		{ManagerID: "alpha", Period: "2019_Q3", HTML: "x"},
	} {
		require.NoError(t, repo.Save(s))
	}

	managers, err := repo.ListManagers()
	require.NoError(t, err)
	assert.Equal(t, []string{"alpha", "zeta"}, managers)

	periods, err := repo.ListPeriods("alpha")
	require.NoError(t, err)
	assert.Equal(t, []string{"2019_Q3", "2019_Q4"}, periods)
}

func TestImportDir(t *testing.T) {
	repo := newTestRepo(t)

	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "berkshire"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "berkshire", "2019_Q3.html"), []byte("<html>q3</html>"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "berkshire", "2019_Q4.html"), []byte("<html>q4</html>"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "berkshire", "notes.txt"), []byte("skip me"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "stray.html"), []byte("not under a manager"), 0644))

	imported, err := repo.ImportDir(dir)
	require.NoError(t, err)
	assert.Equal(t, 2, imported)

	snap, err := repo.Get("berkshire", "2019_Q3")
	require.NoError(t, err)
	assert.Equal(t, "<html>q3</html>", snap.HTML)

	_, err = repo.Get("berkshire", "notes")
	assert.True(t, errors.Is(err, domain.ErrSnapshotNotFound))
}

func TestImportDir_MissingDirectory(t *testing.T) {
	repo := newTestRepo(t)
	_, err := repo.ImportDir(filepath.Join(t.TempDir(), "does-not-exist"))
	assert.Error(t, err)
}
