package prices

import (
	"database/sql"
	"errors"
	"strings"
	"testing"
	"time"

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
		CREATE TABLE prices (
			ticker TEXT NOT NULL,
			date   TEXT NOT NULL,
			close  REAL NOT NULL,
			PRIMARY KEY (ticker, date)
		);
	`)
	require.NoError(t, err)

	return NewRepository(db, zerolog.New(nil).Level(zerolog.Disabled))
}

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestGetPrice_ExactDate(t *testing.T) {
	repo := newTestRepo(t)
	require.NoError(t, repo.Save("AAPL", day(2019, 9, 30), 223.97))

	price, err := repo.GetPrice("AAPL", day(2019, 9, 30))
	require.NoError(t, err)
	assert.InDelta(t, 223.97, price, 1e-9)
}

func TestGetPrice_LookbackWindow(t *testing.T) {
	repo := newTestRepo(t)
	// Quarter ends on a Monday holiday; the Friday close is 3 days back
	require.NoError(t, repo.Save("AAPL", day(2019, 9, 27), 218.82))

	price, err := repo.GetPrice("AAPL", day(2019, 9, 30))
	require.NoError(t, err)
	assert.InDelta(t, 218.82, price, 1e-9)
}

func TestGetPrice_MostRecentWithinWindowWins(t *testing.T) {
	repo := newTestRepo(t)
	require.NoError(t, repo.Save("AAPL", day(2019, 9, 25), 210.00))
	require.NoError(t, repo.Save("AAPL", day(2019, 9, 27), 218.82))

	price, err := repo.GetPrice("AAPL", day(2019, 9, 30))
	require.NoError(t, err)
	assert.InDelta(t, 218.82, price, 1e-9)
}

func TestGetPrice_OutsideWindowUnavailable(t *testing.T) {
	repo := newTestRepo(t)
	require.NoError(t, repo.Save("AAPL", day(2019, 9, 1), 205.00))

	_, err := repo.GetPrice("AAPL", day(2019, 9, 30))
	assert.True(t, errors.Is(err, domain.ErrPriceUnavailable), "stale price beyond the lookback window")
}

func TestGetPrice_FutureDateNeverUsed(t *testing.T) {
	repo := newTestRepo(t)
	require.NoError(t, repo.Save("AAPL", day(2019, 10, 1), 230.00))

	_, err := repo.GetPrice("AAPL", day(2019, 9, 30))
	assert.True(t, errors.Is(err, domain.ErrPriceUnavailable))
}

func TestGetPrice_UnknownTicker(t *testing.T) {
	repo := newTestRepo(t)
	_, err := repo.GetPrice("NOPE", day(2019, 9, 30))
	assert.True(t, errors.Is(err, domain.ErrPriceUnavailable))
}

func TestImportCSV(t *testing.T) {
	repo := newTestRepo(t)

	csv := strings.Join([]string{
		"ticker,date,close",
		"AAPL,2019-09-30,223.97",
		"MSFT,2019-09-30,137.73",
	}, "\n")

	imported, err := repo.ImportCSV(strings.NewReader(csv))
	require.NoError(t, err)
	assert.Equal(t, 2, imported)

	count, err := repo.Count()
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestImportCSV_MalformedRowAborts(t *testing.T) {
	repo := newTestRepo(t)

	csv := strings.Join([]string{
		"ticker,date,close",
		"AAPL,2019-09-30,223.97",
		"MSFT,not-a-date,137.73",
	}, "\n")

	imported, err := repo.ImportCSV(strings.NewReader(csv))
	assert.Error(t, err)
	assert.Equal(t, 1, imported, "rows before the malformed one are kept")
}
