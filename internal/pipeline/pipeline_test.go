package pipeline

import (
	"bytes"
	"context"
	"database/sql"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/fundtrail/fundtrail/internal/domain"
	"github.com/fundtrail/fundtrail/internal/modules/ledger"
	"github.com/fundtrail/fundtrail/internal/modules/normalizer"
	"github.com/fundtrail/fundtrail/internal/modules/parser"
	"github.com/fundtrail/fundtrail/internal/modules/prices"
	"github.com/fundtrail/fundtrail/internal/modules/runs"
	"github.com/fundtrail/fundtrail/internal/modules/scoring"
	"github.com/fundtrail/fundtrail/internal/modules/scoring/scorers"
	"github.com/fundtrail/fundtrail/internal/modules/snapshots"
)

const snapshotsDDL = `
	CREATE TABLE snapshots (
		manager_id TEXT NOT NULL,
		period     TEXT NOT NULL,
		html       BLOB NOT NULL,
		fetched_at TEXT NOT NULL,
		PRIMARY KEY (manager_id, period)
	);
`

const ledgerDDL = `
	CREATE TABLE managers (
		id                 TEXT PRIMARY KEY,
		display_name       TEXT NOT NULL,
		firm               TEXT NOT NULL DEFAULT '',
		first_seen_quarter TEXT NOT NULL,
		last_seen_quarter  TEXT NOT NULL
	);
	CREATE TABLE manager_aliases (
		manager_id TEXT NOT NULL,
		alias      TEXT NOT NULL,
		first_seen TEXT NOT NULL,
		PRIMARY KEY (manager_id, alias)
	);
	CREATE TABLE holdings (
		manager_id       TEXT NOT NULL,
		ticker           TEXT NOT NULL,
		quarter          TEXT NOT NULL,
		quarter_index    INTEGER NOT NULL,
		shares           INTEGER NOT NULL,
		value_usd        REAL NOT NULL,
		pct_of_portfolio REAL NOT NULL,
		PRIMARY KEY (manager_id, ticker, quarter)
	);
	CREATE TABLE activities (
		manager_id       TEXT NOT NULL,
		ticker           TEXT NOT NULL,
		quarter          TEXT NOT NULL,
		quarter_index    INTEGER NOT NULL,
		activity_type    TEXT NOT NULL,
		shares           INTEGER NOT NULL,
		shares_delta     INTEGER NOT NULL,
		value_usd        REAL NOT NULL,
		pct_of_portfolio REAL NOT NULL,
		pct_delta        REAL NOT NULL,
		UNIQUE (manager_id, ticker, quarter)
	);
`

const cacheDDL = `
	CREATE TABLE prices (
		ticker TEXT NOT NULL,
		date   TEXT NOT NULL,
		close  REAL NOT NULL,
		PRIMARY KEY (ticker, date)
	);
	CREATE TABLE runs (
		id          TEXT PRIMARY KEY,
		started_at  TEXT NOT NULL,
		finished_at TEXT,
		status      TEXT NOT NULL,
		summary     BLOB
	);
	CREATE TABLE scores (
		score_type TEXT NOT NULL,
		subject    TEXT NOT NULL,
		as_of      TEXT NOT NULL,
		score      REAL NOT NULL,
		coverage   REAL NOT NULL,
		rank       INTEGER NOT NULL,
		components TEXT NOT NULL,
		PRIMARY KEY (score_type, subject, as_of)
	);
`

func newMemoryDB(t *testing.T, ddl string) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	// One connection, or each pool connection gets its own memory database
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	_, err = db.Exec(ddl)
	require.NoError(t, err)
	return db
}

type testEnv struct {
	pipeline *Pipeline
	snaps    *snapshots.Repository
	identity *normalizer.IdentityRepository
	ledger   *ledger.Repository
	runs     *runs.Repository
	events   *Broadcaster
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	log := zerolog.New(nil).Level(zerolog.Disabled)

	snapRepo := snapshots.NewRepository(newMemoryDB(t, snapshotsDDL), log)
	ledgerDB := newMemoryDB(t, ledgerDDL)
	identityRepo := normalizer.NewIdentityRepository(ledgerDB, log)
	ledgerRepo := ledger.NewRepository(ledgerDB, log)

	cacheDB := newMemoryDB(t, cacheDDL)
	priceRepo := prices.NewRepository(cacheDB, log)
	scoreRepo := scoring.NewRepository(cacheDB, log)
	runRepo := runs.NewRepository(cacheDB, log)

	scoringSvc := scoring.NewService(ledgerRepo, scoreRepo, priceRepo, log)
	scoringSvc.Register(scorers.NewHiddenGemScorer())
	scoringSvc.Register(scorers.NewTrackRecordScorer())
	scoringSvc.Register(scorers.NewMomentumScorer())
	scoringSvc.Register(scorers.NewConcentrationDeltaScorer())
	scoringSvc.Register(scorers.NewPositionSizingScorer())

	events := NewBroadcaster()
	p := New(Config{Workers: 2}, snapRepo, parser.New(log), normalizer.New(log),
		identityRepo, ledgerRepo, scoringSvc, runRepo, events, log)

	return &testEnv{
		pipeline: p,
		snaps:    snapRepo,
		identity: identityRepo,
		ledger:   ledgerRepo,
		runs:     runRepo,
		events:   events,
	}
}

type fixtureRow struct {
	ticker  string
	company string
	pct     float64
	shares  int64
	price   float64
	value   float64
}

func snapshotPage(h1, quarterLabel string, rows []fixtureRow) string {
	var b strings.Builder
	fmt.Fprintf(&b, "<html><head><title>%s</title></head><body><h1>%s</h1>", h1, h1)
	b.WriteString(`<table id="grid">`)
	b.WriteString(`<tr><th>History</th><th>Stock</th><th>% of Portfolio</th><th>Recent Activity</th><th>Shares</th><th>Reported Price</th><th>Value</th></tr>`)
	fmt.Fprintf(&b, `<tr class="q_chg"><td colspan="7">%s</td></tr>`, quarterLabel)
	for _, r := range rows {
		fmt.Fprintf(&b, `<tr><td class="hist">+</td><td><a href="/insider?sym=%s">%s</a><span>%s</span></td><td>%.2f%%</td><td></td><td>%d</td><td>$%.2f</td><td>$%.0f</td></tr>`,
			r.ticker, r.ticker, r.company, r.pct, r.shares, r.price, r.value)
	}
	b.WriteString("</table></body></html>")
	return b.String()
}

func seed(t *testing.T, env *testEnv, managerID, h1, period, quarterLabel string, rows []fixtureRow) {
	t.Helper()
	require.NoError(t, env.snaps.Save(domain.RawSnapshot{
		ManagerID: managerID,
		Period:    period,
		HTML:      snapshotPage(h1, quarterLabel, rows),
		FetchedAt: time.Now(),
	}))
}

// seedTwoManagers loads two managers with two quarters each:
// alpha opens AAPL and MSFT, then adds AAPL, exits MSFT and opens KO;
// beta holds XOM unchanged.
func seedTwoManagers(t *testing.T, env *testEnv) {
	alphaName := "Ann Alpha - Alpha Capital Management Updated May 15, 2019"
	seed(t, env, "alpha", alphaName, "2019_Q1", "Q1 2019", []fixtureRow{
		{"AAPL", "Apple Inc.", 10.0, 1000, 100.0, 100000},
		{"MSFT", "Microsoft Corp.", 5.0, 500, 100.0, 50000},
	})
	seed(t, env, "alpha", alphaName, "2019_Q2", "Q2 2019", []fixtureRow{
		{"AAPL", "Apple Inc.", 12.0, 1500, 110.0, 165000},
		{"KO", "Coca-Cola Co.", 3.0, 200, 50.0, 10000},
	})

	betaName := "Bob Beta - Beta Partners Updated May 15, 2019"
	seed(t, env, "beta", betaName, "2019_Q1", "Q1 2019", []fixtureRow{
		{"XOM", "Exxon Mobil Corp.", 8.0, 800, 70.0, 56000},
	})
	seed(t, env, "beta", betaName, "2019_Q2", "Q2 2019", []fixtureRow{
		{"XOM", "Exxon Mobil Corp.", 8.0, 800, 75.0, 60000},
	})
}

func TestRun_FullPass(t *testing.T) {
	env := newTestEnv(t)
	seedTwoManagers(t, env)

	ch, cancel := env.events.Subscribe()
	defer cancel()

	run, err := env.pipeline.Run(context.Background())
	require.NoError(t, err)
	require.NotNil(t, run)
	assert.Equal(t, runs.StatusCompleted, run.Status)

	require.NotNil(t, run.Summary)
	assert.Equal(t, 2, run.Summary.ManagersOK)
	assert.Equal(t, 0, run.Summary.ManagersError)
	assert.Equal(t, 5, run.Summary.ScoreTables)
	require.Len(t, run.Summary.Managers, 2)

	// Merge order is sorted by manager id
	alpha := run.Summary.Managers[0]
	assert.Equal(t, "alpha", alpha.ManagerID)
	assert.Equal(t, 2, alpha.QuartersIngested)
	assert.Equal(t, 4, alpha.RowsParsed)
	assert.Equal(t, 5, alpha.Activities, "2 buys, 1 add, 1 new buy, 1 exit")
	assert.Empty(t, alpha.Errors)

	beta := run.Summary.Managers[1]
	assert.Equal(t, "beta", beta.ManagerID)
	assert.Equal(t, 2, beta.Activities)

	// The reconciled ledger holds every activity of both managers.
	var csvBuf bytes.Buffer
	require.NoError(t, env.ledger.ExportCSV(&csvBuf, ""))
	lines := strings.Split(strings.TrimSpace(csvBuf.String()), "\n")
	assert.Len(t, lines, 8, "header plus 7 activity rows")
	assert.Contains(t, csvBuf.String(), "alpha,MSFT,Q2 2019,Sell,0,-500")

	// Identity was observed with the cleaned elected name.
	mgr, err := env.identity.Get("alpha")
	require.NoError(t, err)
	assert.Equal(t, "Ann Alpha", mgr.DisplayName)
	assert.Equal(t, "Alpha Capital Management", mgr.Firm)
	assert.Equal(t, domain.Quarter{Year: 2019, Q: 2}, mgr.LastSeenQuarter)

	// Progress events covered the whole run.
	cancel()
	stages := make(map[string]bool)
	for ev := range ch {
		stages[ev.Stage] = true
		assert.Equal(t, run.ID, ev.RunID)
	}
	assert.True(t, stages["start"])
	assert.True(t, stages["reconciled"])
	assert.True(t, stages["merged"])
	assert.True(t, stages["scored"])
}

func TestRun_Deterministic(t *testing.T) {
	env := newTestEnv(t)
	seedTwoManagers(t, env)

	_, err := env.pipeline.Run(context.Background())
	require.NoError(t, err)
	var first bytes.Buffer
	require.NoError(t, env.ledger.ExportCSV(&first, ""))

	_, err = env.pipeline.Run(context.Background())
	require.NoError(t, err)
	var second bytes.Buffer
	require.NoError(t, env.ledger.ExportCSV(&second, ""))

	assert.NotEmpty(t, first.Bytes())
	assert.Equal(t, first.Bytes(), second.Bytes(), "rerunning the same snapshots must not change the ledger")
}

func TestRun_RejectsConcurrentRun(t *testing.T) {
	env := newTestEnv(t)

	env.pipeline.mu.Lock()
	env.pipeline.running = true
	env.pipeline.mu.Unlock()

	_, err := env.pipeline.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already in progress")
}

func TestRun_EmptySnapshotStore(t *testing.T) {
	env := newTestEnv(t)

	run, err := env.pipeline.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, runs.StatusCompleted, run.Status)
	assert.Equal(t, 0, run.Summary.ManagersOK)
	assert.Equal(t, 0, run.Summary.ScoreTables, "empty ledger computes no tables")
}

func TestRun_UnplaceableSectionSurfacesInSummary(t *testing.T) {
	env := newTestEnv(t)

	// Two quarter sections, one with a header that resolves nowhere. The
	// page carries no update date and the period label is opaque, so the
	// second section's rows cannot be placed on the timeline.
	page := `<html><head><title>Cara Gamma - Gamma Funds</title></head><body>` +
		`<h1>Cara Gamma - Gamma Funds</h1>` +
		`<table id="grid">` +
		`<tr><th>History</th><th>Stock</th><th>% of Portfolio</th><th>Recent Activity</th><th>Shares</th><th>Reported Price</th><th>Value</th></tr>` +
		`<tr class="q_chg"><td colspan="7">Q1 2019</td></tr>` +
		`<tr><td class="hist">+</td><td><a href="/insider?sym=AAPL">AAPL</a><span>Apple Inc.</span></td><td>10.00%</td><td></td><td>1000</td><td>$100.00</td><td>$100000</td></tr>` +
		`<tr class="q_chg"><td colspan="7">Older activity</td></tr>` +
		`<tr><td class="hist">+</td><td><a href="/insider?sym=MSFT">MSFT</a><span>Microsoft Corp.</span></td><td>5.00%</td><td></td><td>500</td><td>$100.00</td><td>$50000</td></tr>` +
		`</table></body></html>`

	require.NoError(t, env.snaps.Save(domain.RawSnapshot{
		ManagerID: "gamma",
		Period:    "latest",
		HTML:      page,
		FetchedAt: time.Now(),
	}))

	run, err := env.pipeline.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, runs.StatusCompleted, run.Status)
	assert.Equal(t, 1, run.Summary.ManagersOK)

	require.Len(t, run.Summary.Managers, 1)
	gamma := run.Summary.Managers[0]
	assert.Equal(t, 1, gamma.RowsParsed)
	assert.Equal(t, 1, gamma.QuartersSkipped, "the lost section must be visible in the summary")
	require.Len(t, gamma.Errors, 1)
	assert.Contains(t, gamma.Errors[0], "cannot resolve quarter")

	// The resolvable quarter still reaches the ledger, the lost one never does.
	var csvBuf bytes.Buffer
	require.NoError(t, env.ledger.ExportCSV(&csvBuf, "gamma"))
	assert.Contains(t, csvBuf.String(), "AAPL")
	assert.NotContains(t, csvBuf.String(), "MSFT")
}

func TestRun_BrokenManagerDoesNotPoisonOthers(t *testing.T) {
	env := newTestEnv(t)
	seedTwoManagers(t, env)
	require.NoError(t, env.snaps.Save(domain.RawSnapshot{
		ManagerID: "broken",
		Period:    "2019_Q1",
		HTML:      "<html><body><p>maintenance page</p></body></html>",
		FetchedAt: time.Now(),
	}))

	run, err := env.pipeline.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, runs.StatusCompleted, run.Status)
	assert.Equal(t, 2, run.Summary.ManagersOK)
	assert.Equal(t, 1, run.Summary.ManagersError)

	broken := run.Summary.Managers[2]
	assert.Equal(t, "broken", broken.ManagerID)
	assert.NotEmpty(t, broken.Errors)
	assert.Equal(t, 1, broken.QuartersSkipped)

	// The broken manager never reached the ledger.
	var csvBuf bytes.Buffer
	require.NoError(t, env.ledger.ExportCSV(&csvBuf, "broken"))
	lines := strings.Split(strings.TrimSpace(csvBuf.String()), "\n")
	assert.Len(t, lines, 1, "header only")
}

func TestBroadcaster_SubscribeAndUnsubscribe(t *testing.T) {
	b := NewBroadcaster()
	ch, cancel := b.Subscribe()

	b.Publish(Event{RunID: "r", Stage: "start", Total: 1})
	ev := <-ch
	assert.Equal(t, "start", ev.Stage)

	cancel()
	_, open := <-ch
	assert.False(t, open, "unsubscribe closes the channel")

	// Publishing after unsubscribe must not panic.
	b.Publish(Event{RunID: "r", Stage: "scored"})
	cancel()
}

func TestBroadcaster_SlowSubscriberDropsEvents(t *testing.T) {
	b := NewBroadcaster()
	ch, cancel := b.Subscribe()
	defer cancel()

	// Overflow the buffer without draining; Publish must never block.
	for i := 0; i < 100; i++ {
		b.Publish(Event{RunID: "r", Stage: "reconciled", Done: i})
	}

	received := 0
	for drained := false; !drained; {
		select {
		case <-ch:
			received++
		default:
			drained = true
		}
	}
	assert.Equal(t, 64, received, "buffer size bounds retained events")
}
