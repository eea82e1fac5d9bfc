// Package pipeline orchestrates a full extraction run: snapshots are
// parsed, normalized and reconciled per manager in a bounded worker pool,
// then merged into the ledger by a single writer in sorted manager order,
// then scored. Runs over an identical snapshot set produce identical
// ledger and score output.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/fundtrail/fundtrail/internal/domain"
	"github.com/fundtrail/fundtrail/internal/modules/ledger"
	"github.com/fundtrail/fundtrail/internal/modules/normalizer"
	"github.com/fundtrail/fundtrail/internal/modules/parser"
	"github.com/fundtrail/fundtrail/internal/modules/reconciler"
	"github.com/fundtrail/fundtrail/internal/modules/runs"
	"github.com/fundtrail/fundtrail/internal/modules/scoring"
	"github.com/fundtrail/fundtrail/internal/modules/snapshots"
)

// Pipeline wires the extraction stages together.
type Pipeline struct {
	snapshots  *snapshots.Repository
	parser     *parser.Parser
	normalizer *normalizer.Normalizer
	identity   *normalizer.IdentityRepository
	ledger     *ledger.Repository
	scoring    *scoring.Service
	runs       *runs.Repository
	events     *Broadcaster
	workers    int
	log        zerolog.Logger

	mu      sync.Mutex // one run at a time
	running bool
}

// Config carries pipeline construction parameters.
type Config struct {
	Workers int // 0 = NumCPU
}

// New creates a pipeline.
func New(
	cfg Config,
	snapshotRepo *snapshots.Repository,
	p *parser.Parser,
	n *normalizer.Normalizer,
	identity *normalizer.IdentityRepository,
	ledgerRepo *ledger.Repository,
	scoringSvc *scoring.Service,
	runRepo *runs.Repository,
	events *Broadcaster,
	log zerolog.Logger,
) *Pipeline {
	workers := cfg.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	return &Pipeline{
		snapshots:  snapshotRepo,
		parser:     p,
		normalizer: n,
		identity:   identity,
		ledger:     ledgerRepo,
		scoring:    scoringSvc,
		runs:       runRepo,
		events:     events,
		workers:    workers,
		log:        log.With().Str("module", "pipeline").Logger(),
	}
}

// managerResult is the immutable output of processing one manager.
type managerResult struct {
	managerID   string
	rawName     string
	lastQuarter domain.Quarter
	holdings    []domain.HoldingRecord
	activities  []domain.ActivityRecord
	summary     runs.ManagerSummary
}

// Run executes one full pipeline pass. Only one run may be active at a time;
// a second call while running returns an error.
func (p *Pipeline) Run(ctx context.Context) (*runs.Run, error) {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return nil, fmt.Errorf("a run is already in progress")
	}
	p.running = true
	p.mu.Unlock()
	defer func() {
		p.mu.Lock()
		p.running = false
		p.mu.Unlock()
	}()

	runID := uuid.New().String()
	if err := p.runs.Start(runID); err != nil {
		return nil, err
	}

	summary, err := p.execute(ctx, runID)
	status := runs.StatusCompleted
	if err != nil {
		status = runs.StatusFailed
		p.log.Error().Err(err).Str("run", runID).Msg("Pipeline run failed")
	}
	if finishErr := p.runs.Finish(runID, status, summary); finishErr != nil {
		p.log.Error().Err(finishErr).Str("run", runID).Msg("Failed to record run finish")
	}
	if err != nil {
		return nil, err
	}

	return p.runs.Get(runID)
}

func (p *Pipeline) execute(ctx context.Context, runID string) (*runs.Summary, error) {
	managerIDs, err := p.snapshots.ListManagers()
	if err != nil {
		return nil, err
	}
	total := len(managerIDs)
	p.events.Publish(Event{RunID: runID, Stage: "start", Total: total})

	// Fan out: each manager's snapshots reduce to an immutable result.
	jobs := make(chan string)
	results := make(map[string]*managerResult, total)
	var resultsMu sync.Mutex
	var wg sync.WaitGroup

	for i := 0; i < p.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for id := range jobs {
				res := p.processManager(id)
				resultsMu.Lock()
				results[id] = res
				done := len(results)
				resultsMu.Unlock()
				p.events.Publish(Event{RunID: runID, Stage: "reconciled", ManagerID: id, Done: done, Total: total})
			}
		}()
	}

	for _, id := range managerIDs {
		select {
		case <-ctx.Done():
			close(jobs)
			wg.Wait()
			return nil, ctx.Err()
		case jobs <- id:
		}
	}
	close(jobs)
	wg.Wait()

	// Merge: single writer, sorted manager order, so output is deterministic.
	sort.Strings(managerIDs)
	summary := &runs.Summary{}
	for i, id := range managerIDs {
		res := results[id]
		summary.Managers = append(summary.Managers, res.summary)

		if len(res.summary.Errors) > 0 && len(res.activities) == 0 {
			summary.ManagersError++
			continue
		}

		if err := p.identity.Observe(id, res.rawName, res.lastQuarter); err != nil {
			return summary, err
		}
		if err := p.ledger.ReplaceManager(id, res.holdings, res.activities); err != nil {
			var violation *domain.LedgerInvariantViolation
			if errors.As(err, &violation) {
				// A broken manager never poisons the rest of the run
				res.summary.Errors = append(res.summary.Errors, err.Error())
				summary.Managers[len(summary.Managers)-1] = res.summary
				summary.ManagersError++
				p.log.Warn().Err(err).Str("manager", id).Msg("Ledger rebuild aborted for manager")
				continue
			}
			return summary, err
		}
		summary.ManagersOK++
		p.events.Publish(Event{RunID: runID, Stage: "merged", ManagerID: id, Done: i + 1, Total: total})
	}

	tables, err := p.scoring.ComputeAll()
	if err != nil {
		return summary, err
	}
	summary.ScoreTables = len(tables)

	p.events.Publish(Event{RunID: runID, Stage: "scored", Done: total, Total: total})
	return summary, nil
}

// processManager reduces one manager's snapshots to holdings and activities.
// Errors in individual snapshots are recorded and skipped; the manager's
// remaining quarters still reconcile.
func (p *Pipeline) processManager(managerID string) *managerResult {
	res := &managerResult{
		managerID: managerID,
		summary:   runs.ManagerSummary{ManagerID: managerID},
	}

	periods, err := p.snapshots.ListPeriods(managerID)
	if err != nil {
		res.summary.Errors = append(res.summary.Errors, err.Error())
		return res
	}

	type key struct {
		ticker  string
		quarter domain.Quarter
	}
	seen := make(map[key]bool)

	for _, period := range periods {
		snap, err := p.snapshots.Get(managerID, period)
		if err != nil {
			res.summary.QuartersSkipped++
			res.summary.Errors = append(res.summary.Errors, err.Error())
			continue
		}

		parsed, err := p.parser.Parse(managerID, period, snap.HTML)
		if err != nil {
			res.summary.QuartersSkipped++
			res.summary.Errors = append(res.summary.Errors, err.Error())
			continue
		}
		res.summary.RowsSkipped += parsed.RowsSkipped
		if parsed.ManagerName != "" {
			res.rawName = parsed.ManagerName
		}

		norm, err := p.normalizer.Normalize(managerID, period, parsed)
		if err != nil {
			res.summary.QuartersSkipped++
			res.summary.Errors = append(res.summary.Errors, err.Error())
			continue
		}
		res.summary.QuartersSkipped += norm.SectionsSkipped
		for _, sectionErr := range norm.Errors {
			res.summary.Errors = append(res.summary.Errors, sectionErr.Error())
		}

		added := false
		for _, rec := range norm.Records {
			k := key{rec.Ticker, rec.Quarter}
			// Re-ingesting an already seen (ticker, quarter) is a no-op
			if seen[k] {
				continue
			}
			seen[k] = true
			res.holdings = append(res.holdings, rec)
			res.summary.RowsParsed++
			added = true

			if res.lastQuarter.Before(rec.Quarter) {
				res.lastQuarter = rec.Quarter
			}
		}
		if added {
			res.summary.QuartersIngested++
		}
	}

	history := reconciler.BuildHistory(res.holdings)
	res.activities = reconciler.Reconcile(managerID, history)
	res.summary.Activities = len(res.activities)

	return res
}
