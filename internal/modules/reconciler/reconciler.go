// Package reconciler derives activity records from consecutive quarterly
// holdings. Classification is driven by share counts only; value or weight
// changes alone never produce activity. It is pure computation with no
// storage or I/O.
package reconciler

import (
	"sort"

	"github.com/fundtrail/fundtrail/internal/domain"
)

// QuarterHoldings is one manager's positions in one quarter, keyed by ticker.
type QuarterHoldings map[string]domain.HoldingRecord

// History is a manager's full holdings timeline keyed by quarter.
type History map[domain.Quarter]QuarterHoldings

// BuildHistory groups flat holding records into a History. Records for other
// managers are the caller's bug; they are grouped regardless.
func BuildHistory(records []domain.HoldingRecord) History {
	h := make(History)
	for _, rec := range records {
		qh, ok := h[rec.Quarter]
		if !ok {
			qh = make(QuarterHoldings)
			h[rec.Quarter] = qh
		}
		qh[rec.Ticker] = rec
	}
	return h
}

// Reconcile computes the complete activity set for one manager's history.
// The first observed quarter classifies every position as Buy. Output is
// sorted by quarter then ticker, so identical input yields identical output.
func Reconcile(managerID string, history History) []domain.ActivityRecord {
	if len(history) == 0 {
		return nil
	}

	quarters := make([]domain.Quarter, 0, len(history))
	for q := range history {
		quarters = append(quarters, q)
	}
	domain.SortQuarters(quarters)

	var activities []domain.ActivityRecord

	// First quarter: no prior filing to compare against
	for _, h := range history[quarters[0]] {
		activities = append(activities, domain.ActivityRecord{
			ManagerID:      managerID,
			Ticker:         h.Ticker,
			Quarter:        h.Quarter,
			Type:           domain.ActivityBuy,
			Shares:         h.Shares,
			SharesDelta:    h.Shares,
			ValueUSD:       h.ValueUSD,
			PctOfPortfolio: h.PctOfPortfolio,
			PctDelta:       h.PctOfPortfolio,
		})
	}

	for i := 1; i < len(quarters); i++ {
		prev := history[quarters[i-1]]
		cur := history[quarters[i]]
		activities = append(activities, reconcilePair(managerID, quarters[i], prev, cur)...)
	}

	sort.Slice(activities, func(i, j int) bool {
		if activities[i].Quarter != activities[j].Quarter {
			return activities[i].Quarter.Before(activities[j].Quarter)
		}
		return activities[i].Ticker < activities[j].Ticker
	})

	return activities
}

// reconcilePair classifies every ticker present in either of two consecutive
// observed quarters.
func reconcilePair(managerID string, quarter domain.Quarter, prev, cur QuarterHoldings) []domain.ActivityRecord {
	out := make([]domain.ActivityRecord, 0, len(cur)+4)

	for ticker, h := range cur {
		rec := domain.ActivityRecord{
			ManagerID:      managerID,
			Ticker:         ticker,
			Quarter:        quarter,
			Shares:         h.Shares,
			ValueUSD:       h.ValueUSD,
			PctOfPortfolio: h.PctOfPortfolio,
		}

		p, held := prev[ticker]
		switch {
		case !held:
			rec.Type = domain.ActivityBuy
			rec.SharesDelta = h.Shares
			rec.PctDelta = h.PctOfPortfolio
		case h.Shares > p.Shares:
			rec.Type = domain.ActivityAdd
			rec.SharesDelta = h.Shares - p.Shares
			rec.PctDelta = h.PctOfPortfolio - p.PctOfPortfolio
		case h.Shares < p.Shares:
			rec.Type = domain.ActivityReduce
			rec.SharesDelta = h.Shares - p.Shares
			rec.PctDelta = h.PctOfPortfolio - p.PctOfPortfolio
		default:
			// Same share count. Value or weight drift alone is a Hold.
			rec.Type = domain.ActivityHold
			rec.SharesDelta = 0
			rec.PctDelta = h.PctOfPortfolio - p.PctOfPortfolio
		}

		out = append(out, rec)
	}

	// Positions that vanished are Sells recorded at the quarter of absence
	for ticker, p := range prev {
		if _, still := cur[ticker]; still {
			continue
		}
		out = append(out, domain.ActivityRecord{
			ManagerID:      managerID,
			Ticker:         ticker,
			Quarter:        quarter,
			Type:           domain.ActivitySell,
			Shares:         0,
			SharesDelta:    -p.Shares,
			ValueUSD:       0,
			PctOfPortfolio: 0,
			PctDelta:       -p.PctOfPortfolio,
		})
	}

	return out
}
